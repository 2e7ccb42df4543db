package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/AnTengye/dealflow/model"
	"github.com/AnTengye/dealflow/pkg/logger"
	"github.com/AnTengye/dealflow/workflow"
)

// DocumentService runs the document workflow: upload, extraction, review,
// acknowledgment and signature.
type DocumentService struct {
	store     Store
	blobs     BlobStore
	completer Completer
	now       func() time.Time
}

func NewDocumentService(store Store, blobs BlobStore, completer Completer) *DocumentService {
	if completer == nil {
		completer = DisabledCompleter{}
	}
	return &DocumentService{
		store:     store,
		blobs:     blobs,
		completer: completer,
		now:       time.Now,
	}
}

type UploadInput struct {
	Filename    string
	ContentType string
	FileType    string
	Data        []byte
	UploadedBy  string
}

// ExtractionResult reports an extraction attempt. A collaborator failure is
// not an error of the call: it shows up as a REJECTED step and Error.
type ExtractionResult struct {
	Document model.Document     `json:"document"`
	Step     model.WorkflowStep `json:"step"`
	Error    string             `json:"error,omitempty"`
}

func isNotFound(err error) bool {
	return errors.Is(err, workflow.ErrNotFound)
}

func (s *DocumentService) loadDocument(ctx context.Context, store Store, tenant, id string) (*model.Document, error) {
	doc, err := store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Tenant != tenant {
		return nil, workflow.NotFound("document", id)
	}
	return doc, nil
}

func (s *DocumentService) removeBlob(ctx context.Context, storagePath string) {
	if storagePath == "" {
		return
	}
	if err := s.blobs.Delete(ctx, storagePath); err != nil {
		logger.Warn(ctx, "failed to delete document file", "path", storagePath, "error", err)
	}
}

// Upload stores the file and creates the document with its initial steps.
// Nothing is recorded when the blob write fails.
func (s *DocumentService) Upload(ctx context.Context, tenant, dealID string, in UploadInput) (*model.Document, []model.WorkflowStep, error) {
	fileType, err := workflow.ParseFileType(in.FileType)
	if err != nil {
		return nil, nil, err
	}
	if len(in.Data) == 0 {
		return nil, nil, workflow.Errorf(workflow.ErrInvalidArgument, "file is empty")
	}
	if _, err := loadDeal(ctx, s.store, tenant, dealID); err != nil {
		return nil, nil, err
	}

	change, err := workflow.NewDocument(tenant, dealID, fileType, in.UploadedBy, s.now())
	if err != nil {
		return nil, nil, err
	}
	doc := change.Document
	doc.Filename = path.Base(strings.ReplaceAll(in.Filename, "\\", "/"))
	doc.ContentType = in.ContentType
	doc.Size = int64(len(in.Data))
	ctx = logger.WithDocument(logger.WithDeal(ctx, dealID), doc.ID)

	if isPDF(in.ContentType, doc.Filename, in.Data) {
		if pages, err := pdfPageCount(in.Data); err == nil {
			doc.PageCount = pages
		} else {
			logger.Warn(ctx, "failed to read pdf page count", "error", err)
		}
	}

	objectName := fmt.Sprintf("%s/%s/%s/%s", tenant, dealID, doc.ID, doc.Filename)
	storagePath, err := s.blobs.Put(ctx, objectName, in.Data, in.ContentType)
	if err != nil {
		logger.Error(ctx, "failed to store document file", "error", err)
		return nil, nil, workflow.Errorf(workflow.ErrCollaborator, "failed to store file: %v", err)
	}
	doc.StoragePath = storagePath

	err = s.store.Tx(ctx, func(tx Store) error {
		if err := tx.CreateDocument(ctx, &doc); err != nil {
			return err
		}
		return tx.SaveSteps(ctx, change.Steps...)
	})
	if err != nil {
		s.removeBlob(ctx, storagePath)
		return nil, nil, err
	}

	logger.Info(ctx, "document uploaded", "file_type", doc.FileType, "size", doc.Size, "steps", len(change.Steps))
	return &doc, change.Steps, nil
}

func (s *DocumentService) Get(ctx context.Context, tenant, id string) (*model.Document, error) {
	return s.loadDocument(ctx, s.store, tenant, id)
}

func (s *DocumentService) List(ctx context.Context, tenant, dealID string) ([]model.Document, error) {
	if _, err := loadDeal(ctx, s.store, tenant, dealID); err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, dealID)
}

func (s *DocumentService) Steps(ctx context.Context, tenant, id string) ([]model.WorkflowStep, error) {
	if _, err := s.loadDocument(ctx, s.store, tenant, id); err != nil {
		return nil, err
	}
	return s.store.ListSteps(ctx, id)
}

func (s *DocumentService) Signatures(ctx context.Context, tenant, id string) ([]model.Signature, error) {
	if _, err := s.loadDocument(ctx, s.store, tenant, id); err != nil {
		return nil, err
	}
	return s.store.ListSignatures(ctx, id)
}

// Download returns the document with its file content
func (s *DocumentService) Download(ctx context.Context, tenant, id string) (*model.Document, []byte, error) {
	doc, err := s.loadDocument(ctx, s.store, tenant, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, workflow.Errorf(workflow.ErrCollaborator, "failed to read file: %v", err)
	}
	return doc, data, nil
}

// Delete removes the document record, its steps and signatures, then the file
func (s *DocumentService) Delete(ctx context.Context, tenant, id string) error {
	var storagePath string
	err := s.store.Tx(ctx, func(tx Store) error {
		doc, err := s.loadDocument(ctx, tx, tenant, id)
		if err != nil {
			return err
		}
		storagePath = doc.StoragePath
		return tx.DeleteDocument(ctx, id)
	})
	if err != nil {
		return err
	}

	ctx = logger.WithDocument(ctx, id)
	s.removeBlob(ctx, storagePath)
	logger.Info(ctx, "document deleted")
	return nil
}

// Extract runs AI extraction on the pending EXTRACTION step. The step is
// marked PROCESSING in one transaction, the collaborator is called outside
// any transaction, and the outcome is written in a second one.
func (s *DocumentService) Extract(ctx context.Context, tenant, id string) (*ExtractionResult, error) {
	ctx = logger.WithDocument(ctx, id)

	var doc model.Document
	var step model.WorkflowStep
	err := s.store.Tx(ctx, func(tx Store) error {
		current, err := s.loadDocument(ctx, tx, tenant, id)
		if err != nil {
			return err
		}
		steps, err := tx.ListSteps(ctx, id)
		if err != nil {
			return err
		}
		if step, err = workflow.BeginExtraction(*current, steps, s.now()); err != nil {
			return err
		}
		doc = *current
		return tx.SaveSteps(ctx, step)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "extraction started", "step_id", step.ID, "file_type", doc.FileType)
	answer, callErr := s.runExtraction(ctx, doc)

	// The step is PROCESSING now; its outcome must be written even when the
	// caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	result := &ExtractionResult{}
	err = s.store.Tx(persistCtx, func(tx Store) error {
		current, err := s.loadDocument(persistCtx, tx, tenant, id)
		if err != nil {
			return err
		}
		if callErr != nil {
			rejected := workflow.FailExtraction(step, callErr.Error(), s.now())
			result.Document, result.Step, result.Error = *current, rejected, rejected.ErrorMessage
			return tx.SaveSteps(persistCtx, rejected)
		}

		steps, err := tx.ListSteps(persistCtx, id)
		if err != nil {
			return err
		}
		change, err := workflow.CompleteExtraction(*current, steps, step, ParseExtraction(answer), s.now())
		if err != nil {
			return err
		}
		if err := tx.UpdateDocument(persistCtx, &change.Document); err != nil {
			return err
		}
		result.Document, result.Step = change.Document, change.Steps[0]
		return tx.SaveSteps(persistCtx, change.Steps...)
	})
	if err != nil {
		if !errors.Is(err, workflow.ErrNotFound) {
			rejected := workflow.FailExtraction(step, fmt.Sprintf("record extraction outcome: %v", err), s.now())
			if saveErr := s.store.SaveSteps(persistCtx, rejected); saveErr != nil {
				logger.Error(ctx, "extraction step left processing", "step_id", step.ID, "error", saveErr)
			}
		}
		return nil, err
	}

	if result.Error != "" {
		logger.Warn(ctx, "extraction failed", "step_id", step.ID, "error", result.Error)
	} else {
		logger.Info(ctx, "extraction completed", "step_id", step.ID)
	}
	return result, nil
}

func (s *DocumentService) runExtraction(ctx context.Context, doc model.Document) (string, error) {
	data, err := s.blobs.Get(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	var url string
	if signer, ok := s.blobs.(URLSigner); ok {
		if url, err = signer.SignedURL(ctx, doc.StoragePath); err != nil {
			logger.Debug(ctx, "no signed url for extraction", "error", err)
		}
	}

	prompt, system := ExtractionPrompt(doc, data, url)
	answer, err := s.completer.Complete(ctx, prompt, system)
	if err != nil {
		return "", fmt.Errorf("ai extraction: %w", err)
	}
	return answer, nil
}

// RetryStep re-opens a REJECTED step. A retried EXTRACTION runs again at once
// and the returned step is its final state.
func (s *DocumentService) RetryStep(ctx context.Context, tenant, docID, stepID string) (*model.WorkflowStep, error) {
	var retried model.WorkflowStep
	err := s.store.Tx(ctx, func(tx Store) error {
		doc, err := s.loadDocument(ctx, tx, tenant, docID)
		if err != nil {
			return err
		}
		step, err := tx.GetStep(ctx, stepID)
		if err != nil {
			return err
		}
		steps, err := tx.ListSteps(ctx, docID)
		if err != nil {
			return err
		}
		change, err := workflow.RetryStep(*doc, steps, *step, s.now())
		if err != nil {
			return err
		}
		if change.Document.UpdatedAt != doc.UpdatedAt {
			if err := tx.UpdateDocument(ctx, &change.Document); err != nil {
				return err
			}
		}
		retried = change.Steps[0]
		return tx.SaveSteps(ctx, change.Steps...)
	})
	if err != nil {
		return nil, err
	}

	ctx = logger.WithDocument(ctx, docID)
	logger.Info(ctx, "step retried", "step_id", retried.ID, "step_type", retried.StepType)

	if retried.StepType == model.StepExtraction {
		result, err := s.Extract(ctx, tenant, docID)
		if err != nil {
			return nil, err
		}
		return &result.Step, nil
	}
	return &retried, nil
}

// RequestReview opens a REVIEW step on a document that skipped extraction
func (s *DocumentService) RequestReview(ctx context.Context, tenant, id string) (*model.Document, error) {
	return s.transition(ctx, tenant, id, "review requested", func(doc model.Document, steps []model.WorkflowStep) (workflow.Change, error) {
		return workflow.RequestReview(doc, steps, s.now())
	})
}

func (s *DocumentService) Review(ctx context.Context, tenant, id, reviewer string, approved bool, notes string) (*model.Document, error) {
	return s.transition(ctx, tenant, id, "document reviewed", func(doc model.Document, steps []model.WorkflowStep) (workflow.Change, error) {
		return workflow.Review(doc, steps, reviewer, approved, notes, s.now())
	})
}

func (s *DocumentService) Acknowledge(ctx context.Context, tenant, id, by, text string) (*model.Document, error) {
	return s.transition(ctx, tenant, id, "document acknowledged", func(doc model.Document, steps []model.WorkflowStep) (workflow.Change, error) {
		return workflow.Acknowledge(doc, steps, by, text, s.now()), nil
	})
}

func (s *DocumentService) transition(ctx context.Context, tenant, id, msg string, fn func(model.Document, []model.WorkflowStep) (workflow.Change, error)) (*model.Document, error) {
	var doc model.Document
	err := s.store.Tx(ctx, func(tx Store) error {
		current, err := s.loadDocument(ctx, tx, tenant, id)
		if err != nil {
			return err
		}
		steps, err := tx.ListSteps(ctx, id)
		if err != nil {
			return err
		}
		change, err := fn(*current, steps)
		if err != nil {
			return err
		}
		if err := tx.UpdateDocument(ctx, &change.Document); err != nil {
			return err
		}
		doc = change.Document
		return tx.SaveSteps(ctx, change.Steps...)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(logger.WithDocument(ctx, id), msg, "workflow_status", doc.WorkflowStatus, "validation_status", doc.ValidationStatus)
	return &doc, nil
}

// Sign applies an e-signature and returns the new signature record
func (s *DocumentService) Sign(ctx context.Context, tenant, id string, in workflow.SignInput) (*model.Signature, error) {
	var sig model.Signature
	err := s.store.Tx(ctx, func(tx Store) error {
		current, err := s.loadDocument(ctx, tx, tenant, id)
		if err != nil {
			return err
		}
		steps, err := tx.ListSteps(ctx, id)
		if err != nil {
			return err
		}
		var change workflow.Change
		change, sig, err = workflow.Sign(*current, steps, in, s.now())
		if err != nil {
			return err
		}
		if len(change.Steps) > 0 {
			if err := tx.UpdateDocument(ctx, &change.Document); err != nil {
				return err
			}
			if err := tx.SaveSteps(ctx, change.Steps...); err != nil {
				return err
			}
		}
		return tx.CreateSignature(ctx, &sig)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(logger.WithDocument(ctx, id), "document signed", "signature_id", sig.ID, "signer", sig.Signer)
	return &sig, nil
}

// VerifySignature looks a signature up by its token and marks it verified
func (s *DocumentService) VerifySignature(ctx context.Context, token string) (*model.Signature, error) {
	if strings.TrimSpace(token) == "" {
		return nil, workflow.Errorf(workflow.ErrInvalidArgument, "verification token is required")
	}
	var sig model.Signature
	err := s.store.Tx(ctx, func(tx Store) error {
		current, err := tx.GetSignatureByToken(ctx, token)
		if err != nil {
			return err
		}
		sig = workflow.VerifySignature(*current, s.now())
		return tx.UpdateSignature(ctx, &sig)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(logger.WithDocument(ctx, sig.DocumentID), "signature verified", "signature_id", sig.ID)
	return &sig, nil
}
