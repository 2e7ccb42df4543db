package workflow

import (
	"sort"
	"strings"
	"time"

	"github.com/AnTengye/dealflow/model"
	"github.com/google/uuid"
)

// Change is the result of a document transition: the new document state and
// every step row that was created or modified.
type Change struct {
	Document model.Document
	Steps    []model.WorkflowStep
}

// ParseFileType validates a caller supplied file type
func ParseFileType(raw string) (model.FileType, error) {
	ft := model.FileType(strings.ToUpper(strings.TrimSpace(raw)))
	if !ft.Valid() {
		return "", invalidArgument("unknown file type %q", raw)
	}
	return ft, nil
}

// NewDocument builds a freshly uploaded document. The UPLOAD step is
// completed immediately; AML and KYC files also get a pending EXTRACTION step.
func NewDocument(tenant, dealID string, fileType model.FileType, uploadedBy string, now time.Time) (Change, error) {
	if !fileType.Valid() {
		return Change{}, invalidArgument("unknown file type %q", fileType)
	}

	doc := model.Document{
		ID:                     uuid.NewString(),
		Tenant:                 tenant,
		DealID:                 dealID,
		FileType:               fileType,
		WorkflowStatus:         model.WorkflowPending,
		ValidationStatus:       model.ValidationPending,
		ESignatureStatus:       model.ESignatureUnsigned,
		AcknowledgmentRequired: fileType.Compliance(),
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	upload := completedStep(doc.ID, model.StepUpload, uploadedBy, now)
	steps := []model.WorkflowStep{upload}

	if fileType.Compliance() {
		extraction, err := NewStep(doc.ID, steps, model.StepExtraction, now.Add(time.Microsecond))
		if err != nil {
			return Change{}, err
		}
		steps = append(steps, extraction)
	}

	return Change{Document: doc, Steps: steps}, nil
}

// NewStep opens a PENDING step. It refuses when a step of the same type is
// already PENDING or PROCESSING on the document.
func NewStep(documentID string, existing []model.WorkflowStep, stepType model.StepType, now time.Time) (model.WorkflowStep, error) {
	if !stepType.Valid() {
		return model.WorkflowStep{}, invalidArgument("unknown step type %q", stepType)
	}
	if active := ActiveStep(existing, stepType); active != nil {
		return model.WorkflowStep{}, invalidState("%s step %s is already %s", stepType, active.ID, active.Status)
	}
	return model.WorkflowStep{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		StepType:   stepType,
		Status:     model.StepPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func completedStep(documentID string, stepType model.StepType, by string, now time.Time) model.WorkflowStep {
	return model.WorkflowStep{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		StepType:    stepType,
		Status:      model.StepCompleted,
		CompletedAt: &now,
		CompletedBy: by,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ActiveStep returns the PENDING or PROCESSING step of the given type, if any
func ActiveStep(steps []model.WorkflowStep, stepType model.StepType) *model.WorkflowStep {
	for i := range steps {
		if steps[i].StepType == stepType && steps[i].Status.Active() {
			return &steps[i]
		}
	}
	return nil
}

// SortSteps orders steps by creation time
func SortSteps(steps []model.WorkflowStep) {
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].CreatedAt.Before(steps[j].CreatedAt)
	})
}

func complete(step model.WorkflowStep, by string, now time.Time) model.WorkflowStep {
	step.Status = model.StepCompleted
	step.ErrorMessage = ""
	step.CompletedAt = &now
	step.CompletedBy = by
	step.UpdatedAt = now
	return step
}

func reject(step model.WorkflowStep, msg string, now time.Time) model.WorkflowStep {
	step.Status = model.StepRejected
	step.ErrorMessage = msg
	step.UpdatedAt = now
	return step
}

// BeginExtraction moves the pending EXTRACTION step to PROCESSING
func BeginExtraction(doc model.Document, steps []model.WorkflowStep, now time.Time) (model.WorkflowStep, error) {
	for _, s := range steps {
		if s.StepType != model.StepExtraction {
			continue
		}
		switch s.Status {
		case model.StepPending:
			s.Status = model.StepProcessing
			s.UpdatedAt = now
			return s, nil
		case model.StepProcessing:
			return model.WorkflowStep{}, invalidState("extraction for document %s is already processing", doc.ID)
		}
	}
	return model.WorkflowStep{}, invalidState("document %s has no pending extraction step", doc.ID)
}

// CompleteExtraction stores extracted data and opens the REVIEW step
func CompleteExtraction(doc model.Document, steps []model.WorkflowStep, step model.WorkflowStep, data model.JSONB, now time.Time) (Change, error) {
	if step.StepType != model.StepExtraction || step.Status != model.StepProcessing {
		return Change{}, invalidState("step %s is not a processing extraction", step.ID)
	}

	done := complete(step, "system", now)
	doc.ExtractedData = data
	doc.WorkflowStatus = model.WorkflowReadyForReview
	doc.ValidationStatus = model.ValidationRequiresReview
	doc.UpdatedAt = now

	review, err := NewStep(doc.ID, replaceStep(steps, done), model.StepReview, now.Add(time.Microsecond))
	if err != nil {
		return Change{}, err
	}
	return Change{Document: doc, Steps: []model.WorkflowStep{done, review}}, nil
}

// FailExtraction rejects the processing EXTRACTION step. The document itself
// is left untouched so an operator can retry.
func FailExtraction(step model.WorkflowStep, msg string, now time.Time) model.WorkflowStep {
	return reject(step, msg, now)
}

// RetryStep re-opens a REJECTED step
func RetryStep(doc model.Document, steps []model.WorkflowStep, step model.WorkflowStep, now time.Time) (Change, error) {
	if step.DocumentID != doc.ID {
		return Change{}, newError(ErrMismatch, "step %s does not belong to document %s", step.ID, doc.ID)
	}
	if step.Status != model.StepRejected {
		return Change{}, invalidState("step %s is %s, only REJECTED steps can be retried", step.ID, step.Status)
	}
	if active := ActiveStep(steps, step.StepType); active != nil {
		return Change{}, invalidState("%s step %s is already %s", step.StepType, active.ID, active.Status)
	}

	step.Status = model.StepPending
	step.ErrorMessage = ""
	step.UpdatedAt = now

	if step.StepType == model.StepReview {
		doc.WorkflowStatus = model.WorkflowReadyForReview
		doc.ValidationStatus = model.ValidationRequiresReview
		doc.UpdatedAt = now
	}
	return Change{Document: doc, Steps: []model.WorkflowStep{step}}, nil
}

// RequestReview opens a REVIEW step for documents that skip extraction
func RequestReview(doc model.Document, steps []model.WorkflowStep, now time.Time) (Change, error) {
	if doc.ESignatureStatus == model.ESignatureSigned {
		return Change{}, invalidState("document %s is already signed", doc.ID)
	}
	if ActiveStep(steps, model.StepExtraction) != nil {
		return Change{}, invalidState("document %s is waiting for extraction", doc.ID)
	}
	review, err := NewStep(doc.ID, steps, model.StepReview, now)
	if err != nil {
		return Change{}, err
	}
	doc.WorkflowStatus = model.WorkflowReadyForReview
	doc.ValidationStatus = model.ValidationRequiresReview
	doc.UpdatedAt = now
	return Change{Document: doc, Steps: []model.WorkflowStep{review}}, nil
}

// Review records a reviewer decision on the pending REVIEW step
func Review(doc model.Document, steps []model.WorkflowStep, reviewer string, approved bool, notes string, now time.Time) (Change, error) {
	active := ActiveStep(steps, model.StepReview)
	if active == nil || active.Status != model.StepPending {
		return Change{}, invalidState("document %s has no pending review step", doc.ID)
	}

	if !approved {
		if notes == "" {
			notes = "rejected by reviewer"
		}
		rejected := reject(*active, notes, now)
		doc.ValidationStatus = model.ValidationInvalid
		doc.WorkflowStatus = model.WorkflowRejected
		doc.UpdatedAt = now
		return Change{Document: doc, Steps: []model.WorkflowStep{rejected}}, nil
	}

	done := complete(*active, reviewer, now)
	current := replaceStep(steps, done)
	doc.ValidationStatus = model.ValidationValid
	doc.UpdatedAt = now

	next := model.StepSignature
	doc.WorkflowStatus = model.WorkflowReadyForSignature
	if doc.AcknowledgmentRequired && !doc.Acknowledged() {
		next = model.StepAcknowledgment
		doc.WorkflowStatus = model.WorkflowAwaitingAcknowledgment
	}

	opened, err := NewStep(doc.ID, current, next, now.Add(time.Microsecond))
	if err != nil {
		return Change{}, err
	}
	return Change{Document: doc, Steps: []model.WorkflowStep{done, opened}}, nil
}

// Acknowledge records who acknowledged the document. A pending
// ACKNOWLEDGMENT step is completed but never created here.
func Acknowledge(doc model.Document, steps []model.WorkflowStep, by, text string, now time.Time) Change {
	doc.AcknowledgedAt = &now
	doc.AcknowledgedBy = by
	doc.AcknowledgmentText = text
	doc.UpdatedAt = now
	if doc.AcknowledgmentRequired && doc.ESignatureStatus != model.ESignatureSigned {
		doc.WorkflowStatus = model.WorkflowAcknowledged
	}

	var changed []model.WorkflowStep
	current := steps
	if pending := ActiveStep(steps, model.StepAcknowledgment); pending != nil {
		done := complete(*pending, by, now)
		changed = append(changed, done)
		current = replaceStep(steps, done)
		// The step only exists after an approved review, so the gate is now clear.
		doc.WorkflowStatus = model.WorkflowReadyForSignature
	}

	if doc.WorkflowStatus == model.WorkflowReadyForSignature && ActiveStep(current, model.StepSignature) == nil {
		sig, err := NewStep(doc.ID, current, model.StepSignature, now.Add(time.Microsecond))
		if err == nil {
			changed = append(changed, sig)
		}
	}

	return Change{Document: doc, Steps: changed}
}

// SignInput describes a signature being applied to a document
type SignInput struct {
	Signer    string
	Data      []byte
	IPAddress string
}

// Sign applies an e-signature. The first signature needs a pending SIGNATURE
// step and closes the pipeline with a self-completing COMPLETION step; later
// signatures are recorded only.
func Sign(doc model.Document, steps []model.WorkflowStep, in SignInput, now time.Time) (Change, model.Signature, error) {
	if strings.TrimSpace(in.Signer) == "" {
		return Change{}, model.Signature{}, invalidArgument("signer is required")
	}
	if doc.AcknowledgmentRequired && !doc.Acknowledged() {
		return Change{}, model.Signature{}, preconditionFailed("document must be acknowledged before signing")
	}

	sig := model.Signature{
		ID:                uuid.NewString(),
		DocumentID:        doc.ID,
		Signer:            in.Signer,
		SignatureData:     in.Data,
		Status:            model.SignatureSigned,
		VerificationToken: NewVerificationToken(),
		IPAddress:         in.IPAddress,
		SignedAt:          now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if doc.ESignatureStatus == model.ESignatureSigned {
		return Change{Document: doc}, sig, nil
	}

	pending := ActiveStep(steps, model.StepSignature)
	if doc.WorkflowStatus != model.WorkflowReadyForSignature || pending == nil {
		return Change{}, model.Signature{}, invalidState("document %s is not ready for signature (workflow status %s)", doc.ID, doc.WorkflowStatus)
	}

	doc.ESignatureStatus = model.ESignatureSigned
	doc.WorkflowStatus = model.WorkflowSigned
	doc.SignedAt = &now
	doc.UpdatedAt = now

	signature := complete(*pending, in.Signer, now)
	completion := completedStep(doc.ID, model.StepCompletion, in.Signer, now.Add(time.Microsecond))

	return Change{Document: doc, Steps: []model.WorkflowStep{signature, completion}}, sig, nil
}

// VerifySignature marks a signature verified. Repeating it refreshes verified_at.
func VerifySignature(sig model.Signature, now time.Time) model.Signature {
	sig.Status = model.SignatureVerified
	sig.VerifiedAt = &now
	sig.UpdatedAt = now
	return sig
}

// NewVerificationToken returns an unguessable token for signature lookups
func NewVerificationToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

func replaceStep(steps []model.WorkflowStep, step model.WorkflowStep) []model.WorkflowStep {
	out := make([]model.WorkflowStep, 0, len(steps))
	for _, s := range steps {
		if s.ID == step.ID {
			out = append(out, step)
			continue
		}
		out = append(out, s)
	}
	return out
}
