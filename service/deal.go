package service

import (
	"context"
	"strings"
	"time"

	"github.com/AnTengye/dealflow/model"
	"github.com/AnTengye/dealflow/pkg/logger"
	"github.com/AnTengye/dealflow/workflow"
	"github.com/google/uuid"
)

// DealService runs the deal lifecycle against the store and dispatches
// follow-up effects once each transition has committed.
type DealService struct {
	store         Store
	documents     *DocumentService
	dispatcher    *Dispatcher
	defaultOwner  string
	defaultTenant string
	now           func() time.Time
}

func NewDealService(store Store, documents *DocumentService, dispatcher *Dispatcher, defaultOwner, defaultTenant string) *DealService {
	return &DealService{
		store:         store,
		documents:     documents,
		dispatcher:    dispatcher,
		defaultOwner:  defaultOwner,
		defaultTenant: defaultTenant,
		now:           time.Now,
	}
}

type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
}

type DealInput struct {
	Title            string   `json:"title"`
	ContactID        string   `json:"contact_id"`
	Company          string   `json:"company"`
	Owner            string   `json:"owner"`
	DealValue        *float64 `json:"deal_value"`
	PipelinePriority string   `json:"pipeline_priority"`
}

// OnboardingInput is what a prospect submits through the public form
type OnboardingInput struct {
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	Company   string   `json:"company"`
	DealTitle string   `json:"deal_title"`
	DealValue *float64 `json:"deal_value"`
}

func (s *DealService) CreateContact(ctx context.Context, tenant string, in ContactInput) (*model.Contact, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, workflow.Errorf(workflow.ErrInvalidArgument, "contact name is required")
	}
	now := s.now()
	c := &model.Contact{
		ID:        uuid.NewString(),
		Tenant:    tenant,
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Phone:     in.Phone,
		Company:   in.Company,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateContact(ctx, c); err != nil {
		return nil, err
	}
	logger.Info(ctx, "contact created", "contact_id", c.ID)
	return c, nil
}

func (s *DealService) GetContact(ctx context.Context, tenant, id string) (*model.Contact, error) {
	c, err := s.store.GetContact(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Tenant != tenant {
		return nil, workflow.NotFound("contact", id)
	}
	return c, nil
}

func (s *DealService) CreateDeal(ctx context.Context, tenant, user string, in DealInput) (*model.Deal, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, workflow.Errorf(workflow.ErrInvalidArgument, "deal title is required")
	}
	priority := model.PriorityMedium
	if in.PipelinePriority != "" {
		priority = model.Priority(strings.ToUpper(strings.TrimSpace(in.PipelinePriority)))
		if !priority.Valid() {
			return nil, workflow.Errorf(workflow.ErrInvalidArgument, "unknown pipeline priority %q", in.PipelinePriority)
		}
	}
	if _, err := s.GetContact(ctx, tenant, in.ContactID); err != nil {
		return nil, err
	}

	owner := in.Owner
	if owner == "" {
		owner = user
	}
	if owner == "" {
		owner = s.defaultOwner
	}

	now := s.now()
	d := &model.Deal{
		ID:               uuid.NewString(),
		Tenant:           tenant,
		Title:            strings.TrimSpace(in.Title),
		ContactID:        in.ContactID,
		Company:          in.Company,
		Owner:            owner,
		Stage:            model.StageNewLead,
		KYCStatus:        model.KYCPending,
		DealValue:        in.DealValue,
		PipelinePriority: priority,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateDeal(ctx, d); err != nil {
		return nil, err
	}
	logger.Info(logger.WithDeal(ctx, d.ID), "deal created", "owner", owner)
	return d, nil
}

// Onboard creates the contact and deal for a public onboarding submission.
// Both land in the configured default tenant, owned by the default owner.
func (s *DealService) Onboard(ctx context.Context, in OnboardingInput) (*model.Contact, *model.Deal, error) {
	if strings.TrimSpace(in.Email) == "" {
		return nil, nil, workflow.Errorf(workflow.ErrInvalidArgument, "email is required")
	}
	title := in.DealTitle
	if title == "" {
		title = strings.TrimSpace(in.Company + " " + in.Name)
	}

	var contact *model.Contact
	var deal *model.Deal
	err := s.store.Tx(ctx, func(tx Store) error {
		scoped := *s
		scoped.store = tx
		var err error
		contact, err = scoped.CreateContact(ctx, s.defaultTenant, ContactInput{
			Name: in.Name, Email: in.Email, Phone: in.Phone, Company: in.Company,
		})
		if err != nil {
			return err
		}
		deal, err = scoped.CreateDeal(ctx, s.defaultTenant, s.defaultOwner, DealInput{
			Title:     title,
			ContactID: contact.ID,
			Company:   in.Company,
			DealValue: in.DealValue,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return contact, deal, nil
}

func (s *DealService) ListDeals(ctx context.Context, tenant string) ([]model.Deal, error) {
	return s.store.ListDeals(ctx, tenant)
}

func (s *DealService) GetDeal(ctx context.Context, tenant, id string) (*model.Deal, error) {
	return loadDeal(ctx, s.store, tenant, id)
}

func loadDeal(ctx context.Context, store Store, tenant, id string) (*model.Deal, error) {
	d, err := store.GetDeal(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Tenant != tenant {
		return nil, workflow.NotFound("deal", id)
	}
	return d, nil
}

// DeleteDeal removes the deal with its tasks and documents
func (s *DealService) DeleteDeal(ctx context.Context, tenant, id string) error {
	var blobs []string
	err := s.store.Tx(ctx, func(tx Store) error {
		if _, err := loadDeal(ctx, tx, tenant, id); err != nil {
			return err
		}
		docs, err := tx.ListDocuments(ctx, id)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := tx.DeleteDocument(ctx, doc.ID); err != nil {
				return err
			}
			blobs = append(blobs, doc.StoragePath)
		}
		return tx.DeleteDeal(ctx, id)
	})
	if err != nil {
		return err
	}

	ctx = logger.WithDeal(ctx, id)
	for _, path := range blobs {
		s.documents.removeBlob(ctx, path)
	}
	logger.Info(ctx, "deal deleted", "documents", len(blobs))
	return nil
}

// EvaluateAutoProgress advances the deal by at most one stage
func (s *DealService) EvaluateAutoProgress(ctx context.Context, tenant, id string) (*workflow.Decision, error) {
	var decision workflow.Decision
	var contact *model.Contact
	err := s.store.Tx(ctx, func(tx Store) error {
		deal, err := loadDeal(ctx, tx, tenant, id)
		if err != nil {
			return err
		}
		in := workflow.ProgressInput{Deal: *deal}

		contact, err = tx.GetContact(ctx, deal.ContactID)
		if err != nil && !isNotFound(err) {
			return err
		}
		if contact != nil {
			in.ContactEmail = contact.Email
		}
		if in.Documents, err = tx.ListDocuments(ctx, id); err != nil {
			return err
		}
		tasks, err := tx.ListTasks(ctx, id)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.Status == model.TaskCompleted {
				in.CompletedTasks = append(in.CompletedTasks, t)
			}
		}

		decision = workflow.EvaluateAutoProgress(in, s.now())
		if !decision.Advanced {
			return nil
		}
		return tx.UpdateDeal(ctx, &decision.Deal)
	})
	if err != nil {
		return nil, err
	}

	ctx = logger.WithDeal(ctx, id)
	if decision.Advanced {
		logger.Info(ctx, "deal advanced", "from", decision.From, "to", decision.To, "reason", decision.Reason)
		s.dispatcher.Dispatch(ctx, decision.Deal, contact, decision.Effects)
	} else {
		logger.Debug(ctx, "deal not advanced", "stage", decision.From, "reason", decision.Reason)
	}
	return &decision, nil
}

// SendKYCRequest moves the deal into KYC_IN_PROGRESS and emails the contact
func (s *DealService) SendKYCRequest(ctx context.Context, tenant, id string) (*model.Deal, error) {
	var deal model.Deal
	var effects []workflow.Effect
	var contact *model.Contact
	err := s.store.Tx(ctx, func(tx Store) error {
		current, err := loadDeal(ctx, tx, tenant, id)
		if err != nil {
			return err
		}
		contact, err = tx.GetContact(ctx, current.ContactID)
		if err != nil && !isNotFound(err) {
			return err
		}
		deal, effects = workflow.SendKYCRequest(*current, s.now())
		return tx.UpdateDeal(ctx, &deal)
	})
	if err != nil {
		return nil, err
	}

	ctx = logger.WithDeal(ctx, id)
	logger.Info(ctx, "kyc request sent", "stage", deal.Stage, "kyc_status", deal.KYCStatus)
	s.dispatcher.Dispatch(ctx, deal, contact, effects)
	return &deal, nil
}

// ArchiveDocuments moves a KYC verified deal with documents into DUE_DILIGENCE
func (s *DealService) ArchiveDocuments(ctx context.Context, tenant, id string) (*model.Deal, error) {
	var deal model.Deal
	var effects []workflow.Effect
	err := s.store.Tx(ctx, func(tx Store) error {
		current, err := loadDeal(ctx, tx, tenant, id)
		if err != nil {
			return err
		}
		docs, err := tx.ListDocuments(ctx, id)
		if err != nil {
			return err
		}
		deal, effects, err = workflow.ArchiveDocuments(*current, len(docs), s.now())
		if err != nil {
			return err
		}
		return tx.UpdateDeal(ctx, &deal)
	})
	if err != nil {
		return nil, err
	}

	ctx = logger.WithDeal(ctx, id)
	logger.Info(ctx, "deal documents archived", "stage", deal.Stage)
	s.dispatcher.Dispatch(ctx, deal, nil, effects)
	return &deal, nil
}

// SetStage is the manual operator override
func (s *DealService) SetStage(ctx context.Context, tenant, id, stage string) (*model.Deal, error) {
	return s.update(ctx, tenant, id, "deal stage set", func(d model.Deal) (model.Deal, error) {
		return workflow.SetStage(d, stage, s.now())
	})
}

func (s *DealService) SetKYCStatus(ctx context.Context, tenant, id, status string) (*model.Deal, error) {
	return s.update(ctx, tenant, id, "kyc status set", func(d model.Deal) (model.Deal, error) {
		return workflow.SetKYCStatus(d, status, s.now())
	})
}

func (s *DealService) update(ctx context.Context, tenant, id, msg string, fn func(model.Deal) (model.Deal, error)) (*model.Deal, error) {
	var deal model.Deal
	err := s.store.Tx(ctx, func(tx Store) error {
		current, err := loadDeal(ctx, tx, tenant, id)
		if err != nil {
			return err
		}
		if deal, err = fn(*current); err != nil {
			return err
		}
		return tx.UpdateDeal(ctx, &deal)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(logger.WithDeal(ctx, id), msg, "stage", deal.Stage, "kyc_status", deal.KYCStatus)
	return &deal, nil
}

func (s *DealService) ListTasks(ctx context.Context, tenant, dealID string) ([]model.Task, error) {
	if _, err := loadDeal(ctx, s.store, tenant, dealID); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, dealID)
}

// CompleteTask marks a task done. Completing twice keeps the first completion time.
func (s *DealService) CompleteTask(ctx context.Context, tenant, id string) (*model.Task, error) {
	var task *model.Task
	err := s.store.Tx(ctx, func(tx Store) error {
		var err error
		task, err = tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if task.Tenant != tenant {
			return workflow.NotFound("task", id)
		}
		if task.Status == model.TaskCompleted {
			return nil
		}
		now := s.now()
		task.Status = model.TaskCompleted
		task.CompletedAt = &now
		task.UpdatedAt = now
		return tx.UpdateTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(logger.WithDeal(ctx, task.DealID), "task completed", "task_id", task.ID, "title", task.Title)
	return task, nil
}
