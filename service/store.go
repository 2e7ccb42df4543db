package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/AnTengye/dealflow/model"
	"github.com/AnTengye/dealflow/workflow"
)

// Store is the persistence port. Get methods return a workflow.ErrNotFound
// error when the record does not exist. Tx runs fn as one all-or-nothing unit.
type Store interface {
	Tx(ctx context.Context, fn func(tx Store) error) error

	CreateContact(ctx context.Context, c *model.Contact) error
	GetContact(ctx context.Context, id string) (*model.Contact, error)

	CreateDeal(ctx context.Context, d *model.Deal) error
	GetDeal(ctx context.Context, id string) (*model.Deal, error)
	UpdateDeal(ctx context.Context, d *model.Deal) error
	ListDeals(ctx context.Context, tenant string) ([]model.Deal, error)
	DeleteDeal(ctx context.Context, id string) error

	CreateDocument(ctx context.Context, d *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	UpdateDocument(ctx context.Context, d *model.Document) error
	ListDocuments(ctx context.Context, dealID string) ([]model.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	SaveSteps(ctx context.Context, steps ...model.WorkflowStep) error
	GetStep(ctx context.Context, id string) (*model.WorkflowStep, error)
	ListSteps(ctx context.Context, documentID string) ([]model.WorkflowStep, error)

	CreateSignature(ctx context.Context, s *model.Signature) error
	GetSignatureByToken(ctx context.Context, token string) (*model.Signature, error)
	UpdateSignature(ctx context.Context, s *model.Signature) error
	ListSignatures(ctx context.Context, documentID string) ([]model.Signature, error)

	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	UpdateTask(ctx context.Context, t *model.Task) error
	ListTasks(ctx context.Context, dealID string) ([]model.Task, error)
}

// MemoryStore keeps every record in process memory.
// Used by tests and by the "memory" database driver for local runs.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	contacts   map[string]model.Contact
	deals      map[string]model.Deal
	documents  map[string]model.Document
	steps      map[string]model.WorkflowStep
	signatures map[string]model.Signature
	tasks      map[string]model.Task
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.reset()
	slog.Info("memory store initialized")
	return s
}

func (s *MemoryStore) reset() {
	s.contacts = make(map[string]model.Contact)
	s.deals = make(map[string]model.Deal)
	s.documents = make(map[string]model.Document)
	s.steps = make(map[string]model.WorkflowStep)
	s.signatures = make(map[string]model.Signature)
	s.tasks = make(map[string]model.Task)
}

type memorySnapshot struct {
	contacts   map[string]model.Contact
	deals      map[string]model.Deal
	documents  map[string]model.Document
	steps      map[string]model.WorkflowStep
	signatures map[string]model.Signature
	tasks      map[string]model.Task
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Tx serializes transactions and restores the previous state when fn fails
func (s *MemoryStore) Tx(ctx context.Context, fn func(tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snap := memorySnapshot{
		contacts:   cloneMap(s.contacts),
		deals:      cloneMap(s.deals),
		documents:  cloneMap(s.documents),
		steps:      cloneMap(s.steps),
		signatures: cloneMap(s.signatures),
		tasks:      cloneMap(s.tasks),
	}
	s.mu.RUnlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.contacts = snap.contacts
		s.deals = snap.deals
		s.documents = snap.documents
		s.steps = snap.steps
		s.signatures = snap.signatures
		s.tasks = snap.tasks
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) CreateContact(_ context.Context, c *model.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = *c
	return nil
}

func (s *MemoryStore) GetContact(_ context.Context, id string) (*model.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, workflow.NotFound("contact", id)
	}
	return &c, nil
}

func (s *MemoryStore) CreateDeal(_ context.Context, d *model.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals[d.ID] = *d
	return nil
}

func (s *MemoryStore) GetDeal(_ context.Context, id string) (*model.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deals[id]
	if !ok {
		return nil, workflow.NotFound("deal", id)
	}
	return &d, nil
}

func (s *MemoryStore) UpdateDeal(_ context.Context, d *model.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deals[d.ID]; !ok {
		return workflow.NotFound("deal", d.ID)
	}
	s.deals[d.ID] = *d
	return nil
}

func (s *MemoryStore) ListDeals(_ context.Context, tenant string) ([]model.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Deal
	for _, d := range s.deals {
		if d.Tenant == tenant {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) DeleteDeal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deals, id)
	for tid, t := range s.tasks {
		if t.DealID == id {
			delete(s.tasks, tid)
		}
	}
	return nil
}

func (s *MemoryStore) CreateDocument(_ context.Context, d *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[d.ID] = *d
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, workflow.NotFound("document", id)
	}
	return &d, nil
}

func (s *MemoryStore) UpdateDocument(_ context.Context, d *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[d.ID]; !ok {
		return workflow.NotFound("document", d.ID)
	}
	s.documents[d.ID] = *d
	return nil
}

func (s *MemoryStore) ListDocuments(_ context.Context, dealID string) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Document
	for _, d := range s.documents {
		if d.DealID == dealID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteDocument removes the document with its steps and signatures
func (s *MemoryStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	for sid, step := range s.steps {
		if step.DocumentID == id {
			delete(s.steps, sid)
		}
	}
	for sid, sig := range s.signatures {
		if sig.DocumentID == id {
			delete(s.signatures, sid)
		}
	}
	return nil
}

func (s *MemoryStore) SaveSteps(_ context.Context, steps ...model.WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, step := range steps {
		s.steps[step.ID] = step
	}
	return nil
}

func (s *MemoryStore) GetStep(_ context.Context, id string) (*model.WorkflowStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	step, ok := s.steps[id]
	if !ok {
		return nil, workflow.NotFound("step", id)
	}
	return &step, nil
}

func (s *MemoryStore) ListSteps(_ context.Context, documentID string) ([]model.WorkflowStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WorkflowStep
	for _, step := range s.steps {
		if step.DocumentID == documentID {
			result = append(result, step)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return stepRank(result[i].StepType) < stepRank(result[j].StepType)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// stepRank breaks creation time ties in pipeline order
func stepRank(t model.StepType) int {
	switch t {
	case model.StepUpload:
		return 0
	case model.StepExtraction:
		return 1
	case model.StepReview:
		return 2
	case model.StepAcknowledgment:
		return 3
	case model.StepSignature:
		return 4
	default:
		return 5
	}
}

func (s *MemoryStore) CreateSignature(_ context.Context, sig *model.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signatures[sig.ID] = *sig
	return nil
}

func (s *MemoryStore) GetSignatureByToken(_ context.Context, token string) (*model.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sig := range s.signatures {
		if sig.VerificationToken == token {
			return &sig, nil
		}
	}
	return nil, workflow.NotFound("signature", "for token")
}

func (s *MemoryStore) UpdateSignature(_ context.Context, sig *model.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.signatures[sig.ID]; !ok {
		return workflow.NotFound("signature", sig.ID)
	}
	s.signatures[sig.ID] = *sig
	return nil
}

func (s *MemoryStore) ListSignatures(_ context.Context, documentID string) ([]model.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Signature
	for _, sig := range s.signatures {
		if sig.DocumentID == documentID {
			result = append(result, sig)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SignedAt.Before(result[j].SignedAt)
	})
	return result, nil
}

func (s *MemoryStore) CreateTask(_ context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = *t
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, id string) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, workflow.NotFound("task", id)
	}
	return &t, nil
}

func (s *MemoryStore) UpdateTask(_ context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return workflow.NotFound("task", t.ID)
	}
	s.tasks[t.ID] = *t
	return nil
}

func (s *MemoryStore) ListTasks(_ context.Context, dealID string) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Task
	for _, t := range s.tasks {
		if t.DealID == dealID {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DueDate.Before(result[j].DueDate)
	})
	return result, nil
}
