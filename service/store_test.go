package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AnTengye/dealflow/model"
	"github.com/AnTengye/dealflow/workflow"
)

func TestMemoryStoreDealSaveAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	deal := &model.Deal{ID: "deal-1", Tenant: "tenant1", Title: "Acme", Stage: model.StageNewLead, CreatedAt: time.Now()}
	if err := store.CreateDeal(ctx, deal); err != nil {
		t.Fatalf("CreateDeal: %v", err)
	}

	got, err := store.GetDeal(ctx, "deal-1")
	if err != nil {
		t.Fatalf("GetDeal: %v", err)
	}
	if got.Title != "Acme" {
		t.Errorf("Expected title Acme, got %s", got.Title)
	}

	// Returned values are copies
	got.Title = "Changed"
	again, _ := store.GetDeal(ctx, "deal-1")
	if again.Title != "Acme" {
		t.Errorf("Expected stored deal to be unaffected, got %s", again.Title)
	}

	if _, err := store.GetDeal(ctx, "non-existent"); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.UpdateDeal(ctx, &model.Deal{ID: "non-existent"}); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on update, got %v", err)
	}
}

func TestMemoryStoreListDealsByTenant(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	store.CreateDeal(ctx, &model.Deal{ID: "1", Tenant: "tenant1", CreatedAt: now.Add(-2 * time.Hour)})
	store.CreateDeal(ctx, &model.Deal{ID: "2", Tenant: "tenant1", CreatedAt: now})
	store.CreateDeal(ctx, &model.Deal{ID: "3", Tenant: "tenant2", CreatedAt: now})

	deals, err := store.ListDeals(ctx, "tenant1")
	if err != nil {
		t.Fatalf("ListDeals: %v", err)
	}
	if len(deals) != 2 {
		t.Fatalf("Expected 2 deals for tenant1, got %d", len(deals))
	}
	if deals[0].ID != "2" {
		t.Errorf("Expected newest deal first, got %s", deals[0].ID)
	}

	deals, _ = store.ListDeals(ctx, "tenant3")
	if len(deals) != 0 {
		t.Errorf("Expected 0 deals for tenant3, got %d", len(deals))
	}
}

func TestMemoryStoreTxRollback(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.CreateDeal(ctx, &model.Deal{ID: "deal-1", Stage: model.StageNewLead})

	boom := errors.New("boom")
	err := store.Tx(ctx, func(tx Store) error {
		d, _ := tx.GetDeal(ctx, "deal-1")
		d.Stage = model.StageOnboarded
		if err := tx.UpdateDeal(ctx, d); err != nil {
			return err
		}
		if err := tx.CreateTask(ctx, &model.Task{ID: "task-1", DealID: "deal-1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	d, _ := store.GetDeal(ctx, "deal-1")
	if d.Stage != model.StageNewLead {
		t.Errorf("Expected stage rollback to NEW_LEAD, got %s", d.Stage)
	}
	if _, err := store.GetTask(ctx, "task-1"); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("Expected task to be rolled back, got %v", err)
	}
}

func TestMemoryStoreDeleteDocumentCascades(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.CreateDocument(ctx, &model.Document{ID: "doc-1", DealID: "deal-1"})
	store.CreateDocument(ctx, &model.Document{ID: "doc-2", DealID: "deal-1"})
	store.SaveSteps(ctx,
		model.WorkflowStep{ID: "s1", DocumentID: "doc-1", StepType: model.StepUpload},
		model.WorkflowStep{ID: "s2", DocumentID: "doc-2", StepType: model.StepUpload},
	)
	store.CreateSignature(ctx, &model.Signature{ID: "sig-1", DocumentID: "doc-1", VerificationToken: "tok"})

	if err := store.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	if _, err := store.GetDocument(ctx, "doc-1"); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("Expected document to be gone, got %v", err)
	}
	steps, _ := store.ListSteps(ctx, "doc-1")
	if len(steps) != 0 {
		t.Errorf("Expected steps to be deleted, got %d", len(steps))
	}
	if _, err := store.GetSignatureByToken(ctx, "tok"); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("Expected signature to be deleted, got %v", err)
	}
	steps, _ = store.ListSteps(ctx, "doc-2")
	if len(steps) != 1 {
		t.Errorf("Expected other document's steps to stay, got %d", len(steps))
	}
}

func TestMemoryStoreListStepsOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	store.SaveSteps(ctx,
		model.WorkflowStep{ID: "review", DocumentID: "doc", StepType: model.StepReview, CreatedAt: now.Add(time.Second)},
		model.WorkflowStep{ID: "extraction", DocumentID: "doc", StepType: model.StepExtraction, CreatedAt: now},
		model.WorkflowStep{ID: "upload", DocumentID: "doc", StepType: model.StepUpload, CreatedAt: now},
	)

	steps, err := store.ListSteps(ctx, "doc")
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	want := []string{"upload", "extraction", "review"}
	for i, id := range want {
		if steps[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, steps[i].ID)
		}
	}
}

func TestMemoryStoreDeleteDealRemovesTasks(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.CreateDeal(ctx, &model.Deal{ID: "deal-1"})
	store.CreateTask(ctx, &model.Task{ID: "t1", DealID: "deal-1"})
	store.CreateTask(ctx, &model.Task{ID: "t2", DealID: "deal-2"})

	if err := store.DeleteDeal(ctx, "deal-1"); err != nil {
		t.Fatalf("DeleteDeal: %v", err)
	}
	if tasks, _ := store.ListTasks(ctx, "deal-1"); len(tasks) != 0 {
		t.Errorf("Expected tasks of deleted deal to be gone, got %d", len(tasks))
	}
	if tasks, _ := store.ListTasks(ctx, "deal-2"); len(tasks) != 1 {
		t.Errorf("Expected unrelated task to stay, got %d", len(tasks))
	}
}
