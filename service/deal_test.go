package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AnTengye/dealflow/model"
	"github.com/AnTengye/dealflow/workflow"
)

func TestDealLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deal := env.newDeal(t, "tenant1", "jane@example.com")

	decision, err := env.deals.EvaluateAutoProgress(ctx, "tenant1", deal.ID)
	if err != nil {
		t.Fatalf("EvaluateAutoProgress: %v", err)
	}
	if !decision.Advanced || decision.To != model.StageKYCInProgress {
		t.Fatalf("Expected advance to KYC_IN_PROGRESS, got %+v", decision)
	}
	if decision.Deal.KYCStatus != model.KYCPending {
		t.Errorf("Expected kyc_status PENDING, got %s", decision.Deal.KYCStatus)
	}
	tasks, _ := env.deals.ListTasks(ctx, "tenant1", deal.ID)
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(tasks))
	}
	if want := testNow.AddDate(0, 0, 2); !tasks[0].DueDate.Equal(want) {
		t.Errorf("Expected task due %s, got %s", want, tasks[0].DueDate)
	}
	if tasks[0].Assignee != "alice" {
		t.Errorf("Expected task assigned to deal owner alice, got %s", tasks[0].Assignee)
	}

	updated, err := env.deals.SendKYCRequest(ctx, "tenant1", deal.ID)
	if err != nil {
		t.Fatalf("SendKYCRequest: %v", err)
	}
	if updated.KYCStatus != model.KYCSubmitted {
		t.Errorf("Expected kyc_status SUBMITTED, got %s", updated.KYCStatus)
	}
	if env.notifier.count() != 1 {
		t.Fatalf("Expected one KYC email, got %d", env.notifier.count())
	}
	mail := env.notifier.sent[0]
	if mail.To != "jane@example.com" || !strings.Contains(mail.Body, "Jane Investor") {
		t.Errorf("Expected templated KYC email to Jane, got %+v", mail)
	}

	if _, err := env.deals.SetKYCStatus(ctx, "tenant1", deal.ID, "VERIFIED"); err != nil {
		t.Fatalf("SetKYCStatus: %v", err)
	}
	env.upload(t, "tenant1", deal.ID, model.FilePassport)

	decision, err = env.deals.EvaluateAutoProgress(ctx, "tenant1", deal.ID)
	if err != nil {
		t.Fatalf("EvaluateAutoProgress: %v", err)
	}
	if !decision.Advanced || decision.To != model.StageDueDiligence {
		t.Fatalf("Expected advance to DUE_DILIGENCE, got %+v", decision)
	}
	stored, _ := env.deals.GetDeal(ctx, "tenant1", deal.ID)
	if stored.Stage != model.StageDueDiligence {
		t.Errorf("Expected persisted stage DUE_DILIGENCE, got %s", stored.Stage)
	}
}

func TestEvaluateAutoProgressNoOpDoesNotWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deal := env.newDeal(t, "tenant1", "")

	decision, err := env.deals.EvaluateAutoProgress(ctx, "tenant1", deal.ID)
	if err != nil {
		t.Fatalf("EvaluateAutoProgress: %v", err)
	}
	if decision.Advanced {
		t.Fatal("Expected no advance without a contact email")
	}
	if decision.Reason != workflow.NoCriteriaReason {
		t.Errorf("Expected reason %q, got %q", workflow.NoCriteriaReason, decision.Reason)
	}
	tasks, _ := env.deals.ListTasks(ctx, "tenant1", deal.ID)
	if len(tasks) != 0 {
		t.Errorf("Expected no tasks, got %d", len(tasks))
	}
}

func TestArchiveDocumentsPreconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deal := env.newDeal(t, "tenant1", "jane@example.com")

	_, err := env.deals.ArchiveDocuments(ctx, "tenant1", deal.ID)
	if !errors.Is(err, workflow.ErrPreconditionFailed) || err.Error() != "KYC must be verified" {
		t.Fatalf("Expected KYC precondition, got %v", err)
	}

	env.deals.SetKYCStatus(ctx, "tenant1", deal.ID, "verified")
	_, err = env.deals.ArchiveDocuments(ctx, "tenant1", deal.ID)
	if !errors.Is(err, workflow.ErrPreconditionFailed) || err.Error() != "No documents to archive" {
		t.Fatalf("Expected documents precondition, got %v", err)
	}

	env.upload(t, "tenant1", deal.ID, model.FileID)
	archived, err := env.deals.ArchiveDocuments(ctx, "tenant1", deal.ID)
	if err != nil {
		t.Fatalf("ArchiveDocuments: %v", err)
	}
	if archived.Stage != model.StageDueDiligence {
		t.Errorf("Expected DUE_DILIGENCE, got %s", archived.Stage)
	}
	tasks, _ := env.deals.ListTasks(ctx, "tenant1", deal.ID)
	if len(tasks) != 1 || tasks[0].Title != "Complete Due Diligence review" {
		t.Errorf("Expected the due diligence task, got %+v", tasks)
	}
}

func TestTaskSinkFailureKeepsTransition(t *testing.T) {
	env := newTestEnv(t)
	env.build(failingTaskSink{})
	ctx := context.Background()
	deal := env.newDeal(t, "tenant1", "jane@example.com")

	decision, err := env.deals.EvaluateAutoProgress(ctx, "tenant1", deal.ID)
	if err != nil {
		t.Fatalf("Expected transition to succeed despite task failure, got %v", err)
	}
	if !decision.Advanced {
		t.Fatal("Expected advance")
	}
	stored, _ := env.deals.GetDeal(ctx, "tenant1", deal.ID)
	if stored.Stage != model.StageKYCInProgress {
		t.Errorf("Expected stage to stay committed, got %s", stored.Stage)
	}
}

func TestNotificationFailureKeepsTransition(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("broker down")
	ctx := context.Background()
	deal := env.newDeal(t, "tenant1", "jane@example.com")

	updated, err := env.deals.SendKYCRequest(ctx, "tenant1", deal.ID)
	if err != nil {
		t.Fatalf("Expected SendKYCRequest to succeed, got %v", err)
	}
	if updated.Stage != model.StageKYCInProgress {
		t.Errorf("Expected KYC_IN_PROGRESS, got %s", updated.Stage)
	}
	tasks, _ := env.deals.ListTasks(ctx, "tenant1", deal.ID)
	if len(tasks) != 1 {
		t.Errorf("Expected follow-up task despite notification failure, got %d", len(tasks))
	}
}

func TestDealTenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deal := env.newDeal(t, "tenant1", "jane@example.com")

	if _, err := env.deals.GetDeal(ctx, "tenant2", deal.ID); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("Expected ErrNotFound across tenants, got %v", err)
	}
	if _, err := env.deals.EvaluateAutoProgress(ctx, "tenant2", deal.ID); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("Expected ErrNotFound across tenants, got %v", err)
	}
	if _, err := env.deals.CreateDeal(ctx, "tenant2", "bob", DealInput{Title: "x", ContactID: deal.ContactID}); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("Expected contact of another tenant to be invisible, got %v", err)
	}
}

func TestCreateDealValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	contact, _ := env.deals.CreateContact(ctx, "tenant1", ContactInput{Name: "Jane"})

	tests := []struct {
		name  string
		input DealInput
	}{
		{"missing title", DealInput{ContactID: contact.ID}},
		{"bad priority", DealInput{Title: "Acme", ContactID: contact.ID, PipelinePriority: "whenever"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.deals.CreateDeal(ctx, "tenant1", "alice", tt.input); !errors.Is(err, workflow.ErrInvalidArgument) {
				t.Errorf("Expected ErrInvalidArgument, got %v", err)
			}
		})
	}

	deal, err := env.deals.CreateDeal(ctx, "tenant1", "", DealInput{Title: "Acme", ContactID: contact.ID, PipelinePriority: "high"})
	if err != nil {
		t.Fatalf("CreateDeal: %v", err)
	}
	if deal.PipelinePriority != model.PriorityHigh {
		t.Errorf("Expected HIGH priority, got %s", deal.PipelinePriority)
	}
	if deal.Owner != "desk" {
		t.Errorf("Expected default owner desk, got %s", deal.Owner)
	}
	if deal.Stage != model.StageNewLead || deal.KYCStatus != model.KYCPending {
		t.Errorf("Expected NEW_LEAD/PENDING, got %s/%s", deal.Stage, deal.KYCStatus)
	}
}

func TestOnboardUsesDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	contact, deal, err := env.deals.Onboard(ctx, OnboardingInput{Name: "Sam", Email: "sam@example.com", Company: "Sam Capital"})
	if err != nil {
		t.Fatalf("Onboard: %v", err)
	}
	if contact.Tenant != "public" || deal.Tenant != "public" {
		t.Errorf("Expected default tenant public, got %s/%s", contact.Tenant, deal.Tenant)
	}
	if deal.Owner != "desk" {
		t.Errorf("Expected default owner desk, got %s", deal.Owner)
	}
	if deal.Title != "Sam Capital Sam" {
		t.Errorf("Expected generated title, got %q", deal.Title)
	}

	if _, _, err := env.deals.Onboard(ctx, OnboardingInput{Name: "No Email"}); !errors.Is(err, workflow.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument without email, got %v", err)
	}
}

func TestSetStageAndKYCStatusValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deal := env.newDeal(t, "tenant1", "jane@example.com")

	if _, err := env.deals.SetStage(ctx, "tenant1", deal.ID, "WON"); !errors.Is(err, workflow.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
	if _, err := env.deals.SetKYCStatus(ctx, "tenant1", deal.ID, "MAYBE"); !errors.Is(err, workflow.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}

	updated, err := env.deals.SetStage(ctx, "tenant1", deal.ID, "ONBOARDED")
	if err != nil {
		t.Fatalf("SetStage: %v", err)
	}
	if updated.Stage != model.StageOnboarded {
		t.Errorf("Expected ONBOARDED, got %s", updated.Stage)
	}
	decision, _ := env.deals.EvaluateAutoProgress(ctx, "tenant1", deal.ID)
	if decision.Advanced {
		t.Error("Expected terminal stage to stay put")
	}
}

func TestCompleteTaskUnlocksContractSigning(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deal := env.newDeal(t, "tenant1", "jane@example.com")
	env.deals.SetKYCStatus(ctx, "tenant1", deal.ID, "VERIFIED")
	env.upload(t, "tenant1", deal.ID, model.FileID)
	env.deals.ArchiveDocuments(ctx, "tenant1", deal.ID)

	tasks, _ := env.deals.ListTasks(ctx, "tenant1", deal.ID)
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(tasks))
	}

	done, err := env.deals.CompleteTask(ctx, "tenant1", tasks[0].ID)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if done.Status != model.TaskCompleted || done.CompletedAt == nil {
		t.Errorf("Expected completed task, got %+v", done)
	}
	if _, err := env.deals.CompleteTask(ctx, "tenant2", tasks[0].ID); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("Expected ErrNotFound across tenants, got %v", err)
	}

	decision, err := env.deals.EvaluateAutoProgress(ctx, "tenant1", deal.ID)
	if err != nil {
		t.Fatalf("EvaluateAutoProgress: %v", err)
	}
	if decision.To != model.StageContractSigning {
		t.Errorf("Expected CONTRACT_SIGNING, got %s", decision.To)
	}
}

func TestDeleteDealCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deal := env.newDeal(t, "tenant1", "jane@example.com")
	doc := env.upload(t, "tenant1", deal.ID, model.FileAML)
	env.deals.EvaluateAutoProgress(ctx, "tenant1", deal.ID)

	if err := env.deals.DeleteDeal(ctx, "tenant2", deal.ID); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound across tenants, got %v", err)
	}
	if err := env.deals.DeleteDeal(ctx, "tenant1", deal.ID); err != nil {
		t.Fatalf("DeleteDeal: %v", err)
	}

	if _, err := env.store.GetDocument(ctx, doc.ID); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("Expected document to be deleted, got %v", err)
	}
	if steps, _ := env.store.ListSteps(ctx, doc.ID); len(steps) != 0 {
		t.Errorf("Expected steps to be deleted, got %d", len(steps))
	}
	if tasks, _ := env.store.ListTasks(ctx, deal.ID); len(tasks) != 0 {
		t.Errorf("Expected tasks to be deleted, got %d", len(tasks))
	}
	if env.blobs.Len() != 0 {
		t.Errorf("Expected blob to be deleted, got %d blobs", env.blobs.Len())
	}
}
