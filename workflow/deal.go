// Package workflow holds the deal lifecycle and document workflow state
// machines. Every transition is a pure function: it takes the current state,
// returns the next state plus the side effects to run after commit, and never
// touches persistence or collaborators itself.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/AnTengye/dealflow/model"
)

// NoCriteriaReason is reported when no guard of the current stage holds
const NoCriteriaReason = "does not meet criteria for next stage"

// ProgressInput is everything EvaluateAutoProgress reads
type ProgressInput struct {
	Deal           model.Deal
	ContactEmail   string
	Documents      []model.Document
	CompletedTasks []model.Task
}

// Decision is the outcome of EvaluateAutoProgress
type Decision struct {
	Advanced bool
	From     model.Stage
	To       model.Stage
	Reason   string
	Deal     model.Deal
	Effects  []Effect
}

type guard struct {
	from  model.Stage
	to    model.Stage
	check func(in ProgressInput) (bool, string)
}

var guards = []guard{
	{
		from: model.StageNewLead,
		to:   model.StageKYCInProgress,
		check: func(in ProgressInput) (bool, string) {
			return strings.TrimSpace(in.ContactEmail) != "", "contact has an email address"
		},
	},
	{
		from: model.StageKYCInProgress,
		to:   model.StageDueDiligence,
		check: func(in ProgressInput) (bool, string) {
			return in.Deal.KYCStatus == model.KYCVerified && len(in.Documents) > 0,
				"KYC verified and documents received"
		},
	},
	{
		from: model.StageDueDiligence,
		to:   model.StageContractSigning,
		check: func(in ProgressInput) (bool, string) {
			for _, t := range in.CompletedTasks {
				if t.Status == model.TaskCompleted && strings.Contains(t.Title, "Due Diligence") {
					return true, "due diligence task completed"
				}
			}
			return false, ""
		},
	},
	{
		from: model.StageContractSigning,
		to:   model.StageOnboarded,
		check: func(in ProgressInput) (bool, string) {
			for _, d := range in.Documents {
				if d.FileType == model.FileContract && d.ESignatureStatus == model.ESignatureSigned {
					return true, "contract signed"
				}
			}
			return false, ""
		},
	},
}

// EvaluateAutoProgress advances the deal by at most one stage. The first guard
// in table order whose source stage matches and whose condition holds wins.
func EvaluateAutoProgress(in ProgressInput, now time.Time) Decision {
	deal := in.Deal
	if deal.Stage.Terminal() {
		return Decision{From: deal.Stage, To: deal.Stage, Deal: deal, Reason: NoCriteriaReason}
	}

	for _, g := range guards {
		if g.from != deal.Stage {
			continue
		}
		ok, why := g.check(in)
		if !ok {
			continue
		}

		next := deal
		next.Stage = g.to
		if g.to == model.StageKYCInProgress {
			next.KYCStatus = model.KYCPending
		}
		next.UpdatedAt = now

		return Decision{
			Advanced: true,
			From:     deal.Stage,
			To:       g.to,
			Reason:   why,
			Deal:     next,
			Effects:  []Effect{FollowUpTask(g.to, deal.Title)},
		}
	}

	return Decision{From: deal.Stage, To: deal.Stage, Deal: deal, Reason: NoCriteriaReason}
}

// FollowUpTask is the task emitted when a deal enters stage
func FollowUpTask(stage model.Stage, dealTitle string) TaskRequest {
	switch stage {
	case model.StageKYCInProgress:
		return TaskRequest{
			Title:       "Collect KYC documentation",
			Description: fmt.Sprintf("Request identity and AML documents for %s.", dealTitle),
			DueInDays:   2,
		}
	case model.StageDueDiligence:
		return TaskRequest{
			Title:       "Complete Due Diligence review",
			Description: fmt.Sprintf("Review the archived documents for %s and record findings.", dealTitle),
			DueInDays:   14,
		}
	case model.StageContractSigning:
		return TaskRequest{
			Title:       "Prepare contract for signature",
			Description: fmt.Sprintf("Draft the subscription contract for %s and send it for e-signature.", dealTitle),
			DueInDays:   7,
		}
	case model.StageOnboarded:
		return TaskRequest{
			Title:       "Schedule onboarding call",
			Description: fmt.Sprintf("Welcome %s and walk through reporting and capital calls.", dealTitle),
			DueInDays:   3,
		}
	}
	return TaskRequest{
		Title:       fmt.Sprintf("Review deal in %s", stage),
		Description: dealTitle,
		DueInDays:   7,
	}
}

// SendKYCRequest forces the deal into KYC_IN_PROGRESS with a submitted KYC
// request, bypassing the guard table.
func SendKYCRequest(deal model.Deal, now time.Time) (model.Deal, []Effect) {
	deal.Stage = model.StageKYCInProgress
	deal.KYCStatus = model.KYCSubmitted
	deal.UpdatedAt = now

	return deal, []Effect{
		TaskRequest{
			Title:       "Follow up on KYC request",
			Description: fmt.Sprintf("Check that the KYC request sent for %s has been answered.", deal.Title),
			DueInDays:   7,
		},
		NotificationRequest{Kind: NotifyKYCRequest},
	}
}

// ArchiveDocuments forces the deal into DUE_DILIGENCE once KYC is verified
// and documents are on file.
func ArchiveDocuments(deal model.Deal, documentCount int, now time.Time) (model.Deal, []Effect, error) {
	if deal.KYCStatus != model.KYCVerified {
		return deal, nil, preconditionFailed("KYC must be verified")
	}
	if documentCount == 0 {
		return deal, nil, preconditionFailed("No documents to archive")
	}

	deal.Stage = model.StageDueDiligence
	deal.UpdatedAt = now
	return deal, []Effect{FollowUpTask(model.StageDueDiligence, deal.Title)}, nil
}

// SetStage is the operator override. It skips every guard.
func SetStage(deal model.Deal, target string, now time.Time) (model.Deal, error) {
	stage := model.Stage(strings.ToUpper(strings.TrimSpace(target)))
	if !stage.Valid() {
		return deal, invalidArgument("unknown stage %q", target)
	}
	deal.Stage = stage
	deal.UpdatedAt = now
	return deal, nil
}

// SetKYCStatus records the outcome of an external KYC review
func SetKYCStatus(deal model.Deal, status string, now time.Time) (model.Deal, error) {
	kyc := model.KYCStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !kyc.Valid() {
		return deal, invalidArgument("unknown kyc status %q", status)
	}
	deal.KYCStatus = kyc
	deal.UpdatedAt = now
	return deal, nil
}
