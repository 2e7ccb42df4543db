package workflow

// Effect is a side-effect request produced by a transition. Effects are
// executed by the caller only after the transition has been committed.
type Effect interface {
	effect()
}

// TaskRequest asks the task sink for a follow-up task on the deal
type TaskRequest struct {
	Title       string
	Description string
	DueInDays   int
}

// NotificationKind identifies the message a notification carries
type NotificationKind string

const (
	NotifyKYCRequest NotificationKind = "kyc_request"
)

// NotificationRequest asks the notification sink to contact the deal's contact
type NotificationRequest struct {
	Kind NotificationKind
}

func (TaskRequest) effect()         {}
func (NotificationRequest) effect() {}

// Tasks filters the task requests out of a list of effects
func Tasks(effects []Effect) []TaskRequest {
	var out []TaskRequest
	for _, e := range effects {
		if t, ok := e.(TaskRequest); ok {
			out = append(out, t)
		}
	}
	return out
}
