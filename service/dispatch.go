package service

import (
	"context"
	"fmt"
	"time"

	"github.com/AnTengye/dealflow/model"
	"github.com/AnTengye/dealflow/pkg/logger"
	"github.com/AnTengye/dealflow/workflow"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TaskSink receives follow-up tasks
type TaskSink interface {
	CreateTask(ctx context.Context, t *model.Task) error
}

// Dispatcher executes the effects of a committed transition. Failures are
// logged and never reach the caller.
type Dispatcher struct {
	tasks    TaskSink
	notifier Notifier
	mailer   *KYCMailer
	now      func() time.Time
}

func NewDispatcher(tasks TaskSink, notifier Notifier, mailer *KYCMailer) *Dispatcher {
	return &Dispatcher{
		tasks:    tasks,
		notifier: notifier,
		mailer:   mailer,
		now:      time.Now,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, deal model.Deal, contact *model.Contact, effects []workflow.Effect) {
	if len(effects) == 0 {
		return
	}
	ctx = logger.WithDeal(context.WithoutCancel(ctx), deal.ID)

	var g errgroup.Group
	g.SetLimit(4)
	for _, effect := range effects {
		effect := effect
		g.Go(func() error {
			if err := d.run(ctx, deal, contact, effect); err != nil {
				logger.Warn(ctx, "side effect failed", "effect", fmt.Sprintf("%T", effect), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) run(ctx context.Context, deal model.Deal, contact *model.Contact, effect workflow.Effect) error {
	switch e := effect.(type) {
	case workflow.TaskRequest:
		return d.createTask(ctx, deal, e)
	case workflow.NotificationRequest:
		return d.notify(ctx, deal, contact, e)
	}
	return fmt.Errorf("unknown effect %T", effect)
}

func (d *Dispatcher) createTask(ctx context.Context, deal model.Deal, req workflow.TaskRequest) error {
	now := d.now()
	task := &model.Task{
		ID:          uuid.NewString(),
		Tenant:      deal.Tenant,
		DealID:      deal.ID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     now.AddDate(0, 0, req.DueInDays),
		Assignee:    deal.Owner,
		Status:      model.TaskPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.tasks.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create task %q: %w", req.Title, err)
	}
	logger.Info(ctx, "follow-up task created", "task_id", task.ID, "title", task.Title, "due_date", task.DueDate)
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, deal model.Deal, contact *model.Contact, req workflow.NotificationRequest) error {
	if contact == nil || contact.Email == "" {
		return fmt.Errorf("deal %s has no contact email", deal.ID)
	}

	var subject, body string
	switch req.Kind {
	case workflow.NotifyKYCRequest:
		subject, body = d.mailer.Compose(ctx, deal, contact)
	default:
		return fmt.Errorf("unknown notification kind %q", req.Kind)
	}

	n := newNotification(string(req.Kind), deal, contact, subject, body, d.now())
	if err := d.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("send %s notification: %w", req.Kind, err)
	}
	return nil
}
