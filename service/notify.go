package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AnTengye/dealflow/config"
	"github.com/AnTengye/dealflow/model"
	"github.com/AnTengye/dealflow/pkg/logger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Notification is an outbound message to a deal's contact
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Tenant    string    `json:"tenant"`
	DealID    string    `json:"deal_id"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier delivers notifications. Callers treat it as fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NewNotifier returns a Kafka notifier when brokers are configured and a
// log notifier otherwise.
func NewNotifier(cfg *config.KafkaConfig) (Notifier, error) {
	if len(cfg.Brokers) == 0 {
		return LogNotifier{}, nil
	}
	return NewKafkaNotifier(cfg.Brokers, cfg.NotificationTopic)
}

// LogNotifier only writes notifications to the log
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n Notification) error {
	logger.Info(ctx, "notification", "kind", n.Kind, "deal_id", n.DealID, "to", n.To, "subject", n.Subject)
	return nil
}

// KafkaNotifier publishes notifications as JSON for the mail delivery worker
type KafkaNotifier struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka notifier requires at least one broker")
	}
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

func (p *KafkaNotifier) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(n.DealID),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaNotifier) Close() error {
	return p.writer.Close()
}

const kycMailSystemPrompt = "You write short, professional emails for an investment firm's investor onboarding team. You must output your response as a valid JSON object with exactly the keys \"subject\" and \"body\"."

// KYCMailer composes the KYC request email, asking the completer first and
// falling back to a fixed template.
type KYCMailer struct {
	completer Completer
}

func NewKYCMailer(completer Completer) *KYCMailer {
	return &KYCMailer{completer: completer}
}

type composedMail struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (m *KYCMailer) Compose(ctx context.Context, deal model.Deal, contact *model.Contact) (string, string) {
	name := "Investor"
	if contact != nil && contact.Name != "" {
		name = contact.Name
	}

	if m.completer != nil {
		prompt := fmt.Sprintf(
			"Write an email to %s asking them to provide KYC documentation (a passport or national ID, proof of address and source-of-funds declaration) for the investment opportunity %q. Keep it under 150 words.",
			name, deal.Title)
		text, err := m.completer.Complete(ctx, prompt, kycMailSystemPrompt)
		if err == nil {
			if mail, ok := parseComposedMail(text); ok {
				return mail.Subject, mail.Body
			}
			logger.Warn(ctx, "kyc email answer was not usable, using template")
		} else {
			logger.Debug(ctx, "kyc email generation unavailable, using template", "error", err)
		}
	}

	return kycTemplate(name, deal.Title)
}

func parseComposedMail(text string) (composedMail, bool) {
	var mail composedMail
	raw := ParseExtraction(text)
	if err := json.Unmarshal(raw, &mail); err != nil {
		return mail, false
	}
	if strings.TrimSpace(mail.Subject) == "" || strings.TrimSpace(mail.Body) == "" {
		return mail, false
	}
	return mail, true
}

func kycTemplate(name, dealTitle string) (string, string) {
	subject := fmt.Sprintf("KYC documents required: %s", dealTitle)
	body := fmt.Sprintf(`Dear %s,

To continue with %s we need to complete our Know Your Customer checks.
Please send us:

- a copy of your passport or national ID
- a proof of address issued within the last three months
- a short source-of-funds declaration

Kind regards,
Investor Relations`, name, dealTitle)
	return subject, body
}

func newNotification(kind string, deal model.Deal, contact *model.Contact, subject, body string, now time.Time) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Tenant:    deal.Tenant,
		DealID:    deal.ID,
		Subject:   subject,
		Body:      body,
		CreatedAt: now,
	}
	if contact != nil {
		n.To = contact.Email
	}
	return n
}
