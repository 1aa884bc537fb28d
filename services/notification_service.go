package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"firebase.google.com/go/messaging"
	"github.com/mailgun/mailgun-go/v4"
	"github.com/sethvargo/go-retry"
	"github.com/techagentng/civicpulse/models"
)

// EscalationNotifier tells the responsible department about a new escalation.
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, record *models.EscalationRecord) error
}

func escalationTitle(record *models.EscalationRecord) string {
	return fmt.Sprintf("Report escalated to %s", record.Department)
}

func escalationBody(record *models.EscalationRecord) string {
	return fmt.Sprintf("%s (%s) at %s. Resolve by %s.",
		record.Category, record.Priority, record.Location, record.Deadline.Format(time.RFC1123))
}

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMNotifier publishes escalations to a Firebase Cloud Messaging topic.
type FCMNotifier struct {
	client messageSender
	topic  string
}

func NewFCMNotifier(client *messaging.Client, topic string) *FCMNotifier {
	return &FCMNotifier{client: client, topic: topic}
}

func (n *FCMNotifier) NotifyEscalation(ctx context.Context, record *models.EscalationRecord) error {
	message := &messaging.Message{
		Topic: n.topic,
		Notification: &messaging.Notification{
			Title: escalationTitle(record),
			Body:  escalationBody(record),
		},
		Data: map[string]string{
			"report_id":  record.ReportID,
			"department": record.Department,
			"category":   string(record.Category),
			"priority":   string(record.Priority),
			"deadline":   record.Deadline.Format(time.RFC3339),
		},
	}
	id, err := n.client.Send(ctx, message)
	if err != nil {
		log.Println("Error sending message:", err)
		return err
	}
	log.Printf("escalation notice %s sent to topic %s", id, n.topic)
	return nil
}

type mailSender interface {
	Send(ctx context.Context, from, subject, text, to string) error
}

type mailgunSender struct {
	mg *mailgun.MailgunImpl
}

func (s *mailgunSender) Send(ctx context.Context, from, subject, text, to string) error {
	m := s.mg.NewMessage(from, subject, text, to)
	_, _, err := s.mg.Send(ctx, m)
	return err
}

// MailgunNotifier emails escalations to a department inbox.
type MailgunNotifier struct {
	sender mailSender
	from   string
	to     string
}

func NewMailgunNotifier(domain, apiKey, from, to string) *MailgunNotifier {
	return &MailgunNotifier{
		sender: &mailgunSender{mg: mailgun.NewMailgun(domain, apiKey)},
		from:   from,
		to:     to,
	}
}

func (n *MailgunNotifier) NotifyEscalation(ctx context.Context, record *models.EscalationRecord) error {
	text := fmt.Sprintf("%s\n\nReport: %s\nDescription: %s\nCoordinates: %.6f, %.6f",
		escalationBody(record), record.ReportID, record.Description,
		record.Coordinates.Lat, record.Coordinates.Lng)
	if err := n.sender.Send(ctx, n.from, escalationTitle(record), text, n.to); err != nil {
		return fmt.Errorf("error sending escalation email: %v", err)
	}
	return nil
}

// MultiNotifier fans a notice out to every configured channel.
type MultiNotifier []EscalationNotifier

func (m MultiNotifier) NotifyEscalation(ctx context.Context, record *models.EscalationRecord) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyEscalation(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RetryingNotifier retries a failed notice with Fibonacci backoff.
type RetryingNotifier struct {
	next       EscalationNotifier
	base       time.Duration
	maxRetries uint64
}

func NewRetryingNotifier(next EscalationNotifier, base time.Duration, maxRetries uint64) *RetryingNotifier {
	return &RetryingNotifier{next: next, base: base, maxRetries: maxRetries}
}

func (n *RetryingNotifier) NotifyEscalation(ctx context.Context, record *models.EscalationRecord) error {
	b := retry.WithMaxRetries(n.maxRetries, retry.NewFibonacci(n.base))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := n.next.NotifyEscalation(ctx, record); err != nil {
			log.Printf("escalation notice for %s failed, retrying: %v", record.ReportID, err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("escalation notice for %s gave up: %w", record.ReportID, err)
	}
	return nil
}
