package services

import (
	"time"

	"github.com/techagentng/civicpulse/models"
)

// Event types pushed to live subscribers.
const (
	EventReportCreated   = "report.created"
	EventReportVerified  = "report.verified"
	EventReportEscalated = "report.escalated"
)

type ReportEvent struct {
	Type       string                   `json:"type"`
	Report     models.CivicReportView   `json:"report"`
	Escalation *models.EscalationRecord `json:"escalation,omitempty"`
	At         time.Time                `json:"at"`
}

// EventPublisher receives lifecycle events after they are committed.
// Publish must not block the caller.
type EventPublisher interface {
	Publish(event ReportEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(ReportEvent) {}
