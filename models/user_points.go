package models

import "time"

// UserPoints is the per-user incentive ledger entry. TotalPoints never decreases.
type UserPoints struct {
	UserID      string    `json:"user_id"`
	TotalPoints int       `json:"total_points"`
	LastAction  string    `json:"last_action"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Ledger action labels.
const (
	ActionReportCreated   = "report_created"
	ActionVerification    = "verification"
	ActionReportEscalated = "report_escalated"
)
