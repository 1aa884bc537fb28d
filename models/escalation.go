package models

import "time"

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// EscalationRecord is written once per report that reaches the consensus threshold.
type EscalationRecord struct {
	ReportID    string      `json:"report_id"`
	Category    Category    `json:"category"`
	Priority    Priority    `json:"priority"`
	Location    string      `json:"location"`
	Coordinates Coordinates `json:"coordinates"`
	Description string      `json:"description"`
	EscalatedAt time.Time   `json:"escalated_at"`
	Department  string      `json:"department"`
	Deadline    time.Time   `json:"deadline"`
}
