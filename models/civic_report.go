package models

import (
	"time"
)

// Category is the kind of civic issue a report describes.
type Category string

const (
	CategoryPothole       Category = "pothole"
	CategoryGarbage       Category = "garbage"
	CategoryStreetlight   Category = "streetlight"
	CategoryWaterLeak     Category = "water-leak"
	CategoryDrainage      Category = "drainage"
	CategoryTrafficSignal Category = "traffic-signal"
	CategoryEncroachment  Category = "encroachment"
	CategoryOther         Category = "other"
)

// Categories lists every category in classifier table order, Other last.
var Categories = []Category{
	CategoryPothole,
	CategoryGarbage,
	CategoryStreetlight,
	CategoryWaterLeak,
	CategoryDrainage,
	CategoryTrafficSignal,
	CategoryEncroachment,
	CategoryOther,
}

// IsValid reports whether c is one of the known categories.
func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ReportStatus is the lifecycle state of a report. Transitions only move forward.
type ReportStatus string

const (
	StatusPending   ReportStatus = "pending"
	StatusEscalated ReportStatus = "escalated"
	StatusRejected  ReportStatus = "rejected"
)

func (s ReportStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusEscalated, StatusRejected:
		return true
	}
	return false
}

// CivicReport is a citizen-submitted civic issue.
// len(VerifiedBy) always equals VerificationCount.
type CivicReport struct {
	ID                string       `json:"id"`
	UserID            string       `json:"user_id"`
	Latitude          float64      `json:"latitude"`
	Longitude         float64      `json:"longitude"`
	LocationName      string       `json:"location_name"`
	Description       string       `json:"description"`
	Category          Category     `json:"category"`
	Priority          Priority     `json:"priority"`
	Status            ReportStatus `json:"status"`
	VerificationCount int          `json:"verification_count"`
	VerifiedBy        []string     `json:"verified_by"`
	VisionConfidence  float64      `json:"vision_confidence"`
	VisionLabels      []string     `json:"vision_labels"`
	CreatedAt         time.Time    `json:"created_at"`
	EscalatedAt       *time.Time   `json:"escalated_at,omitempty"`
	ResolvedAt        *time.Time   `json:"resolved_at,omitempty"`
}

// HasVerifier reports whether userID already confirmed the report.
func (r *CivicReport) HasVerifier(userID string) bool {
	for _, id := range r.VerifiedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// CivicReportView is the read projection of a report with display timestamps.
type CivicReportView struct {
	ID                string       `json:"id"`
	UserID            string       `json:"user_id"`
	Latitude          float64      `json:"latitude"`
	Longitude         float64      `json:"longitude"`
	LocationName      string       `json:"location_name"`
	Description       string       `json:"description"`
	Category          Category     `json:"category"`
	Priority          Priority     `json:"priority"`
	Status            ReportStatus `json:"status"`
	VerificationCount int          `json:"verification_count"`
	VerifiedBy        []string     `json:"verified_by"`
	VisionConfidence  float64      `json:"vision_confidence"`
	VisionLabels      []string     `json:"vision_labels"`
	CreatedAt         string       `json:"created_at"`
	EscalatedAt       string       `json:"escalated_at,omitempty"`
	ResolvedAt        string       `json:"resolved_at,omitempty"`
}

// DisplayTimeLayout is the layout used for timestamps in read projections.
const DisplayTimeLayout = time.RFC3339

// View projects the report for display.
func (r *CivicReport) View() CivicReportView {
	v := CivicReportView{
		ID:                r.ID,
		UserID:            r.UserID,
		Latitude:          r.Latitude,
		Longitude:         r.Longitude,
		LocationName:      r.LocationName,
		Description:       r.Description,
		Category:          r.Category,
		Priority:          r.Priority,
		Status:            r.Status,
		VerificationCount: r.VerificationCount,
		VerifiedBy:        append([]string{}, r.VerifiedBy...),
		VisionConfidence:  r.VisionConfidence,
		VisionLabels:      append([]string{}, r.VisionLabels...),
		CreatedAt:         r.CreatedAt.Format(DisplayTimeLayout),
	}
	if r.EscalatedAt != nil {
		v.EscalatedAt = r.EscalatedAt.Format(DisplayTimeLayout)
	}
	if r.ResolvedAt != nil {
		v.ResolvedAt = r.ResolvedAt.Format(DisplayTimeLayout)
	}
	return v
}

// ReportFilter narrows ListReports. Zero values mean "any".
type ReportFilter struct {
	Status   ReportStatus
	Category Category
	Limit    int
}

// Matches reports whether r passes the status and category filters.
func (f ReportFilter) Matches(r *CivicReport) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	return true
}
