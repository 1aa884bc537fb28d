package models

// CreateCivicReportRequest is the payload for submitting a report. Both
// coordinates must be present; zero is a valid value.
type CreateCivicReportRequest struct {
	UserID      string   `json:"user_id" binding:"required" validate:"required" conform:"trim"`
	Latitude    *float64 `json:"latitude" binding:"required,min=-90,max=90" validate:"required,min=-90,max=90"`
	Longitude   *float64 `json:"longitude" binding:"required,min=-180,max=180" validate:"required,min=-180,max=180"`
	Description string   `json:"description" conform:"trim"`
	ImageBase64 string   `json:"image_base64" binding:"required" validate:"required" conform:"trim"`
}

// VerifyCivicReportRequest is the payload for confirming or disputing a report.
type VerifyCivicReportRequest struct {
	ReportID string `json:"report_id" validate:"required" conform:"trim"`
	UserID   string `json:"user_id" binding:"required" validate:"required" conform:"trim"`
	IsValid  bool   `json:"is_valid"`
}

// CivicReportResponse is the structured result of every lifecycle operation.
// Callers must inspect Success. Err keeps the cause of a failure for callers
// that need to classify it.
type CivicReportResponse struct {
	Success           bool         `json:"success"`
	ReportID          string       `json:"report_id"`
	Category          Category     `json:"category"`
	Priority          Priority     `json:"priority"`
	Status            ReportStatus `json:"status"`
	VerificationCount int          `json:"verification_count"`
	Message           string       `json:"message"`
	PointsEarned      int          `json:"points_earned"`
	Err               error        `json:"-"`
}
