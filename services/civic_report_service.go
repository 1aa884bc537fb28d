package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/leebenson/conform"
	"github.com/pkg/errors"
	"github.com/techagentng/civicpulse/config"
	"github.com/techagentng/civicpulse/db"
	"github.com/techagentng/civicpulse/models"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidFilter      = errors.New("invalid report filter")
	ErrReportNotFound     = errors.New("report not found")
	ErrEscalationNotFound = errors.New("escalation not found")
	ErrAlreadyVerified    = errors.New("already verified")
	ErrReportClosed       = errors.New("report is closed for verification")

	errMarkedInvalid = errors.New("marked invalid")
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200

	defaultPerceptionTimeout = 10 * time.Second
	defaultNarrativeTimeout  = 5 * time.Second
	notifyTimeout            = 30 * time.Second
)

// CivicReportService owns the report state machine. SubmitReport and
// VerifyReport always return a response; failures set Success to false.
type CivicReportService interface {
	SubmitReport(ctx context.Context, req *models.CreateCivicReportRequest) *models.CivicReportResponse
	VerifyReport(ctx context.Context, req *models.VerifyCivicReportRequest) *models.CivicReportResponse
	GetReport(ctx context.Context, reportID string) (*models.CivicReportView, error)
	ListReports(ctx context.Context, filter models.ReportFilter) ([]models.CivicReportView, error)
	GetEscalation(ctx context.Context, reportID string) (*models.EscalationRecord, error)
}

type civicReportService struct {
	Config         *config.Config
	reportRepo     db.CivicReportRepository
	escalationRepo db.EscalationRepository
	points         PointsService
	perception     Perception
	narrator       Narrator
	notifier       EscalationNotifier
	events         EventPublisher
	validate       *validator.Validate

	perceptionTimeout time.Duration
	narrativeTimeout  time.Duration

	now   func() time.Time
	newID func() string
}

// NewCivicReportService wires the lifecycle engine. notifier and events may be nil.
func NewCivicReportService(
	reportRepo db.CivicReportRepository,
	escalationRepo db.EscalationRepository,
	points PointsService,
	perception Perception,
	narrator Narrator,
	notifier EscalationNotifier,
	events EventPublisher,
	conf *config.Config,
) CivicReportService {
	s := &civicReportService{
		Config:            conf,
		reportRepo:        reportRepo,
		escalationRepo:    escalationRepo,
		points:            points,
		perception:        perception,
		narrator:          narrator,
		notifier:          notifier,
		events:            events,
		validate:          validator.New(),
		perceptionTimeout: defaultPerceptionTimeout,
		narrativeTimeout:  defaultNarrativeTimeout,
		now:               time.Now,
		newID:             uuid.NewString,
	}
	if conf != nil {
		if conf.PerceptionTimeout > 0 {
			s.perceptionTimeout = conf.PerceptionTimeout
		}
		if conf.NarrativeTimeout > 0 {
			s.narrativeTimeout = conf.NarrativeTimeout
		}
	}
	if s.events == nil {
		s.events = noopPublisher{}
	}
	return s
}

func failure(err error, message string) *models.CivicReportResponse {
	return &models.CivicReportResponse{Success: false, Message: message, Err: err}
}

func (s *civicReportService) checkRequest(req interface{}) error {
	if err := conform.Strings(req); err != nil {
		return errors.Wrap(ErrInvalidRequest, err.Error())
	}
	if err := s.validate.Struct(req); err != nil {
		return errors.Wrap(ErrInvalidRequest, err.Error())
	}
	return nil
}

func (s *civicReportService) SubmitReport(ctx context.Context, req *models.CreateCivicReportRequest) *models.CivicReportResponse {
	if req == nil {
		return failure(ErrInvalidRequest, fmt.Sprintf("Failed: %v", ErrInvalidRequest))
	}
	if err := s.checkRequest(req); err != nil {
		return failure(err, fmt.Sprintf("Failed: %v", err))
	}

	image, err := DecodeImagePayload(req.ImageBase64)
	if err != nil {
		return failure(err, fmt.Sprintf("Failed: %v", err))
	}
	image = NormalizeImage(image)

	lat, lng := *req.Latitude, *req.Longitude
	perception, locationName := s.gatherContext(ctx, image, lat, lng)
	category, priority := resolveClassification(perception)

	report := &models.CivicReport{
		ID:                s.newID(),
		UserID:            req.UserID,
		Latitude:          lat,
		Longitude:         lng,
		LocationName:      locationName,
		Description:       req.Description,
		Category:          category,
		Priority:          priority,
		Status:            models.StatusPending,
		VerificationCount: 0,
		VerifiedBy:        []string{},
		VisionConfidence:  perception.Confidence,
		VisionLabels:      perception.Labels,
		CreatedAt:         s.now().UTC(),
	}
	if report.VisionLabels == nil {
		report.VisionLabels = []string{}
	}
	if err := s.reportRepo.SaveReport(ctx, report); err != nil {
		log.Printf("error saving report for %s: %v", req.UserID, err)
		return failure(err, fmt.Sprintf("Failed: %v", err))
	}
	log.Printf("report %s created by %s: %s/%s", report.ID, report.UserID, category, priority)

	s.points.AwardPoints(context.WithoutCancel(ctx), report.UserID, ReportPoints, models.ActionReportCreated)
	s.events.Publish(ReportEvent{Type: EventReportCreated, Report: report.View(), At: s.now().UTC()})

	return &models.CivicReportResponse{
		Success:           true,
		ReportID:          report.ID,
		Category:          report.Category,
		Priority:          report.Priority,
		Status:            report.Status,
		VerificationCount: report.VerificationCount,
		Message:           fmt.Sprintf("Report created! %s - %s", report.Category, report.Priority),
		PointsEarned:      ReportPoints,
	}
}

// gatherContext calls the perception and narrative collaborators in parallel.
// Each call is bounded by its own timeout and replaced by a fallback on failure.
func (s *civicReportService) gatherContext(ctx context.Context, image []byte, lat, lng float64) (*models.PerceptionResult, string) {
	var (
		result       *models.PerceptionResult
		locationName string
		g            errgroup.Group
	)
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(ctx, s.perceptionTimeout)
		defer cancel()
		r, err := s.perception.Analyze(pctx, image)
		if err != nil || r == nil {
			log.Printf("perception unavailable, using fallback: %v", err)
			r = FallbackPerception()
		}
		result = r
		return nil
	})
	g.Go(func() error {
		nctx, cancel := context.WithTimeout(ctx, s.narrativeTimeout)
		defer cancel()
		name, err := s.narrator.NameLocation(nctx, lat, lng)
		if err != nil || name == "" {
			log.Printf("location narration unavailable, using coordinates: %v", err)
			name = FallbackLocationName(lat, lng)
		}
		locationName = name
		return nil
	})
	_ = g.Wait()
	return result, locationName
}

func (s *civicReportService) VerifyReport(ctx context.Context, req *models.VerifyCivicReportRequest) *models.CivicReportResponse {
	if req == nil {
		return failure(ErrInvalidRequest, fmt.Sprintf("Failed: %v", ErrInvalidRequest))
	}
	if err := s.checkRequest(req); err != nil {
		return failure(err, fmt.Sprintf("Failed: %v", err))
	}

	var (
		escalation *models.EscalationRecord
		snapshot   models.CivicReport
	)
	updated, err := s.reportRepo.UpdateReport(ctx, req.ReportID, func(r *models.CivicReport) error {
		// runs again after a version conflict
		escalation = nil
		snapshot = *r
		if r.HasVerifier(req.UserID) {
			return ErrAlreadyVerified
		}
		if r.Status == models.StatusRejected {
			return ErrReportClosed
		}
		if !req.IsValid {
			return errMarkedInvalid
		}

		r.VerifiedBy = append(r.VerifiedBy, req.UserID)
		r.VerificationCount++
		if r.Status == models.StatusPending && r.VerificationCount >= ConsensusThreshold {
			now := s.now().UTC()
			r.Status = models.StatusEscalated
			r.EscalatedAt = &now
			escalation = newEscalationRecord(r, now)
		}
		return nil
	})

	switch {
	case errors.Is(err, db.ErrNotFound):
		return failure(ErrReportNotFound, "Report not found")
	case errors.Is(err, ErrAlreadyVerified):
		return snapshotResponse(&snapshot, false, "Already verified", ErrAlreadyVerified)
	case errors.Is(err, ErrReportClosed):
		return snapshotResponse(&snapshot, false, "Report rejected", ErrReportClosed)
	case errors.Is(err, errMarkedInvalid):
		return snapshotResponse(&snapshot, true, "Marked invalid", nil)
	case err != nil:
		log.Printf("error verifying report %s by %s: %v", req.ReportID, req.UserID, err)
		return failure(err, fmt.Sprintf("Failed: %v", err))
	}

	// Committed. Side effects outlive the caller.
	sideCtx := context.WithoutCancel(ctx)
	message := fmt.Sprintf("Verified! %d/%d", updated.VerificationCount, ConsensusThreshold)

	repairing := false
	if escalation == nil && updated.Status == models.StatusEscalated {
		escalation = s.missingEscalation(sideCtx, updated)
		repairing = escalation != nil
	}

	if escalation != nil {
		err := s.escalationRepo.SaveEscalation(sideCtx, escalation)
		switch {
		case err == nil, errors.Is(err, db.ErrAlreadyExists) && !repairing:
			log.Printf("report %s escalated to %s, deadline %s", updated.ID, escalation.Department, escalation.Deadline.Format(time.RFC3339))
			s.points.AwardPoints(sideCtx, updated.UserID, EscalatedPoints, models.ActionReportEscalated)
			s.notifyEscalation(sideCtx, escalation)
			message += " - ESCALATED TO " + escalation.Department
		case repairing:
			// another verification wrote it first, or the write failed again
			if !errors.Is(err, db.ErrAlreadyExists) {
				log.Printf("report %s still has no escalation record: %v", updated.ID, err)
			}
			escalation = nil
			message += " - already escalated"
		default:
			log.Printf("report %s escalated but escalation record failed: %v", updated.ID, err)
			s.points.AwardPoints(sideCtx, req.UserID, VerifyPoints, models.ActionVerification)
			resp := failure(err, fmt.Sprintf("Failed: %v", err))
			resp.PointsEarned = VerifyPoints
			return resp
		}
	} else if updated.Status == models.StatusEscalated {
		message += " - already escalated"
	}

	s.points.AwardPoints(sideCtx, req.UserID, VerifyPoints, models.ActionVerification)

	at := s.now().UTC()
	s.events.Publish(ReportEvent{Type: EventReportVerified, Report: updated.View(), At: at})
	if escalation != nil {
		s.events.Publish(ReportEvent{Type: EventReportEscalated, Report: updated.View(), Escalation: escalation, At: at})
	}

	return &models.CivicReportResponse{
		Success:           true,
		ReportID:          updated.ID,
		Category:          updated.Category,
		Priority:          updated.Priority,
		Status:            updated.Status,
		VerificationCount: updated.VerificationCount,
		Message:           message,
		PointsEarned:      VerifyPoints,
	}
}

func newEscalationRecord(r *models.CivicReport, at time.Time) *models.EscalationRecord {
	department, deadline := RouteAndSchedule(r.Category, at)
	return &models.EscalationRecord{
		ReportID:    r.ID,
		Category:    r.Category,
		Priority:    r.Priority,
		Location:    r.LocationName,
		Coordinates: models.Coordinates{Lat: r.Latitude, Lng: r.Longitude},
		Description: r.Description,
		EscalatedAt: at,
		Department:  department,
		Deadline:    deadline,
	}
}

// missingEscalation rebuilds the record of an escalated report whose record
// write failed earlier. It returns nil when the record exists or cannot be
// checked.
func (s *civicReportService) missingEscalation(ctx context.Context, r *models.CivicReport) *models.EscalationRecord {
	_, err := s.escalationRepo.GetEscalationByReportID(ctx, r.ID)
	if !errors.Is(err, db.ErrNotFound) {
		if err != nil {
			log.Printf("error checking escalation record of report %s: %v", r.ID, err)
		}
		return nil
	}
	at := s.now().UTC()
	if r.EscalatedAt != nil {
		at = r.EscalatedAt.UTC()
	}
	log.Printf("report %s is escalated without a record, writing it again", r.ID)
	return newEscalationRecord(r, at)
}

func snapshotResponse(r *models.CivicReport, success bool, message string, err error) *models.CivicReportResponse {
	return &models.CivicReportResponse{
		Success:           success,
		ReportID:          r.ID,
		Category:          r.Category,
		Priority:          r.Priority,
		Status:            r.Status,
		VerificationCount: r.VerificationCount,
		Message:           message,
		Err:               err,
	}
}

func (s *civicReportService) notifyEscalation(ctx context.Context, record *models.EscalationRecord) {
	if s.notifier == nil {
		return
	}
	go func() {
		nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyEscalation(nctx, record); err != nil {
			log.Printf("error notifying %s about report %s: %v", record.Department, record.ReportID, err)
		}
	}()
}

func (s *civicReportService) GetReport(ctx context.Context, reportID string) (*models.CivicReportView, error) {
	report, err := s.reportRepo.GetReportByID(ctx, reportID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error fetching report %s", reportID)
	}
	view := report.View()
	return &view, nil
}

func (s *civicReportService) ListReports(ctx context.Context, filter models.ReportFilter) ([]models.CivicReportView, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, errors.Wrapf(ErrInvalidFilter, "unknown status %q", filter.Status)
	}
	if filter.Category != "" && !filter.Category.IsValid() {
		return nil, errors.Wrapf(ErrInvalidFilter, "unknown category %q", filter.Category)
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}

	reports, err := s.reportRepo.ListReports(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "error listing reports")
	}
	views := make([]models.CivicReportView, 0, len(reports))
	for i := range reports {
		views = append(views, reports[i].View())
	}
	return views, nil
}

func (s *civicReportService) GetEscalation(ctx context.Context, reportID string) (*models.EscalationRecord, error) {
	record, err := s.escalationRepo.GetEscalationByReportID(ctx, reportID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrEscalationNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error fetching escalation for %s", reportID)
	}
	return record, nil
}
