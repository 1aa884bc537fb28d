package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techagentng/civicpulse/db"
	"github.com/techagentng/civicpulse/models"
)

type fakePerception struct {
	result *models.PerceptionResult
	err    error
	delay  time.Duration
}

func (f *fakePerception) Analyze(ctx context.Context, image []byte) (*models.PerceptionResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	return &r, nil
}

type fakeNarrator struct {
	name string
	err  error
}

func (f *fakeNarrator) NameLocation(ctx context.Context, lat, lng float64) (string, error) {
	return f.name, f.err
}

type recordingNotifier struct {
	mu      sync.Mutex
	records []models.EscalationRecord
}

func (n *recordingNotifier) NotifyEscalation(ctx context.Context, record *models.EscalationRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, *record)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.records)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ReportEvent
}

func (p *recordingPublisher) Publish(event ReportEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type failingEscalationRepo struct {
	db.EscalationRepository
	down bool
}

func (r *failingEscalationRepo) SaveEscalation(ctx context.Context, record *models.EscalationRecord) error {
	if r.down {
		return errors.New("disk full")
	}
	return r.EscalationRepository.SaveEscalation(ctx, record)
}

type engineFixture struct {
	svc        *civicReportService
	reports    db.CivicReportRepository
	escalation db.EscalationRepository
	points     PointsService
	notifier   *recordingNotifier
	events     *recordingPublisher
	now        time.Time
}

func newEngineFixture(t *testing.T, perception Perception, narrator Narrator) *engineFixture {
	t.Helper()
	store := db.NewMemoryStore()
	f := &engineFixture{
		reports:    db.NewCivicReportRepo(store),
		escalation: db.NewEscalationRepo(store),
		points:     NewPointsService(db.NewPointsRepo(store), nil),
		notifier:   &recordingNotifier{},
		events:     &recordingPublisher{},
		now:        time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	svc := NewCivicReportService(f.reports, f.escalation, f.points, perception, narrator, f.notifier, f.events, nil)
	f.svc = svc.(*civicReportService)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func waterLeakPerception() *fakePerception {
	return &fakePerception{result: &models.PerceptionResult{
		Confidence: 0.92,
		Labels:     []string{"water", "pipe"},
		Features:   []string{"water", "leak", "pipe"},
	}}
}

func imagePayload() string {
	return base64.StdEncoding.EncodeToString([]byte("not really a jpeg"))
}

func (f *engineFixture) submit(t *testing.T, userID string) *models.CivicReportResponse {
	t.Helper()
	resp := f.svc.SubmitReport(context.Background(), &models.CreateCivicReportRequest{
		UserID:      userID,
		Latitude:    coordinate(12.9716),
		Longitude:   coordinate(77.5946),
		Description: "  pipe burst near the bus stop ",
		ImageBase64: imagePayload(),
	})
	require.True(t, resp.Success, resp.Message)
	return resp
}

func coordinate(v float64) *float64 { return &v }

func (f *engineFixture) verify(reportID, userID string, valid bool) *models.CivicReportResponse {
	return f.svc.VerifyReport(context.Background(), &models.VerifyCivicReportRequest{
		ReportID: reportID,
		UserID:   userID,
		IsValid:  valid,
	})
}

func (f *engineFixture) totalPoints(t *testing.T, userID string) int {
	t.Helper()
	record, err := f.points.GetUserPoints(context.Background(), userID)
	require.NoError(t, err)
	return record.TotalPoints
}

func TestSubmitReport_CreatesPendingReport(t *testing.T) {
	f := newEngineFixture(t, waterLeakPerception(), &fakeNarrator{name: "Near MG Road, Bengaluru"})

	resp := f.submit(t, "reporter")
	assert.NotEmpty(t, resp.ReportID)
	assert.Equal(t, models.CategoryWaterLeak, resp.Category)
	assert.Equal(t, models.PriorityHigh, resp.Priority)
	assert.Equal(t, models.StatusPending, resp.Status)
	assert.Equal(t, 0, resp.VerificationCount)
	assert.Equal(t, ReportPoints, resp.PointsEarned)
	assert.Equal(t, "Report created! water-leak - high", resp.Message)

	stored, err := f.reports.GetReportByID(context.Background(), resp.ReportID)
	require.NoError(t, err)
	assert.Equal(t, "Near MG Road, Bengaluru", stored.LocationName)
	assert.Equal(t, "pipe burst near the bus stop", stored.Description)
	assert.Empty(t, stored.VerifiedBy)
	assert.Equal(t, 0.92, stored.VisionConfidence)
	assert.Equal(t, []string{"water", "pipe"}, stored.VisionLabels)
	assert.True(t, stored.CreatedAt.Equal(f.now))
	assert.Nil(t, stored.EscalatedAt)

	record, err := f.points.GetUserPoints(context.Background(), "reporter")
	require.NoError(t, err)
	assert.Equal(t, 10, record.TotalPoints)
	assert.Equal(t, models.ActionReportCreated, record.LastAction)
	assert.Equal(t, []string{EventReportCreated}, f.events.types())
}

func TestSubmitReport_Failures(t *testing.T) {
	tests := []struct {
		name    string
		req     *models.CreateCivicReportRequest
		wantErr error
	}{
		{
			name:    "bad base64",
			req:     &models.CreateCivicReportRequest{UserID: "u1", Latitude: coordinate(12.97), Longitude: coordinate(77.59), ImageBase64: "%%%not-base64%%%"},
			wantErr: ErrInvalidImage,
		},
		{
			name:    "missing image",
			req:     &models.CreateCivicReportRequest{UserID: "u1", Latitude: coordinate(12.97), Longitude: coordinate(77.59), ImageBase64: "   "},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "missing user",
			req:     &models.CreateCivicReportRequest{UserID: " ", Latitude: coordinate(12.97), Longitude: coordinate(77.59), ImageBase64: imagePayload()},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "missing latitude",
			req:     &models.CreateCivicReportRequest{UserID: "u1", Longitude: coordinate(77.59), ImageBase64: imagePayload()},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "missing longitude",
			req:     &models.CreateCivicReportRequest{UserID: "u1", Latitude: coordinate(12.97), ImageBase64: imagePayload()},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "latitude out of range",
			req:     &models.CreateCivicReportRequest{UserID: "u1", Latitude: coordinate(91), Longitude: coordinate(77.59), ImageBase64: imagePayload()},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "nil request",
			wantErr: ErrInvalidRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, waterLeakPerception(), &fakeNarrator{name: "x"})
			resp := f.svc.SubmitReport(context.Background(), tt.req)
			assert.False(t, resp.Success)
			assert.Zero(t, resp.PointsEarned)
			assert.ErrorIs(t, resp.Err, tt.wantErr)
			assert.NotEmpty(t, resp.Message)

			reports, err := f.reports.ListReports(context.Background(), models.ReportFilter{})
			require.NoError(t, err)
			assert.Empty(t, reports)
			assert.Zero(t, f.totalPoints(t, "u1"))
		})
	}
}

func TestSubmitReport_CollaboratorFallbacks(t *testing.T) {
	f := newEngineFixture(t,
		&fakePerception{err: errors.New("quota exceeded")},
		&fakeNarrator{err: errors.New("no results")},
	)

	resp := f.submit(t, "reporter")
	assert.Equal(t, models.CategoryOther, resp.Category)
	assert.Equal(t, models.PriorityMedium, resp.Priority)

	stored, err := f.reports.GetReportByID(context.Background(), resp.ReportID)
	require.NoError(t, err)
	assert.Equal(t, "Location (12.9716, 77.5946)", stored.LocationName)
	assert.Equal(t, 0.3, stored.VisionConfidence)
	assert.Empty(t, stored.VisionLabels)
}

func TestSubmitReport_PerceptionTimeoutFallsBack(t *testing.T) {
	slow := waterLeakPerception()
	slow.delay = time.Second
	f := newEngineFixture(t, slow, &fakeNarrator{name: "Near Lalbagh, Bengaluru"})
	f.svc.perceptionTimeout = 20 * time.Millisecond

	start := time.Now()
	resp := f.submit(t, "reporter")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, models.CategoryOther, resp.Category)
	assert.Equal(t, models.PriorityMedium, resp.Priority)
}

func TestSubmitReport_CollaboratorCategoryIsKept(t *testing.T) {
	garbage := models.CategoryGarbage
	f := newEngineFixture(t, &fakePerception{result: &models.PerceptionResult{
		Category:   &garbage,
		Confidence: 0.8,
		Features:   []string{"severe"},
	}}, &fakeNarrator{name: "x"})

	resp := f.submit(t, "reporter")
	assert.Equal(t, models.CategoryGarbage, resp.Category)
	assert.Equal(t, models.PriorityHigh, resp.Priority)
}

func TestVerifyReport_EscalatesOnThirdVerification(t *testing.T) {
	f := newEngineFixture(t, waterLeakPerception(), &fakeNarrator{name: "Near MG Road, Bengaluru"})
	reportID := f.submit(t, "reporter").ReportID

	resp := f.verify(reportID, "v1", true)
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "Verified! 1/3", resp.Message)
	assert.Equal(t, models.StatusPending, resp.Status)
	assert.Equal(t, VerifyPoints, resp.PointsEarned)

	resp = f.verify(reportID, "v2", true)
	require.True(t, resp.Success)
	assert.Equal(t, 2, resp.VerificationCount)
	assert.Equal(t, models.StatusPending, resp.Status)

	_, err := f.svc.GetEscalation(context.Background(), reportID)
	assert.ErrorIs(t, err, ErrEscalationNotFound)

	resp = f.verify(reportID, "v3", true)
	require.True(t, resp.Success)
	assert.Equal(t, 3, resp.VerificationCount)
	assert.Equal(t, models.StatusEscalated, resp.Status)
	assert.Equal(t, "Verified! 3/3 - ESCALATED TO BWSSB", resp.Message)

	record, err := f.svc.GetEscalation(context.Background(), reportID)
	require.NoError(t, err)
	assert.Equal(t, "BWSSB", record.Department)
	assert.Equal(t, "Near MG Road, Bengaluru", record.Location)
	assert.Equal(t, models.Coordinates{Lat: 12.9716, Lng: 77.5946}, record.Coordinates)
	assert.True(t, record.Deadline.Equal(f.now.Add(72*time.Hour)))

	view, err := f.svc.GetReport(context.Background(), reportID)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2", "v3"}, view.VerifiedBy)
	assert.Equal(t, f.now.Format(models.DisplayTimeLayout), view.EscalatedAt)

	assert.Equal(t, ReportPoints+EscalatedPoints, f.totalPoints(t, "reporter"))
	for _, v := range []string{"v1", "v2", "v3"} {
		assert.Equal(t, VerifyPoints, f.totalPoints(t, v))
	}
	assert.Eventually(t, func() bool { return f.notifier.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, f.events.types(), EventReportEscalated)
}

func TestVerifyReport_AcceptedAfterEscalation(t *testing.T) {
	f := newEngineFixture(t, waterLeakPerception(), &fakeNarrator{name: "x"})
	reportID := f.submit(t, "reporter").ReportID
	for _, v := range []string{"v1", "v2", "v3"} {
		require.True(t, f.verify(reportID, v, true).Success)
	}

	resp := f.verify(reportID, "v4", true)
	require.True(t, resp.Success)
	assert.Equal(t, 4, resp.VerificationCount)
	assert.Equal(t, models.StatusEscalated, resp.Status)
	assert.Equal(t, "Verified! 4/3 - already escalated", resp.Message)
	assert.Equal(t, VerifyPoints, f.totalPoints(t, "v4"))

	records, err := f.escalation.ListEscalations(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, ReportPoints+EscalatedPoints, f.totalPoints(t, "reporter"))
}

func TestVerifyReport_DuplicateVoteRejected(t *testing.T) {
	f := newEngineFixture(t, waterLeakPerception(), &fakeNarrator{name: "x"})
	reportID := f.submit(t, "reporter").ReportID
	require.True(t, f.verify(reportID, "v1", true).Success)

	resp := f.verify(reportID, "v1", true)
	assert.False(t, resp.Success)
	assert.Equal(t, "Already verified", resp.Message)
	assert.ErrorIs(t, resp.Err, ErrAlreadyVerified)
	assert.Zero(t, resp.PointsEarned)
	assert.Equal(t, 1, resp.VerificationCount)

	// an invalid vote is still a second vote
	resp = f.verify(reportID, "v1", false)
	assert.False(t, resp.Success)
	assert.ErrorIs(t, resp.Err, ErrAlreadyVerified)

	stored, err := f.reports.GetReportByID(context.Background(), reportID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.VerificationCount)
	assert.Equal(t, []string{"v1"}, stored.VerifiedBy)
	assert.Equal(t, VerifyPoints, f.totalPoints(t, "v1"))
}

func TestVerifyReport_InvalidVoteIsNoop(t *testing.T) {
	f := newEngineFixture(t, waterLeakPerception(), &fakeNarrator{name: "x"})
	reportID := f.submit(t, "reporter").ReportID

	resp := f.verify(reportID, "skeptic", false)
	assert.True(t, resp.Success)
	assert.Equal(t, "Marked invalid", resp.Message)
	assert.Zero(t, resp.PointsEarned)
	assert.Equal(t, models.StatusPending, resp.Status)

	stored, err := f.reports.GetReportByID(context.Background(), reportID)
	require.NoError(t, err)
	assert.Zero(t, stored.VerificationCount)
	assert.Empty(t, stored.VerifiedBy)
	assert.Zero(t, f.totalPoints(t, "skeptic"))

	// the dissenting user can still confirm later
	assert.True(t, f.verify(reportID, "skeptic", true).Success)
}

func TestVerifyReport_UnknownReport(t *testing.T) {
	f := newEngineFixture(t, waterLeakPerception(), &fakeNarrator{name: "x"})

	resp := f.verify("missing", "v1", true)
	assert.False(t, resp.Success)
	assert.Equal(t, "Report not found", resp.Message)
	assert.ErrorIs(t, resp.Err, ErrReportNotFound)
	assert.Zero(t, f.totalPoints(t, "v1"))
}

func TestVerifyReport_RejectedReportIsClosed(t *testing.T) {
	f := newEngineFixture(t, waterLeakPerception(), &fakeNarrator{name: "x"})
	require.NoError(t, f.reports.SaveReport(context.Background(), &models.CivicReport{
		ID:        "r-rejected",
		UserID:    "reporter",
		Category:  models.CategoryGarbage,
		Priority:  models.PriorityLow,
		Status:    models.StatusRejected,
		CreatedAt: f.now,
	}))

	resp := f.verify("r-rejected", "v1", true)
	assert.False(t, resp.Success)
	assert.ErrorIs(t, resp.Err, ErrReportClosed)
	assert.Equal(t, models.StatusRejected, resp.Status)
}

func TestVerifyReport_EscalationWriteFailure(t *testing.T) {
	f := newEngineFixture(t, waterLeakPerception(), &fakeNarrator{name: "x"})
	repo := &failingEscalationRepo{EscalationRepository: f.escalation, down: true}
	f.svc.escalationRepo = repo
	reportID := f.submit(t, "reporter").ReportID
	require.True(t, f.verify(reportID, "v1", true).Success)
	require.True(t, f.verify(reportID, "v2", true).Success)

	resp := f.verify(reportID, "v3", true)
	assert.False(t, resp.Success)
	assert.Equal(t, VerifyPoints, resp.PointsEarned)
	assert.Contains(t, resp.Message, "disk full")
	assert.Equal(t, ReportPoints, f.totalPoints(t, "reporter"))
	assert.Equal(t, VerifyPoints, f.totalPoints(t, "v3"))
	_, err := f.svc.GetEscalation(context.Background(), reportID)
	assert.ErrorIs(t, err, ErrEscalationNotFound)

	resp = f.verify(reportID, "v3", true)
	assert.ErrorIs(t, resp.Err, ErrAlreadyVerified)

	// still failing: the vote counts and the record stays missing
	resp = f.verify(reportID, "v4", true)
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "Verified! 4/3 - already escalated", resp.Message)
	assert.Equal(t, ReportPoints, f.totalPoints(t, "reporter"))

	repo.down = false
	resp = f.verify(reportID, "v5", true)
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "Verified! 5/3 - ESCALATED TO BWSSB", resp.Message)
	assert.Equal(t, VerifyPoints, resp.PointsEarned)

	record, err := f.svc.GetEscalation(context.Background(), reportID)
	require.NoError(t, err)
	assert.Equal(t, "BWSSB", record.Department)
	assert.True(t, record.EscalatedAt.Equal(f.now))
	assert.True(t, record.Deadline.Equal(f.now.Add(72*time.Hour)))
	records, err := f.escalation.ListEscalations(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, ReportPoints+EscalatedPoints, f.totalPoints(t, "reporter"))

	resp = f.verify(reportID, "v6", true)
	require.True(t, resp.Success)
	assert.Equal(t, "Verified! 6/3 - already escalated", resp.Message)
	assert.Equal(t, ReportPoints+EscalatedPoints, f.totalPoints(t, "reporter"))
	assert.Eventually(t, func() bool { return f.notifier.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestVerifyReport_ConcurrentDistinctVerifiers(t *testing.T) {
	f := newEngineFixture(t, waterLeakPerception(), &fakeNarrator{name: "x"})
	reportID := f.submit(t, "reporter").ReportID

	const verifiers = 10
	var wg sync.WaitGroup
	results := make([]*models.CivicReportResponse, verifiers)
	for i := 0; i < verifiers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.verify(reportID, fmt.Sprintf("v%d", i), true)
		}(i)
	}
	wg.Wait()

	escalated := 0
	for _, r := range results {
		assert.True(t, r.Success, r.Message)
		if r.Status == models.StatusEscalated && r.VerificationCount == ConsensusThreshold {
			escalated++
		}
	}
	assert.Equal(t, 1, escalated)

	stored, err := f.reports.GetReportByID(context.Background(), reportID)
	require.NoError(t, err)
	assert.Equal(t, verifiers, stored.VerificationCount)
	assert.Len(t, stored.VerifiedBy, verifiers)

	records, err := f.escalation.ListEscalations(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, ReportPoints+EscalatedPoints, f.totalPoints(t, "reporter"))
}

func TestVerifyReport_ConcurrentSameUserAdmittedOnce(t *testing.T) {
	f := newEngineFixture(t, waterLeakPerception(), &fakeNarrator{name: "x"})
	reportID := f.submit(t, "reporter").ReportID

	const attempts = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.verify(reportID, "same-user", true).Success {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	stored, err := f.reports.GetReportByID(context.Background(), reportID)
	require.NoError(t, err)
	assert.Equal(t, []string{"same-user"}, stored.VerifiedBy)
	assert.Equal(t, VerifyPoints, f.totalPoints(t, "same-user"))
}

func TestListReports(t *testing.T) {
	f := newEngineFixture(t, waterLeakPerception(), &fakeNarrator{name: "x"})
	first := f.submit(t, "a").ReportID
	f.now = f.now.Add(time.Minute)
	second := f.submit(t, "b").ReportID
	for _, v := range []string{"v1", "v2", "v3"} {
		require.True(t, f.verify(first, v, true).Success)
	}

	all, err := f.svc.ListReports(context.Background(), models.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].ID)
	assert.Equal(t, first, all[1].ID)

	escalated, err := f.svc.ListReports(context.Background(), models.ReportFilter{Status: models.StatusEscalated})
	require.NoError(t, err)
	require.Len(t, escalated, 1)
	assert.Equal(t, first, escalated[0].ID)

	limited, err := f.svc.ListReports(context.Background(), models.ReportFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = f.svc.ListReports(context.Background(), models.ReportFilter{Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidFilter)
	_, err = f.svc.ListReports(context.Background(), models.ReportFilter{Category: "volcano"})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestGetReport_NotFound(t *testing.T) {
	f := newEngineFixture(t, waterLeakPerception(), &fakeNarrator{name: "x"})
	_, err := f.svc.GetReport(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrReportNotFound)
}
