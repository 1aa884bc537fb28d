package db

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/techagentng/civicpulse/models"
)

// ErrInvariantViolation is returned when a mutation would leave a report
// whose verifier set and verification count disagree.
var ErrInvariantViolation = errors.New("verified_by and verification_count disagree")

type CivicReportRepository interface {
	SaveReport(ctx context.Context, report *models.CivicReport) error
	GetReportByID(ctx context.Context, reportID string) (*models.CivicReport, error)
	// UpdateReport applies mutate to the freshest copy of the report and
	// commits it atomically. mutate may run more than once; an error from
	// mutate aborts without writing.
	UpdateReport(ctx context.Context, reportID string, mutate func(report *models.CivicReport) error) (*models.CivicReport, error)
	ListReports(ctx context.Context, filter models.ReportFilter) ([]models.CivicReport, error)
}

type civicReportRepo struct {
	store Store
}

func NewCivicReportRepo(store Store) CivicReportRepository {
	return &civicReportRepo{store: store}
}

func checkReportInvariants(report *models.CivicReport) error {
	if len(report.VerifiedBy) != report.VerificationCount {
		return errors.Wrapf(ErrInvariantViolation, "report %s: %d verifiers, count %d",
			report.ID, len(report.VerifiedBy), report.VerificationCount)
	}
	seen := make(map[string]struct{}, len(report.VerifiedBy))
	for _, id := range report.VerifiedBy {
		if _, dup := seen[id]; dup {
			return errors.Wrapf(ErrInvariantViolation, "report %s: verifier %s recorded twice", report.ID, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (r *civicReportRepo) SaveReport(ctx context.Context, report *models.CivicReport) error {
	if report.VerifiedBy == nil {
		report.VerifiedBy = []string{}
	}
	if err := checkReportInvariants(report); err != nil {
		return err
	}
	data, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	return r.store.Create(ctx, CollectionReports, report.ID, data)
}

func decodeReport(doc *Document) (*models.CivicReport, error) {
	var report models.CivicReport
	if err := json.Unmarshal(doc.Data, &report); err != nil {
		return nil, errors.Wrapf(err, "decode report %s", doc.Key)
	}
	if report.VerifiedBy == nil {
		report.VerifiedBy = []string{}
	}
	return &report, nil
}

func (r *civicReportRepo) GetReportByID(ctx context.Context, reportID string) (*models.CivicReport, error) {
	doc, err := r.store.Get(ctx, CollectionReports, reportID)
	if err != nil {
		return nil, err
	}
	return decodeReport(doc)
}

func (r *civicReportRepo) UpdateReport(ctx context.Context, reportID string, mutate func(report *models.CivicReport) error) (*models.CivicReport, error) {
	var updated *models.CivicReport
	err := mutateDocument(ctx, r.store, CollectionReports, reportID, func(doc *Document) ([]byte, error) {
		report, err := decodeReport(doc)
		if err != nil {
			return nil, err
		}
		if err := mutate(report); err != nil {
			return nil, err
		}
		if err := checkReportInvariants(report); err != nil {
			return nil, err
		}
		updated = report
		return json.Marshal(report)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *civicReportRepo) ListReports(ctx context.Context, filter models.ReportFilter) ([]models.CivicReport, error) {
	docs, err := r.store.List(ctx, CollectionReports)
	if err != nil {
		return nil, err
	}

	reports := make([]models.CivicReport, 0, len(docs))
	for _, doc := range docs {
		report, err := decodeReport(doc)
		if err != nil {
			return nil, errors.Wrap(err, "error listing reports")
		}
		if filter.Matches(report) {
			reports = append(reports, *report)
		}
	}

	// Newest first; id breaks ties so the order is stable.
	sort.Slice(reports, func(i, j int) bool {
		if !reports[i].CreatedAt.Equal(reports[j].CreatedAt) {
			return reports[i].CreatedAt.After(reports[j].CreatedAt)
		}
		return reports[i].ID < reports[j].ID
	})
	if filter.Limit > 0 && len(reports) > filter.Limit {
		reports = reports[:filter.Limit]
	}
	return reports, nil
}
