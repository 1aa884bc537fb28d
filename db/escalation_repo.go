package db

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/techagentng/civicpulse/models"
)

type EscalationRepository interface {
	// SaveEscalation stores the record keyed by report id; a second record
	// for the same report yields ErrAlreadyExists.
	SaveEscalation(ctx context.Context, record *models.EscalationRecord) error
	GetEscalationByReportID(ctx context.Context, reportID string) (*models.EscalationRecord, error)
	ListEscalations(ctx context.Context) ([]models.EscalationRecord, error)
}

type escalationRepo struct {
	store Store
}

func NewEscalationRepo(store Store) EscalationRepository {
	return &escalationRepo{store: store}
}

func (r *escalationRepo) SaveEscalation(ctx context.Context, record *models.EscalationRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "encode escalation")
	}
	return r.store.Create(ctx, CollectionEscalations, record.ReportID, data)
}

func decodeEscalation(doc *Document) (*models.EscalationRecord, error) {
	var record models.EscalationRecord
	if err := json.Unmarshal(doc.Data, &record); err != nil {
		return nil, errors.Wrapf(err, "decode escalation %s", doc.Key)
	}
	return &record, nil
}

func (r *escalationRepo) GetEscalationByReportID(ctx context.Context, reportID string) (*models.EscalationRecord, error) {
	doc, err := r.store.Get(ctx, CollectionEscalations, reportID)
	if err != nil {
		return nil, err
	}
	return decodeEscalation(doc)
}

// ListEscalations returns records ordered by deadline, soonest first.
func (r *escalationRepo) ListEscalations(ctx context.Context) ([]models.EscalationRecord, error) {
	docs, err := r.store.List(ctx, CollectionEscalations)
	if err != nil {
		return nil, err
	}
	records := make([]models.EscalationRecord, 0, len(docs))
	for _, doc := range docs {
		record, err := decodeEscalation(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Deadline.Before(records[j].Deadline) })
	return records, nil
}
