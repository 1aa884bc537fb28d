package db

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/techagentng/civicpulse/models"
)

type PointsRepository interface {
	// AddPoints atomically adds amount to the user's total, creating the
	// record on first award, and overwrites the last action label.
	AddPoints(ctx context.Context, userID string, amount int, action string) (*models.UserPoints, error)
	GetUserPoints(ctx context.Context, userID string) (*models.UserPoints, error)
	ListUserPoints(ctx context.Context) ([]models.UserPoints, error)
}

type pointsRepo struct {
	store Store
}

func NewPointsRepo(store Store) PointsRepository {
	return &pointsRepo{store: store}
}

func decodeUserPoints(doc *Document) (*models.UserPoints, error) {
	var points models.UserPoints
	if err := json.Unmarshal(doc.Data, &points); err != nil {
		return nil, errors.Wrapf(err, "decode points for %s", doc.Key)
	}
	return &points, nil
}

func (r *pointsRepo) AddPoints(ctx context.Context, userID string, amount int, action string) (*models.UserPoints, error) {
	if amount < 0 {
		return nil, errors.Errorf("points are never decremented: got %d for %s", amount, userID)
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		now := time.Now()
		record := &models.UserPoints{
			UserID:      userID,
			TotalPoints: amount,
			LastAction:  action,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		data, err := json.Marshal(record)
		if err != nil {
			return nil, err
		}
		err = r.store.Create(ctx, CollectionUsers, userID, data)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, ErrAlreadyExists) && !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}

		var updated *models.UserPoints
		err = mutateDocument(ctx, r.store, CollectionUsers, userID, func(doc *Document) ([]byte, error) {
			current, err := decodeUserPoints(doc)
			if err != nil {
				return nil, err
			}
			current.TotalPoints += amount
			current.LastAction = action
			current.UpdatedAt = time.Now()
			updated = current
			return json.Marshal(current)
		})
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, errors.Wrapf(ErrVersionConflict, "award points to %s", userID)
}

func (r *pointsRepo) GetUserPoints(ctx context.Context, userID string) (*models.UserPoints, error) {
	doc, err := r.store.Get(ctx, CollectionUsers, userID)
	if err != nil {
		return nil, err
	}
	return decodeUserPoints(doc)
}

// ListUserPoints returns every ledger entry, highest total first.
func (r *pointsRepo) ListUserPoints(ctx context.Context) ([]models.UserPoints, error) {
	docs, err := r.store.List(ctx, CollectionUsers)
	if err != nil {
		return nil, err
	}
	all := make([]models.UserPoints, 0, len(docs))
	for _, doc := range docs {
		points, err := decodeUserPoints(doc)
		if err != nil {
			return nil, err
		}
		all = append(all, *points)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].TotalPoints != all[j].TotalPoints {
			return all[i].TotalPoints > all[j].TotalPoints
		}
		return all[i].UserID < all[j].UserID
	})
	return all, nil
}
