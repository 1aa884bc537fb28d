package services

import (
	"context"
	"log"

	"github.com/pkg/errors"
	"github.com/techagentng/civicpulse/config"
	"github.com/techagentng/civicpulse/db"
	"github.com/techagentng/civicpulse/models"
)

// Point awards per lifecycle event.
const (
	ReportPoints    = 10
	VerifyPoints    = 5
	EscalatedPoints = 20
)

const defaultLeaderboardSize = 10

type PointsService interface {
	// AwardPoints adds to the user's ledger. A failed write is logged and
	// never aborts the caller.
	AwardPoints(ctx context.Context, userID string, amount int, action string)
	// GetUserPoints returns a zero record for users who have never earned points.
	GetUserPoints(ctx context.Context, userID string) (*models.UserPoints, error)
	Leaderboard(ctx context.Context, limit int) ([]models.UserPoints, error)
}

type pointsService struct {
	Config     *config.Config
	pointsRepo db.PointsRepository
}

func NewPointsService(pointsRepo db.PointsRepository, conf *config.Config) PointsService {
	return &pointsService{
		Config:     conf,
		pointsRepo: pointsRepo,
	}
}

func (s *pointsService) AwardPoints(ctx context.Context, userID string, amount int, action string) {
	record, err := s.pointsRepo.AddPoints(ctx, userID, amount, action)
	if err != nil {
		log.Printf("error awarding %d points to %s for %s: %v", amount, userID, action, err)
		return
	}
	log.Printf("awarded %d points to %s for %s, total %d", amount, userID, action, record.TotalPoints)
}

func (s *pointsService) GetUserPoints(ctx context.Context, userID string) (*models.UserPoints, error) {
	record, err := s.pointsRepo.GetUserPoints(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return &models.UserPoints{UserID: userID}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error fetching points for %s", userID)
	}
	return record, nil
}

func (s *pointsService) Leaderboard(ctx context.Context, limit int) ([]models.UserPoints, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	records, err := s.pointsRepo.ListUserPoints(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error listing points")
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
