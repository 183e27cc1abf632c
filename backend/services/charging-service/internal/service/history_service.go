package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/models"
)

const (
	defaultHistoryDays = 30
	maxHistoryDays     = 365
)

// HistoryService reads finished sessions.
type HistoryService struct {
	history HistoryStore
	now     func() time.Time
	logger  *zap.Logger
}

// NewHistoryService builds the service.
func NewHistoryService(history HistoryStore, logger *zap.Logger, now func() time.Time) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &HistoryService{history: history, now: now, logger: logger.Named("history")}
}

// ForUser returns sessions that ended in the last days days, newest first. Zero days
// means the default window.
func (s *HistoryService) ForUser(ctx context.Context, userID models.ID, days int) ([]models.ChargingHistory, error) {
	if days == 0 {
		days = defaultHistoryDays
	}
	if days < 0 || days > maxHistoryDays {
		return nil, newError(ErrValidation, "days must be between 1 and 365.")
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	entries, err := s.history.ListHistory(ctx, userID, since)
	if err != nil {
		s.logger.Error("list history", zap.Error(err))
		return nil, internal("list history", err)
	}
	if entries == nil {
		entries = []models.ChargingHistory{}
	}
	return entries, nil
}
