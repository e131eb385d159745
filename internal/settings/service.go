package settings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service reads and writes user preferences. Missing rows resolve to
// defaults; the row is created lazily on first update.
type Service struct {
	db *gorm.DB
}

// NewService creates a new settings service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Get returns the user's preferences, or defaults if none are stored
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Preferences, error) {
	var prefs Preferences
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&prefs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultPreferences(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return &prefs, nil
}

// Update applies the non-nil fields of req and persists the result
func (s *Service) Update(ctx context.Context, userID uuid.UUID, req *UpdateRequest) (*Preferences, error) {
	prefs, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Timezone != nil {
		prefs.Timezone = *req.Timezone
	}
	if req.Currency != nil {
		prefs.Currency = *req.Currency
	}
	if req.NotifyOnTransfer != nil {
		prefs.NotifyOnTransfer = *req.NotifyOnTransfer
	}
	if req.NotifyOnRetirement != nil {
		prefs.NotifyOnRetirement = *req.NotifyOnRetirement
	}

	if err := s.db.WithContext(ctx).Save(prefs).Error; err != nil {
		return nil, err
	}
	return prefs, nil
}
