package services

import (
	"context"
	"strings"

	"github.com/savagetongue/mess-connect0209/apperrors"
	"github.com/savagetongue/mess-connect0209/entity"
	"github.com/savagetongue/mess-connect0209/models"
)

// SettingsService serves the two singletons: the weekly menu and the mess
// settings. Both are created from their initial state on first read.
type SettingsService struct {
	stores *Stores
}

func NewSettingsService(stores *Stores) *SettingsService {
	return &SettingsService{stores: stores}
}

func (s *SettingsService) Menu(ctx context.Context) (*models.WeeklyMenu, error) {
	menu, err := s.stores.Menu.GetOrCreate(ctx, s.stores.Menu.Initial())
	if err != nil {
		return nil, err
	}
	return &menu, nil
}

// ReplaceMenu overwrites the whole week. It must list seven days.
func (s *SettingsService) ReplaceMenu(ctx context.Context, days []models.MenuDay) (*models.WeeklyMenu, error) {
	if len(days) != len(models.WeekDays) {
		return nil, apperrors.Validation("menu must contain exactly %d days", len(models.WeekDays))
	}
	for i, d := range days {
		if strings.TrimSpace(d.Day) == "" {
			return nil, apperrors.Validation("day %d has no name", i+1)
		}
	}
	menu := models.WeeklyMenu{ID: entity.SingletonID, Days: days}
	if err := s.stores.Menu.Save(ctx, menu); err != nil {
		return nil, err
	}
	return &menu, nil
}

func (s *SettingsService) Settings(ctx context.Context) (*models.Setting, error) {
	setting, err := s.stores.Settings.GetOrCreate(ctx, s.stores.Settings.Initial())
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// UpdateFee sets the monthly fee in minor units.
func (s *SettingsService) UpdateFee(ctx context.Context, fee int64) (*models.Setting, error) {
	if fee <= 0 {
		return nil, apperrors.Validation("fee must be a positive number")
	}
	return s.patch(ctx, map[string]interface{}{"monthlyFee": fee})
}

func (s *SettingsService) UpdateRules(ctx context.Context, rules string) (*models.Setting, error) {
	if len(strings.TrimSpace(rules)) < 10 {
		return nil, apperrors.Validation("rules must be at least 10 characters")
	}
	return s.patch(ctx, map[string]interface{}{"messRules": rules})
}

func (s *SettingsService) patch(ctx context.Context, fields map[string]interface{}) (*models.Setting, error) {
	if _, err := s.Settings(ctx); err != nil {
		return nil, err
	}
	setting, err := s.stores.Settings.Patch(ctx, entity.SingletonID, fields)
	if err != nil {
		return nil, err
	}
	return &setting, nil
}
