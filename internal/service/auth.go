package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"provisionstore/backend/internal/domain"
	"provisionstore/backend/internal/store"
)

// EnsureSettings returns the stored settings, writing defaults on first start.
func (s *Service) EnsureSettings(ctx context.Context, defaults domain.Settings) (domain.Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err == nil {
		return *settings, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Settings{}, err
	}

	if defaults.PIN == "" {
		defaults.PIN = domain.DefaultPIN
	}
	if defaults.LowStockThreshold < 0 {
		defaults.LowStockThreshold = domain.DefaultLowStockThreshold
	}
	defaults.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveSettings(ctx, defaults); err != nil {
		return domain.Settings{}, err
	}
	s.log.Info(ctx, "settings initialised with defaults")
	return defaults, nil
}

// LoadSettings reads the settings record for the current request.
func (s *Service) LoadSettings(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("settings: %w", err)
	}
	return *settings, nil
}

// VerifyPIN compares the submitted PIN with the one in settings.
func VerifyPIN(settings domain.Settings, pin string) error {
	if settings.PIN == "" || subtle.ConstantTimeCompare([]byte(settings.PIN), []byte(pin)) != 1 {
		return ErrInvalidPin
	}
	return nil
}

func (s *Service) Login(ctx context.Context, pin string) error {
	settings, err := s.LoadSettings(ctx)
	if err != nil {
		return err
	}
	return VerifyPIN(settings, strings.TrimSpace(pin))
}

func (s *Service) ChangePIN(ctx context.Context, req domain.ChangePINRequest) error {
	settings, err := s.LoadSettings(ctx)
	if err != nil {
		return err
	}
	if err := VerifyPIN(settings, strings.TrimSpace(req.OldPIN)); err != nil {
		return err
	}

	newPIN := strings.TrimSpace(req.NewPIN)
	if !isFourDigits(newPIN) {
		return fmt.Errorf("%w: new pin must be exactly 4 digits", store.ErrValidation)
	}

	settings.PIN = newPIN
	settings.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return err
	}
	s.logAudit(ctx, "pin_change", "settings", "settings", "pin updated")
	return nil
}

func (s *Service) UpdateSettings(ctx context.Context, settings domain.Settings, req domain.SettingsUpdateRequest) (domain.Settings, error) {
	if req.LowStockThreshold < 0 {
		return domain.Settings{}, fmt.Errorf("%w: low stock threshold must not be negative", store.ErrValidation)
	}

	previous := settings.LowStockThreshold
	settings.LowStockThreshold = req.LowStockThreshold
	settings.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return domain.Settings{}, err
	}
	s.logAudit(ctx, "settings_update", "settings", "settings", fmt.Sprintf("low_stock_threshold=%d->%d", previous, req.LowStockThreshold))
	return settings, nil
}

func isFourDigits(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
