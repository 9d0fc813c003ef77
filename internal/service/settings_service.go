package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"picturecoupon/internal/pictures"
	"picturecoupon/internal/repository"
)

// SettingMaxProfilePictures is the admin setting overriding the configured
// history capacity.
const SettingMaxProfilePictures = "max_profile_pictures"

type settingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type SettingsService struct {
	store    settingsStore
	fallback int
	log      zerolog.Logger
}

func NewSettingsService(store settingsStore, fallback int, log zerolog.Logger) *SettingsService {
	return &SettingsService{
		store:    store,
		fallback: pictures.ParseMaxProfilePictures("", fallback),
		log:      log,
	}
}

// MaxProfilePictures returns the admin override when it is a positive
// integer and the configured capacity otherwise.
func (s *SettingsService) MaxProfilePictures(ctx context.Context) int {
	raw, err := s.store.Get(ctx, SettingMaxProfilePictures)
	if err != nil {
		if !errors.Is(err, repository.ErrSettingNotFound) {
			s.log.Warn().Err(err).Msg("read max profile pictures setting failed")
		}
		return s.fallback
	}
	return pictures.ParseMaxProfilePictures(raw, s.fallback)
}

// RawMaxProfilePictures returns the stored value as entered, or "".
func (s *SettingsService) RawMaxProfilePictures(ctx context.Context) (string, error) {
	raw, err := s.store.Get(ctx, SettingMaxProfilePictures)
	if errors.Is(err, repository.ErrSettingNotFound) {
		return "", nil
	}
	return raw, err
}

// SetMaxProfilePictures stores raw unvalidated, like a settings form would.
// Unparseable values fall back to the configured capacity on read.
func (s *SettingsService) SetMaxProfilePictures(ctx context.Context, raw string) error {
	return s.store.Set(ctx, SettingMaxProfilePictures, strings.TrimSpace(raw))
}

func (s *SettingsService) Fallback() int {
	return s.fallback
}
