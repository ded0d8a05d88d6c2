package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"notification_reconciler/internal/domain/notification"
)

// SuppressionConfigKey holds the JSON object with the four suppression flags.
const SuppressionConfigKey = "suppression_config"

var ErrUnknownPreference = errors.New("unknown preference")

// PreferencesStore reads and writes SuppressionConfig through the KV interface.
type PreferencesStore struct {
	kv notification.KV
}

func NewPreferencesStore(kv notification.KV) *PreferencesStore {
	return &PreferencesStore{kv: kv}
}

// Load returns the stored config, or the all-permissive default when nothing is stored.
// Fields missing from the stored object take their default value.
func (s *PreferencesStore) Load(ctx context.Context) (notification.SuppressionConfig, error) {
	cfg := notification.DefaultSuppressionConfig()
	raw, ok, err := s.kv.Get(ctx, SuppressionConfigKey)
	if err != nil {
		return cfg, fmt.Errorf("failed to read suppression config: %w", err)
	}
	if !ok || raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return notification.DefaultSuppressionConfig(), fmt.Errorf("failed to decode suppression config: %w", err)
	}
	return cfg, nil
}

func (s *PreferencesStore) Save(ctx context.Context, cfg notification.SuppressionConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode suppression config: %w", err)
	}
	if err := s.kv.Set(ctx, SuppressionConfigKey, string(b)); err != nil {
		return fmt.Errorf("failed to save suppression config: %w", err)
	}
	return nil
}

// PreferencesService handles the business logic for changing notification preferences.
type PreferencesService struct {
	store *PreferencesStore
}

func NewPreferencesService(store *PreferencesStore) *PreferencesService {
	return &PreferencesService{store: store}
}

func (s *PreferencesService) Get(ctx context.Context) (notification.SuppressionConfig, error) {
	return s.store.Load(ctx)
}

// Set changes a single toggle and returns the resulting config.
func (s *PreferencesService) Set(ctx context.Context, key notification.PreferenceKey, value bool) (notification.SuppressionConfig, error) {
	cfg, err := s.store.Load(ctx)
	if err != nil {
		return cfg, err
	}
	next, ok := cfg.With(key, value)
	if !ok {
		return cfg, fmt.Errorf("%w: %s", ErrUnknownPreference, key)
	}
	if err := s.store.Save(ctx, next); err != nil {
		return cfg, err
	}
	return next, nil
}

// Toggle flips a single toggle and returns the resulting config.
func (s *PreferencesService) Toggle(ctx context.Context, key notification.PreferenceKey) (notification.SuppressionConfig, error) {
	cfg, err := s.store.Load(ctx)
	if err != nil {
		return cfg, err
	}
	current, ok := cfg.Value(key)
	if !ok {
		return cfg, fmt.Errorf("%w: %s", ErrUnknownPreference, key)
	}
	return s.Set(ctx, key, !current)
}
