package service

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"invoicely/backend/internal/domain"
	"invoicely/backend/internal/kv"
)

// SettingsStore holds the single company settings record. Any load problem
// falls back to the built-in defaults.
type SettingsStore struct {
	notifier

	store kv.Store

	mu       sync.Mutex
	settings domain.CompanySettings
}

func NewSettingsStore(store kv.Store) *SettingsStore {
	return &SettingsStore{store: store, settings: domain.DefaultCompanySettings()}
}

func (s *SettingsStore) LoadSettings(ctx context.Context) {
	raw, err := s.store.Get(ctx, kv.KeyCompanySettings)

	s.mu.Lock()
	switch {
	case err == kv.ErrNotFound:
		s.settings = domain.DefaultCompanySettings()
	case err != nil:
		log.Printf("[settings] WARN: load settings, using defaults: %v", err)
		s.settings = domain.DefaultCompanySettings()
	default:
		var settings domain.CompanySettings
		if derr := json.Unmarshal([]byte(raw), &settings); derr != nil {
			log.Printf("[settings] WARN: decode settings, using defaults: %v", derr)
			s.settings = domain.DefaultCompanySettings()
			break
		}
		s.settings = settings
	}
	s.mu.Unlock()
	s.notify()
}

func (s *SettingsStore) Settings() domain.CompanySettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateCompanySettings replaces the whole record and persists it.
func (s *SettingsStore) UpdateCompanySettings(ctx context.Context, settings domain.CompanySettings) error {
	s.mu.Lock()
	s.settings = settings
	err := s.persistLocked(ctx)
	s.mu.Unlock()
	s.notify()
	return err
}

func (s *SettingsStore) ResetToDefaults(ctx context.Context) error {
	return s.UpdateCompanySettings(ctx, domain.DefaultCompanySettings())
}

func (s *SettingsStore) persistLocked(ctx context.Context) error {
	encoded, err := json.Marshal(s.settings)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, kv.KeyCompanySettings, string(encoded))
}
