package service

import (
	"context"
	"testing"

	"invoicely/backend/internal/domain"
	"invoicely/backend/internal/kv"
	"invoicely/backend/internal/kv/memory"
)

func TestSettingsFallBackToDefaults(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	settings := NewSettingsStore(store)
	settings.LoadSettings(ctx)
	if got := settings.Settings(); got != domain.DefaultCompanySettings() {
		t.Fatalf("missing record should load defaults, got %+v", got)
	}

	if err := store.Set(ctx, kv.KeyCompanySettings, "!!garbage"); err != nil {
		t.Fatalf("seed garbage: %v", err)
	}
	settings.LoadSettings(ctx)
	if got := settings.Settings(); got != domain.DefaultCompanySettings() {
		t.Fatalf("garbage record should load defaults")
	}
}

func TestUpdateAndResetSettings(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	settings := NewSettingsStore(store)

	custom := domain.CompanySettings{
		Name:        "Acme Studio",
		Address:     "Jl. Sudirman 10",
		Phone:       "+62 811 222",
		Email:       "billing@acme.example",
		BankName:    "Bank Central",
		BankAccount: "1234567890",
		BankIFSC:    "BCA0001234",
	}
	if err := settings.UpdateCompanySettings(ctx, custom); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// A fresh store instance over the same kv data sees the update.
	reloaded := NewSettingsStore(store)
	reloaded.LoadSettings(ctx)
	if got := reloaded.Settings(); got != custom {
		t.Fatalf("settings should round-trip through the store, got %+v", got)
	}

	if err := settings.ResetToDefaults(ctx); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if got := settings.Settings(); got != domain.DefaultCompanySettings() {
		t.Fatalf("reset should restore defaults")
	}
}
