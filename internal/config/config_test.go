package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LEDGER_ID", "shop-42")
	t.Setenv("AUTOSYNC_SECONDS", "15")
	t.Setenv("OPENING_MAIN_CASH", "2500.50")
	t.Setenv("SUMMARY_TTL_SECONDS", "-4")

	cfg := Load()
	if cfg.Address() != ":9090" || cfg.LedgerID != "shop-42" || cfg.AutosyncSeconds != 15 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.OpeningMainCash.Equal(decimal.RequireFromString("2500.5")) {
		t.Fatalf("expected opening cash 2500.5, got %s", cfg.OpeningMainCash)
	}
	if cfg.SummaryTTLSeconds != 30 {
		t.Fatalf("expected invalid summary ttl to fall back to 30, got %d", cfg.SummaryTTLSeconds)
	}
}

func TestLoadRejectsNegativeOpeningCash(t *testing.T) {
	t.Setenv("OPENING_MAIN_CASH", "-10")
	if cfg := Load(); !cfg.OpeningMainCash.IsZero() {
		t.Fatalf("expected negative opening cash to be ignored, got %s", cfg.OpeningMainCash)
	}
}
