package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATA_DIR", "")
	t.Setenv("PRINTER_WIDTH", "")
	t.Setenv("SUPABASE_JWT_ROLE", "")

	cfg := Load()
	if cfg.Port != "8090" {
		t.Fatalf("expected default port 8090, got %q", cfg.Port)
	}
	if cfg.DataDir != "data" {
		t.Fatalf("expected default data dir, got %q", cfg.DataDir)
	}
	if cfg.PrinterWidth != 30 {
		t.Fatalf("expected default printer width 30, got %d", cfg.PrinterWidth)
	}
	if cfg.SupabaseJWTRole != "service_role" {
		t.Fatalf("expected default jwt role, got %q", cfg.SupabaseJWTRole)
	}
	if cfg.Address() != ":8090" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadRejectsBogusNumericValues(t *testing.T) {
	t.Setenv("PRINTER_WIDTH", "narrow")
	t.Setenv("SUPABASE_TOKEN_TTL_MINUTES", "-5")

	cfg := Load()
	if cfg.PrinterWidth != 30 {
		t.Fatalf("expected fallback width, got %d", cfg.PrinterWidth)
	}
	if cfg.SupabaseTokenTTL.Minutes() != 60 {
		t.Fatalf("expected fallback token ttl, got %v", cfg.SupabaseTokenTTL)
	}
}

func TestLoadTrimsSupabaseURL(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://example.supabase.co/")

	cfg := Load()
	if cfg.SupabaseURL != "https://example.supabase.co" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.SupabaseURL)
	}
}
