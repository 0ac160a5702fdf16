package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "DEFAULT_STATION_ID", "EDIT_WINDOW_MINUTES",
		"DEVIATION_THRESHOLD_PERCENT", "DEVIATION_LOOKBACK_DAYS", "READING_STATUS_TTL_SECONDS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.StationID != "st-0001" {
		t.Fatalf("expected default station st-0001, got %s", cfg.StationID)
	}
	if cfg.EditWindowMinutes != 180 {
		t.Fatalf("expected default edit window 180, got %d", cfg.EditWindowMinutes)
	}
	if cfg.DeviationThresholdPercent != 30 {
		t.Fatalf("expected default threshold 30, got %v", cfg.DeviationThresholdPercent)
	}
	if cfg.DeviationLookbackDays != 14 {
		t.Fatalf("expected default lookback 14, got %d", cfg.DeviationLookbackDays)
	}
	if cfg.ReadingStatusTTLSeconds != 30 {
		t.Fatalf("expected default status TTL 30, got %d", cfg.ReadingStatusTTLSeconds)
	}
}

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("EDIT_WINDOW_MINUTES", "60")
	t.Setenv("DEVIATION_THRESHOLD_PERCENT", "12.5")
	t.Setenv("DEVIATION_LOOKBACK_DAYS", "14")

	cfg := Load()
	if cfg.EditWindowMinutes != 60 {
		t.Fatalf("expected edit window 60, got %d", cfg.EditWindowMinutes)
	}
	if cfg.DeviationThresholdPercent != 12.5 {
		t.Fatalf("expected threshold 12.5, got %v", cfg.DeviationThresholdPercent)
	}
	if cfg.DeviationLookbackDays != 14 {
		t.Fatalf("expected lookback 14, got %d", cfg.DeviationLookbackDays)
	}
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("EDIT_WINDOW_MINUTES", "not-a-number")
	t.Setenv("DEVIATION_THRESHOLD_PERCENT", "-5")

	cfg := Load()
	if cfg.EditWindowMinutes != 180 {
		t.Fatalf("expected fallback edit window 180, got %d", cfg.EditWindowMinutes)
	}
	if cfg.DeviationThresholdPercent != 30 {
		t.Fatalf("expected fallback threshold 30, got %v", cfg.DeviationThresholdPercent)
	}
}
