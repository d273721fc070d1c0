package workflow

import (
	"testing"
	"time"
)

func TestSendBackoffDoubles(t *testing.T) {
	cfg := sendRetryConfig{maxAttempts: 3, baseBackoff: 2 * time.Second, maxBackoff: 5 * time.Minute}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
	}
	for _, tc := range cases {
		if got := sendBackoff(tc.attempt, cfg); got != tc.want {
			t.Fatalf("attempt %d: got %s want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestSendBackoffCapped(t *testing.T) {
	cfg := sendRetryConfig{maxAttempts: 10, baseBackoff: 2 * time.Second, maxBackoff: 10 * time.Second}
	if got := sendBackoff(8, cfg); got != 10*time.Second {
		t.Fatalf("expected cap at 10s, got %s", got)
	}
}

func TestGetSendRetryConfigDefaults(t *testing.T) {
	t.Setenv("SEND_MAX_ATTEMPTS", "")
	t.Setenv("SEND_BASE_BACKOFF_SECONDS", "")
	t.Setenv("SEND_MAX_BACKOFF_SECONDS", "")
	cfg := getSendRetryConfig()
	if cfg.maxAttempts != 3 || cfg.baseBackoff != 2*time.Second || cfg.maxBackoff != 5*time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestGetSendRetryConfigEnvOverrides(t *testing.T) {
	t.Setenv("SEND_MAX_ATTEMPTS", "5")
	t.Setenv("SEND_BASE_BACKOFF_SECONDS", "1")
	t.Setenv("SEND_MAX_BACKOFF_SECONDS", "30")
	cfg := getSendRetryConfig()
	if cfg.maxAttempts != 5 || cfg.baseBackoff != time.Second || cfg.maxBackoff != 30*time.Second {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}
