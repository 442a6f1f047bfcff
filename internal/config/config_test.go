package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JURIX_TOKEN_SECRET", "segredo")
	t.Setenv("JURIX_INTERNAL_SECRET", "interno")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("Addr = %s", cfg.Server.Addr)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("TokenTTL = %v", cfg.Auth.TokenTTL)
	}
	if cfg.Session.PollInterval != 30*time.Second {
		t.Fatalf("PollInterval = %v", cfg.Session.PollInterval)
	}
	if cfg.Limits.MaxBodyBytes != 1<<20 {
		t.Fatalf("MaxBodyBytes = %d", cfg.Limits.MaxBodyBytes)
	}
	if cfg.Audit.Retention != 0 {
		t.Fatalf("Retention = %v, want disabled by default", cfg.Audit.Retention)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("JURIX_ADDR", ":9999")
	t.Setenv("JURIX_TOKEN_TTL", "15m")
	t.Setenv("JURIX_POLL_INTERVAL", "10s")
	t.Setenv("JURIX_RATE_PER_SEC", "5")
	t.Setenv("JURIX_RATE_BURST", "10")
	t.Setenv("JURIX_REDIS_ADDR", "localhost:6379")
	t.Setenv("JURIX_AUDIT_RETENTION", "2160h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("Addr = %s", cfg.Server.Addr)
	}
	if cfg.Auth.TokenTTL != 15*time.Minute {
		t.Fatalf("TokenTTL = %v", cfg.Auth.TokenTTL)
	}
	if cfg.Session.PollInterval != 10*time.Second {
		t.Fatalf("PollInterval = %v", cfg.Session.PollInterval)
	}
	if cfg.Limits.RatePerSec != 5 || cfg.Limits.RateBurst != 10 {
		t.Fatalf("limits = %v/%v", cfg.Limits.RatePerSec, cfg.Limits.RateBurst)
	}
	if cfg.Stores.RedisAddr != "localhost:6379" {
		t.Fatalf("RedisAddr = %s", cfg.Stores.RedisAddr)
	}
	if cfg.Audit.Retention != 2160*time.Hour {
		t.Fatalf("Retention = %v", cfg.Audit.Retention)
	}
}

func TestLoadMalformedValueFallsBack(t *testing.T) {
	setRequired(t)
	t.Setenv("JURIX_TOKEN_TTL", "not-a-duration")
	t.Setenv("JURIX_RATE_BURST", "many")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("TokenTTL = %v, want default on parse failure", cfg.Auth.TokenTTL)
	}
	if cfg.Limits.RateBurst != 100 {
		t.Fatalf("RateBurst = %d, want default on parse failure", cfg.Limits.RateBurst)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing token secret",
			env:  map[string]string{"JURIX_INTERNAL_SECRET": "interno"},
			want: "JURIX_TOKEN_SECRET",
		},
		{
			name: "missing internal secret",
			env:  map[string]string{"JURIX_TOKEN_SECRET": "segredo"},
			want: "JURIX_INTERNAL_SECRET",
		},
		{
			name: "poll interval too small",
			env: map[string]string{
				"JURIX_TOKEN_SECRET":    "segredo",
				"JURIX_INTERNAL_SECRET": "interno",
				"JURIX_POLL_INTERVAL":   "100ms",
			},
			want: "poll interval",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("got %v, want error mentioning %q", err, tc.want)
			}
		})
	}
}
