package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func setEmailEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TRANSPORT", "email")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM", "alerts@example.com")
}

func TestLoadDefaults(t *testing.T) {
	setEmailEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if diff := cmp.Diff("./data/alerts.db", cfg.DatabasePath); diff != "" {
		t.Errorf("database path mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("0 0,12 * * *", cfg.DigestCron); diff != "" {
		t.Errorf("digest cron mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("UTC", cfg.DigestTimezone); diff != "" {
		t.Errorf("timezone mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(4, cfg.DispatchWorkers); diff != "" {
		t.Errorf("workers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(30*time.Second, cfg.SendTimeout); diff != "" {
		t.Errorf("send timeout mismatch (-want +got):\n%s", diff)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("expected UTC location, got %v", cfg.Location())
	}
}

func TestLoadOverrides(t *testing.T) {
	setEmailEnv(t)
	t.Setenv("DATABASE_PATH", "/tmp/test.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DIGEST_TZ", "Europe/Berlin")
	t.Setenv("DISPATCH_WORKERS", "8")
	t.Setenv("SEND_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabasePath != "/tmp/test.db" || cfg.LogLevel != "debug" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.DispatchWorkers != 8 || cfg.SendTimeout != 5*time.Second {
		t.Errorf("numeric overrides not applied: %+v", cfg)
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Errorf("expected Berlin location, got %v", cfg.Location())
	}
}

func TestLoadEmailRequiresSMTP(t *testing.T) {
	t.Setenv("TRANSPORT", "email")
	t.Setenv("SMTP_HOST", "")
	t.Setenv("SMTP_FROM", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for email transport without SMTP settings")
	}
}

func TestLoadTelegramRequiresToken(t *testing.T) {
	t.Setenv("TRANSPORT", "telegram")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for telegram transport without token")
	}
}

func TestLoadTelegramValid(t *testing.T) {
	t.Setenv("TRANSPORT", "telegram")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport != TransportTelegram {
		t.Errorf("expected telegram transport, got %q", cfg.Transport)
	}
}

func TestLoadUnknownTransport(t *testing.T) {
	t.Setenv("TRANSPORT", "carrier_pigeon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestLoadInvalidTimezone(t *testing.T) {
	setEmailEnv(t)
	t.Setenv("DIGEST_TZ", "Not/AZone")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}
