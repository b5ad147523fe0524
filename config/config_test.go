package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LivePollInterval != time.Minute {
		t.Errorf("LivePollInterval = %v, want 1m", cfg.LivePollInterval)
	}
	if cfg.TokenRevalidateInterval != 60*time.Minute {
		t.Errorf("TokenRevalidateInterval = %v, want 60m", cfg.TokenRevalidateInterval)
	}
	if cfg.EventSubURL != "wss://eventsub.wss.twitch.tv/ws" {
		t.Errorf("EventSubURL = %q", cfg.EventSubURL)
	}
	if cfg.EventSubMaxReconnects != 5 {
		t.Errorf("EventSubMaxReconnects = %d, want 5", cfg.EventSubMaxReconnects)
	}
	if !cfg.DesktopNotifications || !cfg.SilentNotifications {
		t.Errorf("notification defaults = (%v,%v), want (true,true)", cfg.DesktopNotifications, cfg.SilentNotifications)
	}
	if cfg.BadgeScope != "followed" {
		t.Errorf("BadgeScope = %q, want followed", cfg.BadgeScope)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LIVE_POLL_INTERVAL", "30s")
	t.Setenv("BADGE_SCOPE", "both")
	t.Setenv("DESKTOP_NOTIFICATIONS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LivePollInterval != 30*time.Second {
		t.Errorf("LivePollInterval = %v, want 30s", cfg.LivePollInterval)
	}
	if cfg.BadgeScope != "both" {
		t.Errorf("BadgeScope = %q, want both", cfg.BadgeScope)
	}
	if cfg.DesktopNotifications {
		t.Error("DesktopNotifications = true, want false")
	}
}

func TestLoadInvalidBadgeScope(t *testing.T) {
	t.Setenv("BADGE_SCOPE", "everything")
	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want invalid BADGE_SCOPE error")
	}
}
