package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.API.BaseURL == "" {
		t.Error("base URL should have a default")
	}
	if cfg.WebSocket.ReconnectDelay != 5*time.Second {
		t.Errorf("reconnect delay = %v", cfg.WebSocket.ReconnectDelay)
	}
	if cfg.WebSocket.MaxReconnectAttempts != 5 {
		t.Errorf("max attempts = %d", cfg.WebSocket.MaxReconnectAttempts)
	}
	if !cfg.WebSocket.Enabled || !cfg.Polling.Enabled {
		t.Error("push and polling should default to enabled")
	}
	if cfg.Delivery.CommandDelay != 500*time.Millisecond {
		t.Errorf("command delay = %v", cfg.Delivery.CommandDelay)
	}
	if cfg.Configured() {
		t.Error("defaults must not count as configured")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Web.Port != Defaults().Web.Port {
		t.Error("missing file should yield defaults")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setstore.yaml")

	cfg := Defaults()
	cfg.APIKey = "secret-key"
	cfg.Server.IP = "mc.example.com"
	cfg.Server.Port = 25565
	cfg.Polling.Interval = 90 * time.Second
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.APIKey != "secret-key" {
		t.Errorf("api key = %q", loaded.APIKey)
	}
	if loaded.Server.IP != "mc.example.com" || loaded.Server.Port != 25565 {
		t.Errorf("server = %s:%d", loaded.Server.IP, loaded.Server.Port)
	}
	if loaded.Polling.Interval != 90*time.Second {
		t.Errorf("polling interval = %v", loaded.Polling.Interval)
	}
	if !loaded.Configured() {
		t.Error("loaded config with key should be configured")
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("api_key: abc\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "abc" {
		t.Errorf("api key = %q", cfg.APIKey)
	}
	if cfg.Heartbeat.Interval != Defaults().Heartbeat.Interval {
		t.Error("unset fields should keep their defaults")
	}
}

func TestMessageSubstitution(t *testing.T) {
	cfg := Defaults()
	cfg.Messages.Prefix = "[Store] "

	got := cfg.Message("You received {package}!", "{package}", "VIP Rank")
	if got != "[Store] You received VIP Rank!" {
		t.Errorf("got %q", got)
	}

	// Pairwise replacements apply in order; an odd trailing entry is ignored.
	got = cfg.Message("{a}{b}", "{a}", "1", "{b}", "2", "{c}")
	if got != "[Store] 12" {
		t.Errorf("got %q", got)
	}
}

func TestConfiguredRejectsPlaceholderKey(t *testing.T) {
	cfg := Defaults()
	cfg.APIKey = "your-api-key-here"
	if cfg.Configured() {
		t.Error("placeholder key must not count as configured")
	}
}
