package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("BOOKOUT_TEST_USER", "dealer@example.com")

	tests := []struct {
		in   string
		want string
	}{
		{"${BOOKOUT_TEST_USER}", "dealer@example.com"},
		{"plain-value", "plain-value"},
		{"${UNSET_VARIABLE_XYZ}", ""},
		{"", ""},
		{"prefix-${BOOKOUT_TEST_USER}", "prefix-dealer@example.com"},
	}

	for _, tt := range tests {
		if got := ResolveEnvVars(tt.in); got != tt.want {
			t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfig_ValidateRejectsMissingCredentials(t *testing.T) {
	cfg := DefaultConfig()
	// Default credentials point at unset env vars.
	t.Setenv("BOOKOUT_USERNAME", "")
	t.Setenv("BOOKOUT_PASSWORD", "")

	if err := cfg.Validate(); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestConfig_ValidateAcceptsResolvedCredentials(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("BOOKOUT_USERNAME", "dealer@example.com")
	t.Setenv("BOOKOUT_PASSWORD", "hunter2")

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	user, pass := cfg.Credentials()
	if user != "dealer@example.com" || pass != "hunter2" {
		t.Errorf("credentials not resolved: %q / %q", user, pass)
	}
}

func TestConfig_ValidateRejectsZeroWorkers(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("BOOKOUT_USERNAME", "u")
	t.Setenv("BOOKOUT_PASSWORD", "p")
	cfg.Run.ConcurrentContexts = 0

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero workers")
	}
}

func TestManager_WatchConfigReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("run:\n  max_downloads: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cm, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cm.Get().Run.MaxDownloads; got != 5 {
		t.Fatalf("initial max_downloads = %d, want 5", got)
	}

	reloaded := make(chan *Config, 16)
	cm.OnChange(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	cm.WatchConfig()

	if err := os.WriteFile(path, []byte("run:\n  max_downloads: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The watcher may fire more than once per save; wait for the final value.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if cfg.Run.MaxDownloads != 9 {
				continue
			}
			if got := cm.Get().Run.MaxDownloads; got != 9 {
				t.Errorf("Get() = %d after reload, want 9", got)
			}
			return
		case <-deadline:
			t.Fatal("config change never observed")
		}
	}
}

func TestBrowserCfg_QuiescenceFloor(t *testing.T) {
	cfg := BrowserCfg{QuiescenceSeconds: 0.2}
	if got := cfg.Quiescence(); got != time.Second {
		t.Errorf("expected 1s floor, got %v", got)
	}

	cfg.QuiescenceSeconds = 2.5
	if got := cfg.Quiescence(); got != 2500*time.Millisecond {
		t.Errorf("expected 2.5s, got %v", got)
	}
}

func TestRunCfg_DurationHelpers(t *testing.T) {
	cfg := DefaultConfig().Run

	if cfg.TaskTimeout() != 180*time.Second {
		t.Errorf("TaskTimeout = %v", cfg.TaskTimeout())
	}
	if cfg.StuckThreshold() != 300*time.Second {
		t.Errorf("StuckThreshold = %v", cfg.StuckThreshold())
	}
	if cfg.WatchdogInterval() != time.Minute {
		t.Errorf("WatchdogInterval = %v", cfg.WatchdogInterval())
	}
	if cfg.SuccessDelay() != time.Second {
		t.Errorf("SuccessDelay = %v", cfg.SuccessDelay())
	}
}
