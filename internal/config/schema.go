package config

import "time"

// Config holds bookout configuration.
// Loaded from config.yaml (cwd or ~/.bookout) and BOOKOUT_* environment
// variables.
type Config struct {
	Portal  PortalCfg  `mapstructure:"portal" yaml:"portal"`
	Browser BrowserCfg `mapstructure:"browser" yaml:"browser"`
	Run     RunCfg     `mapstructure:"run" yaml:"run"`
}

// PortalCfg describes the target site: URLs, credentials, and the inventory
// export's reference column.
type PortalCfg struct {
	LoginURL     string `mapstructure:"login_url" yaml:"login_url"`
	InventoryURL string `mapstructure:"inventory_url" yaml:"inventory_url"`
	// Username and Password support ${ENV_VAR} syntax.
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	// ReferenceColumn is the CSV header of the reference-number column.
	ReferenceColumn string `mapstructure:"reference_column" yaml:"reference_column"`
	// PDFURLMarker identifies PDF-generation popups by URL substring.
	PDFURLMarker string `mapstructure:"pdf_url_marker" yaml:"pdf_url_marker"`
}

// BrowserCfg controls the shared browser session.
type BrowserCfg struct {
	Headless       bool `mapstructure:"headless" yaml:"headless"`
	BlockResources bool `mapstructure:"block_resources" yaml:"block_resources"`
	// NavigationTimeoutSeconds bounds page navigations.
	NavigationTimeoutSeconds int `mapstructure:"navigation_timeout_seconds" yaml:"navigation_timeout_seconds"`
	// ActionTimeoutSeconds bounds individual element waits and clicks.
	ActionTimeoutSeconds int `mapstructure:"action_timeout_seconds" yaml:"action_timeout_seconds"`
	// QuiescenceSeconds is the delay between closing a PDF popup and
	// releasing the popup gate. Values below 1.0 are raised to 1.0.
	QuiescenceSeconds float64 `mapstructure:"quiescence_seconds" yaml:"quiescence_seconds"`
	// Bin optionally points at a browser binary; empty lets the launcher
	// locate or download one.
	Bin string `mapstructure:"bin" yaml:"bin"`
}

// RunCfg controls a scraping run.
type RunCfg struct {
	DownloadRoot string `mapstructure:"download_root" yaml:"download_root"`
	// MaxDownloads caps references processed this run; 0 means all.
	MaxDownloads int `mapstructure:"max_downloads" yaml:"max_downloads"`
	// ConcurrentContexts is the number of worker tabs. The name is a
	// historical misnomer kept for compatibility: all tabs share one
	// browser context.
	ConcurrentContexts      int `mapstructure:"concurrent_contexts" yaml:"concurrent_contexts"`
	TaskTimeoutSeconds      int `mapstructure:"task_timeout_seconds" yaml:"task_timeout_seconds"`
	StuckThresholdSeconds   int `mapstructure:"stuck_threshold_seconds" yaml:"stuck_threshold_seconds"`
	WatchdogIntervalSeconds int `mapstructure:"watchdog_interval_seconds" yaml:"watchdog_interval_seconds"`
	MaxRetries              int `mapstructure:"max_retries" yaml:"max_retries"`
	// SuccessDelaySeconds is a politeness pause after each successful
	// download.
	SuccessDelaySeconds float64 `mapstructure:"success_delay_seconds" yaml:"success_delay_seconds"`
	// StuckRunThreshold aborts the run after this many consecutive
	// terminal failures; 0 disables the check.
	StuckRunThreshold int `mapstructure:"stuck_run_threshold" yaml:"stuck_run_threshold"`
	// Resume reuses the latest run directory for the day instead of
	// starting a fresh one.
	Resume bool `mapstructure:"resume" yaml:"resume"`
}

// TaskTimeout returns the per-task deadline.
func (c RunCfg) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// StuckThreshold returns the age past which an in-progress task is stuck.
func (c RunCfg) StuckThreshold() time.Duration {
	return time.Duration(c.StuckThresholdSeconds) * time.Second
}

// WatchdogInterval returns the watchdog tick period.
func (c RunCfg) WatchdogInterval() time.Duration {
	return time.Duration(c.WatchdogIntervalSeconds) * time.Second
}

// SuccessDelay returns the post-success politeness pause.
func (c RunCfg) SuccessDelay() time.Duration {
	return time.Duration(c.SuccessDelaySeconds * float64(time.Second))
}

// NavigationTimeout returns the navigation deadline.
func (c BrowserCfg) NavigationTimeout() time.Duration {
	return time.Duration(c.NavigationTimeoutSeconds) * time.Second
}

// ActionTimeout returns the element wait/click deadline.
func (c BrowserCfg) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutSeconds) * time.Second
}

// Quiescence returns the popup-gate settle delay, with the 1 s floor the
// shared-context popup event requires.
func (c BrowserCfg) Quiescence() time.Duration {
	q := time.Duration(c.QuiescenceSeconds * float64(time.Second))
	if q < time.Second {
		q = time.Second
	}
	return q
}
