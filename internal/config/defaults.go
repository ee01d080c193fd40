package config

// DefaultConfig returns configuration with sensible defaults. Credentials
// default to ${ENV_VAR} references so they never land in a config file.
func DefaultConfig() *Config {
	return &Config{
		Portal: PortalCfg{
			LoginURL:        "https://extapps.jdpowervalues.com/ValuesOnline/Home/LicenseAgreement?ReturnUrl=/ValuesOnline/",
			InventoryURL:    "https://extapps.jdpowervalues.com/ValuesOnline/Inventory",
			Username:        "${BOOKOUT_USERNAME}",
			Password:        "${BOOKOUT_PASSWORD}",
			ReferenceColumn: "Reference Number",
			PDFURLMarker:    "GetPdfReport",
		},
		Browser: BrowserCfg{
			Headless:                 true,
			BlockResources:           true,
			NavigationTimeoutSeconds: 60,
			ActionTimeoutSeconds:     30,
			QuiescenceSeconds:        1.0,
		},
		Run: RunCfg{
			DownloadRoot:            "downloads",
			MaxDownloads:            0,
			ConcurrentContexts:      5,
			TaskTimeoutSeconds:      180,
			StuckThresholdSeconds:   300,
			WatchdogIntervalSeconds: 60,
			MaxRetries:              2,
			SuccessDelaySeconds:     1.0,
			StuckRunThreshold:       5,
			Resume:                  true,
		},
	}
}
