package app

import (
	"time"

	"github.com/adobe/aem-sidekick-sub001/internal/webclient"
)

// Config contains the runtime configuration shared by internal modules.
type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// StorageRoot is the base path where the config store database is
	// kept. Empty means in-memory only (nothing survives a restart).
	StorageRoot string

	// AdminURL is the remote admin API base (config.json probes).
	AdminURL string

	// DiscoveryURL is the remote discovery endpoint base.
	DiscoveryURL string

	// GraphURL is the Graph-style API used for SharePoint share links.
	GraphURL string

	// CacheTTL bounds how long discovered associations are trusted.
	CacheTTL time.Duration

	// DevOrigins lists local development origins whose pages advertise
	// a proxy URL meta tag.
	DevOrigins []string

	// LoginWait bounds the out-of-band login flow.
	LoginWait time.Duration

	// WebClientCfg selects and tunes the fetch backend.
	WebClientCfg webclient.Config
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:   ":8787",
		StorageRoot:  "~/.config/sidekick",
		AdminURL:     "https://admin.hlx.page",
		DiscoveryURL: "https://admin.hlx.page",
		GraphURL:     "",
		CacheTTL:     2 * time.Hour,
		DevOrigins:   []string{"http://localhost:3000"},
		LoginWait:    60 * time.Second,
		WebClientCfg: webclient.Config{
			Backend:  "nethttp",
			Headless: true,
		},
	}
}
