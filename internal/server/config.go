package server

import (
	"github.com/adobe/aem-sidekick-sub001/internal/app"
	"github.com/adobe/aem-sidekick-sub001/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// AppConfig carries the shared runtime configuration; nil means
	// app.DefaultConfig().
	AppConfig *app.Config

	// Logger is optional; a stdout logger is used when nil.
	Logger logging.Logger
}
