// Command sidekickd starts the sidekick resolver service: project registry,
// URL matching, discovery cache and the tab lifecycle API that extension
// clients talk to over HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/adobe/aem-sidekick-sub001/internal/app"
	"github.com/adobe/aem-sidekick-sub001/internal/logging"
	"github.com/adobe/aem-sidekick-sub001/internal/server"
	"github.com/adobe/aem-sidekick-sub001/internal/webclient"
)

func main() {
	cfg := app.DefaultConfig()

	addr := flag.String("addr", cfg.ListenAddr, "HTTP listen address")
	storageRoot := flag.String("storage", cfg.StorageRoot, "Config store directory (empty = in-memory)")
	adminURL := flag.String("admin-url", cfg.AdminURL, "Admin API base URL")
	discoveryURL := flag.String("discovery-url", cfg.DiscoveryURL, "Discovery endpoint base URL")
	backend := flag.String("webclient", cfg.WebClientCfg.Backend, "Webclient backend: nethttp|chromedp")
	devOrigins := flag.String("dev-origins", strings.Join(cfg.DevOrigins, ","), "Comma-separated local dev origins")
	flag.Parse()

	cfg.ListenAddr = *addr
	cfg.StorageRoot = *storageRoot
	cfg.AdminURL = *adminURL
	cfg.DiscoveryURL = *discoveryURL
	cfg.WebClientCfg.Backend = *backend
	cfg.DevOrigins = nil
	for _, o := range strings.Split(*devOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.DevOrigins = append(cfg.DevOrigins, o)
		}
	}

	webclient.RegisterDefaultBackends()

	logger := logging.NewStdoutLogger("sidekickd")

	srv, err := server.NewServer(server.Config{
		ListenAddr: cfg.ListenAddr,
		AppConfig:  cfg,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("starting server: %v", err)
	}
	defer srv.Close()

	httpSrv := srv.HTTPServer()

	go func() {
		logger.Info("listening", logging.Field{Key: "addr", Value: cfg.ListenAddr})
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("shutdown", logging.Field{Key: "error", Value: err.Error()})
	}
}
