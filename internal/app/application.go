package app

import (
	"errors"
	"fmt"

	"github.com/adobe/aem-sidekick-sub001/internal/auth"
	"github.com/adobe/aem-sidekick-sub001/internal/discovery"
	"github.com/adobe/aem-sidekick-sub001/internal/logging"
	"github.com/adobe/aem-sidekick-sub001/internal/match"
	"github.com/adobe/aem-sidekick-sub001/internal/project"
	"github.com/adobe/aem-sidekick-sub001/internal/storage"
	"github.com/adobe/aem-sidekick-sub001/internal/tabs"
	"github.com/adobe/aem-sidekick-sub001/internal/webclient"
)

// Application is the runtime state container. It owns the shared services
// (store, registry, matcher, controller) and is passed by reference into
// modules that need them, rather than relying on package-level singletons.
type Application struct {
	Config *Config
	Logger logging.Logger

	Store      storage.Store
	Client     webclient.WebClient
	Tokens     *auth.TokenStore
	Broker     *auth.HTTPBroker
	Registry   *project.Registry
	Cache      *discovery.Cache
	Matcher    *match.Matcher
	Controller *tabs.Controller
}

// NewApplication wires all services on top of the provided store. The store
// is owned by the caller; Close releases everything else.
func NewApplication(cfg *Config, store storage.Store, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if store == nil {
		return nil, errors.New("app: nil store provided")
	}
	if logger == nil {
		logger = logging.NewStdoutLogger("sidekick")
	}

	client, err := webclient.New(cfg.WebClientCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("construct webclient: %w", err)
	}

	tokens := auth.NewTokenStore(store)
	broker := auth.NewHTTPBroker(cfg.LoginWait, logger)
	admin := project.NewAdminClient(cfg.AdminURL, client, logger)

	registry, err := project.NewRegistry(store, admin, tokens, broker, logger)
	if err != nil {
		return nil, fmt.Errorf("construct registry: %w", err)
	}

	metadata := discovery.NewEditorMetadata(cfg.GraphURL, client, logger)
	discoverer := discovery.NewHTTPClient(cfg.DiscoveryURL, client, logger)
	cache, err := discovery.NewCache(store, discoverer, metadata, registry, cfg.CacheTTL, logger)
	if err != nil {
		return nil, fmt.Errorf("construct cache: %w", err)
	}

	proxy := tabs.NewMetaProxyResolver(cfg.DevOrigins, client, logger)
	matcher, err := match.NewMatcher(registry, cache, proxy, logger)
	if err != nil {
		return nil, fmt.Errorf("construct matcher: %w", err)
	}

	controller, err := tabs.NewController(matcher, registry, cache, logger)
	if err != nil {
		return nil, fmt.Errorf("construct controller: %w", err)
	}

	return &Application{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Client:     client,
		Tokens:     tokens,
		Broker:     broker,
		Registry:   registry,
		Cache:      cache,
		Matcher:    matcher,
		Controller: controller,
	}, nil
}

// Close releases the webclient. The store is closed by its owner.
func (a *Application) Close() error {
	if a == nil {
		return errors.New("application is nil")
	}
	if a.Client != nil {
		return a.Client.Close()
	}
	return nil
}
