package webclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/adobe/aem-sidekick-sub001/internal/logging"
)

// Config selects and tunes a fetch backend.
type Config struct {
	// Backend names a registered backend; empty means "nethttp".
	Backend string

	// Timeout bounds a single nethttp fetch; zero means 30s.
	Timeout time.Duration

	// IdleAfter is how long the chromedp backend waits for the network to
	// go quiet before reading the DOM; zero means 2s.
	IdleAfter time.Duration

	// Headless controls whether the chromedp backend shows a browser window.
	Headless bool
}

// BackendConstructor constructs a WebClient given the config and logger.
type BackendConstructor func(cfg Config, logger logging.Logger) (WebClient, error)

var (
	mu       sync.RWMutex
	backends = map[string]BackendConstructor{}
)

// RegisterBackend registers a named backend constructor. Name is lower-cased
// internally. Calling RegisterBackend with the same name overwrites the
// previous constructor.
func RegisterBackend(name string, ctor BackendConstructor) {
	if name == "" || ctor == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	backends[strings.ToLower(name)] = ctor
}

// RegisterDefaultBackends registers the nethttp and chromedp backends.
// Call this early in main() to make backends available to New.
func RegisterDefaultBackends() {
	RegisterBackend("nethttp", func(cfg Config, logger logging.Logger) (WebClient, error) {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		return NewNetHTTPClient(logger, &http.Client{Timeout: timeout})
	})

	RegisterBackend("chromedp", func(cfg Config, logger logging.Logger) (WebClient, error) {
		var opts []chromedp.ExecAllocatorOption
		if !cfg.Headless {
			opts = append(opts, chromedp.Flag("headless", false))
		}
		return NewChromeDPClient(logger, cfg.IdleAfter, opts...)
	})
}

// New constructs the configured WebClient backend. It returns an error if the
// named backend has not been registered.
func New(cfg Config, logger logging.Logger) (WebClient, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "nethttp"
	}

	mu.RLock()
	ctor, ok := backends[backend]
	mu.RUnlock()
	if !ok || ctor == nil {
		return nil, fmt.Errorf("webclient backend %q not registered: available backends=%v", backend, ListBackends())
	}

	wc, err := ctor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to construct webclient backend %q: %w", backend, err)
	}
	if wc == nil {
		return nil, errors.New("webclient constructor returned nil")
	}
	return wc, nil
}

// ListBackends returns the list of registered backend names.
func ListBackends() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	return out
}
