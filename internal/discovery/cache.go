package discovery

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/adobe/aem-sidekick-sub001/internal/logging"
	"github.com/adobe/aem-sidekick-sub001/internal/project"
	"github.com/adobe/aem-sidekick-sub001/internal/storage"
)

const (
	cacheKey = "urlcache"

	// DefaultTTL bounds how long a discovered association is trusted.
	DefaultTTL = 2 * time.Hour

	// metadataTimeout bounds the editor metadata probe. The probe is
	// best-effort; discovery falls back to the raw tab URL on timeout.
	metadataTimeout = time.Second
)

// Entry is one cache row, keyed by the exact tab URL string. Case and
// trailing slashes are significant: no normalization happens here.
type Entry struct {
	URL     string   `json:"url"`
	Results []Result `json:"results"`

	// Expiry is epoch millis; zero means the entry never expires
	// (statically-known, pinned associations).
	Expiry int64 `json:"expiry,omitempty"`
}

// ProjectSource supplies the registered projects the SharePoint classifier
// consults for custom mountpoint domains.
type ProjectSource interface {
	All(ctx context.Context) ([]project.Project, error)
}

// Cache is the session-scoped discovery cache. Rows live in the session
// partition of the config store and are loaded and saved on every call.
// The mutex guards the stored rows and the in-flight set; network fetches
// run outside it so readers are never stuck behind a slow discovery call.
// The fetching set keeps two concurrent Sets for the same URL from both
// passing the freshness check and fetching twice.
type Cache struct {
	store    storage.Store
	client   Client
	metadata MetadataFetcher
	projects ProjectSource
	ttl      time.Duration
	now      func() time.Time
	logger   logging.Logger

	mu       sync.Mutex
	fetching map[string]bool
}

// NewCache wires a Cache. client, metadata and projects may be nil, which
// disables remote discovery (only pinned entries are served then).
func NewCache(store storage.Store, client Client, metadata MetadataFetcher, projects ProjectSource, ttl time.Duration, logger logging.Logger) (*Cache, error) {
	if store == nil {
		return nil, errors.New("discovery: nil store provided")
	}
	if logger == nil {
		return nil, errors.New("discovery: nil logger provided")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:    store,
		client:   client,
		metadata: metadata,
		projects: projects,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.With(logging.Field{Key: "component", Value: "URLCache"}),
		fetching: make(map[string]bool),
	}, nil
}

// SetClock overrides the cache's clock. Tests use this to advance time.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns cached results for the exact tab URL. An absent entry and an
// entry whose expiry lies in the past both yield nil; stale entries are not
// purged, a later Set rewrites them.
func (c *Cache) Get(ctx context.Context, tabURL string) ([]Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.URL != tabURL {
			continue
		}
		if e.Expiry != 0 && e.Expiry <= c.now().UnixMilli() {
			return nil, nil
		}
		return e.Results, nil
	}
	return nil, nil
}

// Set records discovery state for the exact tab URL.
//
// With a known project it pins the association unconditionally and without
// expiry (last write wins). Otherwise it runs remote discovery, but only for
// recognized SharePoint/Drive URLs, only when no fresh entry exists and only
// when no other fetch for the same URL is already in flight.
//
// The expiry is derived from the metadata probe, not from discovery itself:
// a failed probe caches whatever discovery returned indefinitely. That
// inversion is inherited behavior, kept until intent is confirmed.
func (c *Cache) Set(ctx context.Context, tabURL string, known *project.Project) error {
	if known != nil && known.Owner != "" && known.Repo != "" {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.splice(ctx, Entry{
			URL:     tabURL,
			Results: []Result{{Org: known.Owner, Site: known.Repo, OriginalSite: true}},
		})
	}

	u, err := url.Parse(tabURL)
	if err != nil {
		return nil
	}
	var projects []project.Project
	if c.projects != nil {
		if ps, err := c.projects.All(ctx); err == nil {
			projects = ps
		}
	}
	if !IsSharePointHost(u, projects) && !IsGoogleDriveHost(u) {
		return nil
	}

	c.mu.Lock()
	entries, err := c.load(ctx)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	for _, e := range entries {
		if e.URL == tabURL && (e.Expiry == 0 || e.Expiry > c.now().UnixMilli()) {
			// Fresh entry, at most one discovery per URL per TTL.
			c.mu.Unlock()
			return nil
		}
	}
	if c.client == nil || c.fetching[tabURL] {
		// Nothing to fetch with, or another Set already fetches this URL.
		c.mu.Unlock()
		return nil
	}
	c.fetching[tabURL] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.fetching, tabURL)
		c.mu.Unlock()
	}()

	// Network from here on, without the lock: readers and writers for other
	// URLs must not wait behind this fetch.
	resourceURL := tabURL
	metadataOK := false
	if c.metadata != nil {
		probeCtx, cancel := context.WithTimeout(ctx, metadataTimeout)
		res, err := c.metadata.Fetch(probeCtx, tabURL)
		cancel()
		if err != nil {
			c.logger.Debug("editor metadata probe failed",
				logging.Field{Key: "url", Value: tabURL},
				logging.Field{Key: "error", Value: err.Error()})
		} else {
			resourceURL = res
			metadataOK = true
		}
	}

	results, err := c.client.Discover(ctx, resourceURL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry{URL: tabURL, Results: results}
	if metadataOK {
		entry.Expiry = c.now().Add(c.ttl).UnixMilli()
	}
	c.logger.Info("discovered url",
		logging.Field{Key: "url", Value: tabURL},
		logging.Field{Key: "results", Value: len(results)},
		logging.Field{Key: "expiry", Value: entry.Expiry})
	return c.splice(ctx, entry)
}

// splice replaces the entry with the same URL in place, or appends.
func (c *Cache) splice(ctx context.Context, entry Entry) error {
	entries, err := c.load(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range entries {
		if entries[i].URL == entry.URL {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return storage.SetJSON(ctx, c.store, storage.AreaSession, cacheKey, entries)
}

func (c *Cache) load(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if _, err := storage.GetJSON(ctx, c.store, storage.AreaSession, cacheKey, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
