package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/adobe/aem-sidekick-sub001/internal/auth"
	"github.com/adobe/aem-sidekick-sub001/internal/logging"
	"github.com/adobe/aem-sidekick-sub001/internal/storage"
)

var (
	ErrProjectExists   = errors.New("project already registered")
	ErrProjectNotFound = errors.New("project not found")
)

const (
	indexKey  = "projects"
	recordKey = "project/"
)

// Registry manages project records in the synced partition of the config
// store. Records live under "project/<owner>/<repo>"; an index list of keys
// is kept alongside under "projects" and every mutation holds the registry
// mutex, so record and index cannot drift apart through interleaved writers.
type Registry struct {
	store  storage.Store
	env    EnvFetcher
	tokens *auth.TokenStore
	broker auth.Broker
	logger logging.Logger

	mu sync.Mutex
}

// NewRegistry wires a Registry. env, tokens and broker may be nil; Add then
// skips the environment probe and the login retry.
func NewRegistry(store storage.Store, env EnvFetcher, tokens *auth.TokenStore, broker auth.Broker, logger logging.Logger) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if logger == nil {
		return nil, errors.New("project: nil logger provided")
	}
	return &Registry{
		store:  store,
		env:    env,
		tokens: tokens,
		broker: broker,
		logger: logger.With(logging.Field{Key: "component", Value: "Registry"}),
	}, nil
}

// AddOptions describe a project to register. Either Owner+Repo or GitHubURL
// must be set; GitHubURL wins only when the explicit fields are empty.
type AddOptions struct {
	Owner     string `json:"owner,omitempty"`
	Repo      string `json:"repo,omitempty"`
	Ref       string `json:"ref,omitempty"`
	GitHubURL string `json:"githubUrl,omitempty"`
}

// Add registers a new project. Registering an existing (owner, repo) fails
// with ErrProjectExists. The admin API is probed for environment hostnames;
// a 401 triggers the login flow once before giving up on the probe.
func (r *Registry) Add(ctx context.Context, opts AddOptions) (*Project, error) {
	owner, repo, ref := opts.Owner, opts.Repo, opts.Ref
	if owner == "" || repo == "" {
		if opts.GitHubURL == "" {
			return nil, fmt.Errorf("owner and repo (or a repository url) are required")
		}
		var err error
		var urlRef string
		owner, repo, urlRef, err = ParseGitHubURL(opts.GitHubURL)
		if err != nil {
			return nil, err
		}
		if ref == "" {
			ref = urlRef
		}
	}
	if ref == "" {
		ref = DefaultRef
	}

	p := &Project{
		ID:    Key(owner, repo),
		Owner: owner,
		Repo:  repo,
		Ref:   ref,
	}

	r.mu.Lock()
	if _, ok, err := r.getLocked(ctx, p.Key()); err != nil {
		r.mu.Unlock()
		return nil, err
	} else if ok {
		r.mu.Unlock()
		return nil, ErrProjectExists
	}
	r.mu.Unlock()

	// The probe and the login flow it may trigger go out to the network;
	// holding the mutex here would stall every read for the whole wait.
	if env, err := r.probeEnv(ctx, owner, repo, ref); err != nil {
		// Probe failures are not fatal; the project is still usable
		// against the default preview/live hosts.
		r.logger.Warn("environment probe failed",
			logging.Field{Key: "project", Value: p.Key()},
			logging.Field{Key: "error", Value: err.Error()})
	} else if env != nil {
		p.Name = env.Name
		p.Host = env.Host
		p.PreviewHost = env.PreviewHost
		p.LiveHost = env.LiveHost
		p.Mountpoints = env.Mountpoints
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check: a concurrent Add may have registered the key while the
	// probe ran without the lock.
	if _, ok, err := r.getLocked(ctx, p.Key()); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrProjectExists
	}

	if err := r.putLocked(ctx, p); err != nil {
		return nil, err
	}
	r.logger.Info("project registered", logging.Field{Key: "project", Value: p.Key()})
	return p, nil
}

// probeEnv fetches environment config, running the login flow once when the
// admin API answers 401 and a broker is wired.
func (r *Registry) probeEnv(ctx context.Context, owner, repo, ref string) (*Env, error) {
	if r.env == nil {
		return nil, nil
	}

	var token string
	if r.tokens != nil {
		t, err := r.tokens.Get(ctx, owner)
		if err != nil {
			return nil, err
		}
		token = t
	}

	env, err := r.env.FetchEnv(ctx, owner, repo, ref, token)
	if !errors.Is(err, ErrUnauthorized) {
		return env, err
	}
	if r.broker == nil || token != "" {
		// Already authenticated (or cannot authenticate): give up.
		return nil, err
	}

	token, err = r.broker.Await(ctx, owner)
	if err != nil {
		return nil, err
	}
	if r.tokens != nil {
		if err := r.tokens.Set(ctx, owner, token); err != nil {
			return nil, err
		}
	}
	return r.env.FetchEnv(ctx, owner, repo, ref, token)
}

// Update merge-overwrites an existing record. Zero-valued fields of patch
// leave the stored value untouched; Mountpoints replace wholesale when set.
func (r *Registry) Update(ctx context.Context, owner, repo string, patch Project) (*Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok, err := r.getLocked(ctx, Key(owner, repo))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProjectNotFound
	}

	before, _ := json.Marshal(cur)

	if patch.Ref != "" {
		cur.Ref = patch.Ref
	}
	if patch.Name != "" {
		cur.Name = patch.Name
	}
	if patch.Host != "" {
		cur.Host = patch.Host
	}
	if patch.PreviewHost != "" {
		cur.PreviewHost = patch.PreviewHost
	}
	if patch.LiveHost != "" {
		cur.LiveHost = patch.LiveHost
	}
	if patch.Mountpoints != nil {
		cur.Mountpoints = patch.Mountpoints
	}

	if err := r.putLocked(ctx, cur); err != nil {
		return nil, err
	}

	after, _ := json.Marshal(cur)
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(before), string(after), false)
	r.logger.Debug("project updated",
		logging.Field{Key: "project", Value: cur.Key()},
		logging.Field{Key: "diff", Value: dmp.DiffPrettyText(diffs)})

	return cur, nil
}

// Delete removes the record and its index entry and revokes any cached auth
// token for the owner. It reports whether a matching entry existed.
func (r *Registry) Delete(ctx context.Context, owner, repo string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := Key(owner, repo)
	_, ok, err := r.getLocked(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := r.store.Remove(ctx, storage.AreaSync, recordKey+key); err != nil {
		return false, err
	}

	index, err := r.indexLocked(ctx)
	if err != nil {
		return false, err
	}
	out := index[:0]
	for _, k := range index {
		if k != key {
			out = append(out, k)
		}
	}
	if err := storage.SetJSON(ctx, r.store, storage.AreaSync, indexKey, out); err != nil {
		return false, err
	}

	if r.tokens != nil {
		if err := r.tokens.Revoke(ctx, owner); err != nil {
			r.logger.Warn("token revoke failed",
				logging.Field{Key: "owner", Value: owner},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}

	r.logger.Info("project removed", logging.Field{Key: "project", Value: key})
	return true, nil
}

// Toggle flips the disabled flag. It reports false when the project is not
// registered.
func (r *Registry) Toggle(ctx context.Context, owner, repo string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok, err := r.getLocked(ctx, Key(owner, repo))
	if err != nil || !ok {
		return false, err
	}
	cur.Disabled = !cur.Disabled
	if err := r.putLocked(ctx, cur); err != nil {
		return false, err
	}
	r.logger.Info("project toggled",
		logging.Field{Key: "project", Value: cur.Key()},
		logging.Field{Key: "disabled", Value: cur.Disabled})
	return true, nil
}

// Get returns the record for (owner, repo), if registered.
func (r *Registry) Get(ctx context.Context, owner, repo string) (*Project, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(ctx, Key(owner, repo))
}

// All resolves the index into full records, in index order. A dangling index
// key (no backing record) is skipped, not an error.
func (r *Registry) All(ctx context.Context) ([]Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, err := r.indexLocked(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Project, 0, len(index))
	for _, key := range index {
		p, ok, err := r.getLocked(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.logger.Warn("dangling index entry", logging.Field{Key: "project", Value: key})
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *Registry) getLocked(ctx context.Context, key string) (*Project, bool, error) {
	var p Project
	ok, err := storage.GetJSON(ctx, r.store, storage.AreaSync, recordKey+key, &p)
	if err != nil || !ok {
		return nil, false, err
	}
	if p.ID == "" {
		p.ID = key
	}
	return &p, true, nil
}

// putLocked writes the record and ensures its index entry, in that order.
func (r *Registry) putLocked(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = p.Key()
	}
	if err := storage.SetJSON(ctx, r.store, storage.AreaSync, recordKey+p.Key(), p); err != nil {
		return err
	}

	index, err := r.indexLocked(ctx)
	if err != nil {
		return err
	}
	for _, k := range index {
		if k == p.Key() {
			return nil
		}
	}
	return storage.SetJSON(ctx, r.store, storage.AreaSync, indexKey, append(index, p.Key()))
}

func (r *Registry) indexLocked(ctx context.Context) ([]string, error) {
	var index []string
	if _, err := storage.GetJSON(ctx, r.store, storage.AreaSync, indexKey, &index); err != nil {
		return nil, err
	}
	return index, nil
}
