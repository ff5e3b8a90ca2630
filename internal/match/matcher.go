package match

import (
	"context"
	"errors"
	"net/url"

	"github.com/adobe/aem-sidekick-sub001/internal/discovery"
	"github.com/adobe/aem-sidekick-sub001/internal/logging"
	"github.com/adobe/aem-sidekick-sub001/internal/project"
)

// ProjectSource supplies the registered projects, in index order.
type ProjectSource interface {
	All(ctx context.Context) ([]project.Project, error)
}

// CacheReader is the read side of the discovery cache.
type CacheReader interface {
	Get(ctx context.Context, tabURL string) ([]discovery.Result, error)
}

// ProxyResolver maps a local development URL to the real URL it proxies.
// Implementations return the input unchanged when there is nothing to do.
type ProxyResolver interface {
	Resolve(ctx context.Context, tabURL string) string
}

// Matcher resolves tab URLs to project matches. Registry matches always
// come first; cache-derived and transient matches are best-effort fallbacks.
type Matcher struct {
	projects ProjectSource
	cache    CacheReader
	proxy    ProxyResolver
	logger   logging.Logger
}

// NewMatcher wires a Matcher. cache and proxy may be nil.
func NewMatcher(projects ProjectSource, cache CacheReader, proxy ProxyResolver, logger logging.Logger) (*Matcher, error) {
	if projects == nil {
		return nil, errors.New("match: nil project source provided")
	}
	if logger == nil {
		return nil, errors.New("match: nil logger provided")
	}
	return &Matcher{
		projects: projects,
		cache:    cache,
		proxy:    proxy,
		logger:   logger.With(logging.Field{Key: "component", Value: "Matcher"}),
	}, nil
}

// Matches returns the projects relevant to tabURL. An unparseable URL yields
// no matches, never an error: the sidekick simply stays hidden for that tab.
func (m *Matcher) Matches(ctx context.Context, tabURL string) ([]project.Project, error) {
	resolved := tabURL
	if m.proxy != nil {
		resolved = m.proxy.Resolve(ctx, tabURL)
	}

	u, err := url.Parse(resolved)
	if err != nil || u.Hostname() == "" {
		return nil, nil
	}
	host := CanonicalHost(u.Hostname())

	registered, err := m.projects.All(ctx)
	if err != nil {
		return nil, err
	}

	var matches []project.Project
	seen := map[string]bool{}
	disabled := map[string]bool{}

	for _, p := range registered {
		if p.Disabled {
			disabled[p.Key()] = true
			continue
		}
		if hostEquals(host, p.Host) || hostEquals(host, p.PreviewHost) || hostEquals(host, p.LiveHost) ||
			IsValidHost(host, p.Owner, p.Repo) {
			matches = append(matches, p)
			seen[p.Key()] = true
		}
	}

	var candidates []discovery.Result
	if m.cache != nil {
		res, err := m.cache.Get(ctx, resolved)
		if err != nil {
			m.logger.Warn("cache lookup failed",
				logging.Field{Key: "url", Value: resolved},
				logging.Field{Key: "error", Value: err.Error()})
		} else {
			candidates = res
		}
	}

	// Union in registered projects the cache associates with this URL.
	for _, cand := range candidates {
		if seen[cand.Key()] {
			continue
		}
		for _, p := range registered {
			if p.Key() == cand.Key() && !p.Disabled {
				matches = append(matches, p)
				seen[p.Key()] = true
				break
			}
		}
	}

	// No registered match: fall back to transient descriptors, first from
	// the host grammar, then from discovery candidates.
	if len(matches) == 0 {
		if ref, repo, owner, ok := ParseProjectHost(host); ok {
			matches = append(matches, project.Project{
				Owner:     owner,
				Repo:      repo,
				Ref:       ref,
				Transient: true,
			})
		}
	}
	if len(matches) == 0 && len(candidates) == 1 {
		matches = append(matches, transientFromCandidate(candidates[0]))
	}
	if len(matches) == 0 && len(candidates) > 1 {
		for _, cand := range candidates {
			if cand.OriginalSite {
				matches = append(matches, transientFromCandidate(cand))
			}
		}
	}

	// Stamp ids and apply the late disabled filter, which also catches
	// matches found only through the cache or transient synthesis.
	out := matches[:0]
	for _, p := range matches {
		if p.ID == "" {
			p.ID = p.Key()
		}
		if disabled[p.Key()] {
			continue
		}
		out = append(out, p)
	}

	m.logger.Debug("matched tab url",
		logging.Field{Key: "url", Value: tabURL},
		logging.Field{Key: "matches", Value: len(out)})
	return out, nil
}

func transientFromCandidate(cand discovery.Result) project.Project {
	return project.Project{
		Owner:        cand.Org,
		Repo:         cand.Site,
		Ref:          project.DefaultRef,
		Transient:    true,
		OriginalSite: cand.OriginalSite,
	}
}

func hostEquals(host, configured string) bool {
	if configured == "" {
		return false
	}
	return host == CanonicalHost(configured)
}
