// Package tabs turns tab navigation events into sidekick decisions: whether
// to inject the toolbar, what the action badge shows and which context menu
// entries apply.
package tabs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/adobe/aem-sidekick-sub001/internal/discovery"
	"github.com/adobe/aem-sidekick-sub001/internal/logging"
	"github.com/adobe/aem-sidekick-sub001/internal/match"
	"github.com/adobe/aem-sidekick-sub001/internal/project"
)

// EventKind discriminates tab events. Payloads are validated at the
// boundary; an unknown kind is an error, not a guess.
type EventKind string

const (
	EventUpdated   EventKind = "updated"
	EventActivated EventKind = "activated"
)

// Event is a tab navigation notice from a client.
type Event struct {
	TabID string    `json:"id"`
	URL   string    `json:"url"`
	Kind  EventKind `json:"kind"`
}

// MenuItem is one context menu entry offered for the tab.
type MenuItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Decision tells the client what to do with a tab.
type Decision struct {
	TabID     string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Inject    bool      `json:"inject"`
	Badge     string    `json:"badge,omitempty"`

	Matches     []project.Project `json:"matches,omitempty"`
	ContextMenu []MenuItem        `json:"contextMenu,omitempty"`
}

// Controller is the tab lifecycle controller: it consults the matcher, keeps
// the discovery cache warm for editor URLs, and produces decisions.
type Controller struct {
	matcher  *match.Matcher
	projects discovery.ProjectSource
	cache    *discovery.Cache
	logger   logging.Logger
}

// NewController wires a Controller. cache may be nil.
func NewController(matcher *match.Matcher, projects discovery.ProjectSource, cache *discovery.Cache, logger logging.Logger) (*Controller, error) {
	if matcher == nil {
		return nil, errors.New("tabs: nil matcher provided")
	}
	if logger == nil {
		return nil, errors.New("tabs: nil logger provided")
	}
	return &Controller{
		matcher:  matcher,
		projects: projects,
		cache:    cache,
		logger:   logger.With(logging.Field{Key: "component", Value: "TabController"}),
	}, nil
}

// Handle resolves a tab event into a decision.
func (c *Controller) Handle(ctx context.Context, ev Event) (*Decision, error) {
	switch ev.Kind {
	case EventUpdated, EventActivated:
	default:
		return nil, fmt.Errorf("tabs: unknown event kind %q", ev.Kind)
	}
	if ev.URL == "" {
		return nil, fmt.Errorf("tabs: event without url")
	}

	matches, err := c.matcher.Matches(ctx, ev.URL)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && c.isEditorURL(ctx, ev.URL) {
		if len(matches) > 0 && !matches[0].Transient {
			// Pin the known-good association for this editor URL.
			if err := c.cache.Set(ctx, ev.URL, &matches[0]); err != nil {
				c.logger.Warn("cache pin failed",
					logging.Field{Key: "url", Value: ev.URL},
					logging.Field{Key: "error", Value: err.Error()})
			}
		} else if len(matches) == 0 {
			// Unknown editor URL: run discovery, then look again.
			if err := c.cache.Set(ctx, ev.URL, nil); err != nil {
				c.logger.Warn("discovery failed",
					logging.Field{Key: "url", Value: ev.URL},
					logging.Field{Key: "error", Value: err.Error()})
			} else if rematched, err := c.matcher.Matches(ctx, ev.URL); err == nil {
				matches = rematched
			}
		}
	}

	dec := &Decision{
		TabID:     ev.TabID,
		SessionID: uuid.New().String(),
		Inject:    len(matches) > 0,
		Matches:   matches,
	}
	if len(matches) > 0 {
		dec.Badge = strconv.Itoa(len(matches))
	}
	for _, p := range matches {
		if p.Transient {
			dec.ContextMenu = append(dec.ContextMenu, MenuItem{
				ID:    "addProject:" + p.Key(),
				Title: "Add project " + p.Key(),
			})
		} else {
			dec.ContextMenu = append(dec.ContextMenu, MenuItem{
				ID:    "toggleProject:" + p.Key(),
				Title: "Disable " + p.Key(),
			})
		}
	}

	c.logger.Info("handled tab event",
		logging.Field{Key: "tab", Value: ev.TabID},
		logging.Field{Key: "kind", Value: string(ev.Kind)},
		logging.Field{Key: "inject", Value: dec.Inject})
	return dec, nil
}

func (c *Controller) isEditorURL(ctx context.Context, tabURL string) bool {
	u, err := url.Parse(tabURL)
	if err != nil {
		return false
	}
	var projects []project.Project
	if c.projects != nil {
		if ps, err := c.projects.All(ctx); err == nil {
			projects = ps
		}
	}
	return discovery.IsSharePointHost(u, projects) || discovery.IsGoogleDriveHost(u)
}
