package tabs_test

import (
	"context"
	"testing"
	"time"

	"github.com/adobe/aem-sidekick-sub001/internal/discovery"
	"github.com/adobe/aem-sidekick-sub001/internal/match"
	"github.com/adobe/aem-sidekick-sub001/internal/project"
	"github.com/adobe/aem-sidekick-sub001/internal/storage"
	"github.com/adobe/aem-sidekick-sub001/internal/tabs"
	"github.com/adobe/aem-sidekick-sub001/internal/testutil"
)

type stubProjects struct {
	projects []project.Project
}

func (s *stubProjects) All(ctx context.Context) ([]project.Project, error) {
	return s.projects, nil
}

type stubDiscovery struct {
	results []discovery.Result
	calls   int
}

func (s *stubDiscovery) Discover(ctx context.Context, resourceURL string) ([]discovery.Result, error) {
	s.calls++
	return s.results, nil
}

func newController(t *testing.T, projects *stubProjects, disco discovery.Client) (*tabs.Controller, *discovery.Cache) {
	t.Helper()
	logger := &testutil.DummyLogger{}
	cache, err := discovery.NewCache(storage.NewMemoryStore(), disco, nil, projects, time.Hour, logger)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	matcher, err := match.NewMatcher(projects, cache, nil, logger)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	ctrl, err := tabs.NewController(matcher, projects, cache, logger)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return ctrl, cache
}

func TestHandle_RejectsBadEvents(t *testing.T) {
	ctrl, _ := newController(t, &stubProjects{}, nil)
	ctx := context.Background()

	if _, err := ctrl.Handle(ctx, tabs.Event{TabID: "1", URL: "https://x.com/", Kind: "closed"}); err == nil {
		t.Fatalf("expected error for unknown event kind")
	}
	if _, err := ctrl.Handle(ctx, tabs.Event{TabID: "1", Kind: tabs.EventUpdated}); err == nil {
		t.Fatalf("expected error for event without url")
	}
}

func TestHandle_NoMatchStaysHidden(t *testing.T) {
	ctrl, _ := newController(t, &stubProjects{}, nil)

	dec, err := ctrl.Handle(context.Background(), tabs.Event{
		TabID: "7", URL: "https://www.unrelated.com/page", Kind: tabs.EventActivated,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if dec.Inject || dec.Badge != "" || len(dec.Matches) != 0 {
		t.Fatalf("expected hidden decision, got %+v", dec)
	}
	if dec.TabID != "7" || dec.SessionID == "" {
		t.Fatalf("decision must echo the tab and carry a session id: %+v", dec)
	}
}

func TestHandle_RegisteredProjectInjects(t *testing.T) {
	projects := &stubProjects{projects: []project.Project{
		{ID: "foo/bar", Owner: "foo", Repo: "bar", Ref: "main"},
	}}
	ctrl, _ := newController(t, projects, nil)

	dec, err := ctrl.Handle(context.Background(), tabs.Event{
		TabID: "1", URL: "https://main--bar--foo.aem.page/docs", Kind: tabs.EventUpdated,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !dec.Inject || dec.Badge != "1" {
		t.Fatalf("expected inject with badge 1, got %+v", dec)
	}
	if len(dec.ContextMenu) != 1 || dec.ContextMenu[0].ID != "toggleProject:foo/bar" {
		t.Fatalf("expected toggle menu entry, got %+v", dec.ContextMenu)
	}
}

func TestHandle_TransientMatchOffersAdd(t *testing.T) {
	ctrl, _ := newController(t, &stubProjects{}, nil)

	dec, err := ctrl.Handle(context.Background(), tabs.Event{
		TabID: "1", URL: "https://main--bar--foo.aem.live/", Kind: tabs.EventUpdated,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !dec.Inject {
		t.Fatalf("expected transient inject, got %+v", dec)
	}
	if len(dec.ContextMenu) != 1 || dec.ContextMenu[0].ID != "addProject:foo/bar" {
		t.Fatalf("expected add menu entry, got %+v", dec.ContextMenu)
	}
}

func TestHandle_EditorURLRunsDiscovery(t *testing.T) {
	disco := &stubDiscovery{results: []discovery.Result{{Org: "foo", Site: "bar"}}}
	ctrl, _ := newController(t, &stubProjects{}, disco)
	ctx := context.Background()

	ev := tabs.Event{TabID: "1", URL: "https://docs.google.com/document/d/abc123/edit", Kind: tabs.EventUpdated}
	dec, err := ctrl.Handle(ctx, ev)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if disco.calls != 1 {
		t.Fatalf("expected one discovery call, got %d", disco.calls)
	}
	if !dec.Inject || len(dec.Matches) != 1 {
		t.Fatalf("expected discovery-backed match, got %+v", dec)
	}
	if m := dec.Matches[0]; !m.Transient || m.Owner != "foo" || m.Repo != "bar" {
		t.Fatalf("unexpected match: %+v", m)
	}

	// The cached entry answers the next event without another fetch.
	if _, err := ctrl.Handle(ctx, ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if disco.calls != 1 {
		t.Fatalf("expected cache hit on second event, got %d calls", disco.calls)
	}
}

func TestHandle_EditorURLPinsKnownProject(t *testing.T) {
	registered := project.Project{ID: "foo/bar", Owner: "foo", Repo: "bar", Ref: "main",
		Mountpoints: []string{"https://corp.sharepoint.com/sites/bar"}}
	projects := &stubProjects{projects: []project.Project{registered}}
	disco := &stubDiscovery{}
	ctrl, cache := newController(t, projects, disco)
	ctx := context.Background()

	editorURL := "https://corp.sharepoint.com/:w:/r/sites/bar/doc.docx"
	if err := cache.Set(ctx, editorURL, &registered); err != nil {
		t.Fatalf("Set: %v", err)
	}

	dec, err := ctrl.Handle(ctx, tabs.Event{TabID: "1", URL: editorURL, Kind: tabs.EventActivated})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !dec.Inject || len(dec.Matches) != 1 || dec.Matches[0].Transient {
		t.Fatalf("expected pinned registered match, got %+v", dec)
	}
	if disco.calls != 0 {
		t.Fatalf("known association must not trigger discovery, got %d calls", disco.calls)
	}

	// The pin has no expiry, so it outlives the TTL.
	results, err := cache.Get(ctx, editorURL)
	if err != nil || len(results) != 1 || !results[0].OriginalSite {
		t.Fatalf("expected pinned entry, got %+v err=%v", results, err)
	}
}
