package project_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adobe/aem-sidekick-sub001/internal/auth"
	"github.com/adobe/aem-sidekick-sub001/internal/project"
	"github.com/adobe/aem-sidekick-sub001/internal/storage"
	"github.com/adobe/aem-sidekick-sub001/internal/testutil"
)

type stubEnv struct {
	env          *project.Env
	unauthorized bool
	calls        int
	tokens       []string
}

func (s *stubEnv) FetchEnv(ctx context.Context, owner, repo, ref, token string) (*project.Env, error) {
	s.calls++
	s.tokens = append(s.tokens, token)
	if s.unauthorized && token == "" {
		return nil, project.ErrUnauthorized
	}
	if s.env != nil {
		return s.env, nil
	}
	return &project.Env{}, nil
}

type stubBroker struct {
	token string
	err   error
	calls int
}

func (s *stubBroker) Await(ctx context.Context, owner string) (string, error) {
	s.calls++
	return s.token, s.err
}

func newRegistry(t *testing.T, store storage.Store, env project.EnvFetcher, broker auth.Broker) (*project.Registry, *auth.TokenStore) {
	t.Helper()
	tokens := auth.NewTokenStore(store)
	reg, err := project.NewRegistry(store, env, tokens, broker, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg, tokens
}

func TestRegistry_AddAndList(t *testing.T) {
	store := storage.NewMemoryStore()
	env := &stubEnv{env: &project.Env{
		Name:        "Bar Site",
		Host:        "www.bar.com",
		PreviewHost: "preview.bar.com",
		Mountpoints: []string{"https://corp.sharepoint.com/sites/bar"},
	}}
	reg, _ := newRegistry(t, store, env, nil)
	ctx := context.Background()

	p, err := reg.Add(ctx, project.AddOptions{Owner: "foo", Repo: "bar"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if p.ID != "foo/bar" || p.Ref != "main" {
		t.Fatalf("unexpected project: %+v", p)
	}
	if p.Host != "www.bar.com" || p.PreviewHost != "preview.bar.com" {
		t.Fatalf("env hosts not applied: %+v", p)
	}

	all, err := reg.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || all[0].ID != "foo/bar" {
		t.Fatalf("expected one listed project, got %+v", all)
	}
}

func TestRegistry_AddIsIdempotentOnKey(t *testing.T) {
	store := storage.NewMemoryStore()
	reg, _ := newRegistry(t, store, &stubEnv{}, nil)
	ctx := context.Background()

	if _, err := reg.Add(ctx, project.AddOptions{Owner: "foo", Repo: "bar"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err := reg.Add(ctx, project.AddOptions{Owner: "foo", Repo: "bar", Ref: "other"})
	if !errors.Is(err, project.ErrProjectExists) {
		t.Fatalf("expected ErrProjectExists, got %v", err)
	}

	all, err := reg.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(all))
	}
}

func TestRegistry_AddFromGitHubURL(t *testing.T) {
	reg, _ := newRegistry(t, storage.NewMemoryStore(), &stubEnv{}, nil)

	p, err := reg.Add(context.Background(), project.AddOptions{
		GitHubURL: "https://github.com/foo/bar/tree/dev",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if p.Owner != "foo" || p.Repo != "bar" || p.Ref != "dev" {
		t.Fatalf("unexpected project: %+v", p)
	}
}

func TestRegistry_AddRunsLoginFlowOn401(t *testing.T) {
	store := storage.NewMemoryStore()
	env := &stubEnv{unauthorized: true, env: &project.Env{Host: "www.bar.com"}}
	broker := &stubBroker{token: "tok-123"}
	reg, tokens := newRegistry(t, store, env, broker)
	ctx := context.Background()

	p, err := reg.Add(ctx, project.AddOptions{Owner: "foo", Repo: "bar"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if broker.calls != 1 {
		t.Fatalf("expected 1 login flow, got %d", broker.calls)
	}
	if env.calls != 2 {
		t.Fatalf("expected probe retry after login, got %d calls", env.calls)
	}
	if env.tokens[1] != "tok-123" {
		t.Fatalf("retry must carry the new token, got %q", env.tokens[1])
	}
	if p.Host != "www.bar.com" {
		t.Fatalf("env not applied after retry: %+v", p)
	}

	tok, err := tokens.Get(ctx, "foo")
	if err != nil || tok != "tok-123" {
		t.Fatalf("expected cached token, got %q err=%v", tok, err)
	}
}

func TestRegistry_AddSurvivesLoginFailure(t *testing.T) {
	env := &stubEnv{unauthorized: true}
	broker := &stubBroker{err: auth.ErrLoginTimeout}
	reg, _ := newRegistry(t, storage.NewMemoryStore(), env, broker)

	// The probe fails, but the project is still registered.
	p, err := reg.Add(context.Background(), project.AddOptions{Owner: "foo", Repo: "bar"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if p.Host != "" {
		t.Fatalf("expected no env hosts, got %+v", p)
	}
}

// blockingBroker holds Await until released, so tests can observe the
// registry while a login flow is pending.
type blockingBroker struct {
	started chan struct{}
	release chan struct{}
	token   string
}

func (b *blockingBroker) Await(ctx context.Context, owner string) (string, error) {
	close(b.started)
	select {
	case <-b.release:
		return b.token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestRegistry_AllNotBlockedByPendingLogin(t *testing.T) {
	env := &stubEnv{unauthorized: true, env: &project.Env{Host: "www.bar.com"}}
	broker := &blockingBroker{
		started: make(chan struct{}),
		release: make(chan struct{}),
		token:   "tok-123",
	}
	reg, _ := newRegistry(t, storage.NewMemoryStore(), env, broker)
	ctx := context.Background()

	addDone := make(chan error, 1)
	go func() {
		_, err := reg.Add(ctx, project.AddOptions{Owner: "foo", Repo: "bar"})
		addDone <- err
	}()
	<-broker.started

	// Reads proceed while the login flow is pending.
	allDone := make(chan struct{})
	go func() {
		defer close(allDone)
		if all, err := reg.All(ctx); err != nil || len(all) != 0 {
			t.Errorf("All: got %+v err=%v", all, err)
		}
	}()
	select {
	case <-allDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("All blocked behind a pending login flow")
	}

	close(broker.release)
	if err := <-addDone; err != nil {
		t.Fatalf("Add: %v", err)
	}

	all, err := reg.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || all[0].Host != "www.bar.com" {
		t.Fatalf("expected registered project after release, got %+v", all)
	}
}

// racingEnv registers the same project through a second registry while the
// first registry is mid-probe, exercising the existence re-check.
type racingEnv struct {
	other *project.Registry
	err   error
}

func (r *racingEnv) FetchEnv(ctx context.Context, owner, repo, ref, token string) (*project.Env, error) {
	_, r.err = r.other.Add(ctx, project.AddOptions{Owner: owner, Repo: repo, Ref: ref})
	return &project.Env{}, nil
}

func TestRegistry_AddRechecksAfterProbe(t *testing.T) {
	store := storage.NewMemoryStore()
	other, _ := newRegistry(t, store, &stubEnv{}, nil)
	reg, _ := newRegistry(t, store, &racingEnv{other: other}, nil)
	ctx := context.Background()

	_, err := reg.Add(ctx, project.AddOptions{Owner: "foo", Repo: "bar"})
	if !errors.Is(err, project.ErrProjectExists) {
		t.Fatalf("expected ErrProjectExists after concurrent registration, got %v", err)
	}

	all, err := reg.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one record, got %+v", all)
	}
}

func TestRegistry_Update(t *testing.T) {
	reg, _ := newRegistry(t, storage.NewMemoryStore(), &stubEnv{}, nil)
	ctx := context.Background()

	if _, err := reg.Add(ctx, project.AddOptions{Owner: "foo", Repo: "bar"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := reg.Update(ctx, "foo", "bar", project.Project{LiveHost: "www.bar.com"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.LiveHost != "www.bar.com" {
		t.Fatalf("patch not applied: %+v", got)
	}
	if got.Ref != "main" {
		t.Fatalf("zero-valued patch fields must not clear stored values: %+v", got)
	}

	if _, err := reg.Update(ctx, "no", "such", project.Project{}); !errors.Is(err, project.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestRegistry_DeleteRevokesToken(t *testing.T) {
	store := storage.NewMemoryStore()
	reg, tokens := newRegistry(t, store, &stubEnv{}, nil)
	ctx := context.Background()

	if _, err := reg.Add(ctx, project.AddOptions{Owner: "foo", Repo: "bar"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := tokens.Set(ctx, "foo", "tok"); err != nil {
		t.Fatalf("Set token: %v", err)
	}

	existed, err := reg.Delete(ctx, "foo", "bar")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !existed {
		t.Fatalf("expected delete to report existing entry")
	}

	all, err := reg.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty registry, got %+v", all)
	}

	tok, err := tokens.Get(ctx, "foo")
	if err != nil {
		t.Fatalf("Get token: %v", err)
	}
	if tok != "" {
		t.Fatalf("expected token revoked, got %q", tok)
	}

	existed, err = reg.Delete(ctx, "foo", "bar")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if existed {
		t.Fatalf("second delete must report no entry")
	}
}

func TestRegistry_Toggle(t *testing.T) {
	reg, _ := newRegistry(t, storage.NewMemoryStore(), &stubEnv{}, nil)
	ctx := context.Background()

	if ok, err := reg.Toggle(ctx, "foo", "bar"); err != nil || ok {
		t.Fatalf("toggle of unknown project: ok=%v err=%v", ok, err)
	}

	if _, err := reg.Add(ctx, project.AddOptions{Owner: "foo", Repo: "bar"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if ok, err := reg.Toggle(ctx, "foo", "bar"); err != nil || !ok {
		t.Fatalf("Toggle: ok=%v err=%v", ok, err)
	}
	p, _, err := reg.Get(ctx, "foo", "bar")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !p.Disabled {
		t.Fatalf("expected disabled after toggle")
	}

	if ok, _ := reg.Toggle(ctx, "foo", "bar"); !ok {
		t.Fatalf("second toggle failed")
	}
	p, _, _ = reg.Get(ctx, "foo", "bar")
	if p.Disabled {
		t.Fatalf("expected enabled after second toggle")
	}
}

func TestRegistry_AllSkipsDanglingIndexEntry(t *testing.T) {
	store := storage.NewMemoryStore()
	reg, _ := newRegistry(t, store, &stubEnv{}, nil)
	ctx := context.Background()

	if _, err := reg.Add(ctx, project.AddOptions{Owner: "foo", Repo: "bar"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Simulate an interrupted delete: record gone, index entry left behind.
	if err := store.Remove(ctx, storage.AreaSync, "project/foo/bar"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	all, err := reg.All(ctx)
	if err != nil {
		t.Fatalf("All must tolerate dangling index entries: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no resolvable projects, got %+v", all)
	}
}
