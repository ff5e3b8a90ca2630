package match_test

import (
	"testing"

	"github.com/adobe/aem-sidekick-sub001/internal/match"
)

func TestIsValidHost_Wildcard(t *testing.T) {
	cases := []struct {
		host string
		want bool
	}{
		{"main--bar--foo.hlx.page", true},
		{"main--bar--foo.hlx.live", true},
		{"main--bar--foo.aem.page", true},
		{"main--bar--foo.aem.live", true},
		{"feature-x--site-1--org-2.aem.page", true},
		{"MAIN--BAR--FOO.aem.page", true}, // grammar is case-insensitive
		{"main--bar--foo.aem.dev", false},
		{"main--bar--foo.example.page", false},
		{"main--bar--foo.aem.page.evil.com", false},
		{"bar--foo.aem.page", false}, // only two tokens
		{"localhost", false},
		{"127.0.0.1", false},
		{"", false},
		{"aem.page", false},
	}

	for _, c := range cases {
		if got := match.IsValidHost(c.host, "", ""); got != c.want {
			t.Errorf("IsValidHost(%q) = %v, want %v", c.host, got, c.want)
		}
	}
}

func TestIsValidHost_OwnerRepoConstraint(t *testing.T) {
	host := "main--bar--foo.hlx.page"

	if !match.IsValidHost(host, "foo", "bar") {
		t.Errorf("expected %q to match owner=foo repo=bar", host)
	}
	if !match.IsValidHost(host, "foo", "") {
		t.Errorf("expected %q to match owner=foo with any repo", host)
	}
	if match.IsValidHost(host, "other", "bar") {
		t.Errorf("expected %q to reject owner=other", host)
	}
	if match.IsValidHost(host, "foo", "other") {
		t.Errorf("expected %q to reject repo=other", host)
	}
}

func TestParseProjectHost(t *testing.T) {
	ref, repo, owner, ok := match.ParseProjectHost("feature--site--org.aem.live")
	if !ok {
		t.Fatalf("expected valid project host")
	}
	if ref != "feature" || repo != "site" || owner != "org" {
		t.Fatalf("got ref=%q repo=%q owner=%q", ref, repo, owner)
	}

	if _, _, _, ok := match.ParseProjectHost("www.example.com"); ok {
		t.Fatalf("expected www.example.com to fail")
	}
	if _, _, _, ok := match.ParseProjectHost("localhost"); ok {
		t.Fatalf("expected localhost to fail")
	}
}

func TestCanonicalHost(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Example.COM", "example.com"},
		{"example.com:8080", "example.com"},
		{" example.com ", "example.com"},
	}
	for _, c := range cases {
		if got := match.CanonicalHost(c.in); got != c.want {
			t.Errorf("CanonicalHost(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
