// Package project holds the project model and the registry that persists
// registered projects in the synced partition of the config store.
package project

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultRef is assumed when a project or a transient match carries no ref.
const DefaultRef = "main"

// Project is a registered (owner, repo) pair the sidekick can operate on.
// Transient projects are inferred from URL shape or discovery results and
// have no stored record.
type Project struct {
	ID          string   `json:"id,omitempty"`
	Owner       string   `json:"owner"`
	Repo        string   `json:"repo"`
	Ref         string   `json:"ref,omitempty"`
	Name        string   `json:"project,omitempty"`
	Host        string   `json:"host,omitempty"`
	PreviewHost string   `json:"previewHost,omitempty"`
	LiveHost    string   `json:"liveHost,omitempty"`
	Mountpoints []string `json:"mountpoints,omitempty"`
	Disabled    bool     `json:"disabled,omitempty"`

	// Transient marks a match synthesized without a stored record.
	Transient bool `json:"transient,omitempty"`

	// OriginalSite marks a discovery result as the site the resource
	// originally belongs to, as opposed to a site merely referencing it.
	OriginalSite bool `json:"originalSite,omitempty"`
}

// Key returns the identity "<owner>/<repo>" for o and r, lowercased.
// Ref is deliberately not part of the identity.
func Key(owner, repo string) string {
	return strings.ToLower(owner) + "/" + strings.ToLower(repo)
}

// Key returns the project's identity key.
func (p *Project) Key() string {
	return Key(p.Owner, p.Repo)
}

// FirstMountpoint returns the project's first mountpoint URL, or "".
func (p *Project) FirstMountpoint() string {
	if len(p.Mountpoints) == 0 {
		return ""
	}
	return p.Mountpoints[0]
}

// ParseGitHubURL derives owner, repo and optionally ref from a repository
// URL like https://github.com/<owner>/<repo>[/tree/<ref>].
func ParseGitHubURL(raw string) (owner, repo, ref string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", "", fmt.Errorf("parse repository url: %w", err)
	}
	if !strings.EqualFold(u.Hostname(), "github.com") {
		return "", "", "", fmt.Errorf("unsupported repository host %q", u.Hostname())
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("repository url %q has no owner/repo", raw)
	}
	owner = strings.ToLower(parts[0])
	repo = strings.ToLower(strings.TrimSuffix(parts[1], ".git"))
	if len(parts) >= 4 && parts[2] == "tree" {
		ref = parts[3]
	}
	return owner, repo, ref, nil
}
