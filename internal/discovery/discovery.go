// Package discovery maps opaque editor-tool URLs (SharePoint, Google Drive)
// back to project identities. Share links cannot be parsed into owner/repo
// statically, so a remote discovery call is unavoidable; the session cache
// exists purely to bound call volume, not to provide strong consistency.
package discovery

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/adobe/aem-sidekick-sub001/internal/project"
)

// Result is one discovered association between a resource and a project.
type Result struct {
	Org  string `json:"org"`
	Site string `json:"site"`

	// OriginalSite marks the site the resource originally belongs to.
	OriginalSite bool `json:"originalSite,omitempty"`
}

// Key returns the project identity "<org>/<site>" for the result.
func (r Result) Key() string {
	return project.Key(r.Org, r.Site)
}

var (
	sharePointHostRE  = regexp.MustCompile(`^[a-z-]+\.sharepoint\.com$`)
	googleDriveHostRE = regexp.MustCompile(`^(docs|drive)\.google\.com$`)
)

// IsSharePointHost reports whether u points at SharePoint: either a
// *.sharepoint.com host, or the host of any project's first mountpoint
// (custom domains fronting SharePoint), as long as it is not a Drive host.
func IsSharePointHost(u *url.URL, projects []project.Project) bool {
	if u == nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if sharePointHostRE.MatchString(host) {
		return true
	}
	if googleDriveHostRE.MatchString(host) {
		return false
	}
	for _, p := range projects {
		mp := p.FirstMountpoint()
		if mp == "" {
			continue
		}
		mu, err := url.Parse(mp)
		if err != nil {
			continue
		}
		if strings.EqualFold(mu.Hostname(), host) {
			return true
		}
	}
	return false
}

// IsGoogleDriveHost reports whether u points at Google Drive or Docs.
func IsGoogleDriveHost(u *url.URL) bool {
	if u == nil {
		return false
	}
	return googleDriveHostRE.MatchString(strings.ToLower(u.Hostname()))
}
