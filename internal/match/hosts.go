// Package match decides which registered projects apply to a tab URL,
// without any network call in the common case.
package match

import (
	"net"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// tokenRE is the grammar for owner/repo/ref tokens in preview/live hosts.
const tokenRE = `[0-9a-z-]+`

var wildcardThirdRE = regexp.MustCompile(`(?i)^` + tokenRE + `--(` + tokenRE + `)--(` + tokenRE + `)$`)

// IsValidHost reports whether host is a preview or live host, optionally
// constrained to a specific owner and repo. The shape is
// <ref>--<repo>--<owner>.<aem|hlx>.<page|live>; hosts with a different
// label count (bare localhost, IPs, deeper subdomains) simply fail.
func IsValidHost(host, owner, repo string) bool {
	labels := strings.Split(host, ".")
	if len(labels) != 3 {
		return false
	}
	third, second, first := labels[0], labels[1], labels[2]
	if first != "page" && first != "live" {
		return false
	}
	if second != "aem" && second != "hlx" {
		return false
	}

	if owner == "" && repo == "" {
		return wildcardThirdRE.MatchString(third)
	}

	o := tokenRE
	if owner != "" {
		o = regexp.QuoteMeta(owner)
	}
	r := tokenRE
	if repo != "" {
		r = regexp.QuoteMeta(repo)
	}
	re, err := regexp.Compile(`(?i)^` + tokenRE + `--` + r + `--` + o + `$`)
	if err != nil {
		return false
	}
	return re.MatchString(third)
}

// ParseProjectHost splits ref, repo and owner out of a preview/live host.
// ok is false when the host does not follow the grammar.
func ParseProjectHost(host string) (ref, repo, owner string, ok bool) {
	if !IsValidHost(host, "", "") {
		return "", "", "", false
	}
	third := strings.Split(host, ".")[0]
	parts := strings.Split(third, "--")
	if len(parts) != 3 {
		return "", "", "", false
	}
	return strings.ToLower(parts[0]), strings.ToLower(parts[1]), strings.ToLower(parts[2]), true
}

// CanonicalHost lowercases a host, strips any port and converts
// internationalized names to punycode so comparisons are deterministic.
func CanonicalHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}
	return host
}
