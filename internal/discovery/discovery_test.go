package discovery_test

import (
	"net/url"
	"testing"

	"github.com/adobe/aem-sidekick-sub001/internal/discovery"
	"github.com/adobe/aem-sidekick-sub001/internal/project"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestIsSharePointHost(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://mycompany.sharepoint.com/:w:/r/doc.docx", true},
		{"https://my-company.sharepoint.com/sites/x", true},
		{"https://mycompany.sharepoint.com.evil.com/x", false},
		{"https://drive.google.com/drive/folders/abc", false},
		{"https://www.example.com/", false},
	}
	for _, c := range cases {
		if got := discovery.IsSharePointHost(mustParse(t, c.url), nil); got != c.want {
			t.Errorf("IsSharePointHost(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}

func TestIsSharePointHost_CustomMountpointDomain(t *testing.T) {
	projects := []project.Project{
		{Owner: "foo", Repo: "bar", Mountpoints: []string{"https://content.example.com/sites/bar"}},
	}

	if !discovery.IsSharePointHost(mustParse(t, "https://content.example.com/doc"), projects) {
		t.Errorf("expected mountpoint host to classify as SharePoint")
	}
	if discovery.IsSharePointHost(mustParse(t, "https://other.example.com/doc"), projects) {
		t.Errorf("unrelated host must not classify as SharePoint")
	}

	// A Drive host never classifies as SharePoint, even as a mountpoint.
	driveProjects := []project.Project{
		{Owner: "foo", Repo: "bar", Mountpoints: []string{"https://drive.google.com/drive/folders/abc"}},
	}
	if discovery.IsSharePointHost(mustParse(t, "https://drive.google.com/drive/folders/abc"), driveProjects) {
		t.Errorf("drive host must never classify as SharePoint")
	}
}

func TestIsGoogleDriveHost(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://docs.google.com/document/d/abc/edit", true},
		{"https://drive.google.com/drive/folders/abc", true},
		{"https://mail.google.com/", false},
		{"https://docs.google.com.evil.com/", false},
	}
	for _, c := range cases {
		if got := discovery.IsGoogleDriveHost(mustParse(t, c.url)); got != c.want {
			t.Errorf("IsGoogleDriveHost(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}
