package discovery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/adobe/aem-sidekick-sub001/internal/logging"
	"github.com/adobe/aem-sidekick-sub001/internal/webclient"
)

// ErrNoMetadata is returned when an editor URL yields no canonical resource.
var ErrNoMetadata = errors.New("discovery: no editor metadata")

// MetadataFetcher turns an editor tab URL into the canonical resource URL
// the discovery endpoint understands. Implementations must honor ctx; the
// cache bounds each probe to one second.
type MetadataFetcher interface {
	Fetch(ctx context.Context, tabURL string) (string, error)
}

// EditorMetadata resolves SharePoint share links through a Graph-style
// shares endpoint and Google Drive links by file id.
type EditorMetadata struct {
	graphURL string
	client   webclient.WebClient
	logger   logging.Logger
}

var _ MetadataFetcher = (*EditorMetadata)(nil)

// DefaultGraphURL is the Graph-style API used to resolve SharePoint share links.
const DefaultGraphURL = "https://graph.microsoft.com/v1.0"

func NewEditorMetadata(graphURL string, client webclient.WebClient, logger logging.Logger) *EditorMetadata {
	if graphURL == "" {
		graphURL = DefaultGraphURL
	}
	return &EditorMetadata{
		graphURL: strings.TrimRight(graphURL, "/"),
		client:   client,
		logger:   logger.With(logging.Field{Key: "component", Value: "EditorMetadata"}),
	}
}

func (e *EditorMetadata) Fetch(ctx context.Context, tabURL string) (string, error) {
	u, err := url.Parse(tabURL)
	if err != nil {
		return "", fmt.Errorf("parse editor url: %w", err)
	}

	if IsGoogleDriveHost(u) {
		return driveResourceURL(u)
	}
	return e.sharePointResourceURL(ctx, tabURL)
}

// sharePointResourceURL resolves a share link via the shares endpoint.
// The share token is "u!" plus the URL-safe base64 of the link, unpadded.
func (e *EditorMetadata) sharePointResourceURL(ctx context.Context, tabURL string) (string, error) {
	token := "u!" + base64.RawURLEncoding.EncodeToString([]byte(tabURL))
	endpoint := e.graphURL + "/shares/" + token + "/driveItem"

	resp, err := e.client.Get(ctx, endpoint)
	if err != nil {
		return "", fmt.Errorf("resolve share link: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resolve share link: status %d: %w", resp.StatusCode, ErrNoMetadata)
	}

	var item struct {
		WebURL string `json:"webUrl"`
	}
	if err := json.Unmarshal(resp.Body, &item); err != nil {
		return "", fmt.Errorf("decode drive item: %w", err)
	}
	if item.WebURL == "" {
		return "", ErrNoMetadata
	}
	return item.WebURL, nil
}

// driveResourceURL extracts the file id from a Docs/Drive URL. Both the
// /d/<id> path shape and the ?id= query shape occur in the wild.
func driveResourceURL(u *url.URL) (string, error) {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, part := range parts {
		if part == "d" && i+1 < len(parts) && parts[i+1] != "" {
			return "gdrive:" + parts[i+1], nil
		}
	}
	if id := u.Query().Get("id"); id != "" {
		return "gdrive:" + id, nil
	}
	return "", ErrNoMetadata
}
