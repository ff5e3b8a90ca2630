package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/adobe/aem-sidekick-sub001/internal/logging"
	"github.com/adobe/aem-sidekick-sub001/internal/webclient"
)

// ErrUnauthorized signals that the admin API wants authentication before it
// reveals the project's environment config. Callers run the login flow and
// retry instead of failing hard.
var ErrUnauthorized = errors.New("project: admin API requires authentication")

// Env is the environment config the admin API publishes per project:
// custom hostnames plus the content mountpoints.
type Env struct {
	Name        string   `json:"project,omitempty"`
	Host        string   `json:"host,omitempty"`
	PreviewHost string   `json:"previewHost,omitempty"`
	LiveHost    string   `json:"liveHost,omitempty"`
	Mountpoints []string `json:"mountpoints,omitempty"`
}

// EnvFetcher probes the admin API for a project's environment config.
type EnvFetcher interface {
	FetchEnv(ctx context.Context, owner, repo, ref, token string) (*Env, error)
}

// AdminClient fetches config.json from the remote admin API.
type AdminClient struct {
	baseURL string
	client  webclient.WebClient
	logger  logging.Logger
}

var _ EnvFetcher = (*AdminClient)(nil)

func NewAdminClient(baseURL string, client webclient.WebClient, logger logging.Logger) *AdminClient {
	return &AdminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger.With(logging.Field{Key: "component", Value: "AdminClient"}),
	}
}

// FetchEnv GETs /sidekick/<owner>/<repo>/<ref>/config.json. A 401 maps to
// ErrUnauthorized; any other non-OK status degrades to an empty Env so a
// project without a published config can still be registered.
func (a *AdminClient) FetchEnv(ctx context.Context, owner, repo, ref, token string) (*Env, error) {
	if ref == "" {
		ref = DefaultRef
	}
	url := fmt.Sprintf("%s/sidekick/%s/%s/%s/config.json", a.baseURL, owner, repo, ref)

	req := &webclient.Request{Method: http.MethodGet, URL: url}
	if token != "" {
		req.Headers = http.Header{"Authorization": []string{"token " + token}}
	}

	resp, err := a.client.Do(ctx, req)
	if err != nil {
		a.logger.Warn("env probe failed",
			logging.Field{Key: "project", Value: Key(owner, repo)},
			logging.Field{Key: "error", Value: err.Error()})
		return &Env{}, nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		a.logger.Debug("no env config published",
			logging.Field{Key: "project", Value: Key(owner, repo)},
			logging.Field{Key: "status", Value: resp.StatusCode})
		return &Env{}, nil
	}

	// Older configs carry a single contentSourceUrl instead of mountpoints.
	var body struct {
		Env
		ContentSourceURL string `json:"contentSourceUrl,omitempty"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		a.logger.Warn("invalid env config",
			logging.Field{Key: "project", Value: Key(owner, repo)},
			logging.Field{Key: "error", Value: err.Error()})
		return &Env{}, nil
	}
	env := body.Env
	if len(env.Mountpoints) == 0 && body.ContentSourceURL != "" {
		env.Mountpoints = []string{body.ContentSourceURL}
	}
	return &env, nil
}
