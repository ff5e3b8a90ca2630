package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/adobe/aem-sidekick-sub001/internal/logging"
	"github.com/adobe/aem-sidekick-sub001/internal/webclient"
)

// Client resolves a content resource URL into project associations.
type Client interface {
	Discover(ctx context.Context, resourceURL string) ([]Result, error)
}

// HTTPClient calls the remote discovery endpoint.
type HTTPClient struct {
	baseURL string
	client  webclient.WebClient
	logger  logging.Logger
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(baseURL string, client webclient.WebClient, logger logging.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger.With(logging.Field{Key: "component", Value: "Discovery"}),
	}
}

// Discover GETs /discover/?url=<resource>. Network failures, non-OK statuses
// and undecodable bodies all degrade to an empty slice: callers proceed with
// "nothing discovered" rather than an error.
func (c *HTTPClient) Discover(ctx context.Context, resourceURL string) ([]Result, error) {
	endpoint := c.baseURL + "/discover/?url=" + url.QueryEscape(resourceURL)

	resp, err := c.client.Get(ctx, endpoint)
	if err != nil {
		c.logger.Warn("discovery call failed",
			logging.Field{Key: "url", Value: resourceURL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("discovery returned non-ok status",
			logging.Field{Key: "url", Value: resourceURL},
			logging.Field{Key: "status", Value: resp.StatusCode})
		return nil, nil
	}

	var results []Result
	if err := json.Unmarshal(resp.Body, &results); err != nil {
		c.logger.Warn("invalid discovery response",
			logging.Field{Key: "url", Value: resourceURL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, nil
	}
	return results, nil
}
