package tabs

import (
	"bytes"
	"context"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/adobe/aem-sidekick-sub001/internal/logging"
	"github.com/adobe/aem-sidekick-sub001/internal/webclient"
)

// proxyProbeTimeout bounds the meta tag probe. A dev server that never
// answers must not stall tab handling; the original URL is used instead.
const proxyProbeTimeout = time.Second

// proxyMetaSelector finds the proxy URL a dev server advertises in its pages.
const proxyMetaSelector = `meta[property="hlx:proxyUrl"]`

// MetaProxyResolver resolves local development URLs to the real URLs they
// proxy by reading the hlx:proxyUrl meta tag off the served page.
type MetaProxyResolver struct {
	devOrigins map[string]bool
	client     webclient.WebClient
	logger     logging.Logger
}

// NewMetaProxyResolver wires a resolver for the given dev origins
// (e.g. "http://localhost:3000").
func NewMetaProxyResolver(devOrigins []string, client webclient.WebClient, logger logging.Logger) *MetaProxyResolver {
	origins := make(map[string]bool, len(devOrigins))
	for _, o := range devOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			origins[u.Scheme+"://"+u.Host] = true
		}
	}
	return &MetaProxyResolver{
		devOrigins: origins,
		client:     client,
		logger:     logger.With(logging.Field{Key: "component", Value: "ProxyResolver"}),
	}
}

// Resolve returns the advertised proxy URL for known dev origins, and the
// input unchanged for everything else or on any probe failure.
func (r *MetaProxyResolver) Resolve(ctx context.Context, tabURL string) string {
	u, err := url.Parse(tabURL)
	if err != nil || u.Host == "" {
		return tabURL
	}
	if !r.devOrigins[u.Scheme+"://"+u.Host] {
		return tabURL
	}
	if r.client == nil {
		return tabURL
	}

	probeCtx, cancel := context.WithTimeout(ctx, proxyProbeTimeout)
	defer cancel()

	resp, err := r.client.Get(probeCtx, tabURL)
	if err != nil {
		r.logger.Debug("proxy probe failed",
			logging.Field{Key: "url", Value: tabURL},
			logging.Field{Key: "error", Value: err.Error()})
		return tabURL
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return tabURL
	}
	proxyURL, ok := doc.Find(proxyMetaSelector).Attr("content")
	if !ok || proxyURL == "" {
		return tabURL
	}

	r.logger.Debug("resolved proxy url",
		logging.Field{Key: "url", Value: tabURL},
		logging.Field{Key: "proxyUrl", Value: proxyURL})
	return proxyURL
}
