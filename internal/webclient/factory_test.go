package webclient_test

import (
	"context"
	"strings"
	"testing"

	"github.com/adobe/aem-sidekick-sub001/internal/logging"
	"github.com/adobe/aem-sidekick-sub001/internal/webclient"
)

type fakeClient struct{}

func (fakeClient) Do(context.Context, *webclient.Request) (*webclient.Response, error) {
	return &webclient.Response{}, nil
}
func (fakeClient) Get(context.Context, string) (*webclient.Response, error) {
	return &webclient.Response{}, nil
}
func (fakeClient) Close() error { return nil }

func TestNew_DefaultsToNetHTTP(t *testing.T) {
	webclient.RegisterDefaultBackends()

	wc, err := webclient.New(webclient.Config{}, noopLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer wc.Close()

	if _, ok := wc.(*webclient.NetHTTPClient); !ok {
		t.Fatalf("expected *NetHTTPClient, got %T", wc)
	}
}

func TestNew_UnknownBackend_ReturnsError(t *testing.T) {
	webclient.RegisterDefaultBackends()

	_, err := webclient.New(webclient.Config{Backend: "carrier-pigeon"}, noopLogger{})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("error should name the backend, got %v", err)
	}
}

func TestRegisterBackend_CustomConstructor(t *testing.T) {
	webclient.RegisterBackend("Fake", func(cfg webclient.Config, logger logging.Logger) (webclient.WebClient, error) {
		return fakeClient{}, nil
	})

	// Lookup is case-insensitive on both sides.
	wc, err := webclient.New(webclient.Config{Backend: "FAKE"}, noopLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := wc.(fakeClient); !ok {
		t.Fatalf("expected fakeClient, got %T", wc)
	}

	found := false
	for _, name := range webclient.ListBackends() {
		if name == "fake" {
			found = true
		}
	}
	if !found {
		t.Errorf("ListBackends missing registered backend: %v", webclient.ListBackends())
	}
}
