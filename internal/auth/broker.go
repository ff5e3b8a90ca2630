package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adobe/aem-sidekick-sub001/internal/logging"
)

var (
	// ErrLoginTimeout is returned when no token arrives within the wait window.
	ErrLoginTimeout = errors.New("auth: login timed out")
	// ErrUnknownLogin is returned when a token arrives for a login id that
	// is not (or no longer) pending.
	ErrUnknownLogin = errors.New("auth: unknown login id")
)

// DefaultLoginWait bounds how long Await blocks for the out-of-band flow.
const DefaultLoginWait = 60 * time.Second

// Broker hands a login over to an out-of-band flow and waits for the
// resulting token. The HTTP surface completes pending logins via Complete.
type Broker interface {
	// Await registers a pending login for owner and blocks until the token
	// arrives, the wait window elapses, or ctx is done.
	Await(ctx context.Context, owner string) (string, error)
}

// Login describes a pending login handed to the client for completion.
type Login struct {
	ID    string `json:"loginId"`
	Owner string `json:"owner"`
}

// HTTPBroker pairs each Await with a one-shot channel keyed by a login id.
// The channel is claimed exactly once, by completion or by timeout,
// whichever comes first.
type HTTPBroker struct {
	wait   time.Duration
	logger logging.Logger

	mu      sync.Mutex
	pending map[string]chan string

	// OnLogin is invoked with the pending login so the caller can surface
	// it (open a login tab, print a URL). Optional.
	OnLogin func(Login)
}

var _ Broker = (*HTTPBroker)(nil)

func NewHTTPBroker(wait time.Duration, logger logging.Logger) *HTTPBroker {
	if wait <= 0 {
		wait = DefaultLoginWait
	}
	return &HTTPBroker{
		wait:    wait,
		logger:  logger.With(logging.Field{Key: "component", Value: "AuthBroker"}),
		pending: make(map[string]chan string),
	}
}

func (b *HTTPBroker) Await(ctx context.Context, owner string) (string, error) {
	login := Login{ID: uuid.New().String(), Owner: owner}
	ch := make(chan string, 1)

	b.mu.Lock()
	b.pending[login.ID] = ch
	b.mu.Unlock()

	// Whatever happens below, the pending slot is released exactly once.
	defer func() {
		b.mu.Lock()
		delete(b.pending, login.ID)
		b.mu.Unlock()
	}()

	b.logger.Info("awaiting login",
		logging.Field{Key: "owner", Value: owner},
		logging.Field{Key: "loginId", Value: login.ID})

	if b.OnLogin != nil {
		b.OnLogin(login)
	}

	timer := time.NewTimer(b.wait)
	defer timer.Stop()

	select {
	case token := <-ch:
		return token, nil
	case <-timer.C:
		b.logger.Warn("login timed out", logging.Field{Key: "owner", Value: owner})
		return "", ErrLoginTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Complete delivers a token for a pending login id.
func (b *HTTPBroker) Complete(loginID, token string) error {
	b.mu.Lock()
	ch, ok := b.pending[loginID]
	if ok {
		delete(b.pending, loginID)
	}
	b.mu.Unlock()

	if !ok {
		return ErrUnknownLogin
	}
	ch <- token
	return nil
}
