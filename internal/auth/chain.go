package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// DefaultAttemptTimeout bounds one authenticator invocation. A hanging
// authenticator must not prevent fallback to the next scheme; a timed-out
// attempt is treated as a decline.
const DefaultAttemptTimeout = 10 * time.Second

// Chain authenticates requests against the registered schemes of one config
// snapshot. The Authorization header's scheme token selects the candidate
// scheme to try first; remaining schemes are tried in registration order
// until one claims the request.
type Chain struct {
	entries        []chainEntry
	attemptTimeout time.Duration
	log            *slog.Logger
}

type chainEntry struct {
	scheme       string
	challenge    string
	blockUnknown bool
	auth         Authenticator
}

// NewChain creates an authentication chain over a registry snapshot.
func NewChain(reg *Registry, attemptTimeout time.Duration) *Chain {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	c := &Chain{
		attemptTimeout: attemptTimeout,
		log:            slog.With("component", "auth-chain"),
	}
	for _, b := range reg.authc {
		c.entries = append(c.entries, chainEntry{
			scheme:       b.name,
			challenge:    HeaderScheme(b.authenticator.Challenge()),
			blockUnknown: b.blockUnknown,
			auth:         b.authenticator,
		})
	}
	return c
}

// Authenticate walks the chain for one request. Each scheme either claims
// the request, declines it, or errors; declines and errors both move the
// chain along. The final outcome is the claiming scheme's principal or
// ErrUnauthenticated.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	if len(c.entries) == 0 {
		return nil, ErrUnauthenticated
	}

	discriminator := HeaderScheme(r.Header.Get("Authorization"))

	order, matched := c.tryOrder(discriminator)
	if !matched && discriminator != "" && c.allBlockUnknown() {
		c.log.Debug("rejecting unknown credential scheme", "discriminator", discriminator)
		return nil, ErrUnauthenticated
	}

	for _, e := range order {
		p, err := c.attempt(ctx, e, r)
		switch {
		case err == nil && p != nil:
			if p.Scheme == "" {
				p.Scheme = e.scheme
			}
			return p, nil
		case IsDeclined(err):
			continue
		case err != nil:
			// Errors are swallowed and treated as a decline; the scheme is
			// not retried.
			c.log.Debug("scheme authentication error", "scheme", e.scheme, "error", err)
			continue
		}
	}
	return nil, ErrUnauthenticated
}

// Challenges returns the challenge tokens of all schemes, for the
// WWW-Authenticate header of a rejection.
func (c *Chain) Challenges() []string {
	seen := make(map[string]bool, len(c.entries))
	var out []string
	for _, e := range c.entries {
		ch := e.auth.Challenge()
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out
}

// Schemes returns the scheme names in chain order.
func (c *Chain) Schemes() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.scheme
	}
	return out
}

// tryOrder places schemes whose challenge matches the discriminator ahead of
// the rest, preserving registration order within each group.
func (c *Chain) tryOrder(discriminator string) (order []chainEntry, matched bool) {
	if discriminator == "" {
		return c.entries, false
	}
	var rest []chainEntry
	for _, e := range c.entries {
		if e.challenge == discriminator {
			order = append(order, e)
		} else {
			rest = append(rest, e)
		}
	}
	matched = len(order) > 0
	return append(order, rest...), matched
}

func (c *Chain) allBlockUnknown() bool {
	for _, e := range c.entries {
		if !e.blockUnknown {
			return false
		}
	}
	return true
}

type attemptResult struct {
	principal *Principal
	err       error
}

// attempt invokes one authenticator, bounded by the attempt timeout.
func (c *Chain) attempt(ctx context.Context, e chainEntry, r *http.Request) (*Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		p, err := e.auth.Authenticate(ctx, r)
		done <- attemptResult{p, err}
	}()

	select {
	case res := <-done:
		return res.principal, res.err
	case <-ctx.Done():
		c.log.Warn("scheme authentication timed out", "scheme", e.scheme)
		return nil, ErrDeclined
	}
}
