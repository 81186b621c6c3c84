// Package provider defines the identity-provider collaborator interface. The
// session pool drives these operations; the wire protocol behind them is
// somebody else's problem.
package provider

import (
	"context"

	"github.com/jrsteele09/go-steam-sessions/tokencache"
)

// Handle is an opaque, live connection bound to one account identity.
// At most one handle is current per identity at any instant; the session
// pool owns that invariant.
type Handle interface {
	// Identity returns the provider-assigned account identifier this handle
	// is authenticated as. Authoritative over any configured value.
	Identity() string
}

// IdentityProvider performs the remote authentication operations. Every call
// is blocking I/O and must respect the context's deadline so the pool's
// mutex is never held indefinitely.
type IdentityProvider interface {
	// Verify checks a cached access token with a single lightweight call and
	// returns a live handle on success. No token material is issued.
	Verify(ctx context.Context, identity, accessToken string) (Handle, error)

	// Refresh exchanges a refresh token for fresh token material in one
	// round trip. The returned record carries the authoritative identity.
	Refresh(ctx context.Context, refreshToken, identity string) (Handle, *tokencache.TokenRecord, error)

	// Login performs a full credential login with a time-based second
	// factor. Heaviest path; always issues both tokens on success.
	Login(ctx context.Context, username, password, guardCode string) (Handle, *tokencache.TokenRecord, error)

	// IsAlive is the cheap liveness probe for an existing handle, distinct
	// from a full re-authentication.
	IsAlive(ctx context.Context, handle Handle) bool
}
