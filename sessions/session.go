// Package sessions is the concurrency core of the session manager: it holds
// at most one live handle per authenticated identity, serializes
// authentication attempts, and keeps sessions alive with a per-account
// background refresh scheduler.
package sessions

import (
	"time"

	"github.com/google/uuid"

	"github.com/jrsteele09/go-steam-sessions/accounts"
	"github.com/jrsteele09/go-steam-sessions/provider"
)

// State is the per-account authentication state.
type State string

const (
	// StateUnauthenticated - no live handle; the next Get or scheduler tick
	// runs the fallback chain.
	StateUnauthenticated State = "unauthenticated"

	// StateLive - a current handle exists and recently passed its liveness
	// check.
	StateLive State = "live"

	// StateDead - the fallback chain was exhausted. Not terminal: the
	// scheduler retries on its next adaptive tick.
	StateDead State = "dead"
)

// SessionHandle is a live, authenticated connection bound to one account
// identity. The ID exists for log correlation only.
type SessionHandle struct {
	ID       string          // Unique handle identifier (UUID)
	Identity string          // Provider-assigned account identifier
	Handle   provider.Handle // The provider's connection object
}

func newSessionHandle(identity string, handle provider.Handle) *SessionHandle {
	return &SessionHandle{
		ID:       uuid.New().String(),
		Identity: identity,
		Handle:   handle,
	}
}

// accountSession is the pool's per-account state. All fields are protected
// by the manager's mutex.
type accountSession struct {
	account   *accounts.Account
	state     State
	handle    *SessionHandle
	lastProbe time.Time // When the handle's liveness was last confirmed
	scheduler *refreshScheduler
}
