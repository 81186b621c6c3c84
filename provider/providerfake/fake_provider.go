// Package fakeprovider is a scripted IdentityProvider for tests: each
// operation's outcome is programmable and every call is counted.
package fakeprovider

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-steam-sessions/provider"
	"github.com/jrsteele09/go-steam-sessions/tokencache"
)

var _ provider.IdentityProvider = (*FakeProvider)(nil)

// FakeHandle is the scripted session handle. Alive is flipped by tests to
// simulate a handle that silently died.
type FakeHandle struct {
	ID    string
	Alive bool
}

func (h *FakeHandle) Identity() string { return h.ID }

// FakeProvider scripts authentication outcomes per operation. The zero
// outcome is success; set the Err fields to force failures.
type FakeProvider struct {
	lock sync.Mutex

	// Scripted outcomes
	VerifyErr  error
	RefreshErr error
	LoginErr   error

	// Identity returned by Login (and stamped on issued records). Refresh
	// echoes the identity it was called with unless this is set.
	LoginIdentity string

	// Token material stamped on records issued by Refresh and Login.
	IssuedAccessToken  string
	IssuedRefreshToken string

	// LoginDelay makes Login slow, for duplicate-login races.
	LoginDelay time.Duration

	// ProbeHangs makes IsAlive block until the caller's context expires,
	// then report the handle dead. Simulates a hung remote probe.
	ProbeHangs bool

	// Call counters
	VerifyCalls  int
	RefreshCalls int
	LoginCalls   int
	IsAliveCalls int

	handles []*FakeHandle
}

func New() *FakeProvider {
	return &FakeProvider{
		IssuedAccessToken:  "issued-access-token",
		IssuedRefreshToken: "issued-refresh-token",
	}
}

func (fp *FakeProvider) Verify(_ context.Context, identity, _ string) (provider.Handle, error) {
	fp.lock.Lock()
	defer fp.lock.Unlock()

	fp.VerifyCalls++
	if fp.VerifyErr != nil {
		return nil, fp.VerifyErr
	}
	return fp.newHandle(identity), nil
}

func (fp *FakeProvider) Refresh(_ context.Context, _, identity string) (provider.Handle, *tokencache.TokenRecord, error) {
	fp.lock.Lock()
	defer fp.lock.Unlock()

	fp.RefreshCalls++
	if fp.RefreshErr != nil {
		return nil, nil, fp.RefreshErr
	}
	if fp.LoginIdentity != "" {
		identity = fp.LoginIdentity
	}
	return fp.newHandle(identity), fp.newRecord(identity), nil
}

func (fp *FakeProvider) Login(_ context.Context, _, _, _ string) (provider.Handle, *tokencache.TokenRecord, error) {
	fp.lock.Lock()
	delay := fp.LoginDelay
	fp.LoginCalls++
	loginErr := fp.LoginErr
	fp.lock.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if loginErr != nil {
		return nil, nil, loginErr
	}

	fp.lock.Lock()
	defer fp.lock.Unlock()
	identity := fp.LoginIdentity
	if identity == "" {
		identity = "76561198000000001"
	}
	return fp.newHandle(identity), fp.newRecord(identity), nil
}

func (fp *FakeProvider) IsAlive(ctx context.Context, handle provider.Handle) bool {
	fp.lock.Lock()
	fp.IsAliveCalls++
	hangs := fp.ProbeHangs
	fp.lock.Unlock()

	if hangs {
		<-ctx.Done()
		return false
	}

	fp.lock.Lock()
	defer fp.lock.Unlock()
	fake, ok := handle.(*FakeHandle)
	return ok && fake.Alive
}

// KillAll marks every issued handle dead, simulating remote invalidation.
func (fp *FakeProvider) KillAll() {
	fp.lock.Lock()
	defer fp.lock.Unlock()

	for _, handle := range fp.handles {
		handle.Alive = false
	}
}

// Counts returns (verify, refresh, login) call counts.
func (fp *FakeProvider) Counts() (int, int, int) {
	fp.lock.Lock()
	defer fp.lock.Unlock()

	return fp.VerifyCalls, fp.RefreshCalls, fp.LoginCalls
}

func (fp *FakeProvider) newHandle(identity string) *FakeHandle {
	handle := &FakeHandle{ID: identity, Alive: true}
	fp.handles = append(fp.handles, handle)
	return handle
}

func (fp *FakeProvider) newRecord(identity string) *tokencache.TokenRecord {
	return &tokencache.TokenRecord{
		Identity:     identity,
		AccessToken:  fp.IssuedAccessToken,
		RefreshToken: fp.IssuedRefreshToken,
	}
}
