package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/jrsteele09/go-steam-sessions/accounts"
	apperrors "github.com/jrsteele09/go-steam-sessions/internal/errors"
	"github.com/jrsteele09/go-steam-sessions/notify"
	"github.com/jrsteele09/go-steam-sessions/provider"
	"github.com/jrsteele09/go-steam-sessions/tokencache"
)

const (
	// defaultSafetyMargin - a cached access token is only trusted when it
	// has at least this much lifetime left.
	defaultSafetyMargin = 60 * time.Second

	// defaultRefreshMargin - the scheduler refreshes proactively once the
	// access token has less than this remaining.
	defaultRefreshMargin = time.Hour

	// defaultLivenessRecheck - Get trusts the cached alive flag for this
	// long before probing the provider again.
	defaultLivenessRecheck = 60 * time.Second

	defaultProviderTimeout = 90 * time.Second
	defaultStartupWorkers  = 4
)

// Manager is the session pool. One manager instance owns the identity to
// handle map; a single mutex serializes every authentication attempt and
// state mutation, so no two callers ever race to authenticate the same
// account and no caller observes a half-updated record.
//
// The lock is intentionally coarse: remote authentication runs while it is
// held, stalling lookups for other accounts for the duration of one login.
// Authentications happen on a minutes-to-hours cadence, caller lookups on a
// seconds cadence, so the trade is acceptable.
type Manager struct {
	registry *accounts.Registry
	cache    tokencache.Repo
	provider provider.IdentityProvider
	notifier notify.Notifier
	log      zerolog.Logger

	providerTimeout  time.Duration
	safetyMargin     time.Duration
	refreshMargin    time.Duration
	livenessRecheck  time.Duration
	startupWorkers   int
	schedulerEnabled bool
	nowTime          func() time.Time // Injectable for testing

	lock       sync.Mutex
	sessions   map[string]*accountSession // Keyed by configured username (stable across identity adoption)
	byIdentity map[string]string          // Provider identity -> username
	schedWG    sync.WaitGroup
	shutdown   bool
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) { m.nowTime = nowFunc }
}

// WithProviderTimeout bounds every remote authentication call.
func WithProviderTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.providerTimeout = d }
}

// WithLivenessRecheck sets how long Get trusts the cached alive flag.
func WithLivenessRecheck(d time.Duration) ManagerOption {
	return func(m *Manager) { m.livenessRecheck = d }
}

// WithSafetyMargin sets the minimum remaining lifetime for a cached access
// token to be trusted.
func WithSafetyMargin(d time.Duration) ManagerOption {
	return func(m *Manager) { m.safetyMargin = d }
}

// WithStartupWorkers caps LoginAll's worker fan-out.
func WithStartupWorkers(n int) ManagerOption {
	return func(m *Manager) { m.startupWorkers = n }
}

// WithSchedulerDisabled turns off the background refresh schedulers. Tests
// drive refresh cycles by hand.
func WithSchedulerDisabled() ManagerOption {
	return func(m *Manager) { m.schedulerEnabled = false }
}

// NewManager initializes a session pool with required dependencies. The
// notifier may be nil, in which case notifications go to the log.
func NewManager(
	registry *accounts.Registry,
	cache tokencache.Repo,
	identityProvider provider.IdentityProvider,
	notifier notify.Notifier,
	logger zerolog.Logger,
	options ...ManagerOption,
) (*Manager, error) {
	if registry == nil {
		return nil, errors.New("[NewManager] registry is required")
	}
	if cache == nil {
		return nil, errors.New("[NewManager] token cache is required")
	}
	if identityProvider == nil {
		return nil, errors.New("[NewManager] identity provider is required")
	}

	componentLog := logger.With().Str("component", "sessions").Logger()
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}

	m := &Manager{
		registry:         registry,
		cache:            cache,
		provider:         identityProvider,
		notifier:         notifier,
		log:              componentLog,
		providerTimeout:  defaultProviderTimeout,
		safetyMargin:     defaultSafetyMargin,
		refreshMargin:    defaultRefreshMargin,
		livenessRecheck:  defaultLivenessRecheck,
		startupWorkers:   defaultStartupWorkers,
		schedulerEnabled: true,
		nowTime:          time.Now,
		sessions:         make(map[string]*accountSession),
		byIdentity:       make(map[string]string),
	}

	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// LoginAll runs the fallback chain once for every enabled account, in
// registry order, and returns how many reached a live session. Accounts are
// processed by a bounded worker pool; each account's chain still runs as one
// critical section under the manager mutex, so a concurrent early Get cannot
// trigger a duplicate login.
//
// Initialization fails only when no account succeeds.
func (m *Manager) LoginAll(ctx context.Context) (int, error) {
	enabled := m.registry.Enabled()
	m.log.Info().Int("accounts", len(enabled)).Msg("Logging in to all enabled accounts")

	var countLock sync.Mutex
	successCount := 0

	workers := pool.New().WithMaxGoroutines(m.startupWorkers)
	for _, account := range enabled {
		workers.Go(func() {
			m.lock.Lock()
			defer m.lock.Unlock()
			if m.shutdown {
				return
			}

			session := m.sessionLocked(account)
			if session.state == StateLive {
				// A concurrent Get beat us to it.
				countLock.Lock()
				successCount++
				countLock.Unlock()
				return
			}

			if err := m.authenticateLocked(ctx, session, m.fullChain()); err != nil {
				m.log.Error().Err(err).Str("account", account.Name).Msg("Startup login failed")
				return
			}
			countLock.Lock()
			successCount++
			countLock.Unlock()
		})
	}
	workers.Wait()

	if successCount == 0 {
		return 0, errors.Wrap(apperrors.ErrNoAccountsLive, "[Manager.LoginAll]")
	}
	m.log.Info().Int("succeeded", successCount).Int("enabled", len(enabled)).Msg("Startup login complete")
	return successCount, nil
}

// Get returns a live handle for the identity. A cached handle whose liveness
// was confirmed recently is returned as-is; otherwise the handle is probed,
// and on a dead or missing session the fallback chain runs synchronously
// under the pool mutex.
func (m *Manager) Get(ctx context.Context, identity string) (*SessionHandle, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.shutdown {
		return nil, errors.Wrap(apperrors.ErrShutdown, "[Manager.Get]")
	}

	session, err := m.lookupLocked(identity)
	if err != nil {
		return nil, err
	}

	if session.state == StateLive {
		if m.nowTime().Sub(session.lastProbe) < m.livenessRecheck {
			return session.handle, nil
		}
		if m.probeAlive(ctx, session.handle.Handle) {
			session.lastProbe = m.nowTime()
			return session.handle, nil
		}
		m.log.Info().Str("account", session.account.Name).Msg("Session failed liveness probe, re-authenticating")
		session.state = StateUnauthenticated
		session.handle = nil
	}

	if err := m.authenticateLocked(ctx, session, m.fullChain()); err != nil {
		return nil, err
	}
	return session.handle, nil
}

// All returns a snapshot of the currently alive handles, keyed by identity.
// Every handle is probed; handles that silently died are dropped from the
// snapshot and their accounts fall back to unauthenticated.
func (m *Manager) All(ctx context.Context) map[string]*SessionHandle {
	m.lock.Lock()
	defer m.lock.Unlock()

	alive := make(map[string]*SessionHandle)
	for _, session := range m.sessions {
		if session.state != StateLive {
			continue
		}
		if !m.probeAlive(ctx, session.handle.Handle) {
			m.log.Info().Str("account", session.account.Name).Msg("Dropping dead session from snapshot")
			session.state = StateUnauthenticated
			session.handle = nil
			continue
		}
		session.lastProbe = m.nowTime()
		alive[session.handle.Identity] = session.handle
	}
	return alive
}

// AccountInfo returns the configured account for an identity.
func (m *Manager) AccountInfo(identity string) (*accounts.Account, error) {
	return m.registry.Get(identity)
}

// Shutdown stops every refresh scheduler and clears the pool. In-flight
// authentication attempts finish on their own bounded timeout; they are not
// force-cancelled.
func (m *Manager) Shutdown() {
	m.lock.Lock()
	if m.shutdown {
		m.lock.Unlock()
		return
	}
	m.shutdown = true
	for _, session := range m.sessions {
		if session.scheduler != nil {
			session.scheduler.requestStop()
		}
	}
	m.sessions = make(map[string]*accountSession)
	m.byIdentity = make(map[string]string)
	m.lock.Unlock()

	m.schedWG.Wait()
	m.log.Info().Msg("Session pool shut down")
}

// lookupLocked resolves an identity to its session, creating the session
// state for a registered account seen for the first time.
func (m *Manager) lookupLocked(identity string) (*accountSession, error) {
	if username, ok := m.byIdentity[identity]; ok {
		if session, ok := m.sessions[username]; ok {
			return session, nil
		}
	}

	account, err := m.registry.Get(identity)
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrAccountNotFound, "[Manager.lookupLocked] identity %s", identity)
	}
	if !account.Enabled {
		return nil, errors.Wrapf(apperrors.ErrAccountDisabled, "[Manager.lookupLocked] account %s", account.Name)
	}
	return m.sessionLocked(account), nil
}

// sessionLocked returns the session state for an account, creating it on
// first use.
func (m *Manager) sessionLocked(account *accounts.Account) *accountSession {
	if session, ok := m.sessions[account.SteamUsername]; ok {
		return session
	}
	session := &accountSession{
		account: account,
		state:   StateUnauthenticated,
	}
	m.sessions[account.SteamUsername] = session
	if account.SteamID != "" {
		m.byIdentity[account.SteamID] = account.SteamUsername
	}
	return session
}

// authenticateLocked runs a fallback chain for the session and commits the
// outcome. Must be called with the manager mutex held: the whole
// check-authenticate-update sequence is one critical section.
func (m *Manager) authenticateLocked(ctx context.Context, session *accountSession, steps []fallbackStep) error {
	account := session.account

	result := m.runFallbackChain(ctx, account, steps)
	if result.outcome != stepSucceeded {
		session.state = StateDead
		session.handle = nil
		return result.err
	}

	// The provider-returned identity is authoritative. Replace any mapping
	// under a stale configured identity atomically, within this critical
	// section.
	identity := result.handle.Identity
	if previous := account.SteamID; previous != "" && previous != identity {
		delete(m.byIdentity, previous)
	}
	m.registry.Adopt(account.SteamUsername, identity)
	account.SteamID = identity // The pool's private copy, guarded by the manager mutex
	m.byIdentity[identity] = account.SteamUsername

	if result.record != nil {
		result.record.Identity = identity
		if err := m.cache.Save(account.SteamUsername, result.record); err != nil {
			// The session is live regardless; a cold start will just have
			// to log in again.
			m.log.Warn().Err(err).Str("account", account.Name).Msg("Failed to persist token record")
		}
	}

	session.handle = result.handle
	session.state = StateLive
	session.lastProbe = m.nowTime()

	m.log.Info().
		Str("account", account.Name).
		Str("identity", identity).
		Str("handle_id", result.handle.ID).
		Msg("Account authenticated")

	if m.schedulerEnabled && session.scheduler == nil {
		m.startSchedulerLocked(session)
	}
	return nil
}

// RefreshAccountSessions runs one refresh pass over every account the pool
// has seen: dead or silently-died sessions are recovered, near-expiry tokens
// are refreshed proactively. The schedulers run the same pass per account on
// their adaptive ticks; this entry point exists for on-demand sweeps.
func (m *Manager) RefreshAccountSessions(ctx context.Context) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.shutdown {
		return
	}
	for _, session := range m.sessions {
		m.refreshSessionLocked(ctx, session)
	}
}

// refreshSessionLocked is one account's refresh pass. On an exhausted
// fallback chain the account is marked dead and a notification goes out;
// there is no spin-retry - the next adaptive tick picks it up. Must be
// called with the manager mutex held.
func (m *Manager) refreshSessionLocked(ctx context.Context, session *accountSession) {
	accountLog := m.log.With().Str("account", session.account.Name).Logger()

	needsRecovery := session.state != StateLive
	if session.state == StateLive && !m.probeAlive(ctx, session.handle.Handle) {
		accountLog.Info().Msg("Session failed liveness probe")
		session.state = StateUnauthenticated
		session.handle = nil
		needsRecovery = true
	}

	if !needsRecovery {
		record := m.loadRecordLocked(session.account)
		if record != nil && record.AccessTokenRemaining() > m.refreshMargin {
			// Healthy and not near expiry; nothing to do this pass.
			return
		}
		accountLog.Info().Msg("Access token near expiry, refreshing proactively")
	} else {
		accountLog.Info().Msg("Recovering session")
	}

	// The cached access token is already known bad (dead session) or about
	// to expire, so the chain starts at the refresh-token step.
	if err := m.authenticateLocked(ctx, session, m.reauthChain()); err != nil {
		accountLog.Error().Err(err).Msg("Refresh exhausted all fallback steps")
		if notifyErr := m.notifier.Notify(
			"Steam session refresh failed",
			fmt.Sprintf("Account %s: automatic refresh and relogin both failed. Check the account or the network. (%s)",
				session.account.Name, err),
		); notifyErr != nil {
			accountLog.Warn().Err(notifyErr).Msg("Failed to deliver failure notification")
		}
	}
}

// probeAlive runs a liveness probe under the same deadline as every other
// provider call. The probe runs while the manager mutex is held, so a hung
// remote must never stall it indefinitely.
func (m *Manager) probeAlive(ctx context.Context, handle provider.Handle) bool {
	ctx, cancel := context.WithTimeout(ctx, m.providerTimeout)
	defer cancel()
	return m.provider.IsAlive(ctx, handle)
}

// loadRecordLocked fetches the cached token record for scheduling decisions.
func (m *Manager) loadRecordLocked(account *accounts.Account) *tokencache.TokenRecord {
	record, err := m.cache.Load(account.SteamUsername)
	if err != nil {
		return nil
	}
	return record
}
