package sessions

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-steam-sessions/accounts"
	"github.com/jrsteele09/go-steam-sessions/guard"
	apperrors "github.com/jrsteele09/go-steam-sessions/internal/errors"
	"github.com/jrsteele09/go-steam-sessions/tokencache"
)

// stepOutcome tags the result of one fallback step. A skipped or failed step
// falls through to the next; only exhausting every step fails the attempt.
type stepOutcome int

const (
	stepSucceeded stepOutcome = iota
	stepSkipped
	stepFailed
)

// stepResult is the tagged result threaded through the ordered fallback
// steps, so the fallthrough logic is a plain loop over data rather than
// nested error handling.
type stepResult struct {
	outcome stepOutcome
	handle  *SessionHandle
	record  *tokencache.TokenRecord // nil when the step issued no new tokens
	err     error
}

func succeeded(handle *SessionHandle, record *tokencache.TokenRecord) stepResult {
	return stepResult{outcome: stepSucceeded, handle: handle, record: record}
}

func skipped(err error) stepResult {
	return stepResult{outcome: stepSkipped, err: err}
}

func failed(err error) stepResult {
	return stepResult{outcome: stepFailed, err: err}
}

type fallbackStep struct {
	name string
	run  func(ctx context.Context, account *accounts.Account) stepResult
}

// runFallbackChain attempts the ordered steps until one succeeds. Panics
// inside a step are recovered and treated as that step having failed, so a
// misbehaving provider never takes down a caller or the scheduler loop.
func (m *Manager) runFallbackChain(ctx context.Context, account *accounts.Account, steps []fallbackStep) (result stepResult) {
	for _, step := range steps {
		result = m.runStep(ctx, account, step)
		switch result.outcome {
		case stepSucceeded:
			return result
		case stepSkipped:
			m.log.Debug().Str("account", account.Name).Str("step", step.name).Err(result.err).Msg("Fallback step not applicable")
		case stepFailed:
			m.log.Warn().Str("account", account.Name).Str("step", step.name).Err(result.err).Msg("Fallback step failed")
		}
	}
	return failed(errors.Wrapf(apperrors.ErrAuthFailed, "[runFallbackChain] account %s: all fallback steps exhausted", account.Name))
}

func (m *Manager) runStep(ctx context.Context, account *accounts.Account, step fallbackStep) (result stepResult) {
	defer func() {
		if r := recover(); r != nil {
			result = failed(errors.Errorf("[runStep] panic in %s step: %v", step.name, r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, m.providerTimeout)
	defer cancel()
	return step.run(ctx, account)
}

// fullChain is the complete fallback chain: cached access token, refresh
// token exchange, full credential login.
func (m *Manager) fullChain() []fallbackStep {
	return append([]fallbackStep{{name: "cached-token", run: m.stepCachedToken}}, m.reauthChain()...)
}

// reauthChain skips the cached-token step; used when the cached token is
// already known bad (failed liveness probe, scheduler refresh).
func (m *Manager) reauthChain() []fallbackStep {
	return []fallbackStep{
		{name: "refresh-token", run: m.stepRefreshToken},
		{name: "credential-login", run: m.stepCredentialLogin},
	}
}

// stepCachedToken restores a session from a cached, unexpired access token
// with a single verification call. No new token material is issued.
func (m *Manager) stepCachedToken(ctx context.Context, account *accounts.Account) stepResult {
	record, err := m.cache.Load(account.SteamUsername)
	if err != nil {
		return skipped(err)
	}
	if record.Identity == "" {
		return skipped(errors.New("cached record has no identity"))
	}
	if !record.AccessTokenValid(m.safetyMargin) {
		return skipped(errors.Wrap(apperrors.ErrTokenExpired, "[stepCachedToken] inside safety margin"))
	}

	handle, err := m.provider.Verify(ctx, record.Identity, record.AccessToken)
	if err != nil {
		return failed(errors.Wrap(err, "[stepCachedToken] provider.Verify"))
	}
	return succeeded(newSessionHandle(handle.Identity(), handle), nil)
}

// stepRefreshToken exchanges the cached refresh token for new token material
// in one round trip.
func (m *Manager) stepRefreshToken(ctx context.Context, account *accounts.Account) stepResult {
	record, err := m.cache.Load(account.SteamUsername)
	if err != nil {
		return skipped(err)
	}
	if !record.RefreshTokenValid() {
		return skipped(errors.Wrap(apperrors.ErrRefreshTokenExpired, "[stepRefreshToken] no usable refresh token"))
	}

	handle, issued, err := m.provider.Refresh(ctx, record.RefreshToken, record.Identity)
	if err != nil {
		return failed(errors.Wrap(err, "[stepRefreshToken] provider.Refresh"))
	}
	return succeeded(newSessionHandle(handle.Identity(), handle), issued)
}

// stepCredentialLogin is the heaviest path: username, password and a guard
// code derived from the stored seed. Always issues both tokens on success.
func (m *Manager) stepCredentialLogin(ctx context.Context, account *accounts.Account) stepResult {
	code, err := guard.Code(account.SharedSecret)
	if err != nil {
		return failed(errors.Wrap(err, "[stepCredentialLogin] guard.Code"))
	}

	handle, issued, err := m.provider.Login(ctx, account.SteamUsername, account.SteamPassword, code)
	if err != nil {
		return failed(errors.Wrap(err, "[stepCredentialLogin] provider.Login"))
	}
	if issued == nil {
		return failed(errors.New("[stepCredentialLogin] provider returned no token material"))
	}
	return succeeded(newSessionHandle(handle.Identity(), handle), issued)
}
