// Package tokencache persists each account's last-known token material and
// its expiry horizon, so a restart can resume a session without a fresh login.
package tokencache

import (
	"encoding/json"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// TokenRecord holds the cached access/refresh tokens for one account together
// with their expiry times. Expiries are always derived from the tokens' own
// embedded exp claims, never from wall-clock heuristics.
type TokenRecord struct {
	Identity        string    // Provider-assigned account identifier
	AccessToken     string    // Short-lived bearer token
	RefreshToken    string    // Long-lived token exchanged for new access tokens
	AccessTokenExp  time.Time // Zero when the access token carries no exp claim
	RefreshTokenExp time.Time // Zero when the refresh token carries no exp claim
}

// NewRecord builds a TokenRecord from raw token material, deriving both
// expiry fields from the tokens' embedded claims.
func NewRecord(identity, accessToken, refreshToken string) *TokenRecord {
	r := &TokenRecord{
		Identity:     identity,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	r.DeriveExpiries()
	return r
}

// DeriveExpiries recomputes both expiry fields from the tokens' exp claims.
// Unparseable tokens leave a zero expiry, which downstream code treats as
// already expired.
func (r *TokenRecord) DeriveExpiries() {
	r.AccessTokenExp = tokenExpiry(r.AccessToken)
	r.RefreshTokenExp = tokenExpiry(r.RefreshToken)
}

// AccessTokenValid reports whether the access token is usable with at least
// the given safety margin of remaining lifetime.
func (r *TokenRecord) AccessTokenValid(margin time.Duration) bool {
	if r == nil || r.AccessToken == "" || r.AccessTokenExp.IsZero() {
		return false
	}
	return r.AccessTokenExp.Sub(NowTimeFunc()) > margin
}

// RefreshTokenValid reports whether the refresh token exists and has not
// expired. A missing exp claim is treated as not expired, matching providers
// that issue opaque refresh tokens.
func (r *TokenRecord) RefreshTokenValid() bool {
	if r == nil || r.RefreshToken == "" {
		return false
	}
	if r.RefreshTokenExp.IsZero() {
		return true
	}
	return r.RefreshTokenExp.After(NowTimeFunc())
}

// AccessTokenRemaining returns the remaining access-token lifetime. Negative
// or zero means expired; a zero expiry reports zero remaining.
func (r *TokenRecord) AccessTokenRemaining() time.Duration {
	if r == nil || r.AccessTokenExp.IsZero() {
		return 0
	}
	return r.AccessTokenExp.Sub(NowTimeFunc())
}

// tokenExpiry extracts the exp claim from a JWT without verifying its
// signature. The token is the provider's own statement of its lifetime; we
// only read it, we never trust it for authorization decisions.
func tokenExpiry(rawToken string) time.Time {
	if rawToken == "" {
		return time.Time{}
	}
	unverified, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	claims, ok := unverified.Claims.(jwtlib.MapClaims)
	if !ok {
		return time.Time{}
	}
	exp, ok := claims["exp"].(float64)
	if !ok || exp == 0 {
		return time.Time{}
	}
	return time.Unix(int64(exp), 0)
}

// storedRecord is the persisted on-disk shape of a TokenRecord. Timestamps
// are epoch seconds, with human-readable renderings written alongside for
// operators inspecting the cache by hand.
type storedRecord struct {
	Identity                 string `json:"identity"`
	AccessToken              string `json:"access_token"`
	RefreshToken             string `json:"refresh_token"`
	AccessTokenExpTimestamp  int64  `json:"access_token_exp_timestamp"`
	RefreshTokenExpTimestamp int64  `json:"refresh_token_exp_timestamp"`
	AccessTokenExpReadable   string `json:"access_token_exp_readable,omitempty"`
	RefreshTokenExpReadable  string `json:"refresh_token_exp_readable,omitempty"`
}

func encodeRecord(r *TokenRecord) ([]byte, error) {
	stored := storedRecord{
		Identity:     r.Identity,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
	if !r.AccessTokenExp.IsZero() {
		stored.AccessTokenExpTimestamp = r.AccessTokenExp.Unix()
		stored.AccessTokenExpReadable = r.AccessTokenExp.Format(time.DateTime)
	}
	if !r.RefreshTokenExp.IsZero() {
		stored.RefreshTokenExpTimestamp = r.RefreshTokenExp.Unix()
		stored.RefreshTokenExpReadable = r.RefreshTokenExp.Format(time.DateTime)
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "[tokencache.encodeRecord] json.MarshalIndent")
	}
	return data, nil
}

func decodeRecord(data []byte) (*TokenRecord, error) {
	var stored storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, errors.Wrap(err, "[tokencache.decodeRecord] json.Unmarshal")
	}
	r := &TokenRecord{
		Identity:     stored.Identity,
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
	}
	if stored.AccessTokenExpTimestamp != 0 {
		r.AccessTokenExp = time.Unix(stored.AccessTokenExpTimestamp, 0)
	}
	if stored.RefreshTokenExpTimestamp != 0 {
		r.RefreshTokenExp = time.Unix(stored.RefreshTokenExpTimestamp, 0)
	}
	return r, nil
}
