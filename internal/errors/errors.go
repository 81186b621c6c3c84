package errors

import (
	"errors"
)

// Common error types for the session manager
var (
	// Configuration errors - fatal at startup
	ErrInvalidConfig   = errors.New("invalid account configuration")
	ErrMissingField    = errors.New("missing required account field")
	ErrTooManyAccounts = errors.New("too many accounts configured")

	// Authentication errors - per account, non-fatal to the pool
	ErrAuthFailed      = errors.New("authentication failed")
	ErrNoAccountsLive  = errors.New("no accounts authenticated successfully")
	ErrAccountDisabled = errors.New("account is disabled")

	// Network errors - per fallback step, cause fallthrough to the next step
	ErrTransientNetwork = errors.New("transient network error")

	// Token errors
	ErrTokenExpired        = errors.New("access token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrNoCachedToken       = errors.New("no cached token")

	// General errors
	ErrAccountNotFound = errors.New("account not found")
	ErrShutdown        = errors.New("manager is shut down")
)
