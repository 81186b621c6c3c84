package tokencache

// Repo defines the interface for token cache storage operations.
//
// Records are keyed by the account's configured username, not its provider
// identity: the identity may not be known yet when the first record is saved.
type Repo interface {
	// Load retrieves the cached record for a username. A missing or
	// unreadable record returns errors.ErrNoCachedToken - the cache fails
	// open, never fatally.
	Load(username string) (*TokenRecord, error)

	// Save persists the record for a username, recomputing both expiry
	// fields from the tokens' embedded claims before writing. The write is
	// atomic: a concurrent Load never observes a partial record.
	Save(username string, record *TokenRecord) error
}
