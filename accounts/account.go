// Package accounts loads and validates the set of configured vendor accounts,
// including legacy single-account configs which it normalizes into the
// multi-account shape.
package accounts

// Account is one configured vendor account. Accounts are immutable after
// load, except SteamID, which the registry fills in after the first
// successful login when the config predates multi-account support.
type Account struct {
	Name           string `json:"name"`
	SteamUsername  string `json:"steam_username"`
	SteamPassword  string `json:"steam_password"`
	SharedSecret   string `json:"shared_secret"`   // Seed for the time-based second factor
	IdentitySecret string `json:"identity_secret"` // Seed for trade confirmations
	SteamID        string `json:"steamid"`         // Provider identity, may be empty until first login
	Enabled        bool   `json:"enabled"`
}

// clone returns a copy the caller may read without holding the registry
// lock. All fields are value types.
func (a *Account) clone() *Account {
	c := *a
	return &c
}

// FileConfig is the on-disk account configuration shape. A file containing a
// flat single account (no accounts list) is the legacy format and is
// normalized to a one-element list on load.
type FileConfig struct {
	Accounts    []Account `json:"accounts"`
	MaxAccounts int       `json:"max_accounts"`

	// Legacy flat fields
	SteamUsername  string `json:"steam_username"`
	SteamPassword  string `json:"steam_password"`
	SharedSecret   string `json:"shared_secret"`
	IdentitySecret string `json:"identity_secret"`
}
