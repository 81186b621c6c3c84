package accounts

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	apperrors "github.com/jrsteele09/go-steam-sessions/internal/errors"
)

const legacyAccountName = "Main Account"

// Registry holds the validated, normalized account list. Lookups are safe
// for concurrent use; the only mutation after construction is Adopt, which
// fills in a provider identity learned at first login.
type Registry struct {
	ordered    []*Account
	byIdentity map[string]*Account
	lock       sync.RWMutex
	log        zerolog.Logger
}

// New validates an already-deserialized account configuration and builds a
// registry from it. maxAccounts is the fallback cap when the config does not
// set its own max_accounts.
func New(cfg FileConfig, maxAccounts int, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		byIdentity: make(map[string]*Account),
		log:        logger.With().Str("component", "accounts").Logger(),
	}

	list := cfg.Accounts
	if list == nil {
		// Legacy single-account format - convert to the multi-account shape.
		// The identity stays empty until the first successful login.
		r.log.Info().Msg("Detected legacy single-account config, converting to multi-account format")
		list = []Account{{
			Name:           legacyAccountName,
			SteamUsername:  cfg.SteamUsername,
			SteamPassword:  cfg.SteamPassword,
			SharedSecret:   cfg.SharedSecret,
			IdentitySecret: cfg.IdentitySecret,
			Enabled:        true,
		}}
	}

	if cfg.MaxAccounts > 0 {
		maxAccounts = cfg.MaxAccounts
	}
	if len(list) > maxAccounts {
		return nil, errors.Wrapf(apperrors.ErrTooManyAccounts, "[accounts.New] %d configured, maximum %d", len(list), maxAccounts)
	}

	for i := range list {
		account := list[i]
		if err := validate(&account, i); err != nil {
			return nil, err
		}
		r.ordered = append(r.ordered, &account)
		if account.SteamID != "" {
			r.byIdentity[account.SteamID] = &account
		}
	}

	r.log.Info().Int("accounts", len(r.ordered)).Msg("Loaded account configuration")
	return r, nil
}

// LoadFile reads and decodes the account configuration file, then builds a
// registry from it.
func LoadFile(fs afero.Fs, path string, maxAccounts int, logger zerolog.Logger) (*Registry, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "[accounts.LoadFile] reading %s", path)
	}

	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(apperrors.ErrInvalidConfig, "[accounts.LoadFile] %s: %v", path, err)
	}
	return New(cfg, maxAccounts, logger)
}

// validate enforces required fields for enabled accounts. Disabled accounts
// may be partially configured.
func validate(account *Account, index int) error {
	if !account.Enabled {
		return nil
	}
	required := map[string]string{
		"steam_username": account.SteamUsername,
		"steam_password": account.SteamPassword,
		"shared_secret":  account.SharedSecret,
	}
	for field, value := range required {
		if value == "" {
			return errors.Wrapf(apperrors.ErrMissingField, "[accounts.validate] account %d (%s): %s", index, account.Name, field)
		}
	}
	return nil
}

// List returns a copy of every configured account in registry order.
func (r *Registry) List() []*Account {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*Account, 0, len(r.ordered))
	for _, account := range r.ordered {
		list = append(list, account.clone())
	}
	return list
}

// Enabled returns copies of the enabled accounts in registry order.
func (r *Registry) Enabled() []*Account {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var enabled []*Account
	for _, account := range r.ordered {
		if account.Enabled {
			enabled = append(enabled, account.clone())
		}
	}
	return enabled
}

// Get returns a copy of the account for a provider identity.
func (r *Registry) Get(identity string) (*Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	account, ok := r.byIdentity[identity]
	if !ok {
		return nil, errors.Wrapf(apperrors.ErrAccountNotFound, "[Registry.Get] identity %s", identity)
	}
	return account.clone(), nil
}

// GetByUsername returns a copy of the account with the given configured
// username.
func (r *Registry) GetByUsername(username string) (*Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	account := r.findLocked(username)
	if account == nil {
		return nil, errors.Wrapf(apperrors.ErrAccountNotFound, "[Registry.GetByUsername] username %s", username)
	}
	return account.clone(), nil
}

// Adopt records the provider-returned identity for an account. The provider's
// identity is authoritative: any stale mapping under a previously configured
// identity is removed in the same critical section. Adopting an identity the
// account already carries is a no-op, so the steady-state re-authentication
// path never writes.
func (r *Registry) Adopt(username, identity string) {
	if identity == "" {
		return
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	account := r.findLocked(username)
	if account == nil || account.SteamID == identity {
		return
	}

	if account.SteamID != "" {
		r.log.Warn().
			Str("configured", account.SteamID).
			Str("actual", identity).
			Str("account", account.Name).
			Msg("Configured identity differs from provider identity, using provider value")
		delete(r.byIdentity, account.SteamID)
	}
	account.SteamID = identity
	r.byIdentity[identity] = account
}

// findLocked resolves a configured username to the registry's own record.
// Must be called with the registry lock held.
func (r *Registry) findLocked(username string) *Account {
	for _, account := range r.ordered {
		if account.SteamUsername == username {
			return account
		}
	}
	return nil
}
