package accounts_test

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-steam-sessions/accounts"
	apperrors "github.com/jrsteele09/go-steam-sessions/internal/errors"
)

func testAccount(name, username, identity string, enabled bool) accounts.Account {
	return accounts.Account{
		Name:           name,
		SteamUsername:  username,
		SteamPassword:  "password",
		SharedSecret:   "c2hhcmVk",
		IdentitySecret: "aWRlbnRpdHk=",
		SteamID:        identity,
		Enabled:        enabled,
	}
}

func TestNew_MultiAccount(t *testing.T) {
	cfg := accounts.FileConfig{
		Accounts: []accounts.Account{
			testAccount("First", "first_user", "76561198000000001", true),
			testAccount("Second", "second_user", "76561198000000002", true),
		},
	}

	registry, err := accounts.New(cfg, 5, zerolog.Nop())
	require.NoError(t, err)

	list := registry.List()
	require.Len(t, list, 2)
	require.Equal(t, "First", list[0].Name)
	require.Equal(t, "Second", list[1].Name)

	account, err := registry.Get("76561198000000002")
	require.NoError(t, err)
	require.Equal(t, "second_user", account.SteamUsername)
}

func TestNew_TooManyAccounts(t *testing.T) {
	cfg := accounts.FileConfig{
		Accounts: []accounts.Account{
			testAccount("First", "a", "1", true),
			testAccount("Second", "b", "2", true),
			testAccount("Third", "c", "3", true),
		},
		MaxAccounts: 2,
	}

	_, err := accounts.New(cfg, 5, zerolog.Nop())
	require.ErrorIs(t, err, apperrors.ErrTooManyAccounts)
}

func TestNew_MissingRequiredField(t *testing.T) {
	account := testAccount("Broken", "user", "1", true)
	account.SharedSecret = ""

	_, err := accounts.New(accounts.FileConfig{Accounts: []accounts.Account{account}}, 5, zerolog.Nop())
	require.ErrorIs(t, err, apperrors.ErrMissingField)
	require.Contains(t, err.Error(), "shared_secret")
}

func TestNew_DisabledAccountSkipsValidation(t *testing.T) {
	disabled := accounts.Account{Name: "Parked", Enabled: false}

	registry, err := accounts.New(accounts.FileConfig{Accounts: []accounts.Account{disabled}}, 5, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, registry.List(), 1)
	require.Empty(t, registry.Enabled())
}

func TestNew_LegacySingleAccount(t *testing.T) {
	cfg := accounts.FileConfig{
		SteamUsername:  "legacy_user",
		SteamPassword:  "password",
		SharedSecret:   "c2hhcmVk",
		IdentitySecret: "aWRlbnRpdHk=",
	}

	registry, err := accounts.New(cfg, 5, zerolog.Nop())
	require.NoError(t, err)

	list := registry.List()
	require.Len(t, list, 1)
	require.Equal(t, "Main Account", list[0].Name)
	require.Equal(t, "legacy_user", list[0].SteamUsername)
	require.Empty(t, list[0].SteamID)
	require.True(t, list[0].Enabled)

	// Not addressable by identity until the first login adopts one.
	_, err = registry.Get("")
	require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}

func TestAdopt_FillsIdentityAfterLogin(t *testing.T) {
	registry, err := accounts.New(accounts.FileConfig{
		SteamUsername: "legacy_user",
		SteamPassword: "password",
		SharedSecret:  "c2hhcmVk",
	}, 5, zerolog.Nop())
	require.NoError(t, err)

	registry.Adopt("legacy_user", "76561198000000009")

	found, err := registry.Get("76561198000000009")
	require.NoError(t, err)
	require.Equal(t, "legacy_user", found.SteamUsername)
	require.Equal(t, "76561198000000009", found.SteamID)
}

func TestAdopt_ReplacesStaleConfiguredIdentity(t *testing.T) {
	cfg := accounts.FileConfig{
		Accounts: []accounts.Account{testAccount("Main", "user", "76561198000000001", true)},
	}
	registry, err := accounts.New(cfg, 5, zerolog.Nop())
	require.NoError(t, err)

	registry.Adopt("user", "76561198000000042")

	_, err = registry.Get("76561198000000001")
	require.ErrorIs(t, err, apperrors.ErrAccountNotFound)

	found, err := registry.Get("76561198000000042")
	require.NoError(t, err)
	require.Equal(t, "user", found.SteamUsername)
}

func TestAdopt_SameIdentityIsNoOp(t *testing.T) {
	registry, err := accounts.New(accounts.FileConfig{
		Accounts: []accounts.Account{testAccount("Main", "user", "76561198000000001", true)},
	}, 5, zerolog.Nop())
	require.NoError(t, err)

	// Every successful re-authentication re-adopts the same identity, so the
	// steady-state path must not write while lookups read.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			registry.Adopt("user", "76561198000000001")
		}
	}()
	for i := 0; i < 1000; i++ {
		account, err := registry.Get("76561198000000001")
		require.NoError(t, err)
		require.Equal(t, "76561198000000001", account.SteamID)
	}
	wg.Wait()
}

func TestRegistry_LookupsReturnCopies(t *testing.T) {
	registry, err := accounts.New(accounts.FileConfig{
		Accounts: []accounts.Account{testAccount("Main", "user", "76561198000000001", true)},
	}, 5, zerolog.Nop())
	require.NoError(t, err)

	account, err := registry.Get("76561198000000001")
	require.NoError(t, err)
	account.SteamPassword = "scribbled"

	fresh, err := registry.Get("76561198000000001")
	require.NoError(t, err)
	require.Equal(t, "password", fresh.SteamPassword)

	registry.List()[0].Name = "scribbled"
	fresh, err = registry.Get("76561198000000001")
	require.NoError(t, err)
	require.Equal(t, "Main", fresh.Name)
}

func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()

	t.Run("valid file", func(t *testing.T) {
		content := `{
  "max_accounts": 3,
  "accounts": [
    {
      "name": "Main",
      "steam_username": "user",
      "steam_password": "password",
      "shared_secret": "c2hhcmVk",
      "identity_secret": "aWRlbnRpdHk=",
      "steamid": "76561198000000001",
      "enabled": true
    }
  ]
}`
		require.NoError(t, afero.WriteFile(fs, "/data/steam_accounts.json", []byte(content), 0o600))

		registry, err := accounts.LoadFile(fs, "/data/steam_accounts.json", 5, zerolog.Nop())
		require.NoError(t, err)
		require.Len(t, registry.List(), 1)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := accounts.LoadFile(fs, "/data/nope.json", 5, zerolog.Nop())
		require.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		require.NoError(t, afero.WriteFile(fs, "/data/bad.json", []byte("{"), 0o600))
		_, err := accounts.LoadFile(fs, "/data/bad.json", 5, zerolog.Nop())
		require.ErrorIs(t, err, apperrors.ErrInvalidConfig)
	})
}

func TestGetByUsername(t *testing.T) {
	registry, err := accounts.New(accounts.FileConfig{
		Accounts: []accounts.Account{testAccount("Main", "user", "1", true)},
	}, 5, zerolog.Nop())
	require.NoError(t, err)

	account, err := registry.GetByUsername("user")
	require.NoError(t, err)
	require.Equal(t, "Main", account.Name)

	_, err = registry.GetByUsername("ghost")
	require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}
