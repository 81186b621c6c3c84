package tokencache_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-steam-sessions/internal/errors"
	"github.com/jrsteele09/go-steam-sessions/tokencache"
)

func newTestFileRepo(t *testing.T) (*tokencache.FileRepo, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	repo, err := tokencache.NewFileRepo(fs, "/data/session", zerolog.Nop())
	require.NoError(t, err)
	return repo, fs
}

func TestFileRepo_RoundTrip(t *testing.T) {
	repo, _ := newTestFileRepo(t)

	accessExp := time.Now().Add(6 * time.Hour).Truncate(time.Second)
	refreshExp := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	saved := tokencache.NewRecord("76561198000000001", makeJWT(t, accessExp), makeJWT(t, refreshExp))

	require.NoError(t, repo.Save("TradeBot", saved))

	loaded, err := repo.Load("TradeBot")
	require.NoError(t, err)
	require.Equal(t, saved.Identity, loaded.Identity)
	require.Equal(t, saved.AccessToken, loaded.AccessToken)
	require.Equal(t, saved.RefreshToken, loaded.RefreshToken)
	require.True(t, saved.AccessTokenExp.Equal(loaded.AccessTokenExp))
	require.True(t, saved.RefreshTokenExp.Equal(loaded.RefreshTokenExp))
}

func TestFileRepo_LoadMissing(t *testing.T) {
	repo, _ := newTestFileRepo(t)

	_, err := repo.Load("nobody")
	require.ErrorIs(t, err, apperrors.ErrNoCachedToken)
}

func TestFileRepo_CorruptFileFailsOpen(t *testing.T) {
	repo, fs := newTestFileRepo(t)

	err := afero.WriteFile(fs, "/data/session/steam_account_tradebot.json", []byte("{not json"), 0o600)
	require.NoError(t, err)

	_, err = repo.Load("TradeBot")
	require.ErrorIs(t, err, apperrors.ErrNoCachedToken)
}

func TestFileRepo_UsernameKeyIsCaseInsensitive(t *testing.T) {
	repo, _ := newTestFileRepo(t)

	record := tokencache.NewRecord("id", makeJWT(t, time.Now().Add(time.Hour)), "")
	require.NoError(t, repo.Save("TradeBot", record))

	loaded, err := repo.Load("tradebot")
	require.NoError(t, err)
	require.Equal(t, record.AccessToken, loaded.AccessToken)
}

func TestFileRepo_SaveLeavesNoTempFile(t *testing.T) {
	repo, fs := newTestFileRepo(t)

	record := tokencache.NewRecord("id", makeJWT(t, time.Now().Add(time.Hour)), "")
	require.NoError(t, repo.Save("bot", record))

	exists, err := afero.Exists(fs, "/data/session/steam_account_bot.json.tmp")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestFileRepo_SaveRecomputesExpiries(t *testing.T) {
	repo, _ := newTestFileRepo(t)

	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	record := &tokencache.TokenRecord{
		Identity:    "id",
		AccessToken: makeJWT(t, exp),
		// Deliberately wrong: Save must recompute from the token itself.
		AccessTokenExp: time.Now().Add(100 * time.Hour),
	}

	require.NoError(t, repo.Save("bot", record))

	loaded, err := repo.Load("bot")
	require.NoError(t, err)
	require.True(t, exp.Equal(loaded.AccessTokenExp))
}
