package tokencache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	apperrors "github.com/jrsteele09/go-steam-sessions/internal/errors"
)

var _ Repo = (*FileRepo)(nil)

// FileRepo stores one JSON record per account under the session folder,
// named steam_account_<username>.json.
type FileRepo struct {
	fs     afero.Fs
	folder string
	log    zerolog.Logger
}

// NewFileRepo creates a file-backed token cache rooted at folder. The
// filesystem is injectable so tests can run against an in-memory fs.
func NewFileRepo(fs afero.Fs, folder string, logger zerolog.Logger) (*FileRepo, error) {
	if err := fs.MkdirAll(folder, 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileRepo] MkdirAll")
	}
	return &FileRepo{
		fs:     fs,
		folder: folder,
		log:    logger.With().Str("component", "tokencache").Logger(),
	}, nil
}

// Load reads the cached record for a username. Any read or parse failure is
// logged and reported as ErrNoCachedToken so callers fall through to a fresh
// authentication instead of aborting.
func (fr *FileRepo) Load(username string) (*TokenRecord, error) {
	path := fr.recordPath(username)

	data, err := afero.ReadFile(fr.fs, path)
	if err != nil {
		if !os.IsNotExist(err) {
			fr.log.Warn().Err(err).Str("path", path).Msg("Failed to read token cache file")
		}
		return nil, apperrors.ErrNoCachedToken
	}

	record, err := decodeRecord(data)
	if err != nil {
		fr.log.Warn().Err(err).Str("path", path).Msg("Token cache file is corrupt, ignoring it")
		return nil, apperrors.ErrNoCachedToken
	}
	return record, nil
}

// Save writes the record atomically: the data is written to a temp file in
// the same folder and renamed over the destination.
func (fr *FileRepo) Save(username string, record *TokenRecord) error {
	record.DeriveExpiries()

	data, err := encodeRecord(record)
	if err != nil {
		return errors.Wrap(err, "[FileRepo.Save] encodeRecord")
	}

	path := fr.recordPath(username)
	tmpPath := path + ".tmp"

	if err := afero.WriteFile(fr.fs, tmpPath, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileRepo.Save] WriteFile")
	}
	if err := fr.fs.Rename(tmpPath, path); err != nil {
		_ = fr.fs.Remove(tmpPath)
		return errors.Wrap(err, "[FileRepo.Save] Rename")
	}

	event := fr.log.Info().Str("path", path)
	if !record.AccessTokenExp.IsZero() {
		event = event.Time("access_token_exp", record.AccessTokenExp)
	}
	if !record.RefreshTokenExp.IsZero() {
		event = event.Time("refresh_token_exp", record.RefreshTokenExp)
	}
	event.Msg("Saved token cache")
	return nil
}

func (fr *FileRepo) recordPath(username string) string {
	name := fmt.Sprintf("steam_account_%s.json", strings.ToLower(username))
	return filepath.Join(fr.folder, name)
}
