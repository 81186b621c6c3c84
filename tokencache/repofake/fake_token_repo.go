package faketokenrepo

import (
	"sync"

	"github.com/jrsteele09/go-steam-sessions/internal/errors"
	"github.com/jrsteele09/go-steam-sessions/tokencache"
)

var _ tokencache.Repo = (*FakeTokenRepo)(nil)

type FakeTokenRepo struct {
	records map[string]*tokencache.TokenRecord
	lock    sync.RWMutex

	SaveCount int
	LoadErr   error // When set, Load always fails with this error
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		records: make(map[string]*tokencache.TokenRecord),
	}
}

func (fr *FakeTokenRepo) Load(username string) (*tokencache.TokenRecord, error) {
	fr.lock.RLock()
	defer fr.lock.RUnlock()

	if fr.LoadErr != nil {
		return nil, fr.LoadErr
	}
	record, ok := fr.records[username]
	if !ok {
		return nil, errors.ErrNoCachedToken
	}
	copied := *record
	return &copied, nil
}

func (fr *FakeTokenRepo) Save(username string, record *tokencache.TokenRecord) error {
	fr.lock.Lock()
	defer fr.lock.Unlock()

	record.DeriveExpiries()
	copied := *record
	fr.records[username] = &copied
	fr.SaveCount++
	return nil
}

// Seed installs a record directly, bypassing expiry derivation, so tests can
// construct arbitrary cache states.
func (fr *FakeTokenRepo) Seed(username string, record *tokencache.TokenRecord) {
	fr.lock.Lock()
	defer fr.lock.Unlock()

	copied := *record
	fr.records[username] = &copied
}
