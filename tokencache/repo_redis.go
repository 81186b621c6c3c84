package tokencache

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	apperrors "github.com/jrsteele09/go-steam-sessions/internal/errors"
)

var _ Repo = (*RedisRepo)(nil)

const redisKeyPrefix = "steam_session:token:"

// RedisRepo stores token records in redis, for deployments where the session
// folder does not survive the process host. SET is atomic on the redis side,
// which satisfies the no-partial-record contract for free.
type RedisRepo struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedisRepo creates a redis-backed token cache.
func NewRedisRepo(client *redis.Client, logger zerolog.Logger) *RedisRepo {
	return &RedisRepo{
		client: client,
		log:    logger.With().Str("component", "tokencache-redis").Logger(),
	}
}

// Load retrieves the cached record for a username. Connection failures and
// corrupt values are logged and reported as ErrNoCachedToken, same as the
// file backend.
func (rr *RedisRepo) Load(username string) (*TokenRecord, error) {
	key := recordKey(username)

	data, err := rr.client.Get(context.Background(), key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			rr.log.Warn().Err(err).Str("key", key).Msg("Failed to read token cache from redis")
		}
		return nil, apperrors.ErrNoCachedToken
	}

	record, err := decodeRecord(data)
	if err != nil {
		rr.log.Warn().Err(err).Str("key", key).Msg("Token cache value is corrupt, ignoring it")
		return nil, apperrors.ErrNoCachedToken
	}
	return record, nil
}

// Save persists the record under the account's username key. Records carry
// no redis TTL: stale records are superseded on the next save, never deleted.
func (rr *RedisRepo) Save(username string, record *TokenRecord) error {
	record.DeriveExpiries()

	data, err := encodeRecord(record)
	if err != nil {
		return errors.Wrap(err, "[RedisRepo.Save] encodeRecord")
	}

	key := recordKey(username)
	if err := rr.client.Set(context.Background(), key, data, 0).Err(); err != nil {
		return errors.Wrap(err, "[RedisRepo.Save] SET")
	}

	rr.log.Info().Str("key", key).Msg("Saved token cache")
	return nil
}

func recordKey(username string) string {
	return fmt.Sprintf("%s%s", redisKeyPrefix, strings.ToLower(username))
}
