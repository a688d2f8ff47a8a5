package credentials

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKey = "session"

	// Legacy readers still look tokens up under their own keys. The canonical
	// record is authoritative; these keys are written in the same transaction
	// and never read back by this store.
	legacyAccessKey  = "access_token"
	legacyRefreshKey = "refresh_token"
)

// RedisStore is a durable implementation of the Store interface backed by a
// single Redis record. Writes go through MULTI/EXEC so the canonical record
// and the legacy token keys never disagree.
type RedisStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

// NewRedisStore creates a credential store on rdb. All keys are namespaced
// with keyPrefix.
func NewRedisStore(rdb redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{rdb: rdb, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(name string) string {
	return s.keyPrefix + ":" + name
}

// Get returns the persisted session, or nil when absent.
func (s *RedisStore) Get(ctx context.Context) (*Session, error) {
	raw, err := s.rdb.Get(ctx, s.key(sessionKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(ErrStoreUnavailable, err.Error())
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, errors.Wrap(err, "[RedisStore.Get] corrupt session record")
	}
	return &session, nil
}

// Set persists the session record and the legacy token keys atomically.
func (s *RedisStore) Set(ctx context.Context, session Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[RedisStore.Set] marshal session")
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sessionKey), raw, 0)
		pipe.Set(ctx, s.key(legacyAccessKey), session.Tokens.AccessToken, 0)
		pipe.Set(ctx, s.key(legacyRefreshKey), session.Tokens.RefreshToken, 0)
		return nil
	})
	if err != nil {
		return errors.Wrap(ErrStoreUnavailable, err.Error())
	}
	return nil
}

// Clear removes the session record and the legacy token keys atomically.
func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionKey), s.key(legacyAccessKey), s.key(legacyRefreshKey))
		return nil
	})
	if err != nil {
		return errors.Wrap(ErrStoreUnavailable, err.Error())
	}
	return nil
}
