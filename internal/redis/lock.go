package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another worker is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Lock is a token-guarded claim on a key. It is owned exclusively by the
// worker that acquired it until release or TTL expiry.
type Lock struct {
	Key   string
	Token string
}

type LockStore struct {
	client *Client
}

func NewLockStore(client *Client) *LockStore {
	return &LockStore{client: client}
}

// Acquire attempts an atomic set-if-absent with TTL. It returns (nil, nil)
// when the key is already held: contention is expected, not an error.
func (s *LockStore) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	tokenBytes := make([]byte, 16)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("generate lock token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lock{Key: key, Token: token}, nil
}

// Release deletes the lock if the stored token still matches. It returns
// false when the lock had already expired and been taken by someone else.
func (s *LockStore) Release(ctx context.Context, lock *Lock) (bool, error) {
	n, err := releaseScript.Run(ctx, s.client, []string{lock.Key}, lock.Token).Int()
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", lock.Key, err)
	}
	return n == 1, nil
}
