package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "kgk"

// createKeyLua inserts a record only if the id is unused and indexes it.
// KEYS[1] = record key, KEYS[2] = index set
// ARGV[1] = encoded record, ARGV[2] = key id
var createKeyLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return {err='exists'}
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
return 'OK'
`)

// casKeyLua atomically performs GET→version compare→SET. A caller holding a
// stale version loses without writing anything.
// KEYS[1] = record key
// ARGV[1] = expected version, ARGV[2] = encoded replacement record
var casKeyLua = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return {err='not_found'}
end
local current = cjson.decode(raw)
if tonumber(current.version) ~= tonumber(ARGV[1]) then
  return {err='version_conflict'}
end
redis.call('SET', KEYS[1], ARGV[2])
return 'OK'
`)

// RedisStore is the Redis-backed [Store]. Records are JSON-encoded; the
// version field drives the Lua compare-and-swap.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore with the given key prefix.
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisStore) recordKey(id string) string {
	return s.prefix + ":key:" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":index"
}

// Get implements [Store].
func (s *RedisStore) Get(ctx context.Context, id string) (Key, error) {
	raw, err := s.redis.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Key{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Key{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decodeKeyRecord(raw)
}

// Create implements [Store].
func (s *RedisStore) Create(ctx context.Context, k Key) error {
	encoded, err := json.Marshal(k)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrUnavailable, err)
	}

	_, err = createKeyLua.Run(ctx, s.redis,
		[]string{s.recordKey(k.ID), s.indexKey()},
		string(encoded), k.ID,
	).Result()
	if err != nil {
		if err.Error() == "exists" {
			return fmt.Errorf("%w: %s", ErrExists, k.ID)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// CompareAndSwap implements [Store]. k carries the version observed at read
// time; the stored record is replaced only if that version still matches,
// and the replacement is written with the version advanced by one.
func (s *RedisStore) CompareAndSwap(ctx context.Context, k Key) (Key, error) {
	expected := k.Version
	k.Version = expected + 1

	encoded, err := json.Marshal(k)
	if err != nil {
		return Key{}, fmt.Errorf("%w: encode: %v", ErrUnavailable, err)
	}

	_, err = casKeyLua.Run(ctx, s.redis,
		[]string{s.recordKey(k.ID)},
		strconv.FormatUint(expected, 10), string(encoded),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return Key{}, fmt.Errorf("%w: %s", ErrNotFound, k.ID)
		case "version_conflict":
			return Key{}, fmt.Errorf("%w: %s at version %d", ErrVersionConflict, k.ID, expected)
		default:
			return Key{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return k, nil
}

// List implements [Store].
func (s *RedisStore) List(ctx context.Context) ([]Key, error) {
	ids, err := s.redis.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	recordKeys := make([]string, len(ids))
	for i, id := range ids {
		recordKeys[i] = s.recordKey(id)
	}

	raws, err := s.redis.MGet(ctx, recordKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]Key, 0, len(raws))
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			// Index entry without a record; skip rather than fail the scan.
			continue
		}
		k, err := decodeKeyRecord([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func decodeKeyRecord(raw []byte) (Key, error) {
	var k Key
	if err := json.Unmarshal(raw, &k); err != nil {
		return Key{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	return k, nil
}
