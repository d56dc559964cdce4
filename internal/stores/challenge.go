package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeRecordVersionV1 = 1

var (
	ErrChallengeNotFound = errors.New("challenge record not found")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrCodeMismatch      = errors.New("challenge code mismatch")
	ErrAttemptsExceeded  = errors.New("challenge attempts exceeded")
	ErrRedisUnavailable  = errors.New("challenge redis unavailable")
)

// consumeChallengeLua atomically performs GET→validate→DEL/SET on a
// challenge record.
// KEYS[1] = record key
// ARGV[1] = provided code hash (32 bytes)
// ARGV[2] = max attempts (int string)
// ARGV[3] = current unix timestamp (int string)
//
// Returns:
//
//	record bytes on success
//	error string: "not_found", "expired", "attempts_exceeded", "code_mismatch"
var consumeChallengeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])

-- Binary layout: version(1) attempts(2 big-endian) expiresAt(8 big-endian)
-- identityIDLen(2 big-endian) identityID(variable) codeHash(32)
local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local attempts = string.byte(data, 2) * 256 + string.byte(data, 3)

local expiresAt = 0
for i = 4, 11 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end

if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

-- Exhaustion is terminal: even the correct code fails once attempts ran out.
if attempts >= maxAttempts then
  return {err='attempts_exceeded'}
end

local idLen = string.byte(data, 12) * 256 + string.byte(data, 13)
local hashOffset = 14 + idLen
local storedHash = string.sub(data, hashOffset, hashOffset + 31)

if storedHash ~= providedHash then
  attempts = attempts + 1
  local newData = string.sub(data, 1, 1)
    .. string.char(math.floor(attempts / 256), attempts % 256)
    .. string.sub(data, 4)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  if attempts >= maxAttempts then
    return {err='attempts_exceeded'}
  end
  return {err='code_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// ChallengeRecord is the persisted form of an active one-time challenge.
type ChallengeRecord struct {
	IdentityID string
	CodeHash   [32]byte
	ExpiresAt  int64
	Attempts   uint16
}

// ChallengeStore persists one challenge per (identity, purpose) pair.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewChallengeStore creates a ChallengeStore with the given key prefix.
func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "kgc"
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ChallengeStore) key(identityID, purpose string) string {
	return s.prefix + ":" + purpose + ":" + identityID
}

// Save writes the record for (identityID, purpose), replacing — and thereby
// invalidating — any prior active challenge for the pair in one atomic SET.
// The TTL is space reclamation only; validity is judged from ExpiresAt.
func (s *ChallengeStore) Save(
	ctx context.Context,
	identityID, purpose string,
	record *ChallengeRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(identityID, purpose), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Consume validates providedHash against the active challenge for
// (identityID, purpose). Exactly one challenge transitions out of the active
// state per call: consumed on match, attempt-incremented (and possibly
// exhausted) on mismatch.
func (s *ChallengeStore) Consume(
	ctx context.Context,
	identityID, purpose string,
	providedHash [32]byte,
	maxAttempts int,
) (*ChallengeRecord, error) {
	result, err := consumeChallengeLua.Run(ctx, s.redis,
		[]string{s.key(identityID, purpose)},
		string(providedHash[:]),
		maxAttempts,
		time.Now().Unix(),
	).Result()

	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, ErrChallengeNotFound
		case "expired":
			return nil, ErrChallengeExpired
		case "attempts_exceeded":
			return nil, ErrAttemptsExceeded
		case "code_mismatch":
			return nil, ErrCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrRedisUnavailable)
	}

	record, decErr := decodeChallengeRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, decErr)
	}

	// Final constant-time comparison in Go as defense-in-depth
	// (Lua string comparison is not constant-time).
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrCodeMismatch
	}

	return record, nil
}

// Invalidate deletes the active challenges for identityID across the given
// purposes.
func (s *ChallengeStore) Invalidate(ctx context.Context, identityID string, purposes ...string) error {
	if len(purposes) == 0 {
		return nil
	}

	recordKeys := make([]string, len(purposes))
	for i, purpose := range purposes {
		recordKeys[i] = s.key(identityID, purpose)
	}

	if err := s.redis.Del(ctx, recordKeys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func encodeChallengeRecord(record *ChallengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.IdentityID) > 65535 {
		return nil, errors.New("challenge record identity id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.IdentityID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.IdentityID)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*ChallengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &ChallengeRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}

	identityID := make([]byte, idLen)
	if _, err := io.ReadFull(reader, identityID); err != nil {
		return nil, err
	}
	record.IdentityID = string(identityID)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
