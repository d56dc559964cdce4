package keygate

import (
	"errors"

	"github.com/keygatelabs/keygate/internal/limiters"
	"github.com/keygatelabs/keygate/internal/stores"
	"github.com/keygatelabs/keygate/keys"
	"github.com/keygatelabs/keygate/token"
)

var (
	// ErrEngineNotReady means the Engine is missing a required dependency.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidInput means a malformed channel, purpose, or code.
	ErrInvalidInput = errors.New("invalid input")
	// ErrIdentityNotFound means no identity exists for the channel or id.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrIdentityExists means registration hit an already-known channel.
	ErrIdentityExists = errors.New("identity already exists")
	// ErrIdentityDisabled means the identity is soft-deleted or deactivated.
	ErrIdentityDisabled = errors.New("identity disabled")
	// ErrAccountLocked means the identity is inside a lockout window.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidChallenge means no active challenge matched the code.
	ErrInvalidChallenge = errors.New("invalid challenge code")
	// ErrChallengeExpired means the challenge timed out or its attempts ran
	// out; both are the same terminal class.
	ErrChallengeExpired = errors.New("challenge expired or exhausted")
	// ErrChallengeRateLimited means too many challenges were requested
	// inside the trailing window.
	ErrChallengeRateLimited = errors.New("challenge requests rate limited")
	// ErrPermissionDenied means the authenticated role lacks a capability.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStoreUnavailable wraps infrastructure failures from any backend.
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// Token failures are re-exported so callers matching at the engine
	// surface need not import the token package.
	ErrTokenMalformed = token.ErrMalformed
	ErrTokenSignature = token.ErrSignature
	ErrTokenExpired   = token.ErrExpired

	// Key lifecycle failures, re-exported from the keys package.
	ErrKeyNotFound         = keys.ErrNotFound
	ErrKeyExists           = keys.ErrExists
	ErrKeyConflict         = keys.ErrConflict
	ErrKeyForbidden        = keys.ErrForbidden
	ErrKeyHolderNotAllowed = keys.ErrHolderNotAllowed
)

// Kind partitions every expected business failure into the classes the
// boundary layer translates to status codes. The engine itself never formats
// user-facing text.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindRateLimited
	KindChallengeExpired
	KindChallengeInvalid
	KindLocked
	KindUnavailable
)

var kindNames = map[Kind]string{
	KindUnknown:          "UNKNOWN",
	KindValidation:       "VALIDATION",
	KindNotFound:         "NOT_FOUND",
	KindConflict:         "CONFLICT",
	KindUnauthorized:     "UNAUTHORIZED",
	KindForbidden:        "FORBIDDEN",
	KindRateLimited:      "RATE_LIMITED",
	KindChallengeExpired: "OTP_EXPIRED",
	KindChallengeInvalid: "INVALID_OTP",
	KindLocked:           "ACCOUNT_LOCKED",
	KindUnavailable:      "UNAVAILABLE",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// ErrorKind classifies err. Unrecognized errors report KindUnknown; callers
// should treat those as internal failures.
func ErrorKind(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidInput), errors.Is(err, keys.ErrInvalid):
		return KindValidation
	case errors.Is(err, ErrIdentityNotFound), errors.Is(err, keys.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrIdentityExists), errors.Is(err, keys.ErrExists),
		errors.Is(err, keys.ErrConflict):
		return KindConflict
	case errors.Is(err, token.ErrMalformed), errors.Is(err, token.ErrSignature),
		errors.Is(err, token.ErrExpired):
		return KindUnauthorized
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrIdentityDisabled),
		errors.Is(err, keys.ErrForbidden), errors.Is(err, keys.ErrHolderNotAllowed):
		return KindForbidden
	case errors.Is(err, ErrChallengeRateLimited), errors.Is(err, limiters.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrChallengeExpired):
		return KindChallengeExpired
	case errors.Is(err, ErrInvalidChallenge):
		return KindChallengeInvalid
	case errors.Is(err, ErrAccountLocked):
		return KindLocked
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, keys.ErrUnavailable),
		errors.Is(err, stores.ErrRedisUnavailable), errors.Is(err, limiters.ErrRedisUnavailable):
		return KindUnavailable
	default:
		return KindUnknown
	}
}
