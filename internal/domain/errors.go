package domain

import "errors"

// ErrorKind groups ledger errors by the layer that raised them.
type ErrorKind uint8

const (
	KindValidation ErrorKind = iota + 1
	KindAuthorization
	KindRisk
	KindState
	KindFreshness
	KindArithmetic
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindRisk:
		return "risk"
	case KindState:
		return "state"
	case KindFreshness:
		return "freshness"
	case KindArithmetic:
		return "arithmetic"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by ledger operations. Every variant
// is a package-level sentinel so callers can match with errors.Is and recover
// the kind or code with errors.As.
type Error struct {
	Kind ErrorKind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

// Validation.
var (
	ErrZeroAddress         = newError(KindValidation, "ZERO_ADDRESS", "zero address")
	ErrZeroAmount          = newError(KindValidation, "ZERO_AMOUNT", "zero amount")
	ErrArrayLengthMismatch = newError(KindValidation, "ARRAY_LENGTH_MISMATCH", "array length mismatch")
	ErrInvalidDuration     = newError(KindValidation, "INVALID_DURATION", "invalid duration")
	ErrInvalidFees         = newError(KindValidation, "INVALID_FEES", "invalid fee terms")
	ErrUnknownAdapter      = newError(KindValidation, "UNKNOWN_ADAPTER", "adapter not registered")
	ErrNotFound            = newError(KindValidation, "NOT_FOUND", "not found")
)

// Authorization.
var (
	ErrUnauthorized = newError(KindAuthorization, "UNAUTHORIZED", "unauthorized")
	ErrBanned       = newError(KindAuthorization, "BANNED", "executor banned")
	ErrPaused       = newError(KindAuthorization, "PAUSED", "ledger paused")
)

// Risk.
var (
	ErrCapitalLimitExceeded  = newError(KindRisk, "CAPITAL_LIMIT_EXCEEDED", "capital limit exceeded")
	ErrInsufficientStake     = newError(KindRisk, "INSUFFICIENT_STAKE", "insufficient stake")
	ErrRiskLevelNotAllowed   = newError(KindRisk, "RISK_LEVEL_NOT_ALLOWED", "risk level not allowed")
	ErrUtilizationExceeded   = newError(KindRisk, "UTILIZATION_EXCEEDED", "utilization ceiling exceeded")
	ErrInsufficientLiquidity = newError(KindRisk, "INSUFFICIENT_LIQUIDITY", "insufficient liquidity")
	ErrInsufficientShares    = newError(KindRisk, "INSUFFICIENT_SHARES", "insufficient shares")
	ErrExposureLimitExceeded = newError(KindRisk, "EXPOSURE_LIMIT_EXCEEDED", "exposure limit exceeded")
	ErrCircuitBreakerTripped = newError(KindRisk, "CIRCUIT_BREAKER_TRIPPED", "circuit breaker tripped")
	ErrAdapterNotAllowed     = newError(KindRisk, "ADAPTER_NOT_ALLOWED", "adapter not allowed for right")
	ErrAssetNotAllowed       = newError(KindRisk, "ASSET_NOT_ALLOWED", "asset not allowed for right")
	ErrPositionSizeExceeded  = newError(KindRisk, "POSITION_SIZE_EXCEEDED", "position size exceeded")
	ErrLeverageExceeded      = newError(KindRisk, "LEVERAGE_EXCEEDED", "leverage exceeded")
)

// State.
var (
	ErrNotActive          = newError(KindState, "NOT_ACTIVE", "right not active")
	ErrAlreadySettled     = newError(KindState, "ALREADY_SETTLED", "right already settled")
	ErrNotExpired         = newError(KindState, "NOT_EXPIRED", "right not expired")
	ErrRightExpired       = newError(KindState, "RIGHT_EXPIRED", "right expired")
	ErrHasOpenPositions   = newError(KindState, "HAS_OPEN_POSITIONS", "right has open positions")
	ErrSettlementInFlight = newError(KindState, "SETTLEMENT_IN_FLIGHT", "settlement already in flight")
	ErrPoolInsolvent      = newError(KindState, "POOL_INSOLVENT", "pool has outstanding shares but no assets")
)

// Freshness.
var (
	ErrStalePrice       = newError(KindFreshness, "STALE_PRICE", "stale price")
	ErrPriceUnavailable = newError(KindFreshness, "PRICE_UNAVAILABLE", "price unavailable")
)

// Arithmetic.
var ErrOverflow = newError(KindArithmetic, "OVERFLOW", "arithmetic overflow")

// ErrLockHeld is returned by LockManager implementations when the key is
// already held elsewhere.
var ErrLockHeld = errors.New("lock already held")

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Retryable reports whether err is transient. Only freshness failures
// qualify: the caller should refresh its price inputs and try again.
func Retryable(err error) bool {
	return KindOf(err) == KindFreshness
}
