package domain

import (
	"errors"
	"fmt"
)

// Category sentinels for cross-cutting failure classes.
var (
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrRateLimit    = fmt.Errorf("rate limit exceeded")
	ErrConfigLoad   = fmt.Errorf("failed to load configuration")
)

// Sentinel errors for the relay domain.
var (
	// Transport errors.
	ErrTransport      = fmt.Errorf("all transport strategies failed")
	ErrSSRFBlocked    = fmt.Errorf("request to private/reserved IP blocked")
	ErrCircuitRenewal = fmt.Errorf("circuit renewal failed")

	// Search errors. ErrNoResults is a soft failure: the engine answered but
	// produced nothing usable, so it must not count against its circuit.
	ErrNoResults     = fmt.Errorf("search returned no usable results")
	ErrEngineFailure = fmt.Errorf("search engine request failed")
	ErrCircuitOpen   = fmt.Errorf("backend circuit open")

	// Fetch errors.
	ErrHTTPStatus = fmt.Errorf("upstream returned error status")

	// Cache errors.
	ErrCacheStorage = fmt.Errorf("cache storage operation failed")

	// Batch errors.
	ErrUnknownOperation = fmt.Errorf("unknown batch operation")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Relay.Search")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error where a later
// attempt, another strategy, or another engine may still succeed.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrEngineFailure) ||
		errors.Is(err, ErrCircuitOpen)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeTransport        ErrorCode = "TRANSPORT_FAILED"
	CodeSSRFBlocked      ErrorCode = "SSRF_BLOCKED"
	CodeCircuitRenewal   ErrorCode = "CIRCUIT_RENEWAL"
	CodeNoResults        ErrorCode = "NO_RESULTS"
	CodeEngineFailure    ErrorCode = "ENGINE_FAILURE"
	CodeCircuitOpen      ErrorCode = "CIRCUIT_OPEN"
	CodeHTTPStatus       ErrorCode = "HTTP_STATUS"
	CodeCacheStorage     ErrorCode = "CACHE_STORAGE"
	CodeUnknownOperation ErrorCode = "UNKNOWN_OPERATION"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrInvalidInput:     CodeInvalidInput,
	ErrTimeout:          CodeTimeout,
	ErrRateLimit:        CodeRateLimit,
	ErrConfigLoad:       CodeConfigLoad,
	ErrTransport:        CodeTransport,
	ErrSSRFBlocked:      CodeSSRFBlocked,
	ErrCircuitRenewal:   CodeCircuitRenewal,
	ErrNoResults:        CodeNoResults,
	ErrEngineFailure:    CodeEngineFailure,
	ErrCircuitOpen:      CodeCircuitOpen,
	ErrHTTPStatus:       CodeHTTPStatus,
	ErrCacheStorage:     CodeCacheStorage,
	ErrUnknownOperation: CodeUnknownOperation,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	// Unwrap DomainError to check its inner sentinel.
	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
