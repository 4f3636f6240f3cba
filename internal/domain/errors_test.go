package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Relay.Fetch", ErrTransport, "https://example.org")
	want := "Relay.Fetch: https://example.org: all transport strategies failed"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Relay.Search", ErrNoResults, "")
	want := "Relay.Search: search returned no usable results"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Transport.Validate", ErrSSRFBlocked, "http://169.254.169.254/")
	if !errors.Is(err, ErrSSRFBlocked) {
		t.Error("errors.Is should match ErrSSRFBlocked")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := NewDomainError("Engine.Search", ErrEngineFailure, "searx")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.Op != "Engine.Search" {
		t.Errorf("Op = %q, want %q", de.Op, "Engine.Search")
	}
}

// --- ErrorCode tests ---

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeTransport, ErrorCodeOf(ErrTransport))
	assert.Equal(t, CodeCircuitOpen, ErrorCodeOf(ErrCircuitOpen))
	assert.Equal(t, CodeNoResults, ErrorCodeOf(ErrNoResults))
	assert.Equal(t, CodeSSRFBlocked, ErrorCodeOf(ErrSSRFBlocked))
}

func TestErrorCodeOf_DomainError(t *testing.T) {
	err := NewDomainError("Cache.Put", ErrCacheStorage, "disk full")
	assert.Equal(t, CodeCacheStorage, ErrorCodeOf(err))
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	// fmt.Errorf with %w wraps the sentinel.
	wrapped := fmt.Errorf("context: %w", ErrCircuitRenewal)
	assert.Equal(t, CodeCircuitRenewal, ErrorCodeOf(wrapped))
}

func TestErrorCodeOf_UnknownError(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("some random error")))
}

func TestErrorCodeOf_Nil(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestDomainError_Code(t *testing.T) {
	err := NewDomainError("Batch.Process", ErrUnknownOperation, "screenshot")
	assert.Equal(t, CodeUnknownOperation, err.Code())
}

func TestDomainError_CodeUnknownSentinel(t *testing.T) {
	err := NewDomainError("Op", fmt.Errorf("custom"), "detail")
	assert.Equal(t, CodeUnknown, err.Code())
}

func TestAllSentinelsHaveCodes(t *testing.T) {
	// Verify every sentinel in errorCodeMap maps to a non-empty code.
	require.NotEmpty(t, errorCodeMap)
	for sentinel, code := range errorCodeMap {
		assert.NotEmpty(t, code, "sentinel %v has empty code", sentinel)
		assert.NotEqual(t, CodeUnknown, code, "sentinel %v maps to UNKNOWN", sentinel)
	}
}

// --- WrapOp tests ---

func TestWrapOp_Nil(t *testing.T) {
	assert.Nil(t, WrapOp("anything", nil))
}

func TestWrapOp_Format(t *testing.T) {
	err := WrapOp("Engine.Search", ErrEngineFailure)
	assert.Equal(t, "Engine.Search: search engine request failed", err.Error())
}

func TestWrapOp_PreservesIs(t *testing.T) {
	err := WrapOp("Engine.Search", ErrEngineFailure)
	assert.True(t, errors.Is(err, ErrEngineFailure))
}

func TestWrapOp_PreservesErrorCode(t *testing.T) {
	err := WrapOp("Engine.Search", ErrEngineFailure)
	assert.Equal(t, CodeEngineFailure, ErrorCodeOf(err))
}

func TestWrapOp_Chain(t *testing.T) {
	inner := WrapOp("inner", ErrHTTPStatus)
	outer := WrapOp("outer", inner)
	assert.Equal(t, "outer: inner: upstream returned error status", outer.Error())
	assert.True(t, errors.Is(outer, ErrHTTPStatus))
}

// --- IsRetryableError tests ---

func TestIsRetryableError_Transient(t *testing.T) {
	assert.True(t, IsRetryableError(ErrRateLimit))
	assert.True(t, IsRetryableError(ErrTimeout))
	assert.True(t, IsRetryableError(ErrTransport))
	assert.True(t, IsRetryableError(ErrEngineFailure))
	assert.True(t, IsRetryableError(ErrCircuitOpen))
}

func TestIsRetryableError_Wrapped(t *testing.T) {
	err := fmt.Errorf("engine call: %w", ErrEngineFailure)
	assert.True(t, IsRetryableError(err))
}

func TestIsRetryableError_DomainError(t *testing.T) {
	err := NewDomainError("Relay.Search", ErrCircuitOpen, "searx")
	assert.True(t, IsRetryableError(err))
}

func TestIsRetryableError_NotRetryable(t *testing.T) {
	assert.False(t, IsRetryableError(ErrSSRFBlocked))
	assert.False(t, IsRetryableError(ErrUnknownOperation))
	assert.False(t, IsRetryableError(fmt.Errorf("random error")))
}

func TestIsRetryableError_Nil(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
}
