package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{CodeValidation, http.StatusBadRequest, "validation failed", false, true},
		{CodeUnauthorized, http.StatusUnauthorized, "authentication required", false, false},
		{CodeForbidden, http.StatusForbidden, "access denied", false, false},
		{CodeNotFound, http.StatusNotFound, "resource not found", false, false},
		{CodeConflict, http.StatusConflict, "conflict detected", false, false},
		{CodeStateConflict, http.StatusUnprocessableEntity, "state transition disallowed", false, true},
		{CodeIdempotency, http.StatusConflict, "idempotency key reused", false, true},
		{CodeRateLimit, http.StatusTooManyRequests, "rate limit exceeded", false, false},
		{CodeInternal, http.StatusInternalServerError, "internal server error", true, false},
		{CodeDependency, http.StatusServiceUnavailable, "dependency unavailable", true, true},
		{CodeInsufficientStock, http.StatusConflict, "insufficient stock", false, true},
		{CodeAdapter, http.StatusInternalServerError, "channel adapter failed", true, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			meta := MetadataFor(tt.code)
			assert.Equal(t, tt.status, meta.HTTPStatus)
			assert.Equal(t, tt.publicMsg, meta.PublicMessage)
			assert.Equal(t, tt.retryable, meta.Retryable)
			assert.Equal(t, tt.detailsOK, meta.DetailsAllowed)
		})
	}

	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

// Server-side failures keep their internal message private; the adapter code
// is the one 5xx that names the failing channel.
func TestOnlyServerSideCodesHideMessages(t *testing.T) {
	for code, meta := range catalog {
		if code == CodeAdapter {
			continue
		}
		assert.NotEqual(t, meta.HTTPStatus >= http.StatusInternalServerError, meta.ExposeMessage, code)
	}
}

func TestConstructors(t *testing.T) {
	err := Newf(CodeValidation, "item %d: quantity must be positive", 2)
	assert.Equal(t, "VALIDATION_ERROR: item 2: quantity must be positive", err.Error())
	assert.Nil(t, err.Details())

	err.WithDetails(map[string]any{"index": 2})
	assert.Equal(t, map[string]any{"index": 2}, err.Details())

	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodeDependency, cause, "load channel")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeDependency, wrapped.Code())
	assert.Equal(t, "load channel", wrapped.Message())

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Empty(t, nilErr.Error())
	assert.Nil(t, nilErr.Unwrap())
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("reserve: %w", New(CodeInsufficientStock, "only 2 left"))

	assert.ErrorIs(t, err, New(CodeInsufficientStock, ""))
	assert.ErrorIs(t, err, New(CodeInsufficientStock, "only 2 left"))
	assert.NotErrorIs(t, err, New(CodeInsufficientStock, "only 3 left"))
	assert.NotErrorIs(t, err, New(CodeNotFound, ""))
}

func TestAsAndIsCode(t *testing.T) {
	outer := Wrap(CodeDependency, New(CodeNotFound, "channel"), "dispatch")
	got := As(fmt.Errorf("job: %w", outer))
	require.NotNil(t, got)
	assert.Equal(t, CodeDependency, got.Code(), "outermost typed error wins")

	assert.True(t, IsCode(outer, CodeDependency))
	assert.False(t, IsCode(outer, CodeNotFound))
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestRetryable(t *testing.T) {
	stock := New(CodeInsufficientStock, "only 2 left")

	assert.False(t, Retryable(fmt.Errorf("reserve: %w", stock)))
	assert.True(t, Retryable(New(CodeAdapter, "timeout")))
	assert.True(t, Retryable(stdErrors.New("plain")), "untyped errors default to retryable")
	assert.False(t, Retryable(nil))
}
