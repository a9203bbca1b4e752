package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
	}{
		{code: CodeRejected, status: http.StatusUnprocessableEntity},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeForbidden, status: http.StatusForbidden},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeStoreWrite, status: http.StatusServiceUnavailable, retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
	}
	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		assert.Equal(t, tt.status, meta.HTTPStatus, tt.code)
		assert.Equal(t, tt.retryable, meta.Retryable, tt.code)
	}
	assert.Equal(t, http.StatusInternalServerError, MetadataFor("SOMETHING_UNKNOWN").HTTPStatus)
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("produce 4: %w", ErrAlreadyProduced.WithDetails(map[string]any{"schedule_id": 4}))
	assert.True(t, stdErrors.Is(err, ErrAlreadyProduced))
	assert.False(t, stdErrors.Is(err, ErrNoDestination))
	assert.Equal(t, CodeRejected, CodeOf(err))
	assert.Nil(t, ErrAlreadyProduced.Details())
}

func TestStoreWriteKeepsCause(t *testing.T) {
	cause := stdErrors.New("disk full")
	err := StoreWrite(cause, "update schedule")
	require.ErrorIs(t, err, cause)
	assert.Equal(t, CodeStoreWrite, err.Code())
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, CodeInternal, CodeOf(stdErrors.New("plain")))
}
