package apierr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodesAndUnwrap(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := NewStorage("ingest transaction failed", cause)

	assert.Equal(t, CodeStorage, CodeOf(err))
	assert.True(t, IsCode(err, CodeStorage))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "STORAGE_ERROR")
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestCodeOfWrappedTypedError(t *testing.T) {
	inner := NewNotFound("schema", "Ghost")
	wrapped := fmt.Errorf("tool failed: %w", inner)
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
}

func TestUnresolvableReferenceDetails(t *testing.T) {
	err := NewUnresolvableReference("#/components/schemas/Ghost")
	assert.Equal(t, CodeUnresolvableReference, err.Code)
	assert.Equal(t, "#/components/schemas/Ghost", err.Details["ref"])
}

func TestOverloadedCarriesRetryAfter(t *testing.T) {
	err := NewOverloaded(2 * time.Second)
	assert.True(t, err.Retryable)
	assert.Equal(t, 2*time.Second, err.RetryAfter)
}

func TestTimeoutIsRetryable(t *testing.T) {
	err := NewTimeout("searchEndpoints", 5*time.Second)
	assert.True(t, err.Retryable)
	assert.Equal(t, CodeTimeout, err.Code)
}

func TestTroubleshootingHints(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"open spec.yaml: no such file or directory", "check that the specification file path is correct"},
		{"failed to parse YAML document", "validate the YAML syntax of the specification"},
		{"input file too large: 200 MiB", "try a smaller specification file or raise the size limit"},
		{"completely novel failure", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hintFor(tt.message), tt.message)
	}
}

func TestToJSONRPCErrorMapping(t *testing.T) {
	resp := NewNotFound("schema", "Pet").ToJSONRPCError(7)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
	assert.Equal(t, 7, resp.ID)

	resp = NewInput("bad dialect", nil).ToJSONRPCError(nil)
	assert.Equal(t, -32602, resp.Error.Code)

	resp = NewOverloaded(time.Second).ToJSONRPCError(1)
	assert.Equal(t, -32001, resp.Error.Code)
}
