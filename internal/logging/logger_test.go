package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := &StructuredLogger{level: DEBUG, useJSON: true, out: &buf}

	logger.Info("endpoint ingested", "path", "/pets", "method", "GET")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "endpoint ingested", entry.Message)
	assert.Equal(t, "/pets", entry.Fields["path"])
	assert.Equal(t, "GET", entry.Fields["method"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := &StructuredLogger{level: WARN, useJSON: true, out: &buf}

	logger.Debug("not visible")
	logger.Info("not visible either")
	assert.Empty(t, buf.String())

	logger.Warn("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestLoggerTraceIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := &StructuredLogger{level: DEBUG, useJSON: true, out: &buf}

	ctx := WithTraceID(context.Background(), "abc-123")
	logger.InfoContext(ctx, "traced")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc-123", entry.TraceID)
}

func TestWithComponentDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := &StructuredLogger{level: DEBUG, useJSON: true, out: &buf}

	child := parent.WithComponent("search")
	child.Info("from child")
	assert.Contains(t, buf.String(), `"component":"search"`)
	assert.Empty(t, parent.component)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLogLevel("debug"))
	assert.Equal(t, WARN, ParseLogLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLogLevel("Error"))
	assert.Equal(t, INFO, ParseLogLevel("bogus"))
}

func TestBufferedWriterDeliversAndCloses(t *testing.T) {
	var mu sync.Mutex
	var buf bytes.Buffer
	dst := writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	})

	bw := NewBufferedWriter(dst, 16)
	for i := 0; i < 10; i++ {
		_, err := bw.Write([]byte("line\n"))
		require.NoError(t, err)
	}
	require.NoError(t, bw.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, strings.Count(buf.String(), "line"))
}

func TestBufferedWriterDropsOldestOnOverflow(t *testing.T) {
	block := make(chan struct{})
	dst := writerFunc(func(p []byte) (int, error) {
		<-block
		return len(p), nil
	})

	bw := NewBufferedWriter(dst, 2)
	// the drain goroutine consumes one entry and blocks; fill past capacity
	for i := 0; i < 10; i++ {
		_, _ = bw.Write([]byte("x"))
	}
	assert.Greater(t, bw.Dropped(), int64(0))

	close(block)
	require.NoError(t, bw.Close())
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
