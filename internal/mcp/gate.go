package mcp

import (
	"context"
	"sync"
	"time"

	"openapi-mcp-server/internal/apierr"
)

// admissionGate bounds concurrent tool invocations. Up to maxInflight
// requests run at once; up to queueSize more wait for a slot. Anything
// beyond that is rejected immediately with the typed overload error.
type admissionGate struct {
	inflight chan struct{}
	queue    chan struct{}
	wg       sync.WaitGroup
}

func newAdmissionGate(maxInflight, queueSize int) *admissionGate {
	if maxInflight <= 0 {
		maxInflight = 100
	}
	if queueSize <= 0 {
		queueSize = 50
	}
	return &admissionGate{
		inflight: make(chan struct{}, maxInflight),
		queue:    make(chan struct{}, queueSize),
	}
}

// acquire admits one request, waiting in the bounded queue when all
// in-flight slots are taken. A full queue rejects without waiting.
func (g *admissionGate) acquire(ctx context.Context) error {
	select {
	case g.inflight <- struct{}{}:
		g.wg.Add(1)
		return nil
	default:
	}

	select {
	case g.queue <- struct{}{}:
	default:
		return apierr.NewOverloaded(time.Second)
	}
	defer func() { <-g.queue }()

	select {
	case g.inflight <- struct{}{}:
		g.wg.Add(1)
		return nil
	case <-ctx.Done():
		return apierr.Wrap(apierr.CodeTimeout, "request cancelled while queued", ctx.Err())
	}
}

func (g *admissionGate) release() {
	<-g.inflight
	g.wg.Done()
}

// drain waits for in-flight requests to finish, up to the given timeout.
// It reports whether the gate drained cleanly.
func (g *admissionGate) drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
