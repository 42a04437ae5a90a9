package logging

import (
	"io"
	"sync"
)

// BufferedWriter is a non-blocking log sink. Writes are queued to a bounded
// channel drained by a single background goroutine; when the queue is full
// the oldest entry is dropped so the caller never blocks.
type BufferedWriter struct {
	dst     io.Writer
	queue   chan []byte
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	dropped int64
	closed  bool
}

// NewBufferedWriter wraps dst with a drop-oldest queue of the given size.
func NewBufferedWriter(dst io.Writer, size int) *BufferedWriter {
	if size <= 0 {
		size = 1024
	}
	bw := &BufferedWriter{
		dst:   dst,
		queue: make(chan []byte, size),
		done:  make(chan struct{}),
	}
	bw.wg.Add(1)
	go bw.drain()
	return bw
}

func (bw *BufferedWriter) drain() {
	defer bw.wg.Done()
	for {
		select {
		case entry := <-bw.queue:
			_, _ = bw.dst.Write(entry)
		case <-bw.done:
			// flush what is left
			for {
				select {
				case entry := <-bw.queue:
					_, _ = bw.dst.Write(entry)
				default:
					return
				}
			}
		}
	}
}

// Write queues the entry. It never blocks: on a full queue the oldest
// pending entry is discarded to make room.
func (bw *BufferedWriter) Write(p []byte) (int, error) {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return len(p), nil
	}
	bw.mu.Unlock()

	entry := make([]byte, len(p))
	copy(entry, p)

	for {
		select {
		case bw.queue <- entry:
			return len(p), nil
		default:
		}
		select {
		case <-bw.queue:
			bw.mu.Lock()
			bw.dropped++
			bw.mu.Unlock()
		default:
		}
	}
}

// Dropped reports how many entries were discarded due to overflow.
func (bw *BufferedWriter) Dropped() int64 {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.dropped
}

// Close flushes pending entries and stops the drain goroutine.
func (bw *BufferedWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return nil
	}
	bw.closed = true
	bw.mu.Unlock()

	close(bw.done)
	bw.wg.Wait()
	return nil
}
