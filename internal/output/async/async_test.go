package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crimson-sun/persona/internal/model"
)

type mockOutput struct {
	mu     sync.Mutex
	results []model.UserPredictions
	closed bool
	err    error         // if set, Write returns this
	delay  time.Duration // if >0, Write sleeps first
}

func (m *mockOutput) Write(_ context.Context, r model.UserPredictions) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	m.results = append(m.results, r)
	m.mu.Unlock()
	return m.err
}

func (m *mockOutput) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *mockOutput) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

func testResult(user string) model.UserPredictions {
	return model.UserPredictions{UserID: user, PostCount: 1, Predictions: []string{"ISFJ"}}
}

func TestResultsFlowThrough(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(16))

	for i := 0; i < 10; i++ {
		if err := a.Write(context.Background(), testResult("success")); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if inner.count() != 10 {
		t.Errorf("got %d results, want 10", inner.count())
	}
}

func TestBackpressureBlocks(t *testing.T) {
	// Inner output is slow; buffer size is 1.
	inner := &mockOutput{delay: 50 * time.Millisecond}
	a := New(inner, WithBufferSize(1))

	// First write fills the buffer.
	a.Write(context.Background(), testResult("first"))

	// Second write should block until the drain goroutine consumes the first.
	done := make(chan struct{})
	go func() {
		a.Write(context.Background(), testResult("second"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked indefinitely (expected eventual unblock via drain)")
	}

	a.Close()
}

func TestDropOnFull(t *testing.T) {
	// Slow inner output + tiny buffer + drop mode.
	inner := &mockOutput{delay: 100 * time.Millisecond}
	a := New(inner, WithBufferSize(1), WithDropOnFull())

	// Rapid-fire writes. Some will be dropped.
	for i := 0; i < 20; i++ {
		a.Write(context.Background(), testResult("burst"))
	}

	a.Close()

	// Not all 20 results should have arrived.
	if inner.count() == 20 {
		t.Error("expected some results to be dropped in drop-on-full mode")
	}
	if inner.count() == 0 {
		t.Error("expected at least some results to be delivered")
	}
}

func TestCloseDrainsRemaining(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(100))

	for i := 0; i < 50; i++ {
		a.Write(context.Background(), testResult("drain"))
	}

	a.Close()

	if inner.count() != 50 {
		t.Errorf("after Close, got %d results, want 50 (drain incomplete)", inner.count())
	}
}

func TestErrorCallbackInvoked(t *testing.T) {
	inner := &mockOutput{err: errors.New("write failed")}
	var errorCount atomic.Int64
	a := New(inner, WithBufferSize(16), WithOnError(func(err error) {
		errorCount.Add(1)
	}))

	for i := 0; i < 5; i++ {
		a.Write(context.Background(), testResult("failing"))
	}

	a.Close()

	if errorCount.Load() != 5 {
		t.Errorf("error callback called %d times, want 5", errorCount.Load())
	}
}

func TestNoGoroutineLeakAfterClose(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(16))

	a.Write(context.Background(), testResult("leak-check"))
	a.Close()

	// The done channel should be closed, indicating the drain goroutine exited.
	select {
	case <-a.done:
	case <-time.After(time.Second):
		t.Fatal("drain goroutine did not exit after Close")
	}
}

func TestCloseIdempotent(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(16))

	a.Write(context.Background(), testResult("idempotent"))

	// Close twice should not panic.
	if err := a.Close(); err != nil {
		t.Fatalf("first Close error: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestWriteHonorsContextWhenFull(t *testing.T) {
	inner := &mockOutput{delay: 200 * time.Millisecond}
	a := New(inner, WithBufferSize(1))
	defer a.Close()

	a.Write(context.Background(), testResult("first"))
	a.Write(context.Background(), testResult("second"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := a.Write(ctx, testResult("third")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Write error = %v, want DeadlineExceeded", err)
	}
}
