package utils

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFrameScheduler_CoalescesRequests(t *testing.T) {
	frames := NewManualFrames()
	flushes := 0
	s := NewFrameScheduler(frames, func() { flushes++ })

	for i := 0; i < 10; i++ {
		s.Request()
	}

	if frames.Requests() != 1 {
		t.Fatalf("expected a single frame request, got %d", frames.Requests())
	}
	if !s.Pending() {
		t.Fatal("expected a pending frame")
	}

	frames.Tick()
	if flushes != 1 {
		t.Errorf("expected exactly one flush, got %d", flushes)
	}
	if s.Pending() {
		t.Error("no frame should be pending after flush")
	}

	// A request after the flush opens a new frame
	s.Request()
	frames.Tick()
	if flushes != 2 {
		t.Errorf("expected second flush, got %d", flushes)
	}
}

func TestFrameScheduler_Cancel(t *testing.T) {
	frames := NewManualFrames()
	flushes := 0
	s := NewFrameScheduler(frames, func() { flushes++ })

	s.Request()
	s.cancelFrame()

	if frames.Pending() != 0 {
		t.Errorf("cancel should remove the frame callback, %d pending", frames.Pending())
	}
	frames.Tick()
	if flushes != 0 {
		t.Errorf("cancelled frame must not flush, got %d", flushes)
	}
}

func TestFrameScheduler_StaleCallbackIgnored(t *testing.T) {
	// A source that ignores cancellation, like a timer that already fired
	var captured []func()
	source := frameFunc(func(fn func()) func() {
		captured = append(captured, fn)
		return func() {}
	})

	flushes := 0
	s := NewFrameScheduler(source, func() { flushes++ })

	s.Request()
	s.cancelFrame()
	s.Request()

	captured[0]() // stale token
	if flushes != 0 {
		t.Fatalf("stale frame flushed")
	}
	captured[1]()
	if flushes != 1 {
		t.Errorf("expected current frame to flush once, got %d", flushes)
	}
}

func TestFrameScheduler_StopAndFlush(t *testing.T) {
	frames := NewManualFrames()
	flushes := 0
	s := NewFrameScheduler(frames, func() { flushes++ })

	s.Request()
	s.Flush()
	if flushes != 1 {
		t.Fatalf("expected immediate flush, got %d", flushes)
	}
	frames.Tick()
	if flushes != 1 {
		t.Fatalf("flush must consume the pending frame, got %d", flushes)
	}

	s.Stop()
	s.Request()
	s.Flush()
	frames.Tick()
	if flushes != 1 {
		t.Errorf("stopped scheduler must not flush, got %d", flushes)
	}
}

func TestFrameScheduler_IntervalFrames(t *testing.T) {
	var flushes atomic.Int32
	s := NewFrameScheduler(IntervalFrames{Interval: 5 * time.Millisecond}, func() { flushes.Add(1) })

	for i := 0; i < 100; i++ {
		s.Request()
	}

	deadline := time.Now().Add(time.Second)
	for flushes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	if got := flushes.Load(); got != 1 {
		t.Errorf("expected one flush for a burst, got %d", got)
	}
}

type frameFunc func(fn func()) func()

func (f frameFunc) RequestFrame(fn func()) func() { return f(fn) }
