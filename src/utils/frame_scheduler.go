package utils

import (
	"sync"
	"time"
)

// -----------------------------------------------------------------------------

// FrameSource delivers a single callback on the next frame.
// The returned cancel function prevents the callback if it has not run yet.
type FrameSource interface {
	RequestFrame(fn func()) (cancel func())
}

// -----------------------------------------------------------------------------

// IntervalFrames is a FrameSource ticking every Interval
type IntervalFrames struct {
	Interval time.Duration
}

// RequestFrame schedules fn after one interval
func (f IntervalFrames) RequestFrame(fn func()) func() {
	timer := time.AfterFunc(f.Interval, fn)
	return func() { timer.Stop() }
}

// -----------------------------------------------------------------------------
// FrameScheduler collects flush requests and runs flush at most once per frame.
// Only one frame token is ever pending.
// -----------------------------------------------------------------------------

type FrameScheduler struct {
	source FrameSource
	flush  func()

	mu      sync.Mutex
	cancel  func()
	token   uint64 // id of the pending frame, 0 when none
	nextID  uint64
	stopped bool
}

// -----------------------------------------------------------------------------

// NewFrameScheduler creates a scheduler calling flush on frames from source
func NewFrameScheduler(source FrameSource, flush func()) *FrameScheduler {
	return &FrameScheduler{
		source: source,
		flush:  flush,
	}
}

// -----------------------------------------------------------------------------

// Request asks for a flush on the next frame. Requests made while a frame is
// pending collapse into that frame.
func (s *FrameScheduler) Request() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.token != 0 {
		return
	}

	s.nextID++
	id := s.nextID
	s.token = id
	s.cancel = s.source.RequestFrame(func() { s.fire(id) })
}

// -----------------------------------------------------------------------------

// Pending reports whether a frame is scheduled
func (s *FrameScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != 0
}

// -----------------------------------------------------------------------------

// cancelFrame drops the pending frame, if any
func (s *FrameScheduler) cancelFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// -----------------------------------------------------------------------------

// Flush cancels the pending frame and flushes immediately
func (s *FrameScheduler) Flush() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.cancelLocked()
	s.mu.Unlock()

	s.flush()
}

// -----------------------------------------------------------------------------

// Stop cancels the pending frame and refuses further requests
func (s *FrameScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.stopped = true
}

// -----------------------------------------------------------------------------

func (s *FrameScheduler) cancelLocked() {
	if s.token == 0 {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.token = 0
}

// -----------------------------------------------------------------------------

// fire runs the flush for frame id unless it was cancelled or superseded
func (s *FrameScheduler) fire(id uint64) {
	s.mu.Lock()
	if s.stopped || s.token != id {
		s.mu.Unlock()
		return
	}
	s.token = 0
	s.cancel = nil
	s.mu.Unlock()

	s.flush()
}

// -----------------------------------------------------------------------------
// ManualFrames is a FrameSource driven explicitly by calling Tick.
// Used by tests and tools that render on their own cadence.
// -----------------------------------------------------------------------------

type ManualFrames struct {
	mu       sync.Mutex
	pending  map[uint64]func()
	nextID   uint64
	requests int
}

// NewManualFrames creates an empty manual frame source
func NewManualFrames() *ManualFrames {
	return &ManualFrames{pending: make(map[uint64]func())}
}

// RequestFrame queues fn until the next Tick
func (m *ManualFrames) RequestFrame(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.pending[id] = fn
	m.requests++

	return func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}
}

// Tick runs every queued callback and returns how many ran
func (m *ManualFrames) Tick() int {
	m.mu.Lock()
	callbacks := make([]func(), 0, len(m.pending))
	for id := uint64(1); id <= m.nextID; id++ {
		if fn, ok := m.pending[id]; ok {
			callbacks = append(callbacks, fn)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	return len(callbacks)
}

// Pending returns the number of queued callbacks
func (m *ManualFrames) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Requests returns how many frames were ever requested
func (m *ManualFrames) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}
