package live

import (
	"sync"

	"github.com/lumitv/voice-gateway/pkg/audio"
)

// Handle controls one scheduled playback source.
type Handle interface {
	Stop()
}

// Sink is the playback output the scheduler drives. Now returns the sink
// clock in seconds; Start begins playing buf at the given sink time and
// invokes onEnded when the source finishes on its own.
type Sink interface {
	Now() float64
	Start(buf *audio.Buffer, at float64, onEnded func()) Handle
}

// Scheduler lines up synthesized audio buffers gaplessly on a sink clock.
// Buffers play back to back in arrival order; an interrupt silences
// everything queued and resets the timeline.
type Scheduler struct {
	mu        sync.Mutex
	sink      Sink
	nextStart float64
	active    map[int64]Handle
	nextID    int64
}

// NewScheduler creates a scheduler over the given sink.
func NewScheduler(sink Sink) *Scheduler {
	return &Scheduler{
		sink:   sink,
		active: make(map[int64]Handle),
	}
}

// Enqueue schedules buf to start when the previous buffer ends, or now if
// the timeline has fallen behind the sink clock.
func (s *Scheduler) Enqueue(buf *audio.Buffer) {
	if s == nil || buf == nil || len(buf.Samples) == 0 {
		return
	}

	s.mu.Lock()
	start := s.nextStart
	if now := s.sink.Now(); start < now {
		start = now
	}
	s.nextStart = start + buf.Duration()

	id := s.nextID
	s.nextID++
	handle := s.sink.Start(buf, start, func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
	})
	if handle != nil {
		s.active[id] = handle
	}
	s.mu.Unlock()
}

// Interrupt stops every active source and resets the timeline so the next
// buffer starts immediately.
func (s *Scheduler) Interrupt() {
	if s == nil {
		return
	}
	s.mu.Lock()
	handles := make([]Handle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	s.active = make(map[int64]Handle)
	s.nextStart = 0
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

// Pending reports the number of sources not yet finished.
func (s *Scheduler) Pending() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
