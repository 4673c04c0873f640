package fsm

import (
	"fmt"
	"sync"
)

// State describes the high-level conversation state for a client session.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateLive       State = "live"
	StateStreaming  State = "streaming"
)

// Snapshot is the full observable session state at one instant.
type Snapshot struct {
	State      State `json:"state"`
	Muted      bool  `json:"muted"`
	Processing bool  `json:"processing"`
}

// Observer is notified after each state change. It runs outside the
// machine's lock.
type Observer func(snap Snapshot)

// Machine is a lightweight deterministic session state machine. Live and
// streaming are mutually exclusive: a transition into one is refused while
// the other holds.
type Machine struct {
	mu         sync.RWMutex
	state      State
	muted      bool
	processing bool
	observer   Observer
}

// New creates a state machine starting idle.
func New() *Machine {
	return &Machine{state: StateIdle}
}

// SetObserver registers the change callback.
func (m *Machine) SetObserver(observer Observer) {
	m.mu.Lock()
	m.observer = observer
	m.mu.Unlock()
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Snapshot returns the current observable state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, Muted: m.muted, Processing: m.processing}
}

// OnConnectStart moves idle into connecting.
func (m *Machine) OnConnectStart() error {
	return m.transition(StateIdle, StateConnecting)
}

// OnConnected moves connecting into live.
func (m *Machine) OnConnected() error {
	return m.transition(StateConnecting, StateLive)
}

// OnConnectFailed rolls a failed connect back to idle.
func (m *Machine) OnConnectFailed() error {
	return m.transition(StateConnecting, StateIdle)
}

// OnDisconnected exits live. Mute does not survive the link.
func (m *Machine) OnDisconnected() {
	m.mu.Lock()
	if m.state != StateLive && m.state != StateConnecting {
		m.mu.Unlock()
		return
	}
	m.state = StateIdle
	m.muted = false
	observer, snap := m.observer, Snapshot{State: m.state, Muted: m.muted, Processing: m.processing}
	m.mu.Unlock()
	notify(observer, snap)
}

// OnStreamStart moves idle into streaming.
func (m *Machine) OnStreamStart() error {
	return m.transition(StateIdle, StateStreaming)
}

// OnStreamStop exits streaming.
func (m *Machine) OnStreamStop() error {
	return m.transition(StateStreaming, StateIdle)
}

// SetMuted updates the mute flag. Only meaningful while live.
func (m *Machine) SetMuted(muted bool) {
	m.mu.Lock()
	if m.muted == muted {
		m.mu.Unlock()
		return
	}
	m.muted = muted
	observer, snap := m.observer, Snapshot{State: m.state, Muted: m.muted, Processing: m.processing}
	m.mu.Unlock()
	notify(observer, snap)
}

// SetProcessing updates the transcription-in-flight flag.
func (m *Machine) SetProcessing(processing bool) {
	m.mu.Lock()
	if m.processing == processing {
		m.mu.Unlock()
		return
	}
	m.processing = processing
	observer, snap := m.observer, Snapshot{State: m.state, Muted: m.muted, Processing: m.processing}
	m.mu.Unlock()
	notify(observer, snap)
}

func (m *Machine) transition(from, to State) error {
	m.mu.Lock()
	if m.state != from {
		current := m.state
		m.mu.Unlock()
		return fmt.Errorf("cannot enter %s from %s", to, current)
	}
	m.state = to
	observer, snap := m.observer, Snapshot{State: m.state, Muted: m.muted, Processing: m.processing}
	m.mu.Unlock()
	notify(observer, snap)
	return nil
}

func notify(observer Observer, snap Snapshot) {
	if observer != nil {
		observer(snap)
	}
}
