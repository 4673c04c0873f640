package fsm

import "testing"

func TestMachineDefault(t *testing.T) {
	m := New()
	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
	snap := m.Snapshot()
	if snap.Muted || snap.Processing {
		t.Fatalf("snapshot=%+v, want clear flags", snap)
	}
}

func TestMachineLiveLifecycle(t *testing.T) {
	m := New()
	if err := m.OnConnectStart(); err != nil {
		t.Fatalf("OnConnectStart: %v", err)
	}
	if err := m.OnConnected(); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}
	if got := m.State(); got != StateLive {
		t.Fatalf("state=%s, want %s", got, StateLive)
	}

	m.SetMuted(true)
	if snap := m.Snapshot(); !snap.Muted {
		t.Fatal("Muted=false, want true")
	}

	m.OnDisconnected()
	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
	if snap := m.Snapshot(); snap.Muted {
		t.Fatal("Muted survived disconnect")
	}
}

func TestMachineConnectFailure(t *testing.T) {
	m := New()
	if err := m.OnConnectStart(); err != nil {
		t.Fatalf("OnConnectStart: %v", err)
	}
	if err := m.OnConnectFailed(); err != nil {
		t.Fatalf("OnConnectFailed: %v", err)
	}
	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
}

func TestMachineStreamLifecycle(t *testing.T) {
	m := New()
	if err := m.OnStreamStart(); err != nil {
		t.Fatalf("OnStreamStart: %v", err)
	}
	m.SetProcessing(true)
	if snap := m.Snapshot(); !snap.Processing {
		t.Fatal("Processing=false, want true")
	}
	if err := m.OnStreamStop(); err != nil {
		t.Fatalf("OnStreamStop: %v", err)
	}
	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
}

func TestMachineModesAreExclusive(t *testing.T) {
	m := New()
	if err := m.OnStreamStart(); err != nil {
		t.Fatalf("OnStreamStart: %v", err)
	}
	if err := m.OnConnectStart(); err == nil {
		t.Fatal("expected error connecting while streaming")
	}

	m2 := New()
	if err := m2.OnConnectStart(); err != nil {
		t.Fatalf("OnConnectStart: %v", err)
	}
	if err := m2.OnConnected(); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}
	if err := m2.OnStreamStart(); err == nil {
		t.Fatal("expected error streaming while live")
	}
}

func TestMachineObserver(t *testing.T) {
	m := New()
	var snaps []Snapshot
	m.SetObserver(func(snap Snapshot) { snaps = append(snaps, snap) })

	if err := m.OnStreamStart(); err != nil {
		t.Fatalf("OnStreamStart: %v", err)
	}
	m.SetProcessing(true)
	m.SetProcessing(true) // no-op, no extra notification

	if len(snaps) != 2 {
		t.Fatalf("notifications=%d, want 2", len(snaps))
	}
	if snaps[0].State != StateStreaming {
		t.Fatalf("first state=%s, want %s", snaps[0].State, StateStreaming)
	}
	if !snaps[1].Processing {
		t.Fatal("second snapshot Processing=false, want true")
	}
}
