package event

import "testing"

func TestEmitter_OnAndEmit(t *testing.T) {
	e := NewEmitter()

	var got []string
	e.On(ConnectionStateChanged, func(ev Event) {
		got = append(got, ev.(ConnectionStateChangedEvent).State)
	})

	e.Emit(ConnectionStateChangedEvent{State: "connecting"})
	e.Emit(ConnectionStateChangedEvent{State: "connected"})
	// A different event name must not reach the listener.
	e.Emit(BackendSwitchedEvent{Active: "remote"})

	if len(got) != 2 || got[0] != "connecting" || got[1] != "connected" {
		t.Fatalf("listener received %v, want [connecting connected]", got)
	}
}

func TestEmitter_Unsubscribe(t *testing.T) {
	e := NewEmitter()

	count := 0
	off := e.On(BackendSwitched, func(Event) { count++ })

	e.Emit(BackendSwitchedEvent{Active: "remote"})
	off()
	e.Emit(BackendSwitchedEvent{Active: "local"})

	if count != 1 {
		t.Fatalf("listener fired %d times after unsubscribe, want 1", count)
	}
}
