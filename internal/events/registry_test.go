package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistry_UnknownEventHasNoListeners(t *testing.T) {
	r := NewRegistry()

	for _, event := range []string{"connect", "subscription", "error", "never-registered"} {
		if got := r.ListenerCount(event); got != 0 {
			t.Errorf("ListenerCount(%q) = %d, want 0", event, got)
		}
	}
	if got := r.TotalListenerCount(); got != 0 {
		t.Errorf("TotalListenerCount() = %d, want 0", got)
	}
}

func TestRegistry_OnceFiresOnce(t *testing.T) {
	r := NewRegistry()

	var calls int
	r.Once("block", NewListener(func(...any) { calls++ }))

	if n := r.Trigger("block"); n != 1 {
		t.Errorf("first Trigger invoked %d listeners, want 1", n)
	}
	if n := r.Trigger("block"); n != 0 {
		t.Errorf("second Trigger invoked %d listeners, want 0", n)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if got := r.ListenerCount("block"); got != 0 {
		t.Errorf("ListenerCount = %d, want 0", got)
	}
}

func TestRegistry_RepeatFiresInRegistrationOrder(t *testing.T) {
	r := NewRegistry()

	var order []string
	r.On("tick", NewListener(func(...any) { order = append(order, "a") }))
	r.Once("tick", NewListener(func(...any) { order = append(order, "b") }))
	r.On("tick", NewListener(func(...any) { order = append(order, "c") }))

	const n = 3
	for i := 0; i < n; i++ {
		r.Trigger("tick")
	}

	want := []string{"a", "b", "c", "a", "c", "a", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRegistry_TriggerPassesArgs(t *testing.T) {
	r := NewRegistry()

	var got []any
	r.On("close", NewListener(func(args ...any) { got = args }))
	r.Trigger("close", 1006, "abnormal")

	if len(got) != 2 || got[0] != 1006 || got[1] != "abnormal" {
		t.Errorf("args = %v, want [1006 abnormal]", got)
	}
}

func TestRegistry_RemoveListener(t *testing.T) {
	r := NewRegistry()

	var calls int
	l := NewListener(func(...any) { calls++ })
	other := NewListener(func(...any) {})

	r.On("subscription", l)
	r.On("subscription", other)

	if !r.RemoveListener("subscription", l) {
		t.Fatal("RemoveListener returned false for a registered listener")
	}
	if r.RemoveListener("subscription", l) {
		t.Error("RemoveListener returned true for an already removed listener")
	}
	if r.RemoveListener("error", other) {
		t.Error("RemoveListener returned true for the wrong event type")
	}

	r.Trigger("subscription")
	if calls != 0 {
		t.Errorf("removed listener called %d times", calls)
	}
	if got := r.ListenerCount("subscription"); got != 1 {
		t.Errorf("ListenerCount = %d, want 1", got)
	}
}

func TestRegistry_RemoveListenerMatchesIdentity(t *testing.T) {
	r := NewRegistry()

	fn := func(...any) {}
	a := NewListener(fn)
	b := NewListener(fn)

	r.On("x", a)
	if r.RemoveListener("x", b) {
		t.Error("RemoveListener matched a different handle wrapping the same func")
	}
	if !r.RemoveListener("x", a) {
		t.Error("RemoveListener did not match the registered handle")
	}
}

func TestRegistry_RemoveListenerRemovesFirstMatchOnly(t *testing.T) {
	r := NewRegistry()

	var calls int
	l := NewListener(func(...any) { calls++ })
	r.On("x", l)
	r.On("x", l)

	r.RemoveListener("x", l)
	r.Trigger("x")

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRegistry_RemoveAllListeners(t *testing.T) {
	r := NewRegistry()

	r.On("error", NewListener(func(...any) {}))
	r.Once("error", NewListener(func(...any) {}))
	r.On("connect", NewListener(func(...any) {}))

	r.RemoveAllListeners("error")

	if got := r.ListenerCount("error"); got != 0 {
		t.Errorf("ListenerCount(error) = %d, want 0", got)
	}
	if got := r.TotalListenerCount(); got != 1 {
		t.Errorf("TotalListenerCount() = %d, want 1", got)
	}

	// Clearing an unknown type is a no-op.
	r.RemoveAllListeners("unknown")
}

func TestRegistry_OnceReregisteringItself(t *testing.T) {
	r := NewRegistry()

	var calls int
	var l *Listener
	l = NewListener(func(...any) {
		calls++
		r.Once("ping", l)
	})
	r.Once("ping", l)

	r.Trigger("ping")
	if calls != 1 {
		t.Fatalf("calls after first trigger = %d, want 1", calls)
	}
	if got := r.ListenerCount("ping"); got != 1 {
		t.Fatalf("ListenerCount = %d, want 1 (re-registered)", got)
	}

	r.Trigger("ping")
	if calls != 2 {
		t.Errorf("calls after second trigger = %d, want 2", calls)
	}
}

func TestRegistry_ReentrantTriggerDoesNotDoubleFireOnce(t *testing.T) {
	r := NewRegistry()

	var onceCalls int
	nested := false
	r.On("e", NewListener(func(...any) {
		if !nested {
			nested = true
			r.Trigger("e")
		}
	}))
	r.Once("e", NewListener(func(...any) { onceCalls++ }))

	r.Trigger("e")

	if onceCalls != 1 {
		t.Errorf("once listener fired %d times, want 1", onceCalls)
	}
}

func TestRegistry_PanicIsolated(t *testing.T) {
	var panicked []string
	r := NewRegistry(WithPanicHandler(func(event string, rec any) {
		panicked = append(panicked, event)
	}))

	var after int
	r.On("subscription", NewListener(func(...any) { panic("boom") }))
	r.On("subscription", NewListener(func(...any) { after++ }))

	if n := r.Trigger("subscription"); n != 2 {
		t.Errorf("Trigger invoked %d listeners, want 2", n)
	}
	if after != 1 {
		t.Errorf("listener after the panicking one ran %d times, want 1", after)
	}
	if len(panicked) != 1 || panicked[0] != "subscription" {
		t.Errorf("panic handler saw %v, want [subscription]", panicked)
	}
}

func TestRegistry_NilListenerIgnored(t *testing.T) {
	r := NewRegistry()
	r.On("x", nil)
	r.Once("x", NewListener(nil))

	if got := r.ListenerCount("x"); got != 0 {
		t.Errorf("ListenerCount = %d, want 0", got)
	}
}

func TestRegistry_OnConnect(t *testing.T) {
	r := NewRegistry()

	done := r.OnConnect()
	if got := r.ListenerCount(EventConnect); got != 1 {
		t.Fatalf("ListenerCount(connect) = %d, want 1", got)
	}

	select {
	case <-done:
		t.Fatal("OnConnect resolved before connect fired")
	default:
	}

	r.Trigger(EventConnect)
	r.Trigger(EventConnect) // must not close twice

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnConnect did not resolve")
	}
}

func TestRegistry_ConcurrentTriggerFiresOnceExactlyOnce(t *testing.T) {
	r := NewRegistry()

	var calls atomic.Int32
	r.Once("e", NewListener(func(...any) { calls.Add(1) }))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Trigger("e")
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("once listener fired %d times, want 1", got)
	}
}

func TestFrequency_String(t *testing.T) {
	tests := []struct {
		f    Frequency
		want string
	}{
		{Repeat, "repeat"},
		{Once, "once"},
		{Frequency(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("Frequency(%d).String() = %q, want %q", tt.f, got, tt.want)
		}
	}
}
