package concurrency

import (
	"strings"
	"testing"
)

func TestLockUnlockRoundTrip(t *testing.T) {
	d := New("test primitive", false)
	g := d.Lock()
	g.Release()
	// Should be lockable again now that it was released.
	d.Lock().Release()
}

func TestConcurrentLockPanics(t *testing.T) {
	d := New("named pipe", true)
	g := d.Lock()
	defer g.Release()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on concurrent lock, got none")
		}
		msg, ok := r.(string)
		if !ok || !strings.Contains(msg, "deadlock") {
			t.Fatalf("unexpected panic message: %v", r)
		}
	}()
	d.Lock()
}

func TestPanicMessageVariesByDeadlockRisk(t *testing.T) {
	cases := []struct {
		wouldDeadlock bool
		want          string
	}{
		{true, "because it would have caused a deadlock"},
		{false, "to avoid portability issues"},
	}
	for _, c := range cases {
		d := New("local socket", c.wouldDeadlock)
		d.Lock()
		func() {
			defer func() {
				r := recover()
				msg, _ := r.(string)
				if !strings.Contains(msg, c.want) {
					t.Fatalf("wouldDeadlock=%v: expected message to contain %q, got %q", c.wouldDeadlock, c.want, msg)
				}
			}()
			d.Lock()
		}()
	}
}
