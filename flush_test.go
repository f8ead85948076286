package lsock

import "testing"

func TestNeedsFlushCleanElidesFlush(t *testing.T) {
	var n NeedsFlush
	if n.NeedsLimbo() {
		t.Fatal("fresh NeedsFlush should not need limbo")
	}
	if n.OnFlush() {
		t.Fatal("clean flush state should not require a flush")
	}
}

func TestNeedsFlushDirtyRequiresOneFlush(t *testing.T) {
	var n NeedsFlush
	n.MarkDirty()
	if !n.NeedsLimbo() {
		t.Fatal("dirty state should need limbo")
	}
	if !n.OnFlush() {
		t.Fatal("dirty state should require a flush")
	}
	if n.OnFlush() {
		t.Fatal("flush should have cleared the dirty flag")
	}
}

func TestNeedsFlushAlwaysNeverElides(t *testing.T) {
	var n NeedsFlush
	n.MarkShared()
	for i := 0; i < 3; i++ {
		if !n.OnFlush() {
			t.Fatalf("round %d: Always state must always require a flush", i)
		}
		if !n.NeedsLimbo() {
			t.Fatalf("round %d: Always state must always need limbo", i)
		}
	}
}

func TestNeedsFlushMarkDirtyDoesNotDemoteAlways(t *testing.T) {
	var n NeedsFlush
	n.MarkShared()
	n.MarkDirty()
	if !n.OnFlush() {
		t.Fatal("Always must stick even after MarkDirty")
	}
}

func TestNeedsFlushAssumeFlushed(t *testing.T) {
	var n NeedsFlush
	n.MarkDirty()
	n.AssumeFlushed()
	if n.NeedsLimbo() {
		t.Fatal("AssumeFlushed should clear limbo eligibility")
	}
}
