package mwgc

import "testing"

func TestFreeListTakeExact(t *testing.T) {
	buf := make([]byte, 256)
	fl := newFreeList(NewMemory(buf))
	if x := fl.Bytes(); x != 256 {
		t.Errorf("expected 256, got %v", x)
	}
	m, ok := fl.Take(64)
	if !ok {
		t.Fatalf("expected a span")
	}
	if x := m.Len(); x != 64 {
		t.Errorf("expected 64, got %v", x)
	}
	if x := fl.Bytes(); x != 256-64 {
		t.Errorf("expected %v, got %v", 256-64, x)
	}
	if x := len(fl.Chain()); x != 1 {
		t.Errorf("expected a single remaining span, got %v spans", x)
	}
}

func TestFreeListTakeLeavesNoRoomForHeader(t *testing.T) {
	buf := make([]byte, 32)
	fl := newFreeList(NewMemory(buf))
	// leave a remainder smaller than freeSpanHeaderSize: the whole span
	// must leave the list rather than be split.
	m, ok := fl.Take(32 - freeSpanHeaderSize + 1)
	if !ok {
		t.Fatalf("expected a span")
	}
	if x := m.Len(); x != 32-freeSpanHeaderSize+1 {
		t.Errorf("Take must return exactly the requested size, got %v", x)
	}
	if x := fl.Bytes(); x != 0 {
		t.Errorf("undersized remainder should have been absorbed, got %v free bytes", x)
	}
}

func TestFreeListTakeFailsWhenTooBig(t *testing.T) {
	fl := newFreeList(NewMemory(make([]byte, 64)))
	_, ok := fl.Take(128)
	if ok {
		t.Errorf("expected Take to fail for an oversized request")
	}
}

func TestFreeListInsertCoalesces(t *testing.T) {
	buf := make([]byte, 128)
	fl := newFreeList(NewMemory(buf))
	a, _ := fl.Take(32)
	b, _ := fl.Take(32)
	c, _ := fl.Take(32)

	// re-insert every taken span out of address order; they must all
	// merge with each other and with the remaining free tail.
	fl.Insert(c)
	fl.Insert(b)
	fl.Insert(a)

	if x := fl.Bytes(); x != 128 {
		t.Errorf("expected full coalescing back to %v bytes, got %v", 128, x)
	}
	if x := len(fl.Chain()); x != 1 {
		t.Errorf("expected one coalesced span, got %v: %v", x, fl.Chain())
	}
}

func TestFreeListInsertOutOfOrder(t *testing.T) {
	buf := make([]byte, 192)
	fl := newFreeList(NewMemory(buf))
	a, _ := fl.Take(64)
	b, _ := fl.Take(64)
	c, _ := fl.Take(64)

	fl.Insert(c)
	fl.Insert(a)
	fl.Insert(b)

	if x := fl.Bytes(); x != 192 {
		t.Errorf("expected %v, got %v", 192, x)
	}
	if x := len(fl.Chain()); x != 1 {
		t.Errorf("expected full coalescing regardless of insertion order, got %v", fl.Chain())
	}
}

func TestFreeListRemove(t *testing.T) {
	buf := make([]byte, 128)
	fl := newFreeList(NewMemory(buf))
	a, _ := fl.Take(32)
	_, _ = fl.Take(32)
	fl.Insert(a)
	if x := len(fl.Chain()); x != 2 {
		t.Fatalf("expected two disjoint free spans, got %v", fl.Chain())
	}
	fl.Remove(a.Ptr())
	if x := len(fl.Chain()); x != 1 {
		t.Errorf("expected Remove to excise the span, got %v", fl.Chain())
	}
}
