package btree

import (
	"bytes"
	"testing"
)

func TestEmptyPage(t *testing.T) {
	n, err := New(make([]byte, PageSize))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n.NumKeys() != 0 {
		t.Errorf("NumKeys() = %d, want 0", n.NumKeys())
	}
	if got := n.freeStart(); got != HeaderSize {
		t.Errorf("free_start = %d, want %d", got, HeaderSize)
	}
	if got := n.freeEnd(); got != PageSize {
		t.Errorf("free_end = %d, want %d", got, PageSize)
	}
	if got := n.firstFreeblock(); got != 0 {
		t.Errorf("first_freeblock = %d, want 0", got)
	}
	if got := n.fragmentedBytes(); got != 0 {
		t.Errorf("fragmented_bytes = %d, want 0", got)
	}
	for _, k := range []uint64{0, 1, 42, ^uint64(0)} {
		if _, ok := n.Get(k); ok {
			t.Errorf("Get(%d) on empty page returned ok=true", k)
		}
	}
}

func TestInsertGetRoundTrip(t *testing.T) {
	n, err := New(make([]byte, PageSize))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	entries := map[uint64]string{1: "one", 2: "two", 3: "three"}
	for k, v := range entries {
		if prev, err := n.Insert(k, []byte(v)); err != nil || prev != nil {
			t.Fatalf("Insert(%d, %q) = %+v, %v, want nil, nil", k, v, prev, err)
		}
	}
	for k, v := range entries {
		got, ok := n.Get(k)
		if !ok || string(got) != v {
			t.Errorf("Get(%d) = %q, %v, want %q, true", k, got, ok, v)
		}
	}
	if _, ok := n.Get(999); ok {
		t.Error("Get(999) should be absent")
	}
}

func TestOutOfOrderInsertionPreservesOrder(t *testing.T) {
	n, err := New(make([]byte, PageSize))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	values := map[uint64]string{
		50: "fifty!",
		20: "twenty",
		70: "sev-70",
		10: "ten",
		40: "forty4",
	}
	order := []uint64{50, 20, 70, 10, 40}
	for _, k := range order {
		if _, err := n.Insert(k, []byte(values[k])); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}

	wantOrder := []uint64{10, 20, 40, 50, 70}
	if int(n.NumKeys()) != len(wantOrder) {
		t.Fatalf("NumKeys() = %d, want %d", n.NumKeys(), len(wantOrder))
	}
	for i, k := range wantOrder {
		if got := n.readSlot(i).Key; got != k {
			t.Errorf("slot %d key = %d, want %d", i, got, k)
		}
	}
	for k, v := range values {
		got, ok := n.Get(k)
		if !ok || string(got) != v {
			t.Errorf("Get(%d) = %q, %v, want %q, true", k, got, ok, v)
		}
	}

	if _, err := n.Delete(20); err != nil {
		t.Fatalf("Delete(20): %v", err)
	}
	if _, err := n.Delete(50); err != nil {
		t.Fatalf("Delete(50): %v", err)
	}
	for _, k := range []uint64{10, 40, 70} {
		got, ok := n.Get(k)
		if !ok || string(got) != values[k] {
			t.Errorf("Get(%d) after deletes = %q, %v, want %q, true", k, got, ok, values[k])
		}
	}
	for _, k := range []uint64{20, 50} {
		if _, ok := n.Get(k); ok {
			t.Errorf("Get(%d) should be absent after delete", k)
		}
	}
}

func TestInsertReplaceReturnsPreviousValue(t *testing.T) {
	n, err := New(make([]byte, PageSize))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := n.Insert(7, []byte("first")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	prev, err := n.Insert(7, []byte("second-value"))
	if err != nil {
		t.Fatalf("Insert (replace): %v", err)
	}
	if prev == nil || prev.Key != 7 || string(prev.Value) != "first" {
		t.Fatalf("Insert (replace) returned %+v, want Key=7 Value=\"first\"", prev)
	}
	if n.NumKeys() != 1 {
		t.Fatalf("NumKeys() after replace = %d, want 1", n.NumKeys())
	}
	got, ok := n.Get(7)
	if !ok || string(got) != "second-value" {
		t.Fatalf("Get(7) after replace = %q, %v, want %q, true", got, ok, "second-value")
	}
}

func TestInsertReplaceWithShorterAndLongerValues(t *testing.T) {
	n, err := New(make([]byte, PageSize))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := n.Insert(1, []byte("medium-length")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if _, err := n.Insert(1, []byte("x")); err != nil {
		t.Fatalf("Insert (shrink): %v", err)
	}
	if got, ok := n.Get(1); !ok || string(got) != "x" {
		t.Fatalf("Get(1) after shrink = %q, %v, want %q, true", got, ok, "x")
	}

	longer := bytes.Repeat([]byte{'y'}, 200)
	if _, err := n.Insert(1, longer); err != nil {
		t.Fatalf("Insert (grow): %v", err)
	}
	if got, ok := n.Get(1); !ok || !bytes.Equal(got, longer) {
		t.Fatalf("Get(1) after grow = len %d, %v, want len %d, true", len(got), ok, len(longer))
	}
}

// TestInsertReplaceForcesDefragment hand-builds a page where replacing
// key 1 cannot take the allocator's fast path (the unallocated gap is
// smaller than SlotSize) and no single freeblock is large enough for the
// new value either, forcing allocate() through defragment. Before the
// old value's slot was stubbed ahead of freeRegion, defragment would
// still see the stale (pre-free) slot as live, re-consume the bytes that
// were just reclaimed, and either corrupt the free-space accounting or
// spuriously panic on this exact, otherwise-valid sequence of calls.
func TestInsertReplaceForcesDefragment(t *testing.T) {
	n, err := New(make([]byte, PageSize))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	valueA := bytes.Repeat([]byte{0xAA}, 1000) // key 3, survives untouched
	valueB := bytes.Repeat([]byte{0xBB}, 1000) // key 2, survives untouched
	valueC := bytes.Repeat([]byte{0xCC}, 1946) // key 1, replaced below

	n.insertSlotAt(0, Slot{Key: 1, ValueOffset: 2150, ValueLen: uint16(len(valueC))})
	n.insertSlotAt(1, Slot{Key: 2, ValueOffset: 1110, ValueLen: uint16(len(valueB))})
	n.insertSlotAt(2, Slot{Key: 3, ValueOffset: 70, ValueLen: uint16(len(valueA))})

	copy(n.mutableView(70, len(valueA)), valueA)
	copy(n.mutableView(1110, len(valueB)), valueB)
	copy(n.mutableView(2150, len(valueC)), valueC)

	// Two freeblocks (40 bytes each) sit between the live values; neither
	// is large enough to fit the 2000-byte replacement below, and the
	// unallocated gap is deliberately tiny, so only a defragment pass can
	// free enough contiguous space.
	n.writeFreeblock(1070, Freeblock{Next: 2110, Size: 40})
	n.writeFreeblock(2110, Freeblock{Next: 0, Size: 40})
	n.setFirstFreeblock(1070)
	n.setFreeEnd(70)

	if got := n.unallocated(); got >= SlotSize {
		t.Fatalf("test setup: unallocated = %d, want < %d to block the fast path", got, SlotSize)
	}

	newValue := bytes.Repeat([]byte{0xDD}, 2000)
	prev, err := n.Insert(1, newValue)
	if err != nil {
		t.Fatalf("Insert (replace forcing defragment): %v", err)
	}
	if prev == nil {
		t.Fatal("Insert (replace) returned a nil previous value")
	}
	if prev.Key != 1 || !bytes.Equal(prev.Value, valueC) {
		t.Fatalf("replace returned previous value of length %d for key %d, want the original 1946-byte value for key 1", len(prev.Value), prev.Key)
	}

	if got := n.firstFreeblock(); got != 0 {
		t.Errorf("first_freeblock after forced defragment = %d, want 0", got)
	}
	if got := n.fragmentedBytes(); got != 0 {
		t.Errorf("fragmented_bytes after forced defragment = %d, want 0", got)
	}

	if got, ok := n.Get(1); !ok || !bytes.Equal(got, newValue) {
		t.Fatalf("Get(1) = len %d ok=%v, want the new 2000-byte value", len(got), ok)
	}
	if got, ok := n.Get(2); !ok || !bytes.Equal(got, valueB) {
		t.Fatal("Get(2) lost or corrupted across the forced defragment")
	}
	if got, ok := n.Get(3); !ok || !bytes.Equal(got, valueA) {
		t.Fatal("Get(3) lost or corrupted across the forced defragment")
	}
}

func TestInsertReplaceLeavesPageUnchangedOnFailure(t *testing.T) {
	n, err := New(make([]byte, PageSize))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := n.Insert(1, []byte("small")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	before := make([]byte, PageSize)
	copy(before, n.buf)

	tooBig := make([]byte, PageSize)
	if _, err := n.Insert(1, tooBig); err == nil {
		t.Fatal("expected NotEnoughSpaceError, got nil")
	}

	if !bytes.Equal(before, n.buf) {
		t.Fatal("page bytes changed after a failed replace")
	}
	if got, ok := n.Get(1); !ok || string(got) != "small" {
		t.Fatalf("Get(1) after failed replace = %q, %v, want %q, true", got, ok, "small")
	}
}

func TestDeleteAbsentKeyIsNoop(t *testing.T) {
	n, err := New(make([]byte, PageSize))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := n.Insert(1, []byte("a")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	kv, err := n.Delete(999)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if kv != nil {
		t.Fatalf("Delete(999) = %+v, want nil", kv)
	}
	if n.NumKeys() != 1 {
		t.Fatalf("NumKeys() = %d, want 1", n.NumKeys())
	}
}

func TestInsertRejectsOversizedValue(t *testing.T) {
	n, err := New(make([]byte, PageSize))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = n.Insert(1, make([]byte, maxValueLen))
	if err == nil {
		t.Fatal("expected an invalid value length error, got nil")
	}
	opErr, ok := err.(*OpError)
	if !ok {
		t.Fatalf("expected *OpError, got %T", err)
	}
	if _, ok := opErr.Err.(*InvalidValueLengthError); !ok {
		t.Fatalf("expected *InvalidValueLengthError, got %T", opErr.Err)
	}
	if n.NumKeys() != 0 {
		t.Fatalf("page mutated after rejected insert: NumKeys() = %d", n.NumKeys())
	}
}

func TestLoadRoundTripsAcrossBuffers(t *testing.T) {
	buf := make([]byte, PageSize)
	n, err := New(buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := n.Insert(5, []byte("persisted")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	reloaded, err := Load(buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, ok := reloaded.Get(5)
	if !ok || string(got) != "persisted" {
		t.Fatalf("Get(5) after Load = %q, %v, want %q, true", got, ok, "persisted")
	}
}
