package btree

// maxValueLen is the exclusive upper bound on a value's length: values of
// 65536 bytes or more are rejected as a programming-contract violation,
// not a recoverable allocator failure.
const maxValueLen = 1 << 16

// Node is a single 4096-byte slotted-page leaf, backed by a caller-owned
// buffer. A Node never outlives the buffer it was constructed over. Bytes
// are copied out of it into the return values of Insert and Delete, into a
// scratch buffer during defragmentation, and into a full-page snapshot
// when Insert replaces an existing key.
// Concurrent use of the same Node from multiple goroutines is the
// caller's responsibility to serialize; Node itself holds no lock.
type Node struct {
	buf []byte
}

// KV is an owned key/value pair handed back by Insert (on replace) and
// Delete.
type KV struct {
	Key   uint64
	Value []byte
}

// New initializes buf as an empty leaf page and returns a Node backed by
// it. buf must be exactly PageSize bytes; its prior contents are
// discarded.
func New(buf []byte) (*Node, error) {
	if len(buf) != PageSize {
		return nil, &OpError{Op: "New", Err: &SizeMismatchError{Expected: PageSize, Actual: len(buf)}}
	}
	n := &Node{buf: buf}
	n.initHeader()
	return n, nil
}

// Load reinterprets buf as an already-initialized page, validating its
// header without writing anything. buf must be exactly PageSize bytes.
func Load(buf []byte) (*Node, error) {
	if len(buf) != PageSize {
		return nil, &OpError{Op: "Load", Err: &SizeMismatchError{Expected: PageSize, Actual: len(buf)}}
	}
	n := &Node{buf: buf}
	if err := n.validateHeader(); err != nil {
		return nil, &OpError{Op: "Load", Err: err}
	}
	return n, nil
}

// NumKeys reports the number of occupied slots. Exposed for a tree-level
// collaborator deciding whether a page needs to split.
func (n *Node) NumKeys() uint16 {
	return n.numKeys()
}

// FreeSpace reports total reclaimable space: the unallocated gap plus
// every freeblock's size plus the fragmented-byte count. Exposed for a
// tree-level collaborator deciding whether a page needs to split or
// should be defragmented proactively.
func (n *Node) FreeSpace() uint16 {
	return n.freeSpace()
}

// Defragment repacks the payload region into a single contiguous block,
// voiding every freeblock and the fragmentation counter. It is safe to
// call on an already-defragmented page: the operation is idempotent.
func (n *Node) Defragment() {
	n.defragment()
}

// Get returns the value stored under key, or (nil, false) if key is not
// present. The returned slice aliases the page buffer directly; the
// caller must not retain it past the next mutating call on this Node.
func (n *Node) Get(key uint64) ([]byte, bool) {
	idx, found := n.findLE(key)
	if !found {
		return nil, false
	}
	s := n.readSlot(idx)
	return n.view(int(s.ValueOffset), int(s.ValueLen)), true
}

// Insert stores value under key. If key was already present, its prior
// value is replaced and returned as *KV; otherwise a new slot is created
// and Insert returns (nil, nil). On any error the page is left
// byte-identical to its state before the call.
func (n *Node) Insert(key uint64, value []byte) (*KV, error) {
	if len(value) >= maxValueLen {
		return nil, &OpError{Op: "Insert", Err: &InvalidValueLengthError{Length: len(value)}}
	}

	idx, exists := n.findLE(key)
	if exists {
		return n.replace(idx, value)
	}

	offset, err := n.allocate(value)
	if err != nil {
		return nil, &OpError{Op: "Insert", Err: err}
	}
	n.insertSlotAt(idx, Slot{Key: key, ValueOffset: offset, ValueLen: uint16(len(value))})
	return nil, nil
}

// replace implements the insert-over-an-existing-key path: free the old
// value, allocate the new one, and rewrite the slot in place. A full-page
// snapshot guards the allocator failure case, since freeing the old value
// before allocating the new one can otherwise leave the page mutated
// ahead of a surfaced error.
//
// Slot idx is stubbed to ValueLen 0 before the old region is freed. If
// allocate falls back to defragment, defragment walks every slot in
// [0, numKeys) and copies its value forward as live; without the stub it
// would still see idx's stale (ValueOffset, ValueLen) and revive the very
// bytes freeRegion just reclaimed, corrupting the free-space accounting
// and, on a tight page, tripping the allocator's post-defragment panic.
func (n *Node) replace(idx int, value []byte) (*KV, error) {
	old := n.readSlot(idx)
	oldValue := make([]byte, old.ValueLen)
	copy(oldValue, n.view(int(old.ValueOffset), int(old.ValueLen)))

	snapshot := make([]byte, len(n.buf))
	copy(snapshot, n.buf)

	n.writeSlotAt(idx, Slot{Key: old.Key, LeftChildPage: old.LeftChildPage, ValueOffset: old.ValueOffset, ValueLen: 0})
	n.freeRegion(old.ValueOffset, old.ValueLen)

	offset, err := n.allocate(value)
	if err != nil {
		copy(n.buf, snapshot)
		return nil, &OpError{Op: "Insert", Err: err}
	}

	newSlot := old
	newSlot.ValueOffset = offset
	newSlot.ValueLen = uint16(len(value))
	n.writeSlotAt(idx, newSlot)

	return &KV{Key: old.Key, Value: oldValue}, nil
}

// Delete removes key and returns its prior key/value, or (nil, nil) if
// key was not present. Delete never fails.
func (n *Node) Delete(key uint64) (*KV, error) {
	idx, found := n.findLE(key)
	if !found {
		return nil, nil
	}
	old := n.readSlot(idx)
	value := make([]byte, old.ValueLen)
	copy(value, n.view(int(old.ValueOffset), int(old.ValueLen)))

	n.popSlotAt(idx)
	n.freeRegion(old.ValueOffset, old.ValueLen)

	return &KV{Key: old.Key, Value: value}, nil
}
