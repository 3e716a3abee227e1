package btree

// SlotSize is the fixed size, in bytes, of one key slot.
const SlotSize = 16

// Slot offsets, relative to the start of the slot.
const (
	slotOffKey           = 0
	slotOffLeftChildPage = 8
	slotOffValueOffset   = 12
	slotOffValueLen      = 14
)

// Slot is a decoded copy of one 16-byte key slot. It carries no reference
// to the backing buffer; mutating a Slot value has no effect on the page.
type Slot struct {
	Key           uint64
	LeftChildPage uint32
	ValueOffset   uint16
	ValueLen      uint16
}

// slotPosition returns the byte offset of slot i. The caller is
// responsible for i <= numKeys(); this never fails on its own.
func (n *Node) slotPosition(i int) int {
	return HeaderSize + SlotSize*i
}

// slotKey reads just the key field of slot i, the hot path for binary
// search, without decoding the rest of the slot.
func (n *Node) slotKey(i int) uint64 {
	return getUint64LE(n.view(n.slotPosition(i)+slotOffKey, 8))
}

// readSlot returns a decoded copy of slot i. Precondition: i < numKeys().
func (n *Node) readSlot(i int) Slot {
	b := n.view(n.slotPosition(i), SlotSize)
	return Slot{
		Key:           getUint64LE(b[slotOffKey:]),
		LeftChildPage: getUint32LE(b[slotOffLeftChildPage:]),
		ValueOffset:   getUint16LE(b[slotOffValueOffset:]),
		ValueLen:      getUint16LE(b[slotOffValueLen:]),
	}
}

// writeSlotAt writes slot into the slot array at index i, overwriting
// whatever was there. It does not shift neighboring slots or touch
// num_keys/free_start.
func (n *Node) writeSlotAt(i int, s Slot) {
	b := n.mutableView(n.slotPosition(i), SlotSize)
	putUint64LE(b[slotOffKey:], s.Key)
	putUint32LE(b[slotOffLeftChildPage:], s.LeftChildPage)
	putUint16LE(b[slotOffValueOffset:], s.ValueOffset)
	putUint16LE(b[slotOffValueLen:], s.ValueLen)
}

// findLE performs a binary search over [0, numKeys) for key. If key is
// present, it returns (index, true). Otherwise it returns the insertion
// point — the smallest index whose slot key exceeds key, or numKeys if
// none does — and false.
func (n *Node) findLE(key uint64) (index int, found bool) {
	lo, hi := 0, int(n.numKeys())
	for lo < hi {
		mid := lo + (hi-lo)/2
		k := n.slotKey(mid)
		switch {
		case k == key:
			return mid, true
		case k < key:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// insertSlotAt shifts slots [i, numKeys) right by one slot width, writes
// s at index i, and advances num_keys and free_start by SlotSize.
// Precondition: unallocated() >= SlotSize.
func (n *Node) insertSlotAt(i int, s Slot) {
	count := int(n.numKeys())
	if count > i {
		src := n.mutableView(n.slotPosition(i), (count-i)*SlotSize)
		dst := n.mutableView(n.slotPosition(i+1), (count-i)*SlotSize)
		copy(dst, src)
	}
	n.writeSlotAt(i, s)
	n.setNumKeys(uint16(count + 1))
	n.setFreeStart(n.freeStart() + SlotSize)
}

// popSlotAt copies slot i out, shifts slots (i, numKeys) left by one slot
// width, and retreats num_keys and free_start by SlotSize. Precondition:
// i < numKeys().
func (n *Node) popSlotAt(i int) Slot {
	s := n.readSlot(i)
	count := int(n.numKeys())
	if tail := count - i - 1; tail > 0 {
		dst := n.mutableView(n.slotPosition(i), tail*SlotSize)
		src := n.mutableView(n.slotPosition(i+1), tail*SlotSize)
		copy(dst, src)
	}
	n.setNumKeys(uint16(count - 1))
	n.setFreeStart(n.freeStart() - SlotSize)
	return s
}
