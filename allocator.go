package btree

import "sync"

// scratchPool recycles the temporary buffer defragment uses to repack the
// payload region, mirroring the scratch-buffer pool gdbx's page compactor
// keeps for the same purpose.
var scratchPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, PageSize-HeaderSize)
		return &buf
	},
}

// unallocated is the size, in bytes, of the gap between the slot array and
// the payload region.
func (n *Node) unallocated() uint16 {
	return n.freeEnd() - n.freeStart()
}

// freeSpace is the total reclaimable space: the unallocated gap, plus
// every freeblock's size, plus the fragmented-byte count.
func (n *Node) freeSpace() uint16 {
	total := uint32(n.unallocated()) + uint32(n.fragmentedBytes())
	for offset := n.firstFreeblock(); offset != 0; {
		fb := n.readFreeblock(offset)
		total += uint32(fb.Size)
		offset = fb.Next
	}
	return uint16(total)
}

func saturatingAddU8(a, b uint8) uint8 {
	sum := uint16(a) + uint16(b)
	if sum > 255 {
		return 255
	}
	return uint8(sum)
}

// allocate reserves space for value in the payload region and writes it
// through, returning the offset it was written at. It never partially
// mutates the page before returning a NotEnoughSpaceError: the budget
// check happens before anything is written.
func (n *Node) allocate(value []byte) (uint16, error) {
	v := len(value)
	if int(n.unallocated()) >= SlotSize+v {
		return n.allocateFast(value), nil
	}

	fs := n.freeSpace()
	if int(fs) < SlotSize+v {
		return 0, &NotEnoughSpaceError{Required: uint32(SlotSize + v), Actual: fs}
	}

	if int(n.unallocated()) >= SlotSize {
		if offset, ok := n.allocateFromFreeblocks(value); ok {
			return offset, nil
		}
	}

	logf(LogLevelTrace, "allocator falling back to defragment for %d-byte value", v)
	n.defragment()
	if int(n.unallocated()) < SlotSize+v {
		panic("btree: allocator invariant violated: defragment did not free enough space")
	}
	return n.allocateFast(value), nil
}

// allocateFast places value at the high end of the current gap. Caller
// must have already verified unallocated() >= SlotSize+len(value).
func (n *Node) allocateFast(value []byte) uint16 {
	newFreeEnd := n.freeEnd() - uint16(len(value))
	n.setFreeEnd(newFreeEnd)
	copy(n.mutableView(int(newFreeEnd), len(value)), value)
	return newFreeEnd
}

// allocateFromFreeblocks performs first-fit search over the freeblock
// chain, splitting, fragmenting, or fully unlinking the chosen block per
// the allocation policy. ok is false if no freeblock is large enough.
func (n *Node) allocateFromFreeblocks(value []byte) (offset uint16, ok bool) {
	v := uint16(len(value))
	var prevOffset uint16
	hasPrev := false

	for cur := n.firstFreeblock(); cur != 0; {
		fb := n.readFreeblock(cur)
		if fb.Size < v {
			prevOffset, hasPrev = cur, true
			cur = fb.Next
			continue
		}

		switch remainder := fb.Size - v; {
		case remainder == 0:
			n.patchFreeblockLink(hasPrev, prevOffset, fb.Next)
		case remainder >= FreeblockSize:
			newBlock := cur + v
			n.writeFreeblock(newBlock, Freeblock{Next: fb.Next, Size: remainder})
			n.patchFreeblockLink(hasPrev, prevOffset, newBlock)
		default:
			n.patchFreeblockLink(hasPrev, prevOffset, fb.Next)
			n.setFragmentedBytes(saturatingAddU8(n.fragmentedBytes(), uint8(remainder)))
		}

		copy(n.mutableView(int(cur), int(v)), value)
		logf(LogLevelTrace, "allocated %d bytes from freeblock at offset %d", v, cur)
		return cur, true
	}
	return 0, false
}

// patchFreeblockLink repoints the predecessor of a freeblock (or the
// header's first_freeblock field, if there is no predecessor) at newNext.
func (n *Node) patchFreeblockLink(hasPrev bool, prevOffset, newNext uint16) {
	if !hasPrev {
		n.setFirstFreeblock(newNext)
		return
	}
	prev := n.readFreeblock(prevOffset)
	prev.Next = newNext
	n.writeFreeblock(prevOffset, prev)
}

// freeRegion reclaims the value region [offset, offset+length) per the
// free policy: boundary collapse, fragmentation, or freeblock insertion
// at the ascending-offset insertion point.
func (n *Node) freeRegion(offset, length uint16) {
	if offset == n.freeEnd() {
		n.setFreeEnd(offset + length)
		return
	}
	if length < FreeblockSize {
		n.setFragmentedBytes(saturatingAddU8(n.fragmentedBytes(), uint8(length)))
		return
	}

	var prevOffset uint16
	hasPrev := false
	cur := n.firstFreeblock()
	for cur != 0 && cur < offset {
		prevOffset, hasPrev = cur, true
		cur = n.readFreeblock(cur).Next
	}

	n.writeFreeblock(offset, Freeblock{Next: cur, Size: length})
	n.patchFreeblockLink(hasPrev, prevOffset, offset)
}

// defragment repacks every live value into a single contiguous block
// against PageSize, voiding every freeblock and the fragmentation
// counter. It preserves slot order, keys, and value bytes exactly.
func (n *Node) defragment() {
	count := int(n.numKeys())

	bufPtr := scratchPool.Get().(*[]byte)
	scratch := (*bufPtr)[:0]
	defer func() {
		*bufPtr = scratch[:0]
		scratchPool.Put(bufPtr)
	}()

	relOffsets := make([]uint16, count)
	pos := 0
	for i := 0; i < count; i++ {
		s := n.readSlot(i)
		relOffsets[i] = uint16(pos)
		scratch = append(scratch, n.view(int(s.ValueOffset), int(s.ValueLen))...)
		pos += int(s.ValueLen)
	}

	newFreeEnd := uint16(PageSize - pos)
	if pos > 0 {
		copy(n.mutableView(int(newFreeEnd), pos), scratch)
	}

	for i := 0; i < count; i++ {
		s := n.readSlot(i)
		s.ValueOffset = newFreeEnd + relOffsets[i]
		n.writeSlotAt(i, s)
	}

	n.setFreeEnd(newFreeEnd)
	n.setFirstFreeblock(0)
	n.setFragmentedBytes(0)
	logf(LogLevelTrace, "defragment: packed %d live values into %d bytes", count, pos)
}
