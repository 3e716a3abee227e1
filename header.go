package btree

// HeaderSize is the size, in bytes, of the fixed header at offset 0 of
// every page. The field table sums to 14 bytes; see SPEC_FULL.md for why
// this engine treats 14, not 13, as authoritative.
const HeaderSize = 14

// Header byte offsets, in declaration order.
const (
	offNodeType           = 0
	offNumKeys            = 1
	offFreeStart          = 3
	offFreeEnd            = 5
	offFirstFreeblock     = 7
	offFragmentedBytes    = 9
	offRightmostChildPage = 10
)

// NodeType distinguishes a leaf page from an internal page. This engine
// only ever writes NodeTypeLeaf; NodeTypeInternal is reserved for a
// tree-level collaborator.
type NodeType uint8

const (
	// NodeTypeInternal marks a page as holding child-page pointers rather
	// than values. Never produced by this engine.
	NodeTypeInternal NodeType = 0
	// NodeTypeLeaf marks a page as holding key/value slots. The only type
	// this engine writes.
	NodeTypeLeaf NodeType = 1
)

func (n *Node) nodeType() NodeType {
	return NodeType(n.view(offNodeType, 1)[0])
}

func (n *Node) setNodeType(t NodeType) {
	n.mutableView(offNodeType, 1)[0] = byte(t)
}

func (n *Node) numKeys() uint16 {
	return getUint16LE(n.view(offNumKeys, 2))
}

func (n *Node) setNumKeys(v uint16) {
	putUint16LE(n.mutableView(offNumKeys, 2), v)
}

func (n *Node) freeStart() uint16 {
	return getUint16LE(n.view(offFreeStart, 2))
}

func (n *Node) setFreeStart(v uint16) {
	putUint16LE(n.mutableView(offFreeStart, 2), v)
}

func (n *Node) freeEnd() uint16 {
	return getUint16LE(n.view(offFreeEnd, 2))
}

func (n *Node) setFreeEnd(v uint16) {
	putUint16LE(n.mutableView(offFreeEnd, 2), v)
}

func (n *Node) firstFreeblock() uint16 {
	return getUint16LE(n.view(offFirstFreeblock, 2))
}

func (n *Node) setFirstFreeblock(v uint16) {
	putUint16LE(n.mutableView(offFirstFreeblock, 2), v)
}

func (n *Node) fragmentedBytes() uint8 {
	return n.view(offFragmentedBytes, 1)[0]
}

func (n *Node) setFragmentedBytes(v uint8) {
	n.mutableView(offFragmentedBytes, 1)[0] = v
}

func (n *Node) rightmostChildPage() uint32 {
	return getUint32LE(n.view(offRightmostChildPage, 4))
}

func (n *Node) setRightmostChildPage(v uint32) {
	putUint32LE(n.mutableView(offRightmostChildPage, 4), v)
}

// initHeader writes an empty-leaf header: no keys, the full page between
// free_start and free_end, no freeblocks, no fragmentation, and a zeroed
// reserved child pointer.
func (n *Node) initHeader() {
	n.setNodeType(NodeTypeLeaf)
	n.setNumKeys(0)
	n.setFreeStart(HeaderSize)
	n.setFreeEnd(PageSize)
	n.setFirstFreeblock(0)
	n.setFragmentedBytes(0)
	n.setRightmostChildPage(0)
}

// validateHeader checks the structural invariants a loaded header must
// satisfy before any operation may run against it.
func (n *Node) validateHeader() error {
	if t := n.nodeType(); t != NodeTypeLeaf {
		return &InvalidHeaderError{Reason: "node_type is not Leaf"}
	}
	fs, fe := n.freeStart(), n.freeEnd()
	if fs < HeaderSize || fs > fe || fe > PageSize {
		return &InvalidHeaderError{Reason: "free_start/free_end out of range"}
	}
	if uint32(fs) != uint32(HeaderSize)+16*uint32(n.numKeys()) {
		return &InvalidHeaderError{Reason: "free_start inconsistent with num_keys"}
	}
	return nil
}
