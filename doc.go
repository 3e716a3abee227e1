// Package btree implements a single-page slotted B-tree leaf node.
//
// A Node wraps a caller-owned 4096-byte buffer and packs an ordered mapping
// from uint64 keys to variable-length byte values onto it using
// SQLite-style slotted-page discipline: a fixed header at the low end, a
// sorted array of fixed-size key slots growing upward from the header, and
// variable-length value payloads growing downward from the high end. Holes
// left by deletions are tracked through an in-page freeblock chain and a
// saturating fragmented-byte counter; Defragment compacts the payload region
// on demand.
//
// This package implements only the single-node page engine. Multi-page tree
// structure, a pager, on-disk persistence, and concurrent access to the same
// page are the responsibility of a collaborator layered on top.
//
// Basic usage:
//
//	buf := make([]byte, btree.PageSize)
//	node, err := btree.New(buf)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if _, err := node.Insert(42, []byte("hello")); err != nil {
//	    log.Fatal(err)
//	}
//
//	value, ok := node.Get(42)
package btree
