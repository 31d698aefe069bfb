// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"sync"

	"github.com/google/btree"
)

// A nodeRef tracks how many references the kernel holds on one node:
// the number of successful entry replies naming it, minus the
// references dropped by FORGET.
type nodeRef struct {
	id   NodeID
	refs uint64
}

func (n *nodeRef) Less(than btree.Item) bool {
	return n.id < than.(*nodeRef).id
}

// nodeTable is the session's node reference bookkeeping. The kernel
// promises one eventual FORGET for every reference handed out; the
// table is what lets a server know when it may drop per-node state,
// and on unmount, which nodes were never forgotten.
type nodeTable struct {
	mu sync.Mutex
	t  *btree.BTree
}

func (nt *nodeTable) ref(id NodeID) {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	if nt.t == nil {
		nt.t = btree.New(32)
	}
	if it := nt.t.Get(&nodeRef{id: id}); it != nil {
		it.(*nodeRef).refs++
		return
	}
	nt.t.ReplaceOrInsert(&nodeRef{id: id, refs: 1})
}

// forget drops n references from id. It reports how many references
// were actually held before the drop; a return smaller than n means
// the count was clamped at zero. The entry is removed once no
// references remain.
func (nt *nodeTable) forget(id NodeID, n uint64) (held uint64) {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	if nt.t == nil {
		return 0
	}
	it := nt.t.Get(&nodeRef{id: id})
	if it == nil {
		return 0
	}
	ref := it.(*nodeRef)
	held = ref.refs
	if n >= ref.refs {
		nt.t.Delete(ref)
		return held
	}
	ref.refs -= n
	return held
}

func (nt *nodeTable) get(id NodeID) uint64 {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	if nt.t == nil {
		return 0
	}
	if it := nt.t.Get(&nodeRef{id: id}); it != nil {
		return it.(*nodeRef).refs
	}
	return 0
}

func (nt *nodeTable) len() int {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	if nt.t == nil {
		return 0
	}
	return nt.t.Len()
}

// rememberNode records one kernel reference on id. Entry replies call
// this; the root node is implicit and id 0 marks a negative entry,
// neither is tracked.
func (s *Session) rememberNode(id NodeID) {
	if id == 0 || id == RootID {
		return
	}
	s.nodes.ref(id)
}

// forgetNode drops n references from id. The kernel occasionally
// forgets more than it was given, for example after an entry reply
// was lost on a dying connection; the count clamps at zero rather
// than underflowing, since FORGET has no reply to complain through.
func (s *Session) forgetNode(id NodeID, n uint64) {
	if id == 0 || id == RootID {
		return
	}
	held := s.nodes.forget(id, n)
	if held < n {
		s.logger.Warnf("forget of node %v drops %d references, only %d held", id, n, held)
	}
}

// NodeRefCount returns the number of kernel references currently held
// on id.
func (s *Session) NodeRefCount(id NodeID) uint64 {
	return s.nodes.get(id)
}

// NodeCount returns the number of nodes the kernel currently holds
// references on.
func (s *Session) NodeCount() int {
	return s.nodes.len()
}
