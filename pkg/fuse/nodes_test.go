// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"testing"
	"time"
	"unsafe"
)

func TestNodeRefCounting(t *testing.T) {
	s := New(&fakeTransport{}, nil)

	s.rememberNode(5)
	s.rememberNode(5)
	s.rememberNode(9)
	if got := s.NodeRefCount(5); got != 2 {
		t.Errorf("node 5 holds %d refs, want 2", got)
	}
	if got := s.NodeCount(); got != 2 {
		t.Errorf("table holds %d nodes, want 2", got)
	}

	s.forgetNode(5, 1)
	if got := s.NodeRefCount(5); got != 1 {
		t.Errorf("node 5 holds %d refs after forget, want 1", got)
	}

	// Forgetting more than held clamps at zero instead of wrapping.
	s.forgetNode(5, 10)
	if got := s.NodeRefCount(5); got != 0 {
		t.Errorf("node 5 holds %d refs after overforget, want 0", got)
	}
	if got := s.NodeCount(); got != 1 {
		t.Errorf("table holds %d nodes, want 1", got)
	}
}

func TestNodeRefSpecialIDs(t *testing.T) {
	s := New(&fakeTransport{}, nil)

	// The root is implicit and id 0 marks a negative entry; neither
	// is tracked.
	s.rememberNode(0)
	s.rememberNode(RootID)
	if got := s.NodeCount(); got != 0 {
		t.Errorf("table holds %d nodes, want 0", got)
	}
	s.forgetNode(RootID, 1)
}

func TestLookupRespondRemembersNode(t *testing.T) {
	s, tr := negotiated(t, Protocol{7, 31}, nil)
	req, err := s.ParseRequest(buildFrame(opLookup, 2, 1, []byte("file\x00")))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	req.(*LookupRequest).Respond(&LookupResponse{
		Node:       5,
		EntryValid: time.Minute,
		Attr:       Attr{Inode: 5, Mode: 0o644},
	})
	if got := s.NodeRefCount(5); got != 1 {
		t.Errorf("node 5 holds %d refs, want 1", got)
	}
	if len(tr.replies()) != 1 {
		t.Fatalf("got %d replies, want 1", len(tr.replies()))
	}
}

func TestNegativeLookupNotRemembered(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	req, err := s.ParseRequest(buildFrame(opLookup, 2, 1, []byte("missing\x00")))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// Node 0 with a valid entry caches the negative lookup; there is
	// no node to reference.
	req.(*LookupRequest).Respond(&LookupResponse{Node: 0, EntryValid: time.Minute})
	if got := s.NodeCount(); got != 0 {
		t.Errorf("table holds %d nodes, want 0", got)
	}
}

func TestForgetRespondDropsRefs(t *testing.T) {
	s, tr := negotiated(t, Protocol{7, 31}, nil)
	s.rememberNode(5)
	s.rememberNode(5)

	payload := make([]byte, unsafe.Sizeof(forgetIn{}))
	(*forgetIn)(unsafe.Pointer(&payload[0])).Nlookup = 2
	req, err := s.ParseRequest(buildFrame(opForget, 3, 5, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	req.(*ForgetRequest).Respond()

	if got := s.NodeCount(); got != 0 {
		t.Errorf("table holds %d nodes, want 0", got)
	}
	// FORGET never gets a reply.
	if got := len(tr.replies()); got != 0 {
		t.Errorf("got %d replies, want 0", got)
	}
}

func TestBatchForgetRespondDropsRefs(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	s.rememberNode(5)
	s.rememberNode(9)

	payload := make([]byte, int(unsafe.Sizeof(batchForgetIn{}))+2*int(unsafe.Sizeof(forgetOne{})))
	in := (*batchForgetIn)(unsafe.Pointer(&payload[0]))
	in.Count = 2
	one := (*forgetOne)(unsafe.Pointer(&payload[unsafe.Sizeof(batchForgetIn{})]))
	one.NodeID = 5
	one.Nlookup = 1
	two := (*forgetOne)(unsafe.Pointer(&payload[unsafe.Sizeof(batchForgetIn{})+unsafe.Sizeof(forgetOne{})]))
	two.NodeID = 9
	two.Nlookup = 1

	req, err := s.ParseRequest(buildFrame(opBatchForget, 4, 0, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	req.(*BatchForgetRequest).Respond()

	if got := s.NodeCount(); got != 0 {
		t.Errorf("table holds %d nodes, want 0", got)
	}
}

func TestReaddirplusRespondRemembersNodes(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)

	var data []byte
	data = AppendDirentPlus(data, DirentPlus{
		Dirent: Dirent{Inode: 1, Type: DT_Dir, Name: "."},
	})
	data = AppendDirentPlus(data, DirentPlus{
		Dirent: Dirent{Inode: 7, Type: DT_File, Name: "file"},
		Entry:  LookupResponse{Node: 7, Attr: Attr{Inode: 7}},
	})

	payload := make([]byte, unsafe.Sizeof(readIn{}))
	req, err := s.ParseRequest(buildFrame(opReaddirplus, 5, 1, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	req.(*ReaddirplusRequest).Respond(&ReaddirplusResponse{Data: data})

	if got := s.NodeRefCount(7); got != 1 {
		t.Errorf("node 7 holds %d refs, want 1", got)
	}
	if got := s.NodeCount(); got != 1 {
		t.Errorf("table holds %d nodes, want 1", got)
	}
}
