// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"context"
	"testing"
	"unsafe"
)

type emptyHandler struct{}

type statfsHandler struct {
	resp StatfsResponse
}

func (h *statfsHandler) Statfs(ctx context.Context, r *StatfsRequest) error {
	r.Respond(&h.resp)
	return nil
}

func TestServeENOSYS(t *testing.T) {
	s, tr := negotiated(t, Protocol{7, 31}, nil)
	payload := make([]byte, unsafe.Sizeof(getattrIn{}))
	tr.push(buildFrame(opGetattr, 2, 1, payload))

	if err := s.Serve(context.Background(), emptyHandler{}); err != nil {
		t.Fatalf("serve: %v", err)
	}
	replies := tr.replies()
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	hdr := outHdr(t, replies[0])
	if hdr.Unique != 2 {
		t.Errorf("reply unique %d, want 2", hdr.Unique)
	}
	if hdr.Error != -int32(ENOSYS) {
		t.Errorf("reply error %d, want %d", hdr.Error, -int32(ENOSYS))
	}
}

func TestServeStatfs(t *testing.T) {
	s, tr := negotiated(t, Protocol{7, 31}, nil)
	tr.push(buildFrame(opStatfs, 2, 1, nil))

	h := &statfsHandler{resp: StatfsResponse{Blocks: 100, Bfree: 40, Bsize: 4096}}
	if err := s.Serve(context.Background(), h); err != nil {
		t.Fatalf("serve: %v", err)
	}
	replies := tr.replies()
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	if hdr := outHdr(t, replies[0]); hdr.Error != 0 {
		t.Fatalf("reply error %d, want 0", hdr.Error)
	}
	out := (*statfsOut)(unsafe.Pointer(&replies[0][outHeaderSize]))
	if out.St.Blocks != 100 || out.St.Bfree != 40 || out.St.Bsize != 4096 {
		t.Errorf("statfs %d/%d/%d, want 100/40/4096", out.St.Blocks, out.St.Bfree, out.St.Bsize)
	}
}

func TestServeMalformed(t *testing.T) {
	s, tr := negotiated(t, Protocol{7, 31}, nil)
	tr.push(
		// Lookup name missing the trailing NUL; poisons only itself.
		buildFrame(opLookup, 2, 1, []byte("hello")),
		buildFrame(opStatfs, 3, 1, nil),
	)

	if err := s.Serve(context.Background(), &statfsHandler{}); err != nil {
		t.Fatalf("serve: %v", err)
	}
	replies := tr.replies()
	if len(replies) != 2 {
		t.Fatalf("got %d replies, want 2", len(replies))
	}
	if hdr := outHdr(t, replies[0]); hdr.Unique != 2 || hdr.Error != -int32(EIO) {
		t.Errorf("first reply %d/%d, want 2/%d", hdr.Unique, hdr.Error, -int32(EIO))
	}
	if hdr := outHdr(t, replies[1]); hdr.Unique != 3 || hdr.Error != 0 {
		t.Errorf("second reply %d/%d, want 3/0", hdr.Unique, hdr.Error)
	}
}

type blockingReader struct{}

func (blockingReader) Read(ctx context.Context, r *ReadRequest) error {
	<-ctx.Done()
	return EINTR
}

func TestServeInterrupt(t *testing.T) {
	s, tr := negotiated(t, Protocol{7, 31}, nil)

	read := buildFrame(opRead, 2, 2, make([]byte, unsafe.Sizeof(readIn{})))
	intrPayload := make([]byte, unsafe.Sizeof(interruptIn{}))
	(*interruptIn)(unsafe.Pointer(&intrPayload[0])).Unique = 2
	intr := buildFrame(opInterrupt, 3, 0, intrPayload)
	tr.push(read, intr)

	// The read blocks until its context is cancelled; the interrupt
	// names it, so Serve must cancel it and still drain cleanly.
	if err := s.Serve(context.Background(), blockingReader{}); err != nil {
		t.Fatalf("serve: %v", err)
	}
	replies := tr.replies()
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	if hdr := outHdr(t, replies[0]); hdr.Unique != 2 || hdr.Error != -int32(EINTR) {
		t.Errorf("reply %d/%d, want 2/%d", hdr.Unique, hdr.Error, -int32(EINTR))
	}
}

type destroyRecorder struct {
	destroyed bool
}

func (h *destroyRecorder) Destroy(ctx context.Context, r *DestroyRequest) {
	h.destroyed = true
}

func TestServeDestroy(t *testing.T) {
	s, tr := negotiated(t, Protocol{7, 31}, nil)
	tr.push(buildFrame(opDestroy, 2, 0, nil))

	h := &destroyRecorder{}
	if err := s.Serve(context.Background(), h); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !h.destroyed {
		t.Error("destroy notification not delivered")
	}
	replies := tr.replies()
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	if hdr := outHdr(t, replies[0]); hdr.Error != 0 {
		t.Errorf("reply error %d, want 0", hdr.Error)
	}
}

func TestServeUnknownOpcode(t *testing.T) {
	s, tr := negotiated(t, Protocol{7, 31}, nil)
	tr.push(buildFrame(9999, 2, 1, nil))

	if err := s.Serve(context.Background(), emptyHandler{}); err != nil {
		t.Fatalf("serve: %v", err)
	}
	replies := tr.replies()
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	if hdr := outHdr(t, replies[0]); hdr.Error != -int32(ENOSYS) {
		t.Errorf("reply error %d, want %d", hdr.Error, -int32(ENOSYS))
	}
}
