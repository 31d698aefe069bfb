// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"unsafe"
)

// fakeTransport is an in-memory Transport: Read serves queued frames
// one at a time and reports EOF when they run out, Write records
// every reply frame.
type fakeTransport struct {
	mu     sync.Mutex
	in     [][]byte
	out    [][]byte
	closed bool
}

func (tr *fakeTransport) push(frames ...[]byte) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.in = append(tr.in, frames...)
}

func (tr *fakeTransport) Read(p []byte) (int, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.closed || len(tr.in) == 0 {
		return 0, io.EOF
	}
	frame := tr.in[0]
	tr.in = tr.in[1:]
	return copy(p, frame), nil
}

func (tr *fakeTransport) Write(p []byte) (int, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	frame := make([]byte, len(p))
	copy(frame, p)
	tr.out = append(tr.out, frame)
	return len(p), nil
}

func (tr *fakeTransport) Close() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.closed = true
	return nil
}

func (tr *fakeTransport) replies() [][]byte {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([][]byte, len(tr.out))
	copy(out, tr.out)
	return out
}

func (tr *fakeTransport) discardReplies() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.out = nil
}

// buildFrame assembles a raw kernel-to-server message.
func buildFrame(opcode uint32, id RequestID, node NodeID, payload []byte) []byte {
	buf := make([]byte, inHeaderSize+len(payload))
	hdr := (*inHeader)(unsafe.Pointer(&buf[0]))
	hdr.Len = uint32(len(buf))
	hdr.Opcode = opcode
	hdr.Unique = uint64(id)
	hdr.Nodeid = uint64(node)
	copy(buf[inHeaderSize:], payload)
	return buf
}

func initFrame(id RequestID, kernel Protocol, maxReadahead uint32, flags InitFlags) []byte {
	payload := make([]byte, initInSize)
	in := (*initIn)(unsafe.Pointer(&payload[0]))
	in.Major = kernel.Major
	in.Minor = kernel.Minor
	in.MaxReadahead = maxReadahead
	in.Flags = uint32(flags)
	return buildFrame(opInit, id, 0, payload)
}

func cuseInitFrame(id RequestID, kernel Protocol, flags CuseInitFlags) []byte {
	payload := make([]byte, unsafe.Sizeof(cuseInitIn{}))
	in := (*cuseInitIn)(unsafe.Pointer(&payload[0]))
	in.Major = kernel.Major
	in.Minor = kernel.Minor
	in.Flags = uint32(flags)
	return buildFrame(opCuseInit, id, 0, payload)
}

func outHdr(t *testing.T, frame []byte) *outHeader {
	t.Helper()
	if len(frame) < outHeaderSize {
		t.Fatalf("reply of %d bytes is shorter than a reply header", len(frame))
	}
	return (*outHeader)(unsafe.Pointer(&frame[0]))
}

// negotiated returns a session that has already completed the INIT
// handshake at the given kernel version, with the handshake replies
// discarded.
func negotiated(t *testing.T, kernel Protocol, cfg *Config) (*Session, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	tr.push(initFrame(1, kernel, 0, ^InitFlags(0)))
	s := New(tr, cfg)
	if err := s.Handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	tr.discardReplies()
	return s, tr
}

func TestHandshake(t *testing.T) {
	tr := &fakeTransport{}
	tr.push(initFrame(1, Protocol{7, 31}, 65536, InitAsyncRead|InitBigWrites))
	s := New(tr, &Config{
		MaxReadahead: 32768,
		Flags:        InitAsyncRead,
	})
	if err := s.Handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if got, want := s.Protocol(), (Protocol{7, 31}); got != want {
		t.Errorf("negotiated %v, want %v", got, want)
	}
	if got, want := s.Flags(), InitAsyncRead; got != want {
		t.Errorf("flags %v, want %v", got, want)
	}

	replies := tr.replies()
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	hdr := outHdr(t, replies[0])
	if hdr.Unique != 1 {
		t.Errorf("reply unique %d, want 1", hdr.Unique)
	}
	if hdr.Error != 0 {
		t.Errorf("reply error %d, want 0", hdr.Error)
	}
	if got, want := len(replies[0]), outHeaderSize+int(initOutSize(Protocol{7, 31})); got != want {
		t.Errorf("reply length %d, want %d", got, want)
	}
	out := (*initOut)(unsafe.Pointer(&replies[0][outHeaderSize]))
	if out.Major != 7 || out.Minor != 31 {
		t.Errorf("reply version %d.%d, want 7.31", out.Major, out.Minor)
	}
	if out.MaxReadahead != 32768 {
		t.Errorf("reply max readahead %d, want 32768", out.MaxReadahead)
	}
	if out.MaxWrite != maxWrite {
		t.Errorf("reply max write %d, want %d", out.MaxWrite, maxWrite)
	}
	if InitFlags(out.Flags) != InitAsyncRead {
		t.Errorf("reply flags %v, want %v", InitFlags(out.Flags), InitAsyncRead)
	}
}

func TestHandshakeOlderKernel(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 26}, nil)
	if got, want := s.Protocol(), (Protocol{7, 26}); got != want {
		t.Errorf("negotiated %v, want %v", got, want)
	}
}

func TestHandshakeInitOutCompat(t *testing.T) {
	// The INIT reply itself shrinks for kernels that predate the
	// 7.23 layout.
	for _, tt := range []struct {
		kernel Protocol
		size   int
	}{
		{Protocol{7, 8}, 24},
		{Protocol{7, 22}, 24},
		{Protocol{7, 23}, 64},
		{Protocol{7, 31}, 64},
	} {
		tr := &fakeTransport{}
		tr.push(initFrame(1, tt.kernel, 0, 0))
		s := New(tr, nil)
		if err := s.Handshake(); err != nil {
			t.Fatalf("%v: handshake: %v", tt.kernel, err)
		}
		replies := tr.replies()
		if len(replies) != 1 {
			t.Fatalf("%v: got %d replies, want 1", tt.kernel, len(replies))
		}
		if got, want := len(replies[0]), outHeaderSize+tt.size; got != want {
			t.Errorf("%v: reply length %d, want %d", tt.kernel, got, want)
		}
	}
}

func TestHandshakeMajorMismatch(t *testing.T) {
	// A kernel speaking a different major version gets told our
	// version and retries INIT.
	tr := &fakeTransport{}
	tr.push(
		initFrame(1, Protocol{8, 0}, 0, 0),
		initFrame(2, Protocol{7, 31}, 0, 0),
	)
	s := New(tr, nil)
	if err := s.Handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if got, want := s.Protocol(), (Protocol{7, 31}); got != want {
		t.Errorf("negotiated %v, want %v", got, want)
	}

	replies := tr.replies()
	if len(replies) != 2 {
		t.Fatalf("got %d replies, want 2", len(replies))
	}
	counter := (*initOut)(unsafe.Pointer(&replies[0][outHeaderSize]))
	if counter.Major != 7 || counter.Minor != 31 {
		t.Errorf("counter-INIT carries %d.%d, want 7.31", counter.Major, counter.Minor)
	}
}

func TestHandshakeAncientKernel(t *testing.T) {
	tr := &fakeTransport{}
	tr.push(initFrame(1, Protocol{7, 5}, 0, 0))
	s := New(tr, nil)
	err := s.Handshake()
	var verr *OldVersionError
	if !errors.As(err, &verr) {
		t.Fatalf("handshake error %v, want *OldVersionError", err)
	}
	if got, want := verr.Kernel, (Protocol{7, 5}); got != want {
		t.Errorf("kernel version %v, want %v", got, want)
	}
	if got, want := verr.LibraryMin, (Protocol{7, 8}); got != want {
		t.Errorf("library floor %v, want %v", got, want)
	}

	replies := tr.replies()
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	if hdr := outHdr(t, replies[0]); hdr.Error != -int32(EPROTO) {
		t.Errorf("reply error %d, want %d", hdr.Error, -int32(EPROTO))
	}

	// The session is unusable afterwards.
	if _, err := s.ParseRequest(initFrame(2, Protocol{7, 31}, 0, 0)); err == nil {
		t.Error("expected error parsing on a closed session")
	}
}

func TestHandshakeEOF(t *testing.T) {
	s := New(&fakeTransport{}, nil)
	if err := s.Handshake(); err != ErrClosedWithoutInit {
		t.Fatalf("handshake error %v, want %v", err, ErrClosedWithoutInit)
	}
}

func TestRequestBeforeInit(t *testing.T) {
	tr := &fakeTransport{}
	tr.push(buildFrame(opStatfs, 1, 1, nil))
	s := New(tr, nil)
	if err := s.Handshake(); err != ErrExpectedInit {
		t.Fatalf("handshake error %v, want %v", err, ErrExpectedInit)
	}
}

func TestSecondInit(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	if _, err := s.ParseRequest(initFrame(2, Protocol{7, 31}, 0, 0)); err != ErrUnexpectedInit {
		t.Fatalf("parse error %v, want %v", err, ErrUnexpectedInit)
	}
}

func TestCuseHandshake(t *testing.T) {
	tr := &fakeTransport{}
	tr.push(cuseInitFrame(1, Protocol{7, 31}, CuseUnrestrictedIoctl))
	s := NewCuse(tr, &CuseConfig{
		Name:     "mydev",
		DevMajor: 120,
		DevMinor: 7,
		Flags:    CuseUnrestrictedIoctl,
		MaxRead:  4096,
	})
	if err := s.Handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if got, want := s.Protocol(), (Protocol{7, 31}); got != want {
		t.Errorf("negotiated %v, want %v", got, want)
	}
	if got, want := s.CuseFlags(), CuseUnrestrictedIoctl; got != want {
		t.Errorf("cuse flags %v, want %v", got, want)
	}

	replies := tr.replies()
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	devname := []byte("DEVNAME=mydev\x00")
	wantLen := outHeaderSize + int(unsafe.Sizeof(cuseInitOut{})) + len(devname)
	if got := len(replies[0]); got != wantLen {
		t.Fatalf("reply length %d, want %d", got, wantLen)
	}
	out := (*cuseInitOut)(unsafe.Pointer(&replies[0][outHeaderSize]))
	if out.DevMajor != 120 || out.DevMinor != 7 {
		t.Errorf("device numbers %d:%d, want 120:7", out.DevMajor, out.DevMinor)
	}
	if out.MaxRead != 4096 {
		t.Errorf("max read %d, want 4096", out.MaxRead)
	}
	if out.MaxWrite == 0 || out.MaxWrite > maxWrite {
		t.Errorf("max write %d out of range (0, %d]", out.MaxWrite, maxWrite)
	}
	tail := replies[0][outHeaderSize+int(unsafe.Sizeof(cuseInitOut{})):]
	if !bytes.Equal(tail, devname) {
		t.Errorf("reply tail %q, want %q", tail, devname)
	}
}

func TestInitOnCuseSession(t *testing.T) {
	tr := &fakeTransport{}
	tr.push(initFrame(1, Protocol{7, 31}, 0, 0))
	s := NewCuse(tr, &CuseConfig{Name: "mydev"})
	if err := s.Handshake(); err == nil {
		t.Fatal("expected error for INIT on a CUSE session")
	}
	replies := tr.replies()
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	if hdr := outHdr(t, replies[0]); hdr.Error != -int32(EPROTO) {
		t.Errorf("reply error %d, want %d", hdr.Error, -int32(EPROTO))
	}
}

func TestCuseInitOnFuseSession(t *testing.T) {
	tr := &fakeTransport{}
	tr.push(cuseInitFrame(1, Protocol{7, 31}, 0))
	s := New(tr, nil)
	if err := s.Handshake(); err == nil {
		t.Fatal("expected error for CUSE_INIT on a file system session")
	}
}
