// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"bytes"
	"errors"
	"os"
	"syscall"
	"testing"
	"unsafe"
)

func TestParseLookup(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	req, err := s.ParseRequest(buildFrame(opLookup, 2, 1, []byte("hello\x00")))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r, ok := req.(*LookupRequest)
	if !ok {
		t.Fatalf("got %T, want *LookupRequest", req)
	}
	if !bytes.Equal(r.Name, []byte("hello")) {
		t.Errorf("name %q, want %q", r.Name, "hello")
	}
	if r.Node != 1 {
		t.Errorf("node %v, want 1", r.Node)
	}
	if r.ID != 2 {
		t.Errorf("request id %v, want 2", r.ID)
	}
}

func TestParseLookupCorrupt(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	// Name without the trailing NUL.
	_, err := s.ParseRequest(buildFrame(opLookup, 2, 1, []byte("hello")))
	var merr *MalformedError
	if !errors.As(err, &merr) {
		t.Fatalf("parse error %v, want *MalformedError", err)
	}
	if merr.ID != 2 {
		t.Errorf("malformed id %v, want 2", merr.ID)
	}
	if merr.Opcode != opLookup {
		t.Errorf("malformed opcode %d, want %d", merr.Opcode, opLookup)
	}
}

func TestParseLengthMismatch(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	frame := buildFrame(opStatfs, 3, 1, nil)
	hdr := (*inHeader)(unsafe.Pointer(&frame[0]))
	hdr.Len += 5
	_, err := s.ParseRequest(frame)
	var merr *MalformedError
	if !errors.As(err, &merr) {
		t.Fatalf("parse error %v, want *MalformedError", err)
	}
	if merr.ID != 3 {
		t.Errorf("malformed id %v, want 3", merr.ID)
	}
}

func TestParseWriteZeroCopy(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	payload := make([]byte, int(writeInSize(Protocol{7, 31}))+4)
	in := (*writeIn)(unsafe.Pointer(&payload[0]))
	in.Fh = 11
	in.Offset = 1024
	in.Size = 4
	copy(payload[writeInSize(Protocol{7, 31}):], "abcd")
	frame := buildFrame(opWrite, 4, 2, payload)

	req, err := s.ParseRequest(frame)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := req.(*WriteRequest)
	if r.Handle != 11 || r.Offset != 1024 {
		t.Errorf("handle %v offset %d, want 11 1024", r.Handle, r.Offset)
	}
	if !bytes.Equal(r.Data, []byte("abcd")) {
		t.Fatalf("data %q, want %q", r.Data, "abcd")
	}
	// The decoded payload aliases the frame; no copy happened.
	frame[len(frame)-4] = 'z'
	if r.Data[0] != 'z' {
		t.Error("write data does not alias the receive buffer")
	}
}

func TestParseRename2(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	payload := make([]byte, unsafe.Sizeof(rename2In{}))
	in := (*rename2In)(unsafe.Pointer(&payload[0]))
	in.Newdir = 7
	in.Flags = 1 // RENAME_NOREPLACE
	payload = append(payload, "old\x00new\x00"...)

	req, err := s.ParseRequest(buildFrame(opRename2, 5, 3, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := req.(*RenameRequest)
	if r.NewDir != 7 {
		t.Errorf("newdir %v, want 7", r.NewDir)
	}
	if !bytes.Equal(r.OldName, []byte("old")) || !bytes.Equal(r.NewName, []byte("new")) {
		t.Errorf("names %q -> %q, want old -> new", r.OldName, r.NewName)
	}
	if r.Flags != 1 {
		t.Errorf("flags %v, want 1", r.Flags)
	}
}

func TestParseBatchForget(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	payload := make([]byte, int(unsafe.Sizeof(batchForgetIn{}))+2*int(unsafe.Sizeof(forgetOne{})))
	in := (*batchForgetIn)(unsafe.Pointer(&payload[0]))
	in.Count = 2
	one := (*forgetOne)(unsafe.Pointer(&payload[unsafe.Sizeof(batchForgetIn{})]))
	one.NodeID = 5
	one.Nlookup = 3
	two := (*forgetOne)(unsafe.Pointer(&payload[unsafe.Sizeof(batchForgetIn{})+unsafe.Sizeof(forgetOne{})]))
	two.NodeID = 9
	two.Nlookup = 1

	req, err := s.ParseRequest(buildFrame(opBatchForget, 6, 0, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := req.(*BatchForgetRequest)
	if len(r.Forget) != 2 {
		t.Fatalf("got %d items, want 2", len(r.Forget))
	}
	if r.Forget[0].Node != 5 || r.Forget[0].N != 3 {
		t.Errorf("item 0 = %v/%d, want 5/3", r.Forget[0].Node, r.Forget[0].N)
	}
	if r.Forget[1].Node != 9 || r.Forget[1].N != 1 {
		t.Errorf("item 1 = %v/%d, want 9/1", r.Forget[1].Node, r.Forget[1].N)
	}
}

func TestParseReadCompat(t *testing.T) {
	// A 7.8 kernel sends the short read_in without the lock owner
	// tail; the same payload is a decode error at 7.31.
	old := Protocol{7, 8}
	payload := make([]byte, readInSize(old))
	in := (*readIn)(unsafe.Pointer(&payload[0]))
	in.Fh = 20
	in.Offset = 4096
	in.Size = 512
	frame := buildFrame(opRead, 7, 2, payload)

	s, _ := negotiated(t, old, nil)
	req, err := s.ParseRequest(frame)
	if err != nil {
		t.Fatalf("parse at %v: %v", old, err)
	}
	r := req.(*ReadRequest)
	if r.Handle != 20 || r.Offset != 4096 || r.Size != 512 {
		t.Errorf("got %v/%d/%d, want 20/4096/512", r.Handle, r.Offset, r.Size)
	}
	if r.LockOwner != 0 || r.FileFlags != 0 {
		t.Errorf("got 7.9 fields %d/%v on a %v session", r.LockOwner, r.FileFlags, old)
	}

	s31, _ := negotiated(t, Protocol{7, 31}, nil)
	var merr *MalformedError
	if _, err := s31.ParseRequest(frame); !errors.As(err, &merr) {
		t.Fatalf("parse at 7.31: %v, want *MalformedError", err)
	}
}

func TestParseGetxattr(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	payload := make([]byte, unsafe.Sizeof(getxattrIn{}))
	in := (*getxattrIn)(unsafe.Pointer(&payload[0]))
	in.Size = 128
	payload = append(payload, "user.comment\x00"...)

	req, err := s.ParseRequest(buildFrame(opGetxattr, 8, 2, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := req.(*GetxattrRequest)
	if !bytes.Equal(r.Name, []byte("user.comment")) {
		t.Errorf("name %q, want user.comment", r.Name)
	}
	if r.Size != 128 {
		t.Errorf("size %d, want 128", r.Size)
	}
}

func TestParseUnknownOpcode(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	req, err := s.ParseRequest(buildFrame(9999, 9, 1, []byte{1, 2, 3}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r, ok := req.(*UnknownRequest)
	if !ok {
		t.Fatalf("got %T, want *UnknownRequest", req)
	}
	if r.Opcode != 9999 {
		t.Errorf("opcode %d, want 9999", r.Opcode)
	}
	if !bytes.Equal(r.Payload, []byte{1, 2, 3}) {
		t.Errorf("payload %v, want [1 2 3]", r.Payload)
	}
}

func TestParseSymlink(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	req, err := s.ParseRequest(buildFrame(opSymlink, 11, 1, []byte("ln\x00some/target\x00")))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r, ok := req.(*SymlinkRequest)
	if !ok {
		t.Fatalf("got %T, want *SymlinkRequest", req)
	}
	if !bytes.Equal(r.NewName, []byte("ln")) {
		t.Errorf("new name %q, want %q", r.NewName, "ln")
	}
	if !bytes.Equal(r.Target, []byte("some/target")) {
		t.Errorf("target %q, want %q", r.Target, "some/target")
	}

	// Missing the trailing NUL on the target.
	var merr *MalformedError
	if _, err := s.ParseRequest(buildFrame(opSymlink, 12, 1, []byte("ln\x00some/target"))); !errors.As(err, &merr) {
		t.Fatalf("parse error %v, want *MalformedError", err)
	}
}

func TestParseMknodUmaskBoundary(t *testing.T) {
	// 7.12 grew mknod_in from 8 to 16 bytes with the umask. An old
	// kernel's short payload still decodes on an old session, and the
	// umask stays zero there.
	old := Protocol{7, 11}
	payload := make([]byte, mknodInSize(old))
	in := (*mknodIn)(unsafe.Pointer(&payload[0]))
	in.Mode = syscall.S_IFIFO | 0o644
	in.Rdev = 9
	payload = append(payload, "fifo\x00"...)

	s, _ := negotiated(t, old, nil)
	req, err := s.ParseRequest(buildFrame(opMknod, 13, 1, payload))
	if err != nil {
		t.Fatalf("parse at %v: %v", old, err)
	}
	r := req.(*MknodRequest)
	if !bytes.Equal(r.Name, []byte("fifo")) {
		t.Errorf("name %q, want fifo", r.Name)
	}
	if r.Rdev != 9 {
		t.Errorf("rdev %d, want 9", r.Rdev)
	}
	if r.Umask != 0 {
		t.Errorf("umask %v on a %v session, want 0", r.Umask, old)
	}

	// The same short payload is malformed once the struct has grown.
	s31, _ := negotiated(t, Protocol{7, 31}, nil)
	var merr *MalformedError
	if _, err := s31.ParseRequest(buildFrame(opMknod, 14, 1, payload)); !errors.As(err, &merr) {
		t.Fatalf("parse at 7.31: %v, want *MalformedError", err)
	}

	payload = make([]byte, mknodInSize(Protocol{7, 31}))
	in = (*mknodIn)(unsafe.Pointer(&payload[0]))
	in.Mode = syscall.S_IFIFO | 0o644
	in.Umask = 0o022
	payload = append(payload, "fifo\x00"...)
	req, err = s31.ParseRequest(buildFrame(opMknod, 15, 1, payload))
	if err != nil {
		t.Fatalf("parse at 7.31: %v", err)
	}
	if r := req.(*MknodRequest); r.Umask != os.FileMode(0o022) {
		t.Errorf("umask %v, want %v", r.Umask, os.FileMode(0o022))
	}
}

func TestParseMkdirUmaskBoundary(t *testing.T) {
	// mkdir_in's umask took over former padding at 7.12; the payload is
	// eight bytes on both sides of the boundary and only the
	// interpretation changes.
	if a, b := mkdirInSize(Protocol{7, 11}), mkdirInSize(Protocol{7, 12}); a != b {
		t.Fatalf("mkdir_in sizes %d and %d across 7.12, want equal", a, b)
	}
	payload := make([]byte, mkdirInSize(Protocol{7, 31}))
	in := (*mkdirIn)(unsafe.Pointer(&payload[0]))
	in.Mode = 0o755
	in.Umask = 0o022
	payload = append(payload, "subdir\x00"...)

	old := Protocol{7, 11}
	s, _ := negotiated(t, old, nil)
	req, err := s.ParseRequest(buildFrame(opMkdir, 16, 1, payload))
	if err != nil {
		t.Fatalf("parse at %v: %v", old, err)
	}
	r := req.(*MkdirRequest)
	if !bytes.Equal(r.Name, []byte("subdir")) {
		t.Errorf("name %q, want subdir", r.Name)
	}
	if !r.Mode.IsDir() {
		t.Errorf("mode %v, want a directory", r.Mode)
	}
	if r.Umask != 0 {
		t.Errorf("umask %v on a %v session, want 0", r.Umask, old)
	}

	s31, _ := negotiated(t, Protocol{7, 31}, nil)
	req, err = s31.ParseRequest(buildFrame(opMkdir, 17, 1, payload))
	if err != nil {
		t.Fatalf("parse at 7.31: %v", err)
	}
	if r := req.(*MkdirRequest); r.Umask != os.FileMode(0o022) {
		t.Errorf("umask %v, want %v", r.Umask, os.FileMode(0o022))
	}
}

func TestParseCreateUmaskBoundary(t *testing.T) {
	old := Protocol{7, 11}
	payload := make([]byte, createInSize(old))
	in := (*createIn)(unsafe.Pointer(&payload[0]))
	in.Flags = syscall.O_RDWR
	in.Mode = 0o644
	payload = append(payload, "file\x00"...)

	s, _ := negotiated(t, old, nil)
	req, err := s.ParseRequest(buildFrame(opCreate, 18, 1, payload))
	if err != nil {
		t.Fatalf("parse at %v: %v", old, err)
	}
	r := req.(*CreateRequest)
	if !bytes.Equal(r.Name, []byte("file")) {
		t.Errorf("name %q, want file", r.Name)
	}
	if r.Flags != openFlags(syscall.O_RDWR) {
		t.Errorf("flags %v, want %v", r.Flags, openFlags(syscall.O_RDWR))
	}
	if r.Umask != 0 {
		t.Errorf("umask %v on a %v session, want 0", r.Umask, old)
	}

	s31, _ := negotiated(t, Protocol{7, 31}, nil)
	var merr *MalformedError
	if _, err := s31.ParseRequest(buildFrame(opCreate, 19, 1, payload)); !errors.As(err, &merr) {
		t.Fatalf("parse at 7.31: %v, want *MalformedError", err)
	}

	payload = make([]byte, createInSize(Protocol{7, 31}))
	in = (*createIn)(unsafe.Pointer(&payload[0]))
	in.Flags = syscall.O_RDWR
	in.Mode = 0o644
	in.Umask = 0o077
	payload = append(payload, "file\x00"...)
	req, err = s31.ParseRequest(buildFrame(opCreate, 20, 1, payload))
	if err != nil {
		t.Fatalf("parse at 7.31: %v", err)
	}
	if r := req.(*CreateRequest); r.Umask != os.FileMode(0o077) {
		t.Errorf("umask %v, want %v", r.Umask, os.FileMode(0o077))
	}
}

func TestParseGetlkFlagsGate(t *testing.T) {
	// lk_in grew the flags word at 7.9; a 7.8 kernel sends the struct
	// truncated right before it.
	old := Protocol{7, 8}
	payload := make([]byte, lkInSize(old))
	in := (*lkIn)(unsafe.Pointer(&payload[0]))
	in.Fh = 30
	in.Owner = 0xbeef
	in.Lk.Start = 100
	in.Lk.End = 200
	in.Lk.Type = uint32(LockWrite)
	in.Lk.Pid = 4321
	frame := buildFrame(opGetlk, 21, 2, payload)

	s, _ := negotiated(t, old, nil)
	req, err := s.ParseRequest(frame)
	if err != nil {
		t.Fatalf("parse at %v: %v", old, err)
	}
	r := req.(*GetlkRequest)
	if r.Handle != 30 || r.Owner != 0xbeef {
		t.Errorf("handle %v owner %#x, want 30 0xbeef", r.Handle, r.Owner)
	}
	if r.Lock.Start != 100 || r.Lock.End != 200 || r.Lock.Type != LockWrite || r.Lock.Pid != 4321 {
		t.Errorf("lock %v, want LockWrite [100,200] pid=4321", r.Lock)
	}
	if r.Flags != 0 {
		t.Errorf("flags %v on a %v session, want 0", r.Flags, old)
	}

	s31, _ := negotiated(t, Protocol{7, 31}, nil)
	var merr *MalformedError
	if _, err := s31.ParseRequest(frame); !errors.As(err, &merr) {
		t.Fatalf("parse at 7.31: %v, want *MalformedError", err)
	}

	payload = make([]byte, lkInSize(Protocol{7, 31}))
	in = (*lkIn)(unsafe.Pointer(&payload[0]))
	in.Fh = 30
	in.LkFlags = uint32(LockFlock)
	req, err = s31.ParseRequest(buildFrame(opGetlk, 22, 2, payload))
	if err != nil {
		t.Fatalf("parse at 7.31: %v", err)
	}
	if r := req.(*GetlkRequest); r.Flags != LockFlock {
		t.Errorf("flags %v, want %v", r.Flags, LockFlock)
	}
}

func TestParseSetlk(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	payload := make([]byte, lkInSize(Protocol{7, 31}))
	in := (*lkIn)(unsafe.Pointer(&payload[0]))
	in.Fh = 31
	in.Owner = 7
	in.Lk.Type = uint32(LockRead)
	in.LkFlags = uint32(LockFlock)

	req, err := s.ParseRequest(buildFrame(opSetlk, 23, 2, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := req.(*SetlkRequest)
	if r.Wait {
		t.Error("SETLK decoded as blocking")
	}
	if r.Lock.Type != LockRead || r.Flags != LockFlock {
		t.Errorf("lock type %v flags %v, want LockRead LockFlock", r.Lock.Type, r.Flags)
	}

	req, err = s.ParseRequest(buildFrame(opSetlkw, 24, 2, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r := req.(*SetlkRequest); !r.Wait {
		t.Error("SETLKW decoded as non-blocking")
	}
}

func TestParsePoll(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	payload := make([]byte, unsafe.Sizeof(pollIn{}))
	in := (*pollIn)(unsafe.Pointer(&payload[0]))
	in.Fh = 40
	in.Kh = 77
	in.Flags = uint32(PollScheduleNotify)
	in.Events = 0x1 // POLLIN

	req, err := s.ParseRequest(buildFrame(opPoll, 25, 2, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := req.(*PollRequest)
	if r.Handle != 40 || r.Kh != 77 {
		t.Errorf("handle %v kh %d, want 40 77", r.Handle, r.Kh)
	}
	if r.Flags != PollScheduleNotify || r.Events != 0x1 {
		t.Errorf("flags %v events %#x, want PollScheduleNotify 0x1", r.Flags, r.Events)
	}
}

func TestParseFallocate(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	payload := make([]byte, unsafe.Sizeof(fallocateIn{}))
	in := (*fallocateIn)(unsafe.Pointer(&payload[0]))
	in.Fh = 41
	in.Offset = 4096
	in.Length = 8192
	in.Mode = 0x3 // FALLOC_FL_KEEP_SIZE|FALLOC_FL_PUNCH_HOLE

	req, err := s.ParseRequest(buildFrame(opFallocate, 26, 2, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := req.(*FallocateRequest)
	if r.Handle != 41 || r.Offset != 4096 || r.Length != 8192 || r.Mode != 0x3 {
		t.Errorf("got %v/%d/%d/%#x, want 41/4096/8192/0x3", r.Handle, r.Offset, r.Length, r.Mode)
	}
}

func TestParseLseek(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	payload := make([]byte, unsafe.Sizeof(lseekIn{}))
	in := (*lseekIn)(unsafe.Pointer(&payload[0]))
	in.Fh = 42
	in.Offset = 1 << 20
	in.Whence = 3 // SEEK_DATA

	req, err := s.ParseRequest(buildFrame(opLseek, 27, 2, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := req.(*LseekRequest)
	if r.Handle != 42 || r.Offset != 1<<20 || r.Whence != 3 {
		t.Errorf("got %v/%d/%d, want 42/%d/3", r.Handle, r.Offset, r.Whence, 1<<20)
	}
}

func TestParseCopyFileRange(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	payload := make([]byte, unsafe.Sizeof(copyFileRangeIn{}))
	in := (*copyFileRangeIn)(unsafe.Pointer(&payload[0]))
	in.FhIn = 50
	in.OffIn = 512
	in.NodeidOut = 6
	in.FhOut = 51
	in.OffOut = 1024
	in.Len = 4096

	req, err := s.ParseRequest(buildFrame(opCopyFileRange, 28, 2, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := req.(*CopyFileRangeRequest)
	if r.InHandle != 50 || r.InOffset != 512 {
		t.Errorf("source %v@%d, want 50@512", r.InHandle, r.InOffset)
	}
	if r.OutNode != 6 || r.OutHandle != 51 || r.OutOffset != 1024 {
		t.Errorf("destination node %v %v@%d, want 6 51@1024", r.OutNode, r.OutHandle, r.OutOffset)
	}
	if r.Len != 4096 {
		t.Errorf("len %d, want 4096", r.Len)
	}

	// Truncated struct.
	var merr *MalformedError
	if _, err := s.ParseRequest(buildFrame(opCopyFileRange, 29, 2, payload[:16])); !errors.As(err, &merr) {
		t.Fatalf("parse error %v, want *MalformedError", err)
	}
}

func TestParseInterrupt(t *testing.T) {
	s, _ := negotiated(t, Protocol{7, 31}, nil)
	payload := make([]byte, unsafe.Sizeof(interruptIn{}))
	in := (*interruptIn)(unsafe.Pointer(&payload[0]))
	in.Unique = 42

	req, err := s.ParseRequest(buildFrame(opInterrupt, 10, 0, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r := req.(*InterruptRequest); r.IntrID != 42 {
		t.Errorf("interrupt id %v, want 42", r.IntrID)
	}
}
