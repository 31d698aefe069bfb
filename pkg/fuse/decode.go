// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
	"unsafe"
)

// ParseRequest decodes a single raw FUSE message. The buffer must
// hold exactly one message, header included, as read from the kernel.
//
// The returned request borrows from buf: variable-length fields alias
// the buffer, and buf must not be modified or reused until the
// request has been responded to.
//
// A *MalformedError poisons only the request it names. The other
// error returns (a short buffer, a request before or a second INIT
// after the handshake) mean the stream itself can no longer be
// trusted.
func (s *Session) ParseRequest(buf []byte) (Request, error) {
	if len(buf) < inHeaderSize {
		return nil, fmt.Errorf("fuse: message of %d bytes is shorter than a request header", len(buf))
	}
	return s.parseMessage(borrowMessage(s, buf))
}

func (s *Session) parseMessage(m *message) (Request, error) {
	n := len(m.buf)
	if m.hdr.Len != uint32(n) {
		err := &MalformedError{
			ID:     RequestID(m.hdr.Unique),
			Opcode: m.hdr.Opcode,
			Reason: fmt.Sprintf("header says %d bytes, read %d", m.hdr.Len, n),
		}
		putMessage(m)
		return nil, err
	}

	isInit := m.hdr.Opcode == opInit || m.hdr.Opcode == opCuseInit
	switch s.currentState() {
	case sessionAwaitingInit:
		if !isInit {
			putMessage(m)
			return nil, ErrExpectedInit
		}
	case sessionNegotiated:
		if isInit {
			putMessage(m)
			return nil, ErrUnexpectedInit
		}
	case sessionClosed:
		putMessage(m)
		return nil, errors.New("fuse: session is closed")
	}

	m.off = inHeaderSize

	// Convert to data structures.
	// Do not trust kernel to hand us well-formed data.
	var req Request
	switch m.hdr.Opcode {
	default:
		Debug(noOpcode{Opcode: m.hdr.Opcode})
		req = &UnknownRequest{
			Header:  m.Header(),
			Opcode:  m.hdr.Opcode,
			Payload: m.bytes(),
		}

	case opLookup:
		buf := m.bytes()
		n := len(buf)
		if n == 0 || buf[n-1] != '\x00' {
			goto corrupt
		}
		req = &LookupRequest{
			Header: m.Header(),
			Name:   buf[:n-1],
		}

	case opForget:
		in := (*forgetIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &ForgetRequest{
			Header: m.Header(),
			N:      in.Nlookup,
		}

	case opBatchForget:
		in := (*batchForgetIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		items := m.bytes()[unsafe.Sizeof(*in):]
		if uintptr(len(items)) < uintptr(in.Count)*unsafe.Sizeof(forgetOne{}) {
			goto corrupt
		}
		forget := make([]BatchForgetItem, in.Count)
		for i := range forget {
			one := (*forgetOne)(unsafe.Pointer(&items[uintptr(i)*unsafe.Sizeof(forgetOne{})]))
			forget[i] = BatchForgetItem{
				Node: NodeID(one.NodeID),
				N:    one.Nlookup,
			}
		}
		req = &BatchForgetRequest{
			Header: m.Header(),
			Forget: forget,
		}

	case opGetattr:
		switch {
		case s.proto.LT(Protocol{7, 9}):
			req = &GetattrRequest{
				Header: m.Header(),
			}

		default:
			in := (*getattrIn)(m.data())
			if m.len() < unsafe.Sizeof(*in) {
				goto corrupt
			}
			req = &GetattrRequest{
				Header: m.Header(),
				Flags:  GetattrFlags(in.GetattrFlags),
				Handle: HandleID(in.Fh),
			}
		}

	case opSetattr:
		in := (*setattrIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		r := &SetattrRequest{
			Header:    m.Header(),
			Valid:     SetattrValid(in.Valid),
			Handle:    HandleID(in.Fh),
			Size:      in.Size,
			Atime:     time.Unix(int64(in.Atime), int64(in.AtimeNsec)),
			Mtime:     time.Unix(int64(in.Mtime), int64(in.MtimeNsec)),
			Mode:      fileMode(in.Mode),
			Uid:       in.Uid,
			Gid:       in.Gid,
			LockOwner: in.LockOwner,
		}
		if s.proto.GE(Protocol{7, 23}) {
			r.Ctime = time.Unix(int64(in.Ctime), int64(in.CtimeNsec))
		}
		req = r

	case opReadlink:
		if len(m.bytes()) > 0 {
			goto corrupt
		}
		req = &ReadlinkRequest{
			Header: m.Header(),
		}

	case opSymlink:
		// m.bytes() is "newName\0target\0"
		names := m.bytes()
		if len(names) == 0 || names[len(names)-1] != 0 {
			goto corrupt
		}
		i := bytes.IndexByte(names, '\x00')
		if i < 0 {
			goto corrupt
		}
		newName, target := names[0:i], names[i+1:len(names)-1]
		req = &SymlinkRequest{
			Header:  m.Header(),
			NewName: newName,
			Target:  target,
		}

	case opLink:
		in := (*linkIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		newName := m.bytes()[unsafe.Sizeof(*in):]
		if len(newName) < 2 || newName[len(newName)-1] != 0 {
			goto corrupt
		}
		newName = newName[:len(newName)-1]
		req = &LinkRequest{
			Header:  m.Header(),
			OldNode: NodeID(in.Oldnodeid),
			NewName: newName,
		}

	case opMknod:
		size := mknodInSize(s.proto)
		if m.len() < size {
			goto corrupt
		}
		in := (*mknodIn)(m.data())
		name := m.bytes()[size:]
		if len(name) < 2 || name[len(name)-1] != '\x00' {
			goto corrupt
		}
		name = name[:len(name)-1]
		r := &MknodRequest{
			Header: m.Header(),
			Mode:   fileMode(in.Mode),
			Rdev:   in.Rdev,
			Name:   name,
		}
		if s.proto.GE(Protocol{7, 12}) {
			r.Umask = fileMode(in.Umask) & os.ModePerm
		}
		req = r

	case opMkdir:
		size := mkdirInSize(s.proto)
		if m.len() < size {
			goto corrupt
		}
		in := (*mkdirIn)(m.data())
		name := m.bytes()[size:]
		i := bytes.IndexByte(name, '\x00')
		if i < 0 {
			goto corrupt
		}
		r := &MkdirRequest{
			Header: m.Header(),
			Name:   name[:i],
			// observed on Linux: mkdirIn.Mode & syscall.S_IFMT == 0,
			// and this causes fileMode to go into it's "no idea"
			// code branch; enforce type to directory
			Mode: fileMode((in.Mode &^ syscall.S_IFMT) | syscall.S_IFDIR),
		}
		if s.proto.GE(Protocol{7, 12}) {
			r.Umask = fileMode(in.Umask) & os.ModePerm
		}
		req = r

	case opUnlink, opRmdir:
		buf := m.bytes()
		n := len(buf)
		if n == 0 || buf[n-1] != '\x00' {
			goto corrupt
		}
		req = &RemoveRequest{
			Header: m.Header(),
			Name:   buf[:n-1],
			Dir:    m.hdr.Opcode == opRmdir,
		}

	case opRename:
		in := (*renameIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		oldName, newName, ok := splitNamePair(m.bytes()[unsafe.Sizeof(*in):])
		if !ok {
			goto corrupt
		}
		req = &RenameRequest{
			Header:  m.Header(),
			NewDir:  NodeID(in.Newdir),
			OldName: oldName,
			NewName: newName,
		}

	case opRename2:
		in := (*rename2In)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		oldName, newName, ok := splitNamePair(m.bytes()[unsafe.Sizeof(*in):])
		if !ok {
			goto corrupt
		}
		req = &RenameRequest{
			Header:  m.Header(),
			NewDir:  NodeID(in.Newdir),
			OldName: oldName,
			NewName: newName,
			Flags:   RenameFlags(in.Flags),
		}

	case opOpendir, opOpen:
		in := (*openIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &OpenRequest{
			Header: m.Header(),
			Dir:    m.hdr.Opcode == opOpendir,
			Flags:  openFlags(in.Flags),
		}

	case opRead, opReaddir:
		in := (*readIn)(m.data())
		if m.len() < readInSize(s.proto) {
			goto corrupt
		}
		r := &ReadRequest{
			Header: m.Header(),
			Dir:    m.hdr.Opcode == opReaddir,
			Handle: HandleID(in.Fh),
			Offset: int64(in.Offset),
			Size:   int(in.Size),
		}
		if s.proto.GE(Protocol{7, 9}) {
			r.Flags = ReadFlags(in.ReadFlags)
			r.LockOwner = in.LockOwner
			r.FileFlags = openFlags(in.Flags)
		}
		req = r

	case opReaddirplus:
		in := (*readIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &ReaddirplusRequest{
			Header:    m.Header(),
			Handle:    HandleID(in.Fh),
			Offset:    int64(in.Offset),
			Size:      int(in.Size),
			Flags:     ReadFlags(in.ReadFlags),
			LockOwner: in.LockOwner,
			FileFlags: openFlags(in.Flags),
		}

	case opWrite:
		in := (*writeIn)(m.data())
		if m.len() < writeInSize(s.proto) {
			goto corrupt
		}
		r := &WriteRequest{
			Header: m.Header(),
			Handle: HandleID(in.Fh),
			Offset: int64(in.Offset),
			Flags:  WriteFlags(in.WriteFlags),
		}
		if s.proto.GE(Protocol{7, 9}) {
			r.LockOwner = in.LockOwner
			r.FileFlags = openFlags(in.Flags)
		}
		buf := m.bytes()[writeInSize(s.proto):]
		if uint32(len(buf)) < in.Size {
			goto corrupt
		}
		r.Data = buf
		req = r

	case opStatfs:
		req = &StatfsRequest{
			Header: m.Header(),
		}

	case opRelease, opReleasedir:
		in := (*releaseIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &ReleaseRequest{
			Header:       m.Header(),
			Dir:          m.hdr.Opcode == opReleasedir,
			Handle:       HandleID(in.Fh),
			Flags:        openFlags(in.Flags),
			ReleaseFlags: ReleaseFlags(in.ReleaseFlags),
			LockOwner:    in.LockOwner,
		}

	case opFsync, opFsyncdir:
		in := (*fsyncIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &FsyncRequest{
			Dir:    m.hdr.Opcode == opFsyncdir,
			Header: m.Header(),
			Handle: HandleID(in.Fh),
			Flags:  in.FsyncFlags,
		}

	case opSetxattr:
		in := (*setxattrIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		m.off += int(unsafe.Sizeof(*in))
		name := m.bytes()
		i := bytes.IndexByte(name, '\x00')
		if i < 0 {
			goto corrupt
		}
		xattr := name[i+1:]
		if uint32(len(xattr)) < in.Size {
			goto corrupt
		}
		xattr = xattr[:in.Size]
		req = &SetxattrRequest{
			Header: m.Header(),
			Flags:  in.Flags,
			Name:   name[:i],
			Xattr:  xattr,
		}

	case opGetxattr:
		in := (*getxattrIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		name := m.bytes()[unsafe.Sizeof(*in):]
		i := bytes.IndexByte(name, '\x00')
		if i < 0 {
			goto corrupt
		}
		req = &GetxattrRequest{
			Header: m.Header(),
			Name:   name[:i],
			Size:   in.Size,
		}

	case opListxattr:
		in := (*getxattrIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &ListxattrRequest{
			Header: m.Header(),
			Size:   in.Size,
		}

	case opRemovexattr:
		buf := m.bytes()
		n := len(buf)
		if n == 0 || buf[n-1] != '\x00' {
			goto corrupt
		}
		req = &RemovexattrRequest{
			Header: m.Header(),
			Name:   buf[:n-1],
		}

	case opFlush:
		in := (*flushIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &FlushRequest{
			Header:    m.Header(),
			Handle:    HandleID(in.Fh),
			LockOwner: in.LockOwner,
		}

	case opInit:
		in := (*initIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &InitRequest{
			Header:       m.Header(),
			Kernel:       Protocol{in.Major, in.Minor},
			MaxReadahead: in.MaxReadahead,
			Flags:        InitFlags(in.Flags),
		}

	case opCuseInit:
		in := (*cuseInitIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &CuseInitRequest{
			Header: m.Header(),
			Kernel: Protocol{in.Major, in.Minor},
			Flags:  CuseInitFlags(in.Flags),
		}

	case opGetlk:
		in := (*lkIn)(m.data())
		if m.len() < lkInSize(s.proto) {
			goto corrupt
		}
		r := &GetlkRequest{
			Header: m.Header(),
			Handle: HandleID(in.Fh),
			Owner:  in.Owner,
			Lock: FileLock{
				Start: in.Lk.Start,
				End:   in.Lk.End,
				Type:  LockType(in.Lk.Type),
				Pid:   in.Lk.Pid,
			},
		}
		if s.proto.GE(Protocol{7, 9}) {
			r.Flags = LockFlags(in.LkFlags)
		}
		req = r

	case opSetlk, opSetlkw:
		in := (*lkIn)(m.data())
		if m.len() < lkInSize(s.proto) {
			goto corrupt
		}
		r := &SetlkRequest{
			Header: m.Header(),
			Handle: HandleID(in.Fh),
			Owner:  in.Owner,
			Lock: FileLock{
				Start: in.Lk.Start,
				End:   in.Lk.End,
				Type:  LockType(in.Lk.Type),
				Pid:   in.Lk.Pid,
			},
			Wait: m.hdr.Opcode == opSetlkw,
		}
		if s.proto.GE(Protocol{7, 9}) {
			r.Flags = LockFlags(in.LkFlags)
		}
		req = r

	case opAccess:
		in := (*accessIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &AccessRequest{
			Header: m.Header(),
			Mask:   in.Mask,
		}

	case opCreate:
		size := createInSize(s.proto)
		if m.len() < size {
			goto corrupt
		}
		in := (*createIn)(m.data())
		name := m.bytes()[size:]
		i := bytes.IndexByte(name, '\x00')
		if i < 0 {
			goto corrupt
		}
		r := &CreateRequest{
			Header: m.Header(),
			Flags:  openFlags(in.Flags),
			Mode:   fileMode(in.Mode),
			Name:   name[:i],
		}
		if s.proto.GE(Protocol{7, 12}) {
			r.Umask = fileMode(in.Umask) & os.ModePerm
		}
		req = r

	case opInterrupt:
		in := (*interruptIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &InterruptRequest{
			Header: m.Header(),
			IntrID: RequestID(in.Unique),
		}

	case opBmap:
		in := (*bmapIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &BmapRequest{
			Header:    m.Header(),
			Block:     in.Block,
			BlockSize: in.BlockSize,
		}

	case opDestroy:
		req = &DestroyRequest{
			Header: m.Header(),
		}

	case opIoctl:
		in := (*ioctlIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		data := m.bytes()[unsafe.Sizeof(*in):]
		if uint32(len(data)) < in.InSize {
			goto corrupt
		}
		req = &IoctlRequest{
			Header:  m.Header(),
			Handle:  HandleID(in.Fh),
			Flags:   IoctlFlags(in.Flags),
			Cmd:     in.Cmd,
			Arg:     in.Arg,
			InData:  data[:in.InSize],
			OutSize: in.OutSize,
		}

	case opPoll:
		in := (*pollIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &PollRequest{
			Header: m.Header(),
			Handle: HandleID(in.Fh),
			Kh:     in.Kh,
			Flags:  PollFlags(in.Flags),
			Events: in.Events,
		}

	case opFallocate:
		in := (*fallocateIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &FallocateRequest{
			Header: m.Header(),
			Handle: HandleID(in.Fh),
			Offset: in.Offset,
			Length: in.Length,
			Mode:   in.Mode,
		}

	case opLseek:
		in := (*lseekIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &LseekRequest{
			Header: m.Header(),
			Handle: HandleID(in.Fh),
			Offset: in.Offset,
			Whence: in.Whence,
		}

	case opCopyFileRange:
		in := (*copyFileRangeIn)(m.data())
		if m.len() < unsafe.Sizeof(*in) {
			goto corrupt
		}
		req = &CopyFileRangeRequest{
			Header:    m.Header(),
			InHandle:  HandleID(in.FhIn),
			InOffset:  in.OffIn,
			OutNode:   NodeID(in.NodeidOut),
			OutHandle: HandleID(in.FhOut),
			OutOffset: in.OffOut,
			Len:       in.Len,
			Flags:     in.Flags,
		}
	}

	return req, nil

corrupt:
	Debug(malformedMessage{})
	err := &MalformedError{
		ID:     RequestID(m.hdr.Unique),
		Opcode: m.hdr.Opcode,
		Reason: "payload does not decode",
	}
	putMessage(m)
	return nil, err
}

// splitNamePair splits a "oldname\x00newname\x00" payload.
func splitNamePair(buf []byte) (old, new []byte, ok bool) {
	if len(buf) < 4 {
		return nil, nil, false
	}
	if buf[len(buf)-1] != '\x00' {
		return nil, nil, false
	}
	i := bytes.IndexByte(buf, '\x00')
	if i < 0 {
		return nil, nil, false
	}
	return buf[:i], buf[i+1 : len(buf)-1], true
}
