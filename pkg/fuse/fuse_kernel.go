// See the file LICENSE for copyright and licensing information.

// Derived from FUSE's fuse_kernel.h, which carries this notice:
/*
   This file defines the kernel interface of FUSE
   Copyright (C) 2001-2008  Miklos Szeredi <miklos@szeredi.hu>

   This -- and only this -- header file may also be distributed under
   the terms of the BSD Licence as follows:

   Copyright (C) 2001-2007 Miklos Szeredi. All rights reserved.

   Redistribution and use in source and binary forms, with or without
   modification, are permitted provided that the following conditions
   are met:
   1. Redistributions of source code must retain the above copyright
      notice, this list of conditions and the following disclaimer.
   2. Redistributions in binary form must reproduce the above copyright
      notice, this list of conditions and the following disclaimer in the
      documentation and/or other materials provided with the distribution.

   THIS SOFTWARE IS PROVIDED BY AUTHOR AND CONTRIBUTORS ``AS IS'' AND
   ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
   IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
   ARE DISCLAIMED.  IN NO EVENT SHALL AUTHOR OR CONTRIBUTORS BE LIABLE
   FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
   DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS
   OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
   HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT
   LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY
   OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF
   SUCH DAMAGE.
*/

package fuse

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Every struct in this file mirrors, field for field, the wire layout
// the Linux kernel uses for the corresponding protocol structure. All
// multi-byte fields are native-endian; the protocol is host-local and
// performs no byte-order conversion. Structures are padded so 32-bit
// userspace works under 64-bit kernels.
//
// Layout differences between protocol minor versions are expressed by
// the *Size helper functions below, which return the number of bytes a
// structure occupies on the wire for a given negotiated Protocol. Each
// supported version's exact layout is therefore auditable in this one
// file.

const (
	rootID = 1
)

type attr struct {
	Ino       uint64
	Size      uint64
	Blocks    uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	Nlink     uint32
	Uid       uint32
	Gid       uint32
	Rdev      uint32
	Blksize   uint32
	_         uint32
}

// attrSize is the wire size of attr. Protocol 7.9 added Blksize and its
// trailing pad; older versions stop right before it.
func attrSize(p Protocol) uintptr {
	switch {
	case p.LT(Protocol{7, 9}):
		return unsafe.Offsetof(attr{}.Blksize)
	default:
		return unsafe.Sizeof(attr{})
	}
}

type kstatfs struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	Namelen uint32
	Frsize  uint32
	_       uint32
	Spare   [6]uint32
}

type fileLock struct {
	Start uint64
	End   uint64
	Type  uint32
	Pid   uint32 // tgid
}

// GetattrFlags are bit flags that can be seen in GetattrRequest.
type GetattrFlags uint32

const (
	// Indicates the handle is valid.
	GetattrFh GetattrFlags = 1 << 0
)

var getattrFlagsNames = []flagName{
	{uint32(GetattrFh), "GetattrFh"},
}

func (fl GetattrFlags) String() string {
	return flagString(uint32(fl), getattrFlagsNames)
}

// The SetattrValid are bit flags describing which fields in the
// SetattrRequest are included in the change.
type SetattrValid uint32

const (
	SetattrMode      SetattrValid = 1 << 0
	SetattrUid       SetattrValid = 1 << 1
	SetattrGid       SetattrValid = 1 << 2
	SetattrSize      SetattrValid = 1 << 3
	SetattrAtime     SetattrValid = 1 << 4
	SetattrMtime     SetattrValid = 1 << 5
	SetattrHandle    SetattrValid = 1 << 6
	SetattrAtimeNow  SetattrValid = 1 << 7
	SetattrMtimeNow  SetattrValid = 1 << 8
	SetattrLockOwner SetattrValid = 1 << 9
	// Protocol 7.23.
	SetattrCtime SetattrValid = 1 << 10
)

func (fl SetattrValid) Mode() bool      { return fl&SetattrMode != 0 }
func (fl SetattrValid) Uid() bool       { return fl&SetattrUid != 0 }
func (fl SetattrValid) Gid() bool       { return fl&SetattrGid != 0 }
func (fl SetattrValid) Size() bool      { return fl&SetattrSize != 0 }
func (fl SetattrValid) Atime() bool     { return fl&SetattrAtime != 0 }
func (fl SetattrValid) Mtime() bool     { return fl&SetattrMtime != 0 }
func (fl SetattrValid) Handle() bool    { return fl&SetattrHandle != 0 }
func (fl SetattrValid) AtimeNow() bool  { return fl&SetattrAtimeNow != 0 }
func (fl SetattrValid) MtimeNow() bool  { return fl&SetattrMtimeNow != 0 }
func (fl SetattrValid) LockOwner() bool { return fl&SetattrLockOwner != 0 }
func (fl SetattrValid) Ctime() bool     { return fl&SetattrCtime != 0 }

var setattrValidNames = []flagName{
	{uint32(SetattrMode), "SetattrMode"},
	{uint32(SetattrUid), "SetattrUid"},
	{uint32(SetattrGid), "SetattrGid"},
	{uint32(SetattrSize), "SetattrSize"},
	{uint32(SetattrAtime), "SetattrAtime"},
	{uint32(SetattrMtime), "SetattrMtime"},
	{uint32(SetattrHandle), "SetattrHandle"},
	{uint32(SetattrAtimeNow), "SetattrAtimeNow"},
	{uint32(SetattrMtimeNow), "SetattrMtimeNow"},
	{uint32(SetattrLockOwner), "SetattrLockOwner"},
	{uint32(SetattrCtime), "SetattrCtime"},
}

func (fl SetattrValid) String() string {
	return flagString(uint32(fl), setattrValidNames)
}

// OpenFlags are the O_FOO flags passed to open/create/etc calls. For
// example, os.O_WRONLY | os.O_APPEND.
type OpenFlags uint32

const (
	// Access modes. These are not 1-bit flags, but alternatives where
	// only one can be chosen. See the IsReadOnly etc convenience
	// methods.
	OpenReadOnly  OpenFlags = syscall.O_RDONLY
	OpenWriteOnly OpenFlags = syscall.O_WRONLY
	OpenReadWrite OpenFlags = syscall.O_RDWR

	OpenAppend    OpenFlags = syscall.O_APPEND
	OpenCreate    OpenFlags = syscall.O_CREAT
	OpenDirectory OpenFlags = syscall.O_DIRECTORY
	OpenExclusive OpenFlags = syscall.O_EXCL
	OpenNonblock  OpenFlags = syscall.O_NONBLOCK
	OpenSync      OpenFlags = syscall.O_SYNC
	OpenTruncate  OpenFlags = syscall.O_TRUNC
)

// OpenAccessModeMask is a bitmask that separates the access mode from
// the other flags in OpenFlags.
const OpenAccessModeMask OpenFlags = syscall.O_ACCMODE

func (fl OpenFlags) String() string {
	// O_RDONLY, O_RWONLY, O_RDWR are not flags.
	s := accModeName(fl & OpenAccessModeMask)
	flags := uint32(fl &^ OpenAccessModeMask)
	if flags != 0 {
		s = s + "+" + flagString(flags, openFlagNames)
	}
	return s
}

func (fl OpenFlags) IsReadOnly() bool {
	return fl&OpenAccessModeMask == OpenReadOnly
}

func (fl OpenFlags) IsWriteOnly() bool {
	return fl&OpenAccessModeMask == OpenWriteOnly
}

func (fl OpenFlags) IsReadWrite() bool {
	return fl&OpenAccessModeMask == OpenReadWrite
}

func accModeName(flags OpenFlags) string {
	switch flags {
	case OpenReadOnly:
		return "OpenReadOnly"
	case OpenWriteOnly:
		return "OpenWriteOnly"
	case OpenReadWrite:
		return "OpenReadWrite"
	default:
		return ""
	}
}

var openFlagNames = []flagName{
	{uint32(OpenAppend), "OpenAppend"},
	{uint32(OpenCreate), "OpenCreate"},
	{uint32(OpenDirectory), "OpenDirectory"},
	{uint32(OpenExclusive), "OpenExclusive"},
	{uint32(OpenNonblock), "OpenNonblock"},
	{uint32(OpenSync), "OpenSync"},
	{uint32(OpenTruncate), "OpenTruncate"},
}

// openFlags converts the raw kernel open flags into OpenFlags. On Linux
// the kernel's flag values match the syscall values, so this is the
// identity.
func openFlags(flags uint32) OpenFlags {
	return OpenFlags(flags)
}

// The OpenResponseFlags are returned in the OpenResponse.
type OpenResponseFlags uint32

const (
	OpenDirectIO    OpenResponseFlags = 1 << 0 // bypass page cache for this open file
	OpenKeepCache   OpenResponseFlags = 1 << 1 // don't invalidate the data cache on open
	OpenNonSeekable OpenResponseFlags = 1 << 2 // the file is not seekable
	OpenCacheDir    OpenResponseFlags = 1 << 3 // allow caching this directory, protocol 7.28
)

func (fl OpenResponseFlags) String() string {
	return flagString(uint32(fl), openResponseFlagNames)
}

var openResponseFlagNames = []flagName{
	{uint32(OpenDirectIO), "OpenDirectIO"},
	{uint32(OpenKeepCache), "OpenKeepCache"},
	{uint32(OpenNonSeekable), "OpenNonSeekable"},
	{uint32(OpenCacheDir), "OpenCacheDir"},
}

// The InitFlags are capability bits exchanged during the INIT
// handshake. The kernel advertises the capabilities it supports, the
// server answers with the subset it accepts; the effective set for the
// connection is the intersection.
type InitFlags uint32

const (
	InitAsyncRead         InitFlags = 1 << 0
	InitPOSIXLocks        InitFlags = 1 << 1
	InitFileOps           InitFlags = 1 << 2
	InitAtomicTrunc       InitFlags = 1 << 3
	InitExportSupport     InitFlags = 1 << 4
	InitBigWrites         InitFlags = 1 << 5
	InitDontMask          InitFlags = 1 << 6
	InitSpliceWrite       InitFlags = 1 << 7
	InitSpliceMove        InitFlags = 1 << 8
	InitSpliceRead        InitFlags = 1 << 9
	InitFlockLocks        InitFlags = 1 << 10
	InitHasIoctlDir       InitFlags = 1 << 11
	InitAutoInvalData     InitFlags = 1 << 12
	InitDoReaddirplus     InitFlags = 1 << 13
	InitReaddirplusAuto   InitFlags = 1 << 14
	InitAsyncDIO          InitFlags = 1 << 15
	InitWritebackCache    InitFlags = 1 << 16
	InitNoOpenSupport     InitFlags = 1 << 17
	InitParallelDirops    InitFlags = 1 << 18
	InitHandleKillpriv    InitFlags = 1 << 19
	InitPosixACL          InitFlags = 1 << 20
	InitAbortError        InitFlags = 1 << 21
	InitMaxPages          InitFlags = 1 << 22
	InitCacheSymlinks     InitFlags = 1 << 23
	InitNoOpendirSupport  InitFlags = 1 << 24
	InitExplicitInvalData InitFlags = 1 << 25
)

type flagName struct {
	bit  uint32
	name string
}

var initFlagNames = []flagName{
	{uint32(InitAsyncRead), "InitAsyncRead"},
	{uint32(InitPOSIXLocks), "InitPOSIXLocks"},
	{uint32(InitFileOps), "InitFileOps"},
	{uint32(InitAtomicTrunc), "InitAtomicTrunc"},
	{uint32(InitExportSupport), "InitExportSupport"},
	{uint32(InitBigWrites), "InitBigWrites"},
	{uint32(InitDontMask), "InitDontMask"},
	{uint32(InitSpliceWrite), "InitSpliceWrite"},
	{uint32(InitSpliceMove), "InitSpliceMove"},
	{uint32(InitSpliceRead), "InitSpliceRead"},
	{uint32(InitFlockLocks), "InitFlockLocks"},
	{uint32(InitHasIoctlDir), "InitHasIoctlDir"},
	{uint32(InitAutoInvalData), "InitAutoInvalData"},
	{uint32(InitDoReaddirplus), "InitDoReaddirplus"},
	{uint32(InitReaddirplusAuto), "InitReaddirplusAuto"},
	{uint32(InitAsyncDIO), "InitAsyncDIO"},
	{uint32(InitWritebackCache), "InitWritebackCache"},
	{uint32(InitNoOpenSupport), "InitNoOpenSupport"},
	{uint32(InitParallelDirops), "InitParallelDirops"},
	{uint32(InitHandleKillpriv), "InitHandleKillpriv"},
	{uint32(InitPosixACL), "InitPosixACL"},
	{uint32(InitAbortError), "InitAbortError"},
	{uint32(InitMaxPages), "InitMaxPages"},
	{uint32(InitCacheSymlinks), "InitCacheSymlinks"},
	{uint32(InitNoOpendirSupport), "InitNoOpendirSupport"},
	{uint32(InitExplicitInvalData), "InitExplicitInvalData"},
}

func (fl InitFlags) String() string {
	return flagString(uint32(fl), initFlagNames)
}

// The CuseInitFlags are the CUSE counterpart of InitFlags.
type CuseInitFlags uint32

const (
	CuseUnrestrictedIoctl CuseInitFlags = 1 << 0
)

var cuseInitFlagNames = []flagName{
	{uint32(CuseUnrestrictedIoctl), "CuseUnrestrictedIoctl"},
}

func (fl CuseInitFlags) String() string {
	return flagString(uint32(fl), cuseInitFlagNames)
}

func flagString(f uint32, names []flagName) string {
	var s string

	if f == 0 {
		return "0"
	}

	for _, n := range names {
		if f&n.bit != 0 {
			s += "+" + n.name
			f &^= n.bit
		}
	}
	if f != 0 {
		s += fmt.Sprintf("%+#x", f)
	}
	return s[1:]
}

// The ReleaseFlags are used in the Release exchange.
type ReleaseFlags uint32

const (
	ReleaseFlush ReleaseFlags = 1 << 0
	// Protocol 7.17.
	ReleaseFlockUnlock ReleaseFlags = 1 << 1
)

func (fl ReleaseFlags) String() string {
	return flagString(uint32(fl), releaseFlagNames)
}

var releaseFlagNames = []flagName{
	{uint32(ReleaseFlush), "ReleaseFlush"},
	{uint32(ReleaseFlockUnlock), "ReleaseFlockUnlock"},
}

// The ReadFlags are passed in ReadRequest.
type ReadFlags uint32

const (
	// LockOwner field is valid.
	ReadLockOwner ReadFlags = 1 << 1
)

var readFlagNames = []flagName{
	{uint32(ReadLockOwner), "ReadLockOwner"},
}

func (fl ReadFlags) String() string {
	return flagString(uint32(fl), readFlagNames)
}

// The WriteFlags are passed in WriteRequest.
type WriteFlags uint32

const (
	// Delayed write from the page cache; the file handle is guessed.
	WriteCache WriteFlags = 1 << 0
	// LockOwner field is valid.
	WriteLockOwner WriteFlags = 1 << 1
	// Kill the suid and sgid bits, protocol 7.31.
	WriteKillPriv WriteFlags = 1 << 2
)

var writeFlagNames = []flagName{
	{uint32(WriteCache), "WriteCache"},
	{uint32(WriteLockOwner), "WriteLockOwner"},
	{uint32(WriteKillPriv), "WriteKillPriv"},
}

func (fl WriteFlags) String() string {
	return flagString(uint32(fl), writeFlagNames)
}

// The LockFlags are passed in lock requests.
type LockFlags uint32

const (
	// BSD-style flock lock (not POSIX lock), protocol 7.9.
	LockFlock LockFlags = 1 << 0
)

var lockFlagNames = []flagName{
	{uint32(LockFlock), "LockFlock"},
}

func (fl LockFlags) String() string {
	return flagString(uint32(fl), lockFlagNames)
}

type LockType uint32

const (
	LockRead   LockType = unix.F_RDLCK
	LockWrite  LockType = unix.F_WRLCK
	LockUnlock LockType = unix.F_UNLCK
)

var lockTypeNames = map[LockType]string{
	LockRead:   "LockRead",
	LockWrite:  "LockWrite",
	LockUnlock: "LockUnlock",
}

func (l LockType) String() string {
	s, ok := lockTypeNames[l]
	if ok {
		return s
	}
	return fmt.Sprintf("LockType(%d)", uint32(l))
}

// The IoctlFlags are passed in IoctlRequest.
type IoctlFlags uint32

const (
	IoctlCompat       IoctlFlags = 1 << 0 // 32-bit compat ioctl on 64-bit machine
	IoctlUnrestricted IoctlFlags = 1 << 1 // not restricted to well-formed ioctls, retry allowed
	IoctlRetry        IoctlFlags = 1 << 2 // retry with new iovecs
	IoctlDir          IoctlFlags = 1 << 4 // is a directory, protocol 7.18
)

var ioctlFlagNames = []flagName{
	{uint32(IoctlCompat), "IoctlCompat"},
	{uint32(IoctlUnrestricted), "IoctlUnrestricted"},
	{uint32(IoctlRetry), "IoctlRetry"},
	{uint32(IoctlDir), "IoctlDir"},
}

func (fl IoctlFlags) String() string {
	return flagString(uint32(fl), ioctlFlagNames)
}

// PollFlags are passed in PollRequest.
type PollFlags uint32

const (
	// PollScheduleNotify requests that a poll notification is done once
	// the node is ready.
	PollScheduleNotify PollFlags = 1 << 0
)

var pollFlagNames = []flagName{
	{uint32(PollScheduleNotify), "PollScheduleNotify"},
}

func (fl PollFlags) String() string {
	return flagString(uint32(fl), pollFlagNames)
}

// RenameFlags are the renameat2 flags carried by a RENAME2 request,
// protocol 7.23. A plain RENAME decodes with zero flags.
type RenameFlags uint32

const (
	RenameNoReplace RenameFlags = 1 << 0
	RenameExchange  RenameFlags = 1 << 1
	RenameWhiteout  RenameFlags = 1 << 2
)

var renameFlagNames = []flagName{
	{uint32(RenameNoReplace), "RenameNoReplace"},
	{uint32(RenameExchange), "RenameExchange"},
	{uint32(RenameWhiteout), "RenameWhiteout"},
}

func (fl RenameFlags) String() string {
	return flagString(uint32(fl), renameFlagNames)
}

// Opcodes. The set is closed: decode, encode and dispatch each handle
// every entry, and anything outside the set decodes into an
// UnknownRequest.
const (
	opLookup        = 1
	opForget        = 2 // no reply
	opGetattr       = 3
	opSetattr       = 4
	opReadlink      = 5
	opSymlink       = 6
	opMknod         = 8
	opMkdir         = 9
	opUnlink        = 10
	opRmdir         = 11
	opRename        = 12
	opLink          = 13
	opOpen          = 14
	opRead          = 15
	opWrite         = 16
	opStatfs        = 17
	opRelease       = 18
	opFsync         = 20
	opSetxattr      = 21
	opGetxattr      = 22
	opListxattr     = 23
	opRemovexattr   = 24
	opFlush         = 25
	opInit          = 26
	opOpendir       = 27
	opReaddir       = 28
	opReleasedir    = 29
	opFsyncdir      = 30
	opGetlk         = 31
	opSetlk         = 32
	opSetlkw        = 33
	opAccess        = 34
	opCreate        = 35
	opInterrupt     = 36
	opBmap          = 37
	opDestroy       = 38
	opIoctl         = 39 // protocol 7.11
	opPoll          = 40 // protocol 7.11
	opBatchForget   = 42 // protocol 7.16
	opFallocate     = 43 // protocol 7.19
	opReaddirplus   = 44 // protocol 7.21
	opRename2       = 45 // protocol 7.23
	opLseek         = 46 // protocol 7.24
	opCopyFileRange = 47 // protocol 7.28

	opCuseInit = 4096
)

var opcodeNames = map[uint32]string{
	opLookup:        "LOOKUP",
	opForget:        "FORGET",
	opGetattr:       "GETATTR",
	opSetattr:       "SETATTR",
	opReadlink:      "READLINK",
	opSymlink:       "SYMLINK",
	opMknod:         "MKNOD",
	opMkdir:         "MKDIR",
	opUnlink:        "UNLINK",
	opRmdir:         "RMDIR",
	opRename:        "RENAME",
	opLink:          "LINK",
	opOpen:          "OPEN",
	opRead:          "READ",
	opWrite:         "WRITE",
	opStatfs:        "STATFS",
	opRelease:       "RELEASE",
	opFsync:         "FSYNC",
	opSetxattr:      "SETXATTR",
	opGetxattr:      "GETXATTR",
	opListxattr:     "LISTXATTR",
	opRemovexattr:   "REMOVEXATTR",
	opFlush:         "FLUSH",
	opInit:          "INIT",
	opOpendir:       "OPENDIR",
	opReaddir:       "READDIR",
	opReleasedir:    "RELEASEDIR",
	opFsyncdir:      "FSYNCDIR",
	opGetlk:         "GETLK",
	opSetlk:         "SETLK",
	opSetlkw:        "SETLKW",
	opAccess:        "ACCESS",
	opCreate:        "CREATE",
	opInterrupt:     "INTERRUPT",
	opBmap:          "BMAP",
	opDestroy:       "DESTROY",
	opIoctl:         "IOCTL",
	opPoll:          "POLL",
	opBatchForget:   "BATCH_FORGET",
	opFallocate:     "FALLOCATE",
	opReaddirplus:   "READDIRPLUS",
	opRename2:       "RENAME2",
	opLseek:         "LSEEK",
	opCopyFileRange: "COPY_FILE_RANGE",
	opCuseInit:      "CUSE_INIT",
}

func opcodeName(opcode uint32) string {
	if s, ok := opcodeNames[opcode]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(%d)", opcode)
}

type entryOut struct {
	Nodeid         uint64 // Inode ID
	Generation     uint64 // Inode generation
	EntryValid     uint64 // Cache timeout for the name
	AttrValid      uint64 // Cache timeout for the attributes
	EntryValidNsec uint32
	AttrValidNsec  uint32
	Attr           attr
}

func entryOutSize(p Protocol) uintptr {
	switch {
	case p.LT(Protocol{7, 9}):
		return unsafe.Offsetof(entryOut{}.Attr) + attrSize(p)
	default:
		return unsafe.Sizeof(entryOut{})
	}
}

type forgetIn struct {
	Nlookup uint64
}

type forgetOne struct {
	NodeID  uint64
	Nlookup uint64
}

type batchForgetIn struct {
	Count uint32
	_     uint32
	// forgetOne entries follow.
}

type getattrIn struct {
	GetattrFlags uint32
	_            uint32
	Fh           uint64
}

type attrOut struct {
	AttrValid     uint64 // Cache timeout for the attributes
	AttrValidNsec uint32
	_             uint32
	Attr          attr
}

func attrOutSize(p Protocol) uintptr {
	switch {
	case p.LT(Protocol{7, 9}):
		return unsafe.Offsetof(attrOut{}.Attr) + attrSize(p)
	default:
		return unsafe.Sizeof(attrOut{})
	}
}

type mknodIn struct {
	Mode  uint32
	Rdev  uint32
	Umask uint32
	_     uint32
	// "filename\x00" follows.
}

func mknodInSize(p Protocol) uintptr {
	switch {
	case p.LT(Protocol{7, 12}):
		return unsafe.Offsetof(mknodIn{}.Umask)
	default:
		return unsafe.Sizeof(mknodIn{})
	}
}

type mkdirIn struct {
	Mode  uint32
	Umask uint32
	// "dirname\x00" follows.
}

func mkdirInSize(p Protocol) uintptr {
	switch {
	case p.LT(Protocol{7, 12}):
		return unsafe.Offsetof(mkdirIn{}.Umask) + 4
	default:
		return unsafe.Sizeof(mkdirIn{})
	}
}

type renameIn struct {
	Newdir uint64
	// "oldname\x00newname\x00" follows.
}

type rename2In struct {
	Newdir uint64
	Flags  uint32
	_      uint32
	// "oldname\x00newname\x00" follows.
}

type linkIn struct {
	Oldnodeid uint64
}

type setattrIn struct {
	Valid     uint32
	_         uint32
	Fh        uint64
	Size      uint64
	LockOwner uint64 // protocol 7.9
	Atime     uint64
	Mtime     uint64
	Ctime     uint64 // protocol 7.23, reserved before
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32 // protocol 7.23, reserved before
	Mode      uint32
	_         uint32
	Uid       uint32
	Gid       uint32
	_         uint32
}

type openIn struct {
	Flags uint32
	_     uint32
}

type openOut struct {
	Fh        uint64
	OpenFlags uint32
	_         uint32
}

type createIn struct {
	Flags uint32
	Mode  uint32
	Umask uint32
	_     uint32
	// "filename\x00" follows.
}

func createInSize(p Protocol) uintptr {
	switch {
	case p.LT(Protocol{7, 12}):
		return unsafe.Offsetof(createIn{}.Umask)
	default:
		return unsafe.Sizeof(createIn{})
	}
}

type releaseIn struct {
	Fh           uint64
	Flags        uint32
	ReleaseFlags uint32
	LockOwner    uint64
}

type flushIn struct {
	Fh        uint64
	_         uint32
	_         uint32
	LockOwner uint64
}

type readIn struct {
	Fh        uint64
	Offset    uint64
	Size      uint32
	ReadFlags uint32
	LockOwner uint64 // protocol 7.9
	Flags     uint32 // protocol 7.9
	_         uint32
}

func readInSize(p Protocol) uintptr {
	switch {
	case p.LT(Protocol{7, 9}):
		return unsafe.Offsetof(readIn{}.ReadFlags) + 4
	default:
		return unsafe.Sizeof(readIn{})
	}
}

type writeIn struct {
	Fh         uint64
	Offset     uint64
	Size       uint32
	WriteFlags uint32
	LockOwner  uint64 // protocol 7.9
	Flags      uint32 // protocol 7.9
	_          uint32
	// Size bytes of data follow.
}

func writeInSize(p Protocol) uintptr {
	switch {
	case p.LT(Protocol{7, 9}):
		return unsafe.Offsetof(writeIn{}.LockOwner)
	default:
		return unsafe.Sizeof(writeIn{})
	}
}

type writeOut struct {
	Size uint32
	_    uint32
}

type statfsOut struct {
	St kstatfs
}

type fsyncIn struct {
	Fh         uint64
	FsyncFlags uint32
	_          uint32
}

type setxattrIn struct {
	Size  uint32
	Flags uint32
	// "name\x00" followed by Size bytes of value.
}

type getxattrIn struct {
	Size uint32
	_    uint32
	// "name\x00" follows (GETXATTR only).
}

type getxattrOut struct {
	Size uint32
	_    uint32
}

type lkIn struct {
	Fh      uint64
	Owner   uint64
	Lk      fileLock
	LkFlags uint32 // protocol 7.9
	_       uint32
}

func lkInSize(p Protocol) uintptr {
	switch {
	case p.LT(Protocol{7, 9}):
		return unsafe.Offsetof(lkIn{}.LkFlags)
	default:
		return unsafe.Sizeof(lkIn{})
	}
}

type lkOut struct {
	Lk fileLock
}

type accessIn struct {
	Mask uint32
	_    uint32
}

type initIn struct {
	Major        uint32
	Minor        uint32
	MaxReadahead uint32
	Flags        uint32
}

const initInSize = int(unsafe.Sizeof(initIn{}))

type initOut struct {
	Major               uint32
	Minor               uint32
	MaxReadahead        uint32
	Flags               uint32
	MaxBackground       uint16 // protocol 7.13
	CongestionThreshold uint16 // protocol 7.13
	MaxWrite            uint32
	TimeGran            uint32 // protocol 7.23
	MaxPages            uint16 // protocol 7.28
	_                   uint16
	_                   [8]uint32
}

// initOutSize captures the three generations of the INIT reply: ancient
// kernels take only the version pair, pre-7.23 kernels take the 24-byte
// form, and everything newer takes the padded 64-byte form.
func initOutSize(p Protocol) uintptr {
	switch {
	case p.LT(Protocol{7, 5}):
		return unsafe.Offsetof(initOut{}.MaxReadahead)
	case p.LT(Protocol{7, 23}):
		return unsafe.Offsetof(initOut{}.TimeGran)
	default:
		return unsafe.Sizeof(initOut{})
	}
}

type cuseInitIn struct {
	Major uint32
	Minor uint32
	_     uint32
	Flags uint32
}

type cuseInitOut struct {
	Major    uint32
	Minor    uint32
	_        uint32
	Flags    uint32
	MaxRead  uint32
	MaxWrite uint32
	DevMajor uint32 // chardev major
	DevMinor uint32 // chardev minor
	_        [10]uint32
	// "DEVNAME=name\x00" follows.
}

type interruptIn struct {
	Unique uint64
}

type bmapIn struct {
	Block     uint64
	BlockSize uint32
	_         uint32
}

type bmapOut struct {
	Block uint64
}

type ioctlIn struct {
	Fh      uint64
	Flags   uint32
	Cmd     uint32
	Arg     uint64
	InSize  uint32
	OutSize uint32
	// InSize bytes of data follow.
}

type ioctlOut struct {
	Result  int32
	Flags   uint32
	InIovs  uint32
	OutIovs uint32
	// Data or iovec array follows.
}

type pollIn struct {
	Fh     uint64
	Kh     uint64
	Flags  uint32
	Events uint32
}

type pollOut struct {
	Revents uint32
	_       uint32
}

type fallocateIn struct {
	Fh     uint64
	Offset uint64
	Length uint64
	Mode   uint32
	_      uint32
}

type lseekIn struct {
	Fh     uint64
	Offset uint64
	Whence uint32
	_      uint32
}

type lseekOut struct {
	Offset uint64
}

type copyFileRangeIn struct {
	FhIn      uint64
	OffIn     uint64
	NodeidOut uint64
	FhOut     uint64
	OffOut    uint64
	Len       uint64
	Flags     uint64
}

type inHeader struct {
	Len    uint32
	Opcode uint32
	Unique uint64
	Nodeid uint64
	Uid    uint32
	Gid    uint32
	Pid    uint32
	_      uint32
}

const inHeaderSize = int(unsafe.Sizeof(inHeader{}))

type outHeader struct {
	Len    uint32
	Error  int32
	Unique uint64
}

const outHeaderSize = int(unsafe.Sizeof(outHeader{}))

type dirent struct {
	Ino     uint64
	Off     uint64
	Namelen uint32
	Type    uint32
	// Name follows, NUL-padded to an 8 byte boundary.
}

const direntSize = int(unsafe.Sizeof(dirent{}))

const (
	notifyCodePoll       int32 = 1
	notifyCodeInvalInode int32 = 2
	notifyCodeInvalEntry int32 = 3
	notifyCodeDelete     int32 = 6
)

type notifyInvalInodeOut struct {
	Ino uint64
	Off int64
	Len int64
}

type notifyInvalEntryOut struct {
	Parent  uint64
	Namelen uint32
	_       uint32
}
