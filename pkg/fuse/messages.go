// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"fmt"
	"os"
	"time"
	"unsafe"
)

// Variable-length request fields (names, link targets, write and
// xattr payloads) are byte slices into the receive buffer. They stay
// valid until the request is responded to; callers who need the data
// longer must copy.

// An InitRequest is the first request sent on a FUSE file system.
type InitRequest struct {
	Header `json:"-"`
	Kernel Protocol
	// Maximum readahead in bytes that the kernel plans to use.
	MaxReadahead uint32
	Flags        InitFlags
}

var _ = Request(&InitRequest{})

func (r *InitRequest) String() string {
	return fmt.Sprintf("Init [%v] %v ra=%d fl=%v", &r.Header, r.Kernel, r.MaxReadahead, r.Flags)
}

// An InitResponse is the response to an InitRequest.
type InitResponse struct {
	Library Protocol
	// Maximum readahead in bytes that the kernel can use. Ignored if
	// greater than InitRequest.MaxReadahead.
	MaxReadahead uint32
	Flags        InitFlags
	// Maximum number of outstanding background requests.
	MaxBackground uint16
	// Number of background requests at which congestion control
	// kicks in.
	CongestionThreshold uint16
	// Maximum size of a single write operation.
	// Linux enforces a minimum of 4 KiB.
	MaxWrite uint32
	// Timestamp granularity in nanoseconds. Protocol 7.23.
	TimeGran uint32
	// Maximum number of pages in a single request. Protocol 7.28;
	// honored by the kernel only when InitMaxPages is set.
	MaxPages uint16
}

func (r *InitResponse) String() string {
	return fmt.Sprintf("Init %v ra=%d fl=%v w=%d", r.Library, r.MaxReadahead, r.Flags, r.MaxWrite)
}

// Respond replies to the request with the given response.
//
// The reply is truncated to the layout generation the requesting
// kernel understands, so even a pre-7.23 kernel gets a reply it can
// parse.
func (r *InitRequest) Respond(resp *InitResponse) {
	proto := r.Kernel
	if (Protocol{protoVersionMaxMajor, protoVersionMaxMinor}).LT(proto) {
		proto = Protocol{protoVersionMaxMajor, protoVersionMaxMinor}
	}
	size := initOutSize(proto)
	buf := newBuffer(size)
	out := (*initOut)(buf.alloc(size))
	out.Major = resp.Library.Major
	out.Minor = resp.Library.Minor
	out.MaxReadahead = resp.MaxReadahead
	out.Flags = uint32(resp.Flags)
	out.MaxBackground = resp.MaxBackground
	out.CongestionThreshold = resp.CongestionThreshold
	out.MaxWrite = resp.MaxWrite
	out.TimeGran = resp.TimeGran
	out.MaxPages = resp.MaxPages

	// MaxWrite larger than our receive buffer would just lead to
	// errors on large writes.
	if out.MaxWrite > maxWrite {
		out.MaxWrite = maxWrite
	}
	r.respond(buf)
}

// A CuseInitRequest opens a CUSE character device session. It plays
// the role INIT plays on a file system session.
type CuseInitRequest struct {
	Header `json:"-"`
	Kernel Protocol
	Flags  CuseInitFlags
}

var _ = Request(&CuseInitRequest{})

func (r *CuseInitRequest) String() string {
	return fmt.Sprintf("CuseInit [%v] %v fl=%v", &r.Header, r.Kernel, r.Flags)
}

// A CuseInitResponse is the response to a CuseInitRequest.
type CuseInitResponse struct {
	Library  Protocol
	Flags    CuseInitFlags
	MaxRead  uint32
	MaxWrite uint32
	// Device numbers for the character device being created.
	DevMajor uint32
	DevMinor uint32
	// Name of the character device, without the /dev/ prefix.
	Name string
}

func (r *CuseInitResponse) String() string {
	return fmt.Sprintf("CuseInit %v fl=%v dev=%d:%d name=%q", r.Library, r.Flags, r.DevMajor, r.DevMinor, r.Name)
}

// Respond replies to the request with the given response.
func (r *CuseInitRequest) Respond(resp *CuseInitResponse) {
	const devnamePrefix = "DEVNAME="
	buf := newBuffer(unsafe.Sizeof(cuseInitOut{}) + uintptr(len(devnamePrefix)+len(resp.Name)) + 1)
	out := (*cuseInitOut)(buf.alloc(unsafe.Sizeof(cuseInitOut{})))
	out.Major = resp.Library.Major
	out.Minor = resp.Library.Minor
	out.Flags = uint32(resp.Flags)
	out.MaxRead = resp.MaxRead
	out.MaxWrite = resp.MaxWrite
	out.DevMajor = resp.DevMajor
	out.DevMinor = resp.DevMinor
	if out.MaxWrite > maxWrite {
		out.MaxWrite = maxWrite
	}
	buf = append(buf, devnamePrefix...)
	buf = append(buf, resp.Name...)
	buf = append(buf, '\x00')
	r.respond(buf)
}

// A StatfsRequest requests information about the mounted file system.
type StatfsRequest struct {
	Header `json:"-"`
}

var _ = Request(&StatfsRequest{})

func (r *StatfsRequest) String() string {
	return fmt.Sprintf("Statfs [%s]", &r.Header)
}

// Respond replies to the request with the given response.
func (r *StatfsRequest) Respond(resp *StatfsResponse) {
	buf := newBuffer(unsafe.Sizeof(statfsOut{}))
	out := (*statfsOut)(buf.alloc(unsafe.Sizeof(statfsOut{})))
	out.St = kstatfs{
		Blocks:  resp.Blocks,
		Bfree:   resp.Bfree,
		Bavail:  resp.Bavail,
		Files:   resp.Files,
		Ffree:   resp.Ffree,
		Bsize:   resp.Bsize,
		Namelen: resp.Namelen,
		Frsize:  resp.Frsize,
	}
	r.respond(buf)
}

// A StatfsResponse is the response to a StatfsRequest.
type StatfsResponse struct {
	Blocks  uint64 // Total data blocks in file system.
	Bfree   uint64 // Free blocks in file system.
	Bavail  uint64 // Free blocks in file system if you're not root.
	Files   uint64 // Total files in file system.
	Ffree   uint64 // Free files in file system.
	Bsize   uint32 // Block size
	Namelen uint32 // Maximum file name length?
	Frsize  uint32 // Fragment size, smallest addressable data size in the file system.
}

func (r *StatfsResponse) String() string {
	return fmt.Sprintf("Statfs blocks=%d/%d/%d files=%d/%d bsize=%d frsize=%d namelen=%d",
		r.Bavail, r.Bfree, r.Blocks,
		r.Ffree, r.Files,
		r.Bsize,
		r.Frsize,
		r.Namelen,
	)
}

// An AccessRequest asks whether the file can be accessed
// for the purpose specified by the mask.
type AccessRequest struct {
	Header `json:"-"`
	Mask   uint32
}

var _ = Request(&AccessRequest{})

func (r *AccessRequest) String() string {
	return fmt.Sprintf("Access [%s] mask=%#x", &r.Header, r.Mask)
}

// Respond replies to the request indicating that access is allowed.
// To deny access, use RespondError.
func (r *AccessRequest) Respond() {
	buf := newBuffer(0)
	r.respond(buf)
}

// A GetattrRequest asks for the metadata for the file denoted by r.Node.
type GetattrRequest struct {
	Header `json:"-"`
	Flags  GetattrFlags
	Handle HandleID
}

var _ = Request(&GetattrRequest{})

func (r *GetattrRequest) String() string {
	return fmt.Sprintf("Getattr [%s] %v fl=%v", &r.Header, r.Handle, r.Flags)
}

// Respond replies to the request with the given response.
func (r *GetattrRequest) Respond(resp *GetattrResponse) {
	size := attrOutSize(r.sess.proto)
	buf := newBuffer(size)
	out := (*attrOut)(buf.alloc(size))
	out.AttrValid = uint64(resp.Attr.Valid / time.Second)
	out.AttrValidNsec = uint32(resp.Attr.Valid % time.Second / time.Nanosecond)
	resp.Attr.attr(&out.Attr, r.sess.proto)
	r.respond(buf)
}

// A GetattrResponse is the response to a GetattrRequest.
type GetattrResponse struct {
	Attr Attr // file attributes
}

func (r *GetattrResponse) String() string {
	return fmt.Sprintf("Getattr %v", r.Attr)
}

// A GetxattrRequest asks for the extended attributes associated with r.Node.
type GetxattrRequest struct {
	Header `json:"-"`

	// Maximum size to return.
	Size uint32

	// Name of the attribute requested.
	Name []byte
}

var _ = Request(&GetxattrRequest{})

func (r *GetxattrRequest) String() string {
	return fmt.Sprintf("Getxattr [%s] %q %d", &r.Header, r.Name, r.Size)
}

// Respond replies to the request with the given response.
func (r *GetxattrRequest) Respond(resp *GetxattrResponse) {
	if r.Size == 0 {
		buf := newBuffer(unsafe.Sizeof(getxattrOut{}))
		out := (*getxattrOut)(buf.alloc(unsafe.Sizeof(getxattrOut{})))
		out.Size = uint32(len(resp.Xattr))
		r.respond(buf)
	} else {
		buf := newBuffer(uintptr(len(resp.Xattr)))
		buf = append(buf, resp.Xattr...)
		r.respond(buf)
	}
}

// A GetxattrResponse is the response to a GetxattrRequest.
type GetxattrResponse struct {
	Xattr []byte
}

func (r *GetxattrResponse) String() string {
	return fmt.Sprintf("Getxattr %x", r.Xattr)
}

// A ListxattrRequest asks to list the extended attributes associated
// with r.Node.
type ListxattrRequest struct {
	Header `json:"-"`
	Size   uint32 // maximum size to return
}

var _ = Request(&ListxattrRequest{})

func (r *ListxattrRequest) String() string {
	return fmt.Sprintf("Listxattr [%s] %d", &r.Header, r.Size)
}

// Respond replies to the request with the given response.
func (r *ListxattrRequest) Respond(resp *ListxattrResponse) {
	if r.Size == 0 {
		buf := newBuffer(unsafe.Sizeof(getxattrOut{}))
		out := (*getxattrOut)(buf.alloc(unsafe.Sizeof(getxattrOut{})))
		out.Size = uint32(len(resp.Xattr))
		r.respond(buf)
	} else {
		buf := newBuffer(uintptr(len(resp.Xattr)))
		buf = append(buf, resp.Xattr...)
		r.respond(buf)
	}
}

// A ListxattrResponse is the response to a ListxattrRequest.
type ListxattrResponse struct {
	Xattr []byte
}

func (r *ListxattrResponse) String() string {
	return fmt.Sprintf("Listxattr %x", r.Xattr)
}

// Append adds an extended attribute name to the response.
func (r *ListxattrResponse) Append(names ...string) {
	for _, name := range names {
		r.Xattr = append(r.Xattr, name...)
		r.Xattr = append(r.Xattr, '\x00')
	}
}

// A RemovexattrRequest asks to remove an extended attribute associated
// with r.Node.
type RemovexattrRequest struct {
	Header `json:"-"`
	Name   []byte // name of extended attribute
}

var _ = Request(&RemovexattrRequest{})

func (r *RemovexattrRequest) String() string {
	return fmt.Sprintf("Removexattr [%s] %q", &r.Header, r.Name)
}

// Respond replies to the request, indicating that the attribute was
// removed.
func (r *RemovexattrRequest) Respond() {
	buf := newBuffer(0)
	r.respond(buf)
}

// A SetxattrRequest asks to set an extended attribute associated with
// a file.
type SetxattrRequest struct {
	Header `json:"-"`

	// Flags can make the request fail if attribute does/not already
	// exist. Unfortunately, the constants are platform-specific and
	// not exposed by Go's syscall package.
	Flags uint32

	Name  []byte
	Xattr []byte
}

var _ = Request(&SetxattrRequest{})

func (r *SetxattrRequest) String() string {
	xattr, tail := trunc(r.Xattr, 16)
	return fmt.Sprintf("Setxattr [%s] %q %x%s fl=%v", &r.Header, r.Name, xattr, tail, r.Flags)
}

// Respond replies to the request, indicating that the extended
// attribute was set.
func (r *SetxattrRequest) Respond() {
	buf := newBuffer(0)
	r.respond(buf)
}

// A LookupRequest asks to look up the given name in the directory
// named by r.Node.
type LookupRequest struct {
	Header `json:"-"`
	Name   []byte
}

var _ = Request(&LookupRequest{})

func (r *LookupRequest) String() string {
	return fmt.Sprintf("Lookup [%s] %q", &r.Header, r.Name)
}

// Respond replies to the request with the given response.
//
// A response with a nonzero Node takes a reference on that node; the
// reference is dropped again by FORGET.
func (r *LookupRequest) Respond(resp *LookupResponse) {
	r.sess.rememberNode(resp.Node)
	size := entryOutSize(r.sess.proto)
	buf := newBuffer(size)
	out := (*entryOut)(buf.alloc(size))
	out.Nodeid = uint64(resp.Node)
	out.Generation = resp.Generation
	out.EntryValid = uint64(resp.EntryValid / time.Second)
	out.EntryValidNsec = uint32(resp.EntryValid % time.Second / time.Nanosecond)
	out.AttrValid = uint64(resp.Attr.Valid / time.Second)
	out.AttrValidNsec = uint32(resp.Attr.Valid % time.Second / time.Nanosecond)
	resp.Attr.attr(&out.Attr, r.sess.proto)
	r.respond(buf)
}

// A LookupResponse is the response to a LookupRequest.
type LookupResponse struct {
	Node       NodeID
	Generation uint64
	EntryValid time.Duration
	Attr       Attr
}

func (r *LookupResponse) string() string {
	return fmt.Sprintf("%v gen=%d valid=%v attr={%v}", r.Node, r.Generation, r.EntryValid, r.Attr)
}

func (r *LookupResponse) String() string {
	return fmt.Sprintf("Lookup %s", r.string())
}

// An OpenRequest asks to open a file or directory.
type OpenRequest struct {
	Header `json:"-"`
	Dir    bool // is this Opendir?
	Flags  OpenFlags
}

var _ = Request(&OpenRequest{})

func (r *OpenRequest) String() string {
	return fmt.Sprintf("Open [%s] dir=%v fl=%v", &r.Header, r.Dir, r.Flags)
}

// Respond replies to the request with the given response.
func (r *OpenRequest) Respond(resp *OpenResponse) {
	buf := newBuffer(unsafe.Sizeof(openOut{}))
	out := (*openOut)(buf.alloc(unsafe.Sizeof(openOut{})))
	out.Fh = uint64(resp.Handle)
	out.OpenFlags = uint32(resp.Flags)
	r.respond(buf)
}

// An OpenResponse is the response to an OpenRequest.
type OpenResponse struct {
	Handle HandleID
	Flags  OpenResponseFlags
}

func (r *OpenResponse) string() string {
	return fmt.Sprintf("%v fl=%v", r.Handle, r.Flags)
}

func (r *OpenResponse) String() string {
	return fmt.Sprintf("Open %s", r.string())
}

// A CreateRequest asks to create and open a file (not a directory).
type CreateRequest struct {
	Header `json:"-"`
	Name   []byte
	Flags  OpenFlags
	Mode   os.FileMode
	// Umask of the request. Only meaningful on protocol 7.12 and up.
	Umask os.FileMode
}

var _ = Request(&CreateRequest{})

func (r *CreateRequest) String() string {
	return fmt.Sprintf("Create [%s] %q fl=%v mode=%v umask=%v", &r.Header, r.Name, r.Flags, r.Mode, r.Umask)
}

// Respond replies to the request with the given response.
//
// The response takes a reference on LookupResponse.Node.
func (r *CreateRequest) Respond(resp *CreateResponse) {
	r.sess.rememberNode(resp.Node)
	eSize := entryOutSize(r.sess.proto)
	buf := newBuffer(eSize + unsafe.Sizeof(openOut{}))

	e := (*entryOut)(buf.alloc(eSize))
	e.Nodeid = uint64(resp.Node)
	e.Generation = resp.Generation
	e.EntryValid = uint64(resp.EntryValid / time.Second)
	e.EntryValidNsec = uint32(resp.EntryValid % time.Second / time.Nanosecond)
	e.AttrValid = uint64(resp.Attr.Valid / time.Second)
	e.AttrValidNsec = uint32(resp.Attr.Valid % time.Second / time.Nanosecond)
	resp.Attr.attr(&e.Attr, r.sess.proto)

	o := (*openOut)(buf.alloc(unsafe.Sizeof(openOut{})))
	o.Fh = uint64(resp.Handle)
	o.OpenFlags = uint32(resp.Flags)

	r.respond(buf)
}

// A CreateResponse is the response to a CreateRequest.
// It describes the created node, as well as the opened file handle.
type CreateResponse struct {
	LookupResponse
	OpenResponse
}

func (r *CreateResponse) String() string {
	return fmt.Sprintf("Create {%s} {%s}", r.LookupResponse.string(), r.OpenResponse.string())
}

// A MknodRequest asks to create a (non-directory, non-regular) file or
// a device special file.
type MknodRequest struct {
	Header `json:"-"`
	Name   []byte
	Mode   os.FileMode
	Rdev   uint32
	// Umask of the request. Only meaningful on protocol 7.12 and up.
	Umask os.FileMode
}

var _ = Request(&MknodRequest{})

func (r *MknodRequest) String() string {
	return fmt.Sprintf("Mknod [%s] Name %q mode=%v umask=%v rdev=%d", &r.Header, r.Name, r.Mode, r.Umask, r.Rdev)
}

// Respond replies to the request with the given response.
//
// The response takes a reference on resp.Node.
func (r *MknodRequest) Respond(resp *LookupResponse) {
	r.sess.rememberNode(resp.Node)
	size := entryOutSize(r.sess.proto)
	buf := newBuffer(size)
	out := (*entryOut)(buf.alloc(size))
	out.Nodeid = uint64(resp.Node)
	out.Generation = resp.Generation
	out.EntryValid = uint64(resp.EntryValid / time.Second)
	out.EntryValidNsec = uint32(resp.EntryValid % time.Second / time.Nanosecond)
	out.AttrValid = uint64(resp.Attr.Valid / time.Second)
	out.AttrValidNsec = uint32(resp.Attr.Valid % time.Second / time.Nanosecond)
	resp.Attr.attr(&out.Attr, r.sess.proto)
	r.respond(buf)
}

// A MkdirRequest asks to create (but not open) a directory.
type MkdirRequest struct {
	Header `json:"-"`
	Name   []byte
	Mode   os.FileMode
	// Umask of the request. Only meaningful on protocol 7.12 and up.
	Umask os.FileMode
}

var _ = Request(&MkdirRequest{})

func (r *MkdirRequest) String() string {
	return fmt.Sprintf("Mkdir [%s] Name %q mode=%v umask=%v", &r.Header, r.Name, r.Mode, r.Umask)
}

// Respond replies to the request with the given response.
//
// The response takes a reference on resp.Node.
func (r *MkdirRequest) Respond(resp *LookupResponse) {
	r.sess.rememberNode(resp.Node)
	size := entryOutSize(r.sess.proto)
	buf := newBuffer(size)
	out := (*entryOut)(buf.alloc(size))
	out.Nodeid = uint64(resp.Node)
	out.Generation = resp.Generation
	out.EntryValid = uint64(resp.EntryValid / time.Second)
	out.EntryValidNsec = uint32(resp.EntryValid % time.Second / time.Nanosecond)
	out.AttrValid = uint64(resp.Attr.Valid / time.Second)
	out.AttrValidNsec = uint32(resp.Attr.Valid % time.Second / time.Nanosecond)
	resp.Attr.attr(&out.Attr, r.sess.proto)
	r.respond(buf)
}

// A SymlinkRequest is a request to create a symlink making NewName
// point to Target.
type SymlinkRequest struct {
	Header  `json:"-"`
	NewName []byte
	Target  []byte
}

var _ = Request(&SymlinkRequest{})

func (r *SymlinkRequest) String() string {
	return fmt.Sprintf("Symlink [%s] from %q to target %q", &r.Header, r.NewName, r.Target)
}

// Respond replies to the request, indicating that the symlink was
// created.
//
// The response takes a reference on resp.Node.
func (r *SymlinkRequest) Respond(resp *LookupResponse) {
	r.sess.rememberNode(resp.Node)
	size := entryOutSize(r.sess.proto)
	buf := newBuffer(size)
	out := (*entryOut)(buf.alloc(size))
	out.Nodeid = uint64(resp.Node)
	out.Generation = resp.Generation
	out.EntryValid = uint64(resp.EntryValid / time.Second)
	out.EntryValidNsec = uint32(resp.EntryValid % time.Second / time.Nanosecond)
	out.AttrValid = uint64(resp.Attr.Valid / time.Second)
	out.AttrValidNsec = uint32(resp.Attr.Valid % time.Second / time.Nanosecond)
	resp.Attr.attr(&out.Attr, r.sess.proto)
	r.respond(buf)
}

// A ReadlinkRequest is a request to read a symlink's target.
type ReadlinkRequest struct {
	Header `json:"-"`
}

var _ = Request(&ReadlinkRequest{})

func (r *ReadlinkRequest) String() string {
	return fmt.Sprintf("Readlink [%s]", &r.Header)
}

// Respond replies to the request with the symlink's target.
func (r *ReadlinkRequest) Respond(target string) {
	buf := newBuffer(uintptr(len(target)))
	buf = append(buf, target...)
	r.respond(buf)
}

// A LinkRequest is a request to create a hard link.
type LinkRequest struct {
	Header  `json:"-"`
	OldNode NodeID
	NewName []byte
}

var _ = Request(&LinkRequest{})

func (r *LinkRequest) String() string {
	return fmt.Sprintf("Link [%s] node %d to %q", &r.Header, r.OldNode, r.NewName)
}

// Respond replies to the request with the given response.
//
// The response takes a reference on resp.Node.
func (r *LinkRequest) Respond(resp *LookupResponse) {
	r.sess.rememberNode(resp.Node)
	size := entryOutSize(r.sess.proto)
	buf := newBuffer(size)
	out := (*entryOut)(buf.alloc(size))
	out.Nodeid = uint64(resp.Node)
	out.Generation = resp.Generation
	out.EntryValid = uint64(resp.EntryValid / time.Second)
	out.EntryValidNsec = uint32(resp.EntryValid % time.Second / time.Nanosecond)
	out.AttrValid = uint64(resp.Attr.Valid / time.Second)
	out.AttrValidNsec = uint32(resp.Attr.Valid % time.Second / time.Nanosecond)
	resp.Attr.attr(&out.Attr, r.sess.proto)
	r.respond(buf)
}

// A RemoveRequest asks to remove a file or directory from the
// directory r.Node.
type RemoveRequest struct {
	Header `json:"-"`
	Name   []byte // name of the entry to remove
	Dir    bool   // is this rmdir?
}

var _ = Request(&RemoveRequest{})

func (r *RemoveRequest) String() string {
	return fmt.Sprintf("Remove [%s] %q dir=%v", &r.Header, r.Name, r.Dir)
}

// Respond replies to the request, indicating that the file was removed.
func (r *RemoveRequest) Respond() {
	buf := newBuffer(0)
	r.respond(buf)
}

// A RenameRequest is a request to rename a file.
//
// Flags is zero for a plain RENAME; RENAME2 (protocol 7.23) carries
// the renameat2 flags.
type RenameRequest struct {
	Header  `json:"-"`
	NewDir  NodeID
	OldName []byte
	NewName []byte
	Flags   RenameFlags
}

var _ = Request(&RenameRequest{})

func (r *RenameRequest) String() string {
	return fmt.Sprintf("Rename [%s] from %q to dirnode %v %q fl=%v", &r.Header, r.OldName, r.NewDir, r.NewName, r.Flags)
}

// Respond replies to the request, indicating that the file was renamed.
func (r *RenameRequest) Respond() {
	buf := newBuffer(0)
	r.respond(buf)
}

// A ReadRequest asks to read from an open file.
type ReadRequest struct {
	Header    `json:"-"`
	Dir       bool // is this Readdir?
	Handle    HandleID
	Offset    int64
	Size      int
	Flags     ReadFlags
	LockOwner uint64
	FileFlags OpenFlags
}

var _ = Request(&ReadRequest{})

func (r *ReadRequest) String() string {
	return fmt.Sprintf("Read [%s] %v %d @%#x dir=%v fl=%v lock=%d ffl=%v", &r.Header, r.Handle, r.Size, r.Offset, r.Dir, r.Flags, r.LockOwner, r.FileFlags)
}

// Respond replies to the request with the given response.
func (r *ReadRequest) Respond(resp *ReadResponse) {
	buf := newBuffer(uintptr(len(resp.Data)))
	buf = append(buf, resp.Data...)
	r.respond(buf)
}

// A ReadResponse is the response to a ReadRequest.
type ReadResponse struct {
	Data []byte
}

func (r *ReadResponse) String() string {
	return fmt.Sprintf("Read %d", len(r.Data))
}

// A ReaddirplusRequest asks to read entries from a directory, with
// the lookup result for each entry piggybacked on the listing.
// Protocol 7.21.
//
// Build the Data payload with AppendDirentPlus.
type ReaddirplusRequest struct {
	Header    `json:"-"`
	Handle    HandleID
	Offset    int64
	Size      int
	Flags     ReadFlags
	LockOwner uint64
	FileFlags OpenFlags
}

var _ = Request(&ReaddirplusRequest{})

func (r *ReaddirplusRequest) String() string {
	return fmt.Sprintf("Readdirplus [%s] %v %d @%#x", &r.Header, r.Handle, r.Size, r.Offset)
}

// Respond replies to the request with the given response.
//
// Every entry in resp.Data with a nonzero node id takes a reference
// on that node.
func (r *ReaddirplusRequest) Respond(resp *ReaddirplusResponse) {
	for _, node := range direntPlusNodes(resp.Data) {
		r.sess.rememberNode(node)
	}
	buf := newBuffer(uintptr(len(resp.Data)))
	buf = append(buf, resp.Data...)
	r.respond(buf)
}

// A ReaddirplusResponse is the response to a ReaddirplusRequest.
type ReaddirplusResponse struct {
	Data []byte
}

func (r *ReaddirplusResponse) String() string {
	return fmt.Sprintf("Readdirplus %d", len(r.Data))
}

// direntPlusNodes walks an encoded READDIRPLUS payload and collects
// the nonzero node ids it references. The payload was built by
// AppendDirentPlus, so a short or misaligned record means a bug in
// the caller; the walk just stops there.
func direntPlusNodes(data []byte) []NodeID {
	const entSize = int(unsafe.Sizeof(entryOut{}))
	var nodes []NodeID
	for len(data) >= entSize+direntSize {
		ent := (*entryOut)(unsafe.Pointer(&data[0]))
		de := (*dirent)(unsafe.Pointer(&data[entSize]))
		rec := entSize + direntSize + (int(de.Namelen)+7)&^7
		if rec > len(data) {
			break
		}
		if ent.Nodeid != 0 {
			nodes = append(nodes, NodeID(ent.Nodeid))
		}
		data = data[rec:]
	}
	return nodes
}

// A WriteRequest asks to write to an open file.
type WriteRequest struct {
	Header    `json:"-"`
	Handle    HandleID
	Offset    int64
	Data      []byte
	Flags     WriteFlags
	LockOwner uint64
	FileFlags OpenFlags
}

var _ = Request(&WriteRequest{})

func (r *WriteRequest) String() string {
	return fmt.Sprintf("Write [%s] %v %d @%d fl=%v lock=%d ffl=%v", &r.Header, r.Handle, len(r.Data), r.Offset, r.Flags, r.LockOwner, r.FileFlags)
}

// Respond replies to the request with the given response.
func (r *WriteRequest) Respond(resp *WriteResponse) {
	buf := newBuffer(unsafe.Sizeof(writeOut{}))
	out := (*writeOut)(buf.alloc(unsafe.Sizeof(writeOut{})))
	out.Size = uint32(resp.Size)
	r.respond(buf)
}

// A WriteResponse replies to a write indicating how many bytes were
// written.
type WriteResponse struct {
	Size int
}

func (r *WriteResponse) String() string {
	return fmt.Sprintf("Write %d", r.Size)
}

// A SetattrRequest asks to change one or more attributes associated
// with a file, as indicated by Valid.
type SetattrRequest struct {
	Header `json:"-"`
	Valid  SetattrValid
	Handle HandleID
	Size   uint64
	Atime  time.Time
	Mtime  time.Time
	// Ctime is only meaningful on protocol 7.23 and up, and only when
	// Valid.Ctime() is set.
	Ctime     time.Time
	Mode      os.FileMode
	Uid       uint32
	Gid       uint32
	LockOwner uint64
}

var _ = Request(&SetattrRequest{})

func (r *SetattrRequest) String() string {
	var buf []byte
	buf = append(buf, fmt.Sprintf("Setattr [%s]", &r.Header)...)
	if r.Valid.Mode() {
		buf = append(buf, fmt.Sprintf(" mode=%v", r.Mode)...)
	}
	if r.Valid.Uid() {
		buf = append(buf, fmt.Sprintf(" uid=%d", r.Uid)...)
	}
	if r.Valid.Gid() {
		buf = append(buf, fmt.Sprintf(" gid=%d", r.Gid)...)
	}
	if r.Valid.Size() {
		buf = append(buf, fmt.Sprintf(" size=%d", r.Size)...)
	}
	if r.Valid.Atime() {
		buf = append(buf, fmt.Sprintf(" atime=%v", r.Atime)...)
	}
	if r.Valid.AtimeNow() {
		buf = append(buf, " atime=now"...)
	}
	if r.Valid.Mtime() {
		buf = append(buf, fmt.Sprintf(" mtime=%v", r.Mtime)...)
	}
	if r.Valid.MtimeNow() {
		buf = append(buf, " mtime=now"...)
	}
	if r.Valid.Ctime() {
		buf = append(buf, fmt.Sprintf(" ctime=%v", r.Ctime)...)
	}
	if r.Valid.Handle() {
		buf = append(buf, fmt.Sprintf(" handle=%v", r.Handle)...)
	} else {
		buf = append(buf, " handle=INVALID-0"...)
	}
	if r.Valid.LockOwner() {
		buf = append(buf, fmt.Sprintf(" lockowner=%d", r.LockOwner)...)
	}
	return string(buf)
}

// Respond replies to the request with the given response, giving the
// updated attributes.
func (r *SetattrRequest) Respond(resp *SetattrResponse) {
	size := attrOutSize(r.sess.proto)
	buf := newBuffer(size)
	out := (*attrOut)(buf.alloc(size))
	out.AttrValid = uint64(resp.Attr.Valid / time.Second)
	out.AttrValidNsec = uint32(resp.Attr.Valid % time.Second / time.Nanosecond)
	resp.Attr.attr(&out.Attr, r.sess.proto)
	r.respond(buf)
}

// A SetattrResponse is the response to a SetattrRequest.
type SetattrResponse struct {
	Attr Attr // file attributes
}

func (r *SetattrResponse) String() string {
	return fmt.Sprintf("Setattr %v", r.Attr)
}

// A FlushRequest asks for the current state of an open file to be
// flushed to storage, as when a file descriptor is being closed.
// A single opened Handle may receive multiple FlushRequests over its
// lifetime.
type FlushRequest struct {
	Header    `json:"-"`
	Handle    HandleID
	LockOwner uint64
}

var _ = Request(&FlushRequest{})

func (r *FlushRequest) String() string {
	return fmt.Sprintf("Flush [%s] %v lk=%#x", &r.Header, r.Handle, r.LockOwner)
}

// Respond replies to the request, indicating that the flush succeeded.
func (r *FlushRequest) Respond() {
	buf := newBuffer(0)
	r.respond(buf)
}

// A ReleaseRequest asks to release (close) an open file handle.
type ReleaseRequest struct {
	Header       `json:"-"`
	Dir          bool // is this Releasedir?
	Handle       HandleID
	Flags        OpenFlags // flags from OpenRequest
	ReleaseFlags ReleaseFlags
	LockOwner    uint64
}

var _ = Request(&ReleaseRequest{})

func (r *ReleaseRequest) String() string {
	return fmt.Sprintf("Release [%s] %v fl=%v rfl=%v owner=%#x", &r.Header, r.Handle, r.Flags, r.ReleaseFlags, r.LockOwner)
}

// Respond replies to the request, indicating that the handle has been
// released.
func (r *ReleaseRequest) Respond() {
	buf := newBuffer(0)
	r.respond(buf)
}

// A FsyncRequest asks any buffered writes on an open file to be
// flushed to storage.
type FsyncRequest struct {
	Header `json:"-"`
	Handle HandleID
	// TODO bit 1 is datasync, not well documented upstream
	Flags uint32
	Dir   bool
}

var _ = Request(&FsyncRequest{})

func (r *FsyncRequest) String() string {
	return fmt.Sprintf("Fsync [%s] Handle %v Flags %v", &r.Header, r.Handle, r.Flags)
}

// Respond replies to the request, indicating that the fsync succeeded.
func (r *FsyncRequest) Respond() {
	buf := newBuffer(0)
	r.respond(buf)
}

// A ForgetRequest is sent by the kernel when forgetting about r.Node
// as returned by r.N lookup requests.
//
// A FORGET has no reply.
type ForgetRequest struct {
	Header `json:"-"`
	N      uint64
}

var _ = Request(&ForgetRequest{})

func (r *ForgetRequest) String() string {
	return fmt.Sprintf("Forget [%s] %d", &r.Header, r.N)
}

// Respond drops the reference count on r.Node by r.N. The kernel
// expects no message in return.
func (r *ForgetRequest) Respond() {
	r.sess.forgetNode(r.Node, r.N)
	r.noResponse()
}

// A BatchForgetItem names one node and the number of references to
// drop on it.
type BatchForgetItem struct {
	Node NodeID
	N    uint64
}

// A BatchForgetRequest carries many FORGETs in one message.
// Protocol 7.16.
//
// A BATCH_FORGET has no reply.
type BatchForgetRequest struct {
	Header `json:"-"`
	Forget []BatchForgetItem
}

var _ = Request(&BatchForgetRequest{})

func (r *BatchForgetRequest) String() string {
	return fmt.Sprintf("BatchForget [%s] %d items", &r.Header, len(r.Forget))
}

// Respond drops the reference counts named by the batch. The kernel
// expects no message in return.
func (r *BatchForgetRequest) Respond() {
	for _, f := range r.Forget {
		r.sess.forgetNode(f.Node, f.N)
	}
	r.noResponse()
}

// An InterruptRequest asks an outstanding request to be aborted.
//
// Interrupts are advisory: the named request may complete normally
// anyway, and either order of reply is legal. An INTERRUPT itself has
// no reply.
type InterruptRequest struct {
	Header `json:"-"`
	IntrID RequestID // ID of the request to be interrupt.
}

var _ = Request(&InterruptRequest{})

func (r *InterruptRequest) String() string {
	return fmt.Sprintf("Interrupt [%s] ID %v", &r.Header, r.IntrID)
}

// Respond acknowledges the interrupt. The kernel expects no message in
// return.
func (r *InterruptRequest) Respond() {
	r.noResponse()
}

// A DestroyRequest is sent by the kernel when unmounting the file
// system.
type DestroyRequest struct {
	Header `json:"-"`
}

var _ = Request(&DestroyRequest{})

func (r *DestroyRequest) String() string {
	return fmt.Sprintf("Destroy [%s]", &r.Header)
}

// Respond replies to the request.
func (r *DestroyRequest) Respond() {
	buf := newBuffer(0)
	r.respond(buf)
}

// A FileLock describes a byte-range advisory lock, in the shape the
// kernel exchanges them.
type FileLock struct {
	Start uint64
	End   uint64
	Type  LockType
	Pid   uint32
}

func (l FileLock) String() string {
	return fmt.Sprintf("%v [%d,%d] pid=%d", l.Type, l.Start, l.End, l.Pid)
}

// A GetlkRequest tests whether a byte-range lock could be placed.
type GetlkRequest struct {
	Header `json:"-"`
	Handle HandleID
	Owner  uint64
	Lock   FileLock
	Flags  LockFlags
}

var _ = Request(&GetlkRequest{})

func (r *GetlkRequest) String() string {
	return fmt.Sprintf("Getlk [%s] %v owner=%#x lk={%v} fl=%v", &r.Header, r.Handle, r.Owner, r.Lock, r.Flags)
}

// Respond replies to the request with the given response. If no
// conflicting lock exists, reply with Type LockUnlock.
func (r *GetlkRequest) Respond(resp *GetlkResponse) {
	buf := newBuffer(unsafe.Sizeof(lkOut{}))
	out := (*lkOut)(buf.alloc(unsafe.Sizeof(lkOut{})))
	out.Lk = fileLock{
		Start: resp.Lock.Start,
		End:   resp.Lock.End,
		Type:  uint32(resp.Lock.Type),
		Pid:   resp.Lock.Pid,
	}
	r.respond(buf)
}

// A GetlkResponse is the response to a GetlkRequest.
type GetlkResponse struct {
	Lock FileLock
}

func (r *GetlkResponse) String() string {
	return fmt.Sprintf("Getlk {%v}", r.Lock)
}

// A SetlkRequest places, or with Type LockUnlock removes, a byte-range
// lock. Wait distinguishes SETLKW from SETLK; a waiting request must
// not be answered until the lock is available, and is the canonical
// target of an InterruptRequest.
type SetlkRequest struct {
	Header `json:"-"`
	Handle HandleID
	Owner  uint64
	Lock   FileLock
	Flags  LockFlags
	Wait   bool
}

var _ = Request(&SetlkRequest{})

func (r *SetlkRequest) String() string {
	return fmt.Sprintf("Setlk [%s] %v owner=%#x lk={%v} fl=%v wait=%v", &r.Header, r.Handle, r.Owner, r.Lock, r.Flags, r.Wait)
}

// Respond replies to the request, indicating that the lock operation
// succeeded.
func (r *SetlkRequest) Respond() {
	buf := newBuffer(0)
	r.respond(buf)
}

// A BmapRequest maps a block index within the file to a block index
// within the backing device. Only useful for file systems backed by a
// block device.
type BmapRequest struct {
	Header    `json:"-"`
	Block     uint64
	BlockSize uint32
}

var _ = Request(&BmapRequest{})

func (r *BmapRequest) String() string {
	return fmt.Sprintf("Bmap [%s] block=%d bs=%d", &r.Header, r.Block, r.BlockSize)
}

// Respond replies to the request with the given response.
func (r *BmapRequest) Respond(resp *BmapResponse) {
	buf := newBuffer(unsafe.Sizeof(bmapOut{}))
	out := (*bmapOut)(buf.alloc(unsafe.Sizeof(bmapOut{})))
	out.Block = resp.Block
	r.respond(buf)
}

// A BmapResponse is the response to a BmapRequest.
type BmapResponse struct {
	Block uint64
}

func (r *BmapResponse) String() string {
	return fmt.Sprintf("Bmap block=%d", r.Block)
}

// An IoctlRequest asks to perform an ioctl on an open file.
type IoctlRequest struct {
	Header `json:"-"`
	Handle HandleID
	Flags  IoctlFlags
	Cmd    uint32
	Arg    uint64
	// InData is the input payload, as sized by the caller's ioctl
	// encoding.
	InData []byte
	// OutSize is the maximum size of the output payload.
	OutSize uint32
}

var _ = Request(&IoctlRequest{})

func (r *IoctlRequest) String() string {
	return fmt.Sprintf("Ioctl [%s] %v cmd=%#x fl=%v in=%d out=%d", &r.Header, r.Handle, r.Cmd, r.Flags, len(r.InData), r.OutSize)
}

// Respond replies to the request with the given response. Data longer
// than r.OutSize is truncated.
func (r *IoctlRequest) Respond(resp *IoctlResponse) {
	data := resp.Data
	if uint32(len(data)) > r.OutSize {
		data = data[:r.OutSize]
	}
	buf := newBuffer(unsafe.Sizeof(ioctlOut{}) + uintptr(len(data)))
	out := (*ioctlOut)(buf.alloc(unsafe.Sizeof(ioctlOut{})))
	out.Result = resp.Result
	buf = append(buf, data...)
	r.respond(buf)
}

// An IoctlResponse is the response to an IoctlRequest.
type IoctlResponse struct {
	Result int32
	Data   []byte
}

func (r *IoctlResponse) String() string {
	return fmt.Sprintf("Ioctl result=%d data=%d", r.Result, len(r.Data))
}

// A PollRequest asks whether an open file is ready for I/O.
type PollRequest struct {
	Header `json:"-"`
	Handle HandleID
	// Kh is the kernel's poll handle, echoed back in a poll
	// notification.
	Kh     uint64
	Flags  PollFlags
	Events uint32
}

var _ = Request(&PollRequest{})

func (r *PollRequest) String() string {
	return fmt.Sprintf("Poll [%s] %v kh=%#x fl=%v ev=%#x", &r.Header, r.Handle, r.Kh, r.Flags, r.Events)
}

// Respond replies to the request with the given response.
func (r *PollRequest) Respond(resp *PollResponse) {
	buf := newBuffer(unsafe.Sizeof(pollOut{}))
	out := (*pollOut)(buf.alloc(unsafe.Sizeof(pollOut{})))
	out.Revents = resp.REvents
	r.respond(buf)
}

// A PollResponse is the response to a PollRequest.
type PollResponse struct {
	REvents uint32
}

func (r *PollResponse) String() string {
	return fmt.Sprintf("Poll rev=%#x", r.REvents)
}

// A FallocateRequest preallocates or punches space in an open file.
// Protocol 7.19.
type FallocateRequest struct {
	Header `json:"-"`
	Handle HandleID
	Offset uint64
	Length uint64
	Mode   uint32
}

var _ = Request(&FallocateRequest{})

func (r *FallocateRequest) String() string {
	return fmt.Sprintf("Fallocate [%s] %v %d @%d mode=%#x", &r.Header, r.Handle, r.Length, r.Offset, r.Mode)
}

// Respond replies to the request, indicating that the allocation
// succeeded.
func (r *FallocateRequest) Respond() {
	buf := newBuffer(0)
	r.respond(buf)
}

// An LseekRequest repositions an open file's offset, for the
// SEEK_HOLE and SEEK_DATA whences. Protocol 7.24.
type LseekRequest struct {
	Header `json:"-"`
	Handle HandleID
	Offset uint64
	Whence uint32
}

var _ = Request(&LseekRequest{})

func (r *LseekRequest) String() string {
	return fmt.Sprintf("Lseek [%s] %v @%d whence=%d", &r.Header, r.Handle, r.Offset, r.Whence)
}

// Respond replies to the request with the given response.
func (r *LseekRequest) Respond(resp *LseekResponse) {
	buf := newBuffer(unsafe.Sizeof(lseekOut{}))
	out := (*lseekOut)(buf.alloc(unsafe.Sizeof(lseekOut{})))
	out.Offset = resp.Offset
	r.respond(buf)
}

// An LseekResponse is the response to an LseekRequest.
type LseekResponse struct {
	Offset uint64
}

func (r *LseekResponse) String() string {
	return fmt.Sprintf("Lseek @%d", r.Offset)
}

// A CopyFileRangeRequest asks to copy a byte range between two open
// files without routing the data through the kernel. Protocol 7.28.
type CopyFileRangeRequest struct {
	Header    `json:"-"`
	InHandle  HandleID
	InOffset  uint64
	OutNode   NodeID
	OutHandle HandleID
	OutOffset uint64
	Len       uint64
	Flags     uint64
}

var _ = Request(&CopyFileRangeRequest{})

func (r *CopyFileRangeRequest) String() string {
	return fmt.Sprintf("CopyFileRange [%s] %v@%d -> node %v %v@%d len=%d", &r.Header, r.InHandle, r.InOffset, r.OutNode, r.OutHandle, r.OutOffset, r.Len)
}

// Respond replies to the request with the number of bytes copied.
func (r *CopyFileRangeRequest) Respond(resp *CopyFileRangeResponse) {
	buf := newBuffer(unsafe.Sizeof(writeOut{}))
	out := (*writeOut)(buf.alloc(unsafe.Sizeof(writeOut{})))
	out.Size = uint32(resp.Size)
	r.respond(buf)
}

// A CopyFileRangeResponse is the response to a CopyFileRangeRequest.
type CopyFileRangeResponse struct {
	Size int
}

func (r *CopyFileRangeResponse) String() string {
	return fmt.Sprintf("CopyFileRange %d", r.Size)
}

// An UnknownRequest is a request with an opcode outside the supported
// set. The only sensible response is an error, usually ENOSYS.
type UnknownRequest struct {
	Header  `json:"-"`
	Opcode  uint32
	Payload []byte
}

var _ = Request(&UnknownRequest{})

func (r *UnknownRequest) String() string {
	payload, tail := trunc(r.Payload, 16)
	return fmt.Sprintf("Unknown [%s] opcode=%d payload=%x%s", &r.Header, r.Opcode, payload, tail)
}
