// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"context"
	"errors"
	"io"
	"sync"
	"unsafe"
)

// A Handler serves decoded FUSE requests. Implement the per-operation
// interfaces (Lookuper, Opener, Reader, and friends) for the
// operations the file system supports; Serve answers everything else
// with ENOSYS.
//
// A handler method must either respond to the request (via its
// Respond method) and return nil, or return a non-nil error, which
// Serve turns into an error reply. Errors implementing ErrorNumber
// choose their errno; anything else becomes EIO.
type Handler interface{}

type Lookuper interface {
	Lookup(ctx context.Context, r *LookupRequest) error
}

type Getattrer interface {
	Getattr(ctx context.Context, r *GetattrRequest) error
}

type Setattrer interface {
	Setattr(ctx context.Context, r *SetattrRequest) error
}

type Readlinker interface {
	Readlink(ctx context.Context, r *ReadlinkRequest) error
}

type Symlinker interface {
	Symlink(ctx context.Context, r *SymlinkRequest) error
}

type Mknoder interface {
	Mknod(ctx context.Context, r *MknodRequest) error
}

type Mkdirer interface {
	Mkdir(ctx context.Context, r *MkdirRequest) error
}

// Remover serves both UNLINK and RMDIR; see RemoveRequest.Dir.
type Remover interface {
	Remove(ctx context.Context, r *RemoveRequest) error
}

// Renamer serves both RENAME and RENAME2; a plain RENAME carries zero
// Flags.
type Renamer interface {
	Rename(ctx context.Context, r *RenameRequest) error
}

type Linker interface {
	Link(ctx context.Context, r *LinkRequest) error
}

// Opener serves both OPEN and OPENDIR; see OpenRequest.Dir.
type Opener interface {
	Open(ctx context.Context, r *OpenRequest) error
}

type Creater interface {
	Create(ctx context.Context, r *CreateRequest) error
}

// Reader serves both READ and READDIR; see ReadRequest.Dir.
type Reader interface {
	Read(ctx context.Context, r *ReadRequest) error
}

type Readdirpluser interface {
	Readdirplus(ctx context.Context, r *ReaddirplusRequest) error
}

type Writer interface {
	Write(ctx context.Context, r *WriteRequest) error
}

type Statfser interface {
	Statfs(ctx context.Context, r *StatfsRequest) error
}

// Releaser serves both RELEASE and RELEASEDIR; see ReleaseRequest.Dir.
type Releaser interface {
	Release(ctx context.Context, r *ReleaseRequest) error
}

// Fsyncer serves both FSYNC and FSYNCDIR; see FsyncRequest.Dir.
type Fsyncer interface {
	Fsync(ctx context.Context, r *FsyncRequest) error
}

type Flusher interface {
	Flush(ctx context.Context, r *FlushRequest) error
}

type Accesser interface {
	Access(ctx context.Context, r *AccessRequest) error
}

type Setxattrer interface {
	Setxattr(ctx context.Context, r *SetxattrRequest) error
}

type Getxattrer interface {
	Getxattr(ctx context.Context, r *GetxattrRequest) error
}

type Listxattrer interface {
	Listxattr(ctx context.Context, r *ListxattrRequest) error
}

type Removexattrer interface {
	Removexattr(ctx context.Context, r *RemovexattrRequest) error
}

type Getlker interface {
	Getlk(ctx context.Context, r *GetlkRequest) error
}

// Setlker serves both SETLK and SETLKW; see SetlkRequest.Wait. A
// waiting request should select on ctx.Done and answer EINTR when
// interrupted.
type Setlker interface {
	Setlk(ctx context.Context, r *SetlkRequest) error
}

type Bmapper interface {
	Bmap(ctx context.Context, r *BmapRequest) error
}

type Ioctler interface {
	Ioctl(ctx context.Context, r *IoctlRequest) error
}

type Poller interface {
	Poll(ctx context.Context, r *PollRequest) error
}

type Fallocater interface {
	Fallocate(ctx context.Context, r *FallocateRequest) error
}

type Lseeker interface {
	Lseek(ctx context.Context, r *LseekRequest) error
}

type CopyFileRanger interface {
	CopyFileRange(ctx context.Context, r *CopyFileRangeRequest) error
}

// Destroyer is notified of unmount. Serve acknowledges the DESTROY
// itself; the method just gets a chance to tear state down.
type Destroyer interface {
	Destroy(ctx context.Context, r *DestroyRequest)
}

type server struct {
	sess    *Session
	handler Handler

	mu       sync.Mutex
	inflight map[RequestID]context.CancelFunc
	wg       sync.WaitGroup
}

// Serve reads requests from the session and dispatches them to
// handler until the kernel hangs up. Each request runs in its own
// goroutine; an INTERRUPT cancels the context of the request it
// names. Interrupts are advisory, so a handler that never looks at
// its context still behaves correctly, just slower.
//
// A request that fails to decode under the negotiated version is
// answered with EIO and does not stop the loop.
func (s *Session) Serve(ctx context.Context, h Handler) error {
	sv := &server{
		sess:     s,
		handler:  h,
		inflight: make(map[RequestID]context.CancelFunc),
	}
	for {
		req, err := s.ReadRequest()
		if err == io.EOF {
			sv.wg.Wait()
			return nil
		}
		if err != nil {
			var merr *MalformedError
			if errors.As(err, &merr) {
				s.logger.Warnf("dropping request: %v", merr)
				s.replyError(merr.ID, EIO)
				continue
			}
			sv.wg.Wait()
			return err
		}
		sv.dispatch(ctx, req)
	}
}

// replyError answers a request by ID alone, for requests that never
// decoded far enough to have a Request value.
func (s *Session) replyError(id RequestID, errno Errno) {
	buf := newBuffer(0)
	h := (*outHeader)(unsafe.Pointer(&buf[0]))
	h.Unique = uint64(id)
	h.Error = -int32(errno)
	s.respond(buf)
}

func (v *server) dispatch(ctx context.Context, req Request) {
	Debug(req.String())

	switch r := req.(type) {
	case *ForgetRequest:
		r.Respond()
		return
	case *BatchForgetRequest:
		r.Respond()
		return
	case *InterruptRequest:
		v.interrupt(r)
		r.Respond()
		return
	}

	id := req.Hdr().ID
	rctx, cancel := context.WithCancel(ctx)
	v.mu.Lock()
	v.inflight[id] = cancel
	v.mu.Unlock()

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		defer func() {
			v.mu.Lock()
			delete(v.inflight, id)
			v.mu.Unlock()
			cancel()
		}()
		v.serveRequest(rctx, req)
	}()
}

func (v *server) interrupt(r *InterruptRequest) {
	v.mu.Lock()
	cancel, ok := v.inflight[r.IntrID]
	v.mu.Unlock()
	if !ok {
		// The named request already completed, or its reply crossed
		// the interrupt on the wire. Nothing to do either way.
		v.sess.logger.Debugf("interrupt for unknown request %v", r.IntrID)
		return
	}
	cancel()
}

func (v *server) serveRequest(ctx context.Context, req Request) {
	var err error
	handled := true

	switch r := req.(type) {
	case *LookupRequest:
		if h, ok := v.handler.(Lookuper); ok {
			err = h.Lookup(ctx, r)
		} else {
			handled = false
		}
	case *GetattrRequest:
		if h, ok := v.handler.(Getattrer); ok {
			err = h.Getattr(ctx, r)
		} else {
			handled = false
		}
	case *SetattrRequest:
		if h, ok := v.handler.(Setattrer); ok {
			err = h.Setattr(ctx, r)
		} else {
			handled = false
		}
	case *ReadlinkRequest:
		if h, ok := v.handler.(Readlinker); ok {
			err = h.Readlink(ctx, r)
		} else {
			handled = false
		}
	case *SymlinkRequest:
		if h, ok := v.handler.(Symlinker); ok {
			err = h.Symlink(ctx, r)
		} else {
			handled = false
		}
	case *MknodRequest:
		if h, ok := v.handler.(Mknoder); ok {
			err = h.Mknod(ctx, r)
		} else {
			handled = false
		}
	case *MkdirRequest:
		if h, ok := v.handler.(Mkdirer); ok {
			err = h.Mkdir(ctx, r)
		} else {
			handled = false
		}
	case *RemoveRequest:
		if h, ok := v.handler.(Remover); ok {
			err = h.Remove(ctx, r)
		} else {
			handled = false
		}
	case *RenameRequest:
		if h, ok := v.handler.(Renamer); ok {
			err = h.Rename(ctx, r)
		} else {
			handled = false
		}
	case *LinkRequest:
		if h, ok := v.handler.(Linker); ok {
			err = h.Link(ctx, r)
		} else {
			handled = false
		}
	case *OpenRequest:
		if h, ok := v.handler.(Opener); ok {
			err = h.Open(ctx, r)
		} else {
			handled = false
		}
	case *CreateRequest:
		if h, ok := v.handler.(Creater); ok {
			err = h.Create(ctx, r)
		} else {
			handled = false
		}
	case *ReadRequest:
		if h, ok := v.handler.(Reader); ok {
			err = h.Read(ctx, r)
		} else {
			handled = false
		}
	case *ReaddirplusRequest:
		if h, ok := v.handler.(Readdirpluser); ok {
			err = h.Readdirplus(ctx, r)
		} else {
			handled = false
		}
	case *WriteRequest:
		if h, ok := v.handler.(Writer); ok {
			err = h.Write(ctx, r)
		} else {
			handled = false
		}
	case *StatfsRequest:
		if h, ok := v.handler.(Statfser); ok {
			err = h.Statfs(ctx, r)
		} else {
			handled = false
		}
	case *ReleaseRequest:
		if h, ok := v.handler.(Releaser); ok {
			err = h.Release(ctx, r)
		} else {
			handled = false
		}
	case *FsyncRequest:
		if h, ok := v.handler.(Fsyncer); ok {
			err = h.Fsync(ctx, r)
		} else {
			handled = false
		}
	case *FlushRequest:
		if h, ok := v.handler.(Flusher); ok {
			err = h.Flush(ctx, r)
		} else {
			handled = false
		}
	case *AccessRequest:
		if h, ok := v.handler.(Accesser); ok {
			err = h.Access(ctx, r)
		} else {
			handled = false
		}
	case *SetxattrRequest:
		if h, ok := v.handler.(Setxattrer); ok {
			err = h.Setxattr(ctx, r)
		} else {
			handled = false
		}
	case *GetxattrRequest:
		if h, ok := v.handler.(Getxattrer); ok {
			err = h.Getxattr(ctx, r)
		} else {
			handled = false
		}
	case *ListxattrRequest:
		if h, ok := v.handler.(Listxattrer); ok {
			err = h.Listxattr(ctx, r)
		} else {
			handled = false
		}
	case *RemovexattrRequest:
		if h, ok := v.handler.(Removexattrer); ok {
			err = h.Removexattr(ctx, r)
		} else {
			handled = false
		}
	case *GetlkRequest:
		if h, ok := v.handler.(Getlker); ok {
			err = h.Getlk(ctx, r)
		} else {
			handled = false
		}
	case *SetlkRequest:
		if h, ok := v.handler.(Setlker); ok {
			err = h.Setlk(ctx, r)
		} else {
			handled = false
		}
	case *BmapRequest:
		if h, ok := v.handler.(Bmapper); ok {
			err = h.Bmap(ctx, r)
		} else {
			handled = false
		}
	case *IoctlRequest:
		if h, ok := v.handler.(Ioctler); ok {
			err = h.Ioctl(ctx, r)
		} else {
			handled = false
		}
	case *PollRequest:
		if h, ok := v.handler.(Poller); ok {
			err = h.Poll(ctx, r)
		} else {
			handled = false
		}
	case *FallocateRequest:
		if h, ok := v.handler.(Fallocater); ok {
			err = h.Fallocate(ctx, r)
		} else {
			handled = false
		}
	case *LseekRequest:
		if h, ok := v.handler.(Lseeker); ok {
			err = h.Lseek(ctx, r)
		} else {
			handled = false
		}
	case *CopyFileRangeRequest:
		if h, ok := v.handler.(CopyFileRanger); ok {
			err = h.CopyFileRange(ctx, r)
		} else {
			handled = false
		}
	case *DestroyRequest:
		if h, ok := v.handler.(Destroyer); ok {
			h.Destroy(ctx, r)
		}
		r.Respond()
	case *UnknownRequest:
		handled = false
	default:
		handled = false
	}

	if !handled {
		req.RespondError(ENOSYS)
		return
	}
	if err != nil {
		req.RespondError(err)
	}
}
