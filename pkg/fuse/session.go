// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"fmt"
	"io"
	"sync"
	"syscall"
	"unsafe"

	"github.com/fusewire/fusewire/pkg/log"
)

// maxWrite is the largest write payload we tell the kernel to send.
// Writes larger than our receive buffer would fail to decode.
const maxWrite = 128 * 1024

// A Transport carries raw FUSE messages between a Session and the
// kernel. Each Read must return exactly one message; each Write sends
// exactly one. *Conn implements Transport over /dev/fuse.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

type sessionState int

const (
	// No INIT seen yet. Only INIT (or CUSE_INIT) decodes; the wire
	// layout of everything else depends on the version still being
	// negotiated.
	sessionAwaitingInit sessionState = iota
	// Handshake done; protocol and flags are fixed for the life of
	// the session.
	sessionNegotiated
	sessionClosed
)

// Config carries the server side of the INIT negotiation.
type Config struct {
	// Maximum readahead in bytes to grant the kernel. Zero accepts
	// whatever the kernel proposed.
	MaxReadahead uint32
	// Capability flags the server is willing to enable. The effective
	// set is the intersection with what the kernel advertises.
	Flags InitFlags
	// Maximum number of outstanding background requests. Zero leaves
	// the kernel default in place.
	MaxBackground       uint16
	CongestionThreshold uint16
	// Timestamp granularity in nanoseconds, protocol 7.23.
	TimeGran uint32
	// Maximum pages per request, protocol 7.28. Only sent when Flags
	// includes InitMaxPages.
	MaxPages uint16

	Logger *log.Logger
}

// CuseConfig carries the server side of the CUSE_INIT negotiation.
type CuseConfig struct {
	// Name of the character device to create, without the /dev/
	// prefix.
	Name string
	// Device numbers for the new character device.
	DevMajor uint32
	DevMinor uint32

	Flags    CuseInitFlags
	MaxRead  uint32
	MaxWrite uint32

	Logger *log.Logger
}

// A Session is one FUSE or CUSE connection: the negotiated protocol
// version and capability set, the node reference bookkeeping, and the
// transport the messages flow over.
//
// A fresh session speaks to the kernel only through Handshake. Once
// Handshake returns, ReadRequest and the request Respond methods are
// safe for concurrent use.
type Session struct {
	tr Transport

	// Only safe to touch the transport if rio or wio is held.
	wio sync.RWMutex
	rio sync.RWMutex

	logger *log.Logger

	mu    sync.Mutex
	state sessionState

	// Fixed during Handshake, read-only afterwards.
	proto     Protocol
	flags     InitFlags
	cuseFlags CuseInitFlags

	cfg  Config
	cuse *CuseConfig

	nodes nodeTable
}

// New returns a session for a FUSE file system connection. The
// returned session has not performed the INIT handshake yet; call
// Handshake before serving.
func New(tr Transport, cfg *Config) *Session {
	s := &Session{tr: tr}
	if cfg != nil {
		s.cfg = *cfg
	}
	s.logger = s.cfg.Logger
	if s.logger == nil {
		s.logger = log.Discarder()
	}
	return s
}

// NewCuse returns a session for a CUSE character device connection.
func NewCuse(tr Transport, cfg *CuseConfig) *Session {
	s := &Session{tr: tr, cuse: cfg}
	s.logger = cfg.Logger
	if s.logger == nil {
		s.logger = log.Discarder()
	}
	return s
}

// Protocol returns the protocol version negotiated during Handshake.
func (s *Session) Protocol() Protocol {
	return s.proto
}

// Flags returns the capability set negotiated during Handshake: the
// intersection of what the kernel advertised and what the Config
// offered.
func (s *Session) Flags() InitFlags {
	return s.flags
}

// CuseFlags is the CUSE counterpart of Flags.
func (s *Session) CuseFlags() CuseInitFlags {
	return s.cuseFlags
}

func (s *Session) currentState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close closes the session's transport. Outstanding requests cannot
// be responded to afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	s.state = sessionClosed
	s.mu.Unlock()

	s.wio.Lock()
	defer s.wio.Unlock()
	s.rio.Lock()
	defer s.rio.Unlock()
	return s.tr.Close()
}

// Handshake performs the INIT exchange and fixes the session's
// protocol version and capability flags.
//
// When the kernel's major version differs from ours, the reply
// carries our own version and the kernel is expected to send a fresh
// INIT it knows we can understand; Handshake keeps reading until a
// same-major INIT arrives. A kernel whose minor version predates our
// floor is answered with EPROTO and reported as *OldVersionError.
func (s *Session) Handshake() error {
	for {
		req, err := s.ReadRequest()
		if err == io.EOF {
			return ErrClosedWithoutInit
		}
		if err != nil {
			return err
		}

		switch r := req.(type) {
		case *InitRequest:
			if s.cuse != nil {
				r.RespondError(EPROTO)
				return fmt.Errorf("fuse: file system init on CUSE session")
			}
			done, err := s.negotiate(r)
			if err != nil {
				return err
			}
			if done {
				return nil
			}

		case *CuseInitRequest:
			if s.cuse == nil {
				r.RespondError(EPROTO)
				return fmt.Errorf("fuse: CUSE init on file system session")
			}
			done, err := s.negotiateCuse(r)
			if err != nil {
				return err
			}
			if done {
				return nil
			}

		default:
			// ParseRequest only lets INIT through before negotiation.
			r.RespondError(ESTALE)
			return ErrExpectedInit
		}
	}
}

func (s *Session) negotiate(r *InitRequest) (done bool, err error) {
	latest := Protocol{protoVersionMaxMajor, protoVersionMaxMinor}
	if r.Kernel.Major != latest.Major {
		// Speak our own version; the kernel retries with an INIT we
		// can make sense of.
		s.logger.Infof("kernel proposed FUSE %v, countering with %v", r.Kernel, latest)
		r.Respond(&InitResponse{Library: latest})
		return false, nil
	}

	min := Protocol{protoVersionMinMajor, protoVersionMinMinor}
	if r.Kernel.LT(min) {
		r.RespondError(EPROTO)
		s.mu.Lock()
		s.state = sessionClosed
		s.mu.Unlock()
		return false, &OldVersionError{
			Kernel:     r.Kernel,
			LibraryMin: min,
		}
	}

	proto := latest
	if r.Kernel.LT(proto) {
		// Kernel doesn't support the latest version we have.
		proto = r.Kernel
	}
	flags := r.Flags & s.cfg.Flags

	maxReadahead := r.MaxReadahead
	if s.cfg.MaxReadahead != 0 && s.cfg.MaxReadahead < maxReadahead {
		maxReadahead = s.cfg.MaxReadahead
	}

	s.mu.Lock()
	s.proto = proto
	s.flags = flags
	s.state = sessionNegotiated
	s.mu.Unlock()

	r.Respond(&InitResponse{
		Library:             proto,
		MaxReadahead:        maxReadahead,
		Flags:               flags,
		MaxBackground:       s.cfg.MaxBackground,
		CongestionThreshold: s.cfg.CongestionThreshold,
		MaxWrite:            maxWrite,
		TimeGran:            s.cfg.TimeGran,
		MaxPages:            s.cfg.MaxPages,
	})
	s.logger.Infof("negotiated FUSE %v, flags %v", proto, flags)
	return true, nil
}

func (s *Session) negotiateCuse(r *CuseInitRequest) (done bool, err error) {
	latest := Protocol{protoVersionMaxMajor, protoVersionMaxMinor}
	if r.Kernel.Major != latest.Major {
		s.logger.Infof("kernel proposed CUSE %v, countering with %v", r.Kernel, latest)
		r.Respond(&CuseInitResponse{Library: latest})
		return false, nil
	}

	min := Protocol{protoVersionMinMajor, protoVersionMinMinor}
	if r.Kernel.LT(min) {
		r.RespondError(EPROTO)
		s.mu.Lock()
		s.state = sessionClosed
		s.mu.Unlock()
		return false, &OldVersionError{
			Kernel:     r.Kernel,
			LibraryMin: min,
		}
	}

	proto := latest
	if r.Kernel.LT(proto) {
		proto = r.Kernel
	}
	flags := r.Flags & s.cuse.Flags

	s.mu.Lock()
	s.proto = proto
	s.cuseFlags = flags
	s.state = sessionNegotiated
	s.mu.Unlock()

	mw := s.cuse.MaxWrite
	if mw == 0 || mw > maxWrite {
		mw = maxWrite
	}
	r.Respond(&CuseInitResponse{
		Library:  proto,
		Flags:    flags,
		MaxRead:  s.cuse.MaxRead,
		MaxWrite: mw,
		DevMajor: s.cuse.DevMajor,
		DevMinor: s.cuse.DevMinor,
		Name:     s.cuse.Name,
	})
	s.logger.Infof("negotiated CUSE %v for device %s (%d:%d)", proto, s.cuse.Name, s.cuse.DevMajor, s.cuse.DevMinor)
	return true, nil
}

// ReadRequest returns the next FUSE request from the kernel.
//
// Caller must call either Request.Respond or Request.RespondError in
// a reasonable time. Caller must not retain Request after that call.
func (s *Session) ReadRequest() (Request, error) {
	m := getMessage(s)
	for {
		s.rio.RLock()
		n, err := s.tr.Read(m.buf)
		s.rio.RUnlock()
		if err == syscall.EINTR {
			// Interrupted reads on the device just get retried.
			continue
		}
		if err != nil && err != syscall.ENODEV && err != io.EOF {
			putMessage(m)
			return nil, err
		}
		if n <= 0 {
			putMessage(m)
			return nil, io.EOF
		}
		m.buf = m.buf[:n]
		break
	}

	if len(m.buf) < inHeaderSize {
		putMessage(m)
		return nil, fmt.Errorf("fuse: message of %d bytes is shorter than a request header", len(m.buf))
	}
	return s.parseMessage(m)
}

func (s *Session) writeToKernel(msg []byte) error {
	out := (*outHeader)(unsafe.Pointer(&msg[0]))
	out.Len = uint32(len(msg))

	s.wio.RLock()
	defer s.wio.RUnlock()
	nn, err := s.tr.Write(msg)
	if err == nil && nn != len(msg) {
		Debug(bugShortKernelWrite{
			Written: int64(nn),
			Length:  int64(len(msg)),
			Error:   errorString(err),
			Stack:   stack(),
		})
	}
	return err
}

func (s *Session) respond(msg []byte) {
	if err := s.writeToKernel(msg); err != nil {
		s.logger.Errorf("write to kernel failed: %v", err)
		Debug(bugKernelWriteError{
			Error: errorString(err),
			Stack: stack(),
		})
	}
}

// sendInvalidate sends an invalidate notification to kernel.
//
// A returned ENOENT is translated to a friendlier error.
func (s *Session) sendInvalidate(msg []byte) error {
	switch err := s.writeToKernel(msg); err {
	case syscall.ENOENT:
		return ErrNotCached
	default:
		return err
	}
}

// InvalidateNode invalidates the kernel cache of the attributes and a
// range of the data of a node.
//
// Giving offset 0 and size -1 means all data. To invalidate just the
// attributes, give offset 0 and size 0.
//
// Returns ErrNotCached if the kernel is not currently caching the
// node.
func (s *Session) InvalidateNode(nodeID NodeID, off int64, size int64) error {
	buf := newBuffer(unsafe.Sizeof(notifyInvalInodeOut{}))
	h := (*outHeader)(unsafe.Pointer(&buf[0]))
	// h.Unique is 0
	h.Error = notifyCodeInvalInode
	out := (*notifyInvalInodeOut)(buf.alloc(unsafe.Sizeof(notifyInvalInodeOut{})))
	out.Ino = uint64(nodeID)
	out.Off = off
	out.Len = size
	return s.sendInvalidate(buf)
}

// InvalidateEntry invalidates the kernel cache of the directory entry
// identified by parent directory node ID and entry basename.
//
// Kernel may or may not cache directory listings. To invalidate
// those, use InvalidateNode to invalidate all of the data for a
// directory. (As of 2015-06, Linux FUSE does not cache directory
// listings.)
//
// Returns ErrNotCached if the kernel is not currently caching the
// node.
func (s *Session) InvalidateEntry(parent NodeID, name string) error {
	const maxUint32 = ^uint32(0)
	if uint64(len(name)) > uint64(maxUint32) {
		// very unlikely, but we don't want to silently truncate
		return syscall.ENAMETOOLONG
	}
	buf := newBuffer(unsafe.Sizeof(notifyInvalEntryOut{}) + uintptr(len(name)) + 1)
	h := (*outHeader)(unsafe.Pointer(&buf[0]))
	// h.Unique is 0
	h.Error = notifyCodeInvalEntry
	out := (*notifyInvalEntryOut)(buf.alloc(unsafe.Sizeof(notifyInvalEntryOut{})))
	out.Parent = uint64(parent)
	out.Namelen = uint32(len(name))
	buf = append(buf, name...)
	buf = append(buf, '\x00')
	return s.sendInvalidate(buf)
}
