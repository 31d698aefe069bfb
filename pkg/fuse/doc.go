// See the file LICENSE for copyright and licensing information.

// Package fuse implements the kernel side of the FUSE and CUSE wire
// protocols on Linux: decoding requests, encoding replies, the INIT
// handshake, and the node reference bookkeeping the kernel expects of
// a userspace server.
//
// There are two ways to use the package. The first is to speak the
// low-level message protocol directly: read from a Session using
// ReadRequest (or hand it raw frames via ParseRequest), type switch
// on the result, and answer using the per-request Respond methods.
// This is closest to the actual interaction with the kernel and is
// the natural fit for protocol translators and tooling.
//
// The second is to implement the per-operation handler interfaces
// (Lookuper, Opener, Reader, and friends) and let Session.Serve run
// the dispatch loop. Serve answers unimplemented operations with
// ENOSYS, runs each request on its own goroutine, and wires kernel
// INTERRUPT requests to context cancellation. There are a daunting
// number of such interfaces, but few are required.
//
// # Versions
//
// The protocol version is negotiated once, during the INIT exchange,
// and fixed for the life of the session. Layout differences between
// minor versions are handled inside decode and encode; request types
// present a single shape regardless of the negotiated version, with
// version-gated fields documented as such. Versions outside the
// supported window are refused rather than guessed at.
//
// # Errors
//
// The protocol can only carry POSIX errno values back to the kernel;
// error text never crosses the boundary. A handler error implementing
// ErrorNumber chooses its errno; anything else becomes EIO.
//
// # Interrupted operations
//
// An operation that blocks indefinitely, like a lock wait or a read
// on an empty pipe, should select on ctx.Done() and return EINTR when
// cancelled. Interrupts are advisory: the kernel accepts a normal
// reply even after sending one.
//
// # Authentication
//
// All request types embed a Header, so a handler can inspect req.Pid,
// req.Uid, and req.Gid for permission checking. The kernel normally
// prevents other users from accessing the mount (see AllowOther), but
// does not enforce access modes (see DefaultPermissions).
//
// # Mount options
//
// Behavior and metadata of the mounted file system can be changed by
// passing MountOption values to Mount.
package fuse
