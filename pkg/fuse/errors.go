// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"errors"
	"fmt"
)

// An OldVersionError is returned by Handshake when the kernel speaks a
// protocol minor older than the library supports. The session has
// already answered the kernel with EPROTO by the time this is
// returned.
type OldVersionError struct {
	Kernel     Protocol
	LibraryMin Protocol
}

func (e *OldVersionError) Error() string {
	return fmt.Sprintf("kernel FUSE version is too old: %v < %v", e.Kernel, e.LibraryMin)
}

var (
	// ErrClosedWithoutInit is returned by Handshake when the transport
	// reaches EOF before an INIT request arrives.
	ErrClosedWithoutInit = errors.New("fuse: connection closed without init")

	// ErrExpectedInit is returned when a request other than INIT
	// arrives before the handshake has completed. The protocol gives
	// such a request no defined decoding, so the session refuses to
	// guess.
	ErrExpectedInit = errors.New("fuse: request received before init")

	// ErrUnexpectedInit is returned when a second INIT request arrives
	// on an already negotiated session.
	ErrUnexpectedInit = errors.New("fuse: init received on negotiated connection")
)

// A MalformedError reports a single request whose framing or payload
// does not decode under the negotiated protocol version. It poisons
// only the request it names; the session remains usable.
type MalformedError struct {
	ID     RequestID
	Opcode uint32
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("fuse: malformed %s request %v: %s", opcodeName(e.Opcode), e.ID, e.Reason)
}

type bugKernelWriteError struct {
	Error string
	Stack string
}

func (b bugKernelWriteError) String() string {
	return fmt.Sprintf("kernel write error: error=%q stack=\n%s", b.Error, b.Stack)
}

// safe to call even with nil error
func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type notCachedError struct{}

func (notCachedError) Error() string {
	return "node not cached"
}

var _ ErrorNumber = notCachedError{}

func (notCachedError) Errno() Errno {
	// Behave just like if the original syscall.ENOENT had been passed
	// straight through.
	return ENOENT
}

var (
	ErrNotCached = notCachedError{}
)
