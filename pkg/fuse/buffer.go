// See the file LICENSE for copyright and licensing information.

package fuse

import "unsafe"

// buffer provides a mechanism for constructing a single contiguous
// outgoing message. Every buffer starts with space for an outHeader;
// the response payload is claimed with alloc or plain append. The
// caller sizes the buffer exactly up front, so a buffer never grows
// after creation.
type buffer []byte

// alloc allocates size bytes and returns a pointer to the new segment.
func (w *buffer) alloc(size uintptr) unsafe.Pointer {
	s := int(size)
	if len(*w)+s > cap(*w) {
		old := *w
		*w = make([]byte, len(*w), 2*cap(*w)+s)
		copy(*w, old)
	}
	l := len(*w)
	*w = (*w)[:l+s]
	return unsafe.Pointer(&(*w)[l])
}

// newBuffer allocates a buffer with room for the response header plus
// extra bytes of payload.
func newBuffer(extra uintptr) buffer {
	const hdrSize = unsafe.Sizeof(outHeader{})
	buf := make(buffer, hdrSize, hdrSize+extra)
	return buf
}
