// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"os"
	"syscall"
)

// A Conn is the /dev/fuse (or /dev/cuse) transport for a Session. It
// carries no protocol state of its own; that lives on the Session.
type Conn struct {
	dev *os.File
}

// NewConn wraps an already-open kernel FUSE device file.
func NewConn(dev *os.File) *Conn {
	return &Conn{dev: dev}
}

func (c *Conn) fd() int {
	return int(c.dev.Fd())
}

// Read reads a single FUSE message into p.
func (c *Conn) Read(p []byte) (int, error) {
	return syscall.Read(c.fd(), p)
}

// Write sends a single FUSE message.
func (c *Conn) Write(p []byte) (int, error) {
	return syscall.Write(c.fd(), p)
}

// Close closes the device file.
func (c *Conn) Close() error {
	return c.dev.Close()
}

// Mount mounts a new FUSE connection on the named directory, performs
// the INIT handshake, and returns the negotiated session.
//
// After a successful return, incoming requests must be served to make
// progress; close the session and call Unmount to tear down.
func Mount(dir string, cfg *Config, options ...MountOption) (*Session, error) {
	conf := mountConfig{
		options: make(map[string]string),
	}
	for _, option := range options {
		if err := option(&conf); err != nil {
			return nil, err
		}
	}

	dev, err := mount(dir, &conf)
	if err != nil {
		return nil, err
	}
	sess := New(NewConn(dev), cfg)

	if err := sess.Handshake(); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

// OpenCuse opens /dev/cuse, performs the CUSE_INIT handshake, and
// returns the negotiated session. The kernel creates the character
// device named by cfg once the handshake completes.
func OpenCuse(cfg *CuseConfig) (*Session, error) {
	dev, err := openCuseDevice()
	if err != nil {
		return nil, err
	}
	sess := NewCuse(NewConn(dev), cfg)

	if err := sess.Handshake(); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}
