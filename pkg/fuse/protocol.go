// See the file LICENSE for copyright and licensing information.

package fuse

import "fmt"

// Protocol is a FUSE protocol version, ordered lexicographically on
// (major, minor). A connection's protocol is fixed during the INIT
// handshake and never changes afterwards.
type Protocol struct {
	Major uint32
	Minor uint32
}

func (p Protocol) String() string {
	return fmt.Sprintf("%d.%d", p.Major, p.Minor)
}

// LT returns whether p is less than q, comparing major then minor.
func (p Protocol) LT(q Protocol) bool {
	return p.Major < q.Major ||
		(p.Major == q.Major && p.Minor < q.Minor)
}

// GE returns whether p is greater than or equal to q.
func (p Protocol) GE(q Protocol) bool {
	return !p.LT(q)
}

// The window of protocol versions this package implements wire layouts
// for. Versions outside the window are refused during the handshake and
// by the per-version layout helpers; guessing at an unaudited layout is
// never an option.
const (
	protoVersionMinMajor = 7
	protoVersionMinMinor = 8
	protoVersionMaxMajor = 7
	protoVersionMaxMinor = 31
)

// Supported reports whether p falls within the closed set of protocol
// versions this package has audited layouts for.
func (p Protocol) Supported() bool {
	min := Protocol{protoVersionMinMajor, protoVersionMinMinor}
	max := Protocol{protoVersionMaxMajor, protoVersionMaxMinor}
	return p.GE(min) && max.GE(p)
}
