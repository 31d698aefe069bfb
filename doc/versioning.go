package doc

import "github.com/fusewire/fusewire/pkg/cli"

var VersioningCmd = &cli.Command{
	UsageLine: "versioning",
	Short:     "protocol version negotiation overview",
	Long: `
The kernel speaks many revisions of the FUSE wire protocol, and the
first message on every connection is an INIT carrying the kernel's
version. The library supports the closed window 7.8 through 7.31: the
negotiated version is the smaller of the kernel's and the library's,
fixed for the life of the session.

If the kernel's major version differs, the reply carries the library's
own version and the kernel is expected to retry INIT; the handshake
loops until both sides agree. A kernel older than 7.8 is refused with
EPROTO and the session is closed.

Struct layouts grew over time, always by appending fields. The codec
keys every affected layout off the negotiated version: shorter
variants of entry_out and attr_out before 7.9, the umask field in
mknod/mkdir from 7.12, the three generations of the init_out reply,
and so on. Requests and responses present one shape to callers
regardless of version; fields a given session never saw simply stay
zero. Run 'abi-dump' to see the exact sizes per version.
`,
}
