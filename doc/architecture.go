package doc

import "github.com/fusewire/fusewire/pkg/cli"

var ArchitectureCmd = &cli.Command{
	UsageLine: "architecture",
	Short:     "library architecture overview",
	Long: `
The library is split into three layers.

The codec layer (pkg/fuse, files fuse_kernel.go, decode.go and
messages.go) owns the kernel wire format: native-endian structs
overlaid on raw buffers, one request type per opcode, and Respond
methods that encode replies. Decoded requests borrow from the receive
buffer, so no payload bytes are copied on either path.

The session layer (session.go) owns a single kernel connection: the
INIT handshake, the negotiated protocol version and capability flags,
and the node reference table that mirrors what the kernel believes it
holds. It reads and writes through a small Transport interface, so
tests and protocol tooling can drive it without a kernel.

The dispatch layer (serve.go) is optional. It type-switches decoded
requests onto per-operation handler interfaces, answers unimplemented
operations with ENOSYS, runs each request on its own goroutine, and
maps kernel INTERRUPT requests onto context cancellation.

Mounting (conn.go, mount_linux.go) is glue in front of mount(2) and
the fusermount helper; it produces the device file the session runs
over.
`,
}
