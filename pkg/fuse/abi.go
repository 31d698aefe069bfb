// See the file LICENSE for copyright and licensing information.

package fuse

import "sort"

// This file exposes the version-dependent wire layouts in a form
// tooling can render, without exporting the wire structs themselves.

// A WireLayout names one kernel wire structure and its encoded size
// at a particular protocol version.
type WireLayout struct {
	Name string
	Size int
}

// WireLayouts returns the encoded sizes of the wire structures at
// protocol version p. The fixed-layout headers are included so a dump
// is complete on its own.
func WireLayouts(p Protocol) []WireLayout {
	return []WireLayout{
		{"fuse_in_header", inHeaderSize},
		{"fuse_out_header", outHeaderSize},
		{"fuse_init_in", initInSize},
		{"fuse_init_out", int(initOutSize(p))},
		{"fuse_attr", int(attrSize(p))},
		{"fuse_entry_out", int(entryOutSize(p))},
		{"fuse_attr_out", int(attrOutSize(p))},
		{"fuse_mknod_in", int(mknodInSize(p))},
		{"fuse_mkdir_in", int(mkdirInSize(p))},
		{"fuse_create_in", int(createInSize(p))},
		{"fuse_read_in", int(readInSize(p))},
		{"fuse_write_in", int(writeInSize(p))},
		{"fuse_lk_in", int(lkInSize(p))},
		{"fuse_dirent", direntSize},
	}
}

// SupportedVersions returns the closed window of protocol versions
// this package implements, oldest first.
func SupportedVersions() []Protocol {
	var vs []Protocol
	for minor := uint32(protoVersionMinMinor); minor <= protoVersionMaxMinor; minor++ {
		vs = append(vs, Protocol{protoVersionMinMajor, minor})
	}
	return vs
}

// Opcodes returns the opcodes this package understands, in numeric
// order.
func Opcodes() []uint32 {
	ops := make([]uint32, 0, len(opcodeNames))
	for op := range opcodeNames {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// OpcodeName returns the kernel's name for an opcode, like "LOOKUP".
// Unknown opcodes format as "UNKNOWN(n)".
func OpcodeName(opcode uint32) string {
	return opcodeName(opcode)
}
