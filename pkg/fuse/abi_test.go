// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"sort"
	"testing"
)

func TestSupportedVersions(t *testing.T) {
	vs := SupportedVersions()
	if len(vs) != 24 {
		t.Fatalf("got %d versions, want 24", len(vs))
	}
	if vs[0] != (Protocol{7, 8}) {
		t.Errorf("oldest version %v, want 7.8", vs[0])
	}
	if vs[len(vs)-1] != (Protocol{7, 31}) {
		t.Errorf("newest version %v, want 7.31", vs[len(vs)-1])
	}
	for _, v := range vs {
		if !v.Supported() {
			t.Errorf("version %v not reported as supported", v)
		}
	}
}

func TestWireLayoutsGrowth(t *testing.T) {
	// Layouts only ever grew, by appending fields; a newer version
	// must never shrink a structure.
	vs := SupportedVersions()
	prev := WireLayouts(vs[0])
	for _, v := range vs[1:] {
		cur := WireLayouts(v)
		if len(cur) != len(prev) {
			t.Fatalf("layout count changed at %v", v)
		}
		for i := range cur {
			if cur[i].Name != prev[i].Name {
				t.Fatalf("layout order changed at %v: %s vs %s", v, cur[i].Name, prev[i].Name)
			}
			if cur[i].Size < prev[i].Size {
				t.Errorf("%s shrank at %v: %d -> %d", cur[i].Name, v, prev[i].Size, cur[i].Size)
			}
		}
		prev = cur
	}
}

func TestWireLayoutBoundaries(t *testing.T) {
	sizeOf := func(p Protocol, name string) int {
		for _, l := range WireLayouts(p) {
			if l.Name == name {
				return l.Size
			}
		}
		t.Fatalf("no layout named %s", name)
		return 0
	}

	// 7.9 appended Blksize to fuse_attr and the lock owner tail to
	// read_in and write_in.
	if a, b := sizeOf(Protocol{7, 8}, "fuse_attr"), sizeOf(Protocol{7, 9}, "fuse_attr"); a >= b {
		t.Errorf("fuse_attr did not grow at 7.9: %d vs %d", a, b)
	}
	if a, b := sizeOf(Protocol{7, 8}, "fuse_read_in"), sizeOf(Protocol{7, 9}, "fuse_read_in"); a >= b {
		t.Errorf("fuse_read_in did not grow at 7.9: %d vs %d", a, b)
	}
	// 7.12 appended the umask to mknod_in and create_in. mkdir_in also
	// gained one, but there it occupies former padding and the size
	// stays put.
	if a, b := sizeOf(Protocol{7, 11}, "fuse_mknod_in"), sizeOf(Protocol{7, 12}, "fuse_mknod_in"); a >= b {
		t.Errorf("fuse_mknod_in did not grow at 7.12: %d vs %d", a, b)
	}
	if a, b := sizeOf(Protocol{7, 11}, "fuse_create_in"), sizeOf(Protocol{7, 12}, "fuse_create_in"); a >= b {
		t.Errorf("fuse_create_in did not grow at 7.12: %d vs %d", a, b)
	}
	if a, b := sizeOf(Protocol{7, 11}, "fuse_mkdir_in"), sizeOf(Protocol{7, 12}, "fuse_mkdir_in"); a != b {
		t.Errorf("fuse_mkdir_in changed size at 7.12: %d vs %d", a, b)
	}
	// 7.23 moved init_out to its final 64-byte form.
	if got := sizeOf(Protocol{7, 22}, "fuse_init_out"); got != 24 {
		t.Errorf("fuse_init_out at 7.22 is %d bytes, want 24", got)
	}
	if got := sizeOf(Protocol{7, 23}, "fuse_init_out"); got != 64 {
		t.Errorf("fuse_init_out at 7.23 is %d bytes, want 64", got)
	}
}

func TestOpcodes(t *testing.T) {
	ops := Opcodes()
	if !sort.SliceIsSorted(ops, func(i, j int) bool { return ops[i] < ops[j] }) {
		t.Error("opcodes not sorted")
	}
	if ops[0] != opLookup {
		t.Errorf("first opcode %d, want %d", ops[0], opLookup)
	}
	if ops[len(ops)-1] != opCuseInit {
		t.Errorf("last opcode %d, want %d", ops[len(ops)-1], opCuseInit)
	}
}

func TestOpcodeName(t *testing.T) {
	if got := OpcodeName(opLookup); got != "LOOKUP" {
		t.Errorf("OpcodeName(LOOKUP) = %q", got)
	}
	if got := OpcodeName(opCuseInit); got != "CUSE_INIT" {
		t.Errorf("OpcodeName(CUSE_INIT) = %q", got)
	}
	if got := OpcodeName(9999); got != "UNKNOWN(9999)" {
		t.Errorf("OpcodeName(9999) = %q", got)
	}
}
