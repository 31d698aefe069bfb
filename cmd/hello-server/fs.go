// Copyright 2026 The Fusewire Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package helloserver

import (
	"bytes"
	"context"
	"os"
	"time"

	"github.com/fusewire/fusewire/pkg/fuse"
	"github.com/fusewire/fusewire/pkg/log"
)

// helloFS is the smallest useful file system: a root directory
// holding one read-only file. Everything lives in two fixed inodes,
// so no bookkeeping beyond what the session already does is needed.
type helloFS struct {
	logger *log.Logger
}

const (
	helloInode = 2
	helloName  = "hello"
	helloData  = "hello, world\n"

	attrValidity = time.Minute
)

func newHelloFS(logger *log.Logger) *helloFS {
	return &helloFS{logger: logger}
}

func rootAttr() fuse.Attr {
	return fuse.Attr{
		Valid:     attrValidity,
		Inode:     uint64(fuse.RootID),
		Mode:      os.ModeDir | 0o555,
		Nlink:     2,
		Uid:       uint32(os.Getuid()),
		Gid:       uint32(os.Getgid()),
		BlockSize: 4096,
	}
}

func helloAttr() fuse.Attr {
	return fuse.Attr{
		Valid:     attrValidity,
		Inode:     helloInode,
		Size:      uint64(len(helloData)),
		Blocks:    1,
		Mode:      0o444,
		Nlink:     1,
		Uid:       uint32(os.Getuid()),
		Gid:       uint32(os.Getgid()),
		BlockSize: 4096,
	}
}

func (f *helloFS) Lookup(ctx context.Context, r *fuse.LookupRequest) error {
	if r.Node != fuse.RootID {
		return fuse.ENOENT
	}
	if !bytes.Equal(r.Name, []byte(helloName)) {
		return fuse.ENOENT
	}
	r.Respond(&fuse.LookupResponse{
		Node:       helloInode,
		EntryValid: attrValidity,
		Attr:       helloAttr(),
	})
	return nil
}

func (f *helloFS) Getattr(ctx context.Context, r *fuse.GetattrRequest) error {
	switch r.Node {
	case fuse.RootID:
		r.Respond(&fuse.GetattrResponse{Attr: rootAttr()})
	case helloInode:
		r.Respond(&fuse.GetattrResponse{Attr: helloAttr()})
	default:
		return fuse.ESTALE
	}
	return nil
}

func (f *helloFS) Open(ctx context.Context, r *fuse.OpenRequest) error {
	switch r.Node {
	case fuse.RootID, helloInode:
		// The content is immutable, so the handle is just the inode
		// and the kernel may keep its caches across opens.
		r.Respond(&fuse.OpenResponse{
			Handle: fuse.HandleID(r.Node),
			Flags:  fuse.OpenKeepCache,
		})
		return nil
	default:
		return fuse.ESTALE
	}
}

func (f *helloFS) Read(ctx context.Context, r *fuse.ReadRequest) error {
	if r.Dir {
		if r.Node != fuse.RootID {
			return fuse.ENOTDIR
		}
		r.Respond(&fuse.ReadResponse{Data: listingSlice(rootListing(), r.Offset, r.Size)})
		return nil
	}

	if r.Node != helloInode {
		return fuse.ESTALE
	}
	data := []byte(helloData)
	if r.Offset >= int64(len(data)) {
		r.Respond(&fuse.ReadResponse{})
		return nil
	}
	data = data[r.Offset:]
	if len(data) > r.Size {
		data = data[:r.Size]
	}
	r.Respond(&fuse.ReadResponse{Data: data})
	return nil
}

func (f *helloFS) Readdirplus(ctx context.Context, r *fuse.ReaddirplusRequest) error {
	if r.Node != fuse.RootID {
		return fuse.ENOTDIR
	}
	r.Respond(&fuse.ReaddirplusResponse{Data: listingSlice(rootListingPlus(), r.Offset, r.Size)})
	return nil
}

func (f *helloFS) Release(ctx context.Context, r *fuse.ReleaseRequest) error {
	r.Respond()
	return nil
}

func (f *helloFS) Statfs(ctx context.Context, r *fuse.StatfsRequest) error {
	r.Respond(&fuse.StatfsResponse{
		Blocks:  1,
		Files:   1,
		Bsize:   4096,
		Namelen: 255,
		Frsize:  4096,
	})
	return nil
}

// rootListing encodes the full READDIR payload for the root
// directory. Dirent offsets are byte offsets into this listing, so a
// resumed read can slice straight back in.
func rootListing() []byte {
	var data []byte
	data = fuse.AppendDirent(data, fuse.Dirent{
		Inode: uint64(fuse.RootID), Type: fuse.DT_Dir, Name: ".",
	})
	data = fuse.AppendDirent(data, fuse.Dirent{
		Inode: uint64(fuse.RootID), Type: fuse.DT_Dir, Name: "..",
	})
	data = fuse.AppendDirent(data, fuse.Dirent{
		Inode: helloInode, Type: fuse.DT_File, Name: helloName,
	})
	return data
}

// rootListingPlus is the READDIRPLUS variant. The "." and ".."
// entries carry no lookup result, per convention; only the real entry
// takes a node reference.
func rootListingPlus() []byte {
	var data []byte
	data = fuse.AppendDirentPlus(data, fuse.DirentPlus{
		Dirent: fuse.Dirent{Inode: uint64(fuse.RootID), Type: fuse.DT_Dir, Name: "."},
	})
	data = fuse.AppendDirentPlus(data, fuse.DirentPlus{
		Dirent: fuse.Dirent{Inode: uint64(fuse.RootID), Type: fuse.DT_Dir, Name: ".."},
	})
	data = fuse.AppendDirentPlus(data, fuse.DirentPlus{
		Dirent: fuse.Dirent{Inode: helloInode, Type: fuse.DT_File, Name: helloName},
		Entry: fuse.LookupResponse{
			Node:       helloInode,
			EntryValid: attrValidity,
			Attr:       helloAttr(),
		},
	})
	return data
}

func listingSlice(listing []byte, offset int64, size int) []byte {
	if offset >= int64(len(listing)) {
		return nil
	}
	listing = listing[offset:]
	if len(listing) > size {
		listing = listing[:size]
	}
	return listing
}
