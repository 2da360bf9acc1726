// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package hii

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

// copyPhysMem maps the page range covering [addr, addr+size) out of
// /dev/mem read-only and copies the requested window into an owned slice.
// mmap requires a page-aligned offset, so the mapping is widened to the
// containing page and the returned slice is taken from within it.
func (l *Locator) copyPhysMem(addr, size uint64) ([]byte, error) {
	f, err := os.OpenFile(l.MemDevice, os.O_RDONLY, 0)
	if err != nil {
		if os.IsPermission(err) {
			return nil, kind.New(kind.Permission, "hii.Locate", err)
		}
		return nil, kind.New(kind.BackendUnavailable, "hii.Locate", err)
	}
	defer f.Close()

	pageSize := uint64(os.Getpagesize())
	pageOffset := addr % pageSize
	mapBase := addr - pageOffset
	mapLen := pageOffset + size

	mapping, err := unix.Mmap(int(f.Fd()), int64(mapBase), int(mapLen), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, kind.New(kind.Permission, "hii.Locate",
			fmt.Errorf("mmap %#x+%#x of %s: %w", mapBase, mapLen, l.MemDevice, err))
	}
	defer unix.Munmap(mapping)

	out := make([]byte, size)
	copy(out, mapping[pageOffset:pageOffset+size])
	return out, nil
}
