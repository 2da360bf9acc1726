// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Locates the in-memory HiiDB image via an EFI variable carrying a
// physical-address/length pair, per spec.md §4.1.

package hii

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

// DefaultEfivarfsDir is the conventional efivarfs mountpoint on Linux.
var DefaultEfivarfsDir = "/sys/firmware/efi/efivars"

// DefaultMemDevice is the physical-memory character device used to copy
// the in-memory HiiDB image out by physical address.
var DefaultMemDevice = "/dev/mem"

// HiiDbPointerVarName and HiiDbPointerVarGUID name the EFI variable whose
// value carries the HiiDB image's physical address and length. Like the
// language-preference list, this is a package-level var rather than a
// discovered value: the exact variable used varies by platform vendor, and
// picking one fixed name/GUID pair is the deliberate simplification noted
// in spec.md §9.
var (
	HiiDbPointerVarName = "HiiDbPointer"
	HiiDbPointerVarGUID = uuid.MustParse("38d2ecdd-2884-4a4f-9f02-91a4c1dbf3e7")
)

// Locator finds and copies out the in-memory HiiDB image.
type Locator struct {
	EfivarfsDir string
	MemDevice   string
}

func NewLocator() *Locator {
	return &Locator{EfivarfsDir: DefaultEfivarfsDir, MemDevice: DefaultMemDevice}
}

type hiiDbPointer struct {
	Attributes uint32
	Address    uint64
	Size       uint64
}

func (l *Locator) varPath() string {
	return filepath.Join(l.EfivarfsDir, fmt.Sprintf("%s-%s", HiiDbPointerVarName, HiiDbPointerVarGUID))
}

func (l *Locator) readPointerVar() (*hiiDbPointer, error) {
	raw, err := os.ReadFile(l.varPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kind.New(kind.BackendUnavailable, "hii.Locate", err)
		}
		if os.IsPermission(err) {
			return nil, kind.New(kind.Permission, "hii.Locate", err)
		}
		return nil, kind.New(kind.ParseError, "hii.Locate", err)
	}
	if len(raw) < 20 {
		return nil, kind.New(kind.ParseError, "hii.Locate",
			fmt.Errorf("HiiDB pointer variable too short: %d bytes", len(raw)))
	}
	return &hiiDbPointer{
		Attributes: binary.LittleEndian.Uint32(raw[0:4]),
		Address:    binary.LittleEndian.Uint64(raw[4:12]),
		Size:       binary.LittleEndian.Uint64(raw[12:20]),
	}, nil
}

// Locate reads the pointer variable and copies `size` bytes from host
// physical memory starting at the reported address into an owned buffer.
// Failure modes per spec.md §4.1: variable absent -> BackendUnavailable;
// short read or OS-denied range -> Permission.
func (l *Locator) Locate(ctx context.Context) ([]byte, error) {
	ptr, err := l.readPointerVar()
	if err != nil {
		return nil, err
	}
	buf, err := l.copyPhysMem(ptr.Address, ptr.Size)
	if err != nil {
		return nil, err
	}
	if uint64(len(buf)) != ptr.Size {
		return nil, kind.New(kind.Permission, "hii.Locate",
			fmt.Errorf("short read: got %d bytes, wanted %d", len(buf), ptr.Size))
	}
	return buf, nil
}
