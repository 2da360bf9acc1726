// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package hii

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

// VarStoreIO reads and writes a VarStoreDecl's backing efivarfs file.
type VarStoreIO struct {
	EfivarfsDir string
}

func NewVarStoreIO() *VarStoreIO {
	return &VarStoreIO{EfivarfsDir: DefaultEfivarfsDir}
}

func (io *VarStoreIO) path(decl VarStoreDecl) string {
	return filepath.Join(io.EfivarfsDir, fmt.Sprintf("%s-%s", decl.Name, decl.GUID))
}

// ReadRaw returns the var-store's full contents, attribute prefix
// included.
func (io *VarStoreIO) ReadRaw(decl VarStoreDecl) ([]byte, error) {
	raw, err := os.ReadFile(io.path(decl))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kind.New(kind.NotFound, "hii.VarStoreIO.ReadRaw", err)
		}
		if os.IsPermission(err) {
			return nil, kind.New(kind.Permission, "hii.VarStoreIO.ReadRaw", err)
		}
		return nil, kind.New(kind.ParseError, "hii.VarStoreIO.ReadRaw", err)
	}
	return raw, nil
}

// WriteRaw overwrites the var-store with data, which must be exactly the
// same length as what ReadRaw returned: efivarfs rejects writes that
// change a variable's size. The write is issued as a single syscall so the
// kernel sees one atomic update, matching efivarfs's write semantics.
func (io *VarStoreIO) WriteRaw(decl VarStoreDecl, data []byte) error {
	f, err := os.OpenFile(io.path(decl), os.O_WRONLY, 0)
	if err != nil {
		if os.IsPermission(err) {
			return kind.New(kind.Permission, "hii.VarStoreIO.WriteRaw", err)
		}
		return kind.New(kind.ParseError, "hii.VarStoreIO.WriteRaw", err)
	}
	defer f.Close()

	n, err := f.Write(data)
	if err != nil {
		return kind.New(kind.ParseError, "hii.VarStoreIO.WriteRaw", err)
	}
	if n != len(data) {
		return kind.New(kind.NotModified, "hii.VarStoreIO.WriteRaw",
			fmt.Errorf("short write: wrote %d of %d bytes", n, len(data)))
	}
	return nil
}
