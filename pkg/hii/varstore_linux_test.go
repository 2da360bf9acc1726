// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package hii

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

func TestVarStoreIOReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	decl := VarStoreDecl{Name: "Setup", GUID: uuid.MustParse("00000000-0000-0000-0000-000000000001")}
	path := filepath.Join(dir, "Setup-00000000-0000-0000-0000-000000000001")

	original := append([]byte{0x07, 0x00, 0x00, 0x00}, make([]byte, 60)...)
	if err := os.WriteFile(path, original, 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	io := &VarStoreIO{EfivarfsDir: dir}
	raw, err := io.ReadRaw(decl)
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	if len(raw) != len(original) || raw[0] != 0x07 {
		t.Fatalf("ReadRaw = %v", raw)
	}

	raw[10] = 0xAB
	if err := io.WriteRaw(decl, raw); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	readBack, err := io.ReadRaw(decl)
	if err != nil {
		t.Fatalf("ReadRaw after write: %v", err)
	}
	if readBack[10] != 0xAB || readBack[0] != 0x07 {
		t.Errorf("read-back = %v", readBack)
	}
}

func TestVarStoreIOReadMissing(t *testing.T) {
	io := &VarStoreIO{EfivarfsDir: t.TempDir()}
	decl := VarStoreDecl{Name: "Nope", GUID: uuid.New()}
	if _, err := io.ReadRaw(decl); !kind.Is(err, kind.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
