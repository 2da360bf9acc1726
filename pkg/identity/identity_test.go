// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDMIFile(t *testing.T, dir, name, value string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0644); err != nil {
		t.Fatalf("WriteFile(%s): %v", name, err)
	}
}

func TestReadPopulatesAllFields(t *testing.T) {
	dir := t.TempDir()
	writeDMIFile(t, dir, "sys_vendor", "Quanta")
	writeDMIFile(t, dir, "bios_version", "F08")
	writeDMIFile(t, dir, "bios_date", "01/02/2026")
	writeDMIFile(t, dir, "product_name", "Tioga Pass")
	writeDMIFile(t, dir, "product_family", "Server")
	writeDMIFile(t, dir, "product_version", "01")

	r := &Reader{DMIDir: dir}
	id, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if id.Vendor != "Quanta" || id.Version != "F08" || id.ProductName != "Tioga Pass" {
		t.Errorf("Read = %+v", id)
	}
}

func TestReadMissingFileIsEmptyNotError(t *testing.T) {
	dir := t.TempDir()
	writeDMIFile(t, dir, "sys_vendor", "Quanta")
	// Deliberately no other files.

	r := &Reader{DMIDir: dir}
	id, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if id.Vendor != "Quanta" {
		t.Errorf("Vendor = %q", id.Vendor)
	}
	if id.ProductName != "" {
		t.Errorf("ProductName = %q, want empty", id.ProductName)
	}
}
