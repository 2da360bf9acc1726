// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Machine identity: DMI/SMBIOS-derived strings read from sysfs, for the
// identify surface (spec.md §3, §4). Grounded on the teacher's
// convention of reading one fact per file under a well-known /sys
// directory, as its disk enumeration does under /sys/class/block.

package identity

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

// DefaultDMIDir is where the Linux kernel exposes decoded SMBIOS/DMI
// strings, one value per file.
const DefaultDMIDir = "/sys/class/dmi/id"

// Identity is the set of DMI strings spec.md's Identity type carries.
type Identity struct {
	Vendor         string
	Version        string
	ReleaseDate    string
	ProductName    string
	ProductFamily  string
	ProductVersion string
}

// Reader reads machine identity from a DMI directory, defaulting to
// DefaultDMIDir.
type Reader struct {
	DMIDir string
}

func NewReader() *Reader {
	return &Reader{DMIDir: DefaultDMIDir}
}

func (r *Reader) dmiDir() string {
	if r.DMIDir != "" {
		return r.DMIDir
	}
	return DefaultDMIDir
}

// Read collects the handful of DMI strings spec.md's Identity type
// carries. A file that is missing (older kernels expose fewer of these)
// is treated as an empty string, not an error, since the overall
// identify surface should degrade gracefully rather than fail outright
// over one absent sysfs attribute.
func (r *Reader) Read() (*Identity, error) {
	get := func(name string) (string, error) {
		b, err := os.ReadFile(filepath.Join(r.dmiDir(), name))
		if err != nil {
			if os.IsNotExist(err) {
				return "", nil
			}
			if os.IsPermission(err) {
				return "", kind.New(kind.Permission, "identity.Read", err)
			}
			return "", kind.New(kind.BackendUnavailable, "identity.Read", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	id := &Identity{}
	var err error
	if id.Vendor, err = get("sys_vendor"); err != nil {
		return nil, err
	}
	if id.Version, err = get("bios_version"); err != nil {
		return nil, err
	}
	if id.ReleaseDate, err = get("bios_date"); err != nil {
		return nil, err
	}
	if id.ProductName, err = get("product_name"); err != nil {
		return nil, err
	}
	if id.ProductFamily, err = get("product_family"); err != nil {
		return nil, err
	}
	if id.ProductVersion, err = get("product_version"); err != nil {
		return nil, err
	}
	return id, nil
}
