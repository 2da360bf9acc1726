// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dispatch

import (
	"context"

	"github.com/linuxboot/uefisettings/pkg/blobstore"
	"github.com/linuxboot/uefisettings/pkg/hii"
	"github.com/linuxboot/uefisettings/pkg/ilo"
)

// DefaultHiiOpener locates and parses the HiiDB using the default
// efivarfs/physical-memory paths, for wiring into Dispatcher.OpenHii.
func DefaultHiiOpener() func(context.Context) (*HiiSession, error) {
	loc := hii.NewLocator()
	return func(ctx context.Context) (*HiiSession, error) {
		raw, err := loc.Locate(ctx)
		if err != nil {
			return nil, err
		}
		db, err := hii.ParseDatabase(raw)
		if err != nil {
			return nil, err
		}
		return &HiiSession{DB: db, IO: hii.NewVarStoreIO()}, nil
	}
}

// DefaultIloOpener opens /dev/hpilo and wraps it in a Redfish adapter,
// for wiring into Dispatcher.OpenIlo.
func DefaultIloOpener() func(context.Context) (*ilo.Adapter, error) {
	return func(ctx context.Context) (*ilo.Adapter, error) {
		tr, err := blobstore.Create(ctx)
		if err != nil {
			return nil, err
		}
		return ilo.New(tr), nil
	}
}
