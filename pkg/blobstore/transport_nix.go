// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package blobstore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/dswarbrick/smart/ioctl"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

const hpiloDevice = "/dev/hpilo/d0ccb2"

// packetExchangeIoctl is the BlobStore2 ioctl request code for exchanging
// a packet with the iLO management processor over /dev/hpilo. It is the
// only entry point into BlobStore2: every put/get/delete/list operation
// is a packet_exchange underneath.
var packetExchangeIoctl = ioctl.Iowr('h', 0x01, unsafe.Sizeof(hpiloCcb{}))

// hpiloCcb is the command-control-block layout the /dev/hpilo driver
// expects its ioctl argument in: pointers to the send and receive
// buffers plus their lengths, the same shape SCSI generic I/O uses to
// pass a command descriptor block by pointer rather than by value.
type hpiloCcb struct {
	sendBuf uint64
	sendLen uint32
	recvBuf uint64
	recvLen uint32
}

// hpiloLibrary is the vendor shared library handle. /dev/hpilo is not a
// normal multi-client device: the driver behind it serializes ioctls
// against one internal session, so this process must hold exactly one
// open descriptor and funnel every packet_exchange through it one at a
// time, the same way a dlopen'd, non-reentrant vendor library would need
// its calls serialized by its one caller. mu is that serialization point.
type hpiloLibrary struct {
	mu sync.Mutex
	f  *os.File
}

// library, libraryOnce and libraryErr form the once-cell: the handle is
// resolved at most once per process, lazily, on the first Transport that
// actually needs it. There is no explicit teardown call anywhere in this
// package; the descriptor is released when the process exits and the
// kernel reclaims every open file, which is exactly the "closed on
// process exit" lifetime the vendor library has.
var (
	libraryOnce sync.Once
	library     *hpiloLibrary
	libraryErr  error
)

// openHpiloLibrary resolves the process-wide vendor library handle,
// opening /dev/hpilo on first use and handing out the same handle to
// every later caller in this process.
func openHpiloLibrary() (*hpiloLibrary, error) {
	libraryOnce.Do(func() {
		f, err := os.OpenFile(hpiloDevice, os.O_RDWR, 0)
		if err != nil {
			switch {
			case os.IsNotExist(err):
				libraryErr = kind.New(kind.BackendUnavailable, "blobstore.openHpiloLibrary", err)
			case os.IsPermission(err):
				libraryErr = kind.New(kind.Permission, "blobstore.openHpiloLibrary", err)
			default:
				libraryErr = kind.New(kind.TransportError, "blobstore.openHpiloLibrary", err)
			}
			return
		}
		library = &hpiloLibrary{f: f}
	})
	return library, libraryErr
}

// hpiloDeviceHandle is a Transport's handle onto the shared library. It
// carries no state of its own besides the back-reference, so a
// Transport's Close does not tear down the process-wide session other
// Transports may still be using.
type hpiloDeviceHandle struct {
	lib *hpiloLibrary
}

func openDevice() (device, error) {
	lib, err := openHpiloLibrary()
	if err != nil {
		return nil, err
	}
	return &hpiloDeviceHandle{lib: lib}, nil
}

func (h *hpiloDeviceHandle) exchange(ctx context.Context, req []byte, recvLen int) ([]byte, error) {
	h.lib.mu.Lock()
	defer h.lib.mu.Unlock()

	recv := make([]byte, recvLen)
	ccb := hpiloCcb{
		sendBuf: uint64(uintptr(unsafe.Pointer(&req[0]))),
		sendLen: uint32(len(req)),
		recvBuf: uint64(uintptr(unsafe.Pointer(&recv[0]))),
		recvLen: uint32(len(recv)),
	}
	if err := ioctl.Ioctl(h.lib.f.Fd(), packetExchangeIoctl, uintptr(unsafe.Pointer(&ccb))); err != nil {
		return nil, fmt.Errorf("packet_exchange ioctl: %w", err)
	}
	return recv, nil
}

// close is a no-op. The vendor library handle is process-wide and
// outlives any single Transport; it is released by the kernel at
// process exit, not by the last Transport to call Close.
func (h *hpiloDeviceHandle) close() error {
	return nil
}
