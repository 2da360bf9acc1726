// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// BlobStore2 packet framing, per spec.md §6's wire format: byte 0-1
// magic/command, byte 2-3 little-endian sequence number, byte 4-7
// subcommand/flags, byte 8-11 error code (zero on a request), remainder
// body.

package blobstore

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

const headerSize = 12

// Packet is one BlobStore2 request or response frame.
type Packet struct {
	MagicCommand    uint16
	Sequence        uint16
	SubcommandFlags uint32
	ErrorCode       uint32
	Body            []byte
}

func (p *Packet) Marshal() []byte {
	out := make([]byte, headerSize+len(p.Body))
	binary.LittleEndian.PutUint16(out[0:2], p.MagicCommand)
	binary.LittleEndian.PutUint16(out[2:4], p.Sequence)
	binary.LittleEndian.PutUint32(out[4:8], p.SubcommandFlags)
	binary.LittleEndian.PutUint32(out[8:12], p.ErrorCode)
	copy(out[12:], p.Body)
	return out
}

// UnmarshalPacket parses a response frame out of an ioctl receive buffer.
// The buffer is typically larger than the actual response; trailing
// zero bytes beyond the declared body are not trimmed here, since the
// BlobStore2 wire format carries no explicit body-length field of its
// own — callers that need an exact body size get it from the higher-level
// blob operation (get/list), which knows the declared length out of band.
func UnmarshalPacket(raw []byte) (*Packet, error) {
	if len(raw) < headerSize {
		return nil, kind.New(kind.ParseError, "blobstore.UnmarshalPacket",
			fmt.Errorf("packet too short: %d bytes", len(raw)))
	}
	return &Packet{
		MagicCommand:    binary.LittleEndian.Uint16(raw[0:2]),
		Sequence:        binary.LittleEndian.Uint16(raw[2:4]),
		SubcommandFlags: binary.LittleEndian.Uint32(raw[4:8]),
		ErrorCode:       binary.LittleEndian.Uint32(raw[8:12]),
		Body:            append([]byte(nil), raw[headerSize:]...),
	}, nil
}

// NewSequence generates a fresh 16-bit sequence number for one exchange.
func NewSequence() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, kind.New(kind.TransportError, "blobstore.NewSequence", err)
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

// RandomKey generates a random alphanumeric key for the volatile
// namespace, so concurrent invocations of the tool do not collide, per
// spec.md §4.6.
func RandomKey(n int) (string, error) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", kind.New(kind.TransportError, "blobstore.RandomKey", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}
