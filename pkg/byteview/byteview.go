// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Implements a cursor over an immutable byte slice with bounded reads for
// fixed-width integers, GUIDs, and length-prefixed strings. Used by the HiiDB
// string package decoder and IFR opcode parser to walk a borrowed buffer
// without copying it.

package byteview

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/google/uuid"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

// View is a read-only cursor over a borrowed byte slice. It never outlives
// its backing buffer and never copies it except where the result must be an
// owned value (strings, GUIDs).
type View struct {
	b   []byte
	off int
}

func New(b []byte) *View {
	return &View{b: b}
}

func (v *View) Offset() int   { return v.off }
func (v *View) Len() int      { return len(v.b) }
func (v *View) Remaining() int { return len(v.b) - v.off }
func (v *View) AtEnd() bool   { return v.off >= len(v.b) }

// Rest returns the unconsumed tail of the buffer without advancing.
func (v *View) Rest() []byte {
	return v.b[v.off:]
}

func (v *View) errf(op string, n int) error {
	return kind.New(kind.ParseError, op,
		fmt.Errorf("need %d bytes at offset %d, have %d", n, v.off, len(v.b)-v.off))
}

func (v *View) Seek(off int) error {
	if off < 0 || off > len(v.b) {
		return kind.New(kind.ParseError, "byteview.Seek", fmt.Errorf("offset %d out of range [0,%d]", off, len(v.b)))
	}
	v.off = off
	return nil
}

func (v *View) Skip(n int) error {
	if n < 0 || v.off+n > len(v.b) {
		return v.errf("byteview.Skip", n)
	}
	v.off += n
	return nil
}

// Bytes returns a borrowed slice of the next n bytes and advances the cursor.
func (v *View) Bytes(n int) ([]byte, error) {
	if n < 0 || v.off+n > len(v.b) {
		return nil, v.errf("byteview.Bytes", n)
	}
	out := v.b[v.off : v.off+n]
	v.off += n
	return out, nil
}

// Clone returns an independent owned copy of the next n bytes and advances
// the cursor.
func (v *View) Clone(n int) ([]byte, error) {
	b, err := v.Bytes(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (v *View) U8() (uint8, error) {
	b, err := v.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (v *View) U16() (uint16, error) {
	b, err := v.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (v *View) U32() (uint32, error) {
	b, err := v.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (v *View) U64() (uint64, error) {
	b, err := v.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Uint reads a little-endian unsigned integer of the given width in bytes
// (1, 2, 4, or 8), as needed for IFR/HII fields whose width is data-driven.
func (v *View) Uint(width int) (uint64, error) {
	switch width {
	case 1:
		x, err := v.U8()
		return uint64(x), err
	case 2:
		x, err := v.U16()
		return uint64(x), err
	case 4:
		x, err := v.U32()
		return uint64(x), err
	case 8:
		return v.U64()
	default:
		return 0, kind.New(kind.ParseError, "byteview.Uint", fmt.Errorf("unsupported width %d", width))
	}
}

// GUID reads a 16-byte UEFI GUID (first three fields little-endian, final
// 8-byte node/clock-seq field raw) and returns it as an RFC 4122 uuid.UUID.
func (v *View) GUID() (uuid.UUID, error) {
	b, err := v.Bytes(16)
	if err != nil {
		return uuid.UUID{}, err
	}
	var out uuid.UUID
	binary.BigEndian.PutUint32(out[0:4], binary.LittleEndian.Uint32(b[0:4]))
	binary.BigEndian.PutUint16(out[4:6], binary.LittleEndian.Uint16(b[4:6]))
	binary.BigEndian.PutUint16(out[6:8], binary.LittleEndian.Uint16(b[6:8]))
	copy(out[8:16], b[8:16])
	return out, nil
}

// CString reads a null-terminated ASCII string, consuming the terminator.
func (v *View) CString() (string, error) {
	start := v.off
	for v.off < len(v.b) {
		if v.b[v.off] == 0 {
			s := string(v.b[start:v.off])
			v.off++
			return s, nil
		}
		v.off++
	}
	v.off = start
	return "", kind.New(kind.ParseError, "byteview.CString", fmt.Errorf("unterminated string at offset %d", start))
}

// UCS2String reads n UTF-16LE code units (2*n bytes) and decodes them to a
// Go string, stopping at an embedded NUL if one is present.
func (v *View) UCS2String(n int) (string, error) {
	b, err := v.Bytes(2 * n)
	if err != nil {
		return "", err
	}
	units := make([]uint16, n)
	for i := 0; i < n; i++ {
		units[i] = binary.LittleEndian.Uint16(b[2*i : 2*i+2])
	}
	for i, u := range units {
		if u == 0 {
			units = units[:i]
			break
		}
	}
	return string(utf16.Decode(units)), nil
}

// UCS2CString reads a null-terminated UTF-16LE string of unknown length.
func (v *View) UCS2CString() (string, error) {
	start := v.off
	var units []uint16
	for {
		if v.off+2 > len(v.b) {
			v.off = start
			return "", kind.New(kind.ParseError, "byteview.UCS2CString", fmt.Errorf("unterminated UCS2 string at offset %d", start))
		}
		u := binary.LittleEndian.Uint16(v.b[v.off : v.off+2])
		v.off += 2
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units)), nil
}
