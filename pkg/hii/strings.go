// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Decodes EFI_HII_PACKAGE_STRINGS packages: a language tag followed by a
// stream of String Information Blocks (SIBT), each tagged with a one-byte
// type. See spec.md §4.2 for the tag table this mirrors.

package hii

import (
	"fmt"
	"github.com/google/uuid"

	"github.com/linuxboot/uefisettings/pkg/byteview"
	"github.com/linuxboot/uefisettings/pkg/kind"
)

// SIBT tags, per the UEFI HII string-package encoding.
const (
	sibtEnd             = 0x00
	sibtStringSCSU      = 0x10
	sibtStringSCSUFont  = 0x11
	sibtStringsSCSU     = 0x12
	sibtStringsSCSUFont = 0x13
	sibtStringUCS2      = 0x14
	sibtStringUCS2Font  = 0x15
	sibtStringsUCS2     = 0x16
	sibtStringsUCS2Font = 0x17
	sibtDuplicate       = 0x20
	sibtSkip2           = 0x21
	sibtSkip1           = 0x22
	sibtExt1            = 0x30
	sibtExt2            = 0x31
	sibtExt4            = 0x32
	sibtFont            = 0x40
)

// DecodeStringPackage parses the body of a Strings package (everything
// after the 4-byte package header) into an id -> string map. Unknown tags
// whose length cannot be recovered stop decoding and mark the result
// Partial, per spec.md §4.2 rather than returning an error: parse errors
// within a single package are localized (spec.md §7 Propagation).
func DecodeStringPackage(listGUID uuid.UUID, body []byte) (*StringPackage, error) {
	v := byteview.New(body)

	lang, err := v.CString()
	if err != nil {
		return nil, kind.New(kind.ParseError, "hii.DecodeStringPackage", fmt.Errorf("language tag: %w", err))
	}

	sp := &StringPackage{
		PackageListGUID: listGUID,
		Language:        lang,
		Strings:         map[uint32]string{},
	}

	var id uint32 = 1
	for {
		if v.AtEnd() {
			sp.Partial = true
			return sp, nil
		}
		tag, err := v.U8()
		if err != nil {
			sp.Partial = true
			return sp, nil
		}

		switch tag {
		case sibtEnd:
			return sp, nil

		case sibtStringSCSU, sibtStringSCSUFont:
			if tag == sibtStringSCSUFont {
				if _, err := v.U8(); err != nil {
					sp.Partial = true
					return sp, nil
				}
			}
			s, err := readSCSUCString(v)
			if err != nil {
				sp.Partial = true
				return sp, nil
			}
			sp.Strings[id] = s
			id++

		case sibtStringsSCSU, sibtStringsSCSUFont:
			if tag == sibtStringsSCSUFont {
				if _, err := v.U8(); err != nil {
					sp.Partial = true
					return sp, nil
				}
			}
			count, err := v.U8()
			if err != nil {
				sp.Partial = true
				return sp, nil
			}
			for i := 0; i < int(count); i++ {
				s, err := readSCSUCString(v)
				if err != nil {
					sp.Partial = true
					return sp, nil
				}
				sp.Strings[id] = s
				id++
			}

		case sibtStringUCS2, sibtStringUCS2Font:
			if tag == sibtStringUCS2Font {
				if _, err := v.U8(); err != nil {
					sp.Partial = true
					return sp, nil
				}
			}
			s, err := v.UCS2CString()
			if err != nil {
				sp.Partial = true
				return sp, nil
			}
			sp.Strings[id] = s
			id++

		case sibtStringsUCS2, sibtStringsUCS2Font:
			if tag == sibtStringsUCS2Font {
				if _, err := v.U8(); err != nil {
					sp.Partial = true
					return sp, nil
				}
			}
			count, err := v.U8()
			if err != nil {
				sp.Partial = true
				return sp, nil
			}
			for i := 0; i < int(count); i++ {
				s, err := v.UCS2CString()
				if err != nil {
					sp.Partial = true
					return sp, nil
				}
				sp.Strings[id] = s
				id++
			}

		case sibtDuplicate:
			ref, err := v.U16()
			if err != nil {
				sp.Partial = true
				return sp, nil
			}
			sp.Strings[id] = sp.Strings[uint32(ref)]
			id++

		case sibtSkip1:
			n, err := v.U8()
			if err != nil {
				sp.Partial = true
				return sp, nil
			}
			id += uint32(n)

		case sibtSkip2:
			n, err := v.U16()
			if err != nil {
				sp.Partial = true
				return sp, nil
			}
			id += uint32(n)

		case sibtExt1:
			if _, err := v.U8(); err != nil { // ext sub-op
				sp.Partial = true
				return sp, nil
			}
			length, err := v.U8()
			if err != nil || int(length) < 3 {
				sp.Partial = true
				return sp, nil
			}
			if err := v.Skip(int(length) - 3); err != nil {
				sp.Partial = true
				return sp, nil
			}

		case sibtExt2:
			if _, err := v.U8(); err != nil {
				sp.Partial = true
				return sp, nil
			}
			length, err := v.U16()
			if err != nil || int(length) < 4 {
				sp.Partial = true
				return sp, nil
			}
			if err := v.Skip(int(length) - 4); err != nil {
				sp.Partial = true
				return sp, nil
			}

		case sibtExt4:
			if _, err := v.U8(); err != nil {
				sp.Partial = true
				return sp, nil
			}
			length, err := v.U32()
			if err != nil || length < 6 {
				sp.Partial = true
				return sp, nil
			}
			if err := v.Skip(int(length) - 6); err != nil {
				sp.Partial = true
				return sp, nil
			}

		default:
			// sibtFont and any other unrecognized tag have no recoverable
			// length: the rest of the package cannot be located reliably.
			sp.Partial = true
			return sp, nil
		}
	}
}

// readSCSUCString reads a null-terminated SCSU string. Full SCSU
// decompression is out of scope (spec.md §1: "only the opcodes and
// string-package encodings actually required" are implemented); BIOS
// string tables observed in practice stick to the ASCII subset of SCSU,
// so bytes are passed through unchanged up to the terminator.
func readSCSUCString(v *byteview.View) (string, error) {
	return v.CString()
}
