// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Walks a raw HiiDB image into its package-lists and decodes each package,
// localizing decode failures to the package that produced them per
// spec.md §7 Propagation ("parse errors within a single package are
// localized... rather than aborting the whole DB").

package hii

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/linuxboot/uefisettings/pkg/byteview"
	"github.com/linuxboot/uefisettings/pkg/kind"
)

// ParsedList is one decoded package-list: its Forms packages' FormSets
// plus its Strings packages indexed by language.
type ParsedList struct {
	GUID     uuid.UUID
	FormSets []*FormSet

	// Strings maps language -> string-id -> text, merged across every
	// Strings package in the list that declares that language.
	Strings map[string]map[uint32]string

	// Warnings records packages that decoded partially or not at all; the
	// list is still usable, just incomplete for those packages.
	Warnings []string
}

// Database is a fully parsed HiiDB image.
type Database struct {
	Lists []*ParsedList
}

// listFor returns the ParsedList with the given package-list GUID.
func (db *Database) listFor(g uuid.UUID) *ParsedList {
	for _, l := range db.Lists {
		if l.GUID == g {
			return l
		}
	}
	return nil
}

// ResolveString looks up a string id under the list, preferring langPref
// in order and falling back to the first available language.
func (l *ParsedList) ResolveString(langPref []string, id uint16) (string, bool) {
	return l.resolveString(langPref, id)
}

// resolveString looks up a string id under the given list, preferring
// langPref in order (DefaultLanguagePreference when langPref is empty) and
// falling back to the first available language (sorted for determinism),
// per spec.md §4.4.
func (l *ParsedList) resolveString(langPref []string, id uint16) (string, bool) {
	if id == 0 {
		return "", false
	}
	if len(langPref) == 0 {
		langPref = DefaultLanguagePreference
	}
	for _, lang := range langPref {
		if m, ok := l.Strings[lang]; ok {
			if s, ok := m[uint32(id)]; ok {
				return s, true
			}
		}
	}
	var langs []string
	for lang := range l.Strings {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		if s, ok := l.Strings[lang][uint32(id)]; ok {
			return s, true
		}
	}
	return "", false
}

// ParseDatabase walks the raw HiiDB image (as copied out by Locator.Locate
// or read back from an extracted file) into a Database. Package-list
// headers are GUID(16)+Length(4); a zero-length header is the end-of-image
// sentinel. Package headers are a 4-byte little-endian word whose low 24
// bits are the length (header included) and whose high byte is the kind.
func ParseDatabase(raw []byte) (*Database, error) {
	v := byteview.New(raw)
	db := &Database{}

	for v.Remaining() >= 20 {
		listStart := v.Offset()
		g, err := v.GUID()
		if err != nil {
			return db, kind.New(kind.ParseError, "hii.ParseDatabase", fmt.Errorf("package-list GUID at %d: %w", listStart, err))
		}
		listLen, err := v.U32()
		if err != nil {
			return db, kind.New(kind.ParseError, "hii.ParseDatabase", fmt.Errorf("package-list length at %d: %w", listStart, err))
		}
		if listLen == 0 {
			break
		}
		if int(listLen) < 20 || listStart+int(listLen) > v.Len() {
			return db, kind.New(kind.ParseError, "hii.ParseDatabase",
				fmt.Errorf("package-list length %d invalid at offset %d", listLen, listStart))
		}
		listEnd := listStart + int(listLen)

		pl := &ParsedList{GUID: g, Strings: map[string]map[uint32]string{}}

		for v.Offset() < listEnd {
			pkgStart := v.Offset()
			word, err := v.U32()
			if err != nil {
				pl.Warnings = append(pl.Warnings, fmt.Sprintf("package header at %d: %v", pkgStart, err))
				break
			}
			pkgLen := int(word & 0x00FFFFFF)
			pkgKind := PackageKind(word >> 24)
			if pkgLen < 4 || pkgStart+pkgLen > listEnd {
				pl.Warnings = append(pl.Warnings, fmt.Sprintf("package at %d has invalid length %d", pkgStart, pkgLen))
				break
			}
			body := raw[pkgStart+4 : pkgStart+pkgLen]

			switch pkgKind {
			case PackageStrings:
				sp, err := DecodeStringPackage(g, body)
				if err != nil {
					pl.Warnings = append(pl.Warnings, fmt.Sprintf("strings package at %d: %v", pkgStart, err))
				} else {
					if sp.Partial {
						pl.Warnings = append(pl.Warnings, fmt.Sprintf("strings package at %d decoded partially", pkgStart))
					}
					if pl.Strings[sp.Language] == nil {
						pl.Strings[sp.Language] = map[uint32]string{}
					}
					for id, s := range sp.Strings {
						pl.Strings[sp.Language][id] = s
					}
				}

			case PackageForms:
				tree, err := ParseOpcodes(body)
				if err != nil {
					pl.Warnings = append(pl.Warnings, fmt.Sprintf("forms package at %d: %v", pkgStart, err))
				}
				pl.FormSets = append(pl.FormSets, tree.FormSets...)
			}

			if err := v.Seek(pkgStart + pkgLen); err != nil {
				pl.Warnings = append(pl.Warnings, fmt.Sprintf("seek past package at %d: %v", pkgStart, err))
				break
			}
		}

		db.Lists = append(db.Lists, pl)
		if err := v.Seek(listEnd); err != nil {
			return db, kind.New(kind.ParseError, "hii.ParseDatabase", fmt.Errorf("seek past package-list at %d: %w", listStart, err))
		}
	}

	return db, nil
}
