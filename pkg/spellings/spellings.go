// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Translates a canonical setting name into the per-backend variation list
// and answer-value replacement tables a platform actually exposes, per
// spec.md §4.5. Pure data plus three small accessors: it never touches a
// device or the HiiDB.

package spellings

import (
	"sort"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

// Backend names a target for the translation, mirroring the tagged
// variant {Hii, Ilo} of spec.md §9.
type Backend int

const (
	HII Backend = iota
	ILO
)

// HiiSpelling is the HII side of one canonical entry: the variations to
// try, in order, and the canonical-answer -> raw-variant replacement
// lists tried in order for each canonical answer.
type HiiSpelling struct {
	Variations         []string
	AnswerReplacements map[string][]string
}

// IloSpelling is the iLO side of one canonical entry: a single Redfish
// attribute name and a canonical-answer -> single raw-value map.
type IloSpelling struct {
	Question           string
	AnswerReplacements map[string]string
}

// Entry is one canonical setting's full translation record.
type Entry struct {
	Hii *HiiSpelling
	Ilo *IloSpelling
}

// Table is the canonical-name -> Entry translation table.
type Table struct {
	entries map[string]Entry
}

func NewTable(entries map[string]Entry) *Table {
	return &Table{entries: entries}
}

func (t *Table) lookup(canonical string) (Entry, bool) {
	e, ok := t.entries[canonical]
	return e, ok
}

// Names returns every canonical name the table has an entry for, sorted,
// for callers that need to enumerate the known settings (the CLI's
// openmetrics output over `identify`).
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsTranslated reports whether canonical has an entry in the table at
// all, so callers can report whether a name/answer passed through the
// table or was used verbatim.
func (t *Table) IsTranslated(canonical string) bool {
	_, ok := t.lookup(canonical)
	return ok
}

// Variations returns the ordered list of spellings to try for canonical on
// the given backend. If canonical has no table entry, it is returned
// as its own sole variation, so an undocumented name can still be tried
// verbatim (the --variation escape hatch of SPEC_FULL.md §6 builds on
// this by resolving names through an empty Table).
func (t *Table) Variations(canonical string, backend Backend) []string {
	e, ok := t.lookup(canonical)
	if !ok {
		return []string{canonical}
	}
	switch backend {
	case HII:
		if e.Hii == nil || len(e.Hii.Variations) == 0 {
			return []string{canonical}
		}
		return e.Hii.Variations
	case ILO:
		if e.Ilo == nil || e.Ilo.Question == "" {
			return []string{canonical}
		}
		return []string{e.Ilo.Question}
	}
	return []string{canonical}
}

// TranslateAnswerForward maps a canonical answer to the raw variants to
// try, in declaration order, for the given backend's question. If
// canonical has no replacement entry, the canonical text itself is the
// sole candidate.
func (t *Table) TranslateAnswerForward(canonical, answer string, backend Backend) []string {
	e, ok := t.lookup(canonical)
	if !ok {
		return []string{answer}
	}
	switch backend {
	case HII:
		if e.Hii == nil {
			return []string{answer}
		}
		if raws, ok := e.Hii.AnswerReplacements[answer]; ok && len(raws) > 0 {
			return raws
		}
		return []string{answer}
	case ILO:
		if e.Ilo == nil {
			return []string{answer}
		}
		if raw, ok := e.Ilo.AnswerReplacements[answer]; ok {
			return []string{raw}
		}
		return []string{answer}
	}
	return []string{answer}
}

// TranslateAnswerReverse maps a raw backend answer back to its canonical
// spelling, for presenting `get` results consistently regardless of
// backend. If no reverse mapping exists, raw is returned unchanged.
func (t *Table) TranslateAnswerReverse(canonical, raw string, backend Backend) string {
	e, ok := t.lookup(canonical)
	if !ok {
		return raw
	}
	switch backend {
	case HII:
		if e.Hii == nil {
			return raw
		}
		for canonicalAnswer, variants := range e.Hii.AnswerReplacements {
			for _, v := range variants {
				if v == raw {
					return canonicalAnswer
				}
			}
		}
	case ILO:
		if e.Ilo == nil {
			return raw
		}
		for canonicalAnswer, variant := range e.Ilo.AnswerReplacements {
			if variant == raw {
				return canonicalAnswer
			}
		}
	}
	return raw
}

// Resolve validates that canonical has at least one usable variation on
// backend, returning Unsupported if the table declares the entry exists
// but has nothing for that backend (e.g. a HII-only setting requested on
// ILO).
func (t *Table) Resolve(canonical string, backend Backend) ([]string, error) {
	e, ok := t.lookup(canonical)
	if !ok {
		return []string{canonical}, nil
	}
	switch backend {
	case HII:
		if e.Hii == nil {
			return nil, kind.New(kind.Unsupported, "spellings.Resolve", errUnsupportedOnBackend(canonical, "hii"))
		}
	case ILO:
		if e.Ilo == nil {
			return nil, kind.New(kind.Unsupported, "spellings.Resolve", errUnsupportedOnBackend(canonical, "ilo"))
		}
	}
	return t.Variations(canonical, backend), nil
}

type unsupportedErr struct {
	canonical, backend string
}

func (e *unsupportedErr) Error() string {
	return e.canonical + " has no " + e.backend + " variation in the spellings table"
}

func errUnsupportedOnBackend(canonical, backend string) error {
	return &unsupportedErr{canonical: canonical, backend: backend}
}
