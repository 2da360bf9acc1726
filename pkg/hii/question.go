// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Resolves a question name to its backing (variable-store, offset, width)
// triple and performs the efivarfs read-modify-write, per spec.md §4.4.
// Name resolution is given a variation list by the caller (the spellings
// translator lives in pkg/spellings and is applied before this point, per
// the dispatcher -> spellings -> hii data flow in spec.md §2).

package hii

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

// DefaultLanguagePreference is the language order strings are resolved
// in: en-US first, then whatever else is available. Package-level var so
// tests can override it; no CLI flag, per spec.md §9's "deliberate
// simplification".
var DefaultLanguagePreference = []string{"en-US"}

// Match identifies the single question a name variation resolved to.
type Match struct {
	ListGUID uuid.UUID
	FormSet  *FormSet
	Form     *Form
	Question *Question
}

func (m *Match) location() kind.Location {
	return kind.Location{
		FormSet:  m.FormSet.GUID.String(),
		Form:     m.Form.FormID,
		Question: m.Question.QuestionID,
		Offset:   m.Question.Store.Offset,
	}
}

// FindQuestion tries each variation in order against every question's
// resolved prompt string across the whole database. The first variation
// with exactly one match wins; a variation matching more than one
// question is Ambiguous and resolution stops there without trying later
// variations, mirroring S5. A variation with zero matches falls through
// to the next one.
func FindQuestion(db *Database, variations []string, langPref []string) (*Match, error) {
	if len(langPref) == 0 {
		langPref = DefaultLanguagePreference
	}
	for _, variant := range variations {
		var matches []Match
		for _, list := range db.Lists {
			for _, fs := range list.FormSets {
				for _, form := range fs.Forms {
					for _, q := range form.Questions {
						text, ok := list.resolveString(langPref, q.Prompt)
						if !ok || text != variant {
							continue
						}
						matches = append(matches, Match{ListGUID: list.GUID, FormSet: fs, Form: form, Question: q})
					}
				}
			}
		}
		switch len(matches) {
		case 0:
			continue
		case 1:
			return &matches[0], nil
		default:
			locs := make([]kind.Location, len(matches))
			for i := range matches {
				locs[i] = matches[i].location()
			}
			return nil, kind.Ambiguousf("hii.FindQuestion", locs)
		}
	}
	return nil, kind.New(kind.NotFound, "hii.FindQuestion", fmt.Errorf("no variation matched any question"))
}

func findVarStore(fs *FormSet, id uint16) (VarStoreDecl, bool) {
	for _, d := range fs.VarStores {
		if d.VarStoreID == id {
			return d, true
		}
	}
	return VarStoreDecl{}, false
}

// ReadField extracts a question's current value from a var-store's raw
// bytes, which include the 4-byte attribute prefix that must be skipped.
func ReadField(raw []byte, store StoreRef, width int) (uint64, error) {
	if len(raw) < 4 {
		return 0, kind.New(kind.ParseError, "hii.ReadField", fmt.Errorf("var-store data too short: %d bytes", len(raw)))
	}
	body := raw[4:]
	if store.BitWidth > 0 {
		if int(store.Offset) >= len(body) {
			return 0, kind.New(kind.ParseError, "hii.ReadField",
				fmt.Errorf("bit offset %d exceeds store size %d", store.Offset, len(body)))
		}
		mask := uint64((1 << store.BitWidth) - 1)
		return (uint64(body[store.Offset]) >> store.BitOffset) & mask, nil
	}
	if int(store.Offset)+width > len(body) {
		return 0, kind.New(kind.ParseError, "hii.ReadField",
			fmt.Errorf("offset %d + width %d exceeds store size %d", store.Offset, width, len(body)))
	}
	return decodeUint(body[store.Offset:store.Offset+uint16(width)], width)
}

// WriteField returns a copy of raw with the question's field overwritten,
// preserving every other byte including the attribute prefix.
func WriteField(raw []byte, store StoreRef, width int, value uint64) ([]byte, error) {
	if len(raw) < 4 {
		return nil, kind.New(kind.ParseError, "hii.WriteField", fmt.Errorf("var-store data too short: %d bytes", len(raw)))
	}
	out := append([]byte(nil), raw...)
	body := out[4:]
	if store.BitWidth > 0 {
		if int(store.Offset) >= len(body) {
			return nil, kind.New(kind.ParseError, "hii.WriteField",
				fmt.Errorf("bit offset %d exceeds store size %d", store.Offset, len(body)))
		}
		mask := uint64((1 << store.BitWidth) - 1)
		b := body[store.Offset]
		b &^= byte(mask << store.BitOffset)
		b |= byte((value & mask) << store.BitOffset)
		body[store.Offset] = b
		return out, nil
	}
	if int(store.Offset)+width > len(body) {
		return nil, kind.New(kind.ParseError, "hii.WriteField",
			fmt.Errorf("offset %d + width %d exceeds store size %d", store.Offset, width, len(body)))
	}
	encodeUint(body[store.Offset:store.Offset+uint16(width)], width, value)
	return out, nil
}

func decodeUint(b []byte, width int) (uint64, error) {
	switch width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return binary.LittleEndian.Uint64(b), nil
	}
	return 0, kind.New(kind.ParseError, "hii.decodeUint", fmt.Errorf("unsupported width %d", width))
}

func encodeUint(b []byte, width int, value uint64) {
	switch width {
	case 1:
		b[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(value))
	case 8:
		binary.LittleEndian.PutUint64(b, value)
	}
}

// VarStoreReaderWriter is the subset of *VarStoreIO that GetAnswer and
// SetAnswer need; tests substitute a fake backed by an in-memory buffer
// instead of a real efivarfs mount.
type VarStoreReaderWriter interface {
	ReadRaw(decl VarStoreDecl) ([]byte, error)
	WriteRaw(decl VarStoreDecl, data []byte) error
}

// Answer is the result of GetAnswer/SetAnswer.
type Answer struct {
	Value    uint64
	Text     string
	Options  []string
	Location kind.Location
}

func widthOf(q *Question) int {
	if q.Width <= 0 {
		return 1
	}
	return q.Width
}

// GetAnswer resolves variations to a question, reads its current value,
// and for OneOf questions maps the value to option text.
func GetAnswer(db *Database, io VarStoreReaderWriter, variations []string, langPref []string) (*Answer, error) {
	m, err := FindQuestion(db, variations, langPref)
	if err != nil {
		return nil, err
	}
	decl, ok := findVarStore(m.FormSet, m.Question.Store.VarStoreID)
	if !ok {
		return nil, kind.New(kind.ParseError, "hii.GetAnswer",
			fmt.Errorf("var-store %d not declared in form-set %s", m.Question.Store.VarStoreID, m.FormSet.GUID))
	}
	raw, err := io.ReadRaw(decl)
	if err != nil {
		return nil, err
	}
	width := widthOf(m.Question)
	val, err := ReadField(raw, m.Question.Store, width)
	if err != nil {
		return nil, err
	}

	ans := &Answer{Value: val, Location: m.location()}
	list := db.listFor(m.ListGUID)
	if m.Question.Kind == KindOneOf {
		for _, opt := range m.Question.Options {
			text, _ := list.resolveString(langPref, opt.Text)
			ans.Options = append(ans.Options, text)
			if opt.Value == val {
				ans.Text = text
			}
		}
	} else {
		ans.Text = strconv.FormatUint(val, 10)
	}
	return ans, nil
}

// SetAnswer resolves variations to a question, maps answerText to a
// numeric value, performs read-modify-write against the backing
// var-store, and verifies the write per spec.md §4.4 and §4.9.
func SetAnswer(db *Database, io VarStoreReaderWriter, variations []string, langPref []string, answerText string) (*Answer, error) {
	m, err := FindQuestion(db, variations, langPref)
	if err != nil {
		return nil, err
	}
	decl, ok := findVarStore(m.FormSet, m.Question.Store.VarStoreID)
	if !ok {
		return nil, kind.New(kind.ParseError, "hii.SetAnswer",
			fmt.Errorf("var-store %d not declared in form-set %s", m.Question.Store.VarStoreID, m.FormSet.GUID))
	}

	list := db.listFor(m.ListGUID)
	var newVal uint64
	switch m.Question.Kind {
	case KindOneOf:
		found := false
		for _, opt := range m.Question.Options {
			text, _ := list.resolveString(langPref, opt.Text)
			if text == answerText {
				newVal, found = opt.Value, true
				break
			}
		}
		if !found {
			return nil, kind.New(kind.InvalidAnswer, "hii.SetAnswer",
				fmt.Errorf("%q is not one of this question's options", answerText))
		}
	case KindCheckbox:
		switch answerText {
		case "true", "1", "Enabled", "enabled":
			newVal = 1
		case "false", "0", "Disabled", "disabled":
			newVal = 0
		default:
			return nil, kind.New(kind.InvalidAnswer, "hii.SetAnswer",
				fmt.Errorf("%q is not a valid checkbox answer", answerText))
		}
	default:
		parsed, err := strconv.ParseUint(answerText, 10, 64)
		if err != nil {
			return nil, kind.New(kind.InvalidAnswer, "hii.SetAnswer", fmt.Errorf("%q is not numeric: %w", answerText, err))
		}
		newVal = parsed
	}

	width := widthOf(m.Question)
	raw, err := io.ReadRaw(decl)
	if err != nil {
		return nil, err
	}
	updated, err := WriteField(raw, m.Question.Store, width, newVal)
	if err != nil {
		return nil, err
	}
	if err := io.WriteRaw(decl, updated); err != nil {
		return nil, err
	}

	verify, err := io.ReadRaw(decl)
	if err != nil {
		return nil, err
	}
	got, err := ReadField(verify, m.Question.Store, width)
	if err != nil {
		return nil, err
	}
	if got != newVal {
		return nil, kind.New(kind.NotModified, "hii.SetAnswer",
			fmt.Errorf("verify read-back %d != written %d", got, newVal))
	}

	return &Answer{Value: newVal, Text: answerText, Location: m.location()}, nil
}
