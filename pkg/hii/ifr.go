// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Parses an IFR (Internal Forms Representation) opcode stream into a
// forest of FormSets/Forms/Questions. See spec.md §4.3: each opcode is a
// one-byte code plus a one-byte header (low 7 bits = length including the
// 2-byte header, top bit = scope-flag) plus payload. Nesting is tracked
// with an explicit stack, not recursion, so arbitrarily deep scope nesting
// never grows the Go call stack.

package hii

import (
	"fmt"

	"github.com/linuxboot/uefisettings/pkg/byteview"
	"github.com/linuxboot/uefisettings/pkg/kind"
)

// Opcode is the one-byte IFR opcode tag.
type Opcode uint8

const (
	OpForm              Opcode = 0x01
	OpSubtitle          Opcode = 0x02
	OpText              Opcode = 0x03
	OpImage             Opcode = 0x04
	OpOneOf             Opcode = 0x05
	OpCheckBox          Opcode = 0x06
	OpNumeric           Opcode = 0x07
	OpPassword          Opcode = 0x08
	OpOneOfOption       Opcode = 0x09
	OpSuppressIf        Opcode = 0x0A
	OpAction            Opcode = 0x0C
	OpFormSet           Opcode = 0x0E
	OpRef               Opcode = 0x0F
	OpGrayOutIf         Opcode = 0x19
	OpDate              Opcode = 0x1A
	OpTime              Opcode = 0x1B
	OpString            Opcode = 0x1C
	OpDisableIf         Opcode = 0x1E
	OpOrderedList       Opcode = 0x23
	OpVarStore          Opcode = 0x24
	OpVarStoreNameValue Opcode = 0x25
	OpVarStoreEfi       Opcode = 0x26
	OpEnd               Opcode = 0x29
	OpDefault           Opcode = 0x5B
	OpDefaultStore      Opcode = 0x5C
	OpGuid              Opcode = 0x5F
)

// isContainer reports whether op is one of the scope-opening opcodes this
// parser gives a dedicated frame (Form, FormSet, OneOf, OrderedList and the
// three conditions). Any other opcode whose scope bit is set gets a
// placeholder frame, so that every OpEnd still pops the frame it closes.
func isContainer(op Opcode) bool {
	switch op {
	case OpFormSet, OpForm, OpOneOf, OpOrderedList, OpSuppressIf, OpGrayOutIf, OpDisableIf:
		return true
	}
	return false
}

type frameKind int

const (
	frameFormSet frameKind = iota
	frameForm
	frameOneOf
	frameOrderedList
	frameCondition
)

type frame struct {
	kind     frameKind
	formSet  *FormSet
	form     *Form
	question *Question // for OneOf/OrderedList, the question being built
	cond     *Condition
}

// ParseOpcodes decodes the opcode stream of a Forms package body into a
// FormTree. Unknown opcodes are retained as opaque UnknownNode leaves
// attached to the nearest enclosing FormSet (or dropped if none is open
// yet) so that scope nesting is never corrupted, per spec.md §4.3 and
// testable property 7.
func ParseOpcodes(body []byte) (*FormTree, error) {
	v := byteview.New(body)
	tree := &FormTree{}
	var stack []*frame

	currentFormSet := func() *FormSet {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].kind == frameFormSet {
				return stack[i].formSet
			}
		}
		return nil
	}
	currentForm := func() *Form {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].kind == frameForm {
				return stack[i].form
			}
		}
		return nil
	}
	currentQuestion := func() *Question {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].kind == frameOneOf || stack[i].kind == frameOrderedList {
				return stack[i].question
			}
		}
		return nil
	}
	attachCondition := func(c Condition) {
		if q := currentQuestion(); q != nil {
			q.Conditions = append(q.Conditions, c)
			return
		}
		if fs := currentFormSet(); fs != nil {
			fs.Unknown = append(fs.Unknown, UnknownNode{Opcode: c.Opcode, Raw: c.Raw})
		}
	}

	for !v.AtEnd() {
		opStart := v.Offset()
		opByte, err := v.U8()
		if err != nil {
			return tree, kind.New(kind.ParseError, "hii.ParseOpcodes", fmt.Errorf("opcode byte at %d: %w", opStart, err))
		}
		header, err := v.U8()
		if err != nil {
			return tree, kind.New(kind.ParseError, "hii.ParseOpcodes", fmt.Errorf("header byte at %d: %w", opStart, err))
		}
		length := int(header & 0x7F)
		hasScope := header&0x80 != 0
		if length < 2 {
			return tree, kind.New(kind.ParseError, "hii.ParseOpcodes", fmt.Errorf("opcode length %d < 2 at offset %d", length, opStart))
		}
		opEnd := opStart + length
		if opEnd > v.Len() {
			return tree, kind.New(kind.ParseError, "hii.ParseOpcodes", fmt.Errorf("opcode length %d overruns buffer at offset %d", length, opStart))
		}

		op := Opcode(opByte)
		depth := len(stack)

		switch op {
		case OpEnd:
			if len(stack) == 0 {
				return tree, kind.New(kind.ParseError, "hii.ParseOpcodes", fmt.Errorf("scope underflow at offset %d", opStart))
			}
			stack = stack[:len(stack)-1]

		case OpFormSet:
			fs := &FormSet{}
			if g, err := v.GUID(); err == nil {
				fs.GUID = g
			}
			tree.FormSets = append(tree.FormSets, fs)
			if hasScope {
				stack = append(stack, &frame{kind: frameFormSet, formSet: fs})
			}

		case OpForm:
			form := &Form{}
			if id, err := v.U16(); err == nil {
				form.FormID = id
			}
			if t, err := v.U16(); err == nil {
				form.Title = t
			}
			if fs := currentFormSet(); fs != nil {
				fs.Forms = append(fs.Forms, form)
			}
			if hasScope {
				stack = append(stack, &frame{kind: frameForm, form: form})
			}

		case OpSubtitle:
			_, _ = v.U16() // prompt
			help, _ := v.U16()
			if f := currentForm(); f != nil {
				f.Subtitles = append(f.Subtitles, help)
			}

		case OpText:
			prompt, _ := v.U16()
			if f := currentForm(); f != nil {
				f.Texts = append(f.Texts, prompt)
			}

		case OpImage:
			// ImageId only; nothing in the data model consumes it yet.

		case OpRef:
			r := RefStatement{}
			r.Prompt, _ = v.U16()
			r.Help, _ = v.U16()
			r.FormID, _ = v.U16()
			if f := currentForm(); f != nil {
				f.Refs = append(f.Refs, r)
			}

		case OpOneOf, OpCheckBox, OpNumeric, OpPassword, OpAction, OpString, OpOrderedList, OpDate, OpTime:
			q := &Question{}
			q.Prompt, _ = v.U16()
			q.Help, _ = v.U16()
			q.QuestionID, _ = v.U16()
			q.Store.VarStoreID, _ = v.U16()
			q.Store.Offset, _ = v.U16()
			_, _ = v.U8() // question flags

			switch op {
			case OpOneOf:
				q.Kind = KindOneOf
				q.Width = numericWidth(v)
			case OpCheckBox:
				q.Kind = KindCheckbox
				q.Width = 1
			case OpNumeric:
				q.Kind = KindNumeric
				q.Width = numericWidth(v)
				q.Min, _ = v.Uint(q.Width)
				q.Max, _ = v.Uint(q.Width)
				q.Step, _ = v.Uint(q.Width)
			case OpPassword:
				q.Kind = KindPassword
				q.Width = 0
			case OpAction:
				q.Kind = KindAction
			case OpString:
				q.Kind = KindString
			case OpOrderedList:
				q.Kind = KindOrderedList
			case OpDate:
				q.Kind = KindDate
			case OpTime:
				q.Kind = KindTime
			}

			// EFI_IFR_CHECKBOX has a fixed shape with nothing else variable
			// after the question-flags byte, so any opcode bytes still
			// unconsumed before the declared opEnd are a vendor bit-packed
			// extension: one byte of bit offset, one of bit width, letting
			// several checkboxes share a single VarStore byte. OneOf and
			// Numeric carry their own variable-length trailing fields
			// (option default width, min/max/step), so the same "trailing
			// bytes" signal would be ambiguous there and is not applied.
			if op == OpCheckBox && opEnd-v.Offset() == 2 {
				q.Store.BitOffset, _ = v.U8()
				q.Store.BitWidth, _ = v.U8()
			}

			if f := currentForm(); f != nil {
				f.Questions = append(f.Questions, q)
			}
			if hasScope && (op == OpOneOf || op == OpOrderedList) {
				fk := frameOneOf
				if op == OpOrderedList {
					fk = frameOrderedList
				}
				stack = append(stack, &frame{kind: fk, question: q})
			}

		case OpOneOfOption:
			strID, _ := v.U16()
			_, _ = v.U8() // option flags
			valType, _ := v.U8()
			width := optionValueWidth(valType)
			val, _ := v.Uint(width)
			if q := currentQuestion(); q != nil {
				q.Options = append(q.Options, Option{Value: val, Text: strID})
			}

		case OpDefault:
			defID, _ := v.U16()
			valType, _ := v.U8()
			width := optionValueWidth(valType)
			val, _ := v.Uint(width)
			if q := currentQuestion(); q != nil {
				if q.Defaults == nil {
					q.Defaults = map[uint16]uint64{}
				}
				q.Defaults[defID] = val
			}

		case OpDefaultStore:
			defID, _ := v.U16()
			nameID, _ := v.U16()
			if fs := currentFormSet(); fs != nil {
				fs.Defaults = append(fs.Defaults, DefaultStoreDecl{DefaultID: defID, NameID: nameID})
			}

		case OpVarStore:
			d := VarStoreDecl{Kind: VarStoreBuffer}
			d.GUID, _ = v.GUID()
			d.VarStoreID, _ = v.U16()
			d.Size, _ = v.U16()
			if name, err := v.CString(); err == nil {
				d.Name = name
			}
			if fs := currentFormSet(); fs != nil {
				fs.VarStores = append(fs.VarStores, d)
			}

		case OpVarStoreEfi:
			d := VarStoreDecl{Kind: VarStoreEfiKind}
			d.VarStoreID, _ = v.U16()
			d.GUID, _ = v.GUID()
			d.Attributes, _ = v.U32()
			if opEnd-v.Offset() >= 2 {
				d.Size, _ = v.U16()
			}
			if opEnd-v.Offset() > 0 {
				if name, err := v.CString(); err == nil {
					d.Name = name
				}
			}
			if fs := currentFormSet(); fs != nil {
				fs.VarStores = append(fs.VarStores, d)
			}

		case OpVarStoreNameValue:
			d := VarStoreDecl{Kind: VarStoreNameValueKind}
			d.VarStoreID, _ = v.U16()
			d.GUID, _ = v.GUID()
			if fs := currentFormSet(); fs != nil {
				fs.VarStores = append(fs.VarStores, d)
			}

		case OpGuid:
			_, _ = v.GUID()
			// Extended-data GUID blocks carry vendor-specific payloads this
			// parser does not interpret; the unconditional seek below skips
			// whatever remains.

		case OpSuppressIf, OpGrayOutIf, OpDisableIf:
			raw := body[v.Offset():opEnd]
			c := Condition{Opcode: op, Raw: append([]byte(nil), raw...)}
			attachCondition(c)
			if hasScope {
				stack = append(stack, &frame{kind: frameCondition, cond: &c})
			}

		default:
			raw := body[v.Offset():opEnd]
			node := UnknownNode{Opcode: op, Raw: append([]byte(nil), raw...)}
			if fs := currentFormSet(); fs != nil {
				fs.Unknown = append(fs.Unknown, node)
			}
			// With no enclosing FormSet yet, the leaf has nowhere to attach
			// and is dropped; this only happens before the first FormSet.
			if hasScope && !isContainer(op) {
				// An unrecognized opcode that opens a scope still needs a
				// frame pushed so the later End balances correctly, even
				// though this parser does not interpret its contents.
				stack = append(stack, &frame{kind: frameCondition})
			}
		}

		// A scope opened by an opcode that pushed no frame above (a
		// CheckBox, Numeric, Subtitle, ...) still gets a placeholder frame
		// so its matching End does not pop an enclosing Form or FormSet.
		if hasScope && op != OpEnd && len(stack) == depth {
			stack = append(stack, &frame{kind: frameCondition})
		}

		// Every opcode's length is self-describing: regardless of how many
		// fields were actually interpreted above, the cursor is forced to
		// the declared end so a partially-understood opcode never
		// misaligns the stream.
		if err := v.Seek(opEnd); err != nil {
			return tree, kind.New(kind.ParseError, "hii.ParseOpcodes", fmt.Errorf("seek past opcode at %d: %w", opStart, err))
		}
	}

	if len(stack) != 0 {
		return tree, kind.New(kind.ParseError, "hii.ParseOpcodes", fmt.Errorf("%d scope(s) still open at end of stream", len(stack)))
	}
	return tree, nil
}

// numericWidth reads the one-byte flags field shared by OneOf/Numeric and
// maps its low 2 bits to a byte width.
func numericWidth(v *byteview.View) int {
	flags, err := v.U8()
	if err != nil {
		return 1
	}
	switch flags & 0x03 {
	case 0:
		return 1
	case 1:
		return 2
	case 2:
		return 4
	default:
		return 8
	}
}

// optionValueWidth maps an EFI_IFR_TYPE_VALUE tag to its encoded width.
func optionValueWidth(valType uint8) int {
	switch valType {
	case 0x00:
		return 1
	case 0x01:
		return 2
	case 0x02:
		return 4
	case 0x03:
		return 8
	case 0x04: // boolean
		return 1
	case 0x07: // string ref
		return 2
	default:
		return 1
	}
}
