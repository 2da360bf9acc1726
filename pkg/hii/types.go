// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Data model for a parsed HiiDB image: package-lists, string packages, and
// the form/question/option forest extracted from IFR opcode streams.

package hii

import "github.com/google/uuid"

// PackageKind identifies the EFI_HII_PACKAGE_TYPE_* of a package header.
type PackageKind uint8

const (
	PackageAll        PackageKind = 0x00
	PackageGUID       PackageKind = 0x01
	PackageForms      PackageKind = 0x02
	PackageStrings    PackageKind = 0x04
	PackageFonts      PackageKind = 0x05
	PackageImages     PackageKind = 0x06
	PackageSimpleFont PackageKind = 0x07
	PackageDevicePath PackageKind = 0x08
	PackageKeyboard   PackageKind = 0x09
	PackageAnimations PackageKind = 0x0A
	PackageEnd        PackageKind = 0xDF
)

func (k PackageKind) String() string {
	switch k {
	case PackageGUID:
		return "GUID"
	case PackageForms:
		return "Forms"
	case PackageStrings:
		return "Strings"
	case PackageFonts:
		return "Fonts"
	case PackageImages:
		return "Images"
	case PackageSimpleFont:
		return "SimpleFont"
	case PackageDevicePath:
		return "DevicePath"
	case PackageKeyboard:
		return "Keyboard"
	case PackageAnimations:
		return "Animations"
	case PackageEnd:
		return "End"
	}
	return "Unknown"
}

// Package is one entry of a package-list: a kind tag plus its raw body.
type Package struct {
	Kind PackageKind
	Body []byte
}

// HiiPackageList is a GUID plus an ordered sequence of packages, per
// spec.md §3. ParseDatabase does not build this type: it decodes each
// package-list straight into a ParsedList, and a package whose length runs
// past the end of its list is recorded in ParsedList.Warnings, not rejected.
type HiiPackageList struct {
	GUID     uuid.UUID
	Packages []Package
}

// StringPackage is the decoded id -> UTF-8 map for one (package-list,
// language) pair. id 0 is reserved and never present in Strings.
type StringPackage struct {
	PackageListGUID uuid.UUID
	Language        string
	Strings         map[uint32]string
	// Partial is true if a SIBT block of unrecoverable length was hit and
	// decoding stopped early; Strings still holds everything decoded so far.
	Partial bool
}

// QuestionKind enumerates the statement kinds spec.md §3 requires.
type QuestionKind int

const (
	KindUnknown QuestionKind = iota
	KindNumeric
	KindOneOf
	KindCheckbox
	KindString
	KindAction
	KindOrderedList
	KindRef
	KindPassword
	KindDate
	KindTime
)

func (k QuestionKind) String() string {
	switch k {
	case KindNumeric:
		return "Numeric"
	case KindOneOf:
		return "OneOf"
	case KindCheckbox:
		return "Checkbox"
	case KindString:
		return "String"
	case KindAction:
		return "Action"
	case KindOrderedList:
		return "OrderedList"
	case KindRef:
		return "Ref"
	case KindPassword:
		return "Password"
	case KindDate:
		return "Date"
	case KindTime:
		return "Time"
	}
	return "Unknown"
}

// StoreRef is a question's storage location: a VarStore id plus a byte
// offset, with an optional bit offset/width for bit-packed fields.
type StoreRef struct {
	VarStoreID uint16
	Offset     uint16
	BitOffset  uint8
	BitWidth   uint8 // 0 means "not bit-packed": use Width bytes instead
}

// Option is one OneOfOption entry: a numeric value and the text it maps to.
type Option struct {
	Value uint64
	Text  uint16 // string id, resolved lazily
}

// Condition is an opaque, unevaluated SuppressIf/GrayOutIf/DisableIf
// opcode. Raw holds that opcode's own payload bytes, not the expression
// opcodes nested in its scope, per spec.md §4.4's tie-break rule that
// these are parsed but never evaluated.
type Condition struct {
	Opcode Opcode
	Raw    []byte
}

// Question is one form statement that carries an answer.
type Question struct {
	QuestionID uint16
	Kind       QuestionKind
	Prompt     uint16
	Help       uint16
	Store      StoreRef
	Width      int // byte width: 1, 2, 4, or 8

	Options []Option
	Min, Max, Step uint64

	Defaults map[uint16]uint64 // default-store id -> value

	Conditions []Condition
}

// Form is an ordered list of statements under a numeric id.
type Form struct {
	FormID uint16
	Title  uint16

	Questions []*Question
	Refs      []RefStatement
	Subtitles []uint16
	Texts     []uint16
}

// RefStatement is a Ref opcode: jump to another form, optionally scoped to
// a question and form-set.
type RefStatement struct {
	Prompt, Help uint16
	FormID       uint16
	QuestionID   uint16
	FormSetGUID  uuid.UUID
}

// VarStoreKind distinguishes the three VarStore* declaration opcodes.
type VarStoreKind int

const (
	VarStoreBuffer VarStoreKind = iota
	VarStoreEfiKind
	VarStoreNameValueKind
)

// VarStoreDecl is a declared variable store: spec.md §3's VariableStore,
// as seen inside the IFR stream rather than efivarfs.
type VarStoreDecl struct {
	Kind       VarStoreKind
	VarStoreID uint16
	GUID       uuid.UUID
	Name       string
	Size       uint16
	Attributes uint32
}

// FormSet has a GUID, the variable stores and default stores it declares,
// and the forms nested inside its IFR scope.
type FormSet struct {
	GUID uuid.UUID

	Forms     []*Form
	VarStores []VarStoreDecl
	Defaults  []DefaultStoreDecl

	// Unknown holds opcodes the parser did not recognize, retained as
	// opaque leaves so that nesting is never corrupted (spec.md §4.3).
	Unknown []UnknownNode
}

// DefaultStoreDecl names a default-store id (used as the key into a
// Question's Defaults map).
type DefaultStoreDecl struct {
	DefaultID uint16
	NameID    uint16
}

// UnknownNode is a retained opaque leaf for any opcode this parser does
// not interpret.
type UnknownNode struct {
	Opcode Opcode
	Raw    []byte
}

// FormTree is the full result of parsing one Forms package's opcode
// stream: normally exactly one FormSet, but the wire format allows more
// than one FormSet per package.
type FormTree struct {
	FormSets []*FormSet
}
