// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dispatch

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/linuxboot/uefisettings/pkg/hii"
	"github.com/linuxboot/uefisettings/pkg/ilo"
	"github.com/linuxboot/uefisettings/pkg/kind"
	"github.com/linuxboot/uefisettings/pkg/spellings"
)

type fakeVarStoreIO struct{ data []byte }

func (f *fakeVarStoreIO) ReadRaw(decl hii.VarStoreDecl) ([]byte, error) {
	return append([]byte(nil), f.data...), nil
}

func (f *fakeVarStoreIO) WriteRaw(decl hii.VarStoreDecl, data []byte) error {
	f.data = append([]byte(nil), data...)
	return nil
}

// oneQuestionDB builds a minimal Database holding a single OneOf
// question named "TPM State" directly, without going through
// ParseDatabase, so the dispatcher's Hii path can be exercised without
// a real binary image.
func oneQuestionDB() (*hii.Database, *fakeVarStoreIO) {
	listGUID := uuid.New()
	fsGUID := uuid.New()
	// 4 attribute bytes, then one data byte holding the OneOf value.
	io := &fakeVarStoreIO{data: []byte{0x07, 0x00, 0x00, 0x00, 0x01}}
	fs := &hii.FormSet{
		GUID: fsGUID,
		VarStores: []hii.VarStoreDecl{
			{VarStoreID: 1, GUID: fsGUID, Name: "TestStore", Size: 4},
		},
		Forms: []*hii.Form{
			{
				FormID: 1,
				Questions: []*hii.Question{
					{
						QuestionID: 1,
						Kind:       hii.KindOneOf,
						Prompt:     1,
						Store:      hii.StoreRef{VarStoreID: 1, Offset: 0},
						Width:      1,
						Options: []hii.Option{
							{Value: 0, Text: 2},
							{Value: 1, Text: 3},
						},
					},
				},
			},
		},
	}
	list := &hii.ParsedList{
		GUID:     listGUID,
		FormSets: []*hii.FormSet{fs},
		Strings: map[string]map[uint32]string{
			"en-US": {1: "TPM State", 2: "Disabled", 3: "Enabled"},
		},
	}
	db := &hii.Database{Lists: []*hii.ParsedList{list}}
	return db, io
}

func TestIdentifyNeitherBackendPresent(t *testing.T) {
	d := &Dispatcher{Spellings: spellings.Builtin}
	_, err := d.Identify(context.Background())
	if !kind.Is(err, kind.BackendUnavailable) {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
}

func TestIdentifyHiiOnly(t *testing.T) {
	d := &Dispatcher{
		Spellings: spellings.Builtin,
		OpenHii: func(ctx context.Context) (*HiiSession, error) {
			return &HiiSession{}, nil
		},
	}
	p, err := d.Identify(context.Background())
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if !p.Hii || p.Ilo {
		t.Fatalf("Presence = %+v", p)
	}
}

func TestGetNoBackendsConfigured(t *testing.T) {
	d := &Dispatcher{Spellings: spellings.Builtin}
	_, err := d.Get(context.Background(), "TPM State", "")
	if !kind.Is(err, kind.BackendUnavailable) {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
}

func TestGetHiiBackendHintSkipsIlo(t *testing.T) {
	db, io := oneQuestionDB()
	hiiCalled := false
	iloCalled := false
	d := &Dispatcher{
		Spellings: spellings.Builtin,
		OpenHii: func(ctx context.Context) (*HiiSession, error) {
			hiiCalled = true
			return &HiiSession{DB: db, IO: io}, nil
		},
		OpenIlo: func(ctx context.Context) (*ilo.Adapter, error) {
			iloCalled = true
			return nil, kind.New(kind.BackendUnavailable, "test", nil)
		},
	}
	results, err := d.Get(context.Background(), "TPM State", Hii)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !hiiCalled {
		t.Error("expected OpenHii to be called")
	}
	if iloCalled {
		t.Error("OpenIlo should not be called when hint=Hii")
	}
	if len(results) != 1 || results[0].Backend != Hii {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Answer != "Enabled" {
		t.Errorf("Answer = %q, want Enabled", results[0].Answer)
	}
}

func TestGetNoHintOmitsAbsentIlo(t *testing.T) {
	db, io := oneQuestionDB()
	d := &Dispatcher{
		Spellings: spellings.Builtin,
		OpenHii: func(ctx context.Context) (*HiiSession, error) {
			return &HiiSession{DB: db, IO: io}, nil
		},
		OpenIlo: func(ctx context.Context) (*ilo.Adapter, error) {
			return nil, kind.New(kind.BackendUnavailable, "test", nil)
		},
	}
	results, err := d.Get(context.Background(), "TPM State", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(results) != 1 || results[0].Backend != Hii {
		t.Fatalf("results = %+v, want only Hii (Ilo absent)", results)
	}
}

// abbreviatedOptionDB mirrors oneQuestionDB but spells its OneOf options
// the way some real firmware does: "Enable"/"Disable" rather than the
// canonical "Enabled"/"Disabled", so the spellings table's answer
// replacements are actually exercised end to end.
func abbreviatedOptionDB() (*hii.Database, *fakeVarStoreIO) {
	listGUID := uuid.New()
	fsGUID := uuid.New()
	io := &fakeVarStoreIO{data: []byte{0x07, 0x00, 0x00, 0x00, 0x00}}
	fs := &hii.FormSet{
		GUID: fsGUID,
		VarStores: []hii.VarStoreDecl{
			{VarStoreID: 1, GUID: fsGUID, Name: "TestStore", Size: 4},
		},
		Forms: []*hii.Form{
			{
				FormID: 1,
				Questions: []*hii.Question{
					{
						QuestionID: 1,
						Kind:       hii.KindOneOf,
						Prompt:     1,
						Store:      hii.StoreRef{VarStoreID: 1, Offset: 0},
						Width:      1,
						Options: []hii.Option{
							{Value: 0, Text: 2},
							{Value: 1, Text: 3},
						},
					},
				},
			},
		},
	}
	list := &hii.ParsedList{
		GUID:     listGUID,
		FormSets: []*hii.FormSet{fs},
		Strings: map[string]map[uint32]string{
			"en-US": {1: "TPM State", 2: "Disable", 3: "Enable"},
		},
	}
	db := &hii.Database{Lists: []*hii.ParsedList{list}}
	return db, io
}

// TestSetHiiTriesEnabledThenEnable exercises S4 end to end through the
// dispatcher: the option text on this fixture is "Enable", not the
// canonical "Enabled", so setHii must fall through
// TranslateAnswerForward's replacement list rather than failing on the
// first literal match.
func TestSetHiiTriesEnabledThenEnable(t *testing.T) {
	db, io := abbreviatedOptionDB()
	d := &Dispatcher{
		Spellings: spellings.Builtin,
		OpenHii: func(ctx context.Context) (*HiiSession, error) {
			return &HiiSession{DB: db, IO: io}, nil
		},
	}
	results, err := d.Set(context.Background(), "TPM State", "Enabled", Hii)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("results = %+v, want a successful write", results)
	}
	if !results[0].Modified {
		t.Errorf("Modified = false, want true")
	}
	// The stored raw value is the answer it actually wrote ("Enable");
	// TranslateAnswerReverse maps it back to the canonical spelling.
	if results[0].Answer != "Enabled" {
		t.Errorf("Answer = %q, want Enabled", results[0].Answer)
	}
}

// TestGetHiiReverseTranslatesAbbreviatedAnswer checks the read side of
// the same fixture: the raw option text "Enable" comes back translated
// to the canonical "Enabled".
func TestGetHiiReverseTranslatesAbbreviatedAnswer(t *testing.T) {
	db, io := abbreviatedOptionDB()
	io.data[4] = 1 // pre-set to the "Enable" option
	d := &Dispatcher{
		Spellings: spellings.Builtin,
		OpenHii: func(ctx context.Context) (*HiiSession, error) {
			return &HiiSession{DB: db, IO: io}, nil
		},
	}
	results, err := d.Get(context.Background(), "TPM State", Hii)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(results) != 1 || results[0].Answer != "Enabled" {
		t.Fatalf("results = %+v, want Answer=Enabled", results)
	}
}

func TestSetAmbiguousAcrossTwoFormSets(t *testing.T) {
	db, io := oneQuestionDB()
	// Add a second form-set with the same prompt string but a different
	// question, mirroring S5.
	extraFS := &hii.FormSet{
		GUID: uuid.New(),
		VarStores: []hii.VarStoreDecl{
			{VarStoreID: 1, GUID: uuid.New(), Name: "OtherStore", Size: 4},
		},
		Forms: []*hii.Form{
			{
				FormID: 2,
				Questions: []*hii.Question{
					{
						QuestionID: 2,
						Kind:       hii.KindOneOf,
						Prompt:     1,
						Store:      hii.StoreRef{VarStoreID: 1, Offset: 1},
						Width:      1,
						Options:    []hii.Option{{Value: 0, Text: 2}, {Value: 1, Text: 3}},
					},
				},
			},
		},
	}
	secondList := &hii.ParsedList{
		GUID:     uuid.New(),
		FormSets: []*hii.FormSet{extraFS},
		Strings: map[string]map[uint32]string{
			"en-US": {1: "TPM State", 2: "Disabled", 3: "Enabled"},
		},
	}
	db.Lists = append(db.Lists, secondList)

	d := &Dispatcher{
		Spellings: spellings.Builtin,
		OpenHii: func(ctx context.Context) (*HiiSession, error) {
			return &HiiSession{DB: db, IO: io}, nil
		},
	}
	results, err := d.Set(context.Background(), "TPM State", "Enabled", Hii)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("results = %+v, want an Ambiguous error surfaced", results)
	}
	if !kind.Is(results[0].Err, kind.Ambiguous) {
		t.Fatalf("Err = %v, want Ambiguous", results[0].Err)
	}
}
