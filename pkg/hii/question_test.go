// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hii

import (
	"testing"

	"github.com/google/uuid"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

func oneQuestionFormSet(store StoreRef, k QuestionKind, opts []Option) *FormSet {
	fs := &FormSet{GUID: uuid.New()}
	q := &Question{QuestionID: 1, Prompt: 1, Store: store, Width: 1, Kind: k, Options: opts}
	fs.Forms = []*Form{{FormID: 1, Questions: []*Question{q}}}
	fs.VarStores = []VarStoreDecl{{VarStoreID: store.VarStoreID, Name: "Setup", GUID: uuid.New(), Size: 64}}
	return fs
}

func dbWithOneList(prompts map[string]uint32, formSets ...*FormSet) *Database {
	list := &ParsedList{
		GUID:     uuid.New(),
		FormSets: formSets,
		Strings:  map[string]map[uint32]string{"en-US": {}},
	}
	for text, id := range prompts {
		list.Strings["en-US"][id] = text
	}
	return &Database{Lists: []*ParsedList{list}}
}

func TestFindQuestionSingleMatch(t *testing.T) {
	fs := oneQuestionFormSet(StoreRef{VarStoreID: 1, Offset: 0x20}, KindOneOf, nil)
	db := dbWithOneList(map[string]uint32{"TPM State": 1}, fs)

	m, err := FindQuestion(db, []string{"TPM State"}, nil)
	if err != nil {
		t.Fatalf("FindQuestion: %v", err)
	}
	if m.Question.QuestionID != 1 {
		t.Errorf("matched question id = %d", m.Question.QuestionID)
	}
}

func TestFindQuestionNotFound(t *testing.T) {
	fs := oneQuestionFormSet(StoreRef{VarStoreID: 1}, KindOneOf, nil)
	db := dbWithOneList(map[string]uint32{"TPM State": 1}, fs)

	if _, err := FindQuestion(db, []string{"Nonexistent"}, nil); !kind.Is(err, kind.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestFindQuestionAmbiguous(t *testing.T) {
	fsA := oneQuestionFormSet(StoreRef{VarStoreID: 1, Offset: 0x10}, KindOneOf, nil)
	fsB := oneQuestionFormSet(StoreRef{VarStoreID: 1, Offset: 0x30}, KindOneOf, nil)
	db := dbWithOneList(map[string]uint32{"Hyper-Threading": 1}, fsA, fsB)

	_, err := FindQuestion(db, []string{"Hyper-Threading"}, nil)
	e, ok := kind.Of(err)
	if !ok || e.Kind != kind.Ambiguous {
		t.Fatalf("expected Ambiguous, got %v", err)
	}
	if len(e.Locations) != 2 {
		t.Errorf("expected 2 locations, got %d", len(e.Locations))
	}
}

func TestGetSetAnswerOneOf(t *testing.T) {
	opts := []Option{{Value: 0, Text: 2}, {Value: 1, Text: 3}}
	fs := oneQuestionFormSet(StoreRef{VarStoreID: 1, Offset: 0x20}, KindOneOf, opts)
	db := dbWithOneList(map[string]uint32{"TPM State": 1, "Disabled": 2, "Enabled": 3}, fs)

	data := make([]byte, 68) // 4-byte attr prefix + 64-byte store
	data[0x24] = 0x00        // offset 0x20 in body == index 0x24 in raw
	varIO := &fakeVarStoreIO{data: data}

	ans, err := GetAnswer(db, varIO, []string{"TPM State"}, nil)
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if ans.Text != "Disabled" {
		t.Fatalf("Text = %q, want Disabled", ans.Text)
	}

	set, err := SetAnswer(db, varIO, []string{"TPM State"}, nil, "Enabled")
	if err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	if set.Value != 1 {
		t.Errorf("Value = %d, want 1", set.Value)
	}
	if varIO.data[0x24] != 0x01 {
		t.Errorf("backing byte = %#x, want 0x01", varIO.data[0x24])
	}
	// attribute prefix must survive the write untouched.
	if varIO.data[0] != 0x00 {
		t.Errorf("attribute prefix mutated: %v", varIO.data[:4])
	}
}

func TestSetAnswerInvalidOption(t *testing.T) {
	opts := []Option{{Value: 0, Text: 2}}
	fs := oneQuestionFormSet(StoreRef{VarStoreID: 1, Offset: 0x00}, KindOneOf, opts)
	db := dbWithOneList(map[string]uint32{"TPM State": 1, "Disabled": 2}, fs)

	varIO := &fakeVarStoreIO{data: make([]byte, 8)}
	if _, err := SetAnswer(db, varIO, []string{"TPM State"}, nil, "NotAnOption"); !kind.Is(err, kind.InvalidAnswer) {
		t.Fatalf("expected InvalidAnswer, got %v", err)
	}
}

func TestSetAnswerNotModifiedOnVerifyMismatch(t *testing.T) {
	opts := []Option{{Value: 0, Text: 2}, {Value: 1, Text: 3}}
	fs := oneQuestionFormSet(StoreRef{VarStoreID: 1, Offset: 0x00}, KindOneOf, opts)
	db := dbWithOneList(map[string]uint32{"TPM State": 1, "Disabled": 2, "Enabled": 3}, fs)

	varIO := &stuckVarStoreIO{fakeVarStoreIO: fakeVarStoreIO{data: make([]byte, 8)}}
	if _, err := SetAnswer(db, varIO, []string{"TPM State"}, nil, "Enabled"); !kind.Is(err, kind.NotModified) {
		t.Fatalf("expected NotModified, got %v", err)
	}
}

// stuckVarStoreIO accepts writes but never actually changes the backing
// byte, simulating a firmware that silently rejects a write.
type stuckVarStoreIO struct {
	fakeVarStoreIO
}

func (s *stuckVarStoreIO) WriteRaw(decl VarStoreDecl, data []byte) error {
	return nil
}

func TestBitPackedField(t *testing.T) {
	store := StoreRef{VarStoreID: 1, Offset: 0, BitOffset: 2, BitWidth: 1}
	raw := []byte{0x00, 0x00, 0x00, 0x00, 0b00000100}
	v, err := ReadField(raw, store, 1)
	if err != nil || v != 1 {
		t.Fatalf("ReadField = %d, %v", v, err)
	}
	updated, err := WriteField(raw, store, 1, 0)
	if err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if updated[4] != 0 {
		t.Errorf("bit not cleared: %#b", updated[4])
	}
	// sibling bits in the same byte must survive untouched.
	raw2 := []byte{0x00, 0x00, 0x00, 0x00, 0b00001101}
	updated2, _ := WriteField(raw2, store, 1, 1)
	if updated2[4] != 0b00001101 {
		t.Errorf("sibling bits clobbered: %#b", updated2[4])
	}
}
