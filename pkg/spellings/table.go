// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spellings

// Builtin is the shipped canonical-name translation table. It is
// intentionally small: spec.md's scenarios (S3, S4, S6) name exactly
// these entries, and real platform spellings vary enough that a tool
// built on this core is expected to carry a larger, site-specific table
// alongside it rather than have one baked in here.
var Builtin = NewTable(map[string]Entry{
	"TPM State": {
		Hii: &HiiSpelling{
			Variations: []string{"TPM State", "TPM Device", "Security Device Support"},
			AnswerReplacements: map[string][]string{
				"Enabled":  {"Enabled", "Enable"},
				"Disabled": {"Disabled", "Disable"},
			},
		},
		Ilo: &IloSpelling{
			Question: "TpmState",
			AnswerReplacements: map[string]string{
				"Enabled":  "PresentEnabled",
				"Disabled": "PresentDisabled",
			},
		},
	},
	"Hyper-Threading": {
		Hii: &HiiSpelling{
			Variations: []string{"Hyper-Threading", "Intel(R) Hyper-Threading Technology", "Logical Processor"},
			AnswerReplacements: map[string][]string{
				"Enabled":  {"Enabled", "Enable"},
				"Disabled": {"Disabled", "Disable"},
			},
		},
		Ilo: &IloSpelling{
			Question: "ProcHyperthreading",
			AnswerReplacements: map[string]string{
				"Enabled":  "Enabled",
				"Disabled": "Disabled",
			},
		},
	},
	"Boot Mode": {
		Hii: &HiiSpelling{
			Variations: []string{"Boot Mode", "Boot Mode Select"},
			AnswerReplacements: map[string][]string{
				"UEFI":    {"UEFI", "UEFI Mode"},
				"Legacy":  {"Legacy", "Legacy BIOS"},
			},
		},
	},
})
