// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Backend dispatcher: detects which backends a host supports, routes a
// generic get/set/identify through the spellings translator to whichever
// backend(s) are present, and aggregates per-backend results so partial
// success on one backend is visible alongside failure on another, per
// spec.md §4.8. Backends are modeled as a tagged variant rather than an
// inheritance hierarchy, per spec.md §9.

package dispatch

import (
	"context"
	"errors"

	"github.com/linuxboot/uefisettings/pkg/hii"
	"github.com/linuxboot/uefisettings/pkg/ilo"
	"github.com/linuxboot/uefisettings/pkg/kind"
	"github.com/linuxboot/uefisettings/pkg/spellings"
)

// Backend names one of the two tagged variants.
type Backend string

const (
	Hii Backend = "hii"
	Ilo Backend = "ilo"
)

// Presence records which backends identify() found on this host.
type Presence struct {
	Hii bool
	Ilo bool
}

func (p Presence) any() bool { return p.Hii || p.Ilo }

// HiiSession is the subset of hii state the dispatcher needs once it
// knows the Hii backend is present: a parsed database plus something to
// read/write var-stores through.
type HiiSession struct {
	DB *hii.Database
	IO hii.VarStoreReaderWriter
}

// Dispatcher composes the two backend-specific sessions behind a single
// identify/get/set surface. Every dependency is a func field so tests
// can substitute fakes without touching efivarfs, /dev/mem, or
// /dev/hpilo, the same dependency-injection shape pkg/hii and pkg/ilo
// already use for their own test doubles.
type Dispatcher struct {
	Spellings *spellings.Table

	// OpenHii attempts to locate and parse the HiiDB. A BackendUnavailable
	// error means the backend is simply absent, not a hard failure.
	OpenHii func(ctx context.Context) (*HiiSession, error)

	// OpenIlo attempts to open the BlobStore2 transport and wrap it in a
	// Redfish adapter. A BackendUnavailable error means the backend is
	// simply absent.
	OpenIlo func(ctx context.Context) (*ilo.Adapter, error)
}

// Result is one backend's contribution to a get/set call.
type Result struct {
	Backend      Backend
	Answer       string
	Options      []string
	Modified     bool
	IsTranslated bool
	Err          error
}

// Identify runs both backend probes and reports which are present.
// Neither probe's error is fatal to the other; Identify itself only
// fails if neither backend is present.
func (d *Dispatcher) Identify(ctx context.Context) (Presence, error) {
	var p Presence
	if d.OpenHii != nil {
		if _, err := d.OpenHii(ctx); err == nil {
			p.Hii = true
		}
	}
	if d.OpenIlo != nil {
		if a, err := d.OpenIlo(ctx); err == nil {
			p.Ilo = true
			_ = a
		}
	}
	if !p.any() {
		return p, kind.New(kind.BackendUnavailable, "dispatch.Identify", errNoBackend)
	}
	return p, nil
}

var errNoBackend = errors.New("neither backend is present on this host")

// backendOrder lists the preference order used when the caller does not
// force a specific backend: Hii before Ilo, per spec.md §4.8.
var backendOrder = []Backend{Hii, Ilo}

// order returns the backends to attempt, honoring an explicit hint.
func order(hint Backend) []Backend {
	if hint == "" {
		return backendOrder
	}
	return []Backend{hint}
}

// Get resolves canonical to each requested backend's spelling and reads
// the current answer. hint forces a single backend; an empty hint tries
// every present backend in preference order and returns one Result per
// backend attempted, preserving evidence of partial success.
func (d *Dispatcher) Get(ctx context.Context, canonical string, hint Backend) ([]Result, error) {
	var results []Result
	for _, b := range order(hint) {
		switch b {
		case Hii:
			r, ok := d.getHii(ctx, canonical)
			if ok {
				results = append(results, r)
			}
		case Ilo:
			r, ok := d.getIlo(ctx, canonical)
			if ok {
				results = append(results, r)
			}
		}
	}
	if len(results) == 0 {
		return nil, kind.New(kind.BackendUnavailable, "dispatch.Get", errNoBackend)
	}
	return results, nil
}

// Set mirrors Get for writing a new answer.
func (d *Dispatcher) Set(ctx context.Context, canonical, value string, hint Backend) ([]Result, error) {
	var results []Result
	for _, b := range order(hint) {
		switch b {
		case Hii:
			r, ok := d.setHii(ctx, canonical, value)
			if ok {
				results = append(results, r)
			}
		case Ilo:
			r, ok := d.setIlo(ctx, canonical, value)
			if ok {
				results = append(results, r)
			}
		}
	}
	if len(results) == 0 {
		return nil, kind.New(kind.BackendUnavailable, "dispatch.Set", errNoBackend)
	}
	return results, nil
}

func (d *Dispatcher) getHii(ctx context.Context, canonical string) (Result, bool) {
	if d.OpenHii == nil {
		return Result{}, false
	}
	sess, err := d.OpenHii(ctx)
	if err != nil {
		if kind.Is(err, kind.BackendUnavailable) {
			return Result{}, false
		}
		return Result{Backend: Hii, Err: err}, true
	}
	variations, err := d.Spellings.Resolve(canonical, spellings.HII)
	if err != nil {
		return Result{Backend: Hii, Err: err}, true
	}
	ans, err := hii.GetAnswer(sess.DB, sess.IO, variations, nil)
	if err != nil {
		return Result{Backend: Hii, Err: err}, true
	}
	text := d.Spellings.TranslateAnswerReverse(canonical, ans.Text, spellings.HII)
	return Result{
		Backend:      Hii,
		Answer:       text,
		Options:      ans.Options,
		IsTranslated: d.Spellings.IsTranslated(canonical),
	}, true
}

func (d *Dispatcher) setHii(ctx context.Context, canonical, value string) (Result, bool) {
	if d.OpenHii == nil {
		return Result{}, false
	}
	sess, err := d.OpenHii(ctx)
	if err != nil {
		if kind.Is(err, kind.BackendUnavailable) {
			return Result{}, false
		}
		return Result{Backend: Hii, Err: err}, true
	}
	variations, err := d.Spellings.Resolve(canonical, spellings.HII)
	if err != nil {
		return Result{Backend: Hii, Err: err}, true
	}

	// S4: try every forward-replacement spelling of value in order (e.g.
	// "Enabled" then "Enable") before giving up, the same way ILO's
	// setIlo applies TranslateAnswerForward before writing the Redfish
	// attribute.
	raws := d.Spellings.TranslateAnswerForward(canonical, value, spellings.HII)
	var ans *hii.Answer
	for _, raw := range raws {
		ans, err = hii.SetAnswer(sess.DB, sess.IO, variations, nil, raw)
		if err == nil {
			break
		}
		if !kind.Is(err, kind.InvalidAnswer) {
			break
		}
	}
	if err != nil {
		return Result{Backend: Hii, Err: err}, true
	}
	return Result{
		Backend:      Hii,
		Answer:       d.Spellings.TranslateAnswerReverse(canonical, ans.Text, spellings.HII),
		Modified:     true,
		IsTranslated: d.Spellings.IsTranslated(canonical),
	}, true
}

func (d *Dispatcher) getIlo(ctx context.Context, canonical string) (Result, bool) {
	if d.OpenIlo == nil {
		return Result{}, false
	}
	adapter, err := d.OpenIlo(ctx)
	if err != nil {
		if kind.Is(err, kind.BackendUnavailable) {
			return Result{}, false
		}
		return Result{Backend: Ilo, Err: err}, true
	}
	question := d.iloQuestion(canonical)
	v, ok, err := adapter.GetAttribute(ctx, question)
	if err != nil {
		return Result{Backend: Ilo, Err: err}, true
	}
	if !ok {
		return Result{Backend: Ilo, Err: kind.New(kind.NotFound, "dispatch.getIlo", nil)}, true
	}
	text := d.Spellings.TranslateAnswerReverse(canonical, toString(v), spellings.ILO)
	return Result{
		Backend:      Ilo,
		Answer:       text,
		IsTranslated: d.Spellings.IsTranslated(canonical),
	}, true
}

func (d *Dispatcher) setIlo(ctx context.Context, canonical, value string) (Result, bool) {
	if d.OpenIlo == nil {
		return Result{}, false
	}
	adapter, err := d.OpenIlo(ctx)
	if err != nil {
		if kind.Is(err, kind.BackendUnavailable) {
			return Result{}, false
		}
		return Result{Backend: Ilo, Err: err}, true
	}
	question := d.iloQuestion(canonical)
	raws := d.Spellings.TranslateAnswerForward(canonical, value, spellings.ILO)
	raw := value
	if len(raws) > 0 {
		raw = raws[0]
	}
	modified, err := adapter.SetAttribute(ctx, question, raw)
	if err != nil {
		return Result{Backend: Ilo, Err: err}, true
	}
	return Result{
		Backend:      Ilo,
		Answer:       raw,
		Modified:     modified,
		IsTranslated: d.Spellings.IsTranslated(canonical),
	}, true
}

// iloQuestion returns the single Redfish attribute name canonical maps
// to on the ILO backend.
func (d *Dispatcher) iloQuestion(canonical string) string {
	variations := d.Spellings.Variations(canonical, spellings.ILO)
	if len(variations) == 0 {
		return canonical
	}
	return variations[0]
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
