// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// iLO Redfish adapter: BIOS attribute get/set/list carried as HTTP/1.1
// requests and responses over the BlobStore2 key-value transport, per
// spec.md §4.7.

package ilo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/linuxboot/uefisettings/pkg/blobstore"
	"github.com/linuxboot/uefisettings/pkg/kind"
)

const biosResourcePath = "/redfish/v1/Systems/1/Bios"
const biosSettingsPath = biosResourcePath + "/Settings"

// cmdTrigger is the control command that tells the remote side a
// request blob is waiting to be consumed under the given key, and where
// to leave its response. Reverse-engineered, like the rest of the
// BlobStore2 command set (spec.md §9).
const cmdTrigger uint16 = 0x0009

// transport is the subset of *blobstore.Transport this adapter needs,
// narrowed to an interface so tests can substitute a fake session
// without a real /dev/hpilo, the same way pkg/hii substitutes a fake
// VarStoreReaderWriter.
type transport interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PacketExchange(ctx context.Context, req *blobstore.Packet) (*blobstore.Packet, error)
}

// Adapter is one iLO Redfish session, layered on an open BlobStore2
// transport.
type Adapter struct {
	tr transport
}

// New wraps an already-open BlobStore2 transport.
func New(tr *blobstore.Transport) *Adapter {
	return &Adapter{tr: tr}
}

// newWithTransport wraps any transport implementation, used by tests to
// substitute a fake session.
func newWithTransport(tr transport) *Adapter {
	return &Adapter{tr: tr}
}

// biosResource is the subset of the Redfish Bios resource this adapter
// cares about.
type biosResource struct {
	Attributes map[string]interface{} `json:"Attributes"`
}

// Identify confirms the BMC answers Redfish requests at all, by fetching
// the Bios resource and discarding the body.
func (a *Adapter) Identify(ctx context.Context) error {
	_, err := a.getBios(ctx)
	return err
}

func (a *Adapter) getBios(ctx context.Context) (*biosResource, error) {
	resp, err := a.exchangeHTTP(ctx, http.MethodGet, biosResourcePath, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, kind.New(kind.TransportError, "ilo.getBios",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	var out biosResource
	if err := readJSONBody(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAttribute returns the raw value of a single BIOS attribute.
func (a *Adapter) GetAttribute(ctx context.Context, name string) (interface{}, bool, error) {
	bios, err := a.getBios(ctx)
	if err != nil {
		return nil, false, err
	}
	v, ok := bios.Attributes[name]
	return v, ok, nil
}

// ListAttributes returns every attribute currently reported by the Bios
// resource.
func (a *Adapter) ListAttributes(ctx context.Context) (map[string]interface{}, error) {
	bios, err := a.getBios(ctx)
	if err != nil {
		return nil, err
	}
	return bios.Attributes, nil
}

// SetAttribute issues a PATCH against the Bios Settings resource with a
// single-attribute body, per spec.md §8 scenario S6, and reports
// whether the BMC accepted it.
func (a *Adapter) SetAttribute(ctx context.Context, name string, value interface{}) (modified bool, err error) {
	body, err := encodePatchBody(name, value)
	if err != nil {
		return false, err
	}
	resp, err := a.exchangeHTTP(ctx, http.MethodPatch, biosSettingsPath, body)
	if err != nil {
		return false, err
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusAccepted:
		return true, nil
	default:
		return false, kind.New(kind.TransportError, "ilo.SetAttribute",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

func encodePatchBody(name string, value interface{}) ([]byte, error) {
	payload := map[string]map[string]interface{}{
		"Attributes": {name: value},
	}
	return json.Marshal(payload)
}

// exchangeHTTP places a serialized HTTP request under a fresh
// request-key, sends a control packet pointing the remote side at it and
// at a fresh response-key, then reads and parses the response blob.
func (a *Adapter) exchangeHTTP(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	reqKey, err := blobstore.RandomKey(16)
	if err != nil {
		return nil, err
	}
	respKey, err := blobstore.RandomKey(16)
	if err != nil {
		return nil, err
	}

	raw, err := buildRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	if err := a.tr.Put(ctx, reqKey, raw); err != nil {
		return nil, err
	}
	defer a.tr.Delete(ctx, reqKey)

	trigger := encodeKeyPair(reqKey, respKey)
	if _, err := a.tr.PacketExchange(ctx, &blobstore.Packet{MagicCommand: cmdTrigger, Body: trigger}); err != nil {
		return nil, err
	}

	respBytes, err := a.tr.Get(ctx, respKey)
	if err != nil {
		return nil, err
	}
	defer a.tr.Delete(ctx, respKey)

	return parseResponse(respBytes)
}

func encodeKeyPair(reqKey, respKey string) []byte {
	out := []byte{byte(len(reqKey))}
	out = append(out, reqKey...)
	out = append(out, byte(len(respKey)))
	out = append(out, respKey...)
	return out
}
