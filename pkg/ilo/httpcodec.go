// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Raw HTTP/1.1 framing for Redfish requests carried as BlobStore2 blobs:
// building a request's wire bytes and streaming a response back out of
// them, per spec.md §4.7. This uses net/http's own request/response
// framing rather than a hand-rolled parser, since the corpus carries no
// third-party HTTP codec and net/http.Request.Write/http.ReadResponse
// already are the streaming, standards-correct implementation of what
// spec.md describes.

package ilo

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

// buildRequest serializes an HTTP/1.1 request to the exact bytes placed
// under a request-key in the blob store.
func buildRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, "http://ilo"+path, bytes.NewReader(body))
	if err != nil {
		return nil, kind.New(kind.ParseError, "ilo.buildRequest", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Host = "ilo"

	var buf bytes.Buffer
	if err := req.Write(&buf); err != nil {
		return nil, kind.New(kind.ParseError, "ilo.buildRequest", err)
	}
	return buf.Bytes(), nil
}

// parseResponse streams status/headers/body out of the raw bytes
// returned as the response blob.
func parseResponse(raw []byte) (*http.Response, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		return nil, kind.New(kind.ParseError, "ilo.parseResponse", err)
	}
	return resp, nil
}

func readJSONBody(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return kind.New(kind.ParseError, "ilo.readJSONBody", err)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return kind.New(kind.ParseError, "ilo.readJSONBody", err)
	}
	return nil
}
