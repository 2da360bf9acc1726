// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package blobstore

import (
	"context"
	"testing"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

// fakeDevice answers packet_exchange in-process, bypassing /dev/hpilo so
// the transport's sequence/error-code validation can be exercised without
// real hardware.
type fakeDevice struct {
	// respond builds a raw response buffer from the marshaled request.
	respond func(req []byte) []byte
	closed  bool
}

func (d *fakeDevice) exchange(ctx context.Context, req []byte, recvLen int) ([]byte, error) {
	return d.respond(req), nil
}

func (d *fakeDevice) close() error {
	d.closed = true
	return nil
}

func echoResponse(req []byte) []byte {
	resp, _ := UnmarshalPacket(req)
	return resp.Marshal()
}

func TestPacketExchangeSuccess(t *testing.T) {
	tr := &Transport{dev: &fakeDevice{respond: echoResponse}, state: stateReady, maxBuf: defaultMaxBufferSize}
	resp, err := tr.PacketExchange(context.Background(), &Packet{MagicCommand: cmdPing})
	if err != nil {
		t.Fatalf("PacketExchange: %v", err)
	}
	if resp.MagicCommand != cmdPing {
		t.Errorf("MagicCommand = %#x", resp.MagicCommand)
	}
}

func TestPacketExchangeSequenceMismatch(t *testing.T) {
	dev := &fakeDevice{respond: func(req []byte) []byte {
		resp, _ := UnmarshalPacket(req)
		resp.Sequence++
		return resp.Marshal()
	}}
	tr := &Transport{dev: dev, state: stateReady, maxBuf: defaultMaxBufferSize}
	_, err := tr.PacketExchange(context.Background(), &Packet{MagicCommand: cmdPing})
	if !kind.Is(err, kind.TransportError) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	e, _ := kind.Of(err)
	if e.Transport == nil || e.Transport.WantSeq == e.Transport.GotSeq {
		t.Errorf("expected mismatched sequence evidence, got %+v", e.Transport)
	}
}

func TestPacketExchangeNonZeroErrorCode(t *testing.T) {
	dev := &fakeDevice{respond: func(req []byte) []byte {
		resp, _ := UnmarshalPacket(req)
		resp.ErrorCode = 7
		return resp.Marshal()
	}}
	tr := &Transport{dev: dev, state: stateReady, maxBuf: defaultMaxBufferSize}
	_, err := tr.PacketExchange(context.Background(), &Packet{MagicCommand: cmdPing})
	if !kind.Is(err, kind.TransportError) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	e, _ := kind.Of(err)
	if e.Transport == nil || e.Transport.ErrorCode != 7 {
		t.Errorf("expected ErrorCode=7 in evidence, got %+v", e.Transport)
	}
}

func TestPacketExchangeNotReady(t *testing.T) {
	tr := &Transport{dev: &fakeDevice{respond: echoResponse}, state: stateClosed}
	_, err := tr.PacketExchange(context.Background(), &Packet{MagicCommand: cmdPing})
	if !kind.Is(err, kind.TransportError) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestCloseTransitionsState(t *testing.T) {
	dev := &fakeDevice{respond: echoResponse}
	tr := &Transport{dev: dev, state: stateReady}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !dev.closed {
		t.Error("expected underlying device to be closed")
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}

// keyedDevice backs a per-key blob store entirely in memory, letting
// Put/Get/Delete/List be exercised including fragmentation, without any
// real BlobStore2 session.
type keyedDevice struct {
	blobs map[string][]byte
}

func newKeyedDevice() *keyedDevice { return &keyedDevice{blobs: map[string][]byte{}} }

func (d *keyedDevice) exchange(ctx context.Context, req []byte, recvLen int) ([]byte, error) {
	reqPkt, err := UnmarshalPacket(req)
	if err != nil {
		return nil, err
	}
	resp := &Packet{MagicCommand: reqPkt.MagicCommand, Sequence: reqPkt.Sequence}

	switch reqPkt.MagicCommand {
	case cmdWrite, cmdFragment:
		h, chunk, err := decodeBlobHeader(reqPkt.Body)
		if err != nil {
			resp.ErrorCode = 1
			return resp.Marshal(), nil
		}
		existing := d.blobs[h.Key]
		if int(h.Offset)+len(chunk) > len(existing) {
			grown := make([]byte, int(h.Offset)+len(chunk))
			copy(grown, existing)
			existing = grown
		}
		copy(existing[h.Offset:], chunk)
		d.blobs[h.Key] = existing

	case cmdRead:
		h, _, err := decodeBlobHeader(reqPkt.Body)
		if err != nil {
			resp.ErrorCode = 1
			return resp.Marshal(), nil
		}
		full, ok := d.blobs[h.Key]
		if !ok {
			resp.ErrorCode = 2
			return resp.Marshal(), nil
		}
		const fragment = 8
		end := int(h.Offset) + fragment
		if end > len(full) {
			end = len(full)
		}
		out := blobHeader{Key: h.Key, Namespace: h.Namespace, Offset: h.Offset, Total: uint32(len(full))}
		resp.Body = append(out.encode(), full[h.Offset:end]...)

	case cmdDelete:
		h, _, _ := decodeBlobHeader(reqPkt.Body)
		delete(d.blobs, h.Key)

	case cmdList:
		for k := range d.blobs {
			resp.Body = append(resp.Body, byte(len(k)))
			resp.Body = append(resp.Body, k...)
		}
	}
	return resp.Marshal(), nil
}

func (d *keyedDevice) close() error { return nil }

func TestPutGetRoundTripFragmented(t *testing.T) {
	dev := newKeyedDevice()
	tr := &Transport{dev: dev, state: stateReady, maxBuf: defaultMaxBufferSize}

	// Larger than WriteFragmentChunkSize so Put issues more than one
	// cmdWrite/cmdFragment exchange and Get issues more than one
	// cmdRead exchange (the fake device serves 8 bytes per read).
	value := make([]byte, tr.WriteFragmentChunkSize()+500)
	for i := range value {
		value[i] = byte(i)
	}

	if err := tr.Put(context.Background(), "mykey", value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := tr.Get(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(value) {
		t.Errorf("round trip mismatch: got %d bytes want %d bytes", len(got), len(value))
	}
}

func TestPutEmptyValue(t *testing.T) {
	dev := newKeyedDevice()
	tr := &Transport{dev: dev, state: stateReady, maxBuf: defaultMaxBufferSize}

	if err := tr.Put(context.Background(), "empty", nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := tr.Get(context.Background(), "empty")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Get = %v, want empty", got)
	}
}

func TestDeleteThenGetNotFound(t *testing.T) {
	dev := newKeyedDevice()
	tr := &Transport{dev: dev, state: stateReady, maxBuf: defaultMaxBufferSize}

	if err := tr.Put(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := tr.Delete(context.Background(), "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err := tr.Get(context.Background(), "k")
	if !kind.Is(err, kind.TransportError) {
		t.Fatalf("expected TransportError after delete, got %v", err)
	}
}

func TestListReturnsStoredKeys(t *testing.T) {
	dev := newKeyedDevice()
	tr := &Transport{dev: dev, state: stateReady, maxBuf: defaultMaxBufferSize}

	for _, k := range []string{"a", "b", "c"} {
		if err := tr.Put(context.Background(), k, []byte("x")); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}
	keys, err := tr.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("List = %v, want 3 keys", keys)
	}
}
