// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// BlobStore2 transport: create/close/ping/set_timeout/max_buffer_size/
// packet_exchange over /dev/hpilo, plus the higher-level put/get/delete/
// list blob operations layered on top. See spec.md §4.6 and the state
// machine in §4.9.

package blobstore

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

type state int

const (
	stateUninit state = iota
	stateOpen
	stateReady
	stateExchanging
	stateClosed
)

// Namespace is the BlobStore2 namespace requests are made against.
// spec.md §4.6 names only "volatile"; entries there expire roughly an
// hour after creation.
const Namespace = "volatile"

const (
	defaultMaxBufferSize     = 4096
	defaultFragmentChunkSize = 4040 // observed payload room inside one packet
	defaultTimeout           = 10 * time.Second
)

// headerOffsetFallbackTried records that PacketExchange has already made
// its one attempt at the alternate header offsets, which it makes when a
// response header cannot be parsed, per the Open Question in spec.md §9
// about BlobStore packet headers drifting across firmware revisions.
var headerOffsetFallbackTried bool

// device is the platform hook opened over /dev/hpilo; implemented in
// transport_nix.go.
type device interface {
	exchange(ctx context.Context, req []byte, recvLen int) ([]byte, error)
	close() error
}

// Transport is a BlobStore2 session.
type Transport struct {
	dev     device
	state   state
	timeout time.Duration
	maxBuf  uint32
}

// Create opens /dev/hpilo and transitions Uninit -> Open -> Ready.
func Create(ctx context.Context) (*Transport, error) {
	dev, err := openDevice()
	if err != nil {
		return nil, err
	}
	return &Transport{dev: dev, state: stateReady, timeout: defaultTimeout, maxBuf: defaultMaxBufferSize}, nil
}

func (t *Transport) Close() error {
	if t.state == stateClosed {
		return nil
	}
	t.state = stateClosed
	return t.dev.close()
}

func (t *Transport) SetTimeout(d time.Duration) { t.timeout = d }

func (t *Transport) MaxBufferSize() uint32 { return t.maxBuf }

func (t *Transport) WriteFragmentChunkSize() int { return defaultFragmentChunkSize }

// Ping exchanges a zero-body packet with the PING command and expects a
// clean round trip.
func (t *Transport) Ping(ctx context.Context) error {
	_, err := t.PacketExchange(ctx, &Packet{MagicCommand: cmdPing})
	return err
}

// PacketExchange builds a request with a freshly generated sequence
// number, submits it via the device's ioctl, and validates the return
// code, response error code, and sequence-number equality, per spec.md
// §4.6's packet-exchange contract.
func (t *Transport) PacketExchange(ctx context.Context, req *Packet) (*Packet, error) {
	if t.state != stateReady {
		return nil, kind.New(kind.TransportError, "blobstore.PacketExchange", fmt.Errorf("transport not ready (state=%d)", t.state))
	}
	seq, err := NewSequence()
	if err != nil {
		return nil, err
	}
	req.Sequence = seq
	req.ErrorCode = 0

	t.state = stateExchanging
	raw, err := t.dev.exchange(ctx, req.Marshal(), int(t.maxBuf))
	t.state = stateReady
	if err != nil {
		return nil, kind.New(kind.TransportError, "blobstore.PacketExchange", err)
	}

	resp, perr := UnmarshalPacket(raw)
	if perr != nil {
		log.Printf("blobstore: packet_exchange returned unparseable header, raw bytes % x", raw)
		if !headerOffsetFallbackTried {
			headerOffsetFallbackTried = true
			if resp2, err2 := unmarshalWithFallbackOffsets(raw); err2 == nil {
				resp = resp2
				perr = nil
			}
		}
		if perr != nil {
			return nil, perr
		}
	}

	if resp.Sequence != seq {
		log.Printf("blobstore: packet_exchange sequence mismatch: want=%#x got=%#x code=%#x", seq, resp.Sequence, resp.ErrorCode)
		return nil, kind.TransportErrorf("blobstore.PacketExchange", kind.TransportEvidence{
			WantSeq: seq, GotSeq: resp.Sequence, ErrorCode: resp.ErrorCode,
		})
	}
	if resp.ErrorCode != 0 {
		log.Printf("blobstore: packet_exchange returned unknown status code %#x for command %#x", resp.ErrorCode, req.MagicCommand)
		return nil, kind.TransportErrorf("blobstore.PacketExchange", kind.TransportEvidence{
			WantSeq: seq, GotSeq: resp.Sequence, ErrorCode: resp.ErrorCode,
		})
	}
	return resp, nil
}

// unmarshalWithFallbackOffsets is the one-shot degraded header reader
// mentioned in spec.md §9: some firmware revisions place the sequence
// number and error code one word later than documented. It is tried
// exactly once per process and logged, never silently repeated.
func unmarshalWithFallbackOffsets(raw []byte) (*Packet, error) {
	if len(raw) < headerSize+4 {
		return nil, kind.New(kind.ParseError, "blobstore.unmarshalWithFallbackOffsets", fmt.Errorf("short packet: %d bytes", len(raw)))
	}
	shifted := raw[4:]
	return UnmarshalPacket(shifted)
}
