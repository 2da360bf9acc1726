// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Key-value blob operations layered on PacketExchange: put/get/delete/list
// against the volatile namespace, with fragmentation for values larger
// than one packet, per spec.md §4.6.

package blobstore

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/linuxboot/uefisettings/pkg/kind"
)

// blobHeader is this transport's body prefix for every blob operation:
// key, namespace, and the fragment's offset/total length within the
// value being transferred.
type blobHeader struct {
	Key       string
	Namespace string
	Offset    uint32
	Total     uint32
}

func (h blobHeader) encode() []byte {
	out := []byte{byte(len(h.Key))}
	out = append(out, h.Key...)
	out = append(out, byte(len(h.Namespace)))
	out = append(out, h.Namespace...)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint32(lenBuf[0:4], h.Offset)
	binary.LittleEndian.PutUint32(lenBuf[4:8], h.Total)
	return append(out, lenBuf[:]...)
}

func decodeBlobHeader(b []byte) (blobHeader, []byte, error) {
	if len(b) < 1 {
		return blobHeader{}, nil, kind.New(kind.ParseError, "blobstore.decodeBlobHeader", fmt.Errorf("empty body"))
	}
	keyLen := int(b[0])
	if len(b) < 1+keyLen+1 {
		return blobHeader{}, nil, kind.New(kind.ParseError, "blobstore.decodeBlobHeader", fmt.Errorf("truncated key"))
	}
	key := string(b[1 : 1+keyLen])
	nsLenPos := 1 + keyLen
	nsLen := int(b[nsLenPos])
	nsStart := nsLenPos + 1
	if len(b) < nsStart+nsLen+8 {
		return blobHeader{}, nil, kind.New(kind.ParseError, "blobstore.decodeBlobHeader", fmt.Errorf("truncated namespace/lengths"))
	}
	ns := string(b[nsStart : nsStart+nsLen])
	rest := b[nsStart+nsLen:]
	h := blobHeader{
		Key:       key,
		Namespace: ns,
		Offset:    binary.LittleEndian.Uint32(rest[0:4]),
		Total:     binary.LittleEndian.Uint32(rest[4:8]),
	}
	return h, rest[8:], nil
}

// Put writes value under key in the volatile namespace, fragmenting it
// into WriteFragmentChunkSize()-sized pieces if necessary. The sequence
// contract is per-exchange, not per-value: each fragment is its own
// packet_exchange with its own sequence number.
func (t *Transport) Put(ctx context.Context, key string, value []byte) error {
	chunkSize := t.WriteFragmentChunkSize()
	total := uint32(len(value))
	for offset := 0; offset < len(value) || offset == 0; offset += chunkSize {
		end := offset + chunkSize
		if end > len(value) {
			end = len(value)
		}
		chunk := value[offset:end]
		header := blobHeader{Key: key, Namespace: Namespace, Offset: uint32(offset), Total: total}
		body := append(header.encode(), chunk...)
		cmd := cmdWrite
		if offset > 0 {
			cmd = cmdFragment
		}
		if _, err := t.PacketExchange(ctx, &Packet{MagicCommand: cmd, Body: body}); err != nil {
			return err
		}
		if len(value) == 0 {
			break
		}
	}
	return nil
}

// Get reads the value stored under key, issuing read-fragment exchanges
// until the declared total length is consumed, per spec.md §4.6.
func (t *Transport) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	offset := uint32(0)
	for {
		header := blobHeader{Key: key, Namespace: Namespace, Offset: offset, Total: 0}
		resp, err := t.PacketExchange(ctx, &Packet{MagicCommand: cmdRead, Body: header.encode()})
		if err != nil {
			return nil, err
		}
		got, chunk, err := decodeBlobHeader(resp.Body)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		offset = got.Offset + uint32(len(chunk))
		if got.Total == 0 || offset >= got.Total {
			break
		}
	}
	return out, nil
}

// Delete removes key from the volatile namespace.
func (t *Transport) Delete(ctx context.Context, key string) error {
	header := blobHeader{Key: key, Namespace: Namespace}
	_, err := t.PacketExchange(ctx, &Packet{MagicCommand: cmdDelete, Body: header.encode()})
	return err
}

// List enumerates keys in the volatile namespace. spec.md §4.6 notes this
// operation is "known to be unreliable" on real hardware; callers should
// treat an error here as advisory, not a hard failure of the session.
func (t *Transport) List(ctx context.Context) ([]string, error) {
	header := blobHeader{Namespace: Namespace}
	resp, err := t.PacketExchange(ctx, &Packet{MagicCommand: cmdList, Body: header.encode()})
	if err != nil {
		return nil, err
	}
	var keys []string
	rest := resp.Body
	for len(rest) > 0 {
		n := int(rest[0])
		if len(rest) < 1+n {
			break
		}
		keys = append(keys, string(rest[1:1+n]))
		rest = rest[1+n:]
	}
	return keys, nil
}
