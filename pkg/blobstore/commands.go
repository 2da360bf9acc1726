// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package blobstore

// BlobStore2 command codes. These are reverse-engineered (spec.md §9)
// rather than published, so unknown codes observed on the wire are logged
// verbatim instead of rejected outright.
const (
	cmdPing     uint16 = 0x0001
	cmdCreate   uint16 = 0x0002
	cmdWrite    uint16 = 0x0003
	cmdRead     uint16 = 0x0004
	cmdDelete   uint16 = 0x0005
	cmdList     uint16 = 0x0006
	cmdInfo     uint16 = 0x0007
	cmdFragment uint16 = 0x0008
)
