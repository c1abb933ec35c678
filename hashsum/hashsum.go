/*
NAME
  hashsum.go

DESCRIPTION
  hashsum.go contains functions for computing stable 64-bit content digests
  over decoded media payloads.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package hashsum computes 64-bit content digests over the significant bytes
// of decoded frames. The digest is XXH64 and forms part of the on-disk index
// format, so the algorithm must not change between releases.
package hashsum

import (
	"github.com/cespare/xxhash/v2"
)

// Size is the number of bytes in a digest when serialized.
const Size = 8

// Video digests the active bytes of each plane in plane order, row by row.
// linesize gives the allocated bytes per row for each plane and active the
// number of significant bytes per row; padding between active and linesize
// is excluded so the digest is independent of allocator alignment.
func Video(planes [][]byte, linesize, active, heights []int) uint64 {
	d := xxhash.New()
	for p := range planes {
		data := planes[p]
		for h := 0; h < heights[p]; h++ {
			row := data[h*linesize[p]:]
			d.Write(row[:active[p]])
		}
	}
	return d.Sum64()
}

// Planar digests n bytes from each channel buffer in channel order.
func Planar(channels [][]byte, n int) uint64 {
	d := xxhash.New()
	for _, ch := range channels {
		d.Write(ch[:n])
	}
	return d.Sum64()
}

// Packed digests n bytes of interleaved sample data as a single update.
func Packed(data []byte, n int) uint64 {
	return xxhash.Sum64(data[:n])
}
