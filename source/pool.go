/*
NAME
  pool.go

DESCRIPTION
  pool.go contains the fixed-size pool of decoder handles with least
  recently used replacement and positional queries.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package source

import (
	"github.com/ausocean/mediasource/decode"
)

// maxDecoders is the number of pool slots.
const maxDecoders = 4

// pool holds up to maxDecoders decoder handles, each slot carrying a
// monotonic last-use sequence for LRU replacement. The pool provides no
// locking; a source is single-owner.
type pool struct {
	slots   [maxDecoders]*decode.Handle
	lastUse [maxDecoders]uint64
	seq     uint64
	max     int
}

func newPool() *pool {
	return &pool{max: maxDecoders}
}

// setMax bounds the number of usable slots to 1..maxDecoders and returns
// the applied value. Excess decoders are dropped immediately.
func (p *pool) setMax(n int) int {
	if n < 1 {
		n = 1
	}
	if n > maxDecoders {
		n = maxDecoders
	}
	p.max = n
	for i := n; i < maxDecoders; i++ {
		p.drop(i)
	}
	return n
}

// touch marks slot i as most recently used.
func (p *pool) touch(i int) {
	p.seq++
	p.lastUse[i] = p.seq
}

// nearHit returns a slot whose handle is already positioned in
// [seekFrame, n] so the request can be served linearly, or -1.
func (p *pool) nearHit(seekFrame, n int64) int {
	for i := 0; i < p.max; i++ {
		h := p.slots[i]
		if h != nil && h.FrameNumber() >= seekFrame && h.FrameNumber() <= n {
			return i
		}
	}
	return -1
}

// bestLinear returns the slot whose handle has the largest frame number
// not beyond n, optionally skipping handles that have seeked, or -1.
func (p *pool) bestLinear(n int64, forceUnseeked bool) int {
	best := -1
	for i := 0; i < p.max; i++ {
		h := p.slots[i]
		if h == nil || (forceUnseeked && h.Seeked()) {
			continue
		}
		if h.FrameNumber() < 0 || h.FrameNumber() > n {
			continue
		}
		if best < 0 || p.slots[best].FrameNumber() < h.FrameNumber() {
			best = i
		}
	}
	return best
}

// acquire returns a slot for a new or repositioned decoder, preferring an
// empty slot and evicting the least recently used otherwise.
func (p *pool) acquire() int {
	lru := 0
	for i := 0; i < p.max; i++ {
		if p.slots[i] == nil {
			return i
		}
		if p.lastUse[i] < p.lastUse[lru] {
			lru = i
		}
	}
	p.drop(lru)
	return lru
}

// drop closes and clears slot i.
func (p *pool) drop(i int) {
	if p.slots[i] != nil {
		p.slots[i].Close()
		p.slots[i] = nil
	}
}

// dropAll closes and clears every slot.
func (p *pool) dropAll() {
	for i := range p.slots {
		p.drop(i)
	}
}
