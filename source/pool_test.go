/*
NAME
  pool_test.go

DESCRIPTION
  pool_test.go tests decoder pool slot selection and LRU replacement.

AUTHOR
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
	"testing"

	"github.com/ausocean/mediasource/decode"
)

// handleAt returns a handle whose logical frame number is n.
func handleAt(t *fakeVideo, n int64) *decode.Handle {
	h := decode.NewHandle(&fakeVideoBackend{t: t})
	h.SetFrameNumber(n)
	return h
}

func TestPoolAcquirePrefersEmpty(t *testing.T) {
	track := newCFRVideo(10, 1)
	p := newPool()

	p.slots[0] = handleAt(track, 0)
	p.touch(0)

	if got := p.acquire(); got == 0 {
		t.Error("acquire() evicted an occupied slot while empty slots exist")
	}
}

func TestPoolAcquireEvictsLRU(t *testing.T) {
	track := newCFRVideo(10, 1)
	p := newPool()

	for i := 0; i < maxDecoders; i++ {
		p.slots[i] = handleAt(track, int64(i))
		p.touch(i)
	}
	// Refresh all but slot 2.
	p.touch(0)
	p.touch(1)
	p.touch(3)

	if got := p.acquire(); got != 2 {
		t.Errorf("acquire() = slot %d, want LRU slot 2", got)
	}
	if p.slots[2] != nil {
		t.Error("acquire() did not drop the evicted handle")
	}
}

func TestPoolNearHit(t *testing.T) {
	track := newCFRVideo(1000, 1)
	p := newPool()

	p.slots[1] = handleAt(track, 480)
	p.touch(1)

	if got := p.nearHit(450, 500); got != 1 {
		t.Errorf("nearHit(450, 500) = %d, want 1", got)
	}
	if got := p.nearHit(481, 500); got != -1 {
		t.Errorf("nearHit(481, 500) = %d, want -1", got)
	}
	if got := p.nearHit(400, 479); got != -1 {
		t.Errorf("nearHit(400, 479) = %d, want -1", got)
	}
}

func TestPoolBestLinear(t *testing.T) {
	track := newCFRVideo(1000, 1)
	p := newPool()

	p.slots[0] = handleAt(track, 100)
	p.slots[1] = handleAt(track, 300)
	p.slots[2] = handleAt(track, 600) // Beyond the request.
	for i := 0; i < 3; i++ {
		p.touch(i)
	}

	if got := p.bestLinear(500, false); got != 1 {
		t.Errorf("bestLinear(500) = %d, want 1", got)
	}

	// forceUnseeked skips handles that have seeked.
	p.slots[1].Seek(300 * 100)
	p.slots[1].SetFrameNumber(300)
	if got := p.bestLinear(500, true); got != 0 {
		t.Errorf("bestLinear(500, forceUnseeked) = %d, want 0", got)
	}
}

func TestPoolSetMax(t *testing.T) {
	track := newCFRVideo(10, 1)
	p := newPool()
	for i := 0; i < maxDecoders; i++ {
		p.slots[i] = handleAt(track, int64(i))
		p.touch(i)
	}

	if got := p.setMax(2); got != 2 {
		t.Errorf("setMax(2) = %d", got)
	}
	if p.slots[2] != nil || p.slots[3] != nil {
		t.Error("setMax() left decoders beyond the bound")
	}
	if got := p.setMax(0); got != 1 {
		t.Errorf("setMax(0) = %d, want clamp to 1", got)
	}
	if got := p.setMax(99); got != maxDecoders {
		t.Errorf("setMax(99) = %d, want clamp to %d", got, maxDecoders)
	}
}
