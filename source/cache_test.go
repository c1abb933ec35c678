/*
NAME
  cache_test.go

DESCRIPTION
  cache_test.go tests the byte-bounded LRU frame cache.

AUTHOR
  Trek Hopton <trek@ausocean.org>

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

func audioFrameOfSize(n int) *decode.Frame {
	return &decode.Frame{
		Audio: &decode.AudioPayload{
			NumSamples:     n / 2,
			Channels:       1,
			BytesPerSample: 2,
			Data:           [][]byte{make([]byte, n)},
		},
	}
}

func TestCacheEviction(t *testing.T) {
	c := newFrameCache()
	c.setMaxSize(100)

	for i := int64(0); i < 5; i++ {
		c.put(i, audioFrameOfSize(40)) // 40 bytes each; only two fit.
	}

	if c.size > 100 {
		t.Errorf("cache size %d exceeds maximum 100", c.size)
	}
	if c.get(0) != nil || c.get(1) != nil || c.get(2) != nil {
		t.Error("oldest entries not evicted")
	}
	if c.get(3) == nil || c.get(4) == nil {
		t.Error("newest entries missing")
	}
}

func TestCacheLRUOrder(t *testing.T) {
	c := newFrameCache()
	c.setMaxSize(80)

	c.put(0, audioFrameOfSize(40))
	c.put(1, audioFrameOfSize(40))

	// Touch 0 so 1 becomes the eviction candidate.
	if c.get(0) == nil {
		t.Fatal("entry 0 missing")
	}
	c.put(2, audioFrameOfSize(40))

	if c.get(1) != nil {
		t.Error("least recently used entry survived")
	}
	if c.get(0) == nil || c.get(2) == nil {
		t.Error("recently used entries evicted")
	}
}

func TestCacheReplaceSameFrame(t *testing.T) {
	c := newFrameCache()
	c.put(7, audioFrameOfSize(40))
	c.put(7, audioFrameOfSize(60))

	if c.size != 60 {
		t.Errorf("cache size = %d after replacement, want 60", c.size)
	}
}

func TestCacheCopiesAreIndependent(t *testing.T) {
	c := newFrameCache()
	f := audioFrameOfSize(8)
	f.Audio.Data[0][0] = 42
	c.put(0, f)

	got := c.get(0)
	got.Audio.Data[0][0] = 99

	if again := c.get(0); again.Audio.Data[0][0] != 42 {
		t.Error("mutating a returned frame changed the cached copy")
	}
}

func TestCacheSetMaxSizeTrimsImmediately(t *testing.T) {
	c := newFrameCache()
	for i := int64(0); i < 4; i++ {
		c.put(i, audioFrameOfSize(50))
	}
	c.setMaxSize(100)
	if c.size > 100 {
		t.Errorf("cache size %d after setMaxSize(100)", c.size)
	}

	c.clear()
	if c.size != 0 || c.get(3) != nil {
		t.Error("clear() left entries behind")
	}
}
