/*
NAME
  cache.go

DESCRIPTION
  cache.go contains the byte-bounded least-recently-used cache of decoded
  frames keyed by logical frame number.

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
	"container/list"

	"github.com/ausocean/mediasource/decode"
)

// cacheEntry is one cached frame with its precomputed payload size.
type cacheEntry struct {
	frameNumber int64
	frame       *decode.Frame
	size        int64
}

// frameCache is a byte-bounded LRU of decoded frames, most recently used at
// the front. Put takes ownership of frames; Get hands out independent
// copies so callers are unaffected by eviction.
type frameCache struct {
	maxSize int64
	size    int64
	entries list.List // of *cacheEntry
}

func newFrameCache() *frameCache {
	return &frameCache{maxSize: DefaultMaxCacheSize}
}

func (c *frameCache) put(frameNumber int64, f *decode.Frame) {
	// Keep at most one copy of a frame; the older one goes.
	for e := c.entries.Front(); e != nil; e = e.Next() {
		ent := e.Value.(*cacheEntry)
		if ent.frameNumber == frameNumber {
			c.size -= ent.size
			c.entries.Remove(e)
			break
		}
	}

	ent := &cacheEntry{frameNumber: frameNumber, frame: f, size: f.Size()}
	c.entries.PushFront(ent)
	c.size += ent.size
	c.applyMaxSize()
}

func (c *frameCache) get(frameNumber int64) *decode.Frame {
	for e := c.entries.Front(); e != nil; e = e.Next() {
		ent := e.Value.(*cacheEntry)
		if ent.frameNumber == frameNumber {
			c.entries.MoveToFront(e)
			return ent.frame.Clone()
		}
	}
	return nil
}

func (c *frameCache) clear() {
	c.entries.Init()
	c.size = 0
}

func (c *frameCache) setMaxSize(bytes int64) {
	c.maxSize = bytes
	c.applyMaxSize()
}

func (c *frameCache) applyMaxSize() {
	for c.size > c.maxSize {
		e := c.entries.Back()
		if e == nil {
			break
		}
		c.size -= e.Value.(*cacheEntry).size
		c.entries.Remove(e)
	}
}
