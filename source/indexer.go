/*
NAME
  indexer.go

DESCRIPTION
  indexer.go contains the one-shot linear decode that populates a track
  index, reporting progress through the caller's callback.

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
	"math"

	"github.com/ausocean/mediasource/decode"
)

// indexTrack linearly decodes a whole track on a dedicated decoder, passing
// each frame to record. The decoder is discarded on completion. Returning
// false from progress cancels indexing with ErrCanceled.
func indexTrack(newDecoder func() (*decode.Handle, error), progress ProgressFunc, record func(*decode.Frame)) error {
	h, err := newDecoder()
	if err != nil {
		return err
	}
	defer h.Close()

	size := int64(-1)
	if progress != nil {
		size = h.SourceSize()
	}

	for {
		// Decode failures end the track the same way exhaustion does;
		// the index simply stops at the last good frame.
		f, _ := h.ReadFrame()
		if f == nil {
			break
		}
		record(f)
		if progress != nil && !progress(h.Track(), h.SourcePosition(), size) {
			return ErrCanceled
		}
	}

	if progress != nil {
		progress(h.Track(), math.MaxInt64, math.MaxInt64)
	}
	return nil
}
