/*
NAME
  handle.go

DESCRIPTION
  handle.go contains Handle, the thin stateful wrapper around one backend
  that tracks the logical frame and sample numbers, the seeked flag, and
  applies the first-seek priming quirk for decoders that need it.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package decode

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

// Handle wraps one Backend with the logical position bookkeeping the seek
// machinery relies on. The frame number is the number of the frame the next
// ReadFrame call will produce, and is math.MinInt64 from a seek until the
// caller re-anchors it with SetFrameNumber.
type Handle struct {
	backend Backend
	props   Properties

	frameNum  int64
	sampleNum int64
	seeked    bool
	hasMore   bool
}

// NewHandle wraps a backend positioned at the start of its track.
func NewHandle(b Backend) *Handle {
	return &Handle{
		backend: b,
		props:   b.Properties(),
		hasMore: true,
	}
}

// ReadFrame returns the next decoded frame and advances the logical
// position. io.EOF is returned at end of track, after which HasMore
// reports false.
func (h *Handle) ReadFrame() (*Frame, error) {
	if !h.hasMore {
		return nil, io.EOF
	}
	f, err := h.backend.ReadFrame()
	if err != nil {
		h.hasMore = false
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &DecodeError{Msg: "reading frame", Err: err}
	}
	h.frameNum++
	if f.Audio != nil {
		h.sampleNum += int64(f.Audio.NumSamples)
	}
	return f, nil
}

// SkipFrames decodes and discards count frames, or as many as remain. It
// reports whether more frames are available afterwards.
func (h *Handle) SkipFrames(count int64) bool {
	for count > 0 && h.hasMore {
		if _, err := h.ReadFrame(); err != nil {
			break
		}
		count--
	}
	return h.hasMore
}

// Seek flushes the decoder and repositions to a random-access point at or
// before pts. The logical frame number becomes unknown until re-anchored.
// On failure the handle is unusable and should be dropped.
func (h *Handle) Seek(pts int64) error {
	// Some decoders misread leading stream metadata unless they have
	// decoded from the head once; burn one frame before the first seek.
	if !h.seeked && h.props.seekPriming() {
		h.SkipFrames(1)
	}
	h.seeked = true
	h.frameNum = math.MinInt64
	h.sampleNum = math.MinInt64
	err := h.backend.Seek(pts)
	h.hasMore = err == nil
	return err
}

// SetFrameNumber re-anchors the logical frame number after the seek
// resolver has identified the decoder position.
func (h *Handle) SetFrameNumber(n int64) {
	h.frameNum = n
}

// SetSampleNumber re-anchors the logical sample number (audio tracks).
func (h *Handle) SetSampleNumber(n int64) {
	h.sampleNum = n
}

// FrameNumber returns the number of the frame the next ReadFrame will
// produce.
func (h *Handle) FrameNumber() int64 { return h.frameNum }

// SampleNumber returns the absolute sample position of the next frame.
func (h *Handle) SampleNumber() int64 { return h.sampleNum }

// HasMore reports whether the track may produce further frames.
func (h *Handle) HasMore() bool { return h.hasMore }

// Seeked reports whether the handle has ever seeked.
func (h *Handle) Seeked() bool { return h.seeked }

// Properties returns the stream-level track description.
func (h *Handle) Properties() Properties { return h.props }

// Track returns the resolved track number.
func (h *Handle) Track() int { return h.backend.Track() }

// SourceSize returns the source size in bytes, or -1 when unknown.
func (h *Handle) SourceSize() int64 { return h.backend.Size() }

// SourcePosition returns the current byte offset in the source.
func (h *Handle) SourcePosition() int64 { return h.backend.Position() }

// Close releases the backend.
func (h *Handle) Close() error { return h.backend.Close() }

func (p Properties) seekPriming() bool {
	if p.Type == Video {
		return p.Video.SeekPriming
	}
	return p.Audio.SeekPriming
}
