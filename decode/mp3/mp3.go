/*
NAME
  mp3.go

DESCRIPTION
  mp3.go contains a decode backend for mpeg layer III audio built on the
  hajimehoshi mp3 decoder.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mp3 provides an mp3 audio decode backend. The decoder always
// produces 16-bit interleaved stereo; frames are fixed spans of samples
// sized to the layer III granule.
package mp3

import (
	"io"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/pkg/errors"

	"github.com/ausocean/mediasource/decode"
	"github.com/ausocean/mediasource/pcm"
)

// FrameSamples is the number of samples served per decoded frame, matching
// the layer III granule size.
const FrameSamples = 1152

// Decoded output is always 16-bit stereo.
const (
	channels       = 2
	bytesPerSample = 2
	frameBytes     = FrameSamples * channels * bytesPerSample
)

func init() {
	decode.Register(decode.Opener{
		Name:  "mp3",
		Type:  decode.Audio,
		Match: decode.MatchExt(".mp3"),
		Open:  open,
	})
}

// backend implements decode.Backend for mp3 sources.
type backend struct {
	f      *os.File
	dec    *gomp3.Decoder
	props  decode.Properties
	size   int64
	sample int64 // Sample position of the next frame.
}

func open(source string, track int, opts decode.Options) (decode.Backend, error) {
	if track != 0 && track != -1 {
		return nil, &decode.InvalidTrackError{Track: track, Type: decode.Audio}
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, &decode.OpenError{Msg: "opening '" + source + "'", Err: err}
	}

	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, &decode.OpenError{Msg: "parsing mp3 stream", Err: err}
	}

	b := &backend{f: f, dec: dec}
	if fi, err := f.Stat(); err == nil {
		b.size = fi.Size()
	} else {
		b.size = -1
	}

	numSamples := int64(-1)
	if l := dec.Length(); l > 0 {
		numSamples = l / (channels * bytesPerSample)
	}

	b.props = decode.Properties{
		Type: decode.Audio,
		Audio: decode.AudioProperties{
			TimeBase:         decode.Rational{Num: 1, Den: dec.SampleRate()},
			SampleRate:       dec.SampleRate(),
			Channels:         channels,
			Format:           pcm.S16_LE,
			Planar:           false,
			BitsPerRawSample: 16,
			NumSamples:       numSamples,
		},
	}

	return b, nil
}

func (b *backend) ReadFrame() (*decode.Frame, error) {
	data := make([]byte, frameBytes)
	n, err := io.ReadFull(b.dec, data)
	if n == 0 {
		if err == io.EOF || err == io.ErrUnexpectedEOF || err == nil {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "decoding mp3")
	}
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, errors.Wrap(err, "decoding mp3")
	}

	samples := n / (channels * bytesPerSample)
	f := &decode.Frame{
		PTS:      b.sample,
		Duration: int64(samples),
		KeyFrame: true,
		Audio: &decode.AudioPayload{
			NumSamples:     samples,
			Channels:       channels,
			BytesPerSample: bytesPerSample,
			Planar:         false,
			Data:           [][]byte{data[:samples*channels*bytesPerSample]},
		},
	}
	b.sample += int64(samples)
	return f, nil
}

// Seek repositions to the start of the frame containing pts. The decoded
// stream is addressable by byte, so the seek is frame-aligned and exact.
func (b *backend) Seek(pts int64) error {
	if pts < 0 {
		pts = 0
	}
	target := pts - pts%FrameSamples
	if _, err := b.dec.Seek(target*channels*bytesPerSample, io.SeekStart); err != nil {
		return errors.Wrap(err, "seeking mp3 stream")
	}
	b.sample = target
	return nil
}

func (b *backend) Position() int64 {
	if pos, err := b.f.Seek(0, io.SeekCurrent); err == nil {
		return pos
	}
	return 0
}

func (b *backend) Size() int64 { return b.size }

func (b *backend) Track() int { return 0 }

func (b *backend) Properties() decode.Properties { return b.props }

func (b *backend) Close() error { return b.f.Close() }
