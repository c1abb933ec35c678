/*
NAME
  flac.go

DESCRIPTION
  flac.go contains a decode backend for FLAC compressed audio built on the
  mewkiz flac stream parser.

AUTHOR
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package flac provides a flac audio decode backend. Frames map one to one
// onto flac blocks, addressed by sample position; seeks land on the start
// of the block containing the requested sample or an earlier one.
package flac

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/mewkiz/flac"
	"github.com/pkg/errors"

	"github.com/ausocean/mediasource/decode"
	"github.com/ausocean/mediasource/pcm"
)

func init() {
	decode.Register(decode.Opener{
		Name:  "flac",
		Type:  decode.Audio,
		Match: decode.MatchExt(".flac"),
		Open:  open,
	})
}

// backend implements decode.Backend for flac sources.
type backend struct {
	f      *os.File
	stream *flac.Stream
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

	stream, err := flac.NewSeek(f)
	if err != nil {
		f.Close()
		return nil, &decode.OpenError{Msg: "parsing flac stream", Err: err}
	}

	b := &backend{f: f, stream: stream}
	if fi, err := f.Stat(); err == nil {
		b.size = fi.Size()
	} else {
		b.size = -1
	}

	info := stream.Info
	depth := int(info.BitsPerSample)
	format := pcm.S16_LE
	if depth > 16 {
		format = pcm.S32_LE
	} else if depth <= 8 {
		format = pcm.U8
	}

	numSamples := int64(info.NSamples)
	if numSamples == 0 {
		numSamples = -1
	}

	b.props = decode.Properties{
		Type: decode.Audio,
		Audio: decode.AudioProperties{
			TimeBase:         decode.Rational{Num: 1, Den: int(info.SampleRate)},
			SampleRate:       int(info.SampleRate),
			Channels:         int(info.NChannels),
			Format:           format,
			Planar:           true,
			BitsPerRawSample: depth,
			NumSamples:       numSamples,
		},
	}

	return b, nil
}

func (b *backend) ReadFrame() (*decode.Frame, error) {
	fr, err := b.stream.ParseNext()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "parsing flac frame")
	}

	bps := b.props.Audio.BytesPerSample()
	samples := fr.Subframes[0].NSamples
	data := make([][]byte, len(fr.Subframes))
	for c, sub := range fr.Subframes {
		buf := make([]byte, samples*bps)
		for i := 0; i < samples; i++ {
			putSample(buf[i*bps:], sub.Samples[i], bps)
		}
		data[c] = buf
	}

	f := &decode.Frame{
		PTS:      b.sample,
		Duration: int64(samples),
		KeyFrame: true,
		Audio: &decode.AudioPayload{
			NumSamples:     samples,
			Channels:       len(fr.Subframes),
			BytesPerSample: bps,
			Planar:         true,
			Data:           data,
		},
	}
	b.sample += int64(samples)
	return f, nil
}

// Seek positions the stream at the start of the block containing pts. The
// position actually reached is reflected in the following frame's PTS.
func (b *backend) Seek(pts int64) error {
	if pts < 0 {
		pts = 0
	}
	got, err := b.stream.Seek(uint64(pts))
	if err != nil {
		return errors.Wrap(err, "seeking flac stream")
	}
	b.sample = int64(got)
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

func putSample(dst []byte, v int32, bps int) {
	switch bps {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(int16(v)))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	}
}
