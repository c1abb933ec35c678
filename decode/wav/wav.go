/*
NAME
  wav.go

DESCRIPTION
  wav.go contains a decode backend for RIFF/WAVE pcm audio built on the
  go-audio wav decoder.

AUTHORS
  David Sutton <davidsutton@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package wav provides a wav audio decode backend. Frames are fixed spans
// of pcm samples addressed by sample position, with a time base of one over
// the sample rate.
package wav

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/ausocean/mediasource/decode"
	"github.com/ausocean/mediasource/pcm"
)

// FrameSamples is the number of samples served per decoded frame.
const FrameSamples = 1024

func init() {
	decode.Register(decode.Opener{
		Name:  "wav",
		Type:  decode.Audio,
		Match: decode.MatchExt(".wav", ".wave"),
		Open:  open,
	})
}

// backend implements decode.Backend for wav sources.
type backend struct {
	f       *os.File
	dec     *wav.Decoder
	props   decode.Properties
	size    int64
	sample  int64 // Sample position of the next frame.
	samples int64 // Total samples in the data chunk, -1 when unknown.
	buf     *audio.IntBuffer
}

func open(source string, track int, opts decode.Options) (decode.Backend, error) {
	if track != 0 && track != -1 {
		return nil, &decode.InvalidTrackError{Track: track, Type: decode.Audio}
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, &decode.OpenError{Msg: "opening '" + source + "'", Err: err}
	}

	b := &backend{f: f}
	if fi, err := f.Stat(); err == nil {
		b.size = fi.Size()
	} else {
		b.size = -1
	}

	b.dec = wav.NewDecoder(f)
	b.dec.ReadInfo()
	if !b.dec.IsValidFile() {
		f.Close()
		return nil, &decode.OpenError{Msg: "'" + source + "' is not a valid wav file"}
	}
	if err := b.dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, &decode.OpenError{Msg: "locating pcm data", Err: err}
	}

	depth := int(b.dec.BitDepth)
	format := pcm.S16_LE
	if depth > 16 {
		format = pcm.S32_LE
	} else if depth <= 8 {
		format = pcm.U8
	}

	b.samples = -1
	if bytesPerFrame := int64(b.dec.NumChans) * int64(depth/8); bytesPerFrame > 0 {
		b.samples = b.dec.PCMLen() / bytesPerFrame
	}

	b.props = decode.Properties{
		Type: decode.Audio,
		Audio: decode.AudioProperties{
			TimeBase:         decode.Rational{Num: 1, Den: int(b.dec.SampleRate)},
			SampleRate:       int(b.dec.SampleRate),
			Channels:         int(b.dec.NumChans),
			Format:           format,
			Planar:           false,
			BitsPerRawSample: depth,
			NumSamples:       b.samples,
		},
	}

	b.buf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: int(b.dec.NumChans), SampleRate: int(b.dec.SampleRate)},
		Data:           make([]int, FrameSamples*int(b.dec.NumChans)),
		SourceBitDepth: depth,
	}

	return b, nil
}

func (b *backend) ReadFrame() (*decode.Frame, error) {
	n, err := b.dec.PCMBuffer(b.buf)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, io.EOF
	}

	ch := b.props.Audio.Channels
	bps := b.props.Audio.BytesPerSample()
	samples := n / ch
	data := make([]byte, samples*ch*bps)
	for i := 0; i < samples*ch; i++ {
		putSample(data[i*bps:], b.buf.Data[i], bps)
	}

	f := &decode.Frame{
		PTS:      b.sample,
		Duration: int64(samples),
		KeyFrame: true,
		Audio: &decode.AudioPayload{
			NumSamples:     samples,
			Channels:       ch,
			BytesPerSample: bps,
			Planar:         false,
			Data:           [][]byte{data},
		},
	}
	b.sample += int64(samples)
	return f, nil
}

// Seek repositions to the start of the frame containing pts by rewinding
// and skipping, which keeps the decoder's own buffering intact.
func (b *backend) Seek(pts int64) error {
	if pts < 0 {
		pts = 0
	}
	target := pts - pts%FrameSamples

	if err := b.dec.Rewind(); err != nil {
		return errors.Wrap(err, "rewinding wav")
	}
	if err := b.dec.FwdToPCM(); err != nil {
		return errors.Wrap(err, "relocating pcm data")
	}
	b.sample = 0

	for b.sample < target {
		n, err := b.dec.PCMBuffer(b.buf)
		if n == 0 {
			return errors.Wrap(err, "seek past end of pcm data")
		}
		b.sample += int64(n / b.props.Audio.Channels)
	}
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

func putSample(dst []byte, v, bps int) {
	switch bps {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(int16(v)))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(int32(v)))
	}
}
