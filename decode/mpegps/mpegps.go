/*
NAME
  mpegps.go

DESCRIPTION
  mpegps.go contains a decode backend for mpeg-1 program stream video built
  on the gen2brain mpeg decoder.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mpegps provides an mpeg-1 program stream video decode backend.
// Frames carry tri-planar 4:2:0 YCbCr pixels with a 90 kHz time base.
// Seeks land on the intra frame at or before the requested timestamp.
package mpegps

import (
	"io"
	"math"
	"os"
	"time"

	"github.com/gen2brain/mpeg"
	"github.com/pkg/errors"

	"github.com/ausocean/mediasource/decode"
)

// ClockRate is the mpeg system clock in Hz, used as the PTS time base.
const ClockRate = 90000

func init() {
	decode.Register(decode.Opener{
		Name:  "mpegps",
		Type:  decode.Video,
		Match: decode.MatchExt(".mpg", ".mpeg", ".m1v", ".ps"),
		Open:  open,
	})
}

// backend implements decode.Backend for mpeg-1 program stream sources.
type backend struct {
	f     *os.File
	m     *mpeg.MPEG
	props decode.Properties
	size  int64
}

func open(source string, track int, opts decode.Options) (decode.Backend, error) {
	if track != 0 && track != -1 {
		return nil, &decode.InvalidTrackError{Track: track, Type: decode.Video}
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, &decode.OpenError{Msg: "opening '" + source + "'", Err: err}
	}

	m, err := mpeg.New(f)
	if err != nil {
		f.Close()
		return nil, &decode.OpenError{Msg: "parsing mpeg stream", Err: err}
	}
	m.SetAudioEnabled(false)

	b := &backend{f: f, m: m}
	if fi, err := f.Stat(); err == nil {
		b.size = fi.Size()
	} else {
		b.size = -1
	}

	fps := m.Framerate()
	fpsNum, fpsDen := int(math.Round(fps*1000)), 1000
	numFrames := int64(-1)
	if d := m.Duration(); d > 0 && fps > 0 {
		numFrames = int64(d.Seconds() * fps)
	}

	w, h := m.Width(), m.Height()
	b.props = decode.Properties{
		Type: decode.Video,
		Video: decode.VideoProperties{
			TimeBase:     decode.Rational{Num: 1, Den: ClockRate},
			FPS:          decode.Rational{Num: fpsNum, Den: fpsDen},
			SAR:          decode.Rational{Num: 1, Den: 1},
			Duration:     int64(m.Duration().Seconds() * ClockRate),
			NumFrames:    numFrames,
			Width:        w,
			Height:       h,
			SSModWidth:   w - w%2,
			SSModHeight:  h - h%2,
			SubSamplingW: 1,
			SubSamplingH: 1,
			Bits:         8,
		},
	}

	return b, nil
}

func (b *backend) ReadFrame() (*decode.Frame, error) {
	frame := b.m.DecodeVideo()
	if frame == nil {
		return nil, io.EOF
	}

	fps := b.props.Video.FPS
	var duration int64
	if fps.Num > 0 {
		duration = int64(math.Round(float64(ClockRate*fps.Den) / float64(fps.Num)))
	}

	f := &decode.Frame{
		PTS:      int64(math.Round(frame.Time * ClockRate)),
		Duration: duration,
		// Picture types are not exposed by the decoder; seek targets that
		// turn out not to be random-access points fail hash verification
		// and are blacklisted by the caller.
		KeyFrame: true,
		Video: &decode.VideoPayload{
			Width:          b.props.Video.Width,
			Height:         b.props.Video.Height,
			SubSamplingW:   1,
			SubSamplingH:   1,
			BytesPerSample: 1,
			Planes: [][]byte{
				append([]byte(nil), frame.Y.Data...),
				append([]byte(nil), frame.Cb.Data...),
				append([]byte(nil), frame.Cr.Data...),
			},
			Linesize: []int{frame.Y.Width, frame.Cb.Width, frame.Cr.Width},
		},
	}
	return f, nil
}

// Seek positions so that the next ReadFrame returns the intra frame at or
// before pts.
func (b *backend) Seek(pts int64) error {
	if pts < 0 {
		pts = 0
	}
	if !b.m.Seek(time.Duration(float64(pts)/ClockRate*float64(time.Second)), false) {
		return errors.Errorf("seek to pts %d failed", pts)
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
