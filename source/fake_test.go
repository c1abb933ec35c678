/*
NAME
  fake_test.go

DESCRIPTION
  fake_test.go contains synthetic decode backends used to exercise the
  seek machinery without real media.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package source

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/ausocean/mediasource/decode"
	"github.com/ausocean/mediasource/pcm"
)

// fakeCounters observes backend activity across all decoders of a source.
type fakeCounters struct {
	opens int
	seeks int
}

// fakeVideo describes a synthetic video track. Frame payloads derive only
// from the pattern value, so equal patterns produce identical content
// hashes.
type fakeVideo struct {
	pattern   []int64
	pts       []int64
	key       []bool
	tff       []bool
	repeat    []int32
	fps       decode.Rational
	startTime float64
}

// newCFRVideo builds an n-frame constant-rate track with PTS step 100 and
// a keyframe every keyEvery frames.
func newCFRVideo(n, keyEvery int) *fakeVideo {
	t := &fakeVideo{
		pattern: make([]int64, n),
		pts:     make([]int64, n),
		key:     make([]bool, n),
		tff:     make([]bool, n),
		repeat:  make([]int32, n),
		fps:     decode.Rational{Num: 25, Den: 1},
	}
	for i := 0; i < n; i++ {
		t.pattern[i] = int64(i)
		t.pts[i] = int64(i) * 100
		t.key[i] = i%keyEvery == 0
	}
	return t
}

func (t *fakeVideo) frame(i int64, corrupt bool) *decode.Frame {
	id := t.pattern[i]
	if corrupt {
		id = ^id
	}
	plane := make([]byte, 8)
	binary.LittleEndian.PutUint64(plane, uint64(id))
	return &decode.Frame{
		PTS:        t.pts[i],
		Duration:   100,
		KeyFrame:   t.key[i],
		TFF:        t.tff[i],
		RepeatPict: t.repeat[i],
		Video: &decode.VideoPayload{
			Width:          4,
			Height:         2,
			BytesPerSample: 1,
			Planes:         [][]byte{plane},
			Linesize:       []int{4},
		},
	}
}

// fakeVideoBackend serves a fakeVideo track. Seeks land on the keyframe at
// or before the requested PTS, displaced by landAdjust frames to model
// imprecise demuxers. With corruptAfterSeek set, every frame decoded after
// the first seek carries corrupt payload.
type fakeVideoBackend struct {
	t        *fakeVideo
	counters *fakeCounters

	pos              int64
	seeked           bool
	corruptAfterSeek bool
	failSeek         bool
	landAdjust       int64
}

func (b *fakeVideoBackend) ReadFrame() (*decode.Frame, error) {
	if b.pos >= int64(len(b.t.pattern)) {
		return nil, io.EOF
	}
	f := b.t.frame(b.pos, b.corruptAfterSeek && b.seeked)
	b.pos++
	return f, nil
}

func (b *fakeVideoBackend) Seek(pts int64) error {
	if b.counters != nil {
		b.counters.seeks++
	}
	b.seeked = true
	if b.failSeek {
		return errors.New("seek not supported")
	}
	target := int64(0)
	for i := range b.t.pattern {
		if b.t.key[i] && b.t.pts[i] <= pts {
			target = int64(i)
		}
	}
	target += b.landAdjust
	if target < 0 {
		target = 0
	}
	if target > int64(len(b.t.pattern)) {
		target = int64(len(b.t.pattern))
	}
	b.pos = target
	return nil
}

func (b *fakeVideoBackend) Position() int64 { return b.pos }
func (b *fakeVideoBackend) Size() int64     { return int64(len(b.t.pattern)) }
func (b *fakeVideoBackend) Track() int      { return 0 }
func (b *fakeVideoBackend) Close() error    { return nil }

func (b *fakeVideoBackend) Properties() decode.Properties {
	return decode.Properties{
		Type: decode.Video,
		Video: decode.VideoProperties{
			TimeBase:    decode.Rational{Num: 1, Den: 90000},
			FPS:         b.t.fps,
			SAR:         decode.Rational{Num: 1, Den: 1},
			Width:       4,
			Height:      2,
			SSModWidth:  4,
			SSModHeight: 2,
			Bits:        8,
			StartTime:   b.t.startTime,
		},
	}
}

// videoConfig builds a source config over the fake track. mutate, when not
// nil, is applied to every backend the source opens.
func videoConfig(t *fakeVideo, c *fakeCounters, mutate func(*fakeVideoBackend)) Config {
	return Config{
		Source: "fake.mpg",
		Track:  -1,
		NewDecoder: func() (*decode.Handle, error) {
			if c != nil {
				c.opens++
			}
			b := &fakeVideoBackend{t: t, counters: c}
			if mutate != nil {
				mutate(b)
			}
			return decode.NewHandle(b), nil
		},
	}
}

// fakeAudio describes a synthetic audio track of fixed-span packed frames.
type fakeAudio struct {
	pattern    []int64
	samplesPer int
	channels   int
	startTime  float64
}

func newFakeAudio(n, samplesPer int) *fakeAudio {
	t := &fakeAudio{pattern: make([]int64, n), samplesPer: samplesPer, channels: 1}
	for i := 0; i < n; i++ {
		t.pattern[i] = int64(i)
	}
	return t
}

func (t *fakeAudio) frame(i int64) *decode.Frame {
	data := make([]byte, t.samplesPer*2*t.channels)
	binary.LittleEndian.PutUint64(data, uint64(t.pattern[i]))
	for j := 8; j < len(data); j++ {
		data[j] = byte(j)
	}
	return &decode.Frame{
		PTS:      i * int64(t.samplesPer),
		Duration: int64(t.samplesPer),
		KeyFrame: true,
		Audio: &decode.AudioPayload{
			NumSamples:     t.samplesPer,
			Channels:       t.channels,
			BytesPerSample: 2,
			Planar:         false,
			Data:           [][]byte{data},
		},
	}
}

type fakeAudioBackend struct {
	t        *fakeAudio
	counters *fakeCounters
	pos      int64
	seeked   bool
}

func (b *fakeAudioBackend) ReadFrame() (*decode.Frame, error) {
	if b.pos >= int64(len(b.t.pattern)) {
		return nil, io.EOF
	}
	f := b.t.frame(b.pos)
	b.pos++
	return f, nil
}

func (b *fakeAudioBackend) Seek(pts int64) error {
	if b.counters != nil {
		b.counters.seeks++
	}
	b.seeked = true
	b.pos = pts / int64(b.t.samplesPer)
	if b.pos > int64(len(b.t.pattern)) {
		b.pos = int64(len(b.t.pattern))
	}
	return nil
}

func (b *fakeAudioBackend) Position() int64 { return b.pos }
func (b *fakeAudioBackend) Size() int64     { return int64(len(b.t.pattern)) }
func (b *fakeAudioBackend) Track() int      { return 0 }
func (b *fakeAudioBackend) Close() error    { return nil }

func (b *fakeAudioBackend) Properties() decode.Properties {
	return decode.Properties{
		Type: decode.Audio,
		Audio: decode.AudioProperties{
			TimeBase:         decode.Rational{Num: 1, Den: 48000},
			SampleRate:       48000,
			Channels:         b.t.channels,
			Format:           pcm.S16_LE,
			Planar:           false,
			BitsPerRawSample: 16,
			StartTime:        b.t.startTime,
		},
	}
}

func audioConfig(t *fakeAudio, c *fakeCounters) Config {
	return Config{
		Source: "fake.wav",
		Track:  -1,
		NewDecoder: func() (*decode.Handle, error) {
			if c != nil {
				c.opens++
			}
			return decode.NewHandle(&fakeAudioBackend{t: t, counters: c}), nil
		},
	}
}

// payloadID recovers the pattern value encoded in a fake frame.
func payloadID(f *decode.Frame) int64 {
	if f.Video != nil {
		return int64(binary.LittleEndian.Uint64(f.Video.Planes[0]))
	}
	return int64(binary.LittleEndian.Uint64(f.Audio.Data[0]))
}
