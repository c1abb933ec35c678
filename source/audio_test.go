/*
NAME
  audio_test.go

DESCRIPTION
  audio_test.go tests the audio source composition: sample accounting,
  range resolution, zero-filled packed and planar delivery and cross-track
  delay adjustment.

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

package source

import (
	"bytes"
	"testing"

	"github.com/ausocean/mediasource/decode"
	"github.com/ausocean/mediasource/pcm"
)

func TestSampleAccounting(t *testing.T) {
	track := newFakeAudio(250, 4)
	a, err := NewAudio(audioConfig(track, nil))
	if err != nil {
		t.Fatalf("NewAudio() failed: %v", err)
	}
	defer a.Close()

	if got := a.NumSamples(); got != 1000 {
		t.Fatalf("NumSamples() = %d, want 1000", got)
	}

	var sum int64
	for i := int64(0); i < a.NumFrames(); i++ {
		sum += a.FrameInfo(i).Length
	}
	if sum != a.NumSamples() {
		t.Errorf("sum of frame lengths = %d, want %d", sum, a.NumSamples())
	}

	rng := a.GetRangeBySamples(0, a.NumSamples())
	if rng.First != 0 || rng.Last != a.NumFrames()-1 || rng.FirstSamplePos != 0 {
		t.Errorf("GetRangeBySamples(0, all) = %+v", rng)
	}
}

func TestGetRangeBySamples(t *testing.T) {
	track := newFakeAudio(250, 4)
	a, err := NewAudio(audioConfig(track, nil))
	if err != nil {
		t.Fatalf("NewAudio() failed: %v", err)
	}
	defer a.Close()

	tests := []struct {
		start, count int64
		want         FrameRange
	}{
		{0, 1, FrameRange{0, 0, 0}},
		{3, 2, FrameRange{0, 1, 0}},
		{4, 4, FrameRange{1, 1, 4}},
		{-10, 20, FrameRange{0, 2, 0}},
		{998, 100, FrameRange{249, 249, 996}},
		{1000, 5, FrameRange{-1, -1, -1}},
		{10, 0, FrameRange{-1, -1, -1}},
		{10, -3, FrameRange{-1, -1, -1}},
	}
	for _, tt := range tests {
		if got := a.GetRangeBySamples(tt.start, tt.count); got != tt.want {
			t.Errorf("GetRangeBySamples(%d, %d) = %+v, want %+v", tt.start, tt.count, got, tt.want)
		}
	}
}

func TestZeroFillLeadingWithDelay(t *testing.T) {
	track := newFakeAudio(125, 8)

	cfg := audioConfig(track, nil)
	cfg.AdjustDelay = -1
	// The reference track starts 10 samples before this one.
	cfg.NewPeerDecoder = func(typ decode.MediaType, peer int) (*decode.Handle, error) {
		vt := newCFRVideo(1, 1)
		vt.startTime = -10.0 / 48000
		return decode.NewHandle(&fakeVideoBackend{t: vt}), nil
	}

	a, err := NewAudio(cfg)
	if err != nil {
		t.Fatalf("NewAudio() failed: %v", err)
	}
	defer a.Close()

	if got := a.SampleDelay(); got != 10 {
		t.Fatalf("SampleDelay() = %d, want 10", got)
	}
	if got := a.NumSamples(); got != 1010 {
		t.Fatalf("NumSamples() = %d, want 1010", got)
	}

	// Request 20 samples starting at -5: 15 zeros then the first 5
	// samples of frame 0, which is never followed by later decodes.
	buf := bytes.Repeat([]byte{0xab}, 20*2)
	if err := a.GetPackedAudio(buf, -5, 20); err != nil {
		t.Fatalf("GetPackedAudio() failed: %v", err)
	}

	for i := 0; i < 15*2; i++ {
		if buf[i] != 0 {
			t.Fatalf("leading byte %d = %#x, want 0", i, buf[i])
		}
	}
	want := track.frame(0).Audio.Data[0][:5*2]
	if !bytes.Equal(buf[15*2:], want) {
		t.Errorf("data region = %v, want %v", buf[15*2:], want)
	}
	if a.res.cache.get(1) != nil {
		t.Error("frames beyond the request were decoded")
	}
}

func TestZeroFillTrailing(t *testing.T) {
	track := newFakeAudio(250, 4)
	a, err := NewAudio(audioConfig(track, nil))
	if err != nil {
		t.Fatalf("NewAudio() failed: %v", err)
	}
	defer a.Close()

	// 20 samples starting 5 before the end: 5 data samples then 15 zeros.
	buf := bytes.Repeat([]byte{0xab}, 20*2)
	if err := a.GetPackedAudio(buf, 995, 20); err != nil {
		t.Fatalf("GetPackedAudio() failed: %v", err)
	}

	var want []byte
	want = append(want, track.frame(248).Audio.Data[0][3*2:]...) // Sample 995.
	want = append(want, track.frame(249).Audio.Data[0]...)       // Samples 996..999.
	if !bytes.Equal(buf[:5*2], want) {
		t.Errorf("data region = %v, want %v", buf[:5*2], want)
	}
	for i := 5 * 2; i < len(buf); i++ {
		if buf[i] != 0 {
			t.Fatalf("trailing byte %d = %#x, want 0", i, buf[i])
		}
	}
}

func TestZeroFillEntirelyOutside(t *testing.T) {
	track := newFakeAudio(250, 4)
	a, err := NewAudio(audioConfig(track, nil))
	if err != nil {
		t.Fatalf("NewAudio() failed: %v", err)
	}
	defer a.Close()

	buf := bytes.Repeat([]byte{0xab}, 8*2)
	if err := a.GetPackedAudio(buf, 5000, 8); err != nil {
		t.Fatalf("GetPackedAudio() failed: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, b)
		}
	}
}

func TestPlanarMatchesPacked(t *testing.T) {
	track := newFakeAudio(50, 4)
	track.channels = 2

	a, err := NewAudio(audioConfig(track, nil))
	if err != nil {
		t.Fatalf("NewAudio() failed: %v", err)
	}
	defer a.Close()

	const start, count = 6, 30
	packed := make([]byte, count*2*2)
	if err := a.GetPackedAudio(packed, start, count); err != nil {
		t.Fatalf("GetPackedAudio() failed: %v", err)
	}

	planar := [][]byte{make([]byte, count*2), make([]byte, count*2)}
	if err := a.GetPlanarAudio(planar, start, count); err != nil {
		t.Fatalf("GetPlanarAudio() failed: %v", err)
	}

	deinterleaved := [][]byte{make([]byte, count*2), make([]byte, count*2)}
	pcm.Deinterleave(deinterleaved, packed, count, 2)
	for c := range planar {
		if !bytes.Equal(planar[c], deinterleaved[c]) {
			t.Errorf("channel %d planar delivery differs from packed", c)
		}
	}
}

func TestPackedRejectsVariableFormat(t *testing.T) {
	track := newFakeAudio(10, 4)
	cfg := audioConfig(track, nil)
	cfg.VariableFormat = true

	a, err := NewAudio(cfg)
	if err != nil {
		t.Fatalf("NewAudio() failed: %v", err)
	}
	defer a.Close()

	buf := make([]byte, 8)
	if err := a.GetPackedAudio(buf, 0, 4); err == nil {
		t.Error("GetPackedAudio() with variable format succeeded")
	}
	if err := a.GetPlanarAudio([][]byte{buf}, 0, 4); err == nil {
		t.Error("GetPlanarAudio() with variable format succeeded")
	}
}

func TestAudioIdempotence(t *testing.T) {
	track := newFakeAudio(120, 4)
	a, err := NewAudio(audioConfig(track, nil))
	if err != nil {
		t.Fatalf("NewAudio() failed: %v", err)
	}
	defer a.Close()

	first := make([]byte, 480*2)
	if err := a.GetPackedAudio(first, 0, 480); err != nil {
		t.Fatalf("GetPackedAudio() failed: %v", err)
	}
	second := make([]byte, 480*2)
	if err := a.GetPackedAudio(second, 0, 480); err != nil {
		t.Fatalf("repeated GetPackedAudio() failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("repeated reads returned different payloads")
	}
}
