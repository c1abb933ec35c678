/*
NAME
  pcm_test.go

DESCRIPTION
  pcm_test.go tests interleaving and de-interleaving of pcm audio.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pcm

import (
	"bytes"
	"testing"
)

func TestInterleave(t *testing.T) {
	left := []byte{1, 2, 3, 4, 5, 6}
	right := []byte{11, 12, 13, 14, 15, 16}

	dst := make([]byte, 12)
	n := Interleave(dst, [][]byte{left, right}, 3, 2)
	if n != 12 {
		t.Errorf("Interleave() wrote %d bytes, want 12", n)
	}
	want := []byte{1, 2, 11, 12, 3, 4, 13, 14, 5, 6, 15, 16}
	if !bytes.Equal(dst, want) {
		t.Errorf("Interleave() = %v, want %v", dst, want)
	}
}

func TestDeinterleaveRoundTrip(t *testing.T) {
	packed := []byte{1, 2, 11, 12, 3, 4, 13, 14, 5, 6, 15, 16}

	planes := [][]byte{make([]byte, 6), make([]byte, 6)}
	n := Deinterleave(planes, packed, 3, 2)
	if n != 12 {
		t.Errorf("Deinterleave() consumed %d bytes, want 12", n)
	}

	dst := make([]byte, 12)
	Interleave(dst, planes, 3, 2)
	if !bytes.Equal(dst, packed) {
		t.Errorf("round trip = %v, want %v", dst, packed)
	}
}

func TestSampleFormat(t *testing.T) {
	tests := []struct {
		f     SampleFormat
		bytes int
		str   string
	}{
		{U8, 1, "U8"},
		{S16_LE, 2, "S16_LE"},
		{S32_LE, 4, "S32_LE"},
		{F32_LE, 4, "F32_LE"},
		{F64_LE, 8, "F64_LE"},
		{Unknown, 0, "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.f.BytesPerSample(); got != tt.bytes {
			t.Errorf("%v.BytesPerSample() = %d, want %d", tt.f, got, tt.bytes)
		}
		if got := tt.f.String(); got != tt.str {
			t.Errorf("SampleFormat.String() = %q, want %q", got, tt.str)
		}
	}

	for _, s := range []string{"U8", "S16_LE", "S32_LE", "F32_LE", "F64_LE"} {
		f, err := SFFromString(s)
		if err != nil {
			t.Errorf("SFFromString(%q) failed: %v", s, err)
		}
		if f.String() != s {
			t.Errorf("SFFromString(%q).String() = %q", s, f.String())
		}
	}
	if _, err := SFFromString("S24_3LE"); err == nil {
		t.Error("SFFromString() with unknown format succeeded")
	}
}
