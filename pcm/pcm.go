/*
NAME
  pcm.go

DESCRIPTION
  pcm.go contains sample format descriptions and functions for interleaving
  and de-interleaving pcm audio between packed and planar layouts.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pcm provides functions for processing and converting pcm audio.
package pcm

import (
	"github.com/pkg/errors"
)

// SampleFormat is the format that a buffer's samples can be in.
type SampleFormat int

// Used to represent an unknown format.
const (
	Unknown SampleFormat = -1
)

// Sample formats that we use.
const (
	U8 SampleFormat = iota
	S16_LE
	S32_LE
	F32_LE
	F64_LE
)

// BytesPerSample returns the width of one sample of one channel in bytes.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case U8:
		return 1
	case S16_LE:
		return 2
	case S32_LE, F32_LE:
		return 4
	case F64_LE:
		return 8
	default:
		return 0
	}
}

// String returns the string representation of a SampleFormat.
func (f SampleFormat) String() string {
	switch f {
	case U8:
		return "U8"
	case S16_LE:
		return "S16_LE"
	case S32_LE:
		return "S32_LE"
	case F32_LE:
		return "F32_LE"
	case F64_LE:
		return "F64_LE"
	default:
		return "Unknown"
	}
}

// SFFromString takes a string representing a sample format and returns the
// corresponding SampleFormat.
func SFFromString(s string) (SampleFormat, error) {
	switch s {
	case "U8":
		return U8, nil
	case "S16_LE":
		return S16_LE, nil
	case "S32_LE":
		return S32_LE, nil
	case "F32_LE":
		return F32_LE, nil
	case "F64_LE":
		return F64_LE, nil
	default:
		return Unknown, errors.Errorf("unknown sample format (%s)", s)
	}
}

// Interleave copies samples from per-channel planes into a packed buffer.
// Each plane must hold at least samples*bytesPerSample bytes and dst at
// least samples*len(src)*bytesPerSample bytes. The number of bytes written
// to dst is returned.
func Interleave(dst []byte, src [][]byte, samples, bytesPerSample int) int {
	n := 0
	for i := 0; i < samples; i++ {
		for c := range src {
			copy(dst[n:n+bytesPerSample], src[c][i*bytesPerSample:])
			n += bytesPerSample
		}
	}
	return n
}

// Deinterleave copies samples from a packed buffer into per-channel planes,
// the inverse of Interleave. The number of bytes consumed from src is
// returned.
func Deinterleave(dst [][]byte, src []byte, samples, bytesPerSample int) int {
	n := 0
	for i := 0; i < samples; i++ {
		for c := range dst {
			copy(dst[c][i*bytesPerSample:(i+1)*bytesPerSample], src[n:])
			n += bytesPerSample
		}
	}
	return n
}
