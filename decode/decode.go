/*
NAME
  decode.go

DESCRIPTION
  decode.go provides Backend, an interface that describes a demuxer/decoder
  pair for one track of a media source, together with the stream property
  and error types shared by all backend implementations.

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

// Package decode provides an interface and handle type for media decoders
// from which decoded frames can be obtained in track order, with imprecise
// backward seeking by presentation timestamp. Concrete container/codec
// support lives in the backend subpackages; they register openers with this
// package and are selected by source name at open time.
package decode

import (
	"fmt"
	"math"

	"github.com/ausocean/mediasource/pcm"
)

// UnsetPTS marks a frame whose presentation timestamp is unknown.
const UnsetPTS int64 = math.MinInt64

// MediaType discriminates the track types a backend can serve.
type MediaType int

// Track types.
const (
	Video MediaType = iota
	Audio
)

// String returns the name of the media type.
func (t MediaType) String() string {
	switch t {
	case Video:
		return "video"
	case Audio:
		return "audio"
	default:
		return "unknown"
	}
}

// Rational is an exact fraction, used for time bases, frame rates and
// aspect ratios.
type Rational struct {
	Num int
	Den int
}

// Float returns the rational as a float64.
func (r Rational) Float() float64 {
	return float64(r.Num) / float64(r.Den)
}

// VideoProperties describes a video track. Backends fill it in at open time
// from stream headers and container metadata.
type VideoProperties struct {
	TimeBase Rational
	FPS      Rational
	SAR      Rational

	// Duration of the track in time base units, 0 when unknown.
	Duration int64

	// NumFrames is the container's frame count estimate, -1 when it
	// cannot even be estimated. The indexed count is authoritative.
	NumFrames int64

	Width  int
	Height int

	// Largest width/height that are a multiple of the sub-sampling.
	SSModWidth  int
	SSModHeight int

	SubSamplingW int
	SubSamplingH int
	Bits         int

	StartTime  float64 // First frame PTS in seconds.
	FieldBased bool
	TFF        bool

	// SeekPriming is set by backends whose decoder must observe the
	// stream head once before the first seek produces clean output.
	SeekPriming bool
}

// AudioProperties describes an audio track.
type AudioProperties struct {
	TimeBase   Rational
	SampleRate int
	Channels   int
	Format     pcm.SampleFormat
	Planar     bool

	// BitsPerRawSample is taken from the stream header at open time, or is
	// the fixed output depth of backends that always decode to one format.
	// A change of bit depth mid-stream is not detected.
	BitsPerRawSample int

	StartTime float64

	// NumSamples is the container's estimate, -1 when unknown.
	NumSamples int64

	SeekPriming bool
}

// BytesPerSample returns the width of one sample of one channel in bytes.
func (p AudioProperties) BytesPerSample() int {
	return p.Format.BytesPerSample()
}

// Properties carries the stream-level description of an opened track.
type Properties struct {
	Type  MediaType
	Video VideoProperties
	Audio AudioProperties
}

// Backend describes one opened track of a media source. Implementations
// read frames in track order and support imprecise backward seeks to a
// random-access point at or before a presentation timestamp. A Backend is
// not safe for concurrent use.
type Backend interface {
	// ReadFrame returns the next decoded frame of the track, or io.EOF
	// when the track is exhausted.
	ReadFrame() (*Frame, error)

	// Seek flushes decoder state and repositions so that the next
	// ReadFrame returns a frame at or before pts. The logical position
	// after a seek is unknown until re-anchored by the caller.
	Seek(pts int64) error

	// Position returns the current byte offset in the source, used for
	// indexing progress.
	Position() int64

	// Size returns the source size in bytes, or -1 when unknown.
	Size() int64

	// Track returns the resolved track number, useful when the track was
	// selected as the Nth of a type.
	Track() int

	// Properties returns the stream-level track description.
	Properties() Properties

	Close() error
}

// Options configures opening of a track.
type Options struct {
	// Threads requests codec threading. Values below 1 select a backend
	// default; pure Go backends decode on the calling goroutine either
	// way.
	Threads int

	// HWDevice names a hardware decode device. No built-in backend
	// provides hardware decoding; a non-empty value fails the open with
	// a hardware-unavailable error so callers can retry without.
	HWDevice      string
	ExtraHWFrames int

	// VariableFormat marks the track as permitting mid-stream format
	// changes. The built-in backends do not compare frame formats, so a
	// mid-stream format change is not rejected whatever its value.
	VariableFormat bool

	// DRCScale is the dynamic range compression scale applied by
	// backends that support it. Must not be negative.
	DRCScale float64

	// Demuxer options forwarded verbatim to the backend.
	Demuxer map[string]string
}

// OpenError reports that a source could not be opened.
type OpenError struct {
	Msg string
	// HWUnavailable distinguishes a missing/unusable hardware device so
	// callers may retry with software decoding.
	HWUnavailable bool
	Err           error
}

func (e *OpenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("open: %s: %v", e.Msg, e.Err)
	}
	return "open: " + e.Msg
}

func (e *OpenError) Unwrap() error { return e.Err }

// InvalidTrackError reports a track selector that is out of range or of the
// wrong media type.
type InvalidTrackError struct {
	Track int
	Type  MediaType
}

func (e *InvalidTrackError) Error() string {
	return fmt.Sprintf("invalid %s track %d", e.Type, e.Track)
}

// DecodeError reports that a frame which should exist could not be
// produced outside of a seek context.
type DecodeError struct {
	Msg string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Msg, e.Err)
	}
	return "decode: " + e.Msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnsupportedError reports stream features the decode layer refuses, such
// as custom channel orders.
type UnsupportedError struct {
	Msg string
}

func (e *UnsupportedError) Error() string { return "unsupported: " + e.Msg }
