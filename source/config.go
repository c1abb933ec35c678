/*
NAME
  config.go

DESCRIPTION
  config.go contains the configuration settings for constructing video and
  audio sources.

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
	"io"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/mediasource/cachefile"
	"github.com/ausocean/mediasource/decode"
)

// Defaults and limits for configuration fields.
const (
	defaultPreRoll      = 20
	maxVideoPreRoll     = 40
	DefaultMaxCacheSize = 100 * 1024 * 1024 // Bytes.
)


// ProgressFunc receives indexing progress as (track, current, total) byte
// positions. Returning false cancels indexing. A final call with both
// positions set to math.MaxInt64 signals completion.
type ProgressFunc func(track int, current, total int64) bool

// Config provides parameters relevant to a source instance. A new config
// must be passed to the constructor.
type Config struct {
	// Source is the path of the media to open. It may be a URL or scheme
	// string understood by a decode backend; it is only made absolute
	// when it names an existing file.
	Source string

	// Track selects the track to serve: values >= 0 are absolute stream
	// numbers, -1 the first track of the required type, lower values the
	// Nth such track.
	Track int

	// Threads requests codec threading; values below 1 pick a default.
	Threads int

	// CacheMode is the index persistence policy and CachePath its base
	// path; see the cachefile package for the layouts.
	CacheMode cachefile.Mode
	CachePath string

	// DemuxOptions are forwarded verbatim to the decode backend and act
	// as index fence fields.
	DemuxOptions map[string]string

	// Logger handles log messages from the source. Defaults to a
	// suppressed logger when nil.
	Logger logging.Logger

	// Progress receives indexing progress; may be nil.
	Progress ProgressFunc

	// SeekPreRoll is the number of frames decoded and cached before a
	// requested frame after a seek. Video sources accept 0 to 40. Zero
	// selects the default of 20; use SetSeekPreRoll on the constructed
	// source for an explicit zero.
	SeekPreRoll int64

	// VariableFormat permits mid-stream format changes; packed and planar
	// audio delivery require it off.
	VariableFormat bool

	// HWDevice names a hardware decode device for video sources; empty
	// means software. ExtraHWFrames extends the device frame pool.
	HWDevice      string
	ExtraHWFrames int

	// DRCScale is the dynamic range compression scale for audio sources.
	// Must not be negative.
	DRCScale float64

	// AdjustDelay shifts audio sample addressing by the start time of
	// another track: -1 names the first video track and positive values
	// absolute track numbers. Zero disables adjustment.
	AdjustDelay int

	// NewDecoder overrides decoder construction, primarily so tests can
	// supply synthetic backends. When nil, decoders are opened through
	// the decode registry.
	NewDecoder func() (*decode.Handle, error)

	// NewPeerDecoder overrides construction of decoders for other tracks
	// of the same source, used for delay adjustment.
	NewPeerDecoder func(typ decode.MediaType, track int) (*decode.Handle, error)
}

// Validate checks configuration sanity for the given media type, applies
// defaults, and returns an ArgumentError describing the first problem
// found.
func (c *Config) Validate(typ decode.MediaType) error {
	if c.Logger == nil {
		c.Logger = logging.New(logging.Error, io.Discard, true)
	}
	if !c.CacheMode.Valid() {
		return &ArgumentError{Msg: "cache mode out of range"}
	}
	if typ == decode.Video {
		if c.SeekPreRoll < 0 || c.SeekPreRoll > maxVideoPreRoll {
			return &ArgumentError{Msg: "seek preroll must be between 0 and 40"}
		}
	} else {
		if c.SeekPreRoll < 0 {
			c.SeekPreRoll = 0
		}
	}
	if c.DRCScale < 0 {
		return &ArgumentError{Msg: "drc scale must not be negative"}
	}
	if c.ExtraHWFrames < 0 {
		return &ArgumentError{Msg: "extra hardware frames must be 0 or greater"}
	}
	if c.AdjustDelay < -1 {
		return &ArgumentError{Msg: "adjust delay track out of range"}
	}
	return nil
}

// options converts the config into decode open options.
func (c *Config) options() decode.Options {
	return decode.Options{
		Threads:        c.Threads,
		HWDevice:       c.HWDevice,
		ExtraHWFrames:  c.ExtraHWFrames,
		VariableFormat: c.VariableFormat,
		DRCScale:       c.DRCScale,
		Demuxer:        c.DemuxOptions,
	}
}

// newDecoder constructs a decoder for the configured track, honoring the
// test override.
func (c *Config) newDecoder(typ decode.MediaType) (*decode.Handle, error) {
	if c.NewDecoder != nil {
		return c.NewDecoder()
	}
	return decode.Open(c.Source, typ, c.Track, c.options())
}
