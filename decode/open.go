/*
NAME
  open.go

DESCRIPTION
  open.go contains the backend opener registry and the Open entry point
  used to construct a decoder handle for one track of a media source.

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

package decode

import (
	"runtime"
	"strings"
)

// Opener is a registered backend constructor. Backends register themselves
// from their package init functions; importing a backend package for side
// effects makes its formats available.
type Opener struct {
	// Name identifies the backend in error messages.
	Name string

	// Type is the media type the backend serves.
	Type MediaType

	// Match reports whether the backend can handle the source, typically
	// by extension.
	Match func(source string) bool

	// Open constructs a backend for the selected track. Track selectors
	// follow the container convention: values >= 0 are absolute stream
	// numbers, -1 the first track of the type, lower values the Nth.
	Open func(source string, track int, opts Options) (Backend, error)
}

var openers []Opener

// Register adds a backend opener. It is intended to be called from backend
// package init functions.
func Register(o Opener) {
	openers = append(openers, o)
}

// MaxThreads caps the default codec thread count derived from hardware
// concurrency.
const MaxThreads = 16

// Threads resolves a requested thread count: values below 1 become
// min(hardware concurrency, MaxThreads).
func Threads(requested int) int {
	if requested >= 1 {
		return requested
	}
	n := runtime.NumCPU()
	if n > MaxThreads {
		n = MaxThreads
	}
	return n
}

// Open constructs a decoder handle for the given track of source. The
// backend is chosen from the registered openers by source name; unknown
// formats and empty registries fail with an OpenError.
func Open(source string, typ MediaType, track int, opts Options) (*Handle, error) {
	if opts.HWDevice != "" {
		// No registered backend decodes in hardware; let callers fall
		// back to software explicitly.
		return nil, &OpenError{
			Msg:           "hardware device '" + opts.HWDevice + "' not available",
			HWUnavailable: true,
		}
	}
	opts.Threads = Threads(opts.Threads)

	for _, o := range openers {
		if o.Type != typ || !o.Match(source) {
			continue
		}
		b, err := o.Open(source, track, opts)
		if err != nil {
			return nil, err
		}
		return NewHandle(b), nil
	}
	return nil, &OpenError{Msg: "no " + typ.String() + " backend for '" + source + "'"}
}

// MatchExt returns a Match function accepting sources with any of the
// given lowercase extensions.
func MatchExt(exts ...string) func(string) bool {
	return func(source string) bool {
		s := strings.ToLower(source)
		for _, ext := range exts {
			if strings.HasSuffix(s, ext) {
				return true
			}
		}
		return false
	}
}
