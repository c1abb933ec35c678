/*
NAME
  cachefile.go

DESCRIPTION
  cachefile.go contains index cache policy modes, cache path derivation for
  absolute and mirrored-subtree layouts, and scoped file handle helpers.

AUTHOR
  Scott Barnard <scott@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package cachefile derives on-disk locations for persisted track indexes
// and opens them for reading or writing. Two layouts exist: an absolute
// path next to a caller-chosen file, and a subtree mirroring the source
// path under a cache root.
package cachefile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
)

// Ext is the file extension of persisted indexes, prefixed by the track
// number, e.g. "source.mkv.0.bsindex".
const Ext = ".bsindex"

// Mode is the index cache policy.
type Mode int

// Cache policy values. The auto modes only persist indexes of tracks with
// at least WriteThreshold frames.
const (
	Disable Mode = iota
	AutoSubTree
	AlwaysSubTree
	AutoAbsolute
	AlwaysAbsolute
)

// WriteThreshold is the minimum frame count for the auto modes to persist
// an index. Tiny tracks re-index faster than they read.
const WriteThreshold = 100

// Valid reports whether m is one of the defined policy values.
func (m Mode) Valid() bool {
	return m >= Disable && m <= AlwaysAbsolute
}

// Absolute reports whether m uses the absolute path layout.
func (m Mode) Absolute() bool {
	return m == AutoAbsolute || m == AlwaysAbsolute
}

// ShouldWrite reports whether an index of the given frame count is
// persisted under m.
func (m Mode) ShouldWrite(frames int) bool {
	switch m {
	case AlwaysSubTree, AlwaysAbsolute:
		return true
	case AutoSubTree, AutoAbsolute:
		return frames >= WriteThreshold
	default:
		return false
	}
}

// mangle rewrites a source path into one that is storable under a cache
// root. Sources can be URLs or protocol strings, so characters that are not
// allowed in file names are replaced and drive separators become path
// separators.
func mangle(source string) string {
	rel := strings.TrimLeft(source, "/\\")
	var b strings.Builder
	b.Grow(len(rel))
	for _, r := range rel {
		switch r {
		case '?', '*', '<', '>', '|', '"':
			b.WriteRune('_')
		case ':':
			b.WriteRune('/')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// defaultSubTreeRoot returns the platform cache directory used when no
// cache base is supplied in subtree mode.
func defaultSubTreeRoot() string {
	return filepath.Join(xdg.CacheHome, "bsindex")
}

// Path derives the cache file path for a source/track pair under the given
// policy. base may be empty, in which case the absolute layout stores the
// index next to the source and the subtree layout uses the platform cache
// directory.
func Path(m Mode, base, source string, track int) string {
	var p string
	if m.Absolute() {
		p = base
		if p == "" {
			p = source
		}
	} else {
		root := base
		if root == "" {
			root = defaultSubTreeRoot()
		}
		p = filepath.Join(root, filepath.FromSlash(mangle(source)))
	}
	return fmt.Sprintf("%s.%d%s", p, track, Ext)
}

// Open opens the cache file for reading. A missing file is reported as an
// error; callers treat any failure as "no usable index".
func Open(m Mode, base, source string, track int) (*os.File, error) {
	f, err := os.Open(Path(m, base, source, track))
	return f, errors.Wrap(err, "opening index cache")
}

// Create creates the cache file for writing, making parent directories as
// needed in subtree mode.
func Create(m Mode, base, source string, track int) (*os.File, error) {
	p := Path(m, base, source, track)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating index cache directory")
	}
	f, err := os.Create(p)
	return f, errors.Wrap(err, "creating index cache")
}
