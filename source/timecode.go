/*
NAME
  timecode.go

DESCRIPTION
  timecode.go contains the v2 timecode file writer.

AUTHOR
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
	"bufio"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/ausocean/mediasource/index"
)

// WriteTimecodes writes a v2 timecode file with one presentation time per
// frame as fixed-point seconds. Tracks containing frames with unknown
// timestamps cannot produce a valid file.
func (v *VideoSource) WriteTimecodes(path string) error {
	for _, f := range v.idx.Frames {
		if f.PTS == index.UnsetPTS {
			return errors.New("cannot write valid timecode file, track contains frames with unknown timestamp")
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "couldn't open timecode file for writing")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# timecode format v2\n")
	tb := v.props.TimeBase
	for _, fr := range v.idx.Frames {
		fmt.Fprintf(w, "%.02f\n", float64(fr.PTS)*float64(tb.Num)/float64(tb.Den))
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "writing timecode file")
	}
	return nil
}
