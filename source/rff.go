/*
NAME
  rff.go

DESCRIPTION
  rff.go contains the repeated-field frame space: expansion of per-frame
  field repeat flags into a virtual frame numbering, and field merging of
  two source frames into one output frame.

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
	"github.com/ausocean/mediasource/decode"
)

// initRFF expands the per-frame field repeat counts into the table mapping
// each virtual frame to the source frames providing its top and bottom
// fields. Each source frame emits RepeatPict+2 fields, alternating from
// its field order; an uneven trailing parity is padded with the last known
// opposite field.
func (v *VideoSource) initRFF() {
	v.rffFields = make([][2]int64, v.numRFFFrames)

	var destTop, destBottom int64
	for n, f := range v.idx.Frames {
		repeatFields := int(f.RepeatPict) + 2
		top := f.TFF
		for i := 0; i < repeatFields; i++ {
			if top {
				v.rffFields[destTop][0] = int64(n)
				destTop++
			} else {
				v.rffFields[destBottom][1] = int64(n)
				destBottom++
			}
			top = !top
		}
	}

	if destTop > destBottom {
		v.rffFields[destBottom][1] = v.rffFields[destBottom-1][1]
		destBottom++
	} else if destTop < destBottom {
		v.rffFields[destTop][0] = v.rffFields[destTop-1][0]
		destTop++
	}

	v.rff = rffReady
}

// GetFrameWithRFF returns frame n of the repeated-field-expanded frame
// space, merging two source frames along alternating rows when the fields
// come from different frames.
func (v *VideoSource) GetFrameWithRFF(n int64) (*decode.Frame, error) {
	if v.rff == rffUninitialized {
		v.initRFF()
	}
	if v.rff == rffUnused {
		return v.GetFrame(n)
	}
	if n < 0 || n >= v.numRFFFrames {
		return nil, &ArgumentError{Msg: "frame number out of range"}
	}

	fields := v.rffFields[n]
	if fields[0] == fields[1] {
		return v.GetFrame(fields[0])
	}

	if fields[0] < fields[1] {
		top, err := v.GetFrame(fields[0])
		if err != nil {
			return nil, err
		}
		bottom, err := v.GetFrame(fields[1])
		if err != nil {
			return nil, err
		}
		mergeField(top, bottom, false)
		return top, nil
	}

	bottom, err := v.GetFrame(fields[1])
	if err != nil {
		return nil, err
	}
	top, err := v.GetFrame(fields[0])
	if err != nil {
		return nil, err
	}
	mergeField(bottom, top, true)
	return bottom, nil
}

// FrameIsTFF reports the field order of frame n, in the plain frame space
// or the repeated-field-expanded one.
func (v *VideoSource) FrameIsTFF(n int64, rff bool) bool {
	if n < 0 || (!rff && n >= v.NumFrames()) || (rff && n >= v.numRFFFrames) {
		return false
	}

	if rff && v.rff == rffUninitialized {
		v.initRFF()
	}

	if !rff || v.rff == rffUnused {
		return v.idx.Frames[n].TFF
	}
	if v.rffFields[n][0] == v.rffFields[n][1] {
		return v.idx.Frames[v.rffFields[n][0]].TFF
	}
	return v.rffFields[n][0] < v.rffFields[n][1]
}

// mergeField copies the top or bottom field rows of src into dst, leaving
// dst's other rows and properties untouched.
func mergeField(dst, src *decode.Frame, top bool) {
	if dst.Video == nil || src.Video == nil {
		return
	}
	start := 1
	if top {
		start = 0
	}
	for p := range dst.Video.Planes {
		w, h := dst.Video.PlaneDims(p)
		active := w * dst.Video.BytesPerSample
		dstLS := dst.Video.Linesize[p]
		srcLS := src.Video.Linesize[p]
		for row := start; row < h; row += 2 {
			copy(dst.Video.Planes[p][row*dstLS:row*dstLS+active], src.Video.Planes[p][row*srcLS:])
		}
	}
}
