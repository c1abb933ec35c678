/*
NAME
  frame.go

DESCRIPTION
  frame.go contains the decoded frame type shared by all backends, its
  payload layouts, content digests, byte accounting and deep copies.

AUTHOR
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
	"github.com/ausocean/mediasource/hashsum"
)

// VideoPayload is the pixel data of one decoded video frame. Planes are
// stored row-major with an explicit line size, which may exceed the active
// row width.
type VideoPayload struct {
	Width  int
	Height int

	SubSamplingW int
	SubSamplingH int

	BytesPerSample int

	Planes   [][]byte
	Linesize []int
}

// PlaneDims returns the active pixel dimensions of plane p, applying the
// chroma sub-sampling shifts to the non-luma planes.
func (v *VideoPayload) PlaneDims(p int) (w, h int) {
	w, h = v.Width, v.Height
	if p == 1 || p == 2 {
		w >>= v.SubSamplingW
		h >>= v.SubSamplingH
	}
	return w, h
}

// AudioPayload is the sample data of one decoded audio frame. Planar
// payloads carry one buffer per channel; packed payloads carry a single
// interleaved buffer in Data[0].
type AudioPayload struct {
	NumSamples     int
	Channels       int
	BytesPerSample int
	Planar         bool
	Data           [][]byte
}

// SideData carries stream metadata propagated untouched from the container
// to callers.
type SideData struct {
	HasMasteringDisplayPrimaries bool
	MasteringDisplayPrimaries    [3][2]Rational
	MasteringDisplayWhitePoint   [2]Rational

	HasMasteringDisplayLuminance bool
	MasteringDisplayMinLuminance Rational
	MasteringDisplayMaxLuminance Rational

	HasContentLightLevel     bool
	ContentLightLevelMax     uint
	ContentLightLevelAverage uint

	ICCProfile     []byte
	DolbyVisionRPU []byte
	HDR10Plus      []byte

	Rotation       int
	FlipVertical   bool
	FlipHorizontal bool
}

// Frame is one decoded frame of a track. Exactly one of Video and Audio is
// non-nil.
type Frame struct {
	PTS      int64
	Duration int64

	KeyFrame   bool
	TFF        bool
	Interlaced bool
	RepeatPict int32
	PictType   byte

	Video *VideoPayload
	Audio *AudioPayload

	Side SideData
}

// ContentHash digests the frame's significant bytes: active plane rows for
// video, per-channel or interleaved sample data for audio. The digest is
// identical for any clean re-decode of the same frame.
func (f *Frame) ContentHash() uint64 {
	if f.Video != nil {
		v := f.Video
		active := make([]int, len(v.Planes))
		heights := make([]int, len(v.Planes))
		for p := range v.Planes {
			w, h := v.PlaneDims(p)
			active[p] = w * v.BytesPerSample
			heights[p] = h
		}
		return hashsum.Video(v.Planes, v.Linesize, active, heights)
	}

	a := f.Audio
	if a.Planar {
		return hashsum.Planar(a.Data, a.NumSamples*a.BytesPerSample)
	}
	return hashsum.Packed(a.Data[0], a.NumSamples*a.Channels*a.BytesPerSample)
}

// Size returns the number of payload bytes owned by the frame, used for
// cache byte accounting.
func (f *Frame) Size() int64 {
	var n int64
	if f.Video != nil {
		for _, p := range f.Video.Planes {
			n += int64(len(p))
		}
	}
	if f.Audio != nil {
		for _, d := range f.Audio.Data {
			n += int64(len(d))
		}
	}
	return n
}

// Clone returns an independently owned deep copy of the frame, so callers
// may hold it beyond cache eviction.
func (f *Frame) Clone() *Frame {
	c := *f
	if f.Video != nil {
		v := *f.Video
		v.Planes = cloneBufs(f.Video.Planes)
		v.Linesize = append([]int(nil), f.Video.Linesize...)
		c.Video = &v
	}
	if f.Audio != nil {
		a := *f.Audio
		a.Data = cloneBufs(f.Audio.Data)
		c.Audio = &a
	}
	c.Side.ICCProfile = append([]byte(nil), f.Side.ICCProfile...)
	c.Side.DolbyVisionRPU = append([]byte(nil), f.Side.DolbyVisionRPU...)
	c.Side.HDR10Plus = append([]byte(nil), f.Side.HDR10Plus...)
	return &c
}

func cloneBufs(bufs [][]byte) [][]byte {
	out := make([][]byte, len(bufs))
	for i, b := range bufs {
		out[i] = append([]byte(nil), b...)
	}
	return out
}
