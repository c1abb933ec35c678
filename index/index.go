/*
NAME
  index.go

DESCRIPTION
  index.go contains the in-memory track index types: one record per decoded
  frame of a track, in decode order, with content digests used to verify
  decoder positioning after seeks.

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

// Package index provides persistent, content-verifiable track catalogs.
// An index is built once by a full linear decode of a track and is immutable
// afterwards; it maps every frame number to its presentation timestamp,
// per-frame flags and a 64-bit content digest.
package index

import (
	"math"
	"sort"
)

// UnsetPTS marks a frame whose presentation timestamp is unknown.
const UnsetPTS int64 = math.MinInt64

// VideoFrame is one video track index record.
type VideoFrame struct {
	PTS        int64
	RepeatPict int32
	KeyFrame   bool
	TFF        bool
	Hash       uint64
}

// AudioFrame is one audio track index record. Start is the absolute sample
// position of the frame's first sample and Length the number of samples the
// frame carries.
type AudioFrame struct {
	PTS    int64
	Start  int64
	Length int64
	Hash   uint64
}

// Video is the catalog of every frame in a video track, in decode order.
type Video struct {
	// LastFrameDuration is the container-reported duration of the final
	// frame, used to terminate the track duration calculation. Zero when
	// the container did not report one.
	LastFrameDuration int64

	Frames []VideoFrame
}

// Audio is the catalog of every frame in an audio track, in decode order.
// Frames[0].Start is always 0 and successive Start values are the running
// sum of the preceding Lengths.
type Audio struct {
	Frames []AudioFrame
}

// NumSamples returns the total number of samples covered by the index.
func (a *Audio) NumSamples() int64 {
	if len(a.Frames) == 0 {
		return 0
	}
	last := a.Frames[len(a.Frames)-1]
	return last.Start + last.Length
}

// FrameContaining returns the number of the frame holding the given absolute
// sample position, or -1 when the position is outside the track.
func (a *Audio) FrameContaining(sample int64) int64 {
	if sample < 0 || sample >= a.NumSamples() {
		return -1
	}
	i := sort.Search(len(a.Frames), func(i int) bool {
		return a.Frames[i].Start+a.Frames[i].Length > sample
	})
	if i == len(a.Frames) {
		return -1
	}
	return int64(i)
}
