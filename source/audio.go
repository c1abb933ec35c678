/*
NAME
  audio.go

DESCRIPTION
  audio.go contains AudioSource, the random-access sample server for one
  audio track: index construction and persistence, sample-range to frame
  -range resolution, zero-filled packed and planar delivery, and cross
  -track delay adjustment.

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
	"math"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ausocean/mediasource/cachefile"
	"github.com/ausocean/mediasource/decode"
	"github.com/ausocean/mediasource/index"
	"github.com/ausocean/mediasource/pcm"
)

// AudioSource serves the samples of one audio track by absolute sample
// position. A source is single-owner: callers serialize all operations.
type AudioSource struct {
	cfg Config
	log logging.Logger

	idx   *index.Audio
	props decode.AudioProperties
	res   *resolver

	fileSize int64
	track    int

	// sampleDelay shifts all sample addressing to line this track up
	// with another track's start time.
	sampleDelay int64

	// rawSamples is the indexed sample count; numSamples additionally
	// includes the delay.
	rawSamples int64
	numSamples int64
}

// NewAudio opens an audio track, loading its persisted index or building
// one with a full linear decode pass.
func NewAudio(cfg Config) (*AudioSource, error) {
	if err := cfg.Validate(decode.Audio); err != nil {
		return nil, err
	}
	absolutify(&cfg)

	dec, err := cfg.newDecoder(decode.Audio)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open '%s'", cfg.Source)
	}

	a := &AudioSource{
		cfg:      cfg,
		log:      cfg.Logger,
		props:    dec.Properties().Audio,
		fileSize: dec.SourceSize(),
		track:    dec.Track(),
	}
	preRoll := cfg.SeekPreRoll
	if preRoll == 0 {
		preRoll = defaultPreRoll
	}
	a.res = newResolver(a.log, a, func() (*decode.Handle, error) {
		return cfg.newDecoder(decode.Audio)
	}, preRoll, true)

	if cfg.CacheMode == cachefile.Disable || !a.readIndex() {
		if err := a.buildIndex(); err != nil {
			dec.Close()
			return nil, err
		}
		if cfg.CacheMode.ShouldWrite(len(a.idx.Frames)) {
			if err := a.writeIndex(); err != nil {
				if cfg.CacheMode == cachefile.AlwaysSubTree || cfg.CacheMode == cachefile.AlwaysAbsolute {
					dec.Close()
					return nil, errors.Wrapf(err, "failed to write index for track %d", a.track)
				}
				a.log.Warning("failed to write index", "track", a.track, "error", err.Error())
			}
		}
	}

	a.rawSamples = a.idx.NumSamples()

	if cfg.AdjustDelay != 0 {
		delay, err := a.RelativeStartTime(cfg.AdjustDelay)
		if err != nil {
			dec.Close()
			return nil, err
		}
		a.sampleDelay = int64(math.Round(delay * float64(a.props.SampleRate)))
	}
	a.numSamples = a.rawSamples + a.sampleDelay

	a.res.pool.slots[0] = dec
	a.res.pool.touch(0)

	return a, nil
}

func (a *AudioSource) header() index.Header {
	return index.Header{
		FileSize:       a.fileSize,
		Track:          int32(a.track),
		VariableFormat: boolFence(a.cfg.VariableFormat),
		DRCScale:       a.cfg.DRCScale,
		Options:        a.cfg.DemuxOptions,
	}
}

func (a *AudioSource) readIndex() bool {
	f, err := cachefile.Open(a.cfg.CacheMode, a.cfg.CachePath, a.cfg.Source, a.track)
	if err != nil {
		return false
	}
	defer f.Close()

	idx, err := index.ReadAudio(f, a.header())
	if err != nil {
		a.log.Debug("persisted index unusable, re-indexing", "track", a.track, "error", err.Error())
		return false
	}
	a.idx = idx
	return true
}

func (a *AudioSource) writeIndex() error {
	f, err := cachefile.Create(a.cfg.CacheMode, a.cfg.CachePath, a.cfg.Source, a.track)
	if err != nil {
		return err
	}
	defer f.Close()
	return index.WriteAudio(f, a.header(), a.idx)
}

func (a *AudioSource) buildIndex() error {
	idx := &index.Audio{}
	var numSamples int64
	err := indexTrack(a.res.newDecoder, a.cfg.Progress, func(f *decode.Frame) {
		idx.Frames = append(idx.Frames, index.AudioFrame{
			PTS:    f.PTS,
			Start:  numSamples,
			Length: int64(f.Audio.NumSamples),
			Hash:   f.ContentHash(),
		})
		numSamples += int64(f.Audio.NumSamples)
	})
	if err != nil {
		return err
	}
	if len(idx.Frames) == 0 {
		return errors.Errorf("indexing of '%s' track %d failed", a.cfg.Source, a.track)
	}
	a.idx = idx
	return nil
}

// RelativeStartTime returns this track's start time minus the start time
// of the given track. Negative track numbers name the first video track;
// non-negative tracks are tried as video and then as audio.
func (a *AudioSource) RelativeStartTime(track int) (float64, error) {
	open := a.cfg.NewPeerDecoder
	if open == nil {
		open = func(typ decode.MediaType, track int) (*decode.Handle, error) {
			opts := a.cfg.options()
			opts.HWDevice = ""
			opts.DRCScale = 0
			return decode.Open(a.cfg.Source, typ, track, opts)
		}
	}

	if dec, err := open(decode.Video, track); err == nil {
		start := dec.Properties().Video.StartTime
		dec.Close()
		return a.props.StartTime - start, nil
	}
	if track < 0 {
		return 0, nil
	}
	if dec, err := open(decode.Audio, track); err == nil {
		start := dec.Properties().Audio.StartTime
		dec.Close()
		return a.props.StartTime - start, nil
	}
	return 0, errors.New("can't get delay relative to track")
}

// catalog implementation.

func (a *AudioSource) numFrames() int64 { return int64(len(a.idx.Frames)) }

func (a *AudioSource) framePTS(n int64) int64 { return a.idx.Frames[n].PTS }

func (a *AudioSource) frameHash(n int64) uint64 { return a.idx.Frames[n].Hash }

func (a *AudioSource) goodSeekPoint(n int64) bool {
	return a.idx.Frames[n].PTS != index.UnsetPTS
}

func (a *AudioSource) anchor(h *decode.Handle, n int64) {
	h.SetFrameNumber(n)
	if n < int64(len(a.idx.Frames)) {
		h.SetSampleNumber(a.idx.Frames[n].Start)
	} else {
		h.SetSampleNumber(a.rawSamples)
	}
}

// Public API.

// Properties returns the stream description of the track.
func (a *AudioSource) Properties() decode.AudioProperties { return a.props }

// Track returns the resolved track number.
func (a *AudioSource) Track() int { return a.track }

// NumFrames returns the indexed frame count.
func (a *AudioSource) NumFrames() int64 { return int64(len(a.idx.Frames)) }

// NumSamples returns the addressable sample count, including any delay
// adjustment.
func (a *AudioSource) NumSamples() int64 { return a.numSamples }

// SampleDelay returns the sample shift applied by delay adjustment.
func (a *AudioSource) SampleDelay() int64 { return a.sampleDelay }

// FrameInfo returns the index record of frame n.
func (a *AudioSource) FrameInfo(n int64) index.AudioFrame { return a.idx.Frames[n] }

// LinearDecodingState reports whether the source has latched linear mode.
func (a *AudioSource) LinearDecodingState() bool { return a.res.linearMode }

// SetMaxCacheSize bounds the frame cache to the given number of payload
// bytes, evicting immediately.
func (a *AudioSource) SetMaxCacheSize(bytes int64) { a.res.cache.setMaxSize(bytes) }

// SetSeekPreRoll sets the number of frames decoded and cached before a
// requested frame after a seek.
func (a *AudioSource) SetSeekPreRoll(frames int64) {
	if frames < 0 {
		frames = 0
	}
	a.res.preRoll = frames
}

// GetFrame returns frame n.
func (a *AudioSource) GetFrame(n int64) (*decode.Frame, error) {
	if n < 0 || n >= a.NumFrames() {
		return nil, &ArgumentError{Msg: "frame number out of range"}
	}
	return a.res.resolve(n)
}

// FrameRange is the span of frames covering a sample range.
type FrameRange struct {
	First          int64
	Last           int64
	FirstSamplePos int64
}

// GetRangeBySamples resolves a sample range to the frames covering it.
// Start is in the delay-adjusted sample space; an empty range is reported
// with all fields -1.
func (a *AudioSource) GetRangeBySamples(start, count int64) FrameRange {
	return a.rangeBySamples(start-a.sampleDelay, count)
}

// rangeBySamples resolves a raw sample range. Positions beyond either end
// of the track clamp to the first and last frames.
func (a *AudioSource) rangeBySamples(start, count int64) FrameRange {
	none := FrameRange{First: -1, Last: -1, FirstSamplePos: -1}
	if count <= 0 || start >= a.rawSamples {
		return none
	}

	var r FrameRange
	if start < 0 {
		r.First = 0
	} else {
		r.First = a.idx.FrameContaining(start)
	}

	end := start + count
	if end >= a.rawSamples {
		r.Last = a.NumFrames() - 1
	} else {
		r.Last = a.idx.FrameContaining(end - 1)
	}

	if r.First < 0 || r.Last < 0 {
		return none
	}
	r.FirstSamplePos = a.idx.Frames[r.First].Start
	return r
}

// GetPackedAudio fills data with count interleaved samples starting at the
// given delay-adjusted sample position. Regions outside the track are
// zero-filled.
func (a *AudioSource) GetPackedAudio(data []byte, start, count int64) error {
	if a.cfg.VariableFormat {
		return &decode.UnsupportedError{Msg: "packed audio can only be used when variable format is disabled"}
	}

	start -= a.sampleDelay
	ss := int64(a.props.BytesPerSample() * a.props.Channels)

	// Zero-fill the region before the first sample.
	if start < 0 {
		n := minInt64(count, -start)
		zero(data[:n*ss])
		data = data[n*ss:]
		start += n
		count -= n
	}

	// Zero-fill the region past the last sample.
	if start+count > a.rawSamples {
		n := minInt64(start+count-a.rawSamples, count)
		off := maxInt64(a.rawSamples-start, 0) * ss
		zero(data[off : off+n*ss])
		count -= n
	}

	rng := a.rangeBySamples(start, count)
	if rng.First == -1 {
		return nil
	}

	for i := rng.First; i <= rng.Last; i++ {
		f, err := a.GetFrame(i)
		if err != nil {
			return errors.Wrapf(err, "audio decoding error, failed to get frame %d", i)
		}
		a.fillPacked(f, rng.FirstSamplePos, &data, &start, &count)
		rng.FirstSamplePos += int64(f.Audio.NumSamples)
	}

	if count != 0 {
		return errors.New("code error, failed to provide all samples")
	}
	return nil
}

// GetPlanarAudio fills one destination buffer per channel with count
// samples starting at the given delay-adjusted sample position. Regions
// outside the track are zero-filled.
func (a *AudioSource) GetPlanarAudio(data [][]byte, start, count int64) error {
	if a.cfg.VariableFormat {
		return &decode.UnsupportedError{Msg: "planar audio can only be used when variable format is disabled"}
	}

	start -= a.sampleDelay
	bps := int64(a.props.BytesPerSample())

	dsts := make([][]byte, len(data))
	copy(dsts, data)

	if start < 0 {
		n := minInt64(count, -start)
		for c := range dsts {
			zero(dsts[c][:n*bps])
			dsts[c] = dsts[c][n*bps:]
		}
		start += n
		count -= n
	}

	if start+count > a.rawSamples {
		n := minInt64(start+count-a.rawSamples, count)
		off := maxInt64(a.rawSamples-start, 0) * bps
		for c := range dsts {
			zero(dsts[c][off : off+n*bps])
		}
		count -= n
	}

	rng := a.rangeBySamples(start, count)
	if rng.First == -1 {
		return nil
	}

	for i := rng.First; i <= rng.Last; i++ {
		f, err := a.GetFrame(i)
		if err != nil {
			return errors.Wrapf(err, "audio decoding error, failed to get frame %d", i)
		}
		a.fillPlanar(f, rng.FirstSamplePos, dsts, &start, &count)
		rng.FirstSamplePos += int64(f.Audio.NumSamples)
	}

	if count != 0 {
		return errors.New("code error, failed to provide all samples")
	}
	return nil
}

// fillPacked copies or interleaves the overlap of the frame with the
// remaining request into the packed destination.
func (a *AudioSource) fillPacked(f *decode.Frame, frameStart int64, data *[]byte, start, count *int64) {
	p := f.Audio
	if *start < frameStart || *start >= frameStart+int64(p.NumSamples) {
		return
	}
	n := minInt64(*count, int64(p.NumSamples)-(*start-frameStart))
	if n == 0 {
		return
	}

	bps := a.props.BytesPerSample()
	off := *start - frameStart
	if p.Planar {
		srcs := make([][]byte, p.Channels)
		for c := range srcs {
			srcs[c] = p.Data[c][off*int64(bps):]
		}
		written := pcm.Interleave(*data, srcs, int(n), bps)
		*data = (*data)[written:]
	} else {
		span := int64(bps * p.Channels)
		copied := copy(*data, p.Data[0][off*span:(off+n)*span])
		*data = (*data)[copied:]
	}
	*start += n
	*count -= n
}

// fillPlanar copies or de-interleaves the overlap of the frame with the
// remaining request into the per-channel destinations.
func (a *AudioSource) fillPlanar(f *decode.Frame, frameStart int64, dsts [][]byte, start, count *int64) {
	p := f.Audio
	if *start < frameStart || *start >= frameStart+int64(p.NumSamples) {
		return
	}
	n := minInt64(*count, int64(p.NumSamples)-(*start-frameStart))
	if n == 0 {
		return
	}

	bps := a.props.BytesPerSample()
	off := *start - frameStart
	if p.Planar {
		for c := range dsts {
			copied := copy(dsts[c], p.Data[c][off*int64(bps):(off+n)*int64(bps)])
			dsts[c] = dsts[c][copied:]
		}
	} else {
		consumed := pcm.Deinterleave(dsts, p.Data[0][off*int64(bps*p.Channels):], int(n), bps)
		per := consumed / len(dsts)
		for c := range dsts {
			dsts[c] = dsts[c][per:]
		}
	}
	*start += n
	*count -= n
}

// Close releases all decoders held by the source.
func (a *AudioSource) Close() {
	a.res.close()
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
