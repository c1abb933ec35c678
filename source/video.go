/*
NAME
  video.go

DESCRIPTION
  video.go contains VideoSource, the random-access frame server for one
  video track: index construction and persistence, frame rate estimation,
  repeated-field expansion, time-indexed access and timecode output.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>
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
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ausocean/mediasource/cachefile"
	"github.com/ausocean/mediasource/decode"
	"github.com/ausocean/mediasource/index"
)

type rffState int

const (
	rffUninitialized rffState = iota
	rffReady
	rffUnused
)

// VideoSource serves the frames of one video track by stable frame number.
// A source is single-owner: callers serialize all operations.
type VideoSource struct {
	cfg Config
	log logging.Logger

	idx   *index.Video
	props decode.VideoProperties
	res   *resolver

	fileSize int64
	track    int

	rff          rffState
	rffFields    [][2]int64
	numRFFFrames int64
}

// NewVideo opens a video track, loading its persisted index or building
// one with a full linear decode pass.
func NewVideo(cfg Config) (*VideoSource, error) {
	if err := cfg.Validate(decode.Video); err != nil {
		return nil, err
	}
	absolutify(&cfg)

	dec, err := cfg.newDecoder(decode.Video)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open '%s'", cfg.Source)
	}

	v := &VideoSource{
		cfg:      cfg,
		log:      cfg.Logger,
		props:    dec.Properties().Video,
		fileSize: dec.SourceSize(),
		track:    dec.Track(),
	}
	preRoll := cfg.SeekPreRoll
	if preRoll == 0 {
		preRoll = defaultPreRoll
	}
	v.res = newResolver(v.log, v, func() (*decode.Handle, error) {
		return cfg.newDecoder(decode.Video)
	}, preRoll, false)

	if cfg.CacheMode == cachefile.Disable || !v.readIndex() {
		if err := v.buildIndex(); err != nil {
			dec.Close()
			return nil, err
		}
		if cfg.CacheMode.ShouldWrite(len(v.idx.Frames)) {
			if err := v.writeIndex(); err != nil {
				if cfg.CacheMode == cachefile.AlwaysSubTree || cfg.CacheMode == cachefile.AlwaysAbsolute {
					dec.Close()
					return nil, errors.Wrapf(err, "failed to write index for track %d", v.track)
				}
				v.log.Warning("failed to write index", "track", v.track, "error", err.Error())
			}
		}
	}

	if v.idx.Frames[0].RepeatPict < 0 {
		dec.Close()
		return nil, errors.New("found an unexpected RFF quirk, please submit a bug report and attach the source file")
	}

	v.estimateFrameRate()

	// The pool inherits the property-probing decoder as its first slot.
	v.res.pool.slots[0] = dec
	v.res.pool.touch(0)

	return v, nil
}

// absolutify makes the source path absolute only when it names an existing
// file, passing URL and protocol strings through untouched.
func absolutify(cfg *Config) {
	if _, err := os.Stat(cfg.Source); err != nil {
		return
	}
	if abs, err := filepath.Abs(cfg.Source); err == nil {
		cfg.Source = abs
	}
}

func (v *VideoSource) header() index.Header {
	return index.Header{
		FileSize:       v.fileSize,
		Track:          int32(v.track),
		VariableFormat: boolFence(v.cfg.VariableFormat),
		HWDevice:       v.cfg.HWDevice,
		ExtraHWFrames:  int32(v.cfg.ExtraHWFrames),
		Options:        v.cfg.DemuxOptions,
	}
}

func boolFence(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (v *VideoSource) readIndex() bool {
	f, err := cachefile.Open(v.cfg.CacheMode, v.cfg.CachePath, v.cfg.Source, v.track)
	if err != nil {
		return false
	}
	defer f.Close()

	idx, err := index.ReadVideo(f, v.header())
	if err != nil {
		v.log.Debug("persisted index unusable, re-indexing", "track", v.track, "error", err.Error())
		return false
	}
	v.idx = idx
	return true
}

func (v *VideoSource) writeIndex() error {
	f, err := cachefile.Create(v.cfg.CacheMode, v.cfg.CachePath, v.cfg.Source, v.track)
	if err != nil {
		return err
	}
	defer f.Close()
	return index.WriteVideo(f, v.header(), v.idx)
}

func (v *VideoSource) buildIndex() error {
	idx := &index.Video{}
	err := indexTrack(v.res.newDecoder, v.cfg.Progress, func(f *decode.Frame) {
		idx.Frames = append(idx.Frames, index.VideoFrame{
			PTS:        f.PTS,
			RepeatPict: f.RepeatPict,
			KeyFrame:   f.KeyFrame,
			TFF:        f.TFF,
			Hash:       f.ContentHash(),
		})
		idx.LastFrameDuration = f.Duration
	})
	if err != nil {
		return err
	}
	if len(idx.Frames) == 0 {
		return errors.Errorf("indexing of '%s' track %d failed", v.cfg.Source, v.track)
	}
	v.idx = idx
	return nil
}

// estimateFrameRate replaces the container-reported frame rate when the
// indexed PTS deltas tell a more consistent story, and derives the track
// duration. RFF-flagged tracks keep the container rate.
func (v *VideoSource) estimateFrameRate() {
	frames := v.idx.Frames
	v.props.NumFrames = int64(len(frames))
	originalFPS := v.props.FPS

	hist := make(map[int64]int64)
	for i := 0; i+1 < len(frames); i++ {
		if frames[i].PTS == index.UnsetPTS || frames[i+1].PTS == index.UnsetPTS {
			hist[index.UnsetPTS]++
		} else {
			hist[frames[i+1].PTS-frames[i].PTS]++
		}
	}

	modalDelta := int64(1)
	if len(hist) > 0 {
		modalDelta, _ = histMax(hist)
	}

	lastFrameDuration := v.idx.LastFrameDuration
	if lastFrameDuration <= 0 && len(hist) > 0 && modalDelta > 0 {
		lastFrameDuration = modalDelta
	} else if lastFrameDuration > 0 && modalDelta > 0 && absInt64(lastFrameDuration-modalDelta) > modalDelta {
		v.log.Warning("container-reported last frame duration disagrees with the modal frame duration",
			"reported", lastFrameDuration, "modal", modalDelta)
	}
	if lastFrameDuration < 1 {
		lastFrameDuration = 1
	}

	v.props.Duration = (frames[len(frames)-1].PTS - frames[0].PTS) + lastFrameDuration

	tb := v.props.TimeBase
	switch {
	case len(hist) == 1 && modalDelta > 0:
		// True CFR: derive the rate from the time base and the single
		// observed duration.
		v.props.FPS = reduceRational(int64(tb.Den), modalDelta*int64(tb.Num))

	case len(frames) >= 20 && len(hist) > 1:
		// Discard as many small duration bins as possible while keeping
		// at least 95% of the sample mass, then rate from the remainder.
		total := int64(len(frames) - 1)
		used := total - hist[index.UnsetPTS]
		delete(hist, index.UnsetPTS)

		for len(hist) > 1 {
			k, c := histMin(hist)
			if (used-c)*100/total < 95 {
				break
			}
			used -= c
			delete(hist, k)
		}

		if len(hist) > 0 {
			var histDuration int64
			for k, c := range hist {
				histDuration += k * c
			}
			if histDuration > 0 {
				v.props.FPS = reduceRational(used*int64(tb.Den), histDuration*int64(tb.Num))
				nearestCommonFrameRate(&v.props.FPS)
			}
		}

	case v.props.FPS.Num == 90000 && v.props.FPS.Den == 1 && len(frames) >= 2:
		// The mpeg timebase sentinel is never a real frame rate; estimate
		// from a frame duration in the middle of the clip instead.
		f1 := frames[len(frames)/2].PTS
		f2 := frames[len(frames)/2-1].PTS
		if f1 != index.UnsetPTS && f2 != index.UnsetPTS && f1 > f2 {
			v.props.FPS = reduceRational(int64(tb.Den), (f1-f2)*int64(tb.Num))
			nearestCommonFrameRate(&v.props.FPS)
		}
	}

	var numFields int64
	for _, f := range frames {
		numFields += int64(f.RepeatPict) + 2
	}
	v.numRFFFrames = (numFields + 1) / 2

	if v.props.NumFrames == v.numRFFFrames {
		v.rff = rffUnused
	} else {
		// Container rates are generally correct for RFF-flagged files.
		v.props.FPS = originalFPS
	}
}

// histMax returns the histogram key with the highest count, smallest key
// winning ties for determinism.
func histMax(hist map[int64]int64) (key, count int64) {
	first := true
	for k, c := range hist {
		if first || c > count || (c == count && k < key) {
			key, count = k, c
			first = false
		}
	}
	return key, count
}

// histMin returns the histogram key with the lowest count, smallest key
// winning ties.
func histMin(hist map[int64]int64) (key, count int64) {
	first := true
	for k, c := range hist {
		if first || c < count || (c == count && k < key) {
			key, count = k, c
			first = false
		}
	}
	return key, count
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// reduceRational reduces num/den by their greatest common divisor.
func reduceRational(num, den int64) decode.Rational {
	if num == 0 || den == 0 {
		return decode.Rational{Num: int(num), Den: int(den)}
	}
	a, b := num, den
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return decode.Rational{Num: int(num / a), Den: int(den / a)}
}

// nearestCommonFrameRate snaps an estimated rate to the nearest common
// broadcast rate, including the 1000/1001 variants, when within half the
// gap between the pair.
func nearestCommonFrameRate(fps *decode.Rational) bool {
	common := []int{24, 25, 30, 48, 50, 60, 100, 120}
	estimate := fps.Float()

	for _, rate := range common {
		delta := (float64(rate) - float64(rate)/1.001) / 2
		if math.Abs(estimate-float64(rate)) < delta {
			*fps = decode.Rational{Num: rate, Den: 1}
			return true
		}
		if rate%25 != 0 && math.Abs(estimate-float64(rate)/1.001) < delta {
			*fps = decode.Rational{Num: rate * 1000, Den: 1001}
			return true
		}
	}
	return false
}

// catalog implementation.

func (v *VideoSource) numFrames() int64 { return int64(len(v.idx.Frames)) }

func (v *VideoSource) framePTS(n int64) int64 { return v.idx.Frames[n].PTS }

func (v *VideoSource) frameHash(n int64) uint64 { return v.idx.Frames[n].Hash }

func (v *VideoSource) goodSeekPoint(n int64) bool {
	f := v.idx.Frames[n]
	return f.KeyFrame && f.PTS != index.UnsetPTS
}

func (v *VideoSource) anchor(h *decode.Handle, n int64) {
	h.SetFrameNumber(n)
}

// Public API.

// Properties returns the stream description with the indexed frame count,
// estimated frame rate and duration applied.
func (v *VideoSource) Properties() decode.VideoProperties { return v.props }

// Track returns the resolved track number, useful when the track was
// selected as the Nth of its type.
func (v *VideoSource) Track() int { return v.track }

// NumFrames returns the indexed frame count.
func (v *VideoSource) NumFrames() int64 { return int64(len(v.idx.Frames)) }

// NumRFFFrames returns the frame count of the repeated-field-expanded
// frame space.
func (v *VideoSource) NumRFFFrames() int64 { return v.numRFFFrames }

// FrameInfo returns the index record of frame n.
func (v *VideoSource) FrameInfo(n int64) index.VideoFrame { return v.idx.Frames[n] }

// LinearDecodingState reports whether the source has latched linear mode.
func (v *VideoSource) LinearDecodingState() bool { return v.res.linearMode }

// SetMaxCacheSize bounds the frame cache to the given number of payload
// bytes, evicting immediately.
func (v *VideoSource) SetMaxCacheSize(bytes int64) { v.res.cache.setMaxSize(bytes) }

// SetSeekPreRoll sets the number of frames decoded and cached before a
// requested frame after a seek.
func (v *VideoSource) SetSeekPreRoll(frames int64) error {
	if frames < 0 || frames > maxVideoPreRoll {
		return &ArgumentError{Msg: "seek preroll must be between 0 and 40"}
	}
	v.res.preRoll = frames
	return nil
}

// SetMaxDecoderInstances bounds the decoder pool to 1..4 instances and
// returns the applied value.
func (v *VideoSource) SetMaxDecoderInstances(n int) int { return v.res.pool.setMax(n) }

// GetFrame returns frame n. Two calls for the same n always return
// byte-identical payloads regardless of access pattern.
func (v *VideoSource) GetFrame(n int64) (*decode.Frame, error) {
	if n < 0 || n >= v.NumFrames() {
		return nil, &ArgumentError{Msg: "frame number out of range"}
	}
	return v.res.resolve(n)
}

// GetFrameLinear returns frame n without seeking.
func (v *VideoSource) GetFrameLinear(n int64) (*decode.Frame, error) {
	if n < 0 || n >= v.NumFrames() {
		return nil, &ArgumentError{Msg: "frame number out of range"}
	}
	return v.res.resolveLinear(n)
}

// GetFrameByTime returns the frame whose presentation time is closest to
// the given time in seconds.
func (v *VideoSource) GetFrameByTime(t float64) (*decode.Frame, error) {
	tb := v.props.TimeBase
	pts := int64(t*float64(tb.Den)/float64(tb.Num) + 0.001)

	frames := v.idx.Frames
	i := sort.Search(len(frames), func(i int) bool { return frames[i].PTS >= pts })
	if i == len(frames) {
		return v.GetFrame(int64(len(frames) - 1))
	}
	if i == 0 || absInt64(frames[i].PTS-pts) <= absInt64(frames[i-1].PTS-pts) {
		return v.GetFrame(int64(i))
	}
	return v.GetFrame(int64(i - 1))
}

// Close releases all decoders held by the source.
func (v *VideoSource) Close() {
	v.res.close()
}
