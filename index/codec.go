/*
NAME
  codec.go

DESCRIPTION
  codec.go contains the bit-exact binary serializer and deserializer for
  track indexes, including the dictionary compression of repeated per-frame
  tuples and the fence fields that gate reuse of a persisted index.

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

package index

import (
	"encoding/binary"
	"io"
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Format version stored in every index. Bumping either component
// invalidates all previously written indexes.
const (
	FormatMajor = 2
	FormatMinor = 1
)

// Versions of the decode layer components baked into the fence, in the
// place the original layout reserves for the demux/decode library versions.
var libVersions = [3]int32{1, 0, 0}

var (
	magicVideo = [4]byte{'B', 'S', '2', 'V'}
	magicAudio = [4]byte{'B', 'S', '2', 'A'}
)

// ErrMismatch is returned when a persisted index fails a fence comparison.
// It signals "rebuild", never a fatal condition.
var ErrMismatch = errors.New("index fence mismatch")

// Header carries the fence fields stored alongside an index. Every field
// must compare equal on read or the index is rejected.
type Header struct {
	FileSize       int64
	Track          int32
	VariableFormat int32

	// Video only.
	HWDevice      string
	ExtraHWFrames int32

	// Audio only.
	DRCScale float64

	Options map[string]string
}

// leWriter wraps an io.Writer with little-endian encoding helpers and a
// sticky error so serialization reads as straight-line code.
type leWriter struct {
	w   io.Writer
	err error
}

func (w *leWriter) write(v any) {
	if w.err != nil {
		return
	}
	w.err = binary.Write(w.w, binary.LittleEndian, v)
}

func (w *leWriter) u8(v uint8)   { w.write(v) }
func (w *leWriter) i32(v int32)  { w.write(v) }
func (w *leWriter) i64(v int64)  { w.write(v) }
func (w *leWriter) u64(v uint64) { w.write(v) }
func (w *leWriter) f64(v float64) {
	w.write(math.Float64bits(v))
}

func (w *leWriter) str(s string) {
	w.i32(int32(len(s)))
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, s)
}

func (w *leWriter) options(opts map[string]string) {
	w.i32(int32(len(opts)))
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.str(k)
		w.str(opts[k])
	}
}

// leReader mirrors leWriter for deserialization, with fence comparison
// helpers that latch ErrMismatch.
type leReader struct {
	r   io.Reader
	err error
}

func (r *leReader) read(v any) {
	if r.err != nil {
		return
	}
	r.err = binary.Read(r.r, binary.LittleEndian, v)
}

func (r *leReader) u8() uint8 {
	var v uint8
	r.read(&v)
	return v
}

func (r *leReader) i32() int32 {
	var v int32
	r.read(&v)
	return v
}

func (r *leReader) i64() int64 {
	var v int64
	r.read(&v)
	return v
}

func (r *leReader) u64() uint64 {
	var v uint64
	r.read(&v)
	return v
}

func (r *leReader) f64() float64 {
	return math.Float64frombits(r.u64())
}

func (r *leReader) str() string {
	n := r.i32()
	if r.err != nil || n < 0 {
		if r.err == nil {
			r.err = errors.New("negative string length")
		}
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		r.err = err
		return ""
	}
	return string(b)
}

func (r *leReader) expectI32(want int32) {
	if r.i32() != want && r.err == nil {
		r.err = ErrMismatch
	}
}

func (r *leReader) expectI64(want int64) {
	if r.i64() != want && r.err == nil {
		r.err = ErrMismatch
	}
}

func (r *leReader) expectF64(want float64) {
	if r.f64() != want && r.err == nil {
		r.err = ErrMismatch
	}
}

func (r *leReader) expectStr(want string) {
	if r.str() != want && r.err == nil {
		r.err = ErrMismatch
	}
}

func (r *leReader) expectOptions(want map[string]string) {
	n := r.i32()
	if r.err != nil {
		return
	}
	got := make(map[string]string, n)
	for i := int32(0); i < n; i++ {
		k := r.str()
		got[k] = r.str()
	}
	if r.err != nil {
		return
	}
	if len(got) != len(want) {
		r.err = ErrMismatch
		return
	}
	for k, v := range want {
		if got[k] != v {
			r.err = ErrMismatch
			return
		}
	}
}

func writeCommonHeader(w *leWriter, magic [4]byte) {
	if w.err == nil {
		_, w.err = w.w.Write(magic[:])
	}
	w.i32(FormatMajor<<16 | FormatMinor)
	for _, v := range libVersions {
		w.i32(v)
	}
}

func readCommonHeader(r *leReader, magic [4]byte) {
	var got [4]byte
	if r.err == nil {
		if _, err := io.ReadFull(r.r, got[:]); err != nil {
			r.err = err
			return
		}
	}
	if got != magic {
		r.err = ErrMismatch
		return
	}
	r.expectI32(FormatMajor<<16 | FormatMinor)
	for _, v := range libVersions {
		r.expectI32(v)
	}
}

// ptsDelta encodes PTS values as deltas against the previously emitted
// original value, leaving UnsetPTS untouched. The starting value is the
// predictor so that constant-rate streams produce a single repeated delta
// from the very first frame.
type ptsDelta struct {
	last int64
}

func (p *ptsDelta) encode(pts int64) int64 {
	if pts == UnsetPTS {
		return UnsetPTS
	}
	d := pts - p.last
	p.last = pts
	return d
}

func (p *ptsDelta) decode(d int64) int64 {
	if d == UnsetPTS {
		return UnsetPTS
	}
	p.last += d
	return p.last
}

func videoPredictor(frames []VideoFrame) int64 {
	if len(frames) > 1 && frames[0].PTS != UnsetPTS && frames[1].PTS != UnsetPTS {
		return frames[1].PTS - 2*(frames[1].PTS-frames[0].PTS)
	}
	return 0
}

func audioPredictor(frames []AudioFrame) int64 {
	if len(frames) > 1 && frames[0].PTS != UnsetPTS && frames[1].PTS != UnsetPTS {
		return frames[1].PTS - 2*(frames[1].PTS-frames[0].PTS)
	}
	return 0
}

type videoTuple struct {
	ptsDelta   int64
	repeatPict int32
	flags      uint8
}

type audioTuple struct {
	ptsDelta int64
	length   int64
}

func videoFlags(f VideoFrame) uint8 {
	var flags uint8
	if f.KeyFrame {
		flags |= 1
	}
	if f.TFF {
		flags |= 2
	}
	return flags
}

// WriteVideo serializes a video track index. The per-frame tuples are
// dictionary compressed when at most 255 unique tuples exist, which is the
// common case for constant-rate streams.
func WriteVideo(out io.Writer, h Header, v *Video) error {
	w := &leWriter{w: out}
	writeCommonHeader(w, magicVideo)
	w.i64(h.FileSize)
	w.i32(h.Track)
	w.i32(h.VariableFormat)
	w.str(h.HWDevice)
	w.i32(h.ExtraHWFrames)
	w.options(h.Options)
	w.i64(int64(len(v.Frames)))
	w.i64(v.LastFrameDuration)

	predictor := videoPredictor(v.Frames)
	enc := ptsDelta{last: predictor}
	tuples := make([]videoTuple, len(v.Frames))
	set := make(map[videoTuple]int)
	for i, f := range v.Frames {
		tuples[i] = videoTuple{enc.encode(f.PTS), f.RepeatPict, videoFlags(f)}
		set[tuples[i]] = 0
	}

	if len(set) <= 0xFF {
		dict := make([]videoTuple, 0, len(set))
		for t := range set {
			dict = append(dict, t)
		}
		sort.Slice(dict, func(i, j int) bool {
			if dict[i].ptsDelta != dict[j].ptsDelta {
				return dict[i].ptsDelta < dict[j].ptsDelta
			}
			if dict[i].repeatPict != dict[j].repeatPict {
				return dict[i].repeatPict < dict[j].repeatPict
			}
			return dict[i].flags < dict[j].flags
		})
		for i, t := range dict {
			set[t] = i
		}

		w.i32(int32(len(dict)))
		w.i64(predictor)
		for _, t := range dict {
			w.i64(t.ptsDelta)
			w.i32(t.repeatPict)
			w.u8(t.flags)
		}
		for i, f := range v.Frames {
			w.u8(uint8(set[tuples[i]]))
			w.u64(f.Hash)
		}
	} else {
		w.i32(0)
		for _, f := range v.Frames {
			w.u64(f.Hash)
			w.i64(f.PTS)
			w.i32(f.RepeatPict)
			w.u8(videoFlags(f))
		}
	}

	return errors.Wrap(w.err, "writing video index")
}

// ReadVideo deserializes a video track index, verifying every fence field
// against h. ErrMismatch means the index is stale and must be rebuilt.
func ReadVideo(in io.Reader, h Header) (*Video, error) {
	r := &leReader{r: in}
	readCommonHeader(r, magicVideo)
	r.expectI64(h.FileSize)
	r.expectI32(h.Track)
	r.expectI32(h.VariableFormat)
	r.expectStr(h.HWDevice)
	r.expectI32(h.ExtraHWFrames)
	r.expectOptions(h.Options)
	numFrames := r.i64()
	lastFrameDuration := r.i64()
	dictSize := r.i32()
	if r.err != nil {
		return nil, r.err
	}
	if numFrames < 0 || dictSize < 0 || dictSize > 0xFF {
		return nil, ErrMismatch
	}

	v := &Video{LastFrameDuration: lastFrameDuration}
	v.Frames = make([]VideoFrame, 0, numFrames)

	if dictSize > 0 {
		dec := ptsDelta{last: r.i64()}
		dict := make([]videoTuple, dictSize)
		for i := range dict {
			dict[i] = videoTuple{r.i64(), r.i32(), r.u8()}
		}
		for i := int64(0); i < numFrames; i++ {
			id := r.u8()
			hash := r.u64()
			if r.err != nil {
				return nil, r.err
			}
			if int32(id) >= dictSize {
				return nil, ErrMismatch
			}
			t := dict[id]
			v.Frames = append(v.Frames, VideoFrame{
				PTS:        dec.decode(t.ptsDelta),
				RepeatPict: t.repeatPict,
				KeyFrame:   t.flags&1 != 0,
				TFF:        t.flags&2 != 0,
				Hash:       hash,
			})
		}
	} else {
		for i := int64(0); i < numFrames; i++ {
			hash := r.u64()
			pts := r.i64()
			repeat := r.i32()
			flags := r.u8()
			if r.err != nil {
				return nil, r.err
			}
			v.Frames = append(v.Frames, VideoFrame{
				PTS:        pts,
				RepeatPict: repeat,
				KeyFrame:   flags&1 != 0,
				TFF:        flags&2 != 0,
				Hash:       hash,
			})
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	return v, nil
}

// WriteAudio serializes an audio track index. Frame Start positions are not
// stored; they are recomputed as the running sum of Lengths on read.
func WriteAudio(out io.Writer, h Header, a *Audio) error {
	w := &leWriter{w: out}
	writeCommonHeader(w, magicAudio)
	w.i64(h.FileSize)
	w.i32(h.Track)
	w.i32(h.VariableFormat)
	w.f64(h.DRCScale)
	w.options(h.Options)
	w.i64(int64(len(a.Frames)))

	predictor := audioPredictor(a.Frames)
	enc := ptsDelta{last: predictor}
	tuples := make([]audioTuple, len(a.Frames))
	set := make(map[audioTuple]int)
	for i, f := range a.Frames {
		tuples[i] = audioTuple{enc.encode(f.PTS), f.Length}
		set[tuples[i]] = 0
	}

	if len(set) <= 0xFF {
		dict := make([]audioTuple, 0, len(set))
		for t := range set {
			dict = append(dict, t)
		}
		sort.Slice(dict, func(i, j int) bool {
			if dict[i].ptsDelta != dict[j].ptsDelta {
				return dict[i].ptsDelta < dict[j].ptsDelta
			}
			return dict[i].length < dict[j].length
		})
		for i, t := range dict {
			set[t] = i
		}

		w.i32(int32(len(dict)))
		w.i64(predictor)
		for _, t := range dict {
			w.i64(t.ptsDelta)
			w.i64(t.length)
		}
		for i, f := range a.Frames {
			w.u8(uint8(set[tuples[i]]))
			w.u64(f.Hash)
		}
	} else {
		w.i32(0)
		for _, f := range a.Frames {
			w.u64(f.Hash)
			w.i64(f.PTS)
			w.i64(f.Length)
		}
	}

	return errors.Wrap(w.err, "writing audio index")
}

// ReadAudio deserializes an audio track index, verifying every fence field
// against h.
func ReadAudio(in io.Reader, h Header) (*Audio, error) {
	r := &leReader{r: in}
	readCommonHeader(r, magicAudio)
	r.expectI64(h.FileSize)
	r.expectI32(h.Track)
	r.expectI32(h.VariableFormat)
	r.expectF64(h.DRCScale)
	r.expectOptions(h.Options)
	numFrames := r.i64()
	dictSize := r.i32()
	if r.err != nil {
		return nil, r.err
	}
	if numFrames < 0 || dictSize < 0 || dictSize > 0xFF {
		return nil, ErrMismatch
	}

	a := &Audio{}
	a.Frames = make([]AudioFrame, 0, numFrames)
	var start int64

	if dictSize > 0 {
		dec := ptsDelta{last: r.i64()}
		dict := make([]audioTuple, dictSize)
		for i := range dict {
			dict[i] = audioTuple{r.i64(), r.i64()}
		}
		for i := int64(0); i < numFrames; i++ {
			id := r.u8()
			hash := r.u64()
			if r.err != nil {
				return nil, r.err
			}
			if int32(id) >= dictSize {
				return nil, ErrMismatch
			}
			t := dict[id]
			a.Frames = append(a.Frames, AudioFrame{
				PTS:    dec.decode(t.ptsDelta),
				Start:  start,
				Length: t.length,
				Hash:   hash,
			})
			start += t.length
		}
	} else {
		for i := int64(0); i < numFrames; i++ {
			hash := r.u64()
			pts := r.i64()
			length := r.i64()
			if r.err != nil {
				return nil, r.err
			}
			a.Frames = append(a.Frames, AudioFrame{
				PTS:    pts,
				Start:  start,
				Length: length,
				Hash:   hash,
			})
			start += length
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	return a, nil
}
