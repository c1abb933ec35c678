/*
NAME
  resolver.go

DESCRIPTION
  resolver.go contains the seek-and-verify state machine shared by video
  and audio sources: seek target selection, hash matching with multi-frame
  disambiguation, retry with blacklisting of bad seek locations, and the
  permanent escalation to linear decoding.

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
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/mediasource/decode"
)

// Tuning constants of the seek machinery.
const (
	// seekFloor is the first frame number considered a usable seek
	// target. Seeking into the first frames of a track is unreliable
	// across codecs, so a prefix linear decode is used instead.
	seekFloor = 100

	// retrySeekAttempts bounds how many alternative seek points are
	// tried before latching linear mode.
	retrySeekAttempts = 10

	// matchStringCap bounds the hash match string used to disambiguate
	// runs of identical frames.
	matchStringCap = 10
)

// catalog is the resolver's view of a track index.
type catalog interface {
	numFrames() int64
	framePTS(n int64) int64
	frameHash(n int64) uint64

	// goodSeekPoint reports whether frame n may serve as a seek target,
	// before bad-seek blacklisting is applied.
	goodSeekPoint(n int64) bool

	// anchor re-establishes the handle's logical position as frame n.
	anchor(h *decode.Handle, n int64)
}

// resolver positions decoders so that requested frame numbers resolve to
// hash-verified payloads. It owns the decoder pool, the frame cache and the
// bad seek location set for the lifetime of its source.
type resolver struct {
	log  logging.Logger
	cat  catalog
	pool *pool
	cache *frameCache

	newDecoder func() (*decode.Handle, error)

	preRoll int64

	// preSkip discards preRoll/2 warm-up frames after an audio seek
	// before hash matching begins.
	preSkip bool

	linearMode bool
	badSeek    map[int64]struct{}
}

func newResolver(log logging.Logger, cat catalog, newDecoder func() (*decode.Handle, error), preRoll int64, preSkip bool) *resolver {
	return &resolver{
		log:        log,
		cat:        cat,
		pool:       newPool(),
		cache:      newFrameCache(),
		newDecoder: newDecoder,
		preRoll:    preRoll,
		preSkip:    preSkip,
		badSeek:    make(map[int64]struct{}),
	}
}

// resolve serves frame n, consulting the cache before the seek machinery.
func (r *resolver) resolve(n int64) (*decode.Frame, error) {
	if f := r.cache.get(n); f != nil {
		return f, nil
	}
	return r.getFrameInternal(n)
}

// resolveLinear serves frame n without seeking.
func (r *resolver) resolveLinear(n int64) (*decode.Frame, error) {
	if f := r.cache.get(n); f != nil {
		return f, nil
	}
	return r.getFrameLinear(n, -1, 0, r.linearMode)
}

// seekFrame returns the best seek target for frame n: the closest earlier
// frame that is a usable random-access point, is not blacklisted, and is
// not within the unreliable head of the track. -1 means no target exists
// and the request must be served linearly.
func (r *resolver) seekFrame(n int64) int64 {
	for i := n - r.preRoll; i >= seekFloor; i-- {
		if !r.cat.goodSeekPoint(i) {
			continue
		}
		if _, bad := r.badSeek[i]; bad {
			continue
		}
		return i
	}
	return -1
}

func (r *resolver) getFrameInternal(n int64) (*decode.Frame, error) {
	if r.linearMode {
		return r.getFrameLinear(n, -1, 0, true)
	}

	seekFrame := r.seekFrame(n)
	if seekFrame < seekFloor {
		return r.getFrameLinear(n, -1, 0, false)
	}

	// A decoder already inside the optimal zone beats seeking.
	if i := r.pool.nearHit(seekFrame, n); i >= 0 {
		return r.getFrameLinear(n, -1, 0, false)
	}

	slot := r.pool.acquire()
	if r.pool.slots[slot] == nil {
		h, err := r.newDecoder()
		if err != nil {
			return nil, err
		}
		r.pool.slots[slot] = h
	}
	r.pool.touch(slot)

	return r.seekAndDecode(n, seekFrame, slot, 0)
}

// markBadSeek blacklists a proven-unreliable seek location.
func (r *resolver) markBadSeek(seekFrame int64) {
	r.badSeek[seekFrame] = struct{}{}
}

// retrySeek re-attempts a failed seek from a target at least seekFloor
// frames earlier, falling back to linear service when the attempts are
// exhausted or no usable target remains.
func (r *resolver) retrySeek(n, seekFrame int64, slot, depth int) (*decode.Frame, error) {
	if depth < retrySeekAttempts {
		next := r.seekFrame(seekFrame - seekFloor)
		r.log.Debug("retrying seek", "requested", n, "seekFrame", next)
		if next < seekFloor {
			r.pool.drop(slot)
			return r.getFrameLinear(n, -1, 0, false)
		}
		return r.seekAndDecode(n, next, slot, depth+1)
	}

	r.log.Debug("maximum number of seek attempts made, latching linear mode", "requested", n, "seekFrame", seekFrame)
	r.setLinearMode()
	return r.getFrameLinear(n, -1, 0, true)
}

type matchFrame struct {
	frame *decode.Frame
	hash  uint64
}

// seekAndDecode seeks the decoder in the given pool slot to seekFrame and
// re-anchors its logical frame number by hash matching decoded frames
// against the index, extending the match string over runs of identical
// hashes. Matched frames in the preroll window seed the cache.
func (r *resolver) seekAndDecode(n, seekFrame int64, slot, depth int) (*decode.Frame, error) {
	h := r.pool.slots[slot]
	if err := h.Seek(r.cat.framePTS(seekFrame)); err != nil {
		r.log.Debug("unseekable file, latching linear mode", "requested", n, "error", err.Error())
		r.setLinearMode()
		return r.getFrameLinear(n, -1, 0, true)
	}

	if r.preSkip {
		h.SkipFrames(r.preRoll / 2)
	}

	total := r.cat.numFrames()
	var matchFrames []matchFrame

	for {
		f, _ := h.ReadFrame()

		if f == nil && len(matchFrames) == 0 {
			r.log.Debug("no frame decoded after seek, marking bad seek location", "requested", n, "seekFrame", seekFrame)
			r.markBadSeek(seekFrame)
			return r.retrySeek(n, seekFrame, slot, depth)
		}

		if f != nil {
			matchFrames = append(matchFrames, matchFrame{frame: f, hash: f.ContentHash()})
		}

		var matches []int64
		if f != nil {
			for i := int64(0); i <= total-int64(len(matchFrames)); i++ {
				ok := true
				for j := range matchFrames {
					if matchFrames[j].hash != r.cat.frameHash(i+int64(j)) {
						ok = false
						break
					}
				}
				if ok {
					matches = append(matches, i)
				}
			}
		} else {
			// End of track: the match string can only sit flush against
			// the end of the index.
			i := total - int64(len(matchFrames))
			ok := i >= 0
			for j := 0; ok && j < len(matchFrames); j++ {
				ok = matchFrames[j].hash == r.cat.frameHash(i+int64(j))
			}
			if ok {
				matches = append(matches, i)
			}
		}

		suitable := false
		for _, m := range matches {
			if m <= n {
				suitable = true
				break
			}
		}
		ambiguous := len(matches) > 1 && (f == nil || len(matchFrames) >= matchStringCap)

		if !suitable || ambiguous {
			r.log.Debug("seek destination could not be determined, marking bad seek location",
				"requested", n, "seekFrame", seekFrame, "matches", len(matches))
			r.markBadSeek(seekFrame)
			return r.retrySeek(n, seekFrame, slot, depth)
		}

		if len(matches) == 1 {
			matched := matches[0]
			if matched < seekFloor {
				r.log.Debug("seek destination within the track head, this was unexpected", "requested", n, "matched", matched)
			}
			r.cat.anchor(h, matched+int64(len(matchFrames)))

			var ret *decode.Frame
			for k := range matchFrames {
				frameNumber := matched + int64(k)
				if frameNumber >= n-r.preRoll {
					if frameNumber == n {
						ret = matchFrames[k].frame.Clone()
					}
					r.cache.put(frameNumber, matchFrames[k].frame)
				}
			}
			if ret != nil {
				return ret, nil
			}

			// The window ended before n; linear service finishes the job.
			return r.getFrameLinear(n, seekFrame, depth, false)
		}

		// Multiple candidates match; decode another frame to extend the
		// match string.
	}
}

// getFrameLinear serves frame n by forward decoding on the best positioned
// handle, verifying every decoded frame in the preroll window against the
// index. seekFrame records the seek target that positioned a seeked handle
// so that verification failures can blacklist it.
func (r *resolver) getFrameLinear(n, seekFrame int64, depth int, forceUnseeked bool) (*decode.Frame, error) {
	slot := r.pool.bestLinear(n, forceUnseeked)
	if slot < 0 {
		slot = r.pool.acquire()
		h, err := r.newDecoder()
		if err != nil {
			return nil, err
		}
		r.pool.slots[slot] = h
	}
	r.pool.touch(slot)

	var ret *decode.Frame
	for {
		h := r.pool.slots[slot]
		if h == nil || h.FrameNumber() > n || !h.HasMore() {
			break
		}

		frameNumber := h.FrameNumber()
		if frameNumber >= n-r.preRoll {
			f, _ := h.ReadFrame()

			// The central sanity check: a decoder that seeked and had its
			// location identified can still produce frames out of order.
			if f == nil || f.ContentHash() != r.cat.frameHash(frameNumber) {
				if h.Seeked() {
					r.log.Debug("decoded frame does not match index hash, marking bad seek location",
						"requested", n, "frame", frameNumber, "seekFrame", seekFrame)
					if seekFrame >= 0 {
						r.markBadSeek(seekFrame)
					}
					if depth < retrySeekAttempts {
						next := r.seekFrame(seekFrame - seekFloor)
						if next < seekFloor {
							r.pool.drop(slot)
							return r.getFrameLinear(n, -1, 0, false)
						}
						return r.seekAndDecode(n, next, slot, depth+1)
					}
					r.log.Debug("maximum number of seek attempts made, latching linear mode", "requested", n)
					r.setLinearMode()
					return r.getFrameLinear(n, -1, 0, true)
				}

				r.log.Error("linear decoding returned a bad frame; delete the index and retry with threads=1",
					"requested", n, "frame", frameNumber)
				return nil, &decode.DecodeError{Msg: "linear decode does not match the index"}
			}

			if frameNumber == n {
				ret = f.Clone()
			}
			r.cache.put(frameNumber, f)
		} else {
			h.SkipFrames(n - r.preRoll - frameNumber)
		}

		if !h.HasMore() {
			r.pool.drop(slot)
		}
	}

	if ret == nil {
		return nil, &decode.DecodeError{Msg: "track ended before the requested frame"}
	}
	return ret, nil
}

// setLinearMode latches the source into linear decoding for the rest of
// its lifetime, dropping all decoders and cached frames.
func (r *resolver) setLinearMode() {
	if r.linearMode {
		return
	}
	r.log.Warning("linear decoding mode is now forced")
	r.linearMode = true
	r.cache.clear()
	r.pool.dropAll()
}

// close releases all pooled decoders.
func (r *resolver) close() {
	r.pool.dropAll()
}
