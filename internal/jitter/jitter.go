// Package jitter fans a single-stream adaptive jitter buffer out across
// multiple senders, keyed by sender ID.
//
// It reorders out-of-order packets using sequence numbers, buffers a
// configurable number of frames before starting playback, and signals
// missing frames so the caller can invoke Opus PLC (packet loss concealment).
package jitter

import (
	"time"

	"jbufcore/jitterbuf"
)

const (
	frameSize = 1275 // opusMaxPacketBytes: the largest Opus packet per RFC 6716
	ptimeMs   = 20

	// staleTimeout is how long a sender must be silent before their stream
	// is pruned from the buffer.
	staleTimeout = 500 * time.Millisecond
)

// Config tunes the jitterbuf.Buffer created for each sender. It mirrors
// config.Config's Jitter* fields one-to-one.
type Config struct {
	MaxCount      int // ring capacity, in frames
	InitPrefetch  int // initial (or, in fixed mode, permanent) prefetch depth
	MinPrefetch   int // adaptive lower bound; 0 disables adaptive mode (fixed prefetch)
	MaxPrefetch   int // adaptive upper bound
	DiscardPolicy jitterbuf.DiscardPolicy
}

// ParseDiscardPolicy maps a config.Config.JitterDiscardPolicy string onto a
// jitterbuf.DiscardPolicy, defaulting to progressive for anything unrecognized.
func ParseDiscardPolicy(s string) jitterbuf.DiscardPolicy {
	switch s {
	case "none":
		return jitterbuf.DiscardNone
	case "static":
		return jitterbuf.DiscardStatic
	default:
		return jitterbuf.DiscardProgressive
	}
}

// DefaultConfig mirrors config.Default()'s Jitter* values, used when the
// caller doesn't supply its own Config (e.g. existing tests).
func DefaultConfig() Config {
	return Config{
		MaxCount:      64,
		InitPrefetch:  15,
		MinPrefetch:   0,
		MaxPrefetch:   51,
		DiscardPolicy: jitterbuf.DiscardProgressive,
	}
}

// Frame is a single voice frame output from the jitter buffer.
type Frame struct {
	SenderID uint16
	OpusData []byte // nil when Missing is true
	Missing  bool   // true signals a gap or stall: caller should run PLC
}

// stream tracks per-sender jitter buffer state.
type stream struct {
	buf      *jitterbuf.Buffer
	lastRecv time.Time
}

// Buffer fans a per-sender jitterbuf.Buffer out across senders. Not safe for
// concurrent use; the caller (playbackLoop) is the sole reader and
// synchronises externally.
type Buffer struct {
	streams map[uint16]*stream
	depth   int // frames to buffer before starting playback
	cfg     Config
}

// New creates a jitter buffer with the given depth (in 20 ms frames),
// tuned by cfg. A depth of 3 adds ~60 ms latency and tolerates reordering
// within that window.
func New(depth int, cfg Config) *Buffer {
	if cfg.MaxCount <= 0 {
		cfg.MaxCount = DefaultConfig().MaxCount
	}
	if cfg.MaxPrefetch <= 0 {
		cfg.MaxPrefetch = cfg.MaxCount * 4 / 5
	}
	if depth < 1 {
		depth = 1
	}
	if depth > cfg.MaxCount/2 {
		depth = cfg.MaxCount / 2
	}
	return &Buffer{
		streams: make(map[uint16]*stream),
		depth:   depth,
		cfg:     cfg,
	}
}

// applyTuning configures buf per b.cfg at the given depth: adaptive prefetch
// when MinPrefetch > 0, fixed otherwise, with the configured discard policy
// applied last since SetFixed otherwise disables discarding.
func (b *Buffer) applyTuning(buf *jitterbuf.Buffer, depth int) {
	if b.cfg.MinPrefetch > 0 {
		buf.SetAdaptive(depth, b.cfg.MinPrefetch, b.cfg.MaxPrefetch)
	} else {
		buf.SetFixed(depth)
	}
	buf.SetDiscard(b.cfg.DiscardPolicy)
}

// Push inserts a received packet into the sender's buffer.
func (b *Buffer) Push(senderID, seq uint16, opus []byte) {
	s, ok := b.streams[senderID]
	if !ok {
		buf, _ := jitterbuf.New(frameSize, ptimeMs, b.cfg.MaxCount) // args are all positive (New forces MaxCount > 0), never invalid
		b.applyTuning(buf, b.depth)
		s = &stream{buf: buf}
		b.streams[senderID] = s
	}
	s.lastRecv = time.Now()
	s.buf.Put(int32(seq), opus, 0, 0)
}

// Pop returns one frame per active, primed sender for the current 20 ms
// playback tick. Senders that have gone silent for more than staleTimeout
// are pruned.
func (b *Buffer) Pop() []Frame {
	now := time.Now()
	var frames []Frame
	var stale []uint16
	out := make([]byte, frameSize)

	for id, s := range b.streams {
		if now.Sub(s.lastRecv) > staleTimeout {
			stale = append(stale, id)
			continue
		}

		ft, n, _, _, _ := s.buf.Get(out)
		switch ft {
		case jitterbuf.TypeNormal:
			data := make([]byte, n)
			copy(data, out[:n])
			frames = append(frames, Frame{SenderID: id, OpusData: data})
		case jitterbuf.TypeZeroPrefetch:
			// still accumulating the initial window; nothing to play yet
		default: // TypeMissing, TypeZeroEmpty
			frames = append(frames, Frame{SenderID: id, Missing: true})
		}
	}

	for _, id := range stale {
		delete(b.streams, id)
	}

	return frames
}

// Reset clears all buffered state (e.g. on disconnect).
func (b *Buffer) Reset() {
	b.streams = make(map[uint16]*stream)
}

// ActiveSenders returns the number of senders currently tracked.
func (b *Buffer) ActiveSenders() int {
	return len(b.streams)
}

// Stats returns the underlying jitterbuf.Stats for every currently tracked
// sender, for logging and for feeding adaptive depth/bitrate decisions.
func (b *Buffer) Stats() map[uint16]jitterbuf.Stats {
	out := make(map[uint16]jitterbuf.Stats, len(b.streams))
	for id, s := range b.streams {
		out[id] = s.buf.Stats()
	}
	return out
}

// Depth returns the current target prefetch depth.
func (b *Buffer) Depth() int {
	return b.depth
}

// SetDepth updates the target prefetch depth for all current and future
// senders, preserving each stream's fixed-vs-adaptive mode and discard policy.
func (b *Buffer) SetDepth(depth int) {
	if depth < 1 {
		depth = 1
	}
	if depth > b.cfg.MaxCount/2 {
		depth = b.cfg.MaxCount / 2
	}
	b.depth = depth
	for _, s := range b.streams {
		b.applyTuning(s.buf, depth)
	}
}
