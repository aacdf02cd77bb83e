package jitterbuf

import (
	"fmt"
	"sync"
)

const defaultInitDelay = 15 // frames; JB_DEFAULT_INIT_DELAY in the reference design
const maxBurstMsec = 1000

// Buffer is an adaptive jitter buffer for one sequence-numbered media
// stream. It holds a bounded window of frames indexed by sequence number,
// releases them to the caller at a steady cadence via Get, and retunes how
// much latency it holds as burst conditions change.
//
// A Buffer is a synchronous, thread-safe passive object: every exported
// method takes mu, does bounded work, and returns. There are no background
// goroutines, no timers, and the buffer never logs — callers that want
// visibility should poll Stats.
type Buffer struct {
	mu sync.Mutex

	frames frameList
	levelEstimator

	frameSize int
	ptimeMs   int
	maxCount  int

	minPrefetch  int
	maxPrefetch  int
	initPrefetch int
	prefetch     int
	prefetching  bool

	maxBurst     int
	minShrinkGap int

	discardPolicy DiscardPolicy
	discardRef    int32
	discardDist   int

	status       status
	lastOp       lastOp
	initCycleCnt int

	discardedTotal uint64
}

// New creates a Buffer for frames up to frameSize bytes, a playout cadence
// of ptimeMs, and a window of at most maxCount frames. Defaults match the
// reference design: progressive discard, adaptive prefetch seeded at
// min(15, max_count*4/5).
func New(frameSize, ptimeMs, maxCount int) (*Buffer, error) {
	if frameSize <= 0 || ptimeMs <= 0 || maxCount <= 0 {
		return nil, fmt.Errorf("jitterbuf.New(%d, %d, %d): %w", frameSize, ptimeMs, maxCount, ErrInvalidSize)
	}

	b := &Buffer{
		frames:    *newFrameList(frameSize, maxCount),
		frameSize: frameSize,
		ptimeMs:   ptimeMs,
		maxCount:  maxCount,
	}

	initPrefetch := defaultInitDelay
	if cap5 := maxCount * 4 / 5; cap5 < initPrefetch {
		initPrefetch = cap5
	}
	b.initPrefetch = initPrefetch
	b.prefetch = initPrefetch
	b.minPrefetch = 0
	b.maxPrefetch = maxCount * 4 / 5

	b.minShrinkGap = 200 / ptimeMs
	b.maxBurst = maxBurstMsec / ptimeMs
	if burstFloor := maxCount * 3 / 4; burstFloor > b.maxBurst {
		b.maxBurst = burstFloor
	}

	b.discardPolicy = DiscardProgressive

	b.Reset()
	return b, nil
}

// Reset returns the buffer to its post-construction observable state
// without reallocating the backing slot array.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *Buffer) resetLocked() {
	b.level = 0
	b.lastOp = opInit
	b.stableHist = 0
	b.status = statusInitializing
	b.initCycleCnt = 0
	b.maxHistLevel = 0
	b.prefetching = b.prefetch != 0
	b.discardDist = 0

	b.frames.reset()
}

// SetFixed switches the buffer to a fixed prefetch and disables discarding.
func (b *Buffer) SetFixed(prefetch int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prefetch > b.maxCount {
		return fmt.Errorf("jitterbuf: SetFixed(%d) exceeds max_count %d: %w", prefetch, b.maxCount, ErrInvalidPrefetch)
	}

	b.minPrefetch = prefetch
	b.maxPrefetch = prefetch
	b.prefetch = prefetch
	b.initPrefetch = prefetch
	b.discardPolicy = DiscardNone
	return nil
}

// SetAdaptive switches the buffer to adaptive prefetch within [min, max],
// seeded at prefetch.
func (b *Buffer) SetAdaptive(prefetch, minPrefetch, maxPrefetch int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if minPrefetch > maxPrefetch || prefetch > maxPrefetch || maxPrefetch > b.maxCount {
		return fmt.Errorf("jitterbuf: SetAdaptive(%d,%d,%d): %w", prefetch, minPrefetch, maxPrefetch, ErrInvalidPrefetch)
	}

	b.prefetch = prefetch
	b.initPrefetch = prefetch
	b.minPrefetch = minPrefetch
	b.maxPrefetch = maxPrefetch
	return nil
}

// SetDiscard selects the discard policy.
func (b *Buffer) SetDiscard(policy DiscardPolicy) error {
	if policy < DiscardNone || policy > DiscardProgressive {
		return fmt.Errorf("jitterbuf: SetDiscard(%d): %w", policy, ErrInvalidDiscardPolicy)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.discardPolicy = policy
	return nil
}

// IsFull reports whether the frame window is at capacity.
func (b *Buffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames.size == b.maxCount
}

// Put inserts a frame at the given sequence number. discarded reports
// whether the frame was rejected (too late, duplicate, oversized). When the
// window is full, the oldest frames are evicted to make room and this frame
// is still accepted. discarded is not an error, only a verdict on this one
// frame, per the buffer's silent-by-contract failure model.
func (b *Buffer) Put(seq int32, payload []byte, bitInfo uint32, ts uint32) (discarded bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	curSize := b.frames.effSize()

	length := len(payload)

	result := b.frames.putAt(seq, payload, length, bitInfo, ts, TypeNormal)
	for result == putOverflow {
		distance := int(seq-b.frames.origin) - b.maxCount + 1
		if distance <= 0 {
			distance = 1
		}
		b.frames.removeHead(distance)
		result = b.frames.putAt(seq, payload, length, bitInfo, ts, TypeNormal)
	}

	newSize := b.frames.effSize()
	discarded = result != putOK
	if discarded {
		b.discardedTotal++
	}

	if result == putOK {
		if b.prefetching && newSize >= b.prefetch {
			b.prefetching = false
		}
		if newSize > curSize {
			b.level += newSize - curSize
		} else {
			b.level++
		}
		b.update(opPut)
	}

	return discarded
}

// Get returns the next frame in sequence order. ft reports which of the
// four observable outcomes occurred: a real frame, a MISSING gap, or one of
// the two "nothing to return yet" states (prefetching, or genuinely empty).
func (b *Buffer) Get(out []byte) (ft FrameType, n int, bitInfo, ts uint32, seq int32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.prefetching {
		ft = TypeZeroPrefetch
	} else {
		result, gotType, payload, length, gotBitInfo, gotTs, gotSeq := b.frames.get()
		if result == getFrame {
			ft = gotType
			if gotType == TypeNormal {
				n = copy(out, payload[:length])
				bitInfo = gotBitInfo
			}
			ts = gotTs
			seq = gotSeq
		} else {
			if b.prefetch > 0 {
				b.prefetching = true
			}
			ft = TypeZeroEmpty
		}
	}

	b.level++
	b.update(opGet)
	return ft, n, bitInfo, ts, seq
}

// Peek returns a view of the frame that would be the offset-th Get, without
// mutating state. Returns ft=TypeZeroEmpty and ok=false if offset is beyond
// the current effective window.
func (b *Buffer) Peek(offset int, out []byte) (ft FrameType, n int, bitInfo, ts uint32, seq int32, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	present, gotType, payload, length, gotBitInfo, gotTs, gotSeq := b.frames.peek(offset)
	if !present {
		return TypeZeroEmpty, 0, 0, 0, 0, false
	}
	if gotType == TypeNormal {
		n = copy(out, payload[:length])
		bitInfo = gotBitInfo
	}
	return gotType, n, bitInfo, gotTs, gotSeq, true
}

// Remove drops up to n head frames, topping up for any DISCARDED slots
// among them so that n effective frames are actually released. It returns
// the number of frames effectively removed.
func (b *Buffer) Remove(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	lastDiscardNum := b.frames.discardedNum
	count := b.frames.removeHead(n)

	for b.frames.discardedNum < lastDiscardNum {
		remaining := lastDiscardNum - b.frames.discardedNum
		count -= remaining
		lastDiscardNum = b.frames.discardedNum
		count += b.frames.removeHead(remaining)
	}
	return count
}

// Stats returns a snapshot of buffer state, safe to retain after the call.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	statusStr := "initializing"
	if b.status == statusProcessing {
		statusStr = "processing"
	}

	return Stats{
		Level:          b.level,
		EffLevel:       b.effLevel,
		MaxHistLevel:   b.maxHistLevel,
		StableHist:     b.stableHist,
		Prefetch:       b.prefetch,
		Prefetching:    b.prefetching,
		Status:         statusStr,
		Size:           b.frames.size,
		DiscardedNum:   b.frames.discardedNum,
		EffSize:        b.frames.effSize(),
		DiscardedTotal: b.discardedTotal,
	}
}
