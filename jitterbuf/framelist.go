package jitterbuf

// slotState is the occupancy state of one ring slot.
type slotState int

const (
	slotMissing slotState = iota
	slotNormal
	slotDiscarded
)

// slot holds one frame's payload and metadata.
type slot struct {
	state   slotState
	payload []byte
	length  int
	bitInfo uint32
	ts      uint32
}

func (s *slot) clear() {
	s.state = slotMissing
	s.length = 0
	s.bitInfo = 0
	s.ts = 0
}

// putResult reports the outcome of putAt.
type putResult int

const (
	putOK putResult = iota
	putOversized
	putTooLate
	putDuplicate
	putOverflow // caller must remove_head and retry
)

// frameList is the circular sequence-indexed frame store described by the
// FrameList component: a fixed-capacity ring of slots addressed by sequence
// number rather than by insertion order.
type frameList struct {
	slots     []slot
	maxCount  int
	frameSize int

	head         int
	size         int
	discardedNum int
	origin       int32
	originSet    bool
}

func newFrameList(frameSize, maxCount int) *frameList {
	return &frameList{
		slots:     make([]slot, maxCount),
		maxCount:  maxCount,
		frameSize: frameSize,
	}
}

func (f *frameList) effSize() int {
	return f.size - f.discardedNum
}

func (f *frameList) reset() {
	f.head = 0
	f.origin = 0
	f.originSet = false
	f.size = 0
	f.discardedNum = 0
	for i := range f.slots {
		f.slots[i].clear()
	}
}

// putAt places a frame at its sequence-addressed slot. See the FrameList
// component design for the full rejection/acceptance matrix.
func (f *frameList) putAt(seq int32, payload []byte, length int, bitInfo uint32, ts uint32, frameType FrameType) putResult {
	if length > f.frameSize {
		return putOversized
	}

	if f.originSet && seq < f.origin {
		if f.origin-seq < maxMisorder {
			return putTooLate
		}
		// Sequence restart: rebase origin so seq lands at the current size.
		f.origin = seq - int32(f.size)
	}

	// An empty list (whether never-used or freshly drained) re-anchors on
	// the arriving sequence; there is no contiguity to preserve. A drained
	// list still rejects a sequence less than maxMisorder below its origin
	// as too late (checked above).
	if f.size == 0 {
		f.origin = seq
		f.originSet = true
	}

	distance := int(seq - f.origin)
	if distance >= f.maxCount {
		if distance > maxDropout {
			f.reset()
			f.origin = seq
			f.originSet = true
			distance = 0
		} else {
			return putOverflow
		}
	}

	idx := (f.head + distance) % f.maxCount
	sl := &f.slots[idx]
	if sl.state != slotMissing {
		return putDuplicate
	}

	sl.state = slotNormal
	sl.length = length
	sl.bitInfo = bitInfo
	sl.ts = ts
	if frameType == TypeNormal {
		if cap(sl.payload) < length {
			sl.payload = make([]byte, length)
		} else {
			sl.payload = sl.payload[:length]
		}
		copy(sl.payload, payload[:length])
	}

	if int(f.origin)+f.size <= int(seq) {
		f.size = distance + 1
	}

	return putOK
}

// getResult is the outcome of get: whether a frame (or gap) was produced.
type getResult int

const (
	getFrame getResult = iota
	getEmpty
)

// get returns the head frame, advancing head/origin/size. It mirrors the
// FrameList.get semantics exactly, including the MISSING-after-discard-skip
// surprise documented in the design notes: a GET that had to skip over
// DISCARDED slots to find real data returns MISSING on that call, not the
// frame it skipped to.
func (f *frameList) get() (result getResult, ft FrameType, payload []byte, length int, bitInfo, ts uint32, seq int32) {
	if f.size == 0 {
		return getEmpty, TypeZeroEmpty, nil, 0, 0, 0, 0
	}

	skipped := false
	for f.slots[f.head].state == slotDiscarded {
		f.removeHead(1)
		skipped = true
		if f.size == 0 {
			return getEmpty, TypeZeroEmpty, nil, 0, 0, 0, 0
		}
	}

	sl := &f.slots[f.head]
	if skipped {
		// Previously-discarded slots were skipped to get here: force MISSING
		// regardless of what this slot actually holds, so PLC kicks in.
		ft = TypeMissing
	} else if sl.state == slotNormal {
		ft = TypeNormal
		payload = sl.payload
		length = sl.length
		bitInfo = sl.bitInfo
	} else {
		// A genuine gap (never filled): report it as-is.
		ft = TypeMissing
	}
	ts = sl.ts
	seq = f.origin

	f.removeHead(1)
	return getFrame, ft, payload, length, bitInfo, ts, seq
}

// peek returns a view of the frame that would be the offset-th GET, skipping
// DISCARDED slots, without mutating state.
func (f *frameList) peek(offset int) (ok bool, ft FrameType, payload []byte, length int, bitInfo, ts uint32, seq int32) {
	if offset >= f.effSize() {
		return false, TypeZeroEmpty, nil, 0, 0, 0, 0
	}
	idx := f.head
	seen := 0
	for i := 0; i < f.size; i++ {
		sl := &f.slots[idx]
		if sl.state != slotDiscarded {
			if seen == offset {
				cur := f.origin + int32(i)
				if sl.state == slotMissing {
					return true, TypeMissing, nil, 0, 0, 0, cur
				}
				return true, TypeNormal, sl.payload, sl.length, sl.bitInfo, sl.ts, cur
			}
			seen++
		}
		idx = (idx + 1) % f.maxCount
	}
	return false, TypeZeroEmpty, nil, 0, 0, 0, 0
}

// removeHead drops up to count oldest slots and returns the number removed.
func (f *frameList) removeHead(count int) int {
	removed := 0
	for removed < count && f.size > 0 {
		sl := &f.slots[f.head]
		if sl.state == slotDiscarded {
			f.discardedNum--
		}
		sl.clear()
		f.head = (f.head + 1) % f.maxCount
		f.origin++
		f.size--
		removed++
	}
	return removed
}

// discard marks the slot at seq as DISCARDED. Sequences outside the current
// window are ignored.
func (f *frameList) discard(seq int32) bool {
	if !f.originSet || seq < f.origin {
		return false
	}
	distance := int(seq - f.origin)
	if distance >= f.size {
		return false
	}
	idx := (f.head + distance) % f.maxCount
	sl := &f.slots[idx]
	sl.state = slotDiscarded
	f.discardedNum++
	return true
}
