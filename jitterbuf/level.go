package jitterbuf

// levelEstimator tracks the PUT/GET burst level and maintains the smoothed
// effective level used to drive the prefetch controller. It is not a
// standalone object in the public API; it is a set of fields embedded
// directly in Buffer and a pair of methods that operate on them, since the
// reference implementation keeps all of this state flat inside jbuf_t.
type levelEstimator struct {
	level        int
	effLevel     int
	maxHistLevel int
	stableHist   int
}

// recomputeJitter runs the level estimator's jitter recalculation, called at
// each PUT-to-GET operation switch. pushPrefetch is called whenever
// eff_level moves, matching the "push the change into the
// prefetch" step of the reference design.
func (b *Buffer) recomputeJitter() {
	if b.level > b.maxHistLevel {
		b.maxHistLevel = b.level
	}

	switch {
	case b.level < b.effLevel:
		b.stableHist++
		if b.stableHist > stableHistThreshold {
			diff := (b.effLevel - b.maxHistLevel) / 3
			if diff < 1 {
				diff = 1
			}
			b.effLevel -= diff
			b.pushPrefetch()
			b.maxHistLevel = 0
			b.stableHist = 0
		}
	case b.level > b.effLevel:
		cap5 := b.maxCount * 4 / 5
		if b.maxHistLevel < cap5 {
			b.effLevel = b.maxHistLevel
		} else {
			b.effLevel = cap5
		}
		b.pushPrefetch()
		b.stableHist = 0
	default:
		b.stableHist = 0
	}
}

// update runs the estimator and, once status is processing, the configured
// discard policy. It mirrors jbuf_update: only a direction switch (PUT->GET
// or GET->PUT) triggers estimator work; the discard policy runs on every
// call once status is processing, same-direction runs included.
func (b *Buffer) update(op lastOp) {
	if op != b.lastOp {
		b.lastOp = op

		if b.status == statusInitializing {
			b.initCycleCnt++
			if b.initCycleCnt >= initCycle && op == opGet {
				b.status = statusProcessing
				if b.level > b.maxBurst {
					b.level = b.maxBurst
				}
			} else {
				b.level = 0
				return
			}
		}

		if op == opGet && b.level <= b.maxBurst {
			b.recomputeJitter()
		}
		b.level = 0
	}

	if b.status == statusProcessing && b.discardPolicy != DiscardNone {
		b.runDiscard()
	}
}
