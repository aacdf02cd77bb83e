package jitterbuf

// pushPrefetch retunes the current prefetch target from the smoothed
// effective level, clamped to [min_prefetch, max_prefetch]. It only fires
// in adaptive mode (init_prefetch != 0); a fixed-prefetch buffer never
// moves its target on its own.
func (b *Buffer) pushPrefetch() {
	if b.initPrefetch == 0 {
		return
	}
	p := b.effLevel
	if p < b.minPrefetch {
		p = b.minPrefetch
	}
	if p > b.maxPrefetch {
		p = b.maxPrefetch
	}
	b.prefetch = p
}
