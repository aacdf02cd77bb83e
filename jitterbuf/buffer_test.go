package jitterbuf

import "testing"

// primeProcessing drives b through exactly ten alternating Put/Get calls,
// ending on a Get, which is the op-switch sequence the level estimator
// requires before it promotes from initializing to processing.
func primeProcessing(t *testing.T, b *Buffer, startSeq int32) int32 {
	t.Helper()
	seq := startSeq
	out := make([]byte, 64)
	for i := 0; i < 5; i++ {
		b.Put(seq, payloadOf(byte(seq), 4), 0, 0)
		seq++
		b.Get(out)
	}
	if b.Stats().Status != "processing" {
		t.Fatalf("after priming sequence: status=%s, want processing", b.Stats().Status)
	}
	return seq
}

func TestWindowContiguityInvariant(t *testing.T) {
	b, err := New(64, 20, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.SetFixed(0)

	check := func(label string) {
		s := b.Stats()
		if s.Size < 0 || s.Size > 16 {
			t.Fatalf("%s: size=%d out of [0,16]", label, s.Size)
		}
		if s.DiscardedNum < 0 || s.DiscardedNum > s.Size {
			t.Fatalf("%s: discardedNum=%d out of [0,size=%d]", label, s.DiscardedNum, s.Size)
		}
	}

	out := make([]byte, 64)
	seq := int32(1)
	for i := 0; i < 40; i++ {
		b.Put(seq, payloadOf(byte(i), 4), 0, 0)
		seq++
		check("after put")
		if i%3 == 0 {
			b.Get(out)
			check("after get")
		}
	}
}

func TestDuplicatePutIsRejected(t *testing.T) {
	b, err := New(64, 20, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.SetFixed(0)

	if discarded := b.Put(10, []byte("AAAA"), 0, 0); discarded {
		t.Fatal("first put of seq=10 should not be discarded")
	}
	if discarded := b.Put(10, []byte("BBBB"), 0, 0); !discarded {
		t.Fatal("duplicate put of seq=10 should be discarded")
	}

	out := make([]byte, 64)
	ft, n, _, _, seq := b.Get(out)
	if ft != TypeNormal || seq != 10 || string(out[:n]) != "AAAA" {
		t.Fatalf("get after duplicate: type=%v seq=%d payload=%q, want normal/10/AAAA", ft, seq, out[:n])
	}
}

func TestOrderingAcrossTwoPuts(t *testing.T) {
	b, err := New(64, 20, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.SetFixed(0)

	// The first accepted sequence number fixes the window's lower bound;
	// a later put can only grow the window forward from there, so the
	// earlier sequence number must be sent first to land in order.
	b.Put(3, []byte("three"), 0, 0)
	b.Put(5, []byte("five"), 0, 0)

	out := make([]byte, 64)
	ft, n, _, _, seq := b.Get(out)
	if ft != TypeNormal || seq != 3 || string(out[:n]) != "three" {
		t.Fatalf("first get: type=%v seq=%d payload=%q, want normal/3/three", ft, seq, out[:n])
	}

	// seq=4 was never sent: the gap is reported as MISSING.
	ft, _, _, _, _ = b.Get(out)
	if ft != TypeMissing {
		t.Fatalf("second get: type=%v, want missing (gap at seq=4)", ft)
	}

	ft, n, _, _, seq = b.Get(out)
	if ft != TypeNormal || seq != 5 || string(out[:n]) != "five" {
		t.Fatalf("third get: type=%v seq=%d payload=%q, want normal/5/five", ft, seq, out[:n])
	}
}

func TestPrefetchGating(t *testing.T) {
	b, err := New(64, 20, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.SetAdaptive(5, 1, 10); err != nil {
		t.Fatalf("SetAdaptive: %v", err)
	}
	b.Reset() // pick up prefetch=5 as the post-construction prefetching seed

	out := make([]byte, 64)

	b.Put(1, []byte("a"), 0, 0)
	// eff_size=1 < prefetch=5: still filling.
	if ft, _, _, _, _ := b.Get(out); ft != TypeZeroPrefetch {
		t.Fatalf("get before prefetch satisfied: got %v, want zero-prefetch", ft)
	}

	for _, seq := range []int32{2, 3, 4, 5} {
		b.Put(seq, []byte{byte(seq)}, 0, 0)
	}
	// eff_size=5 >= prefetch=5 as of the last put: prefetching cleared.
	// Nothing has been consumed yet (the earlier Get was gated), so the
	// first real frame is seq=1.
	ft, _, _, _, seq := b.Get(out)
	if ft != TypeNormal || seq != 1 {
		t.Fatalf("first real get: type=%v seq=%d, want normal/1", ft, seq)
	}
	for _, want := range []int32{2, 3, 4, 5} {
		ft, _, _, _, seq := b.Get(out)
		if ft != TypeNormal || seq != want {
			t.Fatalf("get seq=%d: type=%v gotSeq=%d", want, ft, seq)
		}
	}
}

func TestReentryIntoPrefetching(t *testing.T) {
	b, err := New(64, 20, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.SetFixed(2)

	out := make([]byte, 64)
	b.Put(1, []byte("a"), 0, 0)
	b.Put(2, []byte("b"), 0, 0)
	// First put (eff_size=1<2) keeps prefetching; second put (eff_size=2>=2)
	// clears it before any Get runs.
	for _, want := range []int32{1, 2} {
		ft, _, _, _, seq := b.Get(out)
		if ft != TypeNormal || seq != want {
			t.Fatalf("drain get seq=%d: type=%v gotSeq=%d", want, ft, seq)
		}
	}

	// Buffer is now empty and prefetch=2>0: draining re-enters prefetching.
	ft, _, _, _, _ := b.Get(out)
	if ft != TypeZeroEmpty {
		t.Fatalf("get on empty: type=%v, want zero-empty", ft)
	}
	ft, _, _, _, _ = b.Get(out)
	if ft != TypeZeroPrefetch && ft != TypeZeroEmpty {
		t.Fatalf("get while re-prefetching: type=%v, want zero-prefetch or zero-empty", ft)
	}
}

func TestResetRestoresOriginSemantics(t *testing.T) {
	b, err := New(64, 20, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.SetFixed(0)

	b.Put(100, []byte("x"), 0, 0)
	b.Reset()
	b.Put(7, []byte("y"), 0, 0)

	out := make([]byte, 64)
	ft, n, _, _, seq := b.Get(out)
	if ft != TypeNormal || seq != 7 || string(out[:n]) != "y" {
		t.Fatalf("get after reset+put: type=%v seq=%d payload=%q, want normal/7/y", ft, seq, out[:n])
	}
}

func TestFarJumpResetsWindow(t *testing.T) {
	b, err := New(64, 20, 40)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.SetFixed(0)

	for seq := int32(1); seq <= 40; seq++ {
		b.Put(seq, []byte{byte(seq)}, 0, 0)
	}
	if discarded := b.Put(5000, []byte{1}, 0, 0); discarded {
		t.Fatal("far-jump put should succeed (list reset), not be discarded")
	}

	out := make([]byte, 64)
	ft, _, _, _, seq := b.Get(out)
	if ft != TypeNormal || seq != 5000 {
		t.Fatalf("get after far jump: type=%v seq=%d, want normal/5000", ft, seq)
	}
	ft, _, _, _, _ = b.Get(out)
	if ft != TypeZeroEmpty {
		t.Fatalf("get after draining far-jump frame: type=%v, want zero-empty", ft)
	}
}

func TestOverflowEvictionKeepsOrdering(t *testing.T) {
	b, err := New(16, 20, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.SetFixed(0)

	for seq := int32(1); seq <= 4; seq++ {
		b.Put(seq, []byte{byte(seq)}, 0, 0)
	}
	if discarded := b.Put(5, []byte{5}, 0, 0); discarded {
		t.Fatal("put triggering overflow-eviction should still succeed")
	}

	out := make([]byte, 16)
	for _, want := range []int32{2, 3, 4, 5} {
		ft, n, _, _, seq := b.Get(out)
		if ft != TypeNormal || seq != want || out[0] != byte(want) || n != 1 {
			t.Fatalf("get seq=%d: type=%v gotSeq=%d payload=%v", want, ft, seq, out[:n])
		}
	}
}

func TestStaticDiscardShrinksAtMostOncePerGap(t *testing.T) {
	b, err := New(16, 20, 4000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.SetFixed(0) // disables discard; re-enable Static explicitly below
	seq := primeProcessing(t, b, 1)
	if err := b.SetDiscard(DiscardStatic); err != nil {
		t.Fatalf("SetDiscard: %v", err)
	}

	lastShrinkAt := -1
	minGap := b.minShrinkGap
	for i := 0; i < 2000; i++ {
		before := b.Stats().EffSize
		b.Put(seq, []byte{byte(i)}, 0, 0)
		seq++
		after := b.Stats().EffSize
		if after == before { // put added one, static shrink removed one: net zero
			if lastShrinkAt >= 0 && i-lastShrinkAt < minGap {
				t.Fatalf("shrink at iteration %d, previous at %d: gap %d < min_shrink_gap %d", i, lastShrinkAt, i-lastShrinkAt, minGap)
			}
			lastShrinkAt = i
		}
	}
}

func TestProgressiveNoShrinkWhenBalanced(t *testing.T) {
	b, err := New(16, 20, 4000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.SetFixed(0)
	seq := primeProcessing(t, b, 1)
	if err := b.SetDiscard(DiscardProgressive); err != nil {
		t.Fatalf("SetDiscard: %v", err)
	}

	out := make([]byte, 16)
	for i := 0; i < 200; i++ {
		b.Put(seq, []byte{byte(i)}, 0, 0)
		seq++
		b.Get(out) // keep eff_size small relative to the observed burst
		if dn := b.Stats().DiscardedNum; dn != 0 {
			t.Fatalf("iteration %d: discardedNum=%d, want 0 when balanced", i, dn)
		}
	}
}

func TestProgressiveDiscardUnderSustainedOverflow(t *testing.T) {
	b, err := New(16, 20, 4000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.SetFixed(0)
	seq := primeProcessing(t, b, 1)
	if err := b.SetDiscard(DiscardProgressive); err != nil {
		t.Fatalf("SetDiscard: %v", err)
	}

	// Progressive discard is driven by how far burst-level estimation has
	// converged, which depends on exact PUT/GET history; this run only
	// asserts the spacing invariant holds whenever a discard does occur,
	// rather than requiring one within a fixed iteration budget.
	lastDiscardedNum := 0
	lastDiscardAt := -1
	minGap := b.minShrinkGap
	for i := 0; i < 3000; i++ {
		b.Put(seq, []byte{byte(i)}, 0, 0)
		seq++
		dn := b.Stats().DiscardedNum
		if dn > lastDiscardedNum {
			if lastDiscardAt >= 0 && i-lastDiscardAt < minGap {
				t.Fatalf("discard at iteration %d, previous at %d: gap %d < min_shrink_gap %d", i, lastDiscardAt, i-lastDiscardAt, minGap)
			}
			lastDiscardAt = i
		}
		lastDiscardedNum = dn
	}
}

func TestSetFixedRejectsOutOfRangePrefetch(t *testing.T) {
	b, err := New(16, 20, 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.SetFixed(11); err == nil {
		t.Fatal("SetFixed(11) with max_count=10 should be rejected")
	}
}

func TestSetAdaptiveRejectsInvalidBounds(t *testing.T) {
	b, err := New(16, 20, 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.SetAdaptive(5, 6, 4); err == nil {
		t.Fatal("SetAdaptive(5,6,4) with min>max should be rejected")
	}
	if err := b.SetAdaptive(20, 1, 10); err == nil {
		t.Fatal("SetAdaptive(20,1,10) with prefetch>max should be rejected")
	}
}

func TestIsFull(t *testing.T) {
	b, err := New(16, 20, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.SetFixed(0)
	if b.IsFull() {
		t.Fatal("empty buffer reports full")
	}
	b.Put(1, []byte{1}, 0, 0)
	b.Put(2, []byte{2}, 0, 0)
	if !b.IsFull() {
		t.Fatal("buffer at max_count should report full")
	}
}

func TestRemoveTopsUpPastDiscarded(t *testing.T) {
	b, err := New(16, 20, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.SetFixed(0)
	for seq := int32(1); seq <= 4; seq++ {
		b.Put(seq, []byte{byte(seq)}, 0, 0)
	}
	b.frames.discard(2)

	// Removing 2 effective frames must also consume the discarded slot
	// sitting between them: seq=1, seq=2(discarded), seq=3 all go, leaving
	// seq=4 as the new head.
	removed := b.Remove(2)
	if removed != 2 {
		t.Fatalf("Remove(2) with one discarded slot in range = %d, want 2 effective removals", removed)
	}

	out := make([]byte, 16)
	ft, _, _, _, seq := b.Get(out)
	if ft != TypeNormal || seq != 4 {
		t.Fatalf("get after Remove: type=%v seq=%d, want normal/4", ft, seq)
	}
}
