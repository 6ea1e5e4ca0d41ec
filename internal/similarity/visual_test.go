package similarity

import (
	"math"
	"testing"

	"github.com/retreivo/itemmatch/internal/domain/descriptor"
)

func makeSet(t *testing.T, raw ...[]byte) descriptor.Set {
	t.Helper()
	s, err := descriptor.NewSet(raw)
	if err != nil {
		t.Fatalf("descriptor.NewSet: %v", err)
	}
	return s
}

// desc returns a 32-byte descriptor filled with b.
func desc(b byte) []byte {
	out := make([]byte, 32)
	for i := range out {
		out[i] = b
	}
	return out
}

// withBits returns a 32-byte zero descriptor with the first n bits set.
func withBits(n int) []byte {
	out := make([]byte, 32)
	for i := 0; i < n; i++ {
		out[i/8] |= 1 << uint(i%8)
	}
	return out
}

func TestVisual_EmptySets(t *testing.T) {
	v := NewVisual(100, 30)
	full := makeSet(t, desc(0x0f))

	if got := v.Similarity(descriptor.Set{}, full); got != 0 {
		t.Errorf("empty query: got %f, want 0", got)
	}
	if got := v.Similarity(full, descriptor.Set{}); got != 0 {
		t.Errorf("empty ref: got %f, want 0", got)
	}
	if got := v.Similarity(descriptor.Set{}, descriptor.Set{}); got != 0 {
		t.Errorf("both empty: got %f, want 0", got)
	}
}

func TestVisual_IdenticalSetsScoreOne(t *testing.T) {
	v := NewVisual(100, 30)
	a := makeSet(t, desc(0x00), desc(0xff), withBits(40), withBits(100))

	if got := v.Similarity(a, a); got != 1 {
		t.Fatalf("self similarity = %f, want 1", got)
	}
}

func TestVisual_SelfSimilarityIsMaximal(t *testing.T) {
	v := NewVisual(100, 30)
	a := makeSet(t, withBits(10), withBits(60), withBits(120))
	b := makeSet(t, withBits(30), withBits(200))

	self := v.Similarity(a, a)
	other := v.Similarity(a, b)
	if other > self {
		t.Errorf("similarity to unrelated set %f exceeds self similarity %f", other, self)
	}
}

func TestVisual_DistanceFormula(t *testing.T) {
	v := NewVisual(100, 30)
	// Single pair at Hamming distance 20 -> 1 - 20/100.
	got := v.Similarity(makeSet(t, withBits(0)), makeSet(t, withBits(20)))
	if math.Abs(got-0.8) > 1e-12 {
		t.Errorf("got %f, want 0.8", got)
	}
}

func TestVisual_ClampsAtZero(t *testing.T) {
	v := NewVisual(100, 30)
	// Distance 256 exceeds the normalization constant.
	got := v.Similarity(makeSet(t, desc(0x00)), makeSet(t, desc(0xff)))
	if got != 0 {
		t.Errorf("got %f, want 0", got)
	}
}

func TestVisual_CrossCheckRejectsOneSidedMatches(t *testing.T) {
	// Both query descriptors are nearest to ref[0], but ref[0] is only nearest to query[0].
	query := makeSet(t, withBits(0), withBits(10))
	ref := makeSet(t, withBits(2), withBits(200))

	pairs := crossCheck(query, ref)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 cross-checked pair, got %d", len(pairs))
	}
	if pairs[0].query != 0 || pairs[0].ref != 0 || pairs[0].dist != 2 {
		t.Errorf("unexpected pair %+v", pairs[0])
	}

	got := NewVisual(100, 30).Similarity(query, ref)
	if math.Abs(got-0.98) > 1e-12 {
		t.Errorf("got %f, want 0.98", got)
	}
}

func TestVisual_KeepsClosestMatchesOnly(t *testing.T) {
	// Two exact matches and one at distance 10; with maxMatches=2 only the exact ones count.
	query := makeSet(t, withBits(0), withBits(100), withBits(200))
	ref := makeSet(t, withBits(0), withBits(100), withBits(210))

	if got := NewVisual(100, 2).Similarity(query, ref); got != 1 {
		t.Errorf("maxMatches=2: got %f, want 1", got)
	}
	want := 1 - (10.0/3)/100
	if got := NewVisual(100, 30).Similarity(query, ref); math.Abs(got-want) > 1e-12 {
		t.Errorf("maxMatches=30: got %f, want %f", got, want)
	}
}

func TestVisual_MismatchedDescriptorLength(t *testing.T) {
	short := makeSet(t, make([]byte, 16))
	long := makeSet(t, make([]byte, 32))
	if got := NewVisual(100, 30).Similarity(short, long); got != 0 {
		t.Errorf("got %f, want 0", got)
	}
}

func TestVisual_Deterministic(t *testing.T) {
	v := NewVisual(100, 30)
	a := makeSet(t, withBits(3), withBits(77), withBits(140), withBits(90))
	b := makeSet(t, withBits(5), withBits(70), withBits(150))

	first := v.Similarity(a, b)
	for i := 0; i < 10; i++ {
		if got := v.Similarity(a, b); got != first {
			t.Fatalf("run %d: got %f, want %f", i, got, first)
		}
	}
}
