// Package index provides nearest-neighbour search over card fingerprints with
// a vantage-point tree under Hamming distance.
//
// Trees are immutable once built and safe for concurrent queries. Updating
// the reference set means building a new tree and swapping it into a Shared
// holder.
package index

import (
	"errors"
	"sort"

	"github.com/emirpasic/gods/trees/binaryheap"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/card-scanner/internal/phash"
)

// ErrEmptyIndex is returned when querying a tree built from no entries.
var ErrEmptyIndex = errors.New("reference index is empty")

// DefaultBucketSize is the number of entries held directly by a leaf.
const DefaultBucketSize = 1

// Entry is one reference fingerprint. Several entries may share a card id,
// e.g. the faces of a double-faced card.
type Entry struct {
	CardID      string            `json:"id"`
	Fingerprint phash.Fingerprint `json:"phash"`
}

// Match is the result of a query.
type Match struct {
	CardID   string `json:"card_id"`
	Distance int    `json:"distance"`

	// Ambiguous is set when more than one entry lies at the minimum
	// distance. CardID is then the earliest of them in build order.
	Ambiguous bool `json:"ambiguous"`
}

type item struct {
	Entry
	seq int
}

type node struct {
	vantage item
	radius  int
	inside  *node // distance to vantage <= radius
	outside *node // distance to vantage > radius

	bucket []item // leaf entries; vantage is unused when set
}

// Tree is a read-only vantage-point tree.
type Tree struct {
	root  *node
	size  int
	depth int
	nodes int
}

// Build constructs a tree over entries. The vantage point of each subtree is
// its first remaining entry in input order, so identical input always gives
// an identical tree. bucketSize below 1 is treated as 1.
func Build(entries []Entry, bucketSize int) *Tree {
	if bucketSize < 1 {
		bucketSize = 1
	}
	items := make([]item, len(entries))
	for i, e := range entries {
		items[i] = item{Entry: e, seq: i}
	}
	t := &Tree{size: len(entries)}
	t.root = t.build(items, bucketSize, 1)
	return t
}

func (t *Tree) build(items []item, bucketSize, depth int) *node {
	if len(items) == 0 {
		return nil
	}
	t.nodes++
	if depth > t.depth {
		t.depth = depth
	}
	if len(items) <= bucketSize {
		return &node{bucket: items}
	}

	vp, rest := items[0], items[1:]
	dists := make([]int, len(rest))
	sorted := make([]float64, len(rest))
	for i, it := range rest {
		dists[i] = phash.Distance(vp.Fingerprint, it.Fingerprint)
		sorted[i] = float64(dists[i])
	}
	sort.Float64s(sorted)
	radius := int(stat.Quantile(0.5, stat.Empirical, sorted, nil))

	var inside, outside []item
	for i, it := range rest {
		if dists[i] <= radius {
			inside = append(inside, it)
		} else {
			outside = append(outside, it)
		}
	}
	return &node{
		vantage: vp,
		radius:  radius,
		inside:  t.build(inside, bucketSize, depth+1),
		outside: t.build(outside, bucketSize, depth+1),
	}
}

// Len returns the number of entries in the tree.
func (t *Tree) Len() int { return t.size }

// Stats describes the shape of a tree.
type Stats struct {
	Entries int `json:"entries"`
	Nodes   int `json:"nodes"`
	Depth   int `json:"depth"`
}

// Stats returns the tree's size and shape.
func (t *Tree) Stats() Stats {
	return Stats{Entries: t.size, Nodes: t.nodes, Depth: t.depth}
}

type nearest struct {
	q     phash.Fingerprint
	best  item
	dist  int
	count int
}

func (s *nearest) consider(it item, d int) {
	switch {
	case d < s.dist:
		s.best, s.dist, s.count = it, d, 1
	case d == s.dist:
		s.count++
		if it.seq < s.best.seq {
			s.best = it
		}
	}
}

// Nearest returns the entry closest to q. Ties go to the entry that came
// first in the build input and mark the match ambiguous.
func (t *Tree) Nearest(q phash.Fingerprint) (Match, error) {
	if t == nil || t.size == 0 {
		return Match{}, ErrEmptyIndex
	}
	s := &nearest{q: q, dist: phash.Bits + 1}
	s.search(t.root)
	return Match{CardID: s.best.CardID, Distance: s.dist, Ambiguous: s.count > 1}, nil
}

// search visits n, pruning a child only when its lower bound on distance is
// strictly worse than the best so far so that every tie is counted.
func (s *nearest) search(n *node) {
	if n == nil {
		return
	}
	if n.bucket != nil {
		for _, it := range n.bucket {
			s.consider(it, phash.Distance(s.q, it.Fingerprint))
		}
		return
	}

	d := phash.Distance(s.q, n.vantage.Fingerprint)
	s.consider(n.vantage, d)

	// Lower bounds from the triangle inequality.
	insideBound := d - n.radius
	outsideBound := n.radius + 1 - d

	if d <= n.radius {
		s.search(n.inside)
		if outsideBound <= s.dist {
			s.search(n.outside)
		}
		return
	}
	s.search(n.outside)
	if insideBound <= s.dist {
		s.search(n.inside)
	}
}

// KNearest returns up to k entries closest to q in ascending distance, ties
// in build order.
func (t *Tree) KNearest(q phash.Fingerprint, k int) ([]Match, error) {
	if t == nil || t.size == 0 {
		return nil, ErrEmptyIndex
	}
	if k < 1 {
		return nil, nil
	}

	// Max-heap on (distance, seq): the root is the current worst kept.
	worse := func(a, b interface{}) int {
		x, y := a.(scored), b.(scored)
		switch {
		case x.dist != y.dist:
			return y.dist - x.dist
		default:
			return y.seq - x.seq
		}
	}
	s := &kNearest{q: q, k: k, heap: binaryheap.NewWith(worse)}
	s.search(t.root)

	out := make([]Match, s.heap.Size())
	for i := len(out) - 1; i >= 0; i-- {
		v, _ := s.heap.Pop()
		sc := v.(scored)
		out[i] = Match{CardID: sc.CardID, Distance: sc.dist}
	}
	return out, nil
}

type scored struct {
	item
	dist int
}

type kNearest struct {
	q    phash.Fingerprint
	k    int
	heap *binaryheap.Heap
}

// bound is the distance a candidate must not exceed to be kept.
func (s *kNearest) bound() int {
	if s.heap.Size() < s.k {
		return phash.Bits
	}
	v, _ := s.heap.Peek()
	return v.(scored).dist
}

func (s *kNearest) consider(it item, d int) {
	if s.heap.Size() < s.k {
		s.heap.Push(scored{item: it, dist: d})
		return
	}
	v, _ := s.heap.Peek()
	w := v.(scored)
	if d < w.dist || (d == w.dist && it.seq < w.seq) {
		s.heap.Pop()
		s.heap.Push(scored{item: it, dist: d})
	}
}

func (s *kNearest) search(n *node) {
	if n == nil {
		return
	}
	if n.bucket != nil {
		for _, it := range n.bucket {
			s.consider(it, phash.Distance(s.q, it.Fingerprint))
		}
		return
	}

	d := phash.Distance(s.q, n.vantage.Fingerprint)
	s.consider(n.vantage, d)

	first, second := n.inside, n.outside
	secondBound := n.radius + 1 - d
	if d > n.radius {
		first, second = n.outside, n.inside
		secondBound = d - n.radius
	}
	s.search(first)
	if secondBound <= s.bound() {
		s.search(second)
	}
}
