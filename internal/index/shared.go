package index

import (
	"sync/atomic"

	"github.com/ironsheep/card-scanner/internal/phash"
)

// Shared holds the tree that queries currently run against. Replace swaps in
// a new tree without disturbing queries already running on the old one.
type Shared struct {
	tree atomic.Pointer[Tree]
}

// NewShared returns a holder for t. t may be nil.
func NewShared(t *Tree) *Shared {
	s := &Shared{}
	if t != nil {
		s.tree.Store(t)
	}
	return s
}

// Load returns the current tree, or an empty one if none has been stored.
func (s *Shared) Load() *Tree {
	if t := s.tree.Load(); t != nil {
		return t
	}
	return &Tree{}
}

// Replace installs t and returns the previous tree.
func (s *Shared) Replace(t *Tree) *Tree {
	return s.tree.Swap(t)
}

// Nearest queries the current tree.
func (s *Shared) Nearest(q phash.Fingerprint) (Match, error) {
	return s.Load().Nearest(q)
}
