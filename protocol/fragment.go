package protocol

import (
	"encoding/binary"
	"sort"
	"time"

	"golang.org/x/crypto/sha3"
)

// SiteID identifies one capturable site. IDs are assigned externally,
// stable for a run, and range over [1, N].
type SiteID int

// Fragment is one site's secret contribution to the shared cipher.
// Fragments are opaque placeholder integers: they are created once by
// their owning site and only ever copied afterwards.
type Fragment int

// Generator produces per-site fragments. Values combine a hash of the
// seed with a hash of the current wall clock, folded into the band
// [base, base+span). This is a simulation placeholder, not cryptography.
type Generator struct {
	base int
	span int
	now  func() time.Time
}

// NewGenerator creates a fragment generator for the given value band.
func NewGenerator(base, span int) *Generator {
	if span < 1 {
		span = 1
	}
	return &Generator{base: base, span: span, now: time.Now}
}

// Generate returns a fragment for the given seed value. Two calls with
// distinct seeds in the same instant produce distinct mixes; two runs
// differ through the clock term.
func (g *Generator) Generate(seed int) Fragment {
	var buf [8]byte

	binary.BigEndian.PutUint64(buf[:], uint64(int64(seed)))
	seedSum := sha3.Sum256(buf[:])

	binary.BigEndian.PutUint64(buf[:], uint64(g.now().UnixNano()))
	clockSum := sha3.Sum256(buf[:])

	mix := binary.BigEndian.Uint64(seedSum[:8]) ^ binary.BigEndian.Uint64(clockSum[:8])
	return Fragment(g.base + int(mix%uint64(g.span)))
}

// FragmentSet maps site IDs to the fragments a participant currently
// holds. The set grows monotonically: fragments are added, never removed
// or replaced. The zero value is not usable; use NewFragmentSet.
type FragmentSet struct {
	parts map[SiteID]Fragment
}

// NewFragmentSet returns an empty fragment set.
func NewFragmentSet() *FragmentSet {
	return &FragmentSet{parts: make(map[SiteID]Fragment)}
}

// Merge records a fragment for the given site. Merging a site already
// present is a no-op that keeps the stored value, so redundant relays
// never corrupt state. It reports whether the set grew.
func (s *FragmentSet) Merge(id SiteID, f Fragment) bool {
	if _, ok := s.parts[id]; ok {
		return false
	}
	s.parts[id] = f
	return true
}

// MergeAll merges every entry of parts and returns how many were new.
func (s *FragmentSet) MergeAll(parts map[SiteID]Fragment) int {
	added := 0
	for id, f := range parts {
		if s.Merge(id, f) {
			added++
		}
	}
	return added
}

// Len returns the number of distinct site fragments held.
func (s *FragmentSet) Len() int {
	return len(s.parts)
}

// Has reports whether a fragment for the given site is held.
func (s *FragmentSet) Has(id SiteID) bool {
	_, ok := s.parts[id]
	return ok
}

// Get returns the fragment held for the given site, if any.
func (s *FragmentSet) Get(id SiteID) (Fragment, bool) {
	f, ok := s.parts[id]
	return f, ok
}

// Snapshot returns an independent copy of the held fragments.
func (s *FragmentSet) Snapshot() map[SiteID]Fragment {
	out := make(map[SiteID]Fragment, len(s.parts))
	for id, f := range s.parts {
		out[id] = f
	}
	return out
}

// Sites returns the held site IDs in ascending order.
func (s *FragmentSet) Sites() []SiteID {
	ids := make([]SiteID, 0, len(s.parts))
	for id := range s.parts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
