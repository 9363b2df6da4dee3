package model

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// registry allocates stable, strictly increasing identifiers for one family.
// Retired identifiers are tombstoned permanently and never reissued.
type registry struct {
	nextID uint32
	live   *bitset.BitSet
	dead   *bitset.BitSet
}

func newRegistry(capacity int) registry {
	return registry{
		live: bitset.New(uint(capacity)),
		dead: bitset.New(uint(capacity)),
	}
}

// next issues a fresh identifier, strictly greater than any issued before.
func (r *registry) next() uint32 {
	id := r.nextID
	r.nextID++
	r.live.Set(uint(id))
	return id
}

// retire tombstones id. The identifier must be live.
func (r *registry) retire(id uint32) error {
	if !r.isLive(id) {
		return fmt.Errorf("retire id %d: %w", id, ErrInvalidReference)
	}
	r.live.Clear(uint(id))
	r.dead.Set(uint(id))
	return nil
}

func (r *registry) isLive(id uint32) bool {
	return r.live.Test(uint(id))
}

func (r *registry) isIssued(id uint32) bool {
	return id < r.nextID
}

// count returns the number of live identifiers.
func (r *registry) count() int {
	return int(r.live.Count())
}

// bound returns one past the highest identifier issued so far.
func (r *registry) bound() uint32 {
	return r.nextID
}

// tombstones returns the retired identifiers in ascending order.
func (r *registry) tombstones() []uint32 {
	res := make([]uint32, 0, r.dead.Count())
	for i, ok := r.dead.NextSet(0); ok; i, ok = r.dead.NextSet(i + 1) {
		res = append(res, uint32(i))
	}
	return res
}

// issueAt issues id explicitly, tombstoning any identifier skipped over.
// Used when applying a ModelUpdate, where identifiers are assigned by the
// originating model.
func (r *registry) issueAt(id uint32) error {
	if id < r.nextID {
		return fmt.Errorf("issue id %d below bound %d: %w", id, r.nextID, ErrInvalidReference)
	}
	for j := r.nextID; j < id; j++ {
		r.dead.Set(uint(j))
	}
	r.live.Set(uint(id))
	r.nextID = id + 1
	return nil
}

// advance tombstones every unissued identifier below bound and moves the
// allocation cursor there.
func (r *registry) advance(bound uint32) {
	for j := r.nextID; j < bound; j++ {
		r.dead.Set(uint(j))
	}
	if bound > r.nextID {
		r.nextID = bound
	}
}

func (r *registry) clone() registry {
	return registry{
		nextID: r.nextID,
		live:   r.live.Clone(),
		dead:   r.dead.Clone(),
	}
}

// setsMatch compares set membership only; bitset.Equal also compares lengths,
// which depend on allocation history rather than content.
func setsMatch(a, b *bitset.BitSet) bool {
	if a.Count() != b.Count() {
		return false
	}
	for i, ok := a.NextSet(0); ok; i, ok = a.NextSet(i + 1) {
		if !b.Test(i) {
			return false
		}
	}
	return true
}

func (r *registry) equal(other *registry) bool {
	return r.nextID == other.nextID && setsMatch(r.live, other.live) && setsMatch(r.dead, other.dead)
}
