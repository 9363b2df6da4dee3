package model

// arena stores one entity family as a slot slice addressed by identifier.
// Deletion tombstones the identifier and zeroes the slot; the slot index is
// never reused, trading some memory for stable identifiers.
type arena[T any] struct {
	reg   registry
	slots []T
}

func newArena[T any](capacity int) arena[T] {
	return arena[T]{
		reg:   newRegistry(capacity),
		slots: make([]T, 0, capacity),
	}
}

func (a *arena[T]) add(v T) uint32 {
	id := a.reg.next()
	a.slots = append(a.slots, v)
	return id
}

// addAt stores v under an explicitly assigned identifier, at or beyond the
// current allocation bound. Skipped identifiers are tombstoned.
func (a *arena[T]) addAt(id uint32, v T) error {
	if err := a.reg.issueAt(id); err != nil {
		return err
	}
	for uint32(len(a.slots)) <= id {
		var zero T
		a.slots = append(a.slots, zero)
	}
	a.slots[id] = v
	return nil
}

func (a *arena[T]) delete(id uint32) error {
	if err := a.reg.retire(id); err != nil {
		return err
	}
	var zero T
	a.slots[id] = zero
	return nil
}

func (a *arena[T]) get(id uint32) (*T, bool) {
	if !a.reg.isLive(id) {
		return nil, false
	}
	return &a.slots[id], true
}

// forEach visits live slots in ascending identifier order.
func (a *arena[T]) forEach(fn func(id uint32, v *T) bool) {
	for i, ok := a.reg.live.NextSet(0); ok; i, ok = a.reg.live.NextSet(i + 1) {
		if !fn(uint32(i), &a.slots[i]) {
			return
		}
	}
}

// cloneWith deep-copies the arena, using cp to copy each live slot.
func (a *arena[T]) cloneWith(cp func(T) T) arena[T] {
	res := arena[T]{
		reg:   a.reg.clone(),
		slots: make([]T, len(a.slots)),
	}
	a.forEach(func(id uint32, v *T) bool {
		res.slots[id] = cp(*v)
		return true
	})
	return res
}
