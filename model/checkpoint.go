package model

import (
	"fmt"
	"slices"
	"sort"
)

// Checkpoint marks the state of a model at a point in time. It is an immutable
// value; holding one does not block mutation and costs O(1) to create. A
// checkpoint is only meaningful to the model that issued it.
type Checkpoint struct {
	token uint64
	seq   uint64
}

// Checkpoint records the current state as the new baseline and marks the model
// clean. Diffs against older checkpoints remain computable.
func (m *Model) Checkpoint() Checkpoint {
	m.lastCheckpoint = m.version
	return Checkpoint{token: m.token, seq: m.version}
}

type idSet map[uint32]struct{}

func (s idSet) sorted() []uint32 {
	res := make([]uint32, 0, len(s))
	for id := range s {
		res = append(res, id)
	}
	slices.Sort(res)
	return res
}

type familyDiff struct {
	added   idSet
	deleted idSet
}

// Diff computes the minimal ModelUpdate describing every change between the
// checkpoint and the current state. It walks the journal suffix, so its cost
// is proportional to the number of changes, not to model size. Diff never
// mutates the model; it fails with ErrUnknownCheckpoint on a checkpoint issued
// by another model.
func (m *Model) Diff(cp Checkpoint) (*ModelUpdate, error) {
	if cp.token != m.token || cp.seq > m.version {
		return nil, fmt.Errorf("diff: %w", ErrUnknownCheckpoint)
	}
	start := sort.Search(len(m.log), func(i int) bool { return m.log[i].seq > cp.seq })

	var (
		varAdded   = idSet{}
		varDeleted = idSet{}
		varGone    = idSet{} // added then deleted since the checkpoint
		varBounds  = idSet{}

		consAdded   = idSet{}
		consDeleted = idSet{}
		consBounds  = idSet{}
		coeffs      = map[uint32]idSet{}

		objSense, objOffset bool
		objLinear           = idSet{}
		objQuad             = map[uint64]struct{}{}

		famDiffs = map[string]*familyDiff{}
	)
	famFor := func(name string) *familyDiff {
		fd, ok := famDiffs[name]
		if !ok {
			fd = &familyDiff{added: idSet{}, deleted: idSet{}}
			famDiffs[name] = fd
		}
		return fd
	}

	for _, ch := range m.log[start:] {
		switch ch.kind {
		case changeVariableAdded:
			varAdded[ch.id] = struct{}{}
		case changeVariableDeleted:
			if _, ok := varAdded[ch.id]; ok {
				delete(varAdded, ch.id)
				varGone[ch.id] = struct{}{}
			} else {
				varDeleted[ch.id] = struct{}{}
			}
			delete(varBounds, ch.id)
		case changeVariableBounds:
			if _, ok := varAdded[ch.id]; !ok {
				varBounds[ch.id] = struct{}{}
			}
		case changeConstraintAdded:
			consAdded[ch.id] = struct{}{}
		case changeConstraintDeleted:
			if _, ok := consAdded[ch.id]; ok {
				delete(consAdded, ch.id)
			} else {
				consDeleted[ch.id] = struct{}{}
			}
			delete(consBounds, ch.id)
			delete(coeffs, ch.id)
		case changeConstraintBounds:
			if _, ok := consAdded[ch.id]; !ok {
				consBounds[ch.id] = struct{}{}
			}
		case changeCoefficient:
			if _, ok := consAdded[ch.id]; ok {
				break
			}
			set, ok := coeffs[ch.id]
			if !ok {
				set = idSet{}
				coeffs[ch.id] = set
			}
			set[uint32(ch.key)] = struct{}{}
		case changeObjectiveSense:
			objSense = true
		case changeObjectiveOffset:
			objOffset = true
		case changeObjectiveLinear:
			objLinear[uint32(ch.key)] = struct{}{}
		case changeObjectiveQuad:
			objQuad[ch.key] = struct{}{}
		case changeAtomicAdded:
			famFor(ch.family).added[ch.id] = struct{}{}
		case changeAtomicDeleted:
			fd := famFor(ch.family)
			if _, ok := fd.added[ch.id]; ok {
				delete(fd.added, ch.id)
			} else {
				fd.deleted[ch.id] = struct{}{}
			}
		}
	}

	u := &ModelUpdate{
		NextVariableID:   VariableID(m.vars.reg.bound()),
		NextConstraintID: ConstraintID(m.cons.reg.bound()),
	}

	for _, id := range varAdded.sorted() {
		v := m.vars.slots[id]
		u.AddedVariables = append(u.AddedVariables, VariableRecord{
			ID: VariableID(id), Lower: v.Lower, Upper: v.Upper, Integer: v.Integer, Name: v.Name,
		})
	}
	for _, id := range varDeleted.sorted() {
		u.DeletedVariables = append(u.DeletedVariables, VariableID(id))
	}
	for _, id := range varBounds.sorted() {
		v := m.vars.slots[id]
		u.VariableBounds = append(u.VariableBounds, VariableBoundsRecord{
			ID: VariableID(id), Lower: v.Lower, Upper: v.Upper,
		})
	}

	for _, id := range consAdded.sorted() {
		c := &m.cons.slots[id]
		u.AddedConstraints = append(u.AddedConstraints, ConstraintRecord{
			ID: ConstraintID(id), Lower: c.Lower, Upper: c.Upper, Row: rowToTerms(&c.Row), Name: c.Name,
		})
	}
	for _, id := range consDeleted.sorted() {
		u.DeletedConstraints = append(u.DeletedConstraints, ConstraintID(id))
	}
	for _, id := range consBounds.sorted() {
		c := &m.cons.slots[id]
		u.ConstraintBounds = append(u.ConstraintBounds, ConstraintBoundsRecord{
			ID: ConstraintID(id), Lower: c.Lower, Upper: c.Upper,
		})
	}
	for _, cid := range sortedKeys(coeffs) {
		c := &m.cons.slots[cid]
		for _, vid := range coeffs[cid].sorted() {
			if _, gone := varGone[vid]; gone {
				continue
			}
			val, _ := c.Row.Get(VariableID(vid))
			u.Coefficients = append(u.Coefficients, CoefficientRecord{
				Constraint: ConstraintID(cid), Variable: VariableID(vid), Value: val,
			})
		}
	}

	if objSense || objOffset || len(objLinear) > 0 || len(objQuad) > 0 {
		ou := &ObjectiveUpdate{}
		if objSense {
			ou.HasSense = true
			ou.Sense = m.obj.Sense
		}
		if objOffset {
			ou.HasOffset = true
			ou.Offset = m.obj.Offset
		}
		for _, vid := range objLinear.sorted() {
			if _, gone := varGone[vid]; gone {
				continue
			}
			val, _ := m.obj.Linear.Get(VariableID(vid))
			ou.Linear.Set(VariableID(vid), val)
		}
		for _, key := range sortedKeys64(objQuad) {
			a, b := QuadKey(key).Vars()
			if _, gone := varGone[uint32(a)]; gone {
				continue
			}
			if _, gone := varGone[uint32(b)]; gone {
				continue
			}
			val, _ := m.obj.Quadratic.Get(QuadKey(key))
			ou.Quadratic.Set(QuadKey(key), val)
		}
		if ou.HasSense || ou.HasOffset || ou.Linear.Len() > 0 || ou.Quadratic.Len() > 0 {
			u.Objective = ou
		}
	}

	if len(famDiffs) > 0 {
		u.Families = make(map[string]*FamilyUpdate, len(famDiffs))
		for name, fd := range famDiffs {
			fs := m.families[name]
			fu := &FamilyUpdate{Bound: fs.bound()}
			for _, id := range fd.added.sorted() {
				data, _ := fs.entryData(id)
				fu.Added = append(fu.Added, AtomicRecord{ID: AtomicID(id), Data: data})
			}
			for _, id := range fd.deleted.sorted() {
				fu.Deleted = append(fu.Deleted, AtomicID(id))
			}
			u.Families[name] = fu
		}
	}

	return u, nil
}

func sortedKeys[V any](m map[uint32]V) []uint32 {
	res := make([]uint32, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	slices.Sort(res)
	return res
}

func sortedKeys64[V any](m map[uint64]V) []uint64 {
	res := make([]uint64, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	slices.Sort(res)
	return res
}
