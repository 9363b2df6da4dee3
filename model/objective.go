package model

import (
	"fmt"
	"math"
)

// ObjectiveSense selects minimization or maximization.
type ObjectiveSense uint8

const (
	Minimize ObjectiveSense = iota
	Maximize
)

func (s ObjectiveSense) String() string {
	switch s {
	case Minimize:
		return "minimize"
	case Maximize:
		return "maximize"
	default:
		return fmt.Sprintf("sense(%d)", uint8(s))
	}
}

// Objective is a linear or quadratic objective function. Quadratic
// coefficients are keyed by the canonical unordered pair of variables.
type Objective struct {
	Sense     ObjectiveSense
	Offset    float64
	Linear    SparseVec[VariableID, float64]
	Quadratic SparseVec[QuadKey, float64]
}

// Clone returns a deep copy.
func (o Objective) Clone() Objective {
	res := o
	res.Linear = o.Linear.Clone()
	res.Quadratic = o.Quadratic.Clone()
	return res
}

func (o *Objective) equal(other *Objective) bool {
	return o.Sense == other.Sense && o.Offset == other.Offset &&
		sparseEqual(&o.Linear, &other.Linear) && sparseEqual(&o.Quadratic, &other.Quadratic)
}

// Objective returns a copy of the current objective.
func (m *Model) Objective() Objective {
	return m.obj.Clone()
}

// SetObjective replaces the whole objective. Every linear and quadratic term
// must name live variables; duplicate terms are rejected. Only the terms that
// actually differ from the previous objective are journaled.
func (m *Model) SetObjective(sense ObjectiveSense, offset float64, linear []Term, quadratic []QuadTerm) error {
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return fmt.Errorf("set objective: offset %v: %w", offset, ErrInvalidCoefficient)
	}
	newLinear, err := rowFromTerms(linear)
	if err != nil {
		return fmt.Errorf("set objective: %w", err)
	}
	for _, vid := range newLinear.Keys {
		if !m.vars.reg.isLive(uint32(vid)) {
			return fmt.Errorf("set objective: term references variable %d: %w", vid, ErrDanglingReference)
		}
	}
	var newQuad SparseVec[QuadKey, float64]
	for _, qt := range quadratic {
		if math.IsNaN(qt.Coeff) || math.IsInf(qt.Coeff, 0) {
			return fmt.Errorf("set objective: coefficient %v on (%d, %d): %w", qt.Coeff, qt.A, qt.B, ErrInvalidCoefficient)
		}
		if !m.vars.reg.isLive(uint32(qt.A)) || !m.vars.reg.isLive(uint32(qt.B)) {
			return fmt.Errorf("set objective: quadratic term (%d, %d): %w", qt.A, qt.B, ErrDanglingReference)
		}
		if qt.Coeff == 0 {
			continue
		}
		key := NewQuadKey(qt.A, qt.B)
		if _, found := newQuad.Get(key); found {
			return fmt.Errorf("set objective: pair (%d, %d) appears twice: %w", qt.A, qt.B, ErrDuplicateKey)
		}
		newQuad.Set(key, qt.Coeff)
	}

	if sense != m.obj.Sense {
		m.record(changeObjectiveSense, "", 0, 0)
	}
	if offset != m.obj.Offset {
		m.record(changeObjectiveOffset, "", 0, 0)
	}
	forEachDiff(&m.obj.Linear, &newLinear, func(vid VariableID) {
		m.record(changeObjectiveLinear, "", 0, uint64(vid))
	})
	forEachDiff(&m.obj.Quadratic, &newQuad, func(key QuadKey) {
		m.record(changeObjectiveQuad, "", 0, uint64(key))
	})

	for _, vid := range m.obj.Linear.Keys {
		m.refDec(vid)
	}
	for _, key := range m.obj.Quadratic.Keys {
		m.quadRefs(key, -1)
	}
	for _, vid := range newLinear.Keys {
		m.refInc(vid)
	}
	for _, key := range newQuad.Keys {
		m.quadRefs(key, 1)
	}

	m.obj = Objective{Sense: sense, Offset: offset, Linear: newLinear, Quadratic: newQuad}
	return nil
}

// forEachDiff calls fn on every key whose value differs between a and b,
// treating a missing entry as zero.
func forEachDiff[K interface{ ~uint32 | ~uint64 }](a, b *SparseVec[K, float64], fn func(K)) {
	a.ForEach(func(k K, v float64) bool {
		if bv, _ := b.Get(k); bv != v {
			fn(k)
		}
		return true
	})
	b.ForEach(func(k K, v float64) bool {
		if _, found := a.Get(k); !found && v != 0 {
			fn(k)
		}
		return true
	})
}

func (m *Model) quadRefs(key QuadKey, delta int) {
	a, b := key.Vars()
	if delta > 0 {
		m.refInc(a)
		m.refInc(b)
		return
	}
	m.refDec(a)
	m.refDec(b)
}

// UpdateObjectiveSense flips the optimization direction.
func (m *Model) UpdateObjectiveSense(sense ObjectiveSense) {
	if sense == m.obj.Sense {
		return
	}
	m.obj.Sense = sense
	m.record(changeObjectiveSense, "", 0, 0)
}

// UpdateObjectiveOffset replaces the constant term.
func (m *Model) UpdateObjectiveOffset(offset float64) error {
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return fmt.Errorf("update objective offset %v: %w", offset, ErrInvalidCoefficient)
	}
	if offset == m.obj.Offset {
		return nil
	}
	m.obj.Offset = offset
	m.record(changeObjectiveOffset, "", 0, 0)
	return nil
}

// UpdateObjectiveCoefficient sets the linear objective coefficient of vid.
// A zero value removes the term.
func (m *Model) UpdateObjectiveCoefficient(vid VariableID, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("update objective coefficient %d: value %v: %w", vid, value, ErrInvalidCoefficient)
	}
	if !m.vars.reg.isLive(uint32(vid)) {
		return fmt.Errorf("update objective coefficient %d: %w", vid, ErrDanglingReference)
	}
	m.setObjectiveLinear(vid, value)
	return nil
}

func (m *Model) setObjectiveLinear(vid VariableID, value float64) {
	old, has := m.obj.Linear.Get(vid)
	switch {
	case value == 0 && !has:
		return
	case value == 0:
		m.obj.Linear.Erase(vid)
		m.refDec(vid)
	case !has:
		m.obj.Linear.Set(vid, value)
		m.refInc(vid)
	case old == value:
		return
	default:
		m.obj.Linear.Set(vid, value)
	}
	m.record(changeObjectiveLinear, "", 0, uint64(vid))
}

// UpdateObjectiveQuadCoefficient sets the quadratic objective coefficient of
// the unordered pair {a, b}. A zero value removes the term.
func (m *Model) UpdateObjectiveQuadCoefficient(a, b VariableID, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("update objective coefficient (%d, %d): value %v: %w", a, b, value, ErrInvalidCoefficient)
	}
	if !m.vars.reg.isLive(uint32(a)) || !m.vars.reg.isLive(uint32(b)) {
		return fmt.Errorf("update objective coefficient (%d, %d): %w", a, b, ErrDanglingReference)
	}
	m.setObjectiveQuad(NewQuadKey(a, b), value)
	return nil
}

func (m *Model) setObjectiveQuad(key QuadKey, value float64) {
	old, has := m.obj.Quadratic.Get(key)
	switch {
	case value == 0 && !has:
		return
	case value == 0:
		m.obj.Quadratic.Erase(key)
		m.quadRefs(key, -1)
	case !has:
		m.obj.Quadratic.Set(key, value)
		m.quadRefs(key, 1)
	case old == value:
		return
	default:
		m.obj.Quadratic.Set(key, value)
	}
	m.record(changeObjectiveQuad, "", 0, uint64(key))
}
