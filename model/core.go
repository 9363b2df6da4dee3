package model

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/consensys/mathprog/debug"
)

// Variable is a decision variable with bounds and an integrality flag.
type Variable struct {
	Lower   float64
	Upper   float64
	Integer bool
	Name    string `cbor:",omitempty"`
}

// LinearConstraint bounds a sparse row of coefficients over live variables.
type LinearConstraint struct {
	Lower float64
	Upper float64
	Row   SparseVec[VariableID, float64]
	Name  string `cbor:",omitempty"`
}

func (c LinearConstraint) clone() LinearConstraint {
	res := c
	res.Row = c.Row.Clone()
	return res
}

// Model is the single source of truth for the current state of an optimization
// problem. It is not internally synchronized; at most one goroutine may mutate
// a given model at any time, while any number may read concurrently with each
// other.
type Model struct {
	name string

	vars arena[Variable]
	cons arena[LinearConstraint]
	obj  Objective

	// number of live references (constraint rows, objective terms, atomic
	// operands) held on each variable; indexed by identifier
	varRefs []uint32

	families map[string]familyStore

	// mutation journal; diff cost scales with the journal suffix, not with
	// model size
	token          uint64
	version        uint64
	log            []change
	lastCheckpoint uint64
}

var tokenCounter atomic.Uint64

type changeKind uint8

const (
	changeVariableAdded changeKind = iota
	changeVariableDeleted
	changeVariableBounds
	changeConstraintAdded
	changeConstraintDeleted
	changeConstraintBounds
	changeCoefficient
	changeObjectiveSense
	changeObjectiveOffset
	changeObjectiveLinear
	changeObjectiveQuad
	changeAtomicAdded
	changeAtomicDeleted
)

type change struct {
	seq    uint64
	kind   changeKind
	family string
	id     uint32
	key    uint64
}

type config struct {
	name     string
	capacity int
}

// Option configures a new model.
type Option func(*config)

// WithName names the model; the name rides along in serialized messages.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithCapacity pre-allocates storage for the expected number of variables.
func WithCapacity(capacity int) Option {
	return func(c *config) { c.capacity = capacity }
}

// New initializes an empty model.
func New(opts ...Option) *Model {
	cfg := config{capacity: 16}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Model{
		name:     cfg.name,
		vars:     newArena[Variable](cfg.capacity),
		cons:     newArena[LinearConstraint](cfg.capacity),
		varRefs:  make([]uint32, 0, cfg.capacity),
		families: make(map[string]familyStore),
		token:    tokenCounter.Add(1),
	}
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.name
}

func (m *Model) record(kind changeKind, family string, id uint32, key uint64) {
	m.version++
	m.log = append(m.log, change{seq: m.version, kind: kind, family: family, id: id, key: key})
}

func (m *Model) refInc(vid VariableID) {
	m.varRefs[vid]++
}

func (m *Model) refDec(vid VariableID) {
	debug.Assert(m.varRefs[vid] > 0, "reference count underflow on variable %d", vid)
	m.varRefs[vid]--
}

func checkBounds(lower, upper float64) error {
	if math.IsNaN(lower) || math.IsNaN(upper) {
		return fmt.Errorf("bounds [%v, %v]: %w", lower, upper, ErrInvalidBounds)
	}
	if lower > upper {
		return fmt.Errorf("bounds [%v, %v]: %w", lower, upper, ErrInvalidBounds)
	}
	return nil
}

// rowFromTerms canonicalizes terms into a sparse row, dropping zero
// coefficients.
func rowFromTerms(terms []Term) (SparseVec[VariableID, float64], error) {
	var row SparseVec[VariableID, float64]
	for _, t := range terms {
		if !t.isValid() {
			return row, fmt.Errorf("coefficient %v on variable %d: %w", t.Coeff, t.VID, ErrInvalidCoefficient)
		}
		if t.Coeff == 0 {
			continue
		}
		if _, found := row.Get(t.VID); found {
			return row, fmt.Errorf("variable %d appears twice in row: %w", t.VID, ErrDuplicateKey)
		}
		row.Set(t.VID, t.Coeff)
	}
	return row, nil
}

func rowToTerms(row *SparseVec[VariableID, float64]) []Term {
	terms := make([]Term, 0, row.Len())
	row.ForEach(func(vid VariableID, coeff float64) bool {
		terms = append(terms, Term{VID: vid, Coeff: coeff})
		return true
	})
	return terms
}

// AddVariable creates a variable with the given bounds and integrality flag and
// returns its identifier.
func (m *Model) AddVariable(lower, upper float64, integer bool) (VariableID, error) {
	return m.AddNamedVariable("", lower, upper, integer)
}

// AddNamedVariable is AddVariable with a display name attached. Names are
// carried in serialized messages but take no part in referential checks.
func (m *Model) AddNamedVariable(name string, lower, upper float64, integer bool) (VariableID, error) {
	if err := checkBounds(lower, upper); err != nil {
		return 0, fmt.Errorf("add variable: %w", err)
	}
	id := m.vars.add(Variable{Lower: lower, Upper: upper, Integer: integer, Name: name})
	m.varRefs = append(m.varRefs, 0)
	m.record(changeVariableAdded, "", id, 0)
	return VariableID(id), nil
}

// DeleteVariable tombstones a variable. It fails with ErrReferencedElement if
// any live constraint or the objective still references the variable; remove
// the references first. The identifier is never reused.
func (m *Model) DeleteVariable(id VariableID) error {
	if !m.vars.reg.isLive(uint32(id)) {
		return fmt.Errorf("delete variable %d: %w", id, ErrInvalidReference)
	}
	if m.varRefs[id] != 0 {
		return fmt.Errorf("delete variable %d: held by %d live reference(s): %w", id, m.varRefs[id], ErrReferencedElement)
	}
	if err := m.vars.delete(uint32(id)); err != nil {
		return fmt.Errorf("delete variable %d: %w", id, err)
	}
	m.record(changeVariableDeleted, "", uint32(id), 0)
	return nil
}

// Variable returns a copy of the variable data.
func (m *Model) Variable(id VariableID) (Variable, bool) {
	v, ok := m.vars.get(uint32(id))
	if !ok {
		return Variable{}, false
	}
	return *v, true
}

// NumVariables returns the number of live variables.
func (m *Model) NumVariables() int {
	return m.vars.reg.count()
}

// UpdateVariableBounds replaces the bounds of a live variable.
func (m *Model) UpdateVariableBounds(id VariableID, lower, upper float64) error {
	if err := checkBounds(lower, upper); err != nil {
		return fmt.Errorf("update variable %d: %w", id, err)
	}
	v, ok := m.vars.get(uint32(id))
	if !ok {
		return fmt.Errorf("update variable %d: %w", id, ErrDanglingReference)
	}
	if v.Lower == lower && v.Upper == upper {
		return nil
	}
	v.Lower, v.Upper = lower, upper
	m.record(changeVariableBounds, "", uint32(id), 0)
	return nil
}

// AddLinearConstraint creates the constraint lower ≤ row ≤ upper and returns
// its identifier. Every row term must name a live variable.
func (m *Model) AddLinearConstraint(lower, upper float64, row ...Term) (ConstraintID, error) {
	return m.AddNamedLinearConstraint("", lower, upper, row...)
}

// AddNamedLinearConstraint is AddLinearConstraint with a display name attached.
func (m *Model) AddNamedLinearConstraint(name string, lower, upper float64, row ...Term) (ConstraintID, error) {
	if err := checkBounds(lower, upper); err != nil {
		return 0, fmt.Errorf("add constraint: %w", err)
	}
	sparse, err := rowFromTerms(row)
	if err != nil {
		return 0, fmt.Errorf("add constraint: %w", err)
	}
	for _, vid := range sparse.Keys {
		if !m.vars.reg.isLive(uint32(vid)) {
			return 0, fmt.Errorf("add constraint: row references variable %d: %w", vid, ErrDanglingReference)
		}
	}
	id := m.cons.add(LinearConstraint{Lower: lower, Upper: upper, Row: sparse, Name: name})
	for _, vid := range sparse.Keys {
		m.refInc(vid)
	}
	m.record(changeConstraintAdded, "", id, 0)
	return ConstraintID(id), nil
}

// DeleteLinearConstraint tombstones a constraint and releases its variable
// references.
func (m *Model) DeleteLinearConstraint(id ConstraintID) error {
	c, ok := m.cons.get(uint32(id))
	if !ok {
		return fmt.Errorf("delete constraint %d: %w", id, ErrInvalidReference)
	}
	for _, vid := range c.Row.Keys {
		m.refDec(vid)
	}
	if err := m.cons.delete(uint32(id)); err != nil {
		return fmt.Errorf("delete constraint %d: %w", id, err)
	}
	m.record(changeConstraintDeleted, "", uint32(id), 0)
	return nil
}

// LinearConstraint returns a copy of the constraint data.
func (m *Model) LinearConstraint(id ConstraintID) (LinearConstraint, bool) {
	c, ok := m.cons.get(uint32(id))
	if !ok {
		return LinearConstraint{}, false
	}
	return c.clone(), true
}

// NumLinearConstraints returns the number of live linear constraints.
func (m *Model) NumLinearConstraints() int {
	return m.cons.reg.count()
}

// UpdateConstraintBounds replaces the bounds of a live constraint.
func (m *Model) UpdateConstraintBounds(id ConstraintID, lower, upper float64) error {
	if err := checkBounds(lower, upper); err != nil {
		return fmt.Errorf("update constraint %d: %w", id, err)
	}
	c, ok := m.cons.get(uint32(id))
	if !ok {
		return fmt.Errorf("update constraint %d: %w", id, ErrDanglingReference)
	}
	if c.Lower == lower && c.Upper == upper {
		return nil
	}
	c.Lower, c.Upper = lower, upper
	m.record(changeConstraintBounds, "", uint32(id), 0)
	return nil
}

// UpdateCoefficient sets the coefficient of variable vid in constraint id.
// A zero value removes the row entry.
func (m *Model) UpdateCoefficient(id ConstraintID, vid VariableID, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("update coefficient (%d, %d): value %v: %w", id, vid, value, ErrInvalidCoefficient)
	}
	c, ok := m.cons.get(uint32(id))
	if !ok {
		return fmt.Errorf("update coefficient (%d, %d): %w", id, vid, ErrDanglingReference)
	}
	if !m.vars.reg.isLive(uint32(vid)) {
		return fmt.Errorf("update coefficient (%d, %d): %w", id, vid, ErrDanglingReference)
	}
	m.setCoefficient(c, uint32(id), vid, value)
	return nil
}

// setCoefficient is the unchecked write path shared with Apply.
func (m *Model) setCoefficient(c *LinearConstraint, id uint32, vid VariableID, value float64) {
	old, has := c.Row.Get(vid)
	switch {
	case value == 0 && !has:
		return
	case value == 0:
		c.Row.Erase(vid)
		m.refDec(vid)
	case !has:
		c.Row.Set(vid, value)
		m.refInc(vid)
	case old == value:
		return
	default:
		c.Row.Set(vid, value)
	}
	m.record(changeCoefficient, "", id, uint64(vid))
}

// IsDirty reports whether the model mutated since the last checkpoint.
func (m *Model) IsDirty() bool {
	return m.version > m.lastCheckpoint
}

// Clone returns a deep, independent copy of the model state. The clone starts
// with a fresh mutation journal; checkpoints taken on the original are unknown
// to the clone.
func (m *Model) Clone() *Model {
	res := &Model{
		name:     m.name,
		vars:     m.vars.cloneWith(func(v Variable) Variable { return v }),
		cons:     m.cons.cloneWith(LinearConstraint.clone),
		obj:      m.obj.Clone(),
		varRefs:  make([]uint32, len(m.varRefs)),
		families: make(map[string]familyStore, len(m.families)),
		token:    tokenCounter.Add(1),
	}
	copy(res.varRefs, m.varRefs)
	for name, fs := range m.families {
		res.families[name] = fs.cloneInto(res)
	}
	return res
}

// Equal reports structural equality: same live entities, bounds, coefficients,
// objective, tombstones and registered families. Journals and checkpoints are
// not part of the comparison.
func (m *Model) Equal(other *Model) bool {
	if m.name != other.name {
		return false
	}
	if !m.vars.reg.equal(&other.vars.reg) || !m.cons.reg.equal(&other.cons.reg) {
		return false
	}
	varsEqual := true
	m.vars.forEach(func(id uint32, v *Variable) bool {
		ov, _ := other.vars.get(id)
		if *v != *ov {
			varsEqual = false
		}
		return varsEqual
	})
	if !varsEqual {
		return false
	}
	consEqual := true
	m.cons.forEach(func(id uint32, c *LinearConstraint) bool {
		oc, _ := other.cons.get(id)
		if c.Lower != oc.Lower || c.Upper != oc.Upper || c.Name != oc.Name || !sparseEqual(&c.Row, &oc.Row) {
			consEqual = false
		}
		return consEqual
	})
	if !consEqual {
		return false
	}
	if !m.obj.equal(&other.obj) {
		return false
	}
	if len(m.families) != len(other.families) {
		return false
	}
	for name, fs := range m.families {
		ofs, ok := other.families[name]
		if !ok || !fs.equal(ofs) {
			return false
		}
	}
	return true
}

func sparseEqual[K interface{ ~uint32 | ~uint64 }](a, b *SparseVec[K, float64]) bool {
	if len(a.Keys) != len(b.Keys) {
		return false
	}
	for i := range a.Keys {
		if a.Keys[i] != b.Keys[i] || a.Values[i] != b.Values[i] {
			return false
		}
	}
	return true
}
