package model

import (
	"fmt"
	"math"
	"reflect"
	"sync"

	"github.com/consensys/mathprog/logger"
)

// Family describes one atomic constraint kind: its payload shape, its shape
// rule and how its payload references variables. Descriptors must be stateless
// values; the same descriptor may serve any number of models.
type Family[T any] interface {
	// Name is the family namespace, unique within a model.
	Name() string

	// Validate enforces the family shape rule. Implementations should wrap
	// ErrFamilyShapeViolation.
	Validate(c T) error

	// Operands returns every linear expression held by c, for referential
	// checks and reference counting.
	Operands(c T) []LinearExpression

	// Clone deep-copies the payload.
	Clone(c T) T
}

// familyStore is the untyped face of a FamilyStore, used by the model for
// diffing, validation, cloning and decoding.
type familyStore interface {
	famName() string
	isLive(id uint32) bool
	count() int
	bound() uint32
	famTombstones() []uint32
	forEachOperands(fn func(id uint32, ops []LinearExpression) bool)
	shapeCheck(id uint32) error
	entries() []AtomicRecord
	entryData(id uint32) (any, bool)
	payloadOperands(data any) ([]LinearExpression, error)
	payloadShape(data any) error
	applyAdd(id uint32, data any) error
	applyDelete(id uint32) error
	advanceTo(bound uint32)
	restore(entries []AtomicRecord, tombstones []uint32, next uint32) error
	cloneInto(m *Model) familyStore
	equal(other familyStore) bool
}

// FamilyStore is the generic container behind one atomic constraint family.
// Identifier lifecycle and diff bookkeeping are shared with the owning model;
// families are otherwise independent of each other.
type FamilyStore[T any] struct {
	m *Model
	f Family[T]
	a arena[T]
}

var (
	familiesMu      sync.RWMutex
	familyFactories = make(map[string]func(*Model) familyStore)
)

// RegisterFamily attaches an atomic constraint family to the model and returns
// its typed store. Registering the same family name twice returns the existing
// store; a name collision across payload types fails with ErrDuplicateKey.
func RegisterFamily[T any](m *Model, f Family[T]) (*FamilyStore[T], error) {
	name := f.Name()
	if existing, ok := m.families[name]; ok {
		if typed, ok := existing.(*FamilyStore[T]); ok {
			return typed, nil
		}
		return nil, fmt.Errorf("family %q already registered with another payload type: %w", name, ErrDuplicateKey)
	}
	s := &FamilyStore[T]{m: m, f: f, a: newArena[T](8)}
	m.families[name] = s

	familiesMu.Lock()
	if _, ok := familyFactories[name]; !ok {
		familyFactories[name] = func(target *Model) familyStore {
			fresh := &FamilyStore[T]{m: target, f: f, a: newArena[T](8)}
			target.families[name] = fresh
			return fresh
		}
		log := logger.Logger()
		log.Debug().Str("family", name).Msg("registered atomic constraint family")
	}
	familiesMu.Unlock()
	return s, nil
}

func familyFactory(name string) (func(*Model) familyStore, bool) {
	familiesMu.RLock()
	defer familiesMu.RUnlock()
	fac, ok := familyFactories[name]
	return fac, ok
}

func checkExpression(e LinearExpression) error {
	if math.IsNaN(e.Offset) || math.IsInf(e.Offset, 0) {
		return fmt.Errorf("offset %v: %w", e.Offset, ErrInvalidCoefficient)
	}
	for i, t := range e.Terms {
		if !t.isValid() || t.Coeff == 0 {
			return fmt.Errorf("coefficient %v on variable %d: %w", t.Coeff, t.VID, ErrInvalidCoefficient)
		}
		if i > 0 && t.VID <= e.Terms[i-1].VID {
			return fmt.Errorf("variable %d out of order: %w", t.VID, ErrDuplicateKey)
		}
	}
	return nil
}

func (s *FamilyStore[T]) checkOperands(ops []LinearExpression) error {
	for _, op := range ops {
		if err := checkExpression(op); err != nil {
			return err
		}
		for _, t := range op.Terms {
			if !s.m.vars.reg.isLive(uint32(t.VID)) {
				return fmt.Errorf("operand references variable %d: %w", t.VID, ErrDanglingReference)
			}
		}
	}
	return nil
}

// Add validates c against the family shape rule and referential integrity,
// stores a copy and returns its identifier.
func (s *FamilyStore[T]) Add(c T) (AtomicID, error) {
	if err := s.f.Validate(c); err != nil {
		return 0, fmt.Errorf("add %q constraint: %w", s.f.Name(), err)
	}
	ops := s.f.Operands(c)
	if err := s.checkOperands(ops); err != nil {
		return 0, fmt.Errorf("add %q constraint: %w", s.f.Name(), err)
	}
	id := s.a.add(s.f.Clone(c))
	for _, op := range ops {
		for _, t := range op.Terms {
			s.m.refInc(t.VID)
		}
	}
	s.m.record(changeAtomicAdded, s.f.Name(), id, 0)
	return AtomicID(id), nil
}

// Delete tombstones the constraint and releases its variable references. The
// identifier is never reused.
func (s *FamilyStore[T]) Delete(id AtomicID) error {
	c, ok := s.a.get(uint32(id))
	if !ok {
		return fmt.Errorf("delete %q constraint %d: %w", s.f.Name(), id, ErrInvalidReference)
	}
	for _, op := range s.f.Operands(*c) {
		for _, t := range op.Terms {
			s.m.refDec(t.VID)
		}
	}
	if err := s.a.delete(uint32(id)); err != nil {
		return fmt.Errorf("delete %q constraint %d: %w", s.f.Name(), id, err)
	}
	s.m.record(changeAtomicDeleted, s.f.Name(), uint32(id), 0)
	return nil
}

// Get returns a copy of the constraint payload.
func (s *FamilyStore[T]) Get(id AtomicID) (T, bool) {
	c, ok := s.a.get(uint32(id))
	if !ok {
		var zero T
		return zero, false
	}
	return s.f.Clone(*c), true
}

// Count returns the number of live constraints in the family.
func (s *FamilyStore[T]) Count() int {
	return s.a.reg.count()
}

// ForEach visits live constraints in ascending identifier order with a copy of
// each payload.
func (s *FamilyStore[T]) ForEach(fn func(AtomicID, T) bool) {
	s.a.forEach(func(id uint32, c *T) bool {
		return fn(AtomicID(id), s.f.Clone(*c))
	})
}

func (s *FamilyStore[T]) famName() string          { return s.f.Name() }
func (s *FamilyStore[T]) isLive(id uint32) bool    { return s.a.reg.isLive(id) }
func (s *FamilyStore[T]) count() int               { return s.a.reg.count() }
func (s *FamilyStore[T]) bound() uint32            { return s.a.reg.bound() }
func (s *FamilyStore[T]) famTombstones() []uint32  { return s.a.reg.tombstones() }

func (s *FamilyStore[T]) forEachOperands(fn func(id uint32, ops []LinearExpression) bool) {
	s.a.forEach(func(id uint32, c *T) bool {
		return fn(id, s.f.Operands(*c))
	})
}

func (s *FamilyStore[T]) shapeCheck(id uint32) error {
	c, ok := s.a.get(id)
	if !ok {
		return fmt.Errorf("constraint %d: %w", id, ErrInvalidReference)
	}
	return s.f.Validate(*c)
}

func (s *FamilyStore[T]) entries() []AtomicRecord {
	res := make([]AtomicRecord, 0, s.count())
	s.a.forEach(func(id uint32, c *T) bool {
		res = append(res, AtomicRecord{ID: AtomicID(id), Data: s.f.Clone(*c)})
		return true
	})
	return res
}

func (s *FamilyStore[T]) entryData(id uint32) (any, bool) {
	c, ok := s.a.get(id)
	if !ok {
		return nil, false
	}
	return s.f.Clone(*c), true
}

func (s *FamilyStore[T]) payload(data any) (T, error) {
	// cbor decodes tagged payloads held in an interface as pointers
	switch c := data.(type) {
	case T:
		return c, nil
	case *T:
		return *c, nil
	}
	var zero T
	return zero, fmt.Errorf("family %q: payload %T, want %T: %w", s.f.Name(), data, zero, ErrFamilyShapeViolation)
}

func (s *FamilyStore[T]) payloadOperands(data any) ([]LinearExpression, error) {
	c, err := s.payload(data)
	if err != nil {
		return nil, err
	}
	return s.f.Operands(c), nil
}

func (s *FamilyStore[T]) payloadShape(data any) error {
	c, err := s.payload(data)
	if err != nil {
		return err
	}
	return s.f.Validate(c)
}

// applyAdd is the unchecked write path used by Apply; inputs were validated by
// ValidateUpdate beforehand.
func (s *FamilyStore[T]) applyAdd(id uint32, data any) error {
	c, err := s.payload(data)
	if err != nil {
		return err
	}
	if err := s.a.addAt(id, s.f.Clone(c)); err != nil {
		return err
	}
	for _, op := range s.f.Operands(c) {
		for _, t := range op.Terms {
			s.m.refInc(t.VID)
		}
	}
	s.m.record(changeAtomicAdded, s.f.Name(), id, 0)
	return nil
}

func (s *FamilyStore[T]) applyDelete(id uint32) error {
	c, ok := s.a.get(id)
	if !ok {
		return fmt.Errorf("delete %q constraint %d: %w", s.f.Name(), id, ErrInvalidReference)
	}
	for _, op := range s.f.Operands(*c) {
		for _, t := range op.Terms {
			s.m.refDec(t.VID)
		}
	}
	if err := s.a.delete(id); err != nil {
		return err
	}
	s.m.record(changeAtomicDeleted, s.f.Name(), id, 0)
	return nil
}

func (s *FamilyStore[T]) advanceTo(bound uint32) {
	s.a.reg.advance(bound)
}

// restore rebuilds the store from a decoded message section. It does not
// journal; a freshly decoded model starts clean.
func (s *FamilyStore[T]) restore(entries []AtomicRecord, tombstones []uint32, next uint32) error {
	for _, e := range entries {
		c, err := s.payload(e.Data)
		if err != nil {
			return err
		}
		if err := s.a.addAt(uint32(e.ID), c); err != nil {
			return err
		}
		for _, op := range s.f.Operands(c) {
			for _, t := range op.Terms {
				if uint32(t.VID) >= uint32(len(s.m.varRefs)) {
					return fmt.Errorf("family %q constraint %d references variable %d: %w", s.f.Name(), e.ID, t.VID, ErrDanglingReference)
				}
				s.m.refInc(t.VID)
			}
		}
	}
	s.a.reg.advance(next)
	if !slicesEqualU32(s.a.reg.tombstones(), tombstones) {
		return fmt.Errorf("family %q: tombstone set does not match entries: %w", s.f.Name(), ErrInvalidReference)
	}
	return nil
}

func (s *FamilyStore[T]) cloneInto(m *Model) familyStore {
	return &FamilyStore[T]{
		m: m,
		f: s.f,
		a: s.a.cloneWith(s.f.Clone),
	}
}

func (s *FamilyStore[T]) equal(other familyStore) bool {
	o, ok := other.(*FamilyStore[T])
	if !ok {
		return false
	}
	if !s.a.reg.equal(&o.a.reg) {
		return false
	}
	eq := true
	s.a.forEach(func(id uint32, c *T) bool {
		oc, _ := o.a.get(id)
		if !reflect.DeepEqual(*c, *oc) {
			eq = false
		}
		return eq
	})
	return eq
}

func slicesEqualU32(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
