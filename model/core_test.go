package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildSmallModel returns
//
//	minimize  x + y
//	s.t.      x + 2y ≤ 12
//	          0 ≤ x ≤ 10
//	          0 ≤ y ≤ 5, y integer
func buildSmallModel(t *testing.T) (m *Model, x, y VariableID, c ConstraintID) {
	t.Helper()
	assert := require.New(t)

	m = New(WithName("small"))
	var err error
	x, err = m.AddNamedVariable("x", 0, 10, false)
	assert.NoError(err)
	y, err = m.AddNamedVariable("y", 0, 5, true)
	assert.NoError(err)
	c, err = m.AddLinearConstraint(math.Inf(-1), 12, Term{VID: x, Coeff: 1}, Term{VID: y, Coeff: 2})
	assert.NoError(err)
	assert.NoError(m.SetObjective(Minimize, 0, []Term{{VID: x, Coeff: 1}, {VID: y, Coeff: 1}}, nil))
	return m, x, y, c
}

func TestSmallModel(t *testing.T) {
	assert := require.New(t)

	m, x, y, c := buildSmallModel(t)

	assert.Equal(2, m.NumVariables())
	assert.Equal(1, m.NumLinearConstraints())
	assert.True(Validate(m).Ok())

	v, ok := m.Variable(x)
	assert.True(ok)
	assert.Equal("x", v.Name)
	assert.False(v.Integer)

	v, _ = m.Variable(y)
	assert.True(v.Integer)

	lc, ok := m.LinearConstraint(c)
	assert.True(ok)
	assert.Equal(12.0, lc.Upper)
	coeff, _ := lc.Row.Get(y)
	assert.Equal(2.0, coeff)

	obj := m.Objective()
	assert.Equal(Minimize, obj.Sense)
	assert.Equal(2, obj.Linear.Len())
}

func TestAddVariableBadBounds(t *testing.T) {
	assert := require.New(t)

	m := New()
	_, err := m.AddVariable(3, 1, false)
	assert.ErrorIs(err, ErrInvalidBounds)

	_, err = m.AddVariable(math.NaN(), 1, false)
	assert.ErrorIs(err, ErrInvalidBounds)

	// equal bounds and infinite bounds are fine
	_, err = m.AddVariable(1, 1, false)
	assert.NoError(err)
	_, err = m.AddVariable(math.Inf(-1), math.Inf(1), false)
	assert.NoError(err)
}

func TestDeleteVariable(t *testing.T) {
	assert := require.New(t)

	m, x, y, c := buildSmallModel(t)

	// held by the constraint row and the objective
	assert.ErrorIs(m.DeleteVariable(x), ErrReferencedElement)

	assert.NoError(m.DeleteLinearConstraint(c))
	assert.ErrorIs(m.DeleteVariable(x), ErrReferencedElement) // objective still holds it
	assert.NoError(m.UpdateObjectiveCoefficient(x, 0))
	assert.NoError(m.DeleteVariable(x))

	_, ok := m.Variable(x)
	assert.False(ok)
	assert.ErrorIs(m.DeleteVariable(x), ErrInvalidReference)

	// ids 0 and 1 were issued; the tombstoned 0 is never reused
	z, err := m.AddVariable(0, 1, false)
	assert.NoError(err)
	assert.Equal(VariableID(2), z)
	_ = y
}

func TestAddLinearConstraintRejectsDangling(t *testing.T) {
	assert := require.New(t)

	m := New()
	x, _ := m.AddVariable(0, 1, false)

	_, err := m.AddLinearConstraint(0, 1, Term{VID: 999, Coeff: 1})
	assert.ErrorIs(err, ErrDanglingReference)

	_, err = m.AddLinearConstraint(0, 1, Term{VID: x, Coeff: 1}, Term{VID: x, Coeff: 2})
	assert.ErrorIs(err, ErrDuplicateKey)

	_, err = m.AddLinearConstraint(0, 1, Term{VID: x, Coeff: math.Inf(1)})
	assert.ErrorIs(err, ErrInvalidCoefficient)

	// zero coefficients are dropped, not stored
	c, err := m.AddLinearConstraint(0, 1, Term{VID: x, Coeff: 0})
	assert.NoError(err)
	lc, _ := m.LinearConstraint(c)
	assert.Equal(0, lc.Row.Len())
	assert.NoError(m.DeleteVariable(x))
}

func TestUpdateCoefficient(t *testing.T) {
	assert := require.New(t)

	m, x, y, c := buildSmallModel(t)

	assert.NoError(m.UpdateCoefficient(c, y, 3))
	lc, _ := m.LinearConstraint(c)
	coeff, _ := lc.Row.Get(y)
	assert.Equal(3.0, coeff)

	// zero removes the entry and releases the reference
	assert.NoError(m.UpdateCoefficient(c, y, 0))
	lc, _ = m.LinearConstraint(c)
	_, ok := lc.Row.Get(y)
	assert.False(ok)

	assert.ErrorIs(m.UpdateCoefficient(c, 999, 1), ErrDanglingReference)
	assert.ErrorIs(m.UpdateCoefficient(999, x, 1), ErrDanglingReference)
	assert.ErrorIs(m.UpdateCoefficient(c, x, math.NaN()), ErrInvalidCoefficient)
}

func TestUpdateBounds(t *testing.T) {
	assert := require.New(t)

	m, x, _, c := buildSmallModel(t)

	assert.NoError(m.UpdateVariableBounds(x, 0, 7))
	v, _ := m.Variable(x)
	assert.Equal(7.0, v.Upper)

	assert.ErrorIs(m.UpdateVariableBounds(x, 8, 7), ErrInvalidBounds)
	assert.ErrorIs(m.UpdateVariableBounds(999, 0, 1), ErrDanglingReference)

	assert.NoError(m.UpdateConstraintBounds(c, 0, 20))
	lc, _ := m.LinearConstraint(c)
	assert.Equal(20.0, lc.Upper)
	assert.ErrorIs(m.UpdateConstraintBounds(999, 0, 1), ErrDanglingReference)
}

func TestModelCloneEqual(t *testing.T) {
	assert := require.New(t)

	m, x, y, _ := buildSmallModel(t)
	assert.NoError(m.UpdateObjectiveQuadCoefficient(x, y, 0.5))

	clone := m.Clone()
	assert.True(m.Equal(clone))
	assert.True(clone.Equal(m))

	// mutating the clone does not touch the original
	assert.NoError(clone.UpdateVariableBounds(x, 0, 3))
	assert.False(m.Equal(clone))
	v, _ := m.Variable(x)
	assert.Equal(10.0, v.Upper)

	// tombstones are part of equality
	a := New()
	b := New()
	ax, _ := a.AddVariable(0, 1, false)
	a.AddVariable(0, 1, false)
	assert.NoError(a.DeleteVariable(ax))
	b.AddVariable(0, 1, false)
	b.AddVariable(0, 1, false)
	assert.NoError(b.DeleteVariable(0))
	assert.True(a.Equal(b))
	a2 := New()
	a2.AddVariable(0, 1, false)
	assert.False(a.Equal(a2))
}

func TestIterators(t *testing.T) {
	assert := require.New(t)

	m, x, y, c := buildSmallModel(t)
	assert.NoError(m.DeleteLinearConstraint(c))

	var ids []VariableID
	it := m.Variables()
	for id, _, ok := it.Next(); ok; id, _, ok = it.Next() {
		ids = append(ids, id)
	}
	assert.Equal([]VariableID{x, y}, ids)

	cit := m.LinearConstraints()
	_, _, ok := cit.Next()
	assert.False(ok)
}

func TestSummary(t *testing.T) {
	assert := require.New(t)

	m, x, _, _ := buildSmallModel(t)
	assert.NoError(m.DeleteLinearConstraint(0))
	assert.NoError(m.UpdateObjectiveCoefficient(x, 0))
	assert.NoError(m.DeleteVariable(x))

	s := m.Summary()
	assert.Equal(1, s.Variables.Live)
	assert.Equal(1, s.Variables.Tombstoned)
	assert.Equal(uint32(2), s.Variables.NextID)
	assert.Equal(0, s.LinearConstraints.Live)
	assert.Equal(1, s.LinearConstraints.Tombstoned)
}
