package model

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestDiffEmpty(t *testing.T) {
	assert := require.New(t)

	m, _, _, _ := buildSmallModel(t)
	cp := m.Checkpoint()
	assert.False(m.IsDirty())

	u, err := m.Diff(cp)
	assert.NoError(err)
	assert.True(u.IsEmpty())

	// applying an empty diff is a no-op
	clone := m.Clone()
	assert.NoError(clone.Apply(u))
	assert.True(m.Equal(clone))
}

func TestDiffUnknownCheckpoint(t *testing.T) {
	assert := require.New(t)

	m, _, _, _ := buildSmallModel(t)
	other := New()
	cp := other.Checkpoint()

	_, err := m.Diff(cp)
	assert.ErrorIs(err, ErrUnknownCheckpoint)

	// a clone does not recognize the original's checkpoints
	cp = m.Checkpoint()
	_, err = m.Clone().Diff(cp)
	assert.ErrorIs(err, ErrUnknownCheckpoint)
}

func TestDiffSingleBoundsChange(t *testing.T) {
	assert := require.New(t)

	m, x, _, _ := buildSmallModel(t)
	cp := m.Checkpoint()

	assert.NoError(m.UpdateVariableBounds(x, 0, 7))
	assert.True(m.IsDirty())

	u, err := m.Diff(cp)
	assert.NoError(err)

	want := []VariableBoundsRecord{{ID: x, Lower: 0, Upper: 7}}
	assert.Empty(cmp.Diff(want, u.VariableBounds))
	assert.Empty(u.AddedVariables)
	assert.Empty(u.DeletedVariables)
	assert.Empty(u.AddedConstraints)
	assert.Empty(u.Coefficients)
	assert.Nil(u.Objective)
}

func TestDiffCoalescesRepeatedWrites(t *testing.T) {
	assert := require.New(t)

	m, x, _, c := buildSmallModel(t)
	cp := m.Checkpoint()

	// several writes to the same cell collapse into one record with the
	// final value
	assert.NoError(m.UpdateCoefficient(c, x, 3))
	assert.NoError(m.UpdateCoefficient(c, x, 4))
	assert.NoError(m.UpdateCoefficient(c, x, 5))
	assert.NoError(m.UpdateVariableBounds(x, 0, 8))
	assert.NoError(m.UpdateVariableBounds(x, 0, 9))

	u, err := m.Diff(cp)
	assert.NoError(err)
	assert.Equal([]CoefficientRecord{{Constraint: c, Variable: x, Value: 5}}, u.Coefficients)
	assert.Equal([]VariableBoundsRecord{{ID: x, Lower: 0, Upper: 9}}, u.VariableBounds)
}

func TestDiffAnnihilation(t *testing.T) {
	assert := require.New(t)

	m, _, _, _ := buildSmallModel(t)
	snapshot := m.Clone()
	cp := m.Checkpoint()

	// add then delete inside the window; nothing visible remains but the
	// identifier is burned
	z, err := m.AddVariable(0, 1, false)
	assert.NoError(err)
	assert.NoError(m.UpdateVariableBounds(z, 0, 0.5))
	assert.NoError(m.DeleteVariable(z))

	u, err := m.Diff(cp)
	assert.NoError(err)
	assert.Empty(u.AddedVariables)
	assert.Empty(u.DeletedVariables)
	assert.Empty(u.VariableBounds)
	assert.Equal(VariableID(3), u.NextVariableID)

	// applying still reproduces the tombstone
	assert.NoError(snapshot.Apply(u))
	assert.True(m.Equal(snapshot))
	assert.Equal(1, snapshot.Summary().Variables.Tombstoned)
}

func TestDiffApplyRoundTrip(t *testing.T) {
	assert := require.New(t)

	m, x, y, c := buildSmallModel(t)
	cones, err := SecondOrderCones(m)
	assert.NoError(err)
	coneID, err := cones.Add(SecondOrderCone{
		Radius:            expr(t, 0, Term{VID: x, Coeff: 1}),
		RadiusCoefficient: 1,
		Arguments:         []LinearExpression{expr(t, 0, Term{VID: y, Coeff: 1})},
	})
	assert.NoError(err)

	snapshot := m.Clone()
	cp := m.Checkpoint()

	// a batch touching every entity family
	z, err := m.AddNamedVariable("z", -1, 1, false)
	assert.NoError(err)
	assert.NoError(m.UpdateVariableBounds(y, 0, 4))
	c2, err := m.AddLinearConstraint(0, 5, Term{VID: x, Coeff: 1}, Term{VID: z, Coeff: -1})
	assert.NoError(err)
	assert.NoError(m.UpdateCoefficient(c, x, 2))
	assert.NoError(m.UpdateConstraintBounds(c, 0, 15))
	m.UpdateObjectiveSense(Maximize)
	assert.NoError(m.UpdateObjectiveOffset(1))
	assert.NoError(m.UpdateObjectiveCoefficient(z, 3))
	assert.NoError(m.UpdateObjectiveQuadCoefficient(x, z, 0.25))
	assert.NoError(cones.Delete(coneID))
	_, err = cones.Add(SecondOrderCone{
		Radius:            expr(t, 0, Term{VID: z, Coeff: 1}),
		RadiusCoefficient: 2,
		Arguments:         []LinearExpression{expr(t, 0, Term{VID: x, Coeff: 1})},
	})
	assert.NoError(err)

	u, err := m.Diff(cp)
	assert.NoError(err)

	assert.NoError(snapshot.Apply(u))
	assert.True(m.Equal(snapshot))
	_ = c2
}

func TestApplyRejectsAtomically(t *testing.T) {
	assert := require.New(t)

	m, x, _, _ := buildSmallModel(t)
	snapshot := m.Clone()
	cp := m.Checkpoint()

	assert.NoError(m.UpdateVariableBounds(x, 0, 7))
	u, err := m.Diff(cp)
	assert.NoError(err)

	// corrupt the update
	u.VariableBounds = append(u.VariableBounds, VariableBoundsRecord{ID: 99, Lower: 0, Upper: 1})
	before := snapshot.Clone()
	assert.ErrorIs(snapshot.Apply(u), ErrDanglingReference)

	// nothing was applied
	assert.True(before.Equal(snapshot))
}

// genMutation derives one mutation from a seed and applies it; invalid
// mutations (dangling ids, held references) are silently skipped.
func applyRandomMutation(m *Model, seed uint64) {
	varID := func(s uint64) VariableID { return VariableID(s % uint64(m.vars.reg.bound()+1)) }
	switch seed % 8 {
	case 0:
		lo := float64(int64(seed%21) - 10)
		m.AddVariable(lo, lo+float64(seed%5), seed%2 == 0)
	case 1:
		m.DeleteVariable(varID(seed >> 3))
	case 2:
		m.UpdateVariableBounds(varID(seed>>3), -1, float64(seed%7))
	case 3:
		m.AddLinearConstraint(0, float64(seed%9), Term{VID: varID(seed >> 3), Coeff: 1 + float64(seed%3)})
	case 4:
		m.DeleteLinearConstraint(ConstraintID(seed >> 3 % uint64(m.cons.reg.bound()+1)))
	case 5:
		m.UpdateCoefficient(ConstraintID(seed>>5%uint64(m.cons.reg.bound()+1)), varID(seed>>3), float64(seed%5))
	case 6:
		m.UpdateObjectiveCoefficient(varID(seed>>3), float64(int64(seed%11)-5))
	case 7:
		m.UpdateObjectiveQuadCoefficient(varID(seed>>3), varID(seed>>13), float64(seed%3))
	}
}

func TestDiffApplyProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	properties.Property("apply(diff(checkpoint)) reproduces the model", prop.ForAll(
		func(seeds []uint64) bool {
			m := New()
			x, _ := m.AddVariable(0, 10, false)
			y, _ := m.AddVariable(0, 10, true)
			if _, err := m.AddLinearConstraint(math.Inf(-1), 8, Term{VID: x, Coeff: 1}, Term{VID: y, Coeff: 1}); err != nil {
				return false
			}

			snapshot := m.Clone()
			cp := m.Checkpoint()
			for _, s := range seeds {
				applyRandomMutation(m, s)
				if !Validate(m).Ok() {
					return false
				}
			}

			u, err := m.Diff(cp)
			if err != nil {
				return false
			}
			if err := snapshot.Apply(u); err != nil {
				return false
			}
			return m.Equal(snapshot)
		},
		gen.SliceOf(gen.UInt64()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
