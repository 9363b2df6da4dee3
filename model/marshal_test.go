package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildSerializableModel(t *testing.T) *Model {
	t.Helper()
	assert := require.New(t)

	m, x, y, c := buildSmallModel(t)

	// leave tombstones in every namespace
	z, err := m.AddVariable(0, 1, false)
	assert.NoError(err)
	assert.NoError(m.DeleteVariable(z))
	c2, err := m.AddLinearConstraint(0, 1, Term{VID: x, Coeff: 1})
	assert.NoError(err)
	assert.NoError(m.DeleteLinearConstraint(c2))
	assert.NoError(m.UpdateObjectiveQuadCoefficient(x, y, 0.5))

	cones, err := SecondOrderCones(m)
	assert.NoError(err)
	gone, err := cones.Add(SecondOrderCone{
		Radius:            expr(t, 1),
		RadiusCoefficient: 1,
		Arguments:         []LinearExpression{expr(t, 0, Term{VID: x, Coeff: 1})},
	})
	assert.NoError(err)
	_, err = cones.Add(SecondOrderCone{
		Radius:            expr(t, 0, Term{VID: y, Coeff: 3}),
		RadiusCoefficient: 2,
		Arguments: []LinearExpression{
			expr(t, 0, Term{VID: x, Coeff: 1}),
			expr(t, -1, Term{VID: y, Coeff: 1}),
		},
	})
	assert.NoError(err)
	assert.NoError(cones.Delete(gone))
	_ = c
	return m
}

func TestMessageRoundTrip(t *testing.T) {
	assert := require.New(t)

	m := buildSerializableModel(t)
	msg := m.ToMessage()
	assert.Equal([]uint32{2}, msg.VariableTombstones)
	assert.Equal([]uint32{1}, msg.ConstraintTombstones)

	decoded, err := FromMessage(msg)
	assert.NoError(err)
	assert.True(m.Equal(decoded))

	// the decoded model is live: it accepts further mutation
	_, err = decoded.AddVariable(0, 1, false)
	assert.NoError(err)
}

func TestBytesRoundTrip(t *testing.T) {
	assert := require.New(t)

	m := buildSerializableModel(t)
	data, err := m.ToBytes()
	assert.NoError(err)

	decoded, n, err := ModelFromBytes(data)
	assert.NoError(err)
	assert.Equal(len(data), n)
	assert.True(m.Equal(decoded))
}

func TestBytesDeterministic(t *testing.T) {
	assert := require.New(t)

	// two structurally equal models built through different histories
	a := buildSerializableModel(t)
	b := buildSerializableModel(t)
	assert.NoError(b.UpdateVariableBounds(0, 0, 7))
	assert.NoError(b.UpdateVariableBounds(0, 0, 10))
	assert.True(a.Equal(b))

	da, err := a.ToBytes()
	assert.NoError(err)
	db, err := b.ToBytes()
	assert.NoError(err)
	assert.Equal(da, db)
}

func TestBytesRejectsCorrupt(t *testing.T) {
	assert := require.New(t)

	m := buildSerializableModel(t)
	data, err := m.ToBytes()
	assert.NoError(err)

	_, _, err = ModelFromBytes(data[:8])
	assert.Error(err)

	truncated := data[:len(data)-4]
	_, _, err = ModelFromBytes(truncated)
	assert.Error(err)
}

func TestFromMessageRejectsInconsistent(t *testing.T) {
	assert := require.New(t)

	m := buildSerializableModel(t)

	// tombstone mismatch
	msg := m.ToMessage()
	msg.VariableTombstones = nil
	_, err := FromMessage(msg)
	assert.ErrorIs(err, ErrInvalidReference)

	// dangling row reference
	msg = m.ToMessage()
	msg.Constraints[0].Row = append(msg.Constraints[0].Row, Term{VID: 700, Coeff: 1})
	_, err = FromMessage(msg)
	assert.ErrorIs(err, ErrDanglingReference)

	// bad version string
	msg = m.ToMessage()
	msg.MathprogVersion = "not-a-version"
	_, err = FromMessage(msg)
	assert.Error(err)
}

func TestUpdateBytesRoundTrip(t *testing.T) {
	assert := require.New(t)

	m := buildSerializableModel(t)
	snapshot := m.Clone()
	cp := m.Checkpoint()

	x := VariableID(0)
	assert.NoError(m.UpdateVariableBounds(x, 0, 7))
	z, err := m.AddVariable(-1, 1, false)
	assert.NoError(err)
	cones, err := SecondOrderCones(m)
	assert.NoError(err)
	_, err = cones.Add(SecondOrderCone{
		Radius:            expr(t, 0, Term{VID: z, Coeff: 1}),
		RadiusCoefficient: 1,
		Arguments:         []LinearExpression{expr(t, 0, Term{VID: x, Coeff: 1})},
	})
	assert.NoError(err)

	u, err := m.Diff(cp)
	assert.NoError(err)

	data, err := u.ToBytes()
	assert.NoError(err)
	decoded, n, err := UpdateFromBytes(data)
	assert.NoError(err)
	assert.Equal(len(data), n)

	// the wire trip preserves applicability
	assert.NoError(snapshot.Apply(decoded))
	assert.True(m.Equal(snapshot))
}
