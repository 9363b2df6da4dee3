package model

import (
	"fmt"
	"math"
)

// SecondOrderCone constrains the Euclidean norm of its argument expressions:
//
//	‖(arg_1, …, arg_n)‖₂ ≤ RadiusCoefficient * Radius
//
// RadiusCoefficient must be finite and non-negative; at least one argument is
// required.
type SecondOrderCone struct {
	Radius            LinearExpression
	RadiusCoefficient float64
	Arguments         []LinearExpression
}

// SecondOrderConeFamily is the Family descriptor for second-order cone
// constraints.
type SecondOrderConeFamily struct{}

// SecondOrderConeName is the family namespace used by SecondOrderConeFamily.
const SecondOrderConeName = "second_order_cone"

func (SecondOrderConeFamily) Name() string { return SecondOrderConeName }

func (SecondOrderConeFamily) Validate(c SecondOrderCone) error {
	if len(c.Arguments) == 0 {
		return fmt.Errorf("cone has no arguments: %w", ErrFamilyShapeViolation)
	}
	if !(c.RadiusCoefficient >= 0) || math.IsInf(c.RadiusCoefficient, 1) {
		return fmt.Errorf("radius coefficient %v: %w", c.RadiusCoefficient, ErrFamilyShapeViolation)
	}
	return nil
}

func (SecondOrderConeFamily) Operands(c SecondOrderCone) []LinearExpression {
	ops := make([]LinearExpression, 0, len(c.Arguments)+1)
	ops = append(ops, c.Radius)
	ops = append(ops, c.Arguments...)
	return ops
}

func (SecondOrderConeFamily) Clone(c SecondOrderCone) SecondOrderCone {
	res := SecondOrderCone{
		Radius:            c.Radius.Clone(),
		RadiusCoefficient: c.RadiusCoefficient,
		Arguments:         make([]LinearExpression, len(c.Arguments)),
	}
	for i := range c.Arguments {
		res.Arguments[i] = c.Arguments[i].Clone()
	}
	return res
}

// SecondOrderCones attaches (or returns) the second-order cone family store of
// the model.
func SecondOrderCones(m *Model) (*FamilyStore[SecondOrderCone], error) {
	return RegisterFamily[SecondOrderCone](m, SecondOrderConeFamily{})
}
