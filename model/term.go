package model

import "math"

type (
	// VariableID identifies a variable in a model.
	VariableID uint32
	// ConstraintID identifies a linear constraint in a model.
	ConstraintID uint32
	// AtomicID identifies an atomic constraint within its family namespace.
	AtomicID uint32
)

// Term represents a coeff * variable in an expression or a constraint row.
type Term struct {
	VID   VariableID
	Coeff float64
}

func (t Term) isValid() bool {
	return !math.IsNaN(t.Coeff) && !math.IsInf(t.Coeff, 0)
}

// QuadKey is the canonical encoding of an unordered pair of variable
// identifiers, used to key quadratic objective coefficients.
type QuadKey uint64

// NewQuadKey returns the key for the unordered pair {a, b}.
func NewQuadKey(a, b VariableID) QuadKey {
	if a > b {
		a, b = b, a
	}
	return QuadKey(uint64(a)<<32 | uint64(b))
}

// Vars returns the pair encoded by k, smaller identifier first.
func (k QuadKey) Vars() (VariableID, VariableID) {
	return VariableID(k >> 32), VariableID(k & math.MaxUint32)
}

// QuadTerm represents a coeff * a * b objective term.
type QuadTerm struct {
	A, B  VariableID
	Coeff float64
}
