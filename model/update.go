package model

import (
	"fmt"
	"slices"
)

// VariableRecord is a variable addition carried by a ModelUpdate or a model
// message.
type VariableRecord struct {
	ID      VariableID
	Lower   float64
	Upper   float64
	Integer bool
	Name    string `cbor:",omitempty"`
}

// ConstraintRecord is a linear constraint addition carried by a ModelUpdate or
// a model message. Row terms are in ascending variable order.
type ConstraintRecord struct {
	ID    ConstraintID
	Lower float64
	Upper float64
	Row   []Term
	Name  string `cbor:",omitempty"`
}

// AtomicRecord is an atomic constraint addition; Data holds the
// family-specific payload.
type AtomicRecord struct {
	ID   AtomicID
	Data any
}

// VariableBoundsRecord carries the new bounds of a pre-existing variable.
type VariableBoundsRecord struct {
	ID    VariableID
	Lower float64
	Upper float64
}

// ConstraintBoundsRecord carries the new bounds of a pre-existing constraint.
type ConstraintBoundsRecord struct {
	ID    ConstraintID
	Lower float64
	Upper float64
}

// CoefficientRecord carries the new value of one row entry of a pre-existing
// constraint. A zero value removes the entry.
type CoefficientRecord struct {
	Constraint ConstraintID
	Variable   VariableID
	Value      float64
}

// ObjectiveUpdate carries the objective terms that changed; a zero value
// removes the term. Sense and offset ride along only when they changed.
type ObjectiveUpdate struct {
	HasSense  bool
	Sense     ObjectiveSense
	HasOffset bool
	Offset    float64
	Linear    SparseVec[VariableID, float64]
	Quadratic SparseVec[QuadKey, float64]
}

// FamilyUpdate is the per-family section of a ModelUpdate. Bound is the
// family's identifier allocation cursor at diff time; applying the update
// advances the target past it so tombstone numbering is reproduced exactly.
type FamilyUpdate struct {
	Bound   uint32
	Added   []AtomicRecord
	Deleted []AtomicID
}

// ModelUpdate is the minimal description of everything that changed between a
// checkpoint and a later state of the same model. All identifier slices are in
// ascending order. Applying the update to a copy of the model as of the
// checkpoint reproduces the later state exactly.
type ModelUpdate struct {
	NextVariableID   VariableID
	NextConstraintID ConstraintID

	AddedVariables   []VariableRecord
	DeletedVariables []VariableID
	VariableBounds   []VariableBoundsRecord

	AddedConstraints   []ConstraintRecord
	DeletedConstraints []ConstraintID
	ConstraintBounds   []ConstraintBoundsRecord
	Coefficients       []CoefficientRecord

	Objective *ObjectiveUpdate

	Families map[string]*FamilyUpdate `cbor:",omitempty"`
}

// IsEmpty reports whether the update carries no visible content.
func (u *ModelUpdate) IsEmpty() bool {
	if len(u.AddedVariables) > 0 || len(u.DeletedVariables) > 0 || len(u.VariableBounds) > 0 {
		return false
	}
	if len(u.AddedConstraints) > 0 || len(u.DeletedConstraints) > 0 || len(u.ConstraintBounds) > 0 || len(u.Coefficients) > 0 {
		return false
	}
	if u.Objective != nil {
		return false
	}
	for _, fu := range u.Families {
		if len(fu.Added) > 0 || len(fu.Deleted) > 0 {
			return false
		}
	}
	return true
}

func sortedFamilyNames(families map[string]*FamilyUpdate) []string {
	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Apply replays the update onto the model. The model must be in the state the
// update was diffed against; the whole update is validated up front and the
// model is left untouched on error.
func (m *Model) Apply(u *ModelUpdate) error {
	if res := ValidateUpdate(m, u); !res.Ok() {
		return fmt.Errorf("apply update: %w", res.Err())
	}

	// release references first: zero-valued coefficient and objective writes
	for _, r := range u.Coefficients {
		if r.Value == 0 {
			c, _ := m.cons.get(uint32(r.Constraint))
			m.setCoefficient(c, uint32(r.Constraint), r.Variable, 0)
		}
	}
	if ou := u.Objective; ou != nil {
		if ou.HasSense {
			m.UpdateObjectiveSense(ou.Sense)
		}
		if ou.HasOffset {
			m.obj.Offset = ou.Offset
			m.record(changeObjectiveOffset, "", 0, 0)
		}
		ou.Linear.ForEach(func(vid VariableID, val float64) bool {
			if val == 0 {
				m.setObjectiveLinear(vid, 0)
			}
			return true
		})
		ou.Quadratic.ForEach(func(key QuadKey, val float64) bool {
			if val == 0 {
				m.setObjectiveQuad(key, 0)
			}
			return true
		})
	}

	// deletions: atomic constraints, then linear constraints, then variables
	famNames := sortedFamilyNames(u.Families)
	for _, name := range famNames {
		fs := m.families[name]
		for _, id := range u.Families[name].Deleted {
			if err := fs.applyDelete(uint32(id)); err != nil {
				return err
			}
		}
	}
	for _, id := range u.DeletedConstraints {
		if err := m.DeleteLinearConstraint(id); err != nil {
			return err
		}
	}
	for _, id := range u.DeletedVariables {
		if err := m.DeleteVariable(id); err != nil {
			return err
		}
	}

	// bound updates on pre-existing elements
	for _, r := range u.VariableBounds {
		if err := m.UpdateVariableBounds(r.ID, r.Lower, r.Upper); err != nil {
			return err
		}
	}
	for _, r := range u.ConstraintBounds {
		if err := m.UpdateConstraintBounds(r.ID, r.Lower, r.Upper); err != nil {
			return err
		}
	}

	// additions; identifiers were assigned by the originating model, skipped
	// identifiers become tombstones
	for _, r := range u.AddedVariables {
		if err := m.vars.addAt(uint32(r.ID), Variable{Lower: r.Lower, Upper: r.Upper, Integer: r.Integer, Name: r.Name}); err != nil {
			return err
		}
		m.record(changeVariableAdded, "", uint32(r.ID), 0)
	}
	m.vars.reg.advance(uint32(u.NextVariableID))
	for uint32(len(m.varRefs)) < m.vars.reg.bound() {
		m.varRefs = append(m.varRefs, 0)
	}
	for _, r := range u.AddedConstraints {
		row, err := rowFromTerms(r.Row)
		if err != nil {
			return err
		}
		if err := m.cons.addAt(uint32(r.ID), LinearConstraint{Lower: r.Lower, Upper: r.Upper, Row: row, Name: r.Name}); err != nil {
			return err
		}
		for _, vid := range row.Keys {
			m.refInc(vid)
		}
		m.record(changeConstraintAdded, "", uint32(r.ID), 0)
	}
	m.cons.reg.advance(uint32(u.NextConstraintID))

	// remaining writes may reference the added variables
	for _, r := range u.Coefficients {
		if r.Value != 0 {
			c, _ := m.cons.get(uint32(r.Constraint))
			m.setCoefficient(c, uint32(r.Constraint), r.Variable, r.Value)
		}
	}
	if ou := u.Objective; ou != nil {
		ou.Linear.ForEach(func(vid VariableID, val float64) bool {
			if val != 0 {
				m.setObjectiveLinear(vid, val)
			}
			return true
		})
		ou.Quadratic.ForEach(func(key QuadKey, val float64) bool {
			if val != 0 {
				m.setObjectiveQuad(key, val)
			}
			return true
		})
	}
	for _, name := range famNames {
		fs := m.families[name]
		for _, rec := range u.Families[name].Added {
			if err := fs.applyAdd(uint32(rec.ID), rec.Data); err != nil {
				return err
			}
		}
		fs.advanceTo(u.Families[name].Bound)
	}

	return nil
}
