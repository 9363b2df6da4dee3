package model

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// Entity family names used in validation reports for the core families.
const (
	FamilyVariables         = "variables"
	FamilyLinearConstraints = "linear_constraints"
	FamilyObjective         = "objective"
)

// Violation describes one violated invariant with enough context to diagnose
// it without re-scanning the model.
type Violation struct {
	Family string
	ID     uint32
	Key    uint64
	Err    error
	Msg    string
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s[%d]: %s: %v", v.Family, v.ID, v.Msg, v.Err)
}

func (v Violation) Unwrap() error { return v.Err }

// ValidationResult aggregates every violated invariant found in one pass, so a
// caller can fix a batch of issues at once.
type ValidationResult struct {
	Violations []Violation
}

// Ok reports whether no invariant was violated.
func (r ValidationResult) Ok() bool { return len(r.Violations) == 0 }

// Err returns the first violation, or nil.
func (r ValidationResult) Err() error {
	if r.Ok() {
		return nil
	}
	return r.Violations[0]
}

func (r *ValidationResult) add(family string, id uint32, key uint64, err error, format string, args ...any) {
	r.Violations = append(r.Violations, Violation{
		Family: family, ID: id, Key: key, Err: err, Msg: fmt.Sprintf(format, args...),
	})
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// checkSparse verifies canonical form of a sparse container: strictly
// ascending keys and finite values.
func checkSparse[K constraints.Integer](res *ValidationResult, family string, id uint32, s *SparseVec[K, float64]) {
	for i := range s.Keys {
		if i > 0 && s.Keys[i] <= s.Keys[i-1] {
			res.add(family, id, uint64(s.Keys[i]), ErrDuplicateKey, "keys out of order")
		}
		if !finite(s.Values[i]) {
			res.add(family, id, uint64(s.Keys[i]), ErrInvalidCoefficient, "coefficient %v", s.Values[i])
		}
	}
}

// Validate walks every structural invariant of the model in a fixed order:
// bounds first, then sparse-container canonical form, then referential
// integrity, then per-family shape rules. It never mutates its input and is
// safe to call concurrently with other readers.
func Validate(m *Model) ValidationResult {
	var res ValidationResult

	// bounds
	m.vars.forEach(func(id uint32, v *Variable) bool {
		if err := checkBounds(v.Lower, v.Upper); err != nil {
			res.add(FamilyVariables, id, 0, ErrInvalidBounds, "bounds [%v, %v]", v.Lower, v.Upper)
		}
		return true
	})
	m.cons.forEach(func(id uint32, c *LinearConstraint) bool {
		if err := checkBounds(c.Lower, c.Upper); err != nil {
			res.add(FamilyLinearConstraints, id, 0, ErrInvalidBounds, "bounds [%v, %v]", c.Lower, c.Upper)
		}
		return true
	})

	// canonical sparse form
	m.cons.forEach(func(id uint32, c *LinearConstraint) bool {
		checkSparse(&res, FamilyLinearConstraints, id, &c.Row)
		return true
	})
	checkSparse(&res, FamilyObjective, 0, &m.obj.Linear)
	checkSparse(&res, FamilyObjective, 0, &m.obj.Quadratic)
	if !finite(m.obj.Offset) {
		res.add(FamilyObjective, 0, 0, ErrInvalidCoefficient, "offset %v", m.obj.Offset)
	}
	for _, key := range m.obj.Quadratic.Keys {
		if a, b := key.Vars(); a > b {
			res.add(FamilyObjective, 0, uint64(key), ErrDuplicateKey, "pair (%d, %d) not canonical", a, b)
		}
	}

	// referential integrity
	m.cons.forEach(func(id uint32, c *LinearConstraint) bool {
		for _, vid := range c.Row.Keys {
			if !m.vars.reg.isLive(uint32(vid)) {
				res.add(FamilyLinearConstraints, id, uint64(vid), ErrDanglingReference, "row references variable %d", vid)
			}
		}
		return true
	})
	for _, vid := range m.obj.Linear.Keys {
		if !m.vars.reg.isLive(uint32(vid)) {
			res.add(FamilyObjective, 0, uint64(vid), ErrDanglingReference, "term references variable %d", vid)
		}
	}
	for _, key := range m.obj.Quadratic.Keys {
		a, b := key.Vars()
		if !m.vars.reg.isLive(uint32(a)) || !m.vars.reg.isLive(uint32(b)) {
			res.add(FamilyObjective, 0, uint64(key), ErrDanglingReference, "term references pair (%d, %d)", a, b)
		}
	}
	for _, name := range m.FamilyNames() {
		fs := m.families[name]
		fs.forEachOperands(func(id uint32, ops []LinearExpression) bool {
			for _, op := range ops {
				if err := checkExpression(op); err != nil {
					res.add(name, id, 0, err, "operand not canonical")
					continue
				}
				for _, t := range op.Terms {
					if !m.vars.reg.isLive(uint32(t.VID)) {
						res.add(name, id, uint64(t.VID), ErrDanglingReference, "operand references variable %d", t.VID)
					}
				}
			}
			return true
		})
	}

	// family shape rules
	for _, name := range m.FamilyNames() {
		fs := m.families[name]
		fs.forEachOperands(func(id uint32, _ []LinearExpression) bool {
			if err := fs.shapeCheck(id); err != nil {
				res.add(name, id, 0, ErrFamilyShapeViolation, "%v", err)
			}
			return true
		})
	}

	return res
}

func ascending[T constraints.Ordered](xs []T) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return false
		}
	}
	return true
}

// ValidateUpdate confirms that the update is internally consistent and
// applicable to the model in its current state: bounds first, then identifier
// and reference integrity, then family shape rules. It never mutates model or
// update.
func ValidateUpdate(m *Model, u *ModelUpdate) ValidationResult {
	var res ValidationResult
	sum := m.Summary()

	// cheap cursor prechecks against the summary
	if uint32(u.NextVariableID) < sum.Variables.NextID {
		res.add(FamilyVariables, uint32(u.NextVariableID), 0, ErrInvalidReference, "allocation cursor behind model (%d < %d)", u.NextVariableID, sum.Variables.NextID)
	}
	if uint32(u.NextConstraintID) < sum.LinearConstraints.NextID {
		res.add(FamilyLinearConstraints, uint32(u.NextConstraintID), 0, ErrInvalidReference, "allocation cursor behind model (%d < %d)", u.NextConstraintID, sum.LinearConstraints.NextID)
	}

	// bounds and coefficient finiteness
	for _, r := range u.AddedVariables {
		if checkBounds(r.Lower, r.Upper) != nil {
			res.add(FamilyVariables, uint32(r.ID), 0, ErrInvalidBounds, "bounds [%v, %v]", r.Lower, r.Upper)
		}
	}
	for _, r := range u.VariableBounds {
		if checkBounds(r.Lower, r.Upper) != nil {
			res.add(FamilyVariables, uint32(r.ID), 0, ErrInvalidBounds, "bounds [%v, %v]", r.Lower, r.Upper)
		}
	}
	for _, r := range u.AddedConstraints {
		if checkBounds(r.Lower, r.Upper) != nil {
			res.add(FamilyLinearConstraints, uint32(r.ID), 0, ErrInvalidBounds, "bounds [%v, %v]", r.Lower, r.Upper)
		}
		for i, t := range r.Row {
			if !t.isValid() || t.Coeff == 0 {
				res.add(FamilyLinearConstraints, uint32(r.ID), uint64(t.VID), ErrInvalidCoefficient, "coefficient %v", t.Coeff)
			}
			if i > 0 && t.VID <= r.Row[i-1].VID {
				res.add(FamilyLinearConstraints, uint32(r.ID), uint64(t.VID), ErrDuplicateKey, "row out of order")
			}
		}
	}
	for _, r := range u.ConstraintBounds {
		if checkBounds(r.Lower, r.Upper) != nil {
			res.add(FamilyLinearConstraints, uint32(r.ID), 0, ErrInvalidBounds, "bounds [%v, %v]", r.Lower, r.Upper)
		}
	}
	for _, r := range u.Coefficients {
		if !finite(r.Value) {
			res.add(FamilyLinearConstraints, uint32(r.Constraint), uint64(r.Variable), ErrInvalidCoefficient, "coefficient %v", r.Value)
		}
	}
	if ou := u.Objective; ou != nil {
		if ou.HasOffset && !finite(ou.Offset) {
			res.add(FamilyObjective, 0, 0, ErrInvalidCoefficient, "offset %v", ou.Offset)
		}
		for i := range ou.Linear.Keys {
			if !finite(ou.Linear.Values[i]) {
				res.add(FamilyObjective, 0, uint64(ou.Linear.Keys[i]), ErrInvalidCoefficient, "coefficient %v", ou.Linear.Values[i])
			}
		}
		for i := range ou.Quadratic.Keys {
			if !finite(ou.Quadratic.Values[i]) {
				res.add(FamilyObjective, 0, uint64(ou.Quadratic.Keys[i]), ErrInvalidCoefficient, "coefficient %v", ou.Quadratic.Values[i])
			}
		}
	}

	// identifier and reference integrity
	deletedVars := make(map[VariableID]struct{}, len(u.DeletedVariables))
	addedVars := make(map[VariableID]struct{}, len(u.AddedVariables))
	deletedCons := make(map[ConstraintID]struct{}, len(u.DeletedConstraints))

	if !ascending(u.DeletedVariables) {
		res.add(FamilyVariables, 0, 0, ErrInvalidReference, "deleted identifiers not ascending")
	}
	for _, id := range u.DeletedVariables {
		deletedVars[id] = struct{}{}
		if !m.vars.reg.isLive(uint32(id)) {
			res.add(FamilyVariables, uint32(id), 0, ErrInvalidReference, "deleting a non-live variable")
		}
	}
	prev := int64(-1)
	for _, r := range u.AddedVariables {
		addedVars[r.ID] = struct{}{}
		if int64(r.ID) <= prev || uint32(r.ID) < sum.Variables.NextID || r.ID >= u.NextVariableID {
			res.add(FamilyVariables, uint32(r.ID), 0, ErrInvalidReference, "added identifier out of range")
		}
		prev = int64(r.ID)
	}
	for _, r := range u.VariableBounds {
		if _, ok := addedVars[r.ID]; ok {
			res.add(FamilyVariables, uint32(r.ID), 0, ErrInvalidReference, "bounds record on an added variable")
			continue
		}
		if !m.vars.reg.isLive(uint32(r.ID)) {
			res.add(FamilyVariables, uint32(r.ID), 0, ErrDanglingReference, "bounds record on a non-live variable")
		}
		if _, ok := deletedVars[r.ID]; ok {
			res.add(FamilyVariables, uint32(r.ID), 0, ErrInvalidReference, "bounds record on a deleted variable")
		}
	}

	// a variable is live after the update if it survives deletion or is added
	liveAfter := func(vid VariableID) bool {
		if _, ok := addedVars[vid]; ok {
			return true
		}
		if _, ok := deletedVars[vid]; ok {
			return false
		}
		return m.vars.reg.isLive(uint32(vid))
	}

	if !ascending(u.DeletedConstraints) {
		res.add(FamilyLinearConstraints, 0, 0, ErrInvalidReference, "deleted identifiers not ascending")
	}
	for _, id := range u.DeletedConstraints {
		deletedCons[id] = struct{}{}
		if !m.cons.reg.isLive(uint32(id)) {
			res.add(FamilyLinearConstraints, uint32(id), 0, ErrInvalidReference, "deleting a non-live constraint")
		}
	}
	prev = int64(-1)
	for _, r := range u.AddedConstraints {
		if int64(r.ID) <= prev || uint32(r.ID) < sum.LinearConstraints.NextID || r.ID >= u.NextConstraintID {
			res.add(FamilyLinearConstraints, uint32(r.ID), 0, ErrInvalidReference, "added identifier out of range")
		}
		prev = int64(r.ID)
		for _, t := range r.Row {
			if !liveAfter(t.VID) {
				res.add(FamilyLinearConstraints, uint32(r.ID), uint64(t.VID), ErrDanglingReference, "row references variable %d", t.VID)
			}
		}
	}
	for _, r := range u.ConstraintBounds {
		if !m.cons.reg.isLive(uint32(r.ID)) {
			res.add(FamilyLinearConstraints, uint32(r.ID), 0, ErrDanglingReference, "bounds record on a non-live constraint")
		}
		if _, ok := deletedCons[r.ID]; ok {
			res.add(FamilyLinearConstraints, uint32(r.ID), 0, ErrInvalidReference, "bounds record on a deleted constraint")
		}
	}
	for _, r := range u.Coefficients {
		if !m.cons.reg.isLive(uint32(r.Constraint)) {
			res.add(FamilyLinearConstraints, uint32(r.Constraint), uint64(r.Variable), ErrDanglingReference, "coefficient on a non-live constraint")
			continue
		}
		if _, ok := deletedCons[r.Constraint]; ok {
			res.add(FamilyLinearConstraints, uint32(r.Constraint), uint64(r.Variable), ErrInvalidReference, "coefficient on a deleted constraint")
		}
		if _, ok := deletedVars[r.Variable]; ok {
			if r.Value != 0 {
				res.add(FamilyLinearConstraints, uint32(r.Constraint), uint64(r.Variable), ErrDanglingReference, "non-zero coefficient on deleted variable %d", r.Variable)
			}
			continue
		}
		if !liveAfter(r.Variable) {
			res.add(FamilyLinearConstraints, uint32(r.Constraint), uint64(r.Variable), ErrDanglingReference, "coefficient references variable %d", r.Variable)
		}
	}
	if ou := u.Objective; ou != nil {
		for i := range ou.Linear.Keys {
			vid, val := ou.Linear.Keys[i], ou.Linear.Values[i]
			if _, ok := deletedVars[vid]; ok {
				if val != 0 {
					res.add(FamilyObjective, 0, uint64(vid), ErrDanglingReference, "non-zero term on deleted variable %d", vid)
				}
				continue
			}
			if !liveAfter(vid) {
				res.add(FamilyObjective, 0, uint64(vid), ErrDanglingReference, "term references variable %d", vid)
			}
		}
		for i := range ou.Quadratic.Keys {
			key, val := ou.Quadratic.Keys[i], ou.Quadratic.Values[i]
			a, b := key.Vars()
			if a > b {
				res.add(FamilyObjective, 0, uint64(key), ErrDuplicateKey, "pair (%d, %d) not canonical", a, b)
				continue
			}
			_, aDel := deletedVars[a]
			_, bDel := deletedVars[b]
			if aDel || bDel {
				if val != 0 {
					res.add(FamilyObjective, 0, uint64(key), ErrDanglingReference, "non-zero term on deleted pair (%d, %d)", a, b)
				}
				continue
			}
			if !liveAfter(a) || !liveAfter(b) {
				res.add(FamilyObjective, 0, uint64(key), ErrDanglingReference, "term references pair (%d, %d)", a, b)
			}
		}
	}

	// deleting a variable requires every live reference to be released by this
	// same update
	if len(deletedVars) > 0 {
		coeffZero := make(map[uint64]struct{})
		for _, r := range u.Coefficients {
			if r.Value == 0 {
				coeffZero[uint64(r.Constraint)<<32|uint64(r.Variable)] = struct{}{}
			}
		}
		m.cons.forEach(func(id uint32, c *LinearConstraint) bool {
			if _, ok := deletedCons[ConstraintID(id)]; ok {
				return true
			}
			for _, vid := range c.Row.Keys {
				if _, ok := deletedVars[vid]; !ok {
					continue
				}
				if _, ok := coeffZero[uint64(id)<<32|uint64(vid)]; !ok {
					res.add(FamilyVariables, uint32(vid), uint64(id), ErrReferencedElement, "still referenced by constraint %d", id)
				}
			}
			return true
		})
		objZero := func(vid VariableID) bool {
			if u.Objective == nil {
				return false
			}
			val, ok := u.Objective.Linear.Get(vid)
			return ok && val == 0
		}
		for _, vid := range m.obj.Linear.Keys {
			if _, ok := deletedVars[vid]; ok && !objZero(vid) {
				res.add(FamilyVariables, uint32(vid), 0, ErrReferencedElement, "still referenced by the objective")
			}
		}
		for _, key := range m.obj.Quadratic.Keys {
			a, b := key.Vars()
			_, aDel := deletedVars[a]
			_, bDel := deletedVars[b]
			if !aDel && !bDel {
				continue
			}
			zeroed := false
			if u.Objective != nil {
				if val, ok := u.Objective.Quadratic.Get(key); ok && val == 0 {
					zeroed = true
				}
			}
			if !zeroed {
				res.add(FamilyVariables, uint32(a), uint64(key), ErrReferencedElement, "still referenced by a quadratic objective term")
			}
		}
		for _, name := range m.FamilyNames() {
			fs := m.families[name]
			famDeleted := make(map[uint32]struct{})
			if fu, ok := u.Families[name]; ok {
				for _, id := range fu.Deleted {
					famDeleted[uint32(id)] = struct{}{}
				}
			}
			fs.forEachOperands(func(id uint32, ops []LinearExpression) bool {
				if _, ok := famDeleted[id]; ok {
					return true
				}
				for _, op := range ops {
					for _, t := range op.Terms {
						if _, ok := deletedVars[t.VID]; ok {
							res.add(name, id, uint64(t.VID), ErrReferencedElement, "operand still references variable %d", t.VID)
						}
					}
				}
				return true
			})
		}
	}

	// atomic family sections
	for _, name := range sortedFamilyNames(u.Families) {
		fu := u.Families[name]
		fs, ok := m.families[name]
		if !ok {
			res.add(name, 0, 0, ErrDanglingReference, "family not registered on this model")
			continue
		}
		if !ascending(fu.Deleted) {
			res.add(name, 0, 0, ErrInvalidReference, "deleted identifiers not ascending")
		}
		for _, id := range fu.Deleted {
			if !fs.isLive(uint32(id)) {
				res.add(name, uint32(id), 0, ErrInvalidReference, "deleting a non-live constraint")
			}
		}
		if fu.Bound < fs.bound() {
			res.add(name, fu.Bound, 0, ErrInvalidReference, "allocation cursor behind model (%d < %d)", fu.Bound, fs.bound())
		}
		prev = int64(-1)
		for _, rec := range fu.Added {
			if int64(rec.ID) <= prev || uint32(rec.ID) < fs.bound() || uint32(rec.ID) >= fu.Bound {
				res.add(name, uint32(rec.ID), 0, ErrInvalidReference, "added identifier out of range")
			}
			prev = int64(rec.ID)
			ops, err := fs.payloadOperands(rec.Data)
			if err != nil {
				res.add(name, uint32(rec.ID), 0, ErrFamilyShapeViolation, "%v", err)
				continue
			}
			for _, op := range ops {
				if err := checkExpression(op); err != nil {
					res.add(name, uint32(rec.ID), 0, err, "operand not canonical")
					continue
				}
				for _, t := range op.Terms {
					if !liveAfter(t.VID) {
						res.add(name, uint32(rec.ID), uint64(t.VID), ErrDanglingReference, "operand references variable %d", t.VID)
					}
				}
			}
		}
	}

	// family shape rules last
	for _, name := range sortedFamilyNames(u.Families) {
		fs, ok := m.families[name]
		if !ok {
			continue
		}
		for _, rec := range u.Families[name].Added {
			if err := fs.payloadShape(rec.Data); err != nil {
				res.add(name, uint32(rec.ID), 0, ErrFamilyShapeViolation, "%v", err)
			}
		}
	}

	return res
}
