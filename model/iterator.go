package model

// VariableIterator walks live variables in ascending identifier order.
type VariableIterator struct {
	m      *Model
	cursor uint
}

// Variables returns an iterator over live variables in canonical order.
func (m *Model) Variables() *VariableIterator {
	return &VariableIterator{m: m}
}

// Next returns the next live variable, or false when done.
func (it *VariableIterator) Next() (VariableID, Variable, bool) {
	i, ok := it.m.vars.reg.live.NextSet(it.cursor)
	if !ok {
		return 0, Variable{}, false
	}
	it.cursor = i + 1
	return VariableID(i), it.m.vars.slots[i], true
}

// LinearConstraintIterator walks live linear constraints in ascending
// identifier order.
type LinearConstraintIterator struct {
	m      *Model
	cursor uint
}

// LinearConstraints returns an iterator over live constraints in canonical
// order.
func (m *Model) LinearConstraints() *LinearConstraintIterator {
	return &LinearConstraintIterator{m: m}
}

// Next returns a copy of the next live constraint, or false when done.
func (it *LinearConstraintIterator) Next() (ConstraintID, LinearConstraint, bool) {
	i, ok := it.m.cons.reg.live.NextSet(it.cursor)
	if !ok {
		return 0, LinearConstraint{}, false
	}
	it.cursor = i + 1
	return ConstraintID(i), it.m.cons.slots[i].clone(), true
}
