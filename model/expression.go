// Copyright 2020-2025 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// A LinearExpression is a sparse linear combination of Term plus a constant
// offset. Terms are kept in strictly ascending VID order with no duplicates.
//
// A LinearExpression is a value type; once attached to a constraint it is never
// mutated in place, only replaced wholesale.
type LinearExpression struct {
	Terms  []Term
	Offset float64
}

// NewLinearExpression canonicalizes terms into a LinearExpression. It fails
// with ErrDuplicateKey if two terms name the same variable and with
// ErrInvalidCoefficient if a coefficient or the offset is NaN or infinite.
// Zero-coefficient terms are dropped.
func NewLinearExpression(offset float64, terms ...Term) (LinearExpression, error) {
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return LinearExpression{}, fmt.Errorf("expression offset %v: %w", offset, ErrInvalidCoefficient)
	}
	res := LinearExpression{Offset: offset, Terms: make([]Term, 0, len(terms))}
	for _, t := range terms {
		if !t.isValid() {
			return LinearExpression{}, fmt.Errorf("coefficient %v on variable %d: %w", t.Coeff, t.VID, ErrInvalidCoefficient)
		}
		if t.Coeff != 0 {
			res.Terms = append(res.Terms, t)
		}
	}
	sort.Slice(res.Terms, func(i, j int) bool { return res.Terms[i].VID < res.Terms[j].VID })
	for i := 1; i < len(res.Terms); i++ {
		if res.Terms[i].VID == res.Terms[i-1].VID {
			return LinearExpression{}, fmt.Errorf("variable %d appears twice: %w", res.Terms[i].VID, ErrDuplicateKey)
		}
	}
	return res, nil
}

// Clone returns a copy of the expression with its own term slice.
func (l LinearExpression) Clone() LinearExpression {
	res := LinearExpression{Offset: l.Offset, Terms: make([]Term, len(l.Terms))}
	copy(res.Terms, l.Terms)
	return res
}

// isCanonical reports whether terms are strictly ascending, duplicate-free and
// finite. Decoded expressions are re-checked by the validator with this.
func (l LinearExpression) isCanonical() bool {
	if math.IsNaN(l.Offset) || math.IsInf(l.Offset, 0) {
		return false
	}
	for i, t := range l.Terms {
		if !t.isValid() || t.Coeff == 0 {
			return false
		}
		if i > 0 && t.VID <= l.Terms[i-1].VID {
			return false
		}
	}
	return true
}

func (l LinearExpression) String() string {
	var sbb strings.Builder
	for i, t := range l.Terms {
		if i > 0 {
			sbb.WriteString(" + ")
		}
		fmt.Fprintf(&sbb, "%v*v%d", t.Coeff, t.VID)
	}
	if l.Offset != 0 || len(l.Terms) == 0 {
		if len(l.Terms) > 0 {
			sbb.WriteString(" + ")
		}
		fmt.Fprintf(&sbb, "%v", l.Offset)
	}
	return sbb.String()
}

func (l LinearExpression) equal(other LinearExpression) bool {
	if l.Offset != other.Offset || len(l.Terms) != len(other.Terms) {
		return false
	}
	for i := range l.Terms {
		if l.Terms[i] != other.Terms[i] {
			return false
		}
	}
	return true
}
