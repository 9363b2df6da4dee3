// Copyright 2020-2025 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package model

import (
	"golang.org/x/exp/constraints"

	"github.com/consensys/mathprog/internal/utils"
)

// SparseVec is an ordered, duplicate-free key→value container. Keys are kept in
// strictly ascending order, which makes iteration deterministic and two
// structurally equal containers encode byte-identical.
//
// The exported fields back serialization; callers must treat them as read-only
// and go through Set / Erase for mutation.
type SparseVec[K constraints.Integer, V any] struct {
	Keys   []K
	Values []V
}

func (s *SparseVec[K, V]) find(k K) (int, bool) {
	return utils.FindInSlice(s.Keys, k)
}

// Set inserts k→v at its sorted position, overwriting any previous value.
func (s *SparseVec[K, V]) Set(k K, v V) {
	i, found := s.find(k)
	if found {
		s.Values[i] = v
		return
	}
	var zero V
	s.Keys = append(s.Keys, k)
	s.Values = append(s.Values, zero)
	copy(s.Keys[i+1:], s.Keys[i:])
	copy(s.Values[i+1:], s.Values[i:])
	s.Keys[i] = k
	s.Values[i] = v
}

// Get returns the value associated with k.
func (s *SparseVec[K, V]) Get(k K) (V, bool) {
	if i, found := s.find(k); found {
		return s.Values[i], true
	}
	var zero V
	return zero, false
}

// Erase removes k and reports whether it was present.
func (s *SparseVec[K, V]) Erase(k K) bool {
	i, found := s.find(k)
	if !found {
		return false
	}
	s.Keys = append(s.Keys[:i], s.Keys[i+1:]...)
	s.Values = append(s.Values[:i], s.Values[i+1:]...)
	return true
}

// Len returns the number of entries.
func (s *SparseVec[K, V]) Len() int {
	return len(s.Keys)
}

// At returns the i-th entry in ascending key order.
func (s *SparseVec[K, V]) At(i int) (K, V) {
	return s.Keys[i], s.Values[i]
}

// ForEach calls fn on every entry in ascending key order. Iteration stops early
// if fn returns false.
func (s *SparseVec[K, V]) ForEach(fn func(K, V) bool) {
	for i := range s.Keys {
		if !fn(s.Keys[i], s.Values[i]) {
			return
		}
	}
}

// Clone returns a deep copy.
func (s *SparseVec[K, V]) Clone() SparseVec[K, V] {
	res := SparseVec[K, V]{
		Keys:   make([]K, len(s.Keys)),
		Values: make([]V, len(s.Values)),
	}
	copy(res.Keys, s.Keys)
	copy(res.Values, s.Values)
	return res
}

// Merge combines other into s. On key collision combine decides the resulting
// value; its error aborts the merge. s may be partially updated on error.
func (s *SparseVec[K, V]) Merge(other *SparseVec[K, V], combine func(old, new V) (V, error)) error {
	for i := range other.Keys {
		k, v := other.Keys[i], other.Values[i]
		if old, found := s.Get(k); found {
			merged, err := combine(old, v)
			if err != nil {
				return err
			}
			s.Set(k, merged)
			continue
		}
		s.Set(k, v)
	}
	return nil
}

// Replace is a merge policy that keeps the incoming value.
func Replace[V any](_, new V) (V, error) {
	return new, nil
}

// Sum is a merge policy that adds colliding values.
func Sum(old, new float64) (float64, error) {
	return old + new, nil
}

// FailOnCollision is a merge policy that rejects colliding keys.
func FailOnCollision[V any](old, _ V) (V, error) {
	return old, ErrDuplicateKey
}
