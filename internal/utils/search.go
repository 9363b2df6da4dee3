package utils

import (
	"sort"

	"golang.org/x/exp/constraints"
)

// FindInSlice attempts to find the target in increasing slice x.
// If not found, returns false and the index where the target would be inserted.
func FindInSlice[T constraints.Ordered](x []T, target T) (int, bool) {
	return sort.Find(len(x), func(i int) int {
		switch {
		case target < x[i]:
			return -1
		case target > x[i]:
			return 1
		default:
			return 0
		}
	})
}

// InsertInSlice inserts target at its sorted position in increasing slice x,
// if not already present.
func InsertInSlice[T constraints.Ordered](x []T, target T) []T {
	i, found := FindInSlice(x, target)
	if found {
		return x
	}
	x = append(x, target)
	copy(x[i+1:], x[i:])
	x[i] = target
	return x
}
