// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide missing functionality to the slices package.
package xslices

import (
	"cmp"
	"maps"
	"slices"

	"golang.org/x/exp/constraints"
)

// Number is any integer or float type.
type Number interface {
	constraints.Integer | constraints.Float
}

// Last returns the last element of a non-empty slice.
func Last[T any](slice []T) T {
	return slice[len(slice)-1]
}

// Pop removes the last element of the slice and returns it along with the shortened slice.
// An empty slice is returned unchanged along with the zero value of T.
func Pop[T any](slice []T) (last T, rest []T) {
	if len(slice) == 0 {
		return last, slice
	}
	return slice[len(slice)-1], slice[:len(slice)-1]
}

// SliceWithValue creates a slice of given size filled with given value.
func SliceWithValue[T any](size int, value T) []T {
	s := make([]T, size)
	for ii := range s {
		s[ii] = value
	}
	return s
}

// Iota returns n incremental values starting at start. E.g.: Iota(3.0, 2) -> []float64{3.0, 4.0}
func Iota[T Number](start T, n int) []T {
	s := make([]T, n)
	for ii := range s {
		s[ii] = start + T(ii)
	}
	return s
}

// Map returns fn applied to each element of in.
func Map[In, Out any](in []In, fn func(e In) Out) []Out {
	out := make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return out
}

// Median returns the median element of the slice: for an even number of elements it takes the
// upper of the two middle ones. It returns the zero value if the slice is empty.
// The slice itself is not changed.
func Median[T cmp.Ordered](slice []T) (median T) {
	if len(slice) == 0 {
		return
	}
	sorted := slices.Sorted(slices.Values(slice))
	return sorted[len(sorted)/2]
}

// ArgMax returns the index of the largest value of the slice, the first one on ties.
// It returns -1 if the slice is empty.
func ArgMax[T cmp.Ordered](slice []T) int {
	if len(slice) == 0 {
		return -1
	}
	best := 0
	for ii, v := range slice[1:] {
		if v > slice[best] {
			best = ii + 1
		}
	}
	return best
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}
