// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLastAndPop(t *testing.T) {
	stack := []string{"a", "b", "c"}
	assert.Equal(t, "c", Last(stack))

	top, stack := Pop(stack)
	assert.Equal(t, "c", top)
	assert.Equal(t, []string{"a", "b"}, stack)

	topInt, rest := Pop([]int{})
	assert.Equal(t, 0, topInt)
	assert.Empty(t, rest)
}

func TestIotaAndMap(t *testing.T) {
	assert.Equal(t, []float64{3, 4}, Iota(3.0, 2))
	assert.Empty(t, Iota(1, 0))
	assert.Equal(t, []string{"0", "1", "2"}, Map(Iota(0, 3), strconv.Itoa))
	assert.Equal(t, []float32{7, 7, 7}, SliceWithValue[float32](3, 7))
}

func TestMedianAndArgMax(t *testing.T) {
	assert.Equal(t, 3*time.Second, Median([]time.Duration{5 * time.Second, time.Second, 3 * time.Second}))
	assert.Equal(t, 3, Median([]int{4, 1, 3, 2}))
	assert.Equal(t, 0, Median([]int{}))

	// Median doesn't change its input.
	durations := []int{3, 1, 2}
	_ = Median(durations)
	assert.Equal(t, []int{3, 1, 2}, durations)

	assert.Equal(t, 2, ArgMax([]float64{0.1, 0.5, 0.7, 0.7}))
	assert.Equal(t, -1, ArgMax([]float64{}))
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"b": 2, "a": 1, "c": 3}))
	assert.Empty(t, SortedKeys(map[float64]bool{}))
}
