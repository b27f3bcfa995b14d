// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package context

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/scalargrad/pkg/core/graph"
)

// Variable is a learnable scalar of a model, defined in a scope in a Context.
//
// Its value lives in a leaf graph.Node of the Context's graph, so it can be used directly as an
// operand when building the model, and its gradient is available after graph.Backward.
// Optimizers update it in place with SetValue, preserving the node identity.
type Variable struct {
	ctx         *Context
	name, scope string

	// Trainable indicates whether the variable is trainable.
	// If set to false, it won't be touched by trainers.
	Trainable bool

	node *graph.Node
}

// Name of the variable within the scope.
func (v *Variable) Name() string {
	v.AssertValid()
	return v.name
}

// Scope where the variable was created.
func (v *Variable) Scope() string {
	v.AssertValid()
	return v.scope
}

// ScopeAndName is a convenience function that returns the combined scope and name of the variable.
func (v *Variable) ScopeAndName() string {
	v.AssertValid()
	return JoinScope(v.scope, v.name)
}

// String implements stringer.
func (v *Variable) String() string {
	if v == nil {
		return "Variable(nil)"
	}
	return fmt.Sprintf("%s=%g", JoinScope(v.scope, v.name), v.node.Value())
}

// AssertValid panics if the variable is in an invalid state.
func (v *Variable) AssertValid() {
	if v == nil {
		Panicf("context.Variable is nil")
	}
	if v.node == nil || v.node.Graph() == nil {
		Panicf("context.Variable %q has no valid node: was the graph released past its creation?",
			JoinScope(v.scope, v.name))
	}
}

// Node returns the leaf node holding the variable's value, to be used when building the model.
func (v *Variable) Node() *graph.Node {
	v.AssertValid()
	return v.node
}

// Value returns the current value of the variable.
func (v *Variable) Value() float64 {
	v.AssertValid()
	return v.node.Value()
}

// SetValue updates the value of the variable in place.
func (v *Variable) SetValue(value float64) {
	v.AssertValid()
	v.node.SetValue(value)
}

// Grad returns the gradient accumulated in the variable's node.
func (v *Variable) Grad() float64 {
	v.AssertValid()
	return v.node.Grad()
}

// SetTrainable sets the variable trainable status. Returns itself, so calls can be cascaded.
func (v *Variable) SetTrainable(trainable bool) *Variable {
	v.AssertValid()
	v.Trainable = trainable
	return v
}
