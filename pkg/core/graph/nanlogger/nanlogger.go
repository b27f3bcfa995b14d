// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nanlogger collects graph.Node objects to monitor for NaN ("not-a-number") or Inf
// (infinity) values, in their forward value or in their gradient.
//
// Numeric domain errors (Log or Sqrt of negative values, division by zero) are not reported by
// the graph package: they silently propagate. NanLogger reports the first traced node (in
// creation order) where such a value shows up, along with the stack trace of where the node was
// traced and an optional user set scope.
//
// Example:
//
//	nanLogger := nanlogger.New()
//	…
//	for ii, layer := range layers {
//		nanLogger.PushScope(fmt.Sprintf("layer-%d", ii))
//		x = layer.Forward(x)
//		nanLogger.Trace(x...)
//		nanLogger.PopScope()
//	}
//	graph.Backward(loss)
//	if err := nanLogger.Check(); err != nil {
//		…
//	}
//	nanLogger.Reset()
package nanlogger

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/gomlx/scalargrad/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// NanLogger monitors selected nodes for NaN (and Inf) values.
// You manually select the nodes you want to monitor with Trace, and it saves the stack where it
// was called along with the scope. Check then looks for the first non-finite value and calls
// the handler, by default DefaultHandler.
//
// A nil NanLogger is valid, and all its methods are no-ops.
type NanLogger struct {
	handler      HandlerFn
	traces       []*Trace
	currentScope []string
}

// Trace information of a node that is set to monitor.
// This is what is logged when a NaN is found, or passed to a handler function, if one is set.
type Trace struct {
	// Node being monitored.
	Node *graph.Node

	// StackTrace of where the node was traced, stored as an error that can be printed with "%+v".
	StackTrace error

	// Scope saved when the node was traced.
	Scope []string

	// Value is the non-finite value observed, filled when the trace is passed to the handler.
	Value float64

	// IsGrad is set if the non-finite value observed was the gradient of the node, as opposed
	// to its forward value.
	IsGrad bool
}

// HandlerFn is the type of function to handle NaN traces.
type HandlerFn func(info *Trace)

// New creates a NanLogger that can be used to debug where NaN happen in graphs.
// See NanLogger for details.
func New() *NanLogger {
	return &NanLogger{
		handler: DefaultHandler,
	}
}

// WithHandler sets the function called when a NaN is observed, and returns the NanLogger.
// The default is DefaultHandler which logs the information on the node.
func (l *NanLogger) WithHandler(handler HandlerFn) *NanLogger {
	if l == nil {
		return nil
	}
	l.handler = handler
	return l
}

// Trace the given nodes: they are checked by the next Check calls, until Reset is called.
//
// The nodes are traced with the current NanLogger scope, see PushScope.
func (l *NanLogger) Trace(nodes ...*graph.Node) {
	l.TraceWithScope(nil, nodes...)
}

// TraceWithScope traces the given nodes with the given scope, instead of the current one.
// If scope is empty, the current scope is used.
func (l *NanLogger) TraceWithScope(scope []string, nodes ...*graph.Node) {
	if l == nil {
		return
	}
	if len(scope) == 0 {
		scope = l.currentScope
	}
	for _, node := range nodes {
		if node == nil || node.Graph() == nil {
			continue
		}
		l.traces = append(l.traces, &Trace{
			Node:       node,
			StackTrace: errors.Errorf("Stack-trace"),
			Scope:      slices.Clone(scope),
		})
	}
}

// PushScope to current scope stack.
// These values are added by default to any new Trace.
func (l *NanLogger) PushScope(scope string) {
	if l == nil {
		return
	}
	l.currentScope = append(l.currentScope, scope)
}

// PopScope removes the last entry in the current scope stack.
func (l *NanLogger) PopScope() {
	if l == nil {
		return
	}
	if len(l.currentScope) == 0 {
		klog.Warningf("NanLogger.PopScope() called on an already empty scope stack!?")
		return
	}
	_, l.currentScope = xslices.Pop(l.currentScope)
}

// NumTraced returns the number of nodes currently traced.
func (l *NanLogger) NumTraced() int {
	if l == nil {
		return 0
	}
	return len(l.traces)
}

// Reset drops all traced nodes. Call it when the traced nodes are released (see graph.Graph.Release).
// The scope stack is preserved.
func (l *NanLogger) Reset() {
	if l == nil {
		return
	}
	clear(l.traces)
	l.traces = l.traces[:0]
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Check the values and then the gradients of the traced nodes. If a NaN or Inf is found, the
// handler is called with the first offending node (by creation order), and an error describing
// it is returned. Nodes released since they were traced are ignored.
func (l *NanLogger) Check() error {
	if l == nil {
		return nil
	}
	var first *Trace
	for _, isGrad := range []bool{false, true} {
		for _, trace := range l.traces {
			node := trace.Node
			if node.Graph() == nil {
				continue
			}
			v := node.Value()
			if isGrad {
				v = node.Grad()
			}
			if isFinite(v) {
				continue
			}
			if first == nil || node.Id() < first.Node.Id() {
				first = trace
				first.Value = v
				first.IsGrad = isGrad
			}
		}
		if first != nil {
			break
		}
	}
	if first == nil {
		return nil
	}
	if l.handler != nil {
		l.handler(first)
	}
	return errors.Errorf("NanLogger observed %s", describe(first))
}

func describe(info *Trace) string {
	what := "value"
	if info.IsGrad {
		what = "gradient"
	}
	var scopeTxt string
	if len(info.Scope) > 0 {
		scopeTxt = fmt.Sprintf(" in scope %q", strings.Join(info.Scope, "/"))
	}
	return fmt.Sprintf("%s %g in node %s%s", what, info.Value, info.Node, scopeTxt)
}

// DefaultHandler when a NaN or Inf is observed: it logs all the information available on the node.
func DefaultHandler(info *Trace) {
	klog.Errorf("NanLogger observed %s -- stack-trace of node:\n%+v\n", describe(info), info.StackTrace)
}
