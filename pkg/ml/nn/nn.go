// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nn holds the neural network building blocks: Neuron, Layer and MLP (multi-layer perceptron).
//
// They all implement Module, and are composed by containment: a Layer holds Neurons, an MLP holds Layers.
// The learnable parameters are context.Variable objects created in the context passed at construction, so
// they survive across training steps, while the expression built by Forward is rebuilt at every step.
//
// E.g.: a classifier with one hidden layer:
//
//	ctx := context.New()
//	mlp := nn.NewMLP(ctx.In("model"), 54, []int{64, 27},
//		[]activations.Type{activations.TypeRelu, activations.TypeNone})
//	logits := mlp.Forward(inputs)
package nn

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/gomlx/scalargrad/pkg/ml/layers/activations"
	"github.com/gomlx/scalargrad/pkg/support/xslices"
)

const (
	// ParamHiddenLayers is the hyperparameter with the number of neurons of each hidden layer of an MLP
	// created with NewMLPFromContext. The default is no hidden layers ([]int{}).
	ParamHiddenLayers = "hidden_layers"

	// ParamOutputActivation is the hyperparameter with the activation applied to the output layer of an
	// MLP created with NewMLPFromContext. The default is "none", so the outputs are logits.
	ParamOutputActivation = "output_activation"
)

// Module is implemented by every building block.
type Module interface {
	// Forward builds the expression of the module applied to the inputs x, and returns its outputs.
	Forward(x []*Node) []*Node

	// Parameters returns the nodes of the learnable parameters of the module.
	Parameters() []*Node
}

// Neuron computes activation(Σ wᵢxᵢ + b).
type Neuron struct {
	weights    []*context.Variable
	bias       *context.Variable
	activation activations.Type
}

var _ Module = (*Neuron)(nil)

// NewNeuron creates a neuron with dimIn weights, named "w_<i>", and a bias "b" in the current scope of ctx.
//
// Weights are initialized with the context initializer (see context.Context.WithInitializer) for fan-in dimIn,
// the bias is initialized with 0. If the variables already exist and ctx is set to Reuse, they are reused.
func NewNeuron(ctx *context.Context, dimIn int, activation activations.Type) *Neuron {
	if dimIn <= 0 {
		Panicf("nn.NewNeuron(dimIn=%d): dimIn must be > 0", dimIn)
	}
	n := &Neuron{
		weights:    make([]*context.Variable, dimIn),
		activation: activation,
	}
	for ii := range n.weights {
		n.weights[ii] = ctx.VariableWithFan(fmt.Sprintf("w_%d", ii), dimIn, 1)
	}
	n.bias = ctx.VariableWithValue("b", 0)
	return n
}

// DimIn returns the number of inputs the neuron takes.
func (n *Neuron) DimIn() int { return len(n.weights) }

// Activation returns the activation applied by the neuron.
func (n *Neuron) Activation() activations.Type { return n.activation }

// Apply builds the neuron expression for the given inputs, and returns its output.
// It panics if the number of inputs doesn't match the number of weights.
func (n *Neuron) Apply(x []*Node) *Node {
	if len(x) != len(n.weights) {
		Panicf("Neuron.Apply(): input size %d doesn't match the number of weights %d", len(x), len(n.weights))
	}
	terms := make([]*Node, 0, len(x)+1)
	for ii, w := range n.weights {
		terms = append(terms, Mul(x[ii], w.Node()))
	}
	terms = append(terms, n.bias.Node())
	return activations.Apply(n.activation, ReduceSum(terms...))
}

// Forward implements Module, it returns a single output.
func (n *Neuron) Forward(x []*Node) []*Node {
	return []*Node{n.Apply(x)}
}

// Parameters implements Module: the weights followed by the bias.
func (n *Neuron) Parameters() []*Node {
	params := xslices.Map(n.weights, (*context.Variable).Node)
	return append(params, n.bias.Node())
}

// Layer of dimOut neurons fully connected to the dimIn inputs.
type Layer struct {
	neurons []*Neuron
}

var _ Module = (*Layer)(nil)

// NewLayer creates a layer of dimOut neurons, each in its own sub-scope "neuron_<i>" of ctx.
func NewLayer(ctx *context.Context, dimIn, dimOut int, activation activations.Type) *Layer {
	if dimOut <= 0 {
		Panicf("nn.NewLayer(dimIn=%d, dimOut=%d): dimOut must be > 0", dimIn, dimOut)
	}
	l := &Layer{neurons: make([]*Neuron, dimOut)}
	for ii := range l.neurons {
		l.neurons[ii] = NewNeuron(ctx.Inf("neuron_%d", ii), dimIn, activation)
	}
	return l
}

// DimOut returns the number of outputs (neurons) of the layer.
func (l *Layer) DimOut() int { return len(l.neurons) }

// Forward implements Module: one output per neuron.
func (l *Layer) Forward(x []*Node) []*Node {
	return xslices.Map(l.neurons, func(n *Neuron) *Node { return n.Apply(x) })
}

// Parameters implements Module: the parameters of each neuron, in order.
func (l *Layer) Parameters() []*Node {
	var params []*Node
	for _, n := range l.neurons {
		params = append(params, n.Parameters()...)
	}
	return params
}

// MLP (multi-layer perceptron) is a sequence of fully connected layers.
type MLP struct {
	layers []*Layer
}

var _ Module = (*MLP)(nil)

// NewMLP creates an MLP taking dimIn inputs, with one layer per element of sizes, each in its sub-scope
// "layer_<i>" of ctx.
//
// activations[i] is applied to the outputs of layer i. Layers without a corresponding activation (if
// activations is shorter than sizes) use activations.TypeNone.
func NewMLP(ctx *context.Context, dimIn int, sizes []int, acts []activations.Type) *MLP {
	if len(sizes) == 0 {
		Panicf("nn.NewMLP(): at least one layer size must be given")
	}
	if len(acts) > len(sizes) {
		Panicf("nn.NewMLP(): %d activations given for only %d layers", len(acts), len(sizes))
	}
	m := &MLP{layers: make([]*Layer, len(sizes))}
	for ii, size := range sizes {
		activation := activations.TypeNone
		if ii < len(acts) {
			activation = acts[ii]
		}
		m.layers[ii] = NewLayer(ctx.Inf("layer_%d", ii), dimIn, size, activation)
		dimIn = size
	}
	return m
}

// NewMLPFromContext creates an MLP configured by hyperparameters of ctx: ParamHiddenLayers hidden
// layers using the activations.ParamActivation activation (default "relu"), followed by an output
// layer of dimOut neurons using the ParamOutputActivation activation (default "none").
func NewMLPFromContext(ctx *context.Context, dimIn, dimOut int) *MLP {
	hidden := context.GetParamOr(ctx, ParamHiddenLayers, []int{})
	hiddenActivation := activations.FromName(context.GetParamOr(ctx, activations.ParamActivation, "relu"))
	outputActivation := activations.FromName(context.GetParamOr(ctx, ParamOutputActivation, "none"))
	sizes := append(append([]int{}, hidden...), dimOut)
	acts := xslices.SliceWithValue(len(hidden), hiddenActivation)
	acts = append(acts, outputActivation)
	return NewMLP(ctx, dimIn, sizes, acts)
}

// NumLayers returns the number of layers, including the output layer.
func (m *MLP) NumLayers() int { return len(m.layers) }

// Layer returns the ii-th layer.
func (m *MLP) Layer(ii int) *Layer { return m.layers[ii] }

// Forward implements Module: the output of the last layer.
func (m *MLP) Forward(x []*Node) []*Node {
	out := x
	for _, l := range m.layers {
		out = l.Forward(out)
	}
	return out
}

// Parameters implements Module: the parameters of each layer, in order.
func (m *MLP) Parameters() []*Node {
	var params []*Node
	for _, l := range m.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}
