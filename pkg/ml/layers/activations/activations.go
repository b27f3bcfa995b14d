// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package activations implements several common activations, and includes a generic Apply method to apply an
// activation by its type.
//
// There is also FromName to convert an activation name (string) to its type, and ApplyFromContext that applies
// an activation based on the hyperparameter ParamActivation defined in a context.
package activations

import (
	"math"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/gomlx/scalargrad/pkg/ml/context"
)

const (
	// ParamActivation context hyperparameter defines the activation to use, for models using ApplyFromContext.
	// Available values are: `none`, `relu`, `leaky_relu`, `sigmoid`, `tanh`, `swish` (same as `silu`),
	// `selu` or `gelu_approx`.
	// The default is `relu`.
	// See activations.TypeValues for complete list.
	ParamActivation = "activation"
)

// Type is an enum for the supported activation functions.
//
// It is converted to snake-format strings (e.g.: TypeLeakyRelu -> "leaky_relu"), and can be converted
// from string by using TypeString or FromName.
type Type int

const (
	TypeNone Type = iota
	TypeRelu
	TypeSigmoid
	TypeLeakyRelu
	TypeSelu
	TypeSwish

	// TypeSilu is an alias to TypeSwish
	TypeSilu

	TypeTanh
	TypeGeluApprox
)

//go:generate go tool enumer -type Type -trimprefix=Type -transform=snake -text -output=gen_type_enumer.go activations.go

// ApplyFromContext picks an activation function from the context using [ParamActivation] parameter,
// and applies it to x.
//
// It defaults to "relu".
func ApplyFromContext(ctx *context.Context, x *Node) *Node {
	activationName := context.GetParamOr(ctx, ParamActivation, "relu")
	return Apply(FromName(activationName), x)
}

// Apply the given activation type.
// The TypeNone activation is a no-op: it returns x itself.
//
// See TypeValues for valid values.
func Apply(activation Type, x *Node) *Node {
	switch activation {
	case TypeNone:
		return x
	case TypeRelu:
		return Relu(x)
	case TypeLeakyRelu:
		return LeakyReluDefault(x)
	case TypeSigmoid:
		return Sigmoid(x)
	case TypeTanh:
		return Tanh(x)
	case TypeSwish, TypeSilu:
		return Swish(x)
	case TypeSelu:
		return Selu(x)
	case TypeGeluApprox:
		return GeluApproximate(x)
	default:
		Panicf("Apply got invalid activation value %q: options are %v", activation, TypeValues())
	}
	return nil
}

// ApplyAll applies the activation to each of the nodes.
func ApplyAll(activation Type, nodes []*Node) []*Node {
	outputs := make([]*Node, len(nodes))
	for ii, node := range nodes {
		outputs[ii] = Apply(activation, node)
	}
	return outputs
}

// FromName converts the name of an activation to its type.
// It panics with a helpful message if name is invalid.
//
// And empty string is converted to TypeNone. "identity" is also accepted for TypeNone.
func FromName(activationName string) Type {
	if activationName == "" || activationName == "identity" {
		return TypeNone
	}
	activation, err := TypeString(activationName)
	if err != nil {
		Panicf("invalid activation name %q: options are %v", activationName, TypeValues())
	}
	return activation
}

// Swish activation (or SiLU) returns `x * Sigmoid(x)`.
//
// Here the beta parameter is fixed at 1.0.
func Swish(x *Node) *Node {
	return Mul(x, Sigmoid(x))
}

const (
	SeluAlpha = 1.67326324
	SeluScale = 1.05070098
)

// Selu stands for Scaled Exponential Linear Unit (SELU) activation function is defined as:
// . $SeluScale * x$ if $x > 0$
// . $SeluScale * SeluAlpha * (e^x - 1)$ if $x <= 0$
func Selu(x *Node) *Node {
	positive := Relu(x)
	negative := MulScalar(AddScalar(Exp(Min(x, Scalar(x, 0))), -1), SeluAlpha)
	return MulScalar(Add(positive, negative), SeluScale)
}

// GeluApproximate is a close approximation to the original Gelu function.
//
// It is defined as Gelu(x) = x * 0.5 * (1 + Tanh(Sqrt(2/Pi) * (x+0.044715*x^3))).
//
// The GELU activation function was introduced in "Gaussian Error Linear Units
// (GELUs)" [Hendrycks et al. 2016](https://arxiv.org/abs/1606.08415).
func GeluApproximate(x *Node) *Node {
	cdfApprox := Add(x, MulScalar(Mul(Square(x), x), 0.044715))
	sqrt2ByPi := math.Sqrt(2.0 / math.Pi)
	cdfApprox = Tanh(MulScalar(cdfApprox, sqrt2ByPi))
	cdfApprox = MulScalar(AddScalar(cdfApprox, 1), 0.5)
	return Mul(x, cdfApprox)
}
