// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

// NodeType identifies the operation that created a node, and with it the backward rule used
// by Backward (see VJPRegistration).
type NodeType int

const (
	NodeTypeInvalid NodeType = iota
	NodeTypeLeaf
	NodeTypeAdd
	NodeTypeSub
	NodeTypeNeg
	NodeTypeIdentity
	NodeTypeMul
	NodeTypeDiv
	NodeTypePow
	NodeTypeSqrt
	NodeTypeExp
	NodeTypeLog
	NodeTypeMax
	NodeTypeMin
	NodeTypeSigmoid
	NodeTypeTanh
	NodeTypeRelu
	NodeTypeLeakyRelu
)

//go:generate go tool enumer -type NodeType -trimprefix=NodeType -output=gen_nodetype_enumer.go nodetype.go
