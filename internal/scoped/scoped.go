// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package scoped provides a mapping from a string to any data type that is "scoped".
package scoped

import (
	"maps"
	"strings"

	"github.com/gomlx/scalargrad/pkg/support/xslices"
)

// Params provides a mapping from string to any data type that is "scoped":
//
//   - For every scope there is a map of string to data.
//   - Accessing a key triggers a search from the current scope up to the root scope, the
//     first result found is returned.
//
// Example: let's say the current Params hold:
//
//	Scope: "/": { "learning_rate": 0.01, "optimizer": "adam" }
//	Scope: "/layer_0": { "activation": "relu" }
//	Scope: "/layer_0/neuron_3": { "learning_rate": 0.001 }
//
//	Params.Get("/layer_0/neuron_3", "learning_rate") -> 0.001
//	Params.Get("/layer_0/neuron_3", "activation") -> "relu"
//	Params.Get("/layer_0/neuron_3", "optimizer") -> "adam"
//	Params.Get("/layer_0/neuron_3", "weight_decay") -> Not found.
//
// The Separator ("/" for Context) separates parts of the scope path, and the root scope is
// referred to by the Separator alone.
type Params struct {
	Separator  string
	scopeToMap map[string]map[string]any
}

// New creates an empty Params.
func New(scopeSeparator string) *Params {
	return &Params{
		Separator:  scopeSeparator,
		scopeToMap: make(map[string]map[string]any),
	}
}

// Clone returns a copy of the Params. The values themselves are not deep-copied.
func (p *Params) Clone() *Params {
	newParams := New(p.Separator)
	for scope, dataMap := range p.scopeToMap {
		newParams.scopeToMap[scope] = maps.Clone(dataMap)
	}
	return newParams
}

// Set sets the value for the given key, in the given scope.
func (p *Params) Set(scope, key string, value any) {
	dataMap, found := p.scopeToMap[scope]
	if !found || dataMap == nil {
		dataMap = make(map[string]any)
		p.scopeToMap[scope] = dataMap
	}
	dataMap[key] = value
}

// Get retrieves the value for the given key in the given scope or any parent scope.
// E.g: Get("/a/b", "myKey") will search for "myKey" in scopes "/a/b", "/a" and "/"
// consecutively until "myKey" is found.
//
// It returns the first value found if any, and whether some value was found.
func (p *Params) Get(scope, key string) (value any, found bool) {
	for {
		if dataMap := p.scopeToMap[scope]; dataMap != nil {
			if value, found = dataMap[key]; found {
				return
			}
		}
		if scope == p.Separator || scope == "" {
			return nil, false
		}
		idx := strings.LastIndex(scope, p.Separator)
		switch {
		case idx < 0:
			scope = ""
		case idx == 0:
			scope = p.Separator
		default:
			scope = scope[:idx]
		}
	}
}

// Enumerate enumerates all parameters stored, sorted by scope and key, and calls fn with them.
func (p *Params) Enumerate(fn func(scope, key string, value any)) {
	for _, scope := range xslices.SortedKeys(p.scopeToMap) {
		keyValues := p.scopeToMap[scope]
		for _, key := range xslices.SortedKeys(keyValues) {
			fn(scope, key, keyValues[key])
		}
	}
}
