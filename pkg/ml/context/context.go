// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package context defines the Context and Variable types: Context organizes the hyperparameters
// and the learnable variables of a model, and Variable holds a learnable scalar.
package context

import (
	"encoding"
	"fmt"
	"iter"
	"math/rand/v2"
	"reflect"
	"slices"
	"strings"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/scalargrad/internal/scoped"
	"github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/gomlx/scalargrad/pkg/support/xslices"
)

// Context organizes information shared in a model. The Context organizes 2 types of information:
//
//  1. Variables: model variables or weights, each one a leaf graph.Node of the context's Graph.
//  2. Parameters: hyperparameters and also any arbitrary information that
//     needs sharing among the model building functions using the Context.
//
// Both types of information are organized in "scopes". The Context object is actually a thin wrapper that
// contains the current scope (similar to a current directory) and a link to the actual data. One can change
// scopes by using Context.In("new_scope"): it returns a new Context with the new scope set, but still pointing
// (sharing) all the data with the previous Context. E.g:
//
//	func main() {
//		ctx := context.New()
//		ctx.SetParam(optimizers.ParamLearningRate, 0.01)
//		...
//	}
//
//	func ModelGraph(ctx *context.Context, inputs []*Node) (logits []*Node) {
//		...
//		{
//			ctx := ctx.In("output_layer")  // Same data, different scope.
//			ctx.SetParam("activation", "none")  // Only for the output layer.
//			logits = nn.NewLayer(ctx, len(inputs), numClasses).Forward(inputs)
//		}
//	}
//
// Variable duplicate creation checking:
// the context is by default configured with Context.Checked(true), which checks at every variable creation whether
// the variable already exists. When checked, variable creation will panic if:
//
//   - Context.Unique() (the default) and variable already exists (or was loaded);
//   - Context.Reuse() and variable didn't exist (or was not loaded);
//
// A Context is not safe for concurrent use.
type Context struct {
	// scope for currently created variables and registration.
	scope string

	// reuse of variables, if set to true.
	reuse bool

	// checked access to variables: whether to check for reuse if variable is new or not.
	checked bool

	// initializer is used to initialize new variable values.
	initializer VariableInitializer

	// data is shared among all references of the Context.
	data *contextData
}

// scopedVariableMap name to variable within a scope.
type scopedVariableMap map[string]*Variable

// contextData stores all context information and is shared among various Context, which
// serve only as scoped references.
type contextData struct {
	// params holds a model's building (hyper)parameters. Context is agnostic about the semantics
	// here, the values are interpreted by the various components independently. E.g:
	//
	// * "learning_rate" -> float64: used by most optimizers to set a learning rate.
	params *scoped.Params

	// graph holds the variables as leaf nodes, and is where models are built.
	graph *graph.Graph

	// variablesMap for this context organized per scope.
	variablesMap map[string]scopedVariableMap

	// variables is a plain list of all variables, in creation order.
	variables []*Variable

	// rng is created on first use, see Context.RandomSource.
	rng *rand.Rand

	// loader, if set, is called to check whether there is a previous value of the variable to use.
	loader Loader
}

// Loader can be implemented by any library providing loading of variables for
// Context, e.g. package checkpoints.
type Loader interface {
	// LoadVariable tries to load the value of the variable pointed by its scope and name.
	// If it's not found, returns false, and initialization continues as usual.
	LoadVariable(ctx *Context, scope, name string) (value float64, found bool)
}

const (
	// ScopeSeparator is used between levels of scope. Scope names cannot use this character.
	ScopeSeparator = "/"

	// RootScope is the scope at the very root.
	RootScope = ScopeSeparator
)

// New returns an empty context, associated with freshly created data and a new Graph.
//
// The default variable initializer is DefaultInitializer. You can set your own with
// Context.WithInitializer: see available initializers in package initializer.
func New() *Context {
	return NewWithGraph(graph.NewGraph("model"))
}

// NewWithGraph returns an empty context whose variables are created in g.
func NewWithGraph(g *graph.Graph) *Context {
	g.AssertValid()
	ctx := &Context{
		scope:   RootScope,
		checked: true,
		data: &contextData{
			params:       scoped.New(ScopeSeparator),
			graph:        g,
			variablesMap: make(map[string]scopedVariableMap),
		},
	}
	ctx.initializer = DefaultInitializer
	return ctx
}

// copy creates a copy of the Context, but sharing the same "data" component.
func (ctx *Context) copy() *Context {
	ctx2 := &Context{}
	*ctx2 = *ctx
	return ctx2
}

// Graph where the variables are created and where the model is built.
func (ctx *Context) Graph() *graph.Graph {
	return ctx.data.graph
}

// JoinScope and name into a single string.
// If scope is empty, name is returned.
// See also SplitScope.
func JoinScope(scope, name string) string {
	if strings.HasSuffix(scope, ScopeSeparator) {
		return scope + name
	}
	if scope == "" {
		return name
	}
	return fmt.Sprintf("%s%s%s", scope, ScopeSeparator, name)
}

// SplitScope splits the scope from the name for a combined string, typically created by JoinScope.
// If there is no scope configured, scope is set to "".
func SplitScope(scopeAndName string) (scope, name string) {
	if !strings.HasPrefix(scopeAndName, ScopeSeparator) {
		return "", scopeAndName
	}
	separationIdx := strings.LastIndex(scopeAndName, ScopeSeparator)
	name = scopeAndName[separationIdx+1:]
	if separationIdx == 0 {
		scope = RootScope
	} else {
		scope = scopeAndName[:separationIdx]
	}
	return
}

// Scope returns the full scope path.
func (ctx *Context) Scope() string {
	return ctx.scope
}

// In returns a new reference to the Context with the extra given scope. No ScopeSeparator ("/") is
// allowed in scope.
func (ctx *Context) In(scope string) *Context {
	if scope == "" {
		Panicf("cannot use empty scope for Context.In()")
	}
	if strings.Contains(scope, ScopeSeparator) {
		Panicf("cannot use separator %q in scope element %q", ScopeSeparator, scope)
	}
	ctx2 := ctx.copy()
	ctx2.scope = JoinScope(ctx.scope, scope)
	return ctx2
}

// InAbsPath returns a new reference to the Context with the given absolute scope path, e.g. "/optimizers/adam".
// It panics if scopePath doesn't start with ScopeSeparator.
func (ctx *Context) InAbsPath(scopePath string) *Context {
	if !strings.HasPrefix(scopePath, ScopeSeparator) {
		Panicf("Context.InAbsPath(%q): scope path must start with %q", scopePath, ScopeSeparator)
	}
	ctx2 := ctx.copy()
	ctx2.scope = RootScope
	for _, part := range strings.Split(scopePath, ScopeSeparator) {
		if part != "" {
			ctx2.scope = JoinScope(ctx2.scope, part)
		}
	}
	return ctx2
}

// Inf returns a new reference to the Context with the extra given scope, given as a format + args,
// which are passed to fmt.Sprintf.
func (ctx *Context) Inf(format string, args ...any) *Context {
	return ctx.In(fmt.Sprintf(format, args...))
}

// Reuse returns a new reference to the Context set to reuse of variables.
// If checked is false, this setting is irrelevant.
func (ctx *Context) Reuse() *Context {
	ctx2 := ctx.copy()
	ctx2.reuse = true
	return ctx2
}

// Unique returns a new reference to the Context, set to only allow new variables.
// If checked is false, this setting is irrelevant.
func (ctx *Context) Unique() *Context {
	if !ctx.reuse {
		return ctx
	}
	ctx2 := ctx.copy()
	ctx2.reuse = false
	return ctx2
}

// IsReuse returns whether Context is marked for reuse. This is irrelevant if IsChecked is false.
func (ctx *Context) IsReuse() bool { return ctx.reuse }

// Checked returns a new context with the checked flag set accordingly.
// If checked is false, variables are dynamically reused or created when needed, without any checks.
func (ctx *Context) Checked(checked bool) *Context {
	if ctx.checked == checked {
		return ctx
	}
	ctx2 := ctx.copy()
	ctx2.checked = checked
	return ctx2
}

// IsChecked returns whether context is checking reuse rules.
func (ctx *Context) IsChecked() bool { return ctx.checked }

// WithInitializer returns a new reference to the Context, with the initializer set.
// It won't affect other context references.
func (ctx *Context) WithInitializer(initializer VariableInitializer) *Context {
	if initializer == nil {
		Panicf("Context.WithInitializer passed a nil initializer")
	}
	ctx2 := ctx.copy()
	ctx2.initializer = initializer
	return ctx2
}

// GetParam returns the value for the given param key, searching successively from
// the current scope back to the root scope ("/"), in case the key is not found.
//
// E.g: if current scope is "/a/b", it will search for the key in "/a/b" scope, then
// in "/a" and finally in "/", and return the first result found.
func (ctx *Context) GetParam(key string) (value any, found bool) {
	return ctx.data.params.Get(ctx.scope, key)
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// MustGetParam is like GetParam, but panics if the parameter is not found, or if it is not of type T.
//
// It tries to cast the value to the given type. If it fails, it tries to convert the
// value to the given type (so an `int` will be converted to a `float64` transparently).
// Strings are converted to types implementing encoding.TextUnmarshaler.
func MustGetParam[T any](ctx *Context, key string) T {
	var t T
	valueAny, found := ctx.GetParam(key)
	if !found {
		Panicf("parameter %q (of type %T) not found in scope %q (and its parents)", key, t, ctx.Scope())
	}
	if value, ok := valueAny.(T); ok {
		return value
	}

	v := reflect.ValueOf(valueAny)
	typeOfT := reflect.TypeOf(t)
	valueT := reflect.New(typeOfT)
	if valueT.Type().Implements(textUnmarshalerType) && v.Kind() == reflect.String {
		if err := valueT.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(v.String())); err != nil {
			Panicf("can't UnmarshalText %q to %s for parameter %q: %v", v.String(), typeOfT, key, err)
		}
		return valueT.Elem().Interface().(T)
	}
	if !v.IsValid() || !v.CanConvert(typeOfT) {
		Panicf("MustGetParam/GetParamOr[%T](ctx, %q): ctx(scope=%q)[%q]=(%T) %#v, and cannot be converted to %T",
			t, key, ctx.Scope(), key, valueAny, valueAny, t)
	}
	return v.Convert(typeOfT).Interface().(T)
}

// GetParamOr either returns the value for the given param key in the context `ctx`,
// searching successively from the current scope back to the root scope ("/"), or if the
// key is not found or the key is set to nil, it returns the given default value.
//
// The value is converted to T as in MustGetParam.
func GetParamOr[T any](ctx *Context, key string, defaultValue T) T {
	valueAny, found := ctx.GetParam(key)
	if !found || valueAny == nil {
		return defaultValue
	}
	return MustGetParam[T](ctx, key)
}

// SetParam sets the given param in the current scope. It will be visible (by GetParam)
// within this scope and descendant scopes (but not by other scopes).
func (ctx *Context) SetParam(key string, value any) {
	ctx.data.params.Set(ctx.scope, key, value)
}

// SetParams sets a collection of parameters in the current scope.
func (ctx *Context) SetParams(keyValues map[string]any) {
	for key, value := range keyValues {
		ctx.data.params.Set(ctx.scope, key, value)
	}
}

// EnumerateParams enumerates all parameters for all scopes calls fn with their values.
func (ctx *Context) EnumerateParams(fn func(scope, key string, value any)) {
	ctx.data.params.Enumerate(fn)
}

// Loader returns the current configured Loader for this context. See SetLoader for details.
func (ctx *Context) Loader() Loader {
	return ctx.data.loader
}

// SetLoader configures given loader to be used as the default Loader for this Context.
//
// Loader is used when a variable is created: it is asked for a previously saved value, which
// is used instead of calling the initializer.
func (ctx *Context) SetLoader(loader Loader) {
	ctx.data.loader = loader
}

// GetVariableByScopeAndName returns the variable with the given name in the given scope, or nil if it doesn't exist.
func (ctx *Context) GetVariableByScopeAndName(scope, name string) *Variable {
	scopeVars, ok := ctx.data.variablesMap[scope]
	if !ok {
		return nil
	}
	return scopeVars[name]
}

// GetVariable returns the variable in the current scope, or nil if it doesn't exist.
func (ctx *Context) GetVariable(name string) *Variable {
	return ctx.GetVariableByScopeAndName(ctx.scope, name)
}

// DeleteVariable removes the variable with the given scope and name from the context, if it exists.
// Its node is not released: that is left to the owner of the Graph (see graph.Graph.Release).
func (ctx *Context) DeleteVariable(scope, name string) {
	scopeVars := ctx.data.variablesMap[scope]
	v := scopeVars[name]
	if v == nil {
		return
	}
	delete(scopeVars, name)
	if len(scopeVars) == 0 {
		delete(ctx.data.variablesMap, scope)
	}
	ctx.data.variables = slices.DeleteFunc(ctx.data.variables, func(candidate *Variable) bool {
		return candidate == v
	})
}

// setVariableInScope registers v in the current scope.
func (ctx *Context) setVariableInScope(name string, v *Variable) {
	vars, ok := ctx.data.variablesMap[ctx.scope]
	if !ok {
		vars = make(scopedVariableMap)
		ctx.data.variablesMap[ctx.scope] = vars
	}
	vars[name] = v
	ctx.data.variables = append(ctx.data.variables, v)
}

// checkVariableCreation returns an existing variable to reuse, or nil if a new one should be created.
// It panics if the reuse rules are violated.
func (ctx *Context) checkVariableCreation(name string) *Variable {
	if name == "" {
		Panicf("cannot create variable with empty name in scope %q", ctx.scope)
	}
	if strings.Contains(name, ScopeSeparator) {
		Panicf("cannot use separator %q in variable name %q", ScopeSeparator, name)
	}
	v := ctx.GetVariable(name)
	if v == nil && ctx.checked && ctx.reuse {
		Panicf("requested variable %q in scope %q with Context.Reuse set, but variable does not exist", name, ctx.scope)
	}
	if v != nil && ctx.checked && !ctx.reuse {
		Panicf("variable %q for scope %q already exists -- if this was deliberate, use Context.Reuse() or Context.Checked(false)",
			name, ctx.scope)
	}
	return v
}

// newVariable creates the variable in the current scope, with the value from the Loader if one
// is configured and has it, or with initialValue otherwise.
func (ctx *Context) newVariable(name string, initialValue func() float64) *Variable {
	var value float64
	var loaded bool
	if ctx.data.loader != nil {
		value, loaded = ctx.data.loader.LoadVariable(ctx, ctx.scope, name)
	}
	if !loaded {
		value = initialValue()
	}
	v := &Variable{
		ctx:       ctx,
		scope:     ctx.scope,
		name:      name,
		Trainable: true,
		node:      graph.Leaf(ctx.data.graph, value),
	}
	ctx.setVariableInScope(name, v)
	return v
}

// VariableWithValue creates or returns an existing variable with the given name in the current scope.
// If it is created, it gets the given value, unless it is loaded by a Loader (see SetLoader).
//
// It panics if the variable already exists and the context is not in Reuse mode, or if it doesn't exist
// and the context is in Reuse mode (unless the context is not Checked).
func (ctx *Context) VariableWithValue(name string, value float64) *Variable {
	if v := ctx.checkVariableCreation(name); v != nil {
		return v
	}
	return ctx.newVariable(name, func() float64 { return value })
}

// VariableWithFan creates or returns an existing variable with the given name in the current scope.
// If it is created, it is initialized with the context initializer for a weight connecting fanIn
// inputs to fanOut outputs (see WithInitializer), unless it is loaded by a Loader.
//
// Same reuse rules as VariableWithValue.
func (ctx *Context) VariableWithFan(name string, fanIn, fanOut int) *Variable {
	if v := ctx.checkVariableCreation(name); v != nil {
		return v
	}
	return ctx.newVariable(name, func() float64 { return ctx.initializer(ctx.RandomSource(), fanIn, fanOut) })
}

// EnumerateVariables will call fn for each variable in the context, in creation order.
func (ctx *Context) EnumerateVariables(fn func(v *Variable)) {
	for _, v := range ctx.data.variables {
		fn(v)
	}
}

// IterVariables returns an iterator over all variables in the context, in creation order.
func (ctx *Context) IterVariables() iter.Seq[*Variable] {
	return func(yield func(*Variable) bool) {
		for _, v := range ctx.data.variables {
			if !yield(v) {
				return
			}
		}
	}
}

// IterVariablesInScope returns an iterator over the variables in the current scope or in its sub-scopes.
func (ctx *Context) IterVariablesInScope() iter.Seq[*Variable] {
	prefix := JoinScope(ctx.scope, "")
	return func(yield func(*Variable) bool) {
		for _, v := range ctx.data.variables {
			if v.scope != ctx.scope && !strings.HasPrefix(v.scope, prefix) {
				continue
			}
			if !yield(v) {
				return
			}
		}
	}
}

// NumVariables return the number of variables in this Context.
func (ctx *Context) NumVariables() int {
	return len(ctx.data.variables)
}

// TrainableVariables returns the trainable variables, in creation order.
// These are the variables updated by an optimizer.
func (ctx *Context) TrainableVariables() []*Variable {
	vars := make([]*Variable, 0, len(ctx.data.variables))
	for _, v := range ctx.data.variables {
		if v.Trainable {
			vars = append(vars, v)
		}
	}
	return vars
}

// TrainableNodes returns the nodes of the trainable variables, in creation order.
func (ctx *Context) TrainableNodes() []*graph.Node {
	return xslices.Map(ctx.TrainableVariables(), (*Variable).Node)
}

// ZeroGrads resets the gradients of all variables to 0.
func (ctx *Context) ZeroGrads() {
	for _, v := range ctx.data.variables {
		graph.ZeroGrads(v.node)
	}
}
