// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"flag"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/gomlx/scalargrad/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// SettingsFilePrefix marks a setting entry that should be read from a file, e.g.: "file:~/model/settings.txt".
const SettingsFilePrefix = "file:"

// ParseContextSettings from settings -- typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "param1=value1;param2=value2;...".
//
// All the parameters "param1", "param2", etc. must be already set with default values
// in the context ctx. The default values are also used to set the type to which the
// string values will be parsed to. Lists ([]int, []float64, []string) are given separated by ",".
//
// It updates ctx parameters accordingly and returns the list of parameters set, or an error in case a
// parameter is unknown or the parsing failed.
//
// One can also provide an absolute scope for the parameters: "/layer_1/activation=tanh"
// will work, as long as a default "activation" is defined in ctx.
//
// For integer types, "_" is removed: it allows one to enter large numbers using it as a separator, like
// in Go. E.g.: 1_000_000 = 1000000.
//
// An entry "file:<path>" reads the settings from a file, one or more per line, and lines starting
// with "#" are ignored.
//
// Example usage:
//
//	func main() {
//		ctx := createDefaultContext()
//		settings := commandline.CreateContextSettingsFlag(ctx, "")
//		flag.Parse()
//		paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
//		fmt.Println(commandline.SprintModifiedContextSettings(ctx, paramsSet))
//		...
//	}
func ParseContextSettings(ctx *context.Context, settings string) (paramsSet []string, err error) {
	for _, setting := range strings.Split(settings, ";") {
		paramsSet, err = parseContextSetting(ctx, setting, paramsSet)
		if err != nil {
			return nil, err
		}
	}
	return paramsSet, nil
}

func parseContextSetting(ctx *context.Context, setting string, paramsSet []string) ([]string, error) {
	setting = strings.TrimSpace(setting)
	if setting == "" {
		return paramsSet, nil
	}
	if strings.HasPrefix(setting, SettingsFilePrefix) {
		return parseContextSettingsFile(ctx, strings.TrimPrefix(setting, SettingsFilePrefix), paramsSet)
	}

	paramPath, valueStr, found := strings.Cut(setting, "=")
	if !found {
		return nil, errors.Errorf("can't parse setting %q: each setting requires the format \"<param>=<value>\"",
			setting)
	}
	paramScope, paramName := context.SplitScope(paramPath)
	if strings.Contains(paramName, context.ScopeSeparator) {
		return nil, errors.Errorf("can't set parameter %q because its scope is not absolute (it does not start with %q)",
			paramPath, context.ScopeSeparator)
	}
	defaultValue, found := ctx.GetParam(paramName)
	if !found {
		return nil, errors.Errorf("can't set parameter %q because the param %q is not known in the root context",
			paramPath, paramName)
	}
	value, err := parseValue(defaultValue, valueStr)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to parse value %q for parameter %q (default value is %#v)",
			valueStr, paramPath, defaultValue)
	}
	ctxInScope := ctx
	if paramScope != "" {
		ctxInScope = ctx.InAbsPath(paramScope)
	}
	ctxInScope.SetParam(paramName, value)
	return append(paramsSet, paramPath), nil
}

func parseContextSettingsFile(ctx *context.Context, filePath string, paramsSet []string) ([]string, error) {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return nil, err
	}
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read settings from file %q", filePath)
	}
	for _, line := range strings.Split(string(contents), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, setting := range strings.Split(line, ";") {
			paramsSet, err = parseContextSetting(ctx, setting, paramsSet)
			if err != nil {
				return nil, errors.WithMessagef(err, "in settings file %q", filePath)
			}
		}
	}
	return paramsSet, nil
}

// parseValue parses valueStr to the type of defaultValue.
func parseValue(defaultValue any, valueStr string) (any, error) {
	valueType := reflect.TypeOf(defaultValue)
	if valueType == nil {
		return nil, errors.New("parameter has a nil default value, its type is unknown")
	}
	if valueType.Kind() != reflect.Slice {
		value, err := parseScalar(valueType, valueStr)
		if err != nil {
			return nil, err
		}
		return value.Interface(), nil
	}
	slice := reflect.MakeSlice(valueType, 0, 0)
	if strings.TrimSpace(valueStr) == "" {
		return slice.Interface(), nil
	}
	for _, part := range strings.Split(valueStr, ",") {
		elem, err := parseScalar(valueType.Elem(), part)
		if err != nil {
			return nil, err
		}
		slice = reflect.Append(slice, elem)
	}
	return slice.Interface(), nil
}

// parseScalar parses str to a value of the given type.
func parseScalar(valueType reflect.Type, str string) (reflect.Value, error) {
	value := reflect.New(valueType).Elem()
	str = strings.TrimSpace(str)
	switch valueType.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.ReplaceAll(str, "_", ""), 10, valueType.Bits())
		if err != nil {
			return value, errors.Wrapf(err, "invalid %s", valueType)
		}
		value.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(strings.ReplaceAll(str, "_", ""), 10, valueType.Bits())
		if err != nil {
			return value, errors.Wrapf(err, "invalid %s", valueType)
		}
		value.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(str, valueType.Bits())
		if err != nil {
			return value, errors.Wrapf(err, "invalid %s", valueType)
		}
		value.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(str)
		if err != nil {
			return value, errors.Wrapf(err, "invalid %s", valueType)
		}
		value.SetBool(b)
	case reflect.String:
		value.SetString(str)
	default:
		return value, errors.Errorf("don't know how to parse type %s", valueType)
	}
	return value, nil
}

// CreateContextSettingsFlag create a string flag with the given flagName (if empty it will be named
// "set") and with a description of the current defined parameters in the context ctx.
//
// The flag should be created before the call to flag.Parse().
func CreateContextSettingsFlag(ctx *context.Context, flagName string) *string {
	if flagName == "" {
		flagName = "set"
	}
	parts := []string{fmt.Sprintf(
		`Set context parameters defining the model. `+
			`It should be a list of elements "param=value" separated by ";". `+
			`Scoped settings are allowed, by using %q to separated scopes. `+
			`It can also be given an entry like: "%ssettings_file.txt", in `+
			`which case the file will be read and the settings will be parsed, `+
			`with new-lines working as ";" to separate settings and lines starting with "#" are considered comments. `+
			`Current available parameters that can be set:`,
		context.ScopeSeparator, SettingsFilePrefix)}
	var params []string
	ctx.EnumerateParams(func(scope, key string, value any) {
		if scope != context.RootScope {
			return
		}
		params = append(params, fmt.Sprintf("%q: default value is %v", key, value))
	})
	slices.Sort(params)
	var settings string
	flag.StringVar(&settings, flagName, "", strings.Join(append(parts, params...), "\n"))
	return &settings
}

// SprintContextSettings pretty-print values for the current hyperparameters settings into a string.
func SprintContextSettings(ctx *context.Context) string {
	var parts []string
	ctx.EnumerateParams(func(scope, key string, value any) {
		parts = append(parts, fmt.Sprintf("\t%q: (%T) %v", context.JoinScope(scope, key), value, value))
	})
	slices.Sort(parts)
	return strings.Join(parts, "\n")
}

// SprintModifiedContextSettings pretty-print values of the given parameters, typically the ones returned by
// ParseContextSettings.
func SprintModifiedContextSettings(ctx *context.Context, paramsSet []string) string {
	var parts []string
	paramsSet = slices.Clone(paramsSet)
	slices.Sort(paramsSet)
	for _, paramPath := range slices.Compact(paramsSet) {
		paramScope, paramName := context.SplitScope(paramPath)
		if paramScope == "" {
			paramScope = context.RootScope
		}
		value, found := ctx.InAbsPath(paramScope).GetParam(paramName)
		if !found {
			continue
		}
		parts = append(parts, fmt.Sprintf("\t%q: (%T) %v", paramPath, value, value))
	}
	return strings.Join(parts, "\n")
}
