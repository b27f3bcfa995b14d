// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package checkpoints implements checkpoint management: saving and loading of the values of the
// context variables (the learnable parameters, optimizer state and global step) and of the
// hyperparameters to JSON files. The graph itself is never saved: the model is rebuilt by the
// program, and variables take their values from the checkpoint when they are created.
//
// The main object is the Handler, that should be created by calling Build, followed by the
// various options setting and finally calling Config.Done.
// Once created, if a previous saved checkpoint exists, it will automatically load variables and parameters
// for your model into Context.
// And as the model trains, one can call Handler.Save() at any time to save a new checkpoint --
// typically one will do that inside train.EveryNSteps().
//
// Example: After creating the Context, it checks if a checkpoint directory was set (`*flagCheckpoint`)
// and if yes, creates a checkpoints.Handler to save checkpoints every 100 steps, keeping the last
// `*flagCheckpointKeep` checkpoints.
//
//	…
//	ctx := context.New()
//	ctx.SetParam(optimizers.ParamLearningRate, *flagLearningRate)
//
//	var checkpoint *checkpoints.Handler
//	if *flagCheckpoint != "" {
//		checkpoint = must.M1(checkpoints.Build(ctx).Dir(*flagCheckpoint).Keep(*flagCheckpointKeep).Done())
//	}
//	…
//	// Build training loop.
//	loop := train.NewLoop(trainer)
//	commandline.AttachProgressBar(loop) // Attaches a progress bar to the loop.
//	if checkpoint != nil {
//		const priority = 100  // Large number here, means it runs last.
//		train.EveryNSteps(loop, 100, "checkpointing", priority, checkpoint.OnStepFn)
//	}
//	…
package checkpoints

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/gomlx/scalargrad/pkg/ml/train"
	"github.com/gomlx/scalargrad/pkg/ml/train/optimizers"
	"github.com/gomlx/scalargrad/pkg/support/fsutil"
	"github.com/gomlx/scalargrad/pkg/support/xslices"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// DirPermMode is the default directory creation permission (before umask) used.
	DirPermMode = os.FileMode(0770)
)

// Config for the checkpoints' Handler to be created. This is created with Build() and
// configured with the various methods. Once finished, call Done() and it will output
// a checkpoints.Handler that loads (if there are any previously saved checkpoints) and
// saves checkpoints.
type Config struct {
	ctx *context.Context

	err error

	dir string

	immediate bool
	keep      int
	mustLoad  bool
	compress  bool

	includeParams   bool            // whether to includeParams in loading/saving.
	paramsToExclude map[string]bool // specific parameter names to exclude from loading.

	takeMean int

	varsToExclude map[*context.Variable]bool
}

// Build a configuration for building a checkpoints.Handler. After configuring the
// Config object returned, call `Done` to get the configured checkpoints.Handler.
//
// The new checkpoints.Handler will load ("lazy" by default) a checkpoint to the context
// (see Config.Dir or Config.TempDir to specify where to load/save) if it exists, otherwise it
// creates a new directory and can simply be used to save checkpoints.
//
// When a checkpoint is "lazily loaded", its variables are not created in the context: they take their
// saved value when the model creates them (see context.Loader). This is convenient to load only part of the
// variables, or to continue training. Use Config.Immediate() to create all the variables right away.
func Build(ctx *context.Context) *Config {
	return &Config{
		ctx:             ctx,
		includeParams:   true,
		keep:            1,
		takeMean:        1,
		paramsToExclude: make(map[string]bool),
		varsToExclude:   make(map[*context.Variable]bool),
	}
}

// Load creates the configuration to load a checkpoint.
// It's identical to Build, except it will fail if the checkpoint does not already exist.
//
// Use Dir to configure the location of the checkpoint.
// Once configured, call Config.Done to actually load it.
func Load(ctx *context.Context) *Config {
	c := Build(ctx)
	c.mustLoad = true
	return c
}

func (c *Config) setError(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Dir sets the directory where to save / load the checkpoints. A "~" prefix is replaced by the
// user's home directory.
//
// One must set either Dir or TempDir before building the checkpoints.Handler.
func (c *Config) Dir(dir string) *Config {
	dir, err := fsutil.ReplaceTildeInDir(dir)
	if err != nil {
		c.setError(err)
		return c
	}
	c.dir = dir
	fi, err := os.Stat(dir)
	if err != nil && !os.IsNotExist(err) {
		c.setError(errors.Wrapf(err, "failed to os.Stat(%q)", dir))
		return c
	}
	if err == nil && !fi.IsDir() {
		c.setError(errors.Errorf("checkpoint directory %q exists but it's a normal file, not a directory", dir))
		return c
	}
	if err == nil {
		// Directory exists, all fine.
		return c
	}
	if c.mustLoad {
		c.setError(errors.Wrapf(err, "checkpoint directory %q does not exist or cannot be accessed", dir))
		return c
	}

	// Create the directory.
	err = os.MkdirAll(dir, DirPermMode)
	if err != nil {
		c.setError(errors.Wrapf(err, "trying to create dir %q", dir))
	}
	return c
}

// TempDir creates a temporary directory under dir, with the pattern name, and uses it as the
// checkpoint directory. See os.MkdirTemp for the meaning of dir and pattern.
func (c *Config) TempDir(dir, pattern string) *Config {
	if c.mustLoad {
		c.setError(errors.New("cannot use TempDir to load a checkpoint"))
		return c
	}
	name, err := os.MkdirTemp(dir, pattern)
	if err != nil {
		c.setError(errors.Wrapf(err, "failed to create temporary directory"))
		return c
	}
	c.dir = name
	return c
}

// Immediate forces immediate load of all variables, as opposed to the default lazy loading.
// Variables not yet in the context are created with the loaded values.
func (c *Config) Immediate() *Config {
	c.immediate = true
	return c
}

// Compress configures whether new checkpoints are saved gzip compressed. Compressed and uncompressed
// checkpoints can always be loaded. Default is false.
func (c *Config) Compress(compress bool) *Config {
	c.compress = compress
	return c
}

// ExcludeAllParams configures Handler to exclude Context parameters (values usually
// read/written by Context.GetParam and context.SetParam) from being read.
//
// By default, Params are loaded and set into Context the moment Handler is created
// (when Done() is called), overriding values already present in the Context.
//
// See also ExcludeParams to exclude specific params from being read.
func (c *Config) ExcludeAllParams() *Config {
	c.includeParams = false
	return c
}

// ExcludeParams configures Handler to exclude certain Context parameters from being read.
// It can be called multiple times; each call adds new parameters to be excluded.
//
// For values in paramsToExclude that don't include a preceding scope (separated by "/"), the exclusion applies to all scopes.
// Otherwise, it applies only to the specific scope. See context.JoinScope to merge scope and name.
func (c *Config) ExcludeParams(paramsToExclude ...string) *Config {
	for _, name := range paramsToExclude {
		c.paramsToExclude[name] = true
	}
	return c
}

// ExcludeVars enumerate variables to be excluded from saving.
// The function can be called multiple times, adding variables to be excluded from saving.
func (c *Config) ExcludeVars(vars ...*context.Variable) *Config {
	for _, v := range vars {
		c.varsToExclude[v] = true
	}
	return c
}

// Keep configures the number of checkpoint files to keep. If set to -1, it will never erase older checkpoints.
// The default is 1.
func (c *Config) Keep(n int) *Config {
	c.keep = n
	return c
}

// TakeMean loads the mean of the last n checkpoints.
// If n <= 0, take the mean of all available checkpoints.
// Notice that only trainable variables are averaged: variables not marked as trainable (e.g., the
// global step or the optimizer state) are taken from the most recent checkpoint instead.
//
// The default is 1, so only load the most recent checkpoint.
func (c *Config) TakeMean(n int) *Config {
	c.takeMean = n
	return c
}

// Done creates a Handler with the current configuration. It returns an error if the configuration is
// invalid, or if it's missing information.
func (c *Config) Done() (*Handler, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.dir == "" {
		return nil, errors.Errorf("directory for checkpoints not configured")
	}
	handler := &Handler{config: c, serialized: &serializedData{}}

	checkpoints, err := handler.ListCheckpoints()
	if err != nil {
		return nil, err
	}
	if len(checkpoints) == 0 && c.mustLoad {
		return nil, errors.Errorf("no checkpoints found in %q", c.dir)
	}
	handler.checkpointsCount = maxCheckPointCountFromCheckpoints(checkpoints) + 1
	if len(checkpoints) > 0 {
		takeMean := c.takeMean
		if takeMean <= 0 || takeMean > len(checkpoints) {
			takeMean = len(checkpoints)
		}
		if takeMean == 1 {
			// Just load most recent checkpoint.
			err = handler.loadCheckpointFromFile(xslices.Last(checkpoints), false, 0)
		} else {
			err = handler.takeMean(checkpoints[len(checkpoints)-takeMean:])
		}
		if err != nil {
			return nil, err
		}
	}
	if handler.serialized.RunId == "" {
		handler.serialized.RunId = uuid.NewString()
	}

	// Force overwriting variables already present in the context: e.g., global_step.
	ctxToSet := c.ctx.Checked(false)
	for v := range ctxToSet.IterVariables() {
		loaded, found := handler.variableValues[v.ScopeAndName()]
		if !found {
			continue
		}
		v.SetValue(float64(loaded.Value))
		delete(handler.variableValues, v.ScopeAndName())
	}
	if c.immediate {
		for _, scopeAndName := range xslices.SortedKeys(handler.variableValues) {
			loaded := handler.variableValues[scopeAndName]
			scope, name := context.SplitScope(scopeAndName)
			ctxToSet.InAbsPath(scope).VariableWithValue(name, float64(loaded.Value)).SetTrainable(loaded.Trainable)
		}
		// Empty remaining variableValues.
		clear(handler.variableValues)
	}
	handler.attachTo(c.ctx)
	return handler, nil
}

// MustDone constructs the checkpoints.Handler. It panics if there was an error.
func (c *Config) MustDone() *Handler {
	h, err := c.Done()
	if err != nil {
		panic(errors.WithMessage(err, "failed to create checkpoints.Handler"))
	}
	return h
}

// Handler handles saving and loading of checkpoints for a context.Context. See an example in the
// package documentation.
//
// It is created and configured using Build(), followed by options setting and then calling
// Config.Done().
//
// Loading data into Handler happens at its creation time: it loads from the latest checkpoint.
// (Hyper-)Parameters are immediately loaded into the context then (if not Config.ExcludeAllParams)
// but the loaded variable values are only "consumed" (used) one at a time, as the variables are
// created during the model building.
//
// Saving of checkpoints is explicit, by calling Handler.Save(). Usually this is
// done by configuring train.Loop to call it using train.EveryNSteps.
// When saving, all variables in Context are saved, along with any previous variables loaded
// by the Handler that were not used by Context and with the Params for all scopes.
//
// A Handler can only be "attached" to one context.Context.
type Handler struct {
	config            *Config
	ctx               *context.Context
	prevContextLoader context.Loader

	serialized     *serializedData
	variableValues map[string]serializedVar

	checkpointsCount int
}

var _ context.Loader = (*Handler)(nil)

// serializedData is how the information is read and written from storage.
type serializedData struct {
	// RunId identifies a training run: it is created with the first checkpoint, and kept by checkpoints that
	// continue the same training.
	RunId string

	// GlobalStep at the time of saving.
	GlobalStep int64

	Params    []serializedParam
	Variables []serializedVar
}

// serializedVar holds the value of one variable.
type serializedVar struct {
	// ScopeAndName identifies the variable, see context.JoinScope.
	ScopeAndName string
	Value        jsonFloat
	Trainable    bool
}

// jsonFloat encodes NaN and infinities as strings, since JSON numbers can't represent them.
type jsonFloat float64

// MarshalJSON implements json.Marshaler.
func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return json.Marshal(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	var v float64
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		var err error
		v, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid float value %q", s)
		}
	} else if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

// serializedParam represents a serialized context parameter.
// It includes the original ValueType, because Json decoder may
// not be capable of recovering the original type in anonymous (any) Value.
type serializedParam struct {
	Scope, Key string
	Value      any
	ValueType  string
}

// jsonDecodeTypeConvert attempts to convert the Value decoded by Json into
// the original ValueType.
//
// E.g.: Json decoder will decode all numbers to float64. So we cast it to the
// given ValueType.
func (p *serializedParam) jsonDecodeTypeConvert() {
	// Switch on current Json type:
	switch value := p.Value.(type) {
	case float64:
		// All numbers when converted to `any` by the json decoders become float64,
		// here we convert them back.
		switch p.ValueType {
		case "int":
			p.Value = int(value)
		case "int32":
			p.Value = int32(value)
		case "int64":
			p.Value = int64(value)
		case "float32":
			p.Value = float32(value)
		}

	case []any:
		switch p.ValueType {
		case "[]int":
			p.Value = xslices.Map(value, func(fAny any) int {
				f, _ := fAny.(float64) // Json decoder converts any numbers to float64.
				return int(f)
			})
		case "[]float64":
			p.Value = xslices.Map(value, func(fAny any) float64 {
				f, _ := fAny.(float64)
				return f
			})
		case "[]string":
			p.Value = xslices.Map(value, func(sAny any) string {
				s, _ := sAny.(string)
				return s
			})
		}
	default:
		// No other types converted for now.
		return
	}
}

// String implements Stringer.
func (h *Handler) String() string {
	return fmt.Sprintf("checkpoints.Handler(%q)", h.config.dir)
}

// RunId returns the identifier of the training run, kept across checkpoints of the same run.
func (h *Handler) RunId() string {
	return h.serialized.RunId
}

// newCheckpointBaseName returns the base name for the checkpoint files.
func (h *Handler) newCheckpointBaseName(globalStep int64) string {
	now := time.Now().Format("20060102-150405")
	baseName := fmt.Sprintf("%sn%07d-%s", baseNamePrefix, h.checkpointsCount, now)
	if globalStep > 0 {
		return fmt.Sprintf("%s-step-%08d", baseName, globalStep)
	}
	return fmt.Sprintf("%s-initial", baseName)
}

const (
	baseNamePrefix = "checkpoint-"

	// JsonNameSuffix for the JSON files of the checkpoints listed by Handler.ListCheckpoints.
	JsonNameSuffix = ".json"

	// GzipNameSuffix is appended to JsonNameSuffix for compressed checkpoints.
	GzipNameSuffix = ".gz"

	// BackupDir is the name of the (sub-)directory under the model checkpoints directory that holds
	// the backups. See Handler.Backup.
	BackupDir = "backup"
)

// ListCheckpoints returns the file names (without the directory) of the checkpoints in the directory, in time
// order (older first).
func (h *Handler) ListCheckpoints() (checkpoints []string, err error) {
	entries, err := os.ReadDir(h.config.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "%s listing checkpoints", h)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileName := entry.Name()
		if !strings.HasPrefix(fileName, baseNamePrefix) {
			continue
		}
		if !strings.HasSuffix(fileName, JsonNameSuffix) && !strings.HasSuffix(fileName, JsonNameSuffix+GzipNameSuffix) {
			continue
		}
		checkpoints = append(checkpoints, fileName)
	}
	sort.Strings(checkpoints)
	return checkpoints, nil
}

// HasCheckpoints returns whether there are any checkpoints saved.
func (h *Handler) HasCheckpoints() (bool, error) {
	list, err := h.ListCheckpoints()
	return len(list) > 0, err
}

var checkpointCountRegex = regexp.MustCompile(`^checkpoint-n(\d+)-`)

// maxCheckPointCountFromCheckpoints returns the largest checkpointCount in the saved
// checkpoints -- so the next checkpoint saved uses this count+1.
//
// The input should be the output of Handler.ListCheckpoints.
func maxCheckPointCountFromCheckpoints(checkpoints []string) int {
	maxId := -1
	for _, name := range checkpoints {
		matches := checkpointCountRegex.FindAllStringSubmatch(name, 1)
		if len(matches) != 1 || len(matches[0]) != 2 {
			continue
		}
		id, err := strconv.Atoi(matches[0][1])
		if err != nil {
			continue
		}
		if id > maxId {
			maxId = id
		}
	}
	return maxId
}

// loadCheckpointFromFile loads a specific checkpoint file. This needs to happen before attachTo,
// since otherwise it may not have any effect.
//
// If merge is set to false, loading a different checkpoint discards the previous checkpoint read.
// If merge is set to true, only trainable variables are merged into the current values, using
// mergeWeight for the new value.
func (h *Handler) loadCheckpointFromFile(fileName string, merge bool, mergeWeight float64) error {
	klog.V(1).Infof("loading: %q", fileName)
	if h.ctx != nil {
		return errors.Errorf(
			"%s tried to loadCheckpointFromFile(%q) after being attached to a Context, this is not allowed",
			h, fileName)
	}
	filePath := filepath.Join(h.config.dir, fileName)
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "%s: failed to open checkpoint file %s", h, filePath)
	}
	defer func() { _ = f.Close() }()
	var reader io.Reader = f
	if strings.HasSuffix(fileName, GzipNameSuffix) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "%s: failed to decompress checkpoint file %s", h, filePath)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	}
	if err = h.loadCheckpoint(reader, merge, mergeWeight); err != nil {
		return errors.WithMessagef(err, "failed loading checkpoint from %s", filePath)
	}
	return nil
}

// loadCheckpoint from a reader with the JSON contents.
func (h *Handler) loadCheckpoint(reader io.Reader, merge bool, mergeWeight float64) error {
	dec := json.NewDecoder(reader)
	var serialized *serializedData
	if err := dec.Decode(&serialized); err != nil {
		return errors.Wrapf(err, "%s: failed to decode contents of checkpoint", h)
	}
	if serialized == nil {
		return errors.Errorf("%s: empty checkpoint", h)
	}
	if merge {
		for _, loaded := range serialized.Variables {
			current, found := h.variableValues[loaded.ScopeAndName]
			if !found || !current.Trainable {
				// Variable was not found in the last checkpoint or not merge-able, just ignore it.
				continue
			}
			current.Value = jsonFloat(float64(current.Value)*(1-mergeWeight) + float64(loaded.Value)*mergeWeight)
			h.variableValues[loaded.ScopeAndName] = current
		}
		return nil
	}

	if h.config.includeParams {
		for ii := range serialized.Params {
			// Recover original type where possible.
			serialized.Params[ii].jsonDecodeTypeConvert()
		}
	} else {
		// Discard loaded Params, if they were not included.
		serialized.Params = nil
	}
	h.serialized = serialized
	h.variableValues = make(map[string]serializedVar, len(serialized.Variables))
	for _, v := range serialized.Variables {
		h.variableValues[v.ScopeAndName] = v
	}
	return nil
}

// takeMean will load the checkpoints pointed by fileNames and take the mean of those.
// It takes the mean only for trainable variables, everything else it just takes
// the value from the last checkpoint.
func (h *Handler) takeMean(fileNames []string) error {
	// First load the last checkpoint.
	err := h.loadCheckpointFromFile(xslices.Last(fileNames), false, 0)
	if err != nil {
		return err
	}

	// Then merge all other values -- the order doesn't matter.
	for ii, fileName := range fileNames[:len(fileNames)-1] {
		mergeWeight := 1.0 / (float64(ii) + 2.0)
		err = h.loadCheckpointFromFile(fileName, true, mergeWeight)
		if err != nil {
			return err
		}
	}
	return nil
}

// Save creates a new checkpoint and save the context variables and (optionally) Params.
//
// All variables in the context are saved, as well as those previously loaded -- this allows one
// to load the variables only for a part of the model, update that part, and save again with everything.
//
// If the handler is nil, this is a no-op: so it's safe to simply be called, even if the user hasn't configured a
// checkpoint.
func (h *Handler) Save() error {
	if h == nil {
		return nil
	}
	if h.ctx == nil {
		return errors.Errorf("%s not attached to a context.Context yet", h)
	}

	h.serialized.GlobalStep = optimizers.GetGlobalStep(h.ctx)

	// Copy over Params.
	h.serialized.Params = nil
	if h.config.includeParams {
		h.ctx.EnumerateParams(func(scope, name string, value any) {
			h.serialized.Params = append(h.serialized.Params,
				serializedParam{
					Scope: scope, Key: name, Value: value, ValueType: fmt.Sprintf("%T", value)})
		})
		sort.SliceStable(h.serialized.Params, func(i, j int) bool {
			pi, pj := h.serialized.Params[i], h.serialized.Params[j]
			if pi.Scope != pj.Scope {
				return pi.Scope < pj.Scope
			}
			return pi.Key < pj.Key
		})
	}

	// Variables from Context and previously loaded ones, that haven't yet been loaded into context.
	h.serialized.Variables = make([]serializedVar, 0, h.ctx.NumVariables()+len(h.variableValues))
	h.ctx.EnumerateVariables(func(v *context.Variable) {
		if h.config.varsToExclude[v] {
			return
		}
		h.serialized.Variables = append(h.serialized.Variables, serializedVar{
			ScopeAndName: v.ScopeAndName(),
			Value:        jsonFloat(v.Value()),
			Trainable:    v.Trainable,
		})
	})
	for _, scopeAndName := range xslices.SortedKeys(h.variableValues) {
		h.serialized.Variables = append(h.serialized.Variables, h.variableValues[scopeAndName])
	}

	// Create file.
	fileName := h.newCheckpointBaseName(h.serialized.GlobalStep) + JsonNameSuffix
	if h.config.compress {
		fileName += GzipNameSuffix
	}
	h.checkpointsCount++ // Bump unique number.
	filePath := filepath.Join(h.config.dir, fileName)
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "%s: failed to create checkpoint file %s", h, filePath)
	}
	var writer io.Writer = f
	var gz *gzip.Writer
	if h.config.compress {
		gz = gzip.NewWriter(f)
		writer = gz
	}
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "\t")
	if err = enc.Encode(h.serialized); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "%s: failed to write checkpoint file %s", h, filePath)
	}
	if gz != nil {
		if err = gz.Close(); err != nil {
			_ = f.Close()
			return errors.Wrapf(err, "%s: failed to compress checkpoint file %s", h, filePath)
		}
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "%s: failed to close checkpoint file %s", h, filePath)
	}
	if klog.V(1).Enabled() {
		if fi, err := os.Stat(filePath); err == nil {
			klog.Infof("saved checkpoint %s: %d variables, %s", filePath, len(h.serialized.Variables),
				humanize.Bytes(uint64(fi.Size())))
		}
	}

	// Remove excess checkpoints.
	return h.keepNCheckpoints()
}

// Backup links (or copies) the latest checkpoint to a separate sub-directory under the model directory called
// "backup" (constant in checkpoints.BackupDir).
//
// This way the backed up checkpoint doesn't get automatically deleted as the model training progresses.
func (h *Handler) Backup() error {
	fileNames, err := h.ListCheckpoints()
	if err != nil {
		return errors.WithMessagef(err, "failed Backup() finding current checkpoints")
	}
	if len(fileNames) == 0 {
		return errors.Errorf("there are no saved checkpoints in %q: maybe call Save() before Backup() ?", h.Dir())
	}
	srcFilePath := filepath.Join(h.config.dir, xslices.Last(fileNames))
	backupDir := path.Join(h.Dir(), BackupDir)
	err = os.MkdirAll(backupDir, DirPermMode)
	if err != nil {
		return errors.Wrapf(err, "trying to create dir %q", backupDir)
	}
	newPath := path.Join(backupDir, path.Base(srcFilePath))
	if err = os.Link(srcFilePath, newPath); err != nil {
		return errors.Wrapf(err, "failed to link %q to %q", srcFilePath, newPath)
	}
	return nil
}

// OnStepFn implements train.OnStepFn, and make it convenient to attach to a training loop.
// It simply calls save.
func (h *Handler) OnStepFn(_ *train.Loop, _ []float64) error {
	return h.Save()
}

// keepNCheckpoints checks if there are more than the configured number of checkpoints, and remove
// the excess.
func (h *Handler) keepNCheckpoints() error {
	if h.config.keep < 0 {
		return nil
	}
	list, err := h.ListCheckpoints()
	if err != nil {
		return errors.Wrapf(err, "%s failed to list saved checkpoints", h)
	}
	if len(list) <= h.config.keep {
		return nil
	}

	// Remove the excess checkpoints, starting from the earlier ones.
	list = list[:len(list)-h.config.keep]
	for _, fileName := range list {
		filePath := filepath.Join(h.config.dir, fileName)
		err = os.Remove(filePath)
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "%s failed to remove excess checkpoint file %q", h, filePath)
		}
	}
	return nil
}

// attachTo attaches Handler to a context.Context. The first thing it does if there is a checkpoint
// loaded is to set the Context's Params from the loaded values (except if the Handler was configured
// with ExcludeAllParams).
//
// attachTo can only be called once.
func (h *Handler) attachTo(ctx *context.Context) {
	if h.ctx != nil {
		Panicf("%s already attached to a Context, can not attach to another one", h.config.dir)
	}
	h.ctx = ctx
	h.prevContextLoader = ctx.Loader()
	ctx.SetLoader(h)

	// Sets ctx.Params with values read, if any.
	if h.config.includeParams {
		for _, p := range h.serialized.Params {
			// Check for un-scoped and scoped exclusions:
			if h.config.paramsToExclude[p.Key] || h.config.paramsToExclude[context.JoinScope(p.Scope, p.Key)] {
				continue
			}
			ctx.InAbsPath(p.Scope).SetParam(p.Key, p.Value)
		}
	}
}

// Dir returns the directory the Handler is configured to.
// It cannot be changed once the Handler was created.
//
// It returns "" (empty) if the Handler is nil.
func (h *Handler) Dir() string {
	if h == nil {
		return ""
	}
	return h.config.dir
}

// LoadVariable implements context.Loader.
// This is called by context.Context when the variable is created.
func (h *Handler) LoadVariable(ctx *context.Context, scope, name string) (value float64, found bool) {
	// Priority is based on the installation order. That means we attempt first the previously configured loaders.
	if h.prevContextLoader != nil {
		value, found = h.prevContextLoader.LoadVariable(ctx, scope, name)
		if found {
			return
		}
	}

	// Try to find variable in our currently loaded checkpoint.
	scopeAndName := context.JoinScope(scope, name)
	loaded, found := h.variableValues[scopeAndName]
	if !found {
		return
	}

	// "Consume" value, meaning remove it from Handler.
	delete(h.variableValues, scopeAndName)
	return float64(loaded.Value), true
}

// LoadedVariables for inspection: the values loaded, indexed by scope and name, not yet used by the context.
func (h *Handler) LoadedVariables() map[string]float64 {
	values := make(map[string]float64, len(h.variableValues))
	for key, v := range h.variableValues {
		values[key] = float64(v.Value)
	}
	return values
}

// ExcludeVarsFromSaving enumerates variables to be excluded from saving.
// The function can be called multiple times, adding variables to be excluded from saving.
func (h *Handler) ExcludeVarsFromSaving(vars ...*context.Variable) {
	for _, v := range vars {
		h.config.varsToExclude[v] = true
	}
}
