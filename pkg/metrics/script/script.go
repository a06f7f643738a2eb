// Package script registers metrics written in Starlark.
//
// A script file named <key>.star defines
//
//	def compute(columns, params):
//	    ...
//	    return value            # or (value, {"note": "..."})
//
// columns maps each bound role to its column values (numbers where the cell
// parses as one, strings otherwise); params holds the static parameters.
// Calling skip("reason") marks the control as not applicable to the data.
package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/dataset"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/metrics"
)

const (
	// Extension is the file extension of metric scripts.
	Extension = ".star"

	// DefaultTimeout bounds a single compute call.
	DefaultTimeout = 5 * time.Second

	entryPoint = "compute"
	skipLocal  = "venturalitica.skip"
)

// Metric is a Starlark-backed metrics.MetricFn.
type Metric struct {
	key      string
	filename string
	source   string
	timeout  time.Duration
	logger   zerolog.Logger
}

// New compiles-checks source and returns the metric. The script must define
// a callable named compute.
func New(key, filename, source string, timeout time.Duration, logger zerolog.Logger) (*Metric, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	m := &Metric{
		key:      key,
		filename: filename,
		source:   source,
		timeout:  timeout,
		logger:   logger.With().Str("component", "script-metric").Str("metric", key).Logger(),
	}

	globals, err := m.exec(newThread(key))
	if err != nil {
		return nil, err
	}
	if _, ok := globals[entryPoint].(starlark.Callable); !ok {
		return nil, fmt.Errorf("script %s: %s is not defined", filename, entryPoint)
	}
	return m, nil
}

// Key returns the metric key.
func (m *Metric) Key() string {
	return m.key
}

func newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name:  "metric:" + name,
		Print: func(_ *starlark.Thread, _ string) {},
	}
}

func (m *Metric) exec(thread *starlark.Thread) (starlark.StringDict, error) {
	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"skip":   starlark.NewBuiltin("skip", builtinSkip),
	}
	globals, err := starlark.ExecFile(thread, m.filename, m.source, predeclared)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", m.filename, err)
	}
	return globals, nil
}

// Compute runs the script's compute function. The script is re-executed for
// every call so no state leaks between controls.
func (m *Metric) Compute(ctx context.Context, data *dataset.Frame, roles metrics.Roles) (metrics.Value, error) {
	evalCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	thread := newThread(m.key)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			thread.Cancel(evalCtx.Err().Error())
		case <-done:
		}
	}()

	globals, err := m.exec(thread)
	if err != nil {
		return metrics.Value{}, m.classify(thread, err)
	}
	fn, ok := globals[entryPoint].(starlark.Callable)
	if !ok {
		return metrics.Value{}, metrics.Failure(fmt.Sprintf("%s is not defined", entryPoint), nil)
	}

	cols, err := columnsArg(data, roles)
	if err != nil {
		return metrics.Value{}, err
	}
	params, err := toStarlarkValue(roles.Params())
	if err != nil {
		return metrics.Value{}, metrics.Failure("failed to convert params", err)
	}

	start := time.Now()
	out, err := starlark.Call(thread, fn, starlark.Tuple{cols, params}, nil)
	m.logger.Debug().Dur("duration", time.Since(start)).Msg("Script metric evaluated")
	if err != nil {
		return metrics.Value{}, m.classify(thread, err)
	}
	return toValue(out)
}

func (m *Metric) classify(thread *starlark.Thread, err error) error {
	if msg, ok := thread.Local(skipLocal).(string); ok {
		return metrics.Skip("%s", msg)
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), context.DeadlineExceeded.Error()) {
		return metrics.Failure(fmt.Sprintf("script timed out after %v", m.timeout), err)
	}
	return metrics.Failure("script failed", err)
}

func builtinSkip(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "msg?", &msg); err != nil {
		return nil, err
	}
	if msg == "" {
		msg = "skipped by script"
	}
	thread.SetLocal(skipLocal, msg)
	return nil, errors.New(msg)
}

// columnsArg builds the columns dict passed to compute. Roles bound to a
// column absent from data are omitted so scripts can test membership.
func columnsArg(data *dataset.Frame, roles metrics.Roles) (*starlark.Dict, error) {
	bindings := roles.Columns()
	names := make([]string, 0, len(bindings))
	for role := range bindings {
		names = append(names, role)
	}
	sort.Strings(names)

	dict := starlark.NewDict(len(names))
	for _, role := range names {
		col, ok := roles.Column(role)
		if !ok {
			continue
		}
		s, ok := data.Column(col)
		if !ok {
			continue
		}
		values := make([]starlark.Value, s.Len())
		for i := range values {
			values[i] = cellValue(s.At(i))
		}
		if err := dict.SetKey(starlark.String(role), starlark.NewList(values)); err != nil {
			return nil, metrics.Failure("failed to build columns", err)
		}
	}
	return dict, nil
}

func cellValue(raw string) starlark.Value {
	t := strings.TrimSpace(raw)
	if i, err := strconv.ParseInt(t, 10, 64); err == nil {
		return starlark.MakeInt64(i)
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		return starlark.Float(f)
	}
	return starlark.String(raw)
}

// toValue accepts a number or a (number, dict) tuple.
func toValue(v starlark.Value) (metrics.Value, error) {
	var meta map[string]any
	if tuple, ok := v.(starlark.Tuple); ok {
		if len(tuple) != 2 {
			return metrics.Value{}, metrics.Failure(fmt.Sprintf("compute returned a %d-tuple, want (value, metadata)", len(tuple)), nil)
		}
		goMeta, err := fromStarlarkValue(tuple[1])
		if err != nil {
			return metrics.Value{}, metrics.Failure("invalid metadata", err)
		}
		if goMeta != nil {
			m, ok := goMeta.(map[string]any)
			if !ok {
				return metrics.Value{}, metrics.Failure(fmt.Sprintf("metadata must be a dict, got %s", tuple[1].Type()), nil)
			}
			meta = m
		}
		v = tuple[0]
	}

	f, ok := starlark.AsFloat(v)
	if !ok {
		return metrics.Value{}, metrics.Failure(fmt.Sprintf("compute returned %s, want a number", v.Type()), nil)
	}
	return metrics.Value{Number: f, Metadata: meta}, nil
}

// LoadDir registers every <key>.star file under dir into registry and
// returns the registered keys in order.
func LoadDir(dir string, registry *metrics.Registry, timeout time.Duration, logger zerolog.Logger) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scripts directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != Extension {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		src, err := os.ReadFile(path)
		if err != nil {
			return keys, fmt.Errorf("failed to read script %s: %w", path, err)
		}

		key := strings.TrimSuffix(entry.Name(), Extension)
		m, err := New(key, path, string(src), timeout, logger)
		if err != nil {
			return keys, err
		}
		if err := registry.Register(key, m); err != nil {
			return keys, err
		}
		keys = append(keys, key)
		logger.Info().Str("metric", key).Str("path", path).Msg("Script metric registered")
	}
	return keys, nil
}
