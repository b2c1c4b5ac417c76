package config

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/firecontain/pkg/scenario"
)

// DefaultStarlarkTimeout bounds a single script execution.
const DefaultStarlarkTimeout = 30 * time.Second

// StarlarkEvaluator executes Starlark scripts safely.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = DefaultStarlarkTimeout
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// Evaluate executes a Starlark script with the given input and returns its
// exported globals. Globals starting with "_" and functions are not exported.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, input map[string]interface{}) (*StarlarkResult, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "firecontain",
		Print: func(_ *starlark.Thread, msg string) {
			// Suppress print for security
		},
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			thread.Cancel(evalCtx.Err().Error())
		case <-done:
		}
	}()

	result, err := se.evaluateSync(thread, script, input)
	if err != nil {
		if evalCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("starlark execution timeout after %v", se.timeout)
		}
		return &StarlarkResult{
			ExecutionTime: time.Since(startTime),
			Error:         err.Error(),
		}, err
	}

	result.ExecutionTime = time.Since(startTime)
	return result, nil
}

func (se *StarlarkEvaluator) evaluateSync(thread *starlark.Thread, script string, input map[string]interface{}) (*StarlarkResult, error) {
	predeclared := starlark.StringDict{
		"struct":        starlarkstruct.Default,
		"resource":      starlark.NewBuiltin("resource", builtinResource),
		"diurnal_curve": starlark.NewBuiltin("diurnal_curve", builtinDiurnalCurve),
	}

	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFile(thread, "scenario.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]interface{})
	for name, val := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		if _, ok := val.(starlark.Callable); ok {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}

	return &StarlarkResult{
		Output: output,
	}, nil
}

// GenerateScenarios runs a generator and decodes its "scenarios" global.
// A relative File is resolved against baseDir.
func (se *StarlarkEvaluator) GenerateScenarios(ctx context.Context, gen Generator, baseDir string) ([]*scenario.Scenario, error) {
	script, err := gen.source(baseDir)
	if err != nil {
		return nil, err
	}

	result, err := se.Evaluate(ctx, script, gen.Input)
	if err != nil {
		return nil, fmt.Errorf("generator %s: %w", gen.label(), err)
	}

	raw, ok := result.Output["scenarios"]
	if !ok {
		return nil, fmt.Errorf("generator %s: script does not define scenarios", gen.label())
	}

	// Round-trip through JSON so the scenario tags and enum validation apply.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("generator %s: failed to encode scenarios: %w", gen.label(), err)
	}
	var scenarios []*scenario.Scenario
	if err := json.Unmarshal(data, &scenarios); err != nil {
		return nil, fmt.Errorf("generator %s: scenarios must be a list of scenario dicts: %w", gen.label(), err)
	}
	return scenarios, nil
}

// GenerateDiurnal runs a script and returns its "diurnal" global, which must
// hold 24 non-negative hourly spread rates.
func (se *StarlarkEvaluator) GenerateDiurnal(ctx context.Context, script string, input map[string]interface{}) ([]float64, error) {
	result, err := se.Evaluate(ctx, script, input)
	if err != nil {
		return nil, err
	}

	list, ok := result.Output["diurnal"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("script must define diurnal as a list")
	}
	if len(list) != 24 {
		return nil, fmt.Errorf("diurnal must have 24 entries, got %d", len(list))
	}

	rates := make([]float64, len(list))
	for i, v := range list {
		switch n := v.(type) {
		case int64:
			rates[i] = float64(n)
		case float64:
			rates[i] = n
		default:
			return nil, fmt.Errorf("diurnal[%d] is %T, not a number", i, v)
		}
		if rates[i] < 0 || math.IsNaN(rates[i]) {
			return nil, fmt.Errorf("diurnal[%d] must be non-negative", i)
		}
	}
	return rates, nil
}

func (g Generator) source(baseDir string) (string, error) {
	switch {
	case g.Script != "" && g.File != "":
		return "", fmt.Errorf("generator %s: script and file are mutually exclusive", g.label())
	case g.Script != "":
		return g.Script, nil
	case g.File != "":
		path := g.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("generator %s: failed to read script: %w", g.label(), err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("generator %s: no script", g.label())
	}
}

func (g Generator) label() string {
	if g.Name != "" {
		return g.Name
	}
	if g.File != "" {
		return g.File
	}
	return "inline"
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case []float64:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			list[i] = starlark.Float(item)
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		return fromIterable(val, val.Len())
	case starlark.Tuple:
		return fromIterable(val, val.Len())
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

func fromIterable(it starlark.Indexable, n int) ([]interface{}, error) {
	list := make([]interface{}, n)
	for i := 0; i < n; i++ {
		item, err := fromStarlarkValue(it.Index(i))
		if err != nil {
			return nil, err
		}
		list[i] = item
	}
	return list, nil
}

// builtinResource builds a resource dict:
// resource(description, production, arrival=0, duration=0, side="left", base_cost=0, hour_cost=0).
func builtinResource(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var description string
	side := "left"
	var production, arrival, duration, baseCost, hourCost starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"description", &description,
		"production", &production,
		"arrival?", &arrival,
		"duration?", &duration,
		"side?", &side,
		"base_cost?", &baseCost,
		"hour_cost?", &hourCost,
	); err != nil {
		return nil, err
	}

	dict := starlark.NewDict(7)
	if err := dict.SetKey(starlark.String("description"), starlark.String(description)); err != nil {
		return nil, err
	}
	if err := dict.SetKey(starlark.String("side"), starlark.String(side)); err != nil {
		return nil, err
	}
	for _, kv := range []struct {
		key string
		val starlark.Value
	}{
		{"production", production},
		{"arrival", arrival},
		{"duration", duration},
		{"base_cost", baseCost},
		{"hour_cost", hourCost},
	} {
		f, err := floatArg(b, kv.key, kv.val)
		if err != nil {
			return nil, err
		}
		if err := dict.SetKey(starlark.String(kv.key), starlark.Float(f)); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

// builtinDiurnalCurve returns 24 hourly rates following a cosine between
// trough and peak: diurnal_curve(peak, trough, peak_hour=15).
func builtinDiurnalCurve(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var peakArg, troughArg starlark.Value
	peakHourArg := starlark.Value(starlark.MakeInt(15))
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "peak", &peakArg, "trough", &troughArg, "peak_hour?", &peakHourArg); err != nil {
		return nil, err
	}
	peak, err := floatArg(b, "peak", peakArg)
	if err != nil {
		return nil, err
	}
	trough, err := floatArg(b, "trough", troughArg)
	if err != nil {
		return nil, err
	}
	peakHour, err := floatArg(b, "peak_hour", peakHourArg)
	if err != nil {
		return nil, err
	}
	if peak < trough {
		return nil, fmt.Errorf("%s: peak %g is below trough %g", b.Name(), peak, trough)
	}

	list := make([]starlark.Value, 24)
	for h := range list {
		phase := 2 * math.Pi * (float64(h) - peakHour) / 24
		list[h] = starlark.Float(trough + (peak-trough)*(1+math.Cos(phase))/2)
	}
	return starlark.NewList(list), nil
}

// floatArg converts a numeric argument; an omitted optional argument is 0.
func floatArg(b *starlark.Builtin, name string, v starlark.Value) (float64, error) {
	if v == nil {
		return 0, nil
	}
	f, ok := starlark.AsFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s: %s must be a number, got %s", b.Name(), name, v.Type())
	}
	return f, nil
}
