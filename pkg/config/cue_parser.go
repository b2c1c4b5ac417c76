package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/firecontain/pkg/scenario"
)

// documentExtensions are the file types Parse accepts.
var documentExtensions = map[string]bool{
	".cue":  true,
	".yaml": true,
	".yml":  true,
	".json": true,
}

// CUEParser parses and validates scenario documents. CUE, YAML and JSON
// sources are unified into one value before extraction.
type CUEParser struct {
	ctx               *cue.Context
	schemaRegistry    *SchemaRegistry
	starlarkEvaluator *StarlarkEvaluator
}

// ParserOption configures a CUEParser.
type ParserOption func(*CUEParser)

// WithStarlarkTimeout bounds each generator and diurnal script.
func WithStarlarkTimeout(timeout time.Duration) ParserOption {
	return func(cp *CUEParser) {
		cp.starlarkEvaluator = NewStarlarkEvaluator(timeout)
	}
}

// NewCUEParser creates a new parser. The parser and its schema registry
// share one CUE context.
func NewCUEParser(opts ...ParserOption) *CUEParser {
	ctx := cuecontext.New()
	cp := &CUEParser{
		ctx:               ctx,
		schemaRegistry:    newSchemaRegistry(ctx),
		starlarkEvaluator: NewStarlarkEvaluator(DefaultStarlarkTimeout),
	}
	for _, opt := range opts {
		opt(cp)
	}
	return cp
}

// Evaluate parses sources and returns their scenarios, failing on any
// validation error.
func (cp *CUEParser) Evaluate(ctx context.Context, sources []string) ([]*scenario.Scenario, error) {
	parsed, err := cp.Parse(ctx, sources)
	if err != nil {
		return nil, err
	}
	if err := parsed.Err(); err != nil {
		return nil, err
	}
	return parsed.Scenarios, nil
}

// Parse parses scenario documents from files and directories. Problems in
// the documents are reported in ParsedConfig.Errors; the returned error is
// reserved for unreadable sources.
func (cp *CUEParser) Parse(ctx context.Context, sources []string) (*ParsedConfig, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var files []string
	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}
		if info.IsDir() {
			found, err := FindDocuments(source)
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				return nil, fmt.Errorf("no scenario documents found in %s", source)
			}
			files = append(files, found...)
		} else {
			files = append(files, source)
		}
	}

	cp.schemaRegistry.cueMu.Lock()
	defer cp.schemaRegistry.cueMu.Unlock()

	var (
		value       cue.Value
		parseErrors []ValidationError
	)
	for _, file := range files {
		val, errs := cp.loadFile(file)
		if len(errs) > 0 {
			parseErrors = append(parseErrors, errs...)
			continue
		}
		if value.Exists() {
			value = value.Unify(val)
		} else {
			value = val
		}
	}

	if len(parseErrors) == 0 {
		if err := value.Err(); err != nil {
			parseErrors = append(parseErrors, convertCUEErrors(err, "")...)
		}
	}
	if len(parseErrors) > 0 {
		return &ParsedConfig{
			SourceFiles: files,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	return cp.extractConfig(ctx, value, files, baseDir(sources[0])), nil
}

// ParseInline parses inline CUE content. Relative roster and generator
// files are resolved against the working directory.
func (cp *CUEParser) ParseInline(ctx context.Context, content string) (*ParsedConfig, error) {
	cp.schemaRegistry.cueMu.Lock()
	defer cp.schemaRegistry.cueMu.Unlock()

	val := cp.ctx.CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		return &ParsedConfig{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      convertCUEErrors(err, "inline"),
		}, nil
	}

	return cp.extractConfig(ctx, val, []string{"inline"}, "."), nil
}

// GetSchemaRegistry returns the schema registry.
func (cp *CUEParser) GetSchemaRegistry() *SchemaRegistry {
	return cp.schemaRegistry
}

// FindDocuments lists the scenario documents under dir, sorted by path.
func FindDocuments(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != dir && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if documentExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return files, nil
}

func baseDir(source string) string {
	info, err := os.Stat(source)
	if err == nil && info.IsDir() {
		return source
	}
	return filepath.Dir(source)
}

// loadFile compiles a CUE file or encodes a YAML or JSON file.
func (cp *CUEParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: SeverityError,
		}}
	}

	var val cue.Value
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		var doc map[string]interface{}
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return cue.Value{}, []ValidationError{{
				File:     path,
				Message:  fmt.Sprintf("failed to decode document: %v", err),
				Severity: SeverityError,
			}}
		}
		val = cp.ctx.Encode(doc)
	default:
		val = cp.ctx.CompileString(string(content), cue.Filename(path))
	}

	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEErrors(err, path)
	}
	return val, nil
}

// extractConfig pulls rosters, scenarios and generators out of a unified
// document. The caller holds the registry's cueMu.
func (cp *CUEParser) extractConfig(ctx context.Context, val cue.Value, sourceFiles []string, dir string) *ParsedConfig {
	pc := &ParsedConfig{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
		Rosters:     make(map[string][]scenario.ResourceSpec),
	}
	fallbackFile := ""
	if len(sourceFiles) == 1 {
		fallbackFile = sourceFiles[0]
	}
	fail := func(path string, err error) {
		pc.Errors = append(pc.Errors, ValidationError{
			File:     fallbackFile,
			Path:     path,
			Message:  err.Error(),
			Severity: SeverityError,
		})
	}

	if rosters := val.LookupPath(cue.ParsePath("rosters")); rosters.Exists() {
		iter, err := rosters.Fields()
		if err != nil {
			pc.Errors = append(pc.Errors, convertCUEErrors(err, fallbackFile, "rosters")...)
		} else {
			for iter.Next() {
				name := iter.Selector().Unquoted()
				path := "rosters." + name
				if err := cp.schemaRegistry.check("roster", iter.Value()); err != nil {
					pc.Errors = append(pc.Errors, convertCUEErrors(err, fallbackFile, path)...)
					continue
				}
				var resources []scenario.ResourceSpec
				if err := decodeValue(iter.Value(), &resources); err != nil {
					fail(path, err)
					continue
				}
				pc.Rosters[name] = resources
			}
		}
	}

	scenarios := val.LookupPath(cue.ParsePath("scenarios"))
	switch scenarios.IncompleteKind() {
	case cue.StructKind:
		iter, err := scenarios.Fields()
		if err != nil {
			pc.Errors = append(pc.Errors, convertCUEErrors(err, fallbackFile, "scenarios")...)
			break
		}
		for iter.Next() {
			key := iter.Selector().Unquoted()
			cp.extractScenario(ctx, pc, key, "scenarios."+key, iter.Value(), dir, fallbackFile)
		}
	case cue.ListKind:
		list, err := scenarios.List()
		if err != nil {
			pc.Errors = append(pc.Errors, convertCUEErrors(err, fallbackFile, "scenarios")...)
			break
		}
		for idx := 0; list.Next(); idx++ {
			cp.extractScenario(ctx, pc, "", fmt.Sprintf("scenarios[%d]", idx), list.Value(), dir, fallbackFile)
		}
	case cue.BottomKind:
	default:
		fail("scenarios", fmt.Errorf("scenarios must be a struct or a list"))
	}

	if generators := val.LookupPath(cue.ParsePath("generators")); generators.Exists() {
		var gens []Generator
		if err := decodeValue(generators, &gens); err != nil {
			fail("generators", err)
		}
		for i, gen := range gens {
			path := fmt.Sprintf("generators[%d]", i)
			generated, err := cp.starlarkEvaluator.GenerateScenarios(ctx, gen, dir)
			if err != nil {
				fail(path, err)
				continue
			}
			for _, s := range generated {
				if err := cp.validateGenerated(s); err != nil {
					fail(path+"."+s.Name, err)
					continue
				}
				pc.Scenarios = append(pc.Scenarios, s)
			}
		}
	}

	seen := make(map[string]bool, len(pc.Scenarios))
	for _, s := range pc.Scenarios {
		if seen[s.Name] {
			fail("scenarios."+s.Name, fmt.Errorf("duplicate scenario name %q", s.Name))
		}
		seen[s.Name] = true
	}

	return pc
}

// extractScenario validates one scenario entry, resolves its roster and
// diurnal references and appends it to pc.
func (cp *CUEParser) extractScenario(ctx context.Context, pc *ParsedConfig, key, path string, val cue.Value, dir, fallbackFile string) {
	fail := func(err error) {
		pc.Errors = append(pc.Errors, ValidationError{
			File:     fallbackFile,
			Path:     path,
			Message:  err.Error(),
			Severity: SeverityError,
		})
	}

	if err := cp.schemaRegistry.check("scenario", val); err != nil {
		pc.Errors = append(pc.Errors, convertCUEErrors(err, fallbackFile, path)...)
		return
	}

	var s scenario.Scenario
	if err := decodeValue(val, &s); err != nil {
		fail(err)
		return
	}
	if s.Name == "" {
		s.Name = key
	}

	var roster []scenario.ResourceSpec
	if name, ok := stringField(val, "roster"); ok {
		r, found := pc.Rosters[name]
		if !found {
			fail(fmt.Errorf("unknown roster %q", name))
			return
		}
		roster = append(roster, r...)
	}
	if file, ok := stringField(val, "roster_file"); ok {
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}
		r, err := LoadRoster(file)
		if err != nil {
			fail(err)
			return
		}
		roster = append(roster, r...)
	}
	if len(roster) > 0 {
		s.Resources = append(roster, s.Resources...)
	}

	if script, ok := stringField(val, "diurnal_script"); ok {
		if len(s.Diurnal) > 0 {
			fail(fmt.Errorf("diurnal and diurnal_script are mutually exclusive"))
			return
		}
		curve, err := cp.starlarkEvaluator.GenerateDiurnal(ctx, script, map[string]interface{}{
			"report_rate":  s.ReportRate,
			"start_minute": s.StartMinute,
		})
		if err != nil {
			fail(err)
			return
		}
		s.Diurnal = curve
	}

	if err := s.Validate(); err != nil {
		fail(err)
		return
	}
	pc.Scenarios = append(pc.Scenarios, &s)
}

// validateGenerated checks a generated scenario against the scenario schema
// and the Go validation rules. The caller holds cueMu.
func (cp *CUEParser) validateGenerated(s *scenario.Scenario) error {
	val := cp.ctx.Encode(s)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to encode scenario: %w", err)
	}
	if err := cp.schemaRegistry.check("scenario", val); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return s.Validate()
}

// decodeValue decodes through JSON so the json tags and the enum
// unmarshalers of the scenario types apply.
func decodeValue(val cue.Value, target interface{}) error {
	data, err := val.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to export value: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode value: %w", err)
	}
	return nil
}

func stringField(val cue.Value, field string) (string, bool) {
	v := val.LookupPath(cue.ParsePath(field))
	if !v.Exists() {
		return "", false
	}
	s, err := v.String()
	if err != nil || s == "" {
		return "", false
	}
	return s, true
}

// convertCUEErrors converts CUE errors to ValidationErrors. Errors without a
// position take file; path, when given, prefixes the CUE path.
func convertCUEErrors(err error, file string, path ...string) []ValidationError {
	var validationErrors []ValidationError

	prefix := strings.Join(path, ".")
	for _, e := range errors.Errors(err) {
		ve := ValidationError{
			File:     file,
			Message:  errors.Details(e, nil),
			Severity: SeverityError,
		}
		if pos := errors.Positions(e); len(pos) > 0 && pos[0].Filename() != "" {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		ve.Path = strings.Join(append([]string{prefix}, e.Path()...), ".")
		ve.Path = strings.Trim(ve.Path, ".")
		validationErrors = append(validationErrors, ve)
	}

	return validationErrors
}
