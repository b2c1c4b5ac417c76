package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/openfroyo/firecontain/pkg/scenario"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex

	// cueMu serializes use of ctx, which is not safe for concurrent use.
	cueMu sync.Mutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	return newSchemaRegistry(cuecontext.New())
}

func newSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}
	sr.registerBuiltInSchemas()
	return sr
}

// builtinDefinitions maps schema names to definitions in builtinSchema.
var builtinDefinitions = map[string]string{
	"scenario": "#Scenario",
	"resource": "#Resource",
	"roster":   "#Roster",
	"units":    "#Units",
	"anchor":   "#Anchor",
}

func (sr *SchemaRegistry) registerBuiltInSchemas() {
	val := sr.ctx.CompileString(builtinSchema, cue.Filename("builtin.cue"))
	if err := val.Err(); err != nil {
		panic(fmt.Sprintf("builtin schema does not compile: %v", err))
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	for name, def := range builtinDefinitions {
		sr.schemas[name] = val.LookupPath(cue.ParsePath(def))
	}
}

// RegisterSchema compiles and registers a CUE schema. When the source
// declares exactly one definition, that definition is the schema.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.cueMu.Lock()
	defer sr.cueMu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	if def, ok := singleDefinition(val); ok {
		val = def
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.schemas[name] = val
	return nil
}

func singleDefinition(val cue.Value) (cue.Value, bool) {
	iter, err := val.Fields(cue.Definitions(true))
	if err != nil {
		return cue.Value{}, false
	}

	var (
		found cue.Value
		count int
	)
	for iter.Next() {
		if iter.Selector().IsDefinition() {
			found = iter.Value()
			count++
		}
	}
	return found, count == 1
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates Go data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(_ context.Context, schemaName string, data interface{}) error {
	sr.cueMu.Lock()
	defer sr.cueMu.Unlock()

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	if err := sr.check(schemaName, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// check unifies val with a schema and requires a concrete result. The caller
// holds cueMu. The returned error keeps CUE positions.
func (sr *SchemaRegistry) check(schemaName string, val cue.Value) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}
	return schema.Unify(val).Validate(cue.Concrete(true))
}

// ValidateScenario validates a scenario against the scenario schema.
func (sr *SchemaRegistry) ValidateScenario(ctx context.Context, s *scenario.Scenario) error {
	return sr.ValidateAgainstSchema(ctx, "scenario", s)
}

// ValidateRoster validates a resource list against the roster schema.
func (sr *SchemaRegistry) ValidateRoster(ctx context.Context, resources []scenario.ResourceSpec) error {
	return sr.ValidateAgainstSchema(ctx, "roster", resources)
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Built-in schema definitions. Fields mirror the JSON names of
// scenario.Scenario; roster, roster_file and diurnal_script exist only in
// documents and are resolved by the parser.
const builtinSchema = `
#Units: {
	length?: string
	area?:   string
	speed?:  string
	time?:   string
}

#Resource: {
	description: string & !=""

	// Times are in the scenario time unit, production in its speed unit.
	arrival?:    number & >=0
	duration?:   number & >=0
	production?: number & >=0
	base_cost?:  number & >=0
	hour_cost?:  number & >=0
	side?:       "left" | "right" | "both" | "neither"
}

#Roster: [...#Resource]

#Anchor: {
	lon:      number & >=-180 & <=180
	lat:      number & >=-85 & <=85
	heading?: number & >=0 & <360
}

#Scenario: {
	name?:        string & !=""
	description?: string
	units?:       #Units

	report_size: number & >=0
	report_rate: number & >=0
	lw_ratio?:   number & >=0

	diurnal?:        [...number & >=0]
	diurnal_script?: string
	start_minute?:   number & >=0 & <1440

	tactic?:          "head" | "rear"
	attack_distance?: number & >=0
	retry?:           bool

	min_steps?:  int & >=0
	max_steps?:  int & >=0
	max_passes?: int & >=0

	max_fire_size?: number & >=0
	max_fire_time?: number & >=0

	roster?:      string
	roster_file?: string
	resources?:   null | #Roster
	anchor?:      #Anchor
}
`
