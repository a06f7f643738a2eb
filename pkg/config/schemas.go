package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Built-in schema names.
const (
	SchemaConfig      = "config"
	SchemaFlatControl = "flat-control"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.Mutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema(SchemaConfig, "#Config", builtinConfigSchema); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema(SchemaFlatControl, "#FlatControl", builtinFlatControlSchema); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles src and registers the definition it declares
// (for example "#Config") under name.
func (sr *SchemaRegistry) RegisterSchema(name, definition, src string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(src, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not declare %s", name, definition)
	}

	sr.schemas[name] = def
	return nil
}

// Validate unifies data with the named schema and requires a concrete result.
func (sr *SchemaRegistry) Validate(name string, data any) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	schema, ok := sr.schemas[name]
	if !ok {
		return fmt.Errorf("schema %s not found", name)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &CUEError{Errors: convertCUEErrors(err)}
	}
	return nil
}

// ValidateEach validates every element of items against the named schema and
// returns one ValidationError per failing element.
func (sr *SchemaRegistry) ValidateEach(name string, items []any) []ValidationError {
	var out []ValidationError
	for i, item := range items {
		if err := sr.Validate(name, item); err != nil {
			out = append(out, ValidationError{
				Path:    fmt.Sprintf("[%d]", i),
				Message: err.Error(),
			})
		}
	}
	return out
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	defaultSchemasOnce sync.Once
	defaultSchemas     *SchemaRegistry
)

// Schemas returns the shared registry holding the built-in schemas.
func Schemas() *SchemaRegistry {
	defaultSchemasOnce.Do(func() {
		defaultSchemas = NewSchemaRegistry()
	})
	return defaultSchemas
}

// ValidateDocument checks a raw YAML configuration file against the config
// schema. Unknown keys and wrongly typed values are rejected here, before
// struct validation sees the decoded result.
func ValidateDocument(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	return Schemas().Validate(SchemaConfig, raw)
}

const builtinConfigSchema = `
#Config: {
	strict?:         bool
	policy_dir?:     string
	policies?:       [...string]
	synonyms_file?:  string
	scripts_dir?:    string
	parallelism?:    int & >=0
	script_timeout?: string | int

	store?: {
		path?: string
	}

	logging?: {
		level?:  "trace" | "debug" | "info" | "warn" | "error" | "fatal"
		format?: "console" | "json"
		output?: string
	}

	metrics?: {
		enabled?:        bool
		listen_address?: string
		path?:           string
		namespace?:      string
	}

	tracing?: {
		enabled?:       bool
		exporter?:      "otlp" | "stdout" | "none"
		endpoint?:      string
		sampling_rate?: number & >=0 & <=1
	}
}
`

const builtinFlatControlSchema = `
#FlatControl: {
	id:           string
	metric_key:   string
	threshold:    number | string
	operator:     string
	description?: string
	severity?:    "low" | "medium" | "high" | "critical"
	input_mapping?: {[string]: string}
	params?: {[string]: _}
	...
}
`
