package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages the CUE definitions problem files are unified with.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a schema registry with the built-in schemas.
// Values from the registry may only be unified with values built by the
// same context, so loaders pass their own.
func NewSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	if ctx == nil {
		ctx = cuecontext.New()
	}
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema("problem", builtinProblemSchema); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles schema and registers it under name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Definition looks up a definition such as "#Problem" in a named schema.
func (sr *SchemaRegistry) Definition(schemaName, def string) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}
	v := schema.LookupPath(cue.ParsePath(def))
	if !v.Exists() {
		return cue.Value{}, fmt.Errorf("definition %s not found in schema %s", def, schemaName)
	}
	return v, nil
}

// ValidateAgainstSchema encodes data and unifies it with a definition.
func (sr *SchemaRegistry) ValidateAgainstSchema(schemaName, def string, data interface{}) error {
	schema, err := sr.Definition(schemaName, def)
	if err != nil {
		return err
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

const builtinProblemSchema = `
// Problem is one core enumeration.
#Problem: {
	name:         string & =~"^[a-zA-Z0-9_.-]+$"
	description?: string
	universe:     [...string]
	strategy?:    "punch" | "exhaustive"
	minimizer?:   "ddmin" | "partition"
	partitions?:  [...[...string]]
	timeout?:     string
	render?:      string
	labels?: {[string]: string}
	predicate: #Predicate
}

#Predicate: {
	kind:     "starlark" | "rego" | "wasm" | "command" | "ssh"
	script?:  string
	file?:    string
	query?:   string
	command?: [...string]
	env?: {[string]: string}
	workdir?: string
	host?:    #SSHHost
	timeout?: string
	args?: {...}
}

#SSHHost: {
	address:                   string
	port?:                     int & >0 & <65536
	user:                      string
	key_file?:                 string
	password?:                 string
	known_hosts_file?:         string
	insecure_ignore_host_key?: bool
}
`
