package config

import (
	"sort"
	"testing"

	"cuelang.org/go/cue/cuecontext"
)

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry(nil)

	customSchema := `
#CustomType: {
	field1: string
	field2: int
}
`

	if err := sr.RegisterSchema("custom", customSchema); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	schema, ok := sr.GetSchema("custom")
	if !ok {
		t.Fatal("expected to find custom schema")
	}
	if schema.Err() != nil {
		t.Errorf("schema has errors: %v", schema.Err())
	}

	names := sr.ListSchemas()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "custom" || names[1] != "problem" {
		t.Errorf("unexpected schemas: %v", names)
	}
}

func TestSchemaRegistry_RegisterInvalid(t *testing.T) {
	sr := NewSchemaRegistry(cuecontext.New())

	if err := sr.RegisterSchema("broken", `#Broken: {`); err == nil {
		t.Fatal("expected compile error")
	}
	if _, ok := sr.GetSchema("broken"); ok {
		t.Error("broken schema must not be registered")
	}
}

func TestSchemaRegistry_Definition(t *testing.T) {
	sr := NewSchemaRegistry(nil)

	for _, def := range []string{"#Problem", "#Predicate", "#SSHHost"} {
		if _, err := sr.Definition("problem", def); err != nil {
			t.Errorf("definition %s: %v", def, err)
		}
	}

	if _, err := sr.Definition("problem", "#Missing"); err == nil {
		t.Error("expected error for missing definition")
	}
	if _, err := sr.Definition("missing", "#Problem"); err == nil {
		t.Error("expected error for missing schema")
	}
}

func TestSchemaRegistry_ValidateProblem(t *testing.T) {
	sr := NewSchemaRegistry(nil)

	valid := func() Problem {
		return Problem{
			Name:     "flags",
			Universe: []string{"-O2", "-g"},
			Strategy: "punch",
			Predicate: PredicateSpec{
				Kind:    PredicateCommand,
				Command: []string{"./repro.sh"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Problem)
		wantErr bool
	}{
		{
			name:   "valid problem",
			mutate: func(*Problem) {},
		},
		{
			name: "valid ssh problem",
			mutate: func(p *Problem) {
				p.Predicate.Kind = PredicateSSH
				p.Predicate.Host = &SSHHost{Address: "10.0.0.1", Port: 22, User: "ci", KeyFile: "id_ed25519"}
			},
		},
		{
			name:    "bad name",
			mutate:  func(p *Problem) { p.Name = "invalid name!" },
			wantErr: true,
		},
		{
			name:    "unknown strategy",
			mutate:  func(p *Problem) { p.Strategy = "greedy" },
			wantErr: true,
		},
		{
			name:    "unknown predicate kind",
			mutate:  func(p *Problem) { p.Predicate.Kind = "docker" },
			wantErr: true,
		},
		{
			name: "port out of range",
			mutate: func(p *Problem) {
				p.Predicate.Kind = PredicateSSH
				p.Predicate.Host = &SSHHost{Address: "host", Port: 70000, User: "ci"}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)

			err := sr.ValidateAgainstSchema("problem", "#Problem", p)
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
