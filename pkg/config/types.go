package config

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

// Problem describes one core enumeration: the universe of element names,
// the monotone predicate over subsets of it, and how to search.
type Problem struct {
	// Name identifies the problem in logs, history and the CLI.
	Name string `json:"name" yaml:"name" validate:"required,problemname"`

	// Description is free text shown by the CLI.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Universe lists the element names. Names must be unique.
	Universe []string `json:"universe" yaml:"universe" validate:"unique,dive,required"`

	// Strategy selects the enumeration engine (punch, exhaustive).
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty" validate:"omitempty,oneof=punch exhaustive"`

	// Minimizer selects the punch engine's minimizer (ddmin, partition).
	Minimizer string `json:"minimizer,omitempty" yaml:"minimizer,omitempty" validate:"omitempty,oneof=ddmin partition"`

	// Partitions lists groups of elements known to interact. Elements of
	// different groups are minimized independently by the partition minimizer.
	Partitions [][]string `json:"partitions,omitempty" yaml:"partitions,omitempty" validate:"omitempty,dive,min=1,dive,required"`

	// Timeout bounds the whole run, e.g. "10m".
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"omitempty,duration"`

	// Render is a text/template formatting a subset for logs and output.
	// It receives the subset as a []string, e.g. {{join . ","}}.
	Render string `json:"render,omitempty" yaml:"render,omitempty" validate:"omitempty,template"`

	// Labels are free-form key/value pairs stored with run history.
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`

	// Predicate configures how a subset is checked.
	Predicate PredicateSpec `json:"predicate" yaml:"predicate"`

	// Source is the file the problem was loaded from.
	Source string `json:"-" yaml:"-"`
}

// Predicate kinds.
const (
	PredicateStarlark = "starlark"
	PredicateRego     = "rego"
	PredicateWASM     = "wasm"
	PredicateCommand  = "command"
	PredicateSSH      = "ssh"
)

// PredicateSpec configures a predicate adapter.
type PredicateSpec struct {
	// Kind selects the adapter (starlark, rego, wasm, command, ssh).
	Kind string `json:"kind" yaml:"kind" validate:"required,oneof=starlark rego wasm command ssh"`

	// Script is inline Starlark or Rego source.
	Script string `json:"script,omitempty" yaml:"script,omitempty"`

	// File is a Starlark script, Rego policy or WASM module on disk,
	// relative to the problem file.
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// Query overrides the Rego query. It defaults to data.<package>.check.
	Query string `json:"query,omitempty" yaml:"query,omitempty"`

	// Command is the argv run for command and ssh predicates.
	Command []string `json:"command,omitempty" yaml:"command,omitempty" validate:"required_if=Kind command,required_if=Kind ssh"`

	// Env adds environment variables to command predicates.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// WorkDir is the working directory of command predicates.
	WorkDir string `json:"workdir,omitempty" yaml:"workdir,omitempty"`

	// Host is the remote machine of ssh predicates.
	Host *SSHHost `json:"host,omitempty" yaml:"host,omitempty" validate:"required_if=Kind ssh"`

	// Timeout bounds a single check, e.g. "30s".
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"omitempty,duration"`

	// Args are passed to Starlark and Rego predicates as extra input.
	Args map[string]interface{} `json:"args,omitempty" yaml:"args,omitempty"`
}

// SSHHost describes the remote end of an ssh predicate.
type SSHHost struct {
	Address               string `json:"address" yaml:"address" validate:"required,hostname_rfc1123|ip"`
	Port                  int    `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	User                  string `json:"user" yaml:"user" validate:"required"`
	KeyFile               string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	Password              string `json:"password,omitempty" yaml:"password,omitempty"`
	KnownHostsFile        string `json:"known_hosts_file,omitempty" yaml:"known_hosts_file,omitempty"`
	InsecureIgnoreHostKey bool   `json:"insecure_ignore_host_key,omitempty" yaml:"insecure_ignore_host_key,omitempty"`
}

// StrategyName returns the configured strategy, defaulting to punch.
func (p *Problem) StrategyName() string {
	if p.Strategy == "" {
		return "punch"
	}
	return p.Strategy
}

// RunTimeout returns the parsed run timeout, or zero when unset.
func (p *Problem) RunTimeout() time.Duration {
	return parseDurationOrZero(p.Timeout)
}

// CheckTimeout returns the parsed per-check timeout, or zero when unset.
func (s *PredicateSpec) CheckTimeout() time.Duration {
	return parseDurationOrZero(s.Timeout)
}

// ResolveFile returns the predicate file resolved against the directory of
// the problem's source file.
func (p *Problem) ResolveFile() string {
	if p.Predicate.File == "" || filepath.IsAbs(p.Predicate.File) || p.Source == "" {
		return p.Predicate.File
	}
	return filepath.Join(filepath.Dir(p.Source), p.Predicate.File)
}

// renderFuncs are available to Render templates.
var renderFuncs = template.FuncMap{
	"join": strings.Join,
}

func parseRender(text string) (*template.Template, error) {
	return template.New("render").Funcs(renderFuncs).Option("missingkey=error").Parse(text)
}

// Renderer returns a function formatting subsets with the Render template,
// or nil when no template is set. A subset the template fails on is shown
// as a literal listing.
func (p *Problem) Renderer() (func(subset []string) string, error) {
	if p.Render == "" {
		return nil, nil
	}
	tmpl, err := parseRender(p.Render)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return func(subset []string) string {
		if subset == nil {
			subset = []string{}
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, subset); err != nil {
			return "{" + strings.Join(subset, " ") + "}"
		}
		return buf.String()
	}, nil
}

func parseDurationOrZero(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// ParsedProblems is the result of loading one or more problem files.
type ParsedProblems struct {
	// Problems are the valid problems in load order.
	Problems []Problem `json:"problems"`

	// SourceFiles are the files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the files were parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists every problem found while parsing and validating.
	Errors []ValidationError `json:"errors,omitempty"`
}

// Find returns the problem with the given name.
func (pp *ParsedProblems) Find(name string) (*Problem, bool) {
	for i := range pp.Problems {
		if pp.Problems[i].Name == name {
			return &pp.Problems[i], true
		}
	}
	return nil, false
}

// Err returns an error summarizing Errors, or nil when there are none.
func (pp *ParsedProblems) Err() error {
	if len(pp.Errors) == 0 {
		return nil
	}
	msgs := make([]string, len(pp.Errors))
	for i, e := range pp.Errors {
		msgs[i] = e.String()
	}
	return fmt.Errorf("%d validation error(s):\n  %s", len(pp.Errors), strings.Join(msgs, "\n  "))
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path of the error (e.g. "problems[0].predicate.kind").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning).
	Severity string `json:"severity"`
}

// String formats the error as file:line:col: path: message.
func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
			if e.Column > 0 {
				fmt.Fprintf(&b, ":%d", e.Column)
			}
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}
