package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Format is the syntax of a problem file.
type Format string

// Supported problem file formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// FormatFromPath derives the format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	case ".cue":
		return FormatCUE, true
	}
	return "", false
}

var (
	problemNameRE = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	yamlLineRE    = regexp.MustCompile(`line (\d+)`)
)

// Loader reads problem definitions from YAML, JSON and CUE files.
type Loader struct {
	logger    zerolog.Logger
	cue       *cue.Context
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewLoader creates a problem loader.
func NewLoader(logger zerolog.Logger) *Loader {
	ctx := cuecontext.New()
	return &Loader{
		logger:    logger.With().Str("component", "problem-loader").Logger(),
		cue:       ctx,
		schemas:   NewSchemaRegistry(ctx),
		validator: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	_ = v.RegisterValidation("template", func(fl validator.FieldLevel) bool {
		_, err := parseRender(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("problemname", func(fl validator.FieldLevel) bool {
		return problemNameRE.MatchString(fl.Field().String())
	})

	return v
}

// Schemas returns the loader's schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// Load parses problem files and directories. Directories are walked for
// files with a known extension. Parse and validation failures are reported
// in the result's Errors; the returned error is reserved for sources that
// cannot be read at all.
func (l *Loader) Load(ctx context.Context, sources ...string) (*ParsedProblems, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	files, err := expandSources(sources)
	if err != nil {
		return nil, err
	}

	result := &ParsedProblems{
		SourceFiles: files,
		ParsedAt:    time.Now(),
	}
	seen := make(map[string]string)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(file)
		if err != nil {
			result.Errors = append(result.Errors, ValidationError{
				File:     file,
				Message:  fmt.Sprintf("failed to read file: %v", err),
				Severity: "error",
			})
			continue
		}

		format, _ := FormatFromPath(file)
		problems, errs := l.Parse(data, file, format)
		result.Errors = append(result.Errors, errs...)

		for _, p := range problems {
			if prev, dup := seen[p.Name]; dup {
				result.Errors = append(result.Errors, ValidationError{
					File:     file,
					Path:     p.Name,
					Message:  fmt.Sprintf("duplicate problem name (first defined in %s)", prev),
					Severity: "error",
				})
				continue
			}
			seen[p.Name] = file
			result.Problems = append(result.Problems, p)
		}
	}

	l.logger.Debug().
		Int("problems", len(result.Problems)).
		Int("files", len(files)).
		Int("errors", len(result.Errors)).
		Msg("Problems loaded")

	return result, nil
}

// LoadProblem loads sources and returns the named problem. An empty name
// selects the only problem defined.
func (l *Loader) LoadProblem(ctx context.Context, name string, sources ...string) (*Problem, error) {
	parsed, err := l.Load(ctx, sources...)
	if err != nil {
		return nil, err
	}
	if err := parsed.Err(); err != nil {
		return nil, err
	}

	if name == "" {
		if len(parsed.Problems) != 1 {
			return nil, fmt.Errorf("%d problems defined, a name is required", len(parsed.Problems))
		}
		return &parsed.Problems[0], nil
	}

	p, ok := parsed.Find(name)
	if !ok {
		return nil, fmt.Errorf("problem %q not found", name)
	}
	return p, nil
}

func expandSources(sources []string) ([]string, error) {
	var files []string
	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if !info.IsDir() {
			files = append(files, source)
			continue
		}

		err = filepath.WalkDir(source, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if _, ok := FormatFromPath(path); ok {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", source, err)
		}
	}
	return files, nil
}

// Parse decodes and validates the problems in data. Source names the data
// in error locations and becomes each problem's Source.
func (l *Loader) Parse(data []byte, source string, format Format) ([]Problem, []ValidationError) {
	var (
		problems []Problem
		errs     []ValidationError
	)

	switch format {
	case FormatYAML:
		problems, errs = l.parseYAML(data, source)
	case FormatJSON, FormatCUE:
		problems, errs = l.parseCUE(data, source)
	default:
		return nil, []ValidationError{{
			File:     source,
			Message:  fmt.Sprintf("unsupported format %q", format),
			Severity: "error",
		}}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	if len(problems) == 0 {
		return nil, []ValidationError{{
			File:     source,
			Message:  "no problems defined",
			Severity: "error",
		}}
	}

	var valid []Problem
	for i := range problems {
		problems[i].Source = source
		prefix := problems[i].Name
		if prefix == "" {
			prefix = fmt.Sprintf("problems[%d]", i)
		}

		perrs := l.Validate(&problems[i])
		for j := range perrs {
			perrs[j].File = source
			perrs[j].Path = joinPath(prefix, perrs[j].Path)
		}
		if len(perrs) > 0 {
			errs = append(errs, perrs...)
			continue
		}
		valid = append(valid, problems[i])
	}

	return valid, errs
}

// problemFile accepts either a "problems" list or a single inline problem.
type problemFile struct {
	Problems []Problem `yaml:"problems"`
	Problem  `yaml:",inline"`
}

func (l *Loader) parseYAML(data []byte, source string) ([]Problem, []ValidationError) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var problems []Problem
	for {
		var doc problemFile
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, convertYAMLError(err, source)
		}

		if len(doc.Problems) > 0 {
			problems = append(problems, doc.Problems...)
		} else if doc.Problem.Name != "" || doc.Problem.Predicate.Kind != "" {
			problems = append(problems, doc.Problem)
		}
	}

	return problems, nil
}

func convertYAMLError(err error, source string) []ValidationError {
	var msgs []string
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		msgs = typeErr.Errors
	} else {
		msgs = []string{strings.TrimPrefix(err.Error(), "yaml: ")}
	}

	out := make([]ValidationError, 0, len(msgs))
	for _, msg := range msgs {
		ve := ValidationError{File: source, Message: msg, Severity: "error"}
		if m := yamlLineRE.FindStringSubmatch(msg); m != nil {
			ve.Line, _ = strconv.Atoi(m[1])
		}
		out = append(out, ve)
	}
	return out
}

func (l *Loader) parseCUE(data []byte, source string) ([]Problem, []ValidationError) {
	val := l.cue.CompileBytes(data, cue.Filename(source))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}

	problemsVal := val.LookupPath(cue.ParsePath("problems"))
	if !problemsVal.Exists() {
		if !val.LookupPath(cue.ParsePath("predicate")).Exists() {
			return nil, nil
		}
		p, errs := l.extractProblem("", val)
		if len(errs) > 0 {
			return nil, errs
		}
		return []Problem{p}, nil
	}

	var (
		problems []Problem
		errs     []ValidationError
	)

	switch problemsVal.Kind() {
	case cue.StructKind:
		iter, err := problemsVal.Fields()
		if err != nil {
			return nil, convertCUEErrors(err)
		}
		for iter.Next() {
			p, perrs := l.extractProblem(iter.Selector().Unquoted(), iter.Value())
			if len(perrs) > 0 {
				errs = append(errs, perrs...)
				continue
			}
			problems = append(problems, p)
		}

	case cue.ListKind:
		list, err := problemsVal.List()
		if err != nil {
			return nil, convertCUEErrors(err)
		}
		for list.Next() {
			p, perrs := l.extractProblem("", list.Value())
			if len(perrs) > 0 {
				errs = append(errs, perrs...)
				continue
			}
			problems = append(problems, p)
		}

	default:
		return nil, []ValidationError{{
			File:     source,
			Path:     "problems",
			Message:  "must be a struct or a list",
			Severity: "error",
		}}
	}

	return problems, errs
}

// extractProblem unifies val with #Problem and decodes it. A struct key
// names the problem when the value has no name of its own.
func (l *Loader) extractProblem(key string, val cue.Value) (Problem, []ValidationError) {
	var p Problem

	if key != "" && !val.LookupPath(cue.ParsePath("name")).Exists() {
		val = val.FillPath(cue.ParsePath("name"), key)
	}

	def, err := l.schemas.Definition("problem", "#Problem")
	if err != nil {
		return p, []ValidationError{{Message: err.Error(), Severity: "error"}}
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return p, convertCUEErrors(err)
	}

	if err := unified.Decode(&p); err != nil {
		return p, convertCUEErrors(err)
	}

	return p, nil
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range cueerrors.Errors(err) {
		pos := cueerrors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  cueerrors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

// Validate checks p against its struct tags and the relations between
// fields that tags cannot express. Paths in the result are relative to p.
func (l *Loader) Validate(p *Problem) []ValidationError {
	var errs []ValidationError

	if err := l.validator.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []ValidationError{{Message: err.Error(), Severity: "error"}}
		}
		for _, fe := range verrs {
			errs = append(errs, ValidationError{
				Path:     trimNamespace(fe.Namespace()),
				Message:  validationMessage(fe),
				Severity: "error",
			})
		}
	}

	return append(errs, semanticErrors(p)...)
}

func semanticErrors(p *Problem) []ValidationError {
	var errs []ValidationError
	add := func(path, msg string) {
		errs = append(errs, ValidationError{Path: path, Message: msg, Severity: "error"})
	}

	spec := &p.Predicate
	switch spec.Kind {
	case PredicateStarlark, PredicateRego:
		if (spec.Script == "") == (spec.File == "") {
			add("predicate", "exactly one of script or file is required")
		}
	case PredicateWASM:
		if spec.File == "" {
			add("predicate.file", "is required for wasm predicates")
		}
	case PredicateSSH:
		if spec.Host != nil && spec.Host.KeyFile == "" && spec.Host.Password == "" {
			add("predicate.host", "one of key_file or password is required")
		}
		if spec.Host != nil && spec.Host.KnownHostsFile == "" && !spec.Host.InsecureIgnoreHostKey {
			add("predicate.host", "known_hosts_file is required unless insecure_ignore_host_key is set")
		}
	}

	if p.Minimizer == "partition" && len(p.Partitions) == 0 {
		add("partitions", "is required by the partition minimizer")
	}

	members := make(map[string]bool, len(p.Universe))
	for _, e := range p.Universe {
		members[e] = true
	}
	for i, group := range p.Partitions {
		for j, e := range group {
			if !members[e] {
				add(fmt.Sprintf("partitions[%d][%d]", i, j), fmt.Sprintf("%q is not in the universe", e))
			}
		}
	}

	return errs
}

// trimNamespace drops the struct type name validator puts first.
func trimNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ""
}

func joinPath(prefix, path string) string {
	if path == "" {
		return prefix
	}
	return prefix + "." + path
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "unique":
		return "must not contain duplicates"
	case "min":
		return fmt.Sprintf("must have at least %s item(s)", fe.Param())
	case "duration":
		return "must be a positive duration such as 30s"
	case "problemname":
		return "may only contain letters, digits, '_', '.' and '-'"
	case "template":
		return "must be a valid template"
	default:
		return fmt.Sprintf("failed on '%s' rule", fe.Tag())
	}
}
