package predicates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CommandConfig configures a CommandPredicate.
type CommandConfig struct {
	// Argv is the program and its arguments.
	Argv []string

	// Env adds variables to the inherited environment.
	Env map[string]string

	// Dir is the working directory.
	Dir string

	// Problem is exported to the command as COREPROBE_PROBLEM.
	Problem string
}

// maxSubsetEnv bounds the COREPROBE_SUBSET value. Linux rejects a single
// environment string over 128 KiB at exec time.
const maxSubsetEnv = 64 << 10

// CommandPredicate runs a local program for every check. The subset is
// written to stdin one name per line. Subsets whose JSON encoding fits in
// maxSubsetEnv are also exported in COREPROBE_SUBSET; larger ones are only
// on stdin. Exit status 0 means the predicate holds, 1 that it does not;
// anything else fails the check.
type CommandPredicate struct {
	argv   []string
	env    []string
	dir    string
	logger zerolog.Logger
}

var _ Adapter = (*CommandPredicate)(nil)

// NewCommandPredicate validates cfg and resolves the program.
func NewCommandPredicate(cfg CommandConfig, logger zerolog.Logger) (*CommandPredicate, error) {
	if len(cfg.Argv) == 0 || cfg.Argv[0] == "" {
		return nil, &AdapterError{Adapter: "command", Op: "load", ExitCode: -1, Err: fmt.Errorf("command is required")}
	}

	argv := append([]string(nil), cfg.Argv...)
	if !strings.ContainsRune(argv[0], os.PathSeparator) {
		path, err := exec.LookPath(argv[0])
		if err != nil {
			return nil, &AdapterError{Adapter: "command", Op: "load", ExitCode: -1, Err: err}
		}
		argv[0] = path
	}

	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := os.Environ()
	env = append(env, "COREPROBE_PROBLEM="+cfg.Problem)
	for _, k := range keys {
		env = append(env, k+"="+cfg.Env[k])
	}

	return &CommandPredicate{
		argv:   argv,
		env:    env,
		dir:    cfg.Dir,
		logger: logger.With().Str("component", "command-predicate").Str("command", argv[0]).Logger(),
	}, nil
}

// Kind implements Adapter.
func (p *CommandPredicate) Kind() string { return "command" }

// Close implements Adapter.
func (p *CommandPredicate) Close() error { return nil }

// Check runs the command once. The process is killed when ctx is done.
func (p *CommandPredicate) Check(ctx context.Context, subset []string) (bool, error) {
	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	cmd.Dir = p.dir
	cmd.Env = p.env
	if encoded := encodeSubset(subset); len(encoded) <= maxSubsetEnv {
		cmd.Env = append(p.env[:len(p.env):len(p.env)], "COREPROBE_SUBSET="+string(encoded))
	}
	cmd.Stdin = bytes.NewReader(encodeLines(subset))
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	p.logger.Trace().
		Int("subset_size", len(subset)).
		Dur("duration", time.Since(start)).
		Int("stdout_len", stdout.Len()).
		Err(err).
		Msg("command completed")

	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, &AdapterError{Adapter: "command", Op: "check", ExitCode: -1, Err: ctxErr}
	}

	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitVerdict("command", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
	}
	return false, &AdapterError{
		Adapter:  "command",
		Op:       "check",
		ExitCode: -1,
		Stderr:   strings.TrimSpace(stderr.String()),
		Err:      err,
	}
}
