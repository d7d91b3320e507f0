package predicates

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreprobe/coreprobe/pkg/config"
	"github.com/coreprobe/coreprobe/pkg/transports/ssh"
)

// Build creates the adapter described by problem.Predicate. Relative files
// and working directories resolve against the problem's source file. The
// per-check timeout, if any, is applied to the returned adapter.
func Build(ctx context.Context, problem *config.Problem, logger zerolog.Logger) (Adapter, error) {
	spec := &problem.Predicate
	logger = logger.With().Str("problem", problem.Name).Logger()

	var (
		adapter Adapter
		err     error
	)

	switch spec.Kind {
	case config.PredicateStarlark:
		var filename, src string
		filename, src, err = source(problem, "check.star")
		if err == nil {
			adapter, err = NewStarlarkPredicate(filename, src, problem.Universe, spec.Args, logger)
		}

	case config.PredicateRego:
		var filename, src string
		filename, src, err = source(problem, "check.rego")
		if err == nil {
			adapter, err = NewRegoPredicate(ctx, filename, src, spec.Query, problem.Universe, spec.Args, logger)
		}

	case config.PredicateWASM:
		var wasmModule []byte
		wasmModule, err = os.ReadFile(problem.ResolveFile())
		if err != nil {
			err = loadError(err)
		} else {
			adapter, err = NewWASMPredicate(ctx, wasmModule, WASMConfig{}, logger)
		}

	case config.PredicateCommand:
		adapter, err = NewCommandPredicate(CommandConfig{
			Argv:    spec.Command,
			Env:     spec.Env,
			Dir:     resolveDir(problem, spec.WorkDir),
			Problem: problem.Name,
		}, logger)

	case config.PredicateSSH:
		adapter, err = buildSSH(problem, logger)

	default:
		err = fmt.Errorf("unknown predicate kind %q", spec.Kind)
	}

	if err != nil {
		return nil, fmt.Errorf("problem %s: %w", problem.Name, err)
	}
	return WithCheckTimeout(adapter, spec.CheckTimeout()), nil
}

// source returns the inline script or the contents of the predicate file.
func source(problem *config.Problem, inlineName string) (string, string, error) {
	spec := &problem.Predicate
	if spec.Script != "" {
		return inlineName, spec.Script, nil
	}
	path := problem.ResolveFile()
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", &AdapterError{Adapter: spec.Kind, Op: "load", ExitCode: -1, Err: err}
	}
	return path, string(data), nil
}

func resolveDir(problem *config.Problem, dir string) string {
	if dir == "" || filepath.IsAbs(dir) || problem.Source == "" {
		return dir
	}
	return filepath.Join(filepath.Dir(problem.Source), dir)
}

func buildSSH(problem *config.Problem, logger zerolog.Logger) (Adapter, error) {
	host := problem.Predicate.Host
	if host == nil {
		return nil, &AdapterError{Adapter: "ssh", Op: "load", ExitCode: -1, Err: fmt.Errorf("host is required")}
	}

	cfg := ssh.DefaultConfig(host.Address, host.User)
	if host.Port != 0 {
		cfg.Port = host.Port
	}
	if host.KeyFile != "" {
		cfg.AuthMethod = ssh.AuthMethodKey
		cfg.PrivateKeyPath = resolveDir(problem, host.KeyFile)
	} else {
		cfg.AuthMethod = ssh.AuthMethodPassword
		cfg.Password = host.Password
	}
	if host.KnownHostsFile != "" {
		cfg.KnownHostsPath = resolveDir(problem, host.KnownHostsFile)
	}
	cfg.StrictHostKeyChecking = !host.InsecureIgnoreHostKey
	cfg.KeepAliveInterval = 30 * time.Second

	client, err := ssh.NewSSHClient(cfg)
	if err != nil {
		return nil, &AdapterError{Adapter: "ssh", Op: "load", ExitCode: -1, Err: err}
	}
	return NewSSHPredicate(client, problem.Predicate.Command, logger)
}
