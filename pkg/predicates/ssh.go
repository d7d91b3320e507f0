package predicates

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coreprobe/coreprobe/pkg/transports/ssh"
)

// SSHPredicate runs a command on a remote host for every check, with the
// same stdin and exit status protocol as CommandPredicate. The connection
// is opened on the first check and reused.
type SSHPredicate struct {
	transport ssh.Transport
	command   string

	connMu sync.Mutex
	logger zerolog.Logger
}

var _ Adapter = (*SSHPredicate)(nil)

// NewSSHPredicate runs argv over transport. Arguments are quoted for a
// POSIX shell on the remote side.
func NewSSHPredicate(transport ssh.Transport, argv []string, logger zerolog.Logger) (*SSHPredicate, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, &AdapterError{Adapter: "ssh", Op: "load", ExitCode: -1, Err: fmt.Errorf("command is required")}
	}

	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = shellQuote(arg)
	}

	info := transport.GetConnectionInfo()
	return &SSHPredicate{
		transport: transport,
		command:   strings.Join(quoted, " "),
		logger: logger.With().
			Str("component", "ssh-predicate").
			Str("host", info.Host).
			Logger(),
	}, nil
}

// Kind implements Adapter.
func (p *SSHPredicate) Kind() string { return "ssh" }

// Command returns the remote command line.
func (p *SSHPredicate) Command() string { return p.command }

// Check runs the remote command once.
func (p *SSHPredicate) Check(ctx context.Context, subset []string) (bool, error) {
	if err := p.ensureConnected(ctx); err != nil {
		return false, err
	}

	result, err := p.transport.Run(ctx, p.command, encodeLines(subset))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return false, &AdapterError{Adapter: "ssh", Op: "check", ExitCode: -1, Err: err}
	}

	p.logger.Trace().
		Int("subset_size", len(subset)).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("remote command completed")

	return exitVerdict("ssh", result.ExitCode, result.Stderr)
}

func (p *SSHPredicate) ensureConnected(ctx context.Context) error {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	if p.transport.IsConnected() {
		return nil
	}
	if err := p.transport.Connect(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &AdapterError{Adapter: "ssh", Op: "connect", ExitCode: -1, Err: err}
	}
	return nil
}

// Close disconnects the transport.
func (p *SSHPredicate) Close() error {
	return p.transport.Disconnect()
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

func shellQuote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
