package predicates

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreprobe/coreprobe/pkg/transports/ssh"
)

// fakeTransport records commands and answers them with run.
type fakeTransport struct {
	mu          sync.Mutex
	connected   bool
	connects    int
	connectErr  error
	commands    []string
	stdins      []string
	disconnects int
	run         func(cmd string, stdin []byte) (*ssh.ExecResult, error)
}

var _ ssh.Transport = (*fakeTransport)(nil)

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeTransport) Run(ctx context.Context, cmd string, stdin []byte) (*ssh.ExecResult, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.stdins = append(f.stdins, string(stdin))
	f.mu.Unlock()
	return f.run(cmd, stdin)
}

func (f *fakeTransport) GetConnectionInfo() ssh.ConnectionInfo {
	return ssh.ConnectionInfo{Host: "build-box", Port: 22, User: "ci"}
}

func TestSSHPredicate_Check(t *testing.T) {
	transport := &fakeTransport{
		run: func(cmd string, stdin []byte) (*ssh.ExecResult, error) {
			code := 1
			if strings.Contains(string(stdin), "a\n") && strings.Contains(string(stdin), "b\n") {
				code = 0
			}
			return &ssh.ExecResult{ExitCode: code}, nil
		},
	}

	p, err := NewSSHPredicate(transport, []string{"/opt/check", "--mode", "fast build"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "ssh", p.Kind())
	assert.Equal(t, "/opt/check --mode 'fast build'", p.Command())

	ok, err := p.Check(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Check(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, transport.connects, "connection must be reused")
	assert.Equal(t, []string{"a\nb\n", "a\n"}, transport.stdins)

	require.NoError(t, p.Close())
	assert.Equal(t, 1, transport.disconnects)
}

func TestSSHPredicate_Errors(t *testing.T) {
	t.Run("connect failure", func(t *testing.T) {
		transport := &fakeTransport{connectErr: errors.New("connection refused")}
		p, err := NewSSHPredicate(transport, []string{"check"}, zerolog.Nop())
		require.NoError(t, err)

		_, err = p.Check(context.Background(), []string{"a"})
		var adapterErr *AdapterError
		require.ErrorAs(t, err, &adapterErr)
		assert.Equal(t, "connect", adapterErr.Op)
	})

	t.Run("unexpected exit status", func(t *testing.T) {
		transport := &fakeTransport{
			run: func(string, []byte) (*ssh.ExecResult, error) {
				return &ssh.ExecResult{ExitCode: 127, Stderr: "check: not found"}, nil
			},
		}
		p, err := NewSSHPredicate(transport, []string{"check"}, zerolog.Nop())
		require.NoError(t, err)

		_, err = p.Check(context.Background(), []string{"a"})
		var adapterErr *AdapterError
		require.ErrorAs(t, err, &adapterErr)
		assert.Equal(t, 127, adapterErr.ExitCode)
		assert.Equal(t, "check: not found", adapterErr.Stderr)
	})

	t.Run("transport failure", func(t *testing.T) {
		transport := &fakeTransport{
			run: func(string, []byte) (*ssh.ExecResult, error) {
				return nil, &ssh.TransportError{Op: "execute", Err: errors.New("session closed")}
			},
		}
		p, err := NewSSHPredicate(transport, []string{"check"}, zerolog.Nop())
		require.NoError(t, err)

		_, err = p.Check(context.Background(), []string{"a"})
		require.Error(t, err)
		var transportErr *ssh.TransportError
		assert.ErrorAs(t, err, &transportErr)
	})

	t.Run("empty command", func(t *testing.T) {
		_, err := NewSSHPredicate(&fakeTransport{}, nil, zerolog.Nop())
		require.Error(t, err)
	})
}

func TestShellQuote(t *testing.T) {
	tests := map[string]string{
		"plain":        "plain",
		"/usr/bin/x":   "/usr/bin/x",
		"--flag=value": "--flag=value",
		"two words":    "'two words'",
		"it's":         `'it'\''s'`,
		"$HOME":        "'$HOME'",
	}
	for in, want := range tests {
		assert.Equal(t, want, shellQuote(in), in)
	}
}
