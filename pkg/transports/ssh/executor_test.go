package ssh

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunStdout(t *testing.T) {
	server := newTestSSHServer(t)
	client := connectTestClient(t, server)

	result, err := client.Run(context.Background(), "echo test", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Stdout != "test" {
		t.Errorf("expected stdout 'test', got %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if result.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}
}

func TestRunStderr(t *testing.T) {
	server := newTestSSHServer(t)
	client := connectTestClient(t, server)

	result, err := client.Run(context.Background(), "echo error >&2", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Stderr != "error" {
		t.Errorf("expected stderr 'error', got %q", result.Stderr)
	}
	if result.Stdout != "" {
		t.Errorf("expected empty stdout, got %q", result.Stdout)
	}
}

func TestRunExitCode(t *testing.T) {
	server := newTestSSHServer(t)
	client := connectTestClient(t, server)

	result, err := client.Run(context.Background(), "exit 3", nil)
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", result.ExitCode)
	}
}

func TestRunStdin(t *testing.T) {
	server := newTestSSHServer(t)
	client := connectTestClient(t, server)

	tests := []struct {
		name     string
		stdin    string
		wantCode int
	}{
		{name: "all present", stdin: "a\nb\nc\n", wantCode: 0},
		{name: "one missing", stdin: "a\nc\n", wantCode: 1},
		{name: "empty input", stdin: "", wantCode: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := client.Run(context.Background(), "contains a b", []byte(tt.stdin))
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if result.ExitCode != tt.wantCode {
				t.Errorf("expected exit code %d, got %d", tt.wantCode, result.ExitCode)
			}
		})
	}
}

func TestRunConcurrentSessions(t *testing.T) {
	server := newTestSSHServer(t)
	client := connectTestClient(t, server)

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			result, err := client.Run(context.Background(), "contains x", []byte("x\n"))
			if err == nil && result.ExitCode != 0 {
				err = errors.New("unexpected exit code")
			}
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-errs; err != nil {
			t.Errorf("concurrent run failed: %v", err)
		}
	}
}

func TestRunContextTimeout(t *testing.T) {
	server := newTestSSHServer(t)
	client := connectTestClient(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := client.Run(ctx, "sleep", nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if result == nil || result.ExitCode != -1 {
		t.Errorf("expected exit code -1 on timeout, got %+v", result)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Run did not return promptly after cancellation")
	}

	var terr *TransportError
	if !asTransportError(err, &terr) || terr.Temporary() {
		t.Errorf("cancellation must not be reported as temporary: %v", err)
	}
}

func asTransportError(err error, target **TransportError) bool {
	return errors.As(err, target)
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}
