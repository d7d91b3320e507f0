package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitForUniverse(t *testing.T, reloads <-chan *ParsedProblems, name string, size int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case parsed := <-reloads:
			if p, ok := parsed.Find(name); ok && len(p.Universe) == size {
				return
			}
		case <-deadline:
			t.Fatalf("no reload with %d elements for %s", size, name)
		}
	}
}

func TestWatcher_ReloadsChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "p.yaml", `name: p
universe: [a]
predicate: {kind: command, command: [x]}
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWatcher(NewLoader(zerolog.Nop()), zerolog.Nop())
	w.SetDebounce(20 * time.Millisecond)
	defer w.Close()

	reloads := make(chan *ParsedProblems, 16)
	err := w.Watch(ctx, []string{path}, func(parsed *ParsedProblems) error {
		select {
		case reloads <- parsed:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeFile(t, dir, "p.yaml", `name: p
universe: [a, b, c]
predicate: {kind: command, command: [x]}
`)
	waitForUniverse(t, reloads, "p", 3)
}

func TestWatcher_ReloadsOnPredicateFileChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "check.star", "def check(subset):\n    return True\n")
	path := writeFile(t, dir, "p.yaml", `name: p
universe: [a, b]
predicate: {kind: starlark, file: check.star}
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWatcher(NewLoader(zerolog.Nop()), zerolog.Nop())
	w.SetDebounce(20 * time.Millisecond)
	defer w.Close()

	reloads := make(chan *ParsedProblems, 16)
	if err := w.Watch(ctx, []string{path}, func(parsed *ParsedProblems) error {
		select {
		case reloads <- parsed:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if !w.relevant(filepath.Join(dir, "check.star")) {
		t.Fatal("predicate file must be watched")
	}
	if w.relevant(filepath.Join(dir, "unrelated.txt")) {
		t.Fatal("unrelated files must be ignored")
	}

	writeFile(t, dir, "check.star", "def check(subset):\n    return False\n")
	waitForUniverse(t, reloads, "p", 2)
}

func TestWatcher_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `name: a
universe: [x]
predicate: {kind: command, command: [x]}
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWatcher(NewLoader(zerolog.Nop()), zerolog.Nop())
	w.SetDebounce(20 * time.Millisecond)
	defer w.Close()

	reloads := make(chan *ParsedProblems, 16)
	if err := w.Watch(ctx, []string{dir}, func(parsed *ParsedProblems) error {
		select {
		case reloads <- parsed:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeFile(t, dir, "b.cue", `
name: "b"
universe: ["x", "y"]
predicate: {kind: "command", command: ["x"]}
`)
	waitForUniverse(t, reloads, "b", 2)
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	w := NewWatcher(NewLoader(zerolog.Nop()), zerolog.Nop())
	if err := w.Close(); err != nil {
		t.Fatalf("Close before Watch: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Watch(ctx, []string{t.TempDir()}, func(*ParsedProblems) error { return nil }); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	cancel()
	if err := w.Close(); err != nil {
		t.Errorf("Close after cancel: %v", err)
	}
}
