package predicates

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flagsScript = `
def check(subset):
    return "inline" in subset and ("O2" in subset or "O3" in subset)
`

func TestStarlarkPredicate_Check(t *testing.T) {
	p, err := NewStarlarkPredicate("flags.star", flagsScript, []string{"inline", "O2", "O3", "lto"}, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "starlark", p.Kind())

	tests := []struct {
		name   string
		subset []string
		want   bool
	}{
		{"empty", nil, false},
		{"inline only", []string{"inline"}, false},
		{"inline and O2", []string{"inline", "O2"}, true},
		{"inline and O3", []string{"O3", "inline"}, true},
		{"everything", []string{"inline", "O2", "O3", "lto"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Check(context.Background(), tt.subset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStarlarkPredicate_UniverseAndArgs(t *testing.T) {
	script := `
def check(subset):
    # holds once the subset covers at least args["quorum"] of the universe
    return len(subset) * 100 >= len(universe) * args["quorum"]
`
	p, err := NewStarlarkPredicate("quorum.star", script, []string{"a", "b", "c", "d"},
		map[string]interface{}{"quorum": 50}, zerolog.Nop())
	require.NoError(t, err)

	ok, err := p.Check(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Check(context.Background(), []string{"a", "d"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStarlarkPredicate_SubsetIsFreshPerCall(t *testing.T) {
	script := `
def check(subset):
    subset.append("x")
    return len(subset) > 2
`
	p, err := NewStarlarkPredicate("mutate.star", script, []string{"a", "b"}, nil, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ok, err := p.Check(context.Background(), []string{"a"})
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestStarlarkPredicate_LoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		errMsg string
	}{
		{"syntax error", "def check(subset)\n    return True\n", "load"},
		{"no check function", "x = 1\n", "must define a check(subset) function"},
		{"check not callable", "check = True\n", "must define a check(subset) function"},
		{"runtime error at load", "fail(\"boom\")\n", "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStarlarkPredicate("bad.star", tt.script, nil, nil, zerolog.Nop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestStarlarkPredicate_CheckErrors(t *testing.T) {
	t.Run("non-bool result", func(t *testing.T) {
		p, err := NewStarlarkPredicate("int.star", "def check(subset):\n    return len(subset)\n", nil, nil, zerolog.Nop())
		require.NoError(t, err)

		_, err = p.Check(context.Background(), []string{"a"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must return a bool, got int")
	})

	t.Run("script failure", func(t *testing.T) {
		p, err := NewStarlarkPredicate("fail.star", "def check(subset):\n    fail(\"broken\")\n", nil, nil, zerolog.Nop())
		require.NoError(t, err)

		_, err = p.Check(context.Background(), []string{"a"})
		require.Error(t, err)
		var adapterErr *AdapterError
		require.ErrorAs(t, err, &adapterErr)
		assert.Equal(t, "check", adapterErr.Op)
	})
}

func TestStarlarkPredicate_Cancel(t *testing.T) {
	script := `
def check(subset):
    n = 0
    for i in range(1000000000):
        n += 1
    return True
`
	p, err := NewStarlarkPredicate("slow.star", script, nil, nil, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = p.Check(ctx, []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
