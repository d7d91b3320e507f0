package predicates

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWASMPredicate_Check(t *testing.T) {
	ctx := context.Background()
	p, err := NewWASMPredicate(ctx, buildWASMModule(lengthAtLeast(9), true), WASMConfig{}, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "wasm", p.Kind())

	tests := []struct {
		subset []string
		want   bool
	}{
		{nil, false},
		{[]string{"a"}, false},
		{[]string{"a", "b"}, true},
		{[]string{"a", "b", "c"}, true},
	}
	for _, tt := range tests {
		got, err := p.Check(ctx, tt.subset)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "subset %v", tt.subset)
	}
}

func TestWASMPredicate_InvalidVerdict(t *testing.T) {
	ctx := context.Background()
	p, err := NewWASMPredicate(ctx, buildWASMModule(constant(2), true), WASMConfig{}, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Check(ctx, []string{"a"})
	require.Error(t, err)

	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "check", adapterErr.Op)
	assert.Contains(t, err.Error(), "check returned 2")
}

func TestWASMPredicate_MissingExport(t *testing.T) {
	_, err := NewWASMPredicate(context.Background(), buildWASMModule(constant(1), false), WASMConfig{}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not export check function")
}

func TestWASMPredicate_InvalidModule(t *testing.T) {
	_, err := NewWASMPredicate(context.Background(), []byte("not wasm"), WASMConfig{}, zerolog.Nop())
	require.Error(t, err)

	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "load", adapterErr.Op)
}
