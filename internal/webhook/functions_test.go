// ABOUTME: Tests for the function registration table and generation bindings
// ABOUTME: Uses a recording generator in place of the backend proxy

package webhook

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/session-gateway/internal/generation"
)

// recordingGenerator captures generation requests.
type recordingGenerator struct {
	mu    sync.Mutex
	calls []generatedCall
	err   error
	block chan struct{}
}

type generatedCall struct {
	Kind generation.Kind
	Args map[string]any
}

func (g *recordingGenerator) Generate(ctx context.Context, kind generation.Kind, args map[string]any) (*generation.Result, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, generatedCall{Kind: kind, Args: args})
	if g.err != nil {
		return nil, g.err
	}
	return &generation.Result{Kind: kind, Data: map[string]any{}}, nil
}

func (g *recordingGenerator) Calls() []generatedCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generatedCall(nil), g.calls...)
}

func TestFunctionTable_RegisterAndLookup(t *testing.T) {
	table := NewFunctionTable()
	handler := func(context.Context, *FunctionCall) error { return nil }

	require.NoError(t, table.Register("summarize", "summary", handler))

	fn, ok := table.Lookup("summarize")
	require.True(t, ok)
	assert.Equal(t, "summarize", fn.Name)
	assert.Equal(t, "summary", fn.Label)

	_, ok = table.Lookup("missing")
	assert.False(t, ok)
}

func TestFunctionTable_DuplicateRejected(t *testing.T) {
	table := NewFunctionTable()
	handler := func(context.Context, *FunctionCall) error { return nil }

	require.NoError(t, table.Register("f", "", handler))
	assert.ErrorIs(t, table.Register("f", "", handler), ErrFunctionAlreadyRegistered)
}

func TestFunctionTable_RequiresNameAndHandler(t *testing.T) {
	table := NewFunctionTable()

	assert.Error(t, table.Register("", "", func(context.Context, *FunctionCall) error { return nil }))
	assert.Error(t, table.Register("f", "", nil))
}

func TestNewGenerationTable(t *testing.T) {
	gen := &recordingGenerator{}
	table := NewGenerationTable(gen)

	assert.Equal(t, []string{"generate_diagram", "generate_flashcards", "generate_mindmap", "generate_quiz"}, table.Names())

	for name, kind := range GenerationFunctions {
		fn, ok := table.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, string(kind), fn.Label)
		require.NoError(t, fn.Handler(context.Background(), &FunctionCall{Name: name, Arguments: map[string]any{"topic": "x"}}))
	}

	kinds := map[generation.Kind]bool{}
	for _, c := range gen.Calls() {
		kinds[c.Kind] = true
	}
	assert.Len(t, kinds, 4)
}
