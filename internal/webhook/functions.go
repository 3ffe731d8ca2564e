// ABOUTME: Registration table mapping agent function names to handlers
// ABOUTME: Built at startup; the generation functions map onto backend content kinds

package webhook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/2389/session-gateway/internal/generation"
)

// ErrFunctionAlreadyRegistered indicates a function name is already bound.
var ErrFunctionAlreadyRegistered = errors.New("function already registered")

// HandlerFunc runs one function call.
type HandlerFunc func(ctx context.Context, call *FunctionCall) error

// Function is a registered function-call binding.
type Function struct {
	Name string
	// Label names the action for logs and metrics, e.g. the generation kind.
	Label   string
	Handler HandlerFunc
}

// FunctionTable maps function names to handlers.
type FunctionTable struct {
	mu        sync.RWMutex
	functions map[string]*Function
}

// NewFunctionTable creates an empty table.
func NewFunctionTable() *FunctionTable {
	return &FunctionTable{functions: make(map[string]*Function)}
}

// Register binds name to handler.
// Returns ErrFunctionAlreadyRegistered if name is taken.
func (t *FunctionTable) Register(name, label string, handler HandlerFunc) error {
	if name == "" || handler == nil {
		return fmt.Errorf("register function: name and handler are required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.functions[name]; exists {
		return fmt.Errorf("%w: %s", ErrFunctionAlreadyRegistered, name)
	}
	t.functions[name] = &Function{Name: name, Label: label, Handler: handler}
	return nil
}

// Lookup returns the function bound to name.
func (t *FunctionTable) Lookup(name string) (*Function, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn, ok := t.functions[name]
	return fn, ok
}

// Names returns the registered function names in sorted order.
func (t *FunctionTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.functions))
	for name := range t.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GenerationFunctions maps agent function names to generation kinds.
var GenerationFunctions = map[string]generation.Kind{
	"generate_diagram":    generation.KindDiagram,
	"generate_flashcards": generation.KindFlashcards,
	"generate_quiz":       generation.KindQuiz,
	"generate_mindmap":    generation.KindMindmap,
}

// Generator produces study content. *generation.Proxy satisfies it.
type Generator interface {
	Generate(ctx context.Context, kind generation.Kind, args map[string]any) (*generation.Result, error)
}

// GenerateHandler returns a handler that asks gen for kind.
func GenerateHandler(gen Generator, kind generation.Kind) HandlerFunc {
	return func(ctx context.Context, call *FunctionCall) error {
		_, err := gen.Generate(ctx, kind, call.Arguments)
		return err
	}
}

// NewGenerationTable returns a table with every GenerationFunctions entry bound
// to gen.
func NewGenerationTable(gen Generator) *FunctionTable {
	t := NewFunctionTable()
	for name, kind := range GenerationFunctions {
		// Names in GenerationFunctions are unique, so Register cannot fail.
		_ = t.Register(name, string(kind), GenerateHandler(gen, kind))
	}
	return t
}
