// ABOUTME: Content generation proxy that posts generation requests to the backend
// ABOUTME: Builds the prompt from prompt, topic, or a default and tags voice_command context

package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/session-gateway/internal/apierr"
	"github.com/2389/session-gateway/internal/upstream"
)

// Kind is a type of generated study material.
type Kind string

const (
	KindDiagram    Kind = "diagram"
	KindFlashcards Kind = "flashcards"
	KindQuiz       Kind = "quiz"
	KindMindmap    Kind = "mindmap"
)

// Kinds lists every supported Kind.
func Kinds() []Kind {
	return []Kind{KindDiagram, KindFlashcards, KindQuiz, KindMindmap}
}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", apierr.InvalidInput("unknown generation type %q", s)
}

const (
	// DefaultPrompt is used when the arguments carry neither prompt nor topic.
	DefaultPrompt = "Generate content"

	// ContextVoiceCommand tags requests originating from the voice agent.
	ContextVoiceCommand = "voice_command"

	generatePath = "/voice/generate-visual"
)

// Request is the body posted to the backend.
type Request struct {
	Type    Kind   `json:"type"`
	Prompt  string `json:"prompt"`
	Context string `json:"context"`
}

// Result is the backend's response.
type Result struct {
	Kind Kind
	Data map[string]any
}

// PromptFrom picks the prompt from args: "prompt" first, then "topic", then
// DefaultPrompt. Empty strings and non-string values are skipped.
func PromptFrom(args map[string]any) string {
	for _, key := range []string{"prompt", "topic"} {
		if s, ok := args[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return DefaultPrompt
}

// Proxy forwards generation requests to the backend content service.
type Proxy struct {
	baseURL string
	client  *upstream.Client
	logger  *slog.Logger
}

// NewProxy creates a Proxy for the backend at baseURL.
func NewProxy(baseURL string, client *upstream.Client, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{
		baseURL: baseURL,
		client:  client,
		logger:  logger.With("component", "generation"),
	}
}

// Generate asks the backend to produce kind from args.
// The call is not retried: the backend may have already done the work.
func (p *Proxy) Generate(ctx context.Context, kind Kind, args map[string]any) (*Result, error) {
	if p.baseURL == "" {
		return nil, apierr.Configuration("backend base url")
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}

	body := Request{
		Type:    kind,
		Prompt:  PromptFrom(args),
		Context: ContextVoiceCommand,
	}

	resp, err := p.client.PostJSON(ctx, fmt.Sprintf("generate %s", kind), upstream.JoinURL(p.baseURL, generatePath), "", body)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("content generated", "kind", kind, "status", resp.StatusCode)
	return &Result{Kind: kind, Data: resp.Object()}, nil
}
