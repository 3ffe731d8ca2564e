// ABOUTME: Homework chat relay to the backend's retrieval-augmented assistant
// ABOUTME: Sanitizes the message and trims history before forwarding

package homework

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/2389/session-gateway/internal/apierr"
)

const (
	MaxChatMessageLength = 5000
	MaxChatHistory       = 20
)

var scriptBlock = regexp.MustCompile(`(?is)<script\b.*?</script>`)

// SanitizeMessage trims msg, removes script blocks and caps it at
// MaxChatMessageLength characters.
func SanitizeMessage(msg string) string {
	msg = scriptBlock.ReplaceAllString(strings.TrimSpace(msg), "")
	if utf8.RuneCountInString(msg) > MaxChatMessageLength {
		msg = string([]rune(msg)[:MaxChatMessageLength])
	}
	return msg
}

// ChatRequest is a chat turn from a client. History entries are passed
// through untouched; only the most recent MaxChatHistory are kept.
type ChatRequest struct {
	Message        string `json:"message"`
	History        []any  `json:"conversation_history"`
	ConversationID any    `json:"conversation_id,omitempty"`
	FolderID       any    `json:"folder_id,omitempty"`
}

// ChatReply is the backend's answer to a chat turn.
type ChatReply struct {
	Response       any   `json:"response"`
	ToolCalls      []any `json:"tool_calls"`
	ConversationID any   `json:"conversation_id"`
	ContextUsed    bool  `json:"context_used"`
}

type chatUpstreamRequest struct {
	Message        string `json:"message"`
	History        []any  `json:"conversation_history"`
	UserID         string `json:"user_id"`
	ConversationID any    `json:"conversation_id,omitempty"`
	FolderID       any    `json:"folder_id,omitempty"`
}

// Chat forwards one chat turn for actor. A message that is empty after
// sanitizing is InvalidInput.
func (c *Client) Chat(ctx context.Context, actor string, req ChatRequest) (*ChatReply, error) {
	if req.Message == "" {
		return nil, apierr.InvalidInput("Valid message is required")
	}
	msg := SanitizeMessage(req.Message)
	if msg == "" {
		return nil, apierr.InvalidInput("Message cannot be empty")
	}

	history := req.History
	if len(history) > MaxChatHistory {
		history = history[len(history)-MaxChatHistory:]
	}
	if history == nil {
		history = []any{}
	}

	endpoint, err := c.endpoint("homework", "chat-rag")
	if err != nil {
		return nil, err
	}

	resp, err := c.client.PostJSON(ctx, "homework chat", endpoint, "", chatUpstreamRequest{
		Message:        msg,
		History:        history,
		UserID:         actor,
		ConversationID: req.ConversationID,
		FolderID:       req.FolderID,
	})
	if err != nil {
		return nil, err
	}

	var out ChatReply
	if err := resp.Decode(&out); err != nil {
		return nil, apierr.Internal("decoding chat reply", err)
	}
	if out.ToolCalls == nil {
		out.ToolCalls = []any{}
	}
	c.logger.Debug("homework chat answered", "actor", actor, "history", len(history), "context_used", out.ContextUsed)
	return &out, nil
}
