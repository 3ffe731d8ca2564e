// ABOUTME: Fetches generated study session content from the backend summary cache
// ABOUTME: Cache keys are validated like folder identifiers before use in a path

package homework

import (
	"context"

	"github.com/2389/session-gateway/internal/apierr"
)

// SessionContent is the cached title, notes and diagram of a study session.
type SessionContent struct {
	Title   any `json:"title"`
	Notes   any `json:"notes"`
	Diagram any `json:"diagram"`
}

// SessionContent returns the content stored under cacheKey.
func (c *Client) SessionContent(ctx context.Context, cacheKey string) (*SessionContent, error) {
	if cacheKey == "" {
		return nil, apierr.InvalidInput("Cache key is required")
	}
	if err := ValidateFolderID(cacheKey); err != nil {
		return nil, apierr.InvalidInput("invalid cache key")
	}
	endpoint, err := c.endpoint("summary", cacheKey)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.GetJSON(ctx, "fetch session content", endpoint, "", c.retry)
	if err != nil {
		return nil, err
	}

	var out SessionContent
	if err := resp.Decode(&out); err != nil {
		return nil, apierr.Internal("decoding session content", err)
	}
	return &out, nil
}
