// ABOUTME: Homework proxy for listing files and listing or creating folders
// ABOUTME: Validates folder identifiers and names before calling the backend

package homework

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/2389/session-gateway/internal/apierr"
	"github.com/2389/session-gateway/internal/upstream"
)

const (
	MaxFolderIDBytes           = 128
	MaxFolderNameLength        = 100
	MaxFolderDescriptionLength = 500
)

// Folder creation payload sent to the backend.
type createFolderRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	UserID      string `json:"user_id"`
}

type filesResponse struct {
	Files []any `json:"files"`
}

type foldersResponse struct {
	Folders []any `json:"folders"`
}

type folderResponse struct {
	Folder any `json:"folder"`
}

// ValidateFolderID checks an optional folder identifier from a query string.
func ValidateFolderID(id string) error {
	if id == "" {
		return nil
	}
	if len(id) > MaxFolderIDBytes {
		return apierr.InvalidInput("folderId exceeds %d bytes", MaxFolderIDBytes)
	}
	if !utf8.ValidString(id) {
		return apierr.InvalidInput("folderId is not valid UTF-8")
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return apierr.InvalidInput("folderId contains control characters")
		}
	}
	return nil
}

// truncate trims s and caps it at n runes.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Client calls the backend homework endpoints.
type Client struct {
	baseURL string
	client  *upstream.Client
	retry   *upstream.RetryPolicy
	logger  *slog.Logger
}

// NewClient creates a Client. Reads use retry; folder creation never retries.
func NewClient(baseURL string, client *upstream.Client, retry *upstream.RetryPolicy, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		client:  client,
		retry:   retry,
		logger:  logger.With("component", "homework"),
	}
}

func (c *Client) endpoint(parts ...string) (string, error) {
	if c.baseURL == "" {
		return "", apierr.Configuration("backend base url")
	}
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return upstream.JoinURL(c.baseURL, strings.Join(escaped, "/")), nil
}

// ListFiles returns the actor's homework files, optionally scoped to a folder.
func (c *Client) ListFiles(ctx context.Context, actor, folderID string) ([]any, error) {
	if err := ValidateFolderID(folderID); err != nil {
		return nil, err
	}
	u, err := c.endpoint("homework", "files", actor)
	if err != nil {
		return nil, err
	}
	if folderID != "" {
		u += "?" + url.Values{"class_id": {folderID}}.Encode()
	}

	resp, err := c.client.GetJSON(ctx, "list homework files", u, "", c.retry)
	if err != nil {
		return nil, err
	}

	var out filesResponse
	if err := resp.Decode(&out); err != nil {
		return nil, apierr.Internal("decoding homework files", err)
	}
	if out.Files == nil {
		out.Files = []any{}
	}
	c.logger.Debug("listed homework files", "actor", actor, "count", len(out.Files))
	return out.Files, nil
}

// ListFolders returns the actor's homework folders.
func (c *Client) ListFolders(ctx context.Context, actor string) ([]any, error) {
	u, err := c.endpoint("homework", "folders", actor)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.GetJSON(ctx, "list homework folders", u, "", c.retry)
	if err != nil {
		return nil, err
	}

	var out foldersResponse
	if err := resp.Decode(&out); err != nil {
		return nil, apierr.Internal("decoding homework folders", err)
	}
	if out.Folders == nil {
		out.Folders = []any{}
	}
	return out.Folders, nil
}

// CreateFolder creates a folder named name for actor. The name is trimmed and
// capped at MaxFolderNameLength; the description at MaxFolderDescriptionLength.
func (c *Client) CreateFolder(ctx context.Context, actor, name, description string) (any, error) {
	name = truncate(name, MaxFolderNameLength)
	if name == "" {
		return nil, apierr.InvalidInput("folder name cannot be empty")
	}
	u, err := c.endpoint("homework", "folders")
	if err != nil {
		return nil, err
	}

	body := createFolderRequest{
		Name:        name,
		Description: truncate(description, MaxFolderDescriptionLength),
		UserID:      actor,
	}
	resp, err := c.client.PostJSON(ctx, "create homework folder", u, "", body)
	if err != nil {
		return nil, err
	}

	var out folderResponse
	if err := resp.Decode(&out); err != nil {
		return nil, apierr.Internal("decoding created folder", err)
	}
	c.logger.Info("homework folder created", "actor", actor, "name", name)
	return out.Folder, nil
}
