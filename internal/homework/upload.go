// ABOUTME: Homework file upload into the backend's retrieval index
// ABOUTME: Enforces the size cap and content type allowlist before any backend call

package homework

import (
	"context"
	"mime"
	"slices"
	"strings"

	"github.com/2389/session-gateway/internal/apierr"
)

// MaxUploadBytes caps a single uploaded file.
const MaxUploadBytes = 10 << 20

// AllowedUploadTypes lists the media types the backend can index.
var AllowedUploadTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

// Upload is one file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Content     []byte
	FolderID    string
}

// UploadResult is the backend's answer for an indexed file.
type UploadResult struct {
	FileID          any    `json:"file_id"`
	Filename        string `json:"filename"`
	ChunksProcessed any    `json:"chunks_processed"`
}

type uploadRequest struct {
	Filename string  `json:"filename"`
	Content  string  `json:"content"`
	FolderID *string `json:"folder_id"`
	UserID   string  `json:"user_id"`
}

// mediaType returns the lowercased type of a Content-Type header without
// parameters, or "" if it does not parse.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

// ValidateUpload checks size, type and folder of u.
func ValidateUpload(u *Upload) error {
	if u == nil || u.Filename == "" {
		return apierr.InvalidInput("No file provided")
	}
	if len(u.Content) > MaxUploadBytes {
		return apierr.InvalidInput("File size exceeds 10MB limit")
	}
	if !slices.Contains(AllowedUploadTypes, mediaType(u.ContentType)) {
		return apierr.InvalidInput("File type not allowed")
	}
	return ValidateFolderID(u.FolderID)
}

// UploadFile sends u to the backend for indexing under actor. The content is
// forwarded as text; invalid UTF-8 is replaced.
func (c *Client) UploadFile(ctx context.Context, actor string, u *Upload) (*UploadResult, error) {
	if err := ValidateUpload(u); err != nil {
		return nil, err
	}
	endpoint, err := c.endpoint("homework", "upload-rag")
	if err != nil {
		return nil, err
	}

	body := uploadRequest{
		Filename: u.Filename,
		Content:  strings.ToValidUTF8(string(u.Content), "\uFFFD"),
		UserID:   actor,
	}
	if u.FolderID != "" {
		body.FolderID = &u.FolderID
	}

	resp, err := c.client.PostJSON(ctx, "upload homework file", endpoint, "", body)
	if err != nil {
		return nil, err
	}

	var out UploadResult
	if err := resp.Decode(&out); err != nil {
		return nil, apierr.Internal("decoding upload result", err)
	}
	out.Filename = u.Filename
	c.logger.Info("homework file uploaded",
		"actor", actor,
		"filename", u.Filename,
		"bytes", len(u.Content),
		"folder", u.FolderID,
	)
	return &out, nil
}
