// ABOUTME: HTTP API handlers for credentials, agent dispatch, webhooks, homework, and sessions
// ABOUTME: Each handler authenticates, throttles, then delegates to one domain service

package gateway

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/session-gateway/internal/apierr"
	"github.com/2389/session-gateway/internal/auth"
	"github.com/2389/session-gateway/internal/generation"
	"github.com/2389/session-gateway/internal/homework"
	"github.com/2389/session-gateway/internal/metrics"
	"github.com/2389/session-gateway/internal/ratelimit"
	"github.com/2389/session-gateway/internal/store"
)

const (
	webhookSecretHeader = "X-Vapi-Secret"

	defaultSessionListLimit = 20
	maxSessionListLimit     = 100
)

// TokenRequest is the JSON request body for POST /api/livekit/token.
// UserID is accepted as an alias of ParticipantName.
type TokenRequest struct {
	RoomName        string `json:"roomName"`
	ParticipantName string `json:"participantName"`
	UserID          string `json:"userId,omitempty"`
}

// TokenResponse is the JSON response for POST /api/livekit/token.
type TokenResponse struct {
	Token           string    `json:"token"`
	WSURL           string    `json:"wsUrl,omitempty"`
	RoomName        string    `json:"roomName"`
	ParticipantName string    `json:"participantName"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// AgentRequest is the JSON request body for POST /api/livekit/agent.
type AgentRequest struct {
	RoomName string `json:"roomName"`
}

// AgentResponse is the JSON response for POST /api/livekit/agent.
type AgentResponse struct {
	Success         bool           `json:"success"`
	Message         string         `json:"message"`
	RoomName        string         `json:"roomName"`
	WebhookResponse map[string]any `json:"webhookResponse"`
}

// CreateFolderRequest is the JSON request body for POST /api/homework/folders.
type CreateFolderRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SessionData is a recorded study session as returned to clients.
type SessionData struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Duration        float64   `json:"duration"`
	ClassesCovered  []string  `json:"classesCovered"`
	TopicsCovered   []string  `json:"topicsCovered"`
	KeyConcepts     []string  `json:"keyConcepts"`
	ConfidenceScore float64   `json:"confidenceScore"`
	SummaryText     string    `json:"summaryText"`
	CompletedAt     time.Time `json:"completedAt"`
}

// CompleteSessionResponse is the JSON response for POST /api/study-session/complete.
type CompleteSessionResponse struct {
	Success     bool        `json:"success"`
	SessionData SessionData `json:"sessionData"`
	Message     string      `json:"message"`
}

func toSessionData(s *store.StudySession) SessionData {
	return SessionData{
		ID:              s.ID,
		UserID:          s.ActorID,
		Duration:        s.Duration,
		ClassesCovered:  s.ClassesCovered,
		TopicsCovered:   s.TopicsCovered,
		KeyConcepts:     s.KeyConcepts,
		ConfidenceScore: s.ConfidenceScore,
		SummaryText:     s.SummaryText,
		CompletedAt:     s.CompletedAt,
	}
}

// actorAndThrottle resolves the authenticated actor and applies p.
// Returns "" if a response has already been written.
func (g *Gateway) actorAndThrottle(w http.ResponseWriter, r *http.Request, p ratelimit.Policy) string {
	actor := auth.ActorID(r.Context())
	if actor == "" {
		g.writeError(w, r, apierr.Unauthenticated("Unauthorized"))
		return ""
	}
	if !g.throttle(w, r, actor, p) {
		return ""
	}
	return actor
}

// handleIssueCredential handles POST /api/livekit/token.
func (g *Gateway) handleIssueCredential(w http.ResponseWriter, r *http.Request) {
	actor := g.actorAndThrottle(w, r, ratelimit.CredentialPolicy)
	if actor == "" {
		return
	}

	var req TokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	participant := req.ParticipantName
	if participant == "" {
		participant = req.UserID
	}

	cred, err := g.issuer.Issue(actor, req.RoomName, participant)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	g.logger.Info("credential issued", "actor", actor, "room", cred.Room, "identity", cred.Identity)
	writeJSON(w, http.StatusOK, TokenResponse{
		Token:           cred.Token,
		WSURL:           cred.WSURL,
		RoomName:        cred.Room,
		ParticipantName: cred.Identity,
		ExpiresAt:       cred.ExpiresAt,
	})
}

// handleDispatchAgent handles POST /api/livekit/agent.
func (g *Gateway) handleDispatchAgent(w http.ResponseWriter, r *http.Request) {
	var req AgentRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	result, err := g.dispatcher.Dispatch(r.Context(), req.RoomName)
	if err != nil {
		if apierr.Is(err, apierr.KindInvalidInput) {
			g.writeError(w, r, err)
			return
		}
		g.metrics.Dispatch(metrics.OutcomeFailure)
		if apierr.Is(err, apierr.KindUpstream) {
			g.writeErrorAs(w, r, err, "Failed to trigger agent")
			return
		}
		g.writeError(w, r, err)
		return
	}

	g.metrics.Dispatch(metrics.OutcomeSuccess)
	writeJSON(w, http.StatusOK, AgentResponse{
		Success:         true,
		Message:         "Agent triggered successfully",
		RoomName:        result.RoomName,
		WebhookResponse: result.Response,
	})
}

// handleWebhook handles POST /api/vapi/webhook. The sender always gets a
// success acknowledgment; routing problems are logged and counted.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		g.logger.Warn("failed to read webhook body", "error", err)
	} else {
		out := g.router.Route(r.Context(), body)
		if out.Queued() {
			g.logger.Info("webhook function call queued", "function", out.Function, "job_id", out.JobID)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleListFiles handles GET /api/homework/files.
func (g *Gateway) handleListFiles(w http.ResponseWriter, r *http.Request) {
	actor := g.actorAndThrottle(w, r, ratelimit.FilesPolicy)
	if actor == "" {
		return
	}

	files, err := g.homework.ListFiles(r.Context(), actor, r.URL.Query().Get("folderId"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "files": files})
}

// handleListFolders handles GET /api/homework/folders.
func (g *Gateway) handleListFolders(w http.ResponseWriter, r *http.Request) {
	actor := g.actorAndThrottle(w, r, ratelimit.FoldersPolicy)
	if actor == "" {
		return
	}

	folders, err := g.homework.ListFolders(r.Context(), actor)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "folders": folders})
}

// backendUnavailable reports a transport failure or a 503 from the backend.
func backendUnavailable(err error) bool {
	var e *apierr.Error
	if !errors.As(err, &e) || e.Kind != apierr.KindUpstream {
		return false
	}
	return e.Err != nil || e.UpstreamStatus == http.StatusServiceUnavailable
}

// handleCreateFolder handles POST /api/homework/folders.
func (g *Gateway) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	actor := g.actorAndThrottle(w, r, ratelimit.FoldersPolicy)
	if actor == "" {
		return
	}

	var req CreateFolderRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	folder, err := g.homework.CreateFolder(r.Context(), actor, req.Name, req.Description)
	if err != nil {
		if backendUnavailable(err) {
			_, resp := errorBody(err, "homework service unavailable")
			g.writeErrorStatus(w, r, http.StatusServiceUnavailable, resp, err)
			return
		}
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "folder": folder})
}

// uploadFormOverhead allows for multipart framing around the file itself.
const uploadFormOverhead = 1 << 20

// handleUploadFile handles POST /api/homework/upload (multipart "file" and
// optional "folderId").
func (g *Gateway) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	actor := g.actorAndThrottle(w, r, ratelimit.UploadPolicy)
	if actor == "" {
		return
	}

	upload, err := readUpload(w, r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	result, err := g.homework.UploadFile(r.Context(), actor, upload)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"file_id":          result.FileID,
		"filename":         result.Filename,
		"chunks_processed": result.ChunksProcessed,
		"message":          "File uploaded and processed successfully",
	})
}

// readUpload parses the multipart body into a homework.Upload.
func readUpload(w http.ResponseWriter, r *http.Request) (*homework.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, homework.MaxUploadBytes+uploadFormOverhead)
	if err := r.ParseMultipartForm(uploadFormOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierr.InvalidInput("File size exceeds 10MB limit")
		}
		return nil, apierr.InvalidInput("invalid multipart form")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, apierr.InvalidInput("No file provided")
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, homework.MaxUploadBytes+1))
	if err != nil {
		return nil, apierr.InvalidInput("failed to read uploaded file")
	}
	return &homework.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
		FolderID:    r.FormValue("folderId"),
	}, nil
}

// handleHomeworkChat handles POST /api/homework/chat.
func (g *Gateway) handleHomeworkChat(w http.ResponseWriter, r *http.Request) {
	actor := g.actorAndThrottle(w, r, ratelimit.ChatPolicy)
	if actor == "" {
		return
	}

	var req homework.ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	reply, err := g.homework.Chat(r.Context(), actor, req)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"response":        reply.Response,
		"tool_calls":      reply.ToolCalls,
		"conversation_id": reply.ConversationID,
		"context_used":    reply.ContextUsed,
		"timestamp":       g.now().UTC(),
	})
}

// handleSessionContent handles GET /api/session/content?cacheKey=.
func (g *Gateway) handleSessionContent(w http.ResponseWriter, r *http.Request) {
	actor := g.actorAndThrottle(w, r, ratelimit.SessionContentPolicy)
	if actor == "" {
		return
	}

	content, err := g.homework.SessionContent(r.Context(), r.URL.Query().Get("cacheKey"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"title":   content.Title,
		"notes":   content.Notes,
		"diagram": content.Diagram,
	})
}

// handleGenerateVisual handles POST /api/voice/generate-visual.
// The kind comes from "type" or "command_type"; the rest of the body feeds the prompt.
func (g *Gateway) handleGenerateVisual(w http.ResponseWriter, r *http.Request) {
	actor := g.actorAndThrottle(w, r, ratelimit.GeneratePolicy)
	if actor == "" {
		return
	}

	var args map[string]any
	if err := decodeBody(w, r, &args); err != nil {
		g.writeError(w, r, err)
		return
	}
	if args == nil {
		g.writeError(w, r, apierr.InvalidInput("request body must be a JSON object"))
		return
	}

	kindName, _ := args["type"].(string)
	if kindName == "" {
		kindName, _ = args["command_type"].(string)
	}
	kind, err := generation.ParseKind(kindName)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	result, err := g.generator.Generate(r.Context(), kind, args)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	g.logger.Info("visual generated", "actor", actor, "kind", kind)
	writeJSON(w, http.StatusOK, result.Data)
}

// handleCompleteSession handles POST /api/study-session/complete.
func (g *Gateway) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	actor := g.actorAndThrottle(w, r, ratelimit.SessionCompletePolicy)
	if actor == "" {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	sess, err := g.sessions.ValidateAndRecord(r.Context(), actor, body)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CompleteSessionResponse{
		Success:     true,
		SessionData: toSessionData(sess),
		Message:     "Session completed successfully",
	})
}

// parseListLimit reads ?limit=, defaulting and capping it.
func parseListLimit(raw string) (int, error) {
	if raw == "" {
		return defaultSessionListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apierr.InvalidInput("limit must be a positive integer")
	}
	return min(n, maxSessionListLimit), nil
}

// handleListSessions handles GET /api/study-sessions.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	actor := g.actorAndThrottle(w, r, ratelimit.SessionsListPolicy)
	if actor == "" {
		return
	}

	limit, err := parseListLimit(r.URL.Query().Get("limit"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	sessions, err := g.sessions.List(r.Context(), actor, limit)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	out := make([]SessionData, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionData(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessions": out})
}
