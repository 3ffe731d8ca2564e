// ABOUTME: Tests for the gateway HTTP API handlers against fake upstream services
// ABOUTME: Covers auth, rate limiting, error bodies, webhook routing, and session recording

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/session-gateway/internal/config"
	"github.com/2389/session-gateway/internal/homework"
	"github.com/2389/session-gateway/internal/session"
	"github.com/2389/session-gateway/internal/store"
)

const (
	testJWTSecret = "test-secret-that-is-at-least-32-bytes-long"
	testActor     = "actor-1"
)

// capturedRequest is one call received by a fakeUpstream.
type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

// fakeUpstream records requests and answers with per-path canned responses.
type fakeUpstream struct {
	mu        sync.Mutex
	requests  []capturedRequest
	responses map[string][]cannedResponse
	srv       *httptest.Server
}

type cannedResponse struct {
	status int
	body   string
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{responses: make(map[string][]cannedResponse)}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

// respond queues responses for path; the last one repeats.
func (f *fakeUpstream) respond(path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[path] = append(f.responses[path], cannedResponse{status: status, body: body})
}

func (f *fakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.requests = append(f.requests, capturedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Auth:   r.Header.Get("Authorization"),
		Body:   body,
	})
	resp := cannedResponse{status: http.StatusOK, body: `{}`}
	if queued := f.responses[r.URL.Path]; len(queued) > 0 {
		resp = queued[0]
		if len(queued) > 1 {
			f.responses[r.URL.Path] = queued[1:]
		}
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

func (f *fakeUpstream) Requests() []capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capturedRequest(nil), f.requests...)
}

type testEnv struct {
	gw      *Gateway
	handler http.Handler
	agent   *fakeUpstream
	backend *fakeUpstream
	token   string
}

// newTestEnv builds a gateway wired to fake agent and backend services.
func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	agent := newFakeUpstream(t)
	backend := newFakeUpstream(t)

	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "gateway.db")},
		Auth:     config.AuthConfig{JWTSecret: testJWTSecret},
		LiveKit: config.LiveKitConfig{
			URL:       "wss://rooms.example.com",
			APIKey:    "lk-key",
			APISecret: "lk-secret",
		},
		Agent: config.AgentConfig{
			WebhookURL:    agent.srv.URL + "/trigger",
			APIKey:        "agent-key",
			RetryAttempts: 2,
			Timeout:       2 * time.Second,
		},
		Backend:   config.BackendConfig{BaseURL: backend.srv.URL, Timeout: 2 * time.Second},
		Webhook:   config.WebhookConfig{Workers: 2, QueueSize: 8, GenerationTimeout: 2 * time.Second},
		RateLimit: config.RateLimitConfig{Backend: config.RateLimitMemory},
		Metrics:   config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	for _, m := range mutate {
		m(cfg)
	}

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
	})

	token, err := gw.verifier.Generate(testActor, time.Hour)
	require.NoError(t, err)

	return &testEnv{
		gw:      gw,
		handler: gw.Handler(),
		agent:   agent,
		backend: backend,
		token:   token,
	}
}

// do sends a request through the gateway handler. An empty token sends no
// Authorization header.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestIssueCredential_SanitizesRoomAndParticipant(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/livekit/token", env.token, map[string]string{
		"roomName":        "Study Room!!",
		"participantName": "Ada_99",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "StudyRoom", resp.RoomName)
	assert.Equal(t, "Ada_99", resp.ParticipantName)
	assert.Equal(t, "wss://rooms.example.com", resp.WSURL)

	claims, err := env.gw.issuer.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "StudyRoom", claims.Video.Room)
	assert.Equal(t, "Ada_99", claims.Subject)
	assert.True(t, claims.Video.RoomJoin)
	assert.True(t, claims.Video.CanPublishData)

	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestIssueCredential_UserIDAlias(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/livekit/token", env.token, map[string]string{
		"roomName": "room-1",
		"userId":   "legacy.user",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "legacyuser", decodeMap(t, rec)["participantName"])
}

func TestIssueCredential_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage token", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/livekit/token", tt.token, map[string]string{
				"roomName": "room", "participantName": "ada",
			})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Unauthorized", decodeMap(t, rec)["error"])
		})
	}
}

func TestIssueCredential_InvalidInput(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing room", map[string]string{"participantName": "ada"}},
		{"missing participant", map[string]string{"roomName": "room"}},
		{"room sanitizes to empty", map[string]string{"roomName": "!!!", "participantName": "ada"}},
		{"malformed json", `{"roomName":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/livekit/token", env.token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeMap(t, rec)["error"])
		})
	}
}

func TestIssueCredential_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"roomName": "room", "participantName": "ada"}

	for i := 0; i < 10; i++ {
		rec := env.do(t, http.MethodPost, "/api/livekit/token", env.token, body)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := env.do(t, http.MethodPost, "/api/livekit/token", env.token, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Other namespaces keep their own counters.
	rec = env.do(t, http.MethodGet, "/api/homework/folders", env.token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIssueCredential_NotConfigured(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.LiveKit.APIKey = ""
		cfg.LiveKit.APISecret = ""
	})

	rec := env.do(t, http.MethodPost, "/api/livekit/token", env.token, map[string]string{
		"roomName": "room", "participantName": "ada",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeMap(t, rec)["error"], "not configured")
}

func TestDispatchAgent_Success(t *testing.T) {
	env := newTestEnv(t)
	env.agent.respond("/trigger", http.StatusOK, `{"ok":true,"worker":"w-1"}`)

	rec := env.do(t, http.MethodPost, "/api/livekit/agent", "", map[string]string{"roomName": "StudyRoom"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeMap(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "Agent triggered successfully", resp["message"])
	assert.Equal(t, "StudyRoom", resp["roomName"])
	assert.Equal(t, map[string]any{"ok": true, "worker": "w-1"}, resp["webhookResponse"])

	reqs := env.agent.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "Bearer agent-key", reqs[0].Auth)
	assert.Equal(t, "StudyRoom", reqs[0].Body["roomName"])
	assert.Equal(t, "join_room", reqs[0].Body["action"])
	assert.NotEmpty(t, reqs[0].Body["timestamp"])
}

func TestDispatchAgent_MissingRoom(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/livekit/agent", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.agent.Requests())
}

func TestDispatchAgent_UpstreamFailureRelaysStatus(t *testing.T) {
	env := newTestEnv(t)
	env.agent.respond("/trigger", http.StatusBadRequest, `{"reason":"room closed"}`)

	rec := env.do(t, http.MethodPost, "/api/livekit/agent", "", map[string]string{"roomName": "r"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeMap(t, rec)
	assert.Equal(t, "Failed to trigger agent", resp["error"])
	assert.Equal(t, float64(http.StatusBadRequest), resp["upstreamStatus"])
	assert.Equal(t, map[string]any{"reason": "room closed"}, resp["details"])
	assert.Len(t, env.agent.Requests(), 1, "4xx is not retried")
}

func TestDispatchAgent_RetriesServerErrors(t *testing.T) {
	env := newTestEnv(t)
	env.agent.respond("/trigger", http.StatusBadGateway, `busy`)
	env.agent.respond("/trigger", http.StatusOK, `{"ok":true}`)

	rec := env.do(t, http.MethodPost, "/api/livekit/agent", "", map[string]string{"roomName": "r"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, env.agent.Requests(), 2)
}

func TestDispatchAgent_NotConfigured(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Agent.WebhookURL = ""
	})

	rec := env.do(t, http.MethodPost, "/api/livekit/agent", "", map[string]string{"roomName": "r"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "agent webhook url not configured", decodeMap(t, rec)["error"])
}

func TestDispatchAgent_UnreachableHidesAddress(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL + "/trigger"
	dead.Close()

	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Agent.WebhookURL = deadURL
		cfg.Agent.RetryAttempts = 1
	})

	rec := env.do(t, http.MethodPost, "/api/livekit/agent", "", map[string]string{"roomName": "r"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeMap(t, rec)
	assert.Equal(t, "Failed to trigger agent", resp["error"])
	assert.Equal(t, unreachableDetail, resp["details"])
	assert.NotContains(t, rec.Body.String(), strings.TrimPrefix(dead.URL, "http://"))
}

func TestWebhook_FunctionCallTriggersGeneration(t *testing.T) {
	env := newTestEnv(t)
	env.backend.respond("/voice/generate-visual", http.StatusOK, `{"content":"quiz"}`)

	rec := env.do(t, http.MethodPost, "/api/vapi/webhook", "", `{
		"type": "function-call",
		"data": {"name": "generate_quiz", "arguments": {"topic": "photosynthesis"}}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeMap(t, rec)["success"])

	require.True(t, env.gw.queue.WaitIdle(2*time.Second))
	reqs := env.backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/voice/generate-visual", reqs[0].Path)
	assert.Equal(t, "quiz", reqs[0].Body["type"])
	assert.Equal(t, "photosynthesis", reqs[0].Body["prompt"])
	assert.Equal(t, "voice_command", reqs[0].Body["context"])
}

func TestWebhook_AlwaysAcknowledges(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown function", `{"type":"function-call","data":{"name":"unknown_fn","arguments":{}}}`},
		{"lifecycle event", `{"type":"call-start","data":{}}`},
		{"unknown type", `{"type":"hang-up","data":{}}`},
		{"malformed json", `{not json`},
		{"missing type", `{"data":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(t, http.MethodPost, "/api/vapi/webhook", "", tt.body)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, true, decodeMap(t, rec)["success"])

			require.True(t, env.gw.queue.WaitIdle(2*time.Second))
			assert.Empty(t, env.backend.Requests())
		})
	}
}

func TestWebhook_GenerationFailureStillAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	env.backend.respond("/voice/generate-visual", http.StatusInternalServerError, `boom`)

	rec := env.do(t, http.MethodPost, "/api/vapi/webhook", "",
		`{"type":"function-call","data":{"name":"generate_diagram","arguments":"{\"prompt\":\"cells\"}"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.True(t, env.gw.queue.WaitIdle(2*time.Second))
	reqs := env.backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "cells", reqs[0].Body["prompt"])
}

func TestWebhook_SharedSecret(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Webhook.Secret = "hook-secret"
	})
	body := `{"type":"call-end","data":{}}`

	rec := env.do(t, http.MethodPost, "/api/vapi/webhook", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/vapi/webhook", strings.NewReader(body))
	req.Header.Set(webhookSecretHeader, "hook-secret")
	ok := httptest.NewRecorder()
	env.handler.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
}

func TestListFiles(t *testing.T) {
	env := newTestEnv(t)
	env.backend.respond("/homework/files/"+testActor, http.StatusOK, `{"files":[{"name":"notes.pdf"}]}`)

	rec := env.do(t, http.MethodGet, "/api/homework/files?folderId=bio-101", env.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeMap(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, []any{map[string]any{"name": "notes.pdf"}}, resp["files"])

	reqs := env.backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "class_id=bio-101", reqs[0].Query)
	assert.Equal(t, "30", rec.Header().Get("X-RateLimit-Limit"))
}

func TestListFiles_InvalidFolderID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/homework/files?folderId=bad%01id", env.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.backend.Requests())
}

func TestListFiles_UpstreamErrorCarriesDetails(t *testing.T) {
	env := newTestEnv(t)
	env.backend.respond("/homework/files/"+testActor, http.StatusNotFound, `{"detail":"no such user"}`)

	rec := env.do(t, http.MethodGet, "/api/homework/files", env.token, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeMap(t, rec)
	assert.Equal(t, float64(http.StatusNotFound), resp["upstreamStatus"])
	assert.Equal(t, map[string]any{"detail": "no such user"}, resp["details"])
}

func TestFolders_ListAndCreate(t *testing.T) {
	env := newTestEnv(t)
	env.backend.respond("/homework/folders/"+testActor, http.StatusOK, `{"folders":[{"id":"f1"}]}`)
	env.backend.respond("/homework/folders", http.StatusOK, `{"folder":{"id":"f2","name":"Chemistry"}}`)

	rec := env.do(t, http.MethodGet, "/api/homework/folders", env.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{map[string]any{"id": "f1"}}, decodeMap(t, rec)["folders"])

	rec = env.do(t, http.MethodPost, "/api/homework/folders", env.token, map[string]string{
		"name":        "  Chemistry  ",
		"description": "labs",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"id": "f2", "name": "Chemistry"}, decodeMap(t, rec)["folder"])

	reqs := env.backend.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "Chemistry", reqs[1].Body["name"])
	assert.Equal(t, testActor, reqs[1].Body["user_id"])
}

func TestCreateFolder_EmptyName(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/homework/folders", env.token, map[string]string{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.backend.Requests())
}

func TestCreateFolder_BackendUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.backend.respond("/homework/folders", http.StatusServiceUnavailable, `{"detail":"maintenance"}`)

	rec := env.do(t, http.MethodPost, "/api/homework/folders", env.token, map[string]string{"name": "Physics"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "homework service unavailable", decodeMap(t, rec)["error"])
}

// upload sends a multipart upload with at most one file part.
func (e *testEnv) upload(t *testing.T, filename, contentType string, content []byte, folderID string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	if folderID != "" {
		require.NoError(t, mw.WriteField("folderId", folderID))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/homework/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestUploadFile(t *testing.T) {
	env := newTestEnv(t)
	env.backend.respond("/homework/upload-rag", http.StatusOK, `{"file_id":"f-1","chunks_processed":3}`)

	rec := env.upload(t, "notes.txt", "text/plain", []byte("cells divide"), "bio-101")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))

	resp := decodeMap(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "f-1", resp["file_id"])
	assert.Equal(t, "notes.txt", resp["filename"])
	assert.Equal(t, float64(3), resp["chunks_processed"])

	reqs := env.backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "cells divide", reqs[0].Body["content"])
	assert.Equal(t, "bio-101", reqs[0].Body["folder_id"])
	assert.Equal(t, testActor, reqs[0].Body["user_id"])
}

func TestUploadFile_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		content     []byte
		wantError   string
	}{
		{"no file", "", "", nil, "No file provided"},
		{"disallowed type", "tool.exe", "application/x-msdownload", []byte("MZ"), "File type not allowed"},
		{"too large", "big.txt", "text/plain", make([]byte, homework.MaxUploadBytes+1), "File size exceeds 10MB limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.upload(t, tt.filename, tt.contentType, tt.content, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantError, decodeMap(t, rec)["error"])
			assert.Empty(t, env.backend.Requests())
		})
	}
}

func TestUploadFile_NotMultipart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/homework/upload", env.token, map[string]string{"file": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHomeworkChat(t *testing.T) {
	env := newTestEnv(t)
	env.backend.respond("/homework/chat-rag", http.StatusOK, `{"response":"Mitosis has four phases","conversation_id":"c-7","context_used":true}`)

	rec := env.do(t, http.MethodPost, "/api/homework/chat", env.token, map[string]any{
		"message":              " <script>x()</script>How many phases? ",
		"conversation_history": []any{map[string]any{"role": "user", "content": "hi"}},
		"conversation_id":      "c-7",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "50", rec.Header().Get("X-RateLimit-Limit"))

	resp := decodeMap(t, rec)
	assert.Equal(t, "Mitosis has four phases", resp["response"])
	assert.Equal(t, "c-7", resp["conversation_id"])
	assert.Equal(t, true, resp["context_used"])
	assert.Equal(t, []any{}, resp["tool_calls"])
	assert.NotEmpty(t, resp["timestamp"])

	reqs := env.backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "How many phases?", reqs[0].Body["message"])
	assert.Equal(t, testActor, reqs[0].Body["user_id"])
}

func TestHomeworkChat_EmptyMessage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/homework/chat", env.token, map[string]string{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message cannot be empty", decodeMap(t, rec)["error"])
	assert.Empty(t, env.backend.Requests())
}

func TestSessionContent(t *testing.T) {
	env := newTestEnv(t)
	env.backend.respond("/summary/key-1", http.StatusOK, `{"title":"Photosynthesis","notes":"light reactions","diagram":"graph LR"}`)

	rec := env.do(t, http.MethodGet, "/api/session/content?cacheKey=key-1", env.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeMap(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "Photosynthesis", resp["title"])
	assert.Equal(t, "light reactions", resp["notes"])
	assert.Equal(t, "graph LR", resp["diagram"])
}

func TestSessionContent_MissingKey(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/session/content", env.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cache key is required", decodeMap(t, rec)["error"])

	rec = env.do(t, http.MethodGet, "/api/session/content?cacheKey=k", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerateVisual_PassesThroughBackendData(t *testing.T) {
	env := newTestEnv(t)
	env.backend.respond("/voice/generate-visual", http.StatusOK, `{"mermaid":"graph TD; A-->B"}`)

	rec := env.do(t, http.MethodPost, "/api/voice/generate-visual", env.token, map[string]string{
		"command_type": "diagram",
		"topic":        "cell cycle",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "graph TD; A-->B", decodeMap(t, rec)["mermaid"])

	reqs := env.backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "diagram", reqs[0].Body["type"])
	assert.Equal(t, "cell cycle", reqs[0].Body["prompt"])
}

func TestGenerateVisual_UnknownType(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/voice/generate-visual", env.token, map[string]string{"type": "poem"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.backend.Requests())
}

func validSessionBody(id string) map[string]any {
	return map[string]any{
		"sessionId":       id,
		"duration":        1800,
		"classesCovered":  []string{"Bio101"},
		"topicsCovered":   []string{"Mitosis"},
		"keyConcepts":     []string{"cell-division"},
		"confidenceScore": 0.75,
		"summaryText":     "Covered mitosis basics",
	}
}

func TestCompleteSession_EchoesFields(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/study-session/complete", env.token, validSessionBody("session-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CompleteSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Session completed successfully", resp.Message)

	data := resp.SessionData
	assert.Equal(t, "session-1", data.ID)
	assert.Equal(t, testActor, data.UserID)
	assert.Equal(t, 1800.0, data.Duration)
	assert.Equal(t, []string{"Bio101"}, data.ClassesCovered)
	assert.Equal(t, []string{"Mitosis"}, data.TopicsCovered)
	assert.Equal(t, []string{"cell-division"}, data.KeyConcepts)
	assert.Equal(t, 0.75, data.ConfidenceScore)
	assert.Equal(t, "Covered mitosis basics", data.SummaryText)
	assert.False(t, data.CompletedAt.IsZero())
	assert.WithinDuration(t, time.Now(), data.CompletedAt, time.Minute)

	stored, err := env.gw.store.GetSession(context.Background(), testActor, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "Covered mitosis basics", stored.SummaryText)
}

func TestCompleteSession_Duplicate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/study-session/complete", env.token, validSessionBody("dup"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/study-session/complete", env.token, validSessionBody("dup"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session already completed", decodeMap(t, rec)["error"])
}

func TestCompleteSession_InvalidReportsEveryField(t *testing.T) {
	env := newTestEnv(t)

	body := validSessionBody("bad")
	body["duration"] = 3601
	body["confidenceScore"] = 1.0001
	body["topicsCovered"] = nil

	rec := env.do(t, http.MethodPost, "/api/study-session/complete", env.token, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error   string               `json:"error"`
		Details []session.FieldError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid session data provided", resp.Error)

	fields := make([]string, 0, len(resp.Details))
	for _, d := range resp.Details {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"duration", "confidenceScore", "topicsCovered"}, fields)

	_, err := env.gw.store.GetSession(context.Background(), testActor, "bad")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCompleteSession_RateLimited(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		rec := env.do(t, http.MethodPost, "/api/study-session/complete", env.token, `{}`)
		require.Equal(t, http.StatusBadRequest, rec.Code, "request %d", i+1)
	}
	rec := env.do(t, http.MethodPost, "/api/study-session/complete", env.token, validSessionBody("late"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)

	for _, id := range []string{"s1", "s2", "s3"} {
		rec := env.do(t, http.MethodPost, "/api/study-session/complete", env.token, validSessionBody(id))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/study-sessions?limit=2", env.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success  bool          `json:"success"`
		Sessions []SessionData `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Sessions, 2)

	rec = env.do(t, http.MethodGet, "/api/study-sessions?limit=zero", env.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseListLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", defaultSessionListLimit, false},
		{"5", 5, false},
		{"1000", maxSessionListLimit, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseListLimit(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, "raw=%q", tt.raw)
			continue
		}
		require.NoError(t, err, "raw=%q", tt.raw)
		assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 30, retryAfterSeconds(now.Add(30*time.Second), now))
	assert.Equal(t, 2, retryAfterSeconds(now.Add(1500*time.Millisecond), now))
	assert.Equal(t, 1, retryAfterSeconds(now.Add(-time.Second), now))
}

func TestMetricsEndpoint_RecordsRoutes(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/livekit/token", env.token, map[string]string{
		"roomName": "room", "participantName": "ada",
	})
	env.do(t, http.MethodGet, "/nope", "", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `route="POST /api/livekit/token"`)
	assert.Contains(t, body, `route="unmatched"`)
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Metrics.Enabled = false
	})

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	echoed := httptest.NewRecorder()
	env.handler.ServeHTTP(echoed, req)
	assert.Equal(t, "abc-123", echoed.Header().Get(requestIDHeader))
}

func TestReady_StoreUnavailable(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	broken := store.NewMockStore()
	broken.PingErr = io.ErrUnexpectedEOF
	env.gw.sessions = session.NewService(broken, nil, testLogger(), nil)

	rec = env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
