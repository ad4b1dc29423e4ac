package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnforge/internal/store"
)

type capturedRequest struct {
	Path   string
	Auth   string
	Header http.Header
	Body   map[string]any
}

// fakeBackend serves a fixed reply and records every request it receives.
type fakeBackend struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	body     string
	chunks   []string // written and flushed one by one when set
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	f.mu.Lock()
	f.requests = append(f.requests, capturedRequest{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Header: r.Header.Clone(), Body: body})
	f.mu.Unlock()

	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	if f.chunks != nil {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(status)
		fl, _ := w.(http.Flusher)
		for _, c := range f.chunks {
			fmt.Fprint(w, c)
			if fl != nil {
				fl.Flush()
			}
		}
		return
	}
	w.WriteHeader(status)
	fmt.Fprint(w, f.body)
}

func (f *fakeBackend) lastRequest(t *testing.T) capturedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func setupTestLLM(t *testing.T, backend *fakeBackend) (*LLMService, store.AIConfig) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	svc := NewLLMService(5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, store.AIConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "test-model", BasePrompt: "base prompt"}
}

func sseChunk(content string) string {
	b, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"delta": map[string]any{"content": content}}}})
	return "data: " + string(b) + "\n\n"
}

func collect(seq func(func(string) bool)) []string {
	var out []string
	for v := range seq {
		out = append(out, v)
	}
	return out
}

func TestLLMService_RequestConstruction(t *testing.T) {
	backend := &fakeBackend{body: cleanJSONFixture}
	svc, cfg := setupTestLLM(t, backend)

	got := svc.GenerateTip(context.Background(), "goroutine", cfg, "English")
	assert.Equal(t, "Hello world", got)

	req := backend.lastRequest(t)
	assert.Equal(t, "/v1/chat/completions", req.Path)
	assert.Equal(t, "Bearer sk-test", req.Auth)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "test-model", req.Body["model"])
	assert.Equal(t, 0.7, req.Body["temperature"])
	assert.Equal(t, false, req.Body["stream"])

	messages := req.Body["messages"].([]any)
	require.Len(t, messages, 2)
	system := messages[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Equal(t, "base prompt", system["content"])
	user := messages[1].(map[string]any)
	assert.Contains(t, user["content"], `"goroutine"`)
	assert.Contains(t, user["content"], "must be written in English")
}

func TestLLMService_NoAuthorizationWithoutKey(t *testing.T) {
	backend := &fakeBackend{body: cleanJSONFixture}
	svc, cfg := setupTestLLM(t, backend)
	cfg.APIKey = ""

	svc.GenerateLessonPrompt(context.Background(), "Intro", cfg, "English")

	assert.Empty(t, backend.lastRequest(t).Auth)
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, DefaultBaseURL+"/chat/completions", endpoint(store.AIConfig{}))
	assert.Equal(t, "http://localhost:11434/v1/chat/completions", endpoint(store.AIConfig{BaseURL: "http://localhost:11434/v1/"}))
}

func TestLLMService_TestConnection(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc, cfg := setupTestLLM(t, &fakeBackend{body: cleanJSONFixture})

		res := svc.TestConnection(context.Background(), cfg)
		assert.True(t, res.Success)
		assert.Equal(t, "Connection successful! Response: Hello world", res.Message)
	})

	t.Run("server error", func(t *testing.T) {
		backend := &fakeBackend{status: http.StatusInternalServerError, body: `{"error":{"message":"boom"}}`}
		svc, cfg := setupTestLLM(t, backend)

		res := svc.TestConnection(context.Background(), cfg)
		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "500")
		assert.Contains(t, res.Message, "boom")
		assert.Equal(t, 0.5, backend.lastRequest(t).Body["temperature"])
	})

	t.Run("empty reply", func(t *testing.T) {
		svc, cfg := setupTestLLM(t, &fakeBackend{body: `{"choices":[{"message":{"content":""}}]}`})

		res := svc.TestConnection(context.Background(), cfg)
		assert.False(t, res.Success)
		assert.Equal(t, "Connected, but received empty response.", res.Message)
	})

	t.Run("unreachable", func(t *testing.T) {
		svc := NewLLMService(time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
		res := svc.TestConnection(context.Background(), store.AIConfig{BaseURL: "http://127.0.0.1:1"})
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Message)
	})
}

func TestLLMService_FallbackStrings(t *testing.T) {
	svc, cfg := setupTestLLM(t, &fakeBackend{status: http.StatusBadGateway, body: "bad gateway"})
	ctx := context.Background()

	assert.Equal(t, FallbackLessonPrompt, svc.GenerateLessonPrompt(ctx, "Intro", cfg, "English"))
	assert.Equal(t, FallbackTip, svc.GenerateTip(ctx, "x", cfg, "English"))
	assert.Equal(t, FallbackChat, svc.SendChatMessage(ctx, nil, store.ChatMessage{Text: "hi"}, cfg, "English", ""))
	assert.Equal(t, "Error generating content: API Error 502: bad gateway",
		svc.GenerateCourseContent(ctx, "Intro", "cover basics", cfg, "English"))
}

func TestLLMService_ChatMessages(t *testing.T) {
	backend := &fakeBackend{body: cleanJSONFixture}
	svc, cfg := setupTestLLM(t, backend)
	history := []store.ChatMessage{
		{Role: store.RoleUser, Text: "what is a slice?"},
		{Role: store.RoleModel, Text: "a view over an array"},
	}
	newMessage := store.ChatMessage{Role: store.RoleUser, Text: "and this?", Images: []string{"data:image/png;base64,AA=="}}

	got := svc.SendChatMessage(context.Background(), history, newMessage, cfg, "French", "# Slices\nThey share memory.")
	assert.Equal(t, "Hello world", got)

	messages := backend.lastRequest(t).Body["messages"].([]any)
	require.Len(t, messages, 4)

	system := messages[0].(map[string]any)["content"].(string)
	assert.True(t, strings.HasPrefix(system, "base prompt"))
	assert.Contains(t, system, "You must always respond in French.")
	assert.Contains(t, system, "--- CONTEXT START ---\n# Slices\nThey share memory.\n--- CONTEXT END ---")

	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
	assert.Equal(t, "assistant", messages[2].(map[string]any)["role"])

	last := messages[3].(map[string]any)
	assert.Equal(t, "user", last["role"])
	parts := last["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, map[string]any{"type": "text", "text": "and this?"}, parts[0])
	assert.Equal(t, map[string]any{"type": "image_url", "image_url": map[string]any{"url": "data:image/png;base64,AA=="}}, parts[1])
}

func TestLLMService_ChatWithoutContext(t *testing.T) {
	backend := &fakeBackend{body: cleanJSONFixture}
	svc, cfg := setupTestLLM(t, backend)

	svc.SendChatMessage(context.Background(), nil, store.ChatMessage{Text: "hi"}, cfg, "English", "  ")

	messages := backend.lastRequest(t).Body["messages"].([]any)
	system := messages[0].(map[string]any)["content"].(string)
	assert.NotContains(t, system, "CONTEXT START")
	assert.Equal(t, "hi", messages[1].(map[string]any)["content"])
}

func TestLLMService_ContentStream(t *testing.T) {
	backend := &fakeBackend{chunks: []string{
		sseChunk("Hel"), sseChunk("lo"), sseChunk("!"), "data: [DONE]\n\n",
	}}
	svc, cfg := setupTestLLM(t, backend)

	got := collect(svc.GenerateCourseContentStream(context.Background(), "Intro", "cover basics", cfg, "English"))
	assert.Equal(t, []string{"Hel", "Hello", "Hello!"}, got)
	assert.Equal(t, true, backend.lastRequest(t).Body["stream"])
}

func TestLLMService_StreamIgnoredByBackend(t *testing.T) {
	svc, cfg := setupTestLLM(t, &fakeBackend{body: cleanJSONFixture})

	got := collect(svc.SendChatMessageStream(context.Background(), nil, store.ChatMessage{Text: "hi"}, cfg, "English", ""))
	assert.Equal(t, []string{"Hello world"}, got)
}

func TestLLMService_StreamFailure(t *testing.T) {
	svc, cfg := setupTestLLM(t, &fakeBackend{status: http.StatusInternalServerError, body: `{"error":{"message":"boom"}}`})

	chat := collect(svc.SendChatMessageStream(context.Background(), nil, store.ChatMessage{Text: "hi"}, cfg, "English", ""))
	assert.Equal(t, []string{FallbackChat}, chat)

	content := collect(svc.GenerateCourseContentStream(context.Background(), "Intro", "", cfg, "English"))
	assert.Equal(t, []string{"Error generating content: API Error 500: boom"}, content)
}

func TestLLMService_StreamWithoutContentYieldsOnce(t *testing.T) {
	svc, cfg := setupTestLLM(t, &fakeBackend{chunks: []string{"data: [DONE]\n\n"}})

	got := collect(svc.SendChatMessageStream(context.Background(), nil, store.ChatMessage{Text: "hi"}, cfg, "English", ""))
	assert.Equal(t, []string{""}, got)
}

func TestLLMService_StreamStopsWhenConsumerBreaks(t *testing.T) {
	svc, cfg := setupTestLLM(t, &fakeBackend{chunks: []string{sseChunk("a"), sseChunk("b"), sseChunk("c")}})

	var got []string
	for text := range svc.GenerateCourseContentStream(context.Background(), "Intro", "", cfg, "English") {
		got = append(got, text)
		if len(got) == 2 {
			break
		}
	}
	assert.True(t, slices.Equal([]string{"a", "ab"}, got))
}
