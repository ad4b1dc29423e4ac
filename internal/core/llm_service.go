package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"learnforge/internal/store"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"

	defaultTemperature    = 0.7
	connectionTemperature = 0.5
)

// AIGateway is the surface the curriculum service needs from the LLM client.
type AIGateway interface {
	TestConnection(ctx context.Context, cfg store.AIConfig) ConnectionResult
	GenerateLessonPrompt(ctx context.Context, chapterTitle string, cfg store.AIConfig, language string) string
	GenerateCourseContentStream(ctx context.Context, chapterTitle, lessonPrompt string, cfg store.AIConfig, language string) iter.Seq[string]
	GenerateTip(ctx context.Context, selectedText string, cfg store.AIConfig, language string) string
	SendChatMessageStream(ctx context.Context, history []store.ChatMessage, newMessage store.ChatMessage, cfg store.AIConfig, language, contextContent string) iter.Seq[string]
}

type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LLMService talks to any OpenAI-compatible /chat/completions endpoint.
// Business operations never return errors: failures become a flagged result
// or a fallback string.
type LLMService struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func NewLLMService(timeout time.Duration, logger *slog.Logger) *LLMService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMService{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (s *LLMService) TestConnection(ctx context.Context, cfg store.AIConfig) ConnectionResult {
	text, err := s.complete(ctx, cfg, []oaiMessage{
		{Role: "user", Content: connectionTestPrompt},
	}, connectionTemperature)
	if err != nil {
		return ConnectionResult{Success: false, Message: err.Error()}
	}
	if text == "" {
		return ConnectionResult{Success: false, Message: "Connected, but received empty response."}
	}
	return ConnectionResult{Success: true, Message: "Connection successful! Response: " + text}
}

func (s *LLMService) GenerateLessonPrompt(ctx context.Context, chapterTitle string, cfg store.AIConfig, language string) string {
	text, err := s.complete(ctx, cfg, []oaiMessage{
		{Role: "system", Content: lessonPromptSystemInstruction},
		{Role: "user", Content: lessonPromptUserPrompt(chapterTitle, language)},
	}, defaultTemperature)
	if err != nil {
		s.logger.Error("lesson prompt generation failed", "chapter", chapterTitle, "error", err)
		return FallbackLessonPrompt
	}
	return text
}

func (s *LLMService) GenerateCourseContent(ctx context.Context, chapterTitle, lessonPrompt string, cfg store.AIConfig, language string) string {
	text, err := s.complete(ctx, cfg, courseContentMessages(chapterTitle, lessonPrompt, cfg, language), defaultTemperature)
	if err != nil {
		s.logger.Error("content generation failed", "chapter", chapterTitle, "error", err)
		return fallbackContent(err)
	}
	return text
}

// GenerateCourseContentStream yields the cumulative content as it arrives.
// The last value is the complete text.
func (s *LLMService) GenerateCourseContentStream(ctx context.Context, chapterTitle, lessonPrompt string, cfg store.AIConfig, language string) iter.Seq[string] {
	return s.withFallback("content generation", s.stream(ctx, cfg, courseContentMessages(chapterTitle, lessonPrompt, cfg, language), defaultTemperature), fallbackContent)
}

func (s *LLMService) GenerateTip(ctx context.Context, selectedText string, cfg store.AIConfig, language string) string {
	text, err := s.complete(ctx, cfg, []oaiMessage{
		{Role: "system", Content: cfg.BasePrompt},
		{Role: "user", Content: tipUserPrompt(selectedText, language)},
	}, defaultTemperature)
	if err != nil {
		s.logger.Error("tip generation failed", "error", err)
		return FallbackTip
	}
	return text
}

func (s *LLMService) SendChatMessage(ctx context.Context, history []store.ChatMessage, newMessage store.ChatMessage, cfg store.AIConfig, language, contextContent string) string {
	text, err := s.complete(ctx, cfg, chatMessages(history, newMessage, cfg, language, contextContent), defaultTemperature)
	if err != nil {
		s.logger.Error("chat failed", "error", err)
		return FallbackChat
	}
	return text
}

// SendChatMessageStream yields the cumulative assistant reply.
func (s *LLMService) SendChatMessageStream(ctx context.Context, history []store.ChatMessage, newMessage store.ChatMessage, cfg store.AIConfig, language, contextContent string) iter.Seq[string] {
	return s.withFallback("chat", s.stream(ctx, cfg, chatMessages(history, newMessage, cfg, language, contextContent), defaultTemperature),
		func(error) string { return FallbackChat })
}

// complete performs a single non-streaming request and decodes the reply.
func (s *LLMService) complete(ctx context.Context, cfg store.AIConfig, messages []oaiMessage, temperature float64) (string, error) {
	resp, err := s.post(ctx, cfg, messages, temperature, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	text, err := DecodeCompletion(resp.StatusCode, body)
	if err != nil {
		s.logger.Debug("failed to decode completion", "status", resp.StatusCode, "body", string(body))
		return "", err
	}
	return text, nil
}

func (s *LLMService) post(ctx context.Context, cfg store.AIConfig, messages []oaiMessage, temperature float64, stream bool) (*http.Response, error) {
	body, err := json.Marshal(oaiChatRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: temperature,
		Stream:      stream,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(cfg), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai-compat request: %w", err)
	}
	return resp, nil
}

func (s *LLMService) withFallback(op string, seq iter.Seq2[string, error], fallback func(error) string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for text, err := range seq {
			if err != nil {
				s.logger.Error(op+" stream failed", "error", err)
				yield(fallback(err))
				return
			}
			if !yield(text) {
				return
			}
		}
	}
}

func endpoint(cfg store.AIConfig) string {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/chat/completions"
}

func courseContentMessages(chapterTitle, lessonPrompt string, cfg store.AIConfig, language string) []oaiMessage {
	return []oaiMessage{
		{Role: "system", Content: cfg.BasePrompt},
		{Role: "user", Content: courseContentUserPrompt(chapterTitle, lessonPrompt, language)},
	}
}

func chatMessages(history []store.ChatMessage, newMessage store.ChatMessage, cfg store.AIConfig, language, contextContent string) []oaiMessage {
	messages := make([]oaiMessage, 0, len(history)+2)
	messages = append(messages, oaiMessage{Role: "system", Content: chatSystemInstruction(cfg.BasePrompt, language, contextContent)})
	for _, h := range history {
		role := "user"
		if h.Role == store.RoleModel {
			role = "assistant"
		}
		messages = append(messages, oaiMessage{Role: role, Content: messageContent(h.Text, h.Images)})
	}
	messages = append(messages, oaiMessage{Role: "user", Content: messageContent(newMessage.Text, newMessage.Images)})
	return messages
}

// messageContent uses the multi-part form only when images are attached.
func messageContent(text string, images []string) any {
	if len(images) == 0 {
		return text
	}
	parts := make([]oaiContentPart, 0, len(images)+1)
	parts = append(parts, oaiContentPart{Type: "text", Text: text})
	for _, img := range images {
		parts = append(parts, oaiContentPart{Type: "image_url", ImageURL: &oaiImageURL{URL: img}})
	}
	return parts
}

// OpenAI-compatible request types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type oaiContentPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
}

type oaiImageURL struct {
	URL string `json:"url"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	Stream      bool         `json:"stream"`
}
