package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"learnforge/internal/core"
	"learnforge/internal/render"
	"learnforge/internal/store"
)

type ctxKey int

const userIDKey ctxKey = iota

// SeedFunc returns the data a newly registered user starts from.
type SeedFunc func() (store.SeedData, error)

type APIHandler struct {
	users  *store.UserStore
	svc    *core.CurriculumService
	seed   SeedFunc
	logger *slog.Logger
}

func NewAPIHandler(users *store.UserStore, svc *core.CurriculumService, seed SeedFunc, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{users: users, svc: svc, seed: seed, logger: logger}
}

// SessionMiddleware resolves the store's active user and rejects the request
// when nobody is logged in.
func (h *APIHandler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok, err := h.users.LoadActiveSession(r.Context())
		if err != nil {
			h.logger.Error("failed to load active session", "error", err)
			http.Error(w, "Failed to load session", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "No active session", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, session.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	seed, err := h.seed()
	if err != nil {
		h.logger.Error("failed to build default settings", "error", err)
		http.Error(w, "Failed to build default settings", http.StatusInternalServerError)
		return
	}
	session, err := h.users.RegisterUser(r.Context(), req.Email, req.Password, req.Name, seed)
	if err != nil {
		h.writeError(w, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		http.Error(w, "Email is required", http.StatusBadRequest)
		return
	}

	session, err := h.users.LoginUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.users.ClearActiveSession(r.Context()); err != nil {
		h.writeError(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ListProfilesHandler(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.users.ListSavedProfiles(r.Context())
	if err != nil {
		h.writeError(w, "list profiles", err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	data, err := h.svc.Snapshot(r.Context(), id)
	if err != nil {
		h.writeError(w, "load session", err)
		return
	}
	writeJSON(w, http.StatusOK, store.Session{UserID: id, Data: data})
}

func (h *APIHandler) ReplaceDataHandler(w http.ResponseWriter, r *http.Request) {
	var data store.UserData
	if !decodeBody(w, r, &data) {
		return
	}
	updated, err := h.svc.ReplaceData(r.Context(), userID(r), data)
	if err != nil {
		h.writeError(w, "replace data", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *APIHandler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var settings store.AppSettings
	if !decodeBody(w, r, &settings) {
		return
	}
	updated, err := h.svc.UpdateSettings(r.Context(), userID(r), settings)
	if err != nil {
		h.writeError(w, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, updated.Settings)
}

type DarkModeRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *APIHandler) SetDarkModeHandler(w http.ResponseWriter, r *http.Request) {
	var req DarkModeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := h.svc.SetDarkMode(r.Context(), userID(r), req.Enabled); err != nil {
		h.writeError(w, "set dark mode", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type TestConnectionRequest struct {
	Capability string `json:"capability"`
}

func (h *APIHandler) TestConnectionHandler(w http.ResponseWriter, r *http.Request) {
	var req TestConnectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.TestConnection(r.Context(), userID(r), req.Capability)
	if err != nil {
		h.writeError(w, "test connection", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type CreateCategoryRequest struct {
	Title string `json:"title"`
}

func (h *APIHandler) CreateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		http.Error(w, "Category title cannot be empty", http.StatusBadRequest)
		return
	}
	cat, err := h.svc.AddCategory(r.Context(), userID(r), req.Title)
	if err != nil {
		h.writeError(w, "create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, cat)
}

func (h *APIHandler) ToggleCategoryHandler(w http.ResponseWriter, r *http.Request) {
	cat, err := h.svc.ToggleCategory(r.Context(), userID(r), chi.URLParam(r, "categoryID"))
	if err != nil {
		h.writeError(w, "toggle category", err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

func (h *APIHandler) DeleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCategory(r.Context(), userID(r), chi.URLParam(r, "categoryID")); err != nil {
		h.writeError(w, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AddChaptersRequest struct {
	Text string `json:"text"` // one chapter title per line
}

func (h *APIHandler) AddChaptersHandler(w http.ResponseWriter, r *http.Request) {
	var req AddChaptersRequest
	if !decodeBody(w, r, &req) {
		return
	}
	chapters, err := h.svc.AddChapters(r.Context(), userID(r), chi.URLParam(r, "categoryID"), req.Text)
	if err != nil {
		h.writeError(w, "add chapters", err)
		return
	}
	writeJSON(w, http.StatusCreated, chapters)
}

func (h *APIHandler) DeleteChapterHandler(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteChapter(r.Context(), userID(r), chi.URLParam(r, "categoryID"), chi.URLParam(r, "chapterID"))
	if err != nil {
		h.writeError(w, "delete chapter", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) SetActiveChapterHandler(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.SetActiveChapter(r.Context(), userID(r), chi.URLParam(r, "chapterID"))
	if err != nil {
		h.writeError(w, "set active chapter", err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *APIHandler) ClearActiveChapterHandler(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.SetActiveChapter(r.Context(), userID(r), "")
	if err != nil {
		h.writeError(w, "clear active chapter", err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

type UpdatePromptRequest struct {
	LessonPrompt string `json:"lessonPrompt"`
}

func (h *APIHandler) UpdatePromptHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdatePromptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ch, err := h.svc.UpdateLessonPrompt(r.Context(), userID(r), chi.URLParam(r, "chapterID"), req.LessonPrompt)
	if err != nil {
		h.writeError(w, "update lesson prompt", err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *APIHandler) GenerateContentHandler(w http.ResponseWriter, r *http.Request) {
	seq, err := h.svc.GenerateContent(r.Context(), userID(r), chi.URLParam(r, "chapterID"))
	if err != nil {
		h.writeError(w, "generate content", err)
		return
	}
	streamSSE(w, seq)
}

type SendMessageRequest struct {
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
}

func (h *APIHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Images) == 0 {
		http.Error(w, "Message cannot be empty", http.StatusBadRequest)
		return
	}
	seq, err := h.svc.SendMessage(r.Context(), userID(r), chi.URLParam(r, "chapterID"), req.Text, req.Images)
	if err != nil {
		h.writeError(w, "send message", err)
		return
	}
	streamSSE(w, seq)
}

func (h *APIHandler) RenderChapterHandler(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.Snapshot(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, "render chapter", err)
		return
	}
	_, ch := data.FindChapter(chi.URLParam(r, "chapterID"))
	if ch == nil {
		http.Error(w, core.ErrChapterNotFound.Error(), http.StatusNotFound)
		return
	}
	var content string
	if ch.Content != nil {
		content = *ch.Content
	}
	doc, err := render.Render(content)
	if err != nil {
		h.writeError(w, "render chapter", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type TipRequest struct {
	Text string `json:"text"`
}

type TipResponse struct {
	Tip string `json:"tip"`
}

func (h *APIHandler) TipHandler(w http.ResponseWriter, r *http.Request) {
	var req TipRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "Selected text cannot be empty", http.StatusBadRequest)
		return
	}
	tip, err := h.svc.ExplainSelection(r.Context(), userID(r), req.Text)
	if err != nil {
		h.writeError(w, "explain selection", err)
		return
	}
	writeJSON(w, http.StatusOK, TipResponse{Tip: tip})
}

// writeError maps known failures to a status and logs the rest.
func (h *APIHandler) writeError(w http.ResponseWriter, op string, err error) {
	var status int
	switch {
	case errors.Is(err, store.ErrDuplicateEmail), errors.Is(err, core.ErrGenerationInProgress):
		status = http.StatusConflict
	case errors.Is(err, store.ErrUserNotFound), errors.Is(err, core.ErrUserNotFound),
		errors.Is(err, core.ErrCategoryNotFound), errors.Is(err, core.ErrChapterNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrWrongPassword):
		status = http.StatusUnauthorized
	case errors.Is(err, core.ErrUnknownCapability), errors.Is(err, core.ErrNoActiveChapter):
		status = http.StatusBadRequest
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		http.Error(w, "Failed to "+op, http.StatusInternalServerError)
		return
	}
	http.Error(w, err.Error(), status)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type chunkEvent struct {
	Text string `json:"text"`
}

// streamSSE writes each cumulative value as a "chunk" event followed by a
// final "done" event.
func streamSSE(w http.ResponseWriter, seq iter.Seq[string]) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fl, _ := w.(http.Flusher)
	send := func(event string, data any) bool {
		b, _ := json.Marshal(data)
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b); err != nil {
			return false
		}
		if fl != nil {
			fl.Flush()
		}
		return true
	}
	for text := range seq {
		if !send("chunk", chunkEvent{Text: text}) {
			return
		}
	}
	send("done", struct{}{})
}
