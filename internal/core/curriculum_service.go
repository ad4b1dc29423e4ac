package core

import (
	"context"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"learnforge/internal/store"
)

const defaultPromptConcurrency = 3

// Capability names accepted by TestConnection.
const (
	CapabilityGeneration = "generation"
	CapabilityTips       = "tips"
	CapabilityChat       = "chat"
)

// CurriculumService applies user actions to a stored snapshot and drives the
// AI gateway on its behalf. Snapshot read-modify-write is serialised here.
type CurriculumService struct {
	users  *store.UserStore
	llm    AIGateway
	logger *slog.Logger

	mu sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	wg                sync.WaitGroup
	promptConcurrency int
	now               func() time.Time
	newID             func() string
}

func NewCurriculumService(users *store.UserStore, llm AIGateway, logger *slog.Logger) *CurriculumService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CurriculumService{
		users:             users,
		llm:               llm,
		logger:            logger,
		inflight:          make(map[string]struct{}),
		promptConcurrency: defaultPromptConcurrency,
		now:               time.Now,
		newID:             uuid.NewString,
	}
}

// Wait blocks until background lesson-prompt generation has finished.
func (s *CurriculumService) Wait() {
	s.wg.Wait()
}

func (s *CurriculumService) Snapshot(ctx context.Context, userID string) (store.UserData, error) {
	data, ok, err := s.users.LoadUserData(ctx, userID)
	if err != nil {
		return store.UserData{}, err
	}
	if !ok {
		return store.UserData{}, ErrUserNotFound
	}
	return data, nil
}

// ReplaceData persists a full client-side snapshot.
func (s *CurriculumService) ReplaceData(ctx context.Context, userID string, data store.UserData) (store.UserData, error) {
	return s.update(ctx, userID, func(d *store.UserData) error {
		*d = data
		return nil
	})
}

func (s *CurriculumService) UpdateSettings(ctx context.Context, userID string, settings store.AppSettings) (store.UserData, error) {
	return s.update(ctx, userID, func(d *store.UserData) error {
		d.Settings = settings
		return nil
	})
}

func (s *CurriculumService) SetDarkMode(ctx context.Context, userID string, enabled bool) (store.UserData, error) {
	return s.update(ctx, userID, func(d *store.UserData) error {
		d.IsDarkMode = enabled
		return nil
	})
}

func (s *CurriculumService) AddCategory(ctx context.Context, userID, title string) (store.Category, error) {
	cat := store.Category{
		ID:       s.newID(),
		Title:    strings.TrimSpace(title),
		Chapters: []store.Chapter{},
		IsOpen:   true,
	}
	_, err := s.update(ctx, userID, func(d *store.UserData) error {
		d.Categories = append(d.Categories, cat)
		return nil
	})
	if err != nil {
		return store.Category{}, err
	}
	return cat, nil
}

func (s *CurriculumService) ToggleCategory(ctx context.Context, userID, categoryID string) (store.Category, error) {
	var res store.Category
	_, err := s.update(ctx, userID, func(d *store.UserData) error {
		cat := d.FindCategory(categoryID)
		if cat == nil {
			return ErrCategoryNotFound
		}
		cat.IsOpen = !cat.IsOpen
		res = *cat
		return nil
	})
	return res, err
}

// DeleteCategory removes a category with its chapters, clearing the active
// chapter when it belonged to it.
func (s *CurriculumService) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	_, err := s.update(ctx, userID, func(d *store.UserData) error {
		cat := d.FindCategory(categoryID)
		if cat == nil {
			return ErrCategoryNotFound
		}
		if d.ActiveChapterID != nil {
			for _, ch := range cat.Chapters {
				if ch.ID == *d.ActiveChapterID {
					clearActiveChapter(d)
					break
				}
			}
		}
		d.Categories = slices.DeleteFunc(d.Categories, func(c store.Category) bool {
			return c.ID == categoryID
		})
		return nil
	})
	return err
}

// AddChapters appends one chapter per non-blank line of text and starts
// lesson-prompt generation for them in the background.
func (s *CurriculumService) AddChapters(ctx context.Context, userID, categoryID, text string) ([]store.Chapter, error) {
	var chapters []store.Chapter
	for _, line := range strings.Split(text, "\n") {
		title := strings.TrimSpace(line)
		if title == "" {
			continue
		}
		chapters = append(chapters, store.Chapter{
			ID:                 s.newID(),
			Title:              title,
			IsGeneratingPrompt: true,
			ChatHistory:        []store.ChatMessage{},
		})
	}
	if len(chapters) == 0 {
		return []store.Chapter{}, nil
	}

	data, err := s.update(ctx, userID, func(d *store.UserData) error {
		cat := d.FindCategory(categoryID)
		if cat == nil {
			return ErrCategoryNotFound
		}
		cat.Chapters = append(cat.Chapters, chapters...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.generateLessonPrompts(context.WithoutCancel(ctx), userID, data.Settings, chapters)
	}()
	return chapters, nil
}

func (s *CurriculumService) generateLessonPrompts(ctx context.Context, userID string, settings store.AppSettings, chapters []store.Chapter) {
	var g errgroup.Group
	g.SetLimit(s.promptConcurrency)
	for _, ch := range chapters {
		g.Go(func() error {
			prompt := s.llm.GenerateLessonPrompt(ctx, ch.Title, settings.GenerationAI, settings.Language)
			_, err := s.update(ctx, userID, func(d *store.UserData) error {
				_, c := d.FindChapter(ch.ID)
				if c == nil {
					return nil // deleted while generating
				}
				c.LessonPrompt = prompt
				c.IsGeneratingPrompt = false
				return nil
			})
			if err != nil {
				s.logger.Error("failed to save lesson prompt", "chapter_id", ch.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	s.logger.Info("lesson prompts generated", "user_id", userID, "count", len(chapters))
}

func (s *CurriculumService) DeleteChapter(ctx context.Context, userID, categoryID, chapterID string) error {
	_, err := s.update(ctx, userID, func(d *store.UserData) error {
		cat := d.FindCategory(categoryID)
		if cat == nil {
			return ErrCategoryNotFound
		}
		n := len(cat.Chapters)
		cat.Chapters = slices.DeleteFunc(cat.Chapters, func(c store.Chapter) bool {
			return c.ID == chapterID
		})
		if len(cat.Chapters) == n {
			return ErrChapterNotFound
		}
		if d.ActiveChapterID != nil && *d.ActiveChapterID == chapterID {
			clearActiveChapter(d)
		}
		return nil
	})
	return err
}

// SetActiveChapter selects a chapter and mirrors its chat history into the
// top-level history. An empty chapterID clears the selection.
func (s *CurriculumService) SetActiveChapter(ctx context.Context, userID, chapterID string) (store.UserData, error) {
	return s.update(ctx, userID, func(d *store.UserData) error {
		if chapterID == "" {
			clearActiveChapter(d)
			return nil
		}
		_, ch := d.FindChapter(chapterID)
		if ch == nil {
			return ErrChapterNotFound
		}
		id := ch.ID
		d.ActiveChapterID = &id
		d.ChatHistory = slices.Clone(ch.ChatHistory)
		return nil
	})
}

func (s *CurriculumService) UpdateLessonPrompt(ctx context.Context, userID, chapterID, prompt string) (store.Chapter, error) {
	var res store.Chapter
	_, err := s.update(ctx, userID, func(d *store.UserData) error {
		_, ch := d.FindChapter(chapterID)
		if ch == nil {
			return ErrChapterNotFound
		}
		ch.LessonPrompt = prompt
		res = *ch
		return nil
	})
	return res, err
}

// GenerateContent starts content generation for a chapter. The returned
// sequence yields the cumulative content and must be consumed; the final
// text is persisted when it ends.
func (s *CurriculumService) GenerateContent(ctx context.Context, userID, chapterID string) (iter.Seq[string], error) {
	if !s.acquire(chapterID) {
		return nil, ErrGenerationInProgress
	}

	var (
		chapter  store.Chapter
		settings store.AppSettings
	)
	_, err := s.update(ctx, userID, func(d *store.UserData) error {
		_, ch := d.FindChapter(chapterID)
		if ch == nil {
			return ErrChapterNotFound
		}
		empty := ""
		ch.Content = &empty
		ch.IsGeneratingContent = true
		chapter = *ch
		settings = d.Settings
		return nil
	})
	if err != nil {
		s.release(chapterID)
		return nil, err
	}

	return func(yield func(string) bool) {
		defer s.release(chapterID)

		var final string
		for text := range s.llm.GenerateCourseContentStream(ctx, chapter.Title, chapter.LessonPrompt, settings.GenerationAI, settings.Language) {
			final = text
			if !yield(text) {
				break
			}
		}

		_, err := s.update(context.WithoutCancel(ctx), userID, func(d *store.UserData) error {
			_, ch := d.FindChapter(chapterID)
			if ch == nil {
				return nil
			}
			ch.Content = &final
			ch.IsGeneratingContent = false
			return nil
		})
		if err != nil {
			s.logger.Error("failed to save generated content", "chapter_id", chapterID, "error", err)
		}
	}, nil
}

// SendMessage appends the user's message and an empty model reply to the
// chapter's history, then streams the reply into it. An empty chapterID
// targets the active chapter.
func (s *CurriculumService) SendMessage(ctx context.Context, userID, chapterID, text string, images []string) (iter.Seq[string], error) {
	ts := s.now().UnixMilli()
	userMsg := store.ChatMessage{ID: s.newID(), Role: store.RoleUser, Text: text, Timestamp: ts, Images: images}
	modelMsg := store.ChatMessage{ID: s.newID(), Role: store.RoleModel, Text: "", Timestamp: ts}

	var (
		history        []store.ChatMessage
		contextContent string
		settings       store.AppSettings
	)
	_, err := s.update(ctx, userID, func(d *store.UserData) error {
		if chapterID == "" {
			if d.ActiveChapterID == nil {
				return ErrNoActiveChapter
			}
			chapterID = *d.ActiveChapterID
		}
		_, ch := d.FindChapter(chapterID)
		if ch == nil {
			return ErrChapterNotFound
		}
		history = slices.Clone(ch.ChatHistory)
		if ch.Content != nil {
			contextContent = *ch.Content
		}
		settings = d.Settings
		ch.ChatHistory = append(ch.ChatHistory, userMsg, modelMsg)
		syncActiveHistory(d, ch)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		var final string
		for reply := range s.llm.SendChatMessageStream(ctx, history, userMsg, settings.ChatAI, settings.Language, contextContent) {
			final = reply
			if !yield(reply) {
				break
			}
		}

		_, err := s.update(context.WithoutCancel(ctx), userID, func(d *store.UserData) error {
			_, ch := d.FindChapter(chapterID)
			if ch == nil {
				return nil
			}
			for i := range ch.ChatHistory {
				if ch.ChatHistory[i].ID == modelMsg.ID {
					ch.ChatHistory[i].Text = final
				}
			}
			syncActiveHistory(d, ch)
			return nil
		})
		if err != nil {
			s.logger.Error("failed to save chat reply", "chapter_id", chapterID, "error", err)
		}
	}, nil
}

// ExplainSelection returns a short explanation of a selected text span.
func (s *CurriculumService) ExplainSelection(ctx context.Context, userID, selectedText string) (string, error) {
	data, err := s.Snapshot(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.llm.GenerateTip(ctx, selectedText, data.Settings.TipsAI, data.Settings.Language), nil
}

func (s *CurriculumService) TestConnection(ctx context.Context, userID, capability string) (ConnectionResult, error) {
	data, err := s.Snapshot(ctx, userID)
	if err != nil {
		return ConnectionResult{}, err
	}
	cfg, err := CapabilityConfig(data.Settings, capability)
	if err != nil {
		return ConnectionResult{}, err
	}
	return s.llm.TestConnection(ctx, cfg), nil
}

// CapabilityConfig picks the AIConfig for a capability name.
func CapabilityConfig(settings store.AppSettings, capability string) (store.AIConfig, error) {
	switch capability {
	case CapabilityGeneration:
		return settings.GenerationAI, nil
	case CapabilityTips:
		return settings.TipsAI, nil
	case CapabilityChat:
		return settings.ChatAI, nil
	}
	return store.AIConfig{}, ErrUnknownCapability
}

func (s *CurriculumService) update(ctx context.Context, userID string, fn func(*store.UserData) error) (store.UserData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.users.LoadUserData(ctx, userID)
	if err != nil {
		return store.UserData{}, err
	}
	if !ok {
		return store.UserData{}, ErrUserNotFound
	}
	if err := fn(&data); err != nil {
		return store.UserData{}, err
	}
	if err := s.users.PersistUserData(ctx, userID, data); err != nil {
		return store.UserData{}, err
	}
	return data, nil
}

func (s *CurriculumService) acquire(chapterID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[chapterID]; busy {
		return false
	}
	s.inflight[chapterID] = struct{}{}
	return true
}

func (s *CurriculumService) release(chapterID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, chapterID)
}

func clearActiveChapter(d *store.UserData) {
	d.ActiveChapterID = nil
	d.ChatHistory = []store.ChatMessage{}
}

func syncActiveHistory(d *store.UserData, ch *store.Chapter) {
	if d.ActiveChapterID != nil && *d.ActiveChapterID == ch.ID {
		d.ChatHistory = slices.Clone(ch.ChatHistory)
	}
}
