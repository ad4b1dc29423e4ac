package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentKey is the fixed key the user database lives under.
const DocumentKey = "learning_system_db_v1"

// UserStore keeps every user's credentials and application snapshot in one
// JSON document. Each operation is a full read-modify-write of that document;
// concurrent writers are last-writer-wins.
type UserStore struct {
	provider Provider
	key      string
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewUserStore(provider Provider, logger *slog.Logger) *UserStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserStore{
		provider: provider,
		key:      DocumentKey,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// ReadDB loads the document. A missing or unparseable document reads as an
// empty database.
func (s *UserStore) ReadDB(ctx context.Context) (DatabaseSnapshot, error) {
	raw, found, err := s.provider.Get(ctx, s.key)
	if err != nil {
		return DatabaseSnapshot{}, fmt.Errorf("read user database: %w", err)
	}
	empty := DatabaseSnapshot{Users: make(map[string]StoredUserRecord)}
	if !found || raw == "" {
		return empty, nil
	}

	var db DatabaseSnapshot
	if err := json.Unmarshal([]byte(raw), &db); err != nil {
		s.logger.Warn("failed to parse user database, resetting", "key", s.key, "error", err)
		return empty, nil
	}
	if db.Users == nil {
		db.Users = make(map[string]StoredUserRecord)
	}
	return db, nil
}

// WriteDB replaces the whole document.
func (s *UserStore) WriteDB(ctx context.Context, db DatabaseSnapshot) error {
	if db.Users == nil {
		db.Users = make(map[string]StoredUserRecord)
	}
	b, err := json.Marshal(db)
	if err != nil {
		return fmt.Errorf("encode user database: %w", err)
	}
	if err := s.provider.Set(ctx, s.key, string(b)); err != nil {
		return fmt.Errorf("write user database: %w", err)
	}
	return nil
}

// LoadActiveSession returns the active user's snapshot. A dangling active
// pointer is treated as no session.
func (s *UserStore) LoadActiveSession(ctx context.Context) (Session, bool, error) {
	db, err := s.ReadDB(ctx)
	if err != nil {
		return Session{}, false, err
	}
	if db.ActiveUserID == "" {
		return Session{}, false, nil
	}
	rec, ok := db.Users[db.ActiveUserID]
	if !ok {
		s.logger.Debug("active user pointer does not resolve", "user_id", db.ActiveUserID)
		return Session{}, false, nil
	}
	return Session{UserID: db.ActiveUserID, Data: rec.Data}, true, nil
}

// LoadUserData returns the stored snapshot for userID.
func (s *UserStore) LoadUserData(ctx context.Context, userID string) (UserData, bool, error) {
	db, err := s.ReadDB(ctx)
	if err != nil {
		return UserData{}, false, err
	}
	rec, ok := db.Users[userID]
	if !ok {
		return UserData{}, false, nil
	}
	return rec.Data, true, nil
}

func (s *UserStore) RegisterUser(ctx context.Context, email, password, name string, seed SeedData) (Session, error) {
	db, err := s.ReadDB(ctx)
	if err != nil {
		return Session{}, err
	}
	if _, ok := findByEmail(db, email); ok {
		return Session{}, ErrDuplicateEmail
	}

	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if name == "" {
		name = email
	}
	profile := UserProfile{
		ID:    s.newID(),
		Email: email,
		Name:  name,
	}

	data := UserData{
		Profile:         profile,
		Settings:        seed.Settings,
		Categories:      seed.Categories,
		ChatHistory:     seed.ChatHistory,
		IsDarkMode:      seed.IsDarkMode,
		ActiveChapterID: seed.ActiveChapterID,
		LastUpdated:     s.now().UnixMilli(),
	}
	if data.Categories == nil {
		data.Categories = []Category{}
	}
	if data.ChatHistory == nil {
		data.ChatHistory = []ChatMessage{}
	}

	db.Users[profile.ID] = StoredUserRecord{Profile: profile, Password: password, Data: data}
	db.ActiveUserID = profile.ID
	if err := s.WriteDB(ctx, db); err != nil {
		return Session{}, err
	}
	s.logger.Info("user registered", "user_id", profile.ID)
	return Session{UserID: profile.ID, Data: data}, nil
}

func (s *UserStore) LoginUser(ctx context.Context, email, password string) (Session, error) {
	db, err := s.ReadDB(ctx)
	if err != nil {
		return Session{}, err
	}
	rec, ok := findByEmail(db, email)
	if !ok {
		return Session{}, ErrUserNotFound
	}
	if rec.Password != password {
		return Session{}, ErrWrongPassword
	}

	db.ActiveUserID = rec.Profile.ID
	if err := s.WriteDB(ctx, db); err != nil {
		return Session{}, err
	}
	return Session{UserID: rec.Profile.ID, Data: rec.Data}, nil
}

// ClearActiveSession drops the active pointer; user records are kept.
func (s *UserStore) ClearActiveSession(ctx context.Context) error {
	db, err := s.ReadDB(ctx)
	if err != nil {
		return err
	}
	db.ActiveUserID = ""
	return s.WriteDB(ctx, db)
}

// PersistUserData overwrites userID's snapshot and marks the user active.
// It does nothing for an unknown user.
func (s *UserStore) PersistUserData(ctx context.Context, userID string, data UserData) error {
	db, err := s.ReadDB(ctx)
	if err != nil {
		return err
	}
	rec, ok := db.Users[userID]
	if !ok {
		return nil
	}

	data.Profile = rec.Profile
	data.LastUpdated = s.now().UnixMilli()
	rec.Data = data
	db.Users[userID] = rec
	db.ActiveUserID = userID
	return s.WriteDB(ctx, db)
}

// ListSavedProfiles returns every stored profile ordered by email.
func (s *UserStore) ListSavedProfiles(ctx context.Context) ([]UserProfile, error) {
	db, err := s.ReadDB(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]UserProfile, 0, len(db.Users))
	for _, rec := range db.Users {
		res = append(res, rec.Profile)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Email < res[j].Email
	})
	return res, nil
}

func findByEmail(db DatabaseSnapshot, email string) (StoredUserRecord, bool) {
	target := strings.ToLower(strings.TrimSpace(email))
	for _, rec := range db.Users {
		if strings.ToLower(rec.Profile.Email) == target {
			return rec, true
		}
	}
	return StoredUserRecord{}, false
}
