package store

// Role values carried by ChatMessage.Role.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// AIConfig describes one OpenAI-compatible endpoint used for a single capability.
type AIConfig struct {
	BaseURL    string `json:"baseUrl" yaml:"baseUrl"`
	APIKey     string `json:"apiKey" yaml:"apiKey"`
	Model      string `json:"model" yaml:"model"`
	BasePrompt string `json:"basePrompt" yaml:"basePrompt"`
}

type AppSettings struct {
	Language     string   `json:"language" yaml:"language"`
	GenerationAI AIConfig `json:"generationAI" yaml:"generationAI"`
	TipsAI       AIConfig `json:"tipsAI" yaml:"tipsAI"`
	ChatAI       AIConfig `json:"chatAI" yaml:"chatAI"`
}

type ChatMessage struct {
	ID        string   `json:"id"`
	Role      string   `json:"role"` // "user" or "model"
	Text      string   `json:"text"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds
	Images    []string `json:"images,omitempty"` // data URIs
}

type Chapter struct {
	ID                  string        `json:"id"`
	Title               string        `json:"title"`
	LessonPrompt        string        `json:"lessonPrompt"`
	Content             *string       `json:"content"` // nil until generated
	IsGeneratingPrompt  bool          `json:"isGeneratingPrompt"`
	IsGeneratingContent bool          `json:"isGeneratingContent"`
	ChatHistory         []ChatMessage `json:"chatHistory"`
}

type Category struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Chapters []Chapter `json:"chapters"`
	IsOpen   bool      `json:"isOpen"`
}

type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// UserData is the full application snapshot persisted for one user.
type UserData struct {
	Profile         UserProfile   `json:"profile"`
	Settings        AppSettings   `json:"settings"`
	Categories      []Category    `json:"categories"`
	ChatHistory     []ChatMessage `json:"chatHistory"`
	IsDarkMode      bool          `json:"isDarkMode"`
	ActiveChapterID *string       `json:"activeChapterId"`
	LastUpdated     int64         `json:"lastUpdated"`
}

type StoredUserRecord struct {
	Profile  UserProfile `json:"profile"`
	Password string      `json:"password"`
	Data     UserData    `json:"data"`
}

// DatabaseSnapshot is the whole persisted document.
// An empty ActiveUserID means no active session.
type DatabaseSnapshot struct {
	ActiveUserID string                      `json:"activeUserId,omitempty"`
	Users        map[string]StoredUserRecord `json:"users"`
}

// SeedData holds the fields a new registration starts from.
type SeedData struct {
	Settings        AppSettings
	Categories      []Category
	ChatHistory     []ChatMessage
	IsDarkMode      bool
	ActiveChapterID *string
}

// Session is the result of a successful login, registration or session load.
type Session struct {
	UserID string   `json:"userId"`
	Data   UserData `json:"data"`
}

// FindChapter returns a pointer into data for the chapter with the given id.
func (d *UserData) FindChapter(chapterID string) (*Category, *Chapter) {
	for ci := range d.Categories {
		cat := &d.Categories[ci]
		for hi := range cat.Chapters {
			if cat.Chapters[hi].ID == chapterID {
				return cat, &cat.Chapters[hi]
			}
		}
	}
	return nil, nil
}

// FindCategory returns a pointer into data for the category with the given id.
func (d *UserData) FindCategory(categoryID string) *Category {
	for ci := range d.Categories {
		if d.Categories[ci].ID == categoryID {
			return &d.Categories[ci]
		}
	}
	return nil
}
