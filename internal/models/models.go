package models

import "time"

type MaterialCategory string

const (
	CategoryCourseMaterial MaterialCategory = "course_material"
	CategoryPastQuestion   MaterialCategory = "past_question"
	CategoryPersonalNote   MaterialCategory = "personal_note"
)

// Principal is the authenticated identity the retrieval core operates on.
// It carries exactly the fields eligibility needs, never a full user row.
type Principal struct {
	ID          string `json:"id"`
	Department  string `json:"department"`
	YearOfStudy int    `json:"year_of_study"`
}

type Material struct {
	MaterialID string           `json:"material_id"`
	Title      string           `json:"title"`
	Content    string           `json:"content,omitempty"`
	URL        string           `json:"url,omitempty"`
	FileType   string           `json:"file_type,omitempty"`
	Category   MaterialCategory `json:"category"`
	Department *string          `json:"department,omitempty"`
	YearLevel  *int             `json:"year_level,omitempty"`
	IsPublic   bool             `json:"is_public"`
	UploadedBy *string          `json:"uploaded_by,omitempty"`
	Status     string           `json:"status"`
	FailReason string           `json:"fail_reason,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type Message struct {
	MessageID      string      `json:"message_id"`
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Candidate is a transient reference to a material produced during a single
// retrieval call. Lexical candidates carry no score; vector candidates do.
type Candidate struct {
	MaterialID string  `json:"material_id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Score      float64 `json:"score,omitempty"`
}

// Source is a citation returned alongside a generated answer.
type Source struct {
	Title string `json:"title"`
	ID    string `json:"id"`
}

type StudyStreak struct {
	UserID           string     `json:"user_id"`
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
}
