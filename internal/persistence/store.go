package persistence

import (
	"context"
	"errors"
	"time"
)

// Store is a placeholder for transcripts/state persistence.
type Store interface{}

// ErrNotFound is returned when a lookup by ID finds nothing.
var ErrNotFound = errors.New("persistence: not found")

// ErrForbidden is returned when a request's userID does not own the
// resource it is trying to read or mutate.
var ErrForbidden = errors.New("persistence: forbidden")

// ChatSession is one chat thread, owned by an optional user.
type ChatSession struct {
	ID                 string
	Name               string
	UserID             *int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastMessagePreview string
	Model              string
	Summary            string
	SummarizedCount    int
}

// ChatMessage is one turn within a ChatSession.
type ChatMessage struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// ChatStore persists chat sessions and their messages, scoping access to
// an optional owning userID (nil means single-user/no-auth mode).
type ChatStore interface {
	Init(ctx context.Context) error
	EnsureSession(ctx context.Context, userID *int64, id, name string) (ChatSession, error)
	ListSessions(ctx context.Context, userID *int64) ([]ChatSession, error)
	GetSession(ctx context.Context, userID *int64, id string) (ChatSession, error)
	CreateSession(ctx context.Context, userID *int64, name string) (ChatSession, error)
	RenameSession(ctx context.Context, userID *int64, id, name string) (ChatSession, error)
	DeleteSession(ctx context.Context, userID *int64, id string) error
	ListMessages(ctx context.Context, userID *int64, sessionID string, limit int) ([]ChatMessage, error)
	AppendMessages(ctx context.Context, userID *int64, sessionID string, messages []ChatMessage, preview string, model string) error
	UpdateSummary(ctx context.Context, userID *int64, sessionID string, summary string, summarizedCount int) error
}

// Specialist represents a stored specialist configuration for CRUD.
type Specialist struct {
	ID              int64             `json:"id"`
	Name            string            `json:"name"`
	BaseURL         string            `json:"baseURL"`
	APIKey          string            `json:"apiKey"`
	Model           string            `json:"model"`
	EnableTools     bool              `json:"enableTools"`
	Paused          bool              `json:"paused"`
	AllowTools      []string          `json:"allowTools"`
	ReasoningEffort string            `json:"reasoningEffort"`
	System          string            `json:"system"`
	ExtraHeaders    map[string]string `json:"extraHeaders"`
	ExtraParams     map[string]any    `json:"extraParams"`
}

// SpecialistsStore defines CRUD over specialists.
type SpecialistsStore interface {
	Init(ctx context.Context) error
	List(ctx context.Context) ([]Specialist, error)
	GetByName(ctx context.Context, name string) (Specialist, bool, error)
	Upsert(ctx context.Context, s Specialist) (Specialist, error)
	Delete(ctx context.Context, name string) error
}
