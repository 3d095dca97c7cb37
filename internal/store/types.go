package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by all stores when the requested entity does not
// exist or is not owned by the requesting user.
var ErrNotFound = errors.New("not found")

// SessionStatus is the lifecycle state of a live monitoring session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// FeedbackEntry is one coaching interruption delivered during a session,
// or one feedback item attached to an analyzed call.
type FeedbackEntry struct {
	Kind      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp float64   `json:"timestamp,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Session is one live monitoring attempt. TranscriptSoFar is append-only;
// FeedbackGiven is the ordered history of emitted feedback. LastNoteAt is the
// call-relative timestamp (seconds) of the last AI-generated note, persisted
// so the note throttle survives restarts and multiple workers.
type Session struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Status          SessionStatus   `json:"status"`
	StartedAt       time.Time       `json:"startedAt"`
	EndedAt         *time.Time      `json:"endedAt,omitempty"`
	TranscriptSoFar string          `json:"transcriptSoFar"`
	FeedbackGiven   []FeedbackEntry `json:"feedbackGiven"`
	LastNoteAt      float64         `json:"lastNoteAt"`
}

// Call is one fully analyzed conversation. Immutable once created except for
// deletion.
type Call struct {
	ID                string          `json:"id"`
	UserID            string          `json:"userId"`
	Transcript        string          `json:"transcript"`
	DurationSeconds   int             `json:"durationSeconds"`
	TalkRatio         float64         `json:"talkRatio"`
	InterruptionCount int             `json:"interruptionCount"`
	OverallScore      int             `json:"overallScore"`
	Feedback          []FeedbackEntry `json:"feedback"`
	Tags              []string        `json:"tags"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// UserProfile is the rolling coaching profile, one per user.
// TotalCallsAnalyzed tracks non-deleted calls and is maintained incrementally.
type UserProfile struct {
	UserID             string    `json:"userId"`
	TalkRatioAvg       float64   `json:"talkRatioAvg"`
	CloseRate          float64   `json:"closeRate"`
	BadHabits          []string  `json:"badHabits"`
	Strengths          []string  `json:"strengths"`
	AreasImproving     []string  `json:"areasImproving"`
	Summary            string    `json:"summary"`
	TotalCallsAnalyzed int       `json:"totalCallsAnalyzed"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// ProfileCoaching is the subset of profile fields owned by the aggregator's
// refresh pass. Writing it must not touch TotalCallsAnalyzed or CloseRate.
type ProfileCoaching struct {
	TalkRatioAvg   float64
	BadHabits      []string
	Strengths      []string
	AreasImproving []string
	Summary        string
}

// NoteType distinguishes user-entered notes from machine-generated ones.
type NoteType string

const (
	NoteManual NoteType = "manual"
	NoteAI     NoteType = "ai-generated"
)

// Note is a timestamped annotation tied to a session. Never mutated.
type Note struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	Type      NoteType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ResearchStatus is the lifecycle of an async research request.
type ResearchStatus string

const (
	ResearchPending   ResearchStatus = "pending"
	ResearchCompleted ResearchStatus = "completed"
	ResearchFailed    ResearchStatus = "failed"
)

// Research is a query enriched asynchronously in the background.
type Research struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"sessionId"`
	UserID      string         `json:"userId"`
	Query       string         `json:"query"`
	Status      ResearchStatus `json:"status"`
	Result      string         `json:"result,omitempty"`
	RequestedAt time.Time      `json:"requestedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// SessionStore persists live sessions. The Update* methods only apply while
// the session is still active; writes against an ended session return
// ErrNotFound so late-arriving results are discarded rather than persisted.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	// GetSession resolves by id and owner regardless of status.
	GetSession(ctx context.Context, id, userID string) (*Session, error)
	// GetActiveSession returns the owner's single active session, if any.
	GetActiveSession(ctx context.Context, userID string) (*Session, error)
	// GetActiveSessionByID resolves by id, owner and status=active.
	GetActiveSessionByID(ctx context.Context, id, userID string) (*Session, error)
	// CancelActiveSessions force-transitions all active sessions of the owner
	// to cancelled. Used when a new session supersedes an old one.
	CancelActiveSessions(ctx context.Context, userID string, endedAt time.Time) error
	UpdateTranscript(ctx context.Context, id, transcriptSoFar string) error
	UpdateFeedback(ctx context.Context, id string, feedback []FeedbackEntry) error
	UpdateLastNoteAt(ctx context.Context, id string, at float64) error
	// FinishSession transitions an active session to completed or cancelled.
	FinishSession(ctx context.Context, id string, status SessionStatus, endedAt time.Time) error
}

// CallStore persists analyzed calls.
type CallStore interface {
	CreateCall(ctx context.Context, c *Call) error
	GetCall(ctx context.Context, id, userID string) (*Call, error)
	// ListCalls returns a page ordered by recency, optionally filtered by tag,
	// plus the total matching count.
	ListCalls(ctx context.Context, userID string, limit, offset int, tag string) ([]*Call, int, error)
	// ListRecentCalls returns up to limit calls, newest first.
	ListRecentCalls(ctx context.Context, userID string, limit int) ([]*Call, error)
	// ListCallsSince returns calls created at or after the given time, oldest first.
	ListCallsSince(ctx context.Context, userID string, since time.Time) ([]*Call, error)
	DeleteCall(ctx context.Context, id, userID string) error
}

// ProfileStore persists rolling user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	// IncrementCallsAnalyzed atomically adjusts the call counter, creating the
	// profile row if it does not exist yet. The counter never goes below zero.
	IncrementCallsAnalyzed(ctx context.Context, userID string, delta int) error
	// UpdateCoaching upserts the aggregator-owned profile fields without
	// touching the call counter.
	UpdateCoaching(ctx context.Context, userID string, c ProfileCoaching) error
}

// NoteStore persists session notes.
type NoteStore interface {
	CreateNote(ctx context.Context, n *Note) error
	// ListNotes returns the owner's notes newest first, optionally scoped to a
	// session.
	ListNotes(ctx context.Context, userID, sessionID string) ([]*Note, error)
	// ListSessionNotes returns a session's notes oldest first.
	ListSessionNotes(ctx context.Context, userID, sessionID string) ([]*Note, error)
	DeleteNote(ctx context.Context, id, userID string) error
}

// ResearchStore persists research requests.
type ResearchStore interface {
	CreateResearch(ctx context.Context, r *Research) error
	GetResearch(ctx context.Context, id, userID string) (*Research, error)
	ListResearch(ctx context.Context, userID, sessionID string, status ResearchStatus) ([]*Research, error)
	SetResearchResult(ctx context.Context, id string, status ResearchStatus, result string, completedAt time.Time) error
}

// Store bundles every entity store behind one value so composition stays flat.
type Store interface {
	SessionStore
	CallStore
	ProfileStore
	NoteStore
	ResearchStore
}
