package supabase

import (
	"time"

	"github.com/TurnkeyIsaiah/Brutus/internal/store"
)

// Row types mirror the Postgres schema (snake_case columns). Conversions to
// and from the store types live next to them so the column mapping is in one
// place.

type sessionRow struct {
	ID              string                `json:"id"`
	UserID          string                `json:"user_id"`
	Status          string                `json:"status"`
	StartedAt       time.Time             `json:"started_at"`
	EndedAt         *time.Time            `json:"ended_at,omitempty"`
	TranscriptSoFar string                `json:"transcript_so_far"`
	FeedbackGiven   []store.FeedbackEntry `json:"feedback_given"`
	LastNoteAt      float64               `json:"last_note_at"`
}

func sessionToRow(s *store.Session) sessionRow {
	feedback := s.FeedbackGiven
	if feedback == nil {
		feedback = []store.FeedbackEntry{}
	}
	return sessionRow{
		ID:              s.ID,
		UserID:          s.UserID,
		Status:          string(s.Status),
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		TranscriptSoFar: s.TranscriptSoFar,
		FeedbackGiven:   feedback,
		LastNoteAt:      s.LastNoteAt,
	}
}

func (r sessionRow) toSession() *store.Session {
	return &store.Session{
		ID:              r.ID,
		UserID:          r.UserID,
		Status:          store.SessionStatus(r.Status),
		StartedAt:       r.StartedAt,
		EndedAt:         r.EndedAt,
		TranscriptSoFar: r.TranscriptSoFar,
		FeedbackGiven:   r.FeedbackGiven,
		LastNoteAt:      r.LastNoteAt,
	}
}

type callRow struct {
	ID                string                `json:"id"`
	UserID            string                `json:"user_id"`
	Transcript        string                `json:"transcript"`
	DurationSeconds   int                   `json:"duration_seconds"`
	TalkRatio         float64               `json:"talk_ratio"`
	InterruptionCount int                   `json:"interruption_count"`
	OverallScore      int                   `json:"overall_score"`
	Feedback          []store.FeedbackEntry `json:"feedback"`
	Tags              []string              `json:"tags"`
	CreatedAt         time.Time             `json:"created_at"`
}

func callToRow(c *store.Call) callRow {
	feedback := c.Feedback
	if feedback == nil {
		feedback = []store.FeedbackEntry{}
	}
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return callRow{
		ID:                c.ID,
		UserID:            c.UserID,
		Transcript:        c.Transcript,
		DurationSeconds:   c.DurationSeconds,
		TalkRatio:         c.TalkRatio,
		InterruptionCount: c.InterruptionCount,
		OverallScore:      c.OverallScore,
		Feedback:          feedback,
		Tags:              tags,
		CreatedAt:         c.CreatedAt,
	}
}

func (r callRow) toCall() *store.Call {
	return &store.Call{
		ID:                r.ID,
		UserID:            r.UserID,
		Transcript:        r.Transcript,
		DurationSeconds:   r.DurationSeconds,
		TalkRatio:         r.TalkRatio,
		InterruptionCount: r.InterruptionCount,
		OverallScore:      r.OverallScore,
		Feedback:          r.Feedback,
		Tags:              r.Tags,
		CreatedAt:         r.CreatedAt,
	}
}

type profileRow struct {
	UserID             string    `json:"user_id"`
	TalkRatioAvg       float64   `json:"talk_ratio_avg"`
	CloseRate          float64   `json:"close_rate"`
	BadHabits          []string  `json:"bad_habits"`
	Strengths          []string  `json:"strengths"`
	AreasImproving     []string  `json:"areas_improving"`
	Summary            string    `json:"summary"`
	TotalCallsAnalyzed int       `json:"total_calls_analyzed"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (r profileRow) toProfile() *store.UserProfile {
	return &store.UserProfile{
		UserID:             r.UserID,
		TalkRatioAvg:       r.TalkRatioAvg,
		CloseRate:          r.CloseRate,
		BadHabits:          r.BadHabits,
		Strengths:          r.Strengths,
		AreasImproving:     r.AreasImproving,
		Summary:            r.Summary,
		TotalCallsAnalyzed: r.TotalCallsAnalyzed,
		UpdatedAt:          r.UpdatedAt,
	}
}

type noteRow struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func noteToRow(n *store.Note) noteRow {
	return noteRow{
		ID:        n.ID,
		SessionID: n.SessionID,
		UserID:    n.UserID,
		Content:   n.Content,
		Type:      string(n.Type),
		Timestamp: n.Timestamp,
	}
}

func (r noteRow) toNote() *store.Note {
	return &store.Note{
		ID:        r.ID,
		SessionID: r.SessionID,
		UserID:    r.UserID,
		Content:   r.Content,
		Type:      store.NoteType(r.Type),
		Timestamp: r.Timestamp,
	}
}

type researchRow struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	UserID      string     `json:"user_id"`
	Query       string     `json:"query"`
	Status      string     `json:"status"`
	Result      string     `json:"result"`
	RequestedAt time.Time  `json:"requested_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func researchToRow(r *store.Research) researchRow {
	return researchRow{
		ID:          r.ID,
		SessionID:   r.SessionID,
		UserID:      r.UserID,
		Query:       r.Query,
		Status:      string(r.Status),
		Result:      r.Result,
		RequestedAt: r.RequestedAt,
		CompletedAt: r.CompletedAt,
	}
}

func (r researchRow) toResearch() *store.Research {
	return &store.Research{
		ID:          r.ID,
		SessionID:   r.SessionID,
		UserID:      r.UserID,
		Query:       r.Query,
		Status:      store.ResearchStatus(r.Status),
		Result:      r.Result,
		RequestedAt: r.RequestedAt,
		CompletedAt: r.CompletedAt,
	}
}
