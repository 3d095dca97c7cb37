// Package oracle wraps the external reasoning capability behind a typed
// interface: live feedback, full-call analysis, profile updates, note
// generation and coaching chat. Callers never see raw model text.
package oracle

import "context"

// Feedback kinds emitted on the live channel and in call analyses.
const (
	KindCritical   = "critical"
	KindWarning    = "warning"
	KindSuggestion = "suggestion"
	KindGood       = "good"
	KindInsight    = "insight"
)

// FeedbackItem is one structured coaching remark.
type FeedbackItem struct {
	Kind string `json:"type"`
	Text string `json:"text"`
}

// Moment is a notable point in a call, quoted or approximately timestamped.
type Moment struct {
	Timestamp  string `json:"timestamp"`
	Issue      string `json:"issue,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Praise     string `json:"praise,omitempty"`
}

// CallAnalysis is the structured result of a full-call analysis.
type CallAnalysis struct {
	OverallScore      int            `json:"overallScore"`
	TalkRatio         float64        `json:"talkRatio"`
	InterruptionCount int            `json:"interruptionCount"`
	Feedback          []FeedbackItem `json:"feedback"`
	BadMoments        []Moment       `json:"badMoments"`
	GoodMoments       []Moment       `json:"goodMoments"`
	ActionItems       []string       `json:"actionItems"`
	OverallRoast      string         `json:"overallRoast"`
}

// ProfileUpdate is the structured delta for a rolling user profile.
type ProfileUpdate struct {
	BadHabits      []string `json:"badHabits"`
	Strengths      []string `json:"strengths"`
	AreasImproving []string `json:"areasImproving"`
	Summary        string   `json:"summary"`
}

// ProfileContext carries the caller's view of the existing profile into a
// request. Nil means a new user.
type ProfileContext struct {
	TotalCallsAnalyzed int
	TalkRatioAvg       float64
	CloseRate          float64
	BadHabits          []string
	Strengths          []string
	AreasImproving     []string
	Summary            string
}

// CallSummary is the condensed per-call input to profile updates and chat.
type CallSummary struct {
	OverallScore       int
	TalkRatio          float64
	InterruptionCount  int
	FeedbackHighlights []FeedbackItem
}

// LiveFeedbackRequest asks whether the latest fragment warrants interrupting a
// live call. Screenshot, when set, is a base64-encoded JPEG of the
// salesperson's screen.
type LiveFeedbackRequest struct {
	Fragment       string
	FeedbackGiven  []FeedbackItem
	TimeIntoCall   float64
	FullTranscript string
	Screenshot     string
	BadHabits      []string
}

// FullAnalysisRequest asks for a scored analysis of a finished call.
type FullAnalysisRequest struct {
	Transcript      string
	DurationSeconds int
	Profile         *ProfileContext
}

// ProfileUpdateRequest asks for updated coaching lists given recent calls.
type ProfileUpdateRequest struct {
	Calls   []CallSummary
	Profile *ProfileContext
}

// NoteRequest asks for one short note about the latest fragment.
type NoteRequest struct {
	Fragment        string
	TrailingContext string
}

// ChatRequest is a single-turn coaching question with profile context.
type ChatRequest struct {
	Message     string
	Profile     *ProfileContext
	RecentCalls []CallSummary
}

// Oracle is the reasoning capability consumed by the coordinator, the
// aggregator and the research service.
//
// LiveFeedback returns (nil, nil) when the model explicitly skips.
// GenerateNote returns "" when the model explicitly skips.
type Oracle interface {
	LiveFeedback(ctx context.Context, req LiveFeedbackRequest) (*FeedbackItem, error)
	FullAnalysis(ctx context.Context, req FullAnalysisRequest) (*CallAnalysis, error)
	ProfileUpdate(ctx context.Context, req ProfileUpdateRequest) (*ProfileUpdate, error)
	GenerateNote(ctx context.Context, req NoteRequest) (string, error)
	Chat(ctx context.Context, req ChatRequest) (string, error)
	Research(ctx context.Context, query string) (string, error)
}
