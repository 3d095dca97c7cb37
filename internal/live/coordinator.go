// Package live owns the live-session state machine: session lifecycle,
// transcript accumulation, feedback-emission throttling and note-generation
// throttling over an unbounded stream of incoming fragments.
package live

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/TurnkeyIsaiah/Brutus/internal/oracle"
	"github.com/TurnkeyIsaiah/Brutus/internal/store"
)

var (
	// ErrSessionNotFound is returned by EndSession/CancelSession when no
	// matching session exists for the caller. Fragment handling deliberately
	// does not use it; stale fragments are dropped silently.
	ErrSessionNotFound = errors.New("session not found")
	// ErrMissingSessionID rejects fragment/end/cancel requests without an id.
	ErrMissingSessionID = errors.New("session id is required")
)

// Config holds the throttling and content-threshold policy.
type Config struct {
	// MinFeedbackInterval is the minimum call-relative seconds between two
	// emitted feedback items.
	MinFeedbackInterval float64
	// MinNoteInterval is the minimum call-relative seconds between two
	// AI-generated notes.
	MinNoteInterval float64
	// MinNoteTranscript is the minimum accumulated transcript length before
	// notes are considered.
	MinNoteTranscript int
	// NoteContextTail is how many trailing transcript characters accompany a
	// note request.
	NoteContextTail int
	// MinNoteLength discards trivial notes shorter than this after trimming.
	MinNoteLength int
	// MinCallTranscript is the minimum trimmed transcript length for a
	// finished session to be analyzed into a Call.
	MinCallTranscript int
}

// DefaultConfig returns the production policy values.
func DefaultConfig() Config {
	return Config{
		MinFeedbackInterval: 20,
		MinNoteInterval:     30,
		MinNoteTranscript:   100,
		NoteContextTail:     500,
		MinNoteLength:       10,
		MinCallTranscript:   50,
	}
}

// Transcriber produces text from a live audio chunk, degrading to "" on any
// failure.
type Transcriber interface {
	TranscribeChunk(ctx context.Context, audio []byte, mimeType string) string
}

// FeedbackOracle is the slice of the oracle the coordinator consumes.
type FeedbackOracle interface {
	LiveFeedback(ctx context.Context, req oracle.LiveFeedbackRequest) (*oracle.FeedbackItem, error)
	GenerateNote(ctx context.Context, req oracle.NoteRequest) (string, error)
}

// Analyzer turns a finished transcript into a persisted, scored Call.
type Analyzer interface {
	AnalyzeAndSaveCall(ctx context.Context, userID, transcript string, durationSeconds int) (*store.Call, *oracle.CallAnalysis, error)
}

// Fragment is one inbound unit of new transcript material for a session.
// Either Text or Audio must be present; Screenshot is an optional base64 JPEG
// of the salesperson's screen.
type Fragment struct {
	SessionID    string
	Text         string
	TimeIntoCall float64
	Audio        []byte
	MimeType     string
	Screenshot   string
	NotesEnabled bool
}

// EndResult is the outcome of ending a session.
type EndResult struct {
	CallID          string
	Analysis        *oracle.CallAnalysis
	DurationSeconds int
	Message         string
}

// Coordinator drives live sessions. Fragment processing for one session is
// serialized by a per-session mutex; oracle calls run outside the mutex and
// their results are only persisted after re-checking the session is still
// active.
type Coordinator struct {
	sessions    store.SessionStore
	notes       store.NoteStore
	profiles    store.ProfileStore
	transcriber Transcriber
	oracle      FeedbackOracle
	analyzer    Analyzer
	logger      *logrus.Logger
	cfg         Config

	mu        sync.Mutex
	sessLocks map[string]*sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewCoordinator wires the coordinator.
func NewCoordinator(sessions store.SessionStore, notes store.NoteStore, profiles store.ProfileStore, t Transcriber, o FeedbackOracle, a Analyzer, cfg Config, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator{
		sessions:    sessions,
		notes:       notes,
		profiles:    profiles,
		transcriber: t,
		oracle:      o,
		analyzer:    a,
		logger:      logger,
		cfg:         cfg,
		sessLocks:   make(map[string]*sync.Mutex),
		userLocks:   make(map[string]*sync.Mutex),
	}
}

func lockFrom(m map[string]*sync.Mutex, mu *sync.Mutex, key string) *sync.Mutex {
	mu.Lock()
	defer mu.Unlock()
	l, ok := m[key]
	if !ok {
		l = &sync.Mutex{}
		m[key] = l
	}
	return l
}

func (c *Coordinator) sessionLock(id string) *sync.Mutex {
	return lockFrom(c.sessLocks, &c.mu, id)
}

func (c *Coordinator) userLock(id string) *sync.Mutex {
	return lockFrom(c.userLocks, &c.mu, id)
}

// forgetSession drops the per-session mutex once a session has ended.
func (c *Coordinator) forgetSession(id string) {
	c.mu.Lock()
	delete(c.sessLocks, id)
	c.mu.Unlock()
}

// StartSession creates a new active session for the owner, force-cancelling
// any prior active one. Serialized per user so there is no window with two
// active sessions.
func (c *Coordinator) StartSession(ctx context.Context, userID string) (*store.Session, error) {
	ul := c.userLock(userID)
	ul.Lock()
	defer ul.Unlock()

	now := time.Now()
	if err := c.sessions.CancelActiveSessions(ctx, userID, now); err != nil {
		return nil, err
	}
	sess := &store.Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		Status:        store.SessionActive,
		StartedAt:     now,
		FeedbackGiven: []store.FeedbackEntry{},
	}
	if err := c.sessions.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{"user": userID, "session": sess.ID}).Info("session started")
	return sess, nil
}

// GetActiveSession returns the owner's active session, or nil when none.
func (c *Coordinator) GetActiveSession(ctx context.Context, userID string) (*store.Session, error) {
	sess, err := c.sessions.GetActiveSession(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return sess, err
}

// HandleFragment processes one transcript chunk. Returns at most one
// feedback entry; note creation is a side effect. A fragment for a session
// that is not active is a silent no-op, tolerating client/server desync.
func (c *Coordinator) HandleFragment(ctx context.Context, userID string, frag Fragment) (*store.FeedbackEntry, error) {
	if frag.SessionID == "" {
		return nil, ErrMissingSessionID
	}

	text := strings.TrimSpace(frag.Text)
	if text == "" && len(frag.Audio) > 0 {
		text = strings.TrimSpace(c.transcriber.TranscribeChunk(ctx, frag.Audio, frag.MimeType))
	}
	if text == "" {
		return nil, nil
	}

	// Transcript append and throttle-state reads are one critical section.
	sl := c.sessionLock(frag.SessionID)
	sl.Lock()
	sess, err := c.sessions.GetActiveSessionByID(ctx, frag.SessionID, userID)
	if err != nil {
		sl.Unlock()
		if errors.Is(err, store.ErrNotFound) {
			c.logger.WithField("session", frag.SessionID).Debug("fragment for inactive session dropped")
			return nil, nil
		}
		return nil, err
	}
	full := sess.TranscriptSoFar + "\n" + text
	if err := c.sessions.UpdateTranscript(ctx, sess.ID, full); err != nil {
		sl.Unlock()
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	prior := append([]store.FeedbackEntry(nil), sess.FeedbackGiven...)
	lastNoteAt := sess.LastNoteAt
	sl.Unlock()

	// The oracle call is slow and read-only with respect to session state, so
	// it runs outside the session lock.
	item, err := c.oracle.LiveFeedback(ctx, oracle.LiveFeedbackRequest{
		Fragment:       text,
		FeedbackGiven:  toOracleItems(prior),
		TimeIntoCall:   frag.TimeIntoCall,
		FullTranscript: full,
		Screenshot:     frag.Screenshot,
		BadHabits:      c.badHabits(ctx, userID),
	})
	if err != nil {
		// Live-path oracle failures degrade to "no feedback".
		c.logger.WithField("session", frag.SessionID).WithError(err).Warn("live feedback failed")
		item = nil
	}

	if item != nil {
		entry, emitted, err := c.recordFeedback(ctx, userID, frag.SessionID, item, frag.TimeIntoCall)
		if err != nil {
			return nil, err
		}
		if emitted {
			return entry, nil
		}
		// Suppressed by the throttle: no note generation this tick either.
		return nil, nil
	}

	if frag.NotesEnabled {
		c.maybeGenerateNote(ctx, userID, frag.SessionID, text, full, frag.TimeIntoCall, lastNoteAt)
	}
	return nil, nil
}

// recordFeedback applies the feedback throttle and persists the entry. The
// throttle check and the append are atomic per session; the session is
// re-resolved so late feedback for an ended session is discarded.
func (c *Coordinator) recordFeedback(ctx context.Context, userID, sessionID string, item *oracle.FeedbackItem, timeIntoCall float64) (*store.FeedbackEntry, bool, error) {
	sl := c.sessionLock(sessionID)
	sl.Lock()
	defer sl.Unlock()

	sess, err := c.sessions.GetActiveSessionByID(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.logger.WithField("session", sessionID).Debug("discarding feedback for ended session")
			return nil, false, nil
		}
		return nil, false, err
	}

	if n := len(sess.FeedbackGiven); n > 0 {
		elapsed := timeIntoCall - sess.FeedbackGiven[n-1].Timestamp
		if elapsed < c.cfg.MinFeedbackInterval {
			c.logger.WithFields(logrus.Fields{
				"session": sessionID,
				"elapsed": elapsed,
			}).Debug("feedback suppressed by throttle")
			return nil, false, nil
		}
	}

	entry := store.FeedbackEntry{
		Kind:      item.Kind,
		Text:      item.Text,
		Timestamp: timeIntoCall,
		CreatedAt: time.Now(),
	}
	updated := append(sess.FeedbackGiven, entry)
	if err := c.sessions.UpdateFeedback(ctx, sess.ID, updated); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &entry, true, nil
}

// maybeGenerateNote applies the note throttle and content thresholds, asks
// the oracle for a note and persists it. Best-effort: every failure is logged
// and swallowed.
func (c *Coordinator) maybeGenerateNote(ctx context.Context, userID, sessionID, fragment, full string, timeIntoCall, lastNoteAt float64) {
	if lastNoteAt > 0 && timeIntoCall-lastNoteAt < c.cfg.MinNoteInterval {
		c.logger.WithField("session", sessionID).Debug("note suppressed by throttle")
		return
	}
	if len(strings.TrimSpace(full)) < c.cfg.MinNoteTranscript {
		c.logger.WithField("session", sessionID).Debug("note skipped, not enough content yet")
		return
	}

	tail := full
	if len(tail) > c.cfg.NoteContextTail {
		tail = tail[len(tail)-c.cfg.NoteContextTail:]
	}
	note, err := c.oracle.GenerateNote(ctx, oracle.NoteRequest{Fragment: fragment, TrailingContext: tail})
	if err != nil {
		c.logger.WithField("session", sessionID).WithError(err).Warn("note generation failed")
		return
	}
	note = strings.TrimSpace(note)
	if note == "" || len(note) < c.cfg.MinNoteLength {
		return
	}

	sl := c.sessionLock(sessionID)
	sl.Lock()
	defer sl.Unlock()

	sess, err := c.sessions.GetActiveSessionByID(ctx, sessionID, userID)
	if err != nil {
		return
	}
	// Another fragment may have written a note while the oracle ran.
	if sess.LastNoteAt > lastNoteAt && timeIntoCall-sess.LastNoteAt < c.cfg.MinNoteInterval {
		return
	}
	if err := c.notes.CreateNote(ctx, &store.Note{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Content:   note,
		Type:      store.NoteAI,
		Timestamp: time.Now(),
	}); err != nil {
		c.logger.WithField("session", sessionID).WithError(err).Warn("note create failed")
		return
	}
	if err := c.sessions.UpdateLastNoteAt(ctx, sessionID, timeIntoCall); err != nil {
		c.logger.WithField("session", sessionID).WithError(err).Warn("note throttle update failed")
	}
	c.logger.WithFields(logrus.Fields{"session": sessionID, "note": note}).Info("ai note created")
}

// EndSession finishes a session. A session with more than MinCallTranscript
// trimmed characters is analyzed into a Call before transitioning to
// completed; analysis failure leaves the session active. Shorter sessions are
// cancelled without a Call.
func (c *Coordinator) EndSession(ctx context.Context, userID, sessionID string) (*EndResult, error) {
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	sess, err := c.sessions.GetActiveSessionByID(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	now := time.Now()
	duration := int(now.Sub(sess.StartedAt).Seconds())

	if len(strings.TrimSpace(sess.TranscriptSoFar)) <= c.cfg.MinCallTranscript {
		if err := c.sessions.FinishSession(ctx, sessionID, store.SessionCancelled, now); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		c.forgetSession(sessionID)
		c.logger.WithField("session", sessionID).Info("session too short to analyze")
		return &EndResult{DurationSeconds: duration, Message: "Session too short to analyze"}, nil
	}

	// Hard-fails on oracle/extraction errors, leaving the session active.
	call, analysis, err := c.analyzer.AnalyzeAndSaveCall(ctx, userID, sess.TranscriptSoFar, duration)
	if err != nil {
		return nil, err
	}
	if err := c.sessions.FinishSession(ctx, sessionID, store.SessionCompleted, time.Now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	c.forgetSession(sessionID)
	c.logger.WithFields(logrus.Fields{"session": sessionID, "call": call.ID}).Info("session completed")
	return &EndResult{CallID: call.ID, Analysis: analysis, DurationSeconds: duration}, nil
}

// CancelSession cancels the caller's session without analysis. The session
// must exist and belong to the caller; cancelling an already-ended session is
// a no-op success, keeping retried cancels idempotent.
func (c *Coordinator) CancelSession(ctx context.Context, userID, sessionID string) error {
	if sessionID == "" {
		return ErrMissingSessionID
	}
	sess, err := c.sessions.GetSession(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if sess.Status != store.SessionActive {
		return nil
	}
	if err := c.sessions.FinishSession(ctx, sessionID, store.SessionCancelled, time.Now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	c.forgetSession(sessionID)
	c.logger.WithField("session", sessionID).Info("session cancelled")
	return nil
}

// badHabits loads the owner's known bad habits for live-feedback context.
// Best-effort; a missing profile yields none.
func (c *Coordinator) badHabits(ctx context.Context, userID string) []string {
	p, err := c.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil
	}
	return p.BadHabits
}

func toOracleItems(entries []store.FeedbackEntry) []oracle.FeedbackItem {
	items := make([]oracle.FeedbackItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, oracle.FeedbackItem{Kind: e.Kind, Text: e.Text})
	}
	return items
}
