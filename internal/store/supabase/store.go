// Package supabase implements the store interfaces against a Supabase
// Postgres database through PostgREST.
package supabase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/TurnkeyIsaiah/Brutus/internal/store"
)

const (
	tableSessions = "sessions"
	tableCalls    = "calls"
	tableProfiles = "user_profiles"
	tableNotes    = "notes"
	tableResearch = "research"
)

// incrementRetries bounds the compare-and-swap loop on the call counter.
const incrementRetries = 3

// Store talks to Supabase. All methods scope queries by user id so rows are
// only ever visible to their owner.
type Store struct {
	client *supabase.Client
}

// New creates a Store from a project URL and service role key.
func New(url, serviceRoleKey string) (*Store, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Store{client: client}, nil
}

var _ store.Store = (*Store)(nil)

func descending() *postgrest.OrderOpts {
	return &postgrest.OrderOpts{Ascending: false}
}

func ascending() *postgrest.OrderOpts {
	return &postgrest.OrderOpts{Ascending: true}
}

// ==================== sessions ====================

func (s *Store) CreateSession(ctx context.Context, sess *store.Session) error {
	_, _, err := s.client.From(tableSessions).
		Insert(sessionToRow(sess), false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id, userID string) (*store.Session, error) {
	var rows []sessionRow
	_, err := s.client.From(tableSessions).
		Select("*", "", false).
		Eq("id", id).
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0].toSession(), nil
}

func (s *Store) GetActiveSession(ctx context.Context, userID string) (*store.Session, error) {
	var rows []sessionRow
	_, err := s.client.From(tableSessions).
		Select("*", "", false).
		Eq("user_id", userID).
		Eq("status", string(store.SessionActive)).
		Order("started_at", descending()).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0].toSession(), nil
}

func (s *Store) GetActiveSessionByID(ctx context.Context, id, userID string) (*store.Session, error) {
	var rows []sessionRow
	_, err := s.client.From(tableSessions).
		Select("*", "", false).
		Eq("id", id).
		Eq("user_id", userID).
		Eq("status", string(store.SessionActive)).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("get active session by id: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0].toSession(), nil
}

func (s *Store) CancelActiveSessions(ctx context.Context, userID string, endedAt time.Time) error {
	_, _, err := s.client.From(tableSessions).
		Update(map[string]interface{}{
			"status":   string(store.SessionCancelled),
			"ended_at": endedAt,
		}, "", "").
		Eq("user_id", userID).
		Eq("status", string(store.SessionActive)).
		Execute()
	if err != nil {
		return fmt.Errorf("cancel active sessions: %w", err)
	}
	return nil
}

// updateActive applies a patch to a session only while it is still active.
// Zero affected rows means the session ended (or never existed) and the write
// is reported as ErrNotFound so callers discard stale results.
func (s *Store) updateActive(id string, patch map[string]interface{}) error {
	var rows []sessionRow
	_, err := s.client.From(tableSessions).
		Update(patch, "representation", "").
		Eq("id", id).
		Eq("status", string(store.SessionActive)).
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateTranscript(ctx context.Context, id, transcriptSoFar string) error {
	return s.updateActive(id, map[string]interface{}{"transcript_so_far": transcriptSoFar})
}

func (s *Store) UpdateFeedback(ctx context.Context, id string, feedback []store.FeedbackEntry) error {
	if feedback == nil {
		feedback = []store.FeedbackEntry{}
	}
	return s.updateActive(id, map[string]interface{}{"feedback_given": feedback})
}

func (s *Store) UpdateLastNoteAt(ctx context.Context, id string, at float64) error {
	return s.updateActive(id, map[string]interface{}{"last_note_at": at})
}

func (s *Store) FinishSession(ctx context.Context, id string, status store.SessionStatus, endedAt time.Time) error {
	return s.updateActive(id, map[string]interface{}{
		"status":   string(status),
		"ended_at": endedAt,
	})
}

// ==================== calls ====================

func (s *Store) CreateCall(ctx context.Context, c *store.Call) error {
	_, _, err := s.client.From(tableCalls).
		Insert(callToRow(c), false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("create call: %w", err)
	}
	return nil
}

func (s *Store) GetCall(ctx context.Context, id, userID string) (*store.Call, error) {
	var rows []callRow
	_, err := s.client.From(tableCalls).
		Select("*", "", false).
		Eq("id", id).
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0].toCall(), nil
}

func (s *Store) ListCalls(ctx context.Context, userID string, limit, offset int, tag string) ([]*store.Call, int, error) {
	q := s.client.From(tableCalls).
		Select("*", "exact", false).
		Eq("user_id", userID)
	if tag != "" {
		q = q.Contains("tags", []string{tag})
	}
	var rows []callRow
	count, err := q.
		Order("created_at", descending()).
		Range(offset, offset+limit-1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, 0, fmt.Errorf("list calls: %w", err)
	}
	calls := make([]*store.Call, 0, len(rows))
	for _, r := range rows {
		calls = append(calls, r.toCall())
	}
	return calls, int(count), nil
}

func (s *Store) ListRecentCalls(ctx context.Context, userID string, limit int) ([]*store.Call, error) {
	var rows []callRow
	_, err := s.client.From(tableCalls).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", descending()).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list recent calls: %w", err)
	}
	calls := make([]*store.Call, 0, len(rows))
	for _, r := range rows {
		calls = append(calls, r.toCall())
	}
	return calls, nil
}

func (s *Store) ListCallsSince(ctx context.Context, userID string, since time.Time) ([]*store.Call, error) {
	var rows []callRow
	_, err := s.client.From(tableCalls).
		Select("*", "", false).
		Eq("user_id", userID).
		Gte("created_at", since.UTC().Format(time.RFC3339)).
		Order("created_at", ascending()).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list calls since: %w", err)
	}
	calls := make([]*store.Call, 0, len(rows))
	for _, r := range rows {
		calls = append(calls, r.toCall())
	}
	return calls, nil
}

func (s *Store) DeleteCall(ctx context.Context, id, userID string) error {
	var rows []callRow
	_, err := s.client.From(tableCalls).
		Delete("representation", "").
		Eq("id", id).
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("delete call: %w", err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==================== profiles ====================

func (s *Store) GetProfile(ctx context.Context, userID string) (*store.UserProfile, error) {
	var rows []profileRow
	_, err := s.client.From(tableProfiles).
		Select("*", "", false).
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0].toProfile(), nil
}

// IncrementCallsAnalyzed uses a compare-and-swap loop rather than a stored
// procedure: read the counter, write the new value guarded by the old one,
// retry if another writer got there first.
func (s *Store) IncrementCallsAnalyzed(ctx context.Context, userID string, delta int) error {
	for attempt := 0; attempt < incrementRetries; attempt++ {
		var rows []profileRow
		_, err := s.client.From(tableProfiles).
			Select("*", "", false).
			Eq("user_id", userID).
			ExecuteTo(&rows)
		if err != nil {
			return fmt.Errorf("read profile counter: %w", err)
		}

		if len(rows) == 0 {
			next := delta
			if next < 0 {
				next = 0
			}
			_, _, err := s.client.From(tableProfiles).
				Insert(profileRow{
					UserID:             userID,
					BadHabits:          []string{},
					Strengths:          []string{},
					AreasImproving:     []string{},
					TotalCallsAnalyzed: next,
					UpdatedAt:          time.Now(),
				}, false, "", "", "").
				Execute()
			if err == nil {
				return nil
			}
			// Lost the race against a concurrent insert; retry as an update.
			continue
		}

		current := rows[0].TotalCallsAnalyzed
		next := current + delta
		if next < 0 {
			next = 0
		}
		var updated []profileRow
		_, err = s.client.From(tableProfiles).
			Update(map[string]interface{}{
				"total_calls_analyzed": next,
				"updated_at":           time.Now(),
			}, "representation", "").
			Eq("user_id", userID).
			Eq("total_calls_analyzed", strconv.Itoa(current)).
			ExecuteTo(&updated)
		if err != nil {
			return fmt.Errorf("update profile counter: %w", err)
		}
		if len(updated) > 0 {
			return nil
		}
	}
	return fmt.Errorf("increment calls analyzed for %s: too much contention", userID)
}

func (s *Store) UpdateCoaching(ctx context.Context, userID string, c store.ProfileCoaching) error {
	badHabits := c.BadHabits
	if badHabits == nil {
		badHabits = []string{}
	}
	strengths := c.Strengths
	if strengths == nil {
		strengths = []string{}
	}
	improving := c.AreasImproving
	if improving == nil {
		improving = []string{}
	}

	var updated []profileRow
	_, err := s.client.From(tableProfiles).
		Update(map[string]interface{}{
			"talk_ratio_avg":  c.TalkRatioAvg,
			"bad_habits":      badHabits,
			"strengths":       strengths,
			"areas_improving": improving,
			"summary":         c.Summary,
			"updated_at":      time.Now(),
		}, "representation", "").
		Eq("user_id", userID).
		ExecuteTo(&updated)
	if err != nil {
		return fmt.Errorf("update coaching: %w", err)
	}
	if len(updated) > 0 {
		return nil
	}

	_, _, err = s.client.From(tableProfiles).
		Insert(profileRow{
			UserID:         userID,
			TalkRatioAvg:   c.TalkRatioAvg,
			BadHabits:      badHabits,
			Strengths:      strengths,
			AreasImproving: improving,
			Summary:        c.Summary,
			UpdatedAt:      time.Now(),
		}, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("insert coaching profile: %w", err)
	}
	return nil
}

// ==================== notes ====================

func (s *Store) CreateNote(ctx context.Context, n *store.Note) error {
	_, _, err := s.client.From(tableNotes).
		Insert(noteToRow(n), false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return nil
}

func (s *Store) ListNotes(ctx context.Context, userID, sessionID string) ([]*store.Note, error) {
	q := s.client.From(tableNotes).
		Select("*", "", false).
		Eq("user_id", userID)
	if sessionID != "" {
		q = q.Eq("session_id", sessionID)
	}
	var rows []noteRow
	_, err := q.Order("timestamp", descending()).ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	notes := make([]*store.Note, 0, len(rows))
	for _, r := range rows {
		notes = append(notes, r.toNote())
	}
	return notes, nil
}

func (s *Store) ListSessionNotes(ctx context.Context, userID, sessionID string) ([]*store.Note, error) {
	var rows []noteRow
	_, err := s.client.From(tableNotes).
		Select("*", "", false).
		Eq("user_id", userID).
		Eq("session_id", sessionID).
		Order("timestamp", ascending()).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list session notes: %w", err)
	}
	notes := make([]*store.Note, 0, len(rows))
	for _, r := range rows {
		notes = append(notes, r.toNote())
	}
	return notes, nil
}

func (s *Store) DeleteNote(ctx context.Context, id, userID string) error {
	var rows []noteRow
	_, err := s.client.From(tableNotes).
		Delete("representation", "").
		Eq("id", id).
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==================== research ====================

func (s *Store) CreateResearch(ctx context.Context, r *store.Research) error {
	_, _, err := s.client.From(tableResearch).
		Insert(researchToRow(r), false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("create research: %w", err)
	}
	return nil
}

func (s *Store) GetResearch(ctx context.Context, id, userID string) (*store.Research, error) {
	var rows []researchRow
	_, err := s.client.From(tableResearch).
		Select("*", "", false).
		Eq("id", id).
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("get research: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0].toResearch(), nil
}

func (s *Store) ListResearch(ctx context.Context, userID, sessionID string, status store.ResearchStatus) ([]*store.Research, error) {
	q := s.client.From(tableResearch).
		Select("*", "", false).
		Eq("user_id", userID)
	if sessionID != "" {
		q = q.Eq("session_id", sessionID)
	}
	if status != "" {
		q = q.Eq("status", string(status))
	}
	var rows []researchRow
	_, err := q.Order("requested_at", descending()).ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list research: %w", err)
	}
	items := make([]*store.Research, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toResearch())
	}
	return items, nil
}

func (s *Store) SetResearchResult(ctx context.Context, id string, status store.ResearchStatus, result string, completedAt time.Time) error {
	_, _, err := s.client.From(tableResearch).
		Update(map[string]interface{}{
			"status":       string(status),
			"result":       result,
			"completed_at": completedAt,
		}, "", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("set research result: %w", err)
	}
	return nil
}
