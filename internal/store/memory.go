package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store used in tests and for local development
// without a Supabase project.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	calls    map[string]*Call
	profiles map[string]*UserProfile
	notes    map[string]*Note
	research map[string]*Research
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*Session),
		calls:    make(map[string]*Call),
		profiles: make(map[string]*UserProfile),
		notes:    make(map[string]*Note),
		research: make(map[string]*Research),
	}
}

func cloneSession(s *Session) *Session {
	cp := *s
	cp.FeedbackGiven = append([]FeedbackEntry(nil), s.FeedbackGiven...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

func cloneCall(c *Call) *Call {
	cp := *c
	cp.Feedback = append([]FeedbackEntry(nil), c.Feedback...)
	cp.Tags = append([]string(nil), c.Tags...)
	return &cp
}

func cloneProfile(p *UserProfile) *UserProfile {
	cp := *p
	cp.BadHabits = append([]string(nil), p.BadHabits...)
	cp.Strengths = append([]string(nil), p.Strengths...)
	cp.AreasImproving = append([]string(nil), p.AreasImproving...)
	return &cp
}

func (m *Memory) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *Memory) GetSession(_ context.Context, id, userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *Memory) GetActiveSession(_ context.Context, userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.Status == SessionActive {
			return cloneSession(s), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetActiveSessionByID(_ context.Context, id, userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID || s.Status != SessionActive {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *Memory) CancelActiveSessions(_ context.Context, userID string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.Status == SessionActive {
			s.Status = SessionCancelled
			t := endedAt
			s.EndedAt = &t
		}
	}
	return nil
}

// activeSession returns the live map entry when the session is still active.
func (m *Memory) activeSession(id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok || s.Status != SessionActive {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Memory) UpdateTranscript(_ context.Context, id, transcriptSoFar string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.activeSession(id)
	if err != nil {
		return err
	}
	s.TranscriptSoFar = transcriptSoFar
	return nil
}

func (m *Memory) UpdateFeedback(_ context.Context, id string, feedback []FeedbackEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.activeSession(id)
	if err != nil {
		return err
	}
	s.FeedbackGiven = append([]FeedbackEntry(nil), feedback...)
	return nil
}

func (m *Memory) UpdateLastNoteAt(_ context.Context, id string, at float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.activeSession(id)
	if err != nil {
		return err
	}
	s.LastNoteAt = at
	return nil
}

func (m *Memory) FinishSession(_ context.Context, id string, status SessionStatus, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.activeSession(id)
	if err != nil {
		return err
	}
	s.Status = status
	t := endedAt
	s.EndedAt = &t
	return nil
}

func (m *Memory) CreateCall(_ context.Context, c *Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[c.ID] = cloneCall(c)
	return nil
}

func (m *Memory) GetCall(_ context.Context, id, userID string) (*Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.calls[id]
	if !ok || c.UserID != userID {
		return nil, ErrNotFound
	}
	return cloneCall(c), nil
}

// callsByRecency returns the owner's calls newest first.
func (m *Memory) callsByRecency(userID string) []*Call {
	var out []*Call
	for _, c := range m.calls {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *Memory) ListCalls(_ context.Context, userID string, limit, offset int, tag string) ([]*Call, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.callsByRecency(userID)
	if tag != "" {
		var filtered []*Call
		for _, c := range all {
			for _, t := range c.Tags {
				if strings.EqualFold(t, tag) {
					filtered = append(filtered, c)
					break
				}
			}
		}
		all = filtered
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	page := make([]*Call, 0, end-offset)
	for _, c := range all[offset:end] {
		page = append(page, cloneCall(c))
	}
	return page, total, nil
}

func (m *Memory) ListRecentCalls(_ context.Context, userID string, limit int) ([]*Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.callsByRecency(userID)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]*Call, 0, len(all))
	for _, c := range all {
		out = append(out, cloneCall(c))
	}
	return out, nil
}

func (m *Memory) ListCallsSince(_ context.Context, userID string, since time.Time) ([]*Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Call
	for _, c := range m.calls {
		if c.UserID == userID && !c.CreatedAt.Before(since) {
			out = append(out, cloneCall(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) DeleteCall(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	delete(m.calls, id)
	return nil
}

func (m *Memory) GetProfile(_ context.Context, userID string) (*UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProfile(p), nil
}

func (m *Memory) IncrementCallsAnalyzed(_ context.Context, userID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		p = &UserProfile{UserID: userID}
		m.profiles[userID] = p
	}
	p.TotalCallsAnalyzed += delta
	if p.TotalCallsAnalyzed < 0 {
		p.TotalCallsAnalyzed = 0
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) UpdateCoaching(_ context.Context, userID string, c ProfileCoaching) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		p = &UserProfile{UserID: userID}
		m.profiles[userID] = p
	}
	p.TalkRatioAvg = c.TalkRatioAvg
	p.BadHabits = append([]string(nil), c.BadHabits...)
	p.Strengths = append([]string(nil), c.Strengths...)
	p.AreasImproving = append([]string(nil), c.AreasImproving...)
	p.Summary = c.Summary
	p.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) CreateNote(_ context.Context, n *Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notes[n.ID] = &cp
	return nil
}

func (m *Memory) ListNotes(_ context.Context, userID, sessionID string) ([]*Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Note
	for _, n := range m.notes {
		if n.UserID != userID {
			continue
		}
		if sessionID != "" && n.SessionID != sessionID {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) ListSessionNotes(ctx context.Context, userID, sessionID string) ([]*Note, error) {
	notes, err := m.ListNotes(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Timestamp.Before(notes[j].Timestamp) })
	return notes, nil
}

func (m *Memory) DeleteNote(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	delete(m.notes, id)
	return nil
}

func (m *Memory) CreateResearch(_ context.Context, r *Research) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.research[r.ID] = &cp
	return nil
}

func (m *Memory) GetResearch(_ context.Context, id, userID string) (*Research, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.research[id]
	if !ok || r.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) ListResearch(_ context.Context, userID, sessionID string, status ResearchStatus) ([]*Research, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Research
	for _, r := range m.research {
		if r.UserID != userID {
			continue
		}
		if sessionID != "" && r.SessionID != sessionID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

func (m *Memory) SetResearchResult(_ context.Context, id string, status ResearchStatus, result string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.research[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.Result = result
	t := completedAt
	r.CompletedAt = &t
	return nil
}

var _ Store = (*Memory)(nil)
