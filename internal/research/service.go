// Package research handles asynchronous enrichment of queries raised during
// live sessions: a request is persisted as pending, processed in the
// background and resolved to completed or failed.
package research

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/TurnkeyIsaiah/Brutus/internal/background"
	"github.com/TurnkeyIsaiah/Brutus/internal/store"
)

// Researcher is the slice of the oracle this service consumes.
type Researcher interface {
	Research(ctx context.Context, query string) (string, error)
}

// Service creates and resolves research requests.
type Service struct {
	research store.ResearchStore
	oracle   Researcher
	runner   *background.Runner
	logger   *logrus.Logger
}

// NewService wires the research service.
func NewService(r store.ResearchStore, o Researcher, runner *background.Runner, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{research: r, oracle: o, runner: runner, logger: logger}
}

// Create persists a pending request and dispatches its processing to the
// background runner. The pending record is returned immediately.
func (s *Service) Create(ctx context.Context, userID, sessionID, query string, requestedAt time.Time) (*store.Research, error) {
	if requestedAt.IsZero() {
		requestedAt = time.Now()
	}
	r := &store.Research{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		UserID:      userID,
		Query:       query,
		Status:      store.ResearchPending,
		RequestedAt: requestedAt,
	}
	if err := s.research.CreateResearch(ctx, r); err != nil {
		return nil, err
	}

	if s.runner != nil {
		id, q := r.ID, r.Query
		s.runner.Submit("research", func(ctx context.Context) error {
			return s.process(ctx, id, q)
		})
	}
	return r, nil
}

func (s *Service) process(ctx context.Context, id, query string) error {
	result, err := s.oracle.Research(ctx, query)
	if err != nil {
		if serr := s.research.SetResearchResult(ctx, id, store.ResearchFailed, "", time.Now()); serr != nil {
			s.logger.WithField("research", id).WithError(serr).Error("mark research failed")
		}
		return err
	}
	return s.research.SetResearchResult(ctx, id, store.ResearchCompleted, result, time.Now())
}

// Get returns one request owned by the caller.
func (s *Service) Get(ctx context.Context, userID, id string) (*store.Research, error) {
	return s.research.GetResearch(ctx, id, userID)
}

// List returns the caller's requests, optionally filtered by session/status.
func (s *Service) List(ctx context.Context, userID, sessionID string, status store.ResearchStatus) ([]*store.Research, error) {
	return s.research.ListResearch(ctx, userID, sessionID, status)
}
