// Package analysis folds finished calls into scored Call records and a
// rolling per-user coaching profile.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/TurnkeyIsaiah/Brutus/internal/background"
	"github.com/TurnkeyIsaiah/Brutus/internal/oracle"
	"github.com/TurnkeyIsaiah/Brutus/internal/store"
	"github.com/TurnkeyIsaiah/Brutus/internal/tags"
)

// chatFallback is returned whenever chat fails; the coaching channel degrades
// in character instead of erroring.
const chatFallback = "something went wrong on my end. try again, and maybe this time i'll actually be able to roast you properly."

// profileSampleSize caps how many recent calls feed a profile refresh.
const profileSampleSize = 10

// Service is the Call Analysis Aggregator.
type Service struct {
	calls    store.CallStore
	profiles store.ProfileStore
	oracle   oracle.Oracle
	runner   *background.Runner
	logger   *logrus.Logger
}

// NewService wires the aggregator to its stores, the oracle and the
// background runner used for detached profile refreshes.
func NewService(calls store.CallStore, profiles store.ProfileStore, o oracle.Oracle, runner *background.Runner, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{calls: calls, profiles: profiles, oracle: o, runner: runner, logger: logger}
}

// profileContext loads the owner's profile for prompt context. A missing
// profile means a new user, not an error.
func (s *Service) profileContext(ctx context.Context, userID string) *oracle.ProfileContext {
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.WithField("user", userID).WithError(err).Warn("profile load failed")
		}
		return nil
	}
	return &oracle.ProfileContext{
		TotalCallsAnalyzed: p.TotalCallsAnalyzed,
		TalkRatioAvg:       p.TalkRatioAvg,
		CloseRate:          p.CloseRate,
		BadHabits:          p.BadHabits,
		Strengths:          p.Strengths,
		AreasImproving:     p.AreasImproving,
		Summary:            p.Summary,
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampRatio(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// AnalyzeCall runs the oracle's full-call analysis with the owner's profile
// as historical context. Oracle or extraction failure is a hard error; a Call
// cannot exist without a valid analysis.
func (s *Service) AnalyzeCall(ctx context.Context, userID, transcript string, durationSeconds int) (*oracle.CallAnalysis, error) {
	analysis, err := s.oracle.FullAnalysis(ctx, oracle.FullAnalysisRequest{
		Transcript:      transcript,
		DurationSeconds: durationSeconds,
		Profile:         s.profileContext(ctx, userID),
	})
	if err != nil {
		return nil, fmt.Errorf("analyze call: %w", err)
	}
	analysis.OverallScore = clampScore(analysis.OverallScore)
	analysis.TalkRatio = clampRatio(analysis.TalkRatio)
	if analysis.InterruptionCount < 0 {
		analysis.InterruptionCount = 0
	}
	return analysis, nil
}

// AnalyzeAndSaveCall analyzes the transcript, persists the resulting Call
// with detected tags, increments the owner's call counter and triggers a
// detached profile refresh. Returns the stored call and the raw analysis.
func (s *Service) AnalyzeAndSaveCall(ctx context.Context, userID, transcript string, durationSeconds int) (*store.Call, *oracle.CallAnalysis, error) {
	analysis, err := s.AnalyzeCall(ctx, userID, transcript, durationSeconds)
	if err != nil {
		return nil, nil, err
	}

	feedback := make([]store.FeedbackEntry, 0, len(analysis.Feedback))
	for _, f := range analysis.Feedback {
		feedback = append(feedback, store.FeedbackEntry{Kind: f.Kind, Text: f.Text})
	}

	call := &store.Call{
		ID:                uuid.NewString(),
		UserID:            userID,
		Transcript:        transcript,
		DurationSeconds:   durationSeconds,
		TalkRatio:         analysis.TalkRatio,
		InterruptionCount: analysis.InterruptionCount,
		OverallScore:      analysis.OverallScore,
		Feedback:          feedback,
		Tags:              tags.Detect(transcript),
		CreatedAt:         time.Now(),
	}
	if err := s.calls.CreateCall(ctx, call); err != nil {
		return nil, nil, fmt.Errorf("save call: %w", err)
	}
	if err := s.profiles.IncrementCallsAnalyzed(ctx, userID, 1); err != nil {
		return nil, nil, fmt.Errorf("increment call counter: %w", err)
	}

	s.TriggerProfileRefresh(userID)

	s.logger.WithFields(logrus.Fields{
		"user":  userID,
		"call":  call.ID,
		"score": call.OverallScore,
	}).Info("call analyzed")
	return call, analysis, nil
}

// DeleteCall removes a call and decrements the owner's counter, the inverse
// of the create-time increment.
func (s *Service) DeleteCall(ctx context.Context, userID, callID string) error {
	if _, err := s.calls.GetCall(ctx, callID, userID); err != nil {
		return err
	}
	if err := s.calls.DeleteCall(ctx, callID, userID); err != nil {
		return err
	}
	return s.profiles.IncrementCallsAnalyzed(ctx, userID, -1)
}

// TriggerProfileRefresh dispatches RefreshProfile to the background runner.
// Its failure never reaches the caller.
func (s *Service) TriggerProfileRefresh(userID string) {
	if s.runner == nil {
		return
	}
	s.runner.Submit("profile-refresh", func(ctx context.Context) error {
		return s.RefreshProfile(ctx, userID)
	})
}

// RefreshProfile recomputes the rolling profile from up to the last 10 calls:
// arithmetic means for score and talk ratio, oracle-updated coaching lists
// and summary. No-op when the owner has no calls.
func (s *Service) RefreshProfile(ctx context.Context, userID string) error {
	recent, err := s.calls.ListRecentCalls(ctx, userID, profileSampleSize)
	if err != nil {
		return fmt.Errorf("list recent calls: %w", err)
	}
	if len(recent) == 0 {
		return nil
	}

	var scoreSum, ratioSum float64
	summaries := make([]oracle.CallSummary, 0, len(recent))
	for _, c := range recent {
		scoreSum += float64(c.OverallScore)
		ratioSum += c.TalkRatio
		highlights := make([]oracle.FeedbackItem, 0, len(c.Feedback))
		for _, f := range c.Feedback {
			highlights = append(highlights, oracle.FeedbackItem{Kind: f.Kind, Text: f.Text})
		}
		summaries = append(summaries, oracle.CallSummary{
			OverallScore:       c.OverallScore,
			TalkRatio:          c.TalkRatio,
			InterruptionCount:  c.InterruptionCount,
			FeedbackHighlights: highlights,
		})
	}
	avgScore := scoreSum / float64(len(recent))
	avgRatio := ratioSum / float64(len(recent))

	update, err := s.oracle.ProfileUpdate(ctx, oracle.ProfileUpdateRequest{
		Calls:   summaries,
		Profile: s.profileContext(ctx, userID),
	})
	if err != nil {
		return fmt.Errorf("profile update: %w", err)
	}

	if err := s.profiles.UpdateCoaching(ctx, userID, store.ProfileCoaching{
		TalkRatioAvg:   avgRatio,
		BadHabits:      update.BadHabits,
		Strengths:      update.Strengths,
		AreasImproving: update.AreasImproving,
		Summary:        update.Summary,
	}); err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user":      userID,
		"calls":     len(recent),
		"avg_score": avgScore,
	}).Info("profile refreshed")
	return nil
}

// Chat answers a single-turn coaching question using the profile and the last
// three calls as context. Never fails visibly; any error yields the fixed
// in-character fallback.
func (s *Service) Chat(ctx context.Context, userID, message string) string {
	recent, err := s.calls.ListRecentCalls(ctx, userID, 3)
	if err != nil {
		s.logger.WithField("user", userID).WithError(err).Warn("chat context load failed")
		recent = nil
	}
	summaries := make([]oracle.CallSummary, 0, len(recent))
	for _, c := range recent {
		summaries = append(summaries, oracle.CallSummary{
			OverallScore:      c.OverallScore,
			TalkRatio:         c.TalkRatio,
			InterruptionCount: c.InterruptionCount,
		})
	}

	reply, err := s.oracle.Chat(ctx, oracle.ChatRequest{
		Message:     message,
		Profile:     s.profileContext(ctx, userID),
		RecentCalls: summaries,
	})
	if err != nil {
		s.logger.WithField("user", userID).WithError(err).Warn("chat failed")
		return chatFallback
	}
	return reply
}
