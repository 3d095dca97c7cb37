package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TurnkeyIsaiah/Brutus/internal/oracle"
	"github.com/TurnkeyIsaiah/Brutus/internal/store"
)

type fakeOracle struct {
	analysis    *oracle.CallAnalysis
	analysisErr error
	update      *oracle.ProfileUpdate
	updateErr   error
	chatReply   string
	chatErr     error

	lastProfileReq oracle.ProfileUpdateRequest
	lastChatReq    oracle.ChatRequest
}

func (f *fakeOracle) LiveFeedback(context.Context, oracle.LiveFeedbackRequest) (*oracle.FeedbackItem, error) {
	return nil, nil
}

func (f *fakeOracle) FullAnalysis(context.Context, oracle.FullAnalysisRequest) (*oracle.CallAnalysis, error) {
	if f.analysisErr != nil {
		return nil, f.analysisErr
	}
	cp := *f.analysis
	return &cp, nil
}

func (f *fakeOracle) ProfileUpdate(_ context.Context, req oracle.ProfileUpdateRequest) (*oracle.ProfileUpdate, error) {
	f.lastProfileReq = req
	return f.update, f.updateErr
}

func (f *fakeOracle) GenerateNote(context.Context, oracle.NoteRequest) (string, error) {
	return "", nil
}

func (f *fakeOracle) Chat(_ context.Context, req oracle.ChatRequest) (string, error) {
	f.lastChatReq = req
	return f.chatReply, f.chatErr
}

func (f *fakeOracle) Research(context.Context, string) (string, error) { return "", nil }

func newTestService(t *testing.T) (*Service, *store.Memory, *fakeOracle) {
	t.Helper()
	mem := store.NewMemory()
	o := &fakeOracle{
		analysis: &oracle.CallAnalysis{
			OverallScore:      72,
			TalkRatio:         55,
			InterruptionCount: 2,
			Feedback:          []oracle.FeedbackItem{{Kind: oracle.KindWarning, Text: "you pitched too early"}},
			OverallRoast:      "you survived. barely.",
		},
		update: &oracle.ProfileUpdate{
			BadHabits:      []string{"interrupting"},
			Strengths:      []string{"closing energy"},
			AreasImproving: []string{"discovery questions"},
			Summary:        "improving, slowly",
		},
	}
	// No runner: profile refreshes triggered by saves are skipped, keeping
	// assertions deterministic.
	return NewService(mem, mem, o, nil, nil), mem, o
}

func TestAnalyzeCall_ClampsOutOfRangeValues(t *testing.T) {
	svc, _, o := newTestService(t)
	o.analysis = &oracle.CallAnalysis{OverallScore: 140, TalkRatio: -5, InterruptionCount: -1}

	got, err := svc.AnalyzeCall(context.Background(), "u1", "transcript", 60)
	require.NoError(t, err)
	assert.Equal(t, 100, got.OverallScore)
	assert.Zero(t, got.TalkRatio)
	assert.Zero(t, got.InterruptionCount)
}

func TestAnalyzeCall_OracleFailureIsHard(t *testing.T) {
	svc, _, o := newTestService(t)
	o.analysisErr = errors.New("boom")
	_, err := svc.AnalyzeCall(context.Background(), "u1", "transcript", 60)
	require.Error(t, err)
}

func TestAnalyzeAndSaveCall(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	transcript := "tell me about your current setup, I know the budget is tight this quarter"
	call, analysis, err := svc.AnalyzeAndSaveCall(ctx, "u1", transcript, 300)
	require.NoError(t, err)
	require.NotNil(t, analysis)

	stored, err := mem.GetCall(ctx, call.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 72, stored.OverallScore)
	assert.Equal(t, transcript, stored.Transcript)
	assert.Equal(t, 300, stored.DurationSeconds)
	assert.Contains(t, stored.Tags, "discovery")
	assert.Contains(t, stored.Tags, "pricing")
	require.Len(t, stored.Feedback, 1)
	assert.Equal(t, oracle.KindWarning, stored.Feedback[0].Kind)

	profile, err := mem.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.TotalCallsAnalyzed)
}

func TestDeleteCall_DecrementsCounter(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	call, _, err := svc.AnalyzeAndSaveCall(ctx, "u1", "a long enough transcript about next steps", 60)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteCall(ctx, "u1", call.ID))

	_, err = mem.GetCall(ctx, call.ID, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	profile, err := mem.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, profile.TotalCallsAnalyzed)
}

func TestDeleteCall_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.DeleteCall(context.Background(), "u1", "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteCall_WrongOwner(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	call, _, err := svc.AnalyzeAndSaveCall(ctx, "u1", "a long enough transcript about anything at all", 60)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.DeleteCall(ctx, "u2", call.ID), store.ErrNotFound)
}

func TestRefreshProfile_NoCallsIsNoop(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.RefreshProfile(ctx, "u1"))
	_, err := mem.GetProfile(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRefreshProfile_AveragesAndPersists(t *testing.T) {
	svc, mem, o := newTestService(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, tc := range []struct {
		score int
		ratio float64
	}{{60, 40}, {80, 60}} {
		require.NoError(t, mem.CreateCall(ctx, &store.Call{
			ID:           string(rune('a' + i)),
			UserID:       "u1",
			OverallScore: tc.score,
			TalkRatio:    tc.ratio,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	require.NoError(t, svc.RefreshProfile(ctx, "u1"))
	assert.Len(t, o.lastProfileReq.Calls, 2)

	profile, err := mem.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 50, profile.TalkRatioAvg, 0.001)
	assert.Equal(t, []string{"interrupting"}, profile.BadHabits)
	assert.Equal(t, []string{"closing energy"}, profile.Strengths)
	assert.Equal(t, "improving, slowly", profile.Summary)
}

func TestRefreshProfile_SamplesMostRecentTen(t *testing.T) {
	svc, mem, o := newTestService(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 15; i++ {
		require.NoError(t, mem.CreateCall(ctx, &store.Call{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, svc.RefreshProfile(ctx, "u1"))
	assert.Len(t, o.lastProfileReq.Calls, profileSampleSize)
}

func TestChat(t *testing.T) {
	svc, mem, o := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, mem.CreateCall(ctx, &store.Call{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}))
	}

	o.chatReply = "your discovery questions are getting better. marginally."
	reply := svc.Chat(ctx, "u1", "how am i doing?")
	assert.Equal(t, o.chatReply, reply)
	assert.Equal(t, "how am i doing?", o.lastChatReq.Message)
	assert.Len(t, o.lastChatReq.RecentCalls, 3)
}

func TestChat_FallbackOnError(t *testing.T) {
	svc, _, o := newTestService(t)
	o.chatErr = errors.New("model unavailable")
	reply := svc.Chat(context.Background(), "u1", "roast me")
	assert.Equal(t, chatFallback, reply)
}
