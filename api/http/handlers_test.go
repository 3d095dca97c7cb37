package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TurnkeyIsaiah/Brutus/internal/analysis"
	"github.com/TurnkeyIsaiah/Brutus/internal/httpserver"
	"github.com/TurnkeyIsaiah/Brutus/internal/live"
	"github.com/TurnkeyIsaiah/Brutus/internal/oracle"
	"github.com/TurnkeyIsaiah/Brutus/internal/research"
	"github.com/TurnkeyIsaiah/Brutus/internal/store"
)

var testSecret = []byte("handlers-test-secret")

type fixedOracle struct{}

func (fixedOracle) LiveFeedback(context.Context, oracle.LiveFeedbackRequest) (*oracle.FeedbackItem, error) {
	return &oracle.FeedbackItem{Kind: oracle.KindWarning, Text: "breathe"}, nil
}

func (fixedOracle) FullAnalysis(context.Context, oracle.FullAnalysisRequest) (*oracle.CallAnalysis, error) {
	return &oracle.CallAnalysis{OverallScore: 60, TalkRatio: 50, OverallRoast: "mediocre"}, nil
}

func (fixedOracle) ProfileUpdate(context.Context, oracle.ProfileUpdateRequest) (*oracle.ProfileUpdate, error) {
	return &oracle.ProfileUpdate{Summary: "fine"}, nil
}

func (fixedOracle) GenerateNote(context.Context, oracle.NoteRequest) (string, error) { return "", nil }

func (fixedOracle) Chat(context.Context, oracle.ChatRequest) (string, error) {
	return "you again?", nil
}

func (fixedOracle) Research(context.Context, string) (string, error) { return "briefing", nil }

type noopTranscriber struct{}

func (noopTranscriber) TranscribeChunk(context.Context, []byte, string) string { return "" }

func newTestServer(t *testing.T) (http.Handler, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	o := fixedOracle{}
	svc := analysis.NewService(mem, mem, o, nil, nil)
	coordinator := live.NewCoordinator(mem, mem, mem, noopTranscriber{}, o, svc, live.DefaultConfig(), nil)
	researcher := research.NewService(mem, o, nil, nil)

	e := httpserver.New()
	h := NewHandlers(coordinator, svc, nil, researcher, mem, nil)
	h.Register(e, testSecret)
	return e, mem
}

func authToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func TestHealthz_NoAuthRequired(t *testing.T) {
	h, _ := newTestServer(t)
	rec, _ := doJSON(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	h, _ := newTestServer(t)
	for _, path := range []string{"/live/active", "/calls", "/user/profile", "/notes", "/research"} {
		rec, _ := doJSON(t, h, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestLiveLifecycleOverHTTP(t *testing.T) {
	h, _ := newTestServer(t)
	token := authToken(t, "u1")

	rec, body := doJSON(t, h, http.MethodPost, "/live/start", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	session := body["session"].(map[string]interface{})
	sessionID := session["id"].(string)
	require.NotEmpty(t, sessionID)

	rec, body = doJSON(t, h, http.MethodGet, "/live/active", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["active"])

	rec, body = doJSON(t, h, http.MethodPost, "/live/transcript", token,
		`{"sessionId":"`+sessionID+`","transcriptChunk":"we keep interrupting them","timeIntoCall":25}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, body["feedback"])
	feedback := body["feedback"].(map[string]interface{})
	assert.Equal(t, "warning", feedback["type"])

	rec, _ = doJSON(t, h, http.MethodPost, "/live/transcript", token, `{"transcriptChunk":"no session"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = doJSON(t, h, http.MethodPost, "/live/cancel", token, `{"sessionId":"`+sessionID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = doJSON(t, h, http.MethodGet, "/live/active", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["active"])
}

func TestEndSession_AnalyzesLongTranscript(t *testing.T) {
	h, mem := newTestServer(t)
	token := authToken(t, "u1")

	_, body := doJSON(t, h, http.MethodPost, "/live/start", token, "")
	sessionID := body["session"].(map[string]interface{})["id"].(string)

	long := strings.Repeat("a substantial sales conversation happened here. ", 3)
	rec, _ := doJSON(t, h, http.MethodPost, "/live/transcript", token,
		`{"sessionId":"`+sessionID+`","transcriptChunk":"`+long+`","timeIntoCall":60}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = doJSON(t, h, http.MethodPost, "/live/end", token, `{"sessionId":"`+sessionID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, body["callId"])

	callID := body["callId"].(string)
	call, err := mem.GetCall(context.Background(), callID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 60, call.OverallScore)
}

func TestEndSession_NotFound(t *testing.T) {
	h, _ := newTestServer(t)
	token := authToken(t, "u1")
	rec, _ := doJSON(t, h, http.MethodPost, "/live/end", token, `{"sessionId":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyzeTranscriptEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	token := authToken(t, "u1")

	rec, _ := doJSON(t, h, http.MethodPost, "/calls/analyze-transcript", token, `{"transcript":"too short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	long := strings.Repeat("tell me about your current process. ", 3)
	rec, body := doJSON(t, h, http.MethodPost, "/calls/analyze-transcript", token,
		`{"transcript":"`+long+`","durationSeconds":120}`)
	require.Equal(t, http.StatusOK, rec.Code)
	call := body["call"].(map[string]interface{})
	assert.Equal(t, float64(60), call["overallScore"])

	// The call shows up in the listing with pagination metadata.
	rec, body = doJSON(t, h, http.MethodGet, "/calls?limit=10", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["calls"], 1)
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(1), pagination["total"])
	assert.Equal(t, false, pagination["hasMore"])
}

func TestGetCall_NotFound(t *testing.T) {
	h, _ := newTestServer(t)
	rec, _ := doJSON(t, h, http.MethodGet, "/calls/ghost", authToken(t, "u1"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteCall(t *testing.T) {
	h, mem := newTestServer(t)
	token := authToken(t, "u1")
	require.NoError(t, mem.CreateCall(context.Background(), &store.Call{ID: "c1", UserID: "u1", CreatedAt: time.Now()}))

	rec, _ := doJSON(t, h, http.MethodDelete, "/calls/c1", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, h, http.MethodDelete, "/calls/c1", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	token := authToken(t, "u1")

	rec, _ := doJSON(t, h, http.MethodPost, "/calls/chat", token, `{"message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := doJSON(t, h, http.MethodPost, "/calls/chat", token, `{"message":"how am i doing"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "you again?", body["response"])
}

func TestProfileEndpoint(t *testing.T) {
	h, mem := newTestServer(t)
	token := authToken(t, "u1")

	rec, _ := doJSON(t, h, http.MethodGet, "/user/profile", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, mem.IncrementCallsAnalyzed(context.Background(), "u1", 2))
	rec, body := doJSON(t, h, http.MethodGet, "/user/profile", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	profile := body["profile"].(map[string]interface{})
	assert.Equal(t, float64(2), profile["totalCallsAnalyzed"])
}

func TestDashboardEndpoint(t *testing.T) {
	h, mem := newTestServer(t)
	token := authToken(t, "u1")
	ctx := context.Background()

	require.NoError(t, mem.CreateCall(ctx, &store.Call{ID: "recent", UserID: "u1", OverallScore: 80, CreatedAt: time.Now().AddDate(0, 0, -1)}))
	require.NoError(t, mem.CreateCall(ctx, &store.Call{ID: "old", UserID: "u1", OverallScore: 40, CreatedAt: time.Now().AddDate(0, 0, -30)}))

	rec, body := doJSON(t, h, http.MethodGet, "/user/dashboard", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["recentCalls"], 2)
	weekly := body["weeklyStats"].(map[string]interface{})
	assert.Equal(t, float64(1), weekly["callCount"])
}

func TestNotesEndpoints(t *testing.T) {
	h, _ := newTestServer(t)
	token := authToken(t, "u1")

	rec, _ := doJSON(t, h, http.MethodPost, "/notes", token, `{"sessionId":"s1","content":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := doJSON(t, h, http.MethodPost, "/notes", token, `{"sessionId":"s1","content":"ask about renewal date"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	note := body["note"].(map[string]interface{})
	assert.Equal(t, "manual", note["type"])
	noteID := note["id"].(string)

	rec, body = doJSON(t, h, http.MethodGet, "/notes?sessionId=s1", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["notes"], 1)

	rec, body = doJSON(t, h, http.MethodGet, "/notes/session/s1", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["notes"], 1)

	rec, _ = doJSON(t, h, http.MethodDelete, "/notes/"+noteID, token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doJSON(t, h, http.MethodDelete, "/notes/"+noteID, token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResearchEndpoints(t *testing.T) {
	h, _ := newTestServer(t)
	token := authToken(t, "u1")

	rec, _ := doJSON(t, h, http.MethodPost, "/research", token, `{"query":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := doJSON(t, h, http.MethodPost, "/research", token, `{"sessionId":"s1","query":"who is acme corp"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	created := body["research"].(map[string]interface{})
	assert.Equal(t, "pending", created["status"])
	id := created["id"].(string)

	rec, body = doJSON(t, h, http.MethodGet, "/research/"+id, token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = doJSON(t, h, http.MethodGet, "/research?sessionId=s1", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["research"], 1)

	rec, _ = doJSON(t, h, http.MethodGet, "/research/"+id, authToken(t, "u2"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
