package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func messagesReply(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"content": []map[string]string{{"type": "text", "text": text}},
	})
	return string(b)
}

func testClient(srv *httptest.Server) *Client {
	c := NewClient("test-key", "test-model", nil)
	c.BaseURL = srv.URL
	c.HTTPClient = &http.Client{Timeout: 2 * time.Second}
	return c
}

func TestClient_NoKey(t *testing.T) {
	c := NewClient("", "model", nil)
	if _, err := c.Chat(context.Background(), ChatRequest{Message: "hi"}); err == nil {
		t.Fatalf("expected error with missing key")
	}
}

func TestLiveFeedback(t *testing.T) {
	cases := []struct {
		name     string
		reply    string
		wantItem bool
		wantErr  bool
	}{
		{"skip", `{"skip": true}`, false, false},
		{"feedback", `{"skip": false, "type": "warning", "text": "let them finish"}`, true, false},
		{"fenced_feedback", "```json\n{\"type\": \"critical\", \"text\": \"you just insulted the prospect\"}\n```", true, false},
		{"missing_text", `{"skip": false, "type": "warning"}`, false, true},
		{"garbage", "i have no idea what to say here", false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("x-api-key") != "test-key" {
					t.Errorf("missing x-api-key header")
				}
				if r.Header.Get("anthropic-version") == "" {
					t.Errorf("missing anthropic-version header")
				}
				fmt.Fprint(w, messagesReply(tc.reply))
			}))
			defer srv.Close()

			item, err := testClient(srv).LiveFeedback(context.Background(), LiveFeedbackRequest{
				Fragment: "so anyway our product is the best",
			})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Fatalf("expected *ParseError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantItem != (item != nil) {
				t.Fatalf("item = %v, wantItem = %v", item, tc.wantItem)
			}
		})
	}
}

func TestLiveFeedback_SendsScreenshotBlock(t *testing.T) {
	var gotBody struct {
		Messages []struct {
			Content []struct {
				Type string `json:"type"`
			} `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, messagesReply(`{"skip": true}`))
	}))
	defer srv.Close()

	_, err := testClient(srv).LiveFeedback(context.Background(), LiveFeedbackRequest{
		Fragment:   "look at this slide",
		Screenshot: "aGVsbG8=",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	content := gotBody.Messages[0].Content
	if len(content) != 2 || content[0].Type != "image" || content[1].Type != "text" {
		t.Fatalf("unexpected content blocks: %+v", content)
	}
}

func TestComplete_RetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, messagesReply("fine, here's your answer"))
	}))
	defer srv.Close()

	got, err := testClient(srv).Chat(context.Background(), ChatRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "fine, here's your answer" {
		t.Fatalf("got %q", got)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}

func TestComplete_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if _, err := testClient(srv).Chat(context.Background(), ChatRequest{Message: "hi"}); err == nil {
		t.Fatalf("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected 1 attempt, got %d", n)
	}
}

func TestGenerateNote_SkipSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, messagesReply("SKIP"))
	}))
	defer srv.Close()

	note, err := testClient(srv).GenerateNote(context.Background(), NoteRequest{Fragment: "small talk"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if note != "" {
		t.Fatalf("expected empty note, got %q", note)
	}
}

func TestFullAnalysis(t *testing.T) {
	payload := `{"overallScore": 65, "talkRatio": 70.5, "interruptionCount": 3,
		"feedback": [{"type": "warning", "text": "too much monologue"}],
		"actionItems": ["send recap email"], "overallRoast": "a masterclass in talking at people"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, messagesReply(payload))
	}))
	defer srv.Close()

	analysis, err := testClient(srv).FullAnalysis(context.Background(), FullAnalysisRequest{Transcript: "..."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if analysis.OverallScore != 65 || analysis.TalkRatio != 70.5 || analysis.InterruptionCount != 3 {
		t.Fatalf("unexpected analysis: %+v", analysis)
	}
	if len(analysis.Feedback) != 1 || analysis.Feedback[0].Kind != "warning" {
		t.Fatalf("unexpected feedback: %+v", analysis.Feedback)
	}
}
