package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// Client talks to the Anthropic Messages API.
type Client struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	BaseURL    string
	Logger     *logrus.Logger
}

// NewClient constructs a Client with sane timeouts.
func NewClient(apiKey, model string, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    defaultBaseURL,
		Logger:     logger,
	}
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// statusError marks a non-2xx response so the retry loop can decide whether
// the failure is transient.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("anthropic error: status=%d body=%s", e.code, e.body)
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// complete sends one user message and returns the concatenated text blocks of
// the reply. Rate limits and server errors are retried with exponential
// backoff, capped so the live path stays bounded.
func (c *Client) complete(ctx context.Context, system string, content []contentBlock, maxTokens int) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("anthropic api key missing")
	}

	reqBody, _ := json.Marshal(messagesRequest{
		Model:     c.Model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: content}},
	})

	var text string
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("x-api-key", c.APIKey)
		req.Header.Set("anthropic-version", anthropicVersion)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			serr := &statusError{code: resp.StatusCode, body: string(b)}
			if retryable(resp.StatusCode) {
				return serr
			}
			return backoff.Permanent(serr)
		}

		var mr messagesResponse
		if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
			return backoff.Permanent(fmt.Errorf("anthropic: decode response: %w", err))
		}
		if len(mr.Content) == 0 {
			return backoff.Permanent(fmt.Errorf("anthropic: empty content"))
		}
		var b strings.Builder
		for _, blk := range mr.Content {
			if blk.Type == "text" {
				b.WriteString(blk.Text)
			}
		}
		text = b.String()
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func textBlocks(prompt string) []contentBlock {
	return []contentBlock{{Type: "text", Text: prompt}}
}

// liveFeedbackReply covers both the skip sentinel and a feedback payload.
type liveFeedbackReply struct {
	Skip bool   `json:"skip"`
	Kind string `json:"type"`
	Text string `json:"text"`
}

// LiveFeedback asks whether the latest fragment warrants interrupting the
// call. Returns (nil, nil) when the model skips.
func (c *Client) LiveFeedback(ctx context.Context, req LiveFeedbackRequest) (*FeedbackItem, error) {
	// Image blocks go first so the prompt can reference what is on screen.
	var content []contentBlock
	if req.Screenshot != "" {
		content = append(content, contentBlock{
			Type:   "image",
			Source: &imageSource{Type: "base64", MediaType: "image/jpeg", Data: req.Screenshot},
		})
	}
	content = append(content, contentBlock{Type: "text", Text: liveFeedbackPrompt(req)})

	raw, err := c.complete(ctx, liveFeedbackSystem(req.BadHabits), content, 300)
	if err != nil {
		return nil, err
	}

	var reply liveFeedbackReply
	if err := extractJSON(raw, &reply); err != nil {
		return nil, err
	}
	if reply.Skip {
		return nil, nil
	}
	if strings.TrimSpace(reply.Text) == "" {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("feedback without text")}
	}
	return &FeedbackItem{Kind: reply.Kind, Text: reply.Text}, nil
}

// FullAnalysis scores a finished call. Extraction failure is a hard error.
func (c *Client) FullAnalysis(ctx context.Context, req FullAnalysisRequest) (*CallAnalysis, error) {
	raw, err := c.complete(ctx, systemPrompt, textBlocks(fullAnalysisPrompt(req)), 2000)
	if err != nil {
		return nil, err
	}
	var analysis CallAnalysis
	if err := extractJSON(raw, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// ProfileUpdate produces refreshed coaching lists for the rolling profile.
func (c *Client) ProfileUpdate(ctx context.Context, req ProfileUpdateRequest) (*ProfileUpdate, error) {
	raw, err := c.complete(ctx, systemPrompt, textBlocks(profileUpdatePrompt(req)), 500)
	if err != nil {
		return nil, err
	}
	var update ProfileUpdate
	if err := extractJSON(raw, &update); err != nil {
		return nil, err
	}
	return &update, nil
}

// GenerateNote returns a short note for the fragment, or "" when the model
// decides nothing notable happened.
func (c *Client) GenerateNote(ctx context.Context, req NoteRequest) (string, error) {
	raw, err := c.complete(ctx, "", textBlocks(notePrompt(req)), 200)
	if err != nil {
		return "", err
	}
	if raw == noteSkipSentinel {
		return "", nil
	}
	return raw, nil
}

// Chat answers a single coaching question in character.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	return c.complete(ctx, chatSystem, textBlocks(chatPrompt(req)), 500)
}

// Research produces a compact briefing for a live research query.
func (c *Client) Research(ctx context.Context, query string) (string, error) {
	return c.complete(ctx, systemPrompt, textBlocks(researchPrompt(query)), 500)
}

var _ Oracle = (*Client)(nil)
