// Package transcribe converts raw audio bytes into text via the OpenAI
// Whisper API. Stateless.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrTranscription wraps provider rejections so callers can distinguish them
// from transport failures.
var ErrTranscription = errors.New("transcription failed")

const defaultBaseURL = "https://api.openai.com"

// extensions maps accepted mime types to the filename extension the provider
// expects on the multipart part.
var extensions = map[string]string{
	"audio/webm": "webm",
	"audio/wav":  "wav",
	"audio/mp3":  "mp3",
	"audio/mpeg": "mp3",
	"audio/mp4":  "mp4",
	"audio/m4a":  "m4a",
	"audio/ogg":  "ogg",
	"video/webm": "webm",
	"video/mp4":  "mp4",
}

// Supported reports whether the mime type can be transcribed.
func Supported(mimeType string) bool {
	_, ok := extensions[mimeType]
	return ok
}

// Segment is one timestamped span of the transcription.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is a full transcription with timing metadata.
type Result struct {
	Text            string
	DurationSeconds float64
	Segments        []Segment
}

// WhisperClient wraps the transcription endpoint.
type WhisperClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	BaseURL    string
	Logger     *logrus.Logger
}

// NewWhisperClient constructs a client for the whisper-1 model.
func NewWhisperClient(apiKey string, logger *logrus.Logger) *WhisperClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WhisperClient{
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		APIKey:     apiKey,
		Model:      "whisper-1",
		BaseURL:    defaultBaseURL,
		Logger:     logger,
	}
}

func (c *WhisperClient) post(ctx context.Context, audio []byte, mimeType, responseFormat string, extraFields map[string]string) ([]byte, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("openai api key missing")
	}
	ext, ok := extensions[mimeType]
	if !ok {
		ext = "webm"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "audio."+ext)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}
	_ = w.WriteField("model", c.Model)
	_ = w.WriteField("response_format", responseFormat)
	for k, v := range extraFields {
		_ = w.WriteField(k, v)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrTranscription, resp.StatusCode, string(data))
	}
	return data, nil
}

type verboseResponse struct {
	Text     string    `json:"text"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// Transcribe performs a full transcription with segment timestamps. Errors
// are propagated; an upload that the provider rejects fails the operation.
func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (*Result, error) {
	data, err := c.post(ctx, audio, mimeType, "verbose_json", map[string]string{
		"timestamp_granularities[]": "segment",
	})
	if err != nil {
		return nil, err
	}
	var vr verboseResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTranscription, err)
	}
	return &Result{Text: vr.Text, DurationSeconds: vr.Duration, Segments: vr.Segments}, nil
}

// TranscribeChunk transcribes a small live chunk. All failures are swallowed
// to "" so the live flow degrades to "no fragment" instead of erroring.
func (c *WhisperClient) TranscribeChunk(ctx context.Context, audio []byte, mimeType string) string {
	data, err := c.post(ctx, audio, mimeType, "text", nil)
	if err != nil {
		c.Logger.WithError(err).Warn("chunk transcription failed")
		return ""
	}
	return strings.TrimSpace(string(data))
}
