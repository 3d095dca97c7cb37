package http

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/TurnkeyIsaiah/Brutus/internal/analysis"
	"github.com/TurnkeyIsaiah/Brutus/internal/live"
	mw "github.com/TurnkeyIsaiah/Brutus/internal/middleware"
	"github.com/TurnkeyIsaiah/Brutus/internal/research"
	"github.com/TurnkeyIsaiah/Brutus/internal/store"
	"github.com/TurnkeyIsaiah/Brutus/internal/transcribe"
)

// maxUploadBytes caps audio uploads at 500MB.
const maxUploadBytes = 500 << 20

// Handlers bundles the route handlers and their service dependencies.
type Handlers struct {
	Live     *live.Coordinator
	Analysis *analysis.Service
	Whisper  *transcribe.WhisperClient
	Research *research.Service
	Store    store.Store
	Logger   *logrus.Logger
}

// NewHandlers constructs the HTTP handlers.
func NewHandlers(coordinator *live.Coordinator, svc *analysis.Service, whisper *transcribe.WhisperClient, res *research.Service, st store.Store, logger *logrus.Logger) Handlers {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return Handlers{Live: coordinator, Analysis: svc, Whisper: whisper, Research: res, Store: st, Logger: logger}
}

// Register mounts all routes. Everything except the health check requires a
// valid bearer token.
func (h Handlers) Register(e *echo.Echo, jwtSecret []byte) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "message": "brutus is watching."})
	})

	auth := mw.JWT(jwtSecret)

	lv := e.Group("/live", auth)
	lv.POST("/start", h.startSession)
	lv.GET("/active", h.activeSession)
	lv.POST("/transcript", h.transcriptChunk)
	lv.POST("/end", h.endSession)
	lv.POST("/cancel", h.cancelSession)

	calls := e.Group("/calls", auth)
	calls.POST("/analyze", h.analyzeUpload)
	calls.POST("/analyze-transcript", h.analyzeTranscript)
	calls.GET("", h.listCalls)
	calls.GET("/:id", h.getCall)
	calls.DELETE("/:id", h.deleteCall)
	calls.POST("/chat", h.chat)

	user := e.Group("/user", auth)
	user.GET("/profile", h.profile)
	user.GET("/dashboard", h.dashboard)

	notes := e.Group("/notes", auth)
	notes.POST("", h.createNote)
	notes.GET("", h.listNotes)
	notes.GET("/session/:sessionId", h.sessionNotes)
	notes.DELETE("/:id", h.deleteNote)

	res := e.Group("/research", auth)
	res.POST("", h.createResearch)
	res.GET("", h.listResearch)
	res.GET("/:id", h.getResearch)
}

func errJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"error": echo.Map{"message": msg}})
}

// ==================== LIVE SESSION ====================

func (h Handlers) startSession(c echo.Context) error {
	sess, err := h.Live.StartSession(c.Request().Context(), mw.UserID(c))
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "Failed to start session")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Live monitoring started. brutus is watching.",
		"session": echo.Map{
			"id":        sess.ID,
			"startedAt": sess.StartedAt,
			"status":    sess.Status,
		},
	})
}

func (h Handlers) activeSession(c echo.Context) error {
	sess, err := h.Live.GetActiveSession(c.Request().Context(), mw.UserID(c))
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "Failed to get active session")
	}
	if sess == nil {
		return c.JSON(http.StatusOK, echo.Map{"active": false, "session": nil})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"active": true,
		"session": echo.Map{
			"id":            sess.ID,
			"startedAt":     sess.StartedAt,
			"feedbackCount": len(sess.FeedbackGiven),
		},
	})
}

type transcriptRequest struct {
	SessionID       string  `json:"sessionId"`
	TranscriptChunk string  `json:"transcriptChunk"`
	TimeIntoCall    float64 `json:"timeIntoCall"`
	AudioData       string  `json:"audioData"`
	MimeType        string  `json:"mimeType"`
	Screenshot      string  `json:"screenshot"`
	AINotesEnabled  bool    `json:"aiNotesEnabled"`
}

// Fragment converts the wire request into a coordinator fragment, decoding
// the base64 audio payload if present.
func (r transcriptRequest) Fragment() live.Fragment {
	var audio []byte
	if r.AudioData != "" {
		audio, _ = base64.StdEncoding.DecodeString(r.AudioData)
	}
	mime := r.MimeType
	if mime == "" {
		mime = "audio/webm"
	}
	return live.Fragment{
		SessionID:    r.SessionID,
		Text:         r.TranscriptChunk,
		TimeIntoCall: r.TimeIntoCall,
		Audio:        audio,
		MimeType:     mime,
		Screenshot:   r.Screenshot,
		NotesEnabled: r.AINotesEnabled,
	}
}

func (h Handlers) transcriptChunk(c echo.Context) error {
	var req transcriptRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.SessionID == "" {
		return errJSON(c, http.StatusBadRequest, "Session ID is required")
	}
	feedback, err := h.Live.HandleFragment(c.Request().Context(), mw.UserID(c), req.Fragment())
	if err != nil {
		if errors.Is(err, live.ErrMissingSessionID) {
			return errJSON(c, http.StatusBadRequest, "Session ID is required")
		}
		return errJSON(c, http.StatusInternalServerError, "Failed to process transcript chunk")
	}
	msg := "No feedback at this time"
	if feedback != nil {
		msg = "Brutus has feedback"
	}
	return c.JSON(http.StatusOK, echo.Map{"feedback": feedback, "message": msg})
}

type sessionIDRequest struct {
	SessionID string `json:"sessionId"`
}

func (h Handlers) endSession(c echo.Context) error {
	var req sessionIDRequest
	if err := c.Bind(&req); err != nil || req.SessionID == "" {
		return errJSON(c, http.StatusBadRequest, "Session ID is required")
	}
	result, err := h.Live.EndSession(c.Request().Context(), mw.UserID(c), req.SessionID)
	if err != nil {
		if errors.Is(err, live.ErrSessionNotFound) {
			return errJSON(c, http.StatusNotFound, "Session not found")
		}
		h.Logger.WithError(err).Error("end session failed")
		return errJSON(c, http.StatusInternalServerError, "Failed to end session: "+err.Error())
	}
	msg := "Session ended. too short to analyze."
	var callID interface{}
	if result.CallID != "" {
		msg = "Session ended and analyzed. check your results."
		callID = result.CallID
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":         msg,
		"callId":          callID,
		"analysis":        result.Analysis,
		"durationSeconds": result.DurationSeconds,
	})
}

func (h Handlers) cancelSession(c echo.Context) error {
	var req sessionIDRequest
	if err := c.Bind(&req); err != nil || req.SessionID == "" {
		return errJSON(c, http.StatusBadRequest, "Session ID is required")
	}
	if err := h.Live.CancelSession(c.Request().Context(), mw.UserID(c), req.SessionID); err != nil {
		if errors.Is(err, live.ErrSessionNotFound) {
			return errJSON(c, http.StatusNotFound, "Session not found")
		}
		return errJSON(c, http.StatusInternalServerError, "Failed to cancel session")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Session cancelled. brutus will pretend he didn't see anything.",
	})
}

// ==================== CALLS ====================

func callSummaryJSON(call *store.Call) echo.Map {
	return echo.Map{
		"id":                call.ID,
		"durationSeconds":   call.DurationSeconds,
		"overallScore":      call.OverallScore,
		"talkRatio":         call.TalkRatio,
		"interruptionCount": call.InterruptionCount,
		"tags":              call.Tags,
		"createdAt":         call.CreatedAt,
	}
}

func (h Handlers) analyzeUpload(c echo.Context) error {
	file, err := c.FormFile("audio")
	if err != nil {
		return errJSON(c, http.StatusBadRequest, "No audio file provided")
	}
	if file.Size > maxUploadBytes {
		return errJSON(c, http.StatusBadRequest, "File too large")
	}
	mime := file.Header.Get("Content-Type")
	if !transcribe.Supported(mime) {
		return errJSON(c, http.StatusBadRequest, "Invalid file type. Supported: mp3, wav, mp4, webm, m4a, ogg")
	}

	src, err := file.Open()
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "Failed to read upload")
	}
	defer src.Close()
	audio, err := io.ReadAll(src)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "Failed to read upload")
	}

	ctx := c.Request().Context()
	transcription, err := h.Whisper.Transcribe(ctx, audio, mime)
	if err != nil {
		h.Logger.WithError(err).Error("upload transcription failed")
		return errJSON(c, http.StatusBadGateway, "Failed to transcribe audio")
	}
	if len(strings.TrimSpace(transcription.Text)) < 50 {
		return errJSON(c, http.StatusBadRequest, "Audio too short or unclear to analyze")
	}

	call, result, err := h.Analysis.AnalyzeAndSaveCall(ctx, mw.UserID(c), transcription.Text, int(transcription.DurationSeconds))
	if err != nil {
		h.Logger.WithError(err).Error("upload analysis failed")
		return errJSON(c, http.StatusInternalServerError, "Failed to analyze call")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Call analyzed. brace yourself.",
		"call":    callSummaryJSON(call),
		"analysis": echo.Map{
			"feedback":     result.Feedback,
			"badMoments":   result.BadMoments,
			"goodMoments":  result.GoodMoments,
			"actionItems":  result.ActionItems,
			"overallRoast": result.OverallRoast,
		},
		"transcript": transcription.Text,
	})
}

type analyzeTranscriptRequest struct {
	Transcript      string `json:"transcript"`
	DurationSeconds int    `json:"durationSeconds"`
}

func (h Handlers) analyzeTranscript(c echo.Context) error {
	var req analyzeTranscriptRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if len(strings.TrimSpace(req.Transcript)) < 50 {
		return errJSON(c, http.StatusBadRequest, "Transcript too short to analyze (minimum 50 characters)")
	}
	call, result, err := h.Analysis.AnalyzeAndSaveCall(c.Request().Context(), mw.UserID(c), req.Transcript, req.DurationSeconds)
	if err != nil {
		h.Logger.WithError(err).Error("transcript analysis failed")
		return errJSON(c, http.StatusInternalServerError, "Failed to analyze transcript")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":  "Transcript analyzed.",
		"call":     callSummaryJSON(call),
		"analysis": result,
	})
}

func (h Handlers) listCalls(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}
	tag := c.QueryParam("tag")

	calls, total, err := h.Store.ListCalls(c.Request().Context(), mw.UserID(c), limit, offset, tag)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "Failed to list calls")
	}
	out := make([]echo.Map, 0, len(calls))
	for _, call := range calls {
		out = append(out, callSummaryJSON(call))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"calls": out,
		"pagination": echo.Map{
			"total":   total,
			"limit":   limit,
			"offset":  offset,
			"hasMore": offset+len(calls) < total,
		},
	})
}

func (h Handlers) getCall(c echo.Context) error {
	call, err := h.Store.GetCall(c.Request().Context(), c.Param("id"), mw.UserID(c))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errJSON(c, http.StatusNotFound, "Call not found")
		}
		return errJSON(c, http.StatusInternalServerError, "Failed to get call")
	}
	return c.JSON(http.StatusOK, echo.Map{"call": call})
}

func (h Handlers) deleteCall(c echo.Context) error {
	err := h.Analysis.DeleteCall(c.Request().Context(), mw.UserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errJSON(c, http.StatusNotFound, "Call not found")
		}
		return errJSON(c, http.StatusInternalServerError, "Failed to delete call")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Call deleted. brutus forgets nothing though."})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h Handlers) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		return errJSON(c, http.StatusBadRequest, "Message is required")
	}
	response := h.Analysis.Chat(c.Request().Context(), mw.UserID(c), req.Message)
	return c.JSON(http.StatusOK, echo.Map{"response": response})
}

// ==================== USER ====================

func (h Handlers) profile(c echo.Context) error {
	p, err := h.Store.GetProfile(c.Request().Context(), mw.UserID(c))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errJSON(c, http.StatusNotFound, "Profile not found")
		}
		return errJSON(c, http.StatusInternalServerError, "Failed to get profile")
	}
	return c.JSON(http.StatusOK, echo.Map{"profile": p})
}

func (h Handlers) dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	userID := mw.UserID(c)

	var profile *store.UserProfile
	if p, err := h.Store.GetProfile(ctx, userID); err == nil {
		profile = p
	}

	recent, err := h.Store.ListRecentCalls(ctx, userID, 5)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "Failed to load dashboard")
	}
	recentOut := make([]echo.Map, 0, len(recent))
	for _, call := range recent {
		entry := callSummaryJSON(call)
		entry["feedback"] = call.Feedback
		recentOut = append(recentOut, entry)
	}

	weekAgo := time.Now().AddDate(0, 0, -7)
	weekly, err := h.Store.ListCallsSince(ctx, userID, weekAgo)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "Failed to load dashboard")
	}
	scores := make([]echo.Map, 0, len(weekly))
	for _, call := range weekly {
		scores = append(scores, echo.Map{"score": call.OverallScore, "date": call.CreatedAt})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"profile":     profile,
		"recentCalls": recentOut,
		"weeklyStats": echo.Map{
			"callCount": len(weekly),
			"scores":    scores,
		},
	})
}

// ==================== NOTES ====================

type noteRequest struct {
	SessionID string     `json:"sessionId"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	Timestamp *time.Time `json:"timestamp"`
}

func (h Handlers) createNote(c echo.Context) error {
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.SessionID == "" || strings.TrimSpace(req.Content) == "" {
		return errJSON(c, http.StatusBadRequest, "sessionId and content are required")
	}
	noteType := store.NoteManual
	if req.Type == string(store.NoteAI) {
		noteType = store.NoteAI
	}
	ts := time.Now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	note := &store.Note{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		UserID:    mw.UserID(c),
		Content:   req.Content,
		Type:      noteType,
		Timestamp: ts,
	}
	if err := h.Store.CreateNote(c.Request().Context(), note); err != nil {
		return errJSON(c, http.StatusInternalServerError, "Failed to create note")
	}
	return c.JSON(http.StatusOK, echo.Map{"note": note})
}

func (h Handlers) listNotes(c echo.Context) error {
	notes, err := h.Store.ListNotes(c.Request().Context(), mw.UserID(c), c.QueryParam("sessionId"))
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "Failed to get notes")
	}
	return c.JSON(http.StatusOK, echo.Map{"notes": notes})
}

func (h Handlers) sessionNotes(c echo.Context) error {
	notes, err := h.Store.ListSessionNotes(c.Request().Context(), mw.UserID(c), c.Param("sessionId"))
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "Failed to get session notes")
	}
	return c.JSON(http.StatusOK, echo.Map{"notes": notes})
}

func (h Handlers) deleteNote(c echo.Context) error {
	err := h.Store.DeleteNote(c.Request().Context(), c.Param("id"), mw.UserID(c))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errJSON(c, http.StatusNotFound, "Note not found")
		}
		return errJSON(c, http.StatusInternalServerError, "Failed to delete note")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// ==================== RESEARCH ====================

type researchRequest struct {
	SessionID   string     `json:"sessionId"`
	Query       string     `json:"query"`
	RequestedAt *time.Time `json:"requestedAt"`
}

func (h Handlers) createResearch(c echo.Context) error {
	var req researchRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		return errJSON(c, http.StatusBadRequest, "query is required")
	}
	var requestedAt time.Time
	if req.RequestedAt != nil {
		requestedAt = *req.RequestedAt
	}
	r, err := h.Research.Create(c.Request().Context(), mw.UserID(c), req.SessionID, req.Query, requestedAt)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "Failed to create research request")
	}
	return c.JSON(http.StatusOK, echo.Map{"research": r})
}

func (h Handlers) listResearch(c echo.Context) error {
	status := store.ResearchStatus(c.QueryParam("status"))
	items, err := h.Research.List(c.Request().Context(), mw.UserID(c), c.QueryParam("sessionId"), status)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "Failed to get research")
	}
	return c.JSON(http.StatusOK, echo.Map{"research": items})
}

func (h Handlers) getResearch(c echo.Context) error {
	r, err := h.Research.Get(c.Request().Context(), mw.UserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errJSON(c, http.StatusNotFound, "Research not found")
		}
		return errJSON(c, http.StatusInternalServerError, "Failed to get research")
	}
	return c.JSON(http.StatusOK, echo.Map{"research": r})
}
