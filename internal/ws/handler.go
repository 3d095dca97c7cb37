// Package ws exposes the live coaching channel over WebSocket. Clients
// stream transcript chunks (optionally with audio and screenshots) and
// receive feedback frames pushed back on the same connection.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/TurnkeyIsaiah/Brutus/internal/live"
	"github.com/TurnkeyIsaiah/Brutus/internal/middleware"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 10 << 20
)

// Handler upgrades authenticated requests and runs the message loop.
type Handler struct {
	Live      *live.Coordinator
	JWTSecret []byte
	Logger    *logrus.Logger

	upgrader websocket.Upgrader
}

// NewHandler builds a WebSocket handler bound to the coordinator.
func NewHandler(coordinator *live.Coordinator, jwtSecret []byte, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		Live:      coordinator,
		JWTSecret: jwtSecret,
		Logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type            string  `json:"type"`
	SessionID       string  `json:"sessionId"`
	TranscriptChunk string  `json:"transcriptChunk"`
	TimeIntoCall    float64 `json:"timeIntoCall"`
	AudioData       string  `json:"audioData"`
	MimeType        string  `json:"mimeType"`
	Screenshot      string  `json:"screenshot"`
	AINotesEnabled  bool    `json:"aiNotesEnabled"`
}

type outboundMessage struct {
	Type     string      `json:"type"`
	Message  string      `json:"message,omitempty"`
	Feedback interface{} `json:"feedback,omitempty"`
}

// Serve is the echo route handler for GET /ws.
func (h *Handler) Serve(c echo.Context) error {
	r := c.Request()
	token := middleware.BearerToken(r)
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}
	userID, err := middleware.ParseToken(h.JWTSecret, token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), r, nil)
	if err != nil {
		return err
	}
	go h.run(conn, userID)
	return nil
}

func (h *Handler) run(conn *websocket.Conn, userID string) {
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	log := h.Logger.WithField("user", userID)
	h.send(conn, outboundMessage{Type: "connected", Message: "brutus is listening."})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("websocket closed unexpectedly")
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.send(conn, outboundMessage{Type: "error", Message: "invalid message"})
			continue
		}

		switch msg.Type {
		case "ping":
			h.send(conn, outboundMessage{Type: "pong"})
		case "transcript_chunk", "monitoring_data":
			h.handleFragment(conn, userID, msg, log)
		default:
			h.send(conn, outboundMessage{Type: "error", Message: "unknown message type: " + msg.Type})
		}
	}
}

func (h *Handler) handleFragment(conn *websocket.Conn, userID string, msg inboundMessage, log *logrus.Entry) {
	var audio []byte
	if msg.AudioData != "" {
		decoded, err := base64.StdEncoding.DecodeString(msg.AudioData)
		if err != nil {
			h.send(conn, outboundMessage{Type: "error", Message: "invalid audio encoding"})
			return
		}
		audio = decoded
	}
	mime := msg.MimeType
	if mime == "" {
		mime = "audio/webm"
	}

	feedback, err := h.Live.HandleFragment(context.Background(), userID, live.Fragment{
		SessionID:    msg.SessionID,
		Text:         msg.TranscriptChunk,
		TimeIntoCall: msg.TimeIntoCall,
		Audio:        audio,
		MimeType:     mime,
		Screenshot:   msg.Screenshot,
		NotesEnabled: msg.AINotesEnabled,
	})
	if err != nil {
		log.WithError(err).Warn("fragment processing failed")
		h.send(conn, outboundMessage{Type: "error", Message: "failed to process chunk"})
		return
	}
	if feedback != nil {
		h.send(conn, outboundMessage{Type: "brutus_feedback", Feedback: feedback})
	}
}

func (h *Handler) send(conn *websocket.Conn, msg outboundMessage) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.Logger.WithError(err).Debug("websocket write failed")
	}
}
