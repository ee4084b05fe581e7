package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"town-challenge-service/internal/app"
	"town-challenge-service/internal/domain"
)

// WSHandler runs one timed challenge session over a single websocket:
// start on connect, per-answer feedback, terminal result on finish or when
// the last problem is answered. The socket is transport only; grading and
// rewards stay with the orchestrator.
type WSHandler struct {
	service  *app.ChallengeService
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ChallengeService, log *logrus.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wsAnswerPayload struct {
	ProblemIndex int    `json:"problemIndex"`
	Value        string `json:"value"`
}

type wsAnswerResult struct {
	ProblemIndex int  `json:"problemIndex"`
	Correct      bool `json:"correct"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type wsErrorPayload struct {
	Message string `json:"message"`
}

// ServePlay upgrades the request and drives a full session over the socket.
func (h *WSHandler) ServePlay(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	challengeType := r.URL.Query().Get("challengeType")
	difficulty := domain.Difficulty(r.URL.Query().Get("difficulty"))
	if userID == "" || challengeType == "" || difficulty == "" {
		http.Error(w, "missing userId, challengeType, or difficulty", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	started, err := h.service.Start(r.Context(), userID, challengeType, difficulty)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: wsErrorPayload{Message: clientMessage(err)}})
		return
	}
	if err := conn.WriteJSON(outboundMessage{Type: "started", Payload: started}); err != nil {
		return
	}

	answered := 0
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "answer":
			var payload wsAnswerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: wsErrorPayload{Message: "invalid answer payload"}})
				continue
			}
			correct, err := h.service.SubmitAnswer(r.Context(), userID, started.SessionID, payload.ProblemIndex, payload.Value)
			if err != nil {
				_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: wsErrorPayload{Message: clientMessage(err)}})
				continue
			}
			answered++
			if err := conn.WriteJSON(outboundMessage{Type: "answerResult", Payload: wsAnswerResult{
				ProblemIndex: payload.ProblemIndex,
				Correct:      correct,
			}}); err != nil {
				return
			}
			if answered >= started.MaxProblems {
				h.sendResult(conn, r, userID, started.SessionID)
				return
			}
		case "finish":
			h.sendResult(conn, r, userID, started.SessionID)
			return
		default:
			_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: wsErrorPayload{Message: "unsupported message type"}})
		}
	}
}

func (h *WSHandler) sendResult(conn *websocket.Conn, r *http.Request, userID, sessionID string) {
	result, err := h.service.Finish(r.Context(), userID, sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: wsErrorPayload{Message: clientMessage(err)}})
		return
	}
	_ = conn.WriteJSON(outboundMessage{Type: "result", Payload: result})
}

// clientMessage keeps internal errors off the wire.
func clientMessage(err error) string {
	for _, known := range []error{
		domain.ErrQuotaExceeded,
		domain.ErrInvalidState,
		domain.ErrDuplicateAnswer,
		domain.ErrOutOfRange,
		domain.ErrSessionNotFound,
		domain.ErrChallengeNotFound,
		domain.ErrUpstreamFailure,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}
