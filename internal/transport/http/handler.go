package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"town-challenge-service/internal/app"
	"town-challenge-service/internal/domain"
)

type contextKey string

const userIDKey contextKey = "userID"

// Handler exposes the challenge wire contract over REST, plus the websocket
// play endpoint when one is provided.
type Handler struct {
	service *app.ChallengeService
	ws      *WSHandler
	log     *logrus.Logger
}

func NewHandler(service *app.ChallengeService, ws *WSHandler, log *logrus.Logger) *Handler {
	return &Handler{service: service, ws: ws, log: log}
}

// Router assembles the public routes. Identity is resolved upstream; the
// fronting auth layer passes the user through the X-User-ID header.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	if h.ws != nil {
		r.Get("/challenge/play", h.ws.ServePlay)
	}
	r.Group(func(r chi.Router) {
		r.Use(h.requireUser)
		r.Post("/challenge/start", h.start)
		r.Post("/challenge/answer", h.answer)
		r.Post("/challenge/finish", h.finish)
		r.Get("/challenge/status", h.status)
	})
	return r
}

func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "MISSING_USER", "missing X-User-ID header")
			return
		}
		next.ServeHTTP(w, withUserID(r, userID))
	})
}

type startRequest struct {
	ChallengeType string `json:"challengeType"`
	Difficulty    string `json:"difficulty"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	result, err := h.service.Start(r.Context(), userID(r), req.ChallengeType, domain.Difficulty(req.Difficulty))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type answerRequest struct {
	SessionID    string `json:"sessionId"`
	ProblemIndex int    `json:"problemIndex"`
	Value        string `json:"value"`
}

type answerResponse struct {
	Correct bool `json:"correct"`
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	correct, err := h.service.SubmitAnswer(r.Context(), userID(r), req.SessionID, req.ProblemIndex, req.Value)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Correct: correct})
}

type finishRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request) {
	var req finishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	result, err := h.service.Finish(r.Context(), userID(r), req.SessionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	challengeType := r.URL.Query().Get("challengeType")
	if challengeType == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "missing challengeType")
		return
	}
	result, err := h.service.Status(r.Context(), userID(r), challengeType)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeServiceError maps the domain taxonomy onto the wire; storage errors
// never reach clients verbatim.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, "QUOTA_EXCEEDED", "daily play quota exceeded")
	case errors.Is(err, domain.ErrDuplicateAnswer):
		writeError(w, http.StatusConflict, "DUPLICATE_ANSWER", "problem already answered")
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAlreadyGraded):
		writeError(w, http.StatusConflict, "SESSION_EXPIRED", "session expired or already finished")
	case errors.Is(err, domain.ErrOutOfRange):
		writeError(w, http.StatusBadRequest, "OUT_OF_RANGE", "problem index out of range")
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrChallengeNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown session or challenge")
	case errors.Is(err, domain.ErrUpstreamFailure):
		writeError(w, http.StatusBadGateway, "UPSTREAM_FAILURE", "reward crediting delayed")
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func withUserID(r *http.Request, id string) *http.Request {
	return r.WithContext(contextWithUser(r, id))
}
