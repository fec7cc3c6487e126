package board

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"message-board/board/application"
	"message-board/board/domain"
	"message-board/ratelimit"
	rldomain "message-board/ratelimit/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// maxRequestBody cobre o corpo máximo (1000 runes de até 4 bytes) com folga.
const maxRequestBody = 16 << 10

// Board é o que o handler precisa do application.Service.
type Board interface {
	PostMessage(ctx context.Context, in application.PostMessageInput) (application.PostMessageResult, error)
	GetRateLimitStatus(ctx context.Context, userID string) (rldomain.Info, error)
	ResetUserLimit(ctx context.Context, userID string) error
	DeleteMessage(ctx context.Context, messageID string) (bool, error)
	CreateUser(ctx context.Context, in application.CreateUserInput) (domain.User, error)
	GetUser(ctx context.Context, userID string) (domain.User, error)
	ListMessages(ctx context.Context, userID string) ([]domain.Message, error)
}

type Handler struct {
	svc Board
	log *zap.Logger
	now func() time.Time
}

func NewHandler(svc Board, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log, now: time.Now}
}

// POST /users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.svc.CreateUser(r.Context(), application.CreateUserInput{Name: req.Name, Email: req.Email})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// GET /users/{userID}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// GET /users/{userID}/messages
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.ListMessages(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Items: lo.Map(msgs, func(m domain.Message, _ int) messageResponse {
		return toMessageResponse(m)
	})})
}

// POST /users/{userID}/messages
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.PostMessage(r.Context(), application.PostMessageInput{
		UserID: chi.URLParam(r, "userID"),
		Body:   req.Body,
	})

	if err == nil {
		ratelimit.SetHeaders(w.Header(), res.RateLimit, h.now())
		writeJSON(w, http.StatusCreated, postMessageResponse{
			Success:   true,
			Message:   lo.ToPtr(toMessageResponse(*res.Message)),
			RateLimit: toRateLimitResponse(res.RateLimit),
		})
		return
	}

	// Limit zero: falhou antes do rate limit, não há cota para mostrar.
	if res.RateLimit.Limit == 0 {
		h.writeError(w, r, err)
		return
	}
	e := domain.AsError(err)
	if e.Kind == domain.KindInternal {
		h.log.Error("post message failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	ratelimit.SetHeaders(w.Header(), res.RateLimit, h.now())
	body := toErrorBody(e)
	writeJSON(w, statusFor(e.Kind), postMessageResponse{
		RateLimit: toRateLimitResponse(res.RateLimit),
		Error:     &body,
	})
}

// GET /users/{userID}/rate-limit
func (h *Handler) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.GetRateLimitStatus(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// Status nunca bloqueia; Retry-After não faz sentido aqui.
	info.Allowed = true
	ratelimit.SetHeaders(w.Header(), info, h.now())
	writeJSON(w, http.StatusOK, toRateLimitResponse(info))
}

// DELETE /users/{userID}/rate-limit
func (h *Handler) ResetRateLimit(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ResetUserLimit(r.Context(), chi.URLParam(r, "userID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /messages/{messageID}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageID")
	ok, err := h.svc.DeleteMessage(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		h.writeError(w, r, domain.NotFound("message", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, domain.Validation("body", "request body too large"))
			return false
		}
		h.writeError(w, r, domain.Validation("body", "invalid json"))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := domain.AsError(err)
	if e.Kind == domain.KindInternal {
		h.log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, statusFor(e.Kind), errorResponse{Error: toErrorBody(e)})
}

func statusFor(k domain.Kind) int {
	switch k {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
