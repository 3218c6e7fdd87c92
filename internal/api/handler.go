package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/RichardoC/portfolio-chat/internal/db"
	"github.com/RichardoC/portfolio-chat/internal/llm"
	"github.com/RichardoC/portfolio-chat/internal/models"
	"github.com/RichardoC/portfolio-chat/internal/sse"
	"github.com/RichardoC/portfolio-chat/internal/suggest"
)

const maxBodyBytes = 64 << 10

// ChatService starts proxied turns.
type ChatService interface {
	Start(ctx context.Context, req models.ChatRequest, clientKey string) (*llm.Turn, error)
	Ready() error
}

// FeedbackStore records thumbs up/down on assistant messages.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, entry *db.FeedbackEntry) error
}

type Handler struct {
	chat     ChatService
	suggest  *suggest.Engine
	feedback FeedbackStore
	logger   *zap.Logger

	trustForwarded bool
}

// NewHandler wires the endpoints. feedback may be nil, in which case
// feedback is only logged.
func NewHandler(chat ChatService, engine *suggest.Engine, feedback FeedbackStore, logger *zap.Logger) *Handler {
	if engine == nil {
		engine = suggest.New(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chat:     chat,
		suggest:  engine,
		feedback: feedback,
		logger:   logger,
	}
}

// TrustForwarded makes budgeting key on X-Forwarded-For. Enable it only
// when a reverse proxy in front of the server sets the header.
func (h *Handler) TrustForwarded(on bool) *Handler {
	h.trustForwarded = on
	return h
}

// HandleChat answers POST /api/chat with a stream of data frames, or with a
// JSON error when the turn cannot start.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Debug("invalid chat body", zap.Error(err), zap.String("request_id", requestID(r.Context())))
		writeError(w, http.StatusBadRequest, models.CodeInvalidRequest, llm.MsgInvalidRequest)
		return
	}

	client := h.clientKey(r)
	if req.Feedback != nil && strings.TrimSpace(req.Message) == "" {
		h.recordFeedback(w, r, req.Feedback, client)
		return
	}

	turn, err := h.chat.Start(r.Context(), req, client)
	if err != nil {
		var lerr *llm.Error
		if !errors.As(err, &lerr) {
			lerr = &llm.Error{Code: models.CodeUpstreamUnavailable, Message: llm.MsgUnavailable, Err: err}
		}
		fields := []zap.Field{
			zap.Error(err),
			zap.String("code", string(lerr.Code)),
			zap.String("client", client),
			zap.String("request_id", requestID(r.Context())),
		}
		if lerr.Status() >= http.StatusInternalServerError {
			h.logger.Error("chat request failed", fields...)
		} else {
			h.logger.Info("chat request rejected", fields...)
		}
		writeError(w, lerr.Status(), lerr.Code, lerr.Message)
		return
	}
	defer turn.Close()

	if err := turn.Relay(r.Context(), sse.NewWriter(w)); err != nil {
		h.logger.Warn("chat stream ended early",
			zap.Error(err),
			zap.String("response_id", turn.ResponseID()),
			zap.String("request_id", requestID(r.Context())),
		)
	}
}

func (h *Handler) recordFeedback(w http.ResponseWriter, r *http.Request, fb *models.FeedbackRequest, client string) {
	if fb.Type != models.FeedbackUp && fb.Type != models.FeedbackDown {
		writeError(w, http.StatusBadRequest, models.CodeInvalidRequest, "Feedback type must be up or down")
		return
	}
	h.logger.Info("feedback received",
		zap.String("type", string(fb.Type)),
		zap.Int("message_chars", len(fb.Message)),
		zap.String("client", client),
	)
	if h.feedback != nil {
		entry := &db.FeedbackEntry{Kind: fb.Type, Message: fb.Message, Client: client}
		if err := h.feedback.SaveFeedback(r.Context(), entry); err != nil {
			// Feedback is best effort; the visitor is not told.
			h.logger.Error("failed to save feedback", zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

// HandleSuggestions answers GET /api/suggestions?page=&project=.
func (h *Handler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var items []string
	if project := strings.TrimSpace(q.Get("project")); project != "" {
		items = h.suggest.ProjectSuggestions(project)
	} else {
		items = h.suggest.Suggestions(q.Get("page"))
	}
	writeJSON(w, http.StatusOK, suggestionsResponse{Suggestions: items})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.Ready(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "misconfigured"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code models.ErrorCode, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: code, Message: message})
}

// clientKey identifies the visitor for budgeting. Behind a trusted proxy
// it is the right-most forwarded hop, the address that proxy saw; entries
// to its left are client supplied. Otherwise it is the peer address.
func (h *Handler) clientKey(r *http.Request) string {
	if h.trustForwarded {
		fwd := r.Header.Values("X-Forwarded-For")
		if len(fwd) > 0 {
			last := fwd[len(fwd)-1]
			if i := strings.LastIndex(last, ","); i >= 0 {
				last = last[i+1:]
			}
			if last = strings.TrimSpace(last); last != "" {
				return last
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
