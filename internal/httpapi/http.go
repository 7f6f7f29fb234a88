package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mahirjain10/image-optimizer/internal/queue/handlers"
	"github.com/mahirjain10/image-optimizer/internal/queue/models"
)

const maxNotificationBytes = 1 << 20

type NotificationHandler interface {
	HandleNotification(ctx context.Context, body []byte) ([]handlers.EventResult, error)
}

// HTTPHandler receives bucket notifications pushed by a webhook target.
type HTTPHandler struct {
	handler NotificationHandler
	logger  *zap.Logger
	timeout time.Duration
	router  chi.Router
}

// NewHTTPHandler constructs the HTTP handler and wires routes. timeout bounds a
// whole request, all events of the notification included.
func NewHTTPHandler(handler NotificationHandler, logger *zap.Logger, timeout time.Duration) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HTTPHandler{handler: handler, logger: logger, timeout: timeout}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Post("/api/v1/events", h.handleEvents)

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvents answers 500 when a redelivery could help so the sender retries,
// 422 when it could not, 400 for payloads that are not notifications.
func (h *HTTPHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxNotificationBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "notification too large")
		return
	}

	// Deadline set here; middleware.Timeout would write a second status.
	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	results, err := h.handler.HandleNotification(ctx, body)
	if results == nil {
		results = []handlers.EventResult{}
	}
	if err != nil {
		h.logger.Error("notification failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		var procErr models.ProcessingError
		switch {
		case errors.As(err, &procErr) && !procErr.Requeue:
			writeError(w, http.StatusBadRequest, procErr.Error())
		case handlers.Retryable(err):
			writeJSON(w, http.StatusInternalServerError, map[string]any{"results": results})
		default:
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"results": results})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
