package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/emicklei/go-restful/v3"
	"github.com/gorilla/websocket"

	"github.com/acwooding/dmp-test-ci/internal/golden"
	"github.com/acwooding/dmp-test-ci/internal/log"
	runSvc "github.com/acwooding/dmp-test-ci/internal/run/service"
	"github.com/acwooding/dmp-test-ci/internal/tracker"
	"github.com/acwooding/dmp-test-ci/internal/version"
)

const writeWait = 10 * time.Second

// Configure the WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The event stream is read-only and served on the CI host
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// CreateRunRequest is the body of POST /runs
type CreateRunRequest struct {
	// Grep filters scenarios by name, comma-separated, case-insensitive
	Grep string `json:"grep,omitempty"`
}

// ErrorResponse is the body of every API error
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler exposes suite runs and baselines over HTTP
type Handler struct {
	runs   *runSvc.RunService
	store  *golden.Store
	logger *log.Logger
}

// NewHandler creates a new API handler
func NewHandler(runs *runSvc.RunService, store *golden.Store, logger *log.Logger) *Handler {
	if runs == nil || store == nil {
		panic("run service and baseline store cannot be nil")
	}
	return &Handler{runs: runs, store: store, logger: logger}
}

// writeError is a helper to write standard error responses.
func (h *Handler) writeError(resp *restful.Response, statusCode int, err error) {
	h.logger.Warn("API Error (%d): %v", statusCode, err)
	_ = resp.WriteHeaderAndJson(statusCode, ErrorResponse{Code: statusCode, Message: err.Error()}, restful.MIME_JSON)
}

// GetVersion handles GET /version
func (h *Handler) GetVersion(req *restful.Request, resp *restful.Response) {
	_ = resp.WriteHeaderAndJson(http.StatusOK, version.Info(), restful.MIME_JSON)
}

// ListRuns handles GET /runs
func (h *Handler) ListRuns(req *restful.Request, resp *restful.Response) {
	_ = resp.WriteHeaderAndJson(http.StatusOK, h.runs.List(), restful.MIME_JSON)
}

// CreateRun handles POST /runs
func (h *Handler) CreateRun(req *restful.Request, resp *restful.Response) {
	var body CreateRunRequest
	if req.Request.ContentLength != 0 {
		if err := req.ReadEntity(&body); err != nil {
			h.writeError(resp, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	run, err := h.runs.Start(tracker.TriggerAPI, body.Grep)
	if err != nil {
		if errors.Is(err, runSvc.ErrShuttingDown) {
			h.writeError(resp, http.StatusServiceUnavailable, err)
		} else {
			h.writeError(resp, http.StatusInternalServerError, fmt.Errorf("failed to start run: %w", err))
		}
		return
	}
	_ = resp.WriteHeaderAndJson(http.StatusAccepted, run, restful.MIME_JSON)
}

// GetRun handles GET /runs/{id}
func (h *Handler) GetRun(req *restful.Request, resp *restful.Response) {
	run, err := h.runs.Get(req.PathParameter("id"))
	if err != nil {
		if errors.Is(err, tracker.ErrRunNotFound) {
			h.writeError(resp, http.StatusNotFound, err)
		} else {
			h.writeError(resp, http.StatusInternalServerError, err)
		}
		return
	}
	_ = resp.WriteHeaderAndJson(http.StatusOK, run, restful.MIME_JSON)
}

// StreamEvents handles GET /runs/{id}/events, upgrading to a WebSocket that
// carries one JSON event per message and closes when the run finishes.
func (h *Handler) StreamEvents(req *restful.Request, resp *restful.Response) {
	id := req.PathParameter("id")
	sub, err := h.runs.Subscribe(id)
	if err != nil {
		if errors.Is(err, tracker.ErrRunNotFound) {
			h.writeError(resp, http.StatusNotFound, err)
		} else {
			h.writeError(resp, http.StatusInternalServerError, err)
		}
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(resp.ResponseWriter, req.Request, nil)
	if err != nil {
		// Upgrade writes the error response itself
		h.logger.Error("StreamEvents [%s]: failed to upgrade connection: %v", id, err)
		return
	}
	defer conn.Close()

	// Drain client frames so close and ping control messages are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.Events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("StreamEvents [%s]: write failed: %v", id, err)
				return
			}
		case <-gone:
			return
		}
	}
}

// ListBaselines handles GET /baselines
func (h *Handler) ListBaselines(req *restful.Request, resp *restful.Response) {
	baselines, err := h.store.List()
	if err != nil {
		h.writeError(resp, http.StatusInternalServerError, fmt.Errorf("failed to list baselines: %w", err))
		return
	}
	_ = resp.WriteHeaderAndJson(http.StatusOK, baselines, restful.MIME_JSON)
}

// GetBaseline handles GET /baselines/{name}
func (h *Handler) GetBaseline(req *restful.Request, resp *restful.Response) {
	data, err := h.store.Load(req.PathParameter("name"))
	if err != nil {
		switch {
		case errors.Is(err, golden.ErrBaselineNotFound):
			h.writeError(resp, http.StatusNotFound, err)
		case errors.Is(err, golden.ErrInvalidName):
			h.writeError(resp, http.StatusBadRequest, err)
		default:
			h.writeError(resp, http.StatusInternalServerError, err)
		}
		return
	}
	resp.Header().Set("Content-Type", "image/png")
	resp.WriteHeader(http.StatusOK)
	_, _ = resp.Write(data)
}
