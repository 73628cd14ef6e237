package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dodgybits/shuffle/internal/snapshot"
	"github.com/dodgybits/shuffle/internal/store"
	shufflesync "github.com/dodgybits/shuffle/internal/sync"
	"github.com/dodgybits/shuffle/internal/types"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500

	// DefaultMaxBodyBytes caps sync payloads when no limit is configured.
	DefaultMaxBodyBytes = 8 << 20
)

// SyncProcessor applies a sync delta to the local store.
type SyncProcessor interface {
	Process(ctx context.Context, resp *shufflesync.SyncResponse) (*shufflesync.Result, error)
}

// Handler implements the API handlers
type Handler struct {
	store        store.Store
	processor    SyncProcessor
	uploader     snapshot.Uploader
	apiKey       string
	version      string
	maxBodyBytes int64
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithUploader enables the backup URL endpoint.
func WithUploader(u snapshot.Uploader) HandlerOption {
	return func(h *Handler) { h.uploader = u }
}

// WithMaxBodyBytes limits the size of sync payloads.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandler creates a new Handler.
func NewHandler(s store.Store, p SyncProcessor, apiKey, version string, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:        s,
		processor:    p,
		uploader:     &snapshot.NoopUploader{},
		apiKey:       apiKey,
		version:      version,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		slog.Error("health check failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:       "healthy",
		Version:      h.version,
		ContextCount: stats.ContextCount,
		ProjectCount: stats.ProjectCount,
		TaskCount:    stats.TaskCount,
		LastSync:     stats.LastSync,
	})
}

// ListContexts handles GET /api/v1/contexts
func (h *Handler) ListContexts(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, h.store.Contexts().List)
}

// ListProjects handles GET /api/v1/projects
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, h.store.Projects().List)
}

// ListTasks handles GET /api/v1/tasks
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, h.store.Tasks().List)
}

func writeList[E any](w http.ResponseWriter, r *http.Request, list func(context.Context) ([]E, error)) {
	items, err := list(r.Context())
	if err != nil {
		slog.Error("list failed", "component", "api", "path", r.URL.Path, "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ListResponse[E]{Items: items, Total: len(items)})
}

// ListSyncRuns handles GET /api/v1/sync/runs?limit=N
func (h *Handler) ListSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRunsLimit {
			WriteProblem(w, r, http.StatusBadRequest, "limit must be an integer between 1 and "+strconv.Itoa(maxRunsLimit))
			return
		}
		limit = n
	}

	runs, err := h.store.ListSyncRuns(r.Context(), limit)
	if err != nil {
		slog.Error("list sync runs failed", "component", "api", "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ListResponse[types.SyncRun]{Items: runs, Total: len(runs)})
}

// BackupURLResponse carries a pre-signed download link for the latest backup.
type BackupURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BackupURL handles GET /api/v1/backup/url
func (h *Handler) BackupURL(w http.ResponseWriter, r *http.Request) {
	u, expiry, err := h.uploader.PresignedURL(r.Context(), snapshot.CurrentName)
	if err != nil {
		slog.Warn("backup url unavailable", "component", "api", "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BackupURLResponse{URL: u, ExpiresAt: expiry.UTC()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}
