package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	shufflesync "github.com/dodgybits/shuffle/internal/sync"
)

// Sync handles POST /api/v1/sync
//
// The body is a SyncResponse from the remote system. It is applied in one
// cycle and the cycle's Result is returned.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	requestID := middleware.GetReqID(ctx)

	// 1. Parse request
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var req *shufflesync.SyncResponse
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Payload exceeds %d bytes", tooLarge.Limit))
			return
		}
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return
	}

	// 2. Run the cycle
	result, err := h.processor.Process(ctx, req)
	if err != nil {
		slog.Error("sync request failed",
			"component", "api",
			"action", "sync_failed",
			"request_id", requestID,
			"error", err,
		)
		MapSyncError(w, r, err)
		return
	}

	// 3. Return response
	writeJSON(w, http.StatusOK, result)

	slog.Info("sync request completed",
		"component", "api",
		"action", "sync",
		"request_id", requestID,
		"sync_id", result.SyncID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
