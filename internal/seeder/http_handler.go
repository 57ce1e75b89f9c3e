package seeder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/foodfleet/seedkit/internal/backup"
	"github.com/foodfleet/seedkit/internal/db"
	"github.com/foodfleet/seedkit/internal/domain"
	"github.com/foodfleet/seedkit/internal/repository"

	"github.com/google/uuid"
)

// Service is the orchestration surface the HTTP layer exposes.
// *Orchestrator satisfies it.
type Service interface {
	Execute(ctx context.Context, createBackup bool) (domain.SeedExecution, error)
	Reset(ctx context.Context) (domain.SeedExecution, error)
	Restore(ctx context.Context, req RestoreRequest) (domain.RestoreResult, error)
}

// Handler exposes the seeder as an HTTP API.
type Handler struct {
	service Service
	ledger  repository.ExecutionLedger
}

// NewHTTPHandler wraps the orchestration service and the ledger with the
// seeder endpoints.
func NewHTTPHandler(service Service, ledger repository.ExecutionLedger) http.Handler {
	return &Handler{service: service, ledger: ledger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/execute"):
		h.handleExecute(w, r)
		return
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/reset"):
		h.handleReset(w, r)
		return
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/restore"):
		h.handleRestore(w, r)
		return
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/executions"):
		h.handleListExecutions(w, r)
		return
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/executions/"):
		h.handleGetExecution(w, r)
		return
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
}

type runResponse struct {
	Success       bool                        `json:"success"`
	ExecutionID   uuid.UUID                   `json:"execution_id"`
	BackupCreated bool                        `json:"backup_created"`
	BackupKey     *string                     `json:"backup_key,omitempty"`
	Steps         map[string]domain.StepStats `json:"steps"`
	Totals        domain.StepStats            `json:"totals"`
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	createBackup := true
	if raw := strings.TrimSpace(r.URL.Query().Get("create_backup")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "create_backup must be a boolean", http.StatusBadRequest)
			return
		}
		createBackup = parsed
	}

	execution, err := h.service.Execute(r.Context(), createBackup)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newRunResponse(execution))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	execution, err := h.service.Reset(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newRunResponse(execution))
}

type restorePayload struct {
	Key         string  `json:"key"`
	ExecutionID *string `json:"execution_id"`
}

type restoreResponse struct {
	Success        bool   `json:"success"`
	Key            string `json:"key"`
	TablesRestored int    `json:"tables_restored"`
	RowsRestored   int    `json:"rows_restored"`
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	req := RestoreRequest{}
	if r.Body != nil && r.ContentLength != 0 {
		var payload restorePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			return
		}
		req.Key = strings.TrimSpace(payload.Key)
		if payload.ExecutionID != nil {
			id, err := uuid.Parse(*payload.ExecutionID)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid execution_id: %v", err), http.StatusBadRequest)
				return
			}
			req.ExecutionID = &id
		}
	}

	result, err := h.service.Restore(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, restoreResponse{
		Success:        true,
		Key:            result.Key,
		TablesRestored: result.TablesRestored,
		RowsRestored:   result.RowsRestored,
	})
}

func (h *Handler) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	skip := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("skip")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "skip must be zero or positive", http.StatusBadRequest)
			return
		}
		skip = parsed
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	executions, err := h.ledger.List(r.Context(), skip, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"executions": executions})
}

func (h *Handler) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	id, err := uuid.Parse(parts[len(parts)-1])
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid execution id: %v", err), http.StatusBadRequest)
		return
	}

	execution, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, execution)
}

func newRunResponse(execution domain.SeedExecution) runResponse {
	return runResponse{
		Success:       true,
		ExecutionID:   execution.ID,
		BackupCreated: execution.BackupKey != nil,
		BackupKey:     execution.BackupKey,
		Steps:         execution.StepStats,
		Totals:        execution.Totals(),
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidRestoreRequest):
		status = http.StatusBadRequest
	case errors.Is(err, backup.ErrSnapshotNotFound), errors.Is(err, repository.ErrExecutionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, db.ErrRunInProgress):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
