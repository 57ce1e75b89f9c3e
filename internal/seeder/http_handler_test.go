package seeder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/foodfleet/seedkit/internal/backup"
	"github.com/foodfleet/seedkit/internal/db"
	"github.com/foodfleet/seedkit/internal/domain"
)

type stubService struct {
	executeErr error
	resetErr   error
	restoreErr error

	lastCreateBackup bool
	lastRestore      RestoreRequest
	resets           int
}

func (s *stubService) Execute(ctx context.Context, createBackup bool) (domain.SeedExecution, error) {
	s.lastCreateBackup = createBackup
	if s.executeErr != nil {
		return domain.SeedExecution{}, s.executeErr
	}
	key := "database-backups/k.json.gz"
	return domain.SeedExecution{
		ID:        uuid.New(),
		Kind:      domain.ExecutionKindInitial,
		Status:    domain.ExecutionStatusCompleted,
		BackupKey: &key,
		StepStats: map[string]domain.StepStats{"Permissions": {Created: 24}},
	}, nil
}

func (s *stubService) Reset(ctx context.Context) (domain.SeedExecution, error) {
	s.resets++
	if s.resetErr != nil {
		return domain.SeedExecution{}, s.resetErr
	}
	return domain.SeedExecution{
		ID:     uuid.New(),
		Kind:   domain.ExecutionKindReset,
		Status: domain.ExecutionStatusCompleted,
	}, nil
}

func (s *stubService) Restore(ctx context.Context, req RestoreRequest) (domain.RestoreResult, error) {
	s.lastRestore = req
	if s.restoreErr != nil {
		return domain.RestoreResult{}, s.restoreErr
	}
	return domain.RestoreResult{Key: "database-backups/k.json.gz", TablesRestored: 5, RowsRestored: 34}, nil
}

func newTestHandler(service *stubService, ledger *stubLedger) http.Handler {
	if ledger == nil {
		ledger = newStubLedger()
	}
	return NewHTTPHandler(service, ledger)
}

func TestHandleExecute(t *testing.T) {
	service := &stubService{}
	handler := newTestHandler(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/seeder/execute", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !service.lastCreateBackup {
		t.Errorf("expected backup enabled by default")
	}

	var resp struct {
		Success       bool                        `json:"success"`
		BackupCreated bool                        `json:"backup_created"`
		Steps         map[string]domain.StepStats `json:"steps"`
		Totals        domain.StepStats            `json:"totals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !resp.Success || !resp.BackupCreated {
		t.Errorf("unexpected response flags: %+v", resp)
	}
	if resp.Totals.Created != 24 {
		t.Errorf("expected 24 created in totals, got %d", resp.Totals.Created)
	}
}

func TestHandleExecuteBackupFlag(t *testing.T) {
	service := &stubService{}
	handler := newTestHandler(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/seeder/execute?create_backup=false", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if service.lastCreateBackup {
		t.Errorf("expected backup disabled via query parameter")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/seeder/execute?create_backup=banana", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid flag, got %d", rec.Code)
	}
}

func TestHandleExecuteRunInProgress(t *testing.T) {
	service := &stubService{executeErr: db.ErrRunInProgress}
	handler := newTestHandler(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/seeder/execute", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleReset(t *testing.T) {
	service := &stubService{}
	handler := newTestHandler(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/seeder/reset", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if service.resets != 1 {
		t.Errorf("expected one reset call, got %d", service.resets)
	}
}

func TestHandleRestore(t *testing.T) {
	service := &stubService{}
	handler := newTestHandler(service, nil)

	body := strings.NewReader(`{"key": "database-backups/k.json.gz"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/seeder/restore", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if service.lastRestore.Key != "database-backups/k.json.gz" {
		t.Errorf("unexpected restore request: %+v", service.lastRestore)
	}

	var resp restoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !resp.Success || resp.RowsRestored != 34 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleRestoreWithoutBody(t *testing.T) {
	service := &stubService{}
	handler := newTestHandler(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/seeder/restore", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if service.lastRestore.Key != "" || service.lastRestore.ExecutionID != nil {
		t.Errorf("expected empty restore request, got %+v", service.lastRestore)
	}
}

func TestHandleRestoreErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"both selectors", ErrInvalidRestoreRequest, http.StatusBadRequest},
		{"missing snapshot", backup.ErrSnapshotNotFound, http.StatusNotFound},
		{"concurrent run", db.ErrRunInProgress, http.StatusConflict},
		{"unexpected", context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(&stubService{restoreErr: tc.err}, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/seeder/restore", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestHandleRestoreInvalidExecutionID(t *testing.T) {
	handler := newTestHandler(&stubService{}, nil)

	body := strings.NewReader(`{"execution_id": "not-a-uuid"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/seeder/restore", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleListExecutionsValidation(t *testing.T) {
	handler := newTestHandler(&stubService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/seeder/executions?skip=-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative skip, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/seeder/executions?limit=0", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero limit, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/seeder/executions", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandleGetExecution(t *testing.T) {
	ledger := newStubLedger()
	execution, err := ledger.Start(context.Background(), domain.ExecutionKindInitial)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	handler := newTestHandler(&stubService{}, ledger)

	req := httptest.NewRequest(http.MethodGet, "/api/seeder/executions/"+execution.ID.String(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got domain.SeedExecution
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if got.ID != execution.ID {
		t.Errorf("expected execution %s, got %s", execution.ID, got.ID)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/seeder/executions/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid id, got %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	handler := newTestHandler(&stubService{}, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/seeder/execute", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
