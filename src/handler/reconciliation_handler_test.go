package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradecore/src/reconciliation"
)

type fakeReconciler struct {
	report  *reconciliation.MissingOrdersReport
	imports []reconciliation.ImportResult
	orphans []reconciliation.OrphanedExecution
	fixes   []reconciliation.FixResult

	importedIDs []string
	fixedIDs    []uint
}

func (f *fakeReconciler) DetectMissingOrders(_ context.Context, _ uint, _ string, _, _ time.Time) (*reconciliation.MissingOrdersReport, error) {
	return f.report, nil
}

func (f *fakeReconciler) ImportMissingOrders(_ context.Context, _ uint, _ string, _, _ time.Time, orderIDs []string, _ map[string]uint) ([]reconciliation.ImportResult, error) {
	f.importedIDs = orderIDs
	return f.imports, nil
}

func (f *fakeReconciler) DetectOrphanedExecutions(context.Context) ([]reconciliation.OrphanedExecution, error) {
	return f.orphans, nil
}

func (f *fakeReconciler) FixOrphanedExecutions(_ context.Context, ids []uint, _ map[uint]uint) []reconciliation.FixResult {
	f.fixedIDs = ids
	return f.fixes
}

func TestDetectMissingOrdersValidation(t *testing.T) {
	handler := DetectMissingOrdersHandler(&fakeReconciler{})

	cases := map[string]string{
		"missing account": `{"symbol":"BTCUSDT","from":"2025-06-01T00:00:00Z","to":"2025-06-02T00:00:00Z"}`,
		"missing symbol":  `{"account_id":1,"from":"2025-06-01T00:00:00Z","to":"2025-06-02T00:00:00Z"}`,
		"inverted window": `{"account_id":1,"symbol":"BTCUSDT","from":"2025-06-02T00:00:00Z","to":"2025-06-01T00:00:00Z"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/reconciliation/missing/detect", strings.NewReader(body))
			w := httptest.NewRecorder()
			handler(w, r)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestDetectMissingOrdersReturnsReport(t *testing.T) {
	service := &fakeReconciler{report: &reconciliation.MissingOrdersReport{ReportID: "r-1"}}
	handler := DetectMissingOrdersHandler(service)

	body := `{"account_id":1,"symbol":"BTCUSDT","from":"2025-06-01T00:00:00Z","to":"2025-06-02T00:00:00Z"}`
	r := httptest.NewRequest(http.MethodPost, "/reconciliation/missing/detect", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "r-1") {
		t.Fatalf("expected the report in the body: %s", w.Body.String())
	}
}

func TestImportMissingOrdersForwardsSelection(t *testing.T) {
	service := &fakeReconciler{}
	handler := ImportMissingOrdersHandler(service)

	body := `{"account_id":1,"symbol":"BTCUSDT","from":"2025-06-01T00:00:00Z","to":"2025-06-02T00:00:00Z",` +
		`"order_ids":["a","b"],"sell_targets":{"b":7}}`
	r := httptest.NewRequest(http.MethodPost, "/reconciliation/missing/import", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(service.importedIDs) != 2 {
		t.Fatalf("expected order ids forwarded, got %v", service.importedIDs)
	}

	// Empty selection is rejected before touching the service.
	r = httptest.NewRequest(http.MethodPost, "/reconciliation/missing/import",
		strings.NewReader(`{"account_id":1,"order_ids":[]}`))
	w = httptest.NewRecorder()
	handler(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestFixOrphanedExecutionsHandler(t *testing.T) {
	service := &fakeReconciler{fixes: []reconciliation.FixResult{{ExecutionID: 3, Relinked: true}}}
	handler := FixOrphanedExecutionsHandler(service)

	r := httptest.NewRequest(http.MethodPost, "/reconciliation/orphans/fix",
		strings.NewReader(`{"execution_ids":[3],"alternatives":{"3":9}}`))
	w := httptest.NewRecorder()
	handler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(service.fixedIDs) != 1 || service.fixedIDs[0] != 3 {
		t.Fatalf("expected execution ids forwarded, got %v", service.fixedIDs)
	}

	r = httptest.NewRequest(http.MethodPost, "/reconciliation/orphans/fix", strings.NewReader(`{}`))
	w = httptest.NewRecorder()
	handler(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
