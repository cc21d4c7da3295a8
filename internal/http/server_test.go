package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"costbook/internal/core"
	"costbook/internal/log"
	"costbook/internal/middleware/ratelimit"
	"costbook/internal/ports"
	"costbook/internal/report"
	"costbook/internal/services"
	"costbook/internal/storage/memory"
)

func newTestServer(t *testing.T, snaps ...core.ProjectSnapshot) (*Server, *memory.Store) {
	t.Helper()
	store := memory.NewFromSnapshots(snaps...)
	srv := NewServer(":0", Deps{
		Projects: services.NewProjectService(store, log.Discard()),
		Reports:  report.NewService(ports.DirectLoader{Reader: store}, log.Discard()),
		Logger:   log.Discard(),
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return e
}

func sampleProject() core.ProjectSnapshot {
	return core.ProjectSnapshot{
		Project: core.Project{ID: "p1", Code: "WH-1", Name: "Warehouse", Currency: "USD"},
		Milestones: []core.Milestone{
			{ID: "m1", ProjectID: "p1", Code: "M1", Name: "Design"},
		},
		LineItems: []core.CostLineItem{{
			ID: "li1", ProjectID: "p1", Type: core.Labour, RoleOrSKU: "Engineer",
			Rate:         decimal.NewNullDecimal(decimal.NewFromInt(100)),
			Qty:          decimal.NewNullDecimal(decimal.NewFromInt(10)),
			Unit:         core.Hour,
			MilestoneIDs: []string{"m1"},
		}},
		Payments: []core.PaymentSchedule{{
			ID: "pay1", ProjectID: "p1", InvoiceNo: "INV-1", InvoiceDate: core.NewDate(2025, 1, 31),
			Amount: decimal.NewFromInt(1200), MilestoneIDs: []string{"m1"},
		}},
	}
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s content type %q", path, ct)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s missing request id header", path)
		}
	}
}

func TestReadyFailure(t *testing.T) {
	store := memory.New()
	srv := NewServer(":0", Deps{
		Projects: services.NewProjectService(store, log.Discard()),
		Reports:  report.NewService(ports.DirectLoader{Reader: store}, log.Discard()),
		Logger:   log.Discard(),
		Ready:    func(context.Context) error { return errors.New("database is locked") },
	})
	defer srv.Shutdown(context.Background())

	rr := do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestProjectLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/projects", `{"code":"P-1","name":"Fit-out","currency":"EUR"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create project status=%d body=%s", rr.Code, rr.Body)
	}
	var p core.Project
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.ID == "" {
		t.Fatal("expected project id")
	}

	rr = do(t, srv, http.MethodPost, "/api/projects/"+p.ID+"/milestones", `{"id":"m1","code":"M1","name":"Design"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create milestone status=%d body=%s", rr.Code, rr.Body)
	}
	var m core.Milestone
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	if m.ID == "" || m.ID == "m1" {
		t.Fatalf("expected a server-assigned milestone id, got %q", m.ID)
	}
	rr = do(t, srv, http.MethodPost, "/api/projects/"+p.ID+"/line-items",
		`{"type":"labour","roleOrSku":"Engineer","rate":"100","qty":40,"unit":"hr","milestoneIds":["`+m.ID+`"]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create line item status=%d body=%s", rr.Code, rr.Body)
	}
	rr = do(t, srv, http.MethodPost, "/api/projects/"+p.ID+"/materials",
		`{"sku":"RACK","unitPrice":"300","qty":"1","costType":"one-time"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create material status=%d body=%s", rr.Code, rr.Body)
	}
	rr = do(t, srv, http.MethodPost, "/api/projects/"+p.ID+"/payments",
		`{"id":"pay1","invoiceNo":"INV-1","invoiceDate":"2025-01-31","amount":"4000","milestoneIds":["`+m.ID+`"]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create payment status=%d body=%s", rr.Code, rr.Body)
	}
	var pay core.PaymentSchedule
	if err := json.Unmarshal(rr.Body.Bytes(), &pay); err != nil {
		t.Fatal(err)
	}

	rr = do(t, srv, http.MethodGet, "/api/projects/"+p.ID+"/reconciliation", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reconciliation status=%d", rr.Code)
	}
	var rec core.Reconciliation
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.TotalInvoicedCents != 400000 || rec.Variance != -30000 || rec.Classification != core.Under {
		t.Errorf("unexpected reconciliation %+v", rec)
	}

	rr = do(t, srv, http.MethodDelete, "/api/projects/"+p.ID+"/payments/"+pay.ID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete payment status=%d body=%s", rr.Code, rr.Body)
	}
	rr = do(t, srv, http.MethodDelete, "/api/projects/"+p.ID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete project status=%d", rr.Code)
	}
	rr = do(t, srv, http.MethodGet, "/api/projects/"+p.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get deleted project status=%d", rr.Code)
	}
}

func TestListProjectsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/api/projects", "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %d %s", rr.Code, rr.Body)
	}
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t, sampleProject())

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unknown project", http.MethodGet, "/api/projects/nope", "", http.StatusNotFound, "not_found"},
		{"unknown report", http.MethodGet, "/api/projects/nope/report", "", http.StatusNotFound, "not_found"},
		{"malformed json", http.MethodPost, "/api/projects", `{"code":`, http.StatusBadRequest, "bad_request"},
		{"unknown field", http.MethodPost, "/api/projects", `{"code":"X","name":"Y","budget":1}`, http.StatusBadRequest, "bad_request"},
		{"missing name", http.MethodPost, "/api/projects", `{"code":"X"}`, http.StatusUnprocessableEntity, "validation_error"},
		{"zero payment", http.MethodPost, "/api/projects/p1/payments",
			`{"invoiceNo":"INV-9","invoiceDate":"2025-02-01","amount":"0"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"bad date", http.MethodPost, "/api/projects/p1/payments",
			`{"invoiceNo":"INV-9","invoiceDate":"someday","amount":"10"}`, http.StatusUnprocessableEntity, "validation_error"},
		{"inverted range", http.MethodPost, "/api/projects/p1/materials",
			`{"sku":"S","unitPrice":"1","qty":"1","costType":"monthly","startDate":"2025-05-01","endDate":"2025-04-01"}`,
			http.StatusUnprocessableEntity, "invalid_date_range"},
		{"unknown parent", http.MethodPost, "/api/projects/p1/milestones",
			`{"code":"M9","name":"Orphan","parentId":"ghost"}`, http.StatusUnprocessableEntity, "validation_error"},
		{"duplicate code", http.MethodPost, "/api/projects", `{"code":"wh-1","name":"Again"}`, http.StatusConflict, "duplicate_code"},
		{"overflowing line item", http.MethodPost, "/api/projects/p1/line-items",
			`{"type":"labour","roleOrSku":"X","rate":"1000000000000","qty":"1000000000000"}`,
			http.StatusUnprocessableEntity, "arithmetic_overflow"},
		{"unknown collection", http.MethodDelete, "/api/projects/p1/widgets/x", "", http.StatusNotFound, "not_found"},
		{"missing entity", http.MethodDelete, "/api/projects/p1/milestones/ghost", "", http.StatusNotFound, "not_found"},
		{"unknown route", http.MethodGet, "/api/nothing", "", http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.target, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d body=%s", tt.wantStatus, rr.Code, rr.Body)
			}
			if e := decodeError(t, rr); e.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q (%s)", tt.wantCode, e.Code, e.Error)
			}
		})
	}
}

func TestReportJSON(t *testing.T) {
	srv, _ := newTestServer(t, sampleProject())

	rr := do(t, srv, http.MethodGet, "/api/projects/p1/report", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("report status=%d body=%s", rr.Code, rr.Body)
	}
	var rep report.ProjectReport
	if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.KPIs.TotalCost.Cents != 100000 || rep.KPIs.Invoiced.Cents != 120000 {
		t.Errorf("unexpected KPIs %+v", rep.KPIs)
	}
	if rep.KPIs.Classification != core.Over {
		t.Errorf("expected over, got %s", rep.KPIs.Classification)
	}
}

func TestReportPage(t *testing.T) {
	srv, _ := newTestServer(t, sampleProject())

	rr := do(t, srv, http.MethodGet, "/projects/p1/report", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("report page status=%d body=%s", rr.Code, rr.Body)
	}
	body := rr.Body.String()
	for _, want := range []string{"Warehouse", "$1,000.00", "$1,200.00", "Over-billed", "Design"} {
		if !strings.Contains(body, want) {
			t.Errorf("report page missing %q", want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("expected security headers on report page")
	}

	rr = do(t, srv, http.MethodGet, "/projects/nope/report", "")
	if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), "Project not found") {
		t.Errorf("expected not found page, got %d", rr.Code)
	}
}

func TestImportYAML(t *testing.T) {
	srv, store := newTestServer(t)

	doc := `
project:
  code: IMP-1
  name: Imported
milestones:
  - id: m1
    code: M1
    name: Design
payments:
  - id: pay1
    invoiceNo: INV-1
    invoiceDate: 2025-01-31
    amount: 150.50
    milestoneIds: [m1]
`
	req := httptest.NewRequest(http.MethodPost, "/api/projects/import", strings.NewReader(doc))
	req.Header.Set("Content-Type", "application/yaml")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body)
	}

	projects, _ := store.ListProjects(context.Background())
	if len(projects) != 1 || projects[0].Code != "IMP-1" {
		t.Fatalf("unexpected projects %+v", projects)
	}
}

func TestImportBodyTooLarge(t *testing.T) {
	srv, store := newTestServer(t)

	doc := `{"project":{"code":"BIG","name":"Big"},"notes":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rr := do(t, srv, http.MethodPost, "/api/projects/import", doc)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d body=%s", rr.Code, rr.Body)
	}
	if e := decodeError(t, rr); e.Code != "body_too_large" {
		t.Errorf("unexpected code %q", e.Code)
	}
	if projects, _ := store.ListProjects(context.Background()); len(projects) != 0 {
		t.Errorf("nothing should be imported, got %d projects", len(projects))
	}
}

func TestChildIDsAssignedByServer(t *testing.T) {
	srv, _ := newTestServer(t)

	var ids []string
	for _, code := range []string{"A", "B"} {
		rr := do(t, srv, http.MethodPost, "/api/projects", `{"code":"`+code+`","name":"`+code+`"}`)
		if rr.Code != http.StatusCreated {
			t.Fatalf("create project status=%d body=%s", rr.Code, rr.Body)
		}
		var p core.Project
		if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
			t.Fatal(err)
		}
		rr = do(t, srv, http.MethodPost, "/api/projects/"+p.ID+"/milestones", `{"id":"shared","code":"M1","name":"Design"}`)
		if rr.Code != http.StatusCreated {
			t.Fatalf("create milestone in %s status=%d body=%s", code, rr.Code, rr.Body)
		}
		var m core.Milestone
		if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, m.ID)
	}
	if ids[0] == "shared" || ids[0] == ids[1] {
		t.Errorf("expected distinct server ids, got %v", ids)
	}
}

func TestRateLimitOnlyWrites(t *testing.T) {
	store := memory.New()
	srv := NewServer(":0", Deps{
		Projects:  services.NewProjectService(store, log.Discard()),
		Reports:   report.NewService(ports.DirectLoader{Reader: store}, log.Discard()),
		Logger:    log.Discard(),
		RateLimit: ratelimit.Config{RequestsPerMinute: 1, Methods: []string{http.MethodPost}},
	})
	defer srv.Shutdown(context.Background())

	if rr := do(t, srv, http.MethodPost, "/api/projects", `{"code":"A","name":"A"}`); rr.Code != http.StatusCreated {
		t.Fatalf("first write status=%d", rr.Code)
	}
	rr := do(t, srv, http.MethodPost, "/api/projects", `{"code":"B","name":"B"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second write status=%d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != "rate_limited" {
		t.Errorf("unexpected code %q", e.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/projects", ""); rr.Code != http.StatusOK {
		t.Errorf("reads should not be limited, got %d", rr.Code)
	}
}
