package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"costbook/internal/log"
)

// fakeSheets is a minimal stand-in for the Sheets REST API.
type fakeSheets struct {
	mu     sync.Mutex
	titles []string
	calls  []string
	values map[string][][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	f.calls = append(f.calls, r.Method+" "+path)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sid"):
		sheets := make([]map[string]any, 0, len(f.titles))
		for _, t := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sid", "sheets": sheets})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			if rq.AddSheet != nil {
				f.titles = append(f.titles, rq.AddSheet.Properties.Title)
			}
		}
		_, _ = w.Write([]byte(`{"spreadsheetId":"sid"}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		_, _ = w.Write([]byte(`{"spreadsheetId":"sid"}`))
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		if f.values == nil {
			f.values = make(map[string][][]any)
		}
		f.values[rng] = vr.Values
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng, "updatedRows": len(vr.Values)})
	default:
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	return NewWithService(svc, "sid", log.Discard())
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{}, log.Discard())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := New(context.Background(), Config{SpreadsheetID: "sid"}, log.Discard())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	cfg := Config{
		SpreadsheetID:      "sid",
		ServiceAccountFile: filepath.Join(t.TempDir(), "missing.json"),
	}
	_, err := New(context.Background(), cfg, log.Discard())
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestLoadCredentials_Precedence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(file, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"inline wins", Config{ServiceAccountJSON: `{"from":"inline"}`, ServiceAccountFile: file}, `{"from":"inline"}`},
		{"file", Config{ServiceAccountFile: file}, `{"from":"file"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := loadCredentials(context.Background(), tt.cfg, log.Discard())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestExportReport_CreatesTabAndWritesRows(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Sheet1"}}
	c := newTestClient(t, fake)

	rows := [][]any{{"Project", "WH-1", "Warehouse"}, {"Total cost", "$5,800.00"}}
	if err := c.ExportReport(context.Background(), "WH-1", rows); err != nil {
		t.Fatalf("export: %v", err)
	}

	if len(fake.titles) != 2 || fake.titles[1] != "WH-1 Report" {
		t.Fatalf("expected report tab to be added, got %v", fake.titles)
	}
	got, ok := fake.values["'WH-1 Report'!A1"]
	if !ok {
		t.Fatalf("expected values at 'WH-1 Report'!A1, calls=%v", fake.calls)
	}
	if len(got) != 2 || got[0][1] != "WH-1" {
		t.Errorf("unexpected values written: %v", got)
	}
}

func TestExportReport_ReusesExistingTab(t *testing.T) {
	fake := &fakeSheets{titles: []string{"WH-1 Report"}}
	c := newTestClient(t, fake)

	if err := c.ExportReport(context.Background(), "WH-1", [][]any{{"x"}}); err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, call := range fake.calls {
		if strings.HasSuffix(call, ":batchUpdate") {
			t.Errorf("tab should not be recreated, calls=%v", fake.calls)
		}
	}
	if len(fake.titles) != 1 {
		t.Errorf("expected a single tab, got %v", fake.titles)
	}
}

func TestExportReport_Errors(t *testing.T) {
	if err := (&Client{}).ExportReport(context.Background(), "WH-1", nil); err == nil {
		t.Error("expected error with nil service")
	}

	c := newTestClient(t, &fakeSheets{})
	if err := c.ExportReport(context.Background(), " ", nil); err == nil {
		t.Error("expected error for empty project code")
	}
}

func TestA1(t *testing.T) {
	tests := []struct {
		title, cells, want string
	}{
		{"WH-1 Report", "A1", "'WH-1 Report'!A1"},
		{"O'Hare Report", "A:Z", "'O''Hare Report'!A:Z"},
	}
	for _, tt := range tests {
		if got := a1(tt.title, tt.cells); got != tt.want {
			t.Errorf("a1(%q, %q) = %q, want %q", tt.title, tt.cells, got, tt.want)
		}
	}
}

func TestToStrings(t *testing.T) {
	got := toStrings([]any{" a ", 12, 1.5})
	want := []string{"a", "12", "1.5"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
