package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"costbook/internal/cache"
	"costbook/internal/config"
	"costbook/internal/core"
	"costbook/internal/log"
)

func TestBackendType_IsValid(t *testing.T) {
	tests := []struct {
		in   BackendType
		want bool
	}{
		{SQLiteBackend, true},
		{MemoryBackend, true},
		{"sheets", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.in.IsValid(); got != tt.want {
			t.Errorf("%q.IsValid() = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := strings.Join(GetBackendTypeStrings(), ","); got != "sqlite,memory" {
		t.Errorf("unexpected backend types %q", got)
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}

	app := &config.Config{
		DataBackend:       "sqlite",
		SQLiteDBPath:      "/tmp/x.db",
		SnapshotCacheTTL:  time.Minute,
		SnapshotCacheSize: 50,
		Currency:          "EUR",
		SyncInterval:      time.Minute,
		SyncBatchSize:     5,
		ExportMaxRetries:  2,
	}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "/tmp/x.db" || cfg.CacheSize != 50 || cfg.Currency != "EUR" {
		t.Errorf("unexpected config %+v", cfg)
	}
	ec := cfg.exportConfig()
	if ec.PollInterval != time.Minute || ec.BatchSize != 5 || ec.MaxRetries != 2 {
		t.Errorf("unexpected export config %+v", ec)
	}

	app.DataBackend = "postgres"
	if _, err := FromAppConfig(app); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown type", Config{Type: "sheets"}, true},
		{"half configured amqp", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost/"}, true},
		{"cache without size", Config{Type: MemoryBackend, CacheTTL: time.Minute}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend_Memory(t *testing.T) {
	ctx := context.Background()
	res, err := NewFactory(log.Discard()).CreateBackend(ctx, Config{
		Type:      MemoryBackend,
		CacheTTL:  time.Minute,
		CacheSize: 10,
		Currency:  "EUR",
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Cleanup()

	if _, ok := res.Loader.(*cache.SnapshotCache); !ok {
		t.Errorf("expected cached loader, got %T", res.Loader)
	}
	if res.AMQP != nil || res.Exporter != nil || res.Processor != nil {
		t.Error("optional collaborators should be nil")
	}
	if err := res.Ready(ctx); err != nil {
		t.Errorf("memory backend should be ready: %v", err)
	}

	p, err := res.Projects.CreateProject(ctx, core.Project{Code: "P-1", Name: "Fit-out"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if p.Currency != "EUR" {
		t.Errorf("expected default currency, got %q", p.Currency)
	}

	// Warm the cache, write, and read again: the write must be visible.
	if _, err := res.Reports.ProjectReport(ctx, p.ID); err != nil {
		t.Fatalf("report: %v", err)
	}
	if _, err := res.Projects.AddMilestone(ctx, core.Milestone{ProjectID: p.ID, Code: "M1", Name: "Design"}); err != nil {
		t.Fatalf("add milestone: %v", err)
	}
	rep, err := res.Reports.ProjectReport(ctx, p.ID)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(rep.Milestones) != 1 {
		t.Errorf("expected the new milestone in the report, got %d", len(rep.Milestones))
	}
}

func TestCreateBackend_NoCache(t *testing.T) {
	res, err := NewFactory(log.Discard()).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Cleanup()
	if _, ok := res.Loader.(*cache.SnapshotCache); ok {
		t.Error("zero TTL should disable the snapshot cache")
	}
}

func TestCreateBackend_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "costbook.db")

	res, err := NewFactory(log.Discard()).CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if err := res.Ready(ctx); err != nil {
		t.Errorf("sqlite backend should be ready: %v", err)
	}
	if err := res.Cleanup(); err != nil {
		t.Errorf("cleanup: %v", err)
	}
	if err := res.Ready(ctx); err == nil {
		t.Error("expected closed database to report not ready")
	}
}

func TestCreateBackend_SheetsWithoutCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFactory(log.Discard()).CreateBackend(context.Background(), Config{
		Type:                MemoryBackend,
		GoogleSpreadsheetID: "sheet-1",
	})
	if err == nil {
		t.Fatal("expected error without service account credentials")
	}
	if !strings.Contains(err.Error(), "Google Sheets") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestCreateBackend_InvalidConfig(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: "sheets"})
	if err == nil || !strings.Contains(err.Error(), "invalid backend type") {
		t.Fatalf("expected invalid backend type error, got %v", err)
	}
}
