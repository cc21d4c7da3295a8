package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"costbook/internal/core"
	"costbook/internal/ports"
)

// connPragmas are applied by the driver to every pooled connection.
const connPragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

type SQLiteRepository struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

var _ ports.ProjectRepository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+connPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, dbPath: dbPath, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SchemaVersion reports the migration version of the open database.
func (r *SQLiteRepository) SchemaVersion() (uint, bool, error) {
	return SchemaVersion(r.dbPath)
}

const timeLayout = time.RFC3339Nano

func encodeDate(d core.Date) any {
	if d.IsEmpty() {
		return nil
	}
	return d.String()
}

func decodeDate(s sql.NullString) (core.Date, error) {
	if !s.Valid {
		return core.Date{}, nil
	}
	return core.ParseDate(s.String)
}

func encodeIDs(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func decodeIDs(s string) ([]string, error) {
	var ids []string
	if s == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, fmt.Errorf("decode id list: %w", err)
	}
	return ids, nil
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// isUniqueViolation reports whether err is a UNIQUE index violation.
func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	return errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func notFound(kind ports.EntityKind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
}

func (r *SQLiteRepository) ensureProject(ctx context.Context, id string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(ports.KindProject, id)
	}
	if err != nil {
		return fmt.Errorf("check project: %w", err)
	}
	return nil
}

// CreateProject implements ports.ProjectWriter
func (r *SQLiteRepository) CreateProject(ctx context.Context, p core.Project) (core.Project, error) {
	if err := p.Validate(); err != nil {
		return core.Project{}, err
	}
	p.ID = newID(p.ID)
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now().UTC()
	}

	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE code = ? COLLATE NOCASE`, p.Code).Scan(&one)
	switch {
	case err == nil:
		return core.Project{}, fmt.Errorf("project code %q: %w", p.Code, core.ErrDuplicateCode)
	case !errors.Is(err, sql.ErrNoRows):
		return core.Project{}, fmt.Errorf("check project code: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO projects (id, code, name, client, currency, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Code, p.Name, p.Client, p.Currency, p.CreatedAt.UTC().Format(timeLayout))
	if isUniqueViolation(err) {
		return core.Project{}, fmt.Errorf("project code %q: %w", p.Code, core.ErrDuplicateCode)
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("create project: %w", err)
	}

	slog.InfoContext(ctx, "Project saved to SQLite", "project_id", p.ID, "code", p.Code)
	return p, nil
}

// GetProject implements ports.ProjectReader
func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (core.Project, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, code, name, client, currency, created_at FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Project{}, notFound(ports.KindProject, id)
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListProjects implements ports.ProjectReader
func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]core.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, code, name, client, currency, created_at FROM projects ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []core.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (core.Project, error) {
	var p core.Project
	var created string
	if err := s.Scan(&p.ID, &p.Code, &p.Name, &p.Client, &p.Currency, &created); err != nil {
		return core.Project{}, err
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return core.Project{}, fmt.Errorf("parse created_at: %w", err)
	}
	p.CreatedAt = t
	return p, nil
}

// DeleteProject removes the project and every child row in one transaction.
func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"payment_schedules", "material_costs", "cost_line_items", "milestones"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE project_id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(ports.KindProject, id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Project deleted from SQLite", "project_id", id)
	return nil
}

// CreateMilestone implements ports.ProjectWriter
func (r *SQLiteRepository) CreateMilestone(ctx context.Context, m core.Milestone) (core.Milestone, error) {
	if err := m.Validate(); err != nil {
		return core.Milestone{}, err
	}
	if err := r.ensureProject(ctx, m.ProjectID); err != nil {
		return core.Milestone{}, err
	}
	m.ID = newID(m.ID)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now().UTC()
	}
	var sortIndex sql.NullInt64
	if m.SortIndex != nil {
		sortIndex = sql.NullInt64{Int64: int64(*m.SortIndex), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO milestones (id, project_id, code, name, start_date, end_date, parent_id, sort_index, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.Code, m.Name, encodeDate(m.StartDate), encodeDate(m.EndDate),
		m.ParentID, sortIndex, m.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return core.Milestone{}, fmt.Errorf("create milestone: %w", err)
	}
	return m, nil
}

// ListMilestones implements ports.ProjectReader
func (r *SQLiteRepository) ListMilestones(ctx context.Context, projectID string) ([]core.Milestone, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, code, name, start_date, end_date, parent_id, sort_index, created_at
		 FROM milestones WHERE project_id = ? ORDER BY rowid`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var out []core.Milestone
	for rows.Next() {
		var (
			m          core.Milestone
			start, end sql.NullString
			sortIndex  sql.NullInt64
			created    string
		)
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Code, &m.Name, &start, &end, &m.ParentID, &sortIndex, &created); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		if m.StartDate, err = decodeDate(start); err != nil {
			return nil, err
		}
		if m.EndDate, err = decodeDate(end); err != nil {
			return nil, err
		}
		if sortIndex.Valid {
			i := int(sortIndex.Int64)
			m.SortIndex = &i
		}
		if m.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateLineItem implements ports.ProjectWriter
func (r *SQLiteRepository) CreateLineItem(ctx context.Context, li core.CostLineItem) (core.CostLineItem, error) {
	if err := li.Validate(); err != nil {
		return core.CostLineItem{}, err
	}
	if err := r.ensureProject(ctx, li.ProjectID); err != nil {
		return core.CostLineItem{}, err
	}
	li.ID = newID(li.ID)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cost_line_items (id, project_id, type, role_or_sku, rate, qty, unit, start_date, end_date, milestone_ids)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		li.ID, li.ProjectID, string(li.Type), li.RoleOrSKU, li.Rate, li.Qty, string(li.Unit),
		encodeDate(li.StartDate), encodeDate(li.EndDate), encodeIDs(li.MilestoneIDs))
	if err != nil {
		return core.CostLineItem{}, fmt.Errorf("create line item: %w", err)
	}
	return li, nil
}

// ListLineItems implements ports.ProjectReader
func (r *SQLiteRepository) ListLineItems(ctx context.Context, projectID string) ([]core.CostLineItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, type, role_or_sku, rate, qty, unit, start_date, end_date, milestone_ids
		 FROM cost_line_items WHERE project_id = ? ORDER BY rowid`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	var out []core.CostLineItem
	for rows.Next() {
		var (
			li               core.CostLineItem
			itemType, unit   string
			start, end       sql.NullString
			milestoneIDsJSON string
		)
		if err := rows.Scan(&li.ID, &li.ProjectID, &itemType, &li.RoleOrSKU, &li.Rate, &li.Qty, &unit,
			&start, &end, &milestoneIDsJSON); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		li.Type = core.LineItemType(itemType)
		li.Unit = core.Unit(unit)
		if li.StartDate, err = decodeDate(start); err != nil {
			return nil, err
		}
		if li.EndDate, err = decodeDate(end); err != nil {
			return nil, err
		}
		if li.MilestoneIDs, err = decodeIDs(milestoneIDsJSON); err != nil {
			return nil, err
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

// CreateMaterial implements ports.ProjectWriter
func (r *SQLiteRepository) CreateMaterial(ctx context.Context, mc core.MaterialCost) (core.MaterialCost, error) {
	if err := mc.Validate(); err != nil {
		return core.MaterialCost{}, err
	}
	if err := r.ensureProject(ctx, mc.ProjectID); err != nil {
		return core.MaterialCost{}, err
	}
	mc.ID = newID(mc.ID)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO material_costs (id, project_id, sku, description, unit_price, qty, cost_type, start_date, end_date, milestone_ids)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mc.ID, mc.ProjectID, mc.SKU, mc.Description, mc.UnitPrice, mc.Qty, string(mc.CostType),
		encodeDate(mc.StartDate), encodeDate(mc.EndDate), encodeIDs(mc.MilestoneIDs))
	if err != nil {
		return core.MaterialCost{}, fmt.Errorf("create material cost: %w", err)
	}
	return mc, nil
}

// ListMaterials implements ports.ProjectReader
func (r *SQLiteRepository) ListMaterials(ctx context.Context, projectID string) ([]core.MaterialCost, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, sku, description, unit_price, qty, cost_type, start_date, end_date, milestone_ids
		 FROM material_costs WHERE project_id = ? ORDER BY rowid`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list material costs: %w", err)
	}
	defer rows.Close()

	var out []core.MaterialCost
	for rows.Next() {
		var (
			mc               core.MaterialCost
			costType         string
			start, end       sql.NullString
			milestoneIDsJSON string
		)
		if err := rows.Scan(&mc.ID, &mc.ProjectID, &mc.SKU, &mc.Description, &mc.UnitPrice, &mc.Qty, &costType,
			&start, &end, &milestoneIDsJSON); err != nil {
			return nil, fmt.Errorf("scan material cost: %w", err)
		}
		mc.CostType = core.CostType(costType)
		if mc.StartDate, err = decodeDate(start); err != nil {
			return nil, err
		}
		if mc.EndDate, err = decodeDate(end); err != nil {
			return nil, err
		}
		if mc.MilestoneIDs, err = decodeIDs(milestoneIDsJSON); err != nil {
			return nil, err
		}
		out = append(out, mc)
	}
	return out, rows.Err()
}

// CreatePayment implements ports.ProjectWriter
func (r *SQLiteRepository) CreatePayment(ctx context.Context, ps core.PaymentSchedule) (core.PaymentSchedule, error) {
	if err := ps.Validate(); err != nil {
		return core.PaymentSchedule{}, err
	}
	if err := r.ensureProject(ctx, ps.ProjectID); err != nil {
		return core.PaymentSchedule{}, err
	}
	ps.ID = newID(ps.ID)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_schedules (id, project_id, invoice_no, invoice_date, amount, milestone_ids, material_cost_ids, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ps.ID, ps.ProjectID, ps.InvoiceNo, ps.InvoiceDate.String(), ps.Amount,
		encodeIDs(ps.MilestoneIDs), encodeIDs(ps.MaterialCostIDs), ps.Notes)
	if err != nil {
		return core.PaymentSchedule{}, fmt.Errorf("create payment: %w", err)
	}

	slog.InfoContext(ctx, "Payment saved to SQLite",
		"project_id", ps.ProjectID,
		"invoice_no", ps.InvoiceNo,
		"amount", ps.Amount.StringFixed(2))
	return ps, nil
}

// ListPayments implements ports.ProjectReader
func (r *SQLiteRepository) ListPayments(ctx context.Context, projectID string) ([]core.PaymentSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, invoice_no, invoice_date, amount, milestone_ids, material_cost_ids, notes
		 FROM payment_schedules WHERE project_id = ? ORDER BY invoice_date, rowid`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []core.PaymentSchedule
	for rows.Next() {
		var (
			ps                      core.PaymentSchedule
			invoiceDate             string
			milestoneIDs, materials string
		)
		if err := rows.Scan(&ps.ID, &ps.ProjectID, &ps.InvoiceNo, &invoiceDate, &ps.Amount,
			&milestoneIDs, &materials, &ps.Notes); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		if ps.InvoiceDate, err = core.ParseDate(invoiceDate); err != nil {
			return nil, err
		}
		if ps.MilestoneIDs, err = decodeIDs(milestoneIDs); err != nil {
			return nil, err
		}
		if ps.MaterialCostIDs, err = decodeIDs(materials); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

var entityTables = map[ports.EntityKind]string{
	ports.KindMilestone: "milestones",
	ports.KindLineItem:  "cost_line_items",
	ports.KindMaterial:  "material_costs",
	ports.KindPayment:   "payment_schedules",
}

// DeleteEntity implements ports.ProjectWriter
func (r *SQLiteRepository) DeleteEntity(ctx context.Context, projectID string, kind ports.EntityKind, id string) error {
	table, ok := entityTables[kind]
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE project_id = ? AND id = ?`, projectID, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(kind, id)
	}
	return nil
}
