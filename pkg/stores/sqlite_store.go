package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/prodline/prodline/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the engine.Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// _txlock=immediate makes write transactions take the write lock up
	// front, so conflicting commits fail fast instead of deadlocking.
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// HealthCheck verifies the database connection is alive.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// beginTx starts a serializable transaction. With _txlock=immediate this
// acquires the write lock immediately.
func (s *SQLiteStore) beginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// isLocked reports whether an error is a SQLite busy/locked condition, which
// maps onto the engine's concurrent_modification kind.
func isLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// isUniqueViolation reports whether an error is a unique constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ---------------------------------------------------------------------------
// LineSource

// ListPendingLines returns pending sales-order lines matching the filter.
func (s *SQLiteStore) ListPendingLines(ctx context.Context, filter engine.BatchFilter) ([]engine.OrderLine, error) {
	query := `
		SELECT id, product_code, product_name, quantity, channel, customer_name,
		       display_status, production_status, created_at
		FROM sales_order_lines
		WHERE production_status = ?
	`
	args := []interface{}{string(engine.ProductionPending)}

	if filter.Search != "" {
		query += ` AND (LOWER(product_name) LIKE ? ESCAPE '\' OR LOWER(product_code) LIKE ? ESCAPE '\')`
		pattern := "%" + escapeLike(strings.ToLower(filter.Search)) + "%"
		args = append(args, pattern, pattern)
	}

	if len(filter.DisplayStatuses) > 0 {
		placeholders := make([]string, len(filter.DisplayStatuses))
		for i, ds := range filter.DisplayStatuses {
			placeholders[i] = "?"
			args = append(args, ds)
		}
		query += fmt.Sprintf(` AND display_status IN (%s)`, strings.Join(placeholders, ", "))
	}

	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending lines: %w", err)
	}
	defer rows.Close()

	var lines []engine.OrderLine
	for rows.Next() {
		line, err := scanOrderLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, *line)
	}
	return lines, rows.Err()
}

// escapeLike neutralizes LIKE pattern characters so user search text
// matches as a literal substring.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrderLine(row rowScanner) (*engine.OrderLine, error) {
	var line engine.OrderLine
	var productionStatus string
	err := row.Scan(
		&line.ID,
		&line.ProductCode,
		&line.ProductName,
		&line.Quantity,
		&line.Channel,
		&line.CustomerName,
		&line.DisplayStatus,
		&productionStatus,
		&line.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFound("order line not found", "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order line: %w", err)
	}
	line.ProductionStatus = engine.ProductionStatus(productionStatus)
	return &line, nil
}

// ---------------------------------------------------------------------------
// Catalog

// GetProduct returns the product for a code.
func (s *SQLiteStore) GetProduct(ctx context.Context, code string) (*engine.Product, error) {
	query := `SELECT id, code, name FROM products WHERE code = ?`

	product := &engine.Product{}
	err := s.db.QueryRowContext(ctx, query, code).Scan(&product.ID, &product.Code, &product.Name)
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFound("product not found", code)
	}
	if err != nil {
		return nil, engine.NewUpstreamUnavailable("failed to read product catalog", err)
	}
	return product, nil
}

// EnsureProduct returns the product for a code, registering a minimal record
// when the code is unknown.
func (s *SQLiteStore) EnsureProduct(ctx context.Context, code string) (*engine.Product, error) {
	product, err := s.GetProduct(ctx, code)
	if err == nil {
		return product, nil
	}
	if !engine.IsNotFound(err) {
		return nil, err
	}

	id := newID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO products (id, code, name) VALUES (?, ?, ?)`,
		id, code, code)
	if err != nil {
		// A concurrent registration of the same code is fine; re-read.
		if isUniqueViolation(err) {
			return s.GetProduct(ctx, code)
		}
		return nil, engine.NewUpstreamUnavailable("failed to register product", err)
	}

	return &engine.Product{ID: id, Code: code, Name: code}, nil
}

// ---------------------------------------------------------------------------
// MaterialLedger

// RecipeFor returns the bill of materials for a product in recipe order.
func (s *SQLiteStore) RecipeFor(ctx context.Context, productCode string) ([]engine.RecipeLine, error) {
	query := `
		SELECT product_code, position, material_id, qty_per_unit
		FROM recipe_lines
		WHERE product_code = ?
		ORDER BY position ASC
	`
	rows, err := s.db.QueryContext(ctx, query, productCode)
	if err != nil {
		return nil, engine.NewUpstreamUnavailable("failed to read bill of materials", err)
	}
	defer rows.Close()

	lines := []engine.RecipeLine{}
	for rows.Next() {
		var line engine.RecipeLine
		var qty string
		if err := rows.Scan(&line.ProductCode, &line.Position, &line.MaterialID, &qty); err != nil {
			return nil, fmt.Errorf("failed to scan recipe line: %w", err)
		}
		if line.QtyPerUnit, err = parseDecimal(qty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// StockFor returns the stock record for a material.
func (s *SQLiteStore) StockFor(ctx context.Context, materialID string) (*engine.MaterialStock, error) {
	query := `
		SELECT material_id, name, unit, on_hand, min_threshold
		FROM materials
		WHERE material_id = ?
	`
	stock := &engine.MaterialStock{}
	var onHand, minThreshold string
	err := s.db.QueryRowContext(ctx, query, materialID).Scan(
		&stock.MaterialID, &stock.Name, &stock.Unit, &onHand, &minThreshold)
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFound("material not found", materialID)
	}
	if err != nil {
		return nil, engine.NewUpstreamUnavailable("failed to read material ledger", err)
	}

	if stock.OnHand, err = parseDecimal(onHand); err != nil {
		return nil, err
	}
	if stock.MinThreshold, err = parseDecimal(minThreshold); err != nil {
		return nil, err
	}
	return stock, nil
}

// ---------------------------------------------------------------------------
// WorkOrderStore

const workOrderColumns = `id, product_code, product_name, quantity, status, note,
	created_at, started_at, completed_at, updated_at`

func scanWorkOrder(row rowScanner) (*engine.WorkOrder, error) {
	order := &engine.WorkOrder{}
	var status string
	err := row.Scan(
		&order.ID,
		&order.ProductCode,
		&order.ProductName,
		&order.Quantity,
		&status,
		&order.Note,
		&order.CreatedAt,
		&order.StartedAt,
		&order.CompletedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.Status = engine.WorkOrderStatus(status)
	return order, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func getWorkOrder(ctx context.Context, q queryer, id string) (*engine.WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM work_orders WHERE id = ?`

	order, err := scanWorkOrder(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFound("work order not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work order: %w", err)
	}

	if order.OrderLineIDs, err = loadLineIDs(ctx, q, id); err != nil {
		return nil, err
	}
	return order, nil
}

func loadLineIDs(ctx context.Context, q queryer, workOrderID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT order_line_id FROM work_order_lines WHERE work_order_id = ? ORDER BY rowid ASC`,
		workOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load work order lines: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan line id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetWorkOrder retrieves a work order by ID, including its claimed line IDs.
func (s *SQLiteStore) GetWorkOrder(ctx context.Context, id string) (*engine.WorkOrder, error) {
	return getWorkOrder(ctx, s.db, id)
}

// ListWorkOrders returns work orders, optionally filtered by status, most
// recently created first.
func (s *SQLiteStore) ListWorkOrders(ctx context.Context, status *engine.WorkOrderStatus) ([]*engine.WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM work_orders`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	return s.queryWorkOrders(ctx, query, args...)
}

// ListOpenWorkOrders returns non-terminal work orders for a product, most
// recently created first.
func (s *SQLiteStore) ListOpenWorkOrders(ctx context.Context, productCode string) ([]*engine.WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM work_orders
		WHERE product_code = ? AND status != ?
		ORDER BY created_at DESC, id DESC`

	return s.queryWorkOrders(ctx, query, productCode, string(engine.StatusDone))
}

func (s *SQLiteStore) queryWorkOrders(ctx context.Context, query string, args ...interface{}) ([]*engine.WorkOrder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list work orders: %w", err)
	}
	defer rows.Close()

	var orders []*engine.WorkOrder
	for rows.Next() {
		order, err := scanWorkOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, order := range orders {
		if order.OrderLineIDs, err = loadLineIDs(ctx, s.db, order.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// CreateWorkOrder inserts a new planned work order, claims the given pending
// lines, and records the idempotency token, atomically.
func (s *SQLiteStore) CreateWorkOrder(ctx context.Context, order *engine.WorkOrder, lineIDs []string, token string, force bool) (*engine.WorkOrder, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		if isLocked(err) {
			return nil, engine.NewConcurrentModification("could not acquire write lock", err)
		}
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Unless the caller explicitly forced creation, re-check inside the
	// transaction that no open work order exists for this product. Two
	// racing unforced creates for the same product would otherwise both
	// commit and split demand across two orders.
	if !force {
		var openID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM work_orders WHERE product_code = ? AND status != ? LIMIT 1`,
			order.ProductCode, string(engine.StatusDone)).Scan(&openID)
		if err == nil {
			return nil, engine.NewConcurrentModification(
				fmt.Sprintf("an open work order %s appeared for product %s", openID, order.ProductCode), nil)
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to check open work orders: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO work_orders (id, product_code, product_name, quantity, status, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, order.ID, order.ProductCode, order.ProductName, order.Quantity,
		string(order.Status), order.Note, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if isLocked(err) {
			return nil, engine.NewConcurrentModification("work order insert lost a race", err)
		}
		return nil, fmt.Errorf("failed to insert work order: %w", err)
	}

	if err := claimLines(ctx, tx, order.ID, lineIDs); err != nil {
		return nil, err
	}

	if err := recordToken(ctx, tx, token, order.ID, false); err != nil {
		return nil, err
	}

	detail := fmt.Sprintf("qty %d, %d lines", order.Quantity, len(lineIDs))
	if err := appendEvent(ctx, tx, order.ID, EventCreated, detail); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if isLocked(err) {
			return nil, engine.NewConcurrentModification("commit lost a race", err)
		}
		return nil, fmt.Errorf("failed to commit work order: %w", err)
	}

	created := *order
	created.OrderLineIDs = append([]string(nil), lineIDs...)
	return &created, nil
}

// MergeWorkOrder folds additional quantity and lines into an open work order.
func (s *SQLiteStore) MergeWorkOrder(ctx context.Context, id string, quantity int64, lineIDs []string, noteAppend, token string) (*engine.WorkOrder, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		if isLocked(err) {
			return nil, engine.NewConcurrentModification("could not acquire write lock", err)
		}
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	target, err := getWorkOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !target.Status.IsOpen() {
		return nil, engine.NewInvalidTransition(
			fmt.Sprintf("work order %s is done and cannot absorb a merge", id), id)
	}

	now := time.Now().UTC()
	note := target.Note
	if noteAppend != "" {
		if note != "" {
			note += "; "
		}
		note += noteAppend
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE work_orders SET quantity = quantity + ?, note = ?, updated_at = ?
		WHERE id = ?
	`, quantity, note, now, id)
	if err != nil {
		if isLocked(err) {
			return nil, engine.NewConcurrentModification("merge update lost a race", err)
		}
		return nil, fmt.Errorf("failed to merge work order: %w", err)
	}

	if err := claimLines(ctx, tx, id, lineIDs); err != nil {
		return nil, err
	}

	if err := recordToken(ctx, tx, token, id, true); err != nil {
		return nil, err
	}

	detail := fmt.Sprintf("added qty %d, %d lines", quantity, len(lineIDs))
	if err := appendEvent(ctx, tx, id, EventMerged, detail); err != nil {
		return nil, err
	}

	merged, err := getWorkOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if isLocked(err) {
			return nil, engine.NewConcurrentModification("commit lost a race", err)
		}
		return nil, fmt.Errorf("failed to commit merge: %w", err)
	}
	return merged, nil
}

// AdvanceStatus moves a work order from one status to the next with a
// compare-and-swap on the current status.
func (s *SQLiteStore) AdvanceStatus(ctx context.Context, id string, from, to engine.WorkOrderStatus) (*engine.WorkOrder, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		if isLocked(err) {
			return nil, engine.NewConcurrentModification("could not acquire write lock", err)
		}
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var startedAt, completedAt interface{}
	query := `UPDATE work_orders SET status = ?, updated_at = ?`
	args := []interface{}{string(to), now}
	switch to {
	case engine.StatusInProgress:
		query += `, started_at = ?`
		startedAt = now
		args = append(args, startedAt)
	case engine.StatusDone:
		query += `, completed_at = ?`
		completedAt = now
		args = append(args, completedAt)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, string(from))

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if isLocked(err) {
			return nil, engine.NewConcurrentModification("status update lost a race", err)
		}
		return nil, fmt.Errorf("failed to advance work order: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		// Either the order is gone or its status changed underneath us.
		if _, err := getWorkOrder(ctx, tx, id); err != nil {
			return nil, err
		}
		return nil, engine.NewConcurrentModification(
			fmt.Sprintf("work order %s is no longer %s", id, from), nil)
	}

	detail := fmt.Sprintf("%s -> %s", from, to)
	if err := appendEvent(ctx, tx, id, EventAdvanced, detail); err != nil {
		return nil, err
	}

	advanced, err := getWorkOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if isLocked(err) {
			return nil, engine.NewConcurrentModification("commit lost a race", err)
		}
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}
	return advanced, nil
}

// DeleteWorkOrder removes a planned work order and releases its lines back to
// Pending, atomically.
func (s *SQLiteStore) DeleteWorkOrder(ctx context.Context, id string) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		if isLocked(err) {
			return engine.NewConcurrentModification("could not acquire write lock", err)
		}
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := getWorkOrder(ctx, tx, id)
	if err != nil {
		return err
	}
	if order.Status != engine.StatusPlanned {
		return engine.NewInvalidTransition(
			fmt.Sprintf("only planned work orders can be deleted, status is %s", order.Status), id)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sales_order_lines SET production_status = ?
		WHERE id IN (SELECT order_line_id FROM work_order_lines WHERE work_order_id = ?)
	`, string(engine.ProductionPending), id)
	if err != nil {
		return fmt.Errorf("failed to release order lines: %w", err)
	}

	// Cascades work_order_lines and work_order_events.
	if _, err := tx.ExecContext(ctx, `DELETE FROM work_orders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete work order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isLocked(err) {
			return engine.NewConcurrentModification("commit lost a race", err)
		}
		return fmt.Errorf("failed to commit deletion: %w", err)
	}
	return nil
}

// LookupSubmission returns the recorded outcome for an idempotency token, or
// nil when the token has not been seen. A token whose work order was deleted
// since is treated as unseen so a retry can commit fresh.
func (s *SQLiteStore) LookupSubmission(ctx context.Context, token string) (*engine.SubmitResult, error) {
	if token == "" {
		return nil, nil
	}

	var workOrderID string
	var mergeOccurred bool
	err := s.db.QueryRowContext(ctx,
		`SELECT work_order_id, merge_occurred FROM submissions WHERE token = ?`,
		token).Scan(&workOrderID, &mergeOccurred)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up submission: %w", err)
	}

	order, err := getWorkOrder(ctx, s.db, workOrderID)
	if err != nil {
		if engine.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	return &engine.SubmitResult{
		WorkOrder:     order,
		MergeOccurred: mergeOccurred,
		Replayed:      true,
	}, nil
}

// ListWorkOrderEvents returns the audit trail for a work order, oldest first.
func (s *SQLiteStore) ListWorkOrderEvents(ctx context.Context, id string) ([]engine.WorkOrderEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_order_id, event_type, detail, timestamp
		FROM work_order_events
		WHERE work_order_id = ?
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list work order events: %w", err)
	}
	defer rows.Close()

	var events []engine.WorkOrderEvent
	for rows.Next() {
		var ev engine.WorkOrderEvent
		if err := rows.Scan(&ev.ID, &ev.WorkOrderID, &ev.EventType, &ev.Detail, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ---------------------------------------------------------------------------
// transaction helpers

// claimLines flips the given pending lines to InProduction and records their
// membership. A line that is missing or already claimed fails the whole
// transaction with concurrent_modification.
func claimLines(ctx context.Context, tx *sql.Tx, workOrderID string, lineIDs []string) error {
	for _, lineID := range lineIDs {
		result, err := tx.ExecContext(ctx, `
			UPDATE sales_order_lines SET production_status = ?
			WHERE id = ? AND production_status = ?
		`, string(engine.ProductionInProduction), lineID, string(engine.ProductionPending))
		if err != nil {
			return fmt.Errorf("failed to claim order line %s: %w", lineID, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if affected == 0 {
			return engine.NewConcurrentModification(
				fmt.Sprintf("order line %s is no longer pending", lineID), nil)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO work_order_lines (work_order_id, order_line_id) VALUES (?, ?)`,
			workOrderID, lineID)
		if err != nil {
			if isUniqueViolation(err) {
				return engine.NewConcurrentModification(
					fmt.Sprintf("order line %s is claimed by another work order", lineID), nil)
			}
			return fmt.Errorf("failed to record claimed line %s: %w", lineID, err)
		}
	}
	return nil
}

// recordToken inserts the idempotency token. A duplicate token means a racing
// submission of the same batch already committed; the loser surfaces it as
// concurrent_modification so the caller can replay the recorded outcome.
func recordToken(ctx context.Context, tx *sql.Tx, token, workOrderID string, mergeOccurred bool) error {
	if token == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO submissions (token, work_order_id, merge_occurred) VALUES (?, ?, ?)`,
		token, workOrderID, mergeOccurred)
	if err != nil {
		if isUniqueViolation(err) {
			return engine.NewConcurrentModification("submission token already recorded", nil)
		}
		return fmt.Errorf("failed to record submission token: %w", err)
	}
	return nil
}

func appendEvent(ctx context.Context, tx *sql.Tx, workOrderID, eventType, detail string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO work_order_events (work_order_id, event_type, detail, timestamp)
		VALUES (?, ?, ?, ?)
	`, workOrderID, eventType, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append work order event: %w", err)
	}
	return nil
}
