package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prodline/prodline/pkg/engine"
)

// Work-order event types written to the audit trail.
const (
	EventCreated  = "created"
	EventMerged   = "merged"
	EventAdvanced = "advanced"
)

// SeedProduct registers or updates a catalog product.
func (s *SQLiteStore) SeedProduct(ctx context.Context, code, name string) error {
	query := `
		INSERT INTO products (id, code, name)
		VALUES (?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET name = excluded.name
	`
	if _, err := s.db.ExecContext(ctx, query, uuid.NewString(), code, name); err != nil {
		return fmt.Errorf("failed to seed product %s: %w", code, err)
	}
	return nil
}

// SeedMaterial registers or updates a raw-material ledger record.
func (s *SQLiteStore) SeedMaterial(ctx context.Context, m engine.MaterialStock) error {
	query := `
		INSERT INTO materials (material_id, name, unit, on_hand, min_threshold)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(material_id) DO UPDATE SET
			name = excluded.name,
			unit = excluded.unit,
			on_hand = excluded.on_hand,
			min_threshold = excluded.min_threshold
	`
	_, err := s.db.ExecContext(ctx, query,
		m.MaterialID, m.Name, m.Unit, m.OnHand.String(), m.MinThreshold.String())
	if err != nil {
		return fmt.Errorf("failed to seed material %s: %w", m.MaterialID, err)
	}
	return nil
}

// ReplaceRecipe replaces the full bill of materials for a product.
func (s *SQLiteStore) ReplaceRecipe(ctx context.Context, productCode string, lines []engine.RecipeLine) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_lines WHERE product_code = ?`, productCode); err != nil {
		return fmt.Errorf("failed to clear recipe for %s: %w", productCode, err)
	}

	for i, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recipe_lines (product_code, position, material_id, qty_per_unit)
			VALUES (?, ?, ?, ?)
		`, productCode, i, line.MaterialID, line.QtyPerUnit.String())
		if err != nil {
			return fmt.Errorf("failed to insert recipe line for %s: %w", productCode, err)
		}
	}

	return tx.Commit()
}

// InsertOrderLine inserts a normalized sales-order line. Zero timestamps and
// an empty production status default to now and Pending.
func (s *SQLiteStore) InsertOrderLine(ctx context.Context, line engine.OrderLine) error {
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	if line.ProductionStatus == "" {
		line.ProductionStatus = engine.ProductionPending
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sales_order_lines
			(id, product_code, product_name, quantity, channel, customer_name,
			 display_status, production_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		line.ID, line.ProductCode, line.ProductName, line.Quantity,
		line.Channel, line.CustomerName, line.DisplayStatus,
		string(line.ProductionStatus), line.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order line: %w", err)
	}
	return nil
}

// GetOrderLine returns one sales-order line by ID.
func (s *SQLiteStore) GetOrderLine(ctx context.Context, id string) (*engine.OrderLine, error) {
	query := `
		SELECT id, product_code, product_name, quantity, channel, customer_name,
		       display_status, production_status, created_at
		FROM sales_order_lines
		WHERE id = ?
	`
	line, err := scanOrderLine(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return line, nil
}

func newID() string {
	return uuid.NewString()
}

// parseDecimal converts a stored decimal string back into a decimal value.
func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored decimal %q: %w", s, err)
	}
	return d, nil
}
