package engine

import "context"

// LineSource reads normalized sales-order lines. The order system owns the
// lines; the engine only reads them here and flips production status through
// the WorkOrderStore commit operations.
type LineSource interface {
	// ListPendingLines returns lines with production status Pending that
	// match the filter. Ordering is unspecified; the aggregator sorts.
	ListPendingLines(ctx context.Context, filter BatchFilter) ([]OrderLine, error)
}

// Catalog resolves product codes against the external product catalog.
type Catalog interface {
	// GetProduct returns the product for a code, or a not_found error.
	GetProduct(ctx context.Context, code string) (*Product, error)

	// EnsureProduct returns the product for a code, registering a minimal
	// record when the catalog allows free registration. Returns not_found
	// when registration is disabled and the code is unknown.
	EnsureProduct(ctx context.Context, code string) (*Product, error)
}

// MaterialLedger is the read-only view over bills of materials and
// raw-material stock.
type MaterialLedger interface {
	// RecipeFor returns the bill of materials for a product in recipe
	// order. Products without a recipe return an empty slice, nil error.
	RecipeFor(ctx context.Context, productCode string) ([]RecipeLine, error)

	// StockFor returns the stock record for a material, or a not_found
	// error when no record exists.
	StockFor(ctx context.Context, materialID string) (*MaterialStock, error)
}

// WorkOrderStore persists work orders and applies the engine's mutating
// operations atomically. Every mutation that touches sales-order lines must
// apply the work-order change and the line status flips as one unit: readers
// must never observe lines in production without a matching work order, or
// the reverse.
type WorkOrderStore interface {
	GetWorkOrder(ctx context.Context, id string) (*WorkOrder, error)
	ListWorkOrders(ctx context.Context, status *WorkOrderStatus) ([]*WorkOrder, error)

	// ListOpenWorkOrders returns non-terminal work orders for a product,
	// most recently created first.
	ListOpenWorkOrders(ctx context.Context, productCode string) ([]*WorkOrder, error)

	// CreateWorkOrder inserts a new planned work order, claims the given
	// pending lines, and records the idempotency token, atomically. Unless
	// force is set, the transaction re-checks that no open work order
	// exists for the product; a concurrent open order or an already
	// claimed line surfaces as concurrent_modification. Force is for
	// explicit operator overrides (a confirmed create-new choice, manual
	// intake) where coexisting open orders are intended.
	CreateWorkOrder(ctx context.Context, order *WorkOrder, lineIDs []string, token string, force bool) (*WorkOrder, error)

	// MergeWorkOrder folds additional quantity and lines into an open work
	// order, appends to its note, and records the idempotency token,
	// atomically. A done target is invalid_transition, a missing one
	// not_found.
	MergeWorkOrder(ctx context.Context, id string, quantity int64, lineIDs []string, noteAppend, token string) (*WorkOrder, error)

	// AdvanceStatus moves a work order from one status to the next with a
	// compare-and-swap on the current status. A lost race surfaces as
	// concurrent_modification.
	AdvanceStatus(ctx context.Context, id string, from, to WorkOrderStatus) (*WorkOrder, error)

	// DeleteWorkOrder removes a planned work order and releases its lines
	// back to Pending, atomically. Deletion of a non-planned order fails
	// with invalid_transition.
	DeleteWorkOrder(ctx context.Context, id string) error

	// LookupSubmission returns the recorded outcome for an idempotency
	// token, or nil when the token has not been seen.
	LookupSubmission(ctx context.Context, token string) (*SubmitResult, error)

	// ListWorkOrderEvents returns the audit trail for a work order, oldest
	// first.
	ListWorkOrderEvents(ctx context.Context, id string) ([]WorkOrderEvent, error)
}

// Store aggregates every persistence capability the engine needs.
type Store interface {
	LineSource
	Catalog
	MaterialLedger
	WorkOrderStore
}
