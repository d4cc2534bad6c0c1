package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnknownProductCode is the sentinel grouping key for sales-order lines with
// a missing or empty product code. Such lines still appear in aggregation so
// nothing silently disappears, but their batches cannot be submitted.
const UnknownProductCode = "(unknown)"

// OrderLine is the normalized view of a sales-order line. Upstream channels
// deliver heterogeneous payloads; a per-channel adapter at the boundary maps
// them onto this one canonical shape before the engine ever sees them.
type OrderLine struct {
	ID               string           `json:"id"`
	ProductCode      string           `json:"product_code"`
	ProductName      string           `json:"product_name"`
	Quantity         int64            `json:"quantity"`
	Channel          string           `json:"channel"`
	CustomerName     string           `json:"customer_name"`
	DisplayStatus    string           `json:"display_status"`
	ProductionStatus ProductionStatus `json:"production_status"`
	CreatedAt        time.Time        `json:"created_at"`
}

// BatchFilter narrows demand aggregation. Only lines with production status
// Pending are eligible regardless of filter.
type BatchFilter struct {
	// Search is a case-insensitive substring matched against product name
	// and product code. Empty means no text filter.
	Search string `json:"search,omitempty"`

	// DisplayStatuses restricts lines to the given upstream display
	// statuses. Empty means all display statuses.
	DisplayStatuses []string `json:"display_statuses,omitempty"`
}

// DemandBatch is a computed aggregation of all pending sales-order lines
// sharing a product code. It is a view derived on every request, never a
// stored entity.
type DemandBatch struct {
	ProductCode   string   `json:"product_code"`
	ProductName   string   `json:"product_name"`
	TotalQuantity int64    `json:"total_quantity"`
	OrderLineIDs  []string `json:"order_line_ids"`
	Channels      []string `json:"channels"`

	// CustomerSample holds a small sample of distinct customer names for
	// display, capped by Options.CustomerSampleSize.
	CustomerSample []string `json:"customer_sample"`
}

// Product is the catalog record for a product code.
type Product struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// RecipeLine is one entry of a product's bill of materials: the quantity of
// a material consumed per produced unit. QtyPerUnit may be fractional.
type RecipeLine struct {
	ProductCode string          `json:"product_code"`
	Position    int             `json:"position"`
	MaterialID  string          `json:"material_id"`
	QtyPerUnit  decimal.Decimal `json:"qty_per_unit"`
}

// MaterialStock is the raw-material ledger record. The engine reads it and
// never mutates it; actual stock consumption happens downstream when
// production completes.
type MaterialStock struct {
	MaterialID   string          `json:"material_id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	OnHand       decimal.Decimal `json:"on_hand"`
	MinThreshold decimal.Decimal `json:"min_threshold"`
}

// MaterialRequirementLine is the computed need for one material given a
// batch quantity, annotated with an advisory shortage status.
type MaterialRequirementLine struct {
	MaterialID string            `json:"material_id"`
	Name       string            `json:"name"`
	Unit       string            `json:"unit"`
	Required   decimal.Decimal   `json:"required"`
	OnHand     decimal.Decimal   `json:"on_hand"`
	Status     RequirementStatus `json:"status"`
}

// WorkOrder is the persisted unit of production tracking.
type WorkOrder struct {
	ID          string          `json:"id"`
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	Status      WorkOrderStatus `json:"status"`
	Note        string          `json:"note"`

	// OrderLineIDs is the set of sales-order lines this order was created
	// or merged from. Empty for manually created orders.
	OrderLineIDs []string `json:"order_line_ids"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// MergeAction is the resolver's verdict for a submitted batch.
type MergeAction string

const (
	// ActionCreateNew indicates no open work order exists for the product;
	// a fresh one will be created.
	ActionCreateNew MergeAction = "create_new"

	// ActionMergeInto indicates the batch will fold into an existing open
	// work order.
	ActionMergeInto MergeAction = "merge_into"

	// ActionAmbiguous indicates an open work order exists and the operator
	// must choose between merging and creating.
	ActionAmbiguous MergeAction = "ambiguous"
)

// MergeDecision is the outcome of resolving a batch against open work orders.
type MergeDecision struct {
	Action MergeAction `json:"action"`

	// Target is the open work order to merge into, set for merge_into and
	// ambiguous decisions.
	Target *WorkOrder `json:"target,omitempty"`
}

// MergeChoice is the caller's explicit selection for an ambiguous submission.
type MergeChoice string

const (
	// ChoiceUnspecified lets the resolver decide; an ambiguous result is
	// surfaced to the caller.
	ChoiceUnspecified MergeChoice = ""

	// ChoiceCreateNew forces creation of a new work order.
	ChoiceCreateNew MergeChoice = "create_new"

	// ChoiceMergeInto folds the batch into the open work order named by
	// SubmitRequest.TargetID.
	ChoiceMergeInto MergeChoice = "merge_into"
)

// SubmitRequest asks the engine to commit a demand batch to production.
type SubmitRequest struct {
	Batch DemandBatch `json:"batch"`

	// Choice short-circuits merge resolution when the operator has already
	// decided. Unspecified means resolve and surface ambiguity.
	Choice MergeChoice `json:"choice,omitempty"`

	// TargetID names the merge target for ChoiceMergeInto.
	TargetID string `json:"target_id,omitempty"`

	// IdempotencyToken deduplicates client retries after a timeout. When
	// empty the engine derives one from the batch's order-line ID set.
	IdempotencyToken string `json:"idempotency_token,omitempty"`
}

// SubmitResult is the outcome of a committed submission.
type SubmitResult struct {
	WorkOrder *WorkOrder `json:"work_order"`

	// MergeOccurred is true when the batch was folded into an existing
	// order instead of creating a new one.
	MergeOccurred bool `json:"merge_occurred"`

	// Replayed is true when the idempotency token matched a previous
	// submission and the recorded outcome was returned unchanged.
	Replayed bool `json:"replayed,omitempty"`
}

// WorkOrderEvent is one audit-trail entry for a work order.
type WorkOrderEvent struct {
	ID          int64     `json:"id"`
	WorkOrderID string    `json:"work_order_id"`
	EventType   string    `json:"event_type"`
	Detail      string    `json:"detail,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
