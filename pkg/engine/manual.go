package engine

import (
	"context"
	"strings"

	"github.com/prodline/prodline/pkg/telemetry"
)

// ManualIntake describes an operator-specified work order that bypasses
// demand aggregation.
type ManualIntake struct {
	ProductCode string `json:"product_code"`
	Quantity    int64  `json:"quantity"`
	Note        string `json:"note,omitempty"`

	// IdempotencyToken deduplicates client retries. Optional; manual
	// intake has no order-line set to derive one from.
	IdempotencyToken string `json:"idempotency_token,omitempty"`
}

// CreateManualWorkOrder creates a planned work order directly from a
// product code and quantity. It always creates, never merges, even when an
// open work order for the same product exists: manual intake is an explicit
// operator override and must not silently combine with demand-driven
// batches. The resulting order carries an empty order-line set.
func (e *Engine) CreateManualWorkOrder(ctx context.Context, intake ManualIntake) (*WorkOrder, error) {
	code := strings.TrimSpace(intake.ProductCode)
	if code == "" {
		return nil, NewInvalidInput("product code is required")
	}
	if intake.Quantity <= 0 {
		return nil, NewInvalidInput("quantity must be positive")
	}

	ctx, span := e.tracer.StartSpan(ctx, "work_order.manual_intake",
		telemetry.AttrProductCode.String(code))
	defer span.End()

	if intake.IdempotencyToken != "" {
		prior, err := e.store.LookupSubmission(ctx, intake.IdempotencyToken)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return prior.WorkOrder, nil
		}
	}

	// The catalog may auto-register a minimal product record; whether it
	// does is a collaborator concern, surfaced here as not_found when
	// registration is disabled.
	product, err := e.store.EnsureProduct(ctx, code)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	order := newWorkOrder(product, intake.Quantity, intake.Note)
	created, err := e.store.CreateWorkOrder(ctx, order, nil, intake.IdempotencyToken, true)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	e.metrics.RecordManualIntake()
	e.log.WithWorkOrderID(created.ID).
		WithProductCode(created.ProductCode).
		Infof("manual work order created: quantity=%d", created.Quantity)
	telemetry.RecordSuccess(span)
	_ = e.events.PublishWorkOrderCreated(created.ID, created.ProductCode, created.Quantity, true)
	return created, nil
}
