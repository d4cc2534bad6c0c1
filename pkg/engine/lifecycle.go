package engine

import (
	"context"

	"github.com/prodline/prodline/pkg/telemetry"
)

// AdvanceWorkOrder moves a work order one step forward:
// Planned -> InProgress or InProgress -> Done. The store applies the change
// as a compare-and-swap on the current status, so two operators advancing
// the same order concurrently cannot skip a step; the loser gets
// concurrent_modification and must re-read.
func (e *Engine) AdvanceWorkOrder(ctx context.Context, id string) (*WorkOrder, error) {
	if id == "" {
		return nil, NewInvalidInput("work order id is required")
	}

	ctx, span := e.tracer.StartLifecycleSpan(ctx, "advance", id)
	defer span.End()

	order, err := e.store.GetWorkOrder(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	next, err := order.Status.Next()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	updated, err := e.store.AdvanceStatus(ctx, id, order.Status, next)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	e.metrics.RecordTransition(string(order.Status), string(next))
	e.log.WithWorkOrderID(id).Infof("work order advanced %s -> %s", order.Status, next)
	telemetry.RecordSuccess(span)
	_ = e.events.PublishWorkOrderAdvanced(id, string(order.Status), string(next))
	return updated, nil
}

// DeleteWorkOrder abandons a work order before production starts. Only
// planned orders may be deleted; the deletion and the release of every
// referenced sales-order line back to Pending happen atomically, so the
// lines reappear in the next aggregation.
func (e *Engine) DeleteWorkOrder(ctx context.Context, id string) error {
	if id == "" {
		return NewInvalidInput("work order id is required")
	}

	ctx, span := e.tracer.StartLifecycleSpan(ctx, "delete", id)
	defer span.End()

	order, err := e.store.GetWorkOrder(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if order.Status != StatusPlanned {
		err := NewInvalidTransition("only planned work orders can be deleted", id)
		telemetry.RecordError(span, err)
		return err
	}

	if err := e.store.DeleteWorkOrder(ctx, id); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	e.metrics.RecordDeletion(len(order.OrderLineIDs))
	e.log.WithWorkOrderID(id).
		Infof("work order deleted; %d order lines released", len(order.OrderLineIDs))
	telemetry.RecordSuccess(span)
	_ = e.events.PublishWorkOrderDeleted(id, len(order.OrderLineIDs))
	return nil
}

// MergeIn folds additional quantity and order lines into an open work
// order. Quantity may only grow; the line set unions and the note appends.
// The whole merge is one atomic unit with the line status flips. A done
// target is invalid_transition.
func (e *Engine) MergeIn(ctx context.Context, id string, quantity int64, orderLineIDs []string, noteAppend string) (*WorkOrder, error) {
	if id == "" {
		return nil, NewInvalidInput("work order id is required")
	}
	if quantity <= 0 {
		return nil, NewInvalidInput("merge quantity must be positive")
	}

	ctx, span := e.tracer.StartLifecycleSpan(ctx, "merge", id)
	defer span.End()

	merged, err := e.store.MergeWorkOrder(ctx, id, quantity, orderLineIDs, noteAppend, "")
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	e.log.WithWorkOrderID(id).Infof("merged %d units and %d lines", quantity, len(orderLineIDs))
	telemetry.RecordSuccess(span)
	_ = e.events.PublishWorkOrderMerged(id, merged.ProductCode, quantity)
	return merged, nil
}
