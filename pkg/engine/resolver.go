package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prodline/prodline/pkg/telemetry"
)

// Resolve decides whether a demand batch should fold into an existing open
// work order for the same product or create a new one. With no open order
// the decision is create_new. With an open order the decision is ambiguous
// and the operator must choose. More than one open order is a leftover from
// an operator override or a historical race; the most recently created one
// becomes the merge target and the anomaly is reported, not fatal.
func (e *Engine) Resolve(ctx context.Context, batch DemandBatch) (MergeDecision, error) {
	open, err := e.store.ListOpenWorkOrders(ctx, batch.ProductCode)
	if err != nil {
		return MergeDecision{}, err
	}

	switch len(open) {
	case 0:
		return MergeDecision{Action: ActionCreateNew}, nil
	case 1:
		return MergeDecision{Action: ActionAmbiguous, Target: open[0]}, nil
	default:
		e.log.WithProductCode(batch.ProductCode).
			Warnf("found %d open work orders for one product; merging into the newest", len(open))
		e.metrics.RecordOpenOrderAnomaly(batch.ProductCode)
		return MergeDecision{Action: ActionAmbiguous, Target: open[0]}, nil
	}
}

// SubmitBatch commits a demand batch to production. The work-order
// create-or-merge and the Pending -> InProduction flip of every constituent
// line are applied as one atomic unit; on any failure none of them change.
//
// Without an explicit choice an open work order surfaces as an
// ambiguous_merge error carrying the candidate target; the caller resubmits
// with ChoiceMergeInto or ChoiceCreateNew. A submission that loses a commit
// race against a concurrent create converges by merging into the winner,
// since the operator never saw a competing order to choose between. Retries
// are bounded; persistent contention surfaces as concurrent_modification.
func (e *Engine) SubmitBatch(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	ctx, span := e.tracer.StartSubmitSpan(ctx, req.Batch.ProductCode, len(req.Batch.OrderLineIDs))
	defer span.End()

	result, err := e.submitBatch(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(span)

	if !result.Replayed {
		if result.MergeOccurred {
			_ = e.events.PublishWorkOrderMerged(result.WorkOrder.ID, result.WorkOrder.ProductCode, req.Batch.TotalQuantity)
		} else {
			_ = e.events.PublishWorkOrderCreated(result.WorkOrder.ID, result.WorkOrder.ProductCode, result.WorkOrder.Quantity, false)
		}
	}
	return result, nil
}

func (e *Engine) submitBatch(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := validateSubmit(req.Batch); err != nil {
		return nil, err
	}
	if req.Choice == ChoiceMergeInto && req.TargetID == "" {
		return nil, NewInvalidInput("merge_into requires a target work order id")
	}

	token := req.IdempotencyToken
	if token == "" {
		token = DeriveIdempotencyToken(req.Batch.OrderLineIDs)
	}

	// A token seen before means a retry after a reported timeout: return
	// the recorded outcome, apply nothing twice.
	if prior, err := e.store.LookupSubmission(ctx, token); err != nil {
		return nil, err
	} else if prior != nil {
		prior.Replayed = true
		return prior, nil
	}

	product, err := e.store.GetProduct(ctx, req.Batch.ProductCode)
	if err != nil {
		return nil, err
	}

	choice := req.Choice
	targetID := req.TargetID
	forced := choice != ChoiceUnspecified

	var lastErr error
	for attempt := 0; attempt <= e.opts.MaxCommitRetries; attempt++ {
		if choice == ChoiceUnspecified {
			decision, err := e.Resolve(ctx, req.Batch)
			if err != nil {
				return nil, err
			}
			if decision.Action == ActionAmbiguous {
				if attempt == 0 {
					return nil, NewAmbiguousMerge(decision.Target).WithOperation("submit_batch")
				}
				// The open order appeared mid-submission; converge on it.
				choice, targetID = ChoiceMergeInto, decision.Target.ID
			} else {
				choice = ChoiceCreateNew
			}
		}

		var result *SubmitResult
		switch choice {
		case ChoiceCreateNew:
			order := newWorkOrder(product, req.Batch.TotalQuantity, batchNote(req.Batch))
			created, err := e.store.CreateWorkOrder(ctx, order, req.Batch.OrderLineIDs, token, forced)
			if err != nil {
				lastErr = err
			} else {
				result = &SubmitResult{WorkOrder: created}
			}
		case ChoiceMergeInto:
			merged, err := e.store.MergeWorkOrder(ctx, targetID, req.Batch.TotalQuantity,
				req.Batch.OrderLineIDs, batchNote(req.Batch), token)
			if err != nil {
				// A target that went Done between resolution and commit is a
				// race from the submitter's view, not an operator mistake.
				if IsInvalidTransition(err) {
					err = NewConcurrentModification(
						"merge target finished during submission; re-resolve the batch", err)
				}
				lastErr = err
			} else {
				result = &SubmitResult{WorkOrder: merged, MergeOccurred: true}
			}
		}

		if result != nil {
			e.metrics.RecordSubmission(string(choice), result.MergeOccurred)
			e.log.WithWorkOrderID(result.WorkOrder.ID).
				WithProductCode(result.WorkOrder.ProductCode).
				Infof("batch committed: quantity=%d merged=%v lines=%d",
					req.Batch.TotalQuantity, result.MergeOccurred, len(req.Batch.OrderLineIDs))
			return result, nil
		}

		// A replayed token inserted by a racing duplicate of this same
		// submission reads back as the recorded outcome.
		if IsConcurrentModification(lastErr) {
			if prior, lerr := e.store.LookupSubmission(ctx, token); lerr == nil && prior != nil {
				prior.Replayed = true
				return prior, nil
			}
			e.metrics.RecordCommitConflict("submit_batch")
			e.log.WithProductCode(req.Batch.ProductCode).
				Warnf("commit lost a race (attempt %d); re-resolving", attempt+1)
			// Re-resolve from scratch unless the operator pinned the action.
			if !forced {
				choice, targetID = ChoiceUnspecified, ""
			}
			continue
		}

		// A pinned merge target that was deleted concurrently needs a fresh
		// operator decision, not a silent fallback.
		if forced && choice == ChoiceMergeInto && IsNotFound(lastErr) {
			return nil, NewConcurrentModification("merge target no longer exists; re-resolve the batch", lastErr)
		}

		return nil, lastErr
	}

	return nil, NewConcurrentModification("submission kept losing commit races; re-read and retry", lastErr)
}

func validateSubmit(batch DemandBatch) error {
	if batch.ProductCode == "" {
		return NewInvalidInput("batch product code is required")
	}
	if batch.ProductCode == UnknownProductCode {
		return NewInvalidInput("batches for unidentified products cannot be submitted")
	}
	if batch.TotalQuantity <= 0 {
		return NewInvalidInput("batch quantity must be positive")
	}
	if len(batch.OrderLineIDs) == 0 {
		return NewInvalidInput("batch has no order lines")
	}
	return nil
}

func newWorkOrder(product *Product, quantity int64, note string) *WorkOrder {
	now := time.Now().UTC()
	return &WorkOrder{
		ID:          uuid.NewString(),
		ProductCode: product.Code,
		ProductName: product.Name,
		Quantity:    quantity,
		Status:      StatusPlanned,
		Note:        note,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func batchNote(batch DemandBatch) string {
	if len(batch.Channels) == 0 {
		return ""
	}
	return "demand from " + strings.Join(batch.Channels, ", ")
}

// DeriveIdempotencyToken computes the default submission token from the
// batch's order-line ID set. The same set always yields the same token, so
// client retries after a timeout deduplicate server-side.
func DeriveIdempotencyToken(orderLineIDs []string) string {
	ids := make([]string, len(orderLineIDs))
	copy(ids, orderLineIDs)
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
