package engine

import (
	"context"
	"sort"

	"github.com/prodline/prodline/pkg/telemetry"
)

// ListDemandBatches groups pending sales-order lines by product code into
// demand batches. The result is recomputed from the current lines on every
// call; it is a view, never a stored entity. Lines without a product code
// group under the UnknownProductCode sentinel so nothing silently
// disappears.
func (e *Engine) ListDemandBatches(ctx context.Context, filter BatchFilter) ([]DemandBatch, error) {
	timer := telemetry.NewTimer()
	ctx, span := e.tracer.StartAggregationSpan(ctx, filter.Search)
	defer span.End()

	lines, err := e.store.ListPendingLines(ctx, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	byProduct := make(map[string]*DemandBatch)
	channels := make(map[string]map[string]bool)
	customers := make(map[string]map[string]bool)

	for _, line := range lines {
		// Eligibility is the store's job, but a mislabeled line must never
		// reach a batch.
		if line.ProductionStatus != ProductionPending {
			continue
		}

		key := line.ProductCode
		if key == "" {
			key = UnknownProductCode
		}

		batch, ok := byProduct[key]
		if !ok {
			batch = &DemandBatch{
				ProductCode: key,
				ProductName: line.ProductName,
			}
			byProduct[key] = batch
			channels[key] = make(map[string]bool)
			customers[key] = make(map[string]bool)
		}

		batch.TotalQuantity += line.Quantity
		batch.OrderLineIDs = append(batch.OrderLineIDs, line.ID)
		if batch.ProductName == "" {
			batch.ProductName = line.ProductName
		}

		if line.Channel != "" && !channels[key][line.Channel] {
			channels[key][line.Channel] = true
			batch.Channels = append(batch.Channels, line.Channel)
		}
		if line.CustomerName != "" && !customers[key][line.CustomerName] {
			customers[key][line.CustomerName] = true
			if len(batch.CustomerSample) < e.opts.CustomerSampleSize {
				batch.CustomerSample = append(batch.CustomerSample, line.CustomerName)
			}
		}
	}

	batches := make([]DemandBatch, 0, len(byProduct))
	for _, batch := range byProduct {
		sort.Strings(batch.Channels)
		batches = append(batches, *batch)
	}

	// Deterministic ordering for a fixed input set: biggest demand first,
	// product code as tie-break.
	sort.Slice(batches, func(i, j int) bool {
		if batches[i].TotalQuantity != batches[j].TotalQuantity {
			return batches[i].TotalQuantity > batches[j].TotalQuantity
		}
		return batches[i].ProductCode < batches[j].ProductCode
	})

	e.metrics.RecordAggregation(len(batches), len(lines), timer.Duration())
	e.log.Debugf("aggregated %d pending lines into %d batches", len(lines), len(batches))
	telemetry.RecordSuccess(span)

	return batches, nil
}
