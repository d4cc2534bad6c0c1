package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/prodline/prodline/pkg/telemetry"
)

// PreviewMaterialNeeds multiplies a batch quantity through a product's bill
// of materials and diffs each line against current stock. The call is pure:
// it never mutates stock and is safe to run speculatively before committing
// a batch. Products without a recipe are materials-free (resale goods) and
// yield an empty list.
//
// Shortage flags are advisory. A stock record that cannot be read degrades
// the line to status unknown instead of failing the whole preview.
func (e *Engine) PreviewMaterialNeeds(ctx context.Context, productCode string, quantity int64) ([]MaterialRequirementLine, error) {
	if productCode == "" {
		return nil, NewInvalidInput("product code is required")
	}
	if quantity <= 0 {
		return nil, NewInvalidInput("quantity must be positive")
	}

	ctx, span := e.tracer.StartPreviewSpan(ctx, productCode, quantity)
	defer span.End()

	recipe, err := e.store.RecipeFor(ctx, productCode)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if len(recipe) == 0 {
		return []MaterialRequirementLine{}, nil
	}

	qty := decimal.NewFromInt(quantity)
	lines := make([]MaterialRequirementLine, 0, len(recipe))
	shortages := 0

	for _, rl := range recipe {
		required := rl.QtyPerUnit.Mul(qty)

		line := MaterialRequirementLine{
			MaterialID: rl.MaterialID,
			Required:   required,
		}

		stock, err := e.store.StockFor(ctx, rl.MaterialID)
		switch {
		case err == nil:
			line.Name = stock.Name
			line.Unit = stock.Unit
			line.OnHand = stock.OnHand
			line.Status = classifyRequirement(required, stock.OnHand, stock.MinThreshold)
		case IsNotFound(err):
			// No ledger record means nothing on hand.
			line.OnHand = decimal.Zero
			line.Status = classifyRequirement(required, decimal.Zero, decimal.Zero)
		case IsUpstreamUnavailable(err):
			line.Status = RequirementUnknown
			e.log.WithError(err).Warnf("material ledger unavailable for %s; degrading to unknown", rl.MaterialID)
		default:
			telemetry.RecordError(span, err)
			return nil, err
		}

		if line.Status == RequirementLow || line.Status == RequirementCritical {
			shortages++
			_ = e.events.PublishShortageDetected(productCode, line.MaterialID, string(line.Status))
		}
		lines = append(lines, line)
	}

	e.metrics.RecordMaterialPreview(len(lines), shortages)
	telemetry.RecordSuccess(span)
	return lines, nil
}

// classifyRequirement applies the shortage rule: critical when the
// requirement exceeds stock on hand, low when the remainder stays under the
// minimum threshold, ok otherwise. Comparisons run at the precision of the
// stock records; no rounding is introduced here.
func classifyRequirement(required, onHand, minThreshold decimal.Decimal) RequirementStatus {
	if required.GreaterThan(onHand) {
		return RequirementCritical
	}
	if onHand.Sub(required).LessThan(minThreshold) {
		return RequirementLow
	}
	return RequirementOK
}
