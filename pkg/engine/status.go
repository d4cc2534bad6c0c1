package engine

import (
	"encoding/json"
	"fmt"
)

// WorkOrderStatus represents the lifecycle state of a work order.
type WorkOrderStatus string

const (
	// StatusPlanned indicates the work order is created but production has
	// not started. Only planned orders may be deleted.
	StatusPlanned WorkOrderStatus = "Planned"

	// StatusInProgress indicates production has started.
	StatusInProgress WorkOrderStatus = "InProgress"

	// StatusDone indicates production is finished. Done is terminal: no
	// transition, merge, or deletion is allowed from it.
	StatusDone WorkOrderStatus = "Done"
)

// IsTerminal returns true if the status represents a final state.
func (s WorkOrderStatus) IsTerminal() bool {
	return s == StatusDone
}

// IsOpen returns true if the work order can still accept merged demand.
func (s WorkOrderStatus) IsOpen() bool {
	return s == StatusPlanned || s == StatusInProgress
}

// Next returns the successor state. Transitions are strictly forward and
// one step at a time: Planned -> InProgress -> Done. Advancing a terminal
// order fails with invalid_transition.
func (s WorkOrderStatus) Next() (WorkOrderStatus, error) {
	switch s {
	case StatusPlanned:
		return StatusInProgress, nil
	case StatusInProgress:
		return StatusDone, nil
	case StatusDone:
		return "", NewInvalidTransition("work order is already done", string(s))
	default:
		return "", fmt.Errorf("invalid work order status: %s", s)
	}
}

// Validate checks if the work order status is valid.
func (s WorkOrderStatus) Validate() error {
	switch s {
	case StatusPlanned, StatusInProgress, StatusDone:
		return nil
	default:
		return fmt.Errorf("invalid work order status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s WorkOrderStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *WorkOrderStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = WorkOrderStatus(str)
	return s.Validate()
}

// ProductionStatus is the claim flag on a sales-order line. The engine owns
// this field exclusively; the rest of the line belongs to the order system.
type ProductionStatus string

const (
	// ProductionPending indicates the line has not been claimed by any work
	// order and is eligible for demand aggregation.
	ProductionPending ProductionStatus = "Pending"

	// ProductionInProduction indicates the line is claimed by a committed
	// work order and is excluded from aggregation.
	ProductionInProduction ProductionStatus = "InProduction"
)

// Validate checks if the production status is valid.
func (s ProductionStatus) Validate() error {
	switch s {
	case ProductionPending, ProductionInProduction:
		return nil
	default:
		return fmt.Errorf("invalid production status: %s", s)
	}
}

// RequirementStatus classifies a material requirement line against stock.
type RequirementStatus string

const (
	// RequirementOK indicates stock comfortably covers the requirement.
	RequirementOK RequirementStatus = "ok"

	// RequirementLow indicates stock covers the requirement but the
	// remainder falls below the minimum threshold.
	RequirementLow RequirementStatus = "low"

	// RequirementCritical indicates the requirement exceeds stock on hand.
	RequirementCritical RequirementStatus = "critical"

	// RequirementUnknown indicates the stock record could not be read.
	// Shortage flags are advisory, so an unreachable ledger degrades the
	// line instead of failing the preview.
	RequirementUnknown RequirementStatus = "unknown"
)
