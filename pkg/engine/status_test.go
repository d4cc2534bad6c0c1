package engine

import (
	"encoding/json"
	"testing"
)

func TestWorkOrderStatusNext(t *testing.T) {
	next, err := StatusPlanned.Next()
	if err != nil || next != StatusInProgress {
		t.Errorf("Planned.Next() = %s, %v; want InProgress", next, err)
	}

	next, err = StatusInProgress.Next()
	if err != nil || next != StatusDone {
		t.Errorf("InProgress.Next() = %s, %v; want Done", next, err)
	}

	_, err = StatusDone.Next()
	if !IsInvalidTransition(err) {
		t.Errorf("Done.Next() error = %v; want invalid_transition", err)
	}

	_, err = WorkOrderStatus("Bogus").Next()
	if err == nil {
		t.Errorf("expected error for invalid status")
	}
}

func TestWorkOrderStatusPredicates(t *testing.T) {
	if StatusPlanned.IsTerminal() || StatusInProgress.IsTerminal() {
		t.Errorf("only Done is terminal")
	}
	if !StatusDone.IsTerminal() {
		t.Errorf("Done must be terminal")
	}

	if !StatusPlanned.IsOpen() || !StatusInProgress.IsOpen() {
		t.Errorf("Planned and InProgress must be open")
	}
	if StatusDone.IsOpen() {
		t.Errorf("Done must not be open")
	}
}

func TestWorkOrderStatusJSON(t *testing.T) {
	data, err := json.Marshal(StatusInProgress)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"InProgress"` {
		t.Errorf("unexpected JSON: %s", data)
	}

	var s WorkOrderStatus
	if err := json.Unmarshal([]byte(`"Done"`), &s); err != nil || s != StatusDone {
		t.Errorf("unmarshal Done failed: %s, %v", s, err)
	}

	if err := json.Unmarshal([]byte(`"Cancelled"`), &s); err == nil {
		t.Errorf("expected error for unknown status")
	}
}

func TestErrorKinds(t *testing.T) {
	err := NewNotFound("work order not found", "wo-1").WithOperation("get")
	if !IsNotFound(err) {
		t.Errorf("expected not_found predicate to match")
	}
	if IsRetryable(err) {
		t.Errorf("not_found must not be retryable")
	}

	conflict := NewConcurrentModification("lost race", nil)
	if !IsConcurrentModification(conflict) || !IsRetryable(conflict) {
		t.Errorf("concurrent_modification must be retryable")
	}

	upstream := NewUpstreamUnavailable("ledger down", nil)
	if !IsUpstreamUnavailable(upstream) || !IsRetryable(upstream) {
		t.Errorf("upstream_unavailable must be retryable")
	}

	ambiguous := NewAmbiguousMerge(&WorkOrder{ID: "wo-2", ProductCode: "VAN-01"})
	if !IsAmbiguousMerge(ambiguous) {
		t.Errorf("expected ambiguous_merge predicate to match")
	}
	if ambiguous.Target == nil || ambiguous.Target.ID != "wo-2" {
		t.Errorf("ambiguous error must carry its target")
	}

	if KindOf(nil) != "" {
		t.Errorf("KindOf(nil) must be empty")
	}
}

func TestDeriveIdempotencyToken(t *testing.T) {
	a := DeriveIdempotencyToken([]string{"l1", "l2", "l3"})
	b := DeriveIdempotencyToken([]string{"l3", "l1", "l2"})
	if a != b {
		t.Errorf("token must be order-insensitive: %s != %s", a, b)
	}

	c := DeriveIdempotencyToken([]string{"l1", "l2"})
	if a == c {
		t.Errorf("different line sets must yield different tokens")
	}

	// Concatenation ambiguity: {"ab","c"} vs {"a","bc"}.
	d := DeriveIdempotencyToken([]string{"ab", "c"})
	e := DeriveIdempotencyToken([]string{"a", "bc"})
	if d == e {
		t.Errorf("token must separate ids: %s == %s", d, e)
	}
}
