package engine

import (
	"context"
	"testing"
	"time"
)

// fakeStore embeds the Store interface so only the methods a test exercises
// need implementations; the rest panic if reached.
type fakeStore struct {
	Store

	lines    []OrderLine
	linesErr error
}

func (f *fakeStore) ListPendingLines(_ context.Context, filter BatchFilter) ([]OrderLine, error) {
	if f.linesErr != nil {
		return nil, f.linesErr
	}
	return f.lines, nil
}

func pendingLine(id, code, name string, qty int64, channel, customer string) OrderLine {
	return OrderLine{
		ID:               id,
		ProductCode:      code,
		ProductName:      name,
		Quantity:         qty,
		Channel:          channel,
		CustomerName:     customer,
		ProductionStatus: ProductionPending,
		CreatedAt:        time.Now(),
	}
}

func TestListDemandBatchesGroupsByProduct(t *testing.T) {
	store := &fakeStore{lines: []OrderLine{
		pendingLine("l1", "VAN-01", "Vanilla Base", 3, "web", "Alice"),
		pendingLine("l2", "VAN-01", "Vanilla Base", 5, "phone", "Bob"),
		pendingLine("l3", "CHO-02", "Chocolate Swirl", 2, "web", "Carol"),
	}}
	e := New(store, nil, Options{})

	batches, err := e.ListDemandBatches(context.Background(), BatchFilter{})
	if err != nil {
		t.Fatalf("aggregation failed: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}

	// Biggest demand first.
	van := batches[0]
	if van.ProductCode != "VAN-01" || van.TotalQuantity != 8 {
		t.Errorf("expected VAN-01 qty 8 first, got %s qty %d", van.ProductCode, van.TotalQuantity)
	}
	if len(van.OrderLineIDs) != 2 {
		t.Errorf("expected 2 line ids, got %v", van.OrderLineIDs)
	}
	if len(van.Channels) != 2 || van.Channels[0] != "phone" || van.Channels[1] != "web" {
		t.Errorf("expected sorted deduped channels, got %v", van.Channels)
	}
	if len(van.CustomerSample) != 2 {
		t.Errorf("expected 2 sampled customers, got %v", van.CustomerSample)
	}
}

func TestListDemandBatchesUnknownSentinel(t *testing.T) {
	store := &fakeStore{lines: []OrderLine{
		pendingLine("l1", "", "Mystery Item", 4, "web", "Alice"),
		pendingLine("l2", "", "", 1, "phone", "Bob"),
	}}
	e := New(store, nil, Options{})

	batches, err := e.ListDemandBatches(context.Background(), BatchFilter{})
	if err != nil {
		t.Fatalf("aggregation failed: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected 1 sentinel batch, got %d", len(batches))
	}
	if batches[0].ProductCode != UnknownProductCode {
		t.Errorf("expected sentinel code, got %s", batches[0].ProductCode)
	}
	if batches[0].TotalQuantity != 5 {
		t.Errorf("expected qty 5, got %d", batches[0].TotalQuantity)
	}
	if batches[0].ProductName != "Mystery Item" {
		t.Errorf("expected first non-empty name, got %q", batches[0].ProductName)
	}
}

func TestListDemandBatchesSkipsNonPendingLines(t *testing.T) {
	claimed := pendingLine("l2", "VAN-01", "Vanilla Base", 5, "phone", "Bob")
	claimed.ProductionStatus = ProductionInProduction

	store := &fakeStore{lines: []OrderLine{
		pendingLine("l1", "VAN-01", "Vanilla Base", 3, "web", "Alice"),
		claimed,
	}}
	e := New(store, nil, Options{})

	batches, err := e.ListDemandBatches(context.Background(), BatchFilter{})
	if err != nil {
		t.Fatalf("aggregation failed: %v", err)
	}
	if len(batches) != 1 || batches[0].TotalQuantity != 3 {
		t.Fatalf("claimed line leaked into aggregation: %+v", batches)
	}
}

func TestListDemandBatchesDeterministicOrder(t *testing.T) {
	store := &fakeStore{lines: []OrderLine{
		pendingLine("l1", "BBB", "B", 5, "web", ""),
		pendingLine("l2", "AAA", "A", 5, "web", ""),
		pendingLine("l3", "CCC", "C", 9, "web", ""),
	}}
	e := New(store, nil, Options{})

	batches, err := e.ListDemandBatches(context.Background(), BatchFilter{})
	if err != nil {
		t.Fatalf("aggregation failed: %v", err)
	}

	got := []string{batches[0].ProductCode, batches[1].ProductCode, batches[2].ProductCode}
	want := []string{"CCC", "AAA", "BBB"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestListDemandBatchesCustomerSampleCap(t *testing.T) {
	store := &fakeStore{lines: []OrderLine{
		pendingLine("l1", "VAN-01", "Vanilla Base", 1, "web", "Alice"),
		pendingLine("l2", "VAN-01", "Vanilla Base", 1, "web", "Bob"),
		pendingLine("l3", "VAN-01", "Vanilla Base", 1, "web", "Carol"),
		pendingLine("l4", "VAN-01", "Vanilla Base", 1, "web", "Dave"),
		pendingLine("l5", "VAN-01", "Vanilla Base", 1, "web", "Alice"),
	}}
	e := New(store, nil, Options{CustomerSampleSize: 2})

	batches, err := e.ListDemandBatches(context.Background(), BatchFilter{})
	if err != nil {
		t.Fatalf("aggregation failed: %v", err)
	}
	if len(batches[0].CustomerSample) != 2 {
		t.Errorf("expected sample capped at 2, got %v", batches[0].CustomerSample)
	}
}
