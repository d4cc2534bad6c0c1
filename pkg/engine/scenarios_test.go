package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prodline/prodline/pkg/engine"
	"github.com/prodline/prodline/pkg/stores"
	"github.com/prodline/prodline/pkg/telemetry"
)

func setupEngine(t *testing.T) (*engine.Engine, *stores.SQLiteStore) {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return engine.New(store, nil, engine.DefaultOptions()), store
}

func seedCatalog(t *testing.T, store *stores.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	for code, name := range map[string]string{
		"VAN-01": "Vanilla Base",
		"CHO-02": "Chocolate Swirl",
	} {
		if err := store.SeedProduct(ctx, code, name); err != nil {
			t.Fatalf("failed to seed product: %v", err)
		}
	}
}

func seedLines(t *testing.T, store *stores.SQLiteStore, lines ...engine.OrderLine) []string {
	t.Helper()

	ids := make([]string, 0, len(lines))
	for i := range lines {
		if err := store.InsertOrderLine(context.Background(), lines[i]); err != nil {
			t.Fatalf("failed to insert order line: %v", err)
		}
	}

	// IDs were generated on insert; read them back.
	got, err := store.ListPendingLines(context.Background(), engine.BatchFilter{})
	if err != nil {
		t.Fatalf("failed to list lines: %v", err)
	}
	for _, l := range got {
		ids = append(ids, l.ID)
	}
	return ids
}

func line(code, name string, qty int64, channel, customer string) engine.OrderLine {
	return engine.OrderLine{
		ProductCode:  code,
		ProductName:  name,
		Quantity:     qty,
		Channel:      channel,
		CustomerName: customer,
	}
}

func batchFor(t *testing.T, e *engine.Engine, productCode string) engine.DemandBatch {
	t.Helper()

	batches, err := e.ListDemandBatches(context.Background(), engine.BatchFilter{})
	if err != nil {
		t.Fatalf("aggregation failed: %v", err)
	}
	for _, b := range batches {
		if b.ProductCode == productCode {
			return b
		}
	}
	t.Fatalf("no batch for product %s", productCode)
	return engine.DemandBatch{}
}

// Two pending lines for one product aggregate into a single batch, and
// submitting it creates one planned work order claiming both lines.
func TestAggregateAndSubmitBatch(t *testing.T) {
	e, store := setupEngine(t)
	seedCatalog(t, store)
	ctx := context.Background()

	seedLines(t, store,
		line("VAN-01", "Vanilla Base", 3, "web", "Alice"),
		line("VAN-01", "Vanilla Base", 5, "phone", "Bob"),
		line("CHO-02", "Chocolate Swirl", 2, "web", "Carol"),
	)

	batch := batchFor(t, e, "VAN-01")
	if batch.TotalQuantity != 8 || len(batch.OrderLineIDs) != 2 {
		t.Fatalf("unexpected batch: qty=%d lines=%d", batch.TotalQuantity, len(batch.OrderLineIDs))
	}

	result, err := e.SubmitBatch(ctx, engine.SubmitRequest{Batch: batch})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.MergeOccurred || result.Replayed {
		t.Errorf("first submission must create fresh: %+v", result)
	}
	if result.WorkOrder.Quantity != 8 || result.WorkOrder.Status != engine.StatusPlanned {
		t.Errorf("unexpected work order: %+v", result.WorkOrder)
	}

	// The claimed lines leave the demand pool.
	batches, err := e.ListDemandBatches(ctx, engine.BatchFilter{})
	if err != nil {
		t.Fatalf("aggregation failed: %v", err)
	}
	for _, b := range batches {
		if b.ProductCode == "VAN-01" {
			t.Errorf("submitted batch still aggregating: %+v", b)
		}
	}
}

// Submitting the same batch again replays the recorded outcome instead of
// committing twice.
func TestSubmitBatchIdempotentReplay(t *testing.T) {
	e, store := setupEngine(t)
	seedCatalog(t, store)
	ctx := context.Background()

	seedLines(t, store, line("VAN-01", "Vanilla Base", 8, "web", "Alice"))
	batch := batchFor(t, e, "VAN-01")

	first, err := e.SubmitBatch(ctx, engine.SubmitRequest{Batch: batch})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// A client retry carries the same batch, hence the same derived token.
	second, err := e.SubmitBatch(ctx, engine.SubmitRequest{Batch: batch})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !second.Replayed {
		t.Errorf("expected replayed result")
	}
	if second.WorkOrder.ID != first.WorkOrder.ID {
		t.Errorf("replay returned a different work order")
	}
	if second.WorkOrder.Quantity != 8 {
		t.Errorf("replay must not re-apply quantity, got %d", second.WorkOrder.Quantity)
	}
}

// Submitting while an open work order exists surfaces the merge choice, and
// an explicit merge folds the batch in.
func TestSubmitBatchAmbiguousThenMerge(t *testing.T) {
	e, store := setupEngine(t)
	seedCatalog(t, store)
	ctx := context.Background()

	seedLines(t, store, line("VAN-01", "Vanilla Base", 4, "web", "Alice"))
	first, err := e.SubmitBatch(ctx, engine.SubmitRequest{Batch: batchFor(t, e, "VAN-01")})
	if err != nil {
		t.Fatalf("initial submit failed: %v", err)
	}

	seedLines(t, store, line("VAN-01", "Vanilla Base", 8, "phone", "Bob"))
	batch := batchFor(t, e, "VAN-01")

	_, err = e.SubmitBatch(ctx, engine.SubmitRequest{Batch: batch})
	if !engine.IsAmbiguousMerge(err) {
		t.Fatalf("expected ambiguous_merge, got %v", err)
	}
	var engErr *engine.Error
	if !errors.As(err, &engErr) || engErr.Target == nil || engErr.Target.ID != first.WorkOrder.ID {
		t.Fatalf("ambiguous error must carry the open order, got %+v", engErr)
	}

	result, err := e.SubmitBatch(ctx, engine.SubmitRequest{
		Batch:    batch,
		Choice:   engine.ChoiceMergeInto,
		TargetID: first.WorkOrder.ID,
	})
	if err != nil {
		t.Fatalf("merge submit failed: %v", err)
	}
	if !result.MergeOccurred {
		t.Errorf("expected a merge")
	}
	if result.WorkOrder.Quantity != 12 {
		t.Errorf("expected merged quantity 12, got %d", result.WorkOrder.Quantity)
	}
	if len(result.WorkOrder.OrderLineIDs) != 2 {
		t.Errorf("expected union of line sets, got %v", result.WorkOrder.OrderLineIDs)
	}
}

// An explicit create-new choice coexists with the open order.
func TestSubmitBatchExplicitCreateNew(t *testing.T) {
	e, store := setupEngine(t)
	seedCatalog(t, store)
	ctx := context.Background()

	seedLines(t, store, line("VAN-01", "Vanilla Base", 4, "web", "Alice"))
	if _, err := e.SubmitBatch(ctx, engine.SubmitRequest{Batch: batchFor(t, e, "VAN-01")}); err != nil {
		t.Fatalf("initial submit failed: %v", err)
	}

	seedLines(t, store, line("VAN-01", "Vanilla Base", 6, "phone", "Bob"))
	result, err := e.SubmitBatch(ctx, engine.SubmitRequest{
		Batch:  batchFor(t, e, "VAN-01"),
		Choice: engine.ChoiceCreateNew,
	})
	if err != nil {
		t.Fatalf("create-new submit failed: %v", err)
	}
	if result.MergeOccurred {
		t.Errorf("explicit create-new must not merge")
	}

	open, err := store.ListOpenWorkOrders(ctx, "VAN-01")
	if err != nil {
		t.Fatalf("failed to list open orders: %v", err)
	}
	if len(open) != 2 {
		t.Errorf("expected 2 coexisting open orders, got %d", len(open))
	}
}

// Deleting a planned order returns its demand to the pool.
func TestDeletePlannedOrderRestoresDemand(t *testing.T) {
	e, store := setupEngine(t)
	seedCatalog(t, store)
	ctx := context.Background()

	seedLines(t, store,
		line("VAN-01", "Vanilla Base", 3, "web", "Alice"),
		line("VAN-01", "Vanilla Base", 5, "phone", "Bob"),
	)
	result, err := e.SubmitBatch(ctx, engine.SubmitRequest{Batch: batchFor(t, e, "VAN-01")})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if err := e.DeleteWorkOrder(ctx, result.WorkOrder.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	restored := batchFor(t, e, "VAN-01")
	if restored.TotalQuantity != 8 || len(restored.OrderLineIDs) != 2 {
		t.Errorf("expected full demand restored, got qty=%d lines=%d",
			restored.TotalQuantity, len(restored.OrderLineIDs))
	}

	if _, err := e.GetWorkOrder(ctx, result.WorkOrder.ID); !engine.IsNotFound(err) {
		t.Errorf("deleted order still readable: %v", err)
	}
}

// Concurrent submissions for the same product converge on a single open work
// order carrying the combined quantity; no line is lost or double-claimed.
func TestConcurrentSubmissionsConverge(t *testing.T) {
	e, store := setupEngine(t)
	seedCatalog(t, store)
	ctx := context.Background()

	seedLines(t, store, line("VAN-01", "Vanilla Base", 8, "web", "Alice"))
	allIDs := seedLines(t, store, line("VAN-01", "Vanilla Base", 8, "phone", "Bob"))
	if len(allIDs) != 2 {
		t.Fatalf("expected 2 seeded lines, got %d", len(allIDs))
	}

	batches := []engine.DemandBatch{
		{ProductCode: "VAN-01", TotalQuantity: 8, OrderLineIDs: allIDs[:1], Channels: []string{"web"}},
		{ProductCode: "VAN-01", TotalQuantity: 8, OrderLineIDs: allIDs[1:], Channels: []string{"phone"}},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(batches))
	for i := range batches {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.SubmitBatch(ctx, engine.SubmitRequest{Batch: batches[i]})
			// A submission that observed the winner before committing
			// surfaces the choice; merging is the convergent answer.
			if engine.IsAmbiguousMerge(err) {
				var engErr *engine.Error
				if errors.As(err, &engErr) && engErr.Target != nil {
					_, err = e.SubmitBatch(ctx, engine.SubmitRequest{
						Batch:    batches[i],
						Choice:   engine.ChoiceMergeInto,
						TargetID: engErr.Target.ID,
					})
				}
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("submission %d failed: %v", i, err)
		}
	}

	open, err := store.ListOpenWorkOrders(ctx, "VAN-01")
	if err != nil {
		t.Fatalf("failed to list open orders: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected exactly one open order, got %d", len(open))
	}
	if open[0].Quantity != 16 {
		t.Errorf("expected combined quantity 16, got %d", open[0].Quantity)
	}
	if len(open[0].OrderLineIDs) != 2 {
		t.Errorf("expected both lines claimed by one order, got %v", open[0].OrderLineIDs)
	}

	pending, err := store.ListPendingLines(ctx, engine.BatchFilter{})
	if err != nil {
		t.Fatalf("failed to list pending lines: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending lines left, got %d", len(pending))
	}
}

// The full lifecycle walks strictly forward and refuses to leave Done.
func TestWorkOrderLifecycle(t *testing.T) {
	e, store := setupEngine(t)
	seedCatalog(t, store)
	ctx := context.Background()

	order, err := e.CreateManualWorkOrder(ctx, engine.ManualIntake{ProductCode: "VAN-01", Quantity: 10})
	if err != nil {
		t.Fatalf("manual create failed: %v", err)
	}

	started, err := e.AdvanceWorkOrder(ctx, order.ID)
	if err != nil || started.Status != engine.StatusInProgress {
		t.Fatalf("advance to InProgress failed: %v (%+v)", err, started)
	}
	if started.StartedAt == nil {
		t.Errorf("expected started_at set")
	}

	// Started orders cannot be deleted.
	if err := e.DeleteWorkOrder(ctx, order.ID); !engine.IsInvalidTransition(err) {
		t.Errorf("expected invalid_transition deleting started order, got %v", err)
	}

	done, err := e.AdvanceWorkOrder(ctx, order.ID)
	if err != nil || done.Status != engine.StatusDone {
		t.Fatalf("advance to Done failed: %v (%+v)", err, done)
	}
	if done.CompletedAt == nil {
		t.Errorf("expected completed_at set")
	}

	if _, err := e.AdvanceWorkOrder(ctx, order.ID); !engine.IsInvalidTransition(err) {
		t.Errorf("expected invalid_transition advancing done order, got %v", err)
	}

	if _, err := e.AdvanceWorkOrder(ctx, "missing"); !engine.IsNotFound(err) {
		t.Errorf("expected not_found, got %v", err)
	}

	events, err := e.ListWorkOrderEvents(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("expected created + 2 advances in audit trail, got %d", len(events))
	}
}

// Manual intake always creates, even alongside open orders, and registers
// unknown products.
func TestManualIntake(t *testing.T) {
	e, store := setupEngine(t)
	seedCatalog(t, store)
	ctx := context.Background()

	first, err := e.CreateManualWorkOrder(ctx, engine.ManualIntake{
		ProductCode: "VAN-01", Quantity: 5, Note: "walk-in",
	})
	if err != nil {
		t.Fatalf("manual create failed: %v", err)
	}
	if len(first.OrderLineIDs) != 0 {
		t.Errorf("manual order must carry no lines, got %v", first.OrderLineIDs)
	}
	if first.Note != "walk-in" {
		t.Errorf("unexpected note: %q", first.Note)
	}

	// Never merges, even with an open order present.
	second, err := e.CreateManualWorkOrder(ctx, engine.ManualIntake{ProductCode: "VAN-01", Quantity: 3})
	if err != nil {
		t.Fatalf("second manual create failed: %v", err)
	}
	if second.ID == first.ID {
		t.Errorf("manual intake merged instead of creating")
	}

	// Unknown codes are registered on the fly.
	novel, err := e.CreateManualWorkOrder(ctx, engine.ManualIntake{ProductCode: "NEW-77", Quantity: 1})
	if err != nil {
		t.Fatalf("manual create for unknown product failed: %v", err)
	}
	if novel.ProductCode != "NEW-77" {
		t.Errorf("unexpected product code: %s", novel.ProductCode)
	}

	// Token replay returns the original order.
	tok, err := e.CreateManualWorkOrder(ctx, engine.ManualIntake{
		ProductCode: "CHO-02", Quantity: 2, IdempotencyToken: "manual-tok",
	})
	if err != nil {
		t.Fatalf("manual create with token failed: %v", err)
	}
	replayed, err := e.CreateManualWorkOrder(ctx, engine.ManualIntake{
		ProductCode: "CHO-02", Quantity: 2, IdempotencyToken: "manual-tok",
	})
	if err != nil {
		t.Fatalf("manual replay failed: %v", err)
	}
	if replayed.ID != tok.ID {
		t.Errorf("token replay created a second order")
	}

	if _, err := e.CreateManualWorkOrder(ctx, engine.ManualIntake{ProductCode: "  ", Quantity: 2}); !engine.IsInvalidInput(err) {
		t.Errorf("expected invalid_input for blank code, got %v", err)
	}
	if _, err := e.CreateManualWorkOrder(ctx, engine.ManualIntake{ProductCode: "VAN-01", Quantity: 0}); !engine.IsInvalidInput(err) {
		t.Errorf("expected invalid_input for zero quantity, got %v", err)
	}
}

// Batches for lines without a product code aggregate under the sentinel but
// cannot be submitted.
func TestUnknownProductBatchUnsubmittable(t *testing.T) {
	e, store := setupEngine(t)
	ctx := context.Background()

	seedLines(t, store, line("", "Mystery Item", 4, "web", "Alice"))

	batch := batchFor(t, e, engine.UnknownProductCode)
	if batch.TotalQuantity != 4 {
		t.Fatalf("unexpected sentinel batch: %+v", batch)
	}

	if _, err := e.SubmitBatch(ctx, engine.SubmitRequest{Batch: batch}); !engine.IsInvalidInput(err) {
		t.Errorf("expected invalid_input submitting sentinel batch, got %v", err)
	}
}

func TestMergeIntoDoneOrderRejected(t *testing.T) {
	e, store := setupEngine(t)
	seedCatalog(t, store)
	ctx := context.Background()

	order, err := e.CreateManualWorkOrder(ctx, engine.ManualIntake{ProductCode: "VAN-01", Quantity: 4})
	if err != nil {
		t.Fatalf("failed to create work order: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := e.AdvanceWorkOrder(ctx, order.ID); err != nil {
			t.Fatalf("failed to advance: %v", err)
		}
	}

	// A done order is a closed book for the operator merge path.
	if _, err := e.MergeIn(ctx, order.ID, 2, nil, "late demand"); !engine.IsInvalidTransition(err) {
		t.Fatalf("expected invalid_transition merging into done order, got %v", err)
	}

	// The submit path sees the same condition as a race: the target was open
	// when the operator chose it and finished before the commit landed.
	seedLines(t, store, line("VAN-01", "Vanilla Base", 3, "web", "Cafe Lumen"))
	batch := batchFor(t, e, "VAN-01")
	_, err = e.SubmitBatch(ctx, engine.SubmitRequest{
		Batch:    batch,
		Choice:   engine.ChoiceMergeInto,
		TargetID: order.ID,
	})
	if !engine.IsConcurrentModification(err) {
		t.Fatalf("expected concurrent_modification submitting into done order, got %v", err)
	}
}

func TestEngineEmitsDomainEvents(t *testing.T) {
	_, store := setupEngine(t)
	seedCatalog(t, store)
	ctx := context.Background()

	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"
	cfg.Events.Enabled = true
	cfg.Events.EnableAsync = false
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("failed to build telemetry: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	received := make(chan telemetry.Event, 16)
	tel.Events.Subscribe(func(ev telemetry.Event) { received <- ev }, nil)

	e := engine.New(store, tel, engine.DefaultOptions())

	if err := store.SeedMaterial(ctx, engine.MaterialStock{
		MaterialID: "milk", Name: "Whole Milk", Unit: "l",
		OnHand: decimal.NewFromInt(1), MinThreshold: decimal.NewFromInt(1),
	}); err != nil {
		t.Fatalf("failed to seed material: %v", err)
	}
	if err := store.ReplaceRecipe(ctx, "VAN-01", []engine.RecipeLine{
		{MaterialID: "milk", QtyPerUnit: decimal.NewFromInt(2)},
	}); err != nil {
		t.Fatalf("failed to seed recipe: %v", err)
	}

	first, err := e.CreateManualWorkOrder(ctx, engine.ManualIntake{ProductCode: "VAN-01", Quantity: 4})
	if err != nil {
		t.Fatalf("failed to create work order: %v", err)
	}
	if _, err := e.AdvanceWorkOrder(ctx, first.ID); err != nil {
		t.Fatalf("failed to advance: %v", err)
	}
	if _, err := e.MergeIn(ctx, first.ID, 2, nil, "walk-in"); err != nil {
		t.Fatalf("failed to merge: %v", err)
	}

	second, err := e.CreateManualWorkOrder(ctx, engine.ManualIntake{ProductCode: "CHO-02", Quantity: 1})
	if err != nil {
		t.Fatalf("failed to create work order: %v", err)
	}
	if err := e.DeleteWorkOrder(ctx, second.ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}

	// Requirement 8 against 1 on hand: critical shortage.
	if _, err := e.PreviewMaterialNeeds(ctx, "VAN-01", 4); err != nil {
		t.Fatalf("preview failed: %v", err)
	}

	want := map[string]int{
		telemetry.EventTypeWorkOrderCreated:  2,
		telemetry.EventTypeWorkOrderAdvanced: 1,
		telemetry.EventTypeWorkOrderMerged:   1,
		telemetry.EventTypeWorkOrderDeleted:  1,
		telemetry.EventTypeShortageDetected:  1,
	}
	total := 0
	for _, n := range want {
		total += n
	}

	got := make(map[string]int)
	deadline := time.After(5 * time.Second)
	for i := 0; i < total; i++ {
		select {
		case ev := <-received:
			got[ev.Type]++
		case <-deadline:
			t.Fatalf("timed out waiting for events; got %v", got)
		}
	}
	for typ, n := range want {
		if got[typ] != n {
			t.Errorf("expected %d %s events, got %d", n, typ, got[typ])
		}
	}
}
