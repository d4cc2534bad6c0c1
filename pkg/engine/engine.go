package engine

import (
	"context"

	"github.com/prodline/prodline/pkg/telemetry"
)

// Options tunes engine behavior.
type Options struct {
	// MaxCommitRetries bounds automatic re-resolution after a lost commit
	// race before concurrent_modification is surfaced to the caller.
	MaxCommitRetries int

	// CustomerSampleSize caps the customer-name sample on demand batches.
	CustomerSampleSize int
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{
		MaxCommitRetries:   3,
		CustomerSampleSize: 3,
	}
}

// Engine coordinates manufacturing execution against incoming sales demand.
// It is stateless: all state lives in the store, and every mutating
// operation is safe under concurrent invocation.
type Engine struct {
	store   Store
	log     *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	events  *telemetry.EventPublisher
	opts    Options
}

// New creates an engine on top of the given store.
func New(store Store, tel *telemetry.Telemetry, opts Options) *Engine {
	if opts.MaxCommitRetries <= 0 {
		opts.MaxCommitRetries = DefaultOptions().MaxCommitRetries
	}
	if opts.CustomerSampleSize <= 0 {
		opts.CustomerSampleSize = DefaultOptions().CustomerSampleSize
	}

	logger := telemetry.NopLogger()
	metrics := telemetry.NopMetrics()
	tracer := telemetry.NopTracer()
	events := telemetry.NopEventPublisher()
	if tel != nil {
		logger = tel.Logger.NewComponentLogger("engine")
		metrics = tel.Metrics
		tracer = tel.Tracer
		events = tel.Events
	}

	return &Engine{
		store:   store,
		log:     logger,
		metrics: metrics,
		tracer:  tracer,
		events:  events,
		opts:    opts,
	}
}

// GetWorkOrder returns a single work order by ID.
func (e *Engine) GetWorkOrder(ctx context.Context, id string) (*WorkOrder, error) {
	if id == "" {
		return nil, NewInvalidInput("work order id is required")
	}
	return e.store.GetWorkOrder(ctx, id)
}

// ListWorkOrders returns work orders, optionally restricted to one status.
func (e *Engine) ListWorkOrders(ctx context.Context, status *WorkOrderStatus) ([]*WorkOrder, error) {
	if status != nil {
		if err := status.Validate(); err != nil {
			return nil, NewInvalidInput(err.Error())
		}
	}
	return e.store.ListWorkOrders(ctx, status)
}

// ListWorkOrderEvents returns the audit trail for a work order, oldest first.
func (e *Engine) ListWorkOrderEvents(ctx context.Context, id string) ([]WorkOrderEvent, error) {
	if _, err := e.store.GetWorkOrder(ctx, id); err != nil {
		return nil, err
	}
	return e.store.ListWorkOrderEvents(ctx, id)
}
