package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the production engine.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// WorkOrderID is the associated work order, if applicable.
	WorkOrderID string `json:"work_order_id,omitempty"`

	// ProductCode is the associated product, if applicable.
	ProductCode string `json:"product_code,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeWorkOrderCreated  = "work_order.created"
	EventTypeWorkOrderMerged   = "work_order.merged"
	EventTypeWorkOrderAdvanced = "work_order.advanced"
	EventTypeWorkOrderDeleted  = "work_order.deleted"
	EventTypeBatchSubmitted    = "batch.submitted"
	EventTypeShortageDetected  = "shortage.detected"
	EventTypeCommitConflict    = "commit.conflict"
	EventTypeError             = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events. Notification delivery
// to operators hangs off these subscriptions; delivery itself is an
// external collaborator.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// NopEventPublisher returns a disabled publisher; every Publish is a no-op.
func NopEventPublisher() *EventPublisher {
	return &EventPublisher{config: EventsConfig{Enabled: false}}
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishWorkOrderCreated publishes a work order created event.
func (ep *EventPublisher) PublishWorkOrderCreated(workOrderID, productCode string, quantity int64, manual bool) error {
	return ep.Publish(Event{
		Type:        EventTypeWorkOrderCreated,
		Source:      "engine",
		WorkOrderID: workOrderID,
		ProductCode: productCode,
		Message:     fmt.Sprintf("Work order %s created for %s (qty %d)", workOrderID, productCode, quantity),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"quantity": quantity,
			"manual":   manual,
		},
	})
}

// PublishWorkOrderMerged publishes a merge event.
func (ep *EventPublisher) PublishWorkOrderMerged(workOrderID, productCode string, addedQuantity int64) error {
	return ep.Publish(Event{
		Type:        EventTypeWorkOrderMerged,
		Source:      "engine",
		WorkOrderID: workOrderID,
		ProductCode: productCode,
		Message:     fmt.Sprintf("Work order %s absorbed %d more units of %s", workOrderID, addedQuantity, productCode),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"added_quantity": addedQuantity,
		},
	})
}

// PublishWorkOrderAdvanced publishes a lifecycle transition event.
func (ep *EventPublisher) PublishWorkOrderAdvanced(workOrderID, from, to string) error {
	return ep.Publish(Event{
		Type:        EventTypeWorkOrderAdvanced,
		Source:      "engine",
		WorkOrderID: workOrderID,
		Message:     fmt.Sprintf("Work order %s advanced %s -> %s", workOrderID, from, to),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"from": from,
			"to":   to,
		},
	})
}

// PublishWorkOrderDeleted publishes a deletion event.
func (ep *EventPublisher) PublishWorkOrderDeleted(workOrderID string, releasedLines int) error {
	return ep.Publish(Event{
		Type:        EventTypeWorkOrderDeleted,
		Source:      "engine",
		WorkOrderID: workOrderID,
		Message:     fmt.Sprintf("Work order %s deleted, %d lines released", workOrderID, releasedLines),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"released_lines": releasedLines,
		},
	})
}

// PublishShortageDetected publishes an advisory shortage event.
func (ep *EventPublisher) PublishShortageDetected(productCode, materialID, status string) error {
	return ep.Publish(Event{
		Type:        EventTypeShortageDetected,
		Source:      "engine",
		ProductCode: productCode,
		Message:     fmt.Sprintf("Material %s is %s for product %s", materialID, status, productCode),
		Level:       EventLevelWarning,
		Data: map[string]interface{}{
			"material_id": materialID,
			"status":      status,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Subscribers run in their own goroutine so a slow notification
		// channel cannot block the engine.
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByProductCode creates a filter that only allows events for one product.
func FilterByProductCode(productCode string) EventFilter {
	return func(event Event) bool {
		return event.ProductCode == productCode
	}
}
