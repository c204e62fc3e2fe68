package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateInventory OutboxAggregateType = "inventory"
	AggregateOrder     OutboxAggregateType = "order"
	AggregateSyncJob   OutboxAggregateType = "sync_job"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateInventory, AggregateOrder, AggregateSyncJob:
		return true
	}
	return false
}

// OutboxEventType names a domain event leaving the service.
type OutboxEventType string

const (
	EventInventoryChanged   OutboxEventType = "inventory_changed"
	EventLowStockDetected   OutboxEventType = "low_stock_detected"
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventSyncJobDead        OutboxEventType = "sync_job_dead"
)

// eventAggregates pins every event type to the one aggregate it may describe.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventInventoryChanged:   AggregateInventory,
	EventLowStockDetected:   AggregateInventory,
	EventOrderCreated:       AggregateOrder,
	EventOrderStatusChanged: AggregateOrder,
	EventSyncJobDead:        AggregateSyncJob,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e belongs to, or "" when e is unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(value)
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return e, nil
}
