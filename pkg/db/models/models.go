package models

// All lists every persisted model. Tests use it to build sqlite schemas.
func All() []any {
	return []any{
		&Product{},
		&Variant{},
		&InventoryRecord{},
		&InventoryTransaction{},
		&SalesChannel{},
		&ChannelListing{},
		&Order{},
		&OrderItem{},
		&SyncJob{},
		&ProcessedWebhook{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
