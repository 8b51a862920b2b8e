// Package notification holds the persistent notification model and the
// synchronous ingestion hook producers call when an order or payment event
// happens.
//
// # Architecture
//
// The package is the root of the fan-out pipeline:
//
//   - Notification: the durable record with a per-channel delivery status
//     map whose outcomes only ever move forward out of pending
//   - Storage: persistence contract with memory, PostgreSQL, and MongoDB
//     implementations
//   - Ingestor: bounded-time entry point that writes the row and nothing
//     else; resolution, rendering, and delivery happen downstream
//
// # Usage
//
//	store := notification.NewPostgresStorage(pool)
//	ingest := notification.NewIngestor(store, renderer)
//
//	id, err := ingest.Notify(ctx, notification.Request{
//		RecipientID:    userID,
//		Category:       notification.CategoryOrderCreated,
//		Context:        map[string]any{"order_number": "A-1042"},
//		Refs:           notification.CorrelationRefs{OrderID: orderID},
//		IdempotencyKey: eventID,
//	})
//	if err != nil {
//		// Log and continue: the producer's own transaction is unaffected.
//	}
package notification
