package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStorage is a document-store Storage implementation for deployments
// that keep the feed in MongoDB. It mirrors the PostgresStorage invariants:
// the forward-only transition predicate lives in the update filter, so a
// terminal outcome cannot be regressed by a racing writer.
type MongoStorage struct {
	coll *mongo.Collection
}

type mongoNotification struct {
	ID             string                    `bson:"_id"`
	RecipientID    string                    `bson:"recipient_id"`
	Category       string                    `bson:"category"`
	Title          string                    `bson:"title"`
	Body           string                    `bson:"body"`
	OrderRef       string                    `bson:"order_ref,omitempty"`
	PaymentRef     string                    `bson:"payment_ref,omitempty"`
	IdempotencyKey string                    `bson:"idempotency_key,omitempty"`
	Delivery       map[string]DeliveryStatus `bson:"delivery"`
	ReadAt         *time.Time                `bson:"read_at,omitempty"`
	CreatedAt      time.Time                 `bson:"created_at"`
}

// NewMongoStorage creates a Storage over the "notifications" collection and
// ensures the feed and idempotency indexes exist.
func NewMongoStorage(ctx context.Context, db *mongo.Database) (*MongoStorage, error) {
	coll := db.Collection("notifications")

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{
			Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "idempotency_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "idempotency_key", Value: bson.D{{Key: "$type", Value: "string"}}}}),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ensure notification indexes: %w", err)
	}
	return &MongoStorage{coll: coll}, nil
}

func (s *MongoStorage) Create(ctx context.Context, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	doc := mongoNotification{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Category:    string(n.Category),
		Title:       n.Title,
		Body:        n.Body,
		OrderRef:    n.Refs.OrderID,
		PaymentRef:  n.Refs.PaymentID,
		Delivery:    deliveryToDoc(n.Delivery),
		CreatedAt:   n.CreatedAt,
	}
	if n.IdempotencyKey != "" {
		doc.IdempotencyKey = n.IdempotencyKey
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *MongoStorage) FindByIdempotencyKey(ctx context.Context, recipientID, key string) (*Notification, error) {
	return s.findOne(ctx, bson.D{
		{Key: "recipient_id", Value: recipientID},
		{Key: "idempotency_key", Value: key},
	})
}

func (s *MongoStorage) Get(ctx context.Context, recipientID, id string) (*Notification, error) {
	return s.findOne(ctx, bson.D{
		{Key: "_id", Value: id},
		{Key: "recipient_id", Value: recipientID},
	})
}

func (s *MongoStorage) List(ctx context.Context, recipientID string, opts ListOptions) ([]Notification, error) {
	filter := bson.D{{Key: "recipient_id", Value: recipientID}}
	if opts.OnlyUnread {
		filter = append(filter, bson.E{Key: "read_at", Value: nil})
	}
	if opts.Category != "" {
		filter = append(filter, bson.E{Key: "category", Value: string(opts.Category)})
	}
	if opts.Since != nil {
		filter = append(filter, bson.E{Key: "created_at", Value: bson.D{{Key: "$gt", Value: *opts.Since}}})
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer cursor.Close(ctx)

	notifications := []Notification{}
	for cursor.Next(ctx) {
		var doc mongoNotification
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		notifications = append(notifications, doc.toDomain())
	}
	return notifications, cursor.Err()
}

func (s *MongoStorage) MarkRead(ctx context.Context, recipientID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.coll.UpdateMany(ctx,
		bson.D{
			{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}},
			{Key: "recipient_id", Value: recipientID},
			{Key: "read_at", Value: nil},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "read_at", Value: time.Now()}}}},
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (s *MongoStorage) MarkAllRead(ctx context.Context, recipientID string) error {
	_, err := s.coll.UpdateMany(ctx,
		bson.D{
			{Key: "recipient_id", Value: recipientID},
			{Key: "read_at", Value: nil},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "read_at", Value: time.Now()}}}},
	)
	if err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

func (s *MongoStorage) CountUnread(ctx context.Context, recipientID string) (int, error) {
	count, err := s.coll.CountDocuments(ctx, bson.D{
		{Key: "recipient_id", Value: recipientID},
		{Key: "read_at", Value: nil},
	})
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return int(count), nil
}

func (s *MongoStorage) SetDeliveryOutcome(ctx context.Context, id string, ch Channel, st DeliveryStatus) error {
	field := "delivery." + string(ch)

	res, err := s.coll.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "$and", Value: bson.A{
				bson.D{{Key: "$or", Value: bson.A{
					bson.D{{Key: field, Value: bson.D{{Key: "$exists", Value: false}}}},
					bson.D{{Key: field + ".outcome", Value: string(OutcomePending)}},
				}}},
				bson.D{{Key: "$or", Value: bson.A{
					bson.D{{Key: field + ".retry_count", Value: bson.D{{Key: "$exists", Value: false}}}},
					bson.D{{Key: field + ".retry_count", Value: bson.D{{Key: "$lte", Value: st.RetryCount}}}},
				}}},
			}},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: field, Value: st}}}},
	)
	if err != nil {
		return fmt.Errorf("set delivery outcome: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	existing, findErr := s.findOne(ctx, bson.D{{Key: "_id", Value: id}})
	if findErr != nil {
		return findErr
	}
	if current, ok := existing.Delivery[ch]; ok && current.Outcome.Terminal() && current.Outcome == st.Outcome {
		return nil
	}
	return ErrInvalidTransition
}

func (s *MongoStorage) findOne(ctx context.Context, filter bson.D) (*Notification, error) {
	var doc mongoNotification
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find notification: %w", err)
	}
	n := doc.toDomain()
	return &n, nil
}

func (d mongoNotification) toDomain() Notification {
	n := Notification{
		ID:             d.ID,
		RecipientID:    d.RecipientID,
		Category:       Category(d.Category),
		Title:          d.Title,
		Body:           d.Body,
		Refs:           CorrelationRefs{OrderID: d.OrderRef, PaymentID: d.PaymentRef},
		IdempotencyKey: d.IdempotencyKey,
		ReadAt:         d.ReadAt,
		CreatedAt:      d.CreatedAt,
	}
	n.Delivery = make(map[Channel]DeliveryStatus, len(d.Delivery))
	for ch, st := range d.Delivery {
		n.Delivery[Channel(ch)] = st
	}
	return n
}

func deliveryToDoc(delivery map[Channel]DeliveryStatus) map[string]DeliveryStatus {
	doc := make(map[string]DeliveryStatus, len(delivery))
	for ch, st := range delivery {
		doc[string(ch)] = st
	}
	return doc
}
