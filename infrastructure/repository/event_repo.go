package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bux-stream/core/event"
	"bux-stream/core/eventbus"
)

// DefaultEventCollection is the collection used when none is configured.
const DefaultEventCollection = "stream_events"

// eventDocument is the MongoDB document structure for archived events.
type eventDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ConnectionID string             `bson:"connection_id"`
	Action       string             `bson:"action"`
	Index        int64              `bson:"index"`
	Payload      string             `bson:"payload"`
	ReceivedAt   time.Time          `bson:"received_at"`
}

// MongoEventArchive stores stream events in MongoDB.
type MongoEventArchive struct {
	collection   *mongo.Collection
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewMongoEventArchive creates a new MongoDB-based event archive.
func NewMongoEventArchive(db *MongoDB, collection string, writeTimeout time.Duration, logger *slog.Logger) *MongoEventArchive {
	if logger == nil {
		logger = slog.Default()
	}
	if collection == "" {
		collection = DefaultEventCollection
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &MongoEventArchive{
		collection:   db.Collection(collection),
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// EnsureIndexes creates the indexes used by the archive queries.
// An event is unique per connection and arrival index.
func (a *MongoEventArchive) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "connection_id", Value: 1}, {Key: "index", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "action", Value: 1}, {Key: "received_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create event indexes: %w", err)
	}
	return nil
}

// Insert archives one event.
func (a *MongoEventArchive) Insert(ctx context.Context, e event.StreamEvent) error {
	if _, err := a.collection.InsertOne(ctx, eventToDocument(e)); err != nil {
		return fmt.Errorf("failed to insert event %d: %w", e.Index(), err)
	}
	return nil
}

// FindByConnection returns all events of one connection in arrival order.
func (a *MongoEventArchive) FindByConnection(ctx context.Context, connectionID string) ([]event.StreamEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "index", Value: 1}})
	return a.find(ctx, bson.M{"connection_id": connectionID}, opts)
}

// FindByAction returns the most recent events for an action, newest first.
// A non-positive limit returns all of them.
func (a *MongoEventArchive) FindByAction(ctx context.Context, action string, limit int64) ([]event.StreamEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return a.find(ctx, bson.M{"action": action}, opts)
}

// Count returns the number of archived events for an action.
func (a *MongoEventArchive) Count(ctx context.Context, action string) (int64, error) {
	n, err := a.collection.CountDocuments(ctx, bson.M{"action": action})
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func (a *MongoEventArchive) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]event.StreamEvent, error) {
	cursor, err := a.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []eventDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	events := make([]event.StreamEvent, len(docs))
	for i := range docs {
		events[i] = documentToEvent(&docs[i])
	}
	return events, nil
}

// Handler returns an event handler that archives every event it receives.
// Each insert is bounded by the archive's write timeout; failures surface
// as delivery faults of this handler only.
func (a *MongoEventArchive) Handler(ctx context.Context) eventbus.Handler {
	return func(e event.StreamEvent) error {
		writeCtx, cancel := context.WithTimeout(ctx, a.writeTimeout)
		defer cancel()
		return a.Insert(writeCtx, e)
	}
}

func eventToDocument(e event.StreamEvent) *eventDocument {
	return &eventDocument{
		ConnectionID: e.ConnectionID(),
		Action:       e.Action(),
		Index:        int64(e.Index()),
		Payload:      e.Payload(),
		ReceivedAt:   e.ReceivedAt().UTC(),
	}
}

func documentToEvent(doc *eventDocument) event.StreamEvent {
	return event.NewStreamEvent(doc.ConnectionID, doc.Action, uint64(doc.Index), doc.Payload, doc.ReceivedAt)
}
