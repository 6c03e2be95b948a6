package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/nano-midea/notifier/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoNotificationRepository implements NotificationRepository for MongoDB
type MongoNotificationRepository struct {
	collection *mongo.Collection
}

// NewMongoNotificationRepository creates a new MongoNotificationRepository and
// makes sure the indexes it relies on exist.
func NewMongoNotificationRepository(ctx context.Context, db *mongo.Database) (*MongoNotificationRepository, error) {
	r := &MongoNotificationRepository{collection: db.Collection("notification_threads")}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MongoNotificationRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "thread_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_thread_key"),
		},
		{
			Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "is_read", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "updated_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("creating notification indexes: %w", err)
	}
	return nil
}

// FindByKey retrieves the thread for a coalescing key
func (r *MongoNotificationRepository) FindByKey(ctx context.Context, key models.ThreadKey) (*models.NotificationThread, error) {
	return r.findOne(ctx, bson.M{"thread_key": key.String()})
}

// FindByID retrieves a thread by ID
func (r *MongoNotificationRepository) FindByID(ctx context.Context, id string) (*models.NotificationThread, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoNotificationRepository) findOne(ctx context.Context, filter bson.M) (*models.NotificationThread, error) {
	var thread models.NotificationThread
	err := r.collection.FindOne(ctx, filter).Decode(&thread)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &thread, nil
}

// Create inserts a new thread; the unique thread_key index turns a racing
// insert into ErrConflict.
func (r *MongoNotificationRepository) Create(ctx context.Context, thread *models.NotificationThread) error {
	if thread.ID == "" {
		thread.ID = primitive.NewObjectID().Hex()
	}
	thread.ThreadKey = thread.Key().String()
	thread.Version = 1
	_, err := r.collection.InsertOne(ctx, thread)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Update replaces the thread only if nobody wrote it since expectedVersion
func (r *MongoNotificationRepository) Update(ctx context.Context, thread *models.NotificationThread, expectedVersion int64) error {
	next := thread.Clone()
	next.ThreadKey = next.Key().String()
	next.Version = expectedVersion + 1
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": thread.ID, "version": expectedVersion}, next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	thread.ThreadKey = next.ThreadKey
	thread.Version = next.Version
	return nil
}

// Delete removes the thread only if nobody wrote it since expectedVersion
func (r *MongoNotificationRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "version": expectedVersion})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrConflict
	}
	return nil
}

// ListByRecipient returns a page of threads, most recently updated first, and the total
func (r *MongoNotificationRepository) ListByRecipient(ctx context.Context, recipientID string, skip, limit int) ([]models.NotificationThread, int64, error) {
	filter := bson.M{"recipient_id": recipientID}
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(skip))
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	threads := []models.NotificationThread{}
	if err = cursor.All(ctx, &threads); err != nil {
		return nil, 0, err
	}
	return threads, total, nil
}

// CountUnread counts undismissed threads for the recipient
func (r *MongoNotificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"recipient_id": recipientID, "is_read": false})
}

// MarkAllAsRead flips every unread thread of the recipient, bumping each version
func (r *MongoNotificationRepository) MarkAllAsRead(ctx context.Context, recipientID string) error {
	_, err := r.collection.UpdateMany(ctx,
		bson.M{"recipient_id": recipientID, "is_read": false},
		bson.M{
			"$set": bson.M{"is_read": true, "updated_at": time.Now()},
			"$inc": bson.M{"version": 1},
		},
	)
	return err
}

// Close is a no-op; the client is owned by the database bootstrap.
func (r *MongoNotificationRepository) Close(ctx context.Context) error {
	return nil
}
