package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/chat-backend/internal/domain"
)

type MessageRepository struct {
	coll *mongo.Collection
}

func NewMessageRepository(coll *mongo.Collection) *MessageRepository {
	for _, ix := range []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("recipient_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("group_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "self_destruct_at", Value: 1}},
			Options: options.Index().SetName("expiry_idx").SetPartialFilterExpression(bson.M{"self_destruct": true}),
		},
	} {
		_, _ = coll.Indexes().CreateOne(context.Background(), ix)
	}
	return &MessageRepository{coll: coll}
}

func (r *MessageRepository) Insert(ctx context.Context, m *domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if m.ReadBy == nil {
		m.ReadBy = []domain.ReadReceipt{}
	}

	filter := bson.M{"_id": m.ID}
	update := bson.M{"$setOnInsert": m}
	_, err := r.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return domain.NewStoreError("insert message", err)
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var m domain.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, domain.NewStoreError("get message", err)
	}
	return &m, nil
}

// ListDirect returns the newest non-deleted messages between two users,
// newest first. deleted_at:nil matches both absent and null.
func (r *MessageRepository) ListDirect(ctx context.Context, userID, otherID string, limit int64) ([]*domain.Message, error) {
	filter := bson.M{
		"deleted_at": nil,
		"$or": []bson.M{
			{"sender_id": userID, "recipient_id": otherID},
			{"sender_id": otherID, "recipient_id": userID},
		},
	}
	return r.list(ctx, filter, limit)
}

func (r *MessageRepository) ListGroup(ctx context.Context, groupID string, limit int64) ([]*domain.Message, error) {
	filter := bson.M{"group_id": groupID, "deleted_at": nil}
	return r.list(ctx, filter, limit)
}

func (r *MessageRepository) list(ctx context.Context, filter bson.M, limit int64) ([]*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, domain.NewStoreError("list messages", err)
	}
	defer cur.Close(ctx)

	out := []*domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, domain.NewStoreError("decode message", err)
		}
		out = append(out, &m)
	}
	return out, nil
}

// MarkRead appends a read receipt once per user. The filter excludes deleted
// messages and messages already read by this user, so re-marking matches
// nothing and the call is a no-op. Returns whether a document was updated.
func (r *MessageRepository) MarkRead(ctx context.Context, messageID, userID string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	filter := bson.M{
		"_id":             messageID,
		"deleted_at":      nil,
		"read_by.user_id": bson.M{"$ne": userID},
	}
	update := bson.M{
		"$push": bson.M{"read_by": domain.ReadReceipt{UserID: userID, ReadAt: at}},
		"$set":  bson.M{"status": domain.StatusRead},
	}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, domain.NewStoreError("mark read", err)
	}
	return res.ModifiedCount > 0, nil
}

// SoftDelete performs the terminal transition. The deleted_at:nil guard makes
// it atomic under a concurrent sweep: exactly one caller observes a match.
func (r *MessageRepository) SoftDelete(ctx context.Context, messageID string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	filter := bson.M{"_id": messageID, "deleted_at": nil}
	update := bson.M{"$set": bson.M{"deleted_at": at, "status": domain.StatusDeleted}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, domain.NewStoreError("soft delete", err)
	}
	return res.ModifiedCount > 0, nil
}

// ListExpired returns non-deleted self-destructing messages whose expiry
// instant has passed.
func (r *MessageRepository) ListExpired(ctx context.Context, now time.Time, limit int64) ([]*domain.Message, error) {
	filter := bson.M{
		"self_destruct":    true,
		"self_destruct_at": bson.M{"$lte": now},
		"deleted_at":       nil,
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "self_destruct_at", Value: 1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, domain.NewStoreError("list expired", err)
	}
	defer cur.Close(ctx)

	out := []*domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, domain.NewStoreError("decode message", err)
		}
		out = append(out, &m)
	}
	return out, nil
}
