package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/chat-backend/internal/domain"
)

type GroupRepository struct {
	coll *mongo.Collection
}

func NewGroupRepository(coll *mongo.Collection) *GroupRepository {
	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "members", Value: 1}},
		Options: options.Index().SetName("members_idx"),
	}
	_, _ = coll.Indexes().CreateOne(context.Background(), ix)
	return &GroupRepository{coll: coll}
}

// Upsert provisions a group document, typically from a group.created event.
// Existing documents are left untouched.
func (r *GroupRepository) Upsert(ctx context.Context, g *domain.Group) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := r.coll.UpdateByID(ctx, g.ID, bson.M{"$setOnInsert": g}, options.Update().SetUpsert(true))
	return domain.NewStoreError("upsert group", err)
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var g domain.Group
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrGroupNotFound
		}
		return nil, domain.NewStoreError("get group", err)
	}
	return &g, nil
}

// RecordActivity bumps message_count and last_activity as a single atomic
// update, never read-modify-write.
func (r *GroupRepository) RecordActivity(ctx context.Context, groupID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	update := bson.M{
		"$inc": bson.M{"message_count": 1},
		"$set": bson.M{"last_activity": at},
	}
	_, err := r.coll.UpdateByID(ctx, groupID, update)
	return domain.NewStoreError("record activity", err)
}

func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	update := bson.M{"$addToSet": bson.M{"members": userID}}
	_, err := r.coll.UpdateByID(ctx, groupID, update)
	return domain.NewStoreError("add member", err)
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	update := bson.M{"$pull": bson.M{"members": userID, "admins": userID}}
	_, err := r.coll.UpdateByID(ctx, groupID, update)
	return domain.NewStoreError("remove member", err)
}
