package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-backend/internal/crypto"
	"github.com/fathima-sithara/chat-backend/internal/domain"
	"github.com/fathima-sithara/chat-backend/internal/repository"
)

// GroupCreatedEvent is published by the collaborator that owns group
// management when a group comes into existence.
type GroupCreatedEvent struct {
	GroupID string   `json:"group_id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Admins  []string `json:"admins"`
}

// UserCreatedEvent is published by the account service at registration time.
type UserCreatedEvent struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Subscriber provisions group and user documents from upstream events. The
// user path is where each account's encryption key is minted, exactly once.
type Subscriber struct {
	nc     *nats.Conn
	groups *repository.GroupRepository
	users  *repository.UserRepository
	log    *zap.Logger
}

func NewSubscriber(natsURL string, groups *repository.GroupRepository, users *repository.UserRepository, log *zap.Logger) (*Subscriber, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Subscriber{nc: nc, groups: groups, users: users, log: log}, nil
}

func (s *Subscriber) Start(queue string) error {
	if _, err := s.nc.QueueSubscribe("group.created", queue, s.onGroupCreated); err != nil {
		return err
	}
	if _, err := s.nc.QueueSubscribe("user.created", queue, s.onUserCreated); err != nil {
		return err
	}
	return nil
}

func (s *Subscriber) onGroupCreated(m *nats.Msg) {
	var ev GroupCreatedEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		s.log.Warn("invalid group.created event", zap.Error(err))
		return
	}
	g := &domain.Group{
		ID:      ev.GroupID,
		Name:    ev.Name,
		Members: ev.Members,
		Admins:  ev.Admins,
	}
	s.withRetry("group.created", ev.GroupID, func(ctx context.Context) error {
		return s.groups.Upsert(ctx, g)
	})
}

func (s *Subscriber) onUserCreated(m *nats.Msg) {
	var ev UserCreatedEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		s.log.Warn("invalid user.created event", zap.Error(err))
		return
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		s.log.Error("key generation failed", zap.String("user_id", ev.UserID), zap.Error(err))
		return
	}
	u := &domain.User{
		ID:        ev.UserID,
		Username:  ev.Username,
		Email:     ev.Email,
		EncKeyHex: key,
	}
	s.withRetry("user.created", ev.UserID, func(ctx context.Context) error {
		return s.users.Upsert(ctx, u)
	})
}

func (s *Subscriber) withRetry(event, id string, fn func(ctx context.Context) error) {
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := fn(ctx)
		cancel()
		if err == nil {
			return
		}
		s.log.Warn("event apply retry", zap.String("event", event), zap.String("id", id), zap.Error(err))
		time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
	}
	s.log.Error("event dropped after retries", zap.String("event", event), zap.String("id", id))
}

func (s *Subscriber) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
