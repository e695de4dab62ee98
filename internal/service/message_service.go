package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-backend/internal/crypto"
	"github.com/fathima-sithara/chat-backend/internal/domain"
	"github.com/fathima-sithara/chat-backend/internal/metrics"
)

// MessageStore is the document-store capability the service mutates through.
// Every mutation is a single atomic per-document update.
type MessageStore interface {
	Insert(ctx context.Context, m *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	ListDirect(ctx context.Context, userID, otherID string, limit int64) ([]*domain.Message, error)
	ListGroup(ctx context.Context, groupID string, limit int64) ([]*domain.Message, error)
	MarkRead(ctx context.Context, messageID, userID string, at time.Time) (bool, error)
	SoftDelete(ctx context.Context, messageID string, at time.Time) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int64) ([]*domain.Message, error)
}

// GroupDirectory resolves group membership and records activity.
type GroupDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.Group, error)
	RecordActivity(ctx context.Context, groupID string, at time.Time) error
}

// KeyDirectory resolves a user's symmetric encryption key.
type KeyDirectory interface {
	KeyFor(ctx context.Context, userID string) (string, error)
}

// Notifier is the presence/relay capability. Calls are fire-and-forget and
// must never block or fail a send; fetch remains the durable delivery path.
type Notifier interface {
	NotifyUser(userID string, event *Event)
	NotifyGroup(groupID string, event *Event)
}

// Publisher emits lifecycle events to the broker, best-effort.
type Publisher interface {
	PublishMessage(ctx context.Context, key string, v interface{}) error
}

const (
	EventMessageNew     = "message.new"
	EventMessageRead    = "message.read"
	EventMessageDeleted = "message.deleted"
	EventMessageExpired = "message.expired"
)

type Event struct {
	Type      string          `json:"type"`
	MessageID string          `json:"msg_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	GroupID   string          `json:"group_id,omitempty"`
	Message   *domain.Message `json:"message,omitempty"`
}

type SendResult struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

const defaultFetchLimit = 50

type MessageService struct {
	store    MessageStore
	groups   GroupDirectory
	keys     KeyDirectory
	notifier Notifier
	prod     Publisher
	log      *zap.Logger
}

func NewMessageService(store MessageStore, groups GroupDirectory, keys KeyDirectory, notifier Notifier, prod Publisher, log *zap.Logger) *MessageService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageService{store: store, groups: groups, keys: keys, notifier: notifier, prod: prod, log: log}
}

// SetNotifier wires the relay in after construction; the relay server itself
// depends on the service for inbound frames.
func (s *MessageService) SetNotifier(n Notifier) { s.notifier = n }

// SendDirect encrypts plaintext under the recipient's key and persists a
// direct message. destroyAfter > 0 arms the self-destruct timer relative to
// the persistence instant.
func (s *MessageService) SendDirect(ctx context.Context, senderID, recipientID, plaintext string, attachments []domain.Attachment, destroyAfter time.Duration) (*SendResult, error) {
	if senderID == "" || recipientID == "" {
		return nil, errors.New("sender_id and recipient_id required")
	}
	if plaintext == "" && len(attachments) == 0 {
		return nil, errors.New("content or attachments required")
	}

	key, err := s.keys.KeyFor(ctx, recipientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrRecipientNotFound
		}
		return nil, err
	}

	box, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	m := &domain.Message{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		IV:          box.IVHex,
		Payloads: []domain.PayloadEntry{
			{UserID: recipientID, Ciphertext: box.CiphertextHex, AuthTag: box.AuthTagHex},
		},
		Attachments: attachments,
		Encrypted:   true,
		ReadBy:      []domain.ReadReceipt{},
		Status:      domain.StatusSent,
		CreatedAt:   now,
	}
	armSelfDestruct(m, now, destroyAfter)

	if err := s.store.Insert(ctx, m); err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues("direct").Inc()

	s.publish(m.ID, &Event{Type: EventMessageNew, MessageID: m.ID, UserID: recipientID, Message: m})
	if s.notifier != nil {
		pushed := *m
		pushed.Content = plaintext
		s.notifier.NotifyUser(recipientID, &Event{Type: EventMessageNew, MessageID: m.ID, Message: &pushed})
	}

	return &SendResult{ID: m.ID, CreatedAt: m.CreatedAt}, nil
}

// SendGroup fans the plaintext out across the group's membership at send
// time: one payload entry per current member, all sharing the message IV.
// Later membership changes do not touch existing entries.
func (s *MessageService) SendGroup(ctx context.Context, senderID, groupID, plaintext string, attachments []domain.Attachment, destroyAfter time.Duration) (*SendResult, error) {
	if senderID == "" || groupID == "" {
		return nil, errors.New("sender_id and group_id required")
	}
	if plaintext == "" && len(attachments) == 0 {
		return nil, errors.New("content or attachments required")
	}

	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.HasMember(senderID) {
		return nil, domain.ErrNotAMember
	}

	ivHex, err := crypto.NewIV()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	m := &domain.Message{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		GroupID:     groupID,
		IV:          ivHex,
		Payloads:    make([]domain.PayloadEntry, 0, len(g.Members)),
		Attachments: attachments,
		Encrypted:   true,
		ReadBy:      []domain.ReadReceipt{},
		Status:      domain.StatusSent,
		CreatedAt:   now,
	}

	for _, member := range g.Members {
		key, err := s.keys.KeyFor(ctx, member)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: member %s", domain.ErrRecipientNotFound, member)
			}
			return nil, err
		}
		box, err := crypto.EncryptWithIV(plaintext, key, ivHex)
		if err != nil {
			return nil, err
		}
		m.Payloads = append(m.Payloads, domain.PayloadEntry{UserID: member, Ciphertext: box.CiphertextHex, AuthTag: box.AuthTagHex})
	}
	armSelfDestruct(m, now, destroyAfter)

	if err := s.store.Insert(ctx, m); err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues("group").Inc()

	if err := s.groups.RecordActivity(ctx, groupID, now); err != nil {
		s.log.Warn("group activity update failed", zap.String("group_id", groupID), zap.Error(err))
	}

	s.publish(m.ID, &Event{Type: EventMessageNew, MessageID: m.ID, GroupID: groupID, Message: m})
	if s.notifier != nil {
		pushed := *m
		pushed.Content = plaintext
		s.notifier.NotifyGroup(groupID, &Event{Type: EventMessageNew, MessageID: m.ID, GroupID: groupID, Message: &pushed})
	}

	return &SendResult{ID: m.ID, CreatedAt: m.CreatedAt}, nil
}

// FetchDirect returns the newest non-deleted messages between two users,
// newest first, with plaintext restored. Each message is decrypted under the
// key of the user it was addressed to, so a sender re-reads their own sent
// messages without a stored plaintext copy.
func (s *MessageService) FetchDirect(ctx context.Context, userID, otherID string, limit int64) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = defaultFetchLimit
	}
	msgs, err := s.store.ListDirect(ctx, userID, otherID, limit)
	if err != nil {
		return nil, err
	}

	keyCache := map[string]string{}
	for _, m := range msgs {
		entry, ok := m.PayloadFor(m.RecipientID)
		if !ok {
			continue
		}
		key, ok := keyCache[m.RecipientID]
		if !ok {
			key, err = s.keys.KeyFor(ctx, m.RecipientID)
			if err != nil {
				s.log.Warn("key lookup failed during fetch", zap.String("user_id", m.RecipientID), zap.Error(err))
				continue
			}
			keyCache[m.RecipientID] = key
		}
		s.decryptInto(m, entry, key)
	}
	return msgs, nil
}

// FetchGroup returns the newest non-deleted group messages with the entry for
// userID decrypted. Messages without an entry for this user (sent before the
// user joined) come back with content omitted rather than failing the batch.
func (s *MessageService) FetchGroup(ctx context.Context, userID, groupID string, limit int64) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = defaultFetchLimit
	}
	msgs, err := s.store.ListGroup(ctx, groupID, limit)
	if err != nil {
		return nil, err
	}

	key, err := s.keys.KeyFor(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return msgs, nil
		}
		return nil, err
	}
	for _, m := range msgs {
		entry, ok := m.PayloadFor(userID)
		if !ok {
			continue
		}
		s.decryptInto(m, entry, key)
	}
	return msgs, nil
}

func (s *MessageService) decryptInto(m *domain.Message, entry domain.PayloadEntry, keyHex string) {
	plain, err := crypto.Decrypt(crypto.Box{
		IVHex:         m.IV,
		CiphertextHex: entry.Ciphertext,
		AuthTagHex:    entry.AuthTag,
	}, keyHex)
	if err != nil {
		// Tag failure or wrong key: surface nothing, never garbage plaintext.
		s.log.Warn("message unreadable", zap.String("msg_id", m.ID))
		return
	}
	m.Content = plain
}

// MarkRead appends a read receipt for userID. Re-marking is a no-op, as is
// marking a deleted message. Unknown message ids return ErrNotFound.
func (s *MessageService) MarkRead(ctx context.Context, messageID, userID string) error {
	updated, err := s.store.MarkRead(ctx, messageID, userID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !updated {
		// Either absent, already read by this user, or deleted.
		if _, err := s.store.GetByID(ctx, messageID); err != nil {
			return err
		}
		return nil
	}

	s.publish(messageID, &Event{Type: EventMessageRead, MessageID: messageID, UserID: userID})
	return nil
}

// SoftDelete is the user-initiated terminal transition. Only the original
// sender or an admin of the owning group may delete; deleting an absent or
// already-deleted message returns ErrNotFound.
func (s *MessageService) SoftDelete(ctx context.Context, messageID, requesterID string) error {
	m, err := s.store.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m.DeletedAt != nil {
		return domain.ErrNotFound
	}

	if m.SenderID != requesterID {
		authorized := false
		if m.IsGroup() {
			g, err := s.groups.GetByID(ctx, m.GroupID)
			if err == nil && g.IsAdmin(requesterID) {
				authorized = true
			}
		}
		if !authorized {
			return domain.ErrNotAuthorized
		}
	}

	deleted, err := s.store.SoftDelete(ctx, messageID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !deleted {
		// Lost the race against the sweep or another delete.
		return domain.ErrNotFound
	}

	ev := &Event{Type: EventMessageDeleted, MessageID: messageID, UserID: requesterID, GroupID: m.GroupID}
	s.publish(messageID, ev)
	if s.notifier != nil {
		if m.IsGroup() {
			s.notifier.NotifyGroup(m.GroupID, ev)
		} else {
			s.notifier.NotifyUser(m.RecipientID, ev)
		}
	}
	return nil
}

// SweepExpired soft-deletes every self-destructing message whose expiry has
// passed. Each message is attempted independently; one failure never aborts
// the rest, and the next cycle retries whatever is still eligible.
func (s *MessageService) SweepExpired(ctx context.Context, batchLimit int64) (int, error) {
	now := time.Now().UTC()
	expired, err := s.store.ListExpired(ctx, now, batchLimit)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, m := range expired {
		deleted, err := s.store.SoftDelete(ctx, m.ID, now)
		if err != nil {
			metrics.SweepErrors.Inc()
			s.log.Error("sweep delete failed", zap.String("msg_id", m.ID), zap.Error(err))
			continue
		}
		if !deleted {
			// Someone else got there first; nothing to do.
			continue
		}
		swept++
		metrics.MessagesSwept.Inc()
		s.publish(m.ID, &Event{Type: EventMessageExpired, MessageID: m.ID, GroupID: m.GroupID})
	}
	if swept > 0 {
		s.log.Info("expiry sweep", zap.Int("swept", swept), zap.Int("eligible", len(expired)))
	}
	return swept, nil
}

func (s *MessageService) publish(key string, ev *Event) {
	if s.prod == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.prod.PublishMessage(ctx, key, ev); err != nil {
		s.log.Warn("event publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

func armSelfDestruct(m *domain.Message, now time.Time, destroyAfter time.Duration) {
	if destroyAfter <= 0 {
		return
	}
	at := now.Add(destroyAfter)
	m.SelfDestruct = true
	m.SelfDestructAt = &at
}
