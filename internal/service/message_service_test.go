package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-backend/internal/crypto"
	"github.com/fathima-sithara/chat-backend/internal/domain"
)

type memStore struct {
	mu         sync.Mutex
	msgs       map[string]*domain.Message
	failDelete map[string]bool
}

func newMemStore() *memStore {
	return &memStore{msgs: map[string]*domain.Message{}, failDelete: map[string]bool{}}
}

func (s *memStore) Insert(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	cp.Content = ""
	s.msgs[m.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) ListDirect(_ context.Context, userID, otherID string, limit int64) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Message
	for _, m := range s.msgs {
		if m.DeletedAt != nil || !m.IsDirect() {
			continue
		}
		if (m.SenderID == userID && m.RecipientID == otherID) || (m.SenderID == otherID && m.RecipientID == userID) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return sortLimit(out, limit), nil
}

func (s *memStore) ListGroup(_ context.Context, groupID string, limit int64) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Message
	for _, m := range s.msgs {
		if m.DeletedAt == nil && m.GroupID == groupID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return sortLimit(out, limit), nil
}

func sortLimit(msgs []*domain.Message, limit int64) []*domain.Message {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
	if limit > 0 && int64(len(msgs)) > limit {
		msgs = msgs[:limit]
	}
	return msgs
}

func (s *memStore) MarkRead(_ context.Context, messageID, userID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[messageID]
	if !ok || m.DeletedAt != nil {
		return false, nil
	}
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return false, nil
		}
	}
	m.ReadBy = append(m.ReadBy, domain.ReadReceipt{UserID: userID, ReadAt: at})
	m.Status = domain.StatusRead
	return true, nil
}

func (s *memStore) SoftDelete(_ context.Context, messageID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete[messageID] {
		return false, domain.NewStoreError("soft delete", errors.New("store unavailable"))
	}
	m, ok := s.msgs[messageID]
	if !ok || m.DeletedAt != nil {
		return false, nil
	}
	m.DeletedAt = &at
	m.Status = domain.StatusDeleted
	return true, nil
}

func (s *memStore) ListExpired(_ context.Context, now time.Time, limit int64) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Message
	for _, m := range s.msgs {
		if m.DeletedAt == nil && m.SelfDestruct && m.SelfDestructAt != nil && !m.SelfDestructAt.After(now) {
			cp := *m
			out = append(out, &cp)
		}
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memGroups struct {
	mu     sync.Mutex
	groups map[string]*domain.Group
}

func (g *memGroups) GetByID(_ context.Context, id string) (*domain.Group, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[id]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	cp := *grp
	return &cp, nil
}

func (g *memGroups) RecordActivity(_ context.Context, groupID string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[groupID]
	if !ok {
		return domain.ErrGroupNotFound
	}
	grp.MessageCount++
	grp.LastActivity = at
	return nil
}

type memKeys struct{ keys map[string]string }

func (k *memKeys) KeyFor(_ context.Context, userID string) (string, error) {
	key, ok := k.keys[userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return key, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	users  map[string][]*Event
	groups map[string][]*Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{users: map[string][]*Event{}, groups: map[string][]*Event{}}
}

func (n *recordingNotifier) NotifyUser(userID string, ev *Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users[userID] = append(n.users[userID], ev)
}

func (n *recordingNotifier) NotifyGroup(groupID string, ev *Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.groups[groupID] = append(n.groups[groupID], ev)
}

func mustKeyHex(t *testing.T) string {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return k
}

type fixture struct {
	svc      *MessageService
	store    *memStore
	groups   *memGroups
	keys     *memKeys
	notifier *recordingNotifier
}

func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()
	keys := &memKeys{keys: map[string]string{}}
	for _, u := range users {
		keys.keys[u] = mustKeyHex(t)
	}
	f := &fixture{
		store:    newMemStore(),
		groups:   &memGroups{groups: map[string]*domain.Group{}},
		keys:     keys,
		notifier: newRecordingNotifier(),
	}
	f.svc = NewMessageService(f.store, f.groups, f.keys, f.notifier, nil, zap.NewNop())
	return f
}

func TestSendDirectFetchRoundTrip(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	res, err := f.svc.SendDirect(ctx, "alice", "bob", "hello bob", nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)
	assert.False(t, res.CreatedAt.IsZero())

	// record at rest: encrypted, single recipient payload, no plaintext
	stored, err := f.store.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, stored.Encrypted)
	assert.Equal(t, domain.StatusSent, stored.Status)
	assert.Empty(t, stored.Content)
	require.Len(t, stored.Payloads, 1)
	assert.Equal(t, "bob", stored.Payloads[0].UserID)
	assert.NotContains(t, stored.Payloads[0].Ciphertext, "hello")

	// recipient reads it back
	msgs, err := f.svc.FetchDirect(ctx, "bob", "alice", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello bob", msgs[0].Content)

	// sender re-reads their own sent message
	msgs, err = f.svc.FetchDirect(ctx, "alice", "bob", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello bob", msgs[0].Content)

	// relay got a fire-and-forget push for the recipient
	require.Len(t, f.notifier.users["bob"], 1)
	assert.Equal(t, EventMessageNew, f.notifier.users["bob"][0].Type)
	assert.Equal(t, "hello bob", f.notifier.users["bob"][0].Message.Content)
}

func TestFetchDirectOrdersNewestFirst(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.svc.SendDirect(ctx, "alice", "bob", text, nil, 0)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	msgs, err := f.svc.FetchDirect(ctx, "bob", "alice", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "three", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
}

func TestSendDirectRecipientMissing(t *testing.T) {
	f := newFixture(t, "alice")
	_, err := f.svc.SendDirect(context.Background(), "alice", "ghost", "hi", nil, 0)
	assert.ErrorIs(t, err, domain.ErrRecipientNotFound)
}

func TestSendGroupFanOut(t *testing.T) {
	f := newFixture(t, "a", "b", "c", "outsider")
	ctx := context.Background()
	f.groups.groups["g1"] = &domain.Group{ID: "g1", Members: []string{"a", "b", "c"}, Admins: []string{"a"}}

	res, err := f.svc.SendGroup(ctx, "a", "g1", "hello group", nil, 0)
	require.NoError(t, err)

	stored, err := f.store.GetByID(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, stored.Payloads, 3)
	seen := map[string]string{}
	for _, p := range stored.Payloads {
		seen[p.UserID] = p.Ciphertext
	}
	assert.Len(t, seen, 3)
	assert.Contains(t, seen, "a")
	assert.Contains(t, seen, "b")
	assert.Contains(t, seen, "c")
	assert.NotEqual(t, seen["a"], seen["b"])

	// activity metadata bumped once
	g, err := f.groups.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, g.MessageCount)
	assert.False(t, g.LastActivity.IsZero())

	// each member decrypts their own entry, including the sender
	for _, member := range []string{"a", "b", "c"} {
		msgs, err := f.svc.FetchGroup(ctx, member, "g1", 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "hello group", msgs[0].Content, "member %s", member)
	}

	// no entry for a non-member: content omitted, not an error
	msgs, err := f.svc.FetchGroup(ctx, "outsider", "g1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].Content)

	require.Len(t, f.notifier.groups["g1"], 1)
}

func TestSendGroupMembership(t *testing.T) {
	f := newFixture(t, "a", "b")
	ctx := context.Background()
	f.groups.groups["g1"] = &domain.Group{ID: "g1", Members: []string{"b"}}
	f.groups.groups["empty"] = &domain.Group{ID: "empty", Members: []string{}}

	_, err := f.svc.SendGroup(ctx, "a", "g1", "hi", nil, 0)
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	_, err = f.svc.SendGroup(ctx, "a", "empty", "hi", nil, 0)
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	_, err = f.svc.SendGroup(ctx, "a", "nope", "hi", nil, 0)
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func TestMarkReadIdempotent(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	res, err := f.svc.SendDirect(ctx, "alice", "bob", "hi", nil, 0)
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkRead(ctx, res.ID, "bob"))
	require.NoError(t, f.svc.MarkRead(ctx, res.ID, "bob"))

	stored, err := f.store.GetByID(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, stored.ReadBy, 1)
	assert.Equal(t, "bob", stored.ReadBy[0].UserID)
	assert.Equal(t, domain.StatusRead, stored.Status)

	assert.ErrorIs(t, f.svc.MarkRead(ctx, "missing", "bob"), domain.ErrNotFound)

	// marking a deleted message mutates nothing and does not error
	require.NoError(t, f.svc.SoftDelete(ctx, res.ID, "alice"))
	require.NoError(t, f.svc.MarkRead(ctx, res.ID, "alice"))
	stored, err = f.store.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ReadBy, 1)
	assert.Equal(t, domain.StatusDeleted, stored.Status)
}

func TestSoftDeleteAuthorization(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	ctx := context.Background()
	f.groups.groups["g1"] = &domain.Group{ID: "g1", Members: []string{"a", "b", "c"}, Admins: []string{"c"}}

	res, err := f.svc.SendGroup(ctx, "a", "g1", "to be removed", nil, 0)
	require.NoError(t, err)

	// plain member may not delete someone else's message
	assert.ErrorIs(t, f.svc.SoftDelete(ctx, res.ID, "b"), domain.ErrNotAuthorized)

	// group admin may
	require.NoError(t, f.svc.SoftDelete(ctx, res.ID, "c"))

	// terminal: a second user-initiated delete errors
	assert.ErrorIs(t, f.svc.SoftDelete(ctx, res.ID, "a"), domain.ErrNotFound)

	// deleted messages are excluded from retrieval
	msgs, err := f.svc.FetchGroup(ctx, "a", "g1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSoftDeleteDirectBySender(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	res, err := f.svc.SendDirect(ctx, "alice", "bob", "oops", nil, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.SoftDelete(ctx, res.ID, "bob"), domain.ErrNotAuthorized)
	require.NoError(t, f.svc.SoftDelete(ctx, res.ID, "alice"))

	msgs, err := f.svc.FetchDirect(ctx, "bob", "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	expired, err := f.svc.SendDirect(ctx, "alice", "bob", "burn me", nil, time.Millisecond)
	require.NoError(t, err)
	keeper, err := f.svc.SendDirect(ctx, "alice", "bob", "keep me", nil, time.Hour)
	require.NoError(t, err)
	plain, err := f.svc.SendDirect(ctx, "alice", "bob", "no timer", nil, 0)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	swept, err := f.svc.SweepExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	stored, err := f.store.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeleted, stored.Status)
	require.NotNil(t, stored.DeletedAt)

	msgs, err := f.svc.FetchDirect(ctx, "bob", "alice", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.NotEqual(t, expired.ID, m.ID)
	}
	_ = keeper
	_ = plain
}

func TestSweepIsolatesFailures(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	bad, err := f.svc.SendDirect(ctx, "alice", "bob", "stuck", nil, time.Millisecond)
	require.NoError(t, err)
	good, err := f.svc.SendDirect(ctx, "alice", "bob", "fine", nil, time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	f.store.failDelete[bad.ID] = true

	swept, err := f.svc.SweepExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	stored, err := f.store.GetByID(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeleted, stored.Status)

	// next cycle retries the failed record naturally
	f.store.failDelete[bad.ID] = false
	swept, err = f.svc.SweepExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
}

func TestSweepAfterUserDeleteIsNoOp(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	res, err := f.svc.SendDirect(ctx, "alice", "bob", "gone", nil, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, f.svc.SoftDelete(ctx, res.ID, "alice"))

	swept, err := f.svc.SweepExpired(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, swept)
}

func TestSelfDestructTimestamp(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	res, err := f.svc.SendDirect(ctx, "alice", "bob", "tick", nil, time.Minute)
	require.NoError(t, err)

	stored, err := f.store.GetByID(ctx, res.ID)
	require.NoError(t, err)
	require.True(t, stored.SelfDestruct)
	require.NotNil(t, stored.SelfDestructAt)
	assert.True(t, stored.SelfDestructAt.After(stored.CreatedAt))
	assert.Equal(t, stored.CreatedAt.Add(time.Minute), *stored.SelfDestructAt)
}
