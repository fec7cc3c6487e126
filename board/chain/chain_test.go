package chain

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"message-board/board/domain"
	"message-board/board/infra"
	rldomain "message-board/ratelimit/domain"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// stepClock avança 1ms a cada leitura.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func seqIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("m%03d", n.Add(1)) }
}

func newTestChain(t *testing.T, store domain.RecordStore, opts ...Option) *Chain {
	t.Helper()
	clock := &stepClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now), WithIDGenerator(seqIDs())}, opts...)
	return New(store, opts...)
}

func newStoreWithUser(t *testing.T, userID string) *infra.MemoryRecordStore {
	t.Helper()
	s := infra.NewMemoryRecordStore()
	require.NoError(t, s.CreateUser(context.Background(), domain.User{ID: userID, Name: userID, Email: userID + "@example.com"}))
	return s
}

func post(t *testing.T, c *Chain, userID, body string) domain.Message {
	t.Helper()
	m, err := c.InsertAtTail(context.Background(), userID, domain.MessageDraft{Body: body})
	require.NoError(t, err)
	return m
}

func TestChain_InsertAtTail_LinksMessages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newStoreWithUser(t, "u1")
	c := newTestChain(t, store)

	a := post(t, c, "u1", "A")
	req.Nil(a.Previous)
	req.Nil(a.Next)

	b := post(t, c, "u1", "B")
	req.Equal(a.ID, *b.Previous)
	req.True(b.CreatedAt.After(a.CreatedAt))

	stored, err := store.FindMessageByID(ctx, a.ID)
	req.NoError(err)
	req.Equal(b.ID, *stored.Next)

	u, err := store.FindUserByID(ctx, "u1")
	req.NoError(err)
	req.Equal(2, u.PostCount)
	req.True(u.LastPostAt.Equal(b.CreatedAt))

	req.NoError(c.Verify(ctx, "u1"))
}

func TestChain_InsertAtTail_CreatedAtAfterTail(t *testing.T) {
	req := require.New(t)
	store := newStoreWithUser(t, "u1")
	frozen := time.Date(2026, 5, 1, 12, 0, 0, 123456789, time.UTC)
	c := New(store, WithClock(func() time.Time { return frozen }), WithIDGenerator(seqIDs()))

	a := post(t, c, "u1", "A")
	b := post(t, c, "u1", "B")
	req.Equal(frozen.Truncate(time.Millisecond), a.CreatedAt)
	req.Equal(a.CreatedAt.Add(time.Millisecond), b.CreatedAt)
	req.NoError(c.Verify(context.Background(), "u1"))
}

func TestChain_RemoveMiddle_RelinksNeighbours(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newStoreWithUser(t, "u1")
	c := newTestChain(t, store)

	a := post(t, c, "u1", "A")
	b := post(t, c, "u1", "B")
	cm := post(t, c, "u1", "C")

	ok, err := c.RemoveAndRelink(ctx, b.ID)
	req.NoError(err)
	req.True(ok)

	a, err = store.FindMessageByID(ctx, a.ID)
	req.NoError(err)
	cm, err = store.FindMessageByID(ctx, cm.ID)
	req.NoError(err)
	req.Equal(cm.ID, *a.Next)
	req.Equal(a.ID, *cm.Previous)

	_, err = store.FindMessageByID(ctx, b.ID)
	req.ErrorIs(err, domain.ErrNotFound)
	req.NoError(c.Verify(ctx, "u1"))
}

func TestChain_RemoveHeadTailAndOnly(t *testing.T) {
	ctx := context.Background()

	t.Run("head", func(t *testing.T) {
		req := require.New(t)
		store := newStoreWithUser(t, "u1")
		c := newTestChain(t, store)
		a := post(t, c, "u1", "A")
		b := post(t, c, "u1", "B")

		ok, err := c.RemoveAndRelink(ctx, a.ID)
		req.NoError(err)
		req.True(ok)

		b, err = store.FindMessageByID(ctx, b.ID)
		req.NoError(err)
		req.True(b.IsHead())
		req.NoError(c.Verify(ctx, "u1"))
	})

	t.Run("tail", func(t *testing.T) {
		req := require.New(t)
		store := newStoreWithUser(t, "u1")
		c := newTestChain(t, store)
		a := post(t, c, "u1", "A")
		b := post(t, c, "u1", "B")

		ok, err := c.RemoveAndRelink(ctx, b.ID)
		req.NoError(err)
		req.True(ok)

		a, err = store.FindMessageByID(ctx, a.ID)
		req.NoError(err)
		req.True(a.IsTail())

		u, err := store.FindUserByID(ctx, "u1")
		req.NoError(err)
		req.Equal(1, u.PostCount)
		req.True(u.LastPostAt.Equal(a.CreatedAt))
		req.NoError(c.Verify(ctx, "u1"))
	})

	t.Run("only message", func(t *testing.T) {
		req := require.New(t)
		store := newStoreWithUser(t, "u1")
		c := newTestChain(t, store)
		a := post(t, c, "u1", "A")

		ok, err := c.RemoveAndRelink(ctx, a.ID)
		req.NoError(err)
		req.True(ok)

		u, err := store.FindUserByID(ctx, "u1")
		req.NoError(err)
		req.Equal(0, u.PostCount)
		req.Nil(u.LastPostAt)

		walked, err := c.Walk(ctx, "u1")
		req.NoError(err)
		req.Empty(walked)
		req.NoError(c.Verify(ctx, "u1"))

		// depois de esvaziar, a próxima mensagem vira cabeça de novo
		b := post(t, c, "u1", "B")
		req.True(b.IsHead())
	})
}

func TestChain_RemoveMissing(t *testing.T) {
	req := require.New(t)
	c := newTestChain(t, newStoreWithUser(t, "u1"))

	ok, err := c.RemoveAndRelink(context.Background(), "nope")
	req.NoError(err)
	req.False(ok)
}

func TestChain_RandomOperationsKeepInvariants(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newStoreWithUser(t, "u1")
	c := newTestChain(t, store)
	rng := rand.New(rand.NewSource(42))

	var live []string
	for i := 0; i < 300; i++ {
		if len(live) == 0 || rng.Intn(3) > 0 {
			m := post(t, c, "u1", fmt.Sprintf("msg %d", i))
			live = append(live, m.ID)
		} else {
			idx := rng.Intn(len(live))
			ok, err := c.RemoveAndRelink(ctx, live[idx])
			req.NoError(err)
			req.True(ok)
			live = append(live[:idx], live[idx+1:]...)
		}
		req.NoError(c.Verify(ctx, "u1"), "step %d", i)
	}

	walked, err := c.Walk(ctx, "u1")
	req.NoError(err)
	ids := make([]string, 0, len(walked))
	for _, m := range walked {
		ids = append(ids, m.ID)
	}
	req.Equal(live, ids)
}

func TestChain_ConcurrentInsertsSerialized(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newStoreWithUser(t, "u1")
	c := newTestChain(t, store)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.InsertAtTail(ctx, "u1", domain.MessageDraft{Body: fmt.Sprintf("p%d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	walked, err := c.Walk(ctx, "u1")
	req.NoError(err)
	req.Len(walked, 20)
	req.NoError(c.Verify(ctx, "u1"))
}

// gatedStore lê a cauda e só devolve depois que dois chamadores leram:
// os dois recebem a mesma foto anterior a qualquer inserção.
type gatedStore struct {
	*infra.MemoryRecordStore
	arrived chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore(inner *infra.MemoryRecordStore) *gatedStore {
	return &gatedStore{MemoryRecordStore: inner, arrived: make(chan struct{}, 2), release: make(chan struct{})}
}

func (g *gatedStore) FindLatestByOwner(ctx context.Context, ownerID string) (domain.Message, error) {
	m, err := g.MemoryRecordStore.FindLatestByOwner(ctx, ownerID)

	g.arrived <- struct{}{}
	if len(g.arrived) == cap(g.arrived) {
		g.once.Do(func() { close(g.release) })
	}
	select {
	case <-g.release:
	case <-time.After(2 * time.Second):
	}
	return m, err
}

func TestChain_UnserializedInsertsCorruptChain(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newGatedStore(newStoreWithUser(t, "u1"))
	c := newTestChain(t, store, WithSerializer(nil))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.InsertAtTail(ctx, "u1", domain.MessageDraft{Body: fmt.Sprintf("p%d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	// as duas leram "sem cauda" e viraram cabeça
	_, err := c.Walk(ctx, "u1")
	req.ErrorIs(err, ErrChainCorrupt)
}

func TestChain_UnserializedInsertsOnSameTail(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	inner := newStoreWithUser(t, "u1")
	a := post(t, newTestChain(t, inner), "u1", "A")

	c := newTestChain(t, newGatedStore(inner), WithSerializer(nil))
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.InsertAtTail(ctx, "u1", domain.MessageDraft{Body: fmt.Sprintf("p%d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	// as duas apontam previous para A, mas A.next só guarda uma delas
	list, err := inner.ListByOwner(ctx, "u1")
	req.NoError(err)
	req.Len(list, 3)
	for _, m := range list[1:] {
		req.Equal(a.ID, lo.FromPtr(m.Previous))
	}
	_, err = c.Walk(ctx, "u1")
	req.ErrorIs(err, ErrChainCorrupt)
	req.ErrorIs(c.Verify(ctx, "u1"), ErrChainCorrupt)
}

func TestChain_Walk_DetectsCycle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newStoreWithUser(t, "u1")
	c := newTestChain(t, store)

	a := post(t, c, "u1", "A")
	b := post(t, c, "u1", "B")
	post(t, c, "u1", "C")

	// B aponta de volta para A: sobra um nó inalcançável
	req.NoError(store.UpdateLink(ctx, b.ID, domain.LinkNext, &a.ID))

	_, err := c.Walk(ctx, "u1")
	req.ErrorIs(err, ErrChainCorrupt)
}

func TestChain_Verify_DetectsStalePostCount(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newStoreWithUser(t, "u1")
	c := newTestChain(t, store)
	post(t, c, "u1", "A")

	req.NoError(store.IncrementUserField(ctx, "u1", domain.UserPostCount, 1))
	req.ErrorIs(c.Verify(ctx, "u1"), ErrChainCorrupt)
}

// linkFailStore falha ao religar a cauda antiga.
type linkFailStore struct {
	*infra.MemoryRecordStore
}

func (s linkFailStore) UpdateLink(context.Context, string, domain.Link, *string) error {
	return errors.New("boom")
}

func TestChain_InsertAtTail_RollsBackWhenLinkFails(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	inner := newStoreWithUser(t, "u1")
	a := post(t, newTestChain(t, inner), "u1", "A")

	c := newTestChain(t, linkFailStore{inner}, WithIDGenerator(func() string { return "orphan" }))
	_, err := c.InsertAtTail(ctx, "u1", domain.MessageDraft{Body: "B"})
	req.Error(err)

	_, err = inner.FindMessageByID(ctx, "orphan")
	req.ErrorIs(err, domain.ErrNotFound)

	walked, err := c.Walk(ctx, "u1")
	req.NoError(err)
	req.Len(walked, 1)
	req.Equal(a.ID, walked[0].ID)
}

type busySerializer struct{}

func (busySerializer) Acquire(context.Context, rldomain.Key) (func(), bool) { return nil, false }

func TestChain_BusyUserReturnsErrBusy(t *testing.T) {
	req := require.New(t)
	store := newStoreWithUser(t, "u1")
	c := newTestChain(t, store, WithSerializer(busySerializer{}))

	_, err := c.InsertAtTail(context.Background(), "u1", domain.MessageDraft{Body: "A"})
	req.ErrorIs(err, ErrBusy)

	list, err := store.ListByOwner(context.Background(), "u1")
	req.NoError(err)
	req.Empty(list)
}

// statsFailStore grava a mensagem mas falha ao atualizar o contador do dono.
type statsFailStore struct {
	*infra.MemoryRecordStore
}

func (s statsFailStore) IncrementUserField(context.Context, string, domain.UserCounter, int) error {
	return errors.New("boom")
}

func TestChain_InsertAtTail_LogsStaleStats(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	inner := newStoreWithUser(t, "u1")
	core, logs := observer.New(zap.WarnLevel)
	c := newTestChain(t, statsFailStore{inner}, WithLogger(zap.New(core)))

	_, err := c.InsertAtTail(ctx, "u1", domain.MessageDraft{Body: "A"})
	req.Error(err)

	// a mensagem fica na cadeia; só as estatísticas do dono ficam para trás
	walked, err := c.Walk(ctx, "u1")
	req.NoError(err)
	req.Len(walked, 1)
	req.ErrorIs(c.Verify(ctx, "u1"), ErrChainCorrupt)

	entries := logs.FilterMessage("message stored but user stats not updated").All()
	req.Len(entries, 1)
	req.Equal(walked[0].ID, entries[0].ContextMap()["message_id"])
	req.Equal("postCount", entries[0].ContextMap()["step"])
}
