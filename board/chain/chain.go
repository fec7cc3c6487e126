// Package chain mantém a sequência de mensagens de cada usuário como uma lista
// duplamente encadeada guardada na RecordStore (previous/next por id).
//
// Inserir e remover exigem várias escritas independentes na store. Para que
// duas escritas do mesmo usuário não se intercalem, Chain serializa as
// mutações por usuário com um Serializer (uma vaga por usuário). Essa
// serialização vale dentro do processo; réplicas diferentes escrevendo para o
// mesmo usuário ainda podem corromper a cadeia, e Verify detecta isso.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"message-board/board/domain"
	rlapp "message-board/ratelimit/application"
	rldomain "message-board/ratelimit/domain"
	rlinfra "message-board/ratelimit/infra"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	ErrChainCorrupt = errors.New("message chain corrupt")
	ErrBusy         = errors.New("message chain busy")
)

const DefaultLockTimeout = 5 * time.Second

// Serializer dá exclusão mútua por chave. rlapp.KeyedConcurrencyService serve.
type Serializer interface {
	Acquire(ctx context.Context, key rldomain.Key) (release func(), ok bool)
}

type Chain struct {
	store domain.RecordStore
	locks Serializer
	now   func() time.Time
	newID func() string
	log   *zap.Logger
}

type Option func(*Chain)

// WithSerializer troca a serialização por usuário. nil desliga.
func WithSerializer(s Serializer) Option {
	return func(c *Chain) { c.locks = s }
}

func WithClock(now func() time.Time) Option {
	return func(c *Chain) { c.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(c *Chain) { c.newID = gen }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Chain) { c.log = log }
}

func New(store domain.RecordStore, opts ...Option) *Chain {
	c := &Chain{
		store: store,
		locks: rlapp.KeyedConcurrencyService{
			Pool:           rlinfra.NewKeyedPool(),
			AcquireTimeout: DefaultLockTimeout,
		},
		now:   time.Now,
		newID: uuid.NewString,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InsertAtTail grava a mensagem nova apontando para a cauda atual e depois
// faz a cauda antiga apontar para ela. Também atualiza postCount e lastPostAt
// do dono.
func (c *Chain) InsertAtTail(ctx context.Context, userID string, draft domain.MessageDraft) (domain.Message, error) {
	release, err := c.lock(ctx, userID)
	if err != nil {
		return domain.Message{}, err
	}
	defer release()

	tail, hasTail, err := c.tail(ctx, userID)
	if err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:        c.newID(),
		Body:      draft.Body,
		Owner:     userID,
		CreatedAt: c.now().UTC().Truncate(time.Millisecond),
	}
	if hasTail {
		// ordem por tempo e ordem da cadeia precisam concordar
		if !msg.CreatedAt.After(tail.CreatedAt) {
			msg.CreatedAt = tail.CreatedAt.Add(time.Millisecond)
		}
		msg.Previous = lo.ToPtr(tail.ID)
	}

	if err := c.store.InsertMessage(ctx, msg); err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if hasTail {
		if err := c.store.UpdateLink(ctx, tail.ID, domain.LinkNext, lo.ToPtr(msg.ID)); err != nil {
			c.rollbackInsert(ctx, msg)
			return domain.Message{}, fmt.Errorf("link tail %s to %s: %w", tail.ID, msg.ID, err)
		}
	}

	if err := c.store.IncrementUserField(ctx, userID, domain.UserPostCount, 1); err != nil {
		c.logStaleStats(msg, "postCount", err)
		return domain.Message{}, fmt.Errorf("increment post count of %s: %w", userID, err)
	}
	if err := c.store.SetLastPostAt(ctx, userID, lo.ToPtr(msg.CreatedAt)); err != nil {
		c.logStaleStats(msg, "lastPostAt", err)
		return domain.Message{}, fmt.Errorf("set last post of %s: %w", userID, err)
	}
	return msg, nil
}

// RemoveAndRelink liga os vizinhos da mensagem entre si, apaga a mensagem e
// decrementa o postCount do dono. Devolve false se a mensagem não existe.
func (c *Chain) RemoveAndRelink(ctx context.Context, messageID string) (bool, error) {
	m, found, err := c.find(ctx, messageID)
	if err != nil || !found {
		return false, err
	}

	release, err := c.lock(ctx, m.Owner)
	if err != nil {
		return false, err
	}
	defer release()

	// relê com a trava: os vizinhos podem ter mudado enquanto esperávamos
	m, found, err = c.find(ctx, messageID)
	if err != nil || !found {
		return false, err
	}

	switch {
	case m.Previous != nil && m.Next != nil:
		if err := c.store.UpdateLink(ctx, *m.Previous, domain.LinkNext, m.Next); err != nil {
			return false, fmt.Errorf("relink previous %s: %w", *m.Previous, err)
		}
		if err := c.store.UpdateLink(ctx, *m.Next, domain.LinkPrevious, m.Previous); err != nil {
			return false, fmt.Errorf("relink next %s: %w", *m.Next, err)
		}
	case m.Previous != nil:
		if err := c.store.UpdateLink(ctx, *m.Previous, domain.LinkNext, nil); err != nil {
			return false, fmt.Errorf("unlink previous %s: %w", *m.Previous, err)
		}
	case m.Next != nil:
		if err := c.store.UpdateLink(ctx, *m.Next, domain.LinkPrevious, nil); err != nil {
			return false, fmt.Errorf("unlink next %s: %w", *m.Next, err)
		}
	}

	if err := c.store.DeleteMessage(ctx, m.ID); err != nil {
		return false, fmt.Errorf("delete message %s: %w", m.ID, err)
	}
	if err := c.store.IncrementUserField(ctx, m.Owner, domain.UserPostCount, -1); err != nil {
		return false, fmt.Errorf("decrement post count of %s: %w", m.Owner, err)
	}

	if m.IsTail() {
		var last *time.Time
		if m.Previous != nil {
			prev, err := c.store.FindMessageByID(ctx, *m.Previous)
			if err != nil {
				return false, fmt.Errorf("load new tail %s: %w", *m.Previous, err)
			}
			last = lo.ToPtr(prev.CreatedAt)
		}
		if err := c.store.SetLastPostAt(ctx, m.Owner, last); err != nil {
			return false, fmt.Errorf("set last post of %s: %w", m.Owner, err)
		}
	}
	return true, nil
}

// Walk percorre a cadeia do usuário a partir da cabeça seguindo next.
// Nunca revisita um nó e para após len(mensagens) passos.
func (c *Chain) Walk(ctx context.Context, userID string) ([]domain.Message, error) {
	all, err := c.store.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list messages of %s: %w", userID, err)
	}
	if len(all) == 0 {
		return nil, nil
	}

	byID := lo.KeyBy(all, func(m domain.Message) string { return m.ID })
	heads := lo.Filter(all, func(m domain.Message, _ int) bool { return m.IsHead() })
	if len(heads) != 1 {
		return nil, fmt.Errorf("%w: user %s has %d heads", ErrChainCorrupt, userID, len(heads))
	}

	out := make([]domain.Message, 0, len(all))
	visited := make(map[string]struct{}, len(all))
	cur := heads[0]
	for {
		if _, seen := visited[cur.ID]; seen {
			return nil, fmt.Errorf("%w: cycle at %s", ErrChainCorrupt, cur.ID)
		}
		visited[cur.ID] = struct{}{}
		out = append(out, cur)

		if cur.Next == nil {
			break
		}
		if len(out) >= len(all) {
			return nil, fmt.Errorf("%w: walk from head exceeded %d messages", ErrChainCorrupt, len(all))
		}
		next, ok := byID[*cur.Next]
		if !ok {
			return nil, fmt.Errorf("%w: %s points to missing %s", ErrChainCorrupt, cur.ID, *cur.Next)
		}
		if next.Previous == nil || *next.Previous != cur.ID {
			return nil, fmt.Errorf("%w: %s.next=%s but %s.previous=%v", ErrChainCorrupt,
				cur.ID, next.ID, next.ID, lo.FromPtr(next.Previous))
		}
		cur = next
	}

	if len(out) != len(all) {
		return nil, fmt.Errorf("%w: %d of %d messages reachable from head", ErrChainCorrupt, len(out), len(all))
	}
	return out, nil
}

// Verify confere todas as invariantes da cadeia e das estatísticas do dono.
func (c *Chain) Verify(ctx context.Context, userID string) error {
	walked, err := c.Walk(ctx, userID)
	if err != nil {
		return err
	}
	for i := 1; i < len(walked); i++ {
		if !walked[i].CreatedAt.After(walked[i-1].CreatedAt) {
			return fmt.Errorf("%w: %s is not newer than %s", ErrChainCorrupt, walked[i].ID, walked[i-1].ID)
		}
	}

	u, err := c.store.FindUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}
	if u.PostCount != len(walked) {
		return fmt.Errorf("%w: postCount=%d but chain has %d messages", ErrChainCorrupt, u.PostCount, len(walked))
	}
	switch {
	case len(walked) == 0 && u.LastPostAt != nil:
		return fmt.Errorf("%w: lastPostAt set for user without messages", ErrChainCorrupt)
	case len(walked) > 0 && (u.LastPostAt == nil || !u.LastPostAt.Equal(walked[len(walked)-1].CreatedAt)):
		return fmt.Errorf("%w: lastPostAt does not match tail", ErrChainCorrupt)
	}
	return nil
}

func (c *Chain) lock(ctx context.Context, userID string) (func(), error) {
	if c.locks == nil {
		return func() {}, nil
	}
	release, ok := c.locks.Acquire(ctx, rldomain.Key(userID))
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: user %s", ErrBusy, userID)
	}
	return release, nil
}

func (c *Chain) tail(ctx context.Context, userID string) (domain.Message, bool, error) {
	tail, err := c.store.FindLatestByOwner(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Message{}, false, nil
	}
	if err != nil {
		return domain.Message{}, false, fmt.Errorf("find tail of %s: %w", userID, err)
	}
	return tail, true, nil
}

func (c *Chain) find(ctx context.Context, id string) (domain.Message, bool, error) {
	m, err := c.store.FindMessageByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Message{}, false, nil
	}
	if err != nil {
		return domain.Message{}, false, fmt.Errorf("find message %s: %w", id, err)
	}
	return m, true, nil
}

// logStaleStats registra uma mensagem que ficou na cadeia com postCount ou
// lastPostAt do dono desatualizados. Verify vai acusar a diferença.
func (c *Chain) logStaleStats(msg domain.Message, step string, err error) {
	c.log.Warn("message stored but user stats not updated",
		zap.String("message_id", msg.ID),
		zap.String("owner", msg.Owner),
		zap.String("step", step),
		zap.Error(err),
	)
}

// rollbackInsert desfaz o insert quando a cauda antiga não pôde ser ligada.
func (c *Chain) rollbackInsert(ctx context.Context, msg domain.Message) {
	if err := c.store.DeleteMessage(context.WithoutCancel(ctx), msg.ID); err != nil {
		c.log.Error("rollback of unlinked message failed",
			zap.String("message_id", msg.ID),
			zap.String("owner", msg.Owner),
			zap.Error(err),
		)
	}
}
