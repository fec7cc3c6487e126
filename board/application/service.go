package application

import (
	"context"
	"errors"
	"time"

	"message-board/board/domain"
	rldomain "message-board/ratelimit/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RateLimiter é o contrato que o mural usa do rate limit.
// *ratelimit/application.Service implementa.
type RateLimiter interface {
	CheckAndRecord(ctx context.Context, key rldomain.Key) rldomain.Info
	Status(ctx context.Context, key rldomain.Key) rldomain.Info
	Reset(ctx context.Context, key rldomain.Key) error
}

// MessageChain é o contrato da cadeia de mensagens. *chain.Chain implementa.
type MessageChain interface {
	InsertAtTail(ctx context.Context, userID string, draft domain.MessageDraft) (domain.Message, error)
	RemoveAndRelink(ctx context.Context, messageID string) (bool, error)
	Walk(ctx context.Context, userID string) ([]domain.Message, error)
}

// PostMessageResult vem preenchido também quando o erro é RateLimited:
// quem chama sempre sabe a cota restante e o reset.
type PostMessageResult struct {
	Message   *domain.Message
	RateLimit rldomain.Info
	Success   bool
}

// Service é o orquestrador do mural.
//
// Política de falha: o rate limit falha aberto (dentro do RateLimiter),
// enquanto falhas da RecordStore e da cadeia sobem como Internal.
type Service struct {
	store   domain.RecordStore
	limiter RateLimiter
	chain   MessageChain
	events  domain.EventPublisher
	now     func() time.Time
	newID   func() string
	log     *zap.Logger
}

type Option func(*Service)

// WithEvents liga a publicação de eventos. Falha ao publicar só gera log.
func WithEvents(p domain.EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(store domain.RecordStore, limiter RateLimiter, chain MessageChain, opts ...Option) *Service {
	s := &Service{
		store:   store,
		limiter: limiter,
		chain:   chain,
		now:     time.Now,
		newID:   uuid.NewString,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PostMessage: Validate -> CheckUserExists -> CheckRateLimit -> InsertMessage.
// Qualquer etapa pode encerrar com erro; nada é escrito antes do rate limit.
//
// O contador já foi incrementado quando a inserção roda. Se ela falhar, o
// contador não volta.
func (s *Service) PostMessage(ctx context.Context, in PostMessageInput) (PostMessageResult, error) {
	in = in.normalized()
	if err := validateStruct(in); err != nil {
		return PostMessageResult{}, err
	}

	if _, err := s.findUser(ctx, in.UserID); err != nil {
		return PostMessageResult{}, err
	}

	info := s.limiter.CheckAndRecord(ctx, rldomain.Key(in.UserID))
	if !info.Allowed {
		s.log.Debug("post rejected by rate limit",
			zap.String("user_id", in.UserID),
			zap.Int64("current_count", info.CurrentCount),
			zap.Time("reset_time", info.ResetTime),
		)
		return PostMessageResult{RateLimit: info}, domain.RateLimited(info.ResetTime, info.Remaining)
	}

	msg, err := s.chain.InsertAtTail(ctx, in.UserID, domain.MessageDraft{Body: in.Body})
	if err != nil {
		return PostMessageResult{RateLimit: info}, s.internal("insert message", err, zap.String("user_id", in.UserID))
	}

	s.publish(ctx, domain.Event{
		Type:      domain.EventMessagePosted,
		MessageID: msg.ID,
		Owner:     msg.Owner,
		Body:      msg.Body,
		At:        msg.CreatedAt,
	})

	return PostMessageResult{Message: &msg, RateLimit: info, Success: true}, nil
}

// GetRateLimitStatus é somente leitura.
func (s *Service) GetRateLimitStatus(ctx context.Context, userID string) (rldomain.Info, error) {
	if err := requireID("userId", userID); err != nil {
		return rldomain.Info{}, err
	}
	if _, err := s.findUser(ctx, userID); err != nil {
		return rldomain.Info{}, err
	}
	return s.limiter.Status(ctx, rldomain.Key(userID)), nil
}

func (s *Service) ResetUserLimit(ctx context.Context, userID string) error {
	if err := requireID("userId", userID); err != nil {
		return err
	}
	if err := s.limiter.Reset(ctx, rldomain.Key(userID)); err != nil {
		return s.internal("reset rate limit", err, zap.String("user_id", userID))
	}
	return nil
}

// DeleteMessage devolve false quando a mensagem não existe.
func (s *Service) DeleteMessage(ctx context.Context, messageID string) (bool, error) {
	if err := requireID("messageId", messageID); err != nil {
		return false, err
	}

	m, err := s.store.FindMessageByID(ctx, messageID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.internal("find message", err, zap.String("message_id", messageID))
	}

	removed, err := s.chain.RemoveAndRelink(ctx, messageID)
	if err != nil {
		return false, s.internal("remove message", err, zap.String("message_id", messageID))
	}
	if !removed {
		return false, nil
	}

	s.publish(ctx, domain.Event{
		Type:      domain.EventMessageDeleted,
		MessageID: m.ID,
		Owner:     m.Owner,
		At:        s.now().UTC(),
	})
	return true, nil
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (domain.User, error) {
	in = in.normalized()
	if err := validateStruct(in); err != nil {
		return domain.User{}, err
	}

	u := domain.User{
		ID:        s.newID(),
		Name:      in.Name,
		Email:     in.Email,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.User{}, domain.Conflict("email already registered")
		}
		return domain.User{}, s.internal("create user", err)
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (domain.User, error) {
	if err := requireID("userId", userID); err != nil {
		return domain.User{}, err
	}
	return s.findUser(ctx, userID)
}

// ListMessages devolve a cadeia do usuário da cabeça (mais antiga) até a cauda.
func (s *Service) ListMessages(ctx context.Context, userID string) ([]domain.Message, error) {
	if err := requireID("userId", userID); err != nil {
		return nil, err
	}
	if _, err := s.findUser(ctx, userID); err != nil {
		return nil, err
	}
	msgs, err := s.chain.Walk(ctx, userID)
	if err != nil {
		return nil, s.internal("walk message chain", err, zap.String("user_id", userID))
	}
	return msgs, nil
}

func (s *Service) findUser(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.store.FindUserByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.NotFound("user", userID)
	}
	if err != nil {
		return domain.User{}, s.internal("find user", err, zap.String("user_id", userID))
	}
	return u, nil
}

// internal registra a causa e devolve um erro genérico para quem chama.
func (s *Service) internal(op string, err error, fields ...zap.Field) error {
	s.log.Error(op+" failed", append(fields, zap.Error(err))...)
	return domain.Internal(err)
}

func (s *Service) publish(ctx context.Context, ev domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish event failed",
			zap.String("type", string(ev.Type)),
			zap.String("message_id", ev.MessageID),
			zap.Error(err),
		)
	}
}
