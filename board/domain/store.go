package domain

import (
	"context"
	"errors"
	"time"
)

// Erros sentinela devolvidos pelas stores (embrulhados com %w).
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// RecordStore guarda User e Message. Cada método é uma escrita/leitura
// independente: não há transação entre documentos.
type RecordStore interface {
	CreateUser(ctx context.Context, u User) error
	FindUserByID(ctx context.Context, id string) (User, error)
	IncrementUserField(ctx context.Context, userID string, field UserCounter, delta int) error
	SetLastPostAt(ctx context.Context, userID string, at *time.Time) error

	InsertMessage(ctx context.Context, m Message) error
	FindMessageByID(ctx context.Context, id string) (Message, error)
	// FindLatestByOwner devolve a mensagem mais recente por createdAt,
	// ou ErrNotFound se o usuário nunca postou.
	FindLatestByOwner(ctx context.Context, ownerID string) (Message, error)
	// ListByOwner devolve as mensagens do dono em ordem crescente de createdAt.
	ListByOwner(ctx context.Context, ownerID string) ([]Message, error)
	UpdateLink(ctx context.Context, id string, link Link, target *string) error
	DeleteMessage(ctx context.Context, id string) error
}

type EventType string

const (
	EventMessagePosted  EventType = "message.posted"
	EventMessageDeleted EventType = "message.deleted"
)

type Event struct {
	Type      EventType `json:"type"`
	MessageID string    `json:"messageId"`
	Owner     string    `json:"owner"`
	Body      string    `json:"body,omitempty"`
	At        time.Time `json:"at"`
}

// EventPublisher avisa interessados sobre mudanças no mural. Best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
