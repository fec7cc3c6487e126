package domain

import "time"

// MaxBodyLength é o limite de caracteres (runes) do corpo, depois do trim.
const MaxBodyLength = 1000

type User struct {
	ID         string
	Name       string
	Email      string
	CreatedAt  time.Time
	PostCount  int
	LastPostAt *time.Time
}

// Message é um nó da cadeia do dono.
//
// Previous/Next são referências por id (não ponteiros com vida própria):
// todas as mensagens vivem na RecordStore.
type Message struct {
	ID        string
	Body      string
	Owner     string
	CreatedAt time.Time
	Previous  *string
	Next      *string
}

func (m Message) IsHead() bool { return m.Previous == nil }
func (m Message) IsTail() bool { return m.Next == nil }

type MessageDraft struct {
	Body string
}

// Link é o campo de encadeamento atualizado em UpdateLink.
type Link string

const (
	LinkPrevious Link = "previous"
	LinkNext     Link = "next"
)

// UserCounter é um campo numérico do usuário incrementável.
type UserCounter string

const UserPostCount UserCounter = "postCount"
