package infra

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"message-board/board/domain"

	"github.com/samber/lo"
)

// MemoryRecordStore implementa domain.RecordStore em memória.
//
// Cada método trava o mutex sozinho, então duas chamadas seguidas não são
// atômicas entre si (mesmo modelo de uma store de documentos real).
type MemoryRecordStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	emails   map[string]string
	messages map[string]domain.Message
	byOwner  map[string]map[string]struct{}
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		users:    make(map[string]domain.User),
		emails:   make(map[string]string),
		messages: make(map[string]domain.Message),
		byOwner:  make(map[string]map[string]struct{}),
	}
}

func (s *MemoryRecordStore) CreateUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %q: %w", u.ID, domain.ErrConflict)
	}
	if _, ok := s.emails[u.Email]; ok {
		return fmt.Errorf("email %q: %w", u.Email, domain.ErrConflict)
	}
	s.users[u.ID] = cloneUser(u)
	s.emails[u.Email] = u.ID
	return nil
}

func (s *MemoryRecordStore) FindUserByID(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %q: %w", id, domain.ErrNotFound)
	}
	return cloneUser(u), nil
}

func (s *MemoryRecordStore) IncrementUserField(_ context.Context, userID string, field domain.UserCounter, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %q: %w", userID, domain.ErrNotFound)
	}
	switch field {
	case domain.UserPostCount:
		u.PostCount += delta
	default:
		return fmt.Errorf("unknown user counter %q", field)
	}
	s.users[userID] = u
	return nil
}

func (s *MemoryRecordStore) SetLastPostAt(_ context.Context, userID string, at *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %q: %w", userID, domain.ErrNotFound)
	}
	u.LastPostAt = cloneTime(at)
	s.users[userID] = u
	return nil
}

func (s *MemoryRecordStore) InsertMessage(_ context.Context, m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[m.ID]; ok {
		return fmt.Errorf("message %q: %w", m.ID, domain.ErrConflict)
	}
	s.messages[m.ID] = cloneMessage(m)
	ids, ok := s.byOwner[m.Owner]
	if !ok {
		ids = make(map[string]struct{})
		s.byOwner[m.Owner] = ids
	}
	ids[m.ID] = struct{}{}
	return nil
}

func (s *MemoryRecordStore) FindMessageByID(_ context.Context, id string) (domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return domain.Message{}, fmt.Errorf("message %q: %w", id, domain.ErrNotFound)
	}
	return cloneMessage(m), nil
}

func (s *MemoryRecordStore) FindLatestByOwner(_ context.Context, ownerID string) (domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.ownerMessages(ownerID)
	if len(msgs) == 0 {
		return domain.Message{}, fmt.Errorf("latest message of %q: %w", ownerID, domain.ErrNotFound)
	}
	return msgs[len(msgs)-1], nil
}

func (s *MemoryRecordStore) ListByOwner(_ context.Context, ownerID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownerMessages(ownerID), nil
}

func (s *MemoryRecordStore) UpdateLink(_ context.Context, id string, link domain.Link, target *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("message %q: %w", id, domain.ErrNotFound)
	}
	switch link {
	case domain.LinkPrevious:
		m.Previous = cloneString(target)
	case domain.LinkNext:
		m.Next = cloneString(target)
	default:
		return fmt.Errorf("unknown link %q", link)
	}
	s.messages[id] = m
	return nil
}

func (s *MemoryRecordStore) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("message %q: %w", id, domain.ErrNotFound)
	}
	delete(s.messages, id)
	delete(s.byOwner[m.Owner], id)
	return nil
}

// ownerMessages ordena por createdAt e, no empate, por id. Chamar com s.mu travado.
func (s *MemoryRecordStore) ownerMessages(ownerID string) []domain.Message {
	ids := s.byOwner[ownerID]
	out := make([]domain.Message, 0, len(ids))
	for id := range ids {
		out = append(out, cloneMessage(s.messages[id]))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func cloneUser(u domain.User) domain.User {
	u.LastPostAt = cloneTime(u.LastPostAt)
	return u
}

func cloneMessage(m domain.Message) domain.Message {
	m.Previous = cloneString(m.Previous)
	m.Next = cloneString(m.Next)
	return m
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	return lo.ToPtr(*p)
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	return lo.ToPtr(*p)
}
