package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"message-board/board/domain"

	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/bson"
)

// Layout das chaves:
//
//	user:{id}                          -> userDoc (bson)
//	email:{email}                      -> id
//	msg:{id}                           -> messageDoc (bson)
//	owner:{len}:{ownerID}:{unixmilli 19d}:{id} -> vazio, índice por dono ordenado por tempo
//
// O timestamp com 19 dígitos deixa a ordem lexicográfica igual à cronológica.
// Milissegundos porque é a precisão que sobrevive ao bson. O tamanho antes do
// ownerID impede que o dono "a" case com o prefixo do dono "a:1".
const (
	userPrefix  = "user:"
	emailPrefix = "email:"
	msgPrefix   = "msg:"
	ownerPrefix = "owner:"

	badgerMaxRetries = 5
)

// BadgerRecordStore é a RecordStore embarcada, para rodar sem Mongo.
// Cada método roda numa transação própria do Badger.
type BadgerRecordStore struct {
	db *badger.DB
}

func NewBadgerRecordStore(db *badger.DB) *BadgerRecordStore {
	return &BadgerRecordStore{db: db}
}

// OpenBadger abre (ou cria) o diretório do banco. path vazio abre em memória.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

func (s *BadgerRecordStore) CreateUser(_ context.Context, u domain.User) error {
	return s.update(func(txn *badger.Txn) error {
		if exists, err := keyExists(txn, userKey(u.ID)); err != nil || exists {
			return conflictOr(err, "user %q", u.ID)
		}
		if exists, err := keyExists(txn, emailKey(u.Email)); err != nil || exists {
			return conflictOr(err, "email %q", u.Email)
		}
		if err := setBSON(txn, userKey(u.ID), toUserDoc(u)); err != nil {
			return err
		}
		return txn.Set(emailKey(u.Email), []byte(u.ID))
	})
}

func (s *BadgerRecordStore) FindUserByID(_ context.Context, id string) (domain.User, error) {
	var doc userDoc
	err := s.db.View(func(txn *badger.Txn) error {
		return getBSON(txn, userKey(id), &doc, "user %q", id)
	})
	if err != nil {
		return domain.User{}, err
	}
	return doc.toDomain(), nil
}

func (s *BadgerRecordStore) IncrementUserField(_ context.Context, userID string, field domain.UserCounter, delta int) error {
	if field != domain.UserPostCount {
		return fmt.Errorf("unknown user counter %q", field)
	}
	return s.update(func(txn *badger.Txn) error {
		var doc userDoc
		if err := getBSON(txn, userKey(userID), &doc, "user %q", userID); err != nil {
			return err
		}
		doc.PostCount += delta
		return setBSON(txn, userKey(userID), doc)
	})
}

func (s *BadgerRecordStore) SetLastPostAt(_ context.Context, userID string, at *time.Time) error {
	return s.update(func(txn *badger.Txn) error {
		var doc userDoc
		if err := getBSON(txn, userKey(userID), &doc, "user %q", userID); err != nil {
			return err
		}
		doc.LastPostAt = at
		return setBSON(txn, userKey(userID), doc)
	})
}

func (s *BadgerRecordStore) InsertMessage(_ context.Context, m domain.Message) error {
	return s.update(func(txn *badger.Txn) error {
		if exists, err := keyExists(txn, msgKey(m.ID)); err != nil || exists {
			return conflictOr(err, "message %q", m.ID)
		}
		if err := setBSON(txn, msgKey(m.ID), toMessageDoc(m)); err != nil {
			return err
		}
		return txn.Set(ownerKey(m.Owner, m.CreatedAt, m.ID), nil)
	})
}

func (s *BadgerRecordStore) FindMessageByID(_ context.Context, id string) (domain.Message, error) {
	var doc messageDoc
	err := s.db.View(func(txn *badger.Txn) error {
		return getBSON(txn, msgKey(id), &doc, "message %q", id)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return doc.toDomain(), nil
}

func (s *BadgerRecordStore) FindLatestByOwner(_ context.Context, ownerID string) (domain.Message, error) {
	var doc messageDoc
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := ownerIndexPrefix(ownerID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// "~" ordena depois de qualquer dígito: o seek cai na chave mais nova.
		it.Seek(append(append([]byte{}, prefix...), '~'))
		if !it.ValidForPrefix(prefix) {
			return fmt.Errorf("messages of %q: %w", ownerID, domain.ErrNotFound)
		}
		id := idFromOwnerKey(prefix, it.Item().Key())
		return getBSON(txn, msgKey(id), &doc, "message %q", id)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return doc.toDomain(), nil
}

func (s *BadgerRecordStore) ListByOwner(_ context.Context, ownerID string) ([]domain.Message, error) {
	var out []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := ownerIndexPrefix(ownerID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := idFromOwnerKey(prefix, it.Item().Key())
			var doc messageDoc
			if err := getBSON(txn, msgKey(id), &doc, "message %q", id); err != nil {
				return err
			}
			out = append(out, doc.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerRecordStore) UpdateLink(_ context.Context, id string, link domain.Link, target *string) error {
	return s.update(func(txn *badger.Txn) error {
		var doc messageDoc
		if err := getBSON(txn, msgKey(id), &doc, "message %q", id); err != nil {
			return err
		}
		switch link {
		case domain.LinkPrevious:
			doc.Previous = target
		case domain.LinkNext:
			doc.Next = target
		default:
			return fmt.Errorf("unknown link %q", link)
		}
		return setBSON(txn, msgKey(id), doc)
	})
}

func (s *BadgerRecordStore) DeleteMessage(_ context.Context, id string) error {
	return s.update(func(txn *badger.Txn) error {
		var doc messageDoc
		if err := getBSON(txn, msgKey(id), &doc, "message %q", id); err != nil {
			return err
		}
		if err := txn.Delete(ownerKey(doc.Owner, doc.CreatedAt, doc.ID)); err != nil {
			return err
		}
		return txn.Delete(msgKey(id))
	})
}

// update repete a transação quando o Badger detecta conflito de escrita.
func (s *BadgerRecordStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range badgerMaxRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func userKey(id string) []byte     { return []byte(userPrefix + id) }
func emailKey(email string) []byte { return []byte(emailPrefix + email) }
func msgKey(id string) []byte      { return []byte(msgPrefix + id) }

func ownerIndexPrefix(ownerID string) []byte {
	return []byte(fmt.Sprintf("%s%d:%s:", ownerPrefix, len(ownerID), ownerID))
}

func ownerKey(ownerID string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", ownerIndexPrefix(ownerID), at.UnixMilli(), id))
}

// idFromOwnerKey pula o prefixo do dono e os 19 dígitos + ':' do timestamp.
func idFromOwnerKey(prefix, key []byte) string {
	return string(key[len(prefix)+20:])
}

func keyExists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func conflictOr(err error, format string, args ...any) error {
	if err != nil {
		return err
	}
	return fmt.Errorf(format+": %w", append(args, domain.ErrConflict)...)
}

func getBSON(txn *badger.Txn, key []byte, out any, format string, args ...any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf(format+": %w", append(args, domain.ErrNotFound)...)
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return bson.Unmarshal(val, out)
	})
}

func setBSON(txn *badger.Txn, key []byte, v any) error {
	b, err := bson.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}
