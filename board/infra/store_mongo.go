package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"message-board/board/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
)

type userDoc struct {
	ID         string     `bson:"_id"`
	Name       string     `bson:"name"`
	Email      string     `bson:"email"`
	CreatedAt  time.Time  `bson:"createdAt"`
	PostCount  int        `bson:"postCount"`
	LastPostAt *time.Time `bson:"lastPostAt"`
}

type messageDoc struct {
	ID        string    `bson:"_id"`
	Body      string    `bson:"body"`
	Owner     string    `bson:"owner"`
	CreatedAt time.Time `bson:"createdAt"`
	Previous  *string   `bson:"previous"`
	Next      *string   `bson:"next"`
}

// MongoRecordStore guarda usuários e mensagens em duas coleções.
// Nenhum método usa transação: cada um é uma escrita de documento único.
type MongoRecordStore struct {
	users    *mongo.Collection
	messages *mongo.Collection
}

// NewMongoRecordStore cria os índices (email único; owner+createdAt) se
// ainda não existirem.
func NewMongoRecordStore(ctx context.Context, db *mongo.Database) (*MongoRecordStore, error) {
	s := &MongoRecordStore{
		users:    db.Collection(usersCollection),
		messages: db.Collection(messagesCollection),
	}

	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create users.email index: %w", err)
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("create messages.owner index: %w", err)
	}
	return s, nil
}

func (s *MongoRecordStore) CreateUser(ctx context.Context, u domain.User) error {
	_, err := s.users.InsertOne(ctx, toUserDoc(u))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("user %q: %w", u.ID, domain.ErrConflict)
	}
	return err
}

func (s *MongoRecordStore) FindUserByID(ctx context.Context, id string) (domain.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, fmt.Errorf("user %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, err
	}
	return doc.toDomain(), nil
}

func (s *MongoRecordStore) IncrementUserField(ctx context.Context, userID string, field domain.UserCounter, delta int) error {
	if field != domain.UserPostCount {
		return fmt.Errorf("unknown user counter %q", field)
	}
	res, err := s.users.UpdateByID(ctx, userID, bson.M{"$inc": bson.M{string(field): delta}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %q: %w", userID, domain.ErrNotFound)
	}
	return nil
}

func (s *MongoRecordStore) SetLastPostAt(ctx context.Context, userID string, at *time.Time) error {
	res, err := s.users.UpdateByID(ctx, userID, bson.M{"$set": bson.M{"lastPostAt": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %q: %w", userID, domain.ErrNotFound)
	}
	return nil
}

func (s *MongoRecordStore) InsertMessage(ctx context.Context, m domain.Message) error {
	_, err := s.messages.InsertOne(ctx, toMessageDoc(m))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("message %q: %w", m.ID, domain.ErrConflict)
	}
	return err
}

func (s *MongoRecordStore) FindMessageByID(ctx context.Context, id string) (domain.Message, error) {
	var doc messageDoc
	err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Message{}, fmt.Errorf("message %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Message{}, err
	}
	return doc.toDomain(), nil
}

func (s *MongoRecordStore) FindLatestByOwner(ctx context.Context, ownerID string) (domain.Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	var doc messageDoc
	err := s.messages.FindOne(ctx, bson.M{"owner": ownerID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Message{}, fmt.Errorf("messages of %q: %w", ownerID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Message{}, err
	}
	return doc.toDomain(), nil
}

func (s *MongoRecordStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.messages.Find(ctx, bson.M{"owner": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *MongoRecordStore) UpdateLink(ctx context.Context, id string, link domain.Link, target *string) error {
	if link != domain.LinkPrevious && link != domain.LinkNext {
		return fmt.Errorf("unknown link %q", link)
	}
	res, err := s.messages.UpdateByID(ctx, id, bson.M{"$set": bson.M{string(link): target}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("message %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *MongoRecordStore) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.messages.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("message %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

func toUserDoc(u domain.User) userDoc {
	return userDoc{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		CreatedAt:  u.CreatedAt.UTC(),
		PostCount:  u.PostCount,
		LastPostAt: u.LastPostAt,
	}
}

func (d userDoc) toDomain() domain.User {
	u := domain.User{
		ID:        d.ID,
		Name:      d.Name,
		Email:     d.Email,
		CreatedAt: d.CreatedAt.UTC(),
		PostCount: d.PostCount,
	}
	if d.LastPostAt != nil {
		at := d.LastPostAt.UTC()
		u.LastPostAt = &at
	}
	return u
}

func toMessageDoc(m domain.Message) messageDoc {
	return messageDoc{
		ID:        m.ID,
		Body:      m.Body,
		Owner:     m.Owner,
		CreatedAt: m.CreatedAt.UTC(),
		Previous:  m.Previous,
		Next:      m.Next,
	}
}

func (d messageDoc) toDomain() domain.Message {
	return domain.Message{
		ID:        d.ID,
		Body:      d.Body,
		Owner:     d.Owner,
		CreatedAt: d.CreatedAt.UTC(),
		Previous:  d.Previous,
		Next:      d.Next,
	}
}

// ConnectMongo abre o cliente e confirma a conexão com um ping.
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return cli, nil
}
