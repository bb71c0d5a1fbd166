// Package database holds the Mongo-backed stores: sessions and web push
// subscriptions. Posts and users live in the remote document store.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"socialsync/models"
	"socialsync/session"
)

const (
	SessionsCollection      = "sessions"
	SubscriptionsCollection = "push_subscriptions"
)

// Mongo is a connected client and the database the stores use.
type Mongo struct {
	Client *mongo.Client
	DB     *mongo.Database
	logger *zap.Logger
}

// ConnectMongo connects to uri and pings it, retrying up to attempts times.
func ConnectMongo(ctx context.Context, uri, name string, attempts int, logger *zap.Logger) (*Mongo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		m, err := connectOnce(ctx, uri, name)
		if err == nil {
			m.logger = logger
			logger.Info("connected to mongo", zap.String("database", name))
			return m, nil
		}
		lastErr = err
		logger.Warn("mongo connection failed", zap.Int("attempt", i), zap.Error(err))
		if i < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	return nil, fmt.Errorf("connect mongo after %d attempts: %w", attempts, lastErr)
}

func connectOnce(ctx context.Context, uri, name string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return &Mongo{Client: client, DB: client.Database(name)}, nil
}

func (m *Mongo) Disconnect(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := m.Client.Disconnect(ctx); err != nil {
		return err
	}
	m.logger.Info("disconnected from mongo")
	return nil
}

// SessionStore keeps one document per session, keyed by session id.
type SessionStore struct {
	coll *mongo.Collection
}

func NewSessionStore(coll *mongo.Collection) *SessionStore {
	return &SessionStore{coll: coll}
}

func (s *SessionStore) Load(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Following == nil {
		sess.Following = []string{}
	}
	return &sess, nil
}

// Save replaces the whole session document; the last writer wins.
func (s *SessionStore) Save(ctx context.Context, sess *models.Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("save session: missing id")
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": sess.ID}, sess, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SubscriptionStore keeps web push subscriptions, one per endpoint.
type SubscriptionStore struct {
	coll *mongo.Collection
}

func NewSubscriptionStore(coll *mongo.Collection) *SubscriptionStore {
	return &SubscriptionStore{coll: coll}
}

// Upsert stores sub, moving the endpoint to sub.UserID if another user had it.
func (s *SubscriptionStore) Upsert(ctx context.Context, sub models.PushSubscription) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"sub.endpoint": sub.Sub.Endpoint},
		bson.M{"$set": bson.M{"userId": sub.UserID, "sub": sub.Sub}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) ForUser(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("find subscriptions: %w", err)
	}
	var subs []models.PushSubscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	return subs, nil
}

func (s *SubscriptionStore) DeleteEndpoint(ctx context.Context, endpoint string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"sub.endpoint": endpoint}); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}
