package database

import (
	"context"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"socialsync/models"
	"socialsync/session"
)

func TestSessionStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("load found", func(mt *mtest.T) {
		store := NewSessionStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "db.sessions", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "s1"},
			{Key: "token", Value: "tok"},
			{Key: "userId", Value: "u1"},
			{Key: "following", Value: bson.A{"u2"}},
		}))

		sess, err := store.Load(context.Background(), "s1")
		require.NoError(mt, err)
		assert.Equal(mt, "u1", sess.UserID)
		assert.Equal(mt, []string{"u2"}, sess.Following)
	})

	mt.Run("load missing", func(mt *mtest.T) {
		store := NewSessionStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.sessions", mtest.FirstBatch))

		_, err := store.Load(context.Background(), "nope")
		assert.ErrorIs(mt, err, session.ErrNotFound)
	})

	mt.Run("save upserts", func(mt *mtest.T) {
		store := NewSessionStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		err := store.Save(context.Background(), &models.Session{ID: "s1", Token: "tok", UserID: "u1"})
		require.NoError(mt, err)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "update", started.CommandName)
	})

	mt.Run("save without id", func(mt *mtest.T) {
		store := NewSessionStore(mt.Coll)
		assert.Error(mt, store.Save(context.Background(), &models.Session{}))
	})

	mt.Run("delete", func(mt *mtest.T) {
		store := NewSessionStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		assert.NoError(mt, store.Delete(context.Background(), "s1"))
	})
}

func TestSubscriptionStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("for user", func(mt *mtest.T) {
		store := NewSubscriptionStore(mt.Coll)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(1, "db.push_subscriptions", mtest.FirstBatch, bson.D{
				{Key: "userId", Value: "u1"},
				{Key: "sub", Value: bson.D{{Key: "endpoint", Value: "https://push.example/1"}}},
			}),
			mtest.CreateCursorResponse(0, "db.push_subscriptions", mtest.NextBatch),
		)

		subs, err := store.ForUser(context.Background(), "u1")
		require.NoError(mt, err)
		require.Len(mt, subs, 1)
		assert.Equal(mt, "https://push.example/1", subs[0].Sub.Endpoint)
	})

	mt.Run("upsert", func(mt *mtest.T) {
		store := NewSubscriptionStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		err := store.Upsert(context.Background(), models.PushSubscription{
			UserID: "u1",
			Sub:    webpush.Subscription{Endpoint: "https://push.example/1"},
		})
		assert.NoError(mt, err)
	})
}
