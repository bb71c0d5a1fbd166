package models

import (
	"github.com/SherClockHolmes/webpush-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PushSubscription is a browser's web push endpoint for one user.
type PushSubscription struct {
	ID     primitive.ObjectID   `bson:"_id,omitempty" json:"-"`
	UserID string               `bson:"userId" json:"userId"`
	Sub    webpush.Subscription `bson:"sub" json:"sub"`
}
