package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	Id        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Email     string             `json:"email" bson:"email"`
	ApiKey    string             `json:"-" bson:"apiKey"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// MagicLink is a single-use login token sent by mail.
type MagicLink struct {
	Id        primitive.ObjectID `bson:"_id,omitempty"`
	Email     string             `bson:"email"`
	Token     string             `bson:"token"`
	ExpiresAt time.Time          `bson:"expiresAt"`
	Used      bool               `bson:"used"`
}

// WebhookEndpoint is an owner-registered delivery target for one event type.
type WebhookEndpoint struct {
	Id        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserId    string             `json:"userId" bson:"userId"`
	EventType string             `json:"eventType" bson:"eventType"`
	Url       string             `json:"url" bson:"url"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}
