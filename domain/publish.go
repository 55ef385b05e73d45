package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PublishStatus uint8

const (
	PublishStatusPending PublishStatus = iota
	PublishStatusActive
	PublishStatusDeleted
)

func (s PublishStatus) String() string {
	switch s {
	case PublishStatusPending:
		return "pending"
	case PublishStatusActive:
		return "active"
	case PublishStatusDeleted:
		return "deleted"
	}
	return "unknown"
}

// Publish is a named site resource. ClaimToken and ExpiresAt are both set
// iff IsAnonymous; claiming clears them and is irreversible.
type Publish struct {
	Id                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Slug              string             `json:"slug" bson:"slug"`
	OwnerUserId       string             `json:"ownerUserId,omitempty" bson:"ownerUserId,omitempty"`
	IsAnonymous       bool               `json:"isAnonymous" bson:"isAnonymous"`
	ClaimToken        string             `json:"-" bson:"claimToken,omitempty"`
	Status            PublishStatus      `json:"status" bson:"status"`
	CurrentVersionId  *string            `json:"currentVersionId,omitempty" bson:"currentVersionId,omitempty"`
	PendingVersionId  *string            `json:"pendingVersionId,omitempty" bson:"pendingVersionId,omitempty"`
	ExpiresAt         *time.Time         `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
	ViewerTitle       string             `json:"viewerTitle,omitempty" bson:"viewerTitle,omitempty"`
	ViewerDescription string             `json:"viewerDescription,omitempty" bson:"viewerDescription,omitempty"`
	TtlSeconds        int64              `json:"ttlSeconds,omitempty" bson:"ttlSeconds,omitempty"`
	CreatedAt         time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Owned reports whether the given identity owns the publish. Anonymous
// publishes are owned by nobody.
func (p Publish) Owned(identity string) bool {
	return !p.IsAnonymous && identity != "" && p.OwnerUserId == identity
}

// Expired reports whether the publish has lapsed at the given instant.
// Only anonymous publishes expire.
func (p Publish) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// MetadataPatch is a partial update of viewer metadata. Nil fields are
// left untouched.
type MetadataPatch struct {
	TtlSeconds        *int64
	ViewerTitle       *string
	ViewerDescription *string
}
