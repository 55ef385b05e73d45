package auth

import (
	"context"
	"errors"
	"time"

	"github.com/anyproto/any-sync/app"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/instanthost/publish-server/db"
	"github.com/instanthost/publish-server/domain"
	"github.com/instanthost/publish-server/publishclient/publishapi"
)

type authRepo interface {
	run(ctx context.Context) error
	userByApiKey(ctx context.Context, apiKey string) (domain.User, error)
	insertMagicLink(ctx context.Context, link domain.MagicLink) error
	// consumeMagicLink marks the link used; the filter on used=false makes
	// every token single-use even under concurrent verification.
	consumeMagicLink(ctx context.Context, token string, now time.Time) (domain.MagicLink, error)
	userByEmailOrCreate(ctx context.Context, email, apiKey string) (domain.User, error)
}

var (
	userIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "apiKey", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	magicLinkIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
)

func newRepo(a *app.App) *mongoRepo {
	return &mongoRepo{db: a.MustComponent(db.CName).(db.Database)}
}

type mongoRepo struct {
	db            db.Database
	usersColl     *mongo.Collection
	magicLinkColl *mongo.Collection
}

func (r *mongoRepo) run(ctx context.Context) (err error) {
	r.usersColl = r.db.Db().Collection("user")
	r.magicLinkColl = r.db.Db().Collection("magicLink")
	if err = ensureIndexes(ctx, r.usersColl, userIndexes...); err != nil {
		return
	}
	return ensureIndexes(ctx, r.magicLinkColl, magicLinkIndexes...)
}

func ensureIndexes(ctx context.Context, coll *mongo.Collection, indexes ...mongo.IndexModel) (err error) {
	existingIndexes, err := coll.Indexes().ListSpecifications(ctx)
	if err != nil {
		return
	}
	if len(existingIndexes) <= 1 {
		_, err = coll.Indexes().CreateMany(ctx, indexes)
	}
	return
}

func (r *mongoRepo) userByApiKey(ctx context.Context, apiKey string) (user domain.User, err error) {
	if err = r.usersColl.FindOne(ctx, bson.D{{Key: "apiKey", Value: apiKey}}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.User{}, publishapi.ErrUnauthenticated
		}
		return
	}
	return
}

func (r *mongoRepo) insertMagicLink(ctx context.Context, link domain.MagicLink) (err error) {
	link.Id = primitive.NewObjectID()
	_, err = r.magicLinkColl.InsertOne(ctx, link)
	return
}

func (r *mongoRepo) consumeMagicLink(ctx context.Context, token string, now time.Time) (link domain.MagicLink, err error) {
	err = r.magicLinkColl.FindOneAndUpdate(
		ctx,
		bson.D{
			{Key: "token", Value: token},
			{Key: "used", Value: false},
			{Key: "expiresAt", Value: bson.D{{Key: "$gt", Value: now}}},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "used", Value: true}}}},
	).Decode(&link)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.MagicLink{}, ErrInvalidToken
	}
	return
}

func (r *mongoRepo) userByEmailOrCreate(ctx context.Context, email, apiKey string) (user domain.User, err error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err = r.usersColl.FindOneAndUpdate(
		ctx,
		bson.D{{Key: "email", Value: email}},
		bson.D{{Key: "$setOnInsert", Value: bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "email", Value: email},
			{Key: "apiKey", Value: apiKey},
			{Key: "createdAt", Value: time.Now()},
		}}},
		opts,
	).Decode(&user)
	return
}
