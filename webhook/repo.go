package webhook

import (
	"context"

	"github.com/anyproto/any-sync/app"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/instanthost/publish-server/db"
	"github.com/instanthost/publish-server/domain"
	"github.com/instanthost/publish-server/publishclient/publishapi"
)

type endpointRepo interface {
	run(ctx context.Context) error
	endpoints(ctx context.Context, userId, eventType string) ([]domain.WebhookEndpoint, error)
	insert(ctx context.Context, ep domain.WebhookEndpoint) error
	listByUser(ctx context.Context, userId string) ([]domain.WebhookEndpoint, error)
	delete(ctx context.Context, userId string, id primitive.ObjectID) error
}

var endpointIndexes = []mongo.IndexModel{
	{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "eventType", Value: 1}},
	},
}

func newRepo(a *app.App) *mongoRepo {
	return &mongoRepo{db: a.MustComponent(db.CName).(db.Database)}
}

type mongoRepo struct {
	db   db.Database
	coll *mongo.Collection
}

func (r *mongoRepo) run(ctx context.Context) (err error) {
	r.coll = r.db.Db().Collection("webhook")
	existingIndexes, err := r.coll.Indexes().ListSpecifications(ctx)
	if err != nil {
		return
	}
	if len(existingIndexes) <= 1 {
		_, err = r.coll.Indexes().CreateMany(ctx, endpointIndexes)
	}
	return
}

func (r *mongoRepo) endpoints(ctx context.Context, userId, eventType string) (eps []domain.WebhookEndpoint, err error) {
	cur, err := r.coll.Find(ctx, bson.D{{Key: "userId", Value: userId}, {Key: "eventType", Value: eventType}})
	if err != nil {
		return
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	err = cur.All(ctx, &eps)
	return
}

func (r *mongoRepo) insert(ctx context.Context, ep domain.WebhookEndpoint) (err error) {
	_, err = r.coll.InsertOne(ctx, ep)
	return
}

func (r *mongoRepo) listByUser(ctx context.Context, userId string) (eps []domain.WebhookEndpoint, err error) {
	cur, err := r.coll.Find(ctx, bson.D{{Key: "userId", Value: userId}})
	if err != nil {
		return
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	err = cur.All(ctx, &eps)
	return
}

func (r *mongoRepo) delete(ctx context.Context, userId string, id primitive.ObjectID) (err error) {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "userId", Value: userId}})
	if err != nil {
		return
	}
	if res.DeletedCount == 0 {
		return publishapi.ErrNotFound
	}
	return
}
