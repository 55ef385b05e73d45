package publishrepo

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

const CName = "publish.repo"

func New() PublishRepo {
	return new(publishRepo)
}

// PublishRepo is the durable registry for publish and version records.
// It exposes exactly the operations the coordinator needs, not an open
// query surface. Conflict-sensitive transitions (finalize, claim) are
// compare-and-set updates so concurrent attempts cannot both succeed.
type PublishRepo interface {
	CreatePublish(ctx context.Context, p domain.Publish) error
	PublishBySlug(ctx context.Context, slug string) (domain.Publish, error)
	PublishById(ctx context.Context, id primitive.ObjectID) (domain.Publish, error)
	ListByOwner(ctx context.Context, userId string) ([]domain.Publish, error)
	UpdateMetadata(ctx context.Context, id primitive.ObjectID, patch domain.MetadataPatch) error
	// DeletePublish removes the publish record and every version it ever had.
	DeletePublish(ctx context.Context, id primitive.ObjectID) error
	ListExpired(ctx context.Context, now time.Time) ([]domain.Publish, error)

	// AttachPendingVersion inserts the version and points the publish's
	// pendingVersionId at it, superseding any previous pending id.
	AttachPendingVersion(ctx context.Context, v domain.PublishVersion) error
	VersionById(ctx context.Context, id string) (domain.PublishVersion, error)
	ListVersions(ctx context.Context, publishId primitive.ObjectID) ([]domain.PublishVersion, error)

	// FinalizeVersion promotes versionId from pending to current. The update
	// is keyed on the prior pendingVersionId value; a stale or duplicate
	// finalize gets ErrVersionMismatch and changes nothing.
	FinalizeVersion(ctx context.Context, publishId primitive.ObjectID, versionId string, now time.Time) error
	// Claim transfers ownership of an anonymous publish. Keyed on
	// isAnonymous and the exact claim token, so it succeeds at most once.
	Claim(ctx context.Context, publishId primitive.ObjectID, claimToken, userId string) error

	app.ComponentRunnable
}

var (
	publishIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "ownerUserId", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "isAnonymous", Value: 1}, {Key: "expiresAt", Value: 1}},
		},
	}
	versionIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "publishId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	}
)

type publishRepo struct {
	db           db.Database
	publishColl  *mongo.Collection
	versionsColl *mongo.Collection
}

func (p *publishRepo) Name() (name string) {
	return CName
}

func (p *publishRepo) Init(a *app.App) (err error) {
	p.db = a.MustComponent(db.CName).(db.Database)
	return
}

func (p *publishRepo) Run(ctx context.Context) (err error) {
	p.publishColl = p.db.Db().Collection("publish")
	p.versionsColl = p.db.Db().Collection("publishVersion")
	if err = ensureIndexes(ctx, p.publishColl, publishIndexes...); err != nil {
		return
	}
	if err = ensureIndexes(ctx, p.versionsColl, versionIndexes...); err != nil {
		return
	}
	return
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

func (p *publishRepo) CreatePublish(ctx context.Context, pub domain.Publish) (err error) {
	if _, err = p.publishColl.InsertOne(ctx, pub); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return publishapi.ErrSlugTaken
		}
		return
	}
	return
}

func (p *publishRepo) PublishBySlug(ctx context.Context, slug string) (pub domain.Publish, err error) {
	query := bson.D{{Key: "slug", Value: slug}, {Key: "status", Value: bson.D{{Key: "$ne", Value: domain.PublishStatusDeleted}}}}
	if err = p.publishColl.FindOne(ctx, query).Decode(&pub); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Publish{}, publishapi.ErrNotFound
		}
		return
	}
	return
}

func (p *publishRepo) PublishById(ctx context.Context, id primitive.ObjectID) (pub domain.Publish, err error) {
	if err = p.publishColl.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&pub); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Publish{}, publishapi.ErrNotFound
		}
		return
	}
	return
}

func (p *publishRepo) ListByOwner(ctx context.Context, userId string) (pubs []domain.Publish, err error) {
	query := bson.D{{Key: "ownerUserId", Value: userId}, {Key: "status", Value: bson.D{{Key: "$ne", Value: domain.PublishStatusDeleted}}}}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cur, err := p.publishColl.Find(ctx, query, opts)
	if err != nil {
		return
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	err = cur.All(ctx, &pubs)
	return
}

func (p *publishRepo) UpdateMetadata(ctx context.Context, id primitive.ObjectID, patch domain.MetadataPatch) (err error) {
	set := bson.D{{Key: "updatedAt", Value: time.Now()}}
	if patch.TtlSeconds != nil {
		set = append(set, bson.E{Key: "ttlSeconds", Value: *patch.TtlSeconds})
	}
	if patch.ViewerTitle != nil {
		set = append(set, bson.E{Key: "viewerTitle", Value: *patch.ViewerTitle})
	}
	if patch.ViewerDescription != nil {
		set = append(set, bson.E{Key: "viewerDescription", Value: *patch.ViewerDescription})
	}
	res, err := p.publishColl.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return
	}
	if res.MatchedCount == 0 {
		return publishapi.ErrNotFound
	}
	return
}

func (p *publishRepo) DeletePublish(ctx context.Context, id primitive.ObjectID) (err error) {
	return p.db.Tx(ctx, func(txCtx mongo.SessionContext) (err error) {
		if _, err = p.versionsColl.DeleteMany(txCtx, bson.D{{Key: "publishId", Value: id}}); err != nil {
			return
		}
		_, err = p.publishColl.DeleteOne(txCtx, bson.D{{Key: "_id", Value: id}})
		return
	})
}

func (p *publishRepo) ListExpired(ctx context.Context, now time.Time) (pubs []domain.Publish, err error) {
	query := bson.D{
		{Key: "isAnonymous", Value: true},
		{Key: "expiresAt", Value: bson.D{{Key: "$lt", Value: now}}},
		{Key: "status", Value: bson.D{{Key: "$ne", Value: domain.PublishStatusDeleted}}},
	}
	cur, err := p.publishColl.Find(ctx, query)
	if err != nil {
		return
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	err = cur.All(ctx, &pubs)
	return
}

func (p *publishRepo) AttachPendingVersion(ctx context.Context, v domain.PublishVersion) (err error) {
	return p.db.Tx(ctx, func(txCtx mongo.SessionContext) (err error) {
		if _, err = p.versionsColl.InsertOne(txCtx, v); err != nil {
			return
		}
		res, err := p.publishColl.UpdateOne(
			txCtx,
			bson.D{{Key: "_id", Value: v.PublishId}},
			bson.D{{Key: "$set", Value: bson.D{
				{Key: "pendingVersionId", Value: v.Id},
				{Key: "updatedAt", Value: time.Now()},
			}}},
		)
		if err != nil {
			return
		}
		if res.MatchedCount == 0 {
			return publishapi.ErrNotFound
		}
		return
	})
}

func (p *publishRepo) VersionById(ctx context.Context, id string) (v domain.PublishVersion, err error) {
	if err = p.versionsColl.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&v); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.PublishVersion{}, publishapi.ErrNotFound
		}
		return
	}
	return
}

func (p *publishRepo) ListVersions(ctx context.Context, publishId primitive.ObjectID) (versions []domain.PublishVersion, err error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := p.versionsColl.Find(ctx, bson.D{{Key: "publishId", Value: publishId}}, opts)
	if err != nil {
		return
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	err = cur.All(ctx, &versions)
	return
}

func (p *publishRepo) FinalizeVersion(ctx context.Context, publishId primitive.ObjectID, versionId string, now time.Time) (err error) {
	return p.db.Tx(ctx, func(txCtx mongo.SessionContext) (err error) {
		// the filter on pendingVersionId is the compare-and-set: a concurrent
		// finalize that already won leaves nothing to match here
		res, err := p.publishColl.UpdateOne(
			txCtx,
			bson.D{{Key: "_id", Value: publishId}, {Key: "pendingVersionId", Value: versionId}},
			bson.D{
				{Key: "$set", Value: bson.D{
					{Key: "currentVersionId", Value: versionId},
					{Key: "status", Value: domain.PublishStatusActive},
					{Key: "updatedAt", Value: now},
				}},
				{Key: "$unset", Value: bson.D{{Key: "pendingVersionId", Value: ""}}},
			},
		)
		if err != nil {
			return
		}
		if res.MatchedCount == 0 {
			return publishapi.ErrVersionMismatch
		}
		_, err = p.versionsColl.UpdateOne(
			txCtx,
			bson.D{{Key: "_id", Value: versionId}},
			bson.D{{Key: "$set", Value: bson.D{{Key: "finalizedAt", Value: now}}}},
		)
		return
	})
}

func (p *publishRepo) Claim(ctx context.Context, publishId primitive.ObjectID, claimToken, userId string) (err error) {
	res, err := p.publishColl.UpdateOne(
		ctx,
		bson.D{{Key: "_id", Value: publishId}, {Key: "isAnonymous", Value: true}, {Key: "claimToken", Value: claimToken}},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "ownerUserId", Value: userId},
				{Key: "isAnonymous", Value: false},
				{Key: "updatedAt", Value: time.Now()},
			}},
			{Key: "$unset", Value: bson.D{{Key: "claimToken", Value: ""}, {Key: "expiresAt", Value: ""}}},
		},
	)
	if err != nil {
		return
	}
	if res.MatchedCount == 0 {
		return publishapi.ErrInvalidClaim
	}
	return
}

func (p *publishRepo) Close(ctx context.Context) (err error) {
	return
}
