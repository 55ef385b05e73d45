package reaper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/instanthost/publish-server/domain"
	"github.com/instanthost/publish-server/publish/publishrepo"
	"github.com/instanthost/publish-server/store"
)

var ctx = context.Background()

func TestSweep_ReapsExpired(t *testing.T) {
	fx := newFixture(t)
	id := primitive.NewObjectID()
	expired := fx.testNow.Add(-time.Hour)
	fx.repo.expired = []domain.Publish{{
		Id: id, Slug: "calm-wild-river-a1b2", IsAnonymous: true, ExpiresAt: &expired,
	}}
	fx.repo.versions[id.Hex()] = []domain.PublishVersion{{
		Id:        "v1",
		PublishId: id,
		Files:     []domain.FileEntry{{Path: "index.html", StorageKey: "publishes/calm-wild-river-a1b2/v1/index.html"}},
	}}

	require.NoError(t, fx.Sweep(ctx))
	assert.Equal(t, []string{"publishes/calm-wild-river-a1b2/v1/index.html"}, fx.store.deleted)
	assert.Equal(t, []primitive.ObjectID{id}, fx.repo.deletedPublishes)
}

func TestSweep_NothingExpired(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.Sweep(ctx))
	assert.Empty(t, fx.store.deleted)
	assert.Empty(t, fx.repo.deletedPublishes)
}

func TestSweep_VersionListFailureSkipsRecord(t *testing.T) {
	fx := newFixture(t)
	id := primitive.NewObjectID()
	fx.repo.expired = []domain.Publish{{Id: id, Slug: "calm-wild-river-a1b2", IsAnonymous: true}}
	fx.repo.listVersionsErr = errors.New("registry down")

	// the record must survive, otherwise its files are orphaned forever
	require.NoError(t, fx.Sweep(ctx))
	assert.Empty(t, fx.repo.deletedPublishes)
}

func TestSweep_FileDeletionFailureStillDeletesRecord(t *testing.T) {
	fx := newFixture(t)
	id := primitive.NewObjectID()
	fx.repo.expired = []domain.Publish{{Id: id, Slug: "calm-wild-river-a1b2", IsAnonymous: true}}
	fx.repo.versions[id.Hex()] = []domain.PublishVersion{{
		Id: "v1", PublishId: id,
		Files: []domain.FileEntry{{Path: "index.html", StorageKey: "k"}},
	}}
	fx.store.deleteErr = errors.New("s3 down")

	require.NoError(t, fx.Sweep(ctx))
	assert.Equal(t, []primitive.ObjectID{id}, fx.repo.deletedPublishes)
}

type fixture struct {
	*reaper
	repo    *stubRepo
	store   *stubStore
	testNow time.Time
}

func newFixture(t *testing.T) *fixture {
	fx := &fixture{
		repo:    &stubRepo{versions: map[string][]domain.PublishVersion{}},
		store:   &stubStore{},
		testNow: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.reaper = &reaper{
		repo:  fx.repo,
		store: fx.store,
		now:   func() time.Time { return fx.testNow },
	}
	return fx
}

// stubRepo embeds the interface so unexercised methods simply panic.
type stubRepo struct {
	publishrepo.PublishRepo
	expired          []domain.Publish
	versions         map[string][]domain.PublishVersion
	listVersionsErr  error
	deletedPublishes []primitive.ObjectID
}

func (r *stubRepo) ListExpired(ctx context.Context, now time.Time) ([]domain.Publish, error) {
	return r.expired, nil
}

func (r *stubRepo) ListVersions(ctx context.Context, publishId primitive.ObjectID) ([]domain.PublishVersion, error) {
	if r.listVersionsErr != nil {
		return nil, r.listVersionsErr
	}
	return r.versions[publishId.Hex()], nil
}

func (r *stubRepo) DeletePublish(ctx context.Context, id primitive.ObjectID) error {
	r.deletedPublishes = append(r.deletedPublishes, id)
	return nil
}

type stubStore struct {
	store.Store
	deleted   []string
	deleteErr error
}

func (s *stubStore) DeleteFiles(ctx context.Context, keys []string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, keys...)
	return nil
}
