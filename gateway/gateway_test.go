package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anyproto/any-sync/app/ocache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instanthost/publish-server/domain"
	"github.com/instanthost/publish-server/gateway/gatewayconfig"
	"github.com/instanthost/publish-server/publish"
	"github.com/instanthost/publish-server/publishclient/publishapi"
	"github.com/instanthost/publish-server/store"
)

func TestSlugFromHost(t *testing.T) {
	for _, tc := range []struct {
		host string
		want string
	}{
		{"calm-wild-river-a1b2.test.site", "calm-wild-river-a1b2"},
		{"calm-wild-river-a1b2.test.site:8080", "calm-wild-river-a1b2"},
		{"test.site", ""},
		{"other.domain", ""},
		{"a.b.test.site", ""},
		{".test.site", ""},
	} {
		assert.Equal(t, tc.want, slugFromHost(tc.host, "test.site"), tc.host)
	}
}

func TestServePage(t *testing.T) {
	fx := newFixture(t)
	fx.publish.pub = domain.Publish{Slug: "calm-wild-river-a1b2", Status: domain.PublishStatusActive}
	fx.publish.version = domain.PublishVersion{
		Id: "v1",
		Files: []domain.FileEntry{
			{Path: "index.html", ContentType: "text/html", StorageKey: "publishes/calm-wild-river-a1b2/v1/index.html"},
			{Path: "css/site.css", ContentType: "text/css", StorageKey: "publishes/calm-wild-river-a1b2/v1/css/site.css"},
		},
	}
	fx.store.objects = map[string]string{
		"publishes/calm-wild-river-a1b2/v1/index.html":   "<h1>hello</h1>",
		"publishes/calm-wild-river-a1b2/v1/css/site.css": "body{}",
	}

	t.Run("root serves index.html", func(t *testing.T) {
		rec := fx.get(t, "calm-wild-river-a1b2.test.site", "/")
		assert.Equal(t, 200, rec.Code)
		assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
		assert.Equal(t, "<h1>hello</h1>", rec.Body.String())
	})
	t.Run("nested path", func(t *testing.T) {
		rec := fx.get(t, "calm-wild-river-a1b2.test.site", "/css/site.css")
		assert.Equal(t, 200, rec.Code)
		assert.Equal(t, "text/css", rec.Header().Get("Content-Type"))
	})
	t.Run("unknown file is 404", func(t *testing.T) {
		rec := fx.get(t, "calm-wild-river-a1b2.test.site", "/missing.html")
		assert.Equal(t, 404, rec.Code)
	})
	t.Run("foreign host is 404", func(t *testing.T) {
		rec := fx.get(t, "elsewhere.example", "/")
		assert.Equal(t, 404, rec.Code)
	})
}

func TestServePage_UnknownSlug(t *testing.T) {
	fx := newFixture(t)
	fx.publish.err = publishapi.ErrNotFound
	rec := fx.get(t, "no-such-site.test.site", "/")
	assert.Equal(t, 404, rec.Code)
}

func TestServePage_Expired(t *testing.T) {
	fx := newFixture(t)
	expired := time.Now().Add(-time.Hour)
	fx.publish.pub = domain.Publish{
		Slug: "calm-wild-river-a1b2", Status: domain.PublishStatusActive,
		IsAnonymous: true, ExpiresAt: &expired,
	}
	fx.publish.version = domain.PublishVersion{Id: "v1"}
	rec := fx.get(t, "calm-wild-river-a1b2.test.site", "/")
	assert.Equal(t, 410, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

type fixture struct {
	*gateway
	publish *stubPublish
	store   *stubStore
}

func newFixture(t *testing.T) *fixture {
	fx := &fixture{
		publish: &stubPublish{},
		store:   &stubStore{},
	}
	g := &gateway{
		publish: fx.publish,
		store:   fx.store,
		config:  gatewayconfig.Config{Domain: "test.site"},
	}
	g.siteCache = ocache.New(g.loadSite, ocache.WithTTL(time.Minute), ocache.WithGCPeriod(time.Minute))
	t.Cleanup(func() {
		require.NoError(t, g.siteCache.Close())
	})
	fx.gateway = g
	return fx
}

func (fx *fixture) get(t *testing.T, host, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "http://"+host+path, nil)
	req.Host = host
	rec := httptest.NewRecorder()
	fx.servePageHandler(rec, req)
	return rec
}

type stubPublish struct {
	publish.Service
	pub     domain.Publish
	version domain.PublishVersion
	err     error
}

func (s *stubPublish) ResolveActive(ctx context.Context, slug string) (domain.Publish, domain.PublishVersion, error) {
	if s.err != nil {
		return domain.Publish{}, domain.PublishVersion{}, s.err
	}
	return s.pub, s.version, nil
}

type stubStore struct {
	store.Store
	objects map[string]string
}

func (s *stubStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	body, ok := s.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader([]byte(body))), nil
}
