package store

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/anyproto/any-sync/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func TestStorageKey(t *testing.T) {
	assert.Equal(t,
		"publishes/calm-wild-river-a1b2/v-1/assets/app.js",
		StorageKey("calm-wild-river-a1b2", "v-1", "assets/app.js"))
}

func TestStore_Presign(t *testing.T) {
	fx := newFixture(t)
	up, err := fx.Presign(ctx, "calm-wild-river-a1b2", "v-1", "index.html", "text/html")
	require.NoError(t, err)

	assert.Equal(t, "PUT", up.Method)
	assert.Equal(t, "publishes/calm-wild-river-a1b2/v-1/index.html", up.StorageKey)
	assert.Equal(t, "text/html", up.Headers["Content-Type"])

	u, err := url.Parse(up.Url)
	require.NoError(t, err)
	assert.True(t, strings.Contains(u.Host+u.Path, "publish-unittest"), "url should address the bucket")
	assert.True(t, strings.HasSuffix(u.Path, "/index.html"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

type fixture struct {
	Store
	a *app.App
}

func newFixture(t *testing.T) *fixture {
	fx := &fixture{
		Store: New(),
		a:     new(app.App),
	}
	config := &testConfig{
		s3: Config{
			Region: "eu-central-1",
			Bucket: "publish-unittest",
			Credentials: Credentials{
				AccessKey: "testAccessKey",
				SecretKey: "testSecretKey",
			},
		},
	}
	fx.a.Register(config).Register(fx.Store)
	require.NoError(t, fx.a.Start(ctx))
	t.Cleanup(func() {
		require.NoError(t, fx.a.Close(ctx))
	})
	return fx
}

type testConfig struct {
	s3 Config
}

func (t testConfig) Init(a *app.App) (err error) { return }
func (t testConfig) Name() (name string)         { return "config" }

func (t testConfig) GetS3Store() Config {
	return t.s3
}
