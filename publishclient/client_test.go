package publishclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instanthost/publish-server/publishclient/publishapi"
)

var ctx = context.Background()

func TestManifestFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>hi</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "css", "site.css"), []byte("body{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.bin"), []byte{1, 2, 3}, 0o644))

	files, err := manifestFromDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)

	byPath := map[string]publishapi.ManifestFile{}
	for _, f := range files {
		byPath[f.Path] = f
	}
	assert.Contains(t, byPath["index.html"].ContentType, "text/html")
	assert.Equal(t, int64(11), byPath["index.html"].Size)
	assert.Contains(t, byPath["css/site.css"].ContentType, "text/css")
	assert.Equal(t, "application/octet-stream", byPath["data.bin"].ContentType)
}

func TestPublishDir(t *testing.T) {
	var (
		mu       sync.Mutex
		uploaded = map[string]string{}
	)
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("POST /api/v1/publish", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req publishapi.PublishRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := publishapi.PublishResponse{
			Success:   true,
			Slug:      "calm-wild-river-a1b2",
			VersionId: "v1",
		}
		for _, f := range req.Files {
			resp.Uploads = append(resp.Uploads, publishapi.UploadDescriptor{
				Path:    f.Path,
				Method:  "PUT",
				Url:     srv.URL + "/upload/" + f.Path,
				Headers: map[string]string{"Content-Type": f.ContentType},
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("PUT /upload/{path...}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		uploaded[r.PathValue("path")] = string(body)
		mu.Unlock()
	})
	mux.HandleFunc("POST /api/v1/publish/{slug}/finalize", func(w http.ResponseWriter, r *http.Request) {
		var req publishapi.FinalizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(publishapi.FinalizeResponse{
			Success:          true,
			Slug:             r.PathValue("slug"),
			CurrentVersionId: req.VersionId,
		})
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>hi</h1>"), 0o644))

	c := New(srv.URL, "test-key")
	resp, err := c.PublishDir(ctx, dir, "", "")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "calm-wild-river-a1b2", resp.Slug)
	assert.Equal(t, "v1", resp.CurrentVersionId)
	assert.Equal(t, "<h1>hi</h1>", uploaded["index.html"])
}

func TestCall_ErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, publishapi.ErrNotFound},
		{http.StatusForbidden, publishapi.ErrPermissionDenied},
		{http.StatusUnauthorized, publishapi.ErrUnauthenticated},
		{http.StatusTooManyRequests, publishapi.ErrRateLimitExceeded},
		{http.StatusBadRequest, publishapi.ErrInvalidManifest},
		{http.StatusBadGateway, publishapi.ErrStorageFailure},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
		}))
		c := New(srv.URL, "")
		_, err := c.ListPublishes(ctx)
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		srv.Close()
	}
}
