// Package publishclient is an HTTP client for the publish service. It
// covers the whole lifecycle and adds PublishDir, which uploads a local
// directory end to end: manifest, presigned uploads, finalize.
package publishclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/instanthost/publish-server/publishclient/publishapi"
)

const defaultTimeout = time.Minute

func New(baseUrl, apiKey string) *Client {
	return &Client{
		baseUrl: strings.TrimSuffix(baseUrl, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

type Client struct {
	baseUrl string
	apiKey  string
	client  *http.Client
}

func (c *Client) Publish(ctx context.Context, req publishapi.PublishRequest) (resp *publishapi.PublishResponse, err error) {
	resp = &publishapi.PublishResponse{}
	err = c.call(ctx, http.MethodPost, "/api/v1/publish", req, resp)
	return
}

func (c *Client) Update(ctx context.Context, slug string, req publishapi.PublishRequest) (resp *publishapi.PublishResponse, err error) {
	resp = &publishapi.PublishResponse{}
	err = c.call(ctx, http.MethodPut, "/api/v1/publish/"+slug, req, resp)
	return
}

func (c *Client) Finalize(ctx context.Context, slug, versionId string) (resp *publishapi.FinalizeResponse, err error) {
	resp = &publishapi.FinalizeResponse{}
	err = c.call(ctx, http.MethodPost, "/api/v1/publish/"+slug+"/finalize", publishapi.FinalizeRequest{VersionId: versionId}, resp)
	return
}

func (c *Client) Claim(ctx context.Context, slug, claimToken string) (err error) {
	return c.call(ctx, http.MethodPost, "/api/v1/publish/"+slug+"/claim", publishapi.ClaimRequest{ClaimToken: claimToken}, &publishapi.Ok{})
}

func (c *Client) ListPublishes(ctx context.Context) (resp *publishapi.ListPublishesResponse, err error) {
	resp = &publishapi.ListPublishesResponse{}
	err = c.call(ctx, http.MethodGet, "/api/sites", nil, resp)
	return
}

func (c *Client) ListVersions(ctx context.Context, slug string) (resp *publishapi.ListVersionsResponse, err error) {
	resp = &publishapi.ListVersionsResponse{}
	err = c.call(ctx, http.MethodGet, "/api/sites/"+slug+"/versions", nil, resp)
	return
}

func (c *Client) UpdateMetadata(ctx context.Context, slug string, req publishapi.MetadataPatchRequest) (err error) {
	return c.call(ctx, http.MethodPatch, "/api/sites/"+slug+"/metadata", req, &publishapi.Ok{})
}

func (c *Client) Delete(ctx context.Context, slug string) (err error) {
	return c.call(ctx, http.MethodDelete, "/api/sites/"+slug, nil, &publishapi.Ok{})
}

// PublishDir publishes every regular file under dir as one version and
// finalizes it. An empty slug creates a new site; claimToken authorizes
// updates to an unclaimed anonymous one.
func (c *Client) PublishDir(ctx context.Context, dir, slug, claimToken string) (resp *publishapi.FinalizeResponse, err error) {
	files, err := manifestFromDir(dir)
	if err != nil {
		return
	}
	req := publishapi.PublishRequest{Files: files, ClaimToken: claimToken}
	var pubResp *publishapi.PublishResponse
	if slug == "" {
		pubResp, err = c.Publish(ctx, req)
	} else {
		pubResp, err = c.Update(ctx, slug, req)
	}
	if err != nil {
		return
	}
	for _, up := range pubResp.Uploads {
		if err = c.upload(ctx, dir, up); err != nil {
			return nil, fmt.Errorf("upload %s: %w", up.Path, err)
		}
	}
	return c.Finalize(ctx, pubResp.Slug, pubResp.VersionId)
}

func manifestFromDir(dir string) (files []publishapi.ManifestFile, err error) {
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		files = append(files, publishapi.ManifestFile{
			Path:        filepath.ToSlash(rel),
			Size:        info.Size(),
			ContentType: contentType,
		})
		return nil
	})
	return
}

func (c *Client) upload(ctx context.Context, dir string, up publishapi.UploadDescriptor) (err error) {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(up.Path)))
	if err != nil {
		return
	}
	defer func() {
		_ = f.Close()
	}()
	info, err := f.Stat()
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, up.Method, up.Url, f)
	if err != nil {
		return
	}
	req.ContentLength = info.Size()
	for k, v := range up.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("storage responded %d", resp.StatusCode)
	}
	return
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) (err error) {
	var body io.Reader
	if in != nil {
		raw, marshalErr := json.Marshal(in)
		if marshalErr != nil {
			return marshalErr
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, body)
	if err != nil {
		return
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	if resp.StatusCode >= 400 {
		return errFromResponse(resp.StatusCode, raw)
	}
	return json.Unmarshal(raw, out)
}

// errFromResponse maps an error response back onto the api sentinel errors
// so callers can match with errors.Is across the wire.
func errFromResponse(status int, raw []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(raw, &body)
	msg := body.Error
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	var kind error
	switch status {
	case http.StatusNotFound:
		kind = publishapi.ErrNotFound
	case http.StatusForbidden:
		kind = publishapi.ErrPermissionDenied
	case http.StatusUnauthorized:
		kind = publishapi.ErrUnauthenticated
	case http.StatusTooManyRequests:
		kind = publishapi.ErrRateLimitExceeded
	case http.StatusBadRequest:
		kind = publishapi.ErrInvalidManifest
	case http.StatusBadGateway:
		kind = publishapi.ErrStorageFailure
	default:
		return fmt.Errorf("server responded %d: %s", status, msg)
	}
	return fmt.Errorf("%w: %s", kind, msg)
}
