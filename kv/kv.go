// Package kv exposes a small JSON document store scoped to each active
// site, backed by redis. Writes merge top-level keys into the existing
// document.
package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anyproto/any-sync/app"
	"github.com/redis/go-redis/v9"

	"github.com/instanthost/publish-server/api"
	"github.com/instanthost/publish-server/publish"
	"github.com/instanthost/publish-server/publishclient/publishapi"
	"github.com/instanthost/publish-server/redisprovider"
)

const CName = "kv"

func New() Service {
	return &kvService{}
}

type Service interface {
	Get(ctx context.Context, slug string) (map[string]any, error)
	Merge(ctx context.Context, slug string, payload map[string]any) error
	app.Component
}

type kvService struct {
	redis   redis.UniversalClient
	publish publish.Service
}

func (s *kvService) Init(a *app.App) (err error) {
	s.redis = a.MustComponent(redisprovider.CName).(redisprovider.RedisProvider).Redis()
	s.publish = a.MustComponent(publish.CName).(publish.Service)
	h := &httpHandler{s: s}
	h.init(a.MustComponent(api.CName).(api.Service).Mux())
	return
}

func (s *kvService) Name() (name string) {
	return CName
}

func (s *kvService) Get(ctx context.Context, slug string) (doc map[string]any, err error) {
	key, err := s.key(ctx, slug)
	if err != nil {
		return
	}
	raw, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", publishapi.ErrStorageFailure, err)
	}
	if err = json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: corrupt document", publishapi.ErrStorageFailure)
	}
	return
}

func (s *kvService) Merge(ctx context.Context, slug string, payload map[string]any) (err error) {
	doc, err := s.Get(ctx, slug)
	if err != nil {
		return
	}
	doc = mergeMaps(doc, payload)
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: unmarshalable payload", publishapi.ErrInvalidManifest)
	}
	key, err := s.key(ctx, slug)
	if err != nil {
		return
	}
	if err = s.redis.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", publishapi.ErrStorageFailure, err)
	}
	return
}

// key resolves the slug to its publish id so the document survives
// version rollovers but not deletion and re-creation of the site.
func (s *kvService) key(ctx context.Context, slug string) (string, error) {
	pub, _, err := s.publish.ResolveActive(ctx, slug)
	if err != nil {
		return "", err
	}
	return "kv:" + pub.Id.Hex(), nil
}

// mergeMaps overlays src onto dst one top-level key at a time. Nil values
// delete the key; nested objects replace wholesale.
func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
	return dst
}
