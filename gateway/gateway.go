// Package gateway serves published sites on subdomains of the configured
// domain. Slug resolution is cached briefly, so a freshly finalized version
// can take up to the cache TTL to appear.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/anyproto/any-sync/app/ocache"
	"go.uber.org/zap"

	"github.com/instanthost/publish-server/domain"
	"github.com/instanthost/publish-server/gateway/gatewayconfig"
	"github.com/instanthost/publish-server/publish"
	"github.com/instanthost/publish-server/publishclient/publishapi"
	"github.com/instanthost/publish-server/store"
)

func New() Gateway {
	return new(gateway)
}

const CName = "publish.gateway"

var log = logger.NewNamed(CName)

const siteCacheTTL = time.Minute

type Gateway interface {
	app.ComponentRunnable
}

type gateway struct {
	mux       *http.ServeMux
	server    *http.Server
	publish   publish.Service
	store     store.Store
	config    gatewayconfig.Config
	siteCache ocache.OCache
}

func (g *gateway) Name() (name string) {
	return CName
}

func (g *gateway) Init(a *app.App) (err error) {
	g.publish = a.MustComponent(publish.CName).(publish.Service)
	g.store = a.MustComponent(store.CName).(store.Store)
	g.config = a.MustComponent("config").(gatewayconfig.ConfigGetter).GetGateway()
	g.siteCache = ocache.New(g.loadSite,
		ocache.WithLogger(log.Sugar()),
		ocache.WithTTL(siteCacheTTL),
		ocache.WithGCPeriod(siteCacheTTL),
	)
	g.mux = http.NewServeMux()
	g.mux.HandleFunc("/", g.servePageHandler)
	g.server = &http.Server{Addr: g.config.Addr, Handler: g.mux}
	return
}

func (g *gateway) Run(ctx context.Context) (err error) {
	var errCh = make(chan error)
	go func() {
		errCh <- g.server.ListenAndServe()
	}()
	select {
	case err = <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		log.Info("gateway server started", zap.String("addr", g.config.Addr))
		return
	}
}

// slugFromHost extracts the slug from a {slug}.{domain} host. An empty
// return means the host does not belong to the serving domain.
func slugFromHost(host, domain string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	suffix := "." + domain
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	slug := strings.TrimSuffix(host, suffix)
	if slug == "" || strings.Contains(slug, ".") {
		return ""
	}
	return slug
}

func (g *gateway) servePageHandler(w http.ResponseWriter, r *http.Request) {
	slug := slugFromHost(r.Host, g.config.Domain)
	if slug == "" {
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()
	obj, err := g.siteCache.Get(ctx, slug)
	if err != nil {
		if errors.Is(err, publishapi.ErrNotFound) || errors.Is(err, ocache.ErrNotExists) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	site := obj.(*siteObject)
	if site.pub.Expired(time.Now()) {
		http.Error(w, "Site expired", http.StatusGone)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		path = "index.html"
	}
	file, ok := site.version.FileByPath(path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	body, err := g.store.Get(ctx, file.StorageKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		log.WarnCtx(ctx, "file fetch failed", zap.String("key", file.StorageKey), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = body.Close()
	}()
	if file.ContentType != "" {
		w.Header().Set("Content-Type", file.ContentType)
	}
	if _, err = io.Copy(w, body); err != nil {
		log.DebugCtx(ctx, "response write interrupted", zap.Error(err))
	}
}

type siteObject struct {
	pub     domain.Publish
	version domain.PublishVersion
}

func (s *siteObject) Close() (err error) {
	return nil
}

func (s *siteObject) TryClose(objectTTL time.Duration) (res bool, err error) {
	return true, nil
}

func (g *gateway) loadSite(ctx context.Context, slug string) (object ocache.Object, err error) {
	pub, version, err := g.publish.ResolveActive(ctx, slug)
	if err != nil {
		return nil, err
	}
	return &siteObject{pub: pub, version: version}, nil
}

func (g *gateway) Close(ctx context.Context) (err error) {
	if g.siteCache != nil {
		_ = g.siteCache.Close()
	}
	if g.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return g.server.Shutdown(ctx)
}
