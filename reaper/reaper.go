// Package reaper removes anonymous publishes that lapsed unclaimed. The
// sweep runs on a fixed period and can also be forced over HTTP for cron
// driven setups.
package reaper

import (
	"context"
	"net/http"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/anyproto/any-sync/util/periodicsync"
	"go.uber.org/zap"

	"github.com/instanthost/publish-server/api"
	"github.com/instanthost/publish-server/domain"
	"github.com/instanthost/publish-server/publish/publishrepo"
	"github.com/instanthost/publish-server/publishclient/publishapi"
	"github.com/instanthost/publish-server/store"
)

const CName = "reaper"

var log = logger.NewNamed(CName)

const sweepTimeout = 5 * time.Minute

type configGetter interface {
	GetReaper() Config
}

type Config struct {
	IntervalSec int `yaml:"intervalSec"`
}

func New() Reaper {
	return &reaper{now: time.Now}
}

type Reaper interface {
	// Sweep deletes every expired anonymous publish: storage files first
	// (best effort), then the registry records.
	Sweep(ctx context.Context) error
	app.ComponentRunnable
}

type reaper struct {
	repo   publishrepo.PublishRepo
	store  store.Store
	ticker periodicsync.PeriodicSync
	now    func() time.Time
}

func (r *reaper) Init(a *app.App) (err error) {
	r.repo = a.MustComponent(publishrepo.CName).(publishrepo.PublishRepo)
	r.store = a.MustComponent(store.CName).(store.Store)
	conf := a.MustComponent("config").(configGetter).GetReaper()
	if conf.IntervalSec <= 0 {
		conf.IntervalSec = 3600
	}
	r.ticker = periodicsync.NewPeriodicSync(conf.IntervalSec, sweepTimeout, r.Sweep, log)
	h := &httpHandler{r: r}
	h.init(a.MustComponent(api.CName).(api.Service).Mux())
	return
}

func (r *reaper) Name() (name string) {
	return CName
}

func (r *reaper) Run(ctx context.Context) (err error) {
	r.ticker.Run()
	return
}

func (r *reaper) Sweep(ctx context.Context) (err error) {
	expired, err := r.repo.ListExpired(ctx, r.now())
	if err != nil {
		return
	}
	for _, pub := range expired {
		r.reap(ctx, pub)
	}
	if len(expired) > 0 {
		log.InfoCtx(ctx, "sweep finished", zap.Int("reaped", len(expired)))
	}
	return
}

func (r *reaper) reap(ctx context.Context, pub domain.Publish) {
	versions, err := r.repo.ListVersions(ctx, pub.Id)
	if err != nil {
		// skip the record entirely; deleting it without its version list
		// would strand the uploaded files forever
		log.WarnCtx(ctx, "version listing failed, skipping",
			zap.String("slug", pub.Slug), zap.Error(err))
		return
	}
	var keys []string
	for _, v := range versions {
		keys = append(keys, v.StorageKeys()...)
	}
	if len(keys) > 0 {
		if err = r.store.DeleteFiles(ctx, keys); err != nil {
			log.WarnCtx(ctx, "file deletion failed",
				zap.String("slug", pub.Slug), zap.Error(err))
		}
	}
	if err = r.repo.DeletePublish(ctx, pub.Id); err != nil {
		log.WarnCtx(ctx, "record deletion failed",
			zap.String("slug", pub.Slug), zap.Error(err))
		return
	}
	log.DebugCtx(ctx, "reaped expired publish", zap.String("slug", pub.Slug))
}

func (r *reaper) Close(ctx context.Context) (err error) {
	if r.ticker != nil {
		r.ticker.Close()
	}
	return
}

type httpHandler struct {
	r *reaper
}

func (h *httpHandler) init(m *http.ServeMux) {
	m.HandleFunc("POST /api/cron/cleanup", h.cleanup)
}

func (h *httpHandler) cleanup(w http.ResponseWriter, r *http.Request) {
	if err := h.r.Sweep(r.Context()); err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, publishapi.Ok{Success: true})
}
