package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.uber.org/zap"

	"github.com/instanthost/publish-server/api"
	"github.com/instanthost/publish-server/auth"
	"github.com/instanthost/publish-server/config"
	"github.com/instanthost/publish-server/db"
	"github.com/instanthost/publish-server/gateway"
	"github.com/instanthost/publish-server/kv"
	"github.com/instanthost/publish-server/publish"
	"github.com/instanthost/publish-server/publish/publishrepo"
	"github.com/instanthost/publish-server/ratelimit"
	"github.com/instanthost/publish-server/reaper"
	"github.com/instanthost/publish-server/redisprovider"
	"github.com/instanthost/publish-server/slug"
	"github.com/instanthost/publish-server/store"
	"github.com/instanthost/publish-server/webhook"
)

var log = logger.NewNamed("main")

var configPath = flag.String("c", "config.yml", "path to the config file")

func main() {
	flag.Parse()

	conf, err := config.NewFromFile(*configPath)
	if err != nil {
		log.Fatal("can't load config", zap.Error(err))
	}

	a := new(app.App)
	a.Register(conf).
		Register(db.New()).
		Register(redisprovider.New()).
		Register(store.New()).
		Register(slug.New()).
		Register(ratelimit.New()).
		Register(api.New()).
		Register(auth.NewLogMailSender()).
		Register(auth.New()).
		Register(webhook.New()).
		Register(publishrepo.New()).
		Register(publish.New()).
		Register(kv.New()).
		Register(reaper.New()).
		Register(gateway.New())

	ctx := context.Background()
	if err = a.Start(ctx); err != nil {
		log.Fatal("can't start app", zap.Error(err))
	}
	log.Info("app started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", zap.String("signal", sig.String()))

	closeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err = a.Close(closeCtx); err != nil {
		log.Fatal("close error", zap.Error(err))
	}
	log.Info("goodbye")
}
