// Package api owns the HTTP front door. Handler structs live next to their
// services and register themselves on this component's mux during Init.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.uber.org/zap"
)

const CName = "api"

var log = logger.NewNamed(CName)

type Config struct {
	Addr string `yaml:"addr"`
}

type configGetter interface {
	GetApi() Config
}

func New() Service {
	return new(apiServer)
}

type Service interface {
	Mux() *http.ServeMux
	app.ComponentRunnable
}

type apiServer struct {
	mux    *http.ServeMux
	server *http.Server
	config Config
}

func (s *apiServer) Init(a *app.App) (err error) {
	s.config = a.MustComponent("config").(configGetter).GetApi()
	s.mux = http.NewServeMux()
	s.server = &http.Server{Addr: s.config.Addr, Handler: s.mux}
	return
}

func (s *apiServer) Name() (name string) {
	return CName
}

func (s *apiServer) Mux() *http.ServeMux {
	return s.mux
}

func (s *apiServer) Run(ctx context.Context) (err error) {
	var errCh = make(chan error)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()
	select {
	case err = <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		log.Info("api server started", zap.String("addr", s.config.Addr))
		return
	}
}

func (s *apiServer) Close(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
