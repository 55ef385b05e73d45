// Package auth resolves caller identity from bearer API keys and runs the
// magic-link login flow. Outbound mail is an external collaborator behind
// the MailSender interface.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"

	"github.com/instanthost/publish-server/api"
	"github.com/instanthost/publish-server/domain"
	"github.com/instanthost/publish-server/publishclient/publishapi"
)

const CName = "auth"

var log = logger.NewNamed(CName)

var ErrInvalidToken = errors.New("invalid or expired token")

const linkLifetime = 15 * time.Minute

type Config struct {
	SelfUrl string `yaml:"selfUrl"`
}

type configGetter interface {
	GetAuth() Config
}

func New() Service {
	return &authService{now: time.Now}
}

type Service interface {
	// Identify resolves the Authorization header to a user id. No bearer
	// token means an anonymous caller (empty id, nil error); a bearer token
	// that matches no user fails ErrUnauthenticated.
	Identify(ctx context.Context, authorization string) (userId string, err error)
	RequestLink(ctx context.Context, email string) error
	VerifyLink(ctx context.Context, token string) (domain.User, error)
	app.ComponentRunnable
}

// MailSender delivers magic-link mail. The default implementation only
// logs the link; real delivery lives outside this service.
type MailSender interface {
	SendMagicLink(ctx context.Context, email, link string) error
	app.Component
}

type authService struct {
	repo   authRepo
	sender MailSender
	config Config
	now    func() time.Time
}

func (s *authService) Init(a *app.App) (err error) {
	s.config = a.MustComponent("config").(configGetter).GetAuth()
	s.sender = a.MustComponent(MailCName).(MailSender)
	repo := newRepo(a)
	s.repo = repo
	h := &httpHandler{s: s}
	h.init(a.MustComponent(api.CName).(api.Service).Mux())
	return
}

func (s *authService) Name() (name string) {
	return CName
}

func (s *authService) Run(ctx context.Context) (err error) {
	return s.repo.run(ctx)
}

func (s *authService) Identify(ctx context.Context, authorization string) (userId string, err error) {
	if !strings.HasPrefix(authorization, "Bearer ") {
		return "", nil
	}
	apiKey := strings.TrimPrefix(authorization, "Bearer ")
	user, err := s.repo.userByApiKey(ctx, apiKey)
	if err != nil {
		return "", err
	}
	return user.Id.Hex(), nil
}

func (s *authService) RequestLink(ctx context.Context, email string) (err error) {
	if email == "" {
		return fmt.Errorf("%w: email is required", publishapi.ErrInvalidManifest)
	}
	token := randomHex(32)
	link := domain.MagicLink{
		Email:     email,
		Token:     token,
		ExpiresAt: s.now().Add(linkLifetime),
	}
	if err = s.repo.insertMagicLink(ctx, link); err != nil {
		return
	}
	return s.sender.SendMagicLink(ctx, email, s.config.SelfUrl+"/api/auth/verify?token="+token)
}

func (s *authService) VerifyLink(ctx context.Context, token string) (user domain.User, err error) {
	link, err := s.repo.consumeMagicLink(ctx, token, s.now())
	if err != nil {
		return
	}
	return s.repo.userByEmailOrCreate(ctx, link.Email, randomHex(32))
}

func (s *authService) Close(ctx context.Context) (err error) {
	return
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
