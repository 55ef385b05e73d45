package auth

import (
	"context"

	"github.com/anyproto/any-sync/app"
	"go.uber.org/zap"
)

const MailCName = "auth.mailsender"

// NewLogMailSender returns a MailSender that only logs the link. Deployments
// with real mail infrastructure register their own implementation.
func NewLogMailSender() MailSender {
	return new(logMailSender)
}

type logMailSender struct{}

func (l *logMailSender) Init(a *app.App) (err error) {
	return
}

func (l *logMailSender) Name() (name string) {
	return MailCName
}

func (l *logMailSender) SendMagicLink(ctx context.Context, email, link string) error {
	log.InfoCtx(ctx, "magic link issued", zap.String("email", email), zap.String("link", link))
	return nil
}
