// Package webhook delivers publish events to owner-registered endpoints.
// Delivery is fire-and-forget and at-most-once: no retries, no backoff,
// no signing; failures are logged only.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/instanthost/publish-server/api"
	"github.com/instanthost/publish-server/auth"
	"github.com/instanthost/publish-server/domain"
	"github.com/instanthost/publish-server/publishclient/publishapi"
)

const CName = "webhook"

var log = logger.NewNamed(CName)

// EventPublishFinalized fires after a version is promoted to current.
const EventPublishFinalized = "publish.finalized"

const deliverTimeout = 10 * time.Second

func New() Service {
	return &webhookService{
		client: &http.Client{Timeout: deliverTimeout},
	}
}

type Service interface {
	// Notify emits the event to every endpoint registered for
	// (userId, eventType). It returns immediately; the caller never learns
	// the delivery outcome.
	Notify(userId, eventType string, data any)

	Register(ctx context.Context, userId, eventType, rawUrl string) (domain.WebhookEndpoint, error)
	List(ctx context.Context, userId string) ([]domain.WebhookEndpoint, error)
	Unregister(ctx context.Context, userId string, id primitive.ObjectID) error
	app.ComponentRunnable
}

// payload is the outbound body: {event, timestamp, data}.
type payload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type webhookService struct {
	repo   endpointRepo
	client *http.Client
}

func (s *webhookService) Init(a *app.App) (err error) {
	repo := newRepo(a)
	s.repo = repo
	h := &httpHandler{
		s:    s,
		auth: a.MustComponent(auth.CName).(auth.Service),
	}
	h.init(a.MustComponent(api.CName).(api.Service).Mux())
	return
}

func (s *webhookService) Name() (name string) {
	return CName
}

func (s *webhookService) Run(ctx context.Context) (err error) {
	return s.repo.run(ctx)
}

func (s *webhookService) Notify(userId, eventType string, data any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		defer cancel()
		s.notify(ctx, userId, eventType, data)
	}()
}

func (s *webhookService) notify(ctx context.Context, userId, eventType string, data any) {
	endpoints, err := s.repo.endpoints(ctx, userId, eventType)
	if err != nil {
		log.WarnCtx(ctx, "endpoint lookup failed", zap.String("userId", userId), zap.Error(err))
		return
	}
	if len(endpoints) == 0 {
		return
	}
	body, err := json.Marshal(payload{
		Event:     eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		log.WarnCtx(ctx, "payload marshal failed", zap.Error(err))
		return
	}
	for _, ep := range endpoints {
		if err = s.deliver(ctx, ep.Url, body); err != nil {
			log.WarnCtx(ctx, "webhook delivery failed",
				zap.String("url", ep.Url),
				zap.String("event", eventType),
				zap.Error(err))
		}
	}
}

func (s *webhookService) deliver(ctx context.Context, rawUrl string, body []byte) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawUrl, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("endpoint responded %d", resp.StatusCode)
	}
	return
}

func (s *webhookService) Register(ctx context.Context, userId, eventType, rawUrl string) (ep domain.WebhookEndpoint, err error) {
	if eventType == "" || rawUrl == "" {
		return ep, fmt.Errorf("%w: eventType and url are required", publishapi.ErrInvalidManifest)
	}
	if _, err = url.ParseRequestURI(rawUrl); err != nil {
		return ep, fmt.Errorf("%w: malformed url", publishapi.ErrInvalidManifest)
	}
	ep = domain.WebhookEndpoint{
		Id:        primitive.NewObjectID(),
		UserId:    userId,
		EventType: eventType,
		Url:       rawUrl,
		CreatedAt: time.Now(),
	}
	if err = s.repo.insert(ctx, ep); err != nil {
		return domain.WebhookEndpoint{}, err
	}
	return
}

func (s *webhookService) List(ctx context.Context, userId string) ([]domain.WebhookEndpoint, error) {
	return s.repo.listByUser(ctx, userId)
}

func (s *webhookService) Unregister(ctx context.Context, userId string, id primitive.ObjectID) error {
	return s.repo.delete(ctx, userId, id)
}

func (s *webhookService) Close(ctx context.Context) (err error) {
	return
}
