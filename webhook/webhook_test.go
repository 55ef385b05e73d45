package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/instanthost/publish-server/domain"
	"github.com/instanthost/publish-server/publishclient/publishapi"
)

var ctx = context.Background()

func TestNotify_DeliversPayload(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		received <- raw
	}))
	defer srv.Close()

	fx := newFixture(t)
	fx.repo.add(domain.WebhookEndpoint{UserId: "user1", EventType: EventPublishFinalized, Url: srv.URL})

	fx.Notify("user1", EventPublishFinalized, map[string]string{"slug": "calm-wild-river-a1b2"})

	select {
	case raw := <-received:
		var body struct {
			Event     string            `json:"event"`
			Timestamp time.Time         `json:"timestamp"`
			Data      map[string]string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, EventPublishFinalized, body.Event)
		assert.False(t, body.Timestamp.IsZero())
		assert.Equal(t, "calm-wild-river-a1b2", body.Data["slug"])
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestNotify_NoEndpointsNoRequests(t *testing.T) {
	fx := newFixture(t)
	fx.repo.add(domain.WebhookEndpoint{UserId: "user1", EventType: "other.event", Url: "http://127.0.0.1:1/never"})
	fx.notify(ctx, "user1", EventPublishFinalized, nil)
}

func TestNotify_FailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fx := newFixture(t)
	fx.repo.add(domain.WebhookEndpoint{UserId: "user1", EventType: EventPublishFinalized, Url: srv.URL})
	// must not panic or propagate anything
	fx.notify(ctx, "user1", EventPublishFinalized, map[string]string{"slug": "x"})
}

func TestRegister_Validation(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.Register(ctx, "user1", "", "https://example.com/hook")
	assert.ErrorIs(t, err, publishapi.ErrInvalidManifest)
	_, err = fx.Register(ctx, "user1", EventPublishFinalized, "")
	assert.ErrorIs(t, err, publishapi.ErrInvalidManifest)
	_, err = fx.Register(ctx, "user1", EventPublishFinalized, "not a url")
	assert.ErrorIs(t, err, publishapi.ErrInvalidManifest)

	ep, err := fx.Register(ctx, "user1", EventPublishFinalized, "https://example.com/hook")
	require.NoError(t, err)
	assert.False(t, ep.Id.IsZero())
	assert.Equal(t, "user1", ep.UserId)
}

type fixture struct {
	*webhookService
	repo *memRepo
}

func newFixture(t *testing.T) *fixture {
	repo := &memRepo{}
	return &fixture{
		webhookService: &webhookService{
			repo:   repo,
			client: &http.Client{Timeout: time.Second},
		},
		repo: repo,
	}
}

type memRepo struct {
	mu  sync.Mutex
	eps []domain.WebhookEndpoint
}

func (r *memRepo) add(ep domain.WebhookEndpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eps = append(r.eps, ep)
}

func (r *memRepo) run(ctx context.Context) error { return nil }

func (r *memRepo) endpoints(ctx context.Context, userId, eventType string) (out []domain.WebhookEndpoint, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ep := range r.eps {
		if ep.UserId == userId && ep.EventType == eventType {
			out = append(out, ep)
		}
	}
	return
}

func (r *memRepo) insert(ctx context.Context, ep domain.WebhookEndpoint) error {
	r.add(ep)
	return nil
}

func (r *memRepo) listByUser(ctx context.Context, userId string) (out []domain.WebhookEndpoint, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ep := range r.eps {
		if ep.UserId == userId {
			out = append(out, ep)
		}
	}
	return
}

func (r *memRepo) delete(ctx context.Context, userId string, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, ep := range r.eps {
		if ep.Id == id && ep.UserId == userId {
			r.eps = append(r.eps[:i], r.eps[i+1:]...)
			return nil
		}
	}
	return publishapi.ErrNotFound
}
