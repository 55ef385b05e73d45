package webhook

import (
	"encoding/json"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/instanthost/publish-server/api"
	"github.com/instanthost/publish-server/auth"
	"github.com/instanthost/publish-server/publishclient/publishapi"
)

type httpHandler struct {
	s    *webhookService
	auth auth.Service
}

func (h *httpHandler) init(m *http.ServeMux) {
	m.HandleFunc("POST /api/v1/webhooks", h.register)
	m.HandleFunc("GET /api/v1/webhooks", h.list)
	m.HandleFunc("DELETE /api/v1/webhooks/{id}", h.unregister)
}

func (h *httpHandler) identity(r *http.Request) (string, error) {
	userId, err := h.auth.Identify(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		return "", err
	}
	if userId == "" {
		return "", publishapi.ErrUnauthenticated
	}
	return userId, nil
}

func (h *httpHandler) register(w http.ResponseWriter, r *http.Request) {
	userId, err := h.identity(r)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	var req struct {
		EventType string `json:"eventType"`
		Url       string `json:"url"`
	}
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	ep, err := h.s.Register(r.Context(), userId, req.EventType, req.Url)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, ep)
}

func (h *httpHandler) list(w http.ResponseWriter, r *http.Request) {
	userId, err := h.identity(r)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	eps, err := h.s.List(r.Context(), userId)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"webhooks": eps})
}

func (h *httpHandler) unregister(w http.ResponseWriter, r *http.Request) {
	userId, err := h.identity(r)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	id, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		api.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid webhook id"})
		return
	}
	if err = h.s.Unregister(r.Context(), userId, id); err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, publishapi.Ok{Success: true})
}
