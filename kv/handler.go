package kv

import (
	"encoding/json"
	"net/http"

	"github.com/instanthost/publish-server/api"
	"github.com/instanthost/publish-server/publishclient/publishapi"
)

type httpHandler struct {
	s *kvService
}

func (h *httpHandler) init(m *http.ServeMux) {
	m.HandleFunc("GET /api/v1/kv/{slug}", h.get)
	m.HandleFunc("POST /api/v1/kv/{slug}", h.merge)
}

func (h *httpHandler) get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.s.Get(r.Context(), r.PathValue("slug"))
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, doc)
}

func (h *httpHandler) merge(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.s.Merge(r.Context(), r.PathValue("slug"), payload); err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, publishapi.Ok{Success: true})
}
