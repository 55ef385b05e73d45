package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/instanthost/publish-server/api"
)

type httpHandler struct {
	s *authService
}

func (h *httpHandler) init(m *http.ServeMux) {
	m.HandleFunc("POST /api/auth/login", h.login)
	m.HandleFunc("GET /api/auth/verify", h.verify)
}

func (h *httpHandler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.s.RequestLink(r.Context(), req.Email); err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Magic link sent to your email",
	})
}

func (h *httpHandler) verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		api.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return
	}
	user, err := h.s.VerifyLink(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			api.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": ErrInvalidToken.Error()})
			return
		}
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"email":   user.Email,
		"apiKey":  user.ApiKey,
	})
}
