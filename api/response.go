package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/instanthost/publish-server/publishclient/publishapi"
)

// StatusForErr maps coordinator error kinds to protocol statuses.
// Anything unrecognized is a 500.
func StatusForErr(err error) int {
	switch {
	case errors.Is(err, publishapi.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, publishapi.ErrPermissionDenied),
		errors.Is(err, publishapi.ErrInvalidClaim):
		return http.StatusForbidden
	case errors.Is(err, publishapi.ErrVersionMismatch),
		errors.Is(err, publishapi.ErrInvalidManifest):
		return http.StatusBadRequest
	case errors.Is(err, publishapi.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, publishapi.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, publishapi.ErrStorageFailure):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(v)
	_, _ = w.Write(data)
}

func WriteErr(w http.ResponseWriter, err error) {
	status := StatusForErr(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		// internal details stay in the logs
		msg = "internal error"
	}
	type errResp struct {
		Error string `json:"error"`
	}
	WriteJSON(w, status, errResp{Error: msg})
}

// ClientAddr resolves the caller's network address, preferring the first
// X-Forwarded-For hop when present.
func ClientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
