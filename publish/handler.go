package publish

import (
	"encoding/json"
	"net/http"

	"github.com/instanthost/publish-server/api"
	"github.com/instanthost/publish-server/auth"
	"github.com/instanthost/publish-server/domain"
	"github.com/instanthost/publish-server/publishclient/publishapi"
)

type httpHandler struct {
	s    *publishService
	auth auth.Service
}

func (h *httpHandler) init(m *http.ServeMux) {
	m.HandleFunc("POST /api/v1/publish", h.create)
	m.HandleFunc("PUT /api/v1/publish/{slug}", h.update)
	m.HandleFunc("POST /api/v1/publish/{slug}/finalize", h.finalize)
	m.HandleFunc("POST /api/v1/publish/{slug}/claim", h.claim)
	m.HandleFunc("GET /api/sites", h.list)
	m.HandleFunc("PATCH /api/sites/{slug}/metadata", h.metadata)
	m.HandleFunc("DELETE /api/sites/{slug}", h.delete)
	m.HandleFunc("GET /api/sites/{slug}/versions", h.versions)
}

// identity resolves the caller, allowing anonymous requests through with an
// empty identity. An invalid key still fails.
func (h *httpHandler) identity(r *http.Request) (string, error) {
	return h.auth.Identify(r.Context(), r.Header.Get("Authorization"))
}

func (h *httpHandler) create(w http.ResponseWriter, r *http.Request) {
	h.createOrUpdate(w, r, "")
}

func (h *httpHandler) update(w http.ResponseWriter, r *http.Request) {
	h.createOrUpdate(w, r, r.PathValue("slug"))
}

func (h *httpHandler) createOrUpdate(w http.ResponseWriter, r *http.Request, slug string) {
	identity, err := h.identity(r)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	var req publishapi.PublishRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	resp, err := h.s.CreateOrUpdate(r.Context(), CreateOrUpdateRequest{
		Slug:       slug,
		Identity:   identity,
		CallerAddr: api.ClientAddr(r),
		Files:      req.Files,
		TtlSeconds: req.TtlSeconds,
		Viewer:     req.Viewer,
		ClaimToken: req.ClaimToken,
	})
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

func (h *httpHandler) finalize(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identity(r)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	var req publishapi.FinalizeRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil || req.VersionId == "" {
		api.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "versionId is required"})
		return
	}
	resp, err := h.s.Finalize(r.Context(), r.PathValue("slug"), req.VersionId, identity)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

func (h *httpHandler) claim(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identity(r)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	// the token travels in the body, or in the query for link-click claims
	token := r.URL.Query().Get("token")
	if r.Body != nil {
		var req publishapi.ClaimRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr == nil && req.ClaimToken != "" {
			token = req.ClaimToken
		}
	}
	if err = h.s.Claim(r.Context(), r.PathValue("slug"), token, identity); err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, publishapi.Ok{Success: true, Message: "site claimed"})
}

func (h *httpHandler) list(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identity(r)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	publishes, err := h.s.List(r.Context(), identity)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	resp := publishapi.ListPublishesResponse{Publishes: make([]publishapi.Publish, 0, len(publishes))}
	for _, pub := range publishes {
		resp.Publishes = append(resp.Publishes, h.toApiPublish(pub))
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

func (h *httpHandler) metadata(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identity(r)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	var req publishapi.MetadataPatchRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	patch := domain.MetadataPatch{TtlSeconds: req.TtlSeconds}
	if req.Viewer != nil {
		patch.ViewerTitle = req.Viewer.Title
		patch.ViewerDescription = req.Viewer.Description
	}
	if err = h.s.UpdateMetadata(r.Context(), r.PathValue("slug"), identity, patch); err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, publishapi.Ok{Success: true})
}

func (h *httpHandler) delete(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identity(r)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	if err = h.s.Delete(r.Context(), r.PathValue("slug"), identity); err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, publishapi.Ok{Success: true})
}

func (h *httpHandler) versions(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identity(r)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	versions, err := h.s.Versions(r.Context(), r.PathValue("slug"), identity)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	resp := publishapi.ListVersionsResponse{Versions: make([]publishapi.Version, 0, len(versions))}
	for _, v := range versions {
		resp.Versions = append(resp.Versions, toApiVersion(v))
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

func (h *httpHandler) toApiPublish(pub domain.Publish) publishapi.Publish {
	out := publishapi.Publish{
		Slug:              pub.Slug,
		Status:            pub.Status.String(),
		SiteUrl:           h.s.siteUrl(pub.Slug),
		IsAnonymous:       pub.IsAnonymous,
		ExpiresAt:         pub.ExpiresAt,
		ViewerTitle:       pub.ViewerTitle,
		ViewerDescription: pub.ViewerDescription,
		TtlSeconds:        pub.TtlSeconds,
		CreatedAt:         pub.CreatedAt,
		UpdatedAt:         pub.UpdatedAt,
	}
	if pub.CurrentVersionId != nil {
		out.CurrentVersionId = *pub.CurrentVersionId
	}
	if pub.PendingVersionId != nil {
		out.PendingVersionId = *pub.PendingVersionId
	}
	return out
}

func toApiVersion(v domain.PublishVersion) publishapi.Version {
	out := publishapi.Version{
		Id:          v.Id,
		CreatedAt:   v.CreatedAt,
		FinalizedAt: v.FinalizedAt,
		Files:       make([]publishapi.ManifestFile, 0, len(v.Files)),
	}
	for _, f := range v.Files {
		out.Files = append(out.Files, publishapi.ManifestFile{
			Path:        f.Path,
			Size:        f.Size,
			ContentType: f.ContentType,
		})
	}
	return out
}
