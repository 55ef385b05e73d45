package publishapi

import "time"

// ManifestFile is one file the caller intends to upload.
type ManifestFile struct {
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

type ViewerMeta struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type PublishRequest struct {
	Files      []ManifestFile `json:"files"`
	TtlSeconds int64          `json:"ttlSeconds,omitempty"`
	Viewer     *ViewerMeta    `json:"viewer,omitempty"`
	// ClaimToken authorizes updates to an anonymous publish.
	ClaimToken string `json:"claimToken,omitempty"`
}

// UploadDescriptor tells the caller how to upload one file directly to
// storage. Bytes never pass through the service.
type UploadDescriptor struct {
	Path    string            `json:"path"`
	Method  string            `json:"method"`
	Url     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

type PublishResponse struct {
	Success     bool               `json:"success"`
	Slug        string             `json:"slug"`
	SiteUrl     string             `json:"siteUrl"`
	FinalizeUrl string             `json:"finalizeUrl"`
	VersionId   string             `json:"versionId"`
	Uploads     []UploadDescriptor `json:"uploads"`

	// Set only on the first anonymous create; the claim token is returned
	// exactly once and cannot be recovered.
	Anonymous  bool       `json:"anonymous,omitempty"`
	ClaimToken string     `json:"claimToken,omitempty"`
	ClaimUrl   string     `json:"claimUrl,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	Warning    string     `json:"warning,omitempty"`
}

type FinalizeRequest struct {
	VersionId string `json:"versionId"`
}

type FinalizeResponse struct {
	Success           bool   `json:"success"`
	Slug              string `json:"slug"`
	SiteUrl           string `json:"siteUrl"`
	PreviousVersionId string `json:"previousVersionId,omitempty"`
	CurrentVersionId  string `json:"currentVersionId"`
}

type ClaimRequest struct {
	ClaimToken string `json:"claimToken"`
}

type Publish struct {
	Slug              string     `json:"slug"`
	Status            string     `json:"status"`
	SiteUrl           string     `json:"siteUrl"`
	CurrentVersionId  string     `json:"currentVersionId,omitempty"`
	PendingVersionId  string     `json:"pendingVersionId,omitempty"`
	IsAnonymous       bool       `json:"isAnonymous"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
	ViewerTitle       string     `json:"viewerTitle,omitempty"`
	ViewerDescription string     `json:"viewerDescription,omitempty"`
	TtlSeconds        int64      `json:"ttlSeconds,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type ListPublishesResponse struct {
	Publishes []Publish `json:"publishes"`
}

type Version struct {
	Id          string         `json:"id"`
	CreatedAt   time.Time      `json:"createdAt"`
	FinalizedAt *time.Time     `json:"finalizedAt,omitempty"`
	Files       []ManifestFile `json:"files"`
}

type ListVersionsResponse struct {
	Versions []Version `json:"versions"`
}

// ViewerMetaPatch distinguishes absent fields from empty ones.
type ViewerMetaPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type MetadataPatchRequest struct {
	TtlSeconds *int64           `json:"ttlSeconds,omitempty"`
	Viewer     *ViewerMetaPatch `json:"viewer,omitempty"`
}

type Ok struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
