package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FileEntry describes one uploaded file of a version. StorageKey is the
// object key the presigned upload was issued for.
type FileEntry struct {
	Path        string `json:"path" bson:"path"`
	Size        int64  `json:"size" bson:"size"`
	ContentType string `json:"contentType" bson:"contentType"`
	StorageKey  string `json:"storageKey" bson:"storageKey"`
}

// PublishVersion is an immutable candidate file set attached to a publish.
// A version becomes visible only after finalize stamps FinalizedAt and the
// publish's CurrentVersionId points at it.
type PublishVersion struct {
	Id              string             `json:"id" bson:"_id"`
	PublishId       primitive.ObjectID `json:"publishId" bson:"publishId"`
	Files           []FileEntry        `json:"files" bson:"files"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
	FinalizedAt     *time.Time         `json:"finalizedAt,omitempty" bson:"finalizedAt,omitempty"`
	UploadExpiresAt time.Time          `json:"uploadExpiresAt" bson:"uploadExpiresAt"`
}

// StorageKeys returns the keys of every file in the version.
func (v PublishVersion) StorageKeys() []string {
	keys := make([]string, 0, len(v.Files))
	for _, f := range v.Files {
		keys = append(keys, f.StorageKey)
	}
	return keys
}

// FileByPath returns the entry for the given path within the version.
func (v PublishVersion) FileByPath(path string) (FileEntry, bool) {
	for _, f := range v.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileEntry{}, false
}
