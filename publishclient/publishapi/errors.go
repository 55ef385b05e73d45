package publishapi

import "errors"

// Error kinds returned by coordinator operations. The api package maps
// them to HTTP statuses; everything unknown becomes a 500.
var (
	ErrNotFound          = errors.New("publish not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidClaim      = errors.New("invalid claim token")
	ErrVersionMismatch   = errors.New("version id does not match pending version")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidManifest   = errors.New("invalid file manifest")
	ErrStorageFailure    = errors.New("storage failure")
	ErrUnauthenticated   = errors.New("authentication required")
	ErrSlugTaken         = errors.New("slug already taken")
)
