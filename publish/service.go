package publish

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/instanthost/publish-server/api"
	"github.com/instanthost/publish-server/auth"
	"github.com/instanthost/publish-server/domain"
	"github.com/instanthost/publish-server/publish/publishrepo"
	"github.com/instanthost/publish-server/publishclient/publishapi"
	"github.com/instanthost/publish-server/ratelimit"
	"github.com/instanthost/publish-server/slug"
	"github.com/instanthost/publish-server/store"
	"github.com/instanthost/publish-server/webhook"
)

const CName = "publish.service"

var log = logger.NewNamed(CName)

const (
	// anonymous publishes lapse this long after creation unless claimed
	anonymousLifetime = 24 * time.Hour

	claimTokenBytes = 16
	slugAttempts    = 5
)

func New() Service {
	return &publishService{now: time.Now}
}

// CreateOrUpdateRequest carries one create-or-update call. An empty Slug
// means create; CallerAddr keys the anonymous rate-limit counter.
type CreateOrUpdateRequest struct {
	Slug       string
	Identity   string
	CallerAddr string
	Files      []publishapi.ManifestFile
	TtlSeconds int64
	Viewer     *publishapi.ViewerMeta
	ClaimToken string
}

// Service is the version coordinator. It owns every state transition of a
// publish: staging pending versions, promoting them to current, claiming
// anonymous sites and cascading deletion.
type Service interface {
	CreateOrUpdate(ctx context.Context, req CreateOrUpdateRequest) (*publishapi.PublishResponse, error)
	Finalize(ctx context.Context, slug, versionId, identity string) (*publishapi.FinalizeResponse, error)
	Claim(ctx context.Context, slug, claimToken, identity string) error
	Delete(ctx context.Context, slug, identity string) error
	List(ctx context.Context, identity string) ([]domain.Publish, error)
	UpdateMetadata(ctx context.Context, slug, identity string, patch domain.MetadataPatch) error
	Versions(ctx context.Context, slug, identity string) ([]domain.PublishVersion, error)
	// ResolveActive resolves a slug to its publish and current version for
	// public serving. Anything not active is ErrNotFound.
	ResolveActive(ctx context.Context, slug string) (domain.Publish, domain.PublishVersion, error)
	app.ComponentRunnable
}

type publishService struct {
	config   Config
	repo     publishrepo.PublishRepo
	store    store.Store
	slugs    slug.Generator
	limiter  ratelimit.Service
	webhooks webhook.Service
	now      func() time.Time
}

func (p *publishService) Init(a *app.App) (err error) {
	p.config = a.MustComponent("config").(configGetter).GetPublish()
	p.repo = a.MustComponent(publishrepo.CName).(publishrepo.PublishRepo)
	p.store = a.MustComponent(store.CName).(store.Store)
	p.slugs = a.MustComponent(slug.CName).(slug.Generator)
	p.limiter = a.MustComponent(ratelimit.CName).(ratelimit.Service)
	p.webhooks = a.MustComponent(webhook.CName).(webhook.Service)
	h := &httpHandler{
		s:    p,
		auth: a.MustComponent(auth.CName).(auth.Service),
	}
	h.init(a.MustComponent(api.CName).(api.Service).Mux())
	return
}

func (p *publishService) Name() (name string) {
	return CName
}

func (p *publishService) Run(ctx context.Context) (err error) {
	return
}

func (p *publishService) CreateOrUpdate(ctx context.Context, req CreateOrUpdateRequest) (resp *publishapi.PublishResponse, err error) {
	if err = p.limiter.Check(req.Identity, req.CallerAddr); err != nil {
		return
	}
	if err = validateManifest(req.Files); err != nil {
		return
	}

	var (
		pub     domain.Publish
		created bool
		now     = p.now()
	)
	if req.Slug != "" {
		if pub, err = p.repo.PublishBySlug(ctx, req.Slug); err != nil {
			return
		}
		if err = checkWriteAccess(pub, req.Identity, req.ClaimToken); err != nil {
			return
		}
	} else {
		if pub, err = p.createPublish(ctx, req, now); err != nil {
			return
		}
		created = true
	}

	versionId := uuid.New().String()
	uploads := make([]publishapi.UploadDescriptor, 0, len(req.Files))
	files := make([]domain.FileEntry, 0, len(req.Files))
	for _, f := range req.Files {
		// all presigns must succeed or the whole call aborts; no partial
		// pending state may survive a failure
		up, presignErr := p.store.Presign(ctx, pub.Slug, versionId, f.Path, f.ContentType)
		if presignErr != nil {
			p.rollbackCreate(ctx, pub, created)
			return nil, fmt.Errorf("%w: %v", publishapi.ErrStorageFailure, presignErr)
		}
		uploads = append(uploads, publishapi.UploadDescriptor{
			Path:    f.Path,
			Method:  up.Method,
			Url:     up.Url,
			Headers: up.Headers,
		})
		files = append(files, domain.FileEntry{
			Path:        f.Path,
			Size:        f.Size,
			ContentType: f.ContentType,
			StorageKey:  up.StorageKey,
		})
	}

	version := domain.PublishVersion{
		Id:              versionId,
		PublishId:       pub.Id,
		Files:           files,
		CreatedAt:       now,
		UploadExpiresAt: now.Add(store.UploadExpiry),
	}
	if err = p.repo.AttachPendingVersion(ctx, version); err != nil {
		p.rollbackCreate(ctx, pub, created)
		return
	}

	resp = &publishapi.PublishResponse{
		Success:     true,
		Slug:        pub.Slug,
		SiteUrl:     p.siteUrl(pub.Slug),
		FinalizeUrl: p.config.SelfUrl + "/api/v1/publish/" + pub.Slug + "/finalize",
		VersionId:   versionId,
		Uploads:     uploads,
	}
	if created && pub.IsAnonymous {
		// the claim token is handed out exactly once
		resp.Anonymous = true
		resp.ClaimToken = pub.ClaimToken
		resp.ClaimUrl = p.config.SelfUrl + "/api/v1/publish/" + pub.Slug + "/claim?token=" + pub.ClaimToken
		resp.ExpiresAt = pub.ExpiresAt
		resp.Warning = "IMPORTANT: Save your claimToken and claimUrl! They are returned ONLY ONCE and cannot be recovered."
	}
	return
}

func (p *publishService) createPublish(ctx context.Context, req CreateOrUpdateRequest, now time.Time) (pub domain.Publish, err error) {
	pub = domain.Publish{
		Id:          primitive.NewObjectID(),
		OwnerUserId: req.Identity,
		IsAnonymous: req.Identity == "",
		Status:      domain.PublishStatusPending,
		TtlSeconds:  req.TtlSeconds,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Viewer != nil {
		pub.ViewerTitle = req.Viewer.Title
		pub.ViewerDescription = req.Viewer.Description
	}
	if pub.IsAnonymous {
		pub.ClaimToken = randomHex(claimTokenBytes)
		expiresAt := now.Add(anonymousLifetime)
		pub.ExpiresAt = &expiresAt
	}
	// slugs carry no uniqueness guarantee of their own; retry on the
	// registry's unique index
	for i := 0; i < slugAttempts; i++ {
		pub.Slug = p.slugs.Generate()
		if err = p.repo.CreatePublish(ctx, pub); err == nil {
			return
		}
		if err != publishapi.ErrSlugTaken {
			return domain.Publish{}, err
		}
	}
	return domain.Publish{}, publishapi.ErrSlugTaken
}

func (p *publishService) rollbackCreate(ctx context.Context, pub domain.Publish, created bool) {
	if !created {
		return
	}
	if err := p.repo.DeletePublish(ctx, pub.Id); err != nil {
		log.WarnCtx(ctx, "rollback of created publish failed",
			zap.String("slug", pub.Slug), zap.Error(err))
	}
}

func (p *publishService) Finalize(ctx context.Context, slugName, versionId, identity string) (resp *publishapi.FinalizeResponse, err error) {
	pub, err := p.repo.PublishBySlug(ctx, slugName)
	if err != nil {
		return
	}
	var previousVersionId string
	if pub.CurrentVersionId != nil {
		previousVersionId = *pub.CurrentVersionId
	}
	if err = p.repo.FinalizeVersion(ctx, pub.Id, versionId, p.now()); err != nil {
		return
	}
	if pub.OwnerUserId != "" {
		// outcome never affects the response
		p.webhooks.Notify(pub.OwnerUserId, webhook.EventPublishFinalized, map[string]string{
			"slug":      pub.Slug,
			"siteUrl":   p.siteUrl(pub.Slug),
			"versionId": versionId,
		})
	}
	return &publishapi.FinalizeResponse{
		Success:           true,
		Slug:              pub.Slug,
		SiteUrl:           p.siteUrl(pub.Slug),
		PreviousVersionId: previousVersionId,
		CurrentVersionId:  versionId,
	}, nil
}

func (p *publishService) Claim(ctx context.Context, slugName, claimToken, identity string) (err error) {
	if identity == "" {
		return publishapi.ErrUnauthenticated
	}
	pub, err := p.repo.PublishBySlug(ctx, slugName)
	if err != nil {
		return
	}
	if !pub.IsAnonymous || pub.ClaimToken != claimToken {
		return publishapi.ErrInvalidClaim
	}
	// the repo update is keyed on the token again, so two racing claims
	// cannot both succeed
	return p.repo.Claim(ctx, pub.Id, claimToken, identity)
}

func (p *publishService) Delete(ctx context.Context, slugName, identity string) (err error) {
	if identity == "" {
		return publishapi.ErrUnauthenticated
	}
	pub, err := p.repo.PublishBySlug(ctx, slugName)
	if err != nil {
		return
	}
	if !pub.Owned(identity) {
		return publishapi.ErrPermissionDenied
	}
	// every version ever created, pending ones included: they may hold
	// uploaded bytes
	versions, err := p.repo.ListVersions(ctx, pub.Id)
	if err != nil {
		return
	}
	var keys []string
	for _, v := range versions {
		keys = append(keys, v.StorageKeys()...)
	}
	if len(keys) > 0 {
		if delErr := p.store.DeleteFiles(ctx, keys); delErr != nil {
			// an accepted durability gap: the record still goes away,
			// orphaned objects stay in storage
			log.WarnCtx(ctx, "file deletion failed",
				zap.String("slug", pub.Slug), zap.Error(delErr))
		}
	}
	return p.repo.DeletePublish(ctx, pub.Id)
}

func (p *publishService) List(ctx context.Context, identity string) ([]domain.Publish, error) {
	if identity == "" {
		return nil, publishapi.ErrUnauthenticated
	}
	return p.repo.ListByOwner(ctx, identity)
}

func (p *publishService) UpdateMetadata(ctx context.Context, slugName, identity string, patch domain.MetadataPatch) (err error) {
	pub, err := p.ownedBySlug(ctx, slugName, identity)
	if err != nil {
		return
	}
	return p.repo.UpdateMetadata(ctx, pub.Id, patch)
}

func (p *publishService) Versions(ctx context.Context, slugName, identity string) (versions []domain.PublishVersion, err error) {
	pub, err := p.ownedBySlug(ctx, slugName, identity)
	if err != nil {
		return
	}
	return p.repo.ListVersions(ctx, pub.Id)
}

func (p *publishService) ResolveActive(ctx context.Context, slugName string) (pub domain.Publish, version domain.PublishVersion, err error) {
	if pub, err = p.repo.PublishBySlug(ctx, slugName); err != nil {
		return
	}
	if pub.Status != domain.PublishStatusActive || pub.CurrentVersionId == nil {
		return domain.Publish{}, domain.PublishVersion{}, publishapi.ErrNotFound
	}
	if version, err = p.repo.VersionById(ctx, *pub.CurrentVersionId); err != nil {
		return domain.Publish{}, domain.PublishVersion{}, err
	}
	return
}

func (p *publishService) ownedBySlug(ctx context.Context, slugName, identity string) (pub domain.Publish, err error) {
	if identity == "" {
		return domain.Publish{}, publishapi.ErrUnauthenticated
	}
	if pub, err = p.repo.PublishBySlug(ctx, slugName); err != nil {
		return
	}
	if !pub.Owned(identity) {
		return domain.Publish{}, publishapi.ErrPermissionDenied
	}
	return
}

func (p *publishService) siteUrl(slugName string) string {
	return fmt.Sprintf("https://%s.%s", slugName, p.config.Domain)
}

func (p *publishService) Close(ctx context.Context) (err error) {
	return
}

func checkWriteAccess(pub domain.Publish, identity, claimToken string) error {
	if pub.IsAnonymous {
		if claimToken == "" || pub.ClaimToken != claimToken {
			return publishapi.ErrPermissionDenied
		}
		return nil
	}
	if !pub.Owned(identity) {
		return publishapi.ErrPermissionDenied
	}
	return nil
}

func validateManifest(files []publishapi.ManifestFile) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: empty file list", publishapi.ErrInvalidManifest)
	}
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if f.Path == "" || strings.HasPrefix(f.Path, "/") || path.Clean(f.Path) != f.Path || strings.Contains(f.Path, "..") {
			return fmt.Errorf("%w: bad path %q", publishapi.ErrInvalidManifest, f.Path)
		}
		if f.ContentType == "" {
			return fmt.Errorf("%w: missing content type for %q", publishapi.ErrInvalidManifest, f.Path)
		}
		if f.Size < 0 {
			return fmt.Errorf("%w: negative size for %q", publishapi.ErrInvalidManifest, f.Path)
		}
		if _, ok := seen[f.Path]; ok {
			return fmt.Errorf("%w: duplicate path %q", publishapi.ErrInvalidManifest, f.Path)
		}
		seen[f.Path] = struct{}{}
	}
	return nil
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
