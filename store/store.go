package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("not found")
)

const (
	CName = "store"

	// presigned uploads stay valid for this long; the version records the
	// same window as uploadExpiresAt
	UploadExpiry = time.Hour

	deleteBatchSize = 1000
)

var log = logger.NewNamed(CName)

func New() Store {
	return &store{}
}

// PresignedUpload is a time-boxed credential-bearing PUT the client performs
// directly against storage.
type PresignedUpload struct {
	Url        string
	Method     string
	Headers    map[string]string
	StorageKey string
}

type Store interface {
	app.Component

	Presign(ctx context.Context, slug, versionId, path, contentType string) (PresignedUpload, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// DeleteFiles removes the given keys best-effort: per-key failures are
	// logged and do not fail the call.
	DeleteFiles(ctx context.Context, keys []string) error
}

type store struct {
	bucket    *string
	client    *s3.Client
	presigner *s3.PresignClient
}

func (s *store) Init(a *app.App) (err error) {
	conf := a.MustComponent("config").(configSource).GetS3Store()
	if conf.Bucket == "" {
		return fmt.Errorf("s3 bucket is empty")
	}

	awsConf, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		return err
	}

	// If creds are provided in the configuration, they are directly forwarded to the client as static credentials.
	if conf.Credentials.AccessKey != "" && conf.Credentials.SecretKey != "" {
		awsConf.Credentials = credentials.NewStaticCredentialsProvider(conf.Credentials.AccessKey, conf.Credentials.SecretKey, "")
	}
	awsConf.Region = conf.Region
	s.bucket = aws.String(conf.Bucket)
	s.client = s3.NewFromConfig(awsConf)
	s.presigner = s3.NewPresignClient(s.client)
	return nil
}

func (s *store) Name() string {
	return CName
}

// StorageKey builds the object key for one file of one version.
func StorageKey(slug, versionId, path string) string {
	return fmt.Sprintf("publishes/%s/%s/%s", slug, versionId, path)
}

func (s *store) Presign(ctx context.Context, slug, versionId, path, contentType string) (PresignedUpload, error) {
	key := StorageKey(slug, versionId, path)
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      s.bucket,
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(o *s3.PresignOptions) {
		o.Expires = UploadExpiry
	})
	if err != nil {
		return PresignedUpload{}, err
	}
	headers := map[string]string{
		"Content-Type": contentType,
	}
	for name, vals := range req.SignedHeader {
		if len(vals) > 0 {
			headers[name] = vals[0]
		}
	}
	if _, err = url.Parse(req.URL); err != nil {
		return PresignedUpload{}, err
	}
	return PresignedUpload{
		Url:        req.URL,
		Method:     req.Method,
		Headers:    headers,
		StorageKey: key,
	}, nil
}

func (s *store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: s.bucket,
		Key:    &key,
	}
	output, err := s.client.GetObject(ctx, input)
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, ErrNotFound
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return output.Body, nil
}

func (s *store) DeleteFiles(ctx context.Context, keys []string) error {
	for len(keys) > 0 {
		batch := keys
		if len(batch) > deleteBatchSize {
			batch = keys[:deleteBatchSize]
		}
		keys = keys[len(batch):]

		objects := make([]types.ObjectIdentifier, len(batch))
		for i, key := range batch {
			objects[i] = types.ObjectIdentifier{Key: aws.String(key)}
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: s.bucket,
			Delete: &types.Delete{
				Objects: objects,
			},
		})
		if err != nil {
			return err
		}
		for _, delErr := range out.Errors {
			log.WarnCtx(ctx, "delete object failed",
				zap.Stringp("key", delErr.Key),
				zap.Stringp("code", delErr.Code),
				zap.Stringp("message", delErr.Message))
		}
	}
	return nil
}
