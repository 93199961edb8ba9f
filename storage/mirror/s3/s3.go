package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/solusnoir/solus/config"
	"github.com/solusnoir/solus/media"
	"github.com/solusnoir/solus/storage/mirror"
	storageutil "github.com/solusnoir/solus/storage/util"
)

type s3Client interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

var newMinioClient = func(endpoint string, opts *minio.Options) (s3Client, error) {
	return minio.New(endpoint, opts)
}

type target struct {
	bucket     string
	publicBase string
}

// StoreImpl mirrors media to S3 or any compatible service (R2, Backblaze, MinIO).
type StoreImpl struct {
	client         s3Client
	targets        map[mirror.Bucket]target
	pattern        *storageutil.KeyPattern
	fixedType      bool
	forcePathStyle bool
	endpointHost   string
	secure         bool
	region         string
	now            func() time.Time
}

func NewS3Mirror(cfg *config.Mirror) (*StoreImpl, error) {
	if cfg == nil || cfg.S3 == nil {
		return nil, fmt.Errorf("s3 mirror config is nil")
	}

	s3cfg := cfg.S3
	region := strings.TrimSpace(s3cfg.Region)
	if strings.EqualFold(region, "auto") {
		region = ""
	}

	endpointHost := strings.TrimSpace(s3cfg.Endpoint)
	if endpointHost == "" {
		if region == "" {
			endpointHost = "s3.amazonaws.com"
		} else {
			endpointHost = fmt.Sprintf("s3.%s.amazonaws.com", region)
		}
	} else if parsed, err := url.Parse(endpointHost); err == nil && parsed.Host != "" {
		endpointHost = parsed.Host
	}

	lookup := minio.BucketLookupAuto
	if s3cfg.ForcePathStyle {
		lookup = minio.BucketLookupPath
	}

	creds := credentials.NewStaticV4(s3cfg.AccessKeyId, s3cfg.SecretKeyId, "")
	if s3cfg.AccessKeyId == "" && s3cfg.CredentialsFile != "" {
		creds = credentials.NewFileAWSCredentials(s3cfg.CredentialsFile, s3cfg.CredentialsProfile)
	}

	client, err := newMinioClient(endpointHost, &minio.Options{
		Creds:        creds,
		Secure:       !s3cfg.DisableSSL,
		Region:       region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, bucket := range []string{s3cfg.Beats.Bucket, s3cfg.Uploads.Bucket} {
		exists, err := client.BucketExists(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to verify s3 bucket %q: %w", bucket, err)
		}

		if !exists {
			return nil, fmt.Errorf("s3 bucket %q does not exist or is not accessible", bucket)
		}
	}

	pattern := storageutil.DefaultKeyPattern()
	if cfg.KeyPattern != "" {
		pattern = storageutil.NewKeyPattern(cfg.KeyPattern)
	}

	return &StoreImpl{
		client: client,
		targets: map[mirror.Bucket]target{
			mirror.BucketBeats:   {bucket: s3cfg.Beats.Bucket, publicBase: storageutil.NormalizeBaseURL(s3cfg.Beats.PublicUrl)},
			mirror.BucketUploads: {bucket: s3cfg.Uploads.Bucket, publicBase: storageutil.NormalizeBaseURL(s3cfg.Uploads.PublicUrl)},
		},
		pattern:        pattern,
		fixedType:      cfg.ContentType == "fixed",
		forcePathStyle: s3cfg.ForcePathStyle,
		endpointHost:   endpointHost,
		secure:         !s3cfg.DisableSSL,
		region:         s3cfg.Region,
		now:            time.Now,
	}, nil
}

func (s *StoreImpl) Mirror(ctx context.Context, storedPath string, category media.Category) (string, error) {
	filename := filepath.Base(storedPath)
	t := s.targets[mirror.BucketFor(category)]

	key, err := s.pattern.Generate(filename, category.String(), s.now())
	if err != nil {
		return "", fmt.Errorf("failed to generate object key: %w", err)
	}

	f, err := os.Open(storedPath)
	if err != nil {
		return "", fmt.Errorf("failed to open stored file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat stored file: %w", err)
	}

	opts := minio.PutObjectOptions{ContentType: s.contentType(filename)}

	uploaded, err := s.client.PutObject(ctx, t.bucket, key, f, info.Size(), opts)
	if err != nil {
		return "", fmt.Errorf("upload to s3 bucket %q failed: %w", t.bucket, err)
	}

	if uploaded.VersionID != "" {
		return uploaded.VersionID, nil
	}

	return strings.Trim(uploaded.ETag, `"`), nil
}

func (s *StoreImpl) List(ctx context.Context, bucket mirror.Bucket, pageSize int) ([]mirror.RemoteObject, error) {
	t := s.targets[bucket]

	// The listing channel pages on its own; cancelling stops it after the
	// first page.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := []mirror.RemoteObject{}
	for obj := range s.client.ListObjects(ctx, t.bucket, minio.ListObjectsOptions{MaxKeys: pageSize, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list s3 bucket %q failed: %w", t.bucket, obj.Err)
		}

		objects = append(objects, mirror.RemoteObject{
			ID:   strings.Trim(obj.ETag, `"`),
			Name: obj.Key,
			URL:  s.objectURL(t, obj.Key),
		})

		if pageSize > 0 && len(objects) >= pageSize {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return objects, nil
}

func (s *StoreImpl) contentType(filename string) string {
	if s.fixedType {
		return media.FallbackContentType
	}

	return media.ContentType(filename)
}

func (s *StoreImpl) objectURL(t target, key string) string {
	if t.publicBase != "" {
		return t.publicBase + key
	}

	scheme := "https"
	if !s.secure {
		scheme = "http"
	}

	if s.forcePathStyle {
		return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpointHost, t.bucket, key)
	}

	return fmt.Sprintf("%s://%s.%s/%s", scheme, t.bucket, s.endpointHost, key)
}
