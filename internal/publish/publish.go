// Package publish uploads finished videos to S3-compatible storage.
package publish

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/fault"
)

const defaultRegion = "us-east-1"

// Object describes an uploaded artifact.
type Object struct {
	Bucket string
	Key    string
	URL    string
	Size   int64
	ETag   string
}

type Publisher struct {
	client *minio.Client
	bucket string
	prefix string
	region string
	logger *zap.Logger
}

// New connects to the configured bucket. No request is made until Upload.
func New(cfg config.StorageConfig, logger *zap.Logger) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, fault.Wrap(fault.ErrConfiguration, "publish", "storage endpoint and bucket are required", nil)
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fault.Wrap(fault.ErrConfiguration, "publish", "minio connection", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: region,
		logger: logger,
	}, nil
}

// Key is the object key for a file produced by job.
func (p *Publisher) Key(jobID, file string) string {
	return path.Join(p.prefix, jobID, filepath.Base(file))
}

// Upload puts file under the job's key, creating the bucket if needed.
func (p *Publisher) Upload(ctx context.Context, jobID, file string) (Object, error) {
	info, err := os.Stat(file)
	if err != nil {
		return Object{}, fault.Wrap(fault.ErrPrecondition, "publish", "artifact missing", err)
	}

	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return Object{}, fault.Wrap(fault.ErrExternalTool, "publish", "bucket lookup", err)
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
			return Object{}, fault.Wrap(fault.ErrExternalTool, "publish", "create bucket "+p.bucket, err)
		}
		p.logger.Info("bucket created", zap.String("bucket", p.bucket))
	}

	key := p.Key(jobID, file)
	up, err := p.client.FPutObject(ctx, p.bucket, key, file, minio.PutObjectOptions{ContentType: ContentType(file)})
	if err != nil {
		return Object{}, fault.Wrap(fault.ErrExternalTool, "publish", "upload "+key, err)
	}

	obj := Object{
		Bucket: p.bucket,
		Key:    key,
		URL:    fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(p.client.EndpointURL().String(), "/"), p.bucket, key),
		Size:   info.Size(),
		ETag:   up.ETag,
	}
	p.logger.Info("artifact published",
		zap.String("bucket", obj.Bucket), zap.String("key", obj.Key), zap.Int64("bytes", obj.Size))
	return obj, nil
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

// ContentType guesses the MIME type of file from its extension.
func ContentType(file string) string {
	ext := strings.ToLower(filepath.Ext(file))
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
