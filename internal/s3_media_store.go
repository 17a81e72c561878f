package internal

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lychee-technology/tabula"
)

// S3MediaStore uploads assets to an S3-compatible bucket. Object keys are
// prefixed and uuid-salted so repeated uploads of the same filename never
// collide.
type S3MediaStore struct {
	uploader  *manager.Uploader
	bucket    string
	keyPrefix string
	baseURL   string
}

// NewS3MediaStore builds the media store from config. A non-empty endpoint
// switches to path-style addressing for MinIO-style deployments; static
// credentials are used when both keys are set, otherwise the default chain.
func NewS3MediaStore(ctx context.Context, cfg tabula.S3Config) (*S3MediaStore, error) {
	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return &S3MediaStore{
		uploader:  manager.NewUploader(client),
		bucket:    cfg.Bucket,
		keyPrefix: strings.Trim(cfg.KeyPrefix, "/"),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

func (s *S3MediaStore) Upload(ctx context.Context, info tabula.FileInfo, r io.Reader) (tabula.UploadedFile, error) {
	key := uuid.NewString() + "-" + sanitizeObjectName(info.Name)
	if s.keyPrefix != "" {
		key = s.keyPrefix + "/" + key
	}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(info.MIME),
	})
	if err != nil {
		return tabula.UploadedFile{}, fmt.Errorf("s3 upload %s: %w", info.Name, err)
	}

	url := out.Location
	if s.baseURL != "" {
		url = s.baseURL + "/" + key
	}
	zap.S().Debugw("asset uploaded", "key", key, "size", info.Size)

	return tabula.UploadedFile{
		ID:   key,
		Name: info.Name,
		URL:  url,
		Size: info.Size,
	}, nil
}

// sanitizeObjectName flattens directory components and whitespace out of a
// filename before it becomes part of an object key.
func sanitizeObjectName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}
