// Package storage provides S3 operations for the upload broker: object key
// layout, pre-signed PUT URLs, and server-side streaming uploads.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const (
	// FolderVideos is the S3 prefix for clip video objects.
	FolderVideos = "videos"
	// FolderThumbnails is the S3 prefix for clip thumbnail objects.
	FolderThumbnails = "thumbnails"
)

// AllowedVideoTypes maps accepted clip MIME types to object key extensions.
var AllowedVideoTypes = map[string]string{
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
}

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ClipsBucket          string
	PublicHost           string
	PresignExpireMinutes int
}

// S3 provides S3 operations for clip objects.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or the environment
// (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
	} else {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024 // 5MB parts for streaming
	})
	logger.Info("S3 client ready",
		zap.String("region", cfg.Region),
		zap.String("clips_bucket", cfg.ClipsBucket),
	)
	return &S3{client: client, uploader: uploader, cfg: cfg, logger: logger}, nil
}

// ValidVideoType reports whether the content type is accepted for clips.
func ValidVideoType(contentType string) bool {
	_, ok := AllowedVideoTypes[strings.ToLower(contentType)]
	return ok
}

// VideoKey returns the object key for a clip video:
// videos/{owner_id}/{clip_id}{ext}.
func VideoKey(ownerID, clipID, contentType string) string {
	ext := AllowedVideoTypes[strings.ToLower(contentType)]
	if ext == "" {
		ext = ".mp4"
	}
	return path.Join(FolderVideos, ownerID, clipID+ext)
}

// ThumbnailKey returns the object key for a clip thumbnail:
// thumbnails/{owner_id}/{clip_id}.jpg.
func ThumbnailKey(ownerID, clipID string) string {
	return path.Join(FolderThumbnails, ownerID, clipID+".jpg")
}

// GeneratePresignedUploadURL returns a pre-signed PUT URL for direct upload
// of one object key.
func (s *S3) GeneratePresignedUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.ClipsBucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("presign put: %w", err)
	}
	return req.URL, nil
}

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}

// PublicBaseURL returns the public URL prefix for clip objects:
// https://{bucket}.{host}. Object URLs are this base joined with the key.
func (s *S3) PublicBaseURL() string {
	return PublicBaseURL(s.cfg.ClipsBucket, s.cfg.PublicHost)
}

// PublicObjectURL returns the public URL for one object key.
func (s *S3) PublicObjectURL(key string) string {
	return s.PublicBaseURL() + "/" + key
}

// Upload streams a reader into the clips bucket. Used for server-side proxy
// uploads when a caller cannot PUT to the presigned URL directly.
func (s *S3) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.ClipsBucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload: %w", err)
	}
	return s.PublicObjectURL(key), nil
}

// PublicBaseURL builds the public URL prefix for a bucket on a given host.
func PublicBaseURL(bucket, host string) string {
	return fmt.Sprintf("https://%s.%s", bucket, host)
}
