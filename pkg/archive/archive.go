// Package archive mirrors written chunk files to S3.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/siqueiraa/HubSync/pkg/batch"
	"github.com/siqueiraa/HubSync/pkg/config"
)

// Uploader is the part of manager.Uploader the archive uses.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Archive uploads chunk files under "<prefix><entityType>/<fileName>".
type Archive struct {
	uploader Uploader
	bucket   string
	prefix   string
}

// New builds an S3 archive from cfg. Static credentials are used when an
// access key is configured, the default AWS chain otherwise.
func New(ctx context.Context, cfg config.S3Config) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}

	opts := []func(*awsConfig.LoadOptions) error{awsConfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithUploader(manager.NewUploader(client), cfg.Bucket, cfg.Prefix), nil
}

// NewWithUploader returns an archive using u.
func NewWithUploader(u Uploader, bucket, prefix string) *Archive {
	return &Archive{uploader: u, bucket: bucket, prefix: prefix}
}

// ObjectKey returns the key a chunk file is stored under.
func ObjectKey(prefix, entityType, fileName string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + entityType + "/" + fileName
}

// Upload stores f.
func (a *Archive) Upload(ctx context.Context, entityType string, f batch.File) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	key := ObjectKey(a.prefix, entityType, f.Name)
	in := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"checksum": f.Checksum,
			"count":    fmt.Sprint(f.Count),
		},
	}
	if f.Bytes > 0 {
		in.ContentLength = aws.Int64(int64(f.Bytes))
	}
	res, err := a.uploader.Upload(ctx, in)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	log.Printf("[Archive] Uploaded %s to %s", f.Name, res.Location)
	return nil
}
