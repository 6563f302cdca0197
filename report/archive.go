package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"unloadtrack/config"
	"unloadtrack/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Archiver uploads finalized reports to an S3-compatible bucket.
type Archiver struct {
	client *minio.Client
	bucket string
}

// NewArchiver returns nil when no endpoint is configured.
func NewArchiver(cfg config.ArchiveConfig) (*Archiver, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("report archive: bucket required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("report archive: %w", err)
	}
	return &Archiver{client: client, bucket: cfg.Bucket}, nil
}

// ObjectKey is reports/<yyyy>/<mm>/<job code>.xlsx, dated by completion.
func ObjectKey(job *store.Job) string {
	at := job.CreatedAt
	if job.CompletedAt != nil {
		at = *job.CompletedAt
	}
	return fmt.Sprintf("reports/%s/%s.xlsx", at.UTC().Format("2006/01"), job.Code)
}

// Put stores the report of job and returns its object key.
func (a *Archiver) Put(ctx context.Context, job *store.Job, data []byte) (string, error) {
	ok, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return "", fmt.Errorf("report archive: bucket %s: %w", a.bucket, err)
	}
	if !ok {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("report archive: create bucket %s: %w", a.bucket, err)
		}
	}
	key := ObjectKey(job)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: xlsxContentType,
		UserMetadata: map[string]string{
			"job-code": job.Code,
			"vessel":   job.Vessel,
		},
	})
	if err != nil {
		return "", fmt.Errorf("report archive: put %s: %w", key, err)
	}
	return key, nil
}

// Ping checks that the archive endpoint answers.
func (a *Archiver) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := a.client.BucketExists(ctx, a.bucket)
	return err
}
