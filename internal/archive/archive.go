// Package archive mirrors committed document versions into S3-compatible
// object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"collab/api/internal/store"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver receives every version after it commits.
type Archiver interface {
	ArchiveVersion(ctx context.Context, version store.DocumentVersion) error
}

// Nop discards versions. It is used when no endpoint is configured.
type Nop struct{}

func (Nop) ArchiveVersion(context.Context, store.DocumentVersion) error { return nil }

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type MinioArchiver struct {
	client *minio.Client
	bucket string
}

// NewMinioArchiver connects to the endpoint and creates the bucket if it does
// not exist yet.
func NewMinioArchiver(ctx context.Context, opts Options) (*MinioArchiver, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("archive endpoint and bucket are required")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}
	if err := ensureBucket(ctx, client, opts.Bucket, region); err != nil {
		return nil, err
	}
	return &MinioArchiver{client: client, bucket: opts.Bucket}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check archive bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create archive bucket: %w", err)
	}
	log.Printf("archive bucket %s created", bucket)
	return nil
}

type versionObject struct {
	DocumentID string    `json:"documentId"`
	Number     int       `json:"number"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"authorId"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ObjectKey is the object name a version is stored under.
func ObjectKey(documentID string, number int) string {
	return fmt.Sprintf("documents/%s/v%06d.json", documentID, number)
}

func (a *MinioArchiver) ArchiveVersion(ctx context.Context, version store.DocumentVersion) error {
	body, err := json.Marshal(versionObject{
		DocumentID: version.DocumentID,
		Number:     version.Number,
		Content:    version.Content,
		AuthorID:   version.AuthorID,
		Comment:    version.Comment,
		CreatedAt:  version.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal version: %w", err)
	}

	_, err = a.client.PutObject(ctx, a.bucket, ObjectKey(version.DocumentID, version.Number),
		bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
			ContentType: "application/json",
			UserMetadata: map[string]string{
				"document-id": version.DocumentID,
				"version":     strconv.Itoa(version.Number),
			},
		})
	if err != nil {
		return fmt.Errorf("put version object: %w", err)
	}
	return nil
}
