// Package remote pushes backup snapshots to S3-compatible object storage.
// It is optional: the store works without it, and upload failures never
// fail a local backup.
package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/promptforge/promptstore/internal/config"
)

// Uploader copies backup directories into an object storage bucket
type Uploader struct {
	client     *minio.Client
	bucketName string
}

// New creates an uploader and ensures the target bucket exists
func New(cfg config.RemoteConfig) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create remote storage client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Uploader{
		client:     client,
		bucketName: cfg.BucketName,
	}, nil
}

// UploadBackup mirrors one backup snapshot directory into the bucket
// under the backup id prefix.
func (u *Uploader) UploadBackup(ctx context.Context, backupID, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		objectName := backupID + "/" + filepath.ToSlash(rel)

		_, err = u.client.FPutObject(ctx, u.bucketName, objectName, path, minio.PutObjectOptions{
			ContentType: "application/json",
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", objectName, err)
		}
		return nil
	})
}
