// Package objectstore mirrors freshly synced datasets to S3-compatible
// storage.
package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vietddude/archiver/internal/core/cursor"
	"github.com/vietddude/archiver/internal/core/domain"
)

// Config holds the S3/MinIO connection settings.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether uploads are configured.
func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

type objectPutter interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader copies dataset files and the cursor to a bucket.
type Uploader struct {
	cfg    Config
	client objectPutter
	log    *slog.Logger
}

// NewUploader connects to the object store and creates the bucket if it
// does not exist yet.
func NewUploader(ctx context.Context, cfg Config, log *slog.Logger) (*Uploader, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		log.Info("Created bucket", "bucket", cfg.Bucket)
	}

	return &Uploader{cfg: cfg, client: client, log: log}, nil
}

// Name identifies the publisher in logs and metrics.
func (u *Uploader) Name() string { return "objectstore" }

// ObjectKey returns <prefix>/<chain_id>/<file>.
func (u *Uploader) ObjectKey(chainID uint64, file string) string {
	return path.Join(u.cfg.Prefix, strconv.FormatUint(chainID, 10), file)
}

// Publish uploads every dataset holding rows, then the cursor, whenever
// the cursor advanced. The cursor goes last so a reader never sees it
// ahead of the data.
func (u *Uploader) Publish(ctx context.Context, runID string, out *domain.SyncOutcome) error {
	if !out.Advanced() {
		return nil
	}

	for _, ds := range out.Datasets {
		if !ds.HasRows {
			continue
		}
		if err := u.put(ctx, out.ChainID, ds.Path, "application/vnd.apache.parquet", runID); err != nil {
			return err
		}
	}
	if err := u.put(ctx, out.ChainID, cursor.Path(out.Dir), "application/json", runID); err != nil {
		return err
	}
	return nil
}

func (u *Uploader) put(ctx context.Context, chainID uint64, file, contentType, runID string) error {
	key := u.ObjectKey(chainID, filepath.Base(file))
	info, err := u.client.FPutObject(ctx, u.cfg.Bucket, key, file, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"run-id": runID},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	u.log.Debug("Uploaded object", "bucket", u.cfg.Bucket, "key", key, "size", info.Size)
	return nil
}
