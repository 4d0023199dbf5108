package objectstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/archiver/internal/core/domain"
)

type putCall struct {
	bucket, key, file, contentType, runID string
}

type fakePutter struct {
	calls []putCall
	err   error
}

func (f *fakePutter) FPutObject(_ context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.calls = append(f.calls, putCall{bucket, object, filePath, opts.ContentType, opts.UserMetadata["run-id"]})
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: 1}, nil
}

func newTestUploader(p *fakePutter, prefix string) *Uploader {
	return &Uploader{cfg: Config{Bucket: "archive", Prefix: prefix}, client: p, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func outcome() *domain.SyncOutcome {
	return &domain.SyncOutcome{
		ChainID: 8453,
		Dir:     "/data/8453",
		Datasets: []domain.DatasetOutcome{
			{Role: domain.RoleIdentity, Path: "/data/8453/identity.parquet"},
			{Role: domain.RoleReputation, Path: "/data/8453/reputation.parquet", Rows: 4, HasRows: true},
		},
	}
}

func TestObjectKey(t *testing.T) {
	u := newTestUploader(&fakePutter{}, "erc8004")
	assert.Equal(t, "erc8004/8453/identity.parquet", u.ObjectKey(8453, "identity.parquet"))

	u = newTestUploader(&fakePutter{}, "")
	assert.Equal(t, "1/cursor.json", u.ObjectKey(1, "cursor.json"))
}

func TestPublish_DatasetsThenCursor(t *testing.T) {
	p := &fakePutter{}
	u := newTestUploader(p, "erc8004")

	require.NoError(t, u.Publish(context.Background(), "run-1", outcome()))

	require.Len(t, p.calls, 2)
	assert.Equal(t, putCall{
		bucket: "archive", key: "erc8004/8453/reputation.parquet",
		file: "/data/8453/reputation.parquet", contentType: "application/vnd.apache.parquet", runID: "run-1",
	}, p.calls[0])
	assert.Equal(t, "erc8004/8453/cursor.json", p.calls[1].key)
	assert.Equal(t, "/data/8453/cursor.json", p.calls[1].file)
}

func TestPublish_UpToDate(t *testing.T) {
	p := &fakePutter{}
	u := newTestUploader(p, "")
	out := outcome()
	out.UpToDate = true

	require.NoError(t, u.Publish(context.Background(), "run-1", out))
	assert.Empty(t, p.calls)
}

// Rows flushed by an earlier failed attempt show up with Added == 0 once
// the cursor finally advances; they still have to be mirrored.
func TestPublish_RowsFromEarlierAttempt(t *testing.T) {
	p := &fakePutter{}
	u := newTestUploader(p, "")
	out := outcome()
	out.Datasets[0].Rows, out.Datasets[0].HasRows = 2, true

	require.NoError(t, u.Publish(context.Background(), "run-1", out))
	require.Len(t, p.calls, 3)
	assert.Equal(t, "8453/identity.parquet", p.calls[0].key)
	assert.Equal(t, "8453/reputation.parquet", p.calls[1].key)
	assert.Equal(t, "8453/cursor.json", p.calls[2].key)
}

func TestPublish_StopsOnError(t *testing.T) {
	p := &fakePutter{err: errors.New("access denied")}
	u := newTestUploader(p, "")

	err := u.Publish(context.Background(), "run-1", outcome())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "8453/reputation.parquet")
	assert.Len(t, p.calls, 1, "cursor must not be uploaded after a failed dataset")
}
