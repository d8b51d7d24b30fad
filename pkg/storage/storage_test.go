package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	exists  bool
	made    []string
	puts    map[string]string
	types   map[string]string
	failKey string
}

func (f *fakeStore) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.exists, nil
}

func (f *fakeStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	return nil
}

func (f *fakeStore) FPutObject(_ context.Context, bucket, object, file string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if object == f.failKey {
		return minio.UploadInfo{}, errors.New("connection reset")
	}
	if f.puts == nil {
		f.puts = map[string]string{}
		f.types = map[string]string{}
	}
	f.puts[object] = file
	f.types[object] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: object}, nil
}

func TestUploadRunCreatesBucketAndPrefixesKeys(t *testing.T) {
	store := &fakeStore{}
	u := NewWithClient(store, "features", "/nightly/")

	keys, err := u.UploadRun(context.Background(), "20240512_093000", []string{
		"/runs/20240512_093000/features.parquet",
		"/runs/20240512_093000/manifest.json",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"features"}, store.made)
	assert.Equal(t, []string{
		"nightly/20240512_093000/features.parquet",
		"nightly/20240512_093000/manifest.json",
	}, keys)
	assert.Equal(t, "/runs/20240512_093000/manifest.json", store.puts["nightly/20240512_093000/manifest.json"])
	assert.Equal(t, "application/json", store.types["nightly/20240512_093000/manifest.json"])
}

func TestUploadRunSkipsExistingBucketAndStopsOnError(t *testing.T) {
	store := &fakeStore{exists: true, failKey: "run/manifest.json"}
	u := NewWithClient(store, "features", "")

	keys, err := u.UploadRun(context.Background(), "run", []string{"features.csv", "manifest.json", "run.log"})
	require.Error(t, err)
	assert.Empty(t, store.made)
	assert.Equal(t, []string{"run/features.csv"}, keys)
	assert.Equal(t, "text/csv", store.types["run/features.csv"])
}
