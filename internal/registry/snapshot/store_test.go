package snapshot

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/smallbiznis/kigyomail/internal/registry/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		f.body, _ = io.ReadAll(params.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreWritesDatedKey(t *testing.T) {
	putter := &fakePutter{}
	store := NewS3Store("kigyomail-registry", putter)

	archive := domain.Archive{
		Date:     time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC),
		FileName: "13_tokyo_diff_20250512.zip",
		Data:     []byte("zip"),
	}
	key, err := store.Store(context.Background(), archive)
	require.NoError(t, err)

	assert.Equal(t, "registry/2025/05/20250512/13_tokyo_diff_20250512.zip", key)
	assert.Equal(t, "kigyomail-registry", aws.ToString(putter.input.Bucket))
	assert.Equal(t, key, aws.ToString(putter.input.Key))
	assert.Equal(t, []byte("zip"), putter.body)
}

func TestObjectKeyFallsBackToDatedName(t *testing.T) {
	key := ObjectKey(domain.Archive{Date: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)})
	assert.Equal(t, "registry/2025/01/20250103/diff_20250103.zip", key)
}

func TestS3StoreWrapsErrors(t *testing.T) {
	boom := errors.New("access denied")
	store := NewS3Store("bucket", &fakePutter{err: boom})

	_, err := store.Store(context.Background(), domain.Archive{Date: time.Now(), FileName: "a.zip"})
	require.ErrorIs(t, err, boom)
}
