package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/smallbiznis/kigyomail/internal/config"
	"github.com/smallbiznis/kigyomail/internal/registry/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPrefix = "registry"

// ObjectPutter is the subset of the S3 client used to store archives.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes raw registry archives to a bucket.
type S3Store struct {
	bucket string
	client ObjectPutter
}

func NewS3Store(bucket string, client ObjectPutter) *S3Store {
	return &S3Store{bucket: bucket, client: client}
}

func (s *S3Store) Store(ctx context.Context, archive domain.Archive) (string, error) {
	key := ObjectKey(archive)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(archive.Data),
		ContentType: aws.String("application/zip"),
		Metadata: map[string]string{
			"csv-date": domain.DateLabel(archive.Date),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// ObjectKey lays archives out as registry/YYYY/MM/YYYYMMDD/<file>.
func ObjectKey(archive domain.Archive) string {
	name := strings.TrimSpace(path.Base(archive.FileName))
	if name == "" || name == "." || name == "/" {
		name = fmt.Sprintf("diff_%s.zip", domain.DateLabel(archive.Date))
	}
	return path.Join(
		keyPrefix,
		archive.Date.Format("2006"),
		archive.Date.Format("01"),
		domain.DateLabel(archive.Date),
		name,
	)
}

// NoopStore is used when no snapshot bucket is configured.
type NoopStore struct{}

func (NoopStore) Store(context.Context, domain.Archive) (string, error) { return "", nil }

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

// New returns an S3-backed store when REGISTRY_SNAPSHOT_BUCKET is set.
func New(p Params) (domain.SnapshotStore, error) {
	bucket := strings.TrimSpace(p.Config.Registry.SnapshotBucket)
	if bucket == "" {
		return NoopStore{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(p.Config.Registry.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	p.Log.Info("registry snapshots enabled",
		zap.String("bucket", bucket),
		zap.String("region", p.Config.Registry.AWSRegion),
	)
	return NewS3Store(bucket, s3.NewFromConfig(awsCfg)), nil
}

var Module = fx.Module("registry.snapshot",
	fx.Provide(New),
)
