// Package mirror copies every saved photo to an S3-compatible bucket.
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"twin-shutter/pkg/config"
	"twin-shutter/pkg/types"
	"twin-shutter/pkg/utils"
)

const uploadTimeout = 30 * time.Second

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// ObjectPutter is the part of *minio.Client the mirror uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Mirror struct {
	client ObjectPutter
	bucket string
	prefix string
}

// New connects to the endpoint in cfg and makes sure the bucket exists.
func New(ctx context.Context, cfg config.MirrorConfig) (*Mirror, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		exists, errExists := cli.BucketExists(ctx, cfg.Bucket)
		if errExists != nil || !exists {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	logger.Infof("mirror: endpoint %s, bucket %s", cfg.Endpoint, cfg.Bucket)

	return NewWithClient(cli, cfg.Bucket, cfg.Prefix), nil
}

func NewWithClient(client ObjectPutter, bucket, prefix string) *Mirror {
	return &Mirror{client: client, bucket: bucket, prefix: prefix}
}

// Key is the object name for a photo.
func (m *Mirror) Key(p types.Photo) string {
	return path.Join(m.prefix, p.Name)
}

// Upload copies the photo file to the bucket.
func (m *Mirror) Upload(ctx context.Context, p types.Photo) error {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", p.Path, err)
	}
	_, err = m.client.PutObject(ctx, m.bucket, m.Key(p), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "image/jpeg"})
	if err != nil {
		return fmt.Errorf("put %s: %w", m.Key(p), err)
	}

	return nil
}

// OnSaved is a storage.Listener.
func (m *Mirror) OnSaved(p types.Photo) {
	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()
	if err := m.Upload(ctx, p); err != nil {
		logger.Warnf("mirror: %s", err)
		return
	}
	logger.Debugf("mirror: uploaded %s", m.Key(p))
}
