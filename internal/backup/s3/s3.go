// Package s3 stores backups in an S3 compatible bucket under
// <prefix><world uuid>/<creation ms>.zip.
package s3

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/types"
)

// objectAPI is the part of *minio.Client the backend uses.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
}

var _ backup.Storage = (*Storage)(nil)

// Storage checks the bucket on first use rather than at construction, so an
// unreachable endpoint fails operations instead of startup.
type Storage struct {
	client objectAPI
	// broken is a configuration error every operation reports.
	broken error
	bucket string
	prefix string
	logger *zap.Logger

	mu       sync.Mutex
	verified bool
	closed   atomic.Bool
}

// New builds the client without contacting the endpoint. A client that
// cannot be built leaves the storage usable but failing.
func New(cfg config.S3Config, logger *zap.Logger) *Storage {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		logger.Error("s3 backup storage is misconfigured", zap.String("endpoint", cfg.Endpoint), zap.Error(err))
		s := newStorage(nil, cfg.Bucket, cfg.Prefix, logger)
		s.broken = fmt.Errorf("s3 client: %w", err)
		return s
	}
	return newStorage(client, cfg.Bucket, cfg.Prefix, logger)
}

func newStorage(client objectAPI, bucket, prefix string, logger *zap.Logger) *Storage {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Storage{client: client, bucket: bucket, prefix: strings.TrimPrefix(prefix, "/"), logger: logger}
}

func (s *Storage) Name() string { return "s3" }

// ready verifies the bucket once. Until that succeeds every operation asks
// again.
func (s *Storage) ready(ctx context.Context) error {
	if s.closed.Load() {
		return types.ErrStorageClosed
	}
	if s.broken != nil {
		return s.broken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verified {
		return nil
	}
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("s3 bucket %s: %w", s.bucket, err)
	}
	if !ok {
		return fmt.Errorf("s3 bucket %s does not exist", s.bucket)
	}
	s.verified = true
	return nil
}

func (s *Storage) dir(p backup.Profile) string { return s.prefix + p.ID.String() + "/" }

func (s *Storage) ListBackups(ctx context.Context, p backup.Profile) ([]backup.Backup, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	dir := s.dir(p)
	backups := make([]backup.Backup, 0)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: dir}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, dir)
		if strings.Contains(name, "/") {
			continue
		}
		ms, ok := backup.ParseFileName(name)
		if !ok {
			continue
		}
		backups = append(backups, backup.Backup{Profile: p, CreationTime: ms, Key: obj.Key})
	}
	backup.SortNewestFirst(backups)
	return backups, nil
}

func (s *Storage) StoreBackup(ctx context.Context, p backup.Profile, snap backup.Snapshot) (backup.Backup, error) {
	if err := s.ready(ctx); err != nil {
		return backup.Backup{}, err
	}
	key := path.Join(s.dir(p), backup.FileName(snap.Created))
	info, err := s.client.FPutObject(ctx, s.bucket, key, snap.Path, minio.PutObjectOptions{ContentType: "application/zip"})
	if err != nil {
		return backup.Backup{}, err
	}
	s.logger.Debug("uploaded backup", zap.String("key", key), zap.Int64("size", info.Size))
	return backup.Backup{Profile: p, CreationTime: snap.Created.UnixMilli(), Key: key}, nil
}

// DownloadBackup fetches the object into a temporary file owned by the
// caller.
func (s *Storage) DownloadBackup(ctx context.Context, b backup.Backup) (string, bool, error) {
	if err := s.ready(ctx); err != nil {
		return "", false, err
	}
	tmp, err := os.CreateTemp("", "backup-*.zip")
	if err != nil {
		return "", false, err
	}
	dst := tmp.Name()
	tmp.Close()

	if err := s.client.FGetObject(ctx, s.bucket, b.Key, dst, minio.GetObjectOptions{}); err != nil {
		os.Remove(dst)
		if isNotFound(err) {
			return "", false, types.ErrBackupNotFound
		}
		return "", false, err
	}
	return dst, true, nil
}

// DeleteBackup relies on S3 treating removal of a missing key as success.
func (s *Storage) DeleteBackup(ctx context.Context, b backup.Backup) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	err := s.client.RemoveObject(ctx, s.bucket, b.Key, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *Storage) Close() error {
	s.closed.Store(true)
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
