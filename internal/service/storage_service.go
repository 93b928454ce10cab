package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"learnhub_backend/internal/config"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ObjectInfo 存储对象元数据
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// StorageProvider 定义通用存储接口
type StorageProvider interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// Stat 对象不存在时返回 util.ErrFileNotFound
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	// OpenRange 读取 [offset, offset+length) 区间；length < 0 表示读到末尾
	OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
}

// AttachmentKey 课时附件在存储中的位置
func AttachmentKey(category, filename string) string {
	return path.Join("attachments", util.SafeFilename(category), util.SafeFilename(filename))
}

// VideoKey 课时视频在存储中的位置
func VideoKey(category, filename string) string {
	return path.Join("videos", util.SafeFilename(category), util.SafeFilename(filename))
}

// LocalStorageProvider 本地存储实现
type LocalStorageProvider struct {
	Config *config.StorageConfig
}

func (p *LocalStorageProvider) fullPath(key string) string {
	return filepath.Join(p.Config.LocalPath, filepath.FromSlash(key))
}

func (p *LocalStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	dst := p.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (p *LocalStorageProvider) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	fi, err := os.Stat(p.fullPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, util.ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, util.ErrFileNotFound
	}
	return &ObjectInfo{Key: key, Size: fi.Size(), ContentType: util.ContentTypeFor(key)}, nil
}

type limitedFile struct {
	io.Reader
	f *os.File
}

func (l *limitedFile) Close() error {
	return l.f.Close()
}

func (p *LocalStorageProvider) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	f, err := os.Open(p.fullPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, util.ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	if length < 0 {
		return f, nil
	}
	return &limitedFile{Reader: io.LimitReader(f, length), f: f}, nil
}

// MinioStorageProvider MinIO存储实现
type MinioStorageProvider struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioStorageProvider(cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorageProvider{Config: cfg, Client: client}, nil
}

func minioErr(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return util.ErrFileNotFound
	}
	return err
}

func (p *MinioStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := p.Client.PutObject(ctx, p.Config.MinioBucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (p *MinioStorageProvider) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := p.Client.StatObject(ctx, p.Config.MinioBucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, minioErr(err)
	}
	ct := info.ContentType
	if ct == "" {
		ct = util.ContentTypeFor(key)
	}
	return &ObjectInfo{Key: key, Size: info.Size, ContentType: ct}, nil
}

func (p *MinioStorageProvider) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	switch {
	case length > 0:
		if err := opts.SetRange(offset, offset+length-1); err != nil {
			return nil, err
		}
	case offset > 0:
		if err := opts.SetRange(offset, 0); err != nil {
			return nil, err
		}
	}
	obj, err := p.Client.GetObject(ctx, p.Config.MinioBucket, key, opts)
	if err != nil {
		return nil, minioErr(err)
	}
	return obj, nil
}

// OSSStorageProvider 阿里云OSS存储实现
type OSSStorageProvider struct {
	Config *config.StorageConfig
	Client *oss.Client
}

func NewOSSStorageProvider(cfg *config.StorageConfig) (*OSSStorageProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSStorageProvider{Config: cfg, Client: client}, nil
}

func ossErr(err error) error {
	var se oss.ServiceError
	if errors.As(err, &se) && (se.StatusCode == http.StatusNotFound || se.Code == "NoSuchKey") {
		return util.ErrFileNotFound
	}
	return err
}

func (p *OSSStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return err
	}
	return bucket.PutObject(key, reader, oss.ContentType(contentType))
}

func (p *OSSStorageProvider) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return nil, err
	}
	header, err := bucket.GetObjectDetailedMeta(key)
	if err != nil {
		return nil, ossErr(err)
	}
	size, err := strconv.ParseInt(header.Get("Content-Length"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("oss object %s: bad content length: %w", key, err)
	}
	ct := header.Get("Content-Type")
	if ct == "" {
		ct = util.ContentTypeFor(key)
	}
	return &ObjectInfo{Key: key, Size: size, ContentType: ct}, nil
}

func (p *OSSStorageProvider) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return nil, err
	}
	var opts []oss.Option
	switch {
	case length > 0:
		opts = append(opts, oss.Range(offset, offset+length-1))
	case offset > 0:
		opts = append(opts, oss.NormalizedRange(strconv.FormatInt(offset, 10)+"-"))
	}
	body, err := bucket.GetObject(key, opts...)
	if err != nil {
		return nil, ossErr(err)
	}
	return body, nil
}

// StorageService 存储服务
type StorageService struct {
	Provider StorageProvider
}

func NewStorageService(cfg *config.Config) *StorageService {
	var provider StorageProvider
	switch cfg.Storage.Type {
	case util.StorageMinio:
		p, err := NewMinioStorageProvider(&cfg.Storage)
		if err != nil {
			logger.Log.Error("init minio storage failed, falling back to local", zap.Error(err))
		} else {
			provider = p
		}
	case util.StorageOSS:
		p, err := NewOSSStorageProvider(&cfg.Storage)
		if err != nil {
			logger.Log.Error("init oss storage failed, falling back to local", zap.Error(err))
		} else {
			provider = p
		}
	}

	if provider == nil {
		provider = &LocalStorageProvider{Config: &cfg.Storage}
	}

	return &StorageService{Provider: provider}
}

func (s *StorageService) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	return s.Provider.Upload(ctx, key, reader, size, contentType)
}

func (s *StorageService) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	return s.Provider.Stat(ctx, key)
}

func (s *StorageService) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	return s.Provider.OpenRange(ctx, key, offset, length)
}
