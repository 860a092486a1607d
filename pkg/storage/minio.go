// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"smartdoc-go/internal/config"
	"smartdoc-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Bucket 封装单个 MinIO 存储桶上的操作。
type Bucket struct {
	client *minio.Client
	name   string
}

// NewBucket 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewBucket(ctx context.Context, cfg config.MinIOConfig) (*Bucket, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("[MinIO] 存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}
	log.Infof("[MinIO] 存储桶 '%s' 已就绪", cfg.BucketName)
	return &Bucket{client: client, name: cfg.BucketName}, nil
}

// Put 上传对象。
func (b *Bucket) Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, b.name, objectName, r, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

// Get 读取整个对象。
func (b *Bucket) Get(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.name, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// Remove 删除对象，对象不存在不视为错误。
func (b *Bucket) Remove(ctx context.Context, objectName string) error {
	return b.client.RemoveObject(ctx, b.name, objectName, minio.RemoveObjectOptions{})
}

// PresignedURL 生成限时下载链接。
func (b *Bucket) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := b.client.PresignedGetObject(ctx, b.name, objectName, expiry, nil)
	if err != nil {
		log.Errorf("[MinIO] 生成预签名链接失败: %v", err)
		return "", err
	}
	return u.String(), nil
}
