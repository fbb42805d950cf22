// Package storage 提供了与对象存储服务（MinIO）交互的功能，
// 用于存放上传文档的原始字节。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"docuchat-go/internal/config"
	"docuchat-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// 原始文档在桶内的统一前缀。
const uploadPrefix = "uploads/"

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	ctx := context.Background()
	exists, err := MinioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}
	if !exists {
		if err := MinioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}
}

// objectName 返回文件在桶内的对象名。
func objectName(fileName string) string {
	return uploadPrefix + fileName
}

// PutDocument 按原始文件名存储文档字节。同名覆盖。
func PutDocument(ctx context.Context, bucket, fileName string, raw []byte) error {
	_, err := MinioClient.PutObject(ctx, bucket, objectName(fileName),
		bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("写入对象 '%s' 失败: %w", objectName(fileName), err)
	}
	return nil
}

// GetDocument 读取文档的原始字节。
func GetDocument(ctx context.Context, bucket, fileName string) ([]byte, error) {
	object, err := MinioClient.GetObject(ctx, bucket, objectName(fileName), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取对象 '%s' 失败: %w", objectName(fileName), err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(object); err != nil {
		return nil, fmt.Errorf("读取对象流 '%s' 失败: %w", objectName(fileName), err)
	}
	return buf.Bytes(), nil
}

// ListDocuments 列出所有已存储的原始文档文件名，按名称排序。
func ListDocuments(ctx context.Context, bucket string) ([]string, error) {
	var names []string
	for object := range MinioClient.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: uploadPrefix}) {
		if object.Err != nil {
			return nil, fmt.Errorf("列举对象失败: %w", object.Err)
		}
		names = append(names, strings.TrimPrefix(object.Key, uploadPrefix))
	}
	sort.Strings(names)
	return names, nil
}

// GetPresignedURL 为文档生成一个限时下载链接。
func GetPresignedURL(ctx context.Context, bucket, fileName string, expiry time.Duration) (string, error) {
	presignedURL, err := MinioClient.PresignedGetObject(ctx, bucket, objectName(fileName), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成下载链接失败: %w", err)
	}
	return presignedURL.String(), nil
}
