package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"cv-agent-go/internal/config"
	"cv-agent-go/internal/constants"
	"cv-agent-go/internal/logger"
	"cv-agent-go/internal/tracing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var minioTracer = otel.Tracer("cv-agent-go/storage/minio")

// MinIO 保存上传的原始简历文档
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
	logger zerolog.Logger
}

// NewMinIO 创建MinIO客户端并确保存储桶存在
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	log := logger.Component("minio")

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	bucket := cfg.BucketName
	if bucket == "" {
		bucket = "cv-documents"
	}
	m := &MinIO{client: client, cfg: cfg, bucket: bucket, logger: log}

	if err := m.ensureBucketExists(ctx, cfg.Location); err != nil {
		return nil, err
	}
	if cfg.DocumentExpireDays > 0 {
		if err := m.setupLifecycle(ctx, cfg.DocumentExpireDays); err != nil {
			log.Warn().Err(err).Str("bucket", bucket).Msg("设置生命周期规则失败")
		}
	}

	log.Info().Str("endpoint", cfg.Endpoint).Str("bucket", bucket).Msg("MinIO客户端初始化成功")
	return m, nil
}

func (m *MinIO) ensureBucketExists(ctx context.Context, location string) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", m.bucket, err)
	}
	m.logger.Info().Str("bucket", m.bucket).Msg("存储桶已创建")
	return nil
}

// setupLifecycle 只对 cv_documents/ 前缀下的对象生效
func (m *MinIO) setupLifecycle(ctx context.Context, expireDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:         "expire-cv-documents",
			Status:     "Enabled",
			RuleFilter: lifecycle.Filter{Prefix: constants.DocumentObjectPrefix + "/"},
			Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(expireDays)},
		},
	}
	return m.client.SetBucketLifecycle(ctx, m.bucket, cfg)
}

// DocumentObjectKey 原始文档的对象键: cv_documents/{id}/original{ext}
func DocumentObjectKey(documentID, fileExt string) string {
	ext := strings.ToLower(fileExt)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s/%s/original%s", constants.DocumentObjectPrefix, documentID, ext)
}

// StoreDocument 上传原始文档，返回对象键
func (m *MinIO) StoreDocument(ctx context.Context, documentID, fileExt string, data []byte) (string, error) {
	objectKey := DocumentObjectKey(documentID, fileExt)
	ctx, span := minioTracer.Start(ctx, "MinIO.StoreDocument", trace.WithAttributes(
		attribute.String("minio.bucket", m.bucket),
		attribute.String("minio.object_key", objectKey),
		attribute.Int("minio.size_bytes", len(data)),
	))
	defer span.End()

	info, err := m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: getContentType(fileExt)})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeStorage)
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.bucket, objectKey, err)
	}
	m.logger.Debug().Str("object_key", objectKey).Str("etag", info.ETag).Int64("size", info.Size).Msg("原始文档已上传")
	return objectKey, nil
}

// GetDocument 按对象键下载原始文档
func (m *MinIO) GetDocument(ctx context.Context, objectKey string) ([]byte, error) {
	ctx, span := minioTracer.Start(ctx, "MinIO.GetDocument", trace.WithAttributes(
		attribute.String("minio.object_key", objectKey),
	))
	defer span.End()

	obj, err := m.client.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeStorage)
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", m.bucket, objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeStorage)
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", m.bucket, objectKey, err)
	}
	return data, nil
}

// DeleteDocument 删除原始文档
func (m *MinIO) DeleteDocument(ctx context.Context, objectKey string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象 %s/%s 失败: %w", m.bucket, objectKey, err)
	}
	return nil
}

func getContentType(fileExt string) string {
	switch strings.ToLower(strings.TrimPrefix(fileExt, ".")) {
	case "pdf":
		return "application/pdf"
	case "doc":
		return "application/msword"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
