// Пакет blobstore — хранение файлов документов в S3: presigned URL для
// загрузки и скачивания, проверка наличия объекта, удаление.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ErrNotFound — объект отсутствует в bucket.
var ErrNotFound = errors.New("объект не найден в S3")

// deleteBatchSize — максимум ключей в одном DeleteObjects.
const deleteBatchSize = 1000

// S3API — используемое подмножество *s3.Client.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// PresignAPI — используемое подмножество *s3.PresignClient.
type PresignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ObjectInfo — метаданные объекта.
type ObjectInfo struct {
	Size        int64
	ContentType string
	ETag        string
}

// Store — хранилище файлов в одном bucket.
type Store struct {
	api     S3API
	presign PresignAPI
	bucket  string
	logger  *slog.Logger
}

// New создаёт хранилище поверх клиента S3.
func New(client *s3.Client, bucket string, logger *slog.Logger) *Store {
	return NewWithAPI(client, s3.NewPresignClient(client), bucket, logger)
}

// NewWithAPI создаёт хранилище с явными реализациями API (для тестов).
func NewWithAPI(api S3API, presign PresignAPI, bucket string, logger *slog.Logger) *Store {
	return &Store{
		api:     api,
		presign: presign,
		bucket:  bucket,
		logger:  logger.With(slog.String("component", "blobstore")),
	}
}

// PresignPut возвращает presigned URL для загрузки объекта методом PUT.
func (s *Store) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	req, err := s.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign PUT %s: %w", key, err)
	}
	return req.URL, nil
}

// PresignGet возвращает presigned URL для скачивания объекта.
func (s *Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign GET %s: %w", key, err)
	}
	return req.URL, nil
}

// Head возвращает метаданные объекта или ErrNotFound.
func (s *Store) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("HEAD %s: %w", key, err)
	}
	return &ObjectInfo{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
	}, nil
}

// Delete удаляет объект. Отсутствие объекта — не ошибка.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("удаление %s: %w", key, err)
	}
	return nil
}

// DeleteMany удаляет объекты пакетами по 1000 ключей.
// Возвращает ошибку, если хотя бы один объект не удалён.
func (s *Store) DeleteMany(ctx context.Context, keys []string) error {
	var failed int
	var firstErr error

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			failed += len(objects)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, e := range out.Errors {
			failed++
			s.logger.Warn("Объект не удалён",
				slog.String("key", aws.ToString(e.Key)),
				slog.String("code", aws.ToString(e.Code)),
				slog.String("message", aws.ToString(e.Message)),
			)
		}
	}

	if failed > 0 {
		if firstErr != nil {
			return fmt.Errorf("не удалено объектов: %d: %w", failed, firstErr)
		}
		return fmt.Errorf("не удалено объектов: %d", failed)
	}
	return nil
}

// isNotFound распознаёт ответы S3 об отсутствии объекта.
func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
