// Package s3storage — архив исходных документов в S3-совместимом хранилище.
//
// "Тупой" клиент: ключ объекта <user_id>/<имя файла>, без классификации.
package s3storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ilkoid/knowme/pkg/config"
)

// ErrObjectNotFound — объекта нет в архиве.
var ErrObjectNotFound = errors.New("object not found")

// StoredObject - сырой объект из S3
type StoredObject struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Client — архив поверх minio-go.
type Client struct {
	api    *minio.Client
	bucket string
}

// New создает клиент, используя наш конфиг
func New(cfg config.S3Config) (*Client, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client %s: %w", cfg.Endpoint, err)
	}

	return &Client{
		api:    minioClient,
		bucket: cfg.Bucket,
	}, nil
}

// ObjectKey возвращает ключ архивной копии документа.
func ObjectKey(userID, name string) string {
	return strings.Trim(userID, "/") + "/" + name
}

// Stat возвращает метаданные объекта или ErrObjectNotFound.
func (c *Client) Stat(ctx context.Context, key string) (StoredObject, error) {
	info, err := c.api.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return StoredObject{}, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return StoredObject{}, fmt.Errorf("stat %s: %w", key, err)
	}
	return StoredObject{Key: info.Key, Size: info.Size, LastModified: info.LastModified}, nil
}

// Remove удаляет объект. Отсутствующий объект не ошибка (семантика S3).
func (c *Client) Remove(ctx context.Context, key string) error {
	if err := c.api.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
