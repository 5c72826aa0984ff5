package interfaces

import (
	"context"
	"time"
)

type StorageService interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// ArchiveWebhook stores a raw webhook body and returns its key.
	ArchiveWebhook(ctx context.Context, body []byte) (string, error)
	// ListWebhooks returns the archive keys of one UTC day.
	ListWebhooks(ctx context.Context, day time.Time) ([]string, error)
}
