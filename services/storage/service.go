package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/internal/utils"
	"github.com/customeros/mailgovernor/services/storage/aws_client"
)

const webhookPrefix = "webhooks"

type objectStorageService struct {
	client aws_client.ObjectClient
	bucket string
	clock  func() time.Time
}

func NewStorageService(client aws_client.ObjectClient, bucket string) interfaces.StorageService {
	return &objectStorageService{
		client: client,
		bucket: bucket,
		clock:  utils.Now,
	}
}

// NewR2StorageService returns nil when R2 credentials are not configured;
// callers treat a nil StorageService as archiving disabled.
func NewR2StorageService(cfg *config.R2StorageConfig) (interfaces.StorageService, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := aws_client.NewR2Client(aws_client.R2Config{
		AccountID:       cfg.AccountID,
		AccessKeyID:     cfg.AccessKeyID,
		AccessKeySecret: cfg.AccessKeySecret,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create R2 client")
	}
	return NewStorageService(client, cfg.WebhookBucket), nil
}

func (s *objectStorageService) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "StorageService.Upload")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(tracingLog.String("key", key), tracingLog.Int("size", len(data)))

	if err := s.client.Put(ctx, s.bucket, key, data, contentType); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrapf(err, "upload %s", key)
	}
	return nil
}

func (s *objectStorageService) Download(ctx context.Context, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "StorageService.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(tracingLog.String("key", key))

	content, err := s.client.Get(ctx, s.bucket, key)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "download %s", key)
	}
	return content, nil
}

func (s *objectStorageService) Delete(ctx context.Context, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "StorageService.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(tracingLog.String("key", key))

	if err := s.client.Delete(ctx, s.bucket, key); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}

// WebhookKey is webhooks/<yyyy>/<mm>/<dd>/<uuid>.json for the UTC day of at.
func WebhookKey(at time.Time, id string) string {
	return fmt.Sprintf("%s/%s.json", webhookDayPrefix(at), id)
}

func webhookDayPrefix(at time.Time) string {
	return fmt.Sprintf("%s/%s", webhookPrefix, at.UTC().Format("2006/01/02"))
}

func (s *objectStorageService) ArchiveWebhook(ctx context.Context, body []byte) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "StorageService.ArchiveWebhook")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	key := WebhookKey(s.clock(), uuid.NewString())
	if err := s.Upload(ctx, key, body, "application/json"); err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return key, nil
}

func (s *objectStorageService) ListWebhooks(ctx context.Context, day time.Time) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "StorageService.ListWebhooks")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	prefix := webhookDayPrefix(day) + "/"
	keys, err := s.client.List(ctx, s.bucket, prefix)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "list %s", prefix)
	}
	out := keys[:0]
	for _, key := range keys {
		if strings.HasSuffix(key, ".json") {
			out = append(out, key)
		}
	}
	span.LogFields(tracingLog.Int("count", len(out)))
	return out, nil
}
