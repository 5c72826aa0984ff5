package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/tracing"
)

// Replayer re-ingests archived webhook bodies. Events already applied come
// back as duplicates, so a day can be replayed any number of times.
type Replayer struct {
	log      logger.Logger
	delivery interfaces.DeliveryService
	storage  interfaces.StorageService
}

func NewReplayer(log logger.Logger, delivery interfaces.DeliveryService, storage interfaces.StorageService) *Replayer {
	return &Replayer{
		log:      log,
		delivery: delivery,
		storage:  storage,
	}
}

// Replay stops at the first storage failure; unreadable or unresolvable
// bodies are counted and skipped.
func (r *Replayer) Replay(ctx context.Context, day time.Time) (*dto.ReplaySummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Replayer.Replay")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	summary := &dto.ReplaySummary{Day: day.UTC().Format(time.DateOnly)}
	if r.storage == nil {
		return summary, governor_errors.NewValidationError("storage", "webhook archive is not configured")
	}

	keys, err := r.storage.ListWebhooks(ctx, day)
	if err != nil {
		tracing.TraceErr(span, err)
		return summary, errors.Wrap(err, "list archived webhooks")
	}
	summary.Archived = len(keys)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		body, err := r.storage.Download(ctx, key)
		if err != nil {
			tracing.TraceErr(span, err)
			return summary, err
		}

		var payload dto.WebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			r.log.Warnf("skipping unreadable webhook %s: %v", key, err)
			summary.Invalid++
			continue
		}

		result, err := r.delivery.Record(ctx, payload.IngestEvent())
		switch {
		case err == nil && result.Duplicate:
			summary.Duplicates++
		case err == nil:
			summary.Applied++
		case governor_errors.IsNotFound(err):
			summary.Unresolved++
		case governor_errors.IsValidation(err):
			r.log.Warnf("skipping invalid webhook %s: %v", key, err)
			summary.Invalid++
		default:
			tracing.TraceErr(span, err)
			return summary, errors.Wrapf(err, "replay %s", key)
		}
	}

	tracing.LogObjectAsJson(span, "summary", summary)
	return summary, nil
}
