package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/models"
)

type archiveStub struct {
	interfaces.StorageService
	bodies  map[string]string
	keys    []string
	listErr error
}

func (a *archiveStub) ListWebhooks(context.Context, time.Time) ([]string, error) {
	return a.keys, a.listErr
}

func (a *archiveStub) Download(_ context.Context, key string) ([]byte, error) {
	body, ok := a.bodies[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return []byte(body), nil
}

type scriptedDelivery struct {
	interfaces.DeliveryService
	outcomes map[string]func() (*dto.RecordResult, error)
	seen     []dto.IngestEvent
}

func (d *scriptedDelivery) Record(_ context.Context, event dto.IngestEvent) (*dto.RecordResult, error) {
	d.seen = append(d.seen, event)
	return d.outcomes[event.MessageID]()
}

func replayLogger() logger.Logger {
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()
	return log
}

func TestReplay_CountsOutcomes(t *testing.T) {
	archive := &archiveStub{
		keys: []string{"a.json", "b.json", "c.json", "d.json", "e.json"},
		bodies: map[string]string{
			"a.json": `{"event":"delivered","messageId":"<applied>"}`,
			"b.json": `{"event":"delivered","messageId":"<dup>"}`,
			"c.json": `{"event":"bounce","messageId":"<unknown>"}`,
			"d.json": `not json`,
			"e.json": `{"event":"teleported","messageId":"<bad>"}`,
		},
	}
	delivery := &scriptedDelivery{outcomes: map[string]func() (*dto.RecordResult, error){
		"<applied>": func() (*dto.RecordResult, error) {
			return &dto.RecordResult{Event: &models.DeliveryEvent{ID: "dev_1"}}, nil
		},
		"<dup>": func() (*dto.RecordResult, error) {
			return &dto.RecordResult{Duplicate: true}, nil
		},
		"<unknown>": func() (*dto.RecordResult, error) {
			return nil, governor_errors.NewNotFoundError("sent email", "<unknown>")
		},
		"<bad>": func() (*dto.RecordResult, error) {
			return nil, governor_errors.NewValidationError("eventType", "unknown event type")
		},
	}}

	day := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	summary, err := NewReplayer(replayLogger(), delivery, archive).Replay(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, &dto.ReplaySummary{
		Day:        "2026-03-02",
		Archived:   5,
		Applied:    1,
		Duplicates: 1,
		Unresolved: 1,
		Invalid:    2,
	}, summary)
	require.Len(t, delivery.seen, 4)
	for _, event := range delivery.seen {
		assert.Equal(t, "webhook", string(event.Source))
	}
}

func TestReplay_StopsOnStorageFailure(t *testing.T) {
	archive := &archiveStub{
		keys:   []string{"a.json", "b.json", "c.json"},
		bodies: map[string]string{"a.json": `{"event":"delivered","messageId":"<m1>"}`, "c.json": `{}`},
	}
	delivery := &scriptedDelivery{outcomes: map[string]func() (*dto.RecordResult, error){
		"<m1>": func() (*dto.RecordResult, error) { return &dto.RecordResult{}, nil },
	}}

	summary, err := NewReplayer(replayLogger(), delivery, archive).Replay(context.Background(), time.Now())
	require.Error(t, err)
	assert.Equal(t, 1, summary.Applied)
	assert.Len(t, delivery.seen, 1)
}

func TestReplay_RecordFailureAborts(t *testing.T) {
	archive := &archiveStub{
		keys:   []string{"a.json", "b.json"},
		bodies: map[string]string{"a.json": `{"event":"delivered","messageId":"<m1>"}`, "b.json": `{"event":"open","messageId":"<m2>"}`},
	}
	delivery := &scriptedDelivery{outcomes: map[string]func() (*dto.RecordResult, error){
		"<m1>": func() (*dto.RecordResult, error) {
			return nil, governor_errors.NewPersistenceError("record event", errors.New("conn refused"))
		},
	}}

	_, err := NewReplayer(replayLogger(), delivery, archive).Replay(context.Background(), time.Now())
	require.Error(t, err)
	assert.True(t, governor_errors.IsPersistence(err))
	assert.Len(t, delivery.seen, 1)
}

func TestReplay_WithoutArchive(t *testing.T) {
	_, err := NewReplayer(replayLogger(), &scriptedDelivery{}, nil).Replay(context.Background(), time.Now())
	assert.True(t, governor_errors.IsValidation(err))
}
