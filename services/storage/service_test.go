package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailgovernor/config"
)

type memoryClient struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemoryClient() *memoryClient {
	return &memoryClient{objects: map[string][]byte{}, types: map[string]string{}}
}

func (c *memoryClient) Put(_ context.Context, bucket, key string, body []byte, contentType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.objects[bucket+"/"+key] = append([]byte(nil), body...)
	c.types[bucket+"/"+key] = contentType
	return nil
}

func (c *memoryClient) Get(_ context.Context, bucket, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	body, ok := c.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return body, nil
}

func (c *memoryClient) Delete(_ context.Context, bucket, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, bucket+"/"+key)
	return c.err
}

func (c *memoryClient) List(_ context.Context, bucket, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	var keys []string
	for k := range c.objects {
		key := strings.TrimPrefix(k, bucket+"/")
		if key != k && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func TestWebhookKey(t *testing.T) {
	at := time.Date(2026, 3, 7, 23, 30, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "webhooks/2026/03/07/abc.json", WebhookKey(at, "abc"))
	assert.Equal(t, "webhooks/2026/03/08/abc.json", WebhookKey(at.Add(2*time.Hour), "abc"))
}

func TestArchiveWebhook_RoundTrip(t *testing.T) {
	client := newMemoryClient()
	svc := NewStorageService(client, "archive").(*objectStorageService)
	day := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return day }

	body := []byte(`{"event":"bounce","messageId":"m1"}`)
	key, err := svc.ArchiveWebhook(context.Background(), body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "webhooks/2026/03/07/"))
	assert.Equal(t, "application/json", client.types["archive/"+key])

	stored, err := svc.Download(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, body, stored)

	require.NoError(t, svc.Upload(context.Background(), "webhooks/2026/03/07/notes.txt", []byte("x"), "text/plain"))
	keys, err := svc.ListWebhooks(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)

	keys, err = svc.ListWebhooks(context.Background(), day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, svc.Delete(context.Background(), key))
	_, err = svc.Download(context.Background(), key)
	assert.Error(t, err)
}

func TestArchiveWebhook_ClientFailure(t *testing.T) {
	client := newMemoryClient()
	client.err = errors.New("403 forbidden")
	svc := NewStorageService(client, "archive")

	_, err := svc.ArchiveWebhook(context.Background(), []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403 forbidden")
}

func TestNewR2StorageService_DisabledWithoutCredentials(t *testing.T) {
	svc, err := NewR2StorageService(&config.R2StorageConfig{WebhookBucket: "b"})
	require.NoError(t, err)
	assert.Nil(t, svc)
}
