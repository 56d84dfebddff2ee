package repository_test

import (
	"context"
	"encoding/json"
	"media-gateway/config"
	"media-gateway/internal/model"
	"media-gateway/internal/repository"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*repository.RedisAuditRepository, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return repository.NewRedisAuditRepository(&config.RedisClient{Client: client}, ""), client, s
}

func TestRedisAuditRepository_AddMedia(t *testing.T) {
	repo, _, s := setupTestRedis(t)
	entry := sampleEntry()

	require.NoError(t, repo.AddMedia(context.Background(), entry))

	stored, err := s.Get("media:" + entry.UUID)
	require.NoError(t, err)
	var decoded model.EntryView
	require.NoError(t, json.Unmarshal([]byte(stored), &decoded))
	assert.Equal(t, entry.UUID, decoded.UUID)
	assert.Equal(t, entry.MD5, decoded.MD5)
	assert.Equal(t, entry.Date, decoded.Date)

	entry.MD5 = "-"
	require.NoError(t, repo.AddMedia(context.Background(), entry))
	stored, err = s.Get("media:" + entry.UUID)
	require.NoError(t, err)
	assert.Contains(t, stored, `"md5":"-"`)
}

func TestRedisAuditRepository_AddEvent(t *testing.T) {
	repo, client, _ := setupTestRedis(t)
	ctx := context.Background()

	for _, op := range []string{model.OpNewConn, model.OpAccConn} {
		require.NoError(t, repo.AddEvent(ctx, model.AuditEvent{
			Operation: op,
			UUID:      "conn-1",
			Ref:       "media-1",
			Zone:      "zone1",
			Date:      time.Unix(1_700_000_000, 0).UTC(),
		}))
	}

	messages, err := client.XRange(ctx, "media:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.OpNewConn, messages[0].Values["operation"])
	assert.Equal(t, model.OpAccConn, messages[1].Values["operation"])
	assert.Equal(t, "media-1", messages[1].Values["ref"])

	var event model.AuditEvent
	require.NoError(t, json.Unmarshal([]byte(messages[0].Values["payload"].(string)), &event))
	assert.Equal(t, "conn-1", event.UUID)
}

func TestRedisAuditRepository_Unavailable(t *testing.T) {
	repo, _, s := setupTestRedis(t)
	s.Close()

	assert.Error(t, repo.AddMedia(context.Background(), sampleEntry()))
	assert.Error(t, repo.AddEvent(context.Background(), model.AuditEvent{Operation: model.OpDelConn}))
}
