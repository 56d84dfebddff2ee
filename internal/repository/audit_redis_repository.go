package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"media-gateway/config"
	"media-gateway/internal/model"
	"media-gateway/internal/util"

	"github.com/redis/go-redis/v9"
)

const defaultEventStream = "media:events"

// RedisAuditRepository : entry documents as plain keys, events on a stream
type RedisAuditRepository struct {
	client *config.RedisClient
	stream string
}

func NewRedisAuditRepository(rdb *config.RedisClient, stream string) *RedisAuditRepository {
	if stream == "" {
		stream = defaultEventStream
	}
	return &RedisAuditRepository{rdb, stream}
}

func (r *RedisAuditRepository) AddMedia(ctx context.Context, entry model.EntryView) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return util.LogError("[RedisAuditRepository] could not serialize entry", err)
	}

	cmd := r.client.Client.Set(ctx, r.key(entry.UUID), data, 0)
	if err = cmd.Err(); err != nil {
		return util.LogError("[RedisAuditRepository] could not store entry", err)
	}
	if cmd.Val() != "OK" {
		return fmt.Errorf("unexpected Redis reply: %s", cmd.Val())
	}

	return nil
}

func (r *RedisAuditRepository) AddEvent(ctx context.Context, event model.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return util.LogError("[RedisAuditRepository] could not serialize event", err)
	}

	err = r.client.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"operation": event.Operation,
			"uuid":      event.UUID,
			"ref":       event.Ref,
			"zone":      event.Zone,
			"payload":   string(payload),
		},
	}).Err()
	if err != nil {
		return util.LogError("[RedisAuditRepository] could not append event", err)
	}
	return nil
}

func (r *RedisAuditRepository) key(uuid string) string {
	return fmt.Sprintf("media:%s", uuid)
}
