package repository

import (
	"context"
	"encoding/json"
	"media-gateway/config"
	"media-gateway/internal/model"
	"media-gateway/internal/util"
)

const auditSchema = `
	CREATE TABLE IF NOT EXISTS media_entries (
		uuid        TEXT PRIMARY KEY,
		zone        TEXT NOT NULL,
		filename    TEXT NOT NULL,
		mime_type   TEXT NOT NULL,
		md5         TEXT NOT NULL,
		size_bytes  BIGINT NOT NULL,
		document    JSONB NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS media_events (
		id          BIGSERIAL PRIMARY KEY,
		operation   TEXT NOT NULL,
		uuid        TEXT NOT NULL,
		ref         TEXT NOT NULL,
		zone        TEXT NOT NULL,
		context     JSONB,
		value       JSONB,
		created_at  TIMESTAMPTZ NOT NULL
	);
`

type PostgresAuditRepository struct {
	*config.Database
}

func NewPostgresAuditRepository(database *config.Database) *PostgresAuditRepository {
	return &PostgresAuditRepository{database}
}

// EnsureSchema : creates the audit tables when missing
func (r *PostgresAuditRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.ExecContext(ctx, auditSchema); err != nil {
		return util.LogError("[PostgresAuditRepository] could not create schema", err)
	}
	return nil
}

// AddMedia : inserts or refreshes the entry document
func (r *PostgresAuditRepository) AddMedia(ctx context.Context, entry model.EntryView) error {
	document, err := json.Marshal(entry)
	if err != nil {
		return util.LogError("[PostgresAuditRepository] could not serialize entry", err)
	}

	name := entry.Filename
	if name == "" {
		name = entry.Name
	}

	query := `
		INSERT INTO media_entries (uuid, zone, filename, mime_type, md5, size_bytes, document, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (uuid) DO UPDATE
		SET zone = EXCLUDED.zone, filename = EXCLUDED.filename, mime_type = EXCLUDED.mime_type,
			md5 = EXCLUDED.md5, size_bytes = EXCLUDED.size_bytes, document = EXCLUDED.document,
			updated_at = NOW()
	`
	_, err = r.ExecContext(ctx, query,
		entry.UUID,
		entry.Zone,
		name,
		entry.MimeType,
		entry.MD5,
		entry.Size,
		document)

	return err
}

// AddEvent : appends one operation record
func (r *PostgresAuditRepository) AddEvent(ctx context.Context, event model.AuditEvent) error {
	contextJSON, err := nullableJSON(event.Context)
	if err != nil {
		return util.LogError("[PostgresAuditRepository] could not serialize event context", err)
	}
	valueJSON, err := nullableJSON(event.Value)
	if err != nil {
		return util.LogError("[PostgresAuditRepository] could not serialize event value", err)
	}

	_, err = r.ExecContext(ctx, `
		INSERT INTO media_events (operation, uuid, ref, zone, context, value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.Operation, event.UUID, event.Ref, event.Zone, contextJSON, valueJSON, event.Date)

	return err
}

// nullableJSON : SQL NULL for a missing value
func nullableJSON(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}
