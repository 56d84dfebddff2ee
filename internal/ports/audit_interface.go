package ports

import (
	"context"
	"media-gateway/internal/model"
)

// AuditStore : best-effort persistence of media entries and their events
type AuditStore interface {
	AddMedia(ctx context.Context, entry model.EntryView) error
	AddEvent(ctx context.Context, event model.AuditEvent) error
}
