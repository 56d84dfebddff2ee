package ports

import "context"

// IndexArchiver : copies a persisted zone index to an external store
type IndexArchiver interface {
	ArchiveIndex(ctx context.Context, zone string, path string) error
}
