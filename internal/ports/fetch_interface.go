package ports

import "context"

// ContentFetcher : outbound retrieval of URL-backed media, returns the body and its content type
type ContentFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, string, error)
}
