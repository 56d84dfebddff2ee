package storage

import (
	"errors"
	"media-gateway/internal/security"
	"net/http"
)

var (
	ErrMissingMetadata      = errors.New("missing metadata")
	ErrMissingMediaType     = errors.New("missing media type")
	ErrMissingMediaID       = errors.New("missing media UUID")
	ErrMissingURL           = errors.New("missing media URL")
	ErrInvalidMetadata      = errors.New("invalid meta-data")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrAuthRequired         = errors.New("authentication required")
	ErrAccessDenied         = errors.New("access denied")
	ErrStagingNotFound      = errors.New("could not commit file: entry not found")
	ErrStagingExpired       = errors.New("could not commit file: time exceeded")
	ErrEntryNotFound        = errors.New("entry not found")
	ErrZoneNotFound         = errors.New("zone not found")
	ErrMediaNotFound        = errors.New("media not found")
	ErrConnectorNotFound    = errors.New("media connector not found")
	ErrNotReady             = errors.New("DB not ready")
	ErrSourceMissing        = errors.New("loading media: source missing in context")
	ErrUnsupportedScheme    = errors.New("loading URL media: protocol not supported")
	ErrReadFailed           = errors.New("loading media: file error")
	ErrWriteFailed          = errors.New("could not write file")
	ErrIndexFailed          = errors.New("could not save index")
)

// StatusCode : the HTTP status an operation error is reported with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case security.CodeOf(err) != security.CodeNone,
		errors.Is(err, ErrAccessDenied),
		errors.Is(err, ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrEntryNotFound),
		errors.Is(err, ErrZoneNotFound),
		errors.Is(err, ErrMediaNotFound),
		errors.Is(err, ErrConnectorNotFound),
		errors.Is(err, ErrSourceMissing):
		return http.StatusNotFound
	case errors.Is(err, ErrMissingMetadata),
		errors.Is(err, ErrMissingMediaType),
		errors.Is(err, ErrMissingMediaID),
		errors.Is(err, ErrMissingURL),
		errors.Is(err, ErrInvalidMetadata),
		errors.Is(err, ErrUnsupportedMediaType),
		errors.Is(err, ErrStagingNotFound),
		errors.Is(err, ErrStagingExpired),
		errors.Is(err, ErrNotReady),
		errors.Is(err, ErrUnsupportedScheme):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
