package storage_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"media-gateway/config"
	"media-gateway/internal/model"
	"media-gateway/internal/security"
	"media-gateway/internal/storage"
	"media-gateway/internal/util"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func md5Of(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestFileEntry_ConnectorAndLoad(t *testing.T) {
	zone, acldb := newTestZone(t, time.Minute, time.Minute)
	metadata := fileMetadata("data.csv")
	metadata.Extra = map[string]any{"origin": "sensor"}

	entry, _, err := zone.NewEntry(metadata, []byte("a;b"), manager(acldb), false, testDate)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"origin": "sensor"}, entry.View().Metadata)

	connector := entry.NewConnector()
	assert.Equal(t, metadata.MediaID, connector.Ref)
	assert.NotEqual(t, metadata.MediaID, connector.FileID)
	assert.Zero(t, connector.Count)
	assert.Empty(t, connector.Access)
	assert.Equal(t, "zone1", connector.Zone)
	assert.Equal(t, filepath.Join(zone.Dir(), metadata.MediaID+"_data.csv"), connector.Source)
	assert.Equal(t, "text/csv", connector.MimeType)
	assert.NotEqual(t, connector.FileID, entry.NewConnector().FileID)

	content, err := entry.Load(context.Background(), connector)
	require.NoError(t, err)
	assert.Equal(t, []byte("a;b"), content.Data)
	assert.Equal(t, "data.csv", content.Name)
	assert.Equal(t, "text/csv", content.MimeType)

	_, err = entry.Load(context.Background(), &model.Connector{})
	assert.ErrorIs(t, err, storage.ErrSourceMissing)

	require.NoError(t, os.Remove(connector.Source))
	_, err = entry.Load(context.Background(), connector)
	assert.ErrorIs(t, err, storage.ErrReadFailed)
	assert.Equal(t, http.StatusInternalServerError, storage.StatusCode(err))
}

func TestFileEntry_ContentHashDrift(t *testing.T) {
	zone, acldb := newTestZone(t, time.Minute, time.Minute)
	metadata := fileMetadata("drift.txt")

	entry, _, err := zone.NewEntry(metadata, []byte("before"), manager(acldb), false, testDate)
	require.NoError(t, err)

	report, err := entry.ContentHash(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Drifted())
	assert.Equal(t, md5Of("before"), report.Hash)

	path := filepath.Join(zone.Dir(), metadata.MediaID+"_drift.txt")
	require.NoError(t, os.WriteFile(path, []byte("tampered!"), 0o644))

	report, err = entry.ContentHash(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Drifted())
	assert.Equal(t, md5Of("tampered!"), report.Hash)
	assert.Equal(t, md5Of("before"), report.Previous)
	assert.Equal(t, int64(9), report.Size)
	assert.Equal(t, md5Of("tampered!"), entry.View().MD5)
}

func TestFileEntry_RawPath(t *testing.T) {
	acldb := newTestAclDB(t)
	zone, err := storage.NewZone(config.ZoneConfig{Name: "raw", Path: t.TempDir(), RawPath: true}, "", acldb, nil, util.DiscardLogger())
	require.NoError(t, err)
	_, err = zone.Init()
	require.NoError(t, err)

	metadata := fileMetadata("plain.csv")
	entry, _, err := zone.NewEntry(metadata, []byte("x"), manager(acldb), false, testDate)
	require.NoError(t, err)
	assert.Equal(t, "plain.csv", entry.View().BaseFile)
	assert.FileExists(t, filepath.Join(zone.Dir(), "plain.csv"))

	// an absolute name bypasses staging
	absolute := filepath.Join(t.TempDir(), "outside.csv")
	metadata = fileMetadata(absolute)
	entry, stagingID, err := zone.NewEntry(metadata, []byte("y"), producer(acldb), false, testDate)
	require.NoError(t, err)
	require.NotEmpty(t, stagingID)
	assert.FileExists(t, absolute)

	_, err = zone.Commit(manager(acldb), stagingID)
	require.NoError(t, err)
	assert.FileExists(t, absolute)
	assert.Equal(t, absolute, entry.View().BaseFile)
}

func TestURLEntry_LoadAndHash(t *testing.T) {
	body := "remote content"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(body))
	}))
	defer server.Close()

	zone, acldb := newTestZone(t, time.Minute, time.Minute)
	metadata := &model.Metadata{
		MediaID:    uuid.NewString(),
		MediaType:  model.MediaTypeIndirect,
		MediaName:  "remote",
		URL:        server.URL + "/media",
		ExpireDate: "1800000000",
	}

	entry, stagingID, err := zone.NewEntry(metadata, nil, manager(acldb), false, testDate)
	require.NoError(t, err)
	assert.Empty(t, stagingID)

	view := entry.View()
	assert.Equal(t, server.URL+"/media", view.URL)
	assert.Equal(t, model.URIListMimeType, view.MimeType)
	assert.Equal(t, "-", view.MD5)
	require.NotNil(t, view.Expire)
	assert.Equal(t, int64(1_800_000_000), view.Expire.Unix())
	assert.NoFileExists(t, filepath.Join(zone.Dir(), metadata.MediaID+"_remote"))

	connector := entry.NewConnector()
	assert.Equal(t, server.URL+"/media", connector.URL)
	content, err := entry.Load(context.Background(), connector)
	require.NoError(t, err)
	assert.Equal(t, body, string(content.Data))
	assert.Equal(t, "remote", content.Name)
	assert.Equal(t, "text/plain", content.MimeType)

	report, err := entry.ContentHash(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Drifted())
	assert.Equal(t, "-", report.Previous)
	assert.Equal(t, md5Of(body), report.Hash)
	assert.Equal(t, int64(len(body)), report.Size)

	report, err = entry.ContentHash(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Drifted())
}

func TestURLEntry_UnsupportedScheme(t *testing.T) {
	zone, acldb := newTestZone(t, time.Minute, time.Minute)
	metadata := &model.Metadata{MediaID: uuid.NewString(), MediaType: model.MediaTypeIndirect, URL: "ftp://example.org/file"}

	entry, _, err := zone.NewEntry(metadata, nil, manager(acldb), false, testDate)
	require.NoError(t, err)

	_, err = entry.Load(context.Background(), entry.NewConnector())
	assert.ErrorIs(t, err, storage.ErrUnsupportedScheme)
	assert.ErrorContains(t, err, "ftp:")
	assert.Equal(t, http.StatusBadRequest, storage.StatusCode(err))

	_, err = entry.ContentHash(context.Background())
	assert.ErrorIs(t, err, storage.ErrUnsupportedScheme)
}

func TestURLEntry_FetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	zone, acldb := newTestZone(t, time.Minute, time.Minute)
	metadata := &model.Metadata{MediaID: uuid.NewString(), MediaType: model.MediaTypeIndirect, URL: server.URL}
	entry, _, err := zone.NewEntry(metadata, nil, manager(acldb), false, testDate)
	require.NoError(t, err)

	_, err = entry.Load(context.Background(), entry.NewConnector())
	assert.ErrorIs(t, err, storage.ErrReadFailed)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{nil, http.StatusOK},
		{&security.AccessError{Code: security.CodeReadDenied}, http.StatusUnauthorized},
		{storage.ErrAuthRequired, http.StatusUnauthorized},
		{storage.ErrZoneNotFound, http.StatusNotFound},
		{storage.ErrMediaNotFound, http.StatusNotFound},
		{storage.ErrConnectorNotFound, http.StatusNotFound},
		{storage.ErrMissingMediaID, http.StatusBadRequest},
		{storage.ErrStagingExpired, http.StatusBadRequest},
		{storage.ErrWriteFailed, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, storage.StatusCode(tt.err), "%v", tt.err)
	}
}
