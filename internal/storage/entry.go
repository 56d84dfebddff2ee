package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"maps"
	"media-gateway/internal/model"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	defaultMediaName = "media"
	binaryCharset    = "charset=binary"
	uriListCharset   = "charset=utf-8"
	noHash           = "-"
)

// Entry : a media registered in a zone, either a FileEntry or a URLEntry.
type Entry interface {
	ID() string
	Zone() *Zone
	View() model.EntryView
	// NewConnector : a fresh access descriptor, not kept by the entry.
	NewConnector() *model.Connector
	Load(ctx context.Context, connector *model.Connector) (*Content, error)
	ContentHash(ctx context.Context) (HashReport, error)

	storageName() string
	record() indexRecord
	clear()
	commit()
	destroy(staged bool)
}

// Content : media bytes as handed to a client.
type Content struct {
	Data     []byte
	Name     string
	MimeType string
}

// HashReport : a recomputed content digest next to the one stored before.
type HashReport struct {
	Hash     string
	Previous string
	Size     int64
}

func (h HashReport) Drifted() bool {
	return h.Hash != h.Previous
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// detectType : the mime type and charset parameter sniffed from content.
func detectType(content []byte) (string, string) {
	base, params, _ := strings.Cut(mimetype.Detect(content).String(), ";")
	charset := strings.TrimSpace(params)
	if charset == "" {
		charset = binaryCharset
	}
	return strings.TrimSpace(base), charset
}

type FileEntry struct {
	UUID     string
	Filename string
	MimeType string
	Encoding string
	Date     time.Time
	Metadata map[string]any

	zone    *Zone
	context model.ContextView

	mu   sync.Mutex
	md5  string
	size int64
}

func newFileEntry(zone *Zone, metadata *model.Metadata, content []byte, view model.ContextView, date time.Time) *FileEntry {
	entry := &FileEntry{
		UUID:     metadata.MediaID,
		Filename: metadata.MediaName,
		MimeType: metadata.FileType,
		Encoding: metadata.Charset,
		Date:     date,
		Metadata: maps.Clone(metadata.Extra),
		zone:     zone,
		context:  view,
		md5:      md5Hex(content),
		size:     metadata.FileSize,
	}
	if entry.Filename == "" {
		entry.Filename = defaultMediaName
	}
	if !zone.rawPath {
		entry.Filename = filepath.Base(entry.Filename)
	}
	entry.Filename = indexSafe(entry.Filename)

	if entry.MimeType == "" || entry.Encoding == "" {
		mimeType, charset := detectType(content)
		if entry.MimeType == "" {
			entry.MimeType = mimeType
		}
		if entry.Encoding == "" {
			entry.Encoding = charset
		}
	}
	if entry.size == 0 {
		entry.size = int64(len(content))
	}
	return entry
}

func fileEntryFromRecord(zone *Zone, record indexRecord, view model.ContextView) *FileEntry {
	return &FileEntry{
		UUID:     record.UUID,
		Filename: record.Name,
		MimeType: record.MimeType,
		Encoding: record.Encoding,
		Date:     record.Date,
		zone:     zone,
		context:  view,
		md5:      record.Source,
		size:     record.Last,
	}
}

func (e *FileEntry) ID() string {
	return e.UUID
}

func (e *FileEntry) Zone() *Zone {
	return e.zone
}

func (e *FileEntry) storageName() string {
	if e.zone.rawPath {
		return e.Filename
	}
	return e.UUID + "_" + e.Filename
}

// Path : the durable location of the content.
func (e *FileEntry) Path() string {
	return e.zone.filePath(e.storageName(), false)
}

func (e *FileEntry) Checksum() (string, int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.md5, e.size
}

func (e *FileEntry) record() indexRecord {
	hash, size := e.Checksum()
	return indexRecord{
		Source:   hash,
		UUID:     e.UUID,
		Name:     e.Filename,
		MimeType: e.MimeType,
		Encoding: e.Encoding,
		Date:     e.Date,
		Last:     size,
	}
}

func (e *FileEntry) View() model.EntryView {
	hash, size := e.Checksum()
	return model.EntryView{
		UUID:     e.UUID,
		Zone:     e.zone.name,
		Context:  e.context,
		Filename: e.Filename,
		MimeType: e.MimeType,
		Encoding: e.Encoding,
		MD5:      hash,
		Size:     size,
		Date:     e.Date,
		BaseFile: e.storageName(),
		Metadata: e.Metadata,
	}
}

func (e *FileEntry) NewConnector() *model.Connector {
	return &model.Connector{
		Ref:      e.UUID,
		FileID:   uuid.NewString(),
		Access:   []model.AccessEvent{},
		Created:  time.Now(),
		Zone:     e.zone.name,
		Source:   e.Path(),
		Filename: e.Filename,
		MimeType: e.MimeType,
		Timeout:  e.zone.connectorTimeout,
	}
}

func (e *FileEntry) Load(_ context.Context, connector *model.Connector) (*Content, error) {
	if connector == nil || connector.Source == "" {
		return nil, ErrSourceMissing
	}
	data, err := os.ReadFile(connector.Source)
	if err != nil {
		e.zone.logger.Error("critical failure: could not load", slog.String("path", connector.Source), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	return &Content{Data: data, Name: connector.Filename, MimeType: connector.MimeType}, nil
}

func (e *FileEntry) ContentHash(_ context.Context) (HashReport, error) {
	path := e.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		e.zone.logger.Error("critical failure: could not load", slog.String("path", path), slog.Any("error", err))
		return HashReport{}, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	return e.updateHash(md5Hex(data), int64(len(data))), nil
}

func (e *FileEntry) updateHash(hash string, size int64) HashReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	report := HashReport{Hash: hash, Previous: e.md5, Size: e.size}
	if hash != e.md5 {
		e.md5 = hash
		e.size = size
		report.Size = size
	}
	return report
}

// clear : an absolute raw path is staged in place, so the content itself goes.
func (e *FileEntry) clear() {
	staged := e.zone.filePath(e.storageName(), true)
	if err := os.Remove(staged); err != nil {
		e.zone.logger.Error("critical failure: could not remove", slog.String("path", staged), slog.Any("error", err))
	}
	e.zone.logger.Info(fmt.Sprintf("File [%s]:%s marked not confirmed", e.UUID, e.Filename))
}

func (e *FileEntry) commit() {
	name := e.storageName()
	durable := e.zone.filePath(name, false)
	if !filepath.IsAbs(name) {
		staged := e.zone.filePath(name, true)
		if err := os.Rename(staged, durable); err != nil {
			e.zone.logger.Error("critical failure: could not move",
				slog.String("from", staged), slog.String("to", durable), slog.Any("error", err))
		}
	}
	e.zone.logger.Info(fmt.Sprintf("File [%s]:%s committed", e.UUID, durable))
}

func (e *FileEntry) destroy(staged bool) {
	name := e.storageName()
	if !staged && !filepath.IsAbs(name) {
		path := e.zone.filePath(name, false)
		if err := os.Remove(path); err != nil {
			e.zone.logger.Error("critical failure: could not remove", slog.String("path", path), slog.Any("error", err))
		}
	}
	if staged {
		e.zone.logger.Info(fmt.Sprintf("File [%s]:%s destroyed", e.UUID, e.Filename))
	}
}

type URLEntry struct {
	UUID     string
	Name     string
	URL      string
	Date     time.Time
	Expire   time.Time
	Metadata map[string]any

	zone    *Zone
	context model.ContextView

	mu   sync.Mutex
	md5  string
	size int64
}

func newURLEntry(zone *Zone, metadata *model.Metadata, view model.ContextView, date time.Time) (*URLEntry, error) {
	expire, err := metadata.ExpireTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	entry := &URLEntry{
		UUID:     metadata.MediaID,
		Name:     indexSafe(metadata.MediaName),
		URL:      metadata.URL,
		Date:     date,
		Expire:   expire,
		Metadata: maps.Clone(metadata.Extra),
		zone:     zone,
		context:  view,
		md5:      noHash,
	}
	if entry.Name == "" {
		entry.Name = defaultMediaName
	}
	return entry, nil
}

func urlEntryFromRecord(zone *Zone, record indexRecord, view model.ContextView) *URLEntry {
	entry := &URLEntry{
		UUID:    record.UUID,
		Name:    record.Name,
		URL:     record.Source,
		Date:    record.Date,
		zone:    zone,
		context: view,
		md5:     noHash,
	}
	if record.Last != 0 {
		entry.Expire = time.Unix(record.Last, 0)
	}
	return entry
}

func (e *URLEntry) ID() string {
	return e.UUID
}

func (e *URLEntry) Zone() *Zone {
	return e.zone
}

func (e *URLEntry) storageName() string {
	return e.URL
}

func (e *URLEntry) record() indexRecord {
	return indexRecord{
		Source:   e.URL,
		UUID:     e.UUID,
		Name:     e.Name,
		MimeType: model.URIListMimeType,
		Encoding: uriListCharset,
		Date:     e.Date,
		Last:     epoch(e.Expire),
	}
}

func (e *URLEntry) View() model.EntryView {
	e.mu.Lock()
	hash, size := e.md5, e.size
	e.mu.Unlock()

	view := model.EntryView{
		UUID:     e.UUID,
		Zone:     e.zone.name,
		Context:  e.context,
		Name:     e.Name,
		URL:      e.URL,
		MimeType: model.URIListMimeType,
		Encoding: uriListCharset,
		MD5:      hash,
		Size:     size,
		Date:     e.Date,
		BaseFile: e.URL,
		Metadata: e.Metadata,
	}
	if !e.Expire.IsZero() {
		expire := e.Expire
		view.Expire = &expire
	}
	return view
}

func (e *URLEntry) NewConnector() *model.Connector {
	return &model.Connector{
		Ref:      e.UUID,
		FileID:   uuid.NewString(),
		Access:   []model.AccessEvent{},
		Created:  time.Now(),
		Zone:     e.zone.name,
		Source:   e.URL,
		URL:      e.URL,
		Filename: e.Name,
		Timeout:  e.zone.connectorTimeout,
	}
}

func (e *URLEntry) Load(ctx context.Context, connector *model.Connector) (*Content, error) {
	if connector == nil || connector.URL == "" {
		return nil, fmt.Errorf("loading URL media: %w", ErrMissingURL)
	}
	data, contentType, err := e.fetch(ctx, connector.URL)
	if err != nil {
		return nil, err
	}
	return &Content{Data: data, Name: connector.Filename, MimeType: contentType}, nil
}

func (e *URLEntry) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	source, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	switch source.Scheme {
	case "http", "https":
	default:
		return nil, "", fmt.Errorf("%w (%s:)", ErrUnsupportedScheme, source.Scheme)
	}

	data, contentType, err := e.zone.fetcher.Fetch(ctx, source.String())
	if err != nil {
		e.zone.logger.Error("critical failure: could not load", slog.String("url", source.String()), slog.Any("error", err))
		return nil, "", fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	if contentType == "" {
		contentType = binaryCharset
	}
	return data, contentType, nil
}

func (e *URLEntry) ContentHash(ctx context.Context) (HashReport, error) {
	data, _, err := e.fetch(ctx, e.URL)
	if err != nil {
		return HashReport{}, err
	}

	hash := md5Hex(data)
	e.mu.Lock()
	defer e.mu.Unlock()
	report := HashReport{Hash: hash, Previous: e.md5, Size: e.size}
	if hash != e.md5 {
		e.md5 = hash
		e.size = int64(len(data))
		report.Size = e.size
	}
	return report, nil
}

func (e *URLEntry) clear() {
	e.zone.logger.Info(fmt.Sprintf("URL [%s]:%s marked not confirmed", e.UUID, e.URL))
}

func (e *URLEntry) commit() {
	e.zone.logger.Info(fmt.Sprintf("URL [%s]:%s committed", e.UUID, e.URL))
}

func (e *URLEntry) destroy(staged bool) {
	if staged {
		e.zone.logger.Info(fmt.Sprintf("URL [%s]:%s destroyed", e.UUID, e.URL))
	}
}
