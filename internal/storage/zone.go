package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"media-gateway/config"
	"media-gateway/internal/metrics"
	"media-gateway/internal/model"
	"media-gateway/internal/ports"
	"media-gateway/internal/security"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	StagedPrefix          = ".staged_"
	defaultStagingTimeout = 5 * time.Second
	defaultDestroyTimeout = 10 * time.Second
)

const (
	opZoneAdd    = "zone_add"
	opZoneCommit = "zone_commit"
	opZoneDelete = "zone_delete"
	opZoneList   = "zone_list"
	opIndexLoad  = "csv_import"
)

// zoneAcl : every zone is owned by admin and the producer group.
var zoneAcl = config.AclConfig{
	Core:   []string{config.DefaultAdminName, "producer", "rwx", "rw-", "---"},
	Groups: map[string]string{"auth": "rwx", "admin": "rwx"},
}

// StagingState : where a staging id currently stands.
type StagingState int

const (
	StateUnknown StagingState = iota
	StateStaged
	StateTrashed
)

type stagingRecord struct {
	id      string
	entry   Entry
	created time.Time
	timer   *time.Timer
}

// Zone : a storage partition with its own directory, index and ACL.
type Zone struct {
	name             string
	dir              string
	index            string
	rawPath          bool
	stagingTimeout   time.Duration
	destroyTimeout   time.Duration
	connectorTimeout time.Duration

	acldb    *security.AclDB
	acl      *security.Acl
	fetcher  ports.ContentFetcher
	logger   *slog.Logger
	operator *security.User

	mu      sync.Mutex
	entries map[string]Entry
	staging map[string]*stagingRecord
	trash   map[string]*stagingRecord

	locks   keyedMutex
	indexMu sync.Mutex
}

func NewZone(cfg config.ZoneConfig, mediaDir string, acldb *security.AclDB, fetcher ports.ContentFetcher, logger *slog.Logger) (*Zone, error) {
	acl, err := acldb.NewAcl(zoneAcl)
	if err != nil {
		return nil, fmt.Errorf("zone %s: %w", cfg.Name, err)
	}
	if fetcher == nil {
		fetcher = NewHTTPFetcher(0)
	}

	zone := &Zone{
		name:             cfg.Name,
		dir:              cfg.Path,
		index:            cfg.Index,
		rawPath:          cfg.RawPath,
		stagingTimeout:   cfg.StagingTimeout,
		destroyTimeout:   cfg.DestroyTimeout,
		connectorTimeout: cfg.ConnectorTimeout,
		acldb:            acldb,
		acl:              acl,
		fetcher:          fetcher,
		logger:           logger.With(slog.String("component", "zone"), slog.String("zone", cfg.Name)),
		entries:          make(map[string]Entry),
		staging:          make(map[string]*stagingRecord),
		trash:            make(map[string]*stagingRecord),
	}
	if zone.dir == "" {
		zone.dir = filepath.Join(mediaDir, cfg.Name)
	}
	if zone.index == "" {
		zone.index = config.DefaultIndexFile
	}
	if zone.stagingTimeout <= 0 {
		zone.stagingTimeout = defaultStagingTimeout
	}
	if zone.destroyTimeout <= 0 {
		zone.destroyTimeout = defaultDestroyTimeout
	}
	return zone, nil
}

func (z *Zone) Name() string {
	return z.name
}

func (z *Zone) Dir() string {
	return z.dir
}

// ConnectorTimeout : the zone override of the connector lifetime, zero when unset.
func (z *Zone) ConnectorTimeout() time.Duration {
	return z.connectorTimeout
}

func (z *Zone) IndexPath() string {
	return z.filePath(z.index, false)
}

func (z *Zone) filePath(name string, staged bool) string {
	if filepath.IsAbs(name) {
		return name
	}
	if staged {
		name = StagedPrefix + name
	}
	return filepath.Join(z.dir, name)
}

// Init : creates the zone directory and replays its index. Lines that cannot
// be parsed or that the operator may not write are logged and skipped.
func (z *Zone) Init() ([]Entry, error) {
	if err := os.MkdirAll(z.dir, 0o755); err != nil {
		return nil, fmt.Errorf("[%s]: could not create storage dir '%s': %w", z.name, z.dir, err)
	}

	z.operator = z.acldb.LookupUser(config.DefaultAdminName)
	if z.operator == nil {
		z.logger.Error("operator not initialized", slog.String("user", config.DefaultAdminName))
	}
	z.logger.Debug("zone ready", slog.String("dir", z.dir), slog.String("index", z.index))

	content, err := os.ReadFile(z.IndexPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not open index file %s: %w", z.IndexPath(), err)
	}

	var loaded []Entry
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, err := z.entryFromIndex(line)
		if err != nil {
			z.logger.Error("invalid meta-data", slog.String("line", line), slog.Any("error", err))
			continue
		}
		loaded = append(loaded, entry)
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("could not read index file %s: %w", z.IndexPath(), err)
	}

	z.logger.Info("index loaded", slog.Int("entries", len(loaded)))
	return loaded, nil
}

func (z *Zone) operatorStatus(operation string) *security.AccessStatus {
	status := z.acldb.ErrorStatus(security.CodeInvalidCredentials)
	if z.operator != nil {
		status = z.acldb.UserStatus(z.operator, "-")
	}
	status.SetContext(security.NewZoneContext(z.operator, operation, "", z.logger))
	return status
}

func (z *Zone) entryFromIndex(line string) (Entry, error) {
	record, err := parseIndexLine(line)
	if err != nil {
		return nil, err
	}
	if err := ValidMediaID(record.UUID); err != nil {
		return nil, err
	}

	status := z.operatorStatus(opZoneAdd)
	status.SetAcl(z.acl)
	if err := status.Refused(security.WriteMask); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}
	view := status.ContextView()

	var entry Entry
	if record.isURL() {
		entry = urlEntryFromRecord(z, record, view)
	} else {
		entry = fileEntryFromRecord(z, record, view)
	}

	z.mu.Lock()
	z.entries[entry.ID()] = entry
	count := len(z.entries)
	z.mu.Unlock()
	metrics.ZoneEntries.WithLabelValues(z.name).Set(float64(count))
	return entry, nil
}

// ValidMediaID : media ids name files and index lines, only UUIDs are accepted.
func ValidMediaID(id string) error {
	if id == "" {
		return ErrMissingMediaID
	}
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != strings.ToLower(id) {
		return fmt.Errorf("%w: media_id %q is not a UUID", ErrInvalidMetadata, id)
	}
	return nil
}

// authorize : binds a zone context to status for the decision; callers put
// the request context back once the operation is done.
func (z *Zone) authorize(status *security.AccessStatus, operation string, mode security.Mask) (*security.ZoneContext, error) {
	ctx := security.NewZoneContext(status.User, operation, status.ContextView().IP, z.logger)
	status.SetContext(ctx)
	status.SetAcl(z.acl)
	if err := status.Refused(mode); err != nil {
		return ctx, fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}
	return ctx, nil
}

// NewEntry : registers a media described by metadata. A requester without
// execute access gets a staged entry and its staging id; append mode skips
// the commit gate and appends to the stored file.
func (z *Zone) NewEntry(metadata *model.Metadata, content []byte, status *security.AccessStatus, appendMode bool, date time.Time) (Entry, string, error) {
	if metadata == nil {
		return nil, "", ErrMissingMetadata
	}
	if metadata.MediaType == "" {
		return nil, "", ErrMissingMediaType
	}
	if err := ValidMediaID(metadata.MediaID); err != nil {
		return nil, "", err
	}
	if status.User == nil {
		return nil, "", ErrAuthRequired
	}

	defer status.SetContext(status.Context())
	ctx, err := z.authorize(status, opZoneAdd, security.WriteMask)
	if err != nil {
		return nil, "", err
	}
	needValidation := false
	if !appendMode {
		ctx.SetOperation(opZoneCommit)
		needValidation = status.Refused(security.ExecMask) != nil
	}
	view := ctx.View()

	unlock := z.locks.Lock(metadata.MediaID)
	defer unlock()

	var entry Entry
	switch metadata.MediaType {
	case model.MediaTypeFile:
		file := newFileEntry(z, metadata, content, view, date)
		if err := z.write(file, content, needValidation, appendMode); err != nil {
			return nil, "", err
		}
		entry = file
	case model.MediaTypeIndirect:
		if metadata.URL == "" {
			return nil, "", ErrMissingURL
		}
		link, err := newURLEntry(z, metadata, view, date)
		if err != nil {
			return nil, "", err
		}
		entry = link
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedMediaType, metadata.MediaType)
	}

	if needValidation {
		return entry, z.stage(entry), nil
	}
	if err := z.record(entry); err != nil {
		return entry, "", err
	}
	return entry, "", nil
}

func (z *Zone) write(entry *FileEntry, content []byte, staged, appendMode bool) error {
	path := z.filePath(entry.storageName(), staged)
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}
	if _, err := file.Write(content); err != nil {
		file.Close()
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}
	z.logger.Debug("saved", slog.String("path", path), slog.Int("bytes", len(content)))
	return nil
}

func (z *Zone) record(entry Entry) error {
	z.mu.Lock()
	z.entries[entry.ID()] = entry
	count := len(z.entries)
	z.mu.Unlock()
	metrics.ZoneEntries.WithLabelValues(z.name).Set(float64(count))
	return z.saveIndex()
}

// stage : registers a pending entry. Past destroyTimeout it moves to the
// trash and its staged content is cleared; past a further stagingTimeout it
// is destroyed.
func (z *Zone) stage(entry Entry) string {
	id := uuid.NewString()
	record := &stagingRecord{id: id, entry: entry, created: time.Now()}

	z.mu.Lock()
	z.staging[id] = record
	record.timer = time.AfterFunc(z.destroyTimeout, func() { z.discard(id) })
	z.mu.Unlock()

	metrics.StagingTransitions.WithLabelValues(z.name, metrics.TransitionStaged).Inc()
	z.logger.Info("entry staged", slog.String("uuid", entry.ID()), slog.String("staging_id", id))
	return id
}

func (z *Zone) discard(id string) {
	z.mu.Lock()
	record, ok := z.staging[id]
	if !ok {
		z.mu.Unlock()
		return
	}
	delete(z.staging, id)
	z.trash[id] = record
	record.timer = time.AfterFunc(z.stagingTimeout, func() { z.destroyStaged(id) })
	z.mu.Unlock()

	unlock := z.locks.Lock(record.entry.ID())
	record.entry.clear()
	unlock()
	metrics.StagingTransitions.WithLabelValues(z.name, metrics.TransitionTrashed).Inc()
}

func (z *Zone) destroyStaged(id string) {
	z.mu.Lock()
	record, ok := z.trash[id]
	if ok {
		delete(z.trash, id)
	}
	z.mu.Unlock()
	if !ok {
		return
	}

	record.entry.destroy(true)
	metrics.StagingTransitions.WithLabelValues(z.name, metrics.TransitionDestroyed).Inc()
}

func (z *Zone) StagingState(id string) StagingState {
	z.mu.Lock()
	defer z.mu.Unlock()
	if _, ok := z.staging[id]; ok {
		return StateStaged
	}
	if _, ok := z.trash[id]; ok {
		return StateTrashed
	}
	return StateUnknown
}

// Commit : validates a staged entry and makes it durable.
func (z *Zone) Commit(status *security.AccessStatus, stagingID string) (Entry, error) {
	defer status.SetContext(status.Context())
	if _, err := z.authorize(status, opZoneCommit, security.ExecMask); err != nil {
		return nil, err
	}

	z.mu.Lock()
	record, ok := z.staging[stagingID]
	if !ok {
		_, trashed := z.trash[stagingID]
		z.mu.Unlock()
		if trashed {
			return nil, ErrStagingExpired
		}
		return nil, ErrStagingNotFound
	}
	delete(z.staging, stagingID)
	record.timer.Stop()
	z.mu.Unlock()

	unlock := z.locks.Lock(record.entry.ID())
	record.entry.commit()
	unlock()
	metrics.StagingTransitions.WithLabelValues(z.name, metrics.TransitionCommitted).Inc()

	if err := z.record(record.entry); err != nil {
		return record.entry, err
	}
	return record.entry, nil
}

// Delete : removes a durable entry and its content.
func (z *Zone) Delete(status *security.AccessStatus, id string) (Entry, error) {
	defer status.SetContext(status.Context())
	if _, err := z.authorize(status, opZoneDelete, security.DeleteMask); err != nil {
		return nil, err
	}

	unlock := z.locks.Lock(id)
	defer unlock()

	z.mu.Lock()
	entry, ok := z.entries[id]
	if ok {
		delete(z.entries, id)
	}
	count := len(z.entries)
	z.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("could not delete file: %w", ErrEntryNotFound)
	}
	metrics.ZoneEntries.WithLabelValues(z.name).Set(float64(count))

	entry.destroy(false)
	if err := z.saveIndex(); err != nil {
		return entry, err
	}
	return entry, nil
}

// List : the public view of every durable entry, ordered by uuid.
func (z *Zone) List(status *security.AccessStatus) ([]model.EntryView, error) {
	defer status.SetContext(status.Context())
	if _, err := z.authorize(status, opZoneList, security.ReadMask); err != nil {
		return nil, err
	}

	entries := z.snapshot()
	views := make([]model.EntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, entry.View())
	}
	return views, nil
}

func (z *Zone) Entry(id string) (Entry, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	entry, ok := z.entries[id]
	return entry, ok
}

func (z *Zone) snapshot() []Entry {
	z.mu.Lock()
	entries := make([]Entry, 0, len(z.entries))
	for _, entry := range z.entries {
		entries = append(entries, entry)
	}
	z.mu.Unlock()

	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.ID(), b.ID())
	})
	return entries
}

// saveIndex rewrites the index through a temporary file, an empty zone gives
// an empty index.
func (z *Zone) saveIndex() error {
	z.indexMu.Lock()
	defer z.indexMu.Unlock()

	var buffer bytes.Buffer
	for _, entry := range z.snapshot() {
		buffer.WriteString(entry.record().String())
		buffer.WriteByte('\n')
	}

	path := z.IndexPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buffer.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w %s for zone %s: %w", ErrIndexFailed, path, z.name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w %s for zone %s: %w", ErrIndexFailed, path, z.name, err)
	}
	z.logger.Debug("index saved", slog.String("path", path))
	return nil
}

// Close : stops the pending staging timers, staged content stays on disk.
func (z *Zone) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	for _, record := range z.staging {
		record.timer.Stop()
	}
	for _, record := range z.trash {
		record.timer.Stop()
	}
	z.logger.Warn("zone closed", slog.Int("staged", len(z.staging)), slog.Int("trashed", len(z.trash)))
	return nil
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

// Lock : serializes callers sharing key and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyedLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()
		k.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
