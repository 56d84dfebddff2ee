package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"media-gateway/config"
	"media-gateway/internal/metrics"
	"media-gateway/internal/model"
	"media-gateway/internal/ports"
	"media-gateway/internal/security"
	"media-gateway/internal/storage"
	"media-gateway/internal/util"
	"sync"
	"time"
)

const (
	defaultAuditTimeout     = 5 * time.Second
	defaultConnectorTimeout = 120 * time.Second
	interruptionSource      = "interruption"
)

// AddResult : where a new media landed. StagingID is set when the entry
// still waits for a commit.
type AddResult struct {
	Zone      string `json:"zone"`
	UUID      string `json:"uuid"`
	StagingID string `json:"commit_uuid,omitempty"`
}

type connectorRecord struct {
	connector *model.Connector
	entry     storage.Entry
	timer     *time.Timer
}

// MediaService : the media store spanning every configured zone, with the
// table of open connectors.
type MediaService struct {
	zones            map[string]*storage.Zone
	order            []*storage.Zone
	defaultZone      *storage.Zone
	audit            *auditQueue
	archiver         ports.IndexArchiver
	connectorTimeout time.Duration
	auditTimeout     time.Duration
	logger           *slog.Logger

	mu         sync.Mutex
	ready      bool
	connectors map[string]*connectorRecord
}

// NewMediaService : builds one zone per configuration entry, the first one
// is the default zone. auditStore and archiver may be nil.
func NewMediaService(
	cfg *config.StorageConfig,
	acldb *security.AclDB,
	auditStore ports.AuditStore,
	archiver ports.IndexArchiver,
	auditTimeout time.Duration,
	logger *slog.Logger,
) (*MediaService, error) {
	logger = logger.With(slog.String("component", "db"))
	fetcher := storage.NewHTTPFetcher(cfg.FetchTimeout)

	s := &MediaService{
		zones:            make(map[string]*storage.Zone, len(cfg.Zones)),
		archiver:         archiver,
		connectorTimeout: cfg.ConnectorTimeout,
		auditTimeout:     auditTimeout,
		logger:           logger,
		connectors:       make(map[string]*connectorRecord),
	}
	if s.connectorTimeout <= 0 {
		s.connectorTimeout = defaultConnectorTimeout
	}
	if s.auditTimeout <= 0 {
		s.auditTimeout = defaultAuditTimeout
	}

	for _, zoneCfg := range cfg.Zones {
		if _, ok := s.zones[zoneCfg.Name]; ok {
			return nil, fmt.Errorf("duplicate zone %s", zoneCfg.Name)
		}
		zone, err := storage.NewZone(zoneCfg, cfg.MediaDir, acldb, fetcher, logger)
		if err != nil {
			return nil, util.LogError("[MediaService] could not create zone", err)
		}
		s.zones[zoneCfg.Name] = zone
		s.order = append(s.order, zone)
	}
	if len(s.order) > 0 {
		s.defaultZone = s.order[0]
	}
	if auditStore != nil {
		s.audit = newAuditQueue(auditStore, s.auditTimeout, logger.With(slog.String("component", "audit")))
	}
	return s, nil
}

// Init : replays every zone index concurrently. A failing zone does not stop
// the others, the failures are joined in the returned error.
func (s *MediaService) Init(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, zone := range s.order {
		wg.Add(1)
		go func(zone *storage.Zone) {
			defer wg.Done()
			entries, err := zone.Init()
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				s.logger.Error("zone init failed", slog.String("zone", zone.Name()), slog.Any("error", err))
			}
			for _, entry := range entries {
				s.logEntry(ctx, model.OpAddMedia, entry, entry.View().Context)
			}
		}(zone)
	}
	wg.Wait()

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("media store ready", slog.Int("zones", len(s.order)))
	return nil
}

// Close : drops the open connectors, then stops every zone.
func (s *MediaService) Close(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.connectors))
	for id := range s.connectors {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	interruption := model.ContextView{Source: interruptionSource, IP: "-", User: "-", Access: string(security.NoAccess)}
	for _, id := range ids {
		s.dropConnector(ctx, id, interruption)
	}

	var errs []error
	for _, zone := range s.order {
		if err := zone.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.audit != nil {
		if err := s.audit.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("audit records still queued: %w", err))
		}
	}
	if len(errs) > 0 {
		return util.LogError("[MediaService] could not close all zones", errors.Join(errs...))
	}
	s.logger.Warn("all zones closed")
	return nil
}

func (s *MediaService) Zones() []string {
	names := make([]string, 0, len(s.order))
	for _, zone := range s.order {
		names = append(names, zone.Name())
	}
	return names
}

func (s *MediaService) isReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready && len(s.order) > 0
}

func (s *MediaService) lookup(id string) (storage.Entry, bool) {
	for _, zone := range s.order {
		if entry, ok := zone.Entry(id); ok {
			return entry, true
		}
	}
	return nil, false
}

// AddEntry : stores a new media in the default zone.
func (s *MediaService) AddEntry(ctx context.Context, metadata *model.Metadata, status *security.AccessStatus, content []byte, appendMode bool) (AddResult, error) {
	if metadata == nil {
		s.errorCtx(model.OpAddMedia, "-", status, storage.ErrMissingMetadata)
		return AddResult{}, storage.ErrMissingMetadata
	}
	if metadata.MediaType == "" {
		s.errorCtx(model.OpAddMedia, metadata.MediaID, status, errors.New("(ignored) missing media type"))
		metadata.MediaType = model.MediaTypeFile
	}
	if metadata.MediaID == "" {
		s.errorCtx(model.OpAddMedia, "-", status, storage.ErrMissingMediaID)
		return AddResult{}, storage.ErrMissingMediaID
	}

	date, err := metadata.AccessTime(time.Now())
	if err != nil {
		s.errorCtx(model.OpAddMedia, metadata.MediaID, status, err)
		return AddResult{}, fmt.Errorf("%w: %w", storage.ErrInvalidMetadata, err)
	}
	if metadata.FileSize > 0 && metadata.FileSize != int64(len(content)) {
		s.errorCtx(model.OpAddMedia, metadata.MediaID, status,
			fmt.Errorf("(ignored) inconsistent provided file size: %d received: %d", metadata.FileSize, len(content)))
	}
	if !s.isReady() {
		s.errorCtx(model.OpAddMedia, metadata.MediaID, status, storage.ErrNotReady)
		return AddResult{}, storage.ErrNotReady
	}

	zone := s.defaultZone
	entry, stagingID, err := zone.NewEntry(metadata, content, status, appendMode, date)
	if err != nil {
		s.errorCtx(model.OpAddMedia, metadata.MediaID, status, err)
		return AddResult{}, err
	}

	view := entry.View()
	s.logger.Info(fmt.Sprintf("new file: name=%s size=%d (%d) hash=%s", view.UUID, view.Size, len(content), view.MD5))

	operation := model.OpAddMedia
	if stagingID != "" {
		operation = model.OpStageMedia
	} else {
		s.archive(ctx, zone)
	}
	s.logEntry(ctx, operation, entry, status.ContextView())
	return AddResult{Zone: zone.Name(), UUID: view.UUID, StagingID: stagingID}, nil
}

// Commit : makes a staged entry of zoneName durable.
func (s *MediaService) Commit(ctx context.Context, zoneName, stagingID string, status *security.AccessStatus) (model.EntryView, error) {
	if !s.isReady() {
		s.errorCtx(model.OpCommitMedia, zoneName, status, storage.ErrNotReady)
		return model.EntryView{}, storage.ErrNotReady
	}
	zone, ok := s.zones[zoneName]
	if !ok {
		err := fmt.Errorf("%w: '%s'", storage.ErrZoneNotFound, zoneName)
		s.errorCtx(model.OpCommitMedia, zoneName, status, err)
		return model.EntryView{}, err
	}

	entry, err := zone.Commit(status, stagingID)
	if err != nil {
		s.errorCtx(model.OpCommitMedia, zoneName, status, err)
		return model.EntryView{}, err
	}

	s.logger.Info("commit file: name=" + entry.ID())
	s.archive(ctx, zone)
	s.logEntry(ctx, model.OpCommitMedia, entry, status.ContextView())
	return entry.View(), nil
}

// Delete : removes the media id from its zone.
func (s *MediaService) Delete(ctx context.Context, id string, status *security.AccessStatus) (model.EntryView, error) {
	entry, ok := s.lookup(id)
	if !ok {
		err := fmt.Errorf("%w: %s", storage.ErrMediaNotFound, id)
		s.errorCtx(model.OpDeleteMedia, id, status, err)
		return model.EntryView{}, err
	}

	zone := entry.Zone()
	deleted, err := zone.Delete(status, id)
	if err != nil {
		s.errorCtx(model.OpDeleteMedia, id, status, err)
		return model.EntryView{}, err
	}

	s.logger.Info("delete file: name=" + deleted.ID())
	s.archive(ctx, zone)
	s.logEntry(ctx, model.OpDeleteMedia, deleted, status.ContextView())
	return deleted.View(), nil
}

// List : the entries of every zone readable by status. Count is the number
// of zones asked, Errors the number that refused.
func (s *MediaService) List(status *security.AccessStatus) model.MediaList {
	result := model.MediaList{Zones: make(map[string]model.ZoneListing, len(s.order))}
	for _, zone := range s.order {
		result.Count++
		views, err := zone.List(status)
		if err != nil {
			result.Errors++
			s.errorCtx(model.OpListMedia, zone.Name(), status, err)
			result.Zones[zone.Name()] = model.ZoneListing{List: []model.EntryView{}, Status: err.Error()}
			continue
		}
		s.logger.Debug("list medias", slog.String("zone", zone.Name()), slog.Int("count", len(views)))
		result.Zones[zone.Name()] = model.ZoneListing{List: views, Status: "OK"}
		result.Total += len(views)
	}
	return result
}

// Get : opens a connector on the media id and returns its file id, or ""
// when the media is unknown. The connector expires after the zone timeout,
// the store timeout otherwise.
func (s *MediaService) Get(ctx context.Context, id string, status *security.AccessStatus) string {
	entry, ok := s.lookup(id)
	if !ok {
		return ""
	}

	connector := entry.NewConnector()
	timeout := s.connectorTimeout
	if connector.Timeout > 0 {
		timeout = connector.Timeout
	}
	view := status.ContextView()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.event(ctx, model.AuditEvent{
		Operation: model.OpNewConn,
		UUID:      connector.FileID,
		Ref:       id,
		Zone:      connector.Zone,
		Context:   view,
	})
	record := &connectorRecord{connector: connector, entry: entry}
	s.connectors[connector.FileID] = record
	record.timer = time.AfterFunc(timeout, func() {
		s.dropConnector(context.Background(), connector.FileID, view)
	})
	metrics.ConnectorsOpen.Inc()
	return connector.FileID
}

// dropConnector : the del_conn record is queued before the connector leaves
// the table, so a Flush after the removal covers it.
func (s *MediaService) dropConnector(ctx context.Context, fileID string, view model.ContextView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.connectors[fileID]
	if !ok {
		return
	}
	s.event(ctx, model.AuditEvent{
		Operation: model.OpDelConn,
		UUID:      fileID,
		Ref:       record.connector.Ref,
		Zone:      record.connector.Zone,
		Context:   view,
		Value:     record.connector,
	})
	delete(s.connectors, fileID)
	record.timer.Stop()
	metrics.ConnectorsOpen.Dec()
}

// Connector : a copy of the open connector fileID.
func (s *MediaService) Connector(fileID string) (model.Connector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.connectors[fileID]
	if !ok {
		return model.Connector{}, false
	}
	connector := *record.connector
	connector.Access = append([]model.AccessEvent(nil), record.connector.Access...)
	return connector, true
}

// Find : loads the content behind the connector fileID and records the access.
func (s *MediaService) Find(ctx context.Context, fileID string, status *security.AccessStatus) (*storage.Content, error) {
	access := model.AccessEvent{Date: time.Now(), Client: status.ContextView()}

	s.mu.Lock()
	record, ok := s.connectors[fileID]
	var connector model.Connector
	if ok {
		record.connector.Count++
		record.connector.Access = append(record.connector.Access, access)
		connector = *record.connector
	}
	s.mu.Unlock()
	if !ok {
		err := fmt.Errorf("%w: media connector id \"%s\" not found", storage.ErrConnectorNotFound, fileID)
		s.errorCtx(model.OpAccConn, fileID, status, err)
		return nil, err
	}

	s.event(ctx, model.AuditEvent{
		Operation: model.OpAccConn,
		UUID:      fileID,
		Ref:       connector.Ref,
		Zone:      connector.Zone,
		Context:   access,
	})

	content, err := record.entry.Load(ctx, &connector)
	if err != nil {
		s.errorCtx(model.OpAccConn, fileID, status, fmt.Errorf("could not load file: %w", err))
		return nil, err
	}
	return content, nil
}

// Check : recomputes the content digest of the media id. Drift is logged but
// still reported as a result.
func (s *MediaService) Check(ctx context.Context, id string, status *security.AccessStatus) (storage.HashReport, error) {
	entry, ok := s.lookup(id)
	if !ok {
		return storage.HashReport{}, fmt.Errorf("%w: %s", storage.ErrMediaNotFound, id)
	}

	s.event(ctx, model.AuditEvent{
		Operation: model.OpCheckEntry,
		UUID:      "-",
		Ref:       id,
		Zone:      entry.Zone().Name(),
		Context:   status.ContextView(),
	})

	report, err := entry.ContentHash(ctx)
	if err != nil {
		s.errorCtx(model.OpCheckEntry, id, status, err)
		return storage.HashReport{}, err
	}
	if report.Drifted() {
		s.logger.Error("content drift detected",
			slog.String("uuid", id),
			slog.String("previous", report.Previous),
			slog.String("hash", report.Hash))
	}
	return report, nil
}

func (s *MediaService) errorCtx(operation, ref string, status *security.AccessStatus, err error) {
	view := status.ContextView()
	s.logger.Error(fmt.Sprintf("[%s]:%s:%s: %v", view.User, operation, ref, err),
		slog.String("source", view.Source),
		slog.String("ip", view.IP))
}

func (s *MediaService) logEntry(ctx context.Context, operation string, entry storage.Entry, view model.ContextView) {
	value := entry.View()
	event := model.AuditEvent{
		Operation: operation,
		UUID:      value.UUID,
		Ref:       value.UUID,
		Zone:      value.Zone,
		Context:   view,
		Value:     value,
	}
	s.logger.Info(fmt.Sprintf("[%s]:%s:%s", view.User, operation, value.UUID), slog.String("zone", value.Zone))

	if s.audit != nil {
		s.audit.push(ctx, s.stamp(event), &value)
	}
}

func (s *MediaService) event(ctx context.Context, event model.AuditEvent) {
	s.logger.Debug(fmt.Sprintf("%s:%s", event.Operation, event.UUID), slog.String("ref", event.Ref), slog.String("zone", event.Zone))
	if s.audit != nil {
		s.audit.push(ctx, s.stamp(event), nil)
	}
}

// Flush : waits until the queued audit records are written.
func (s *MediaService) Flush() {
	if s.audit != nil {
		s.audit.flush()
	}
}

func (s *MediaService) stamp(event model.AuditEvent) model.AuditEvent {
	if event.Date.IsZero() {
		event.Date = time.Now()
	}
	return event
}


func (s *MediaService) archive(ctx context.Context, zone *storage.Zone) {
	if s.archiver == nil {
		return
	}
	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.auditTimeout)
	defer cancel()
	if err := s.archiver.ArchiveIndex(archiveCtx, zone.Name(), zone.IndexPath()); err != nil {
		s.logger.Warn("could not archive index", slog.String("zone", zone.Name()), slog.Any("error", err))
	}
}
