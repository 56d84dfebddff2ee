package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"media-gateway/config"
	"media-gateway/internal/model"
	"media-gateway/internal/model/requestresponse"
	"media-gateway/internal/security"
	"media-gateway/internal/service"
	"media-gateway/internal/storage"
	"media-gateway/internal/util"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const (
	MetadataHeader     = "file_metadata"
	CommitHeader       = "media_commit"
	DeleteHeader       = "media_delete"
	AccessMethodHeader = "Media-Access-Method"

	AccessAppend = "Append"
	AccessDirect = "Direct"
	AccessCheck  = "Check"

	maxCommandBytes = 64 << 10
)

const corsHeaders = "Content-Type, Authorization, Content-Length, X-Requested-With, file_metadata, Media-Access-Method, media_cookie, " +
	"Cache-Control, Pragma, Sec-GPC"

// MediaStore : the media operations served over HTTP
type MediaStore interface {
	AddEntry(ctx context.Context, metadata *model.Metadata, status *security.AccessStatus, content []byte, appendMode bool) (service.AddResult, error)
	Commit(ctx context.Context, zoneName, stagingID string, status *security.AccessStatus) (model.EntryView, error)
	Delete(ctx context.Context, id string, status *security.AccessStatus) (model.EntryView, error)
	List(status *security.AccessStatus) model.MediaList
	Get(ctx context.Context, id string, status *security.AccessStatus) string
	Find(ctx context.Context, fileID string, status *security.AccessStatus) (*storage.Content, error)
	Check(ctx context.Context, id string, status *security.AccessStatus) (storage.HashReport, error)
}

type MediaHandler struct {
	store     MediaStore
	ac        *security.AccessControl
	publicURL string
	prefix    string
	maxUpload int64
	logger    *slog.Logger
}

func NewMediaHandler(media MediaStore, ac *security.AccessControl, cfg *config.ServerConfig, logger *slog.Logger) *MediaHandler {
	prefix := cfg.Prefix
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &MediaHandler{
		store:     media,
		ac:        ac,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		prefix:    prefix,
		maxUpload: cfg.MaxUploadBytes,
		logger:    logger.With(slog.String("component", "http")),
	}
}

// Routes : mounts every media route on r.
func (h *MediaHandler) Routes(r chi.Router) {
	r.Options("/*", h.OptionCors)
	r.Get("/", h.Root)
	r.Post("/jwt/forge", h.ForgeUserToken)
	r.Get("/storage/{fileid}", h.FileService)
	r.Post("/post", h.PostFile)
	r.Post("/commit", h.CommitMedia)
	r.Post("/delete", h.DeleteMedia)
	r.Post("/delete/{uuid}", h.DeleteMedia)
	r.Get("/list", h.ListMedias)
	r.Get("/check/{uuid}", h.CheckFile)
	r.Get("/download/{uuid}", h.Direct)
	r.Get("/{uuid}", h.Media)
}

func sendAndClose(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func (h *MediaHandler) OptionCors(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
	w.WriteHeader(http.StatusOK)
}

// Root : a plain banner, or the media access when file_metadata is set
func (h *MediaHandler) Root(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(MetadataHeader) != "" {
		h.Media(w, r)
		return
	}
	status := h.ac.GetAccessStatus(w, r)
	if _, ok := h.ac.CheckSystemAccessStatus(status, security.NoAccess); !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Rudi media access driver, access restricted\n"))
}

// ForgeUserToken : forges a delegation token for the identity in the JSON body
func (h *MediaHandler) ForgeUserToken(w http.ResponseWriter, r *http.Request) {
	status := h.ac.GetAccessStatus(w, r)
	if _, ok := h.ac.CheckSystemAccessStatus(status, security.ExecMask); !ok {
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		util.HandleError(w, "application/json Content-Type expected", http.StatusBadRequest)
		return
	}

	var req requestresponse.ForgeRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxCommandBytes))
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		util.HandleError(w, "malformed application/json", http.StatusBadRequest)
		return
	}
	if req.UserID == nil || req.UserID == "" {
		util.HandleError(w, "missing user_id", http.StatusBadRequest)
		return
	}
	if req.UserName == "" {
		util.HandleError(w, "missing user_name", http.StatusBadRequest)
		return
	}

	token, ok := h.ac.ForgeJwt(status, fmt.Sprint(req.UserID), req.UserName, req.GroupName, req.Attributes)
	if !ok {
		return
	}

	group := req.GroupName
	if group == "" {
		group = "-"
	}
	h.logger.Info(fmt.Sprintf("forged token for %s:%s", req.UserName, group))
	http.SetCookie(w, &http.Cookie{Name: security.AuthCookieName, Value: token, Path: h.prefix, HttpOnly: true})
	sendAndClose(w, http.StatusOK, requestresponse.ForgeResponse{Status: "OK", Token: token})
}

// PostFile : stores the request body as a new media described by the
// file_metadata header.
func (h *MediaHandler) PostFile(w http.ResponseWriter, r *http.Request) {
	status := h.ac.GetAccessStatus(w, r)
	if _, ok := h.ac.CheckSystemAccessStatus(status, security.WriteMask); !ok {
		return
	}

	header := r.Header.Get(MetadataHeader)
	if header == "" {
		util.HandleError(w, "no metadata provided", http.StatusBadRequest)
		return
	}
	var metadata model.Metadata
	if err := json.Unmarshal([]byte(header), &metadata); err != nil {
		h.logger.Error("malformed metadata", slog.String("metadata", header))
		util.HandleError(w, "malformed metadata", http.StatusBadRequest)
		return
	}

	if h.maxUpload > 0 && (metadata.FileSize > h.maxUpload || r.ContentLength > h.maxUpload) {
		h.logger.Error("file too large, use a different upload method", slog.String("media_id", metadata.MediaID))
		util.HandleError(w, "file too large, use a different upload method", http.StatusBadRequest)
		return
	}

	body := r.Body
	if h.maxUpload > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	content, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			util.HandleError(w, "file too large, use a different upload method", http.StatusBadRequest)
			return
		}
		util.HandleError(w, "could not read media content", http.StatusBadRequest)
		return
	}
	h.logger.Debug("content received", slog.Int("bytes", len(content)))

	appendMode := r.URL.Query().Has("append") || strings.EqualFold(r.Header.Get(AccessMethodHeader), AccessAppend)

	response := []requestresponse.PostStatus{{Status: "download"}}
	result, err := h.store.AddEntry(r.Context(), &metadata, status, content, appendMode)
	if err != nil {
		response = append(response, requestresponse.PostStatus{Status: "error", Msg: err.Error()})
		sendAndClose(w, storage.StatusCode(err), response)
		return
	}

	if result.StagingID != "" {
		response = append(response, requestresponse.PostStatus{
			Status:     "commit_ready",
			ZoneName:   result.Zone,
			CommitUUID: result.StagingID,
		})
	}
	response = append(response, requestresponse.PostStatus{Status: "OK"})
	sendAndClose(w, http.StatusOK, response)
}

// readCommand : decodes a JSON command from header or, if unset, the body
func readCommand(r *http.Request, header string, target any) error {
	raw := []byte(r.Header.Get(header))
	if len(raw) == 0 {
		var err error
		raw, err = io.ReadAll(io.LimitReader(r.Body, maxCommandBytes))
		if err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, target)
}

// CommitMedia : commits a staged media named by the query, the media_commit
// header or the JSON body.
func (h *MediaHandler) CommitMedia(w http.ResponseWriter, r *http.Request) {
	status := h.ac.GetAccessStatus(w, r)
	if _, ok := h.ac.CheckSystemAccessStatus(status, security.ExecMask); !ok {
		return
	}

	req := requestresponse.CommitRequest{
		ZoneName:   r.URL.Query().Get("zone_name"),
		CommitUUID: r.URL.Query().Get("commit_uuid"),
	}
	if req.ZoneName == "" || req.CommitUUID == "" {
		if err := readCommand(r, CommitHeader, &req); err != nil {
			h.logger.Error("malformed commit message", slog.Any("error", err))
			util.HandleError(w, "malformed metadata", http.StatusBadRequest)
			return
		}
		if req.CommitUUID == "" {
			util.HandleError(w, "commit_uuid missing in metadata", http.StatusBadRequest)
			return
		}
		if req.ZoneName == "" {
			util.HandleError(w, "zone_name missing in metadata", http.StatusBadRequest)
			return
		}
	}

	if _, err := h.store.Commit(r.Context(), req.ZoneName, req.CommitUUID, status); err != nil {
		util.HandleError(w, err.Error(), storage.StatusCode(err))
		return
	}
	sendAndClose(w, http.StatusOK, requestresponse.StatusResponse{Status: "OK"})
}

// DeleteMedia : deletes the media named by the path, the query, the
// media_delete header or the JSON body.
func (h *MediaHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	status := h.ac.GetAccessStatus(w, r)
	if _, ok := h.ac.CheckSystemAccessStatus(status, security.DeleteMask); !ok {
		return
	}

	id := chi.URLParam(r, "uuid")
	if id == "" {
		id = r.URL.Query().Get("commit_uuid")
	}
	if id == "" {
		var req requestresponse.DeleteRequest
		if err := readCommand(r, DeleteHeader, &req); err != nil {
			h.logger.Error("malformed delete message", slog.Any("error", err))
			util.HandleError(w, "malformed metadata", http.StatusBadRequest)
			return
		}
		if req.UUID == "" {
			util.HandleError(w, "uuid missing in metadata", http.StatusBadRequest)
			return
		}
		id = req.UUID
	}

	if _, err := h.store.Delete(r.Context(), id, status); err != nil {
		util.HandleError(w, err.Error(), storage.StatusCode(err))
		return
	}
	h.logger.Info("[deleteMedia] " + id)
	sendAndClose(w, http.StatusOK, requestresponse.StatusResponse{Status: "OK"})
}

// ListMedias : the media of every zone; an anonymous requester refused by
// every zone gets a 401.
func (h *MediaHandler) ListMedias(w http.ResponseWriter, r *http.Request) {
	status := h.ac.GetAccessStatus(w, r)
	if _, ok := h.ac.CheckSystemAccessStatus(status, security.NoAccess); !ok {
		return
	}

	list := h.store.List(status)
	h.logger.Debug(fmt.Sprintf("[listMedias] %s => %d %d", status.UserName, list.Count, list.Errors))
	if (status.UserName == "" || status.UserName == "-") && list.Count == list.Errors {
		w.Header().Set("WWW-Authenticate", `Basic realm="`+security.DefaultRealm+`"`)
		util.HandleError(w, "access denied", http.StatusUnauthorized)
		return
	}
	sendAndClose(w, http.StatusOK, list)
}

func (h *MediaHandler) CheckFile(w http.ResponseWriter, r *http.Request) {
	h.media(w, r, AccessCheck)
}

func (h *MediaHandler) Direct(w http.ResponseWriter, r *http.Request) {
	h.media(w, r, AccessDirect)
}

// Media : opens a connector on a media. Media-Access-Method selects a direct
// download, a content check, or by default the connector URL.
func (h *MediaHandler) Media(w http.ResponseWriter, r *http.Request) {
	h.media(w, r, r.Header.Get(AccessMethodHeader))
}

func (h *MediaHandler) media(w http.ResponseWriter, r *http.Request, method string) {
	status := h.ac.GetAccessStatus(w, r)
	if _, ok := h.ac.CheckSystemAccessStatus(status, security.NoAccess); !ok {
		return
	}

	id := chi.URLParam(r, "uuid")
	if id == "" {
		header := r.Header.Get(MetadataHeader)
		if header == "" {
			util.HandleError(w, "no meta-data provided", http.StatusBadRequest)
			return
		}
		var metadata model.Metadata
		if err := json.Unmarshal([]byte(header), &metadata); err != nil {
			h.logger.Error("malformed metadata", slog.String("metadata", header))
			util.HandleError(w, "malformed metadata", http.StatusBadRequest)
			return
		}
		if metadata.MediaID == "" {
			util.HandleError(w, "uuid missing in metadata", http.StatusBadRequest)
			return
		}
		id = metadata.MediaID
	}

	switch method {
	case AccessDirect:
		fileID := h.store.Get(r.Context(), id, status)
		if fileID == "" {
			util.HandleError(w, "media uuid not found", http.StatusNotFound)
			return
		}
		h.logger.Info("[media][direct]: " + id)
		h.serveConnector(w, r, status, fileID)
	case AccessCheck:
		report, err := h.store.Check(r.Context(), id, status)
		if err != nil {
			util.HandleError(w, err.Error(), storage.StatusCode(err))
			return
		}
		h.logger.Info("[media][check]: " + id)
		sendAndClose(w, http.StatusOK, requestresponse.CheckResponse{
			Status:      "OK",
			MD5:         report.Hash,
			PreviousMD5: report.Previous,
			Size:        report.Size,
		})
	default:
		fileID := h.store.Get(r.Context(), id, status)
		if fileID == "" {
			util.HandleError(w, "media uuid not found", http.StatusNotFound)
			return
		}
		h.logger.Info("[media][access]: " + id)
		sendAndClose(w, http.StatusOK, requestresponse.ConnectorResponse{URL: h.storageURL(r, fileID)})
	}
}

func (h *MediaHandler) storageURL(r *http.Request, fileID string) string {
	base := h.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + h.prefix + "storage/" + fileID
}

// FileService : serves the content behind a connector
func (h *MediaHandler) FileService(w http.ResponseWriter, r *http.Request) {
	status := h.ac.GetAccessStatus(w, r)
	if _, ok := h.ac.CheckSystemAccessStatus(status, security.NoAccess); !ok {
		return
	}
	h.serveConnector(w, r, status, chi.URLParam(r, "fileid"))
}

func (h *MediaHandler) serveConnector(w http.ResponseWriter, r *http.Request, status *security.AccessStatus, fileID string) {
	content, err := h.store.Find(r.Context(), fileID, status)
	if err != nil {
		util.HandleError(w, "could not get media content", http.StatusNotFound)
		return
	}

	h.logger.Info("full read with connector: " + fileID)
	mimeType := content.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, content.Name))
	w.Header().Set("Content-Type", mimeType)
	w.WriteHeader(http.StatusOK)
	w.Write(content.Data)
}
