package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	MediaTypeFile     = "FILE"
	MediaTypeIndirect = "INDIRECT"
	URIListMimeType   = "text/uri-list"
)

// Metadata : the description sent along with a new media.
// Fields without a dedicated member are kept in Extra.
type Metadata struct {
	MediaID    string         `json:"media_id"`
	MediaType  string         `json:"media_type,omitempty"`
	MediaName  string         `json:"media_name,omitempty"`
	FileType   string         `json:"file_type,omitempty"`
	Charset    string         `json:"charset,omitempty"`
	FileSize   int64          `json:"file_size,omitempty"`
	AccessDate json.Number    `json:"access_date,omitempty"`
	URL        string         `json:"url,omitempty"`
	ExpireDate json.Number    `json:"expire_date,omitempty"`
	Extra      map[string]any `json:"-"`
}

var metadataFields = []string{
	"media_id", "media_type", "media_name", "file_type", "charset",
	"file_size", "access_date", "url", "expire_date",
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	type plain Metadata
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, field := range metadataFields {
		delete(all, field)
	}

	*m = Metadata(known)
	if len(all) > 0 {
		m.Extra = all
	}
	return nil
}

// AccessTime : access_date in epoch seconds, or fallback when unset.
func (m *Metadata) AccessTime(fallback time.Time) (time.Time, error) {
	return epochOr(m.AccessDate, fallback)
}

// ExpireTime : expire_date in epoch seconds, zero when unset.
func (m *Metadata) ExpireTime() (time.Time, error) {
	return epochOr(m.ExpireDate, time.Time{})
}

func epochOr(value json.Number, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	seconds, err := strconv.ParseFloat(value.String(), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch value %q: %w", value, err)
	}
	return time.Unix(int64(seconds), 0), nil
}

// ContextView : the public description of an access context.
type ContextView struct {
	Source string `json:"source"`
	IP     string `json:"ip"`
	User   string `json:"user"`
	Access string `json:"access"`
}

// EntryView : the public representation of a media entry.
type EntryView struct {
	UUID     string         `json:"uuid"`
	Zone     string         `json:"zone"`
	Context  ContextView    `json:"context"`
	Filename string         `json:"filename,omitempty"`
	Name     string         `json:"name,omitempty"`
	URL      string         `json:"url,omitempty"`
	MimeType string         `json:"mimetype"`
	Encoding string         `json:"encoding"`
	MD5      string         `json:"md5,omitempty"`
	Size     int64          `json:"size,omitempty"`
	Date     time.Time      `json:"date"`
	Expire   *time.Time     `json:"expire,omitempty"`
	BaseFile string         `json:"basefile"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type AccessEvent struct {
	Date   time.Time   `json:"date"`
	Client ContextView `json:"client"`
}

// Connector : a short-lived access descriptor to one media.
type Connector struct {
	Ref      string        `json:"ref"`
	FileID   string        `json:"fileid"`
	Count    int           `json:"count"`
	Access   []AccessEvent `json:"access"`
	Created  time.Time     `json:"cdate"`
	Zone     string        `json:"zone"`
	Source   string        `json:"source,omitempty"`
	URL      string        `json:"url,omitempty"`
	Filename string        `json:"filename"`
	MimeType string        `json:"type,omitempty"`
	Timeout  time.Duration `json:"-"`
}

const (
	OpAddMedia    = "add_media"
	OpStageMedia  = "stage_media"
	OpCommitMedia = "commit_media"
	OpDeleteMedia = "delete_media"
	OpListMedia   = "list_media"
	OpCheckEntry  = "check_entry"
	OpNewConn     = "new_conn"
	OpDelConn     = "del_conn"
	OpAccConn     = "acc_conn"
)

// AuditEvent : the descriptor of one operation sent to the audit store.
type AuditEvent struct {
	Operation string    `json:"operation" db:"operation"`
	UUID      string    `json:"uuid" db:"uuid"`
	Ref       string    `json:"ref" db:"ref"`
	Zone      string    `json:"zone" db:"zone"`
	Context   any       `json:"context,omitempty"`
	Value     any       `json:"value,omitempty"`
	Date      time.Time `json:"date" db:"created_at"`
}

type ZoneListing struct {
	List   []EntryView `json:"list"`
	Status string      `json:"status"`
}

// MediaList : per-zone listings flattened next to the count/total/errors counters.
type MediaList struct {
	Zones  map[string]ZoneListing
	Count  int
	Total  int
	Errors int
}

func (l MediaList) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(l.Zones)+3)
	for name, listing := range l.Zones {
		out[name] = listing
	}
	out["count"] = l.Count
	out["total"] = l.Total
	out["errors"] = l.Errors
	return json.Marshal(out)
}
