package storage

import (
	"fmt"
	"media-gateway/internal/model"
	"strconv"
	"strings"
	"time"
)

const indexFields = 6

// indexRecord : one line of a zone index.
//
//	FILE: md5;uuid;filename: mimetype; encoding;epoch;size
//	URL:  url;uuid;name: text/uri-list; charset=utf-8;epoch;expire
type indexRecord struct {
	Source   string
	UUID     string
	Name     string
	MimeType string
	Encoding string
	Date     time.Time
	Last     int64
}

func (r indexRecord) isURL() bool {
	return r.MimeType == model.URIListMimeType
}

// parseIndexLine reads fields from the right so a URL source may hold ';'.
func parseIndexLine(line string) (indexRecord, error) {
	fields := strings.Split(strings.TrimRight(line, "\r"), ";")
	n := len(fields)
	if n < indexFields {
		return indexRecord{}, fmt.Errorf("could not parse %q: %d fields", line, n)
	}

	name, mimeType, ok := cutLast(fields[n-4], ":")
	if !ok {
		return indexRecord{}, fmt.Errorf("could not parse %q: no mime type", line)
	}
	date, err := parseEpoch(fields[n-2])
	if err != nil {
		return indexRecord{}, fmt.Errorf("could not parse %q: %w", line, err)
	}
	last, err := strconv.ParseFloat(strings.TrimSpace(fields[n-1]), 64)
	if err != nil {
		return indexRecord{}, fmt.Errorf("could not parse %q: %w", line, err)
	}

	record := indexRecord{
		Source:   strings.Join(fields[:n-5], ";"),
		UUID:     strings.TrimSpace(fields[n-5]),
		Name:     name,
		MimeType: strings.TrimSpace(mimeType),
		Encoding: strings.TrimSpace(fields[n-3]),
		Date:     date,
		Last:     int64(last),
	}
	if record.UUID == "" || record.Source == "" {
		return indexRecord{}, fmt.Errorf("could not parse %q: empty identifier", line)
	}
	return record, nil
}

func (r indexRecord) String() string {
	return fmt.Sprintf("%s;%s;%s: %s; %s;%d;%d", r.Source, r.UUID, r.Name, r.MimeType, r.Encoding, epoch(r.Date), r.Last)
}

func cutLast(value, sep string) (string, string, bool) {
	at := strings.LastIndex(value, sep)
	if at < 0 {
		return value, "", false
	}
	return value[:at], value[at+len(sep):], true
}

func parseEpoch(value string) (time.Time, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return time.Time{}, err
	}
	if seconds == 0 {
		return time.Time{}, nil
	}
	return time.Unix(int64(seconds), 0), nil
}

func epoch(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// indexSafe replaces the characters the index separators use.
func indexSafe(value string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ';', '\n', '\r':
			return '_'
		}
		return r
	}, value)
}
