package httpapi

import (
	"encoding/json"
	"strconv"
	"time"

	"finfeed/pkg/provider"
)

// normalizeRecords converts a response body into generic records when the
// body is a JSON array of flat objects. Anything else stays raw-only; the
// caller's sink knows what to do with the payload for that provider.
func normalizeRecords(source string, req provider.Request, body []byte) []provider.Record {
	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil
	}

	kind := provider.RecordKind(req.Params["kind"])
	if kind == "" {
		kind = provider.KindBar
	}
	interval := req.Params["interval"]

	records := make([]provider.Record, 0, len(rows))
	for _, row := range rows {
		ts, ok := extractTimestamp(row)
		if !ok {
			continue
		}
		records = append(records, provider.Record{
			Kind:      kind,
			Ticker:    req.Ticker,
			Source:    source,
			Timestamp: ts,
			Interval:  interval,
			Fields:    row,
		})
	}
	return records
}

var timestampKeys = []string{"t", "ts", "timestamp", "time", "date", "published_at"}

func extractTimestamp(row map[string]any) (time.Time, bool) {
	for _, key := range timestampKeys {
		v, ok := row[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return fromEpoch(int64(t)), true
		case json.Number:
			if n, err := t.Int64(); err == nil {
				return fromEpoch(n), true
			}
		case string:
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				return parsed, true
			}
			if parsed, err := time.Parse("2006-01-02", t); err == nil {
				return parsed, true
			}
			if n, err := strconv.ParseInt(t, 10, 64); err == nil {
				return fromEpoch(n), true
			}
		}
	}
	return time.Time{}, false
}

// fromEpoch treats values past the year ~2286 in seconds as milliseconds.
func fromEpoch(n int64) time.Time {
	if n > 1e10 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
