package runner

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	keyChecksum    = "checksum"
	keyLastUpdated = "last_updated"
	keyOldContent  = "old_content"
)

// Metadata is what a view's comment records about its last (re)build
type Metadata struct {
	Checksum    string
	LastUpdated time.Time
}

// ParseComment reads the metadata stamped into a comment. ok is false
// when the comment is not a JSON object carrying a checksum or a
// last_updated time.
func ParseComment(comment string) (Metadata, bool) {
	fields, ok := decodeComment(comment)
	if !ok {
		return Metadata{}, false
	}

	var meta Metadata
	if s, ok := fields[keyChecksum].(string); ok {
		meta.Checksum = s
	}
	if s, ok := fields[keyLastUpdated].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			meta.LastUpdated = ts
		}
	}
	return meta, meta.Checksum != "" || !meta.LastUpdated.IsZero()
}

// StampComment merges checksum and updated into an existing comment.
// Other keys of a JSON comment are kept; a non-JSON comment is kept
// under old_content.
func StampComment(existing, checksum string, updated time.Time) string {
	fields, ok := decodeComment(existing)
	if !ok {
		fields = make(map[string]any)
		if strings.TrimSpace(existing) != "" {
			fields[keyOldContent] = existing
		}
	}
	fields[keyChecksum] = checksum
	return encodeComment(fields, updated)
}

// TouchComment sets last_updated and keeps every other key, including
// the checksum of the body the view was created from.
func TouchComment(existing string, updated time.Time) string {
	fields, ok := decodeComment(existing)
	if !ok {
		fields = make(map[string]any)
		if strings.TrimSpace(existing) != "" {
			fields[keyOldContent] = existing
		}
	}
	return encodeComment(fields, updated)
}

func encodeComment(fields map[string]any, updated time.Time) string {
	fields[keyLastUpdated] = updated.UTC().Format(time.RFC3339Nano)

	out, err := json.Marshal(fields)
	if err != nil {
		// map[string]any decoded from JSON always marshals
		panic(err)
	}
	return string(out)
}

func decodeComment(comment string) (map[string]any, bool) {
	comment = strings.TrimSpace(comment)
	if !strings.HasPrefix(comment, "{") {
		return nil, false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(comment), &fields); err != nil {
		return nil, false
	}
	return fields, true
}
