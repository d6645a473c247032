package queue

import (
	"encoding/json"
	"strconv"
)

// MetadataFileSizeKey is the metadata key every task carries for its upload size.
const MetadataFileSizeKey = "file_size"

// FileSizeFromMetadata extracts a file size from a metadata map, tolerating
// the numeric representations JSON round-trips produce.
func FileSizeFromMetadata(metadata map[string]any) int64 {
	if metadata == nil {
		return 0
	}
	switch v := metadata[MetadataFileSizeKey].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// CloneMetadata returns a shallow copy of a metadata map.
func CloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cp := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cp[key] = value
	}
	return cp
}
