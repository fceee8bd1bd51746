package models

import (
	"encoding/json"
	"time"

	"github.com/araddon/dateparse"
)

// Record kinds stored by the gateway.
const (
	KindPost    = "post"
	KindComment = "comment"
	KindLike    = "like"
	KindProfile = "profile"
)

// Record is the gateway's storage envelope. Payload holds the
// kind-specific fields as the gateway returned them.
type Record struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// parseCreatedAt reads a created_at string from a record payload. Gateways
// are sloppy about timestamp formats, so accept anything dateparse can
// handle and fall back to the envelope timestamp.
func parseCreatedAt(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return fallback
	}
	return t
}
