package relay

import "time"

// Entity carries the timestamps shared by all persisted relay entities.
// Embed it in entity structs; stores maintain UpdatedAt on writes.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity with both timestamps set to now (UTC).
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}
