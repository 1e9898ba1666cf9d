package store

import (
	"github.com/relayworks/relay/store/memory"
	"github.com/relayworks/relay/store/redis"
)

// Backends must cover the full surface.
var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*redis.Store)(nil)
)
