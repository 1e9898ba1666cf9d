package job

import (
	"fmt"

	"github.com/relayworks/relay"
)

var (
	errInvalidDelay    = fmt.Errorf("%w: delay must be >= 0", relay.ErrInvalidOptions)
	errInvalidAttempts = fmt.Errorf("%w: max attempts must be >= 1", relay.ErrInvalidOptions)
)
