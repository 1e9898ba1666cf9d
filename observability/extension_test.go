package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relayworks/relay/ext"
	"github.com/relayworks/relay/job"
	"github.com/relayworks/relay/observability"
)

// With no meter provider the instruments are no-ops; the extension
// must still be safe to drive through every hook.
func TestExtensionHandlesAllHooks(t *testing.T) {
	e := observability.New()
	reg := ext.NewRegistry(nil)
	reg.Register(e)

	ctx := context.Background()
	j := &job.Job{Name: "send", Queue: "email"}

	reg.EmitJobEnqueued(ctx, j)
	reg.EmitJobCompleted(ctx, j, time.Second)
	reg.EmitJobFailed(ctx, j, errors.New("boom"))
	reg.EmitJobRetrying(ctx, j, time.Second)
	reg.EmitJobDLQ(ctx, j, nil)
	reg.EmitJobStalled(ctx, j)
}
