package scope_test

import (
	"context"
	"testing"

	"github.com/relayworks/relay/scope"
)

func TestCaptureRestoreRoundTrip(t *testing.T) {
	ctx := scope.WithAppID(context.Background(), "app1")
	ctx = scope.WithOrgID(ctx, "org1")

	captured := scope.Capture(ctx)
	if captured.AppID != "app1" || captured.OrgID != "org1" {
		t.Fatalf("captured = %+v", captured)
	}

	restored := scope.Restore(context.Background(), captured)
	if appID, ok := scope.AppID(restored); !ok || appID != "app1" {
		t.Errorf("app id = %q, %v", appID, ok)
	}
	if orgID, ok := scope.OrgID(restored); !ok || orgID != "org1" {
		t.Errorf("org id = %q, %v", orgID, ok)
	}
}

func TestEmptyScope(t *testing.T) {
	captured := scope.Capture(context.Background())
	if !captured.Empty() {
		t.Errorf("captured = %+v, want empty", captured)
	}

	restored := scope.Restore(context.Background(), captured)
	if _, ok := scope.AppID(restored); ok {
		t.Error("empty scope should not set app id")
	}
}
