package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/buildhive/buildhive/internal/domain/integration"
	"github.com/buildhive/buildhive/internal/service"
)

// syncDuration is the simulated exchange time with an external system.
const syncDuration = 50 * time.Millisecond

// SyncKinds are the integration kinds sim can refresh.
var SyncKinds = []string{"github", "slack", "jira", "webhook"}

// SyncFuncs returns simulated sync functions for every supported integration
// kind, keyed the way the batch syncer expects.
func SyncFuncs() map[string]service.SyncFunc {
	fns := make(map[string]service.SyncFunc, len(SyncKinds))
	for _, kind := range SyncKinds {
		fns[kind] = syncKind(kind)
	}
	return fns
}

// syncKind simulates one round trip. An integration whose config carries
// fail_sync reports an error, so failure paths stay reachable end to end.
func syncKind(kind string) service.SyncFunc {
	return func(ctx context.Context, i integration.Integration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(syncDuration):
		}
		if v, ok := i.Config["fail_sync"].(bool); ok && v {
			return fmt.Errorf("sim: %s sync rejected for %s", kind, i.Name)
		}
		return nil
	}
}
