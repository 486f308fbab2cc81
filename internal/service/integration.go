package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/buildhive/buildhive/internal/config"
	"github.com/buildhive/buildhive/internal/domain/integration"
	"github.com/buildhive/buildhive/internal/port/database"
)

// SyncFunc performs the actual sync for one integration. Implementations are
// keyed by the integration's kind; unknown kinds fail the item.
type SyncFunc func(ctx context.Context, i integration.Integration) error

// SyncSummary reports the outcome of one batch sync run.
type SyncSummary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// IntegrationSyncer refreshes external integrations in bounded concurrent
// batches. Items within a batch run in parallel; batches are separated by a
// configured delay so external APIs are not hammered.
type IntegrationSyncer struct {
	cfg   config.Integrations
	store database.Store
	syncs map[string]SyncFunc
}

// NewIntegrationSyncer creates an IntegrationSyncer.
func NewIntegrationSyncer(cfg config.Integrations, store database.Store, syncs map[string]SyncFunc) *IntegrationSyncer {
	return &IntegrationSyncer{cfg: cfg, store: store, syncs: syncs}
}

// SyncAll loads all integrations and syncs them in batches.
func (s *IntegrationSyncer) SyncAll(ctx context.Context) (SyncSummary, error) {
	start := time.Now()

	items, err := s.store.ListIntegrations(ctx)
	if err != nil {
		return SyncSummary{}, fmt.Errorf("list integrations: %w", err)
	}

	summary := SyncSummary{Total: len(items)}
	batchSize := s.cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	for offset := 0; offset < len(items); offset += batchSize {
		if ctx.Err() != nil {
			break
		}
		if offset > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.BatchDelay):
			}
		}

		end := min(offset+batchSize, len(items))
		batch := items[offset:end]

		results := make([]error, len(batch))
		var wg sync.WaitGroup
		for i := range batch {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = s.syncOne(ctx, batch[i])
			}(i)
		}
		wg.Wait()

		for i, err := range results {
			s.recordOutcome(ctx, batch[i], err)
			if err != nil {
				summary.Failed++
			} else {
				summary.Succeeded++
			}
		}
	}

	summary.Duration = time.Since(start)
	slog.Info("integration sync finished",
		"total", summary.Total, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "duration_ms", summary.Duration.Milliseconds())
	return summary, nil
}

// syncOne runs the kind's SyncFunc, converting a panic into an error so one
// misbehaving integration cannot take down the batch.
func (s *IntegrationSyncer) syncOne(ctx context.Context, i integration.Integration) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("sync panic: %v", p)
		}
	}()

	fn, ok := s.syncs[i.Kind]
	if !ok {
		return fmt.Errorf("no sync registered for kind %q", i.Kind)
	}
	return fn(ctx, i)
}

func (s *IntegrationSyncer) recordOutcome(ctx context.Context, i integration.Integration, syncErr error) {
	msg := ""
	if syncErr != nil {
		msg = syncErr.Error()
		slog.Warn("integration sync failed", "integration", i.Name, "kind", i.Kind, "error", syncErr)
	}
	if err := s.store.UpdateIntegrationSync(ctx, i.ID, time.Now(), msg); err != nil {
		slog.Error("record integration sync", "integration", i.Name, "error", err)
	}
}
