package services

import (
	"context"

	"go.uber.org/zap"
)

// SnapshotPublisher forwards snapshots to an external stream.
type SnapshotPublisher interface {
	Publish(ctx context.Context, payload interface{}) error
}

// PublishSnapshots relays every snapshot from nav to publisher until ctx is
// done.
func PublishSnapshots(ctx context.Context, nav *NavigationService, publisher SnapshotPublisher, logger *zap.SugaredLogger) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	snapshots, unsubscribe := nav.Subscribe()

	go func() {
		defer unsubscribe()
		defer recoverPanic(ctx, "Snapshot publisher: recovered from panic")

		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snapshots:
				if !ok {
					return
				}
				if err := publisher.Publish(ctx, snap); err != nil {
					logger.Warnw("Failed to publish snapshot", "session_id", snap.SessionID, "error", err)
				}
			}
		}
	}()
}
