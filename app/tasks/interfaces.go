package tasks

import (
	"context"
	"time"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the API to queue background work.
// Example usage:
//
//	scheduler := NewScheduler(engine, imageCache)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewBackfillTask("feed-id", engine))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// Syncer is the part of the sync engine driven by background tasks.
type Syncer interface {
	RefreshAll(ctx context.Context) (bool, error)
	RefreshLatest(ctx context.Context, feedID string) (bool, error)
	BackfillHistory(ctx context.Context, feedID string) error
}

type ImageCleaner interface {
	Clear(olderThan time.Duration) (int, int64, error)
}
