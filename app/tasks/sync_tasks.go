package tasks

import (
	"context"
	"log/slog"
)

type RefreshAllTask struct {
	Task
	syncer Syncer
}

func NewRefreshAllTask(syncer Syncer) *RefreshAllTask {
	return &RefreshAllTask{
		Task:   newSyncTask(TaskTypeRefreshAll, ""),
		syncer: syncer,
	}
}

func (t *RefreshAllTask) Execute(ctx context.Context) error {
	ran, err := t.syncer.RefreshAll(ctx)
	if err != nil {
		return err
	}
	if !ran {
		slog.Debug("Task skipped", "type", "RefreshAll", "reason", "sweep already running")
		return nil
	}

	slog.Info("Task completed",
		"type", "RefreshAll",
		"duration", t.GetDuration())

	return nil
}

type RefreshFeedTask struct {
	Task
	syncer Syncer
}

func NewRefreshFeedTask(feedID string, syncer Syncer) *RefreshFeedTask {
	return &RefreshFeedTask{
		Task:   newSyncTask(TaskTypeRefreshFeed, feedID),
		syncer: syncer,
	}
}

func (t *RefreshFeedTask) Execute(ctx context.Context) error {
	hasHistory, err := t.syncer.RefreshLatest(ctx, t.FeedID)
	if err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", "RefreshFeed",
		"feed", t.FeedID,
		"has_history", hasHistory,
		"duration", t.GetDuration())

	return nil
}

type BackfillTask struct {
	Task
	syncer Syncer
}

func NewBackfillTask(feedID string, syncer Syncer) *BackfillTask {
	return &BackfillTask{
		Task:   newSyncTask(TaskTypeBackfillFeed, feedID),
		syncer: syncer,
	}
}

func (t *BackfillTask) Execute(ctx context.Context) error {
	if err := t.syncer.BackfillHistory(ctx, t.FeedID); err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", "Backfill",
		"feed", t.FeedID,
		"duration", t.GetDuration())

	return nil
}
