package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type CleanupImagesTask struct {
	Task
	OlderThan time.Duration
	cleaner   ImageCleaner
}

func NewCleanupImagesTask(olderThan time.Duration, cleaner ImageCleaner) *CleanupImagesTask {
	return &CleanupImagesTask{
		Task:      NewTask(TaskTypeCleanupImages, ""),
		OlderThan: olderThan,
		cleaner:   cleaner,
	}
}

func (t *CleanupImagesTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	count, bytes, err := t.cleaner.Clear(t.OlderThan)
	if err != nil {
		slog.Error("Task failed", "type", "CleanupImages", "error", err)
		return fmt.Errorf("failed to clear image cache: %w", err)
	}

	slog.Info("Task completed",
		"type", "CleanupImages",
		"removed", count,
		"bytes", bytes,
		"older_than", t.OlderThan.String(),
		"duration", t.GetDuration())

	return nil
}
