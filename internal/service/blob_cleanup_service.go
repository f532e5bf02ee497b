package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docuvault/docuvault-api/pkg/jobs"
	"github.com/docuvault/docuvault-api/pkg/storage"
)

const jobTypeBlobDelete = "blob.delete"

// BlobCleanupService deletes orphaned blobs in the background. Category,
// folder and document deletes cascade in the database first; the blob keys
// they leave behind are queued here so a storage outage never blocks the
// API response.
type BlobCleanupService struct {
	store  storage.BlobStore
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewBlobCleanupService wires the cleanup queue around the blob store.
func NewBlobCleanupService(store storage.BlobStore, cfg jobs.QueueConfig, logger *zap.Logger) *BlobCleanupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &BlobCleanupService{store: store, logger: logger}
	s.queue = jobs.NewQueue("blob-cleanup", s.handle, cfg)
	return s
}

// Start launches the cleanup workers.
func (s *BlobCleanupService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *BlobCleanupService) Stop() {
	s.queue.Stop()
}

// ScheduleDelete enqueues one delete job per blob key. Failures are logged,
// not returned; a blob that cannot be queued is merely orphaned storage.
func (s *BlobCleanupService) ScheduleDelete(keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.queue.Enqueue(jobs.Job{
			ID:      uuid.NewString(),
			Type:    jobTypeBlobDelete,
			Payload: key,
		}); err != nil {
			s.logger.Warn("failed to enqueue blob delete", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *BlobCleanupService) handle(ctx context.Context, job jobs.Job) error {
	key, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", job.Payload, job.Type)
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	s.logger.Debug("deleted blob", zap.String("key", key))
	return nil
}
