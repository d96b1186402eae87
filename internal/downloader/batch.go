// Package downloader runs beatmapset downloads concurrently.
package downloader

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"osugrab/pkg/logger"
)

// Fetcher downloads beatmapset archives
type Fetcher interface {
	Download(beatmapsetID int) ([]byte, error)
}

// Store persists beatmapset archives
type Store interface {
	SaveBeatmapset(r io.Reader, beatmapsetID int) error
}

// Batch collects download tasks for one account and awaits them together.
// Tasks run concurrently up to the configured limit; the first failure is
// surfaced by Wait after all started tasks have finished.
type Batch struct {
	group   *errgroup.Group
	fetcher Fetcher
	store   Store
	logger  logger.Logger
	queued  int
}

// NewBatch creates a download batch. A positive concurrency bounds how many
// downloads run at once; zero or negative means unbounded.
func NewBatch(fetcher Fetcher, store Store, concurrency int, log logger.Logger) *Batch {
	if log == nil {
		log = logger.GetLogger()
	}

	group := &errgroup.Group{}
	if concurrency > 0 {
		group.SetLimit(concurrency)
	}

	return &Batch{
		group:   group,
		fetcher: fetcher,
		store:   store,
		logger:  log,
	}
}

// Add dispatches a download task for a beatmapset. The caller is expected
// to have claimed the id against the deduplication set already.
func (b *Batch) Add(beatmapsetID int, username string) {
	b.queued++
	b.group.Go(func() error {
		start := time.Now()

		data, err := b.fetcher.Download(beatmapsetID)
		if err != nil {
			b.logger.ErrorWithFields("beatmapset download failed", map[string]interface{}{
				"beatmapset_id": beatmapsetID,
				"username":      username,
				"error":         err.Error(),
			})
			return fmt.Errorf("download of beatmapset %d failed: %w", beatmapsetID, err)
		}

		if err := b.store.SaveBeatmapset(bytes.NewReader(data), beatmapsetID); err != nil {
			return fmt.Errorf("save of beatmapset %d failed: %w", beatmapsetID, err)
		}

		b.logger.InfoWithFields("beatmapset downloaded", map[string]interface{}{
			"beatmapset_id": beatmapsetID,
			"username":      username,
			"size":          len(data),
			"duration":      time.Since(start),
		})

		return nil
	})
}

// Queued returns the number of dispatched tasks
func (b *Batch) Queued() int {
	return b.queued
}

// Wait blocks until every dispatched task has finished and returns the
// first error encountered, if any.
func (b *Batch) Wait() error {
	return b.group.Wait()
}
