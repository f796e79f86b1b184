package vault

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rbaliyan/mailvault/blob"
	"github.com/rbaliyan/mailvault/index"
)

// DeleteExpiredResult contains the result of a garbage collection run.
type DeleteExpiredResult struct {
	// DeletedBuckets is the number of retention buckets fully dropped.
	DeletedBuckets int
	// DeletedMessages is the number of metadata rows dropped.
	DeletedMessages int64
	// FailedOwners counts (bucket, owner) partitions that could not be
	// cleaned. Their buckets are kept and retried on the next run.
	FailedOwners int
	// Interrupted indicates the run stopped early (context cancelled).
	Interrupted bool
}

// DeleteExpired drops every retention bucket whose window has fully passed
// out of the retention period (window end <= now - retention).
//
// Owners within a bucket are cleaned concurrently, bounded by the configured
// GC concurrency. A failure for one owner is logged and counted but does not
// abort the run; the bucket is simply kept for the next cycle. The bucket
// itself is only dropped once every owner partition has been cleaned, with a
// bounded re-check to tolerate appends racing into the expiring bucket.
//
// Call this periodically using your application's scheduler. The library
// does not run garbage collection automatically.
//
// Example with a simple ticker:
//
//	go func() {
//	    ticker := time.NewTicker(24 * time.Hour)
//	    defer ticker.Stop()
//	    for range ticker.C {
//	        result, err := svc.DeleteExpired(ctx)
//	        if err != nil {
//	            log.Printf("vault gc error: %v", err)
//	        } else if result.DeletedBuckets > 0 {
//	            log.Printf("dropped %d expired buckets", result.DeletedBuckets)
//	        }
//	    }
//	}()
func (s *service) DeleteExpired(ctx context.Context) (result *DeleteExpiredResult, err error) {
	if cerr := s.checkConnected(); cerr != nil {
		return nil, cerr
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "vault.DeleteExpired")
	result = &DeleteExpiredResult{}
	defer func() {
		endSpan(err)
		s.otel.recordGC(ctx, time.Since(start), result.DeletedBuckets, result.DeletedMessages, result.FailedOwners, err)
	}()

	cutoff := s.opts.clock().Add(-s.opts.retention)

	bucketIt, err := s.index.Buckets(ctx)
	if err != nil {
		return result, fmt.Errorf("list buckets: %w", err)
	}
	buckets, err := index.Collect(ctx, bucketIt)
	if err != nil {
		return result, fmt.Errorf("iterate buckets: %w", err)
	}

	for _, bucket := range buckets {
		if ctx.Err() != nil {
			result.Interrupted = true
			return result, ctx.Err()
		}
		if !s.bucketExpired(bucket, cutoff) {
			continue
		}
		s.collectBucket(ctx, bucket, result)
	}

	return result, nil
}

// bucketExpired reports whether the bucket's whole window lies before the
// retention cutoff. Buckets with unparseable names are skipped, never dropped.
func (s *service) bucketExpired(bucket index.Bucket, cutoff time.Time) bool {
	windowStart, err := bucket.WindowStart(s.opts.bucketPrefix)
	if err != nil {
		s.logger.Warn("skipping bucket with unrecognized name", "bucket", bucket, "error", err)
		return false
	}
	windowEnd := windowStart.AddDate(0, 1, 0)
	return !windowEnd.After(cutoff)
}

// collectBucket cleans every owner partition in an expired bucket, then
// drops the bucket itself once no partitions remain.
func (s *service) collectBucket(ctx context.Context, bucket index.Bucket, result *DeleteExpiredResult) {
	userIt, err := s.index.Users(ctx, bucket)
	if err != nil {
		s.logger.Error("failed to list users of expired bucket", "bucket", bucket, "error", err)
		result.FailedOwners++
		return
	}
	users, err := index.Collect(ctx, userIt)
	if err != nil {
		s.logger.Error("failed to iterate users of expired bucket", "bucket", bucket, "error", err)
		result.FailedOwners++
		return
	}

	sem := semaphore.NewWeighted(int64(s.opts.maxConcurrentGC))
	var wg sync.WaitGroup
	var dropped, failures int64

	for _, owner := range users {
		if err := sem.Acquire(ctx, 1); err != nil {
			atomic.AddInt64(&failures, 1)
			break
		}
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			defer sem.Release(1)
			n, err := s.collectOwner(ctx, bucket, owner)
			atomic.AddInt64(&dropped, n)
			if err != nil {
				// Per-owner failures are tolerated: log, count, and let
				// the next run retry this partition.
				s.logger.Error("failed to clean owner partition",
					"bucket", bucket, "owner", owner, "error", err)
				atomic.AddInt64(&failures, 1)
			}
		}(owner)
	}
	wg.Wait()

	result.DeletedMessages += dropped
	result.FailedOwners += int(failures)

	if failures > 0 {
		s.logger.Warn("keeping expired bucket, some owner partitions failed",
			"bucket", bucket, "failed_owners", failures)
		return
	}

	// Drop the bucket only while it stays empty. An append racing into the
	// expiring bucket re-registers its owner; the re-check sees it and
	// leaves the bucket for the next run.
	ok, err := s.gcRetry.Do(ctx, func(ctx context.Context) (bool, error) {
		remainingIt, err := s.index.Users(ctx, bucket)
		if err != nil {
			return false, fmt.Errorf("recheck users: %w", err)
		}
		remaining, err := index.Collect(ctx, remainingIt)
		if err != nil {
			return false, fmt.Errorf("recheck users: %w", err)
		}
		if len(remaining) > len(users) {
			return false, nil
		}
		if err := s.index.DeleteBucket(ctx, bucket); err != nil {
			return false, fmt.Errorf("delete bucket: %w", err)
		}
		return true, nil
	})
	if err != nil {
		s.logger.Error("failed to drop expired bucket", "bucket", bucket, "error", err)
		result.FailedOwners++
		return
	}
	if !ok {
		s.logger.Warn("expired bucket kept busy by concurrent appends, retrying next run",
			"bucket", bucket)
		return
	}

	result.DeletedBuckets++
	s.logger.Info("dropped expired bucket",
		"bucket", bucket, "owners", len(users), "messages", dropped)

	if perr := s.events.BucketExpired.Publish(ctx, BucketExpiredEvent{
		Bucket:          bucket,
		OwnerCount:      len(users),
		MessagesDropped: dropped,
		ExpiredAt:       s.opts.clock(),
	}); perr != nil {
		s.opts.safeEventPublishFailure("BucketExpired", perr)
	}
}

// collectOwner drops one owner's partition of an expired bucket: content
// blobs, storage references, then the metadata rows. Returns how many
// messages were dropped.
func (s *service) collectOwner(ctx context.Context, bucket index.Bucket, owner string) (int64, error) {
	idIt, err := s.index.ListMessageIDs(ctx, bucket, owner)
	if err != nil {
		return 0, fmt.Errorf("list message ids: %w", err)
	}
	ids, err := index.Collect(ctx, idIt)
	if err != nil {
		return 0, fmt.Errorf("iterate message ids: %w", err)
	}

	var dropped int64
	for _, id := range ids {
		info, err := s.index.Retrieve(ctx, owner, id)
		if err != nil {
			if index.IsNotFound(err) {
				// Reference already removed by an early Delete; only the
				// metadata row remains.
				dropped++
				continue
			}
			return dropped, fmt.Errorf("retrieve reference for %s: %w", id, err)
		}

		// A reference pointing at a newer bucket means the message was
		// re-appended after this copy; leave it alone.
		if info.Bucket != bucket {
			dropped++
			continue
		}

		if err := s.blobs.Delete(ctx, blob.ID(info.BlobID)); err != nil {
			s.logger.Warn("failed to delete content blob, leaving orphan",
				"blob_id", info.BlobID, "owner", owner, "error", err)
		}
		if err := s.index.Remove(ctx, owner, id); err != nil {
			return dropped, fmt.Errorf("remove reference for %s: %w", id, err)
		}
		dropped++
	}

	if err := s.index.DeleteInBucket(ctx, bucket, owner); err != nil {
		return dropped, fmt.Errorf("delete metadata partition: %w", err)
	}
	return dropped, nil
}
