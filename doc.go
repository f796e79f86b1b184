// Package vault provides a deleted message vault: a retention store that
// keeps a copy of every mail a user deletes, searchable by metadata, until a
// configurable retention period expires.
//
// The vault separates content from metadata. Raw mail bytes go to a
// blob.Store (S3, GCS, in-memory, optionally Redis-cached); searchable
// metadata and storage references go to an index.Index (MongoDB, PostgreSQL,
// in-memory). Everything is partitioned into time buckets derived from the
// deletion date, so expired data is dropped a whole bucket at a time instead
// of row by row.
//
// Basic usage:
//
//	idx := memory.New()
//	blobs := blobmemory.New()
//	svc, err := vault.NewService(
//		vault.WithIndex(idx),
//		vault.WithBlobStore(blobs),
//		vault.WithRetention(365*24*time.Hour),
//	)
//	if err != nil { ... }
//	if err := svc.Connect(ctx); err != nil { ... }
//	defer svc.Close(ctx)
//
//	err = svc.Append(ctx, msg, bytes.NewReader(rawMail))
//	it, err := svc.Search(ctx, "owner@example.com", query.Of(
//		query.SubjectContains("invoice"),
//	))
//
// Garbage collection is driven by the application's scheduler: call
// DeleteExpired periodically to drop buckets whose retention window has
// fully passed.
package vault
