// Package blobstore provides storage for rtnn datasets and result files.
//
// A Store reads and writes immutable blobs by name. Implementations must be
// safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, blobs are memory mapped
//   - MemoryStore: in-process map, useful in tests
//   - s3.Store: Amazon S3 with ranged reads and managed uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// Remote blobs are pulled with Fetch, which issues ranged reads in parallel.
package blobstore
