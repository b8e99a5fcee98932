// Package s3 stores rtnn datasets in Amazon S3.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("datasets/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	points, err := dataset.Load(ctx, store, "bunny.rtnn")
//
// Reads are ranged GetObject calls; writes go through the managed uploader,
// which switches to multipart uploads above the part size.
package s3
