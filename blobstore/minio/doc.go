// Package minio stores rtnn datasets in MinIO or any S3-compatible service.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "datasets", "runs/")
//	points, err := dataset.Load(ctx, store, "bunny.rtnn")
//
// Dial builds the client from an endpoint URL and static credentials,
// which is what the rtnn command uses for minio:// dataset paths.
package minio
