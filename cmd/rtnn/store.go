package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/rtnn/blobstore"
	minioblob "github.com/hupe1980/rtnn/blobstore/minio"
	s3blob "github.com/hupe1980/rtnn/blobstore/s3"
)

// openStore resolves a dataset location to a store and a blob name.
//
//	path/to/points.rtnn                 local file
//	s3://bucket/key                     Amazon S3 (AWS default credentials)
//	minio://host:port/bucket/key        MinIO (MINIO_ACCESS_KEY, MINIO_SECRET_KEY)
func openStore(ctx context.Context, location string) (blobstore.Store, string, error) {
	scheme, rest, ok := strings.Cut(location, "://")
	if !ok {
		dir, name := filepath.Split(location)
		if dir == "" {
			dir = "."
		}
		return blobstore.NewLocalStore(dir), name, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, "", fmt.Errorf("invalid location %q: %w", location, err)
	}

	switch scheme {
	case "file":
		dir, name := filepath.Split(filepath.FromSlash(rest))
		return blobstore.NewLocalStore(dir), name, nil
	case "s3":
		var opts []s3blob.Option
		if region := u.Query().Get("region"); region != "" {
			opts = append(opts, s3blob.WithRegion(region))
		}
		if endpoint := os.Getenv("RTNN_S3_ENDPOINT"); endpoint != "" {
			opts = append(opts, s3blob.WithEndpoint(endpoint))
		}
		store, err := s3blob.New(ctx, u.Host, opts...)
		if err != nil {
			return nil, "", err
		}
		return store, strings.TrimPrefix(u.Path, "/"), nil
	case "minio":
		bucket, key, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if !ok || key == "" {
			return nil, "", fmt.Errorf("invalid location %q: want minio://host/bucket/key", location)
		}
		client, err := minioblob.Dial(u.Host, os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"),
			u.Query().Get("secure") == "true")
		if err != nil {
			return nil, "", err
		}
		return minioblob.NewStore(client, bucket, ""), key, nil
	default:
		return nil, "", fmt.Errorf("unsupported scheme %q in %q", scheme, location)
	}
}
