package artifacts

import (
	"context"
	"fmt"
	"path/filepath"
)

// StoreType selects a content store backend.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFS     StoreType = "fs"
	StoreTypeS3     StoreType = "s3"
	StoreTypeGCS    StoreType = "gcs"
)

// Config selects and configures a backend.
type Config struct {
	Type StoreType
	// DataDir is the root for the fs backend; content lives in DataDir/content.
	DataDir string
	Bucket  string
	Region  string
	// Endpoint overrides the S3 endpoint.
	Endpoint string
	Prefix   string
}

// NewStore builds the configured backend. The zero Config is a MemoryStore.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeFS:
		dir := cfg.DataDir
		if dir == "" {
			dir = "data"
		}
		return NewFileStore(filepath.Join(dir, "content"))
	case StoreTypeS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("PATH402_CONTENT_BUCKET is required for S3 storage")
		}
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3StoreConfig{Bucket: cfg.Bucket, Region: region, Endpoint: cfg.Endpoint, Prefix: cfg.Prefix})
	case StoreTypeGCS:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("PATH402_CONTENT_BUCKET is required for GCS storage")
		}
		return newGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported content storage type: %s", cfg.Type)
	}
}
