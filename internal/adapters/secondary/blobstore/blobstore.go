// Package blobstore selects the BlobStore implementation named by
// STORAGE_DRIVER.
package blobstore

import (
	"fmt"

	"adapter-persistence-service/internal/adapters/secondary/memory"
	"adapter-persistence-service/internal/adapters/secondary/s3"
	"adapter-persistence-service/internal/config"
	"adapter-persistence-service/internal/core/domain"
	ports "adapter-persistence-service/internal/core/ports/output"
)

const defaultMemoryBucket = "memory"

func New(cfg *config.StorageConfig) (ports.BlobStore, error) {
	switch cfg.Driver {
	case config.DriverS3:
		return s3.NewStore(&cfg.S3)
	case config.DriverMemory:
		bucket := cfg.S3.Bucket
		if bucket == "" {
			bucket = defaultMemoryBucket
		}
		return memory.NewStore(bucket), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", domain.ErrValidation, cfg.Driver)
	}
}
