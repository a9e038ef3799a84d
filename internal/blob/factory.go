package blob

import (
	"context"
	"fmt"
)

// Config selects and parameterizes a driver.
type Config struct {
	Driver Driver
	Dir    string // fs root
	S3     S3Config
	MinIO  MinIOConfig
}

// Open returns the Store selected by cfg.Driver (default fs).
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.Dir)
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMinIO:
		return NewMinIO(ctx, cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
