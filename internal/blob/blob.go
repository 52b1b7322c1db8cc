// Package blob stores floor-plan images on the filesystem, in S3 or in memory.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"speedmap-platform/pkg/metrics"
)

const (
	DriverFilesystem = "fs"
	DriverS3         = "s3"
	DriverMemory     = "memory"
)

// ErrNotFound is returned when a key has no stored object
var ErrNotFound = errors.New("blob not found")

// Info describes a stored object
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	LastModified time.Time `json:"last_modified"`
}

// Store is a flat key/value object store. Put replaces any existing object.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Driver() string
}

// Config selects and configures a driver
type Config struct {
	Driver    string
	Root      string
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
	AccessKey string
	SecretKey string
}

// Open builds the configured store, instrumented with metricsCollector
func Open(ctx context.Context, cfg Config, metricsCollector *metrics.Collector) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case DriverFilesystem, "":
		s, err = NewFilesystem(cfg.Root)
	case DriverS3:
		s, err = NewS3(ctx, S3Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			PathStyle:       cfg.PathStyle,
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
		})
	case DriverMemory:
		s = NewMemory()
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(s, metricsCollector), nil
}

// FloorplanKey is the object key of a project's floor plan
func FloorplanKey(projectID string) string {
	return "projects/" + projectID + "/floorplan"
}

type instrumented struct {
	Store
	metrics *metrics.Collector
}

// Instrument records per-operation latency of s
func Instrument(s Store, metricsCollector *metrics.Collector) Store {
	if metricsCollector == nil {
		return s
	}
	return &instrumented{Store: s, metrics: metricsCollector}
}

func (i *instrumented) timer(op string) *metrics.Timer {
	return i.metrics.NewTimer(i.metrics.BlobOperationTime.WithLabelValues(i.Store.Driver(), op))
}

func (i *instrumented) Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error) {
	defer i.timer("put").ObserveDuration()
	return i.Store.Put(ctx, key, r, contentType)
}

func (i *instrumented) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	defer i.timer("get").ObserveDuration()
	return i.Store.Get(ctx, key)
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	defer i.timer("delete").ObserveDuration()
	return i.Store.Delete(ctx, key)
}
