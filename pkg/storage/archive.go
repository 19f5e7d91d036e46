package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethpandaops/qfsync/pkg/config"
	"github.com/sirupsen/logrus"
)

// ObjectPutter writes an object to remote storage.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// Archiver copies a synced report next to the tracker cycle it populated.
type Archiver struct {
	log   logrus.FieldLogger
	cfg   *config.S3Config
	store ObjectPutter
}

// NewArchiver creates an Archiver writing to the bucket and prefix in cfg.
func NewArchiver(log logrus.FieldLogger, cfg *config.S3Config, store ObjectPutter) *Archiver {
	return &Archiver{
		log:   log.WithField("component", "archiver"),
		cfg:   cfg,
		store: store,
	}
}

// Archive uploads the report file at localPath and returns its s3:// location.
func (a *Archiver) Archive(ctx context.Context, cycleID int64, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("reading report: %w", err)
	}

	key := a.resolveKey(cycleID, filepath.Base(localPath))

	if err := a.store.PutObject(ctx, a.cfg.Bucket, key, data, reportContentType(localPath)); err != nil {
		return "", fmt.Errorf("archiving report: %w", err)
	}

	location := "s3://" + a.cfg.Bucket + "/" + key

	a.log.WithField("location", location).Info("Archived report")

	return location, nil
}

// resolveKey builds the object key for a report archived under a cycle.
func (a *Archiver) resolveKey(cycleID int64, baseName string) string {
	prefix := strings.Trim(a.cfg.Prefix, "/")
	if prefix == "" {
		prefix = strings.Trim(config.DefaultArchivePrefix, "/")
	}

	return path.Join(prefix, "cycle-"+strconv.FormatInt(cycleID, 10), baseName)
}
