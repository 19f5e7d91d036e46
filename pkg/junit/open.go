package junit

import (
	"bytes"
	"context"
	"fmt"
	"strings"
)

// S3Scheme prefixes report locations that live in S3-compatible storage.
const S3Scheme = "s3://"

// ObjectGetter fetches an object's contents. A missing object is reported
// as (nil, nil).
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// Open parses the report at location, which is either a filesystem path or
// an s3://bucket/key URL. store may be nil when only local paths are used.
func Open(ctx context.Context, location string, store ObjectGetter) ([]Record, error) {
	if !strings.HasPrefix(location, S3Scheme) {
		return Parse(location)
	}

	bucket, key, err := SplitS3Location(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReportNotFound, err)
	}

	if store == nil {
		return nil, fmt.Errorf("%w: %s: s3 report source is not enabled", ErrReportNotFound, location)
	}

	data, err := store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %w", ErrReportNotFound, location, err)
	}

	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, location)
	}

	records, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", location, err)
	}

	return records, nil
}

// SplitS3Location splits s3://bucket/key into its bucket and key.
func SplitS3Location(location string) (string, string, error) {
	rest := strings.TrimPrefix(location, S3Scheme)

	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 location %q, expected s3://bucket/key", location)
	}

	return bucket, key, nil
}
