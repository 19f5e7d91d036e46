package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/ethpandaops/qfsync/pkg/config"
	"github.com/sirupsen/logrus"
)

const defaultRegion = "us-east-1"

// S3Store is the bucket access shared by the report source and the archiver.
type S3Store struct {
	log    logrus.FieldLogger
	cfg    *config.S3Config
	client *s3.Client
}

// NewS3Store builds a store for the endpoint and credentials in cfg. The
// bucket is passed per call.
func NewS3Store(log logrus.FieldLogger, cfg *config.S3Config) *S3Store {
	return &S3Store{
		log:    log.WithField("component", "s3-store"),
		cfg:    cfg,
		client: newS3Client(cfg),
	}
}

func newS3Client(cfg *config.S3Config) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = cfg.Region
			if o.Region == "" {
				o.Region = defaultRegion
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			o.UsePathStyle = cfg.ForcePathStyle

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}

// GetObject downloads bucket/key. An absent object yields a nil slice and
// a nil error, which junit.Open turns into a missing report.
func (s *S3Store) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isMissingObject(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting object s3://%s/%s: %w", bucket, key, err)
	}

	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object s3://%s/%s: %w", bucket, key, err)
	}

	s.log.WithFields(logrus.Fields{
		"bucket": bucket,
		"key":    key,
		"bytes":  len(data),
	}).Debug("Fetched object")

	return data, nil
}

// PutObject uploads data as bucket/key.
func (s *S3Store) PutObject(
	ctx context.Context, bucket, key string, data []byte, contentType string,
) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("putting object s3://%s/%s: %w", bucket, key, err)
	}

	return nil
}

// isMissingObject reports whether err means the report object is absent.
// MinIO and other S3-compatible servers answer with an untyped API error
// carrying the NoSuchKey or NotFound code.
func isMissingObject(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}

	return false
}

// reportContentType picks the Content-Type an archived report is stored with.
func reportContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".xml":
		return "application/xml"
	case "":
		return "application/octet-stream"
	}

	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}

	return "application/octet-stream"
}
