package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/internal/relay/core/recorder"
	"github.com/hydronom-io/hydronom/pkg/log"
	"github.com/hydronom-io/hydronom/pkg/options"
)

// S3 writes each flushed batch as one JSONL object. Object keys derive
// from the batch's logical time range, so a retried batch overwrites the
// same object.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string

	mu   sync.Mutex
	last model.LogicalTime
}

var _ recorder.Sink = (*S3)(nil)

func NewS3(ctx context.Context, opts *options.S3Options) (*S3, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	s := &S3{client: client, bucket: opts.BucketName, prefix: opts.Prefix}
	if err := s.checkBucket(ctx, opts.Region); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *S3) checkBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", s.bucket)
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (s *S3) Append(ctx context.Context, records []model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records = unwritten(records, s.last)
	if len(records) == 0 {
		return nil
	}
	body, err := encodeLines(records)
	if err != nil {
		return err
	}

	key := objectKey(s.prefix, records)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/x-ndjson"})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.last = records[len(records)-1].LogicalTime
	return nil
}

// objectKey is {prefix}/{yyyy}/{mm}/{dd}/{first}-{last}.jsonl, dated by
// the first record. Zero padding keeps keys in log order.
func objectKey(prefix string, records []model.Record) string {
	first, last := records[0], records[len(records)-1]
	at := first.At.UTC()
	return path.Join(prefix,
		fmt.Sprintf("%04d/%02d/%02d", at.Year(), at.Month(), at.Day()),
		fmt.Sprintf("%020d-%020d.jsonl", uint64(first.LogicalTime), uint64(last.LogicalTime)))
}
