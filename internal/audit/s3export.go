package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// objectPutter is the subset of *s3.Client the exporter uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures an S3Exporter.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for MinIO or LocalStack
	Prefix    string
	BatchSize int
}

// S3Exporter writes the audit log to S3 as JSON-lines objects, one object
// per exported batch. Object keys are derived from the index range, so
// re-exporting a range overwrites the same object.
type S3Exporter struct {
	client objectPutter
	cfg    S3Config
	logger *zap.Logger

	mu   sync.Mutex
	next int
}

// NewS3Exporter loads the default AWS configuration and builds a client.
func NewS3Exporter(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Exporter, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Exporter(client, cfg, logger), nil
}

func newS3Exporter(client objectPutter, cfg S3Config, logger *zap.Logger) *S3Exporter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &S3Exporter{client: client, cfg: cfg, logger: logger}
}

// Export verifies the chain and uploads every entry not yet exported.
// It returns the number of entries written.
func (x *S3Exporter) Export(ctx context.Context, log Log) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := log.Verify(ctx); err != nil {
		return 0, fmt.Errorf("refusing to export unverified log: %w", err)
	}

	written := 0
	for {
		batch, err := log.Range(ctx, x.next, x.cfg.BatchSize)
		if err != nil {
			return written, err
		}
		if len(batch) == 0 {
			return written, nil
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, e := range batch {
			if err := enc.Encode(e); err != nil {
				return written, fmt.Errorf("encode entry %d: %w", e.Index, err)
			}
		}

		first, last := batch[0].Index, batch[len(batch)-1].Index
		key := fmt.Sprintf("%saudit-%010d-%010d.jsonl", x.cfg.Prefix, first, last)
		if _, err := x.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(x.cfg.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(buf.Bytes()),
			ContentType: aws.String("application/x-ndjson"),
		}); err != nil {
			return written, fmt.Errorf("s3 put %s: %w", key, err)
		}

		x.logger.Info("audit batch exported", zap.String("key", key), zap.Int("entries", len(batch)))
		x.next = last + 1
		written += len(batch)
		if len(batch) < x.cfg.BatchSize {
			return written, nil
		}
	}
}
