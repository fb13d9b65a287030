// Package s3 stores the queue as JSON objects in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awss3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/nimburion/offlinequeue/pkg/awsutil"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/store/gate"
)

const (
	defaultOperationTimeout = 10 * time.Second
	healthTimeout           = 2 * time.Second
)

// Config selects the bucket and an optional key prefix, such as a device id.
type Config struct {
	Bucket           string
	Prefix           string
	Region           string
	Endpoint         string
	AccessKeyID      string
	SecretAccessKey  string
	SessionToken     string
	UsePathStyle     bool
	OperationTimeout time.Duration
}

type s3API interface {
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
}

// S3Adapter is a store.KV with one object per key. The key
// "offline_queue:queue" under prefix "dev-1" becomes "dev-1/offline_queue/queue.json".
type S3Adapter struct {
	client s3API
	bucket string
	prefix string
	log    logger.Logger
	gate   *gate.Gate
}

// NewS3Adapter builds a client and checks the bucket is reachable.
func NewS3Adapter(cfg Config, log logger.Logger) (*S3Adapter, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaultOperationTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	defer cancel()

	awsCfg, err := awsutil.Load(ctx, awsutil.Settings{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
	})
	if err != nil {
		return nil, err
	}
	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		// MinIO and LocalStack need path-style addressing
		o.UsePathStyle = cfg.UsePathStyle
	})

	a := newAdapterWithClient(client, cfg, log)
	if err := a.Ping(ctx); err != nil {
		return nil, err
	}
	log.Info("s3 store ready", "bucket", a.bucket, "prefix", a.prefix, "region", awsCfg.Region)
	return a, nil
}

func newAdapterWithClient(client s3API, cfg Config, log logger.Logger) *S3Adapter {
	return &S3Adapter{
		client: client,
		bucket: strings.TrimSpace(cfg.Bucket),
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
		log:    log,
		gate:   gate.New("s3", cfg.OperationTimeout),
	}
}

// Ping checks the bucket exists and is accessible.
func (a *S3Adapter) Ping(ctx context.Context) error {
	ctx, cancel, err := a.gate.Enter(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	if _, err := a.client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Get maps NoSuchKey to found=false.
func (a *S3Adapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel, err := a.gate.Enter(ctx)
	if err != nil {
		return nil, false, err
	}
	defer cancel()

	name := a.objectKey(key)
	resp, err := a.client.GetObject(ctx, &awss3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(name)})
	var missing *awss3types.NoSuchKey
	switch {
	case errors.As(err, &missing):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("get object %s: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read object %s: %w", name, err)
	}
	return body, true, nil
}

func (a *S3Adapter) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel, err := a.gate.Enter(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	name := a.objectKey(key)
	_, err = a.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(name),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", name, err)
	}
	return nil
}

func (a *S3Adapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := a.Ping(ctx); err != nil {
		a.log.Warn("s3 store unhealthy", "bucket", a.bucket, "error", err)
		return fmt.Errorf("s3 health check: %w", err)
	}
	return nil
}

// Close rejects later calls.
func (a *S3Adapter) Close() error {
	a.gate.Shut()
	return nil
}

func (a *S3Adapter) objectKey(key string) string {
	return path.Join(a.prefix, strings.ReplaceAll(key, ":", "/")+".json")
}
