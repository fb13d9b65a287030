// Package dynamodb stores the queue as items of a DynamoDB table.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nimburion/offlinequeue/pkg/awsutil"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/store/gate"
)

const (
	keyAttribute       = "store_key"
	valueAttribute     = "store_value"
	updatedAtAttribute = "updated_at"
)

// Config holds DynamoDB adapter configuration.
type Config struct {
	Table            string
	Region           string
	Endpoint         string
	AccessKeyID      string
	SecretAccessKey  string
	SessionToken     string
	OperationTimeout time.Duration
}

type dynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoDBAdapter is a store.KV where each key is one item with a binary value attribute.
// The table must have a string partition key named store_key.
type DynamoDBAdapter struct {
	client dynamoAPI
	table  string
	logger logger.Logger
	gate   *gate.Gate
	now    func() time.Time
}

// NewDynamoDBAdapter builds a client and checks the table exists.
func NewDynamoDBAdapter(cfg Config, log logger.Logger) (*DynamoDBAdapter, error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, errors.New("dynamodb table is required")
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
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
	adapter := newAdapterWithClient(dynamodb.NewFromConfig(awsCfg), cfg, log)
	if err := adapter.Ping(ctx); err != nil {
		return nil, err
	}
	log.Info("dynamodb store ready", "table", adapter.table, "region", awsCfg.Region)
	return adapter, nil
}

func newAdapterWithClient(client dynamoAPI, cfg Config, log logger.Logger) *DynamoDBAdapter {
	return &DynamoDBAdapter{
		client: client,
		table:  strings.TrimSpace(cfg.Table),
		logger: log,
		gate:   gate.New("dynamodb", cfg.OperationTimeout),
		now:    time.Now,
	}
}

// Ping checks that the table is reachable.
func (a *DynamoDBAdapter) Ping(ctx context.Context) error {
	opCtx, cancel, err := a.gate.Enter(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	if _, err := a.client.DescribeTable(opCtx, &dynamodb.DescribeTableInput{TableName: aws.String(a.table)}); err != nil {
		return fmt.Errorf("describe table %s: %w", a.table, err)
	}
	return nil
}

// Get reads the item for key with a strongly consistent read.
func (a *DynamoDBAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	opCtx, cancel, err := a.gate.Enter(ctx)
	if err != nil {
		return nil, false, err
	}
	defer cancel()

	out, err := a.client.GetItem(opCtx, &dynamodb.GetItemInput{
		TableName:      aws.String(a.table),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("dynamodb get %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}
	attr, ok := out.Item[valueAttribute].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false, fmt.Errorf("item %s has no binary %s attribute", key, valueAttribute)
	}
	return attr.Value, true, nil
}

// Set replaces the item for key.
func (a *DynamoDBAdapter) Set(ctx context.Context, key string, value []byte) error {
	opCtx, cancel, err := a.gate.Enter(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if value == nil {
		value = []byte{}
	}
	_, err = a.client.PutItem(opCtx, &dynamodb.PutItemInput{
		TableName: aws.String(a.table),
		Item: map[string]types.AttributeValue{
			keyAttribute:       itemKey(key)[keyAttribute],
			valueAttribute:     &types.AttributeValueMemberB{Value: value},
			updatedAtAttribute: &types.AttributeValueMemberN{Value: strconv.FormatInt(a.now().UnixMilli(), 10)},
		},
	})
	if IsThrottlingError(err) {
		a.logger.Warn("dynamodb write throttled", "table", a.table, "key", key)
	}
	if err != nil {
		return fmt.Errorf("dynamodb put %s: %w", key, err)
	}
	return nil
}

// HealthCheck pings the table with a short timeout.
func (a *DynamoDBAdapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Ping(ctx); err != nil {
		a.logger.Warn("dynamodb store unhealthy", "error", err)
		return fmt.Errorf("dynamodb health check: %w", err)
	}
	return nil
}

// Close rejects later calls; the SDK client holds no connections to release.
func (a *DynamoDBAdapter) Close() error {
	a.gate.Shut()
	return nil
}

func itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{keyAttribute: &types.AttributeValueMemberS{Value: key}}
}

// IsThrottlingError reports whether err is a provisioned throughput rejection.
func IsThrottlingError(err error) bool {
	var pte *types.ProvisionedThroughputExceededException
	return err != nil && errors.As(err, &pte)
}
