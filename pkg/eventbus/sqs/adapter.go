package sqs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/nimburion/offlinequeue/pkg/awsutil"
	"github.com/nimburion/offlinequeue/pkg/eventbus"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

// API is the subset of the SQS client used by the producer.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// Producer implements eventbus.Producer for AWS SQS.
type Producer struct {
	client API
	logger logger.Logger
	config Config
	mu     sync.RWMutex
	closed bool
}

// Config holds SQS producer configuration.
type Config struct {
	Region           string
	QueueURL         string
	Endpoint         string
	AccessKeyID      string
	SecretAccessKey  string
	SessionToken     string
	OperationTimeout time.Duration
}

// NewProducer loads the AWS configuration, supporting a custom endpoint for
// local emulators, and verifies the queue exists.
func NewProducer(cfg Config, log logger.Logger) (*Producer, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("aws region is required")
	}
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs queue URL is required")
	}

	awsCfg, err := awsutil.Load(context.Background(), awsutil.Settings{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
	})
	if err != nil {
		return nil, err
	}

	p := NewProducerWithClient(sqs.NewFromConfig(awsCfg), cfg, log)
	if err := p.HealthCheck(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

// NewProducerWithClient builds a producer on an existing client.
func NewProducerWithClient(client API, cfg Config, log logger.Logger) *Producer {
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Producer{client: client, logger: log, config: cfg}
}

// Publish sends message to the queue named by topic, or the configured queue
// when topic is empty. FIFO queues group by message key and deduplicate by id.
func (p *Producer) Publish(ctx context.Context, topic string, message *eventbus.Message) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("sqs: %w", eventbus.ErrProducerClosed)
	}
	if message == nil {
		return fmt.Errorf("message is required")
	}

	queueURL := p.resolveQueueURL(topic)
	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(queueURL),
		MessageBody:       aws.String(string(message.Value)),
		MessageAttributes: toSQSAttributes(message.Headers, message.ContentType),
	}
	if strings.HasSuffix(queueURL, ".fifo") {
		group := message.Key
		if group == "" {
			group = "default"
		}
		input.MessageGroupId = aws.String(group)
		input.MessageDeduplicationId = aws.String(message.ID)
	}

	opCtx, cancel := context.WithTimeout(ctx, p.config.OperationTimeout)
	defer cancel()

	out, err := p.client.SendMessage(opCtx, input)
	if err != nil {
		return fmt.Errorf("failed to publish sqs message: %w", err)
	}
	p.logger.Debug("message published",
		"queue_url", queueURL,
		"message_id", message.ID,
		"sqs_message_id", aws.ToString(out.MessageId),
	)
	return nil
}

// HealthCheck reads the queue ARN.
func (p *Producer) HealthCheck(ctx context.Context) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("sqs: %w", eventbus.ErrProducerClosed)
	}

	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := p.client.GetQueueAttributes(hcCtx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(p.config.QueueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return fmt.Errorf("sqs health check failed: %w", err)
	}
	return nil
}

// Close marks the producer closed. The SQS client holds no connections.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Producer) resolveQueueURL(topic string) string {
	if topic != "" {
		return topic
	}
	return p.config.QueueURL
}

func toSQSAttributes(headers map[string]string, contentType string) map[string]types.MessageAttributeValue {
	if len(headers) == 0 && contentType == "" {
		return nil
	}
	out := make(map[string]types.MessageAttributeValue, len(headers)+1)
	for k, v := range headers {
		out[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	if contentType != "" {
		out["content-type"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(contentType)}
	}
	return out
}
