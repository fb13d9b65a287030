// Package factory builds the configured eventbus.Producer.
package factory

import (
	"fmt"
	"strings"

	"github.com/nimburion/offlinequeue/pkg/config"
	"github.com/nimburion/offlinequeue/pkg/eventbus"
	"github.com/nimburion/offlinequeue/pkg/eventbus/kafka"
	"github.com/nimburion/offlinequeue/pkg/eventbus/rabbitmq"
	"github.com/nimburion/offlinequeue/pkg/eventbus/sqs"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

// NewProducer selects and initializes the producer named by cfg.Type.
func NewProducer(cfg config.BrokerConfig, log logger.Logger) (eventbus.Producer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.BrokerTypeKafka:
		return opened(kafka.NewProducer(kafka.Config{
			Brokers:          cfg.Brokers,
			Topic:            cfg.Topic,
			OperationTimeout: cfg.OperationTimeout,
			MaxAttempts:      cfg.MaxAttempts,
		}, log))
	case config.BrokerTypeRabbitMQ:
		url := cfg.URL
		if url == "" && len(cfg.Brokers) > 0 {
			url = cfg.Brokers[0]
		}
		return opened(rabbitmq.NewProducer(rabbitmq.Config{
			URL:              url,
			Exchange:         cfg.Exchange,
			ExchangeType:     cfg.ExchangeType,
			RoutingKey:       cfg.RoutingKey,
			OperationTimeout: cfg.OperationTimeout,
		}, log))
	case config.BrokerTypeSQS:
		return opened(sqs.NewProducer(sqs.Config{
			Region:           cfg.Region,
			QueueURL:         cfg.QueueURL,
			Endpoint:         cfg.Endpoint,
			AccessKeyID:      cfg.AccessKeyID,
			SecretAccessKey:  cfg.SecretAccessKey,
			SessionToken:     cfg.SessionToken,
			OperationTimeout: cfg.OperationTimeout,
		}, log))
	default:
		return nil, fmt.Errorf("unsupported broker.type %q (supported: kafka, rabbitmq, sqs)", cfg.Type)
	}
}

func opened[T eventbus.Producer](p T, err error) (eventbus.Producer, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
