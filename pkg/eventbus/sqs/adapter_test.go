package sqs

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/nimburion/offlinequeue/pkg/eventbus"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

type fakeSQS struct {
	sent      []*sqs.SendMessageInput
	sendErr   error
	attrErr   error
	attrCalls int
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("sqs-1")}, nil
}

func (f *fakeSQS) GetQueueAttributes(context.Context, *sqs.GetQueueAttributesInput, ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	f.attrCalls++
	if f.attrErr != nil {
		return nil, f.attrErr
	}
	return &sqs.GetQueueAttributesOutput{}, nil
}

func TestNewProducer_Validation(t *testing.T) {
	if _, err := NewProducer(Config{}, logger.NewNopLogger()); err == nil {
		t.Fatal("expected error for empty region and queue URL")
	}
	if _, err := NewProducer(Config{Region: "eu-west-1"}, logger.NewNopLogger()); err == nil {
		t.Fatal("expected error for empty queue URL")
	}
}

func TestPublish_StandardQueue(t *testing.T) {
	client := &fakeSQS{}
	p := NewProducerWithClient(client, Config{QueueURL: "https://sqs/123/mutations"}, nil)

	err := p.Publish(context.Background(), "", &eventbus.Message{
		ID:          "req-1",
		Key:         "/todos",
		Value:       []byte(`{"title":"x"}`),
		Headers:     map[string]string{"x-mutation-type": "UPDATE"},
		ContentType: "application/json",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(client.sent))
	}
	in := client.sent[0]
	if aws.ToString(in.QueueUrl) != "https://sqs/123/mutations" || aws.ToString(in.MessageBody) != `{"title":"x"}` {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.MessageGroupId != nil || in.MessageDeduplicationId != nil {
		t.Fatal("standard queues must not carry FIFO fields")
	}
	if got := aws.ToString(in.MessageAttributes["x-mutation-type"].StringValue); got != "UPDATE" {
		t.Fatalf("unexpected attribute: %q", got)
	}
	if got := aws.ToString(in.MessageAttributes["content-type"].StringValue); got != "application/json" {
		t.Fatalf("unexpected content type attribute: %q", got)
	}
}

func TestPublish_FIFOQueue(t *testing.T) {
	client := &fakeSQS{}
	p := NewProducerWithClient(client, Config{QueueURL: "https://sqs/123/default"}, nil)

	if err := p.Publish(context.Background(), "https://sqs/123/mutations.fifo", &eventbus.Message{ID: "req-9", Key: "/notes"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	in := client.sent[0]
	if aws.ToString(in.MessageGroupId) != "/notes" || aws.ToString(in.MessageDeduplicationId) != "req-9" {
		t.Fatalf("unexpected FIFO fields: group=%v dedup=%v", in.MessageGroupId, in.MessageDeduplicationId)
	}
}

func TestPublish_Errors(t *testing.T) {
	p := NewProducerWithClient(&fakeSQS{sendErr: errors.New("throttled")}, Config{QueueURL: "q"}, nil)
	if err := p.Publish(context.Background(), "", &eventbus.Message{ID: "1"}); err == nil {
		t.Fatal("expected send error")
	}
	if err := p.Publish(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for nil message")
	}
}

func TestHealthCheckAndClose(t *testing.T) {
	client := &fakeSQS{}
	p := NewProducerWithClient(client, Config{QueueURL: "q"}, nil)
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check: %v", err)
	}

	client.attrErr = errors.New("queue does not exist")
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check failure")
	}

	_ = p.Close()
	if err := p.Publish(context.Background(), "", &eventbus.Message{}); !errors.Is(err, eventbus.ErrProducerClosed) {
		t.Fatalf("expected ErrProducerClosed, got %v", err)
	}
	if err := p.HealthCheck(context.Background()); !errors.Is(err, eventbus.ErrProducerClosed) {
		t.Fatalf("expected ErrProducerClosed, got %v", err)
	}
}
