package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nimburion/offlinequeue/pkg/eventbus"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	published []published
	err       error
	closed    int
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed++
	return nil
}

type fakeConnection struct {
	closed bool
}

func (c *fakeConnection) Channel() (*amqp.Channel, error) { return nil, errors.New("not connected") }
func (c *fakeConnection) IsClosed() bool                  { return c.closed }
func (c *fakeConnection) Close() error {
	c.closed = true
	return nil
}

func newTestProducer(ch channel, conn connection) *Producer {
	cfg := Config{RoutingKey: "mutations.default"}
	cfg.applyDefaults()
	return &Producer{conn: conn, pubCh: ch, logger: logger.NewNopLogger(), config: cfg}
}

func TestNewProducer_Validation(t *testing.T) {
	if _, err := NewProducer(Config{}, logger.NewNopLogger()); err == nil {
		t.Fatal("expected validation error for empty URL")
	}
}

func TestPublish_RoutingKey(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestProducer(ch, &fakeConnection{})
	msg := &eventbus.Message{
		ID:          "req-1",
		Value:       []byte(`{}`),
		Headers:     map[string]string{"x-mutation-endpoint": "/todos"},
		ContentType: "application/json",
		Timestamp:   time.Now(),
	}

	if err := p.Publish(context.Background(), "todos.create", msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Publish(context.Background(), "", msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(ch.published) != 2 {
		t.Fatalf("expected 2 publishings, got %d", len(ch.published))
	}
	if ch.published[0].key != "todos.create" || ch.published[1].key != "mutations.default" {
		t.Fatalf("unexpected routing keys: %q %q", ch.published[0].key, ch.published[1].key)
	}
	first := ch.published[0]
	if first.exchange != "mutations" || first.msg.MessageId != "req-1" || first.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing: %+v", first)
	}
	if first.msg.Headers["x-mutation-endpoint"] != "/todos" {
		t.Fatalf("headers not propagated: %v", first.msg.Headers)
	}
}

func TestPublish_ChannelError(t *testing.T) {
	p := newTestProducer(&fakeChannel{err: errors.New("channel closed")}, &fakeConnection{})
	if err := p.Publish(context.Background(), "k", &eventbus.Message{ID: "1"}); err == nil {
		t.Fatal("expected error")
	}
	if err := p.Publish(context.Background(), "k", nil); err == nil {
		t.Fatal("expected error for nil message")
	}
}

func TestHealthCheck(t *testing.T) {
	conn := &fakeConnection{closed: true}
	p := newTestProducer(&fakeChannel{}, conn)
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error for closed connection")
	}

	conn.closed = false
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error when no channel can be opened")
	}
}

func TestClose(t *testing.T) {
	ch := &fakeChannel{}
	conn := &fakeConnection{}
	p := newTestProducer(ch, conn)

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if ch.closed != 1 || !conn.closed {
		t.Fatalf("resources not released: channel=%d conn=%v", ch.closed, conn.closed)
	}
	if err := p.Publish(context.Background(), "k", &eventbus.Message{}); !errors.Is(err, eventbus.ErrProducerClosed) {
		t.Fatalf("expected ErrProducerClosed, got %v", err)
	}
}
