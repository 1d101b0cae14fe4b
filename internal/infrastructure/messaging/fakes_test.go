package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type queueDeclaration struct {
	name    string
	durable bool
}

type fakeChannel struct {
	mu         sync.Mutex
	deliveries chan amqp.Delivery
	declared   []queueDeclaration
	published  []amqp.Publishing
	routingKey []string
	prefetch   int
	publishErr error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 16)}
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.declared = append(c.declared, queueDeclaration{name: name, durable: durable})
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, msg)
	c.routingKey = append(c.routingKey, key)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeConnection struct {
	ch       *fakeChannel
	channels atomic.Int32
	closed   atomic.Bool
}

func (c *fakeConnection) Channel() (Channel, error) {
	if c.closed.Load() {
		return nil, amqp.ErrClosed
	}
	c.channels.Add(1)
	return c.ch, nil
}

func (c *fakeConnection) IsClosed() bool { return c.closed.Load() }

func (c *fakeConnection) Close() error {
	c.closed.Store(true)
	return nil
}

// fakeDialer 呼ばれるたびに conns を先頭から返す。尽きたらエラー。delay だけ接続に時間がかかる
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConnection
	errs  []error
	dials int
	delay time.Duration
}

var errBrokerDown = errors.New("dial tcp: connection refused")

func (d *fakeDialer) Dial(string) (Connection, error) {
	d.mu.Lock()
	n := d.dials
	d.dials++
	d.mu.Unlock()

	time.Sleep(d.delay)

	d.mu.Lock()
	defer d.mu.Unlock()
	if n < len(d.errs) && d.errs[n] != nil {
		return nil, d.errs[n]
	}
	if n < len(d.conns) && d.conns[n] != nil {
		return d.conns[n], nil
	}
	return nil, errBrokerDown
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// fakeAcknowledger ack/nack/reject を events に流す
type fakeAcknowledger struct {
	events chan string
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{events: make(chan string, 32)}
}

func (a *fakeAcknowledger) Ack(uint64, bool) error {
	a.events <- "ack"
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	if requeue {
		a.events <- "nack-requeue"
	} else {
		a.events <- "nack"
	}
	return nil
}

func (a *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	if requeue {
		a.events <- "reject-requeue"
	} else {
		a.events <- "reject"
	}
	return nil
}
