package messaging

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Dialer ブローカーへの接続を作る
type Dialer interface {
	Dial(url string) (Connection, error)
}

// Connection amqp.Connection のうち使う部分
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Channel amqp.Channel のうち使う部分（*amqp.Channel はそのまま満たす）
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPDialer amqp091-go で実際に接続する Dialer
//
// Timeout はTCP接続とハンドシェイクの上限。0 ならライブラリ既定の30秒
type AMQPDialer struct {
	Timeout time.Duration
}

const amqpHeartbeat = 10 * time.Second

func (d AMQPDialer) Dial(url string) (Connection, error) {
	cfg := amqp.Config{
		Heartbeat: amqpHeartbeat,
		Locale:    "en_US",
	}
	if d.Timeout > 0 {
		cfg.Dial = amqp.DefaultDial(d.Timeout)
	}
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *amqpConnection) IsClosed() bool {
	return c.conn.IsClosed()
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}

// declareQueue 永続キューを宣言する（既にあれば何もしない）
func declareQueue(ch Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}
