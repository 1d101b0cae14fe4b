package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/singleflight"

	"PlaceFinder-App/internal/domain/model"
)

// Producer 座標メッセージを永続キューに送る
//
// 接続は最初の送信時に張り、閉じていれば次の送信で張り直す。送信ごとにチャネルを開く。
// 同時に来た送信の接続は1本にまとめ、各送信は自分の ctx が切れた時点で待つのをやめる。
type Producer struct {
	dialer Dialer
	url    string
	queue  string
	logger logr.Logger

	dials singleflight.Group

	mu   sync.Mutex
	conn Connection
}

func NewProducer(dialer Dialer, url, queue string, logger logr.Logger) *Producer {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &Producer{
		dialer: dialer,
		url:    url,
		queue:  queue,
		logger: logger,
	}
}

// PublishCoordinate {"latitude": .., "longitude": ..} をデフォルトexchange経由でキューに送る
func (p *Producer) PublishCoordinate(ctx context.Context, key model.CoordinateKey) error {
	body, err := json.Marshal(model.CoordinateMessage{
		Latitude:  key.Latitude,
		Longitude: key.Longitude,
	})
	if err != nil {
		return &model.BrokerError{Op: "marshal", Err: err}
	}

	ch, err := p.channel(ctx)
	if err != nil {
		return &model.BrokerError{Op: "connect", Err: err}
	}
	defer ch.Close()

	if err := declareQueue(ch, p.queue); err != nil {
		p.dropConnection()
		return &model.BrokerError{Op: "declare", Err: fmt.Errorf("キュー %s の宣言に失敗: %w", p.queue, err)}
	}

	err = ch.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		p.dropConnection()
		return &model.BrokerError{Op: "publish", Err: err}
	}

	p.logger.V(1).Info("📤 座標をキューに送信", "queue", p.queue, "key", key.String())
	return nil
}

// Close 接続を閉じる。以降の送信では再接続する
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *Producer) channel(ctx context.Context) (Channel, error) {
	conn, err := p.connection(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		p.mu.Lock()
		if p.conn == conn {
			_ = p.conn.Close()
			p.conn = nil
		}
		p.mu.Unlock()
		return nil, fmt.Errorf("チャネルのオープンに失敗: %w", err)
	}
	return ch, nil
}

// connection 生きている接続を返す。なければ接続し、ctx が切れたら接続の完了を待たずに戻る
func (p *Producer) connection(ctx context.Context) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if conn := p.current(); conn != nil {
		return conn, nil
	}

	result := p.dials.DoChan("dial", func() (any, error) {
		if conn := p.current(); conn != nil {
			return conn, nil
		}
		conn, err := p.dialer.Dial(p.url)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.conn = conn
		p.mu.Unlock()
		p.logger.Info("✅ RabbitMQに接続しました", "queue", p.queue)
		return conn, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-result:
		if r.Err != nil {
			return nil, fmt.Errorf("RabbitMQへの接続に失敗: %w", r.Err)
		}
		return r.Val.(Connection), nil
	}
}

func (p *Producer) current() Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn
}

func (p *Producer) dropConnection() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil && p.conn.IsClosed() {
		p.conn = nil
	}
}
