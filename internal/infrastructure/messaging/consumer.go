package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"PlaceFinder-App/internal/domain/model"
	"PlaceFinder-App/internal/metrics"
)

const (
	DefaultPrefetch       = 1
	DefaultReconnectDelay = 5 * time.Second
)

// errDeliveriesClosed ブローカー側でチャネルか接続が閉じられた
var errDeliveriesClosed = errors.New("配信チャネルが閉じられました")

// PlaceResolver キューから受け取った座標を解決する
type PlaceResolver interface {
	Resolve(ctx context.Context, lat, lng float64) ([]model.PlaceSummary, error)
}

// ResultNotifier 解決結果の通知先（届かなくても処理は続ける）
type ResultNotifier interface {
	Notify(key model.CoordinateKey, places []model.PlaceSummary)
}

type ConsumerOptions struct {
	URL            string
	Queue          string
	Prefetch       int
	ReconnectDelay time.Duration
	Logger         logr.Logger
	Metrics        *metrics.Metrics
}

// Consumer キューから座標を受け取り、解決パイプラインに流す長時間動作のワーカー
type Consumer struct {
	dialer         Dialer
	resolver       PlaceResolver
	notifier       ResultNotifier
	url            string
	queue          string
	prefetch       int
	reconnectDelay time.Duration
	logger         logr.Logger
	metrics        *metrics.Metrics
}

// NewConsumer notifier は nil でもよい
func NewConsumer(dialer Dialer, resolver PlaceResolver, notifier ResultNotifier, opts ConsumerOptions) *Consumer {
	if opts.Prefetch <= 0 {
		opts.Prefetch = DefaultPrefetch
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}

	return &Consumer{
		dialer:         dialer,
		resolver:       resolver,
		notifier:       notifier,
		url:            opts.URL,
		queue:          opts.Queue,
		prefetch:       opts.Prefetch,
		reconnectDelay: opts.ReconnectDelay,
		logger:         opts.Logger.WithValues("queue", opts.Queue),
		metrics:        opts.Metrics,
	}
}

// Run ctx が終わるまで受信を続ける。接続が切れたら reconnectDelay 待って繋ぎ直す。
// ctx の終了以外では戻らず、戻り値は常に nil。
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			c.logger.Info("🛑 コンシューマーを停止します")
			return nil
		}

		c.logger.Error(err, "❌ キューの受信が中断されました", "retryIn", c.reconnectDelay)
		c.metrics.BrokerReconnect()

		select {
		case <-ctx.Done():
			c.logger.Info("🛑 コンシューマーを停止します")
			return nil
		case <-time.After(c.reconnectDelay):
		}
	}
}

// consume 1接続分の受信ループ
func (c *Consumer) consume(ctx context.Context) error {
	conn, err := c.dialer.Dial(c.url)
	if err != nil {
		return &model.BrokerError{Op: "connect", Err: err}
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return &model.BrokerError{Op: "channel", Err: err}
	}
	defer ch.Close()

	if err := declareQueue(ch, c.queue); err != nil {
		return &model.BrokerError{Op: "declare", Err: err}
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return &model.BrokerError{Op: "qos", Err: err}
	}

	tag := "placefinder-" + uuid.NewString()
	deliveries, err := ch.Consume(
		c.queue, // queue
		tag,     // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return &model.BrokerError{Op: "consume", Err: err}
	}

	c.logger.Info("📥 キューの受信を開始", "consumer", tag, "prefetch", c.prefetch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return &model.BrokerError{Op: "consume", Err: errDeliveriesClosed}
			}
			c.handle(ctx, d)
		}
	}
}

// coordinateBody 欠けたフィールドを0と区別するためにポインタで受ける
type coordinateBody struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// handle 1メッセージの処理。ack/nack/reject の判断はここだけで行う
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var body coordinateBody
	if err := json.Unmarshal(d.Body, &body); err != nil || body.Latitude == nil || body.Longitude == nil {
		if err == nil {
			err = fmt.Errorf("latitude と longitude は必須です")
		}
		c.logger.Error(err, "⚠️ 不正なメッセージを破棄", "body", string(d.Body))
		c.reject(d)
		return
	}

	key, err := model.NormalizeCoordinate(*body.Latitude, *body.Longitude)
	if err != nil {
		c.logger.Error(err, "⚠️ 範囲外の座標を破棄", "latitude", *body.Latitude, "longitude", *body.Longitude)
		c.reject(d)
		return
	}

	places, err := c.resolver.Resolve(ctx, *body.Latitude, *body.Longitude)
	switch {
	case ctx.Err() != nil:
		// シャットダウン中: 別のコンシューマーに回す
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error(nackErr, "Nackに失敗", "key", key.String())
		}
		c.metrics.MessageHandled("requeue")
		return
	case err != nil:
		var validationErr *model.ValidationError
		if errors.As(err, &validationErr) {
			c.reject(d)
			return
		}
		// 再処理しても同じ結果になりやすいのでackする。次の送信で再取得される
		c.logger.Error(err, "❌ 座標の処理に失敗しました", "key", key.String())
	default:
		c.logger.Info("✅ 座標を処理しました", "key", key.String(), "count", len(places))
		if c.notifier != nil {
			c.notifier.Notify(key, places)
		}
	}

	if ackErr := d.Ack(false); ackErr != nil {
		c.logger.Error(ackErr, "Ackに失敗", "key", key.String())
	}
	c.metrics.MessageHandled("ack")
}

func (c *Consumer) reject(d amqp.Delivery) {
	if err := d.Reject(false); err != nil {
		c.logger.Error(err, "Rejectに失敗")
	}
	c.metrics.MessageHandled("reject")
}
