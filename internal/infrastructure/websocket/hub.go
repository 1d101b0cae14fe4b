package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"PlaceFinder-App/internal/domain/model"
	"PlaceFinder-App/internal/metrics"
)

const (
	// MessageTypePlaces 解決結果の通知
	MessageTypePlaces = "places"

	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	sendBufferSize = 16
	broadcastQueue = 64
)

// WSMessage クライアントに送るメッセージ
type WSMessage struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Client 1つの座標キーを購読するWebSocket接続
type Client struct {
	ID   string
	Key  model.CoordinateKey
	Conn *websocket.Conn
	Send chan []byte
}

type notification struct {
	key  model.CoordinateKey
	data []byte
}

// Hub 解決結果を、その座標キーを購読しているクライアントにだけ配信する
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan notification
	done       chan struct{}
	logger     logr.Logger
	metrics    *metrics.Metrics
}

func NewHub(logger logr.Logger, m *metrics.Metrics) *Hub {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan notification, broadcastQueue),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    m,
	}
}

// Run ctx が終わるまでクライアントの登録と配信を処理する
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for id, client := range h.clients {
				close(client.Send)
				delete(h.clients, id)
				h.metrics.WebsocketConnected(-1)
			}
			return nil

		case client := <-h.register:
			h.clients[client.ID] = client
			h.metrics.WebsocketConnected(1)
			h.logger.V(1).Info("🔌 クライアント接続", "client", client.ID, "key", client.Key.String(), "clients", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				h.metrics.WebsocketConnected(-1)
				h.logger.V(1).Info("クライアント切断", "client", client.ID)
			}

		case n := <-h.broadcast:
			for id, client := range h.clients {
				if client.Key != n.key {
					continue
				}
				select {
				case client.Send <- n.data:
				default:
					// 受信が追いつかないクライアントは切断する
					close(client.Send)
					delete(h.clients, id)
					h.metrics.WebsocketConnected(-1)
				}
			}
		}
	}
}

// Notify messaging.ResultNotifier の実装。key の購読者にだけ送る。配信キューが一杯なら捨てる
func (h *Hub) Notify(key model.CoordinateKey, places []model.PlaceSummary) {
	data, err := json.Marshal(WSMessage{
		Type: MessageTypePlaces,
		Payload: model.NearbyPlacesResponse{
			Latitude:  key.Latitude,
			Longitude: key.Longitude,
			Places:    places,
		},
		Timestamp: time.Now(),
	})
	if err != nil {
		h.logger.Error(err, "配信メッセージのJSON変換に失敗", "key", key.String())
		return
	}

	select {
	case h.broadcast <- notification{key: key, data: data}:
	case <-h.done:
	default:
		h.logger.Info("⚠️ 配信キューが一杯のため通知を破棄", "key", key.String())
	}
}

func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS ?lat=&lng= で指定した座標キーの購読としてWebSocketに切り替える
//
// 座標が不正なら切り替えずに *model.ValidationError を返す（レスポンスは呼び出し側が書く）
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	key, err := subscriptionKey(r)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:   uuid.NewString(),
		Key:  key,
		Conn: conn,
		Send: make(chan []byte, sendBufferSize),
	}
	if !h.Register(client) {
		return conn.Close()
	}

	go client.WritePump()
	go client.ReadPump(h)
	return nil
}

func subscriptionKey(r *http.Request) (model.CoordinateKey, error) {
	query := r.URL.Query()
	lat, err := strconv.ParseFloat(query.Get("lat"), 64)
	if err != nil {
		return model.CoordinateKey{}, &model.ValidationError{Field: "lat", Message: "緯度を数値で指定してください"}
	}
	lng, err := strconv.ParseFloat(query.Get("lng"), 64)
	if err != nil {
		return model.CoordinateKey{}, &model.ValidationError{Field: "lng", Message: "経度を数値で指定してください"}
	}
	return model.NormalizeCoordinate(lat, lng)
}

// ReadPump クライアントからの受信は読み捨てる。切断を検知してハブから外す
func (c *Client) ReadPump(h *Hub) {
	defer func() {
		h.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
