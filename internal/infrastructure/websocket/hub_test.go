package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PlaceFinder-App/internal/domain/model"
	"PlaceFinder-App/internal/metrics"
)

type hubFixture struct {
	hub     *Hub
	metrics *metrics.Metrics
	wsURL   string
	cancel  context.CancelFunc
	stopped chan error
}

func startHub(t *testing.T) *hubFixture {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	hub := NewHub(testr.New(t), m)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := hub.ServeWS(w, r); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)

	return &hubFixture{
		hub:     hub,
		metrics: m,
		wsURL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
		cancel:  cancel,
		stopped: stopped,
	}
}

func (f *hubFixture) subscribe(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL+"?"+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *hubFixture) waitConnections(t *testing.T, n float64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.WebsocketConnections) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func (f *hubFixture) stop(t *testing.T) {
	t.Helper()
	f.cancel()
	select {
	case err := <-f.stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ハブが停止しませんでした")
	}
}

func TestHub_PushesResultsToSubscribers(t *testing.T) {
	f := startHub(t)
	// 丸め前の座標で購読しても同じキーになる
	conn := f.subscribe(t, "lat=40.712812&lng=-74.006012")
	f.waitConnections(t, 1)

	key := model.CoordinateKey{Latitude: 40.7128, Longitude: -74.006}
	f.hub.Notify(key, []model.PlaceSummary{{PlaceID: "p1", Name: "Joe's Pizza"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string                     `json:"type"`
		Payload model.NearbyPlacesResponse `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, MessageTypePlaces, msg.Type)
	assert.Equal(t, 40.7128, msg.Payload.Latitude)
	require.Len(t, msg.Payload.Places, 1)
	assert.Equal(t, "p1", msg.Payload.Places[0].PlaceID)

	f.stop(t)
	assert.Zero(t, testutil.ToFloat64(f.metrics.WebsocketConnections))
}

func TestHub_OtherKeysAreNotPushed(t *testing.T) {
	f := startHub(t)
	nycConn := f.subscribe(t, "lat=40.7128&lng=-74.006")
	tokyoConn := f.subscribe(t, "lat=35.6812&lng=139.7671")
	f.waitConnections(t, 2)

	tokyo := model.CoordinateKey{Latitude: 35.6812, Longitude: 139.7671}
	f.hub.Notify(tokyo, []model.PlaceSummary{{PlaceID: "tokyo-1"}})

	require.NoError(t, tokyoConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := tokyoConn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "tokyo-1")

	// 別のキーの購読者には届かない
	require.NoError(t, nycConn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err = nycConn.ReadMessage()
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout(), "err = %v", err)

	f.stop(t)
}

func TestHub_ServeWSRejectsInvalidCoordinates(t *testing.T) {
	f := startHub(t)

	for _, query := range []string{"", "lat=abc&lng=1", "lat=1", "lat=91&lng=0"} {
		_, resp, err := websocket.DefaultDialer.Dial(f.wsURL+"?"+query, nil)
		require.Error(t, err, query)
		require.NotNil(t, resp, query)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
		resp.Body.Close()
	}
	assert.Zero(t, testutil.ToFloat64(f.metrics.WebsocketConnections))

	f.stop(t)
}

func TestHub_NotifyAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub(testr.New(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, hub.Run(ctx))

	done := make(chan struct{})
	go func() {
		hub.Notify(model.CoordinateKey{}, nil)
		assert.False(t, hub.Register(&Client{ID: "late", Send: make(chan []byte, 1)}))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("停止後の呼び出しがブロックしました")
	}
}
