package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"PlaceFinder-App/internal/domain/model"
	"PlaceFinder-App/internal/infrastructure/websocket"
	"PlaceFinder-App/internal/metrics"
)

// RouterConfig ルーター構築に必要な依存
type RouterConfig struct {
	Places   *PlacesHandler
	Hub      *websocket.Hub
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// MetricsUser と MetricsPassword が両方設定されていれば /metrics をBasic認証で保護する
	MetricsUser     string
	MetricsPassword string
	Logger          logr.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestMetrics(cfg.Metrics))

	router.POST("/process-coordinates", cfg.Places.PostCoordinates)
	router.GET("/places", cfg.Places.GetPlaces)
	router.GET("/health", cfg.Places.GetHealth)

	if cfg.Hub != nil {
		hub, logger := cfg.Hub, cfg.Logger
		router.GET("/ws", func(c *gin.Context) {
			if err := hub.ServeWS(c.Writer, c.Request); err != nil {
				var validationErr *model.ValidationError
				if errors.As(err, &validationErr) {
					c.JSON(http.StatusBadRequest, gin.H{
						"error":   "購読する座標が不正です",
						"details": validationErr.Error(),
					})
					return
				}
				logger.Error(err, "WebSocketへの切り替えに失敗")
			}
		})
	}

	if cfg.Gatherer != nil {
		metricsHandler := gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
		if cfg.MetricsUser != "" && cfg.MetricsPassword != "" {
			router.GET("/metrics", gin.BasicAuth(gin.Accounts{cfg.MetricsUser: cfg.MetricsPassword}), metricsHandler)
		} else {
			router.GET("/metrics", metricsHandler)
		}
	}

	return router
}

// requestMetrics ルートごとのリクエスト数とレイテンシを記録する
func requestMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.ObserveRequest(endpoint, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
