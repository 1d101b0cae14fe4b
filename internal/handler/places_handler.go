package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"PlaceFinder-App/internal/domain/model"
	"PlaceFinder-App/internal/domain/service"
	"PlaceFinder-App/internal/usecase"
)

// HealthChecker ストアの疎通確認
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// PlacesHandler は座標送信と周辺スポット取得APIのハンドラー
type PlacesHandler struct {
	submissionUseCase usecase.CoordinateSubmissionUseCase
	resolver          service.PlaceResolutionService
	health            HealthChecker
}

// NewPlacesHandler は新しいPlacesHandlerインスタンスを作成
func NewPlacesHandler(submissionUseCase usecase.CoordinateSubmissionUseCase, resolver service.PlaceResolutionService, health HealthChecker) *PlacesHandler {
	return &PlacesHandler{
		submissionUseCase: submissionUseCase,
		resolver:          resolver,
		health:            health,
	}
}

// PostCoordinates は座標を受け付けるエンドポイント
// POST /process-coordinates
func (h *PlacesHandler) PostCoordinates(c *gin.Context) {
	var req model.SubmitCoordinateRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "リクエストの形式が正しくありません",
			"details": err.Error(),
		})
		return
	}

	response, err := h.submissionUseCase.Submit(c.Request.Context(), &req)
	if err != nil {
		status, message := errorStatus(err)
		c.JSON(status, gin.H{
			"error":   message,
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetPlaces は座標の周辺スポットを同期的に解決するエンドポイント
// GET /places?lat=..&lng=..
func (h *PlacesHandler) GetPlaces(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "バリデーションエラー",
			"details": (&model.ValidationError{Field: "lat", Message: "緯度を数値で指定してください"}).Error(),
		})
		return
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "バリデーションエラー",
			"details": (&model.ValidationError{Field: "lng", Message: "経度を数値で指定してください"}).Error(),
		})
		return
	}

	places, err := h.resolver.Resolve(c.Request.Context(), lat, lng)
	if err != nil {
		var validationErr *model.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "バリデーションエラー",
				"details": err.Error(),
			})
			return
		}

		// 途中までの結果は返さない
		c.JSON(http.StatusBadGateway, model.NearbyPlacesResponse{
			Latitude:  lat,
			Longitude: lng,
			Places:    []model.PlaceSummary{},
			Error:     err.Error(),
		})
		return
	}

	key, _ := model.NormalizeCoordinate(lat, lng)
	c.JSON(http.StatusOK, model.NearbyPlacesResponse{
		Latitude:  key.Latitude,
		Longitude: key.Longitude,
		Places:    places,
	})
}

// GetHealth はヘルスチェックエンドポイント
// GET /health
func (h *PlacesHandler) GetHealth(c *gin.Context) {
	if err := h.health.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":   "unhealthy",
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
	})
}

// errorStatus はドメインエラーをHTTPステータスに変換する
func errorStatus(err error) (int, string) {
	var (
		validationErr *model.ValidationError
		brokerErr     *model.BrokerError
		fetchErr      *model.FetchError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "バリデーションエラー"
	case errors.As(err, &brokerErr):
		return http.StatusBadGateway, "キューへの送信に失敗しました"
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, "周辺スポットの取得に失敗しました"
	default:
		return http.StatusInternalServerError, "座標の処理に失敗しました"
	}
}
