package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"PlaceFinder-App/internal/domain/model"
	"PlaceFinder-App/internal/domain/repository"
	"PlaceFinder-App/internal/domain/service"
	"PlaceFinder-App/internal/metrics"
)

type CoordinateSubmissionUseCase interface {
	// Submit は座標を記録し、キャッシュになければキューに送る
	Submit(ctx context.Context, req *model.SubmitCoordinateRequest) (*model.SubmitCoordinateResponse, error)
}

// coordinateSubmissionUseCaseImpl はCoordinateSubmissionUseCaseの実装
type coordinateSubmissionUseCaseImpl struct {
	repo      repository.PlacesRepository
	cache     service.PlacesCache
	publisher repository.CoordinatePublisher
	logger    logr.Logger
	metrics   *metrics.Metrics
}

// NewCoordinateSubmissionUseCase は新しいCoordinateSubmissionUseCaseインスタンスを作成
func NewCoordinateSubmissionUseCase(
	repo repository.PlacesRepository,
	cache service.PlacesCache,
	publisher repository.CoordinatePublisher,
	logger logr.Logger,
	m *metrics.Metrics,
) CoordinateSubmissionUseCase {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &coordinateSubmissionUseCaseImpl{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
	}
}

func (u *coordinateSubmissionUseCaseImpl) Submit(ctx context.Context, req *model.SubmitCoordinateRequest) (*model.SubmitCoordinateResponse, error) {
	if req.Latitude == nil {
		return nil, &model.ValidationError{Field: "latitude", Message: "緯度は必須です"}
	}
	if req.Longitude == nil {
		return nil, &model.ValidationError{Field: "longitude", Message: "経度は必須です"}
	}

	key, err := model.NormalizeCoordinate(*req.Latitude, *req.Longitude)
	if err != nil {
		return nil, err
	}

	visitorID := req.VisitorID
	if visitorID == "" {
		visitorID = uuid.NewString()
	}

	// Step 1: 送信記録を保存
	submission := model.CoordinateSubmission{
		VisitorID:     visitorID,
		CoordinateKey: key,
		SubmittedAt:   time.Now().UTC(),
	}
	if err := u.repo.RecordSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("座標の記録に失敗: %w", err)
	}
	u.metrics.Submission()

	response := &model.SubmitCoordinateResponse{
		VisitorID: visitorID,
		Latitude:  key.Latitude,
		Longitude: key.Longitude,
	}

	// Step 2: キャッシュにあればキューに送らずそのまま返す
	if places, ok := u.cache.Get(key); ok {
		u.logger.Info("📍 キャッシュ済みの座標", "key", key.String(), "count", len(places))
		response.Status = model.SubmissionStatusCached
		response.Places = places
		return response, nil
	}

	// Step 3: 非同期処理に回す
	if err := u.publisher.PublishCoordinate(ctx, key); err != nil {
		return nil, err
	}

	u.logger.Info("📨 座標をキューに送信しました", "key", key.String(), "visitor", visitorID)
	response.Status = model.SubmissionStatusProcessing
	return response, nil
}
