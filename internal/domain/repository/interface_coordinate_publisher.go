package repository

import (
	"context"

	"PlaceFinder-App/internal/domain/model"
)

// CoordinatePublisher 座標を非同期処理用のキューに送る
type CoordinatePublisher interface {
	// PublishCoordinate 失敗時は *model.BrokerError
	PublishCoordinate(ctx context.Context, key model.CoordinateKey) error
}
