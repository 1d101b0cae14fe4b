package repository

import (
	"context"

	"PlaceFinder-App/internal/domain/model"
)

// PlacesProvider 外部ディレクトリAPIから周辺スポットを取得するインターフェース
type PlacesProvider interface {
	// FetchNearby 失敗時は空スライスと *model.FetchError を返す
	FetchNearby(ctx context.Context, key model.CoordinateKey) ([]model.PlaceRecord, error)
}
