package repository

import (
	"context"

	"PlaceFinder-App/internal/domain/model"
)

// PlacesRepository 周辺スポットと座標送信記録の永続化を担うリポジトリインターフェース
type PlacesRepository interface {
	// Exists 指定キーに紐づくスポットが1件以上保存されていれば true
	Exists(ctx context.Context, key model.CoordinateKey) (bool, error)
	// UpsertPlaces 1トランザクションで保存する。place_idが既存の行は上書きしない
	UpsertPlaces(ctx context.Context, key model.CoordinateKey, places []model.PlaceRecord) error
	// RankedPlacesFor ランキング順に最大limit件を返す
	RankedPlacesFor(ctx context.Context, key model.CoordinateKey, limit int) ([]model.PlaceSummary, error)
	// RecordSubmission visitor_idが既存なら何もしない
	RecordSubmission(ctx context.Context, submission model.CoordinateSubmission) error
	HealthCheck(ctx context.Context) error
}
