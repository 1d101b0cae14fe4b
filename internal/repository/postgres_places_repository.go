package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/paulmach/orb"

	"PlaceFinder-App/internal/domain/model"
	"PlaceFinder-App/internal/domain/repository"
	"PlaceFinder-App/internal/infrastructure/database"
)

type PostgresPlacesRepository struct {
	client *database.PostgreSQLClient
}

func NewPostgresPlacesRepository(client *database.PostgreSQLClient) repository.PlacesRepository {
	return &PostgresPlacesRepository{
		client: client,
	}
}

const existsQuery = `
	SELECT EXISTS (
		SELECT 1 FROM place_coordinates WHERE latitude = $1 AND longitude = $2
	)`

// place_id が既にあれば何もしない（最初に観測した内容を保持する）
const insertPlaceQuery = `
	INSERT INTO places (
		place_id, latitude, longitude, name, business_status, rating,
		user_ratings_total, vicinity, types, price_level, icon,
		icon_background_color, icon_mask_base_uri, photo_reference,
		photo_height, photo_width, open_now, place_latitude, place_longitude
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	ON CONFLICT (place_id) DO NOTHING`

const insertLinkQuery = `
	INSERT INTO place_coordinates (latitude, longitude, place_id)
	VALUES ($1, $2, $3)
	ON CONFLICT (latitude, longitude, place_id) DO NOTHING`

// ORDER BY は service.RankPlaces と同じ規則。DESC の既定 (NULLS FIRST) ではなく NULLS LAST を明示する
const rankedPlacesQuery = `
	SELECT
		p.place_id, p.name, p.vicinity, p.rating, p.user_ratings_total,
		p.price_level, p.open_now,
		COALESCE(p.place_latitude, p.latitude::float8)  AS lat,
		COALESCE(p.place_longitude, p.longitude::float8) AS lng,
		ABS(COALESCE(p.place_latitude, p.latitude::float8) - $3)
			+ ABS(COALESCE(p.place_longitude, p.longitude::float8) - $4) AS proximity
	FROM place_coordinates pc
	JOIN places p ON p.place_id = pc.place_id
	WHERE pc.latitude = $1 AND pc.longitude = $2
	ORDER BY
		p.open_now DESC NULLS LAST,
		p.rating DESC NULLS LAST,
		proximity ASC,
		p.user_ratings_total DESC NULLS LAST,
		pc.seq ASC
	LIMIT $5`

const insertSubmissionQuery = `
	INSERT INTO user_coordinates (visitor_id, latitude, longitude, submitted_at)
	VALUES ($1, $2, $3, COALESCE($4::timestamptz, now()))
	ON CONFLICT (visitor_id) DO NOTHING`

func (r *PostgresPlacesRepository) Exists(ctx context.Context, key model.CoordinateKey) (bool, error) {
	var exists bool
	err := r.client.DB.QueryRowContext(ctx, existsQuery, key.Latitude, key.Longitude).Scan(&exists)
	if err != nil {
		return false, &model.StoreError{Op: "exists", Key: key.String(), Err: err}
	}
	return exists, nil
}

// UpsertPlaces 1バッチ=1トランザクション。コミットまで他の読み手には1行も見えない
func (r *PostgresPlacesRepository) UpsertPlaces(ctx context.Context, key model.CoordinateKey, places []model.PlaceRecord) (err error) {
	if len(places) == 0 {
		return nil
	}

	tx, err := r.client.DB.BeginTx(ctx, nil)
	if err != nil {
		return &model.StoreError{Op: "upsert", Key: key.String(), Err: fmt.Errorf("トランザクション開始失敗: %w", err)}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	placeStmt, err := tx.PrepareContext(ctx, insertPlaceQuery)
	if err != nil {
		return &model.StoreError{Op: "upsert", Key: key.String(), Err: err}
	}
	defer placeStmt.Close()

	linkStmt, err := tx.PrepareContext(ctx, insertLinkQuery)
	if err != nil {
		return &model.StoreError{Op: "upsert", Key: key.String(), Err: err}
	}
	defer linkStmt.Close()

	for i := range places {
		p := &places[i]
		if p.PlaceID == "" {
			continue
		}

		var placeLat, placeLng *float64
		if p.Location != nil {
			lat, lng := p.Location.Lat(), p.Location.Lon()
			placeLat, placeLng = &lat, &lng
		}

		_, err = placeStmt.ExecContext(ctx,
			p.PlaceID, key.Latitude, key.Longitude, nullString(p.Name), nullString(p.BusinessStatus),
			p.Rating, p.ReviewCount, nullString(p.Vicinity), pq.Array(p.Categories), p.PriceLevel,
			nullString(p.Icon), nullString(p.IconBackgroundColor), nullString(p.IconMaskBaseURI),
			nullString(p.PhotoRef), p.PhotoHeight, p.PhotoWidth, p.OpenNow, placeLat, placeLng,
		)
		if err != nil {
			return &model.StoreError{Op: "upsert", Key: key.String(), Err: fmt.Errorf("place %s の保存失敗: %w", p.PlaceID, err)}
		}

		if _, err = linkStmt.ExecContext(ctx, key.Latitude, key.Longitude, p.PlaceID); err != nil {
			return &model.StoreError{Op: "upsert", Key: key.String(), Err: fmt.Errorf("place %s の紐付け失敗: %w", p.PlaceID, err)}
		}
	}

	if err = tx.Commit(); err != nil {
		return &model.StoreError{Op: "upsert", Key: key.String(), Err: fmt.Errorf("コミット失敗: %w", err)}
	}
	return nil
}

func (r *PostgresPlacesRepository) RankedPlacesFor(ctx context.Context, key model.CoordinateKey, limit int) ([]model.PlaceSummary, error) {
	rows, err := r.client.DB.QueryContext(ctx, rankedPlacesQuery,
		key.Latitude, key.Longitude, key.Latitude, key.Longitude, limit)
	if err != nil {
		return nil, &model.StoreError{Op: "rank", Key: key.String(), Err: err}
	}
	defer rows.Close()

	places := []model.PlaceSummary{}
	for rows.Next() {
		var result rankedPlaceRow
		if err := rows.Scan(&result.PlaceID, &result.Name, &result.Vicinity, &result.Rating,
			&result.ReviewCount, &result.PriceLevel, &result.OpenNow,
			&result.Lat, &result.Lng, &result.Proximity); err != nil {
			return nil, &model.StoreError{Op: "rank", Key: key.String(), Err: fmt.Errorf("スキャンエラー: %w", err)}
		}
		places = append(places, result.ToSummary())
	}

	if err := rows.Err(); err != nil {
		return nil, &model.StoreError{Op: "rank", Key: key.String(), Err: fmt.Errorf("行イテレーション中のエラー: %w", err)}
	}
	return places, nil
}

func (r *PostgresPlacesRepository) RecordSubmission(ctx context.Context, submission model.CoordinateSubmission) error {
	key := submission.CoordinateKey
	var submittedAt *time.Time
	if !submission.SubmittedAt.IsZero() {
		submittedAt = &submission.SubmittedAt
	}
	if _, err := r.client.DB.ExecContext(ctx, insertSubmissionQuery, submission.VisitorID, key.Latitude, key.Longitude, submittedAt); err != nil {
		return &model.StoreError{Op: "record_submission", Key: key.String(), Err: err}
	}
	return nil
}

func (r *PostgresPlacesRepository) HealthCheck(ctx context.Context) error {
	if err := r.client.HealthCheck(ctx); err != nil {
		return &model.StoreError{Op: "health_check", Err: err}
	}
	return nil
}

// rankedPlaceRow ランキングクエリの結果を受け取るための構造体
type rankedPlaceRow struct {
	PlaceID     string
	Name        sql.NullString
	Vicinity    sql.NullString
	Rating      sql.NullFloat64
	ReviewCount sql.NullInt64
	PriceLevel  sql.NullInt64
	OpenNow     sql.NullBool
	Lat         float64
	Lng         float64
	Proximity   float64
}

// ToSummary rankedPlaceRowをmodel.PlaceSummaryに変換
func (pr *rankedPlaceRow) ToSummary() model.PlaceSummary {
	pos := orb.Point{pr.Lng, pr.Lat}
	summary := model.PlaceSummary{
		PlaceID:   pr.PlaceID,
		Name:      pr.Name.String,
		Vicinity:  pr.Vicinity.String,
		Latitude:  pos.Lat(),
		Longitude: pos.Lon(),
		Proximity: pr.Proximity,
	}
	if pr.Rating.Valid {
		rating := pr.Rating.Float64
		summary.Rating = &rating
	}
	if pr.ReviewCount.Valid {
		count := int(pr.ReviewCount.Int64)
		summary.ReviewCount = &count
	}
	if pr.PriceLevel.Valid {
		level := int(pr.PriceLevel.Int64)
		summary.PriceLevel = &level
	}
	if pr.OpenNow.Valid {
		open := pr.OpenNow.Bool
		summary.OpenNow = &open
	}
	return summary
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
