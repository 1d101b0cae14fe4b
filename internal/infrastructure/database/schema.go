package database

import (
	"context"
	"fmt"
)

// schemaStatements 何度実行しても同じ結果になるDDL
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS places (
		place_id              TEXT PRIMARY KEY,
		latitude              NUMERIC(9,4) NOT NULL,
		longitude             NUMERIC(9,4) NOT NULL,
		name                  TEXT,
		business_status       TEXT,
		rating                DOUBLE PRECISION,
		user_ratings_total    INTEGER,
		vicinity              TEXT,
		types                 TEXT[],
		price_level           INTEGER,
		icon                  TEXT,
		icon_background_color TEXT,
		icon_mask_base_uri    TEXT,
		photo_reference       TEXT,
		photo_height          INTEGER,
		photo_width           INTEGER,
		open_now              BOOLEAN,
		place_latitude        DOUBLE PRECISION,
		place_longitude       DOUBLE PRECISION,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS place_coordinates (
		latitude   NUMERIC(9,4) NOT NULL,
		longitude  NUMERIC(9,4) NOT NULL,
		place_id   TEXT NOT NULL REFERENCES places (place_id),
		seq        BIGSERIAL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (latitude, longitude, place_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_coordinates (
		id           BIGSERIAL PRIMARY KEY,
		visitor_id   TEXT UNIQUE NOT NULL,
		latitude     NUMERIC(9,4) NOT NULL,
		longitude    NUMERIC(9,4) NOT NULL,
		submitted_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// InitSchema テーブルが存在しなければ作成する
func (pc *PostgreSQLClient) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := pc.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("スキーマ初期化に失敗: %w", err)
		}
	}
	return nil
}
