package model

import (
	"time"

	"github.com/paulmach/orb"
)

// PlaceRecord 外部APIから取得したスポット（place_idで一度だけ保存され、以後変更しない）
type PlaceRecord struct {
	PlaceID             string        `json:"place_id" db:"place_id"`
	CoordinateKey       CoordinateKey `json:"coordinate_key"`
	Name                string        `json:"name" db:"name"`
	BusinessStatus      string        `json:"business_status,omitempty" db:"business_status"`
	Rating              *float64      `json:"rating,omitempty" db:"rating"`
	ReviewCount         *int          `json:"user_ratings_total,omitempty" db:"user_ratings_total"`
	Vicinity            string        `json:"vicinity,omitempty" db:"vicinity"`
	Categories          []string      `json:"types,omitempty" db:"types"`
	PriceLevel          *int          `json:"price_level,omitempty" db:"price_level"`
	Icon                string        `json:"icon,omitempty" db:"icon"`
	IconBackgroundColor string        `json:"icon_background_color,omitempty" db:"icon_background_color"`
	IconMaskBaseURI     string        `json:"icon_mask_base_uri,omitempty" db:"icon_mask_base_uri"`
	PhotoRef            string        `json:"photo_reference,omitempty" db:"photo_reference"`
	PhotoHeight         *int          `json:"photo_height,omitempty" db:"photo_height"`
	PhotoWidth          *int          `json:"photo_width,omitempty" db:"photo_width"`
	OpenNow             *bool         `json:"open_now,omitempty" db:"open_now"` // nil = 不明
	Location            *orb.Point    `json:"-"`                                // スポット自身の位置（不明ならnil）
}

// Position スポットの位置。不明な場合は検索座標を使う
func (p *PlaceRecord) Position() orb.Point {
	if p.Location != nil {
		return *p.Location
	}
	return p.CoordinateKey.Point()
}

// ToSummary ランキング結果用の PlaceSummary に変換
func (p *PlaceRecord) ToSummary(query CoordinateKey) PlaceSummary {
	pos := p.Position()
	return PlaceSummary{
		PlaceID:     p.PlaceID,
		Name:        p.Name,
		Vicinity:    p.Vicinity,
		Rating:      p.Rating,
		ReviewCount: p.ReviewCount,
		PriceLevel:  p.PriceLevel,
		OpenNow:     p.OpenNow,
		Latitude:    pos.Lat(),
		Longitude:   pos.Lon(),
		Proximity:   query.ManhattanProximity(pos),
	}
}

// PlaceSummary ランキング済みの周辺スポット
type PlaceSummary struct {
	PlaceID        string   `json:"place_id"`
	Name           string   `json:"name"`
	Vicinity       string   `json:"vicinity,omitempty"`
	Rating         *float64 `json:"rating,omitempty"`
	ReviewCount    *int     `json:"user_ratings_total,omitempty"`
	PriceLevel     *int     `json:"price_level,omitempty"`
	OpenNow        *bool    `json:"open_now,omitempty"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	Proximity      float64  `json:"proximity"`
	DistanceMeters float64  `json:"distance_meters"`
}

// CoordinateSubmission 訪問者ごとの座標送信記録（分析用）
type CoordinateSubmission struct {
	VisitorID     string        `json:"visitor_id" db:"visitor_id"`
	CoordinateKey CoordinateKey `json:"coordinate_key"`
	SubmittedAt   time.Time     `json:"submitted_at" db:"submitted_at"`
}

// CoordinateMessage キューに流すメッセージ {"latitude": .., "longitude": ..}
type CoordinateMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CloneSummaries スライスのコピーを返す（キャッシュの共有スライスを書き換えられないように）
func CloneSummaries(places []PlaceSummary) []PlaceSummary {
	out := make([]PlaceSummary, len(places))
	copy(out, places)
	return out
}
