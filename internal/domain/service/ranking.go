package service

import (
	"cmp"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"PlaceFinder-App/internal/domain/model"
)

// DefaultRankLimit ランキング結果の最大件数
const DefaultRankLimit = 10

// RankPlaces 検索座標に対するスポットの並び順を決め、上位limit件を返す
//
// 並び順: open_now (true → false → 不明), rating 降順 (不明は最後),
// マンハッタン距離 昇順, レビュー数 降順 (不明は最後)。
// 全て同じなら入力順を保つ。PostgresPlacesRepository の ORDER BY と同じ規則。
func RankPlaces(query model.CoordinateKey, places []model.PlaceSummary, limit int) []model.PlaceSummary {
	if limit <= 0 {
		limit = DefaultRankLimit
	}

	ranked := make([]model.PlaceSummary, len(places))
	for i, p := range places {
		pos := orb.Point{p.Longitude, p.Latitude}
		p.Proximity = query.ManhattanProximity(pos)
		p.DistanceMeters = geo.DistanceHaversine(query.Point(), pos)
		ranked[i] = p
	}

	slices.SortStableFunc(ranked, comparePlaces)

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func comparePlaces(a, b model.PlaceSummary) int {
	if c := cmp.Compare(openNowRank(a.OpenNow), openNowRank(b.OpenNow)); c != 0 {
		return c
	}
	// PostgreSQL の DESC 既定は NULLS FIRST だが、評価なしは後ろに回す
	if c := compareDescNullsLast(a.Rating, b.Rating); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Proximity, b.Proximity); c != 0 {
		return c
	}
	return compareDescNullsLast(a.ReviewCount, b.ReviewCount)
}

// openNowRank DESC NULLS LAST を昇順の順位に変換
func openNowRank(openNow *bool) int {
	switch {
	case openNow == nil:
		return 2
	case *openNow:
		return 0
	default:
		return 1
	}
}

func compareDescNullsLast[T cmp.Ordered](a, b *T) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return cmp.Compare(*b, *a)
	}
}
