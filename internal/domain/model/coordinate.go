package model

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
)

// CoordinatePrecision 正規化キーの小数点以下の桁数
const CoordinatePrecision = 4

// CoordinateKey 小数点以下4桁に丸めた緯度経度（キャッシュ・保存・重複排除の識別子）
type CoordinateKey struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NormalizeCoordinate 緯度経度を検証し、CoordinateKey に正規化する
func NormalizeCoordinate(lat, lng float64) (CoordinateKey, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		return CoordinateKey{}, &ValidationError{Field: "latitude", Message: "緯度が数値ではありません"}
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) {
		return CoordinateKey{}, &ValidationError{Field: "longitude", Message: "経度が数値ではありません"}
	}
	if lat < -90 || lat > 90 {
		return CoordinateKey{}, &ValidationError{Field: "latitude", Message: "緯度は-90から90の範囲で指定してください"}
	}
	if lng < -180 || lng > 180 {
		return CoordinateKey{}, &ValidationError{Field: "longitude", Message: "経度は-180から180の範囲で指定してください"}
	}

	return CoordinateKey{
		Latitude:  roundCoordinate(lat),
		Longitude: roundCoordinate(lng),
	}, nil
}

// roundCoordinate は10進表現で4桁に丸める。math.Round(x*1e4)/1e4 だと2進誤差で桁がずれることがある
func roundCoordinate(v float64) float64 {
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', CoordinatePrecision, 64), 64)
	if rounded == 0 {
		return 0 // -0 を 0 に揃える
	}
	return rounded
}

// String キャッシュとsingleflightで使うキー文字列
func (k CoordinateKey) String() string {
	return fmt.Sprintf("%.4f,%.4f", k.Latitude, k.Longitude)
}

// Point orb.Point（経度, 緯度の順）に変換
func (k CoordinateKey) Point() orb.Point {
	return orb.Point{k.Longitude, k.Latitude}
}

// ManhattanProximity |Δlat| + |Δlng| を返す（ランキング用の簡易距離）
func (k CoordinateKey) ManhattanProximity(p orb.Point) float64 {
	return math.Abs(p.Lat()-k.Latitude) + math.Abs(p.Lon()-k.Longitude)
}
