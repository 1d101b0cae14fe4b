package model

// SubmitCoordinateRequest POST /process-coordinates のリクエストボディ
type SubmitCoordinateRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	VisitorID string   `json:"visitor_id,omitempty"`
}

// SubmitCoordinateResponse 座標送信の結果
type SubmitCoordinateResponse struct {
	Status    string         `json:"status"` // "processing" または "cached"
	VisitorID string         `json:"visitor_id"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Places    []PlaceSummary `json:"places,omitempty"`
}

const (
	SubmissionStatusProcessing = "processing"
	SubmissionStatusCached     = "cached"
)

// NearbyPlacesResponse GET /places と WebSocket配信のペイロード
type NearbyPlacesResponse struct {
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Places    []PlaceSummary `json:"places"`
	Error     string         `json:"error,omitempty"`
}
