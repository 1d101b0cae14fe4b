package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/paulmach/orb"

	"PlaceFinder-App/internal/domain/model"
)

const (
	DefaultPlacesURL    = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"
	DefaultRadiusMeters = 5000
	DefaultCategory     = "restaurant"
	DefaultTimeout      = 5 * time.Second
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 500 * time.Millisecond

	// MaxRetryBackoff 1回あたりのバックオフの上限（RetryBackoff がこれより大きければそちら）
	MaxRetryBackoff = 30 * time.Second
)

// Places APIのstatusフィールド
const (
	statusOK           = "OK"
	statusZeroResults  = "ZERO_RESULTS"
	statusUnknownError = "UNKNOWN_ERROR"
)

// GooglePlacesOptions GooglePlacesProvider の設定（0値の項目はデフォルト値）
type GooglePlacesOptions struct {
	APIKey       string
	BaseURL      string
	RadiusMeters int
	Category     string
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
	Logger       logr.Logger
}

// GooglePlacesProvider はGoogle Places Nearby Search APIを使用した周辺スポット取得の実装
type GooglePlacesProvider struct {
	apiKey       string
	baseURL      string
	radius       int
	category     string
	timeout      time.Duration
	maxAttempts  int
	retryBackoff time.Duration
	httpClient   *http.Client
	logger       logr.Logger
}

// NewGooglePlacesProvider は新しいプロバイダを生成する
func NewGooglePlacesProvider(opts GooglePlacesOptions) *GooglePlacesProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultPlacesURL
	}
	if opts.RadiusMeters <= 0 {
		opts.RadiusMeters = DefaultRadiusMeters
	}
	if opts.Category == "" {
		opts.Category = DefaultCategory
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}

	return &GooglePlacesProvider{
		apiKey:       opts.APIKey,
		baseURL:      opts.BaseURL,
		radius:       opts.RadiusMeters,
		category:     opts.Category,
		timeout:      opts.Timeout,
		maxAttempts:  opts.MaxAttempts,
		retryBackoff: opts.RetryBackoff,
		httpClient:   opts.HTTPClient,
		logger:       opts.Logger,
	}
}

// Budget リトライとバックオフを含めた最悪の所要時間
func (g *GooglePlacesProvider) Budget() time.Duration {
	total := time.Duration(g.maxAttempts) * g.timeout
	for i := 0; i < g.maxAttempts-1; i++ {
		total += g.backoff(i)
	}
	return total
}

// FetchNearby はGoogle Places APIを呼び出して周辺スポットを取得する
//
// 5xx・通信エラー・UNKNOWN_ERROR は最大 maxAttempts 回まで指数バックオフで再試行する。
// 失敗時は空スライスと *model.FetchError を返す（呼び出し側は「0件」と同様に扱える）。
func (g *GooglePlacesProvider) FetchNearby(ctx context.Context, key model.CoordinateKey) ([]model.PlaceRecord, error) {
	reqURL := g.buildURL(key)
	logger := g.logger.WithValues("key", key.String())

	var lastErr *model.FetchError
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		places, retryable, fetchErr := g.fetchOnce(ctx, reqURL, key)
		if fetchErr == nil {
			logger.Info("✅ Places APIから取得", "count", len(places), "attempt", attempt)
			return places, nil
		}

		fetchErr.Attempts = attempt
		lastErr = fetchErr
		if !retryable || attempt == g.maxAttempts {
			break
		}

		wait := g.backoff(attempt - 1)
		logger.Info("⚠️ Places API呼び出し失敗、リトライします", "attempt", attempt, "wait", wait, "error", fetchErr.Error())

		select {
		case <-ctx.Done():
			lastErr.Err = errors.Join(lastErr.Err, ctx.Err())
			logger.Error(lastErr, "❌ Places APIの取得を中断")
			return []model.PlaceRecord{}, lastErr
		case <-time.After(wait):
		}
	}

	logger.Error(lastErr, "❌ Places APIの取得に失敗")
	return []model.PlaceRecord{}, lastErr
}

// fetchOnce 1回分のリクエスト。retryable は再試行に意味があるかどうか
func (g *GooglePlacesProvider) fetchOnce(ctx context.Context, reqURL string, key model.CoordinateKey) ([]model.PlaceRecord, bool, *model.FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, &model.FetchError{Key: key, Err: fmt.Errorf("リクエストの作成に失敗: %w", err)}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, &model.FetchError{Key: key, Err: fmt.Errorf("APIリクエストに失敗: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, &model.FetchError{Key: key, StatusCode: resp.StatusCode, Err: fmt.Errorf("APIからエラーステータスが返されました: %s", resp.Status)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, &model.FetchError{Key: key, StatusCode: resp.StatusCode, Err: fmt.Errorf("APIからエラーステータスが返されました: %s %s", resp.Status, body)}
	}

	var apiResp nearbySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, false, &model.FetchError{Key: key, StatusCode: resp.StatusCode, Err: fmt.Errorf("JSONのパースに失敗: %w", err)}
	}

	switch apiResp.Status {
	case statusOK, "":
		return apiResp.toRecords(key), false, nil
	case statusZeroResults:
		return []model.PlaceRecord{}, false, nil
	default:
		fetchErr := &model.FetchError{Key: key, StatusCode: resp.StatusCode, Status: apiResp.Status}
		if apiResp.ErrorMessage != "" {
			fetchErr.Err = errors.New(apiResp.ErrorMessage)
		}
		return nil, apiResp.Status == statusUnknownError, fetchErr
	}
}

// backoff n回目(0始まり)の待ち時間: retryBackoff * 2^n。MaxRetryBackoff で頭打ち
func (g *GooglePlacesProvider) backoff(n int) time.Duration {
	limit := max(MaxRetryBackoff, g.retryBackoff)
	d := g.retryBackoff
	for i := 0; i < n && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}

func (g *GooglePlacesProvider) buildURL(key model.CoordinateKey) string {
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%.4f,%.4f", key.Latitude, key.Longitude))
	params.Set("radius", strconv.Itoa(g.radius))
	params.Set("type", g.category)
	params.Set("key", g.apiKey)

	return fmt.Sprintf("%s?%s", g.baseURL, params.Encode())
}

// --- Google Places APIのレスポンスをパースするための構造体 ---

type nearbySearchResponse struct {
	Results      []placeResult `json:"results"`
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

type placeResult struct {
	PlaceID             string        `json:"place_id"`
	Name                string        `json:"name"`
	BusinessStatus      string        `json:"business_status"`
	Rating              *float64      `json:"rating"`
	UserRatingsTotal    *int          `json:"user_ratings_total"`
	Vicinity            string        `json:"vicinity"`
	Types               []string      `json:"types"`
	PriceLevel          *int          `json:"price_level"`
	Icon                string        `json:"icon"`
	IconBackgroundColor string        `json:"icon_background_color"`
	IconMaskBaseURI     string        `json:"icon_mask_base_uri"`
	Photos              []photo       `json:"photos"`
	OpeningHours        *openingHours `json:"opening_hours"`
	Geometry            *geometry     `json:"geometry"`
}

type photo struct {
	PhotoReference string `json:"photo_reference"`
	Height         int    `json:"height"`
	Width          int    `json:"width"`
}

type openingHours struct {
	OpenNow *bool `json:"open_now"`
}

type geometry struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

func (r *nearbySearchResponse) toRecords(key model.CoordinateKey) []model.PlaceRecord {
	records := make([]model.PlaceRecord, 0, len(r.Results))
	for _, res := range r.Results {
		if res.PlaceID == "" {
			continue
		}
		record := model.PlaceRecord{
			PlaceID:             res.PlaceID,
			CoordinateKey:       key,
			Name:                res.Name,
			BusinessStatus:      res.BusinessStatus,
			Rating:              res.Rating,
			ReviewCount:         res.UserRatingsTotal,
			Vicinity:            res.Vicinity,
			Categories:          res.Types,
			PriceLevel:          res.PriceLevel,
			Icon:                res.Icon,
			IconBackgroundColor: res.IconBackgroundColor,
			IconMaskBaseURI:     res.IconMaskBaseURI,
		}
		if len(res.Photos) > 0 {
			p := res.Photos[0]
			height, width := p.Height, p.Width
			record.PhotoRef = p.PhotoReference
			record.PhotoHeight = &height
			record.PhotoWidth = &width
		}
		if res.OpeningHours != nil {
			record.OpenNow = res.OpeningHours.OpenNow
		}
		if res.Geometry != nil {
			loc := orb.Point{res.Geometry.Location.Lng, res.Geometry.Location.Lat}
			record.Location = &loc
		}
		records = append(records, record)
	}
	return records
}
