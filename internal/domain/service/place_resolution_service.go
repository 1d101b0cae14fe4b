package service

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"PlaceFinder-App/internal/domain/model"
	"PlaceFinder-App/internal/domain/repository"
	"PlaceFinder-App/internal/metrics"
)

// PlaceResolutionService 座標を周辺スポットのランキングに解決する
type PlaceResolutionService interface {
	// Resolve 失敗時は空スライスとエラーを返す（途中までの結果は返さない）
	Resolve(ctx context.Context, lat, lng float64) ([]model.PlaceSummary, error)

	// ResolveKey 正規化済みのキーで解決する
	ResolveKey(ctx context.Context, key model.CoordinateKey) ([]model.PlaceSummary, error)
}

// PlacesCache 解決パイプラインが使うキャッシュ
type PlacesCache interface {
	Get(key model.CoordinateKey) ([]model.PlaceSummary, bool)
	Put(key model.CoordinateKey, places []model.PlaceSummary)
}

// ResolutionOptions PlaceResolutionService の設定
type ResolutionOptions struct {
	// RankLimit 返す最大件数（0以下なら10）
	RankLimit int
	// FlightTimeout 進行中の取得を待つ最大時間（0以下なら20秒）
	FlightTimeout time.Duration
	Logger        logr.Logger
	Metrics       *metrics.Metrics
}

const defaultFlightTimeout = 20 * time.Second

type placeResolutionServiceImpl struct {
	repo        repository.PlacesRepository
	provider    repository.PlacesProvider
	cache       PlacesCache
	coordinator *FetchCoordinator
	rankLimit   int
	logger      logr.Logger
	metrics     *metrics.Metrics
}

// NewPlaceResolutionService 新しいPlaceResolutionServiceインスタンスを作成
func NewPlaceResolutionService(
	repo repository.PlacesRepository,
	provider repository.PlacesProvider,
	cache PlacesCache,
	opts ResolutionOptions,
) PlaceResolutionService {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.RankLimit <= 0 {
		opts.RankLimit = DefaultRankLimit
	}
	if opts.FlightTimeout <= 0 {
		opts.FlightTimeout = defaultFlightTimeout
	}

	return &placeResolutionServiceImpl{
		repo:        repo,
		provider:    provider,
		cache:       cache,
		coordinator: NewFetchCoordinator(opts.FlightTimeout, opts.Logger),
		rankLimit:   opts.RankLimit,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
}

// Resolve 座標を正規化してから解決する。不正な座標は副作用なしで ValidationError
func (s *placeResolutionServiceImpl) Resolve(ctx context.Context, lat, lng float64) ([]model.PlaceSummary, error) {
	key, err := model.NormalizeCoordinate(lat, lng)
	if err != nil {
		return []model.PlaceSummary{}, err
	}
	return s.ResolveKey(ctx, key)
}

// ResolveKey キャッシュ → ストア → 外部API の順に解決する
func (s *placeResolutionServiceImpl) ResolveKey(ctx context.Context, key model.CoordinateKey) ([]model.PlaceSummary, error) {
	start := time.Now()
	places, outcome, err := s.resolve(ctx, key)
	s.metrics.ObserveResolution(outcome, time.Since(start))

	if err != nil {
		s.logger.Error(err, "❌ 周辺スポットの解決に失敗", "key", key.String())
		return []model.PlaceSummary{}, err
	}

	s.logger.V(1).Info("✅ 周辺スポットを解決", "key", key.String(), "outcome", outcome, "count", len(places))
	return places, nil
}

func (s *placeResolutionServiceImpl) resolve(ctx context.Context, key model.CoordinateKey) ([]model.PlaceSummary, string, error) {
	logger := s.logger.WithValues("key", key.String())

	// CACHE_CHECK
	if places, ok := s.cache.Get(key); ok {
		s.metrics.CacheHit()
		logger.V(1).Info("キャッシュヒット")
		return places, metrics.OutcomeCache, nil
	}
	s.metrics.CacheMiss()

	// STORE_CHECK
	exists, err := s.repo.Exists(ctx, key)
	if err != nil {
		return nil, metrics.OutcomeFailed, err
	}
	if exists {
		s.metrics.StoreHit()
		logger.V(1).Info("ストアヒット")
		places, err := s.rankAndCache(ctx, key)
		if err != nil {
			return nil, metrics.OutcomeFailed, err
		}
		return places, metrics.OutcomeStore, nil
	}

	// SINGLE_FLIGHT_CLAIM
	places, shared, err := s.coordinator.Do(ctx, key, func(fctx context.Context) ([]model.PlaceSummary, error) {
		return s.fetchAndPersist(fctx, key)
	})
	if shared {
		s.metrics.SharedFlight()
	}
	if err != nil {
		return nil, metrics.OutcomeFailed, err
	}
	if len(places) == 0 {
		return places, metrics.OutcomeEmpty, nil
	}
	return places, metrics.OutcomeFetched, nil
}

// fetchAndPersist singleflightの所有者だけが実行する FETCH → PERSIST → RANK → CACHE_WRITE
func (s *placeResolutionServiceImpl) fetchAndPersist(ctx context.Context, key model.CoordinateKey) ([]model.PlaceSummary, error) {
	logger := s.logger.WithValues("key", key.String())

	// 直前のフライトや別プロセスが保存済みかもしれない
	if places, ok := s.cache.Get(key); ok {
		return places, nil
	}
	exists, err := s.repo.Exists(ctx, key)
	if err != nil {
		return nil, err
	}

	if !exists {
		logger.Info("🌐 外部APIから周辺スポットを取得")
		s.metrics.ExternalCall()

		records, err := s.provider.FetchNearby(ctx, key)
		if err != nil {
			s.metrics.FetchFailure()
			return nil, err
		}
		if len(records) == 0 {
			// 空の結果はキャッシュしない（次のリクエストで再取得する）
			logger.Info("⚠️ 周辺スポットが見つかりませんでした")
			return []model.PlaceSummary{}, nil
		}

		if err := s.repo.UpsertPlaces(ctx, key, records); err != nil {
			return nil, err
		}
		logger.Info("💾 周辺スポットを保存", "count", len(records))
	}

	return s.rankAndCache(ctx, key)
}

// rankAndCache ストアからランキングを読み出し、結果があればキャッシュに書き戻す
func (s *placeResolutionServiceImpl) rankAndCache(ctx context.Context, key model.CoordinateKey) ([]model.PlaceSummary, error) {
	stored, err := s.repo.RankedPlacesFor(ctx, key, s.rankLimit)
	if err != nil {
		return nil, err
	}

	places := RankPlaces(key, stored, s.rankLimit)
	if len(places) > 0 {
		s.cache.Put(key, places)
	}
	return places, nil
}
