package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"

	"PlaceFinder-App/internal/domain/model"
)

// ErrFlightTimeout 進行中の取得を待つ間にタイムアウトした
var ErrFlightTimeout = errors.New("進行中の周辺スポット取得の待機がタイムアウトしました")

// FetchFunc singleflightで1キーにつき1回だけ実行される取得・保存処理
type FetchFunc func(ctx context.Context) ([]model.PlaceSummary, error)

// FetchCoordinator 同じ座標キーに対する外部API呼び出しを1つにまとめる
type FetchCoordinator struct {
	group       singleflight.Group
	waitTimeout time.Duration
	logger      logr.Logger
}

// NewFetchCoordinator waitTimeout は取得処理のリトライ込みの最大時間より少し長くする
func NewFetchCoordinator(waitTimeout time.Duration, logger logr.Logger) *FetchCoordinator {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &FetchCoordinator{
		waitTimeout: waitTimeout,
		logger:      logger,
	}
}

// Do 最初の呼び出し元が fn を実行し、同じキーの後続の呼び出し元はその結果を待つ。
// fn が返るとハンドルは成功・失敗に関わらず削除されるので、失敗したキーは次のリクエストで再試行される。
// shared は結果を他の呼び出し元と共有したかどうか。
func (c *FetchCoordinator) Do(ctx context.Context, key model.CoordinateKey, fn FetchFunc) (places []model.PlaceSummary, shared bool, err error) {
	// 最初の呼び出し元がキャンセルしても待っている他の呼び出し元に影響しないよう切り離す
	flightCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(key.String(), func() (any, error) {
		fctx, cancel := context.WithTimeout(flightCtx, c.waitTimeout)
		defer cancel()
		return fn(fctx)
	})

	timer := time.NewTimer(c.waitTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Shared {
			c.logger.V(1).Info("🔁 進行中の取得結果を共有", "key", key.String())
		}
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		found, _ := res.Val.([]model.PlaceSummary)
		return model.CloneSummaries(found), res.Shared, nil
	case <-timer.C:
		c.logger.Info("⏱️ 進行中の取得待ちがタイムアウト", "key", key.String(), "timeout", c.waitTimeout)
		return nil, false, fmt.Errorf("%w (key=%s)", ErrFlightTimeout, key)
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
