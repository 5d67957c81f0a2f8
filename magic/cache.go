package magic

import (
	"context"
	"encoding/json"

	"github.com/TIANLI0/maskpaint/model"
	"github.com/TIANLI0/maskpaint/utils"
	"go.uber.org/zap"
)

// PredictionCache 预测结果缓存，service.RedisService 实现该接口
type PredictionCache interface {
	GetPrediction(ctx context.Context, key string) (*model.PredictResponse, error)
	SetPrediction(ctx context.Context, key string, resp *model.PredictResponse) error
}

// CachedPredictor 以请求内容的 MD5 为键缓存成功的预测。缓存读写失败只记录日志。
type CachedPredictor struct {
	next  Predictor
	cache PredictionCache
}

func NewCachedPredictor(next Predictor, cache PredictionCache) *CachedPredictor {
	return &CachedPredictor{next: next, cache: cache}
}

// CacheKey 计算请求的缓存键（忽略方块时间戳）
func CacheKey(req *model.PredictRequest) (string, error) {
	keyed := *req
	keyed.Crops = make([]model.Crop, len(req.Crops))
	for i, c := range req.Crops {
		c.Timestamp = 0
		keyed.Crops[i] = c
	}
	data, err := json.Marshal(&keyed)
	if err != nil {
		return "", err
	}
	return utils.BytesMD5(data), nil
}

func (p *CachedPredictor) Predict(ctx context.Context, req *model.PredictRequest) (*model.PredictResponse, error) {
	key, err := CacheKey(req)
	if err != nil {
		return p.next.Predict(ctx, req)
	}

	cached, err := p.cache.GetPrediction(ctx, key)
	if err != nil {
		utils.Logger.Warn("failed to get cached prediction", zap.Error(err))
	}
	if cached != nil {
		utils.Logger.Info("prediction cache hit", zap.String("cache_key", key))
		return cached, nil
	}

	resp, err := p.next.Predict(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Status == model.StatusSuccess {
		if err := p.cache.SetPrediction(ctx, key, resp); err != nil {
			utils.Logger.Warn("failed to set cached prediction", zap.Error(err))
		}
	}
	return resp, nil
}
