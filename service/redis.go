package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/TIANLI0/maskpaint/config"
	"github.com/TIANLI0/maskpaint/model"
	"github.com/TIANLI0/maskpaint/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func predictionKey(key string) string {
	return "assist:" + key
}

// GetPrediction 从缓存获取辅助预测结果，未命中时返回 nil, nil
func (s *RedisService) GetPrediction(ctx context.Context, key string) (*model.PredictResponse, error) {
	data, err := s.client.Get(ctx, predictionKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 缓存未命中
		}
		return nil, err
	}

	var resp model.PredictResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		utils.Logger.Error("failed to unmarshal cached prediction",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return &resp, nil
}

// SetPrediction 缓存辅助预测结果
func (s *RedisService) SetPrediction(ctx context.Context, key string, resp *model.PredictResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, predictionKey(key), data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
