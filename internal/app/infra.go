package app

import (
	"go.uber.org/zap"

	"github.com/btengland/VantageConnectAPI/internal/config"
	"github.com/btengland/VantageConnectAPI/internal/redis"
)

type Infra struct {
	Redis *redis.Client
}

func setupInfra(cfg config.Config, log *zap.Logger) (*Infra, error) {
	redisClient, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}

	log.Info("redis ready", zap.String("addr", cfg.RedisAddr))

	return &Infra{Redis: redisClient}, nil
}
