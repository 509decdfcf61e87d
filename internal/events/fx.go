package events

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewOutbox),
	fx.Provide(providePublisher),
	fx.Provide(NewDispatcher),
)

type publisherParams struct {
	fx.In

	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

func providePublisher(p publisherParams) Publisher {
	if p.Redis == nil {
		return NewLogPublisher(p.Log)
	}
	return NewRedisPublisher(p.Redis)
}
