package soa

import (
	"github.com/smallbiznis/registrar/internal/soa/repository"
	"github.com/smallbiznis/registrar/internal/soa/service"
	"go.uber.org/fx"
)

var Module = fx.Module("soa.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.NewRenderer),
)
