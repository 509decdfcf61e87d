package grade

import (
	"github.com/smallbiznis/registrar/internal/grade/repository"
	"github.com/smallbiznis/registrar/internal/grade/service"
	"go.uber.org/fx"
)

var Module = fx.Module("grade.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
