package fee

import (
	"github.com/smallbiznis/registrar/internal/fee/repository"
	"github.com/smallbiznis/registrar/internal/fee/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fee.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewResolver),
)
