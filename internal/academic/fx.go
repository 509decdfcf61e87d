package academic

import (
	"github.com/smallbiznis/registrar/internal/academic/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("academic.repository",
	fx.Provide(repository.Provide),
)
