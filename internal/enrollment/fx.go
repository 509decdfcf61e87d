package enrollment

import (
	"github.com/smallbiznis/registrar/internal/enrollment/repository"
	"github.com/smallbiznis/registrar/internal/enrollment/service"
	paymentdomain "github.com/smallbiznis/registrar/internal/payment/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("enrollment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(svc *service.Service) paymentdomain.EnrollmentCompleter { return svc }),
)
