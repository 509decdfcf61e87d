package payment

import (
	"github.com/smallbiznis/registrar/internal/config"
	"github.com/smallbiznis/registrar/internal/payment/adapters"
	"github.com/smallbiznis/registrar/internal/payment/adapters/bukas"
	"github.com/smallbiznis/registrar/internal/payment/adapters/cashier"
	"github.com/smallbiznis/registrar/internal/payment/adapters/dragonpay"
	"github.com/smallbiznis/registrar/internal/payment/adapters/otc"
	"github.com/smallbiznis/registrar/internal/payment/repository"
	paymentservice "github.com/smallbiznis/registrar/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(
			dragonpay.New(cfg.Dragonpay),
			bukas.New(cfg.Bukas),
			otc.New(),
			cashier.New(),
		)
	}),
	fx.Provide(paymentservice.NewService),
)
