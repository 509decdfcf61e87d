package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/registrar/internal/academic"
	"github.com/smallbiznis/registrar/internal/audit"
	"github.com/smallbiznis/registrar/internal/authorization"
	"github.com/smallbiznis/registrar/internal/clock"
	"github.com/smallbiznis/registrar/internal/config"
	"github.com/smallbiznis/registrar/internal/enrollment"
	"github.com/smallbiznis/registrar/internal/events"
	"github.com/smallbiznis/registrar/internal/fee"
	"github.com/smallbiznis/registrar/internal/grade"
	"github.com/smallbiznis/registrar/internal/observability"
	"github.com/smallbiznis/registrar/internal/payment"
	"github.com/smallbiznis/registrar/internal/providers"
	"github.com/smallbiznis/registrar/internal/ratelimit"
	"github.com/smallbiznis/registrar/internal/server"
	"github.com/smallbiznis/registrar/internal/settlement"
	"github.com/smallbiznis/registrar/internal/soa"
	"github.com/smallbiznis/registrar/pkg/db"
	"go.uber.org/fx"
)

// API only: schema migrations and background jobs run in the monolith or apps/scheduler.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,
		providers.Module,
		events.Module,
		authorization.Module,
		audit.Module,

		academic.Module,
		fee.Module,
		soa.Module,
		enrollment.Module,
		payment.Module,
		settlement.Module,
		grade.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
