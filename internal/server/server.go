package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/registrar/internal/audit/domain"
	"github.com/smallbiznis/registrar/internal/authorization"
	"github.com/smallbiznis/registrar/internal/config"
	enrollmentservice "github.com/smallbiznis/registrar/internal/enrollment/service"
	gradeservice "github.com/smallbiznis/registrar/internal/grade/service"
	"github.com/smallbiznis/registrar/internal/observability"
	obsmiddleware "github.com/smallbiznis/registrar/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/registrar/internal/observability/metrics"
	obstracing "github.com/smallbiznis/registrar/internal/observability/tracing"
	paymentservice "github.com/smallbiznis/registrar/internal/payment/service"
	settlementservice "github.com/smallbiznis/registrar/internal/settlement/service"
	soaservice "github.com/smallbiznis/registrar/internal/soa/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	log           *zap.Logger
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	enrollmentSvc *enrollmentservice.Service
	soaSvc        *soaservice.Service
	soaRenderer   *soaservice.Renderer
	paymentSvc    *paymentservice.Service
	settlementSvc *settlementservice.Service
	gradeSvc      *gradeservice.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Log           *zap.Logger
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	EnrollmentSvc *enrollmentservice.Service
	SOASvc        *soaservice.Service
	SOARenderer   *soaservice.Renderer
	PaymentSvc    *paymentservice.Service
	SettlementSvc *settlementservice.Service
	GradeSvc      *gradeservice.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		log:           p.Log.Named("http.server"),
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		enrollmentSvc: p.EnrollmentSvc,
		soaSvc:        p.SOASvc,
		soaRenderer:   p.SOARenderer,
		paymentSvc:    p.PaymentSvc,
		settlementSvc: p.SettlementSvc,
		gradeSvc:      p.GradeSvc,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.ActorRequired())

	// -------- Enrollments --------
	api.POST("/enrollments", s.authorize(authorization.ObjectEnrollment, authorization.ActionEnrollmentStart), s.StartEnrollment)
	api.GET("/enrollments/:id", s.authorize(authorization.ObjectEnrollment, authorization.ActionEnrollmentView), s.GetEnrollment)
	api.PATCH("/enrollments/:id", s.authorize(authorization.ObjectEnrollment, authorization.ActionEnrollmentUpdate), s.UpdateEnrollment)
	api.POST("/enrollments/:id/submit", s.authorize(authorization.ObjectEnrollment, authorization.ActionEnrollmentSubmit), s.SubmitPreEnrollment)

	// -------- Statements --------
	api.GET("/soa/:id", s.authorize(authorization.ObjectSOA, authorization.ActionSOAView), s.GetStatement)
	api.GET("/soa/:id/pdf", s.authorize(authorization.ObjectSOA, authorization.ActionSOAView), s.RenderStatementPDF)
	api.GET("/soa/:id/payments", s.authorize(authorization.ObjectSOA, authorization.ActionSOAView), s.ListStatementPayments)
	api.POST("/soa/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentCreate), s.CreatePayment)
	api.GET("/payment-channels", s.ListPaymentChannels)

	// -------- Grades --------
	api.GET("/grades/:enrolled_class_id", s.authorize(authorization.ObjectGrade, authorization.ActionGradeUpdate), s.GetGrade)
	api.PATCH("/grades/:enrolled_class_id", s.authorize(authorization.ObjectGrade, authorization.ActionGradeUpdate), s.UpdateGrade)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.ActorRequired())

	admin.POST("/enrollments/:id/status", s.authorize(authorization.ObjectEnrollment, authorization.ActionEnrollmentOverride), s.OverrideEnrollment)
	admin.POST("/enrollments/:id/soa", s.authorize(authorization.ObjectSOA, authorization.ActionSOARebuild), s.RebuildStatement)

	admin.POST("/payments/:id/cashier", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentConfirm), s.ConfirmCashierPayment)
	admin.POST("/payments/:id/void", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentVoid), s.VoidPayment)

	admin.GET("/settlements", s.authorize(authorization.ObjectSettlement, authorization.ActionSettlementView), s.ListSettlementBatches)
	admin.POST("/settlements", s.authorize(authorization.ObjectSettlement, authorization.ActionSettlementUpload), s.UploadSettlement)
	admin.GET("/settlements/:id", s.authorize(authorization.ObjectSettlement, authorization.ActionSettlementView), s.GetSettlementBatch)
	admin.GET("/journal-vouchers", s.authorize(authorization.ObjectSettlement, authorization.ActionSettlementView), s.ListJournalVouchers)
	admin.POST("/journal-vouchers", s.authorize(authorization.ObjectSettlement, authorization.ActionSettlementUpload), s.UploadJournalVoucher)
	admin.GET("/journal-vouchers/:id", s.authorize(authorization.ObjectSettlement, authorization.ActionSettlementView), s.GetJournalVoucher)

	admin.GET("/audit-logs", s.authorize(authorization.ObjectAudit, authorization.ActionAuditView), s.ListAuditLogs)
}

func (s *Server) registerWebhookRoutes() {
	webhooks := s.engine.Group("/webhooks")

	webhooks.POST("/dragonpay", s.DragonpayPostback)
	webhooks.GET("/dragonpay/return", s.DragonpayReturn)
	webhooks.POST("/bukas", s.BukasWebhook)
}
