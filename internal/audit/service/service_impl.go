package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/registrar/internal/audit/domain"
	"github.com/smallbiznis/registrar/internal/audit/masking"
	"github.com/smallbiznis/registrar/internal/clock"
	obscontext "github.com/smallbiznis/registrar/internal/observability/context"
	"github.com/smallbiznis/registrar/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, in auditdomain.Entry) error {
	action := strings.TrimSpace(in.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(in.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	actorType, actorID := resolveActor(ctx)
	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  actorType,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   normalize(in.TargetID),
		CreatedAt:  s.clock.Now().UTC(),
	}
	if masked := masking.MaskSensitive(in.Metadata); masked != nil {
		entry.Metadata = datatypes.JSONMap(masked)
	}
	entry.RequestID = normalize(obscontext.RequestIDFromContext(ctx))

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	limit, offset, err := req.Window()
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorID:    req.ActorID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	logs, info := pagination.Page(items, req.Pagination, offset)
	if logs == nil {
		logs = []auditdomain.AuditLog{}
	}
	return auditdomain.ListAuditLogResponse{PageInfo: info, AuditLogs: logs}, nil
}

// resolveActor maps the forwarded X-Actor-ID to an actor type and ID.
func resolveActor(ctx context.Context) (auditdomain.ActorType, *string) {
	raw := strings.TrimSpace(obscontext.ActorIDFromContext(ctx))
	switch {
	case raw == "" || raw == string(auditdomain.ActorTypeSystem):
		return auditdomain.ActorTypeSystem, nil
	case raw == string(auditdomain.ActorTypeScheduler):
		return auditdomain.ActorTypeScheduler, nil
	default:
		id := strings.TrimPrefix(raw, "user:")
		return auditdomain.ActorTypeUser, &id
	}
}

func normalize(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
