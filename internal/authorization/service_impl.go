package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	RoleStudent    = "role:student"
	RoleEnrollee   = "role:enrollee"
	RoleRegistrar  = "role:registrar"
	RoleCashier    = "role:cashier"
	RoleAccounting = "role:accounting"
	RoleFaculty    = "role:faculty"
	RoleSystem     = "role:system"
)

const (
	ObjectEnrollment = "enrollment"
	ObjectSOA        = "soa"
	ObjectPayment    = "payment"
	ObjectSettlement = "settlement"
	ObjectGrade      = "grade"
	ObjectAudit      = "audit"
)

const (
	ActionEnrollmentStart    = "enrollment.start"
	ActionEnrollmentView     = "enrollment.view"
	ActionEnrollmentUpdate   = "enrollment.update"
	ActionEnrollmentSubmit   = "enrollment.submit"
	ActionEnrollmentOverride = "enrollment.override"

	ActionSOAView    = "soa.view"
	ActionSOARebuild = "soa.rebuild"

	ActionPaymentCreate  = "payment.create"
	ActionPaymentConfirm = "payment.confirm"
	ActionPaymentVoid    = "payment.void"

	ActionSettlementUpload = "settlement.upload"
	ActionSettlementView   = "settlement.view"

	ActionGradeUpdate = "grade.update"

	ActionAuditView = "audit.view"
)

const systemActor = "system"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	subject, err := subjectFor(actor)
	if err != nil {
		return err
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) GrantRole(ctx context.Context, userID snowflake.ID, role string) error {
	if userID == 0 {
		return ErrInvalidActor
	}
	role, err := normalizeRole(role)
	if err != nil {
		return err
	}
	if _, err := s.enforcer.AddGroupingPolicy(userSubject(userID), role); err != nil {
		return err
	}
	s.log.Info("role granted", zap.String("user_id", userID.String()), zap.String("role", role))
	return nil
}

// RevokeRole is a no-op when the user does not hold the role.
func (s *ServiceImpl) RevokeRole(ctx context.Context, userID snowflake.ID, role string) error {
	if userID == 0 {
		return ErrInvalidActor
	}
	role, err := normalizeRole(role)
	if err != nil {
		return err
	}
	removed, err := s.enforcer.RemoveGroupingPolicy(userSubject(userID), role)
	if err != nil {
		return err
	}
	if removed {
		s.log.Info("role revoked", zap.String("user_id", userID.String()), zap.String("role", role))
	}
	return nil
}

func (s *ServiceImpl) HasRole(ctx context.Context, userID snowflake.ID, role string) (bool, error) {
	role, err := normalizeRole(role)
	if err != nil {
		return false, err
	}
	return s.enforcer.HasGroupingPolicy(userSubject(userID), role)
}

func userSubject(userID snowflake.ID) string {
	return fmt.Sprintf("user:%s", userID.String())
}

func subjectFor(actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == systemActor {
		return RoleSystem, nil
	}
	if strings.HasPrefix(actor, "user:") {
		id, err := snowflake.ParseString(strings.TrimPrefix(actor, "user:"))
		if err != nil || id == 0 {
			return "", ErrInvalidActor
		}
		return userSubject(id), nil
	}
	return "", ErrInvalidActor
}

func normalizeRole(role string) (string, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return "", ErrInvalidRole
	}
	if !strings.HasPrefix(role, "role:") {
		role = "role:" + role
	}
	return role, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleStudent, ObjectEnrollment, ActionEnrollmentStart},
		{RoleStudent, ObjectEnrollment, ActionEnrollmentView},
		{RoleStudent, ObjectSOA, ActionSOAView},

		// Granted while an enrollment is ongoing, revoked on completion.
		{RoleEnrollee, ObjectEnrollment, ActionEnrollmentUpdate},
		{RoleEnrollee, ObjectEnrollment, ActionEnrollmentSubmit},
		{RoleEnrollee, ObjectPayment, ActionPaymentCreate},

		{RoleRegistrar, ObjectEnrollment, ActionEnrollmentView},
		{RoleRegistrar, ObjectEnrollment, ActionEnrollmentUpdate},
		{RoleRegistrar, ObjectEnrollment, ActionEnrollmentOverride},
		{RoleRegistrar, ObjectSOA, ActionSOAView},
		{RoleRegistrar, ObjectSOA, ActionSOARebuild},

		{RoleCashier, ObjectSOA, ActionSOAView},
		{RoleCashier, ObjectPayment, ActionPaymentCreate},
		{RoleCashier, ObjectPayment, ActionPaymentConfirm},
		{RoleCashier, ObjectPayment, ActionPaymentVoid},

		{RoleAccounting, ObjectSOA, ActionSOAView},
		{RoleAccounting, ObjectSettlement, ActionSettlementUpload},
		{RoleAccounting, ObjectSettlement, ActionSettlementView},

		{RoleRegistrar, ObjectAudit, ActionAuditView},
		{RoleAccounting, ObjectAudit, ActionAuditView},

		{RoleFaculty, ObjectGrade, ActionGradeUpdate},

		{RoleSystem, ObjectEnrollment, ActionEnrollmentOverride},
		{RoleSystem, ObjectSOA, ActionSOARebuild},
		{RoleSystem, ObjectPayment, ActionPaymentConfirm},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
