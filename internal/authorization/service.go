package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidRole   = errors.New("invalid_role")
)

//go:generate mockgen -destination=mock/service_mock.go -package=mock github.com/smallbiznis/registrar/internal/authorization Service

// Service checks capabilities and manages role grants.
type Service interface {
	// Authorize checks actor ("system" or "user:<id>") against object and action.
	Authorize(ctx context.Context, actor string, object string, action string) error
	GrantRole(ctx context.Context, userID snowflake.ID, role string) error
	RevokeRole(ctx context.Context, userID snowflake.ID, role string) error
	HasRole(ctx context.Context, userID snowflake.ID, role string) (bool, error)
}
