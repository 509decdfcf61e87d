package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/registrar/internal/observability/context"
)

const (
	contextActorKey  = "actor"
	contextUserIDKey = "user_id"

	actorSystem = "system"
)

// actorFromRequest returns the casbin actor for the identity forwarded in
// X-Actor-ID: "system" or a user snowflake ID.
func actorFromRequest(c *gin.Context) (string, snowflake.ID, bool) {
	raw := strings.TrimSpace(obscontext.ActorIDFromContext(c.Request.Context()))
	if raw == "" {
		return "", 0, false
	}
	if raw == actorSystem {
		return actorSystem, 0, true
	}
	id, err := snowflake.ParseString(strings.TrimPrefix(raw, "user:"))
	if err != nil || id == 0 {
		return "", 0, false
	}
	return "user:" + id.String(), id, true
}

// ActorRequired rejects requests without a usable X-Actor-ID.
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, userID, ok := actorFromRequest(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(contextActorKey, actor)
		if userID != 0 {
			c.Set(contextUserIDKey, userID)
		}
		c.Next()
	}
}

// authorize checks the request actor against object and action.
func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetString(contextActorKey)
		if actor == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func actorID(c *gin.Context) string {
	return c.GetString(contextActorKey)
}
