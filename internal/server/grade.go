package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gradeservice "github.com/smallbiznis/registrar/internal/grade/service"
)

type updateGradeRequest struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Submit bool   `json:"submit"`
}

func (s *Server) GetGrade(c *gin.Context) {
	id, ok := pathID(c, "enrolled_class_id")
	if !ok {
		return
	}

	grade, err := s.gradeSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": grade})
}

func (s *Server) UpdateGrade(c *gin.Context) {
	id, ok := pathID(c, "enrolled_class_id")
	if !ok {
		return
	}

	var req updateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	grade, err := s.gradeSvc.UpdateField(c.Request.Context(), id, gradeservice.UpdateRequest{
		Field:   req.Field,
		Value:   req.Value,
		Submit:  req.Submit,
		ActorID: actorID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": grade})
}
