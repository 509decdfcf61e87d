package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	soadomain "github.com/smallbiznis/registrar/internal/soa/domain"
)

type statementResponse struct {
	*soadomain.Statement
	Balance *soadomain.Balance `json:"balance"`
}

func (s *Server) GetStatement(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	statement, err := s.soaSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	balance, err := s.soaSvc.Balance(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": statementResponse{Statement: statement, Balance: balance}})
}

func (s *Server) RenderStatementPDF(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	reader, err := s.soaRenderer.RenderPDF(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=\"soa-%s.pdf\"", id.String()))
	c.Data(http.StatusOK, "application/pdf", body)
}
