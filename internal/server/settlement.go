package server

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/registrar/internal/authorization"
	settlementdomain "github.com/smallbiznis/registrar/internal/settlement/domain"
	settlementservice "github.com/smallbiznis/registrar/internal/settlement/service"
	"github.com/smallbiznis/registrar/pkg/db/pagination"
)

const maxUploadSize = 10 << 20

func (s *Server) UploadSettlement(c *gin.Context) {
	fileName, content, ok := readUpload(c)
	if !ok {
		return
	}
	gateway := strings.TrimSpace(c.PostForm("gateway"))
	if gateway == "" {
		AbortWithError(c, newValidationError("gateway", "invalid_gateway", "gateway is required"))
		return
	}

	batch, err := s.settlementSvc.Upload(c.Request.Context(), settlementservice.UploadInput{
		Gateway:    gateway,
		JVNumber:   strings.TrimSpace(c.PostForm("jv_number")),
		FileName:   fileName,
		Content:    content,
		UploadedBy: actorID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, authorization.ActionSettlementUpload, "settlement_batch", batch.ID.String(), map[string]any{
		"gateway":   string(batch.Gateway),
		"jv_number": batch.JVNumber,
		"file_name": batch.FileName,
	})

	c.JSON(http.StatusAccepted, gin.H{"data": batch})
}

func (s *Server) UploadJournalVoucher(c *gin.Context) {
	fileName, content, ok := readUpload(c)
	if !ok {
		return
	}

	jv, err := s.settlementSvc.UploadJournalVoucher(c.Request.Context(), fileName, content, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, authorization.ActionSettlementUpload, "journal_voucher", jv.ID.String(), map[string]any{
		"file_name": jv.FileName,
	})

	c.JSON(http.StatusAccepted, gin.H{"data": jv})
}

func (s *Server) ListSettlementBatches(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	limit, offset, err := page.Window()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.settlementSvc.ListBatches(c.Request.Context(), limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []settlementdomain.Batch{}
	}
	items, info := pagination.Page(items, page, offset)

	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": info})
}

func (s *Server) GetSettlementBatch(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	batch, err := s.settlementSvc.GetBatch(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": batch})
}

func (s *Server) ListJournalVouchers(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	limit, offset, err := page.Window()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.settlementSvc.ListJournalVouchers(c.Request.Context(), limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []settlementdomain.JournalVoucher{}
	}
	items, info := pagination.Page(items, page, offset)

	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": info})
}

func (s *Server) GetJournalVoucher(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	jv, entries, err := s.settlementSvc.GetJournalVoucher(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if entries == nil {
		entries = []settlementdomain.JournalVoucherEntry{}
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"journal_voucher": jv, "entries": entries}})
}

// readUpload reads the multipart "file" field.
func readUpload(c *gin.Context) (string, []byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	header, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "invalid_file", "file is required"))
		return "", nil, false
	}
	content, err := readFormFile(header)
	if err != nil {
		AbortWithError(c, newValidationError("file", "invalid_file", "file could not be read"))
		return "", nil, false
	}
	return header.Filename, content, true
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
