package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/invoicekits/invoicekits/internal/batch/csvimport"
	batchdomain "github.com/invoicekits/invoicekits/internal/batch/domain"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// UploadBatch stores a CSV or XLSX file as a pending batch. Processing
// happens in the worker or through ProcessBatch.
func (s *Server) UploadBatch(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "required", "file is required"))
		return
	}
	if limit := s.cfg.Batch.MaxUploadBytes; limit > 0 && header.Size > limit {
		AbortWithError(c, batchdomain.ErrFileTooLarge)
		return
	}

	f, err := header.Open()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	batch, err := s.batchSvc.Upload(c.Request.Context(), batchdomain.UploadRequest{
		Filename: header.Filename,
		Data:     data,
		Policy:   strings.TrimSpace(c.PostForm("validation_policy")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("batch_id", batch.ID.String())
	c.JSON(http.StatusAccepted, gin.H{"data": batch})
}

func (s *Server) ListBatches(c *gin.Context) {
	page, ok := parsePagination(c)
	if !ok {
		return
	}

	resp, err := s.batchSvc.List(c.Request.Context(), batchdomain.ListRequest{
		PageToken: page.PageToken,
		PageSize:  page.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":            resp.Batches,
		"next_page_token": resp.NextPageToken,
		"has_more":        resp.HasMore,
	})
}

func (s *Server) GetBatch(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	batch, err := s.batchSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": batch})
}

// ProcessBatch runs a pending batch inline and returns its result.
func (s *Server) ProcessBatch(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	batch, err := s.batchSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("batch_id", id)

	result, err := s.batchSvc.Process(c.Request.Context(), batch.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

func (s *Server) DownloadBatchArchive(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	name, data, err := s.batchSvc.Archive(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "application/zip", data)
}

func (s *Server) DownloadBatchTemplate(c *gin.Context) {
	var (
		data        []byte
		err         error
		contentType string
		filename    string
	)
	switch format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "csv"))); format {
	case "csv":
		data, err = csvimport.TemplateCSV()
		contentType, filename = contentTypeCSV, "invoice_template.csv"
	case "xlsx":
		data, err = csvimport.TemplateXLSX()
		contentType, filename = contentTypeXLSX, "invoice_template.xlsx"
	default:
		AbortWithError(c, newValidationError("format", "invalid_format", "format must be csv or xlsx"))
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, data)
}
