package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	"github.com/shopspring/decimal"
)

type discountRequest struct {
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type lateFeeRequest struct {
	// Amount overrides the company policy when positive.
	Amount decimal.Decimal `json:"amount"`
}

type pauseLateFeesRequest struct {
	Paused *bool `json:"paused"`
}

func (s *Server) ListInvoices(c *gin.Context) {
	page, ok := parsePagination(c)
	if !ok {
		return
	}
	status := invoicedomain.InvoiceStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))
	if status != "" && !status.Valid() {
		AbortWithError(c, newValidationError("status", "invalid_status", "unknown invoice status"))
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoiceRequest{
		Status:    status,
		PageToken: page.PageToken,
		PageSize:  page.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":            resp.Invoices,
		"next_page_token": resp.NextPageToken,
		"has_more":        resp.HasMore,
	})
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Source = invoicedomain.SourceAPI

	item, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) PreviewInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pdf, err := s.invoiceSvc.Preview(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="preview.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	pdf, err := s.invoiceSvc.RenderPDF(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, item.InvoiceNumber))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (s *Server) AddInvoiceLineItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req invoicedomain.LineItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	s.respondInvoice(c, http.StatusCreated)(s.invoiceSvc.AddLineItem(c.Request.Context(), id, req))
}

func (s *Server) UpdateInvoiceLineItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}
	var req invoicedomain.LineItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	s.respondInvoice(c, http.StatusOK)(s.invoiceSvc.UpdateLineItem(c.Request.Context(), id, itemID, req))
}

func (s *Server) RemoveInvoiceLineItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}

	s.respondInvoice(c, http.StatusOK)(s.invoiceSvc.RemoveLineItem(c.Request.Context(), id, itemID))
}

func (s *Server) UpdateInvoiceDiscount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req discountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	s.respondInvoice(c, http.StatusOK)(s.invoiceSvc.UpdateDiscount(c.Request.Context(), id, req.DiscountAmount))
}

func (s *Server) SendInvoice(c *gin.Context) {
	s.invoiceAction(c, s.invoiceSvc.Send)
}

func (s *Server) MarkInvoicePaid(c *gin.Context) {
	s.invoiceAction(c, s.invoiceSvc.MarkPaid)
}

func (s *Server) CancelInvoice(c *gin.Context) {
	s.invoiceAction(c, s.invoiceSvc.Cancel)
}

func (s *Server) RemoveInvoiceLateFee(c *gin.Context) {
	s.invoiceAction(c, s.invoiceSvc.RemoveLateFee)
}

func (s *Server) ApplyInvoiceLateFee(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req lateFeeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	s.respondInvoice(c, http.StatusOK)(s.invoiceSvc.ApplyLateFee(c.Request.Context(), id, req.Amount))
}

func (s *Server) PauseInvoiceLateFees(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req pauseLateFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Paused == nil {
		AbortWithError(c, newValidationError("paused", "required", "paused is required"))
		return
	}

	s.respondInvoice(c, http.StatusOK)(s.invoiceSvc.SetLateFeesPaused(c.Request.Context(), id, *req.Paused))
}

func (s *Server) invoiceAction(c *gin.Context, action func(ctx context.Context, id string) (*invoicedomain.Invoice, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	s.respondInvoice(c, http.StatusOK)(action(c.Request.Context(), id))
}

func (s *Server) respondInvoice(c *gin.Context, status int) func(*invoicedomain.Invoice, error) {
	return func(item *invoicedomain.Invoice, err error) {
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(status, gin.H{"data": item})
	}
}
