package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	"github.com/invoicekits/invoicekits/internal/companycontext"
)

func (s *Server) GetCompany(c *gin.Context) {
	company, err := s.companySvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": company})
}

func (s *Server) UpdateCompany(c *gin.Context) {
	var req companydomain.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	company, err := s.companySvc.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": company})
}

func (s *Server) GetAccountUsage(c *gin.Context) {
	companyID, ok := companycontext.CompanyIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	usage, err := s.accountSvc.Usage(c.Request.Context(), companyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": usage})
}
