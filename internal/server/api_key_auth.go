package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/invoicekits/invoicekits/internal/apikey/domain"
	"github.com/invoicekits/invoicekits/internal/companycontext"
	obscontext "github.com/invoicekits/invoicekits/internal/observability/context"
)

const (
	actorAPIKey        = "api_key"
	contextAPIKeyIDKey = "api_key_id"
)

// APIKeyRequired authenticates requests using an API key only.
// Company identity is derived solely from the api_keys table.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		key, err := s.apiKeySvc.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			if errors.Is(err, apikeydomain.ErrInvalidKey) {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			AbortWithError(c, err)
			return
		}

		ctx := companycontext.WithCompanyID(c.Request.Context(), key.CompanyID)
		ctx = obscontext.WithActor(ctx, actorAPIKey, key.KeyID)
		c.Set(contextAPIKeyIDKey, key.KeyID)

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
