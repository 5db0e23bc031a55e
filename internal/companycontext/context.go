// Package companycontext carries the authenticated company through a request.
package companycontext

import (
	"context"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/invoicekits/invoicekits/internal/observability/context"
)

type companyKey struct{}

// WithCompanyID stores the company ID in the context. The ID is also made
// available to request logging.
func WithCompanyID(ctx context.Context, companyID snowflake.ID) context.Context {
	ctx = context.WithValue(ctx, companyKey{}, companyID)
	return obscontext.WithCompanyID(ctx, companyID.String())
}

// CompanyIDFromContext returns the company ID from context, if set.
func CompanyIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(companyKey{}).(snowflake.ID)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}
