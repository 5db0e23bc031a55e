package pdf

import (
	"github.com/invoicekits/invoicekits/internal/invoice/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(
		fx.Annotate(New, fx.As(new(domain.Renderer))),
	),
)
