package invoice

import (
	"github.com/invoicekits/invoicekits/internal/invoice/repository"
	"github.com/invoicekits/invoicekits/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
