package company

import (
	"github.com/invoicekits/invoicekits/internal/company/repository"
	"github.com/invoicekits/invoicekits/internal/company/service"
	"go.uber.org/fx"
)

var Module = fx.Module("company.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
