package apikey

import (
	"github.com/invoicekits/invoicekits/internal/apikey/repository"
	"github.com/invoicekits/invoicekits/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
