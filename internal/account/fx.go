package account

import (
	"github.com/invoicekits/invoicekits/internal/account/repository"
	"github.com/invoicekits/invoicekits/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
