package batch

import (
	accountdomain "github.com/invoicekits/invoicekits/internal/account/domain"
	"github.com/invoicekits/invoicekits/internal/batch/archive"
	batchdomain "github.com/invoicekits/invoicekits/internal/batch/domain"
	"github.com/invoicekits/invoicekits/internal/batch/repository"
	"github.com/invoicekits/invoicekits/internal/batch/service"
	"go.uber.org/fx"
)

var Module = fx.Module("batch.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		fx.Annotate(archive.NewZipWriter, fx.As(new(archive.Writer))),
	),
	fx.Provide(func(accounts accountdomain.Service) batchdomain.QuotaChecker { return accounts }),
	fx.Provide(service.New),
)
