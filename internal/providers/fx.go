package providers

import (
	"github.com/invoicekits/invoicekits/internal/providers/email"
	"github.com/invoicekits/invoicekits/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
