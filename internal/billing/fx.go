package billing

import (
	"github.com/rentfold/rentfold/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(service.NewInvoiceService),
	fx.Provide(service.NewPaymentService),
	fx.Provide(service.NewLateFeeService),
	fx.Provide(service.NewDocumentService),
)
