package providers

import (
	"github.com/rentfold/rentfold/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	pdf.Module,
)
