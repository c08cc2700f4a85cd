package seed

import (
	"github.com/bwmarrin/snowflake"
	"github.com/rentfold/rentfold/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(func(cfg config.Config, db *gorm.DB, node *snowflake.Node, log *zap.Logger) error {
		if !cfg.SeedDemoData {
			return nil
		}
		if err := EnsureDemoData(db, node); err != nil {
			return err
		}
		log.Info("demo data seeded")
		return nil
	}),
)
