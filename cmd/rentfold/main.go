package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/rentfold/rentfold/internal/billing"
	"github.com/rentfold/rentfold/internal/clock"
	"github.com/rentfold/rentfold/internal/config"
	"github.com/rentfold/rentfold/internal/gateway"
	"github.com/rentfold/rentfold/internal/logger"
	"github.com/rentfold/rentfold/internal/migration"
	"github.com/rentfold/rentfold/internal/notify"
	"github.com/rentfold/rentfold/internal/providers"
	"github.com/rentfold/rentfold/internal/rewards"
	"github.com/rentfold/rentfold/internal/scheduler"
	"github.com/rentfold/rentfold/internal/seed"
	"github.com/rentfold/rentfold/internal/server"
	"github.com/rentfold/rentfold/internal/webhook"
	"github.com/rentfold/rentfold/pkg/db"
	"github.com/rentfold/rentfold/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		seed.Module,

		// Functional domains
		notify.Module,
		providers.Module,
		gateway.Module,
		billing.Module,
		rewards.Module,
		webhook.Module,
		scheduler.Module,
		server.Module,
	).Run()
}

// RegisterSnowflake builds the ID generator. Multi-instance deployments set
// SNOWFLAKE_NODE_ID per instance so IDs never collide.
func RegisterSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			nodeID = parsed
		}
	}
	return snowflake.NewNode(nodeID)
}
