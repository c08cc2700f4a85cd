package gateway

import (
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/rentfold/rentfold/internal/config"
	"github.com/rentfold/rentfold/internal/gateway/authorizenet"
	"github.com/rentfold/rentfold/internal/gateway/bitcoin"
	"github.com/rentfold/rentfold/internal/gateway/braintree"
	"github.com/rentfold/rentfold/internal/gateway/paypal"
	"github.com/rentfold/rentfold/internal/gateway/plaidach"
	"github.com/rentfold/rentfold/internal/gateway/square"
	"github.com/rentfold/rentfold/internal/gateway/stripe"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewRedisClient builds the shared redis client. A nil client is a valid
// result; rate caching is skipped when no address is configured.
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func NewRateService(db *gorm.DB, rdb *redis.Client, genID *snowflake.Node, log *zap.Logger, cfg config.Config) *bitcoin.RateService {
	return bitcoin.NewRateService(db, rdb, genID, log, cfg.BitcoinRateBaseURL)
}

// NewDefaultRegistry registers every supported provider.
func NewDefaultRegistry(db *gorm.DB, genID *snowflake.Node, rates *bitcoin.RateService) *Registry {
	r := NewRegistry()
	r.Register("stripe", stripe.NewFactory())
	r.Register("paypal", paypal.NewFactory())
	r.Register("square", square.NewFactory())
	r.Register("braintree", braintree.NewFactory())
	r.Register("authorizenet", authorizenet.NewFactory())
	r.Register("plaid_ach", plaidach.NewFactory())
	r.Register("bitcoin", bitcoin.NewFactory(db, genID, rates))
	return r
}

var Module = fx.Module("gateway",
	fx.Provide(NewRedisClient),
	fx.Provide(NewRateService),
	fx.Provide(NewDefaultRegistry),
	fx.Provide(NewResolver),
)
