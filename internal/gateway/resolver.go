package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rentfold/rentfold/internal/config"
	"github.com/rentfold/rentfold/internal/gateway/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Resolver builds adapters from stored per-property gateway configurations.
// Rows are read at call time so credential changes apply without a restart.
type Resolver struct {
	db       *gorm.DB
	registry *Registry
	log      *zap.Logger
	timeout  time.Duration
}

func NewResolver(db *gorm.DB, registry *Registry, cfg config.Config, log *zap.Logger) *Resolver {
	return &Resolver{
		db:       db,
		registry: registry,
		log:      log.Named("gateway.resolver"),
		timeout:  time.Duration(cfg.GatewayHTTPTimeoutSec) * time.Second,
	}
}

// ForProperty resolves the adapter for a property. With provider empty the
// default active row wins, then the most recent active row.
func (r *Resolver) ForProperty(ctx context.Context, propertyID snowflake.ID, provider string) (domain.Gateway, *domain.GatewayConfig, error) {
	query := r.db.WithContext(ctx).
		Where("property_id = ? AND is_active = ?", propertyID, true).
		Order("is_default DESC, created_at DESC")
	if provider != "" {
		query = query.Where("provider = ?", provider)
	}

	var row domain.GatewayConfig
	if err := query.First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, domain.ErrNoActiveConfig
		}
		return nil, nil, err
	}

	adapter, err := r.build(row)
	if err != nil {
		return nil, nil, err
	}
	return adapter, &row, nil
}

// ActiveConfigs lists every active row for a provider. Webhook ingestion
// tries each until one validates the signature.
func (r *Resolver) ActiveConfigs(ctx context.Context, provider string) ([]domain.GatewayConfig, error) {
	var rows []domain.GatewayConfig
	err := r.db.WithContext(ctx).
		Where("provider = ? AND is_active = ?", provider, true).
		Order("is_default DESC, created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Adapter builds a gateway from one stored configuration row.
func (r *Resolver) Adapter(row domain.GatewayConfig) (domain.Gateway, error) {
	return r.build(row)
}

func (r *Resolver) build(row domain.GatewayConfig) (domain.Gateway, error) {
	var credentials map[string]any
	if err := json.Unmarshal(row.Config, &credentials); err != nil {
		r.log.Error("gateway config row holds invalid json",
			zap.String("provider", row.Provider),
			zap.String("config_id", row.ID.String()),
		)
		return nil, domain.ErrInvalidConfig
	}
	return r.registry.NewAdapter(row.Provider, domain.AdapterConfig{
		PropertyID:  row.PropertyID,
		Provider:    row.Provider,
		Credentials: credentials,
		HTTPTimeout: r.timeout,
	})
}
