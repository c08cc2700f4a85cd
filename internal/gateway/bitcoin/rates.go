package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/rentfold/rentfold/internal/gateway/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultRateBaseURL = "https://api.coingecko.com/api/v3"
	ratePath           = "/simple/price?ids=bitcoin&vs_currencies=usd"
	rateCacheKey       = "btc_usd_rate"
	rateCacheTTL       = 5 * time.Minute
)

var satoshisPerBTC = decimal.NewFromInt(100_000_000)

// RateService resolves the BTC-USD exchange rate. Lookups hit redis first,
// then the rate API, then the last persisted snapshot when the API is down.
type RateService struct {
	db         *gorm.DB
	rdb        *redis.Client
	genID      *snowflake.Node
	log        *zap.Logger
	baseURL    string
	httpClient *http.Client
}

func NewRateService(db *gorm.DB, rdb *redis.Client, genID *snowflake.Node, log *zap.Logger, baseURL string) *RateService {
	if baseURL == "" {
		baseURL = defaultRateBaseURL
	}
	return &RateService{
		db:         db,
		rdb:        rdb,
		genID:      genID,
		log:        log.Named("bitcoin.rates"),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *RateService) BTCUSDRate(ctx context.Context) (decimal.Decimal, error) {
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, rateCacheKey).Result(); err == nil {
			if rate, err := decimal.NewFromString(cached); err == nil {
				return rate, nil
			}
		}
	}

	rate, err := s.fetchRate(ctx)
	if err == nil {
		if s.rdb != nil {
			if err := s.rdb.Set(ctx, rateCacheKey, rate.String(), rateCacheTTL).Err(); err != nil {
				s.log.Warn("failed to cache btc rate", zap.Error(err))
			}
		}
		snapshot := domain.BitcoinPriceSnapshot{ID: s.genID.Generate(), BTCUSDRate: rate}
		if err := s.db.WithContext(ctx).Create(&snapshot).Error; err != nil {
			s.log.Warn("failed to persist btc rate snapshot", zap.Error(err))
		}
		return rate, nil
	}
	s.log.Warn("rate api unreachable, falling back to last snapshot", zap.Error(err))

	var snapshot domain.BitcoinPriceSnapshot
	dbErr := s.db.WithContext(ctx).Order("created_at DESC").First(&snapshot).Error
	if dbErr != nil {
		return decimal.Zero, fmt.Errorf("btc rate unavailable: %w", err)
	}
	return snapshot.BTCUSDRate, nil
}

func (s *RateService) fetchRate(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+ratePath, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decimal.Zero, fmt.Errorf("rate api: http %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return decimal.Zero, err
	}
	var body struct {
		Bitcoin struct {
			USD json.Number `json:"usd"`
		} `json:"bitcoin"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return decimal.Zero, err
	}
	rate, err := decimal.NewFromString(body.Bitcoin.USD.String())
	if err != nil || rate.IsZero() {
		return decimal.Zero, fmt.Errorf("rate api: bad rate %q", body.Bitcoin.USD.String())
	}
	return rate, nil
}

func usdToSatoshis(usd, rate decimal.Decimal) int64 {
	return usd.Div(rate).Mul(satoshisPerBTC).IntPart()
}

func satoshisToBTC(satoshis int64) decimal.Decimal {
	return decimal.NewFromInt(satoshis).Div(satoshisPerBTC)
}
