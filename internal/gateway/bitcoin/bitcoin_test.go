package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/rentfold/rentfold/internal/gateway/domain"
	"github.com/rentfold/rentfold/internal/migration"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.AutoMigrate(db))
	return db
}

// explorerStub serves the three mempool.space endpoints VerifyPayment hits.
type explorerStub struct {
	fundedConfirmed int64
	fundedMempool   int64
	txHeights       []int64
	tipHeight       int64
}

func (s *explorerStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/blocks/tip/height":
			fmt.Fprintf(w, "%d", s.tipHeight)
		case strings.HasSuffix(r.URL.Path, "/txs"):
			txs := make([]map[string]any, 0, len(s.txHeights))
			for _, h := range s.txHeights {
				txs = append(txs, map[string]any{
					"status": map[string]any{"confirmed": h > 0, "block_height": h},
				})
			}
			_ = json.NewEncoder(w).Encode(txs)
		case strings.HasPrefix(r.URL.Path, "/address/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"chain_stats":   map[string]any{"funded_txo_sum": s.fundedConfirmed},
				"mempool_stats": map[string]any{"funded_txo_sum": s.fundedMempool},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newVerifyFixture(t *testing.T, explorerURL string, requiredConfirmations int64, now time.Time) (*Adapter, *gorm.DB, domain.BitcoinPayment) {
	t.Helper()
	db := newTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	adapter := &Adapter{
		cfg: Config{
			XPub:                  "xpub-test",
			Network:               "bitcoin",
			PaymentWindowMinutes:  60,
			RequiredConfirmations: requiredConfirmations,
			ExplorerBaseURL:       explorerURL,
		},
		propertyID: node.Generate(),
		db:         db,
		genID:      node,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		now:        func() time.Time { return now },
	}

	payment := domain.BitcoinPayment{
		ID:               node.Generate(),
		PropertyID:       adapter.propertyID,
		BTCAddress:       "bc1qtestaddress",
		Status:           domain.BitcoinPaymentPending,
		USDAmount:        decimal.NewFromInt(100),
		BTCUSDRate:       decimal.NewFromInt(50000),
		ExpectedSatoshis: 200_000,
		ExpiresAt:        now.Add(time.Hour),
	}
	require.NoError(t, db.Create(&payment).Error)
	return adapter, db, payment
}

func TestVerifyPayment_ConfirmationDepth(t *testing.T) {
	now := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	stub := &explorerStub{
		fundedConfirmed: 200_000,
		txHeights:       []int64{800_000},
		tipHeight:       800_000,
	}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	adapter, db, payment := newVerifyFixture(t, srv.URL, 2, now)

	// Funding tx sits at the tip: one confirmation, not the required two.
	status, err := adapter.VerifyPayment(context.Background(), payment.BTCAddress)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, status)

	var reloaded domain.BitcoinPayment
	require.NoError(t, db.First(&reloaded, "id = ?", payment.ID).Error)
	assert.Equal(t, domain.BitcoinPaymentMempool, reloaded.Status)
	assert.EqualValues(t, 1, reloaded.Confirmations)

	// One more block on top reaches the required depth.
	stub.tipHeight = 800_001
	status, err = adapter.VerifyPayment(context.Background(), payment.BTCAddress)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status)

	require.NoError(t, db.First(&reloaded, "id = ?", payment.ID).Error)
	assert.Equal(t, domain.BitcoinPaymentConfirmed, reloaded.Status)
	assert.EqualValues(t, 2, reloaded.Confirmations)
	require.NotNil(t, reloaded.ConfirmedAt)
}

func TestVerifyPayment_MempoolDepositHasNoDepth(t *testing.T) {
	now := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	stub := &explorerStub{
		fundedMempool: 200_000,
		tipHeight:     800_000,
	}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	adapter, db, payment := newVerifyFixture(t, srv.URL, 1, now)

	status, err := adapter.VerifyPayment(context.Background(), payment.BTCAddress)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, status)

	var reloaded domain.BitcoinPayment
	require.NoError(t, db.First(&reloaded, "id = ?", payment.ID).Error)
	assert.Equal(t, domain.BitcoinPaymentMempool, reloaded.Status)
	assert.EqualValues(t, 0, reloaded.Confirmations)
	assert.EqualValues(t, 200_000, reloaded.ReceivedSatoshis)
}

func TestVerifyPayment_ExpiredWindow(t *testing.T) {
	now := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer((&explorerStub{tipHeight: 800_000}).handler())
	t.Cleanup(srv.Close)

	adapter, db, payment := newVerifyFixture(t, srv.URL, 1, now)
	adapter.now = func() time.Time { return now.Add(2 * time.Hour) }

	status, err := adapter.VerifyPayment(context.Background(), payment.BTCAddress)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, status)

	var reloaded domain.BitcoinPayment
	require.NoError(t, db.First(&reloaded, "id = ?", payment.ID).Error)
	assert.Equal(t, domain.BitcoinPaymentExpired, reloaded.Status)
}

func TestVerifyPayment_ExplorerOutageReturnsError(t *testing.T) {
	now := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer((&explorerStub{}).handler())
	adapter, db, payment := newVerifyFixture(t, srv.URL, 1, now)
	srv.Close()

	// An unreachable explorer says nothing about the payment.
	_, err := adapter.VerifyPayment(context.Background(), payment.BTCAddress)
	require.Error(t, err)

	var reloaded domain.BitcoinPayment
	require.NoError(t, db.First(&reloaded, "id = ?", payment.ID).Error)
	assert.Equal(t, domain.BitcoinPaymentPending, reloaded.Status)
}
