package bitcoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/bwmarrin/snowflake"
	"github.com/rentfold/rentfold/internal/gateway/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultExplorerBaseURL = "https://mempool.space/api"

type Config struct {
	XPub                  string `json:"xpub"`
	Network               string `json:"network"`
	PaymentWindowMinutes  int    `json:"payment_window_minutes"`
	RequiredConfirmations int64  `json:"required_confirmations"`
	ExplorerBaseURL       string `json:"explorer_base_url"`
}

// Adapter accepts on-chain payments against addresses derived from a single
// xpub. There is no provider to call on create; settlement is observed by
// polling the explorer for the derived address.
type Adapter struct {
	cfg        Config
	propertyID snowflake.ID
	db         *gorm.DB
	genID      *snowflake.Node
	rates      *RateService
	httpClient *http.Client
	now        func() time.Time
}

func NewFactory(db *gorm.DB, genID *snowflake.Node, rates *RateService) domain.Factory {
	return func(ac domain.AdapterConfig) (domain.Gateway, error) {
		var cfg Config
		if err := domain.DecodeCredentials(ac.Credentials, &cfg); err != nil {
			return nil, domain.ErrInvalidConfig
		}
		if cfg.XPub == "" {
			return nil, domain.ErrInvalidConfig
		}
		if cfg.Network == "" {
			cfg.Network = "bitcoin"
		}
		if cfg.PaymentWindowMinutes <= 0 {
			cfg.PaymentWindowMinutes = 60
		}
		if cfg.RequiredConfirmations <= 0 {
			cfg.RequiredConfirmations = 1
		}
		if cfg.ExplorerBaseURL == "" {
			cfg.ExplorerBaseURL = defaultExplorerBaseURL
		}
		timeout := ac.HTTPTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		return &Adapter{
			cfg:        cfg,
			propertyID: ac.PropertyID,
			db:         db,
			genID:      genID,
			rates:      rates,
			httpClient: &http.Client{Timeout: timeout},
			now:        func() time.Time { return time.Now().UTC() },
		}, nil
	}
}

func (a *Adapter) Provider() string { return "bitcoin" }

// CreatePayment derives the next receive address under a row lock on the
// wallet index, then records the expected amount at the current rate. The
// address serves as the transaction id.
func (a *Adapter) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.PaymentResult, error) {
	rate, err := a.rates.BTCUSDRate(ctx)
	if err != nil {
		return &domain.PaymentResult{Success: false, Status: domain.StatusFailed, ErrorMessage: err.Error()}, nil
	}
	expectedSatoshis := usdToSatoshis(req.Amount, rate)

	var address string
	var index uint32
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := `SELECT id, property_id, x_pub, next_address_index
			 FROM bitcoin_wallet_configs
			 WHERE property_id = ?`
		if tx.Dialector.Name() != "sqlite" {
			query += " FOR UPDATE"
		}
		var wallet domain.BitcoinWalletConfig
		result := tx.Raw(query, a.propertyID).Scan(&wallet)
		if result.Error != nil {
			return result.Error
		}
		if wallet.ID == 0 {
			wallet = domain.BitcoinWalletConfig{
				ID:         a.genID.Generate(),
				PropertyID: a.propertyID,
				XPub:       a.cfg.XPub,
			}
			if err := tx.Create(&wallet).Error; err != nil {
				return err
			}
		}

		index = wallet.NextAddressIndex
		address, err = deriveAddress(wallet.XPub, index, a.cfg.Network)
		if err != nil {
			return err
		}
		return tx.Exec(
			`UPDATE bitcoin_wallet_configs
			 SET next_address_index = ?, updated_at = ?
			 WHERE id = ?`,
			index+1, a.now(), wallet.ID,
		).Error
	})
	if err != nil {
		return &domain.PaymentResult{Success: false, Status: domain.StatusFailed, ErrorMessage: err.Error()}, nil
	}

	expiresAt := a.now().Add(time.Duration(a.cfg.PaymentWindowMinutes) * time.Minute)
	payment := domain.BitcoinPayment{
		ID:               a.genID.Generate(),
		PropertyID:       a.propertyID,
		BTCAddress:       address,
		DerivationIndex:  index,
		Status:           domain.BitcoinPaymentPending,
		USDAmount:        req.Amount,
		BTCUSDRate:       rate,
		ExpectedSatoshis: expectedSatoshis,
		ExpiresAt:        expiresAt,
	}
	if err := a.db.WithContext(ctx).Create(&payment).Error; err != nil {
		return &domain.PaymentResult{Success: false, Status: domain.StatusFailed, ErrorMessage: err.Error()}, nil
	}

	return &domain.PaymentResult{
		Success:       true,
		TransactionID: address,
		Status:        domain.StatusPending,
		RawResponse: map[string]any{
			"btc_address":       address,
			"expected_satoshis": expectedSatoshis,
			"btc_amount":        satoshisToBTC(expectedSatoshis).String(),
			"btc_usd_rate":      rate.String(),
			"expires_at":        expiresAt.Format(time.RFC3339),
			"payment_id":        payment.ID.String(),
		},
	}, nil
}

type addressStats struct {
	ChainStats struct {
		FundedTxoSum int64 `json:"funded_txo_sum"`
	} `json:"chain_stats"`
	MempoolStats struct {
		FundedTxoSum int64 `json:"funded_txo_sum"`
	} `json:"mempool_stats"`
}

// VerifyPayment polls the explorer for the address and advances the payment
// record. Expiry is checked before the network call so lapsed windows
// resolve without one.
func (a *Adapter) VerifyPayment(ctx context.Context, transactionID string) (domain.Status, error) {
	var payment domain.BitcoinPayment
	err := a.db.WithContext(ctx).Where("btc_address = ?", transactionID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.StatusFailed, nil
		}
		return "", err
	}

	now := a.now()
	if now.After(payment.ExpiresAt) && payment.Status != domain.BitcoinPaymentConfirmed {
		if err := a.db.WithContext(ctx).Model(&payment).Update("status", domain.BitcoinPaymentExpired).Error; err != nil {
			return "", err
		}
		return domain.StatusCancelled, nil
	}

	var stats addressStats
	if err := a.explorerGet(ctx, "/address/"+url.PathEscape(transactionID), &stats); err != nil {
		return "", err
	}

	fundedConfirmed := stats.ChainStats.FundedTxoSum
	totalReceived := fundedConfirmed + stats.MempoolStats.FundedTxoSum

	var confirmations int64
	if fundedConfirmed >= payment.ExpectedSatoshis {
		confirmations, err = a.confirmations(ctx, transactionID)
		if err != nil {
			return "", err
		}
	}

	switch {
	case fundedConfirmed >= payment.ExpectedSatoshis && confirmations >= a.cfg.RequiredConfirmations:
		err = a.db.WithContext(ctx).Model(&payment).Updates(map[string]any{
			"received_satoshis": totalReceived,
			"status":            domain.BitcoinPaymentConfirmed,
			"confirmations":     confirmations,
			"confirmed_at":      now,
		}).Error
		if err != nil {
			return "", err
		}
		return domain.StatusCompleted, nil
	case totalReceived > 0:
		err = a.db.WithContext(ctx).Model(&payment).Updates(map[string]any{
			"received_satoshis": totalReceived,
			"status":            domain.BitcoinPaymentMempool,
			"confirmations":     confirmations,
		}).Error
		if err != nil {
			return "", err
		}
		return domain.StatusPending, nil
	default:
		return domain.StatusPending, nil
	}
}

// confirmations reports the block depth of the newest confirmed transaction
// funding the address: the payment is only as settled as its shallowest
// deposit. Unconfirmed deposits count as zero.
func (a *Adapter) confirmations(ctx context.Context, address string) (int64, error) {
	var txs []struct {
		Status struct {
			Confirmed   bool  `json:"confirmed"`
			BlockHeight int64 `json:"block_height"`
		} `json:"status"`
	}
	if err := a.explorerGet(ctx, "/address/"+url.PathEscape(address)+"/txs", &txs); err != nil {
		return 0, err
	}
	var newest int64
	for _, tx := range txs {
		if tx.Status.Confirmed && tx.Status.BlockHeight > newest {
			newest = tx.Status.BlockHeight
		}
	}
	if newest == 0 {
		return 0, nil
	}
	var tip int64
	if err := a.explorerGet(ctx, "/blocks/tip/height", &tip); err != nil {
		return 0, err
	}
	if tip < newest {
		return 0, nil
	}
	return tip - newest + 1, nil
}

// RefundPayment always fails. Outbound BTC transfers are a manual operation.
func (a *Adapter) RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*domain.RefundResult, error) {
	_ = ctx
	_ = transactionID
	_ = amount
	return &domain.RefundResult{
		Success:      false,
		ErrorMessage: "bitcoin refunds require manual processing",
	}, nil
}

func (a *Adapter) ClientConfig() map[string]any {
	ctx, cancel := context.WithTimeout(context.Background(), a.httpClient.Timeout)
	defer cancel()
	rate, err := a.rates.BTCUSDRate(ctx)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return map[string]any{
		"btc_usd_rate":           rate.String(),
		"payment_window_minutes": a.cfg.PaymentWindowMinutes,
		"required_confirmations": a.cfg.RequiredConfirmations,
		"network":                a.cfg.Network,
	}
}

// VerifyWebhook is unsupported; settlement is detected by the polling job.
func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*domain.WebhookEvent, error) {
	_ = ctx
	_ = payload
	_ = headers
	return nil, domain.ErrEventIgnored
}

func (a *Adapter) TestConnection(ctx context.Context) error {
	var errs []string
	if _, err := deriveAddress(a.cfg.XPub, 0, a.cfg.Network); err != nil {
		errs = append(errs, "xpub derivation failed: "+err.Error())
	}
	var fees map[string]any
	if err := a.explorerGet(ctx, "/v1/fees/recommended", &fees); err != nil {
		errs = append(errs, "explorer unreachable: "+err.Error())
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (a *Adapter) explorerGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.ExplorerBaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("explorer: http %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// deriveAddress derives the bech32 receive address at path 0/{index}.
func deriveAddress(xpub string, index uint32, network string) (string, error) {
	params := &chaincfg.MainNetParams
	if network != "bitcoin" && network != "mainnet" {
		params = &chaincfg.TestNet3Params
	}
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return "", fmt.Errorf("invalid xpub: %w", err)
	}
	external, err := key.Derive(0)
	if err != nil {
		return "", err
	}
	child, err := external.Derive(index)
	if err != nil {
		return "", err
	}
	pubKey, err := child.ECPubKey()
	if err != nil {
		return "", err
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubKey.SerializeCompressed()), params)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}
