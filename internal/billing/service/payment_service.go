package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/rentfold/rentfold/internal/clock"
	"github.com/rentfold/rentfold/internal/gateway"
	gatewaydomain "github.com/rentfold/rentfold/internal/gateway/domain"
	"github.com/rentfold/rentfold/internal/notify"
	tenancydomain "github.com/rentfold/rentfold/internal/tenancy/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PaymentParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Resolver *gateway.Resolver
	Notifier notify.Notifier
	Observer domain.PrepaymentObserver `optional:"true"`
}

type paymentService struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	resolver *gateway.Resolver
	notifier notify.Notifier
	observer domain.PrepaymentObserver
}

func NewPaymentService(p PaymentParams) domain.PaymentService {
	return &paymentService{
		db:       p.DB,
		log:      p.Log.Named("billing.payment"),
		genID:    p.GenID,
		clock:    p.Clock,
		resolver: p.Resolver,
		notifier: p.Notifier,
		observer: p.Observer,
	}
}

// InitiateOnlinePayment applies prepayment credits first, then charges the
// gateway for the remainder. The credit application commits before the
// gateway call so no row lock is held across the network; a declined or
// unreachable gateway is compensated by reversing the consumed credit into a
// fresh credit row.
func (s *paymentService) InitiateOnlinePayment(ctx context.Context, in domain.InitiatePaymentInput) (*domain.PaymentIntent, error) {
	var (
		invoice       domain.Invoice
		creditApplied = decimal.Zero
		settled       *domain.Payment
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockInvoice(tx, in.InvoiceID)
		if err != nil {
			return err
		}
		if locked.Status == domain.InvoiceStatusCancelled || locked.Status == domain.InvoiceStatusPaid {
			return domain.ErrNothingDue
		}
		if locked.BalanceDue().IsZero() {
			return domain.ErrNothingDue
		}
		invoice = *locked

		if in.ApplyCredits {
			consumed, err := s.consumeCreditsFIFO(tx, locked.TenantID, locked.BalanceDue())
			if err != nil {
				return err
			}
			creditApplied = consumed
			if consumed.IsPositive() {
				if err := s.applyToInvoice(tx, locked, consumed); err != nil {
					return err
				}
				invoice = *locked
			}
		}

		if invoice.BalanceDue().IsZero() {
			now := s.clock.Now()
			payment := domain.Payment{
				ID:            s.genID.Generate(),
				TenantID:      invoice.TenantID,
				InvoiceID:     invoice.ID,
				Amount:        creditApplied,
				Method:        domain.PaymentMethodCredit,
				Status:        domain.PaymentStatusCompleted,
				CreditApplied: creditApplied,
				RewardApplied: decimal.Zero,
				PaidAt:        &now,
			}
			if err := tx.Create(&payment).Error; err != nil {
				return err
			}
			settled = &payment
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if settled != nil {
		return &domain.PaymentIntent{
			Payment:       settled,
			Settled:       true,
			CreditApplied: creditApplied,
			AmountDue:     decimal.Zero,
		}, nil
	}

	adapter, _, err := s.adapterForInvoice(ctx, &invoice, in.Provider)
	if err != nil {
		s.reverseCredit(ctx, &invoice, creditApplied, "credit reversal: no gateway available")
		return nil, err
	}

	amountDue := invoice.BalanceDue()
	result, err := adapter.CreatePayment(ctx, gatewaydomain.CreatePaymentRequest{
		Amount:      amountDue,
		Currency:    "USD",
		Description: "Invoice " + invoice.InvoiceNumber,
		Metadata:    map[string]string{"invoice_number": invoice.InvoiceNumber},
	})
	if err != nil || !result.Success {
		message := "gateway error"
		if result != nil && result.ErrorMessage != "" {
			message = result.ErrorMessage
		} else if err != nil {
			message = err.Error()
		}
		s.reverseCredit(ctx, &invoice, creditApplied, "credit reversal: gateway failure")
		return nil, fmt.Errorf("%w: %s", domain.ErrGatewayDeclined, message)
	}

	var payment domain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment = domain.Payment{
			ID:                   s.genID.Generate(),
			TenantID:             invoice.TenantID,
			InvoiceID:            invoice.ID,
			Amount:               amountDue.Add(creditApplied),
			Method:               domain.PaymentMethodOnline,
			Status:               domain.PaymentStatusPending,
			GatewayProvider:      adapter.Provider(),
			GatewayTransactionID: result.TransactionID,
			CreditApplied:        creditApplied,
			RewardApplied:        decimal.Zero,
		}
		return tx.Create(&payment).Error
	})
	if err != nil {
		return nil, err
	}

	clientConfig := adapter.ClientConfig()
	if clientConfig == nil {
		clientConfig = map[string]any{}
	}
	for k, v := range result.RawResponse {
		clientConfig[k] = v
	}
	return &domain.PaymentIntent{
		Payment:       &payment,
		Settled:       false,
		CreditApplied: creditApplied,
		AmountDue:     amountDue,
		ClientConfig:  clientConfig,
	}, nil
}

// RecordManualPayment books an offline payment under the invoice row lock.
// Overpayment converts to a PrepaymentCredit in the same transaction, so
// amount_paid never exceeds total_amount at commit.
func (s *paymentService) RecordManualPayment(ctx context.Context, in domain.ManualPaymentInput) (*domain.Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	var (
		payment domain.Payment
		booked  domain.Invoice
		excess  decimal.Decimal
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := lockInvoice(tx, in.InvoiceID)
		if err != nil {
			return err
		}
		if invoice.Status == domain.InvoiceStatusCancelled {
			return domain.ErrInvoiceNotMutable
		}

		paidAt := in.PaidAt
		if paidAt.IsZero() {
			paidAt = s.clock.Now()
		}
		payment = domain.Payment{
			ID:            s.genID.Generate(),
			TenantID:      invoice.TenantID,
			InvoiceID:     invoice.ID,
			Amount:        in.Amount,
			Method:        in.Method,
			Status:        domain.PaymentStatusCompleted,
			CreditApplied: decimal.Zero,
			RewardApplied: decimal.Zero,
			PaidAt:        &paidAt,
		}
		if in.Reference != "" {
			payment.GatewayTransactionID = in.Reference
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		excess, err = s.applyToInvoiceWithOverflow(tx, invoice, in.Amount, payment.ID)
		if err != nil {
			return err
		}
		booked = *invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyPrepayment(ctx, &booked, excess)
	s.dispatch(ctx, "payment_completed", map[string]any{
		"payment_id": payment.ID.String(),
		"invoice_id": payment.InvoiceID.String(),
		"amount":     payment.Amount.StringFixed(2),
		"method":     string(payment.Method),
	})
	return &payment, nil
}

// ConfirmGatewayPayment resolves a pending payment against the gateway. The
// verify call happens before any row lock; the lock then re-checks pending,
// which makes webhook retries a success no-op.
func (s *paymentService) ConfirmGatewayPayment(ctx context.Context, paymentID snowflake.ID) (*domain.ConfirmResult, error) {
	var payment domain.Payment
	err := s.db.WithContext(ctx).First(&payment, "id = ?", paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.Status != domain.PaymentStatusPending {
		return &domain.ConfirmResult{Payment: &payment, Message: "already processed"}, nil
	}

	var invoice domain.Invoice
	if err := s.db.WithContext(ctx).First(&invoice, "id = ?", payment.InvoiceID).Error; err != nil {
		return nil, err
	}
	adapter, _, err := s.adapterForInvoice(ctx, &invoice, payment.GatewayProvider)
	if err != nil {
		return nil, err
	}
	status, err := adapter.VerifyPayment(ctx, payment.GatewayTransactionID)
	if err != nil {
		return nil, err
	}

	result := &domain.ConfirmResult{}
	var (
		confirmed domain.Invoice
		excess    decimal.Decimal
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockPayment(tx, paymentID)
		if err != nil {
			return err
		}
		if locked.Status != domain.PaymentStatusPending {
			result.Payment = locked
			result.Message = "already processed"
			return nil
		}
		lockedInvoice, err := lockInvoice(tx, locked.InvoiceID)
		if err != nil {
			return err
		}

		switch status {
		case gatewaydomain.StatusCompleted:
			now := s.clock.Now()
			if err := tx.Model(&domain.Payment{}).Where("id = ?", locked.ID).Updates(map[string]any{
				"status":  domain.PaymentStatusCompleted,
				"paid_at": now,
			}).Error; err != nil {
				return err
			}
			// The credit share already hit amount_paid at initiation.
			gatewayAmount := locked.Amount.Sub(locked.CreditApplied)
			excess, err = s.applyToInvoiceWithOverflow(tx, lockedInvoice, gatewayAmount, locked.ID)
			if err != nil {
				return err
			}
			confirmed = *lockedInvoice
			locked.Status = domain.PaymentStatusCompleted
			locked.PaidAt = &now
			result.Payment = locked
			result.Message = "payment completed"
		case gatewaydomain.StatusFailed, gatewaydomain.StatusCancelled:
			if err := tx.Model(&domain.Payment{}).Where("id = ?", locked.ID).
				Update("status", domain.PaymentStatusFailed).Error; err != nil {
				return err
			}
			if locked.CreditApplied.IsPositive() {
				if err := s.reverseCreditTx(tx, lockedInvoice, locked.CreditApplied, "credit reversal: gateway payment failed"); err != nil {
					return err
				}
			}
			locked.Status = domain.PaymentStatusFailed
			result.Payment = locked
			result.Message = "payment failed"
		default:
			result.Payment = locked
			result.Message = "processing"
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch result.Payment.Status {
	case domain.PaymentStatusCompleted:
		s.notifyPrepayment(ctx, &confirmed, excess)
		s.dispatch(ctx, "payment_completed", map[string]any{
			"payment_id": result.Payment.ID.String(),
			"invoice_id": result.Payment.InvoiceID.String(),
			"amount":     result.Payment.Amount.StringFixed(2),
		})
	case domain.PaymentStatusFailed:
		s.dispatch(ctx, "payment_failed", map[string]any{
			"payment_id": result.Payment.ID.String(),
			"invoice_id": result.Payment.InvoiceID.String(),
		})
	}
	return result, nil
}

// AutoApplyPrepaymentCredits drains open credits into unpaid invoices, oldest
// invoice first. One invoice's failure never aborts the sweep.
func (s *paymentService) AutoApplyPrepaymentCredits(ctx context.Context) (int, error) {
	var invoices []domain.Invoice
	err := s.db.WithContext(ctx).
		Where("status IN ?", []domain.InvoiceStatus{
			domain.InvoiceStatusIssued, domain.InvoiceStatusPartial, domain.InvoiceStatusOverdue,
		}).
		Order("due_date ASC, id ASC").
		Find(&invoices).Error
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, candidate := range invoices {
		invoiceID := candidate.ID
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			invoice, err := lockInvoice(tx, invoiceID)
			if err != nil {
				return err
			}
			if invoice.BalanceDue().IsZero() || !invoiceMutable(invoice.Status) {
				return nil
			}
			consumed, err := s.consumeCreditsFIFO(tx, invoice.TenantID, invoice.BalanceDue())
			if err != nil {
				return err
			}
			if consumed.IsZero() {
				return nil
			}
			now := s.clock.Now()
			payment := domain.Payment{
				ID:            s.genID.Generate(),
				TenantID:      invoice.TenantID,
				InvoiceID:     invoice.ID,
				Amount:        consumed,
				Method:        domain.PaymentMethodCredit,
				Status:        domain.PaymentStatusCompleted,
				CreditApplied: consumed,
				RewardApplied: decimal.Zero,
				PaidAt:        &now,
			}
			if err := tx.Create(&payment).Error; err != nil {
				return err
			}
			if err := s.applyToInvoice(tx, invoice, consumed); err != nil {
				return err
			}
			applied++
			return nil
		})
		if err != nil {
			s.log.Error("auto credit application failed",
				zap.String("invoice_id", invoiceID.String()), zap.Error(err))
		}
	}
	return applied, nil
}

// consumeCreditsFIFO draws down credits oldest first, locking each row
// before reading remaining_amount. Lock order is Invoice before Credit;
// callers hold the invoice lock already.
func (s *paymentService) consumeCreditsFIFO(tx *gorm.DB, tenantID snowflake.ID, need decimal.Decimal) (decimal.Decimal, error) {
	if !need.IsPositive() {
		return decimal.Zero, nil
	}
	var candidates []domain.PrepaymentCredit
	err := tx.Where("tenant_id = ? AND remaining_amount > 0", tenantID).
		Order("created_at ASC, id ASC").
		Find(&candidates).Error
	if err != nil {
		return decimal.Zero, err
	}

	consumed := decimal.Zero
	for _, candidate := range candidates {
		if !need.IsPositive() {
			break
		}
		var credit domain.PrepaymentCredit
		result := tx.Raw(
			`SELECT * FROM prepayment_credits WHERE id = ?`+lockClause(tx),
			candidate.ID,
		).Scan(&credit)
		if result.Error != nil {
			return decimal.Zero, result.Error
		}
		if credit.ID == 0 || !credit.RemainingAmount.IsPositive() {
			continue
		}

		take := decimal.Min(credit.RemainingAmount, need)
		err := tx.Model(&domain.PrepaymentCredit{}).Where("id = ?", credit.ID).
			Update("remaining_amount", credit.RemainingAmount.Sub(take)).Error
		if err != nil {
			return decimal.Zero, err
		}
		consumed = consumed.Add(take)
		need = need.Sub(take)
	}
	return consumed, nil
}

// applyToInvoice adds value to amount_paid and advances status. The caller
// holds the invoice row lock and guarantees amount <= balance due.
func (s *paymentService) applyToInvoice(tx *gorm.DB, invoice *domain.Invoice, amount decimal.Decimal) error {
	newPaid := invoice.AmountPaid.Add(amount)
	status := domain.InvoiceStatusPartial
	if newPaid.GreaterThanOrEqual(invoice.TotalAmount) {
		status = domain.InvoiceStatusPaid
	}
	err := tx.Model(&domain.Invoice{}).Where("id = ?", invoice.ID).Updates(map[string]any{
		"amount_paid": newPaid,
		"status":      status,
	}).Error
	if err != nil {
		return err
	}
	invoice.AmountPaid = newPaid
	invoice.Status = status
	return nil
}

// applyToInvoiceWithOverflow is applyToInvoice plus overpayment handling:
// any excess over total_amount becomes a PrepaymentCredit referencing the
// payment, in the same transaction. Returns the excess so the caller can
// report the prepayment after commit.
func (s *paymentService) applyToInvoiceWithOverflow(tx *gorm.DB, invoice *domain.Invoice, amount decimal.Decimal, sourcePaymentID snowflake.ID) (decimal.Decimal, error) {
	newPaid := invoice.AmountPaid.Add(amount)
	excess := newPaid.Sub(invoice.TotalAmount)
	if excess.IsPositive() {
		credit := domain.PrepaymentCredit{
			ID:              s.genID.Generate(),
			TenantID:        invoice.TenantID,
			Amount:          excess,
			RemainingAmount: excess,
			Reason:          "overpayment on invoice " + invoice.InvoiceNumber,
			SourcePaymentID: &sourcePaymentID,
		}
		if err := tx.Create(&credit).Error; err != nil {
			return decimal.Zero, err
		}
		newPaid = invoice.TotalAmount
	} else {
		excess = decimal.Zero
	}

	status := domain.InvoiceStatusPartial
	if newPaid.GreaterThanOrEqual(invoice.TotalAmount) {
		status = domain.InvoiceStatusPaid
	}
	err := tx.Model(&domain.Invoice{}).Where("id = ?", invoice.ID).Updates(map[string]any{
		"amount_paid": newPaid,
		"status":      status,
	}).Error
	if err != nil {
		return decimal.Zero, err
	}
	invoice.AmountPaid = newPaid
	invoice.Status = status
	return excess, nil
}

// notifyPrepayment hands an overpayment to the prepayment observer. Best
// effort: the payment is already committed, a reward hiccup only logs.
func (s *paymentService) notifyPrepayment(ctx context.Context, invoice *domain.Invoice, excess decimal.Decimal) {
	if s.observer == nil || invoice == nil || invoice.ID == 0 || !excess.IsPositive() {
		return
	}
	var lease tenancydomain.Lease
	if err := s.db.WithContext(ctx).First(&lease, "id = ?", invoice.LeaseID).Error; err != nil {
		s.log.Warn("prepayment observer lease lookup failed",
			zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
		return
	}
	if err := s.observer.PrepaymentRecorded(ctx, invoice.TenantID, lease.PropertyID, excess); err != nil {
		s.log.Warn("prepayment observer failed",
			zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
	}
}

// reverseCredit compensates a committed credit application after a gateway
// failure. Reversal inserts a new credit row; original rows are never
// mutated back.
func (s *paymentService) reverseCredit(ctx context.Context, invoice *domain.Invoice, amount decimal.Decimal, reason string) {
	if !amount.IsPositive() {
		return
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockInvoice(tx, invoice.ID)
		if err != nil {
			return err
		}
		return s.reverseCreditTx(tx, locked, amount, reason)
	})
	if err != nil {
		s.log.Error("credit reversal failed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("amount", amount.StringFixed(2)),
			zap.Error(err))
	}
}

func (s *paymentService) reverseCreditTx(tx *gorm.DB, invoice *domain.Invoice, amount decimal.Decimal, reason string) error {
	credit := domain.PrepaymentCredit{
		ID:              s.genID.Generate(),
		TenantID:        invoice.TenantID,
		Amount:          amount,
		RemainingAmount: amount,
		Reason:          reason,
	}
	if err := tx.Create(&credit).Error; err != nil {
		return err
	}

	newPaid := invoice.AmountPaid.Sub(amount)
	if newPaid.IsNegative() {
		newPaid = decimal.Zero
	}
	status := invoice.Status
	switch {
	case newPaid.IsZero():
		status = domain.InvoiceStatusIssued
	case newPaid.LessThan(invoice.TotalAmount):
		status = domain.InvoiceStatusPartial
	}
	err := tx.Model(&domain.Invoice{}).Where("id = ?", invoice.ID).Updates(map[string]any{
		"amount_paid": newPaid,
		"status":      status,
	}).Error
	if err != nil {
		return err
	}
	invoice.AmountPaid = newPaid
	invoice.Status = status
	return nil
}

func (s *paymentService) adapterForInvoice(ctx context.Context, invoice *domain.Invoice, provider string) (gatewaydomain.Gateway, *gatewaydomain.GatewayConfig, error) {
	var lease tenancydomain.Lease
	if err := s.db.WithContext(ctx).First(&lease, "id = ?", invoice.LeaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, domain.ErrLeaseNotFound
		}
		return nil, nil, err
	}
	adapter, cfg, err := s.resolver.ForProperty(ctx, lease.PropertyID, provider)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrNoActiveConfig) {
			return nil, nil, domain.ErrNoActiveGateway
		}
		return nil, nil, err
	}
	return adapter, cfg, nil
}

func (s *paymentService) dispatch(ctx context.Context, eventType string, eventContext map[string]any) {
	if err := s.notifier.DispatchEvent(ctx, eventType, eventContext); err != nil {
		s.log.Warn("notification dispatch failed",
			zap.String("event_type", eventType), zap.Error(err))
	}
}

func lockPayment(tx *gorm.DB, paymentID snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	result := tx.Raw(
		`SELECT * FROM payments WHERE id = ?`+lockClause(tx),
		paymentID,
	).Scan(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if payment.ID == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	return &payment, nil
}
