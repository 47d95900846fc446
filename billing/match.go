package billing

import (
	"context"
	"time"

	"github.com/zllovesuki/payablesubs/spec"
	"github.com/zllovesuki/payablesubs/subscription"

	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IsCandidate reports whether an inbound transaction could pay a bill of amount owed by payerUsername,
// completed after searchBegin
func IsCandidate(t *spec.LedgerTransaction, payerUsername string, amount decimal.Decimal, searchBegin time.Time) bool {
	switch {
	case t.Type == spec.TransactionPay && t.Actor.Username == payerUsername:
	case t.Type == spec.TransactionCharge && t.Target.Username == payerUsername:
	default:
		return false
	}
	if t.CompletedAt.IsZero() || !t.CompletedAt.After(searchBegin) {
		return false
	}
	return t.Amount.Equal(amount)
}

// matchPayment finds the first cached transaction paying for the subscription that was not recorded yet
func (r *Reconciliation) matchPayment(ctx context.Context, logger *zap.Logger, sub *subscription.Subscription) (*spec.LedgerTransaction, error) {
	acct, err := r.Accounts.GetPayerAccount(ctx, sub.CustomerID)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot look up payer account")
	}
	if acct == nil {
		return nil, extErrors.Wrapf(ErrNoPayerAccount, "Cannot match payments of customer %s", sub.CustomerID)
	}

	txns, err := r.cache.transactions(ctx)
	if err != nil {
		return nil, err
	}

	last, err := r.Subscriptions.LatestPayment(ctx, sub.CustomerID)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot look up latest payment")
	}
	searchBegin := sub.DateBillingStart
	if last != nil {
		searchBegin = last.DateTransaction
	}

	candidates := make([]spec.LedgerTransaction, 0, 1)
	for i := range txns {
		if IsCandidate(&txns[i], acct.ExternalUsername, sub.PlanCost.Cost, searchBegin) {
			candidates = append(candidates, txns[i])
		}
	}
	logger.Debug("Found candidate transactions",
		zap.Int("Count", len(candidates)),
		zap.String("PayerUsername", acct.ExternalUsername),
		zap.Time("SearchBegin", searchBegin),
	)

	for i := range candidates {
		t := &candidates[i]
		recorded, err := r.Subscriptions.GetPaymentByExternalID(ctx, t.ID)
		if err != nil {
			return nil, extErrors.Wrap(err, "Cannot check for recorded payment")
		}
		if recorded != nil {
			logger.Info("Transaction already recorded as a payment",
				zap.String("TransactionID", t.ID),
				zap.Uint("PaymentID", recorded.ID),
			)
			continue
		}
		return t, nil
	}
	return nil, nil
}

func paymentData(t *spec.LedgerTransaction) spec.Parameters {
	payer := t.Payer()
	data := spec.Parameters{
		"payerId":       payer.ID,
		"payerUsername": payer.Username,
		"amount":        t.Amount.String(),
		"paymentType":   string(t.Type),
		"dateCompleted": t.CompletedAt.UTC().Format(time.RFC3339),
	}
	if !t.CreatedAt.IsZero() {
		data["dateCreated"] = t.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !t.UpdatedAt.IsZero() {
		data["dateUpdated"] = t.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if len(t.Note) > 0 {
		data["note"] = t.Note
	}
	return data
}
