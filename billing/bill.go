package billing

import (
	"context"

	"github.com/zllovesuki/payablesubs/spec"
	"github.com/zllovesuki/payablesubs/subscription"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// resolveBill returns the bill for the subscription's current due date, requesting money
// from the payer the first time the due date is seen
func (r *Reconciliation) resolveBill(ctx context.Context, logger *zap.Logger, sub *subscription.Subscription) (*subscription.Bill, error) {
	due := sub.DateBillingNext.UTC()
	bills, err := r.Subscriptions.FindBills(ctx, sub.CustomerID, sub.PlanCostID, due)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot look up existing bill")
	}
	if len(bills) > 0 {
		if len(bills) > 1 {
			logger.Error("Found multiple bills for the same due date",
				zap.Int("Count", len(bills)),
				zap.Time("Due", due),
			)
		}
		return &bills[0], nil
	}

	acct, err := r.Accounts.GetPayerAccount(ctx, sub.CustomerID)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot look up payer account")
	}
	if acct == nil {
		return nil, extErrors.Wrapf(ErrNoPayerAccount, "Cannot bill customer %s", sub.CustomerID)
	}

	note, err := GenerateNote(sub)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot generate billing note")
	}

	switch {
	case r.DryRun:
		logger.Info("Dry run. Not sending bill",
			zap.String("Note", note),
		)
	case r.BillingEnabled:
		logger.Debug("Sending money request",
			zap.String("Note", note),
			zap.String("PayerID", acct.ExternalID),
		)
		if err := r.Ledger.RequestMoney(ctx, sub.PlanCost.Cost, note, acct.ExternalID); err != nil {
			return nil, extErrors.Wrap(err, "Cannot request money from payer")
		}
		r.metrics.billsRequested.Inc()
	default:
		logger.Warn("Billing feature disabled. Not sending bill",
			zap.String("Note", note),
		)
	}

	bill := &subscription.Bill{
		ID:              uuid.New().String(),
		CustomerID:      sub.CustomerID,
		PlanCostID:      sub.PlanCostID,
		DateTransaction: due,
		Amount:          sub.PlanCost.Cost,
	}
	if r.DryRun {
		return bill, nil
	}
	if err := r.Subscriptions.CreateBill(ctx, bill); err != nil {
		return nil, extErrors.Wrap(err, "Cannot save bill")
	}
	r.publish(logger, sub, spec.EventBillRequested, spec.Parameters{
		"billId": bill.ID,
		"amount": bill.Amount.StringFixed(2),
		"note":   note,
	})
	return bill, nil
}
