package billing

import (
	"context"

	"github.com/zllovesuki/payablesubs/spec"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// InboundTransactions keeps payments made to username and charges username initiated.
// Money we sent, and charges others sent us, are never candidates.
func InboundTransactions(txns []spec.LedgerTransaction, username string) []spec.LedgerTransaction {
	inbound := make([]spec.LedgerTransaction, 0, len(txns))
	for _, t := range txns {
		switch {
		case t.Type == spec.TransactionPay && t.Target.Username == username:
		case t.Type == spec.TransactionCharge && t.Actor.Username == username:
		default:
			continue
		}
		inbound = append(inbound, t)
	}
	return inbound
}

// ledgerCache fetches our recent inbound transactions once per reconciliation
type ledgerCache struct {
	ledger spec.Ledger
	logger *zap.Logger

	loaded bool
	txns   []spec.LedgerTransaction
}

func (c *ledgerCache) transactions(ctx context.Context) ([]spec.LedgerTransaction, error) {
	if c.loaded {
		return c.txns, nil
	}
	profile, err := c.ledger.Profile(ctx)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot get ledger profile")
	}
	c.logger.Info("Populating recent transactions",
		zap.String("Username", profile.Username),
	)
	all, err := c.ledger.RecentTransactions(ctx, profile.ID)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot get recent ledger transactions")
	}
	c.txns = InboundTransactions(all, profile.Username)
	c.loaded = true

	c.logger.Debug("Filtered transactions made to us",
		zap.String("Username", profile.Username),
		zap.Int("Inbound", len(c.txns)),
		zap.Int("Total", len(all)),
	)
	return c.txns, nil
}
