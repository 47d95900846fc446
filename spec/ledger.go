package spec

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerUser is an account on the payment ledger
type LedgerUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// LedgerTransaction is a read-only view of a payment ledger entry.
// CompletedAt is zero for charges that were never paid.
type LedgerTransaction struct {
	ID          string          `json:"id"`
	Type        TransactionType `json:"type"`
	Actor       LedgerUser      `json:"actor"`
	Target      LedgerUser      `json:"target"`
	Amount      decimal.Decimal `json:"amount"`
	Note        string          `json:"note"`
	CreatedAt   time.Time       `json:"dateCreated"`
	UpdatedAt   time.Time       `json:"dateUpdated"`
	CompletedAt time.Time       `json:"dateCompleted"`
}

// Payer returns the side of the transaction that sent the money
func (t *LedgerTransaction) Payer() LedgerUser {
	if t.Type == TransactionPay {
		return t.Actor
	}
	return t.Target
}

// Ledger defines the peer-payment API used for billing and reconciliation
type Ledger interface {
	Profile(ctx context.Context) (*LedgerUser, error)
	RecentTransactions(ctx context.Context, profileID string) ([]LedgerTransaction, error)
	RequestMoney(ctx context.Context, amount decimal.Decimal, note, payeeID string) error
	UserByUsername(ctx context.Context, username string) (*LedgerUser, error)
}
