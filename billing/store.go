package billing

import (
	"context"
	"time"

	"github.com/zllovesuki/payablesubs/customer"
	"github.com/zllovesuki/payablesubs/subscription"
)

var _ SubscriptionStore = &subscription.Manager{}
var _ AccountStore = &customer.Manager{}

// SubscriptionStore is the record store for subscriptions, bills and payments.
// Lookups that find nothing return nil without an error.
type SubscriptionStore interface {
	// ListDue returns active, non-cancelled subscriptions with DateBillingNext <= now, ordered by id,
	// with Customer and PlanCost.Plan populated
	ListDue(ctx context.Context, now time.Time) ([]subscription.Subscription, error)
	Save(ctx context.Context, sub *subscription.Subscription) error

	// FindBills returns the bills for (customer, plan cost, due date), oldest first
	FindBills(ctx context.Context, customerID string, planCostID uint, due time.Time) ([]subscription.Bill, error)
	CreateBill(ctx context.Context, bill *subscription.Bill) error

	// LatestPayment returns the customer's payment with the latest DateTransaction
	LatestPayment(ctx context.Context, customerID string) (*subscription.Payment, error)
	GetPaymentByExternalID(ctx context.Context, externalID string) (*subscription.Payment, error)
	// CreatePayment must reject a duplicate ExternalPaymentID
	CreatePayment(ctx context.Context, payment *subscription.Payment) error
}

// AccountStore looks up the payment ledger account of a customer
type AccountStore interface {
	GetPayerAccount(ctx context.Context, customerID string) (*customer.PayerAccount, error)
}
