package subscription

import (
	"fmt"
	"time"

	"github.com/zllovesuki/payablesubs/customer"
	"github.com/zllovesuki/payablesubs/spec"

	"github.com/shopspring/decimal"
)

// Subscription is a Customer's subscription to a PlanCost
type Subscription struct {
	ID               uint              `json:"id" gorm:"primaryKey"`
	CustomerID       string            `json:"customerId" gorm:"index;not null"`
	Customer         customer.Customer `json:"customer"`
	PlanCostID       uint              `json:"planCostId" gorm:"index;not null"`
	PlanCost         PlanCost          `json:"planCost"`
	DateBillingStart time.Time         `json:"dateBillingStart" gorm:"not null"`
	DateBillingNext  *time.Time        `json:"dateBillingNext" gorm:"index"` // Due date of the next Bill. nil for costs that do not recur
	DateBillingLast  *time.Time        `json:"dateBillingLast"`              // Completion time of the last matched Payment
	DateBillingEnd   *time.Time        `json:"dateBillingEnd"`               // Set when a due date goes unpaid; the subscription expires once it passes
	Active           bool              `json:"active" gorm:"not null"`
	Cancelled        bool              `json:"cancelled" gorm:"not null"` // Once set, Active stays false
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// State derives the lifecycle state of the subscription
func (s *Subscription) State() State {
	switch {
	case s.Cancelled:
		return StateExpired
	case !s.Active:
		return StateInactive
	case s.DateBillingEnd != nil:
		return StateGrace
	default:
		return StateCurrent
	}
}

// IsDue reports whether the subscription should be billed at now
func (s *Subscription) IsDue(now time.Time) bool {
	return s.Active && !s.Cancelled && s.DateBillingNext != nil && !s.DateBillingNext.After(now)
}

func (s *Subscription) String() string {
	next := "never"
	if s.DateBillingNext != nil {
		next = s.DateBillingNext.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("subscription=%d customer=%s plan_cost=%d state=%s next=%s", s.ID, s.Customer.Email, s.PlanCostID, s.State(), next)
}

// Bill records a money request sent for one due date. Bills are never updated or deleted
type Bill struct {
	ID              string          `json:"id" gorm:"primaryKey"` // UUID
	CustomerID      string          `json:"customerId" gorm:"index:idx_bill_due;not null"`
	PlanCostID      uint            `json:"planCostId" gorm:"index:idx_bill_due;not null"`
	DateTransaction time.Time       `json:"dateTransaction" gorm:"index:idx_bill_due;not null"` // The subscription's DateBillingNext when billed
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(19,4)"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func (b *Bill) String() string {
	return fmt.Sprintf("bill=%s customer=%s plan_cost=%d due=%s", b.ID, b.CustomerID, b.PlanCostID, b.DateTransaction.UTC().Format(time.RFC3339))
}

// Payment is a ledger transaction matched against a subscription
type Payment struct {
	ID                uint            `json:"id" gorm:"primaryKey"`
	ExternalPaymentID string          `json:"externalPaymentId" gorm:"uniqueIndex;not null"` // The ledger's transaction ID
	CustomerID        string          `json:"customerId" gorm:"index;not null"`
	PlanCostID        uint            `json:"planCostId" gorm:"index;not null"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(19,4);not null"`
	Method            PaymentMethod   `json:"method" gorm:"not null"`
	DateTransaction   time.Time       `json:"dateTransaction" gorm:"index;not null"` // When the ledger transaction completed
	Data              spec.Parameters `json:"data"`                                  // Ledger details kept for auditing
	CreatedAt         time.Time       `json:"createdAt"`
}

func (p *Payment) String() string {
	return fmt.Sprintf("customer=%s %s $%s payment=%s on %s for plan_cost=%d", p.CustomerID, p.Method, p.Amount.StringFixed(2), p.ExternalPaymentID, p.DateTransaction.UTC().Format(time.RFC3339), p.PlanCostID)
}
