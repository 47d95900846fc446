package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ManagerOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Manager is the record store for plans, subscriptions, bills and payments
type Manager struct {
	ManagerOptions
}

func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Plan{}, &PlanCost{}, &Subscription{}, &Bill{}, &Payment{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize subscription.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

func (m *Manager) withDetails(ctx context.Context) *gorm.DB {
	return m.DB.WithContext(ctx).
		Preload("Customer").
		Preload("PlanCost.Plan")
}

// CreatePlan stores a plan along with its costs
func (m *Manager) CreatePlan(ctx context.Context, p *Plan) error {
	result := m.DB.WithContext(ctx).Create(p)
	if result.Error != nil {
		m.Logger.Error("Unable to create new plan in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create plan")
	}
	return nil
}

// GetPlanByName returns the plan with its costs ordered by id, or nil if there is no such plan
func (m *Manager) GetPlanByName(ctx context.Context, name string) (*Plan, error) {
	var plan Plan
	result := m.DB.WithContext(ctx).
		Preload("Costs", func(db *gorm.DB) *gorm.DB {
			return db.Order("plan_costs.id asc")
		}).
		Where("name = ?", name).
		First(&plan)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot get plan by name")
	}

	return &plan, nil
}

// Create stores a new subscription without touching its associations
func (m *Manager) Create(ctx context.Context, sub *Subscription) error {
	result := m.DB.WithContext(ctx).Omit(clause.Associations).Create(sub)
	if result.Error != nil {
		m.Logger.Error("Unable to create new subscription in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create subscription")
	}
	return nil
}

// Get returns the subscription with its Customer and PlanCost.Plan, or nil if not found
func (m *Manager) Get(ctx context.Context, id uint) (*Subscription, error) {
	var sub Subscription
	result := m.withDetails(ctx).
		Where("id = ?", id).
		First(&sub)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot get subscription")
	}

	return &sub, nil
}

// ListDue returns active, non-cancelled subscriptions whose DateBillingNext is at or before now, ordered by id
func (m *Manager) ListDue(ctx context.Context, now time.Time) ([]Subscription, error) {
	results := make([]Subscription, 0, 1)
	result := m.withDetails(ctx).
		Where("active = ?", true).
		Where("cancelled = ?", false).
		Where("date_billing_next IS NOT NULL").
		Where("date_billing_next <= ?", now).
		Order("subscriptions.id asc").
		Find(&results)

	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list due subscriptions")
	}
	return results, nil
}

// Save persists the subscription's own columns
func (m *Manager) Save(ctx context.Context, sub *Subscription) error {
	result := m.DB.WithContext(ctx).Omit(clause.Associations).Save(sub)
	if result.Error != nil {
		m.Logger.Error("Unable to save subscription in database",
			zap.Uint("SubscriptionID", sub.ID),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot save subscription")
	}
	return nil
}

// FindBills returns the bills for a due date, oldest first
func (m *Manager) FindBills(ctx context.Context, customerID string, planCostID uint, due time.Time) ([]Bill, error) {
	bills := make([]Bill, 0, 1)
	result := m.DB.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Where("plan_cost_id = ?", planCostID).
		Where("date_transaction = ?", due).
		Order("created_at asc").
		Find(&bills)

	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot find bills")
	}
	return bills, nil
}

func (m *Manager) CreateBill(ctx context.Context, bill *Bill) error {
	result := m.DB.WithContext(ctx).Create(bill)
	if result.Error != nil {
		m.Logger.Error("Unable to create new bill in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create bill")
	}
	return nil
}

// LatestPayment returns the customer's payment with the latest DateTransaction, or nil if there is none
func (m *Manager) LatestPayment(ctx context.Context, customerID string) (*Payment, error) {
	var payment Payment
	result := m.DB.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("date_transaction desc").
		First(&payment)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot get latest payment")
	}

	return &payment, nil
}

// GetPaymentByExternalID returns the payment recorded for a ledger transaction, or nil
func (m *Manager) GetPaymentByExternalID(ctx context.Context, externalID string) (*Payment, error) {
	var payment Payment
	result := m.DB.WithContext(ctx).
		Where("external_payment_id = ?", externalID).
		First(&payment)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot get payment by external id")
	}

	return &payment, nil
}

// CreatePayment stores a payment. A duplicate ExternalPaymentID is rejected by the unique index
func (m *Manager) CreatePayment(ctx context.Context, payment *Payment) error {
	result := m.DB.WithContext(ctx).Create(payment)
	if result.Error != nil {
		m.Logger.Error("Unable to create new payment in database",
			zap.String("ExternalPaymentID", payment.ExternalPaymentID),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create payment")
	}
	return nil
}

type ReportOption struct {
	Cost            CostClass
	IncludeInactive bool
}

// Report lists subscriptions ordered by cost (highest first) then email
func (m *Manager) Report(ctx context.Context, opt ReportOption) ([]Subscription, error) {
	baseQuery := m.withDetails(ctx).
		Joins("JOIN plan_costs ON plan_costs.id = subscriptions.plan_cost_id").
		Joins("JOIN customers ON customers.id = subscriptions.customer_id").
		Order("plan_costs.cost desc").
		Order("customers.email asc")

	if !opt.IncludeInactive {
		baseQuery = baseQuery.Where("subscriptions.active = ?", true)
	}

	switch opt.Cost {
	case CostPaying, "":
		baseQuery = baseQuery.Where("plan_costs.cost > ?", 0)
	case CostFree:
		baseQuery = baseQuery.Where("plan_costs.cost = ?", 0)
	case CostAll:
	default:
		return nil, fmt.Errorf("Unknown cost class %q", opt.Cost)
	}

	results := make([]Subscription, 0, 1)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list subscriptions for report")
	}
	return results, nil
}
