package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/payablesubs/customer"
	"github.com/zllovesuki/payablesubs/spec"
	"github.com/zllovesuki/payablesubs/subscription"

	"github.com/go-playground/validator/v10"
	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type EnrollerOptions struct {
	Customers     *customer.Manager
	Subscriptions *subscription.Manager
	Ledger        spec.Ledger
	Directory     *DirectoryNotifier
	Logger        *zap.Logger
}

// Enroller signs customers up for plans
type Enroller struct {
	EnrollerOptions
	validate *validator.Validate
}

func NewEnroller(option EnrollerOptions) (*Enroller, error) {
	if option.Customers == nil {
		return nil, fmt.Errorf("nil Customers is invalid")
	}
	if option.Subscriptions == nil {
		return nil, fmt.Errorf("nil Subscriptions is invalid")
	}
	if option.Ledger == nil {
		return nil, fmt.Errorf("nil Ledger is invalid")
	}
	if option.Directory == nil {
		return nil, fmt.Errorf("nil Directory is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Enroller{
		EnrollerOptions: option,
		validate:        validator.New(),
	}, nil
}

// EnrollRequest describes a new subscription. Cost selects among the plan's costs; the first cost is
// used when it is omitted. PayerUsername is required for paid costs.
type EnrollRequest struct {
	Email         string `validate:"required,email"`
	FirstName     string `validate:"required"`
	LastName      string `validate:"required"`
	Plan          string `validate:"required"`
	Cost          *decimal.Decimal
	Start         time.Time `validate:"required"`
	PayerUsername string
}

func pickCost(plan *subscription.Plan, cost *decimal.Decimal) (*subscription.PlanCost, error) {
	if len(plan.Costs) == 0 {
		return nil, fmt.Errorf("plan %s has no costs", plan.Name)
	}
	if cost == nil {
		return &plan.Costs[0], nil
	}
	for i := range plan.Costs {
		if plan.Costs[i].Cost.Equal(*cost) {
			return &plan.Costs[i], nil
		}
	}
	return nil, fmt.Errorf("plan %s has no cost of %s", plan.Name, cost.StringFixed(2))
}

// Enroll creates the customer if needed, the subscription and the customer's PayerAccount,
// then adds the customer to the directory group
func (e *Enroller) Enroll(ctx context.Context, req EnrollRequest) (*subscription.Subscription, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, extErrors.Wrap(err, "Invalid enrollment request")
	}

	plan, err := e.Subscriptions.GetPlanByName(ctx, req.Plan)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("plan %s does not exist", req.Plan)
	}
	cost, err := pickCost(plan, req.Cost)
	if err != nil {
		return nil, err
	}
	paid := cost.Cost.IsPositive()
	if paid && len(req.PayerUsername) == 0 {
		return nil, fmt.Errorf("payer username is required for a paid plan")
	}

	cust, err := e.Customers.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if cust == nil {
		cust, err = e.Customers.NewCustomer(ctx, customer.NewCustomerOption{
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		})
		if err != nil {
			return nil, err
		}
		e.Logger.Info("Created new customer",
			zap.String("CustomerID", cust.ID),
			zap.String("Email", cust.Email),
		)
	}

	if len(req.PayerUsername) > 0 {
		if err := e.linkPayer(ctx, cust, req.PayerUsername); err != nil {
			return nil, err
		}
	}

	start := req.Start.UTC()
	sub := &subscription.Subscription{
		CustomerID:       cust.ID,
		PlanCostID:       cost.ID,
		DateBillingStart: start,
		Active:           true,
	}
	// Free and one-off costs are never billed
	if _, recurs := cost.NextBillingDate(start); recurs && paid {
		sub.DateBillingNext = &start
	}
	if err := e.Subscriptions.Create(ctx, sub); err != nil {
		return nil, err
	}
	e.Logger.Info("Created new subscription",
		zap.Uint("SubscriptionID", sub.ID),
		zap.String("PlanCost", cost.String()),
	)

	if err := e.Directory.AddSubscriber(ctx, cust); err != nil {
		return nil, extErrors.Wrap(err, "Cannot add subscriber to directory")
	}

	return e.Subscriptions.Get(ctx, sub.ID)
}

func (e *Enroller) linkPayer(ctx context.Context, cust *customer.Customer, username string) error {
	acct, err := e.Customers.GetPayerAccount(ctx, cust.ID)
	if err != nil {
		return err
	}
	if acct != nil {
		if acct.ExternalUsername != username {
			e.Logger.Warn("Customer already has a different payer account",
				zap.String("CustomerID", cust.ID),
				zap.String("Existing", acct.ExternalUsername),
				zap.String("Requested", username),
			)
		}
		return nil
	}
	user, err := e.Ledger.UserByUsername(ctx, username)
	if err != nil {
		return extErrors.Wrap(err, "Cannot look up payer on ledger")
	}
	return e.Customers.CreatePayerAccount(ctx, &customer.PayerAccount{
		CustomerID:       cust.ID,
		ExternalID:       user.ID,
		ExternalUsername: user.Username,
	})
}
