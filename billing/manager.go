package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zllovesuki/payablesubs/spec"
	"github.com/zllovesuki/payablesubs/spec/broker"
	"github.com/zllovesuki/payablesubs/subscription"

	extErrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Outcome is the result of processing one due subscription
type Outcome string

// Defining the outcomes of Process
const (
	OutcomeFailed       Outcome = "failed"
	OutcomeSkipped      Outcome = "skipped" // not due at the time of the run
	OutcomeDryRun       Outcome = "dry_run"
	OutcomeRenewed      Outcome = "renewed"
	OutcomeGraceStarted Outcome = "grace_started"
	OutcomeAwaiting     Outcome = "awaiting" // still in grace, nothing changed
	OutcomeExpired      Outcome = "expired"
)

type ManagerOptions struct {
	Subscriptions SubscriptionStore
	Accounts      AccountStore
	Ledger        spec.Ledger
	Notifier      ExpiryNotifier
	Producer      broker.Producer // optional
	Logger        *zap.Logger

	BillingEnabled bool // send money requests; bills are recorded either way
	DryRun         bool // compute and log only, persist nothing

	Now        func() time.Time      // defaults to time.Now
	Registerer prometheus.Registerer // optional
}

// Manager drives due subscriptions through billing, payment matching and expiry
type Manager struct {
	ManagerOptions
	metrics *metrics
}

func NewManager(option ManagerOptions) (*Manager, error) {
	if option.Subscriptions == nil {
		return nil, fmt.Errorf("nil Subscriptions is invalid")
	}
	if option.Accounts == nil {
		return nil, fmt.Errorf("nil Accounts is invalid")
	}
	if option.Ledger == nil {
		return nil, fmt.Errorf("nil Ledger is invalid")
	}
	if option.Notifier == nil {
		return nil, fmt.Errorf("nil Notifier is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.Now == nil {
		option.Now = time.Now
	}
	m, err := newMetrics(option.Registerer)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot register billing metrics")
	}
	return &Manager{
		ManagerOptions: option,
		metrics:        m,
	}, nil
}

// Reconciliation is one pass over due subscriptions. Ledger transactions are fetched at most once per Reconciliation.
// A Reconciliation must not be used concurrently.
type Reconciliation struct {
	*Manager
	now   time.Time
	cache *ledgerCache
}

// Begin starts a new Reconciliation at the current time
func (m *Manager) Begin() *Reconciliation {
	return &Reconciliation{
		Manager: m,
		now:     m.Now().UTC(),
		cache: &ledgerCache{
			ledger: m.Ledger,
			logger: m.Logger,
		},
	}
}

// Process bills the subscription if needed, then renews it on a matching payment, or moves it
// towards expiry. Processing the same subscription again without new ledger transactions or elapsed
// time changes nothing.
func (r *Reconciliation) Process(ctx context.Context, sub *subscription.Subscription) (outcome Outcome, err error) {
	logger := r.Logger.With(
		zap.Uint("SubscriptionID", sub.ID),
		zap.String("Customer", sub.Customer.Email),
	)

	defer func() {
		if err == nil {
			return
		}
		if errors.Is(err, ErrNoPayerAccount) {
			r.metrics.failures.WithLabelValues(reasonNoPayerAccount).Inc()
			logger.Warn("Cannot process subscription", zap.Error(err))
			return
		}
		if outcome == OutcomeExpired {
			r.metrics.failures.WithLabelValues(reasonNotify).Inc()
		} else {
			r.metrics.failures.WithLabelValues(reasonOther).Inc()
		}
		logger.Error("Cannot process subscription", zap.Error(err))
	}()

	if !sub.IsDue(r.now) {
		logger.Debug("Subscription is not due")
		return OutcomeSkipped, nil
	}

	logger.Info("Processing subscription",
		zap.Time("Due", *sub.DateBillingNext),
	)

	bill, err := r.resolveBill(ctx, logger, sub)
	if err != nil {
		return OutcomeFailed, err
	}
	logger = logger.With(zap.String("BillID", bill.ID))

	t, err := r.matchPayment(ctx, logger, sub)
	if err != nil {
		return OutcomeFailed, err
	}

	if r.DryRun {
		if t != nil {
			logger.Info("Dry run. Found matching transaction",
				zap.String("TransactionID", t.ID),
				zap.Time("Completed", t.CompletedAt),
			)
		} else {
			logger.Info("Dry run. No matching transaction found")
		}
		return OutcomeDryRun, nil
	}

	if t != nil {
		return r.renew(ctx, logger, sub, bill, t)
	}
	return r.awaitPayment(ctx, logger, sub)
}

func (r *Reconciliation) renew(ctx context.Context, logger *zap.Logger, sub *subscription.Subscription, bill *subscription.Bill, t *spec.LedgerTransaction) (Outcome, error) {
	completed := t.CompletedAt.UTC()
	payment := &subscription.Payment{
		ExternalPaymentID: t.ID,
		CustomerID:        sub.CustomerID,
		PlanCostID:        sub.PlanCostID,
		Amount:            t.Amount,
		Method:            subscription.MethodVenmo,
		DateTransaction:   completed,
		Data:              paymentData(t),
	}
	if err := r.Subscriptions.CreatePayment(ctx, payment); err != nil {
		return OutcomeFailed, extErrors.Wrap(err, "Cannot record payment")
	}
	r.metrics.paymentsMatched.Inc()

	sub.DateBillingLast = &completed
	if next, ok := sub.PlanCost.NextBillingDate(*sub.DateBillingNext); ok {
		sub.DateBillingNext = &next
	} else {
		sub.DateBillingNext = nil
	}
	sub.DateBillingEnd = nil
	if err := r.Subscriptions.Save(ctx, sub); err != nil {
		return OutcomeFailed, extErrors.Wrap(err, "Cannot renew subscription")
	}

	logger.Info("Payment recorded. Subscription renewed",
		zap.String("TransactionID", t.ID),
		zap.Timep("NextBilling", sub.DateBillingNext),
	)
	r.publish(logger, sub, spec.EventPaymentMatched, spec.Parameters{
		"billId":        bill.ID,
		"transactionId": t.ID,
		"amount":        t.Amount.StringFixed(2),
	})
	return OutcomeRenewed, nil
}

func (r *Reconciliation) awaitPayment(ctx context.Context, logger *zap.Logger, sub *subscription.Subscription) (Outcome, error) {
	if sub.DateBillingEnd == nil {
		grace := time.Duration(sub.PlanCost.Plan.GracePeriodDays) * 24 * time.Hour
		end := sub.DateBillingNext.Add(grace)
		sub.DateBillingEnd = &end

		if !r.now.Before(end) {
			logger.Info("Grace period already passed when the missing payment was detected",
				zap.Time("End", end),
			)
			return r.expire(ctx, logger, sub)
		}

		if err := r.Subscriptions.Save(ctx, sub); err != nil {
			return OutcomeFailed, extErrors.Wrap(err, "Cannot start grace period")
		}
		logger.Info("No payment found. Grace period started",
			zap.Time("End", end),
		)
		r.publish(logger, sub, spec.EventGraceStarted, spec.Parameters{
			"dateBillingEnd": end.Format(time.RFC3339),
		})
		return OutcomeGraceStarted, nil
	}

	if !r.now.Before(*sub.DateBillingEnd) {
		return r.expire(ctx, logger, sub)
	}

	logger.Info("No payment found. Waiting for grace period to end",
		zap.Time("End", *sub.DateBillingEnd),
	)
	return OutcomeAwaiting, nil
}

func (r *Reconciliation) expire(ctx context.Context, logger *zap.Logger, sub *subscription.Subscription) (Outcome, error) {
	sub.Active = false
	sub.Cancelled = true
	if err := r.Subscriptions.Save(ctx, sub); err != nil {
		return OutcomeFailed, extErrors.Wrap(err, "Cannot expire subscription")
	}
	r.metrics.expired.Inc()
	logger.Info("Subscription expired")
	r.publish(logger, sub, spec.EventSubscriptionExpired, nil)

	if err := r.Notifier.NotifyExpired(ctx, sub); err != nil {
		return OutcomeExpired, extErrors.Wrap(err, "Cannot notify about expired subscription")
	}
	return OutcomeExpired, nil
}

func (r *Reconciliation) publish(logger *zap.Logger, sub *subscription.Subscription, t spec.EventType, params spec.Parameters) {
	if r.Producer == nil || r.DryRun {
		return
	}
	err := r.Producer.PublishEvent(&spec.Event{
		Type:           t,
		SubscriptionID: sub.ID,
		CustomerID:     sub.CustomerID,
		When:           r.now,
		Parameters:     params,
	})
	if err != nil {
		logger.Warn("Unable to publish billing event",
			zap.String("Event", string(t)),
			zap.Error(err),
		)
	}
}

// RunResult summarizes one Run
type RunResult struct {
	Due      int
	Outcomes map[Outcome]int
	Errors   []error
}

// Run processes every due subscription in order. A failing subscription is recorded in the result
// and does not stop the batch.
func (m *Manager) Run(ctx context.Context) (*RunResult, error) {
	r := m.Begin()

	subs, err := m.Subscriptions.ListDue(ctx, r.now)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot list due subscriptions")
	}
	m.Logger.Info("Starting reconciliation",
		zap.Int("Due", len(subs)),
		zap.Bool("BillingEnabled", m.BillingEnabled),
		zap.Bool("DryRun", m.DryRun),
	)

	result := &RunResult{
		Due:      len(subs),
		Outcomes: make(map[Outcome]int),
	}
	for i := range subs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome, err := r.Process(ctx, &subs[i])
		result.Outcomes[outcome]++
		if err != nil {
			result.Errors = append(result.Errors, extErrors.Wrapf(err, "subscription %d", subs[i].ID))
		}
	}

	m.Logger.Info("Reconciliation finished",
		zap.Int("Renewed", result.Outcomes[OutcomeRenewed]),
		zap.Int("Expired", result.Outcomes[OutcomeExpired]),
		zap.Int("Failed", len(result.Errors)),
	)
	return result, nil
}
