package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zllovesuki/payablesubs/customer"
	"github.com/zllovesuki/payablesubs/spec"
	"github.com/zllovesuki/payablesubs/subscription"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	billingStart = time.Date(2018, time.February, 1, 1, 1, 1, 0, time.UTC)
	ourProfile   = spec.LedgerUser{ID: "9000", Username: "payablesubs"}
)

type fixture struct {
	store    *fakeStore
	accounts fakeAccounts
	ledger   *fakeLedger
	notifier *fakeNotifier
	producer *fakeProducer
	now      time.Time
	options  ManagerOptions
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		store:    newFakeStore(),
		accounts: make(fakeAccounts),
		ledger: &fakeLedger{
			profile:     ourProfile,
			requestErrs: make(map[string]error),
		},
		notifier: &fakeNotifier{},
		producer: &fakeProducer{},
		now:      billingStart.Add(time.Hour),
	}
	f.options = ManagerOptions{
		Subscriptions:  f.store,
		Accounts:       f.accounts,
		Ledger:         f.ledger,
		Notifier:       f.notifier,
		Producer:       f.producer,
		Logger:         zaptest.NewLogger(t),
		BillingEnabled: true,
		Now:            func() time.Time { return f.now },
		Registerer:     prometheus.NewRegistry(),
	}
	return f
}

func (f *fixture) manager(t *testing.T) *Manager {
	m, err := NewManager(f.options)
	require.NoError(t, err)
	return m
}

// addSubscriber stores a monthly $10 subscription with a 7 day grace period paid from username
func (f *fixture) addSubscriber(id uint, customerID, firstName, username string) {
	next := billingStart
	f.store.put(subscription.Subscription{
		ID:         id,
		CustomerID: customerID,
		Customer: customer.Customer{
			ID:        customerID,
			Email:     customerID + "@example.com",
			FirstName: firstName,
		},
		PlanCostID: 1,
		PlanCost: subscription.PlanCost{
			ID: 1,
			Plan: subscription.Plan{
				ID:              1,
				Name:            "Test Plan",
				GracePeriodDays: 7,
			},
			RecurrencePeriod: 1,
			RecurrenceUnit:   subscription.Month,
			Cost:             decimal.NewFromInt(10),
		},
		DateBillingStart: billingStart,
		DateBillingNext:  &next,
		Active:           true,
	})
	if len(username) > 0 {
		f.accounts[customerID] = &customer.PayerAccount{
			CustomerID:       customerID,
			ExternalID:       "id-" + username,
			ExternalUsername: username,
		}
	}
}

func payFrom(id, username string, amount string, completed time.Time) spec.LedgerTransaction {
	return spec.LedgerTransaction{
		ID:          id,
		Type:        spec.TransactionPay,
		Actor:       spec.LedgerUser{ID: "id-" + username, Username: username},
		Target:      ourProfile,
		Amount:      decimal.RequireFromString(amount),
		Note:        "Test Plan",
		CreatedAt:   completed.Add(-time.Minute),
		CompletedAt: completed,
	}
}

func chargeTo(id, username string, amount string, completed time.Time) spec.LedgerTransaction {
	return spec.LedgerTransaction{
		ID:          id,
		Type:        spec.TransactionCharge,
		Actor:       ourProfile,
		Target:      spec.LedgerUser{ID: "id-" + username, Username: username},
		Amount:      decimal.RequireFromString(amount),
		CompletedAt: completed,
	}
}

func (f *fixture) process(t *testing.T, m *Manager, id uint) (Outcome, error) {
	sub := f.store.get(id)
	return m.Begin().Process(context.Background(), &sub)
}

func TestProcessRenewsOnPayment(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "john", "John", "john-venmo")
	completed := billingStart.Add(30 * time.Minute)
	f.ledger.txns = []spec.LedgerTransaction{
		payFrom("t1", "john-venmo", "10.00", completed),
	}
	m := f.manager(t)

	outcome, err := f.process(t, m, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRenewed, outcome)

	require.Len(t, f.ledger.requests, 1)
	assert.Equal(t, "John's Test Plan subscription for Feb 2018", f.ledger.requests[0].note)
	assert.Equal(t, "id-john-venmo", f.ledger.requests[0].payeeID)
	assert.True(t, decimal.NewFromInt(10).Equal(f.ledger.requests[0].amount))

	require.Len(t, f.store.bills, 1)
	assert.True(t, billingStart.Equal(f.store.bills[0].DateTransaction))

	require.Len(t, f.store.payments, 1)
	payment := f.store.payments[0]
	assert.Equal(t, "t1", payment.ExternalPaymentID)
	assert.Equal(t, subscription.MethodVenmo, payment.Method)
	assert.True(t, completed.Equal(payment.DateTransaction))
	assert.Equal(t, "john-venmo", payment.Data["payerUsername"])
	assert.Equal(t, "pay", payment.Data["paymentType"])

	sub := f.store.get(1)
	expectedNext, _ := sub.PlanCost.NextBillingDate(billingStart)
	require.NotNil(t, sub.DateBillingNext)
	assert.True(t, expectedNext.Equal(*sub.DateBillingNext))
	require.NotNil(t, sub.DateBillingLast)
	assert.True(t, completed.Equal(*sub.DateBillingLast))
	assert.Nil(t, sub.DateBillingEnd)
	assert.Equal(t, subscription.StateCurrent, sub.State())

	assert.Equal(t, []spec.EventType{spec.EventBillRequested, spec.EventPaymentMatched}, f.producer.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.billsRequested))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.paymentsMatched))
}

func TestProcessMatchesChargeWeSent(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "john", "John", "john-venmo")
	f.ledger.txns = []spec.LedgerTransaction{
		chargeTo("t1", "john-venmo", "10", billingStart.Add(time.Minute)),
	}
	m := f.manager(t)

	outcome, err := f.process(t, m, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRenewed, outcome)
	require.Len(t, f.store.payments, 1)
	assert.Equal(t, "charge", f.store.payments[0].Data["paymentType"])
	assert.Equal(t, "john-venmo", f.store.payments[0].Data["payerUsername"])
}

func TestProcessIgnoresNonMatchingTransactions(t *testing.T) {
	cases := []struct {
		name string
		txn  spec.LedgerTransaction
	}{
		{
			name: "amount off by a cent",
			txn:  payFrom("t1", "john-venmo", "10.01", billingStart.Add(time.Minute)),
		},
		{
			name: "completed before billing started",
			txn:  payFrom("t1", "john-venmo", "10.00", billingStart.Add(-time.Minute)),
		},
		{
			name: "someone else paid",
			txn:  payFrom("t1", "jane-venmo", "10.00", billingStart.Add(time.Minute)),
		},
		{
			name: "pending charge",
			txn:  chargeTo("t1", "john-venmo", "10.00", time.Time{}),
		},
		{
			name: "we paid the payer",
			txn: spec.LedgerTransaction{
				ID:          "t1",
				Type:        spec.TransactionPay,
				Actor:       ourProfile,
				Target:      spec.LedgerUser{ID: "id-john-venmo", Username: "john-venmo"},
				Amount:      decimal.NewFromInt(10),
				CompletedAt: billingStart.Add(time.Minute),
			},
		},
		{
			name: "payer charged us",
			txn: spec.LedgerTransaction{
				ID:          "t1",
				Type:        spec.TransactionCharge,
				Actor:       spec.LedgerUser{ID: "id-john-venmo", Username: "john-venmo"},
				Target:      ourProfile,
				Amount:      decimal.NewFromInt(10),
				CompletedAt: billingStart.Add(time.Minute),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.addSubscriber(1, "john", "John", "john-venmo")
			f.ledger.txns = []spec.LedgerTransaction{tc.txn}
			m := f.manager(t)

			outcome, err := f.process(t, m, 1)
			require.NoError(t, err)
			assert.Equal(t, OutcomeGraceStarted, outcome)
			assert.Empty(t, f.store.payments)
		})
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "john", "John", "john-venmo")
	m := f.manager(t)

	outcome, err := f.process(t, m, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGraceStarted, outcome)
	saved := f.store.get(1)
	saves := f.store.saves

	outcome, err = f.process(t, m, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAwaiting, outcome)

	assert.Len(t, f.ledger.requests, 1)
	assert.Len(t, f.store.bills, 1)
	assert.Equal(t, saves, f.store.saves)
	assert.Equal(t, saved, f.store.get(1))
}

func TestProcessUsesExistingBill(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "john", "John", "john-venmo")
	for _, id := range []string{"first", "second"} {
		f.store.bills = append(f.store.bills, subscription.Bill{
			ID:              id,
			CustomerID:      "john",
			PlanCostID:      1,
			DateTransaction: billingStart,
			Amount:          decimal.NewFromInt(10),
		})
	}
	m := f.manager(t)

	sub := f.store.get(1)
	r := m.Begin()
	bill, err := r.resolveBill(context.Background(), m.Logger, &sub)
	require.NoError(t, err)
	assert.Equal(t, "first", bill.ID)
	assert.Empty(t, f.ledger.requests)
	assert.Len(t, f.store.bills, 2)
}

func TestProcessDoesNotRecordPaymentTwice(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "john", "John", "john-venmo")
	f.store.payments = append(f.store.payments, subscription.Payment{
		ID:                1,
		ExternalPaymentID: "t1",
		CustomerID:        "john",
		PlanCostID:        1,
		Amount:            decimal.NewFromInt(10),
		Method:            subscription.MethodVenmo,
		DateTransaction:   billingStart.Add(-24 * time.Hour),
	})
	f.ledger.txns = []spec.LedgerTransaction{
		payFrom("t1", "john-venmo", "10", billingStart.Add(time.Minute)),
		payFrom("t2", "john-venmo", "10", billingStart.Add(2*time.Minute)),
	}
	m := f.manager(t)

	outcome, err := f.process(t, m, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRenewed, outcome)
	require.Len(t, f.store.payments, 2)
	assert.Equal(t, "t2", f.store.payments[1].ExternalPaymentID)

	// The next due date has no payment of its own
	f.now = *f.store.get(1).DateBillingNext
	outcome, err = f.process(t, m, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGraceStarted, outcome)
	assert.Len(t, f.store.payments, 2)
}

func TestGraceThenExpire(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "john", "John", "john-venmo")
	m := f.manager(t)

	outcome, err := f.process(t, m, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGraceStarted, outcome)

	sub := f.store.get(1)
	require.NotNil(t, sub.DateBillingEnd)
	assert.True(t, billingStart.Add(7*24*time.Hour).Equal(*sub.DateBillingEnd))
	assert.Equal(t, subscription.StateGrace, sub.State())
	assert.Empty(t, f.notifier.expired)

	f.now = billingStart.Add(7*24*time.Hour - time.Second)
	outcome, err = f.process(t, m, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAwaiting, outcome)

	f.now = billingStart.Add(7 * 24 * time.Hour)
	outcome, err = f.process(t, m, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, outcome)

	sub = f.store.get(1)
	assert.False(t, sub.Active)
	assert.True(t, sub.Cancelled)
	assert.Equal(t, subscription.StateExpired, sub.State())
	assert.Equal(t, []uint{1}, f.notifier.expired)
	assert.Len(t, f.ledger.requests, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.expired))
	assert.Equal(t, []spec.EventType{
		spec.EventBillRequested,
		spec.EventGraceStarted,
		spec.EventSubscriptionExpired,
	}, f.producer.types())

	outcome, err = f.process(t, m, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestExpireWhenGraceAlreadyPassed(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "john", "John", "john-venmo")
	f.now = billingStart.Add(10 * 24 * time.Hour)
	m := f.manager(t)

	outcome, err := f.process(t, m, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, outcome)

	sub := f.store.get(1)
	assert.True(t, sub.Cancelled)
	require.NotNil(t, sub.DateBillingEnd)
	assert.True(t, billingStart.Add(7*24*time.Hour).Equal(*sub.DateBillingEnd))
	assert.Equal(t, []uint{1}, f.notifier.expired)
}

func TestNotifierFailureKeepsExpiry(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "john", "John", "john-venmo")
	f.notifier.err = ErrDirectoryLookup
	f.now = billingStart.Add(10 * 24 * time.Hour)
	m := f.manager(t)

	outcome, err := f.process(t, m, 1)
	assert.ErrorIs(t, err, ErrDirectoryLookup)
	assert.Equal(t, OutcomeExpired, outcome)
	assert.True(t, f.store.get(1).Cancelled)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.failures.WithLabelValues(reasonNotify)))
}

func TestDryRunPersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "john", "John", "john-venmo")
	f.addSubscriber(2, "jane", "Jane", "jane-venmo")
	f.ledger.txns = []spec.LedgerTransaction{
		payFrom("t1", "john-venmo", "10", billingStart.Add(time.Minute)),
	}
	f.now = billingStart.Add(10 * 24 * time.Hour)
	f.options.DryRun = true
	m := f.manager(t)
	before := f.store.get(1)

	result, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Outcomes[OutcomeDryRun])
	assert.Empty(t, result.Errors)

	assert.Empty(t, f.ledger.requests)
	assert.Empty(t, f.store.bills)
	assert.Empty(t, f.store.payments)
	assert.Zero(t, f.store.saves)
	assert.Empty(t, f.notifier.expired)
	assert.Empty(t, f.producer.events)
	assert.Equal(t, before, f.store.get(1))
}

func TestBillingDisabledStillRecordsBill(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "john", "John", "john-venmo")
	f.options.BillingEnabled = false
	m := f.manager(t)

	outcome, err := f.process(t, m, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGraceStarted, outcome)
	assert.Empty(t, f.ledger.requests)
	assert.Len(t, f.store.bills, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.metrics.billsRequested))
}

func TestNoPayerAccount(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "john", "John", "")
	m := f.manager(t)

	outcome, err := f.process(t, m, 1)
	assert.ErrorIs(t, err, ErrNoPayerAccount)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Empty(t, f.store.bills)
	assert.Empty(t, f.ledger.requests)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.failures.WithLabelValues(reasonNoPayerAccount)))
}

func TestSharedUsername(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "john", "John", "family")
	f.addSubscriber(2, "jane", "Jane", "family")
	f.ledger.txns = []spec.LedgerTransaction{
		payFrom("t1", "family", "10", billingStart.Add(time.Minute)),
		payFrom("t2", "family", "10", billingStart.Add(2*time.Minute)),
	}
	m := f.manager(t)

	result, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Outcomes[OutcomeRenewed])

	require.Len(t, f.store.payments, 2)
	assert.Equal(t, "john", f.store.payments[0].CustomerID)
	assert.Equal(t, "t1", f.store.payments[0].ExternalPaymentID)
	assert.Equal(t, "jane", f.store.payments[1].CustomerID)
	assert.Equal(t, "t2", f.store.payments[1].ExternalPaymentID)
}

func TestRunIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "nobody", "Nobody", "")
	f.addSubscriber(2, "jane", "Jane", "jane-venmo")
	f.addSubscriber(3, "john", "John", "john-venmo")
	f.ledger.requestErrs["id-jane-venmo"] = errors.New("ledger unavailable")
	f.ledger.txns = []spec.LedgerTransaction{
		payFrom("t1", "john-venmo", "10", billingStart.Add(time.Minute)),
	}
	m := f.manager(t)

	result, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Due)
	assert.Equal(t, 2, result.Outcomes[OutcomeFailed])
	assert.Equal(t, 1, result.Outcomes[OutcomeRenewed])
	require.Len(t, result.Errors, 2)
	assert.ErrorIs(t, result.Errors[0], ErrNoPayerAccount)

	failed := f.store.get(2)
	assert.Equal(t, subscription.StateCurrent, failed.State())
	assert.Equal(t, billingStart, *failed.DateBillingNext)
	assert.Len(t, f.store.payments, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.failures.WithLabelValues(reasonOther)))
}

func TestRunFetchesLedgerOnce(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "john", "John", "john-venmo")
	f.addSubscriber(2, "jane", "Jane", "jane-venmo")
	f.addSubscriber(3, "jim", "Jim", "jim-venmo")
	m := f.manager(t)

	_, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.ledger.profileCalls)
	assert.Equal(t, 1, f.ledger.txnCalls)

	_, err = m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.ledger.txnCalls)
}

func TestRunSkipsSubscriptionsNotDue(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(1, "john", "John", "john-venmo")
	f.now = billingStart.Add(-time.Hour)
	m := f.manager(t)

	result, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Due)
	assert.Zero(t, f.ledger.txnCalls)

	sub := f.store.get(1)
	outcome, err := m.Begin().Process(context.Background(), &sub)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestInboundTransactions(t *testing.T) {
	at := billingStart.Add(time.Minute)
	txns := []spec.LedgerTransaction{
		payFrom("in-pay", "john-venmo", "10", at),
		chargeTo("in-charge", "john-venmo", "10", at),
		{ID: "out-pay", Type: spec.TransactionPay, Actor: ourProfile, Target: spec.LedgerUser{Username: "john-venmo"}},
		{ID: "out-charge", Type: spec.TransactionCharge, Actor: spec.LedgerUser{Username: "john-venmo"}, Target: ourProfile},
	}

	inbound := InboundTransactions(txns, ourProfile.Username)
	ids := make([]string, 0, len(inbound))
	for _, txn := range inbound {
		ids = append(ids, txn.ID)
	}
	assert.Equal(t, []string{"in-pay", "in-charge"}, ids)
}

func TestNewManagerValidatesOptions(t *testing.T) {
	f := newFixture(t)
	f.options.Ledger = nil
	_, err := NewManager(f.options)
	assert.Error(t, err)
}
