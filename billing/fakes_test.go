package billing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zllovesuki/payablesubs/customer"
	"github.com/zllovesuki/payablesubs/spec"
	"github.com/zllovesuki/payablesubs/subscription"

	"github.com/shopspring/decimal"
)

type fakeStore struct {
	subs     map[uint]subscription.Subscription
	bills    []subscription.Bill
	payments []subscription.Payment
	saves    int
	saveErr  error
}

var _ SubscriptionStore = &fakeStore{}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subs: make(map[uint]subscription.Subscription),
	}
}

func (f *fakeStore) put(sub subscription.Subscription) {
	f.subs[sub.ID] = sub
}

func (f *fakeStore) get(id uint) subscription.Subscription {
	return f.subs[id]
}

func (f *fakeStore) ListDue(ctx context.Context, now time.Time) ([]subscription.Subscription, error) {
	ids := make([]int, 0, len(f.subs))
	for id := range f.subs {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	due := make([]subscription.Subscription, 0, len(ids))
	for _, id := range ids {
		sub := f.subs[uint(id)]
		if sub.IsDue(now) {
			due = append(due, sub)
		}
	}
	return due, nil
}

func (f *fakeStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.subs[sub.ID] = *sub
	return nil
}

func (f *fakeStore) FindBills(ctx context.Context, customerID string, planCostID uint, due time.Time) ([]subscription.Bill, error) {
	bills := make([]subscription.Bill, 0, 1)
	for _, b := range f.bills {
		if b.CustomerID == customerID && b.PlanCostID == planCostID && b.DateTransaction.Equal(due) {
			bills = append(bills, b)
		}
	}
	return bills, nil
}

func (f *fakeStore) CreateBill(ctx context.Context, bill *subscription.Bill) error {
	f.bills = append(f.bills, *bill)
	return nil
}

func (f *fakeStore) LatestPayment(ctx context.Context, customerID string) (*subscription.Payment, error) {
	var latest *subscription.Payment
	for i := range f.payments {
		p := &f.payments[i]
		if p.CustomerID != customerID {
			continue
		}
		if latest == nil || p.DateTransaction.After(latest.DateTransaction) {
			latest = p
		}
	}
	return latest, nil
}

func (f *fakeStore) GetPaymentByExternalID(ctx context.Context, externalID string) (*subscription.Payment, error) {
	for i := range f.payments {
		if f.payments[i].ExternalPaymentID == externalID {
			return &f.payments[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreatePayment(ctx context.Context, payment *subscription.Payment) error {
	for _, p := range f.payments {
		if p.ExternalPaymentID == payment.ExternalPaymentID {
			return fmt.Errorf("duplicate payment %s", payment.ExternalPaymentID)
		}
	}
	payment.ID = uint(len(f.payments) + 1)
	f.payments = append(f.payments, *payment)
	return nil
}

type fakeAccounts map[string]*customer.PayerAccount

func (f fakeAccounts) GetPayerAccount(ctx context.Context, customerID string) (*customer.PayerAccount, error) {
	return f[customerID], nil
}

type moneyRequest struct {
	amount  decimal.Decimal
	note    string
	payeeID string
}

type fakeLedger struct {
	profile     spec.LedgerUser
	txns        []spec.LedgerTransaction
	users       map[string]spec.LedgerUser
	requestErrs map[string]error

	profileCalls int
	txnCalls     int
	requests     []moneyRequest
}

var _ spec.Ledger = &fakeLedger{}

func (f *fakeLedger) Profile(ctx context.Context) (*spec.LedgerUser, error) {
	f.profileCalls++
	p := f.profile
	return &p, nil
}

func (f *fakeLedger) RecentTransactions(ctx context.Context, profileID string) ([]spec.LedgerTransaction, error) {
	f.txnCalls++
	if profileID != f.profile.ID {
		return nil, fmt.Errorf("unknown profile %s", profileID)
	}
	return f.txns, nil
}

func (f *fakeLedger) RequestMoney(ctx context.Context, amount decimal.Decimal, note, payeeID string) error {
	if err := f.requestErrs[payeeID]; err != nil {
		return err
	}
	f.requests = append(f.requests, moneyRequest{amount: amount, note: note, payeeID: payeeID})
	return nil
}

func (f *fakeLedger) UserByUsername(ctx context.Context, username string) (*spec.LedgerUser, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, fmt.Errorf("no ledger user %s", username)
	}
	return &u, nil
}

type fakeNotifier struct {
	err     error
	expired []uint
}

func (f *fakeNotifier) NotifyExpired(ctx context.Context, sub *subscription.Subscription) error {
	f.expired = append(f.expired, sub.ID)
	return f.err
}

type fakeProducer struct {
	events []spec.Event
}

func (f *fakeProducer) Close() {}

func (f *fakeProducer) PublishEvent(e *spec.Event) error {
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeProducer) types() []spec.EventType {
	types := make([]spec.EventType, 0, len(f.events))
	for _, e := range f.events {
		types = append(types, e.Type)
	}
	return types
}

type groupChange struct {
	resourceName string
	groupID      string
}

type fakeDirectory struct {
	entries map[string][]spec.DirectoryEntry
	created []spec.NewDirectoryEntry
	added   []groupChange
	removed []groupChange
}

var _ spec.Directory = &fakeDirectory{}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		entries: make(map[string][]spec.DirectoryEntry),
	}
}

func (f *fakeDirectory) SearchByEmail(ctx context.Context, email string) ([]spec.DirectoryEntry, error) {
	return f.entries[email], nil
}

func (f *fakeDirectory) CreateEntry(ctx context.Context, fields spec.NewDirectoryEntry) (*spec.DirectoryEntry, error) {
	f.created = append(f.created, fields)
	entry := spec.DirectoryEntry{
		ResourceName: fmt.Sprintf("people/c%d", len(f.created)),
		Email:        fields.Email,
	}
	f.entries[fields.Email] = append(f.entries[fields.Email], entry)
	return &entry, nil
}

func (f *fakeDirectory) AddToGroup(ctx context.Context, resourceName, groupID string) error {
	f.added = append(f.added, groupChange{resourceName, groupID})
	return nil
}

func (f *fakeDirectory) RemoveFromGroup(ctx context.Context, resourceName, groupID string) error {
	f.removed = append(f.removed, groupChange{resourceName, groupID})
	return nil
}
