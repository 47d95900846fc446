package subscription

// State is the custom type to define the current state of a subscription
type State string

// Defining different States for a Subscription
const (
	StateInactive State = "Inactive" // not started yet
	StateCurrent  State = "Current"  // active with no pending grace period
	StateGrace    State = "Grace"    // active, unpaid, waiting for DateBillingEnd
	StateExpired  State = "Expired"  // cancelled, terminal
)

// RecurrenceUnit is the unit of a PlanCost's billing period
type RecurrenceUnit string

// Defining recurrence units
const (
	Once   RecurrenceUnit = "once"
	Second RecurrenceUnit = "second"
	Minute RecurrenceUnit = "minute"
	Hour   RecurrenceUnit = "hour"
	Day    RecurrenceUnit = "day"
	Week   RecurrenceUnit = "week"
	Month  RecurrenceUnit = "month"
	Year   RecurrenceUnit = "year"
)

// Average lengths used to advance the billing date, so months < 31 days and leap years are absorbed
const (
	daysPerMonth float64 = 30.4368
	daysPerYear  float64 = 365.2425
)

// PaymentMethod is how a Payment was received
type PaymentMethod string

// Defining payment methods
const (
	MethodVenmo PaymentMethod = "VENMO"
	MethodCash  PaymentMethod = "CASH"
)

// CostClass filters subscriptions by the cost of their PlanCost
type CostClass string

// Defining cost classes for reporting
const (
	CostAll    CostClass = "ALL"
	CostFree   CostClass = "FREE"
	CostPaying CostClass = "PAYING"
)
