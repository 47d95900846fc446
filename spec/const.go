package spec

import "time"

// Environment is the type for defining the running environment
type Environment string

// define constants
const (
	EnvDevelopment Environment = "Dev"
	EnvProduction  Environment = "Prod"
)

// Define constants shared by the task and the external clients
const (
	DefaultRequestTimeout time.Duration = time.Second * 30
	DefaultRunLockTTL     time.Duration = time.Minute * 30

	RunLockKey string = "payablesubs:reconcile"
)

// TransactionType is the action recorded by the payment ledger
type TransactionType string

// A "pay" is a completed transfer from actor to target.
// A "charge" is a request from actor to target, completed once the target pays.
const (
	TransactionPay    TransactionType = "pay"
	TransactionCharge TransactionType = "charge"
)
