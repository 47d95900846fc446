package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the database operations relating to Customers and their PayerAccounts
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for customers
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if db == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if err := db.AutoMigrate(&Customer{}, &PayerAccount{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize customer.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// NewCustomerOption describes the customer to be created
type NewCustomerOption struct {
	Email     string
	FirstName string
	LastName  string
}

// NewCustomer will create a new customer in the database
func (m *Manager) NewCustomer(ctx context.Context, opt NewCustomerOption) (*Customer, error) {
	if len(opt.Email) == 0 {
		return nil, fmt.Errorf("NewCustomerOption.Email is required")
	}
	newCustomer := &Customer{
		ID:        shortuuid.New(),
		Email:     opt.Email,
		FirstName: opt.FirstName,
		LastName:  opt.LastName,
	}

	result := m.db.WithContext(ctx).Create(newCustomer)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create a New Customer")
	}

	return newCustomer, nil
}

// GetByEmail will try to return the customer in the database by email address
func (m *Manager) GetByEmail(ctx context.Context, email string) (*Customer, error) {
	var cust Customer

	result := m.db.WithContext(ctx).First(&cust, "email = ?", email)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get customer by email")
	}

	return &cust, nil
}

// GetPayerAccount returns the PayerAccount of a customer, or nil if the customer has none
func (m *Manager) GetPayerAccount(ctx context.Context, customerID string) (*PayerAccount, error) {
	var acct PayerAccount

	result := m.db.WithContext(ctx).First(&acct, "customer_id = ?", customerID)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get payer account by customer id")
	}

	return &acct, nil
}

// CreatePayerAccount stores the ledger details of a customer. A second account for the same customer is rejected by the unique index
func (m *Manager) CreatePayerAccount(ctx context.Context, acct *PayerAccount) error {
	if len(acct.CustomerID) == 0 {
		return fmt.Errorf("PayerAccount.CustomerID is required")
	}
	result := m.db.WithContext(ctx).Create(acct)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create payer account")
	}
	return nil
}
