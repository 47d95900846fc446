package customer

// Customer describes a subscriber
type Customer struct {
	ID        string `json:"id" gorm:"primaryKey"`     // Generated short UUID
	Email     string `json:"email" gorm:"uniqueIndex"` // Subscriber's email address, also the directory lookup key
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// PayerAccount links a Customer to their account on the payment ledger.
// Different customers may share the same ExternalUsername (e.g. a household paying from one account)
type PayerAccount struct {
	ID               uint     `json:"id" gorm:"primaryKey"`
	CustomerID       string   `json:"customerId" gorm:"uniqueIndex;not null"` // At most one PayerAccount per Customer
	Customer         Customer `json:"-"`
	ExternalID       string   `json:"externalId" gorm:"not null"`             // The ledger's user ID, used when requesting money
	ExternalUsername string   `json:"externalUsername" gorm:"index;not null"` // The ledger's username, used when matching transactions
}
