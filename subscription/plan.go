package subscription

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Plan describes what a subscriber signs up for
type Plan struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	Name            string     `json:"name" gorm:"uniqueIndex;not null"` // Shown to the subscriber and in billing notes
	Description     string     `json:"description"`
	GracePeriodDays int        `json:"gracePeriodDays" gorm:"not null"` // Days after a due date before an unpaid subscription expires
	Costs           []PlanCost `json:"costs"`
}

// PlanCost is one price point of a Plan, billed every RecurrencePeriod RecurrenceUnit
type PlanCost struct {
	ID               uint            `json:"id" gorm:"primaryKey"`
	PlanID           uint            `json:"planId" gorm:"index;not null"`
	Plan             Plan            `json:"plan"`
	RecurrencePeriod int             `json:"recurrencePeriod" gorm:"not null"`
	RecurrenceUnit   RecurrenceUnit  `json:"recurrenceUnit" gorm:"not null"`
	Cost             decimal.Decimal `json:"cost" gorm:"type:decimal(19,4);not null"`
}

// NextBillingDate returns the billing date following current, or false if the cost does not recur
func (c *PlanCost) NextBillingDate(current time.Time) (time.Time, bool) {
	period := float64(c.RecurrencePeriod)
	var delta time.Duration
	switch c.RecurrenceUnit {
	case Second:
		delta = time.Duration(period * float64(time.Second))
	case Minute:
		delta = time.Duration(period * float64(time.Minute))
	case Hour:
		delta = time.Duration(period * float64(time.Hour))
	case Day:
		delta = time.Duration(period * float64(24*time.Hour))
	case Week:
		delta = time.Duration(period * float64(7*24*time.Hour))
	case Month:
		delta = time.Duration(daysPerMonth * period * float64(24*time.Hour))
	case Year:
		delta = time.Duration(daysPerYear * period * float64(24*time.Hour))
	default:
		return time.Time{}, false
	}
	return current.Add(delta), true
}

func (c *PlanCost) String() string {
	return fmt.Sprintf("%s $%s every %d %s", c.Plan.Name, c.Cost.StringFixed(2), c.RecurrencePeriod, c.RecurrenceUnit)
}
