package billing

import (
	"fmt"
	"time"

	"github.com/zllovesuki/payablesubs/subscription"
)

const (
	// A billing cycle starting near the end of a month is attributed to the following month
	noteBoundaryShift = 7 * 24 * time.Hour
	// Only name the end month when the cycle spans more than a month
	noteSingleMonthSpan = 33 * 24 * time.Hour
)

// GenerateNote describes the billing period starting at the subscription's DateBillingNext,
// e.g. "John's Test Plan subscription for Feb 2018"
func GenerateNote(sub *subscription.Subscription) (string, error) {
	if sub.DateBillingNext == nil {
		return "", fmt.Errorf("subscription %d has no next billing date", sub.ID)
	}
	begin := sub.DateBillingNext.UTC()
	end, ok := sub.PlanCost.NextBillingDate(begin)
	if !ok {
		return "", fmt.Errorf("plan cost %d does not recur", sub.PlanCostID)
	}

	adjustedBegin := begin.Add(noteBoundaryShift)
	adjustedEnd := end.Add(-noteBoundaryShift)

	duration := adjustedBegin.Format("Jan")
	if adjustedEnd.Sub(adjustedBegin) > noteSingleMonthSpan {
		duration += " - " + adjustedEnd.Format("Jan")
	}
	duration += adjustedEnd.Format(" 2006")

	return fmt.Sprintf("%s's %s subscription for %s", sub.Customer.FirstName, sub.PlanCost.Plan.Name, duration), nil
}
