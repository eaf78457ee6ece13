package payments

import (
	"fmt"

	"nxtrix.com/founders/models"
)

// Catalog maps a tier and billing cycle to the processor price id.
type Catalog map[models.Tier]map[models.BillingCycle]string

// PriceFor returns the configured price id. An unset pair is an error so that
// a signup can never reach the processor with an empty price.
func (c Catalog) PriceFor(tier models.Tier, cycle models.BillingCycle) (string, error) {
	cycles, ok := c[tier]
	if !ok {
		return "", fmt.Errorf("no prices configured for tier %q", tier)
	}
	price := cycles[cycle]
	if price == "" {
		return "", fmt.Errorf("no %s price configured for tier %q", cycle, tier)
	}
	return price, nil
}
