package providers

import (
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
)

const locationBonus = 10

// OrderView is the part of an order the scorer looks at.
type OrderView struct {
	ShippingCountry string
	Items           []ItemView
}

// ItemView is a single line of an OrderView.
type ItemView struct {
	ProductType string
	Quantity    int
}

// ViewOf projects a persisted order and its live items.
func ViewOf(order models.Order) OrderView {
	view := OrderView{ShippingCountry: order.ShippingCountry}
	if view.ShippingCountry == "" {
		view.ShippingCountry = order.ShippingAddress.CountryCode()
	}
	for _, item := range order.Items {
		if item.FulfillmentStatus == enums.ItemFulfillmentCancelled {
			continue
		}
		view.Items = append(view.Items, ItemView{ProductType: item.ProductType, Quantity: item.Quantity})
	}
	return view
}

// TotalQuantity sums item quantities. Non-positive quantities count as one and the total is at least one.
func (o OrderView) TotalQuantity() int64 {
	var total int64
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			total++
			continue
		}
		total += int64(item.Quantity)
	}
	if total < 1 {
		return 1
	}
	return total
}

func (o OrderView) primaryProductType() string {
	if len(o.Items) == 0 {
		return ""
	}
	return o.Items[0].ProductType
}

// ProviderCost is base cost times total quantity plus domestic or international shipping.
func ProviderCost(profile Profile, order OrderView) int64 {
	shipping := profile.InternationalShippingCents
	if profile.Domestic(order.ShippingCountry) {
		shipping = profile.DomesticShippingCents
	}
	return profile.BaseCostCents*order.TotalQuantity() + shipping
}

// Score rates a provider for the order under the strategy. Higher is better; unknown strategies score as balanced.
func Score(profile Profile, order OrderView, strategy enums.Strategy) float64 {
	cost := float64(ProviderCost(profile, order))
	speed := profile.ProductionDays
	quality := profile.QualityRating

	bonus := 0.0
	if profile.Domestic(order.ShippingCountry) {
		bonus = locationBonus
	}

	switch strategy {
	case enums.StrategyCost:
		return (1000/cost)*70 + quality*10 + bonus
	case enums.StrategySpeed:
		return (10/speed)*60 + quality*20 + bonus
	case enums.StrategyQuality:
		return quality*60 + (profile.OnTimeRate/10)*20 + bonus
	default:
		return (1000/cost)*40 + (10/speed)*30 + quality*20 + bonus
	}
}

// SelectProvider picks the best active provider for the order, or nil when none is active.
// When no active provider supports the first item's product type, the first active provider
// is returned unscored. Ties keep the earliest provider in input order.
func SelectProvider(order OrderView, candidates []models.Provider, strategy enums.Strategy) *models.Provider {
	active := make([]int, 0, len(candidates))
	for i := range candidates {
		if candidates[i].Status == enums.ProviderStatusActive {
			active = append(active, i)
		}
	}
	if len(active) == 0 {
		return nil
	}

	productType := order.primaryProductType()
	capable := make([]int, 0, len(active))
	for _, i := range active {
		if ProfileFrom(candidates[i]).Supports(productType) {
			capable = append(capable, i)
		}
	}
	if len(capable) == 0 {
		return &candidates[active[0]]
	}

	best := capable[0]
	bestScore := Score(ProfileFrom(candidates[best]), order, strategy)
	for _, i := range capable[1:] {
		score := Score(ProfileFrom(candidates[i]), order, strategy)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return &candidates[best]
}
