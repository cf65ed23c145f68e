package enums

import "fmt"

// PromotionKind identifies which pricing rule a promotion applies.
type PromotionKind string

const (
	PromotionKindQuantityTier   PromotionKind = "quantity_tier"
	PromotionKindBonusUnits     PromotionKind = "bonus_units"
	PromotionKindOrderThreshold PromotionKind = "order_threshold"
)

var validPromotionKinds = []PromotionKind{
	PromotionKindQuantityTier,
	PromotionKindBonusUnits,
	PromotionKindOrderThreshold,
}

func (k PromotionKind) String() string {
	return string(k)
}

func (k PromotionKind) IsValid() bool {
	for _, candidate := range validPromotionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func ParsePromotionKind(value string) (PromotionKind, error) {
	for _, candidate := range validPromotionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid promotion kind %q", value)
}

// PromotionScope narrows a promotion to a product or a category. An empty
// scope applies to the whole order.
type PromotionScope string

const (
	PromotionScopeOrder    PromotionScope = ""
	PromotionScopeProduct  PromotionScope = "product"
	PromotionScopeCategory PromotionScope = "category"
)

func (s PromotionScope) IsValid() bool {
	switch s {
	case PromotionScopeOrder, PromotionScopeProduct, PromotionScopeCategory:
		return true
	default:
		return false
	}
}
