package pricing

import (
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/shopspring/decimal"
)

// Promotion is one rule of the active promotion snapshot. Kind selects which
// of the rule fields are meaningful:
//
//	quantity_tier:   MinQuantity, DiscountPercent
//	bonus_units:     MinQuantity, BonusQuantity
//	order_threshold: MinOrderSubtotal, DiscountPercent
//
// Scope and ScopeID narrow the rule to a product or category; an empty scope
// applies the rule to every line.
type Promotion struct {
	ID               string               `json:"id"`
	Kind             enums.PromotionKind  `json:"kind"`
	Scope            enums.PromotionScope `json:"scope,omitempty"`
	ScopeID          string               `json:"scopeId,omitempty"`
	MinQuantity      int                  `json:"minQuantity,omitempty"`
	BonusQuantity    int                  `json:"bonusQuantity,omitempty"`
	DiscountPercent  decimal.Decimal      `json:"discountPercent"`
	MinOrderSubtotal decimal.Decimal      `json:"minOrderSubtotal"`
}

func QuantityTier(id string, minQuantity int, discountPercent decimal.Decimal) Promotion {
	return Promotion{
		ID:              id,
		Kind:            enums.PromotionKindQuantityTier,
		MinQuantity:     minQuantity,
		DiscountPercent: discountPercent,
	}
}

func BonusUnits(id string, minQuantity, bonusQuantity int) Promotion {
	return Promotion{
		ID:            id,
		Kind:          enums.PromotionKindBonusUnits,
		MinQuantity:   minQuantity,
		BonusQuantity: bonusQuantity,
	}
}

func OrderThreshold(id string, minOrderSubtotal, discountPercent decimal.Decimal) Promotion {
	return Promotion{
		ID:               id,
		Kind:             enums.PromotionKindOrderThreshold,
		MinOrderSubtotal: minOrderSubtotal,
		DiscountPercent:  discountPercent,
	}
}

// ForProduct returns a copy of p scoped to a single product.
func (p Promotion) ForProduct(productID string) Promotion {
	p.Scope = enums.PromotionScopeProduct
	p.ScopeID = productID
	return p
}

// ForCategory returns a copy of p scoped to a category.
func (p Promotion) ForCategory(categoryID string) Promotion {
	p.Scope = enums.PromotionScopeCategory
	p.ScopeID = categoryID
	return p
}

func (p Promotion) matches(line CartLine) bool {
	switch p.Scope {
	case enums.PromotionScopeOrder:
		return true
	case enums.PromotionScopeProduct:
		return p.ScopeID != "" && p.ScopeID == line.ProductID
	case enums.PromotionScopeCategory:
		return p.ScopeID != "" && p.ScopeID == line.CategoryID
	default:
		return false
	}
}
